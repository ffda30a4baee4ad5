package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"lockstep.ai/internal/sim/catalogs"
	"lockstep.ai/internal/sim/designator"
)

// SQLiteIndex is a queryable secondary index over applied commands. The
// journal stays the source of truth: when the writer falls behind, rows are
// dropped and counted rather than stalling the replay loop.
type SQLiteIndex struct {
	db  *sql.DB
	log logrus.FieldLogger

	// sendMu orders sends on ch against the close in Close.
	sendMu sync.RWMutex
	ch     chan req
	wg     sync.WaitGroup
	once   sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqApplied reqKind = iota + 1
	reqFlush
)

type req struct {
	kind reqKind

	seq     uint64
	payload designator.Payload
	at      time.Time
	done    chan struct{}
}

// Stats is a point-in-time view of the writer queue.
type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	QueueDroppedTotal uint64
}

func OpenSQLite(path string, log logrus.FieldLogger) (*SQLiteIndex, error) {
	return openSQLite(path, 65536, log)
}

func openSQLite(path string, queue int, log logrus.FieldLogger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:  db,
		log: log.WithField("component", "indexdb"),
		ch:  make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS applied_commands (
			seq INTEGER PRIMARY KEY,
			world_id INTEGER NOT NULL,
			kind INTEGER NOT NULL,
			designator TEXT NOT NULL,
			build_def TEXT NOT NULL,
			targets INTEGER NOT NULL,
			applied_at TEXT NOT NULL,
			payload_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS applied_commands_world ON applied_commands(world_id, seq);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.sendMu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.sendMu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordApplied queues one applied command. It never blocks.
func (s *SQLiteIndex) RecordApplied(seq uint64, p designator.Payload) {
	if s == nil {
		return
	}
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqApplied, seq: seq, payload: p, at: time.Now().UTC()}:
	default:
		s.dropped.Add(1)
	}
}

// Flush waits until every row queued before the call is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	if err := s.enqueueFlush(ctx, done); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) enqueueFlush(ctx context.Context, done chan struct{}) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed.Load() {
		// Close commits everything still queued.
		close(done)
		return nil
	}
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		QueueDroppedTotal: s.dropped.Load(),
	}
}

// RecordCatalog stores the digests peers must agree on.
func (s *SQLiteIndex) RecordCatalog(ctx context.Context, cat *catalogs.Catalog) error {
	if s == nil || cat == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for k, v := range map[string]string{
		"catalog_digest":     cat.Digest(),
		"designators_digest": cat.DesignatorsDigest,
		"things_digest":      cat.ThingsDigest,
	} {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, k, v); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) Meta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}

// CountApplied returns the number of indexed commands for a world, or for
// every world when worldID is negative.
func (s *SQLiteIndex) CountApplied(ctx context.Context, worldID int) (int, error) {
	var n int
	var err error
	if worldID < 0 {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM applied_commands`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM applied_commands WHERE world_id=?`, worldID).Scan(&n)
	}
	return n, err
}

// LastSeq is the highest indexed sequence number, zero when empty.
func (s *SQLiteIndex) LastSeq(ctx context.Context) (uint64, error) {
	var n sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM applied_commands`).Scan(&n); err != nil {
		return 0, err
	}
	if !n.Valid {
		return 0, nil
	}
	return uint64(n.Int64), nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertApplied, err := s.db.Prepare(`INSERT OR REPLACE INTO applied_commands(seq,world_id,kind,designator,build_def,targets,applied_at,payload_json) VALUES(?,?,?,?,?,?,?,?)`)
	if err != nil {
		s.log.WithError(err).Error("prepare insert")
	} else {
		defer insertApplied.Close()
	}

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.log.WithError(err).Warn("begin tx")
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.log.WithError(err).Warn("commit")
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		switch r.kind {
		case reqFlush:
			commit()
			close(r.done)
			continue
		case reqApplied:
			begin()
			if tx == nil || insertApplied == nil {
				continue
			}
			raw, _ := json.Marshal(r.payload)
			if _, err := tx.Stmt(insertApplied).Exec(
				int64(r.seq),
				r.payload.WorldID,
				int(r.payload.Kind),
				r.payload.Descriptor.Type,
				r.payload.Descriptor.BuildDef,
				r.payload.Target.Count(),
				r.at.Format(time.RFC3339Nano),
				string(raw),
			); err != nil {
				s.log.WithError(err).WithField("seq", r.seq).Warn("index applied command")
				_ = tx.Rollback()
				tx = nil
				continue
			}
			opCount++
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	commit()
}
