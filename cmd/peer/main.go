// Command peer is a headless participant: it joins a sequencer, replays the
// ordered command stream into an in-memory engine, journals and indexes what
// it applies, and can issue random designations to exercise the pipeline.
package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"lockstep.ai/internal/config"
	"lockstep.ai/internal/logging"
	"lockstep.ai/internal/persistence/indexdb"
	persistlog "lockstep.ai/internal/persistence/log"
	"lockstep.ai/internal/sim/catalogs"
	"lockstep.ai/internal/sim/cells"
	"lockstep.ai/internal/sim/designator"
	"lockstep.ai/internal/sim/intercept"
	"lockstep.ai/internal/sim/replay"
	"lockstep.ai/internal/sim/simtest"
	"lockstep.ai/internal/transport/ws"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to lockstep.yaml (optional)")
		name       = flag.String("name", "peer", "peer name")
		url        = flag.String("url", "", "sequencer ws url (overrides transport.url)")
		every      = flag.Duration("every", 0, "issue a random designation at this interval (0 disables)")
		seed       = flag.Int64("seed", 1, "random designation seed")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.New(logging.Config{}).WithError(err).Fatal("load config")
	}
	if *url != "" {
		cfg.Transport.URL = *url
	}
	logger := logging.New(cfg.Log)

	cat, err := catalogs.Load(cfg.Catalog)
	if err != nil {
		logger.WithError(err).Fatal("load catalog")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := ws.Dial(dialCtx, ws.DialConfig{
		URL:           cfg.Transport.URL,
		PeerName:      *name,
		CatalogDigest: cat.Digest(),
		MaxQueue:      cfg.Transport.MaxQueue,
		Log:           logger,
	})
	dialCancel()
	if err != nil {
		logger.WithError(err).Fatal("join sequencer")
	}
	defer client.Close()
	welcome := client.Welcome()
	log := logger.WithFields(logrus.Fields{"peer": *name, "peer_id": welcome.PeerID, "session": welcome.SessionID})
	log.WithField("next_seq", welcome.NextSeq).Info("joined")

	resolver := designator.NewResolver(cat)
	sel := &simtest.Selection{}
	engine := simtest.NewEngine(resolver, sel)
	for _, w := range cfg.Worlds {
		engine.AddWorld(w.ID, w.SizeX, w.SizeZ)
	}

	icCfg := intercept.Config{
		Resolver:           resolver,
		Dispatcher:         client,
		Sync:               intercept.SyncFunc(func() bool { return cfg.Sync.Enabled }),
		View:               engine,
		Selection:          sel,
		CanonicalCellOrder: cfg.Sync.CanonicalCellOrder,
		Log:                logger,
	}
	rpCfg := intercept.ReplayerConfig{
		Resolver: resolver,
		Worlds:   engine,
		Actions:  simtest.Factory{},
		Sites:    engine,
		Log:      logger,
	}
	if !cfg.Journal.Disabled {
		j := persistlog.NewJournal(cfg.Journal.Dir, welcome.SessionID+"-"+uuid.NewString()[:8])
		defer j.Close()
		icCfg.Journal = j
		rpCfg.Journal = j
	}
	if !cfg.Index.Disabled {
		idx, err := indexdb.OpenSQLite(cfg.Index.Path, logger)
		if err != nil {
			log.WithError(err).Fatal("open index")
		}
		defer idx.Close()
		if err := idx.RecordCatalog(ctx, cat); err != nil {
			log.WithError(err).Warn("record catalog")
		}
		rpCfg.Index = idx
	}

	ic, err := intercept.New(icCfg)
	if err != nil {
		log.WithError(err).Fatal("interceptor")
	}
	engine.Attach(ic)
	rp, err := intercept.NewReplayer(rpCfg)
	if err != nil {
		log.WithError(err).Fatal("replayer")
	}
	rp.SetNextSeq(welcome.NextSeq)

	var tick <-chan time.Time
	if *every > 0 {
		t := time.NewTicker(*every)
		defer t.Stop()
		tick = t.C
	}
	rng := rand.New(rand.NewSource(*seed))

	for {
		select {
		case <-ctx.Done():
			log.WithField("digest", engine.Digest()).Info("stopping")
			return
		case msg, ok := <-client.Inbox():
			if !ok {
				log.Warn("sequencer connection closed")
				return
			}
			if err := rp.ApplyMessage(msg); err != nil {
				log.WithField("seq", msg.Seq).WithError(err).Warn("command not applied")
			}
		case <-tick:
			designateRandom(engine, rng, log)
		}
	}
}

var randomDesignators = []string{"Mine", "Haul", "CutPlants"}

func designateRandom(e *simtest.Engine, rng *rand.Rand, log logrus.FieldLogger) {
	w := e.VisibleWorld()
	n := w.Cells.NumCells()
	if n == 0 {
		return
	}
	a := simtest.Action{Desc: designator.Descriptor{Type: randomDesignators[rng.Intn(len(randomDesignators))]}}
	cs := make([]cells.Vec3i, 1+rng.Intn(4))
	for i := range cs {
		cs[i], _ = w.Cells.IndexToCell(rng.Intn(n))
	}
	if err := e.DesignateMultiCell(replay.Local(), a, cs); err != nil {
		log.WithError(err).Warn("designate")
	}
}
