package intercept

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"lockstep.ai/internal/protocol"
	"lockstep.ai/internal/sim/cells"
	"lockstep.ai/internal/sim/designator"
	"lockstep.ai/internal/sim/replay"
)

var (
	ErrOutOfOrder         = errors.New("command out of sequence")
	ErrUnknownCommandType = errors.New("unknown command type")
	ErrWorldNotFound      = errors.New("world not found")
	ErrWorldMismatch      = errors.New("payload world does not match envelope")
)

// CallSites are the simulation's designation entry points. They are the same
// functions that consult the Interceptor on a local call.
type CallSites interface {
	DesignateSingleCell(s replay.Scope, a designator.Action, cell cells.Vec3i) error
	DesignateMultiCell(s replay.Scope, a designator.Action, cs []cells.Vec3i) error
	DesignateThing(s replay.Scope, a designator.Action, thingID int) error
}

// ActionFactory rebuilds a designator from its descriptor and decoded
// metadata.
type ActionFactory interface {
	ActionFor(desc designator.Descriptor, ctx designator.Context) (designator.Action, error)
}

type WorldDirectory interface {
	World(id int) (replay.WorldRef, bool)
}

type AppliedRecorder interface {
	WriteApplied(seq uint64, p designator.Payload) error
}

type AppliedIndex interface {
	RecordApplied(seq uint64, p designator.Payload)
}

type ReplayerConfig struct {
	Guard    *replay.Guard
	Resolver *designator.Resolver
	Worlds   WorldDirectory
	Actions  ActionFactory
	Sites    CallSites
	Journal  AppliedRecorder
	Index    AppliedIndex
	Log      logrus.FieldLogger
}

// Replayer applies sequenced commands one at a time inside a replay scope.
type Replayer struct {
	guard    *replay.Guard
	resolver *designator.Resolver
	worlds   WorldDirectory
	actions  ActionFactory
	sites    CallSites
	journal  AppliedRecorder
	index    AppliedIndex
	log      logrus.FieldLogger

	nextSeq uint64
}

func NewReplayer(cfg ReplayerConfig) (*Replayer, error) {
	if cfg.Worlds == nil || cfg.Actions == nil || cfg.Sites == nil {
		return nil, errors.New("replayer: worlds, actions and call sites are required")
	}
	if cfg.Guard == nil {
		cfg.Guard = &replay.Guard{}
	}
	if cfg.Resolver == nil {
		cfg.Resolver = designator.NewResolver(nil)
	}
	if cfg.Log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		cfg.Log = l
	}
	return &Replayer{
		guard:    cfg.Guard,
		resolver: cfg.Resolver,
		worlds:   cfg.Worlds,
		actions:  cfg.Actions,
		sites:    cfg.Sites,
		journal:  cfg.Journal,
		index:    cfg.Index,
		log:      cfg.Log.WithField("component", "replay"),
	}, nil
}

// SetNextSeq primes sequence checking, normally from WELCOME.
func (r *Replayer) SetNextSeq(seq uint64) { r.nextSeq = seq }

func (r *Replayer) NextSeq() uint64 { return r.nextSeq }

// ApplyMessage checks sequencing, validates and decodes the payload, then
// applies it. A sequence gap is returned as ErrOutOfOrder and nothing is
// applied; payload errors consume the sequence number so every peer skips
// the same command.
func (r *Replayer) ApplyMessage(msg protocol.CommandMsg) error {
	if r.nextSeq != 0 && msg.Seq != r.nextSeq {
		return fmt.Errorf("%w: got %d want %d", ErrOutOfOrder, msg.Seq, r.nextSeq)
	}
	r.nextSeq = msg.Seq + 1

	if msg.CommandType != protocol.CommandDesignator {
		return fmt.Errorf("%w: %q", ErrUnknownCommandType, msg.CommandType)
	}
	if err := designator.ValidatePayloadJSON(msg.Payload); err != nil {
		return err
	}
	p, err := designator.Decode(msg.Payload)
	if err != nil {
		return err
	}
	if p.WorldID != msg.WorldID {
		return fmt.Errorf("%w: payload=%d envelope=%d", ErrWorldMismatch, p.WorldID, msg.WorldID)
	}
	if err := r.Apply(p); err != nil {
		return err
	}
	if r.journal != nil {
		if err := r.journal.WriteApplied(msg.Seq, p); err != nil {
			r.log.WithError(err).Warn("journal applied command")
		}
	}
	if r.index != nil {
		r.index.RecordApplied(msg.Seq, p)
	}
	return nil
}

// Drain applies every message already waiting in ch without blocking. It
// stops at the first sequencing error; other per-command errors are logged
// and skipped.
func (r *Replayer) Drain(ch <-chan protocol.CommandMsg) (int, error) {
	applied := 0
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return applied, nil
			}
			err := r.ApplyMessage(msg)
			if errors.Is(err, ErrOutOfOrder) {
				return applied, err
			}
			if err != nil {
				r.log.WithFields(logrus.Fields{
					"seq":      msg.Seq,
					"world_id": msg.WorldID,
				}).WithError(err).Warn("command skipped")
				continue
			}
			applied++
		default:
			return applied, nil
		}
	}
}

// Apply feeds a decoded payload back through the call sites with the guard
// set and the world/install overrides taken from the payload.
func (r *Replayer) Apply(p designator.Payload) error {
	w, ok := r.worlds.World(p.WorldID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrWorldNotFound, p.WorldID)
	}
	ctx, err := r.resolver.DecodeContext(p.Descriptor, p.Metadata)
	if err != nil {
		return err
	}
	a, err := r.actions.ActionFor(p.Descriptor, ctx)
	if err != nil {
		return fmt.Errorf("rebuild %s: %w", p.Descriptor.Type, err)
	}
	ov := replay.WithWorld(w)
	if ctx.HasInstall {
		ov = ov.WithInstallThing(ctx.InstallThing)
	}
	return r.guard.Do(ov, func(s replay.Scope) error {
		switch p.Kind {
		case designator.ShapeSingleCell:
			c, ok := w.Cells.IndexToCell(p.Target.Cell)
			if !ok {
				return fmt.Errorf("%w: index %d", designator.ErrCellOutOfBounds, p.Target.Cell)
			}
			return r.sites.DesignateSingleCell(s, a, c)
		case designator.ShapeMultiCell:
			cs := make([]cells.Vec3i, 0, len(p.Target.Cells))
			for _, idx := range p.Target.Cells {
				c, ok := w.Cells.IndexToCell(idx)
				if !ok {
					return fmt.Errorf("%w: index %d", designator.ErrCellOutOfBounds, idx)
				}
				cs = append(cs, c)
			}
			return r.sites.DesignateMultiCell(s, a, cs)
		case designator.ShapeThing:
			return r.sites.DesignateThing(s, a, p.Target.Thing)
		}
		return designator.ErrUnknownShape
	})
}
