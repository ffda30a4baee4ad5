// Package intercept sits in front of the three designation call sites. A
// locally issued designation is encoded and handed to the dispatch
// collaborator instead of mutating the world; the world only changes when the
// command comes back through Replayer on every peer, the originator included.
package intercept

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"lockstep.ai/internal/protocol"
	"lockstep.ai/internal/sim/cells"
	"lockstep.ai/internal/sim/designator"
	"lockstep.ai/internal/sim/replay"
)

var ErrDispatcherRequired = errors.New("dispatcher is required")
var ErrWorldViewRequired = errors.New("world view is required")

// Dispatcher transmits a payload to the sequencer. Fire-and-forget: it must
// not block the logic thread.
type Dispatcher interface {
	SendCommand(kind protocol.CommandType, worldID int, payload designator.Payload) error
}

// SyncGate reports whether designations should be synchronized right now.
type SyncGate interface {
	ShouldSync() bool
}

type SyncFunc func() bool

func (f SyncFunc) ShouldSync() bool { return f() }

// WorldView exposes the world the player is looking at.
type WorldView interface {
	VisibleWorld() replay.WorldRef
}

// Feedback is local-only acknowledgement of a thing designation.
type Feedback interface {
	Acknowledge(thing designator.ThingRef)
}

type DispatchRecorder interface {
	WriteDispatched(p designator.Payload) error
}

type Config struct {
	Resolver   *designator.Resolver
	Dispatcher Dispatcher
	// Sync defaults to always synchronizing.
	Sync      SyncGate
	View      WorldView
	Selection designator.Selection
	Feedback  Feedback
	Journal   DispatchRecorder
	// CanonicalCellOrder sorts multi-cell indices ascending before encoding.
	CanonicalCellOrder bool
	Log                logrus.FieldLogger
}

type Interceptor struct {
	resolver  *designator.Resolver
	dispatch  Dispatcher
	sync      SyncGate
	view      WorldView
	selection designator.Selection
	feedback  Feedback
	journal   DispatchRecorder
	canonical bool
	log       logrus.FieldLogger
}

func New(cfg Config) (*Interceptor, error) {
	if cfg.Dispatcher == nil {
		return nil, ErrDispatcherRequired
	}
	if cfg.View == nil {
		return nil, ErrWorldViewRequired
	}
	if cfg.Resolver == nil {
		cfg.Resolver = designator.NewResolver(nil)
	}
	if cfg.Sync == nil {
		cfg.Sync = SyncFunc(func() bool { return true })
	}
	if cfg.Log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		cfg.Log = l
	}
	return &Interceptor{
		resolver:  cfg.Resolver,
		dispatch:  cfg.Dispatcher,
		sync:      cfg.Sync,
		view:      cfg.View,
		selection: cfg.Selection,
		feedback:  cfg.Feedback,
		journal:   cfg.Journal,
		canonical: cfg.CanonicalCellOrder,
		log:       cfg.Log.WithField("component", "intercept"),
	}, nil
}

func (ic *Interceptor) shouldIntercept(s replay.Scope) bool {
	return !s.Replaying() && ic.sync.ShouldSync()
}

// DesignateSingleCell reports whether the call was intercepted. When it
// returns true the caller must not apply the designation itself, even if err
// is non-nil.
func (ic *Interceptor) DesignateSingleCell(s replay.Scope, a designator.Action, cell cells.Vec3i) (bool, error) {
	if !ic.shouldIntercept(s) {
		return false, nil
	}
	w := s.CurrentWorld(ic.view.VisibleWorld())
	idx, ok := w.Cells.CellToIndex(cell)
	if !ok {
		return true, ic.fail(a, w, fmt.Errorf("%w: %v", designator.ErrCellOutOfBounds, cell))
	}
	_, err := ic.send(designator.ShapeSingleCell, a, designator.SingleCell(idx), w)
	return true, err
}

func (ic *Interceptor) DesignateMultiCell(s replay.Scope, a designator.Action, cs []cells.Vec3i) (bool, error) {
	if !ic.shouldIntercept(s) {
		return false, nil
	}
	w := s.CurrentWorld(ic.view.VisibleWorld())
	if len(cs) == 0 {
		ic.log.WithField("designator", a.Descriptor().Type).Debug("empty multi-cell designation dropped")
		return true, nil
	}
	indices := make([]int, 0, len(cs))
	for _, c := range cs {
		idx, ok := w.Cells.CellToIndex(c)
		if !ok {
			return true, ic.fail(a, w, fmt.Errorf("%w: %v", designator.ErrCellOutOfBounds, c))
		}
		indices = append(indices, idx)
	}
	if ic.canonical {
		sort.Ints(indices)
	}
	_, err := ic.send(designator.ShapeMultiCell, a, designator.MultiCell(indices), w)
	return true, err
}

func (ic *Interceptor) DesignateThing(s replay.Scope, a designator.Action, thing designator.ThingRef) (bool, error) {
	if !ic.shouldIntercept(s) {
		return false, nil
	}
	w := s.CurrentWorld(ic.view.VisibleWorld())
	sent, err := ic.send(designator.ShapeThing, a, designator.ThingTarget(thing.ID), w)
	if sent && ic.feedback != nil {
		ic.feedback.Acknowledge(thing)
	}
	return true, err
}

// Finalize reports whether the designation should be treated as successful
// locally. In synchronized mode the real outcome is only known once the
// command is replayed, so it is always true.
func (ic *Interceptor) Finalize(succeeded bool) bool {
	if ic.sync.ShouldSync() {
		return true
	}
	return succeeded
}

func (ic *Interceptor) send(kind designator.TargetShape, a designator.Action, target designator.Target, w replay.WorldRef) (bool, error) {
	desc := a.Descriptor()
	meta := ic.resolver.Resolve(a, ic.selection)
	p, err := designator.Encode(kind, desc, meta, target, w.ID)
	if err != nil {
		return false, ic.fail(a, w, err)
	}
	if err := ic.dispatch.SendCommand(protocol.CommandDesignator, w.ID, p); err != nil {
		ic.log.WithFields(logrus.Fields{
			"world_id":   w.ID,
			"designator": desc.Type,
		}).WithError(err).Warn("dispatch failed")
		return false, fmt.Errorf("dispatch: %w", err)
	}
	if ic.journal != nil {
		if err := ic.journal.WriteDispatched(p); err != nil {
			ic.log.WithError(err).Warn("journal dispatched command")
		}
	}
	ic.log.WithFields(logrus.Fields{
		"world_id":   w.ID,
		"kind":       kind.String(),
		"designator": desc.Type,
		"targets":    target.Count(),
	}).Debug("designation intercepted")
	return true, nil
}

func (ic *Interceptor) fail(a designator.Action, w replay.WorldRef, err error) error {
	ic.log.WithFields(logrus.Fields{
		"world_id":   w.ID,
		"designator": a.Descriptor().Type,
	}).WithError(err).Error("refusing to dispatch malformed designation")
	return err
}
