// Package simtest is an in-memory stand-in for the simulation engine, the UI
// selection layer and the sequencer. Tests and cmd/replay drive designations
// through it exactly as a game client would.
package simtest

import (
	"errors"
	"fmt"
	"sort"

	"lockstep.ai/internal/sim/cells"
	"lockstep.ai/internal/sim/designator"
	"lockstep.ai/internal/sim/intercept"
	"lockstep.ai/internal/sim/replay"
)

var (
	ErrNoRegion     = errors.New("region designation without a region")
	ErrNoInstall    = errors.New("install designation without a thing to install")
	ErrUnknownThing = errors.New("thing not found")
)

// Mark is what a designation leaves behind on a cell or thing.
type Mark struct {
	Type         string
	BuildDef     string
	Region       int
	Rotation     designator.Rotation
	Material     string
	InstallThing int
}

type World struct {
	Ref        replay.WorldRef
	CellMarks  map[int]Mark
	ThingMarks map[int]Mark
	Things     map[int]designator.ThingRef
}

func (w *World) AddThing(t designator.ThingRef) { w.Things[t.ID] = t }

// Engine owns world state. Its Designate* methods are the call sites: they
// consult the interceptor first and mutate only when it declines.
type Engine struct {
	worlds   map[int]*World
	visible  int
	sel      *Selection
	resolver *designator.Resolver
	ic       *intercept.Interceptor
}

func NewEngine(resolver *designator.Resolver, sel *Selection) *Engine {
	if resolver == nil {
		resolver = designator.NewResolver(nil)
	}
	if sel == nil {
		sel = &Selection{}
	}
	return &Engine{worlds: map[int]*World{}, resolver: resolver, sel: sel}
}

func (e *Engine) Attach(ic *intercept.Interceptor) { e.ic = ic }

func (e *Engine) AddWorld(id, sizeX, sizeZ int) *World {
	w := &World{
		Ref:        replay.WorldRef{ID: id, Cells: cells.NewIndices(sizeX, sizeZ)},
		CellMarks:  map[int]Mark{},
		ThingMarks: map[int]Mark{},
		Things:     map[int]designator.ThingRef{},
	}
	e.worlds[id] = w
	if len(e.worlds) == 1 {
		e.visible = id
	}
	return w
}

func (e *Engine) WorldState(id int) *World { return e.worlds[id] }

func (e *Engine) World(id int) (replay.WorldRef, bool) {
	w, ok := e.worlds[id]
	if !ok {
		return replay.WorldRef{}, false
	}
	return w.Ref, true
}

func (e *Engine) VisibleWorld() replay.WorldRef {
	if w, ok := e.worlds[e.visible]; ok {
		return w.Ref
	}
	return replay.WorldRef{}
}

// SetVisibleWorld switches the player's view unless a replay scope has the
// visible world locked.
func (e *Engine) SetVisibleWorld(s replay.Scope, id int) bool {
	if s.VisibleWorldLocked() {
		return false
	}
	if _, ok := e.worlds[id]; !ok {
		return false
	}
	e.visible = id
	return true
}

func (e *Engine) DesignateSingleCell(s replay.Scope, a designator.Action, cell cells.Vec3i) error {
	if e.ic != nil {
		if intercepted, err := e.ic.DesignateSingleCell(s, a, cell); intercepted {
			return err
		}
	}
	return e.markCells(s, a, []cells.Vec3i{cell})
}

func (e *Engine) DesignateMultiCell(s replay.Scope, a designator.Action, cs []cells.Vec3i) error {
	if e.ic != nil {
		if intercepted, err := e.ic.DesignateMultiCell(s, a, cs); intercepted {
			return err
		}
	}
	return e.markCells(s, a, cs)
}

func (e *Engine) markCells(s replay.Scope, a designator.Action, cs []cells.Vec3i) error {
	w, err := e.current(s)
	if err != nil {
		return err
	}
	m, err := e.markFor(s, a)
	if err != nil {
		return err
	}
	for _, c := range cs {
		idx, ok := w.Ref.Cells.CellToIndex(c)
		if !ok {
			return fmt.Errorf("%w: %v", designator.ErrCellOutOfBounds, c)
		}
		w.CellMarks[idx] = m
	}
	return nil
}

func (e *Engine) DesignateThing(s replay.Scope, a designator.Action, thingID int) error {
	w, err := e.current(s)
	if err != nil {
		return err
	}
	t, ok := w.Things[thingID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownThing, thingID)
	}
	if e.ic != nil {
		if intercepted, err := e.ic.DesignateThing(s, a, t); intercepted {
			return err
		}
	}
	m, err := e.markFor(s, a)
	if err != nil {
		return err
	}
	w.ThingMarks[thingID] = m
	return nil
}

func (e *Engine) current(s replay.Scope) (*World, error) {
	ref := s.CurrentWorld(e.VisibleWorld())
	w, ok := e.worlds[ref.ID]
	if !ok {
		return nil, fmt.Errorf("world %d not loaded", ref.ID)
	}
	return w, nil
}

func (e *Engine) markFor(s replay.Scope, a designator.Action) (Mark, error) {
	desc := a.Descriptor()
	m := Mark{Type: desc.Type, BuildDef: desc.BuildDef, Region: designator.NoRegion, InstallThing: designator.NoThing}
	tr := e.resolver.Traits(desc)
	if tr.Has(designator.TraitRegion) {
		if ra, ok := a.(interface{ Region() (int, bool) }); ok {
			if id, has := ra.Region(); has {
				m.Region = id
			}
		} else if id, ok := e.sel.ActiveRegion(); ok {
			m.Region = id
		}
		if m.Region == designator.NoRegion {
			return Mark{}, ErrNoRegion
		}
	}
	if p, ok := a.(designator.Placer); ok {
		m.Rotation = p.Rotation()
	}
	if mc, ok := a.(designator.MaterialChooser); ok {
		m.Material = mc.Material()
	}
	if tr.Has(designator.TraitInstall) {
		m.InstallThing = s.ThingToInstall(e.resolver.ThingToInstall(e.sel))
		if m.InstallThing == designator.NoThing {
			return Mark{}, ErrNoInstall
		}
	}
	return m, nil
}

// Digest is an order-independent fingerprint of every world's marks, used to
// compare peers.
func (e *Engine) Digest() string {
	ids := make([]int, 0, len(e.worlds))
	for id := range e.worlds {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := ""
	for _, id := range ids {
		w := e.worlds[id]
		out += fmt.Sprintf("w%d[", id)
		out += digestMarks("c", w.CellMarks)
		out += digestMarks("t", w.ThingMarks)
		out += "]"
	}
	return out
}

func digestMarks(prefix string, marks map[int]Mark) string {
	keys := make([]int, 0, len(marks))
	for k := range marks {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := ""
	for _, k := range keys {
		out += fmt.Sprintf("%s%d=%+v;", prefix, k, marks[k])
	}
	return out
}
