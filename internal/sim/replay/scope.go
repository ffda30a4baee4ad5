// Package replay holds the re-entrancy discriminator that separates locally
// issued actions from actions being re-applied out of the ordered command
// stream, plus the per-command overrides that point the re-applied action at
// the right world and object.
//
// All of it lives on the simulation's logic thread. Nothing here is a lock.
package replay

import (
	"errors"

	"lockstep.ai/internal/sim/cells"
)

var ErrScopeActive = errors.New("replay scope already active")

// WorldRef names a world and the coordinate mapping its indices use.
type WorldRef struct {
	ID    int
	Cells cells.Indices
}

// Overrides substitute ambient UI state for the duration of one command.
type Overrides struct {
	World    WorldRef
	HasWorld bool

	InstallThing int
	HasInstall   bool
}

func WithWorld(w WorldRef) Overrides { return Overrides{World: w, HasWorld: true} }

func (o Overrides) WithInstallThing(id int) Overrides {
	o.InstallThing, o.HasInstall = id, true
	return o
}

// Scope is threaded from the dispatch entry down to the call sites. The zero
// value is the local (Idle) scope.
type Scope struct {
	replaying bool
	ov        Overrides
}

func Local() Scope { return Scope{} }

func (s Scope) Replaying() bool { return s.replaying }

// CurrentWorld returns the overriding world if one is set, else ambient.
func (s Scope) CurrentWorld(ambient WorldRef) WorldRef {
	if s.ov.HasWorld {
		return s.ov.World
	}
	return ambient
}

// ThingToInstall returns the overriding install target if one is set, else
// ambient.
func (s Scope) ThingToInstall(ambient int) int {
	if s.ov.HasInstall {
		return s.ov.InstallThing
	}
	return ambient
}

// VisibleWorldLocked reports whether the engine must ignore attempts to
// change the visible world while this scope is applied.
func (s Scope) VisibleWorldLocked() bool { return s.ov.HasWorld }

// Guard is owned by one session and hands out replaying scopes one at a
// time.
type Guard struct {
	active bool
}

func (g *Guard) Active() bool { return g != nil && g.active }

// Enter switches the guard to Replaying. The returned release switches it
// back and is safe to call more than once; callers defer it.
func (g *Guard) Enter(ov Overrides) (Scope, func(), error) {
	if g.active {
		return Scope{}, func() {}, ErrScopeActive
	}
	g.active = true
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		g.active = false
	}
	return Scope{replaying: true, ov: ov}, release, nil
}

// Do runs fn inside a replaying scope. The guard is cleared when fn returns
// or panics.
func (g *Guard) Do(ov Overrides, fn func(Scope) error) error {
	s, release, err := g.Enter(ov)
	if err != nil {
		return err
	}
	defer release()
	return fn(s)
}
