package simtest

import (
	"testing"

	"lockstep.ai/internal/sim/cells"
	"lockstep.ai/internal/sim/designator"
	"lockstep.ai/internal/sim/replay"
)

func TestSetVisibleWorld_LockedDuringReplay(t *testing.T) {
	e := NewEngine(nil, nil)
	e.AddWorld(1, 4, 4)
	e.AddWorld(2, 4, 4)

	var g replay.Guard
	err := g.Do(replay.WithWorld(e.worlds[2].Ref), func(s replay.Scope) error {
		if e.SetVisibleWorld(s, 2) {
			t.Fatalf("visible world switched during replay")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	if e.VisibleWorld().ID != 1 {
		t.Fatalf("visible world = %d, want 1", e.VisibleWorld().ID)
	}
	if !e.SetVisibleWorld(replay.Local(), 2) || e.VisibleWorld().ID != 2 {
		t.Fatalf("local switch refused")
	}
	if e.SetVisibleWorld(replay.Local(), 9) {
		t.Fatalf("switched to unknown world")
	}
}

func TestDigest_OrderIndependent(t *testing.T) {
	a := NewEngine(nil, nil)
	b := NewEngine(nil, nil)
	for _, e := range []*Engine{a, b} {
		e.AddWorld(1, 4, 4)
	}
	a.worlds[1].CellMarks[3] = Mark{Type: "Mine"}
	a.worlds[1].CellMarks[1] = Mark{Type: "Haul"}
	b.worlds[1].CellMarks[1] = Mark{Type: "Haul"}
	b.worlds[1].CellMarks[3] = Mark{Type: "Mine"}
	if a.Digest() != b.Digest() {
		t.Fatalf("digest depends on insertion order")
	}
	b.worlds[1].ThingMarks[9] = Mark{Type: "Claim"}
	if a.Digest() == b.Digest() {
		t.Fatalf("digest ignores thing marks")
	}
}

func TestSequencer_HoldAndRelease(t *testing.T) {
	q := NewSequencer()
	a, err := NewPeer(q, "a", []WorldSpec{{ID: 1, SizeX: 8, SizeZ: 8}}, PeerOptions{CanonicalCellOrder: true})
	if err != nil {
		t.Fatalf("peer: %v", err)
	}
	q.Hold = true
	mine := Action{Desc: designator.Descriptor{Type: "Mine"}}
	for x := 0; x < 3; x++ {
		if err := a.Engine.DesignateSingleCell(replay.Local(), mine, cells.Vec3i{X: x}); err != nil {
			t.Fatalf("designate: %v", err)
		}
	}
	if n, _ := a.Tick(); n != 0 {
		t.Fatalf("held commands applied: %d", n)
	}
	q.Release()
	if n, err := a.Tick(); err != nil || n != 3 {
		t.Fatalf("tick after release: n=%d err=%v", n, err)
	}
	if q.NextSeq() != 4 || len(q.Sent) != 3 {
		t.Fatalf("next=%d sent=%d", q.NextSeq(), len(q.Sent))
	}
	q.Release()
	if n, _ := a.Tick(); n != 0 {
		t.Fatalf("release redelivered %d commands", n)
	}
}
