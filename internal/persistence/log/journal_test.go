package log

import (
	"errors"
	"testing"
	"time"

	"lockstep.ai/internal/sim/designator"
)

func TestJournal_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir, "s1")
	p, err := designator.Encode(designator.ShapeMultiCell, designator.Descriptor{Type: "Mine"}, nil, designator.MultiCell([]int{3, 1}), 2)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := j.WriteDispatched(p); err != nil {
		t.Fatalf("dispatched: %v", err)
	}
	if err := j.WriteApplied(9, p); err != nil {
		t.Fatalf("applied: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var got []Entry
	if err := ReadJournal(dir, func(e Entry) error { got = append(got, e); return nil }); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries=%d want 2", len(got))
	}
	if got[0].Event != EventDispatched || got[0].Seq != 0 || got[0].Session != "s1" {
		t.Fatalf("dispatched entry: %+v", got[0])
	}
	if got[1].Event != EventApplied || got[1].Seq != 9 {
		t.Fatalf("applied entry: %+v", got[1])
	}
	cs := got[1].Payload.Target.Cells
	if len(cs) != 2 || cs[0] != 3 || cs[1] != 1 || got[1].Payload.WorldID != 2 {
		t.Fatalf("payload changed in the journal: %+v", got[1].Payload)
	}
}

func TestJournal_HourlyRotation(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir, "")
	now := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	j.w.now = func() time.Time { return now }

	p, _ := designator.Encode(designator.ShapeThing, designator.Descriptor{Type: "Haul"}, nil, designator.ThingTarget(4), 1)
	if err := j.WriteApplied(1, p); err != nil {
		t.Fatalf("write: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := j.WriteApplied(2, p); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = j.Close()

	files, err := JournalFiles(dir)
	if err != nil || len(files) != 2 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	var seqs []uint64
	if err := ReadJournal(dir, func(e Entry) error { seqs = append(seqs, e.Seq); return nil }); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 2 {
		t.Fatalf("seqs=%v", seqs)
	}
}

func TestReadJournal_StopsOnCallbackError(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir, "")
	p, _ := designator.Encode(designator.ShapeSingleCell, designator.Descriptor{Type: "Mine"}, nil, designator.SingleCell(0), 1)
	for i := uint64(1); i <= 3; i++ {
		_ = j.WriteApplied(i, p)
	}
	_ = j.Close()

	stop := errors.New("stop")
	n := 0
	err := ReadJournal(dir, func(Entry) error {
		n++
		if n == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || n != 2 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}
