package designator

import (
	"errors"
	"reflect"
	"testing"

	"lockstep.ai/internal/sim/catalogs"
	"lockstep.ai/internal/sim/cells"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		kind   TargetShape
		desc   Descriptor
		meta   []MetaValue
		target Target
	}{
		{"single", ShapeSingleCell, Descriptor{Type: "AreaAllowedExpand"}, []MetaValue{RegionMeta(7)}, SingleCell(42)},
		{"single zero index", ShapeSingleCell, Descriptor{Type: "Mine"}, []MetaValue{}, SingleCell(0)},
		{"multi", ShapeMultiCell, Descriptor{Type: "Build", BuildDef: "Wall"}, []MetaValue{RotationMeta(East), MaterialMeta("Steel")}, MultiCell([]int{9, 3, 3, 120})},
		{"thing", ShapeThing, Descriptor{Type: "Install"}, []MetaValue{RotationMeta(North), InstallMeta(NoThing)}, ThingTarget(77)},
	}
	for _, tc := range cases {
		p, err := Encode(tc.kind, tc.desc, tc.meta, tc.target, 5)
		if err != nil {
			t.Fatalf("%s: encode: %v", tc.name, err)
		}
		raw, err := MarshalPayload(p)
		if err != nil {
			t.Fatalf("%s: marshal: %v", tc.name, err)
		}
		got, err := Decode(raw)
		if err != nil {
			t.Fatalf("%s: decode: %v", tc.name, err)
		}
		if !reflect.DeepEqual(got.Descriptor, tc.desc) {
			t.Fatalf("%s: descriptor got %+v want %+v", tc.name, got.Descriptor, tc.desc)
		}
		if !reflect.DeepEqual(got.Target, tc.target) {
			t.Fatalf("%s: target got %+v want %+v", tc.name, got.Target, tc.target)
		}
		if !reflect.DeepEqual(got.Metadata, tc.meta) {
			t.Fatalf("%s: meta got %+v want %+v", tc.name, got.Metadata, tc.meta)
		}
		if got.Kind != tc.kind || got.WorldID != 5 {
			t.Fatalf("%s: kind/world got %d/%d", tc.name, got.Kind, got.WorldID)
		}
	}
}

func TestEncode_MultiCellCardinalityAndMapping(t *testing.T) {
	ix := cells.NewIndices(50, 40)
	src := []cells.Vec3i{{X: 1, Z: 1}, {X: 49, Z: 39}, {X: 0, Z: 0}, {X: 1, Z: 1}, {X: 20, Z: 7}}
	indices := make([]int, 0, len(src))
	for _, c := range src {
		i, ok := ix.CellToIndex(c)
		if !ok {
			t.Fatalf("cell %v out of bounds", c)
		}
		indices = append(indices, i)
	}
	p, err := Encode(ShapeMultiCell, Descriptor{Type: "Mine"}, nil, MultiCell(indices), 1)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(p.Target.Cells) != len(src) {
		t.Fatalf("cardinality: got %d want %d", len(p.Target.Cells), len(src))
	}
	for i, idx := range p.Target.Cells {
		back, ok := ix.IndexToCell(idx)
		if !ok || back != src[i] {
			t.Fatalf("cell %d: index %d maps to %v, want %v", i, idx, back, src[i])
		}
	}
}

func TestEncode_CopiesInputs(t *testing.T) {
	in := []int{1, 2, 3}
	meta := []MetaValue{RegionMeta(2)}
	p, err := Encode(ShapeMultiCell, Descriptor{Type: "AreaAllowedClear"}, meta, Target{Shape: ShapeMultiCell, Cells: in}, 1)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	in[0] = 99
	meta[0] = RegionMeta(99)
	if p.Target.Cells[0] != 1 || p.Metadata[0].Int != 2 {
		t.Fatalf("payload aliased caller slices: %+v", p)
	}
}

func TestEncode_RejectsInvariantViolations(t *testing.T) {
	cases := []struct {
		name   string
		kind   TargetShape
		desc   Descriptor
		target Target
		want   error
	}{
		{"missing type", ShapeSingleCell, Descriptor{}, SingleCell(1), ErrMissingType},
		{"unknown kind", TargetShape(9), Descriptor{Type: "Mine"}, SingleCell(1), ErrUnknownShape},
		{"kind mismatch", ShapeThing, Descriptor{Type: "Mine"}, SingleCell(1), ErrShapeMismatch},
		{"empty cells", ShapeMultiCell, Descriptor{Type: "Mine"}, MultiCell(nil), ErrEmptyCells},
		{"negative cell", ShapeSingleCell, Descriptor{Type: "Mine"}, SingleCell(-4), ErrNegativeIndex},
		{"two variants", ShapeSingleCell, Descriptor{Type: "Mine"}, Target{Shape: ShapeSingleCell, Cell: 1, Cells: []int{2}}, ErrShapeMismatch},
		{"thing with cell", ShapeThing, Descriptor{Type: "Claim"}, Target{Shape: ShapeThing, Thing: 3, Cell: 4}, ErrShapeMismatch},
	}
	for _, tc := range cases {
		_, err := Encode(tc.kind, tc.desc, nil, tc.target, 1)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, err, tc.want)
		}
	}
}

func TestDecode_RejectsMalformed(t *testing.T) {
	bad := []string{
		`not json`,
		`{"kind":1,"desc":{"type":"Mine"},"meta":[],"target":{"shape":1},"world_id":1}`,
		`{"kind":0,"desc":{"type":"Mine"},"meta":[],"target":{"shape":2,"thing":3},"world_id":1}`,
		`{"kind":0,"desc":{"type":"Mine"},"meta":[],"target":{"shape":0},"world_id":1,"extra":true}`,
	}
	for _, b := range bad {
		if _, err := Decode([]byte(b)); err == nil {
			t.Fatalf("expected decode error for %s", b)
		}
	}
}

func TestDecodeContext(t *testing.T) {
	r := NewResolver(catalogs.Defaults())
	desc := Descriptor{Type: "Build", BuildDef: "Table"}

	ctx, err := r.DecodeContext(desc, []MetaValue{RotationMeta(West), MaterialMeta("WoodLog")})
	if err != nil {
		t.Fatalf("decode context: %v", err)
	}
	if !ctx.HasRotation || ctx.Rotation != West || !ctx.HasMaterial || ctx.Material != "WoodLog" || ctx.HasRegion || ctx.HasInstall {
		t.Fatalf("unexpected context: %+v", ctx)
	}

	bad := [][]MetaValue{
		{MaterialMeta("WoodLog"), RotationMeta(West)},
		{RotationMeta(West)},
		{RotationMeta(West), MaterialMeta("WoodLog"), RegionMeta(1)},
		{{Kind: MetaRotation, Int: 7}, MaterialMeta("WoodLog")},
		// Would wrap to North if narrowed before the range check.
		{{Kind: MetaRotation, Int: 256}, MaterialMeta("WoodLog")},
		{{Kind: MetaRotation, Int: -1}, MaterialMeta("WoodLog")},
	}
	for i, meta := range bad {
		if _, err := r.DecodeContext(desc, meta); !errors.Is(err, ErrMetadataLayout) {
			t.Fatalf("case %d: got %v want ErrMetadataLayout", i, err)
		}
	}

	ctx, err = r.DecodeContext(Descriptor{Type: "AreaAllowedClear"}, []MetaValue{RegionMeta(NoRegion)})
	if err != nil || !ctx.HasRegion || ctx.Region != NoRegion {
		t.Fatalf("sentinel region should decode: %+v %v", ctx, err)
	}
}

func TestResolveThenDecodeContext(t *testing.T) {
	r := NewResolver(catalogs.Defaults())
	a := testAction{desc: Descriptor{Type: "Install"}, rot: South}
	sel := testSelection{things: []ThingRef{{ID: 31, Def: "Bed", Building: true}}}

	ctx, err := r.DecodeContext(a.desc, r.Resolve(a, sel))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ctx.Rotation != South || ctx.InstallThing != 31 {
		t.Fatalf("unexpected context: %+v", ctx)
	}
}
