package designator

import (
	"strings"
	"testing"
)

func TestValidatePayloadJSON_AcceptsEncodedPayloads(t *testing.T) {
	payloads := []Payload{}
	for _, tc := range []struct {
		kind   TargetShape
		desc   Descriptor
		meta   []MetaValue
		target Target
	}{
		{ShapeSingleCell, Descriptor{Type: "AreaAllowedExpand"}, []MetaValue{RegionMeta(NoRegion)}, SingleCell(42)},
		{ShapeMultiCell, Descriptor{Type: "Build", BuildDef: "Wall"}, []MetaValue{RotationMeta(North), MaterialMeta("Steel")}, MultiCell([]int{1, 2})},
		{ShapeThing, Descriptor{Type: "Deconstruct"}, nil, ThingTarget(3)},
	} {
		p, err := Encode(tc.kind, tc.desc, tc.meta, tc.target, 2)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		payloads = append(payloads, p)
	}
	for _, p := range payloads {
		raw, err := MarshalPayload(p)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if err := ValidatePayloadJSON(raw); err != nil {
			t.Fatalf("validate %s: %v", raw, err)
		}
	}
}

func TestValidatePayloadJSON_RejectsShapeErrors(t *testing.T) {
	bad := []string{
		`{"desc":{"type":"Mine"},"meta":[],"target":{"shape":0},"world_id":1}`,
		`{"kind":0,"desc":{"type":"Mine"},"meta":[{"k":"colour","s":"red"}],"target":{"shape":0},"world_id":1}`,
		`{"kind":"zero","desc":{"type":"Mine"},"meta":[],"target":{"shape":0},"world_id":1}`,
		`[]`,
	}
	for _, b := range bad {
		if err := ValidatePayloadJSON([]byte(b)); err == nil {
			t.Fatalf("expected schema error for %s", b)
		}
	}
}

func TestPayloadSchemaJSON_NamesFields(t *testing.T) {
	raw, err := PayloadSchemaJSON()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	for _, field := range []string{`"kind"`, `"desc"`, `"meta"`, `"target"`, `"world_id"`} {
		if !strings.Contains(string(raw), field) {
			t.Fatalf("schema missing %s", field)
		}
	}
}
