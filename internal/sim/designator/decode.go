package designator

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode parses a payload and re-checks every encoder invariant, so a
// structurally invalid payload never reaches the simulation.
func Decode(b []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	if p.Metadata == nil {
		p.Metadata = []MetaValue{}
	}
	return Encode(p.Kind, p.Descriptor, p.Metadata, p.Target, p.WorldID)
}

// Context is the typed view of a metadata list. The Has* flags record which
// slots the descriptor's layout carries.
type Context struct {
	Region    int
	HasRegion bool

	Rotation    Rotation
	HasRotation bool

	Material    string
	HasMaterial bool

	InstallThing int
	HasInstall   bool
}

// DecodeContext consumes meta in append order against the descriptor's
// layout. Sentinel values decode successfully; rejecting them is the
// simulation's business.
func (r *Resolver) DecodeContext(desc Descriptor, meta []MetaValue) (Context, error) {
	layout := r.Layout(desc)
	if len(meta) != len(layout) {
		return Context{}, fmt.Errorf("%w: %s wants %d entries, got %d", ErrMetadataLayout, desc.Type, len(layout), len(meta))
	}
	var c Context
	for i, want := range layout {
		v := meta[i]
		if v.Kind != want {
			return Context{}, fmt.Errorf("%w: entry %d is %q, want %q", ErrMetadataLayout, i, v.Kind, want)
		}
		switch want {
		case MetaRegion:
			c.Region, c.HasRegion = int(v.Int), true
		case MetaRotation:
			if v.Int < 0 || v.Int > int64(West) {
				return Context{}, fmt.Errorf("%w: rotation %d", ErrMetadataLayout, v.Int)
			}
			c.Rotation, c.HasRotation = Rotation(v.Int), true
		case MetaMaterial:
			c.Material, c.HasMaterial = v.Str, true
		case MetaInstall:
			c.InstallThing, c.HasInstall = int(v.Int), true
		}
	}
	return c, nil
}
