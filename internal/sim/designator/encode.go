package designator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Encode assembles a payload. It is pure and deterministic; inputs are
// copied so later mutation by the caller cannot alter a dispatched payload.
func Encode(kind TargetShape, desc Descriptor, meta []MetaValue, target Target, worldID int) (Payload, error) {
	if strings.TrimSpace(desc.Type) == "" {
		return Payload{}, ErrMissingType
	}
	if !kind.Valid() {
		return Payload{}, fmt.Errorf("%w: %d", ErrUnknownShape, kind)
	}
	if target.Shape != kind {
		return Payload{}, fmt.Errorf("%w: kind=%s target=%s", ErrShapeMismatch, kind, target.Shape)
	}
	if err := target.Validate(); err != nil {
		return Payload{}, err
	}
	out := Payload{
		Kind:       kind,
		Descriptor: desc,
		Metadata:   make([]MetaValue, len(meta)),
		Target:     target,
		WorldID:    worldID,
	}
	copy(out.Metadata, meta)
	if target.Cells != nil {
		out.Target.Cells = append([]int(nil), target.Cells...)
	}
	return out, nil
}

func MarshalPayload(p Payload) (json.RawMessage, error) {
	if p.Metadata == nil {
		p.Metadata = []MetaValue{}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
