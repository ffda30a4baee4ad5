// Package designator turns a locally issued designation into a
// self-describing Command Payload and back.
//
// A payload is the ordered tuple (kind, descriptor, metadata, target, world).
// Kind selects the target shape; metadata carries the ambient UI state a
// remote peer needs to reproduce the action, in a layout fixed by the
// designator's catalog traits.
package designator

import (
	"errors"

	"lockstep.ai/internal/sim/catalogs"
)

// TargetShape is the action-kind tag on the wire.
type TargetShape uint8

const (
	ShapeSingleCell TargetShape = 0
	ShapeMultiCell  TargetShape = 1
	ShapeThing      TargetShape = 2
)

func (s TargetShape) Valid() bool { return s <= ShapeThing }

func (s TargetShape) String() string {
	switch s {
	case ShapeSingleCell:
		return "SINGLE_CELL"
	case ShapeMultiCell:
		return "MULTI_CELL"
	case ShapeThing:
		return "THING"
	}
	return "UNKNOWN"
}

// Sentinels for unresolvable metadata. They are always encoded, never omitted.
const (
	NoRegion   = -1
	NoThing    = -1
	NoMaterial = ""
)

var (
	ErrMissingType     = errors.New("designator type is required")
	ErrUnknownShape    = errors.New("unknown target shape")
	ErrShapeMismatch   = errors.New("target shape does not match action kind")
	ErrEmptyCells      = errors.New("multi-cell target has no cells")
	ErrNegativeIndex   = errors.New("target index is negative")
	ErrCellOutOfBounds = errors.New("cell is outside the world")
	ErrMetadataLayout  = errors.New("metadata does not match designator layout")
)

// Descriptor identifies the designator. BuildDef is set only for build
// designators and names the definition being placed.
type Descriptor struct {
	Type     string `json:"type" jsonschema:"required,minLength=1"`
	BuildDef string `json:"build_def,omitempty"`
}

// Traits is the decoded form of a catalog trait list.
type Traits uint8

const (
	TraitRegion Traits = 1 << iota
	TraitPlace
	TraitBuild
	TraitInstall
)

func (t Traits) Has(f Traits) bool { return t&f == f }

// TraitsFor looks up a designator type. Unknown types have no traits and
// therefore no metadata.
func TraitsFor(cat *catalogs.Catalog, typeName string) Traits {
	def, ok := cat.Designator(typeName)
	if !ok {
		return 0
	}
	var t Traits
	for _, name := range def.Traits {
		switch name {
		case catalogs.TraitRegion:
			t |= TraitRegion
		case catalogs.TraitPlace:
			t |= TraitPlace
		case catalogs.TraitBuild:
			t |= TraitBuild
		case catalogs.TraitInstall:
			t |= TraitInstall
		}
	}
	return t
}

// Rotation is a four-way orientation, encoded as one byte.
type Rotation uint8

const (
	North Rotation = iota
	East
	South
	West
)

func (r Rotation) Valid() bool { return r <= West }

// MetaKind tags each metadata entry so a decoder can check it consumed the
// list in the order it was appended.
type MetaKind string

const (
	MetaRegion   MetaKind = "region"
	MetaRotation MetaKind = "rot"
	MetaMaterial MetaKind = "stuff"
	MetaInstall  MetaKind = "install"
)

type MetaValue struct {
	Kind MetaKind `json:"k" jsonschema:"required,enum=region,enum=rot,enum=stuff,enum=install"`
	Int  int64    `json:"i,omitempty"`
	Str  string   `json:"s,omitempty"`
}

func RegionMeta(id int) MetaValue           { return MetaValue{Kind: MetaRegion, Int: int64(id)} }
func RotationMeta(r Rotation) MetaValue     { return MetaValue{Kind: MetaRotation, Int: int64(r)} }
func MaterialMeta(defName string) MetaValue { return MetaValue{Kind: MetaMaterial, Str: defName} }
func InstallMeta(thingID int) MetaValue     { return MetaValue{Kind: MetaInstall, Int: int64(thingID)} }

// Target is a tagged variant; exactly one of Cell, Cells, Thing is
// meaningful, selected by Shape.
type Target struct {
	Shape TargetShape `json:"shape" jsonschema:"required,minimum=0,maximum=2"`
	Cell  int         `json:"cell,omitempty"`
	Cells []int       `json:"cells,omitempty"`
	Thing int         `json:"thing,omitempty"`
}

func SingleCell(index int) Target { return Target{Shape: ShapeSingleCell, Cell: index} }

func MultiCell(indices []int) Target {
	return Target{Shape: ShapeMultiCell, Cells: append([]int(nil), indices...)}
}

func ThingTarget(thingID int) Target { return Target{Shape: ShapeThing, Thing: thingID} }

// Count is the number of cells or objects addressed.
func (t Target) Count() int {
	if t.Shape == ShapeMultiCell {
		return len(t.Cells)
	}
	return 1
}

func (t Target) Validate() error {
	switch t.Shape {
	case ShapeSingleCell:
		if t.Cells != nil || t.Thing != 0 {
			return ErrShapeMismatch
		}
		if t.Cell < 0 {
			return ErrNegativeIndex
		}
	case ShapeMultiCell:
		if t.Cell != 0 || t.Thing != 0 {
			return ErrShapeMismatch
		}
		if len(t.Cells) == 0 {
			return ErrEmptyCells
		}
		for _, c := range t.Cells {
			if c < 0 {
				return ErrNegativeIndex
			}
		}
	case ShapeThing:
		if t.Cells != nil || t.Cell != 0 {
			return ErrShapeMismatch
		}
		if t.Thing < 0 {
			return ErrNegativeIndex
		}
	default:
		return ErrUnknownShape
	}
	return nil
}

// Payload is the unit placed on the wire.
type Payload struct {
	Kind       TargetShape `json:"kind" jsonschema:"required,minimum=0,maximum=2"`
	Descriptor Descriptor  `json:"desc" jsonschema:"required"`
	Metadata   []MetaValue `json:"meta" jsonschema:"required"`
	Target     Target      `json:"target" jsonschema:"required"`
	WorldID    int         `json:"world_id" jsonschema:"required"`
}
