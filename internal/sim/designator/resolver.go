package designator

import "lockstep.ai/internal/sim/catalogs"

// Action is the designator the player currently has selected, as exposed by
// the UI layer.
type Action interface {
	Descriptor() Descriptor
}

// Placer is implemented by placement designators.
type Placer interface {
	Rotation() Rotation
}

// MaterialChooser is implemented by build designators whose placed
// definition is made from a chosen material.
type MaterialChooser interface {
	Material() string
}

// Selection is the read-only view of UI selection state.
type Selection interface {
	// ActiveRegion reports the region the region designators currently target.
	ActiveRegion() (id int, ok bool)
	// SingleSelected reports the selected object; ok is false when nothing or
	// more than one object is selected.
	SingleSelected() (ThingRef, bool)
}

// ThingRef describes a simulated object well enough to decide whether it can
// be installed.
type ThingRef struct {
	ID       int
	Def      string
	Minified bool
	Building bool
}

// Resolver extracts the metadata list for an action. It never fails:
// anything it cannot determine is encoded as a sentinel.
type Resolver struct {
	catalog *catalogs.Catalog
}

func NewResolver(cat *catalogs.Catalog) *Resolver {
	if cat == nil {
		cat = catalogs.Defaults()
	}
	return &Resolver{catalog: cat}
}

func (r *Resolver) Traits(desc Descriptor) Traits {
	return TraitsFor(r.catalog, desc.Type)
}

// Layout is the ordered list of metadata kinds a descriptor carries. Encoder
// and decoder both derive it from the shared catalog.
func (r *Resolver) Layout(desc Descriptor) []MetaKind {
	tr := r.Traits(desc)
	out := make([]MetaKind, 0, 4)
	if tr.Has(TraitRegion) {
		out = append(out, MetaRegion)
	}
	if tr.Has(TraitPlace) {
		out = append(out, MetaRotation)
	}
	if tr.Has(TraitBuild) && r.madeFromStuff(desc.BuildDef) {
		out = append(out, MetaMaterial)
	}
	if tr.Has(TraitInstall) {
		out = append(out, MetaInstall)
	}
	return out
}

func (r *Resolver) Resolve(a Action, sel Selection) []MetaValue {
	desc := a.Descriptor()
	layout := r.Layout(desc)
	meta := make([]MetaValue, 0, len(layout))
	for _, k := range layout {
		switch k {
		case MetaRegion:
			id := NoRegion
			if sel != nil {
				if rid, ok := sel.ActiveRegion(); ok {
					id = rid
				}
			}
			meta = append(meta, RegionMeta(id))
		case MetaRotation:
			rot := North
			if p, ok := a.(Placer); ok && p.Rotation().Valid() {
				rot = p.Rotation()
			}
			meta = append(meta, RotationMeta(rot))
		case MetaMaterial:
			stuff := NoMaterial
			if m, ok := a.(MaterialChooser); ok {
				stuff = m.Material()
			}
			meta = append(meta, MaterialMeta(stuff))
		case MetaInstall:
			meta = append(meta, InstallMeta(r.ThingToInstall(sel)))
		}
	}
	return meta
}

// ThingToInstall picks the object an install designator would act on: a
// packaged instance if one is selected, otherwise a packageable building,
// otherwise NoThing.
func (r *Resolver) ThingToInstall(sel Selection) int {
	if sel == nil {
		return NoThing
	}
	t, ok := sel.SingleSelected()
	if !ok {
		return NoThing
	}
	if t.Minified {
		return t.ID
	}
	if t.Building {
		if def, ok := r.catalog.Thing(t.Def); ok && def.Minifiable {
			return t.ID
		}
	}
	return NoThing
}

func (r *Resolver) madeFromStuff(defName string) bool {
	if defName == "" {
		return false
	}
	def, ok := r.catalog.Thing(defName)
	return ok && def.MadeFromStuff
}
