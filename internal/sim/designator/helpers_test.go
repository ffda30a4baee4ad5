package designator

type testAction struct {
	desc Descriptor
	rot  Rotation
	mat  string
}

func (a testAction) Descriptor() Descriptor { return a.desc }
func (a testAction) Rotation() Rotation     { return a.rot }
func (a testAction) Material() string       { return a.mat }

// plainAction has no placement or material accessors.
type plainAction struct{ desc Descriptor }

func (a plainAction) Descriptor() Descriptor { return a.desc }

type testSelection struct {
	region    int
	hasRegion bool
	things    []ThingRef
}

func (s testSelection) ActiveRegion() (int, bool) { return s.region, s.hasRegion }

func (s testSelection) SingleSelected() (ThingRef, bool) {
	if len(s.things) != 1 {
		return ThingRef{}, false
	}
	return s.things[0], true
}
