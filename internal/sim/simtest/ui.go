package simtest

import "lockstep.ai/internal/sim/designator"

// Action is a designator as the UI would hand it over.
type Action struct {
	Desc designator.Descriptor
	Rot  designator.Rotation
	Mat  string

	RegionID  int
	HasRegion bool
}

func (a Action) Descriptor() designator.Descriptor { return a.Desc }
func (a Action) Rotation() designator.Rotation     { return a.Rot }
func (a Action) Material() string                  { return a.Mat }

// Region is only set on actions rebuilt from a command.
func (a Action) Region() (int, bool) { return a.RegionID, a.HasRegion }

// Factory rebuilds actions from decoded commands.
type Factory struct{}

func (Factory) ActionFor(desc designator.Descriptor, ctx designator.Context) (designator.Action, error) {
	return Action{
		Desc:      desc,
		Rot:       ctx.Rotation,
		Mat:       ctx.Material,
		RegionID:  ctx.Region,
		HasRegion: ctx.HasRegion,
	}, nil
}

// Selection is mutable UI selection state.
type Selection struct {
	Region    int
	HasRegion bool
	Selected  []designator.ThingRef
}

func (s *Selection) ActiveRegion() (int, bool) {
	if s == nil {
		return 0, false
	}
	return s.Region, s.HasRegion
}

func (s *Selection) SingleSelected() (designator.ThingRef, bool) {
	if s == nil || len(s.Selected) != 1 {
		return designator.ThingRef{}, false
	}
	return s.Selected[0], true
}

// Feedback counts local acknowledgements.
type Feedback struct {
	Acked []int
}

func (f *Feedback) Acknowledge(t designator.ThingRef) { f.Acked = append(f.Acked, t.ID) }
