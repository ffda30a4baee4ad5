package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Trait names as they appear in catalog files.
const (
	TraitRegion  = "REGION"
	TraitPlace   = "PLACE"
	TraitBuild   = "BUILD"
	TraitInstall = "INSTALL"
)

var supportedTraits = []string{TraitRegion, TraitPlace, TraitBuild, TraitInstall}

// Catalog is the static data every peer must agree on before it can decode
// another peer's commands: which designator types need which metadata slots,
// and which placeable definitions take a material or can be packaged.
type Catalog struct {
	Designators map[string]DesignatorDef
	Things      map[string]ThingDef

	DesignatorsDigest string
	ThingsDigest      string
}

type DesignatorDef struct {
	Type   string   `yaml:"type" json:"type"`
	Traits []string `yaml:"traits,omitempty" json:"traits,omitempty"`
}

type ThingDef struct {
	Name          string `yaml:"name" json:"name"`
	MadeFromStuff bool   `yaml:"made_from_stuff,omitempty" json:"made_from_stuff,omitempty"`
	Minifiable    bool   `yaml:"minifiable,omitempty" json:"minifiable,omitempty"`
	Stuff         bool   `yaml:"stuff,omitempty" json:"stuff,omitempty"`
}

type fileFormat struct {
	Designators []DesignatorDef `yaml:"designators"`
	Things      []ThingDef      `yaml:"things"`
}

// Defaults is the built-in catalog used when no catalog file is configured.
func Defaults() *Catalog {
	c, err := build(fileFormat{
		Designators: []DesignatorDef{
			{Type: "AreaAllowedExpand", Traits: []string{TraitRegion}},
			{Type: "AreaAllowedClear", Traits: []string{TraitRegion}},
			{Type: "Build", Traits: []string{TraitPlace, TraitBuild}},
			{Type: "Install", Traits: []string{TraitPlace, TraitInstall}},
			{Type: "Mine"},
			{Type: "Deconstruct"},
			{Type: "Uninstall"},
			{Type: "Haul"},
			{Type: "CutPlants"},
			{Type: "Claim"},
		},
		Things: []ThingDef{
			{Name: "Wall", MadeFromStuff: true},
			{Name: "Door", MadeFromStuff: true},
			{Name: "Bed", MadeFromStuff: true, Minifiable: true},
			{Name: "Table", MadeFromStuff: true, Minifiable: true},
			{Name: "StandingLamp", Minifiable: true},
			{Name: "Sandbags"},
			{Name: "WoodLog", Stuff: true},
			{Name: "Steel", Stuff: true},
			{Name: "BlocksGranite", Stuff: true},
		},
	})
	if err != nil {
		panic(fmt.Sprintf("catalogs: invalid defaults: %v", err))
	}
	return c
}

// Load reads a YAML catalog file. An empty path yields Defaults.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Defaults(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileFormat
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	c, err := build(f)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

func build(f fileFormat) (*Catalog, error) {
	c := &Catalog{
		Designators: make(map[string]DesignatorDef, len(f.Designators)),
		Things:      make(map[string]ThingDef, len(f.Things)),
	}
	for _, d := range f.Designators {
		d.Type = strings.TrimSpace(d.Type)
		if d.Type == "" {
			return nil, fmt.Errorf("designators: empty type")
		}
		if _, dup := c.Designators[d.Type]; dup {
			return nil, fmt.Errorf("designators: duplicate type %q", d.Type)
		}
		d.Traits = normalizeTraits(d.Traits)
		c.Designators[d.Type] = d
	}
	for _, t := range f.Things {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			return nil, fmt.Errorf("things: empty name")
		}
		if _, dup := c.Things[t.Name]; dup {
			return nil, fmt.Errorf("things: duplicate name %q", t.Name)
		}
		c.Things[t.Name] = t
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.DesignatorsDigest = digestSorted(c.Designators)
	c.ThingsDigest = digestSorted(c.Things)
	return c, nil
}

// Build and install designators place something, so they always carry the
// place trait.
func normalizeTraits(in []string) []string {
	set := map[string]bool{}
	for _, t := range in {
		set[strings.ToUpper(strings.TrimSpace(t))] = true
	}
	if set[TraitBuild] || set[TraitInstall] {
		set[TraitPlace] = true
	}
	out := make([]string, 0, len(set))
	for _, t := range supportedTraits {
		if set[t] {
			out = append(out, t)
			delete(set, t)
		}
	}
	// Unknown traits are kept so Validate can report them.
	rest := make([]string, 0, len(set))
	for t := range set {
		rest = append(rest, t)
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func (c *Catalog) Validate() error {
	allowed := make(map[string]struct{}, len(supportedTraits))
	for _, t := range supportedTraits {
		allowed[t] = struct{}{}
	}
	for name, d := range c.Designators {
		for _, t := range d.Traits {
			if _, ok := allowed[t]; !ok {
				return fmt.Errorf("designator %q has unsupported trait %q", name, t)
			}
		}
	}
	for name, t := range c.Things {
		if t.Stuff && (t.MadeFromStuff || t.Minifiable) {
			return fmt.Errorf("thing %q: a material cannot be made from stuff or minified", name)
		}
	}
	return nil
}

func (c *Catalog) Designator(typeName string) (DesignatorDef, bool) {
	if c == nil {
		return DesignatorDef{}, false
	}
	d, ok := c.Designators[typeName]
	return d, ok
}

func (c *Catalog) Thing(name string) (ThingDef, bool) {
	if c == nil {
		return ThingDef{}, false
	}
	t, ok := c.Things[name]
	return t, ok
}

// Digest covers both sections; peers with different digests cannot replay
// each other's commands faithfully.
func (c *Catalog) Digest() string {
	if c == nil {
		return ""
	}
	return sha256Hex([]byte(c.DesignatorsDigest + "\n" + c.ThingsDigest))
}

func digestSorted[T any](m map[string]T) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := make([]T, 0, len(keys))
	for _, k := range keys {
		vals = append(vals, m[k])
	}
	b, _ := json.Marshal(vals)
	return sha256Hex(b)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
