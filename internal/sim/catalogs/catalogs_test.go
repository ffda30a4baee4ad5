package catalogs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults_BuildAndInstallImplyPlace(t *testing.T) {
	c := Defaults()
	for _, name := range []string{"Build", "Install"} {
		d, ok := c.Designator(name)
		if !ok {
			t.Fatalf("missing designator %q", name)
		}
		found := false
		for _, tr := range d.Traits {
			if tr == TraitPlace {
				found = true
			}
		}
		if !found {
			t.Fatalf("%s traits %v missing %s", name, d.Traits, TraitPlace)
		}
	}
	if th, ok := c.Thing("Wall"); !ok || !th.MadeFromStuff {
		t.Fatalf("Wall should be made from stuff: %+v", th)
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "catalog.yaml")
	data := `
designators:
  - type: Install
    traits: [install]
  - type: Zone
    traits: [REGION]
things:
  - name: Chair
    made_from_stuff: true
    minifiable: true
  - name: Steel
    stuff: true
`
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	d, _ := c.Designator("Install")
	if len(d.Traits) != 2 || d.Traits[0] != TraitPlace || d.Traits[1] != TraitInstall {
		t.Fatalf("install traits = %v", d.Traits)
	}
	if c.Digest() == "" || c.Digest() == Defaults().Digest() {
		t.Fatalf("expected a distinct non-empty digest")
	}
}

func TestLoad_RejectsBadCatalogs(t *testing.T) {
	cases := map[string]string{
		"unknown trait": "designators:\n  - type: X\n    traits: [FLY]\n",
		"duplicate":     "designators:\n  - type: X\n  - type: X\n",
		"empty type":    "designators:\n  - type: \"\"\n",
		"stuff minify":  "things:\n  - name: Steel\n    stuff: true\n    minifiable: true\n",
	}
	for name, data := range cases {
		p := filepath.Join(t.TempDir(), "c.yaml")
		if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(p); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestDigest_StableAcrossLoads(t *testing.T) {
	if Defaults().Digest() != Defaults().Digest() {
		t.Fatalf("digest must be deterministic")
	}
	c, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if c.Digest() != Defaults().Digest() {
		t.Fatalf("empty path should load defaults")
	}
}
