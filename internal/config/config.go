// Package config loads peer and sequencer settings from a YAML file, then
// applies LOCKSTEP_* environment overrides.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"lockstep.ai/internal/logging"
)

type Config struct {
	Sync      SyncConfig      `yaml:"sync"`
	Worlds    []WorldSpec     `yaml:"worlds"`
	Catalog   string          `yaml:"catalog" env:"LOCKSTEP_CATALOG"`
	Transport TransportConfig `yaml:"transport"`
	Journal   JournalConfig   `yaml:"journal"`
	Index     IndexConfig     `yaml:"index"`
	Log       logging.Config  `yaml:"log"`
}

type SyncConfig struct {
	Enabled bool `yaml:"enabled" env:"LOCKSTEP_SYNC_ENABLED"`
	// CanonicalCellOrder sorts multi-cell targets ascending before dispatch.
	CanonicalCellOrder bool `yaml:"canonical_cell_order" env:"LOCKSTEP_CANONICAL_CELL_ORDER"`
}

type WorldSpec struct {
	ID    int `yaml:"id"`
	SizeX int `yaml:"size_x"`
	SizeZ int `yaml:"size_z"`
}

type TransportConfig struct {
	Listen   string `yaml:"listen" env:"LOCKSTEP_LISTEN"`
	URL      string `yaml:"url" env:"LOCKSTEP_URL"`
	MaxQueue int    `yaml:"max_queue" env:"LOCKSTEP_MAX_QUEUE"`
}

type JournalConfig struct {
	Dir      string `yaml:"dir" env:"LOCKSTEP_JOURNAL_DIR"`
	Disabled bool   `yaml:"disabled" env:"LOCKSTEP_JOURNAL_DISABLED"`
}

type IndexConfig struct {
	Path     string `yaml:"path" env:"LOCKSTEP_INDEX_PATH"`
	Disabled bool   `yaml:"disabled" env:"LOCKSTEP_INDEX_DISABLED"`
}

func Defaults() Config {
	return Config{
		Sync:   SyncConfig{Enabled: true, CanonicalCellOrder: true},
		Worlds: []WorldSpec{{ID: 0, SizeX: 250, SizeZ: 250}},
		Transport: TransportConfig{
			Listen:   ":8080",
			URL:      "ws://127.0.0.1:8080/v1/ws",
			MaxQueue: 256,
		},
		Journal: JournalConfig{Dir: "data/journal"},
		Index:   IndexConfig{Path: "data/index/applied.sqlite"},
		Log:     logging.Config{Level: "info", Format: "text"},
	}
}

// Load reads path (optional) over Defaults, then the environment.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Normalize() {
	c.Catalog = strings.TrimSpace(c.Catalog)
	c.Transport.Listen = strings.TrimSpace(c.Transport.Listen)
	c.Transport.URL = strings.TrimSpace(c.Transport.URL)
	if c.Transport.MaxQueue <= 0 {
		c.Transport.MaxQueue = 256
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	sort.SliceStable(c.Worlds, func(i, j int) bool { return c.Worlds[i].ID < c.Worlds[j].ID })
}

func (c Config) Validate() error {
	if len(c.Worlds) == 0 {
		return fmt.Errorf("no worlds configured")
	}
	seen := map[int]bool{}
	for _, w := range c.Worlds {
		if w.ID < 0 {
			return fmt.Errorf("world id %d: must be >= 0", w.ID)
		}
		if seen[w.ID] {
			return fmt.Errorf("duplicate world id %d", w.ID)
		}
		seen[w.ID] = true
		if w.SizeX <= 0 || w.SizeZ <= 0 {
			return fmt.Errorf("world %d: size must be positive", w.ID)
		}
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q: want text or json", c.Log.Format)
	}
	if !c.Journal.Disabled && c.Journal.Dir == "" {
		return fmt.Errorf("journal.dir is required unless journal.disabled")
	}
	if !c.Index.Disabled && c.Index.Path == "" {
		return fmt.Errorf("index.path is required unless index.disabled")
	}
	return nil
}
