package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/crisisworks/lifeline/core/access"
	"github.com/crisisworks/lifeline/core/model"
	"github.com/crisisworks/lifeline/core/recovery"
	"github.com/crisisworks/lifeline/core/transpo"
)

// NetworkConfig describes the static transportation graph.
type NetworkConfig struct {
	Nodes []transpo.Node `json:"nodes"`
	Links []transpo.Link `json:"links"`
}

// OutputConfig selects where and how the finished schedule is written.
type OutputConfig struct {
	// Format is "csv" or "json".
	Format string `json:"format"`
	// EventsPath and SummaryPath are the output files. Empty means stdout.
	EventsPath  string `json:"events_path"`
	SummaryPath string `json:"summary_path"`
}

// SetDefaults applies sane defaults.
func (c *OutputConfig) SetDefaults() {
	if c.Format == "" {
		c.Format = "csv"
	}
}

// Validate checks mandatory fields.
func (c OutputConfig) Validate() error {
	if c.Format != "csv" && c.Format != "json" {
		return fmt.Errorf("unknown output format %s", c.Format)
	}
	return nil
}

// Config is one complete scheduling scenario: the scheduler parameters, the
// transportation graph, component access geometry, crew deployment, the
// disruption list and the repair order.
type Config struct {
	Scheduler recovery.Config `json:"scheduler"`
	Network   NetworkConfig   `json:"network"`
	// Access maps power and water component ids to their physical
	// connection points; nearest transportation nodes are derived.
	Access      map[string][]access.Coord    `json:"access"`
	Crews       map[model.InfraType][]string `json:"crews"`
	Disruptions []model.Disruption           `json:"disruptions"`
	RepairOrder []string                     `json:"repair_order"`
	Output      OutputConfig                 `json:"output"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Scheduler.SetDefaults()
	cfg.Output.SetDefaults()
	if err := cfg.Scheduler.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Output.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Network.Nodes) == 0 || len(cfg.Network.Links) == 0 {
		return nil, fmt.Errorf("config: transportation network is empty")
	}
	if len(cfg.Disruptions) == 0 {
		return nil, fmt.Errorf("config: no disruptions defined")
	}
	return &cfg, nil
}
