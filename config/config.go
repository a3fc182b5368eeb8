// Package config loads service configuration from JSON or YAML files with
// optional environment overrides.
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

	"github.com/chargeq/chargeq/infra/notify"
)

// Config is the root configuration of the chargeq service.
type Config struct {
	Store       StoreConfig       `json:"store"`
	Notify      NotifyConfig      `json:"notify"`
	Metrics     MetricsConfig     `json:"metrics"`
	Maintenance MaintenanceConfig `json:"maintenance"`
	Engine      EngineConfig      `json:"engine"`
}

// NotifyConfig selects the Notification Gateway backend.
type NotifyConfig struct {
	// Backend is "none" or "mqtt".
	Backend string        `json:"backend"`
	MQTT    notify.Config `json:"mqtt"`
}

func (c *NotifyConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "none"
	}
	c.MQTT.SetDefaults()
}

func (c NotifyConfig) Validate() error {
	switch c.Backend {
	case "none":
		return nil
	case "mqtt":
		return c.MQTT.Validate()
	}
	return fmt.Errorf("unknown notify backend %s", c.Backend)
}

// Load reads the configuration at path. The format is chosen from the file
// extension; CQ_-prefixed environment variables override file values, with
// "__" separating nesting levels.
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
	if err := k.Load(env.Provider("CQ_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "cq_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Store.SetDefaults()
	cfg.Notify.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.Maintenance.SetDefaults()
	cfg.Engine.SetDefaults()
	if err := cfg.Store.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Notify.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Maintenance.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
