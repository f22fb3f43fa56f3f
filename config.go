package warden

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the declarative configuration for an Enforcer deployment.
type Config struct {
	Engine          EngineConfig                 `json:"engine" yaml:"engine"`
	DefaultPolicies map[string][]ResourceActions `json:"default_policies,omitempty" yaml:"default_policies,omitempty"`
}

// EngineConfig carries tunables for the decision path.
type EngineConfig struct {
	// DecisionCacheTTL bounds cache staleness in milliseconds. Keep it short:
	// it is the only backstop if a crash lands between a store mutation and
	// the cache invalidation that follows it.
	DecisionCacheTTL int64 `json:"decision_cache_ttl_ms" yaml:"decision_cache_ttl_ms"`
}

// LoadConfig reads a YAML or JSON config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		// yaml is a superset of json; a yaml failure means the file is
		// neither
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseYAML decodes a config document from bytes.
func ParseYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ToYAML renders the config for export.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON renders the config as indented JSON.
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Validate rejects configs that would misbehave at runtime.
func (c *Config) Validate() error {
	if c.Engine.DecisionCacheTTL < 0 {
		return fmt.Errorf("config: decision_cache_ttl_ms must not be negative")
	}
	for role, entries := range c.DefaultPolicies {
		if role == "" {
			return fmt.Errorf("config: default_policies contains an empty role name")
		}
		for _, ra := range entries {
			if ra.Resource == "" {
				return fmt.Errorf("config: role %s has an entry with no resource", role)
			}
			if len(ra.Actions) == 0 {
				return fmt.Errorf("config: role %s resource %s has no actions", role, ra.Resource)
			}
		}
	}
	return nil
}

// ApplyConfig applies settings to the enforcer. A non-empty DefaultPolicies
// replaces the built-in seed matrix.
func (e *Enforcer) ApplyConfig(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Engine.DecisionCacheTTL > 0 {
		e.cacheTTL = time.Duration(cfg.Engine.DecisionCacheTTL) * time.Millisecond
	}
	if len(cfg.DefaultPolicies) > 0 {
		e.matrix = cfg.DefaultPolicies
	}
	return nil
}
