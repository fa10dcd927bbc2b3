package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Method selects how snapshots are laid out and retained
type Method string

const (
	MethodFull   Method = "full"
	MethodMirror Method = "mirror"
	MethodDelta  Method = "delta"
)

// Duration is a time.Duration that unmarshals from either a Go duration
// string ("90s", "12h") or a bare number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var secs int64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the complete dirbakd configuration
type Config struct {
	KeyFormat string         `yaml:"format"`
	Sources   []SourceConfig `yaml:"sources"`
}

// SourceConfig configures the backups of one source directory
type SourceConfig struct {
	Source   string   `yaml:"source"`
	Target   string   `yaml:"target"`
	Period   Duration `yaml:"period"`
	Method   Method   `yaml:"method"`
	Compress bool     `yaml:"compress"`
	Limit    int      `yaml:"limit"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Expand environment variables in string fields
	cfg.expandEnv()

	// Apply defaults
	cfg.applyDefaults()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all path fields
func (c *Config) expandEnv() {
	for i := range c.Sources {
		c.Sources[i].Source = os.ExpandEnv(c.Sources[i].Source)
		c.Sources[i].Target = os.ExpandEnv(c.Sources[i].Target)
	}
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	for i := range c.Sources {
		if c.Sources[i].Method == "" {
			c.Sources[i].Method = MethodFull
		}
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.KeyFormat == "" {
		return fmt.Errorf("format is required")
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}

	names := make(map[string]string)
	for i, src := range c.Sources {
		// Validate paths
		if src.Source == "" {
			return fmt.Errorf("sources[%d].source is required", i)
		}
		if !filepath.IsAbs(src.Source) {
			return fmt.Errorf("sources[%d].source must be an absolute path: %s", i, src.Source)
		}
		if src.Target == "" {
			return fmt.Errorf("sources[%d].target is required", i)
		}
		if !filepath.IsAbs(src.Target) {
			return fmt.Errorf("sources[%d].target must be an absolute path: %s", i, src.Target)
		}

		// Validate schedule and retention
		if src.Period <= 0 {
			return fmt.Errorf("sources[%d].period must be positive", i)
		}
		if src.Limit < 0 {
			return fmt.Errorf("sources[%d].limit must not be negative", i)
		}

		// Validate method
		switch src.Method {
		case MethodFull, MethodMirror, MethodDelta:
			// valid
		default:
			return fmt.Errorf("invalid sources[%d].method: %s (must be full, mirror, or delta)", i, src.Method)
		}

		// Repository names must be unique per target
		name := src.Name()
		if prev, ok := names[name]; ok {
			return fmt.Errorf("sources[%d].source %s resolves to the same name as %s", i, src.Source, prev)
		}
		names[name] = src.Source
	}

	return nil
}

// Name derives the repository name for the source, unique per source path
// and stable across runs.
func (s SourceConfig) Name() string {
	clean := filepath.Clean(s.Source)
	return strings.ReplaceAll(clean, string(filepath.Separator), "_")
}

// RepoDir returns the repository path holding this source's snapshots
func (s SourceConfig) RepoDir() string {
	return filepath.Join(s.Target, s.Name())
}
