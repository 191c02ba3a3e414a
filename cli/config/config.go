package config

import (
	"fmt"
	"time"

	"github.com/pithecene-io/warden/guard"
	"github.com/pithecene-io/warden/interop"
	"github.com/pithecene-io/warden/types"
)

// Config represents a warden.yaml configuration file.
// All values are optional and act as defaults for warden command flags.
// CLI flags always override config values.
type Config struct {
	// Root is the orchestration root holding runs/ and interop/.
	// Defaults to .warden under the project root.
	Root string `yaml:"root"`
	// DashboardHome is where the cross-project registry and index
	// partitions live. Defaults to ~/.warden.
	DashboardHome string `yaml:"dashboard_home"`

	Guard      GuardConfig                `yaml:"guard"`
	Subsystems map[string]SubsystemConfig `yaml:"subsystems"`
	Archive    ArchiveConfig              `yaml:"archive"`
	Adapter    AdapterConfig              `yaml:"adapter"`
}

// GuardConfig holds interception defaults from the config file. Environment
// variables set by the hook harness override these per invocation.
type GuardConfig struct {
	// MaxReadBytes is the single-read ceiling; 0 means unlimited.
	MaxReadBytes int64 `yaml:"max_read_bytes"`
	// Budget is the cumulative read budget applied when a phase declares
	// none of its own.
	Budget types.ReadBudget `yaml:"budget"`
	// AllowedPaths are glob patterns exempt from protection and charging.
	AllowedPaths []string `yaml:"allowed_paths"`
	// Categories overrides the built-in protected-category patterns.
	Categories map[string][]string `yaml:"categories"`
	// PhaseProtections overrides which categories each phase protects.
	PhaseProtections map[string][]string `yaml:"phase_protections"`
}

// SubsystemConfig declares one subsystem and its phases.
type SubsystemConfig struct {
	Phases map[string]PhaseConfig `yaml:"phases"`
}

// PhaseConfig holds per-phase defaults.
type PhaseConfig struct {
	// ReadBudget is the phase's default budget; the stricter of this and
	// a request's declared budget wins at dispatch time.
	ReadBudget types.ReadBudget `yaml:"read_budget"`
}

// ArchiveConfig holds archival defaults from the config file.
type ArchiveConfig struct {
	Dataset string `yaml:"dataset"`
	Project string `yaml:"project"`
	// Backend selects fs or s3.
	Backend string `yaml:"backend"`
	// Path is the filesystem root for fs, or s3://bucket/prefix for s3.
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds run-finalized notification defaults.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// PhaseDefaults flattens the subsystem/phase tree into the router's
// "<subsystem>.<phase>" default-budget map.
func (c *Config) PhaseDefaults() interop.PhaseDefaults {
	defaults := interop.PhaseDefaults{}
	for subsystem, sc := range c.Subsystems {
		for phase, pc := range sc.Phases {
			if pc.ReadBudget.Unlimited() {
				continue
			}
			defaults[subsystem+"."+phase] = pc.ReadBudget
		}
	}
	if len(defaults) == 0 {
		return nil
	}
	return defaults
}

// ClassifierConfig converts the guard section into the classifier's input.
// Empty sections fall back to the built-in defaults inside NewClassifier.
func (c *Config) ClassifierConfig() guard.ClassifierConfig {
	cfg := guard.ClassifierConfig{AllowedPaths: c.Guard.AllowedPaths}
	if len(c.Guard.Categories) > 0 {
		cfg.Categories = map[guard.Category][]string{}
		for name, patterns := range c.Guard.Categories {
			cfg.Categories[guard.Category(name)] = patterns
		}
	}
	if len(c.Guard.PhaseProtections) > 0 {
		cfg.PhaseProtections = map[string][]guard.Category{}
		for phase, names := range c.Guard.PhaseProtections {
			categories := make([]guard.Category, 0, len(names))
			for _, name := range names {
				categories = append(categories, guard.Category(name))
			}
			cfg.PhaseProtections[phase] = categories
		}
	}
	return cfg
}

// Validate checks cross-field constraints the YAML schema cannot express.
func (c *Config) Validate() error {
	for subsystem, sc := range c.Subsystems {
		for phase, pc := range sc.Phases {
			if err := pc.ReadBudget.Validate(); err != nil {
				return fmt.Errorf("subsystem %s phase %s: %w", subsystem, phase, err)
			}
		}
	}
	if err := c.Guard.Budget.Validate(); err != nil {
		return fmt.Errorf("guard budget: %w", err)
	}
	if c.Guard.MaxReadBytes < 0 {
		return fmt.Errorf("guard max_read_bytes must be >= 0, got %d", c.Guard.MaxReadBytes)
	}
	switch c.Archive.Backend {
	case "", "fs", "s3":
	default:
		return fmt.Errorf("archive backend must be fs or s3, got %q", c.Archive.Backend)
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		return fmt.Errorf("adapter type must be webhook or redis, got %q", c.Adapter.Type)
	}
	return nil
}
