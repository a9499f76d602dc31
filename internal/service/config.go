// Package service holds the run configuration and the scheduling glue for
// repeated diagnostics.
package service

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/accelkit/acceldiag/internal/schema"
)

// Config is the `diag` section of the configuration file. Flags override
// individual fields after parsing.
type Config struct {
	// Host is the daemon address, e.g. http://localhost:5555.
	Host string `mapstructure:"host" yaml:"host"`

	// Hosts enables fleet mode: the same run against several daemons.
	Hosts []string `mapstructure:"hosts" yaml:"hosts,omitempty"`

	// Version is the run message version to speak; 0 means the current one.
	Version uint32 `mapstructure:"version" yaml:"version,omitempty"`

	Iterations uint32        `mapstructure:"iterations" yaml:"iterations,omitempty"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
	Cadence    time.Duration `mapstructure:"cadence" yaml:"cadence,omitempty"`

	// Devices is a comma-separated device index list; empty means the
	// whole group.
	Devices string `mapstructure:"devices" yaml:"devices,omitempty"`

	Tests      []string `mapstructure:"tests" yaml:"tests,omitempty"`
	Parameters []string `mapstructure:"parameters" yaml:"parameters,omitempty"`

	StatsOnly bool `mapstructure:"stats_only" yaml:"stats_only,omitempty"`
	Verbose   bool `mapstructure:"verbose" yaml:"verbose,omitempty"`

	// Schedule drives watch mode; nil means one-shot only.
	Schedule *Schedule `mapstructure:"schedule" yaml:"schedule,omitempty"`
}

// Schedule is either a cron expression or a fixed interval.
type Schedule struct {
	Cron  string        `mapstructure:"cron" yaml:"cron,omitempty"`
	Every time.Duration `mapstructure:"every" yaml:"every,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Host:       "http://localhost:5555",
		Version:    schema.RunVersionCurrent,
		Iterations: 1,
	}
}

// ParseConfig unmarshals the given viper key into a Config and fills the
// defaults for absent fields.
func ParseConfig(key string) (Config, error) {
	cfg := Default()
	if err := viper.UnmarshalKey(key, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.Version == 0 {
		cfg.Version = schema.RunVersionCurrent
	}
	if cfg.Iterations == 0 {
		cfg.Iterations = 1
	}
	if _, ok := schema.ResponseVersionFor(cfg.Version); !ok {
		return Config{}, fmt.Errorf("unsupported run message version %d", cfg.Version)
	}
	return cfg, nil
}

// WriteYAML stores the config, for creating a default file on first run.
func (c Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer func() {
		_ = enc.Close()
	}()
	return enc.Encode(map[string]Config{"diag": c})
}

// RunRequest builds the request this configuration describes.
func (c Config) RunRequest() schema.RunRequest {
	var flags schema.RunFlags
	if c.Verbose {
		flags |= schema.FlagVerbose
	}
	if c.StatsOnly {
		flags |= schema.FlagStatsOnly
	}
	var timeout uint32
	if c.Timeout > 0 {
		timeout = uint32(c.Timeout / time.Second)
	}
	return schema.RunRequest{
		Flags:          flags,
		DeviceList:     c.Devices,
		TestNames:      c.Tests,
		TestParameters: c.Parameters,
		TimeoutSeconds: timeout,
	}
}
