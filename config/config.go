// Package config holds the run configuration of a testbench. A configuration
// can be written by hand or loaded from a YAML file.
package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/gouvm/report"
)

// Config is the set of knobs that sequencers, sockets and samples read.
type Config struct {
	// Arbitration is the default arbitration mode of new sequencers, e.g.
	// "FIFO", "WEIGHTED" or "UVM_SEQ_ARB_STRICT_FIFO".
	Arbitration string `yaml:"arbitration"`

	// MaxZeroTimeWaitRelevantCount is how many times wait_for_relevant may
	// return without simulation time advancing before the sequencer gives up.
	MaxZeroTimeWaitRelevantCount int `yaml:"max_zero_time_wait_relevant_count"`

	// PoundZeroCount is the number of zero-duration yields a sequencer makes
	// to let sequences settle before arbitrating.
	PoundZeroCount int `yaml:"pound_zero_count"`

	// ResponseQueueDepth bounds the response queue of each sequence. -1 means
	// unbounded.
	ResponseQueueDepth int `yaml:"response_queue_depth"`

	// DefaultSequencePriority is used when a root sequence is started without
	// a priority.
	DefaultSequencePriority int `yaml:"default_sequence_priority"`

	// TimeResolution is the internal resolution of TLM time values, in
	// seconds.
	TimeResolution float64 `yaml:"time_resolution"`

	// Seed seeds the random arbitration modes.
	Seed int64 `yaml:"seed"`

	// LogLevel is one of trace, info, warn or error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration UVM uses out of the box.
func Default() Config {
	return Config{
		Arbitration:                  "FIFO",
		MaxZeroTimeWaitRelevantCount: 10,
		PoundZeroCount:               1,
		ResponseQueueDepth:           8,
		DefaultSequencePriority:      100,
		TimeResolution:               1.0e-12,
		Seed:                         1,
		LogLevel:                     "info",
	}
}

// Parse reads a YAML document. Keys that are absent keep their default
// values.
func Parse(data []byte) (Config, error) {
	c := Default()

	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, errors.Wrap(err, "failed to parse config")
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// Load reads and parses the YAML file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to read config %s", path)
	}

	return Parse(data)
}

// Validate checks that all values are usable.
func (c Config) Validate() error {
	if c.MaxZeroTimeWaitRelevantCount < 1 {
		return errors.Errorf(
			"max_zero_time_wait_relevant_count must be positive, got %d",
			c.MaxZeroTimeWaitRelevantCount)
	}

	if c.PoundZeroCount < 0 {
		return errors.Errorf(
			"pound_zero_count must not be negative, got %d", c.PoundZeroCount)
	}

	if c.ResponseQueueDepth < -1 {
		return errors.Errorf(
			"response_queue_depth must be -1 or larger, got %d",
			c.ResponseQueueDepth)
	}

	if c.DefaultSequencePriority < 0 {
		return errors.Errorf(
			"default_sequence_priority must not be negative, got %d",
			c.DefaultSequencePriority)
	}

	if c.TimeResolution <= 0 {
		return errors.Errorf(
			"time_resolution must be positive, got %g", c.TimeResolution)
	}

	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	return nil
}

// SlogLevel converts LogLevel to a slog level.
func (c Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "trace":
		return report.LevelTrace, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, errors.Errorf("unknown log_level %q", c.LogLevel)
	}
}
