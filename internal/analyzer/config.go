package analyzer

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/linux-wizard/jtl-log-parser/internal/chunk"
	"github.com/linux-wizard/jtl-log-parser/internal/export"
	httpexport "github.com/linux-wizard/jtl-log-parser/internal/export/http"
	"github.com/linux-wizard/jtl-log-parser/internal/field"
	"github.com/linux-wizard/jtl-log-parser/internal/input"
	"github.com/linux-wizard/jtl-log-parser/internal/report"
)

// ErrInvalidConfig marks option values outside their allowed range.
var ErrInvalidConfig = errors.New("invalid configuration")

// maxMatchLength is the longest legacy match string accepted.
const maxMatchLength = 10

// Config is the top-level configuration for a jtlhist run.
type Config struct {
	// LogLevel sets the logging verbosity (debug, info, warn, error).
	// Defaults to warn because stderr also carries the percentile lines.
	LogLevel string `yaml:"log_level"`

	// Threads is the number of workers for seekable input, 1..1024.
	Threads int `yaml:"threads"`

	// Field is the 0-based index of the numeric field.
	Field int `yaml:"field"`

	// Step is the bucket width in key units.
	Step uint64 `yaml:"step"`

	// Mode is the x-axis origin, absolute or relative.
	Mode report.Mode `yaml:"mode"`

	// Delimiter is the single byte separating fields.
	Delimiter string `yaml:"delimiter"`

	// Match is a legacy label filter. Validated, never applied.
	Match string `yaml:"match"`

	// DataField is a legacy label column index. Validated, never applied.
	DataField int `yaml:"data_field"`

	// Input configures how the source is opened.
	Input input.Options `yaml:"input"`

	// Metrics configures the run metrics textfile and server.
	Metrics export.MetricsConfig `yaml:"metrics"`

	// Export configures shipping of finished reports.
	Export ExportConfig `yaml:"export"`
}

// ExportConfig groups report exporters.
type ExportConfig struct {
	HTTP httpexport.Config `yaml:"http"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "warn",
		Threads:   4,
		Step:      report.DefaultStep,
		Mode:      report.ModeAbsolute,
		Delimiter: string([]byte{field.DefaultDelimiter}),
		Input: input.Options{
			Compression: string(input.CompressionAuto),
		},
		Export: ExportConfig{
			HTTP: httpexport.DefaultConfig(),
		},
	}
}

// LoadConfig reads and parses a YAML configuration file on top of the
// defaults. Validation is left to New so command-line overrides apply
// first.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks every option against its allowed range. Errors wrap
// ErrInvalidConfig.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %w", ErrInvalidConfig, err)
	}

	if c.Threads < 1 || c.Threads > chunk.MaxWorkers {
		return fmt.Errorf("%w: threads must be between 1 and %d, got %d",
			ErrInvalidConfig, chunk.MaxWorkers, c.Threads)
	}

	if c.Field < 0 {
		return fmt.Errorf("%w: field must be >= 0, got %d", ErrInvalidConfig, c.Field)
	}

	if c.Step == 0 {
		return fmt.Errorf("%w: step must be > 0", ErrInvalidConfig)
	}

	if _, err := report.ParseMode(string(c.Mode)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if len(c.Delimiter) != 1 || c.Delimiter[0] == '\n' {
		return fmt.Errorf("%w: delimiter must be a single byte other than newline, got %q",
			ErrInvalidConfig, c.Delimiter)
	}

	if len(c.Match) > maxMatchLength {
		return fmt.Errorf("%w: match must be at most %d characters",
			ErrInvalidConfig, maxMatchLength)
	}

	if c.DataField < 0 {
		return fmt.Errorf("%w: data_field must be >= 0, got %d",
			ErrInvalidConfig, c.DataField)
	}

	if _, err := input.ParseCompression(c.Input.Compression); err != nil {
		return fmt.Errorf("%w: input.compression: %w", ErrInvalidConfig, err)
	}

	if err := c.Export.HTTP.Validate(); err != nil {
		return fmt.Errorf("%w: export.http: %w", ErrInvalidConfig, err)
	}

	return nil
}
