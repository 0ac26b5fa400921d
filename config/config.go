// Package config loads hostbridge.toml runtime configuration.
package config

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/hostbridge/errors"
)

// Config is the complete runtime configuration.
type Config struct {
	Heap    Heap    `toml:"heap"`
	Runtime Runtime `toml:"runtime"`
	Log     Log     `toml:"log"`

	// Stdout receives output printed by evaluated code. Defaults to os.Stdout.
	Stdout io.Writer `toml:"-" validate:"-"`
}

// Heap sizes the embedded heap. Pages are 64 KiB.
type Heap struct {
	InitialPages uint32 `toml:"initial-pages" validate:"gte=2,lte=65536"`
	MaxPages     uint32 `toml:"max-pages" validate:"gtefield=InitialPages,lte=65536"`
	// GCThreshold is the number of bytes allocated between automatic collections.
	GCThreshold uint32 `toml:"gc-threshold" validate:"gte=4096"`
}

// Runtime holds bridge behavior switches.
type Runtime struct {
	// DebugChecks asserts handle liveness before every use.
	DebugChecks bool   `toml:"debug-checks"`
	RootTable   string `toml:"root-table" validate:"required,ident"`
}

// Log configures the zap logger built by NewLogger.
type Log struct {
	Level       string `toml:"level" validate:"oneof=debug info warn error"`
	Development bool   `toml:"development"`
}

// Defaults.
const (
	DefaultInitialPages = 16
	DefaultMaxPages     = 1024
	DefaultGCThreshold  = 1 << 20
	DefaultRootTable    = "__hostbridge_refs__"
	DefaultLogLevel     = "info"
)

var (
	validate = newValidator()
	identRe  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("ident", func(fl validator.FieldLevel) bool {
		return identRe.MatchString(fl.Field().String())
	})
	return v
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads and validates the TOML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, fmt.Sprintf("read %s", path))
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates TOML configuration. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var c Config
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse configuration")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.InvalidInput(errors.PhaseConfig, "unknown keys: "+strings.Join(keys, ", "))
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Heap.InitialPages == 0 {
		c.Heap.InitialPages = DefaultInitialPages
	}
	if c.Heap.MaxPages == 0 {
		c.Heap.MaxPages = max(DefaultMaxPages, c.Heap.InitialPages)
	}
	if c.Heap.GCThreshold == 0 {
		c.Heap.GCThreshold = DefaultGCThreshold
	}
	if c.Runtime.RootTable == "" {
		c.Runtime.RootTable = DefaultRootTable
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Cause(err).
			Detail("config validation failed").
			Build()
	}
	return nil
}

// NewLogger builds a zap logger from the log section.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log level")
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
