// Package config loads and validates script system configuration.
package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/script-bridge/errors"
)

// validate is a package-level singleton; validators cache struct metadata.
var validate = validator.New()

// Config is the script system configuration.
type Config struct {
	RootDomain   string `yaml:"root_domain" json:"root_domain" validate:"required" jsonschema:"description=Name of the root domain,default=root"`
	ScriptDomain string `yaml:"script_domain" json:"script_domain" validate:"required,nefield=RootDomain" jsonschema:"description=Name of the domain script assemblies load into,default=scripts"`

	// ScriptedEntityClasses are managed classes (Namespace.Name) that script
	// host entities of the same class.
	ScriptedEntityClasses []string         `yaml:"scripted_entity_classes" json:"scripted_entity_classes,omitempty" validate:"dive,required"`
	Assemblies            []AssemblyConfig `yaml:"assemblies" json:"assemblies,omitempty" validate:"dive"`

	Reload ReloadConfig `yaml:"reload" json:"reload"`
	Wasm   WasmConfig   `yaml:"wasm" json:"wasm"`
	Log    LogConfig    `yaml:"log" json:"log"`

	// CollectOnRelease runs a collection pass when the last instance of a
	// class is released.
	CollectOnRelease bool `yaml:"collect_on_release" json:"collect_on_release"`
}

// AssemblyConfig points at a wasm module and the manifest describing it.
type AssemblyConfig struct {
	Manifest string `yaml:"manifest" json:"manifest" validate:"required"`
	Wasm     string `yaml:"wasm" json:"wasm" validate:"required"`
}

// ReloadConfig controls domain reloads.
type ReloadConfig struct {
	// MaxRetries bounds Retry results before a reload aborts.
	MaxRetries int `yaml:"max_retries" json:"max_retries" validate:"gte=0,lte=10" jsonschema:"minimum=0,maximum=10,default=3"`
}

// WasmConfig configures the wazero engine.
type WasmConfig struct {
	MemoryLimitPages uint32 `yaml:"memory_limit_pages" json:"memory_limit_pages" validate:"lte=65536" jsonschema:"maximum=65536"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level" json:"level" validate:"oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`
	Development bool   `yaml:"development" json:"development"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		RootDomain:   "root",
		ScriptDomain: "scripts",
		Reload:       ReloadConfig{MaxRetries: 3},
		Log:          LogConfig{Level: "info"},
	}
}

// Parse reads YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.ParseFailed("config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read "+path)
	}
	return Parse(data)
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("config validation failed").
			Cause(err).
			Build()
	}
	return nil
}

// Level returns the configured zap level.
func (c *Config) Level() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// NewLogger builds a zap logger from the log section.
func (c *Config) NewLogger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(c.Level())
	return zc.Build()
}
