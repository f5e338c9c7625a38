// Package config holds the settings of the responserules tools: a YAML file
// overlaid with RESPONSERULES_* environment variables. Command-line flags are
// applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RESPONSERULES_"

// Config is the tool configuration.
type Config struct {
	// Script is the root rule script, relative to IncludeBase when set.
	Script string `yaml:"script" env:"SCRIPT"`
	// IncludeBase is the directory #include paths are resolved against.
	// Empty means the directory of Script.
	IncludeBase string `yaml:"include_base" env:"INCLUDE_BASE"`
	// Seed of the response RNG. Zero picks a random seed.
	Seed int64 `yaml:"seed" env:"SEED"`
	// Gender substituted for $gender when rendering scene responses.
	Gender string `yaml:"gender" env:"GENDER"`
	// SaveDir receives /save snapshots.
	SaveDir string `yaml:"save_dir" env:"SAVE_DIR"`
	// WorldFacts and SpeakerFacts are optional Lua facts scripts.
	WorldFacts   string `yaml:"world_facts" env:"WORLD_FACTS"`
	SpeakerFacts string `yaml:"speaker_facts" env:"SPEAKER_FACTS"`

	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFile     string `yaml:"log_file" env:"LOG_FILE"`
	Development bool   `yaml:"development" env:"DEVELOPMENT"`

	Watch bool `yaml:"watch" env:"WATCH"`
	Plain bool `yaml:"plain" env:"PLAIN"`
	Trace bool `yaml:"trace" env:"TRACE"`
	// Threshold is the minimum loose score for /instance copies.
	Threshold float64 `yaml:"threshold" env:"THRESHOLD"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Script:    "talker/response_rules.txt",
		Gender:    "male",
		SaveDir:   "saves",
		LogLevel:  "info",
		Threshold: 1,
	}
}

// Load reads path (if it exists) over the defaults, then applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// Defaults only.
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ScriptDir is the directory the script file system is rooted at, and Root
// the script path inside it.
func (c *Config) ScriptDir() (dir, root string) {
	if c.IncludeBase != "" {
		rel, err := filepath.Rel(c.IncludeBase, c.Script)
		if err == nil && filepath.IsLocal(rel) {
			return c.IncludeBase, filepath.ToSlash(rel)
		}
		return c.IncludeBase, filepath.ToSlash(c.Script)
	}
	return filepath.Dir(c.Script), filepath.Base(c.Script)
}

// Logger builds a zap logger from LogLevel, LogFile and Development.
// Development loggers panic on DPanic, which turns dictionary consistency
// violations into hard failures.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}

	var zc zap.Config
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zc.Sampling = nil
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if c.LogFile != "" {
		zc.OutputPaths = []string{c.LogFile}
		zc.ErrorOutputPaths = []string{c.LogFile}
	}
	return zc.Build()
}
