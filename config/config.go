// Package config loads amppipe settings.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// AMPPIPE_* environment variables (a .env file may seed them), then command
// line flags bound by the caller. The merged result is validated before use.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/gaurav-prasanna/amppipe/core/amp"
)

// EnvPrefix prefixes every environment variable read by amppipe.
const EnvPrefix = "AMPPIPE"

// Config is the full amppipe configuration.
type Config struct {
	LogLevel      string       `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	Mode          string       `mapstructure:"mode" yaml:"mode" validate:"oneof=full minimal"`
	DisabledSteps []string     `mapstructure:"disabled_steps" yaml:"disabled_steps" validate:"dive,ampstep"`
	Images        ImagesConfig `mapstructure:"images" yaml:"images"`
	Fetch         FetchConfig  `mapstructure:"fetch" yaml:"fetch"`
	Crawl         CrawlConfig  `mapstructure:"crawl" yaml:"crawl"`
	Serve         ServeConfig  `mapstructure:"serve" yaml:"serve"`
}

// ImagesConfig configures <img> dimension lookup.
type ImagesConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Root     string `mapstructure:"root" yaml:"root"`
	BaseURL  string `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	MaxBytes int64  `mapstructure:"max_bytes" yaml:"max_bytes" validate:"gte=0"`
}

// FetchConfig configures outbound HTTP requests.
type FetchConfig struct {
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// CrawlConfig bounds whole-site conversion.
type CrawlConfig struct {
	MaxPages int `mapstructure:"max_pages" yaml:"max_pages" validate:"gt=0"`
}

// ServeConfig configures the AMP reverse proxy.
type ServeConfig struct {
	Listen          string        `mapstructure:"listen" yaml:"listen" validate:"required"`
	Upstream        string        `mapstructure:"upstream" yaml:"upstream" validate:"omitempty,url"`
	Segment         string        `mapstructure:"segment" yaml:"segment" validate:"required,excludes=/"`
	StripPrefix     bool          `mapstructure:"strip_prefix" yaml:"strip_prefix"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
}

var defaults = map[string]any{
	"log_level":              "info",
	"mode":                   string(amp.ModeFull),
	"disabled_steps":         []string{},
	"images.enabled":         true,
	"images.root":            "",
	"images.base_url":        "",
	"images.max_bytes":       10 << 20,
	"fetch.timeout":          30 * time.Second,
	"fetch.user_agent":       "",
	"crawl.max_pages":        100,
	"serve.listen":           ":8080",
	"serve.upstream":         "",
	"serve.segment":          amp.Segment,
	"serve.strip_prefix":     false,
	"serve.shutdown_timeout": 10 * time.Second,
}

// New returns a viper instance holding the defaults and reading AMPPIPE_*
// environment variables. Nested keys map to underscores: serve.listen is
// AMPPIPE_SERVE_LISTEN.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadDotEnv loads environment files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configFile into v when it is set, then decodes and validates
// the merged settings.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Mode = strings.ToLower(cfg.Mode)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger creates the text logger used across amppipe, writing to stderr.
func (c *Config) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.SlogLevel()}))
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		return name
	})
	_ = v.RegisterValidation("ampstep", func(fl validator.FieldLevel) bool {
		return slices.Contains(amp.StepNames(), fl.Field().String())
	})
	return v
}

// WriteYAML writes the effective configuration as YAML.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}
