// Package config loads and validates the civicsync configuration.
//
// The file is YAML, decoded strictly (unknown fields are errors). After
// defaults and command-line overrides are applied, the result is validated
// against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Config holds every tunable of the process.
type Config struct {
	Database         string        `yaml:"database"`
	DeliveryEndpoint string        `yaml:"delivery_endpoint"`
	DeliveryTimeout  time.Duration `yaml:"delivery_timeout"`
	DeliveryToken    string        `yaml:"delivery_token"`
	ProbeURL         string        `yaml:"probe_url"`
	ProbeInterval    time.Duration `yaml:"probe_interval"`
	InitialOnline    bool          `yaml:"initial_online"`
	SyncOnStart      bool          `yaml:"sync_on_start"`
	ListenAddr       string        `yaml:"listen_addr"`
	LogLevel         string        `yaml:"log_level"`
	LogFormat        string        `yaml:"log_format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database:        "civicsync.db",
		DeliveryTimeout: 10 * time.Second,
		ProbeInterval:   15 * time.Second,
		InitialOnline:   true,
		SyncOnStart:     true,
		ListenAddr:      "127.0.0.1:8787",
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// ValidationError reports a config that does not satisfy the schema.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "invalid config: " + cueerrors.Details(e.Err, nil)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Load reads the YAML file at path over the defaults and validates the
// result. An empty path returns the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := Decode(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Decode overlays YAML data onto cfg. Unknown fields are rejected.
func Decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Validate checks cfg against the CUE schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(c.schemaView()))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

// schemaView is the config as the schema sees it: snake_case keys and
// durations in seconds.
func (c Config) schemaView() map[string]any {
	return map[string]any{
		"database":          c.Database,
		"delivery_endpoint": c.DeliveryEndpoint,
		"delivery_timeout":  c.DeliveryTimeout.Seconds(),
		"delivery_token":    c.DeliveryToken,
		"probe_url":         c.ProbeURL,
		"probe_interval":    c.ProbeInterval.Seconds(),
		"initial_online":    c.InitialOnline,
		"sync_on_start":     c.SyncOnStart,
		"listen_addr":       c.ListenAddr,
		"log_level":         c.LogLevel,
		"log_format":        c.LogFormat,
	}
}

// SlogLevel maps LogLevel to a slog level. Unknown values map to Info.
func (c Config) SlogLevel() slog.Level {
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
