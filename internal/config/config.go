// Package config defines the configuration model of the dashboard tools and
// loads it from a JSON or YAML file plus environment overrides.
//
// Example (YAML):
//
//	storage:
//	  kind: postgres
//	  dsn: postgresql://dash:secret@db:5432/dashboard
//	ingest:
//	  batch_size: 500
//	  max_upload_bytes: 16777216
//	archive:
//	  kind: s3
//	  bucket: dashboard-uploads
//	metrics:
//	  backend: prometheus
//	  pushgateway_url: http://pushgateway:9091
//	log:
//	  level: info
//
// Environment variables win over the file: DATABASE_URL,
// DASHBOARD_STORAGE_KIND, METRICS_BACKEND and PUSHGATEWAY_URL.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"dashboard/internal/archive"
)

// Config is the top-level configuration.
type Config struct {
	Storage Storage        `json:"storage" yaml:"storage"`
	Ingest  Ingest         `json:"ingest" yaml:"ingest"`
	Export  Export         `json:"export" yaml:"export"`
	Archive archive.Config `json:"archive" yaml:"archive"`
	Metrics Metrics        `json:"metrics" yaml:"metrics"`
	Log     Log            `json:"log" yaml:"log"`
}

// Storage selects the relational backend.
type Storage struct {
	// Kind is "postgres", "sqlite", "mssql" or "mysql".
	Kind string `json:"kind" yaml:"kind"`
	// DSN is handed to the backend driver.
	DSN string `json:"dsn" yaml:"dsn"`
	// MaxConns caps the connection pool; zero keeps the driver default.
	MaxConns int `json:"max_conns,omitempty" yaml:"max_conns,omitempty"`
}

// Ingest tunes the ingestion pipeline.
type Ingest struct {
	BatchSize      int   `json:"batch_size" yaml:"batch_size"`
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes"`
	// Concurrency bounds how many files the CLI ingests at once.
	Concurrency int `json:"concurrency" yaml:"concurrency"`
}

// Export configures CSV exports.
type Export struct {
	// Dir receives export files; empty means the system temp directory.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is "", "none", "prometheus" or "datadog".
	Backend        string            `json:"backend" yaml:"backend"`
	Job            string            `json:"job,omitempty" yaml:"job,omitempty"`
	PushgatewayURL string            `json:"pushgateway_url,omitempty" yaml:"pushgateway_url,omitempty"`
	DatadogAddr    string            `json:"datadog_addr,omitempty" yaml:"datadog_addr,omitempty"`
	Tags           map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Log configures the zap logger.
type Log struct {
	// Level is debug, info, warn or error.
	Level string `json:"level" yaml:"level"`
	// Development switches to the console encoder with stack traces on warn.
	Development bool `json:"development,omitempty" yaml:"development,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Storage: Storage{Kind: "sqlite", DSN: "dashboard.db"},
		Ingest:  Ingest{BatchSize: 500, MaxUploadBytes: 16 << 20, Concurrency: 4},
		Metrics: Metrics{Job: "dashboard"},
		Log:     Log{Level: "info"},
	}
}

// Load reads path (when non-empty) over the defaults and applies the
// environment overrides. The decoder is picked by extension: .yaml and .yml
// are YAML, everything else JSON. Unknown keys are rejected.
func Load(path string) (Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := Decode(data, filepath.Ext(path), &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode strictly decodes data into cfg; ext selects YAML (".yaml", ".yml")
// or JSON.
func Decode(data []byte, ext string, cfg *Config) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(cfg)
	}
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if u := strings.TrimSpace(getenv("DATABASE_URL")); u != "" {
		kind, dsn, err := ParseDatabaseURL(u)
		if err != nil {
			return fmt.Errorf("config: DATABASE_URL: %w", err)
		}
		c.Storage.Kind, c.Storage.DSN = kind, dsn
	}
	if k := strings.TrimSpace(getenv("DASHBOARD_STORAGE_KIND")); k != "" {
		c.Storage.Kind = strings.ToLower(k)
	}
	if b := strings.TrimSpace(getenv("METRICS_BACKEND")); b != "" {
		c.Metrics.Backend = strings.ToLower(b)
	}
	if u := strings.TrimSpace(getenv("PUSHGATEWAY_URL")); u != "" {
		c.Metrics.PushgatewayURL = u
	}
	return nil
}
