// Package archive retains raw uploads after a successful ingestion.
//
// Archiving is best-effort: the ingestion pipeline logs archive failures and
// never rolls back committed rows because of them.
package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrArchiveFailed wraps every store failure.
var ErrArchiveFailed = errors.New("archive failed")

// Archiver stores one upload under key and returns its location.
type Archiver interface {
	Archive(ctx context.Context, key string, data []byte) (string, error)
}

// Nop discards uploads.
type Nop struct{}

func (Nop) Archive(context.Context, string, []byte) (string, error) { return "", nil }

// Config selects and configures an Archiver.
type Config struct {
	// Kind is "", "none", "local" or "s3".
	Kind string `json:"kind" yaml:"kind"`
	// Dir is the root directory of the local archiver.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
	// Bucket, Prefix, Region, Endpoint and UsePathStyle configure S3.
	Bucket       string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix       string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region       string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint     string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	UsePathStyle bool   `json:"use_path_style,omitempty" yaml:"use_path_style,omitempty"`
}

// New builds the Archiver described by cfg.
func New(ctx context.Context, cfg Config) (Archiver, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "none":
		return Nop{}, nil
	case "local":
		return NewLocal(cfg.Dir)
	case "s3":
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("archive: unknown kind %q", cfg.Kind)
	}
}

// Key builds an object key from its parts, dropping empty parts and any
// path traversal in them.
func Key(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")
		if p == "" || p == "." {
			continue
		}
		clean = append(clean, p)
	}
	return strings.Join(clean, "/")
}
