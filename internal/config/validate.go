package config

import (
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap/zapcore"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding that should be surfaced but does
	// not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "archive.bucket"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity `json:"severity"`
	Path     string        `json:"path"`
	Message  string        `json:"message"`
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether issues contains at least one SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate performs static validation of cfg. It does not mutate cfg;
// callers decide whether warnings are fatal.
func Validate(cfg Config) []Issue {
	var issues []Issue
	issues = append(issues, validateStorage(cfg.Storage)...)
	issues = append(issues, validateIngest(cfg.Ingest)...)
	issues = append(issues, validateArchive(cfg)...)
	issues = append(issues, validateMetrics(cfg.Metrics)...)
	issues = append(issues, validateLog(cfg.Log)...)
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
	}
	known := map[string]struct{}{
		"postgres": {},
		"mysql":    {},
		"mssql":    {},
		"sqlite":   {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; want postgres, mysql, mssql or sqlite", s.Kind),
		})
	}
	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.dsn",
			Message:  "storage.dsn must not be empty",
		})
	}
	if s.MaxConns < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.max_conns",
			Message:  "max_conns must not be negative",
		})
	}
	if s.Kind == "mysql" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  "mysql commits DDL implicitly; a failed ingestion may leave a new table or column behind",
		})
	}
	return issues
}

func validateIngest(in Ingest) []Issue {
	var issues []Issue
	if in.BatchSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "ingest.batch_size",
			Message:  fmt.Sprintf("batch_size=%d; the default of 500 is used", in.BatchSize),
		})
	}
	if in.MaxUploadBytes < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "ingest.max_upload_bytes",
			Message:  "max_upload_bytes must not be negative",
		})
	}
	if in.Concurrency < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "ingest.concurrency",
			Message:  "concurrency must not be negative",
		})
	}
	return issues
}

func validateArchive(cfg Config) []Issue {
	a := cfg.Archive
	switch strings.ToLower(a.Kind) {
	case "", "none":
		return nil
	case "local":
		if strings.TrimSpace(a.Dir) == "" {
			return []Issue{{Severity: SeverityError, Path: "archive.dir", Message: "local archive requires a directory"}}
		}
		return nil
	case "s3":
		var issues []Issue
		if strings.TrimSpace(a.Bucket) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: "archive.bucket", Message: "s3 archive requires a bucket"})
		}
		if a.Endpoint != "" {
			if _, err := url.ParseRequestURI(a.Endpoint); err != nil {
				issues = append(issues, Issue{Severity: SeverityError, Path: "archive.endpoint", Message: fmt.Sprintf("invalid endpoint: %v", err)})
			}
		}
		if a.Region == "" {
			issues = append(issues, Issue{Severity: SeverityWarning, Path: "archive.region", Message: "no region; the AWS default chain decides"})
		}
		return issues
	default:
		return []Issue{{
			Severity: SeverityError,
			Path:     "archive.kind",
			Message:  fmt.Sprintf("unknown archive kind %q; want local or s3", a.Kind),
		}}
	}
}

func validateMetrics(m Metrics) []Issue {
	switch strings.ToLower(m.Backend) {
	case "", "none":
		return nil
	case "prometheus":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			return []Issue{{Severity: SeverityError, Path: "metrics.pushgateway_url", Message: "prometheus backend requires a pushgateway url"}}
		}
		if _, err := url.ParseRequestURI(m.PushgatewayURL); err != nil {
			return []Issue{{Severity: SeverityError, Path: "metrics.pushgateway_url", Message: fmt.Sprintf("invalid url: %v", err)}}
		}
		return nil
	case "datadog":
		if strings.TrimSpace(m.DatadogAddr) == "" {
			return []Issue{{Severity: SeverityError, Path: "metrics.datadog_addr", Message: "datadog backend requires a dogstatsd address"}}
		}
		return nil
	default:
		return []Issue{{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; want prometheus or datadog", m.Backend),
		}}
	}
}

func validateLog(l Log) []Issue {
	if l.Level == "" {
		return nil
	}
	if _, err := zapcore.ParseLevel(l.Level); err != nil {
		return []Issue{{Severity: SeverityError, Path: "log.level", Message: err.Error()}}
	}
	return nil
}
