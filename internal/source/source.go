// Package source opens upload inputs named on the command line: local file
// paths, http(s) URLs, and list files holding one such location per line.
//
// Remote fetches retry transport errors, 429 and 5xx with exponential
// backoff; other non-2xx statuses fail at once.
package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// Config configures remote fetches. Zero values get defaults: Timeout 30s,
// InitialBackoff 200ms, MaxBackoff 5s. MaxRetries=0 disables retries.
type Config struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Transport replaces the default RoundTripper; tests use it.
	Transport http.RoundTripper
}

// Input is an opened upload. Name is the base name used for format
// detection.
type Input struct {
	Name string
	io.ReadCloser
}

// Opener resolves locations to Inputs.
type Opener struct {
	client         *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// New builds an Opener from cfg.
func New(cfg Config) *Opener {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	c := &http.Client{Timeout: cfg.Timeout}
	if cfg.Transport != nil {
		c.Transport = cfg.Transport
	}
	return &Opener{
		client:         c,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
	}
}

// IsRemote reports whether loc is an http(s) URL.
func IsRemote(loc string) bool {
	l := strings.ToLower(loc)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// Open opens loc. The caller closes the returned Input.
func (o *Opener) Open(ctx context.Context, loc string) (Input, error) {
	if err := ctx.Err(); err != nil {
		return Input{}, err
	}
	if !IsRemote(loc) {
		f, err := os.Open(loc)
		if err != nil {
			return Input{}, fmt.Errorf("source: %w", err)
		}
		return Input{Name: filepath.Base(loc), ReadCloser: f}, nil
	}
	resp, err := o.get(ctx, loc)
	if err != nil {
		return Input{}, err
	}
	return Input{Name: NameFromURL(loc), ReadCloser: resp.Body}, nil
}

func (o *Opener) get(ctx context.Context, loc string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, backoff(o.initialBackoff, attempt-1, o.maxBackoff)); err != nil {
				return nil, err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
		if err != nil {
			return nil, fmt.Errorf("source: %w", err)
		}
		resp, err := o.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("source: get %s: %w", loc, err)
			continue
		}
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil
		case retryable(resp.StatusCode):
			resp.Body.Close()
			lastErr = fmt.Errorf("source: get %s: status %d", loc, resp.StatusCode)
		default:
			resp.Body.Close()
			return nil, fmt.Errorf("source: get %s: status %d", loc, resp.StatusCode)
		}
	}
	return nil, lastErr
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// backoff is initial*2^attempt clamped to max.
func backoff(initial time.Duration, attempt int, max time.Duration) time.Duration {
	d := initial << attempt
	if d <= 0 || d > max {
		return max
	}
	return d
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NameFromURL returns the last path segment of raw, or "download-<hash>"
// when the path has none.
func NameFromURL(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" && base != "" {
			return base
		}
	}
	return fmt.Sprintf("download-%016x", xxh3.HashString(raw))
}

// ReadList reads a list file: one location per line, blank lines and lines
// starting with '#' skipped.
func ReadList(p string) ([]string, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("source: read %s: %w", p, err)
	}
	return out, nil
}
