package source

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func fastOpener(retries int) *Opener {
	return New(Config{
		Timeout:        2 * time.Second,
		MaxRetries:     retries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})
}

func TestOpenLocal(t *testing.T) {
	t.Parallel()
	p := filepath.Join(t.TempDir(), "orders.csv")
	if err := os.WriteFile(p, []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	in, err := fastOpener(0).Open(context.Background(), p)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer in.Close()
	if in.Name != "orders.csv" {
		t.Fatalf("Name = %q", in.Name)
	}
	b, _ := io.ReadAll(in)
	if string(b) != "a,b\n1,2\n" {
		t.Fatalf("body = %q", b)
	}

	if _, err := fastOpener(0).Open(context.Background(), filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestOpenRemoteRetries(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `[{"a":1}]`)
	}))
	defer srv.Close()

	in, err := fastOpener(3).Open(context.Background(), srv.URL+"/exports/rows.json?v=2")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer in.Close()
	if in.Name != "rows.json" {
		t.Fatalf("Name = %q", in.Name)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("hits = %d, want 3", got)
	}
}

func TestOpenRemoteFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		status   int
		retries  int
		wantHits int32
	}{
		{"not found is final", http.StatusNotFound, 3, 1},
		{"server error exhausts retries", http.StatusInternalServerError, 2, 3},
		{"too many requests retried", http.StatusTooManyRequests, 1, 2},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var hits int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := fastOpener(tt.retries).Open(context.Background(), srv.URL+"/x.csv")
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := atomic.LoadInt32(&hits); got != tt.wantHits {
				t.Fatalf("hits = %d, want %d", got, tt.wantHits)
			}
		})
	}
}

func TestOpenCanceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fastOpener(0).Open(ctx, "http://127.0.0.1:1/x.csv"); err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestNameFromURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com/data/orders.xlsx", "orders.xlsx"},
		{"https://example.com/data/orders.csv.gz?token=1", "orders.csv.gz"},
	}
	for _, tt := range tests {
		if got := NameFromURL(tt.in); got != tt.want {
			t.Errorf("NameFromURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	a, b := NameFromURL("https://example.com/"), NameFromURL("https://example.org/")
	if !strings.HasPrefix(a, "download-") || a == b {
		t.Fatalf("fallback names %q %q", a, b)
	}
}

func TestReadList(t *testing.T) {
	t.Parallel()
	p := filepath.Join(t.TempDir(), "inputs.txt")
	content := `
# nightly uploads
https://example.com/a.csv
   # indented comment
./local/b.xlsx

`
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ReadList(p)
	if err != nil {
		t.Fatalf("ReadList: %v", err)
	}
	want := []string{"https://example.com/a.csv", "./local/b.xlsx"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ReadList mismatch (-want +got):\n%s", diff)
	}
}
