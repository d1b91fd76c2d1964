package datadog

import (
	"testing"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/google/go-cmp/cmp"

	"dashboard/internal/metrics"
)

type call struct {
	kind  string
	name  string
	value float64
	tags  []string
}

// fakeClient records Count and Histogram calls; other statsd methods are
// inherited from the nil embedded interface and must not be called.
type fakeClient struct {
	statsd.ClientInterface
	calls  []call
	closed bool
}

func (f *fakeClient) Count(name string, value int64, tags []string, _ float64) error {
	f.calls = append(f.calls, call{"count", name, float64(value), tags})
	return nil
}

func (f *fakeClient) Histogram(name string, value float64, tags []string, _ float64) error {
	f.calls = append(f.calls, call{"histogram", name, value, tags})
	return nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestBackendForwardsWithTags(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	b := &Backend{client: fc}

	b.IncCounter(metrics.RowsTotal, 4, metrics.Labels{"kind": "inserted", "component": "ingest"})
	b.ObserveHistogram(metrics.StepDuration, 0.25, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	want := []call{
		{"count", metrics.RowsTotal, 4, []string{"component:ingest", "kind:inserted"}},
		{"histogram", metrics.StepDuration, 0.25, nil},
	}
	if diff := cmp.Diff(want, fc.calls, cmp.AllowUnexported(call{})); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	if !fc.closed {
		t.Fatalf("Flush() did not close the client")
	}
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	if _, err := NewBackend(Config{}); err == nil {
		t.Fatalf("NewBackend(empty) error = nil")
	}
	b, err := NewBackend(Config{Addr: "127.0.0.1:8125", Namespace: "dashboard.", GlobalTags: []string{"env:test"}})
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var zero Backend
	zero.IncCounter("x", 1, nil)
	if err := zero.Flush(); err != nil {
		t.Fatalf("zero Flush() error = %v", err)
	}
}
