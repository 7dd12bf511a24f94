package agent

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rahul/exoscope/internal/cache"
	"github.com/rahul/exoscope/internal/catalog"
	"github.com/rahul/exoscope/internal/observability"
)

func TestScheduler_Sweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := cache.New(5, time.Minute, func() time.Time { return now })
	c.Set("old", cache.Entry{Table: "k2"})

	cat := catalog.New(&fakeSchema{columns: k2Columns}, datasets, 0)
	if _, err := cat.Columns(context.Background(), "k2"); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	s := NewScheduler(&Orchestrator{Cache: c, Catalog: cat}, observability.NewLoggerTo(&out, t.TempDir()), 0)
	if s.Interval != DefaultMaintenanceInterval {
		t.Errorf("expected default interval, got %v", s.Interval)
	}

	now = now.Add(2 * time.Minute)
	purged, stale := s.sweep()
	if purged != 1 || stale != 0 {
		t.Errorf("expected 1 purged and 0 stale, got %d and %d", purged, stale)
	}
	if c.Len() != 0 {
		t.Errorf("expired entry still cached")
	}
	if !strings.Contains(out.String(), `"type":"heartbeat"`) {
		t.Errorf("expected a heartbeat event, got %q", out.String())
	}
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	s := NewScheduler(nil, nil, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
