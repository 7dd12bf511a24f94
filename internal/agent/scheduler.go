package agent

import (
	"context"
	"log"
	"time"

	"github.com/rahul/exoscope/internal/observability"
)

// DefaultMaintenanceInterval is how often the scheduler sweeps shared state.
const DefaultMaintenanceInterval = 30 * time.Second

// Scheduler periodically purges expired cache entries, drops stale catalog entries and
// emits a heartbeat.
type Scheduler struct {
	Orchestrator *Orchestrator
	Logger       *observability.Logger
	Interval     time.Duration
}

func NewScheduler(o *Orchestrator, logger *observability.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultMaintenanceInterval
	}
	return &Scheduler{
		Orchestrator: o,
		Logger:       logger,
		Interval:     interval,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	log.Println("Maintenance scheduler started...")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep runs one maintenance pass and returns what it removed.
func (s *Scheduler) sweep() (purged, stale int) {
	if s.Orchestrator != nil {
		if s.Orchestrator.Cache != nil {
			purged = s.Orchestrator.Cache.PurgeExpired()
		}
		if s.Orchestrator.Catalog != nil {
			stale = s.Orchestrator.Catalog.InvalidateStale()
		}
	}
	if purged > 0 || stale > 0 {
		log.Printf("Maintenance: purged %d cached results, invalidated %d catalog entries", purged, stale)
	}

	cached := 0
	if s.Orchestrator != nil && s.Orchestrator.Cache != nil {
		cached = s.Orchestrator.Cache.Len()
	}
	status := observability.GetStatus()
	observability.Heartbeat()
	s.Logger.LogHeartbeat(map[string]any{
		"cached_results": cached,
		"purged":         purged,
		"stale_columns":  stale,
		"active":         status.Active,
		"served":         status.Served,
	})
	return purged, stale
}
