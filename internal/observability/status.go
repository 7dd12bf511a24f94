package observability

import (
	"sync"
	"time"
)

type State string

const (
	StateIdle    State = "IDLE"
	StateServing State = "SERVING"
)

type SystemStatus struct {
	mu            sync.RWMutex
	active        int
	served        int64
	failed        int64
	lastRequest   string
	LastHeartbeat time.Time
}

// StatusSnapshot is a point-in-time copy of the process status.
type StatusSnapshot struct {
	State         State         `json:"state"`
	Active        int           `json:"active"`
	Served        int64         `json:"served"`
	Failed        int64         `json:"failed"`
	LastRequest   string        `json:"last_request,omitempty"`
	LastHeartbeat time.Time     `json:"last_heartbeat"`
	Uptime        time.Duration `json:"uptime_ns"`
}

var globalStatus = &SystemStatus{
	LastHeartbeat: time.Now(),
}

// BeginRequest marks a request as in flight and returns the function that ends it.
func BeginRequest(summary string) func(failed bool) {
	globalStatus.mu.Lock()
	globalStatus.active++
	globalStatus.lastRequest = summary
	globalStatus.mu.Unlock()

	return func(failed bool) {
		globalStatus.mu.Lock()
		defer globalStatus.mu.Unlock()
		globalStatus.active--
		globalStatus.served++
		if failed {
			globalStatus.failed++
		}
	}
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() StatusSnapshot {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	state := StateIdle
	if globalStatus.active > 0 {
		state = StateServing
	}
	return StatusSnapshot{
		State:         state,
		Active:        globalStatus.active,
		Served:        globalStatus.served,
		Failed:        globalStatus.failed,
		LastRequest:   globalStatus.lastRequest,
		LastHeartbeat: globalStatus.LastHeartbeat,
		Uptime:        time.Since(startTime).Round(time.Second),
	}
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastHeartbeat = time.Now()
}
