// Package gateway exposes the assistant over HTTP and chat platforms.
package gateway

import (
	"context"

	"github.com/rahul/exoscope/internal/agent"
	"github.com/rahul/exoscope/internal/cache"
	"github.com/rahul/exoscope/internal/plan"
	"github.com/rahul/exoscope/internal/store"
)

// Gateway is a transport that can be started and stopped.
type Gateway interface {
	// Start runs the transport until Stop is called or it fails
	Start() error
	// Stop gracefully shuts down the transport
	Stop() error
}

// Assistant is the part of the orchestrator the transports call. *agent.Orchestrator
// satisfies it.
type Assistant interface {
	Handle(ctx context.Context, req agent.Request) agent.Envelope
	Stream(ctx context.Context, req agent.Request, emit func(agent.Chunk) error) error
	FetchPage(queryID string, page int) (cache.Page, error)
	RunDirectQuery(ctx context.Context, table string) (agent.DirectResult, error)
	RunSQL(ctx context.Context, query string) (agent.SQLResult, error)
	RunSQLPlot(ctx context.Context, table, query string, chart plan.ChartSpec) (agent.SQLResult, error)
	ResetSession(ctx context.Context, session string) error
	Tables() []string
	Columns(ctx context.Context, table string) ([]string, error)
	Browse(ctx context.Context, req store.BrowseRequest) (store.BrowsePage, error)
	FindPlanet(ctx context.Context, name string) (store.PlanetMatch, error)
}
