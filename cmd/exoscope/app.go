package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/rahul/exoscope/internal/agent"
	"github.com/rahul/exoscope/internal/cache"
	"github.com/rahul/exoscope/internal/catalog"
	"github.com/rahul/exoscope/internal/governance"
	"github.com/rahul/exoscope/internal/llm"
	"github.com/rahul/exoscope/internal/observability"
	"github.com/rahul/exoscope/internal/render"
	"github.com/rahul/exoscope/internal/store"
	"github.com/rahul/exoscope/internal/tools"
	"github.com/rahul/exoscope/pkg/config"
)

// app holds everything a command needs, wired from one config.
type app struct {
	cfg      *config.Config
	db       *store.DB
	history  *store.HistoryStore
	snapshot *render.SnapshotRenderer
	orch     *agent.Orchestrator
	logger   *observability.Logger
}

func newApp(ctx context.Context, cfg *config.Config, withModel bool) (*app, error) {
	a := &app{cfg: cfg, logger: observability.NewLoggerTo(log.Writer(), cfg.App.LogDir)}

	db, err := store.Connect(ctx, store.Options{
		URL:              cfg.Database.URL,
		Tables:           cfg.Tables,
		StatementTimeout: cfg.Database.StatementTimeout(),
		MaxConns:         cfg.Database.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.db = db

	history, err := store.NewHistoryStore(cfg.Memory.Path)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("history: %w", err)
	}
	a.history = history

	var renderer render.Renderer = render.NewPlotlyRenderer()
	if cfg.Render.Mode == config.RenderPNG {
		a.snapshot = render.NewSnapshotRenderer(cfg.Render.OutputDir, cfg.Render.Timeout())
		renderer = a.snapshot
	}

	search := tools.NewSearchTool(tools.NewLease(cfg.Search.MinInterval()), searchBackends(cfg.Search)...)
	search.MaxResults = cfg.Search.MaxResults
	search.SnippetChars = cfg.Search.SnippetChars
	if cfg.Search.Enrich {
		search = search.WithEnricher(tools.NewEnricher(cfg.Search.Timeout()))
	}

	policy, err := buildPolicy(cfg.Policy)
	if err != nil {
		a.Close()
		return nil, err
	}

	executor := &tools.Executor{
		SQL:      tools.NewSQLTool(governance.NewSQLGuard(cfg.Tables), db),
		Plot:     tools.NewPlotTool(governance.NewChartGuard(), renderer),
		Search:   search,
		Registry: tools.DefaultRegistry(),
		Policy:   policy,
		Logger:   a.logger,
	}

	// Without a model the planner answers from keyword rules alone.
	planner := agent.NewIntentPlanner(nil, agent.NewPromptManager(cfg.App.Prompts), a.logger)
	if withModel {
		if name, pCfg := cfg.GetDefaultProvider(); name != "" {
			model, err := llm.New(ctx, name, pCfg)
			if err != nil {
				log.Printf("\033[93m[ WARN ] provider %s unavailable, using keyword planning: %v\033[0m", name, err)
			} else {
				planner.Model = model
				log.Printf("Planning with provider %s (%s)", name, pCfg.Model)
			}
		} else {
			log.Println("\033[93m[ WARN ] no enabled provider, using keyword planning\033[0m")
		}
	}

	a.orch = &agent.Orchestrator{
		Catalog:      catalog.New(db, cfg.Tables, cfg.Catalog.RefreshInterval()),
		Planner:      planner,
		Executor:     executor,
		Cache:        cache.New(cfg.Cache.Capacity, cfg.Cache.TTL(), nil),
		History:      history,
		Browser:      db,
		Logger:       a.logger,
		HistoryLimit: cfg.Memory.HistoryLimit,
	}
	return a, nil
}

func buildPolicy(cfg config.PolicyConfig) (*governance.DefaultPolicyEngine, error) {
	gov := governance.NewDefaultPolicyEngine()
	for _, name := range cfg.DeniedTools {
		gov.DenyTool(name)
	}
	for _, pattern := range cfg.DenyPatterns {
		if err := gov.DenyArguments(pattern); err != nil {
			return nil, fmt.Errorf("policy pattern %q: %w", pattern, err)
		}
	}
	return gov, nil
}

func searchBackends(cfg config.SearchConfig) []tools.Backend {
	var out []tools.Backend
	for _, name := range cfg.Backends {
		switch strings.ToLower(name) {
		case "glossary":
			out = append(out, tools.GlossaryBackend{})
		case "wikipedia", "wiki":
			out = append(out, tools.NewWikipediaBackend(cfg.Timeout()))
		case "duckduckgo", "ddg":
			ddg, err := tools.NewDuckDuckGoBackend(cfg.MaxResults)
			if err != nil {
				log.Printf("Warning: DuckDuckGo search disabled: %v", err)
				continue
			}
			out = append(out, ddg)
		default:
			log.Printf("Warning: unknown search backend %q", name)
		}
	}
	return out
}

func (a *app) Close() {
	if a.snapshot != nil {
		a.snapshot.Close()
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			log.Printf("closing history: %v", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
