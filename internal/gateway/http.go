package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rahul/exoscope/internal/agent"
	"github.com/rahul/exoscope/internal/cache"
	"github.com/rahul/exoscope/internal/catalog"
	"github.com/rahul/exoscope/internal/observability"
	"github.com/rahul/exoscope/internal/plan"
	"github.com/rahul/exoscope/internal/store"
	"github.com/rahul/exoscope/internal/tools"
)

// SessionHeader carries the conversation id for HTTP clients.
const SessionHeader = "X-Session-ID"

const maxBodyBytes = 64 << 10

// HTTPGateway serves the JSON and streaming API.
type HTTPGateway struct {
	Assistant Assistant
	Addr      string

	srv *http.Server
}

func NewHTTPGateway(addr string, a Assistant) *HTTPGateway {
	g := &HTTPGateway{Assistant: a, Addr: addr}
	g.srv = &http.Server{
		Addr:              addr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

// Handler returns the routed API so it can be mounted or tested without listening.
func (g *HTTPGateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", g.handleChat)
	mux.HandleFunc("POST /chat/stream", g.handleStream)
	mux.HandleFunc("GET /query/data/{id}", g.handlePage)
	mux.HandleFunc("POST /query/direct", g.handleDirect)
	mux.HandleFunc("GET /tables", g.handleTables)
	mux.HandleFunc("GET /table/{name}/columns", g.handleColumns)
	mux.HandleFunc("GET /table/{name}/data", g.handleBrowse)
	mux.HandleFunc("GET /search/planet", g.handlePlanet)
	mux.HandleFunc("POST /sql/execute", g.handleSQL)
	mux.HandleFunc("POST /sql/plot", g.handleSQLPlot)
	mux.HandleFunc("GET /sql/tables/{name}/columns", g.handleColumns)
	mux.HandleFunc("GET /healthz", g.handleHealth)
	return mux
}

func (g *HTTPGateway) Start() error {
	log.Printf("HTTP gateway listening on %s", g.Addr)
	if err := g.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *HTTPGateway) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.srv.Shutdown(ctx)
}

type chatRequest struct {
	Message string `json:"message"`
	Table   string `json:"table"`
	QueryID string `json:"query_id"`
}

func (g *HTTPGateway) decodeChat(w http.ResponseWriter, r *http.Request) (agent.Request, bool) {
	var body chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return agent.Request{}, false
	}
	if strings.TrimSpace(body.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return agent.Request{}, false
	}
	return agent.Request{
		Message: body.Message,
		Table:   body.Table,
		QueryID: body.QueryID,
		Session: r.Header.Get(SessionHeader),
	}, true
}

func (g *HTTPGateway) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := g.decodeChat(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, g.Assistant.Handle(r.Context(), req))
}

// handleStream writes server-sent events, one "data: {json}" line per chunk.
func (g *HTTPGateway) handleStream(w http.ResponseWriter, r *http.Request) {
	req, ok := g.decodeChat(w, r)
	if !ok {
		return
	}
	flusher, canFlush := w.(http.Flusher)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	err := g.Assistant.Stream(r.Context(), req, func(c agent.Chunk) error {
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		if canFlush {
			flusher.Flush()
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("stream for %s ended early: %v", req.QueryID, err)
	}
}

func (g *HTTPGateway) handlePage(w http.ResponseWriter, r *http.Request) {
	page := 0
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "page must be a non-negative integer")
			return
		}
		page = n
	}

	p, err := g.Assistant.FetchPage(r.PathValue("id"), page)
	if errors.Is(err, cache.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Query data not found or expired")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (g *HTTPGateway) handleDirect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Table string `json:"table"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := g.Assistant.RunDirectQuery(r.Context(), body.Table)
	if errors.Is(err, catalog.ErrUnknownTable) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid table %q", body.Table))
		return
	}
	if err != nil {
		log.Printf("direct query on %s failed: %v", body.Table, err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (g *HTTPGateway) handleTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tables": g.Assistant.Tables()})
}

func (g *HTTPGateway) handleColumns(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	cols, err := g.Assistant.Columns(r.Context(), name)
	if errors.Is(err, catalog.ErrUnknownTable) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("table %q not found", name))
		return
	}
	if err != nil {
		log.Printf("columns of %s: %v", name, err)
		writeError(w, http.StatusInternalServerError, "could not load columns")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "table": name, "columns": cols})
}

func (g *HTTPGateway) handleBrowse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := store.BrowseRequest{
		Table:        r.PathValue("name"),
		Search:       q.Get("search"),
		SearchColumn: q.Get("search_column"),
	}
	var err error
	if req.Page, err = intParam(q.Get("page"), 1); err != nil {
		writeError(w, http.StatusBadRequest, "page must be an integer")
		return
	}
	if req.Limit, err = intParam(q.Get("limit"), store.DefaultBrowseLimit); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}

	page, err := g.Assistant.Browse(r.Context(), req)
	switch {
	case errors.Is(err, catalog.ErrUnknownTable), errors.Is(err, store.ErrTableNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("table %q not found", req.Table))
	case err != nil:
		log.Printf("browse %s: %v", req.Table, err)
		writeError(w, http.StatusBadRequest, "could not browse table")
	default:
		writeJSON(w, http.StatusOK, page)
	}
}

func (g *HTTPGateway) handlePlanet(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	match, err := g.Assistant.FindPlanet(r.Context(), name)
	if err != nil {
		log.Printf("planet lookup %q: %v", name, err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, match)
}

type sqlRequest struct {
	Query string          `json:"query"`
	Table string          `json:"table"`
	Chart *plan.ChartSpec `json:"chart"`
}

// sqlResponse flattens the result next to the success flag.
type sqlResponse struct {
	Success bool `json:"success"`
	agent.SQLResult
}

func decodeSQL(w http.ResponseWriter, r *http.Request) (sqlRequest, bool) {
	var body sqlRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return body, false
	}
	body.Query = strings.TrimSpace(body.Query)
	if body.Query == "" {
		writeError(w, http.StatusBadRequest, "SQL query is required")
		return body, false
	}
	return body, true
}

func (g *HTTPGateway) handleSQL(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeSQL(w, r)
	if !ok {
		return
	}
	res, err := g.Assistant.RunSQL(r.Context(), body.Query)
	if err != nil {
		writeToolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sqlResponse{Success: true, SQLResult: res})
}

func (g *HTTPGateway) handleSQLPlot(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeSQL(w, r)
	if !ok {
		return
	}
	if body.Chart == nil || body.Chart.Kind == "" {
		writeError(w, http.StatusBadRequest, "chart is required")
		return
	}
	res, err := g.Assistant.RunSQLPlot(r.Context(), body.Table, body.Query, *body.Chart)
	if err != nil {
		writeToolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sqlResponse{Success: true, SQLResult: res})
}

func writeToolError(w http.ResponseWriter, err error) {
	var failure *agent.ToolFailure
	switch {
	case errors.Is(err, catalog.ErrUnknownTable):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &failure):
		status := http.StatusInternalServerError
		switch failure.Kind {
		case tools.ErrorValidation:
			status = http.StatusBadRequest
		case tools.ErrorUnavailable:
			status = http.StatusServiceUnavailable
		}
		if status == http.StatusInternalServerError {
			log.Printf("direct tool call failed: %v", failure.Err)
		}
		writeError(w, status, failure.Message)
	default:
		log.Printf("direct tool call failed: %v", err)
		writeError(w, http.StatusInternalServerError, "query failed")
	}
}

func (g *HTTPGateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, observability.GetStatus())
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// writeJSON encodes before writing the header so an unencodable value becomes a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("encode response: %v", err)
		status = http.StatusInternalServerError
		data = []byte(`{"error":"could not encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
