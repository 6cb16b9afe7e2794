// Package http serves the MCP protocol over JSON-RPC 2.0 with stateful
// sessions, plus the health and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moolen/magma/internal/graph"
	"github.com/moolen/magma/internal/logging"
	"github.com/moolen/magma/internal/mcp"
)

// sessionHeader carries the session id on requests and responses.
const sessionHeader = "Mcp-Session-Id"

// maxBodyBytes caps request bodies at 10 MiB.
const maxBodyBytes = 10 << 20

// HealthChecker is the storage surface the health endpoint probes.
type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
	GetStatistics(ctx context.Context) (*graph.Statistics, error)
}

// Config holds transport settings.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// EndpointPaths are the MCP POST endpoints. Defaults to /mcp and /.
	EndpointPaths []string
	// Registry, when set, exposes /metrics for it.
	Registry *prometheus.Registry
}

// Transport serves the MCP protocol over HTTP.
type Transport struct {
	handler  *mcp.Handler
	sessions *mcp.SessionManager
	health   HealthChecker
	server   *http.Server
	config   Config
	logger   *logging.Logger
	started  time.Time
}

// NewTransport wires the HTTP transport. The health checker may be nil
// for tests that only exercise the protocol endpoint.
func NewTransport(config Config, server *mcp.Server, sessions *mcp.SessionManager, health HealthChecker) *Transport {
	if len(config.EndpointPaths) == 0 {
		config.EndpointPaths = []string{"/mcp", "/"}
	}

	t := &Transport{
		handler:  mcp.NewHandler(server),
		sessions: sessions,
		health:   health,
		config:   config,
		logger:   logging.GetLogger("mcp.http"),
	}

	t.server = &http.Server{
		Addr:         config.Addr,
		Handler:      t.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return t
}

// Start serves until the context ends or the listener fails.
func (t *Transport) Start(ctx context.Context) error {
	t.started = time.Now()
	t.sessions.Start(ctx)
	t.logger.Info("Starting HTTP server on %s (endpoints: %v)", t.config.Addr, t.config.EndpointPaths)

	errCh := make(chan error, 1)
	go func() {
		if err := t.server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return t.Stop()
	}
}

// Stop gracefully shuts the server down.
func (t *Transport) Stop() error {
	t.logger.Info("Shutting down HTTP server...")
	t.sessions.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := t.server.Shutdown(shutdownCtx); err != nil {
		t.logger.Error("Error during shutdown: %v", err)
		return err
	}
	return nil
}

// Handler exposes the routed mux so tests can drive the transport with
// httptest.
func (t *Transport) Handler() http.Handler {
	return t.server.Handler
}

func (t *Transport) routes() http.Handler {
	mux := http.NewServeMux()

	for _, path := range t.config.EndpointPaths {
		mux.HandleFunc("POST "+path, t.handleMCPRequest)
	}

	mux.HandleFunc("GET /health", t.handleHealth)

	if t.config.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(t.config.Registry, promhttp.HandlerOpts{}))
	}

	return mux
}

func (t *Transport) handleMCPRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req mcp.MCPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			sendError(w, nil, -32600, "Request body too large")
			return
		}
		sendError(w, nil, -32700, "Parse error")
		return
	}

	session := t.resolveSession(w, r)
	if session == nil {
		return
	}

	resp := t.handler.HandleRequest(r.Context(), session, &req)
	if resp == nil {
		// Notification: acknowledge with no body.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// resolveSession finds the client's session via the session header, or
// creates one and announces its id. Writes the error response itself
// when the session cap is hit.
func (t *Transport) resolveSession(w http.ResponseWriter, r *http.Request) *mcp.Session {
	if id := r.Header.Get(sessionHeader); id != "" {
		if session, ok := t.sessions.Get(id); ok {
			w.Header().Set(sessionHeader, session.ID)
			return session
		}
	}

	session, err := t.sessions.Create()
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		sendError(w, nil, -32000, "Session limit reached")
		return nil
	}
	w.Header().Set(sessionHeader, session.ID)
	return session
}

type healthResponse struct {
	Status   string            `json:"status"`
	FalkorDB string            `json:"falkordb"`
	Graphs   *graph.Statistics `json:"graphs,omitempty"`
	Uptime   float64           `json:"uptime"`
	Sessions *sessionsInfo     `json:"sessions,omitempty"`
}

type sessionsInfo struct {
	Active int `json:"active"`
	Max    int `json:"max"`
}

func (t *Transport) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{
		Status:   "ok",
		FalkorDB: "connected",
		Uptime:   time.Since(t.started).Seconds(),
		Sessions: &sessionsInfo{
			Active: t.sessions.Count(),
			Max:    t.sessions.Config().MaxSessions,
		},
	}

	status := http.StatusOK
	switch {
	case t.health == nil || !t.health.HealthCheck(r.Context()):
		resp.Status = "error"
		resp.FalkorDB = "disconnected"
		status = http.StatusInternalServerError
	default:
		stats, err := t.health.GetStatistics(r.Context())
		if err != nil {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			resp.Graphs = stats
		}
	}

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func sendError(w http.ResponseWriter, id interface{}, code int, message string) {
	resp := &mcp.MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &mcp.MCPError{Code: code, Message: message},
	}
	_ = json.NewEncoder(w).Encode(resp)
}
