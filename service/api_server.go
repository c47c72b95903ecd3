package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	harbor "github.com/testharbor/testharbor"
	"github.com/testharbor/testharbor/runner"
	"github.com/testharbor/testharbor/storage"
	"github.com/testharbor/testharbor/stream"
	"github.com/testharbor/testharbor/types"
)

// ExecutionSubmitter is the slice of the orchestrator the API needs.
type ExecutionSubmitter interface {
	SubmitExecution(ctx context.Context, def types.TestDefinition, sessionID string) (*types.ExecutionResult, error)
}

// SchedulerStatus reports queue occupancy for the status endpoint.
type SchedulerStatus interface {
	ActiveCount() int
	QueueDepth() int
}

// APIServer is the request-routing layer over the execution core plus the
// static artifact mounts and the streaming endpoint.
type APIServer struct {
	ctx       context.Context
	log       zerolog.Logger
	submitter ExecutionSubmitter
	store     storage.ResultStore
	hub       *stream.Hub
	status    SchedulerStatus
	staticDir string
	server    *http.Server
	upgrader  websocket.Upgrader
}

// APIConfig holds configuration for creating the API server.
type APIConfig struct {
	Log       zerolog.Logger
	Submitter ExecutionSubmitter
	Store     storage.ResultStore
	Hub       *stream.Hub
	Status    SchedulerStatus
	// StaticDir is the storage root whose buckets are served as static
	// content under /screenshots, /videos, /traces and /results.
	StaticDir string
}

// NewAPIServer creates the API server.
func NewAPIServer(cfg APIConfig) *APIServer {
	return &APIServer{
		log:       cfg.Log.With().Str("component", "api").Logger(),
		submitter: cfg.Submitter,
		store:     cfg.Store,
		hub:       cfg.Hub,
		status:    cfg.Status,
		staticDir: cfg.StaticDir,
		upgrader: websocket.Upgrader{
			// Enable to support browser websocket connections.
			// See https://pkg.go.dev/github.com/gorilla/websocket#hdr-Origin_Considerations
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler builds the router with the API routes, the streaming endpoint
// and the static artifact mounts.
func (a *APIServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/api/executions", a.handleSubmit).Methods(http.MethodPost)
	router.HandleFunc("/api/results", a.handleListResults).Methods(http.MethodGet)
	router.HandleFunc("/api/results/{sessionId}", a.handleGetResult).Methods(http.MethodGet)
	router.HandleFunc("/api/status", a.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/ws", a.handleStream)

	for _, bucket := range []string{
		storage.ScreenshotsBucket,
		storage.VideosBucket,
		storage.TracesBucket,
		storage.ResultsBucket,
	} {
		prefix := "/" + bucket + "/"
		fileServer := http.FileServer(http.Dir(filepath.Join(a.staticDir, bucket)))
		router.PathPrefix(prefix).Handler(http.StripPrefix(prefix, fileServer))
	}

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})
	return c.Handler(router)
}

func (a *APIServer) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Handler: a.Handler(),
		Addr:    addr,
	}
	a.server = server
	a.ctx = ctx
	return a.server.ListenAndServe()
}

func (a *APIServer) Shutdown() error {
	return a.server.Shutdown(a.ctx)
}

// submitRequest is the submission payload from the routing layer. The
// test's code and config must already be populated by the generation step.
type submitRequest struct {
	SessionID string               `json:"sessionId"`
	Test      types.TestDefinition `json:"test"`
}

func (a *APIServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := a.submitter.SubmitExecution(r.Context(), req.Test, req.SessionID)
	if err != nil {
		switch {
		case harbor.IsAdmissionError(err):
			a.writeError(w, http.StatusBadRequest, err.Error())
		case runner.IsEnvironmentError(err), runner.IsSpawnError(err):
			a.writeError(w, http.StatusBadGateway, err.Error())
		case errors.Is(err, context.Canceled):
			// Client went away; nothing useful to write.
		default:
			a.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	a.writeJSON(w, http.StatusOK, result)
}

func (a *APIServer) handleListResults(w http.ResponseWriter, r *http.Request) {
	results, err := a.store.ListResults()
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []types.ExecutionResult{}
	}
	a.writeJSON(w, http.StatusOK, results)
}

func (a *APIServer) handleGetResult(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	result, err := a.store.GetResult(sessionID)
	if err != nil {
		a.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	a.writeJSON(w, http.StatusOK, result)
}

func (a *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{
		"active": a.status.ActiveCount(),
		"queued": a.status.QueueDepth(),
	})
}

// handleStream upgrades the connection and hands it to the hub. The hub
// owns the connection from here on.
func (a *APIServer) handleStream(w http.ResponseWriter, r *http.Request) {
	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	id := a.hub.Register(ws)
	a.log.Debug().Str("connection", id).Str("remote", r.RemoteAddr).Msg("stream connected")
}

func (a *APIServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (a *APIServer) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, map[string]string{"error": msg})
}
