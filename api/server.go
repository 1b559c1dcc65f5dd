package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/montecarlo/agent/config"
	"github.com/wricardo/mcp-training/montecarlo/agent/report"
	"github.com/wricardo/mcp-training/montecarlo/agent/runs"
	"github.com/wricardo/mcp-training/montecarlo/agent/service"
	"github.com/wricardo/mcp-training/montecarlo/agent/trainer"
	"github.com/wricardo/mcp-training/montecarlo/agent/world"
	"github.com/wricardo/mcp-training/montecarlo/transport/websocket"
)

// Server represents the REST API server
type Server struct {
	service service.RunService
	hub     *websocket.Hub
	router  *mux.Router
	logger  zerolog.Logger
}

// NewServer creates a new API server. hub may be nil, in which case /ws is
// not served.
func NewServer(runService service.RunService, hub *websocket.Hub, logger zerolog.Logger) *Server {
	s := &Server{
		service: runService,
		hub:     hub,
		router:  mux.NewRouter(),
		logger:  logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Run management
	api.HandleFunc("/runs", s.handleCreateRun).Methods("POST")
	api.HandleFunc("/runs", s.handleListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods("GET")
	api.HandleFunc("/runs/{id}", s.handleDeleteRun).Methods("DELETE")

	// Learning operations
	api.HandleFunc("/runs/{id}/step", s.handleStep).Methods("POST")
	api.HandleFunc("/runs/{id}/train", s.handleTrain).Methods("POST")
	api.HandleFunc("/runs/{id}/replay", s.handleReplay).Methods("POST")
	api.HandleFunc("/runs/{id}/save", s.handleSave).Methods("POST")

	// Inspection
	api.HandleFunc("/runs/{id}/values", s.handleValues).Methods("GET")
	api.HandleFunc("/runs/{id}/history", s.handleHistory).Methods("GET")
	api.HandleFunc("/runs/{id}/policy", s.handlePolicy).Methods("GET")
	api.HandleFunc("/runs/{id}/chart", s.handleChart).Methods("GET")

	// Configuration
	api.HandleFunc("/configs", s.handleListConfigs).Methods("GET")
	api.HandleFunc("/configs/{name}", s.handleGetConfig).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps service errors to status codes
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, runs.ErrRunNotFound), errors.Is(err, config.ErrConfigNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidArgument),
		errors.Is(err, runs.ErrInvalidStart),
		errors.Is(err, runs.ErrNoSavedTable),
		errors.Is(err, config.ErrInvalidConfig):
		status = http.StatusBadRequest
	case errors.Is(err, trainer.ErrFrozen), errors.Is(err, trainer.ErrNoStore):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	respondError(w, status, err.Error())
}

// decodeBody reads an optional JSON body into v
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// Run Handlers

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConfigID string `json:"config_id,omitempty"`
		Start    string `json:"start,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := s.service.CreateRun(r.Context(), req.ConfigID, req.Start)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.logger.Info().Str("run", run.ID).Str("config", run.ConfigName).Str("mode", run.Mode).Msg("run created")
	respondJSON(w, http.StatusCreated, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.ListRuns(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	query := r.URL.Query()
	sortBy := query.Get("sort") // "created", "accessed" (default)
	order := query.Get("order") // "asc", "desc" (default)
	if sortBy == "" {
		sortBy = "accessed"
	}
	if order == "" {
		order = "desc"
	}

	sort.SliceStable(list, func(i, j int) bool {
		var ti, tj time.Time
		if sortBy == "created" {
			ti, tj = list[i].CreatedAt, list[j].CreatedAt
		} else {
			ti, tj = list[i].LastAccessedAt, list[j].LastAccessedAt
		}
		if order == "asc" {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	total := len(list)
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(list) {
			list = list[:l]
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(list),
		"total": total,
		"runs":  list,
		"sort":  sortBy,
		"order": order,
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.service.GetRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]
	if err := s.service.DeleteRun(r.Context(), runID); err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Run %s deleted", runID),
	})
}

// Learning Handlers

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		N int `json:"n"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.service.Step(r.Context(), mux.Vars(r)["id"], req.N)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.logger.Debug().
		Str("run", result.RunID).
		Int("executed", result.Executed).
		Int("episode", result.Status.Episode).
		Str("position", result.Status.Position.String()).
		Msg("step")
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Episodes int `json:"episodes"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.service.Train(r.Context(), mux.Vars(r)["id"], req.Episodes)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.logger.Info().
		Str("run", result.RunID).
		Int("episodes", len(result.Episodes)).
		Float64("success_rate", result.SuccessRate).
		Float64("mean_steps", result.MeanSteps).
		Bool("done", result.Status.Done).
		Msg("train")
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MaxSteps int `json:"max_steps"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.service.Replay(r.Context(), mux.Vars(r)["id"], req.MaxSteps)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.SaveTable(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Inspection Handlers

func (s *Server) handleValues(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		respondError(w, http.StatusBadRequest, "state parameter required, e.g. state=7,-7")
		return
	}

	result, err := s.service.ActionValues(r.Context(), mux.Vars(r)["id"], world.State(state))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// maxHistoryLimit caps the page size of the history endpoint
const maxHistoryLimit = 1000

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.service.History(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	// Pagination over finished episodes, oldest first
	page, limit := 1, 100
	query := r.URL.Query()
	if p, err := strconv.Atoi(query.Get("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(query.Get("limit")); err == nil && l > 0 {
		limit = min(l, maxHistoryLimit)
	}

	total := len(history)
	from := total
	if page-1 <= total/limit {
		from = min((page-1)*limit, total)
	}
	to := from + min(limit, total-from)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"page":     page,
		"limit":    limit,
		"total":    total,
		"episodes": history[from:to],
	})
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Snapshot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	colors := r.URL.Query().Get("color") == "true"
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	err = report.RenderPolicy(w, report.PolicyView{
		World: snap.World,
		Table: snap.Table,
		Start: snap.Config.Start,
		Goal:  snap.Config.Goal,
		Path:  snap.Path,
	}, colors)
	if err != nil {
		s.logger.Warn().Err(err).Str("run", snap.RunID).Msg("failed to write policy")
	}
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Snapshot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	if len(snap.History) == 0 {
		respondError(w, http.StatusConflict, "no finished episodes yet")
		return
	}

	window := report.DefaultWindow
	if v, err := strconv.Atoi(r.URL.Query().Get("window")); err == nil && v > 0 {
		window = v
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	title := fmt.Sprintf("%s (%s)", snap.Config.Name, snap.RunID)
	if err := report.WriteLearningCurve(w, title, snap.History, window); err != nil {
		s.logger.Warn().Err(err).Str("run", snap.RunID).Msg("failed to write chart")
	}
}

// Configuration Handlers

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.service.ListConfigs(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, configs)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	configName := strings.TrimSuffix(mux.Vars(r)["name"], ".json")

	cfg, err := s.service.LoadConfig(r.Context(), configName)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cfg)
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "websocket not available", http.StatusServiceUnavailable)
		return
	}

	runID := r.URL.Query().Get("run")
	if runID == "" {
		http.Error(w, "run parameter required", http.StatusBadRequest)
		return
	}

	if _, err := s.service.GetRun(r.Context(), runID); err != nil {
		http.Error(w, "Invalid run", http.StatusNotFound)
		return
	}

	s.hub.ServeWS(w, r, runID)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
