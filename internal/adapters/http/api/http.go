// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/combatlink/internal/adapters/archive"
	service "github.com/okian/combatlink/internal/app"
	"github.com/okian/combatlink/internal/domain/attribution"
	"github.com/okian/combatlink/internal/domain/model"
	"github.com/okian/combatlink/internal/domain/report"
	"github.com/okian/combatlink/internal/domain/session"
	"github.com/okian/combatlink/internal/domain/types"
)

// SessionDependencies covers the session lifecycle.
type SessionDependencies interface {
	OpenSession(ctx context.Context) (string, error)
	FinishSession(ctx context.Context, sessionID string) (report.Report, error)
	Report(ctx context.Context, sessionID string) (report.Report, error)
	Sessions(ctx context.Context) []session.Summary
	Archived(ctx context.Context, limit int) ([]archive.Entry, error)
}

// EventDependencies covers ingestion and the attribution queries.
type EventDependencies interface {
	// Submit queues a batch. duplicate is true when batchID was already accepted.
	Submit(ctx context.Context, sessionID, batchID string, events []model.ObservedEvent) (duplicate bool, err error)

	Event(ctx context.Context, sessionID string, seq int64) (model.AnnotatedEvent, error)
	CauseOf(ctx context.Context, sessionID string, seq int64) (model.ObservedEvent, bool, error)
	EffectsOf(ctx context.Context, sessionID string, seq int64) ([]model.ObservedEvent, error)
}

// RulesDependencies exposes the active ruleset.
type RulesDependencies interface {
	Rules() []attribution.Rule
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SessionDependencies
	EventDependencies
	RulesDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	sessionsHandler *SessionsHandler
	eventsHandler   *EventsHandler
	rulesHandler    *RulesHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		sessionsHandler: NewSessionsHandler(deps),
		eventsHandler:   NewEventsHandler(deps),
		rulesHandler:    NewRulesHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /rules", MetricsMiddleware(s.rulesHandler.HandleGetRules, "rules"))

	mux.HandleFunc("POST /sessions", MetricsMiddleware(s.sessionsHandler.HandleOpen, "sessions_open"))
	mux.HandleFunc("GET /sessions", MetricsMiddleware(s.sessionsHandler.HandleList, "sessions_list"))
	mux.HandleFunc("POST /sessions/{id}/finish", MetricsMiddleware(s.sessionsHandler.HandleFinish, "sessions_finish"))
	mux.HandleFunc("GET /sessions/{id}/report", MetricsMiddleware(s.sessionsHandler.HandleReport, "sessions_report"))
	mux.HandleFunc("GET /reports", MetricsMiddleware(s.sessionsHandler.HandleArchived, "reports"))

	mux.HandleFunc("POST /sessions/{id}/events", MetricsMiddleware(s.eventsHandler.HandlePostEvents, "events"))
	mux.HandleFunc("GET /sessions/{id}/events/{seq}", MetricsMiddleware(s.eventsHandler.HandleGetEvent, "event"))
	mux.HandleFunc("GET /sessions/{id}/events/{seq}/cause", MetricsMiddleware(s.eventsHandler.HandleGetCause, "event_cause"))
	mux.HandleFunc("GET /sessions/{id}/events/{seq}/effects", MetricsMiddleware(s.eventsHandler.HandleGetEffects, "event_effects"))
}

// batchRequest mirrors the OpenAPI schema for POST /sessions/{id}/events.
type batchRequest struct {
	BatchID string        `json:"batch_id"`
	Events  []types.Event `json:"events"`
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
	Events    int    `json:"events"`
}

type openResponse struct {
	SessionID string `json:"session_id"`
}

type causeResponse struct {
	Effect types.Event  `json:"effect"`
	Cause  *types.Event `json:"cause"`
}

type effectsResponse struct {
	Cause   types.Event   `json:"cause"`
	Effects []types.Event `json:"effects"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// classify maps service errors onto an API kind.
func classify(err error) error {
	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrEventNotFound):
		return ErrNotFound
	case errors.Is(err, service.ErrSessionFinished):
		return ErrConflict
	case errors.Is(err, service.ErrQueueFull):
		return ErrBackpressure
	case errors.Is(err, service.ErrInvalidBatch),
		errors.Is(err, service.ErrBatchTooLarge),
		errors.Is(err, types.ErrInvalidEvent):
		return ErrBadRequest
	default:
		return ErrInternal
	}
}

// fail writes err with the status of its API kind.
func fail(w http.ResponseWriter, op string, err error) {
	kind := err
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind == nil {
		kind = classify(err)
		err = WrapKind(op, kind, err)
	} else {
		kind = apiErr.Kind
	}

	switch {
	case errors.Is(kind, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(kind, ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(kind, ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(kind, ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

func pathSeq(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("seq"), 10, 64)
}
