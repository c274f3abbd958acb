package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/combatlink/internal/domain/types"
)

var (
	errMissingBatchID = errors.New("missing batch_id")
	errInvalidSeq     = errors.New("seq must be an integer")
	errInvalidLimit   = errors.New("limit must be a positive integer")
)

// EventsHandler handles event ingestion and attribution queries.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandlePostEvents handles POST /sessions/{id}/events requests.
func (h *EventsHandler) HandlePostEvents(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_events"
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, op, WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.BatchID) == "" {
		fail(w, op, WrapKind(op, ErrBadRequest, errMissingBatchID))
		return
	}
	events, err := types.ToModels(req.Events)
	if err != nil {
		fail(w, op, WrapKind(op, ErrBadRequest, err))
		return
	}

	duplicate, err := h.deps.Submit(r.Context(), r.PathValue("id"), req.BatchID, events)
	if err != nil {
		fail(w, op, err)
		return
	}
	if duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true, Events: len(events)})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Events: len(events)})
}

// HandleGetEvent handles GET /sessions/{id}/events/{seq} requests.
func (h *EventsHandler) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_event"
	seq, err := pathSeq(r)
	if err != nil {
		fail(w, op, WrapKind(op, ErrBadRequest, errInvalidSeq))
		return
	}
	e, err := h.deps.Event(r.Context(), r.PathValue("id"), seq)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, types.FromAnnotated(e))
}

// HandleGetCause handles GET /sessions/{id}/events/{seq}/cause requests.
// An unattributed effect answers 200 with a null cause.
func (h *EventsHandler) HandleGetCause(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_cause"
	seq, err := pathSeq(r)
	if err != nil {
		fail(w, op, WrapKind(op, ErrBadRequest, errInvalidSeq))
		return
	}
	id := r.PathValue("id")
	effect, err := h.deps.Event(r.Context(), id, seq)
	if err != nil {
		fail(w, op, err)
		return
	}
	cause, found, err := h.deps.CauseOf(r.Context(), id, seq)
	if err != nil {
		fail(w, op, err)
		return
	}
	resp := causeResponse{Effect: types.FromModel(effect.ObservedEvent)}
	if found {
		c := types.FromModel(cause)
		resp.Cause = &c
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGetEffects handles GET /sessions/{id}/events/{seq}/effects requests.
func (h *EventsHandler) HandleGetEffects(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_effects"
	seq, err := pathSeq(r)
	if err != nil {
		fail(w, op, WrapKind(op, ErrBadRequest, errInvalidSeq))
		return
	}
	id := r.PathValue("id")
	cause, err := h.deps.Event(r.Context(), id, seq)
	if err != nil {
		fail(w, op, err)
		return
	}
	effects, err := h.deps.EffectsOf(r.Context(), id, seq)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, effectsResponse{
		Cause:   types.FromModel(cause.ObservedEvent),
		Effects: types.FromModels(effects),
	})
}
