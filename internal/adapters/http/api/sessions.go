package api

import (
	"net/http"
	"strconv"
)

const defaultArchiveLimit = 50

// SessionsHandler handles session lifecycle requests.
type SessionsHandler struct {
	deps SessionDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// HandleOpen handles POST /sessions requests.
func (h *SessionsHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	id, err := h.deps.OpenSession(r.Context())
	if err != nil {
		fail(w, "api.open_session", err)
		return
	}
	writeJSON(w, http.StatusCreated, openResponse{SessionID: id})
}

// HandleList handles GET /sessions requests.
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Sessions(r.Context()))
}

// HandleFinish handles POST /sessions/{id}/finish requests.
func (h *SessionsHandler) HandleFinish(w http.ResponseWriter, r *http.Request) {
	rep, err := h.deps.FinishSession(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, "api.finish_session", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleReport handles GET /sessions/{id}/report requests.
func (h *SessionsHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.deps.Report(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, "api.report", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleArchived handles GET /reports?limit=N requests.
func (h *SessionsHandler) HandleArchived(w http.ResponseWriter, r *http.Request) {
	const op = "api.archived"
	limit := defaultArchiveLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			fail(w, op, WrapKind(op, ErrBadRequest, errInvalidLimit))
			return
		}
		limit = n
	}
	entries, err := h.deps.Archived(r.Context(), limit)
	if err != nil {
		fail(w, op, err)
		return
	}
	if entries == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
