package api

import (
	"net/http"

	"github.com/okian/combatlink/internal/domain/types"
)

// RulesHandler serves the active ruleset.
type RulesHandler struct {
	deps RulesDependencies
}

// NewRulesHandler creates a new rules handler.
func NewRulesHandler(deps RulesDependencies) *RulesHandler {
	return &RulesHandler{deps: deps}
}

// HandleGetRules handles GET /rules requests.
func (h *RulesHandler) HandleGetRules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, types.FromRules(h.deps.Rules()))
}
