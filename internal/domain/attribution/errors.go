package attribution

import (
	"errors"
	"fmt"

	"github.com/okian/combatlink/internal/domain/model"
)

// Sentinel kinds for table construction errors. A malformed table is a
// programming or content error and must abort startup.
var (
	ErrDuplicateTrigger = errors.New("trigger already registered")
	ErrEmptyEffectList  = errors.New("effect list is empty")
	ErrDuplicateEffect  = errors.New("effect listed twice for one trigger")
	ErrEffectClaimed    = errors.New("effect already registered under another trigger")
	ErrSelfAttribution  = errors.New("trigger lists itself as an effect")
	ErrTableSealed      = errors.New("table is sealed")
)

// RuleError describes why a rule was rejected. It unwraps to one of the
// sentinel kinds above.
type RuleError struct {
	Op      string
	Trigger model.SpellIdentity
	Effect  *model.SpellIdentity
	// Owner is the trigger that already claims Effect (ErrEffectClaimed only).
	Owner *model.SpellIdentity
	Kind  error
}

func (e *RuleError) Error() string {
	switch {
	case e.Owner != nil && e.Effect != nil:
		return fmt.Sprintf("%s: %v: trigger %s, effect %s owned by %s", e.Op, e.Kind, e.Trigger, *e.Effect, *e.Owner)
	case e.Effect != nil:
		return fmt.Sprintf("%s: %v: trigger %s, effect %s", e.Op, e.Kind, e.Trigger, *e.Effect)
	default:
		return fmt.Sprintf("%s: %v: trigger %s", e.Op, e.Kind, e.Trigger)
	}
}

func (e *RuleError) Unwrap() error { return e.Kind }

func ruleError(trigger model.SpellIdentity, kind error) *RuleError {
	return &RuleError{Op: "attribution.register", Trigger: trigger, Kind: kind}
}

func effectError(trigger, effect model.SpellIdentity, kind error) *RuleError {
	e := ruleError(trigger, kind)
	e.Effect = &effect
	return e
}
