// Package attribution correlates effect events (damage ticks, heals) with
// the cause events (casts) that produced them.
//
// A Table declares which trigger spell produces which effect spells. A
// Matcher consumes one ordered combat log against a sealed Table and records
// every cause/effect link in an Index that downstream analysis queries.
package attribution

import (
	"sync/atomic"

	"github.com/okian/combatlink/internal/domain/model"
)

// Rule maps one trigger to the effect kinds it is expected to produce.
type Rule struct {
	Trigger model.SpellIdentity
	Effects []model.SpellIdentity
}

// Table is the static trigger -> effects registry with its inverted lookup.
//
// Register is not safe for concurrent use. Once sealed the table is
// read-only and may be shared by any number of matchers.
type Table struct {
	sealed atomic.Bool

	rules            []Rule
	triggerToEffects map[int64][]model.SpellIdentity
	effectToTrigger  map[int64]model.SpellIdentity
	// effectSlot is the position of an effect within its trigger's list.
	effectSlot map[int64]int
	spells     map[int64]model.SpellIdentity
}

// NewTable returns an empty, unsealed table.
func NewTable() *Table {
	return &Table{
		triggerToEffects: make(map[int64][]model.SpellIdentity),
		effectToTrigger:  make(map[int64]model.SpellIdentity),
		effectSlot:       make(map[int64]int),
		spells:           make(map[int64]model.SpellIdentity),
	}
}

// Build registers every rule in order and seals the table.
func Build(rules []Rule) (*Table, error) {
	t := NewTable()
	for _, r := range rules {
		if err := t.Register(r.Trigger, r.Effects); err != nil {
			return nil, err
		}
	}
	t.Seal()
	return t, nil
}

// MustBuild is Build for compiled-in rulesets; it panics on a malformed table.
func MustBuild(rules []Rule) *Table {
	t, err := Build(rules)
	if err != nil {
		panic(err)
	}
	return t
}

// Register adds a trigger and its effects. The rule is validated as a whole
// before the table changes, so a rejected rule leaves no partial state.
func (t *Table) Register(trigger model.SpellIdentity, effects []model.SpellIdentity) error {
	if t.sealed.Load() {
		return ruleError(trigger, ErrTableSealed)
	}
	if len(effects) == 0 {
		return ruleError(trigger, ErrEmptyEffectList)
	}
	if _, exists := t.triggerToEffects[trigger.ID]; exists {
		return ruleError(trigger, ErrDuplicateTrigger)
	}

	seen := make(map[int64]struct{}, len(effects))
	for _, effect := range effects {
		if effect.ID == trigger.ID {
			return effectError(trigger, effect, ErrSelfAttribution)
		}
		if _, dup := seen[effect.ID]; dup {
			return effectError(trigger, effect, ErrDuplicateEffect)
		}
		seen[effect.ID] = struct{}{}
		if owner, claimed := t.effectToTrigger[effect.ID]; claimed {
			err := effectError(trigger, effect, ErrEffectClaimed)
			err.Owner = &owner
			return err
		}
	}

	list := make([]model.SpellIdentity, len(effects))
	copy(list, effects)
	t.triggerToEffects[trigger.ID] = list
	for slot, effect := range list {
		t.effectToTrigger[effect.ID] = trigger
		t.effectSlot[effect.ID] = slot
		t.remember(effect)
	}
	t.remember(trigger)
	t.rules = append(t.rules, Rule{Trigger: trigger, Effects: list})
	return nil
}

// remember keeps the first name seen for a spell id.
func (t *Table) remember(s model.SpellIdentity) {
	if _, ok := t.spells[s.ID]; !ok {
		t.spells[s.ID] = s
	}
}

// Seal makes the table read-only. Sealing twice is harmless.
func (t *Table) Seal() { t.sealed.Store(true) }

// Sealed reports whether Register is still allowed.
func (t *Table) Sealed() bool { return t.sealed.Load() }

// EffectsOf returns the effects registered for triggerID in registration
// order. Unknown triggers yield an empty slice, not an error.
func (t *Table) EffectsOf(triggerID int64) []model.SpellIdentity {
	effects := t.triggerToEffects[triggerID]
	out := make([]model.SpellIdentity, len(effects))
	copy(out, effects)
	return out
}

// TriggerOf returns the trigger whose effect list contains effectID.
func (t *Table) TriggerOf(effectID int64) (model.SpellIdentity, bool) {
	trigger, ok := t.effectToTrigger[effectID]
	return trigger, ok
}

// IsTrigger reports whether id is registered as a trigger.
func (t *Table) IsTrigger(id int64) bool {
	_, ok := t.triggerToEffects[id]
	return ok
}

// Spell resolves a spell id to the identity registered in the table.
func (t *Table) Spell(id int64) (model.SpellIdentity, bool) {
	s, ok := t.spells[id]
	return s, ok
}

// Rules returns a copy of every rule in registration order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	for i, r := range t.rules {
		effects := make([]model.SpellIdentity, len(r.Effects))
		copy(effects, r.Effects)
		out[i] = Rule{Trigger: r.Trigger, Effects: effects}
	}
	return out
}

// Len returns the number of registered triggers.
func (t *Table) Len() int { return len(t.rules) }

func (t *Table) effects(triggerID int64) []model.SpellIdentity { return t.triggerToEffects[triggerID] }

func (t *Table) slot(effectID int64) int { return t.effectSlot[effectID] }
