package spells

import "errors"

var (
	ErrNoRules       = errors.New("ruleset has no rules")
	ErrInvalidSpell  = errors.New("spell id must be positive")
	ErrRulesNotFound = errors.New("ruleset file not found")
)
