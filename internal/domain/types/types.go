// Package types contains the wire types shared by the HTTP API and the CLI.
package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okian/combatlink/internal/domain/attribution"
	"github.com/okian/combatlink/internal/domain/model"
)

var ErrInvalidEvent = errors.New("invalid event")

// Event is the JSON form of one combat log entry.
type Event struct {
	Seq       int64  `json:"seq"`
	SpellID   int64  `json:"spell_id"`
	SpellName string `json:"spell_name,omitempty"`
	Timestamp int64  `json:"ts"`
	SourceID  int64  `json:"source_id"`
	TargetID  int64  `json:"target_id"`
}

// UnmarshalJSON decodes an event strictly: unknown fields are rejected and
// seq must be present, since events without one would all collide on 0.
func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	var aux struct {
		plain
		Seq *int64 `json:"seq"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&aux); err != nil {
		return err
	}
	if aux.Seq == nil {
		return fmt.Errorf("%w: seq is required", ErrInvalidEvent)
	}
	*e = Event(aux.plain)
	e.Seq = *aux.Seq
	return nil
}

// Validate checks the fields the matcher relies on.
func (e Event) Validate() error {
	switch {
	case e.SpellID <= 0:
		return fmt.Errorf("%w: seq %d: spell_id must be positive", ErrInvalidEvent, e.Seq)
	case e.Timestamp < 0:
		return fmt.Errorf("%w: seq %d: ts must not be negative", ErrInvalidEvent, e.Seq)
	}
	return nil
}

func (e Event) ToModel() model.ObservedEvent {
	return model.ObservedEvent{
		Kind:          model.SpellIdentity{ID: e.SpellID, Name: e.SpellName},
		Timestamp:     e.Timestamp,
		SourceActorID: e.SourceID,
		TargetActorID: e.TargetID,
		Seq:           e.Seq,
	}
}

func FromModel(e model.ObservedEvent) Event {
	return Event{
		Seq:       e.Seq,
		SpellID:   e.Kind.ID,
		SpellName: e.Kind.Name,
		Timestamp: e.Timestamp,
		SourceID:  e.SourceActorID,
		TargetID:  e.TargetActorID,
	}
}

// ToModels validates and converts a batch, stopping at the first bad event.
func ToModels(events []Event) ([]model.ObservedEvent, error) {
	out := make([]model.ObservedEvent, len(events))
	for i, e := range events {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		out[i] = e.ToModel()
	}
	return out, nil
}

func FromModels(events []model.ObservedEvent) []Event {
	out := make([]Event, len(events))
	for i, e := range events {
		out[i] = FromModel(e)
	}
	return out
}

// AnnotatedEvent is an event with its attribution links.
type AnnotatedEvent struct {
	Event
	CauseSeq   *int64  `json:"cause_seq,omitempty"`
	EffectSeqs []int64 `json:"effect_seqs,omitempty"`
}

// eventFields has Event's fields without its methods.
type eventFields Event

// UnmarshalJSON decodes the event and its links. It replaces the strict
// Event decoder promoted through embedding, which would reject the link
// fields.
func (e *AnnotatedEvent) UnmarshalJSON(data []byte) error {
	var aux struct {
		eventFields
		CauseSeq   *int64  `json:"cause_seq"`
		EffectSeqs []int64 `json:"effect_seqs"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*e = AnnotatedEvent{Event: Event(aux.eventFields), CauseSeq: aux.CauseSeq, EffectSeqs: aux.EffectSeqs}
	return nil
}

func FromAnnotated(e model.AnnotatedEvent) AnnotatedEvent {
	return AnnotatedEvent{
		Event:      FromModel(e.ObservedEvent),
		CauseSeq:   e.CauseSeq,
		EffectSeqs: e.EffectSeqs,
	}
}

// Rule is the JSON form of an attribution rule.
type Rule struct {
	Trigger Spell   `json:"trigger"`
	Effects []Spell `json:"effects"`
}

type Spell struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func FromSpell(s model.SpellIdentity) Spell { return Spell{ID: s.ID, Name: s.Name} }

// FromRules converts a ruleset to its JSON form, preserving rule order.
func FromRules(rules []attribution.Rule) []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		effects := make([]Spell, len(r.Effects))
		for j, e := range r.Effects {
			effects[j] = FromSpell(e)
		}
		out[i] = Rule{Trigger: FromSpell(r.Trigger), Effects: effects}
	}
	return out
}
