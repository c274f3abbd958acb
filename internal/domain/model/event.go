// Package model contains domain models passed between layers.
package model

import "fmt"

// SpellIdentity names a distinct ability or effect kind. IDs are unique
// within one ruleset; values are never mutated after startup.
type SpellIdentity struct {
	ID   int64
	Name string
}

func (s SpellIdentity) String() string {
	if s.Name == "" {
		return fmt.Sprintf("#%d", s.ID)
	}
	return fmt.Sprintf("%s (#%d)", s.Name, s.ID)
}

// ObservedEvent is one combat log entry as delivered by the log loader.
type ObservedEvent struct {
	Kind          SpellIdentity
	Timestamp     int64 // milliseconds from encounter start, >= 0
	SourceActorID int64
	TargetActorID int64
	Seq           int64 // unique within a session
}

// AttributionResult links a cause event to one effect event it produced.
type AttributionResult struct {
	Cause  ObservedEvent
	Effect ObservedEvent
}

// AnnotatedEvent is an observed event plus the attribution facts recorded for it.
type AnnotatedEvent struct {
	ObservedEvent
	CauseSeq   *int64  // set when the event was attributed to a cause
	EffectSeqs []int64 // effects attributed to this event, in observation order
}

// UnconsumedReason explains why a cause left the pending queue incomplete.
type UnconsumedReason string

const (
	ReasonEndOfStream UnconsumedReason = "end_of_stream"
	ReasonExpired     UnconsumedReason = "expired"
)

// Unconsumed reports a cause whose expected effects were not all observed.
type Unconsumed struct {
	Cause   ObservedEvent
	Missing []SpellIdentity
	Reason  UnconsumedReason
}

// Batch is the unit of ingestion: an ordered slice of events for one session.
type Batch struct {
	SessionID string
	BatchID   string
	Events    []ObservedEvent
}
