package attribution

import (
	"sort"

	"github.com/okian/combatlink/internal/domain/model"
)

// Index stores the attribution facts of one session, keyed by event Seq.
// It is written only by its Matcher; readers must synchronize externally
// when the matcher is still consuming events.
type Index struct {
	events       map[int64]model.ObservedEvent
	causeOf      map[int64]int64
	effectsOf    map[int64][]int64
	results      []model.AttributionResult
	unattributed []int64
	unconsumed   []model.Unconsumed
}

func newIndex() *Index {
	return &Index{
		events:    make(map[int64]model.ObservedEvent),
		causeOf:   make(map[int64]int64),
		effectsOf: make(map[int64][]int64),
	}
}

func (x *Index) has(seq int64) bool {
	_, ok := x.events[seq]
	return ok
}

func (x *Index) record(e model.ObservedEvent) { x.events[e.Seq] = e }

func (x *Index) link(cause, effect model.ObservedEvent) {
	x.causeOf[effect.Seq] = cause.Seq
	x.effectsOf[cause.Seq] = append(x.effectsOf[cause.Seq], effect.Seq)
	x.results = append(x.results, model.AttributionResult{Cause: cause, Effect: effect})
}

func (x *Index) miss(effect model.ObservedEvent) {
	x.unattributed = append(x.unattributed, effect.Seq)
}

func (x *Index) leftover(u model.Unconsumed) { x.unconsumed = append(x.unconsumed, u) }

// CauseOf returns the cause attributed to effect, looked up by effect.Seq.
func (x *Index) CauseOf(effect model.ObservedEvent) (model.ObservedEvent, bool) {
	causeSeq, ok := x.causeOf[effect.Seq]
	if !ok {
		return model.ObservedEvent{}, false
	}
	return x.events[causeSeq], true
}

// EffectsOf returns the effects attributed to cause in observation order.
func (x *Index) EffectsOf(cause model.ObservedEvent) []model.ObservedEvent {
	seqs := x.effectsOf[cause.Seq]
	out := make([]model.ObservedEvent, len(seqs))
	for i, seq := range seqs {
		out[i] = x.events[seq]
	}
	return out
}

// Event returns the observed event with the given sequence number.
func (x *Index) Event(seq int64) (model.ObservedEvent, bool) {
	e, ok := x.events[seq]
	return e, ok
}

// Events returns every observed event ordered by Seq.
func (x *Index) Events() []model.ObservedEvent {
	out := make([]model.ObservedEvent, 0, len(x.events))
	for _, e := range x.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Annotated returns the event together with its attribution links.
func (x *Index) Annotated(seq int64) (model.AnnotatedEvent, bool) {
	e, ok := x.events[seq]
	if !ok {
		return model.AnnotatedEvent{}, false
	}
	out := model.AnnotatedEvent{ObservedEvent: e}
	if causeSeq, ok := x.causeOf[seq]; ok {
		c := causeSeq
		out.CauseSeq = &c
	}
	if effects := x.effectsOf[seq]; len(effects) > 0 {
		out.EffectSeqs = append([]int64(nil), effects...)
	}
	return out, true
}

// Results returns every recorded cause/effect pair in match order.
func (x *Index) Results() []model.AttributionResult {
	return append([]model.AttributionResult(nil), x.results...)
}

// Unattributed returns effect events for which no pending cause existed.
func (x *Index) Unattributed() []model.ObservedEvent {
	out := make([]model.ObservedEvent, len(x.unattributed))
	for i, seq := range x.unattributed {
		out[i] = x.events[seq]
	}
	return out
}

// Unconsumed returns causes that left the pending queues incomplete: those
// expired by a later effect in expiry order, then those flushed by Finish in
// arrival order.
func (x *Index) Unconsumed() []model.Unconsumed {
	out := make([]model.Unconsumed, len(x.unconsumed))
	for i, u := range x.unconsumed {
		u.Missing = append([]model.SpellIdentity(nil), u.Missing...)
		out[i] = u
	}
	return out
}

// Len returns the number of distinct events recorded.
func (x *Index) Len() int { return len(x.events) }
