package attribution

import (
	"context"
	"sort"

	"github.com/okian/combatlink/internal/domain/model"
	"github.com/okian/combatlink/pkg/logger"
)

// Outcome classifies what Observe did with an event.
type Outcome uint8

const (
	// OutcomePassThrough: the event is neither a trigger nor an effect.
	OutcomePassThrough Outcome = iota
	// OutcomePending: the event is a cause waiting for its effects.
	OutcomePending
	// OutcomeAttributed: the event is an effect linked to a pending cause.
	OutcomeAttributed
	// OutcomeUnattributed: the event is an effect with no eligible cause.
	OutcomeUnattributed
	// OutcomeDuplicate: an event with the same Seq was already observed.
	OutcomeDuplicate
	// OutcomeRejected: the stream was already finished.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomePassThrough:
		return "pass_through"
	case OutcomePending:
		return "pending"
	case OutcomeAttributed:
		return "attributed"
	case OutcomeUnattributed:
		return "unattributed"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Stats counts what a matcher has seen so far.
type Stats struct {
	Observed     int `json:"observed"`
	Causes       int `json:"causes"`
	Attributed   int `json:"attributed"`
	Unattributed int `json:"unattributed"`
	PassThrough  int `json:"pass_through"`
	Duplicates   int `json:"duplicates"`
	Rejected     int `json:"rejected"`
	Expired      int `json:"expired"`
	Unconsumed   int `json:"unconsumed"`
	Pending      int `json:"pending"`
}

// pendingKey partitions pending causes by caster so one player's effects
// never consume another player's casts.
type pendingKey struct {
	source  int64
	trigger int64
}

type pendingCause struct {
	event     model.ObservedEvent
	arrival   int
	matched   []bool // indexed by effect slot
	remaining int
}

func (p *pendingCause) missing(effects []model.SpellIdentity) []model.SpellIdentity {
	out := make([]model.SpellIdentity, 0, p.remaining)
	for slot, done := range p.matched {
		if !done {
			out = append(out, effects[slot])
		}
	}
	return out
}

// Matcher attributes effect events to cause events for one ordered stream.
//
// Matching is FIFO per (source actor, trigger): the oldest pending cause
// that is not newer than the effect, is within the window, and has not yet
// produced this effect kind wins. A cause leaves its queue once every one of
// its effect kinds has matched.
//
// A Matcher is not safe for concurrent use.
type Matcher struct {
	table  *Table
	window int64
	logger logger.Logger

	pending  map[pendingKey][]*pendingCause
	arrivals int
	latest   int64 // newest timestamp observed
	index    *Index
	stats    Stats
	finished bool
}

// NewMatcher creates a matcher over table and seals the table.
func NewMatcher(table *Table, opts ...Option) *Matcher {
	if table == nil {
		table = NewTable()
	}
	table.Seal()

	m := &Matcher{
		table:   table,
		pending: make(map[pendingKey][]*pendingCause),
		index:   newIndex(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Index exposes the query interface over everything matched so far.
func (m *Matcher) Index() *Index { return m.index }

// Table returns the ruleset the matcher runs against.
func (m *Matcher) Table() *Table { return m.table }

// Window returns the attribution window in ms (0 = unlimited).
func (m *Matcher) Window() int64 { return m.window }

// Stats returns a snapshot of the matcher counters.
func (m *Matcher) Stats() Stats {
	s := m.stats
	s.Pending = m.pendingLen()
	return s
}

// Finished reports whether Finish has been called.
func (m *Matcher) Finished() bool { return m.finished }

// Observe consumes one event. It never fails: unknown kinds pass through and
// effects without a cause are recorded as unattributed.
//
// An event that is both an effect and a trigger (chained rules) is first
// matched as an effect and then queued as a cause; the effect outcome is
// returned.
func (m *Matcher) Observe(ctx context.Context, e model.ObservedEvent) Outcome {
	if m.finished {
		m.stats.Rejected++
		return OutcomeRejected
	}
	if m.index.has(e.Seq) {
		m.stats.Duplicates++
		return OutcomeDuplicate
	}
	m.index.record(e)
	m.stats.Observed++
	if e.Timestamp > m.latest {
		m.latest = e.Timestamp
	}

	outcome := OutcomePassThrough
	if trigger, ok := m.table.TriggerOf(e.Kind.ID); ok {
		if cause, ok := m.match(ctx, trigger, e); ok {
			m.index.link(cause, e)
			m.stats.Attributed++
			outcome = OutcomeAttributed
		} else {
			m.index.miss(e)
			m.stats.Unattributed++
			outcome = OutcomeUnattributed
			m.debug(ctx, "effect without pending cause",
				logger.Int64("seq", e.Seq),
				logger.Int64("spell_id", e.Kind.ID),
				logger.Int64("source", e.SourceActorID),
				logger.Int64("ts", e.Timestamp),
			)
		}
	}

	if effects := m.table.effects(e.Kind.ID); len(effects) > 0 {
		m.push(e, len(effects))
		m.stats.Causes++
		if outcome == OutcomePassThrough {
			outcome = OutcomePending
		}
	}

	if outcome == OutcomePassThrough {
		m.stats.PassThrough++
	}
	return outcome
}

// ObserveAll feeds events in order and returns one outcome per event.
func (m *Matcher) ObserveAll(ctx context.Context, events []model.ObservedEvent) []Outcome {
	out := make([]Outcome, len(events))
	for i, e := range events {
		out[i] = m.Observe(ctx, e)
	}
	return out
}

// Finish ends the stream. Causes still pending are reported as unconsumed
// with the effect kinds that never arrived, in arrival order. With a window,
// causes already older than the window at the newest observed timestamp are
// reported as expired, whichever partition they sit in. Calling Finish again
// returns the same diagnostics without changing state.
func (m *Matcher) Finish(ctx context.Context) []model.Unconsumed {
	if m.finished {
		return m.index.Unconsumed()
	}
	m.finished = true

	var left []*pendingCause
	for _, queue := range m.pending {
		left = append(left, queue...)
	}
	sort.Slice(left, func(i, j int) bool { return left[i].arrival < left[j].arrival })

	flushed := 0
	for _, pc := range left {
		reason := model.ReasonEndOfStream
		if m.stale(pc, m.latest) {
			reason = model.ReasonExpired
			m.stats.Expired++
		} else {
			flushed++
		}
		m.index.leftover(model.Unconsumed{
			Cause:   pc.event,
			Missing: pc.missing(m.table.effects(pc.event.Kind.ID)),
			Reason:  reason,
		})
	}
	m.stats.Unconsumed += flushed
	m.pending = make(map[pendingKey][]*pendingCause)

	m.debug(ctx, "stream finished",
		logger.Int("observed", m.stats.Observed),
		logger.Int("attributed", m.stats.Attributed),
		logger.Int("unattributed", m.stats.Unattributed),
		logger.Int("unconsumed", flushed),
		logger.Int("expired", len(left)-flushed),
	)
	return m.index.Unconsumed()
}

func (m *Matcher) push(e model.ObservedEvent, effectCount int) {
	key := pendingKey{source: e.SourceActorID, trigger: e.Kind.ID}
	m.arrivals++
	m.pending[key] = append(m.pending[key], &pendingCause{
		event:     e,
		arrival:   m.arrivals,
		matched:   make([]bool, effectCount),
		remaining: effectCount,
	})
}

// match pops the oldest eligible cause for effect e of trigger.
func (m *Matcher) match(ctx context.Context, trigger model.SpellIdentity, e model.ObservedEvent) (model.ObservedEvent, bool) {
	key := pendingKey{source: e.SourceActorID, trigger: trigger.ID}
	queue := m.pending[key]
	if m.window > 0 {
		queue = m.expire(ctx, queue, e.Timestamp)
	}

	slot := m.table.slot(e.Kind.ID)
	for i, pc := range queue {
		if pc.event.Timestamp > e.Timestamp || pc.matched[slot] {
			continue
		}
		pc.matched[slot] = true
		pc.remaining--
		if pc.remaining == 0 {
			queue = append(queue[:i], queue[i+1:]...)
		}
		m.store(key, queue)
		return pc.event, true
	}
	m.store(key, queue)
	return model.ObservedEvent{}, false
}

// expire drops causes older than the window relative to now.
func (m *Matcher) expire(ctx context.Context, queue []*pendingCause, now int64) []*pendingCause {
	kept := queue[:0]
	for _, pc := range queue {
		if m.stale(pc, now) {
			m.index.leftover(model.Unconsumed{
				Cause:   pc.event,
				Missing: pc.missing(m.table.effects(pc.event.Kind.ID)),
				Reason:  model.ReasonExpired,
			})
			m.stats.Expired++
			m.debug(ctx, "pending cause expired",
				logger.Int64("seq", pc.event.Seq),
				logger.Int64("spell_id", pc.event.Kind.ID),
				logger.Int64("age_ms", now-pc.event.Timestamp),
			)
			continue
		}
		kept = append(kept, pc)
	}
	for i := len(kept); i < len(queue); i++ {
		queue[i] = nil
	}
	return kept
}

// stale reports whether pc is older than the window at now.
func (m *Matcher) stale(pc *pendingCause, now int64) bool {
	return m.window > 0 && pc.event.Timestamp <= now && now-pc.event.Timestamp > m.window
}

func (m *Matcher) store(key pendingKey, queue []*pendingCause) {
	if len(queue) == 0 {
		delete(m.pending, key)
		return
	}
	m.pending[key] = queue
}

func (m *Matcher) pendingLen() int {
	n := 0
	for _, queue := range m.pending {
		n += len(queue)
	}
	return n
}

func (m *Matcher) debug(ctx context.Context, msg string, fields ...logger.Field) {
	if m.logger != nil {
		m.logger.Debug(ctx, msg, fields...)
	}
}
