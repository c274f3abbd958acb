// Package report summarizes the attribution facts of one session.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/okian/combatlink/internal/domain/attribution"
	"github.com/okian/combatlink/internal/domain/model"
)

// Spell is the JSON form of a spell identity.
type Spell struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func spellOf(s model.SpellIdentity) Spell { return Spell{ID: s.ID, Name: s.Name} }

func (s Spell) String() string { return model.SpellIdentity{ID: s.ID, Name: s.Name}.String() }

// TriggerSummary counts how the casts of one trigger were resolved.
// A cast is complete when every registered effect was attributed to it,
// partial when some were, and missed when none were.
type TriggerSummary struct {
	Trigger  Spell   `json:"trigger"`
	Effects  []Spell `json:"effects"`
	Casts    int     `json:"casts"`
	Complete int     `json:"complete"`
	Partial  int     `json:"partial"`
	Missed   int     `json:"missed"`
}

type KindCount struct {
	Spell Spell `json:"spell"`
	Count int   `json:"count"`
}

type UnconsumedCause struct {
	Seq       int64   `json:"seq"`
	Timestamp int64   `json:"ts"`
	Spell     Spell   `json:"spell"`
	Missing   []Spell `json:"missing"`
	Reason    string  `json:"reason"`
}

// Report is the session-level attribution summary.
type Report struct {
	SessionID    string `json:"session_id"`
	Finished     bool   `json:"finished"`
	Events       int    `json:"events"`
	Causes       int    `json:"causes"`
	Attributed   int    `json:"attributed"`
	Unattributed int    `json:"unattributed"`
	Expired      int    `json:"expired"`
	Unconsumed   int    `json:"unconsumed"`
	Pending      int    `json:"pending"`
	Duplicates   int    `json:"duplicates"`
	// Rate is attributed / (attributed + unattributed); 0 when no effects
	// were observed.
	Rate float64 `json:"attribution_rate"`

	Triggers           []TriggerSummary  `json:"triggers"`
	UnattributedByKind []KindCount       `json:"unattributed_by_kind"`
	UnconsumedCauses   []UnconsumedCause `json:"unconsumed_causes"`
}

// Build assembles the report from a session's table, index and stats.
func Build(sessionID string, finished bool, table *attribution.Table, index *attribution.Index, stats attribution.Stats) Report {
	r := Report{
		SessionID:    sessionID,
		Finished:     finished,
		Events:       stats.Observed,
		Causes:       stats.Causes,
		Attributed:   stats.Attributed,
		Unattributed: stats.Unattributed,
		Expired:      stats.Expired,
		Unconsumed:   stats.Unconsumed,
		Pending:      stats.Pending,
		Duplicates:   stats.Duplicates,
	}
	if effects := stats.Attributed + stats.Unattributed; effects > 0 {
		r.Rate = float64(stats.Attributed) / float64(effects)
	}

	byTrigger := make(map[int64]*TriggerSummary)
	for _, rule := range table.Rules() {
		ts := TriggerSummary{Trigger: spellOf(rule.Trigger), Effects: spells(rule.Effects)}
		r.Triggers = append(r.Triggers, ts)
	}
	for i := range r.Triggers {
		byTrigger[r.Triggers[i].Trigger.ID] = &r.Triggers[i]
	}

	for _, e := range index.Events() {
		ts, ok := byTrigger[e.Kind.ID]
		if !ok {
			continue
		}
		ts.Casts++
		switch matched := len(index.EffectsOf(e)); {
		case matched == 0:
			ts.Missed++
		case matched >= len(ts.Effects):
			ts.Complete++
		default:
			ts.Partial++
		}
	}

	counts := make(map[int64]*KindCount)
	for _, e := range index.Unattributed() {
		kc, ok := counts[e.Kind.ID]
		if !ok {
			kc = &KindCount{Spell: spellOf(resolve(table, e.Kind))}
			counts[e.Kind.ID] = kc
		}
		kc.Count++
	}
	for _, kc := range counts {
		r.UnattributedByKind = append(r.UnattributedByKind, *kc)
	}
	sort.Slice(r.UnattributedByKind, func(i, j int) bool {
		a, b := r.UnattributedByKind[i], r.UnattributedByKind[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Spell.ID < b.Spell.ID
	})

	for _, u := range index.Unconsumed() {
		r.UnconsumedCauses = append(r.UnconsumedCauses, UnconsumedCause{
			Seq:       u.Cause.Seq,
			Timestamp: u.Cause.Timestamp,
			Spell:     spellOf(resolve(table, u.Cause.Kind)),
			Missing:   spells(u.Missing),
			Reason:    string(u.Reason),
		})
	}
	return r
}

// resolve prefers the table's name for a spell when the event carries none.
func resolve(table *attribution.Table, s model.SpellIdentity) model.SpellIdentity {
	if s.Name != "" {
		return s
	}
	if known, ok := table.Spell(s.ID); ok {
		return known
	}
	return s
}

func spells(in []model.SpellIdentity) []Spell {
	out := make([]Spell, len(in))
	for i, s := range in {
		out[i] = spellOf(s)
	}
	return out
}

// WriteText renders r as a fixed-layout plain-text report.
func WriteText(w io.Writer, r Report) error {
	var b strings.Builder

	state := "live"
	if r.Finished {
		state = "finished"
	}
	fmt.Fprintf(&b, "session %s (%s)\n", r.SessionID, state)
	fmt.Fprintf(&b, "events %d  causes %d  attributed %d  unattributed %d\n",
		r.Events, r.Causes, r.Attributed, r.Unattributed)
	fmt.Fprintf(&b, "pending %d  expired %d  unconsumed %d  duplicates %d\n",
		r.Pending, r.Expired, r.Unconsumed, r.Duplicates)
	if r.Attributed+r.Unattributed == 0 {
		b.WriteString("attribution rate n/a\n")
	} else {
		fmt.Fprintf(&b, "attribution rate %.1f%%\n", r.Rate*100)
	}

	b.WriteString("\ntriggers\n")
	fmt.Fprintf(&b, "  %-40s %6s %9s %8s %7s\n", "spell", "casts", "complete", "partial", "missed")
	for _, t := range r.Triggers {
		fmt.Fprintf(&b, "  %-40s %6d %9d %8d %7d\n", t.Trigger, t.Casts, t.Complete, t.Partial, t.Missed)
	}

	if len(r.UnattributedByKind) > 0 {
		b.WriteString("\nunattributed effects\n")
		for _, kc := range r.UnattributedByKind {
			fmt.Fprintf(&b, "  %-40s %6d\n", kc.Spell, kc.Count)
		}
	}

	if len(r.UnconsumedCauses) > 0 {
		b.WriteString("\nunconsumed causes\n")
		for _, u := range r.UnconsumedCauses {
			missing := make([]string, len(u.Missing))
			for i, m := range u.Missing {
				missing[i] = m.String()
			}
			fmt.Fprintf(&b, "  seq %d at %dms %s [%s] missing %s\n",
				u.Seq, u.Timestamp, u.Spell, u.Reason, strings.Join(missing, ", "))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
