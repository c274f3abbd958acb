package testevents

import (
	"math/rand/v2"

	"github.com/okian/combatlink/internal/domain/attribution"
	"github.com/okian/combatlink/internal/domain/model"
	"github.com/okian/combatlink/internal/domain/spells"
)

// Generator shape constants.
const (
	defaultActors   = 3
	targetActorID   = 900
	castGapMs       = 250
	effectGapMs     = 15
	fillerPercent   = 20
	orphanPercent   = 5
	firstActorID    = 1
	maxEffectJitter = 40
)

// GenerateOptions shapes a synthetic combat log.
type GenerateOptions struct {
	Seed   uint64
	Casts  int
	Actors int
	Rules  []attribution.Rule // defaults to the Windwalker ruleset
}

// Log is a synthetic combat log with its known attribution answers.
type Log struct {
	Events []model.ObservedEvent
	// Causes maps every effect seq to the seq of the cast that produced it.
	Causes map[int64]int64
	// Orphans lists effect seqs emitted with no cast to match.
	Orphans []int64
	Filler  int
}

// Generate builds a deterministic log: the same options always yield the
// same events. Each cast is followed by all of its effects before the same
// actor casts again, so every effect has exactly one correct cause.
func Generate(opts GenerateOptions) Log {
	if opts.Actors <= 0 {
		opts.Actors = defaultActors
	}
	if len(opts.Rules) == 0 {
		opts.Rules = spells.Windwalker()
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)) //nolint:gosec // reproducible test data

	out := Log{Causes: make(map[int64]int64)}
	var seq, now int64
	emit := func(kind model.SpellIdentity, ts, source int64) int64 {
		seq++
		out.Events = append(out.Events, model.ObservedEvent{
			Kind:          kind,
			Timestamp:     ts,
			SourceActorID: source,
			TargetActorID: targetActorID,
			Seq:           seq,
		})
		return seq
	}

	for i := 0; i < opts.Casts; i++ {
		actor := int64(firstActorID + i%opts.Actors)
		rule := opts.Rules[rng.IntN(len(opts.Rules))]

		if rng.IntN(100) < fillerPercent {
			emit(spells.TigerPalm, now, actor)
			out.Filler++
		}

		cause := emit(rule.Trigger, now, actor)
		ts := now
		for _, slot := range rng.Perm(len(rule.Effects)) {
			ts += effectGapMs + int64(rng.IntN(maxEffectJitter))
			out.Causes[emit(rule.Effects[slot], ts, actor)] = cause
		}

		if rng.IntN(100) < orphanPercent {
			orphan := opts.Rules[rng.IntN(len(opts.Rules))]
			ts += effectGapMs
			out.Orphans = append(out.Orphans, emit(orphan.Effects[0], ts, actor))
		}
		now = ts + castGapMs
	}
	return out
}
