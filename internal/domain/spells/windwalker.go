// Package spells holds the static spell data attribution rulesets are built
// from: the compiled-in Windwalker Monk table and a YAML loader for custom
// rulesets.
package spells

import (
	"github.com/okian/combatlink/internal/domain/attribution"
	"github.com/okian/combatlink/internal/domain/model"
)

// Windwalker Monk casts and the damage spells they produce.
var (
	FistsOfFuryCast   = model.SpellIdentity{ID: 113656, Name: "Fists of Fury"}
	FistsOfFuryDamage = model.SpellIdentity{ID: 117418, Name: "Fists of Fury Damage"}

	WhirlingDragonPunch     = model.SpellIdentity{ID: 152175, Name: "Whirling Dragon Punch"}
	WhirlingDragonPunchTick = model.SpellIdentity{ID: 158221, Name: "Whirling Dragon Punch Tick"}

	SpinningCraneKick       = model.SpellIdentity{ID: 101546, Name: "Spinning Crane Kick"}
	SpinningCraneKickDamage = model.SpellIdentity{ID: 107270, Name: "Spinning Crane Kick Damage"}

	ChiBurst       = model.SpellIdentity{ID: 123986, Name: "Chi Burst"}
	ChiBurstDamage = model.SpellIdentity{ID: 148135, Name: "Chi Burst Damage"}

	ChiWave       = model.SpellIdentity{ID: 115098, Name: "Chi Wave"}
	ChiWaveDamage = model.SpellIdentity{ID: 132467, Name: "Chi Wave Damage"}

	RisingSunKick       = model.SpellIdentity{ID: 107428, Name: "Rising Sun Kick"}
	RisingSunKickSecond = model.SpellIdentity{ID: 185099, Name: "Rising Sun Kick Second"}

	FaelineStompCast          = model.SpellIdentity{ID: 388193, Name: "Faeline Stomp"}
	FaelineStompPulseDamage   = model.SpellIdentity{ID: 345727, Name: "Faeline Stomp Pulse Damage"}
	FaelineStompDamageAndHeal = model.SpellIdentity{ID: 327264, Name: "Faeline Stomp Damage and Heal"}

	// TigerPalm has no rule; generators use it as filler traffic.
	TigerPalm = model.SpellIdentity{ID: 100780, Name: "Tiger Palm"}
)

// Windwalker returns the cast -> damage rules in their canonical order.
func Windwalker() []attribution.Rule {
	one := func(trigger, effect model.SpellIdentity) attribution.Rule {
		return attribution.Rule{Trigger: trigger, Effects: []model.SpellIdentity{effect}}
	}
	return []attribution.Rule{
		one(FistsOfFuryCast, FistsOfFuryDamage),
		one(WhirlingDragonPunch, WhirlingDragonPunchTick),
		one(SpinningCraneKick, SpinningCraneKickDamage),
		one(ChiBurst, ChiBurstDamage),
		one(ChiWave, ChiWaveDamage),
		one(RisingSunKick, RisingSunKickSecond),
		{
			Trigger: FaelineStompCast,
			Effects: []model.SpellIdentity{FaelineStompPulseDamage, FaelineStompDamageAndHeal},
		},
	}
}

// WindwalkerTable builds and seals the Windwalker table.
func WindwalkerTable() *attribution.Table {
	return attribution.MustBuild(Windwalker())
}
