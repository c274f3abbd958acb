package spells

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/okian/combatlink/internal/domain/attribution"
	"github.com/okian/combatlink/internal/domain/model"
)

// File is the layout of a ruleset file, in YAML:
//
//	rules:
//	  - trigger: {id: 113656, name: Fists of Fury}
//	    effects:
//	      - {id: 117418, name: Fists of Fury Damage}
//
// CUE files use the same field names.
type File struct {
	Rules []RuleSpec `yaml:"rules" json:"rules"`
}

type RuleSpec struct {
	Trigger SpellSpec   `yaml:"trigger" json:"trigger"`
	Effects []SpellSpec `yaml:"effects" json:"effects"`
}

type SpellSpec struct {
	ID   int64  `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

func (s SpellSpec) identity() (model.SpellIdentity, error) {
	if s.ID <= 0 {
		return model.SpellIdentity{}, fmt.Errorf("%w: %d", ErrInvalidSpell, s.ID)
	}
	return model.SpellIdentity{ID: s.ID, Name: normalizeName(s.Name)}, nil
}

// normalizeName trims and NFC-normalizes a spell name so the same name typed
// with combining marks and precomposed characters compares equal.
func normalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ParseRules decodes a YAML ruleset. Unknown keys are rejected.
func ParseRules(r io.Reader) ([]attribution.Rule, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoRules
		}
		return nil, fmt.Errorf("decode ruleset: %w", err)
	}
	return f.compile()
}

func (f *File) compile() ([]attribution.Rule, error) {
	if len(f.Rules) == 0 {
		return nil, ErrNoRules
	}

	rules := make([]attribution.Rule, 0, len(f.Rules))
	for i, spec := range f.Rules {
		trigger, err := spec.Trigger.identity()
		if err != nil {
			return nil, fmt.Errorf("rule %d trigger: %w", i, err)
		}
		effects := make([]model.SpellIdentity, 0, len(spec.Effects))
		for j, e := range spec.Effects {
			effect, err := e.identity()
			if err != nil {
				return nil, fmt.Errorf("rule %d effect %d: %w", i, j, err)
			}
			effects = append(effects, effect)
		}
		rules = append(rules, attribution.Rule{Trigger: trigger, Effects: effects})
	}
	return rules, nil
}

// LoadRules reads a ruleset from path. Files ending in .cue are read as CUE,
// everything else as YAML.
func LoadRules(path string) ([]attribution.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRulesNotFound, path)
		}
		return nil, fmt.Errorf("open ruleset: %w", err)
	}

	var rules []attribution.Rule
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		rules, err = ParseCUE(data, path)
	} else {
		rules, err = ParseRules(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// LoadTable builds a sealed table from path, or the Windwalker table when
// path is empty.
func LoadTable(path string) (*attribution.Table, error) {
	if path == "" {
		return attribution.Build(Windwalker())
	}
	rules, err := LoadRules(path)
	if err != nil {
		return nil, err
	}
	return attribution.Build(rules)
}

// Marshal renders rules in the same YAML layout ParseRules accepts.
func Marshal(rules []attribution.Rule) ([]byte, error) {
	f := File{Rules: make([]RuleSpec, len(rules))}
	for i, r := range rules {
		spec := RuleSpec{
			Trigger: SpellSpec{ID: r.Trigger.ID, Name: r.Trigger.Name},
			Effects: make([]SpellSpec, len(r.Effects)),
		}
		for j, e := range r.Effects {
			spec.Effects[j] = SpellSpec{ID: e.ID, Name: e.Name}
		}
		f.Rules[i] = spec
	}
	return yaml.Marshal(&f)
}
