package spells

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/okian/combatlink/internal/domain/attribution"
)

//go:embed schema.cue
var schemaSource string

// ParseCUE decodes a CUE ruleset after unifying it with the ruleset schema,
// so type and range errors are reported with CUE positions.
func ParseCUE(data []byte, filename string) ([]attribution.Rule, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile ruleset schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile ruleset: %w", err)
	}
	if !v.LookupPath(cue.ParsePath("rules")).Exists() {
		return nil, ErrNoRules
	}

	v = schema.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate ruleset: %w", err)
	}

	var f File
	if err := v.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode ruleset: %w", err)
	}
	return f.compile()
}
