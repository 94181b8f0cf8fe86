// Package pipeline turns the stage declarations of a config.Model into a map
// chain of observed sequences over cty row values.
//
// Every stage is an HCL expression evaluated once per row with the row
// bound to `row`. The headers stage is evaluated once per section with the
// section's first row bound to `row`, its index to `section` and its row
// count to `rows`. A stage that fails to evaluate, or evaluates to null,
// leaves the slot absent.
package pipeline

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/specialistvlad/observedseq/internal/config"
)

// Functions returns the function table available to stage expressions.
func Functions() map[string]function.Function {
	return map[string]function.Function{
		"abs":       stdlib.AbsoluteFunc,
		"coalesce":  stdlib.CoalesceFunc,
		"concat":    stdlib.ConcatFunc,
		"floor":     stdlib.FloorFunc,
		"format":    stdlib.FormatFunc,
		"join":      stdlib.JoinFunc,
		"length":    stdlib.LengthFunc,
		"lower":     stdlib.LowerFunc,
		"max":       stdlib.MaxFunc,
		"min":       stdlib.MinFunc,
		"substr":    stdlib.SubstrFunc,
		"trimspace": stdlib.TrimSpaceFunc,
		"upper":     stdlib.UpperFunc,
	}
}

// Stage is a compiled stage expression.
type Stage struct {
	name   string
	cached bool
	typ    cty.Type
	expr   hcl.Expression
	funcs  map[string]function.Function
}

// Compile prepares st for evaluation.
func Compile(st *config.Stage) *Stage {
	typ := st.Type
	if typ == cty.NilType {
		typ = cty.DynamicPseudoType
	}
	return &Stage{
		name:   st.Name,
		cached: st.Cached,
		typ:    typ,
		expr:   st.Value,
		funcs:  Functions(),
	}
}

// Name returns the stage name.
func (s *Stage) Name() string { return s.name }

// Eval evaluates the stage with row bound to `row` and any extra variables.
// A null result reports false.
func (s *Stage) Eval(row cty.Value, extra map[string]cty.Value) (cty.Value, bool, error) {
	vars := make(map[string]cty.Value, len(extra)+1)
	for k, v := range extra {
		vars[k] = v
	}
	vars["row"] = row

	val, diags := s.expr.Value(&hcl.EvalContext{Variables: vars, Functions: s.funcs})
	if diags.HasErrors() {
		return cty.NilVal, false, fmt.Errorf("stage %q: %w", s.name, diags)
	}
	if s.typ != cty.DynamicPseudoType {
		converted, err := convert.Convert(val, s.typ)
		if err != nil {
			return cty.NilVal, false, fmt.Errorf("stage %q: cannot convert %s to %s: %w", s.name, val.Type().FriendlyName(), s.typ.FriendlyName(), err)
		}
		val = converted
	}
	if val.IsNull() {
		return cty.NilVal, false, nil
	}
	return val, true, nil
}
