package pipeline

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/observedseq/internal/config"
	"github.com/specialistvlad/observedseq/internal/lazy"
	"github.com/specialistvlad/observedseq/internal/observed"
)

// ErrorFunc receives stage evaluation failures. The failing slot is left
// absent either way.
type ErrorFunc func(stage string, err error)

// Option configures Build.
type Option func(*options)

type options struct {
	onError ErrorFunc
	seqOpts []observed.Option
}

// WithErrorHandler installs a handler for evaluation failures.
func WithErrorHandler(fn ErrorFunc) Option {
	return func(o *options) { o.onError = fn }
}

// WithSequenceOptions passes opts to every stage sequence.
func WithSequenceOptions(opts ...observed.Option) Option {
	return func(o *options) { o.seqOpts = append(o.seqOpts, opts...) }
}

// Pipeline is a built map chain.
type Pipeline struct {
	root    *observed.Sequence[cty.Value]
	stages  []*observed.Sequence[cty.Value]
	names   []string
	headers *lazy.Generated[cty.Value]
}

// Build maps root through every stage in order and projects headers from
// root when a headers stage is given.
func Build(root *observed.Sequence[cty.Value], stages []*config.Stage, headers *config.Stage, opts ...Option) (*Pipeline, error) {
	if root == nil {
		return nil, fmt.Errorf("pipeline: nil root")
	}
	o := options{onError: func(string, error) {}}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Pipeline{root: root}
	prev := root
	for _, st := range stages {
		compiled := Compile(st)
		next := observed.MapMaybe(prev, rowFunc(compiled, o.onError), compiled.cached, o.seqOpts...)
		p.stages = append(p.stages, next)
		p.names = append(p.names, compiled.name)
		prev = next
	}
	if headers != nil {
		p.headers = observed.MapSections(root, headerFunc(Compile(headers), o.onError))
	}
	return p, nil
}

func rowFunc(st *Stage, onError ErrorFunc) func(cty.Value) (cty.Value, bool) {
	return func(row cty.Value) (cty.Value, bool) {
		val, ok, err := st.Eval(row, nil)
		if err != nil {
			onError(st.name, err)
			return cty.NilVal, false
		}
		return val, ok
	}
}

func headerFunc(st *Stage, onError ErrorFunc) func(int, lazy.Seq[cty.Value]) (cty.Value, bool) {
	return func(section int, rows lazy.Seq[cty.Value]) (cty.Value, bool) {
		first := cty.NullVal(cty.DynamicPseudoType)
		if rows.Count() > 0 {
			if v, ok := rows.Get(0); ok {
				first = v
			}
		}
		val, ok, err := st.Eval(first, map[string]cty.Value{
			"section": cty.NumberIntVal(int64(section)),
			"rows":    cty.NumberIntVal(int64(rows.Count())),
		})
		if err != nil {
			onError(st.name, err)
			return cty.NilVal, false
		}
		return val, ok
	}
}

// Root returns the sequence the pipeline was built on.
func (p *Pipeline) Root() *observed.Sequence[cty.Value] { return p.root }

// Tail returns the last stage, or the root when there are no stages.
func (p *Pipeline) Tail() *observed.Sequence[cty.Value] {
	if len(p.stages) == 0 {
		return p.root
	}
	return p.stages[len(p.stages)-1]
}

// Stage returns the named stage sequence.
func (p *Pipeline) Stage(name string) (*observed.Sequence[cty.Value], bool) {
	for i, n := range p.names {
		if n == name {
			return p.stages[i], true
		}
	}
	return nil, false
}

// Stages returns the stage names in chain order.
func (p *Pipeline) Stages() []string {
	return append([]string(nil), p.names...)
}

// Headers returns the per-section header projection, or nil.
func (p *Pipeline) Headers() *lazy.Generated[cty.Value] { return p.headers }

// Release drops every stage, newest first. The root is left to its owner.
func (p *Pipeline) Release() {
	for i := len(p.stages) - 1; i >= 0; i-- {
		p.stages[i].Release()
	}
}
