package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Model is the unified, format-agnostic representation of the application
// configuration: one watched source, the map stages applied to it, an
// optional section header projection and the HTTP server settings.
type Model struct {
	Source  *Source
	Stages  []*Stage
	Headers *Stage
	Server  *Server
}

// Source is the format-agnostic representation of a `source` block.
type Source struct {
	Table   string
	Key     string
	Section string
	OrderBy []string
	Where   string
}

// Stage is one value-transforming step of the map chain.
type Stage struct {
	Name   string
	Cached bool
	// Type is the cty type every produced value is converted to.
	// cty.DynamicPseudoType leaves values as evaluated.
	Type  cty.Type
	Value hcl.Expression
}

// Server holds the HTTP surface settings.
type Server struct {
	Listen string
}

// Validate reports configuration that cannot be wired.
func (m *Model) Validate() error {
	if m.Source == nil {
		return fmt.Errorf("no source block defined")
	}
	seen := make(map[string]struct{}, len(m.Stages))
	for _, st := range m.Stages {
		if st.Value == nil {
			return fmt.Errorf("stage %q: value is required", st.Name)
		}
		if _, dup := seen[st.Name]; dup {
			return fmt.Errorf("stage %q is defined more than once", st.Name)
		}
		seen[st.Name] = struct{}{}
	}
	if m.Headers != nil && m.Headers.Value == nil {
		return fmt.Errorf("headers: value is required")
	}
	return nil
}
