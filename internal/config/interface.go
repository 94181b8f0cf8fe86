package config

import (
	"context"

	"github.com/zclconf/go-cty/cty"
)

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads configuration from the given paths and translates it into
	// the format-agnostic model.
	Load(ctx context.Context, paths ...string) (*Model, error)
}

// Converter bridges cty values produced by stage expressions and the Go
// types consumers want to read them as.
type Converter interface {
	// Decode converts val into the Go value pointed to by target.
	Decode(ctx context.Context, val cty.Value, target any) error

	// ToCtyValue converts a native Go value into its cty.Value equivalent.
	ToCtyValue(v any) (cty.Value, error)
}
