// This file translates decoded HCL blocks into the format-agnostic
// configuration model.

package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/observedseq/internal/config"
	"github.com/specialistvlad/observedseq/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

func (l *Loader) translateSource(s *sourceBlock) *config.Source {
	return &config.Source{
		Table:   s.Table,
		Key:     s.Key,
		Section: s.Section,
		OrderBy: s.OrderBy,
		Where:   s.Where,
	}
}

// translateStage converts a stage or headers block. Stages are cached
// unless `cached = false` is given.
func (l *Loader) translateStage(ctx context.Context, name string, cached *bool, typ, value hcl.Expression) (*config.Stage, error) {
	logger := ctxlog.FromContext(ctx).With("stage", name)

	stage := &config.Stage{
		Name:   name,
		Cached: cached == nil || *cached,
		Type:   cty.DynamicPseudoType,
		Value:  value,
	}
	if isExprDefined(typ) {
		parsed, err := typeExprToCtyType(ctx, typ)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", name, err)
		}
		stage.Type = parsed
	}
	logger.Debug("Translated stage.", "cached", stage.Cached, "type", stage.Type.FriendlyName())
	return stage, nil
}
