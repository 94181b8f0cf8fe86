package hcl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/observedseq/internal/config"
	"github.com/specialistvlad/observedseq/internal/ctxlog"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file reachable from paths and merges the blocks
// into one model. Blocks may be spread across files, but a source, headers
// or server block may appear only once overall.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	hclFiles, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(hclFiles) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %v", paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))

	model := &config.Model{}
	parser := hclparse.NewParser()

	for _, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		if err := l.merge(ctx, model, &root); err != nil {
			return nil, fmt.Errorf("in %s: %w", file, err)
		}
	}

	if err := model.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("HCL loading complete.", "stages", len(model.Stages), "headers", model.Headers != nil)
	return model, nil
}

// LoadBytes parses a single in-memory file. The name is used in diagnostics.
func (l *Loader) LoadBytes(ctx context.Context, name string, src []byte) (*config.Model, error) {
	hclFile, diags := hclparse.NewParser().ParseHCL(src, name)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL %s: %w", name, diags)
	}
	var root fileRoot
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL %s: %w", name, diags)
	}
	model := &config.Model{}
	if err := l.merge(ctx, model, &root); err != nil {
		return nil, err
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	return model, nil
}

func (l *Loader) merge(ctx context.Context, model *config.Model, root *fileRoot) error {
	for _, src := range root.Sources {
		if model.Source != nil {
			return fmt.Errorf("source %q: only one source block is allowed", src.Table)
		}
		model.Source = l.translateSource(src)
	}
	for _, st := range root.Stages {
		stage, err := l.translateStage(ctx, st.Name, st.Cached, st.Type, st.Value)
		if err != nil {
			return err
		}
		model.Stages = append(model.Stages, stage)
	}
	for _, h := range root.Headers {
		if model.Headers != nil {
			return fmt.Errorf("only one headers block is allowed")
		}
		stage, err := l.translateStage(ctx, "headers", h.Cached, h.Type, h.Value)
		if err != nil {
			return err
		}
		model.Headers = stage
	}
	for _, srv := range root.Servers {
		if model.Server != nil {
			return fmt.Errorf("only one server block is allowed")
		}
		model.Server = &config.Server{Listen: srv.Listen}
	}
	return nil
}

// findAllHCLFiles walks all given paths and returns a flat list of all .hcl files found.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, wasSeen := seen[p]; !wasSeen {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue // A configured path that doesn't exist is skipped.
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if !info.IsDir() {
			if filepath.Ext(path) == ".hcl" {
				add(path)
			}
			continue
		}
		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(p) == ".hcl" {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return allFiles, nil
}

// isExprDefined reports whether an optional expression attribute was
// actually written. gohcl fills omitted optional expressions with a
// zero-width placeholder, so a nil check is not enough.
func isExprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	rng := expr.Range()
	return rng.End.Byte > rng.Start.Byte
}
