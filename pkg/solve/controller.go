package solve

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/channeltrace/cct/pkg/engine"
)

// Controller runs the Simulation stage: it persists the configuration,
// stages the solve setup in the annotated layout and runs the field
// solver to completion. The call blocks; a solver failure propagates
// verbatim and leaves no result artifact.
type Controller struct {
	Layout engine.LayoutTool
	Solver engine.FieldSolver
}

// ConfigPathFor returns where simulation.json lives for a layout.
func ConfigPathFor(layoutPath string) string {
	return filepath.Join(filepath.Dir(layoutPath), "simulation.json")
}

// ResultPathFor returns where result.json lives for a layout.
func ResultPathFor(layoutPath string) string {
	return filepath.Join(filepath.Dir(layoutPath), "result.json")
}

// AppliedPathFor returns the port-annotated copy the solve runs against.
// Applying ports always saves an .aedb database, whatever the input
// layout format was, so the applied path carries that extension.
func AppliedPathFor(layoutPath string) string {
	ext := filepath.Ext(layoutPath)
	return strings.TrimSuffix(layoutPath, ext) + "_applied.aedb"
}

// Run executes the full stage and returns the produced Touchstone path,
// which is also recorded in result.json next to the layout.
func (c *Controller) Run(ctx context.Context, cfg *Config) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	configPath := ConfigPathFor(cfg.LayoutPath)
	if err := cfg.Save(configPath); err != nil {
		return "", err
	}
	applied := AppliedPathFor(cfg.LayoutPath)
	if err := c.Layout.PrepareSolve(ctx, applied, configPath); err != nil {
		return "", err
	}
	tsPath, err := c.Solver.Solve(ctx, applied)
	if err != nil {
		return "", err
	}
	res := &Result{TouchstonePath: tsPath}
	if err := res.Save(ResultPathFor(cfg.LayoutPath)); err != nil {
		return "", err
	}
	return tsPath, nil
}
