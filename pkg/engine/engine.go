// Package engine defines the capability interfaces the workflow stages use
// to reach the vendor EDA engine, an Exec implementation that shells out to
// the bridge executable, and Sim implementations that run everything
// in-memory for tests and demos.
package engine

import (
	"context"
	"fmt"

	"github.com/channeltrace/cct/pkg/layout"
	"github.com/channeltrace/cct/pkg/ports"
)

// EngineError reports a failed engine operation. Engine failures are
// surfaced verbatim and never retried; a failed stage leaves no artifact.
type EngineError struct {
	Op     string
	Detail string
	Err    error
}

func (e *EngineError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("engine: %s: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("engine: %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// Enginef builds an EngineError for the named operation.
func Enginef(op string, format string, args ...any) error {
	return &EngineError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

// LayoutTool is the layout-database side of the engine: reading a board
// file, annotating it with solver ports and staging a solve setup.
type LayoutTool interface {
	// Import reads the layout at layoutPath (optionally side-loading a
	// stackup XML) and writes the design snapshot JSON next to it,
	// returning the snapshot path.
	Import(ctx context.Context, layoutPath, stackupPath string) (string, error)

	// ApplyPorts creates one 50 ohm pin-group terminal per record port
	// plus a reference terminal per component, saves the annotated copy
	// and returns its path.
	ApplyPorts(ctx context.Context, design *layout.Design, rec *ports.Record) (string, error)

	// PrepareSolve loads the solve configuration JSON into the annotated
	// layout so the field solver can run it.
	PrepareSolve(ctx context.Context, appliedPath, configPath string) error
}

// FieldSolver runs the frequency-domain solve on a prepared layout and
// produces the channel's Touchstone network model.
type FieldSolver interface {
	Solve(ctx context.Context, appliedPath string) (string, error)
}

// CircuitSimulator runs a transient netlist and returns the probed node
// voltages.
type CircuitSimulator interface {
	RunTransient(ctx context.Context, netlistPath string, probes []string) (*TransientResult, error)
}

// Engine bundles the three capabilities a full workflow needs.
type Engine interface {
	LayoutTool
	FieldSolver
	CircuitSimulator
}

// TransientResult holds the waveforms of one transient run. Time is in
// seconds and need not be uniformly spaced; every series has one sample
// per time point.
type TransientResult struct {
	Time  []float64
	Volts map[string][]float64
}

// Probe returns the voltage series for a node.
func (r *TransientResult) Probe(name string) ([]float64, bool) {
	v, ok := r.Volts[name]
	return v, ok
}

// Validate checks that every series matches the time axis.
func (r *TransientResult) Validate() error {
	if len(r.Time) == 0 {
		return Enginef("transient", "empty time axis")
	}
	for name, v := range r.Volts {
		if len(v) != len(r.Time) {
			return Enginef("transient", "probe %s has %d samples for %d time points", name, len(v), len(r.Time))
		}
	}
	return nil
}
