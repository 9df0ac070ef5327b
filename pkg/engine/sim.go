package engine

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"path/filepath"
	"strings"

	"github.com/channeltrace/cct/pkg/layout"
	"github.com/channeltrace/cct/pkg/ports"
	"github.com/channeltrace/cct/pkg/touchstone"
)

// SimEngine is an in-memory engine useful for unit tests and for running
// the workflow without vendor software installed. Every operation has a
// deterministic default and an overridable hook, and the engine records
// its invocations for inspection within tests.
type SimEngine struct {
	// Snapshot is served by Import. When nil, DemoSnapshot is used.
	Snapshot *layout.Snapshot

	OnImport    func(layoutPath, stackupPath string) (*layout.Snapshot, error)
	OnApply     func(design *layout.Design, rec *ports.Record) (string, error)
	OnSolve     func(appliedPath string) (string, error)
	OnTransient func(netlistPath string, probes []string) (*TransientResult, error)

	// Calls lists the operations run, in order.
	Calls []string
	// LastNetlist is the netlist path of the most recent transient run.
	LastNetlist string

	portCount int
}

var _ Engine = (*SimEngine)(nil)

func (s *SimEngine) Import(ctx context.Context, layoutPath, stackupPath string) (string, error) {
	s.Calls = append(s.Calls, "import")
	if err := ctx.Err(); err != nil {
		return "", &EngineError{Op: "import", Err: err}
	}
	snap := s.Snapshot
	if s.OnImport != nil {
		var err error
		snap, err = s.OnImport(layoutPath, stackupPath)
		if err != nil {
			return "", &EngineError{Op: "import", Err: err}
		}
	}
	if snap == nil {
		snap = DemoSnapshot()
	}
	path := layout.SnapshotPathFor(layoutPath)
	if err := layout.SaveSnapshot(path, snap); err != nil {
		return "", &EngineError{Op: "import", Err: err}
	}
	return path, nil
}

func (s *SimEngine) ApplyPorts(ctx context.Context, design *layout.Design, rec *ports.Record) (string, error) {
	s.Calls = append(s.Calls, "apply-ports")
	if err := ctx.Err(); err != nil {
		return "", &EngineError{Op: "apply-ports", Err: err}
	}
	if s.OnApply != nil {
		applied, err := s.OnApply(design, rec)
		if err == nil {
			s.portCount = rec.PortCount()
		}
		return applied, err
	}
	s.portCount = rec.PortCount()
	return appliedPathFor(design.Path), nil
}

func (s *SimEngine) PrepareSolve(ctx context.Context, appliedPath, configPath string) error {
	s.Calls = append(s.Calls, "prepare-solve")
	return ctx.Err()
}

// Solve synthesizes a plausible channel network: ports pair up in the
// builder's controller-then-DRAM order, with a lossy thru between each
// pair, mild reflections and weak coupling elsewhere.
func (s *SimEngine) Solve(ctx context.Context, appliedPath string) (string, error) {
	s.Calls = append(s.Calls, "solve")
	if err := ctx.Err(); err != nil {
		return "", &EngineError{Op: "solve", Err: err}
	}
	if s.OnSolve != nil {
		return s.OnSolve(appliedPath)
	}
	if s.portCount == 0 {
		return "", Enginef("solve", "no ports applied to %s", appliedPath)
	}
	n := s.portCount
	net := &touchstone.Network{NumPorts: n, Reference: 50}
	for i := 0; i < 64; i++ {
		f := 1e8 + float64(i)*(1e10-1e8)/63
		net.FreqHz = append(net.FreqHz, f)
		point := make([][]complex128, n)
		for a := 0; a < n; a++ {
			point[a] = make([]complex128, n)
			for b := 0; b < n; b++ {
				phase := -2 * math.Pi * f * 1e-10
				switch {
				case a == b:
					point[a][b] = cmplx.Rect(0.1, phase)
				case a^1 == b:
					point[a][b] = cmplx.Rect(0.8*math.Exp(-f/4e10), phase)
				default:
					point[a][b] = cmplx.Rect(0.01, phase)
				}
			}
		}
		net.S = append(net.S, point)
	}
	stem := strings.TrimSuffix(appliedPath, filepath.Ext(appliedPath))
	path := fmt.Sprintf("%s.s%dp", stem, n)
	if err := net.WriteFile(path); err != nil {
		return "", &EngineError{Op: "solve", Err: err}
	}
	return path, nil
}

// RunTransient returns a raised-cosine pulse on every probe unless the
// OnTransient hook supplies waveforms.
func (s *SimEngine) RunTransient(ctx context.Context, netlistPath string, probes []string) (*TransientResult, error) {
	s.Calls = append(s.Calls, "transient")
	s.LastNetlist = netlistPath
	if err := ctx.Err(); err != nil {
		return nil, &EngineError{Op: "transient", Err: err}
	}
	if s.OnTransient != nil {
		res, err := s.OnTransient(netlistPath, probes)
		if err != nil {
			return nil, &EngineError{Op: "transient", Err: err}
		}
		return res, nil
	}
	const (
		tstop  = 3e-9
		tstep  = 1e-11
		center = 1.5e-9
		width  = 5e-10
	)
	res := &TransientResult{Volts: make(map[string][]float64, len(probes))}
	for t := 0.0; t <= tstop; t += tstep {
		res.Time = append(res.Time, t)
	}
	for _, p := range probes {
		v := make([]float64, len(res.Time))
		for i, t := range res.Time {
			if d := math.Abs(t - center); d < width {
				v[i] = 0.4 * 0.5 * (1 + math.Cos(math.Pi*d/width))
			}
		}
		res.Volts[p] = v
	}
	return res, nil
}

func appliedPathFor(layoutPath string) string {
	ext := filepath.Ext(layoutPath)
	return strings.TrimSuffix(layoutPath, ext) + "_applied.aedb"
}

// DemoSnapshot is a small DDR-style board: one controller, two DRAM
// devices, four data nets, a strobe pair and a clock pair.
func DemoSnapshot() *layout.Snapshot {
	return &layout.Snapshot{
		Component: map[string][][2]string{
			"U1": {
				{"A1", "DQ0"}, {"A2", "DQ1"}, {"A3", "DQ2"}, {"A4", "DQ3"},
				{"B1", "DQS_P"}, {"B2", "DQS_N"}, {"C1", "CLK_P"}, {"C2", "CLK_N"},
				{"D1", "GND"}, {"D2", "GND"}, {"D3", "VDD"},
			},
			"U2": {
				{"1", "DQ0"}, {"2", "DQ1"}, {"3", "DQS_P"}, {"4", "DQS_N"},
				{"5", "CLK_P"}, {"6", "CLK_N"}, {"7", "GND"}, {"8", "VDD"},
			},
			"U3": {
				{"1", "DQ2"}, {"2", "DQ3"}, {"3", "CLK_P"}, {"4", "CLK_N"},
				{"5", "GND"}, {"6", "VDD"},
			},
			"C10": {{"1", "VDD"}, {"2", "GND"}},
		},
		Diff: map[string][2]string{
			"DQS": {"DQS_P", "DQS_N"},
			"CLK": {"CLK_P", "CLK_N"},
		},
	}
}
