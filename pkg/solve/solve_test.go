package solve

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/channeltrace/cct/pkg/engine"
	"github.com/channeltrace/cct/pkg/layout"
	"github.com/channeltrace/cct/pkg/ports"
)

func validConfig(layoutPath string) *Config {
	return &Config{
		LayoutPath:    layoutPath,
		EngineVersion: "2024.1",
		Solver:        SolverSIwave,
		Sweeps:        DefaultSweeps(),
		Cutout: Cutout{
			Enabled:       true,
			ExpansionSize: "0.005",
			SignalNets:    []string{"DQ0"},
			ReferenceNet:  "GND",
		},
	}
}

func TestSweepValidate(t *testing.T) {
	for _, s := range DefaultSweeps() {
		if err := s.Validate(); err != nil {
			t.Errorf("default sweep %+v rejected: %v", s, err)
		}
	}
	bad := []Sweep{
		{Kind: SweepLinearScale, Start: "10GHz", Stop: "0.1GHz", StepOrCount: "0.1GHz"},
		{Kind: SweepLinearScale, Start: "0.1GHz", Stop: "10GHz", StepOrCount: "0"},
		{Kind: SweepLinearCount, Start: "0", Stop: "1kHz", StepOrCount: "three"},
		{Kind: SweepLogScale, Start: "1kHz", Stop: "0.1GHz", StepOrCount: "-2"},
		{Kind: SweepKind("quadratic"), Start: "0", Stop: "1kHz", StepOrCount: "3"},
		{Kind: SweepLinearScale, Start: "30ps", Stop: "10GHz", StepOrCount: "0.1GHz"},
	}
	for _, s := range bad {
		var ce *ConfigError
		if err := s.Validate(); !errors.As(err, &ce) {
			t.Errorf("sweep %+v accepted, want ConfigError", s)
		}
	}
}

func TestSweepJSONRowForm(t *testing.T) {
	s := Sweep{Kind: SweepLinearScale, Start: "0.1GHz", Stop: "10GHz", StepOrCount: "0.1GHz"}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	want := `["linear scale","0.1GHz","10GHz","0.1GHz"]`
	if string(data) != want {
		t.Errorf("marshal = %s, want %s", data, want)
	}
	var back Sweep
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back != s {
		t.Errorf("round trip = %+v, want %+v", back, s)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := validConfig("board.aedb")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	cases := []func(*Config){
		func(c *Config) { c.LayoutPath = "" },
		func(c *Config) { c.Solver = "Spectre" },
		func(c *Config) { c.Sweeps = nil },
		func(c *Config) { c.Cutout.SignalNets = nil },
		func(c *Config) { c.Cutout.ReferenceNet = "" },
		func(c *Config) { c.Cutout.ExpansionSize = "big" },
	}
	for i, mutate := range cases {
		c := validConfig("board.aedb")
		mutate(c)
		var ce *ConfigError
		if err := c.Validate(); !errors.As(err, &ce) {
			t.Errorf("case %d accepted, want ConfigError", i)
		}
	}
}

func TestControllerRun(t *testing.T) {
	dir := t.TempDir()
	layoutPath := filepath.Join(dir, "board.aedb")
	eng := &engine.SimEngine{}
	ctx := context.Background()

	ctl := &Controller{Layout: eng, Solver: eng}
	cfg := validConfig(layoutPath)

	eng.OnSolve = func(appliedPath string) (string, error) {
		if appliedPath != AppliedPathFor(layoutPath) {
			t.Errorf("solve ran against %q", appliedPath)
		}
		return filepath.Join(dir, "board.s2p"), nil
	}
	tsPath, err := ctl.Run(ctx, cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if tsPath != filepath.Join(dir, "board.s2p") {
		t.Errorf("touchstone path = %q", tsPath)
	}

	loaded, err := LoadConfig(ConfigPathFor(layoutPath))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Solver != SolverSIwave || len(loaded.Sweeps) != 3 {
		t.Errorf("persisted config = %+v", loaded)
	}
	res, err := LoadResult(ResultPathFor(layoutPath))
	if err != nil {
		t.Fatalf("LoadResult failed: %v", err)
	}
	if res.TouchstonePath != tsPath {
		t.Errorf("result records %q, want %q", res.TouchstonePath, tsPath)
	}
}

func TestControllerBrdLayoutSolvesAppliedAedb(t *testing.T) {
	dir := t.TempDir()
	layoutPath := filepath.Join(dir, "board.brd")
	eng := &engine.SimEngine{}
	ctx := context.Background()

	design := &layout.Design{Path: layoutPath}
	rec := &ports.Record{LayoutPath: layoutPath, Ports: make([]ports.Port, 8)}
	savedPath, err := eng.ApplyPorts(ctx, design, rec)
	if err != nil {
		t.Fatalf("ApplyPorts failed: %v", err)
	}
	if savedPath != filepath.Join(dir, "board_applied.aedb") {
		t.Fatalf("ApplyPorts saved %q, want board_applied.aedb", savedPath)
	}

	var solved string
	eng.OnSolve = func(appliedPath string) (string, error) {
		solved = appliedPath
		return filepath.Join(dir, "board.s8p"), nil
	}
	ctl := &Controller{Layout: eng, Solver: eng}
	if _, err := ctl.Run(ctx, validConfig(layoutPath)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if solved != savedPath {
		t.Errorf("solve ran against %q, want the applied database %q", solved, savedPath)
	}
}

func TestControllerRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	layoutPath := filepath.Join(dir, "board.aedb")
	eng := &engine.SimEngine{}
	ctl := &Controller{Layout: eng, Solver: eng}
	cfg := validConfig(layoutPath)
	cfg.Sweeps = nil
	if _, err := ctl.Run(context.Background(), cfg); err == nil {
		t.Fatal("Run accepted an invalid config")
	}
	if _, err := os.Stat(ConfigPathFor(layoutPath)); !os.IsNotExist(err) {
		t.Error("simulation.json written despite invalid config")
	}
	if len(eng.Calls) != 0 {
		t.Errorf("engine invoked %v for invalid config", eng.Calls)
	}
}

func TestControllerSolverFailureLeavesNoResult(t *testing.T) {
	dir := t.TempDir()
	layoutPath := filepath.Join(dir, "board.aedb")
	eng := &engine.SimEngine{
		OnSolve: func(string) (string, error) {
			return "", engine.Enginef("solve", "license checkout failed")
		},
	}
	ctl := &Controller{Layout: eng, Solver: eng}
	_, err := ctl.Run(context.Background(), validConfig(layoutPath))
	var ee *engine.EngineError
	if !errors.As(err, &ee) {
		t.Fatalf("Run error = %v, want EngineError", err)
	}
	if _, err := os.Stat(ResultPathFor(layoutPath)); !os.IsNotExist(err) {
		t.Error("result.json written despite solver failure")
	}
}
