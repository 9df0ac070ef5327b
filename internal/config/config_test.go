package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.Version != "2024.1" {
		t.Errorf("engine version = %q", cfg.Engine.Version)
	}
	tx := cfg.TxParams()
	if tx.VHigh != "0.8V" || tx.UnitInterval != "133ps" || tx.Capacitance != "1pF" {
		t.Errorf("tx defaults = %+v", tx)
	}
	rx := cfg.RxParams()
	if rx.Resistance != "30ohm" || rx.Capacitance != "1.8pF" {
		t.Errorf("rx defaults = %+v", rx)
	}
	tr := cfg.TransientParams()
	if tr.Step != "100ps" || tr.Stop != "3ns" {
		t.Errorf("transient defaults = %+v", tr)
	}
	if cfg.Defaults.ThresholdDB == nil || *cfg.Defaults.ThresholdDB != -40 {
		t.Errorf("threshold default = %v", cfg.Defaults.ThresholdDB)
	}
	if len(cfg.SolveSweeps()) != 3 {
		t.Errorf("sweep defaults = %v", cfg.Sweeps)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	cfg := Default()
	cfg.Engine.Version = "2025.1"
	cfg.Engine.Bridge = "/opt/cct/bridge"
	threshold := -32.5
	cfg.Defaults.ThresholdDB = &threshold
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if back.Engine.Version != "2025.1" || back.Engine.Bridge != "/opt/cct/bridge" {
		t.Errorf("engine = %+v", back.Engine)
	}
	if back.Defaults.ThresholdDB == nil || *back.Defaults.ThresholdDB != -32.5 {
		t.Errorf("threshold = %v", back.Defaults.ThresholdDB)
	}
	sweeps := back.SolveSweeps()
	if len(sweeps) != 3 || sweeps[2].StepOrCount != "0.1GHz" {
		t.Errorf("sweeps = %+v", sweeps)
	}
}

func TestLoadProjectDirInterpolation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	src := `
engine {
  bridge  = "${project_dir}/bin/bridge"
  version = "2025.1"
}
`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := filepath.Join(dir, "bin", "bridge")
	if cfg.Engine.Bridge != want {
		t.Errorf("bridge = %q, want %q", cfg.Engine.Bridge, want)
	}
	// Absent blocks are backfilled from the defaults.
	if cfg.Defaults == nil || cfg.Defaults.Tx.VHigh != "0.8V" {
		t.Errorf("defaults not backfilled: %+v", cfg.Defaults)
	}
	if len(cfg.Sweeps) != 3 {
		t.Errorf("sweeps not backfilled: %+v", cfg.Sweeps)
	}
}

func TestLoadPartialDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	src := `
defaults {
  tx {
    vhigh = "1.2V"
  }
}

sweep "linear scale" {
  start = "1GHz"
  stop  = "20GHz"
  value = "0.2GHz"
}
`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	tx := cfg.TxParams()
	if tx.VHigh != "1.2V" {
		t.Errorf("vhigh = %q, want override", tx.VHigh)
	}
	if tx.RiseTime != "30ps" {
		t.Errorf("rise time = %q, want backfilled default", tx.RiseTime)
	}
	sweeps := cfg.SolveSweeps()
	if len(sweeps) != 1 || sweeps[0].Stop != "20GHz" {
		t.Errorf("sweeps = %+v", sweeps)
	}
}
