// Package config loads and persists the tool configuration, cct.hcl: the
// engine bridge location, the engine version and the default stage
// parameters. The file is optional; a missing file yields the stock
// defaults, and the current settings are written back on exit so the
// engine version survives restarts.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"github.com/channeltrace/cct/pkg/channel"
	"github.com/channeltrace/cct/pkg/solve"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "cct.hcl"

// Config mirrors the cct.hcl structure.
type Config struct {
	Engine   *EngineConfig `hcl:"engine,block"`
	Defaults *Defaults     `hcl:"defaults,block"`
	Sweeps   []SweepBlock  `hcl:"sweep,block"`
}

// EngineConfig locates the vendor engine.
type EngineConfig struct {
	Bridge  string `hcl:"bridge,optional"`
	Version string `hcl:"version,optional"`
}

// Defaults seed the stage parameter forms.
type Defaults struct {
	Tx          *TxDefaults        `hcl:"tx,block"`
	Rx          *RxDefaults        `hcl:"rx,block"`
	Transient   *TransientDefaults `hcl:"transient,block"`
	ThresholdDB *float64           `hcl:"threshold_db"`
}

type TxDefaults struct {
	VHigh        string `hcl:"vhigh,optional"`
	RiseTime     string `hcl:"rise_time,optional"`
	UnitInterval string `hcl:"unit_interval,optional"`
	Resistance   string `hcl:"resistance,optional"`
	Capacitance  string `hcl:"capacitance,optional"`
}

type RxDefaults struct {
	Resistance  string `hcl:"resistance,optional"`
	Capacitance string `hcl:"capacitance,optional"`
}

type TransientDefaults struct {
	Step string `hcl:"step,optional"`
	Stop string `hcl:"stop,optional"`
}

// SweepBlock is one `sweep "<kind>" { ... }` row.
type SweepBlock struct {
	Kind  string `hcl:"kind,label"`
	Start string `hcl:"start"`
	Stop  string `hcl:"stop"`
	Value string `hcl:"value"`
}

// Default returns the stock configuration.
func Default() *Config {
	threshold := -40.0
	tx := channel.DefaultTxParams()
	rx := channel.DefaultRxParams()
	tr := channel.DefaultTransientParams()
	cfg := &Config{
		Engine: &EngineConfig{Version: "2024.1"},
		Defaults: &Defaults{
			Tx: &TxDefaults{
				VHigh:        tx.VHigh,
				RiseTime:     tx.RiseTime,
				UnitInterval: tx.UnitInterval,
				Resistance:   tx.Resistance,
				Capacitance:  tx.Capacitance,
			},
			Rx: &RxDefaults{
				Resistance:  rx.Resistance,
				Capacitance: rx.Capacitance,
			},
			Transient:   &TransientDefaults{Step: tr.Step, Stop: tr.Stop},
			ThresholdDB: &threshold,
		},
	}
	for _, s := range solve.DefaultSweeps() {
		cfg.Sweeps = append(cfg.Sweeps, SweepBlock{
			Kind: string(s.Kind), Start: s.Start, Stop: s.Stop, Value: s.StepOrCount,
		})
	}
	return cfg
}

// Load reads path, evaluating expressions with project_dir bound to the
// file's directory. A missing file is not an error; the defaults are
// returned instead.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("config: %s", diags.Error())
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"project_dir": cty.StringVal(filepath.Dir(abs)),
		},
	}
	cfg := &Config{}
	if diags := gohcl.DecodeBody(file.Body, evalCtx, cfg); diags.HasErrors() {
		return nil, fmt.Errorf("config: %s", diags.Error())
	}
	cfg.fillMissing()
	return cfg, nil
}

// fillMissing backfills absent blocks and fields from the defaults so
// callers never see zero values.
func (c *Config) fillMissing() {
	def := Default()
	if c.Engine == nil {
		c.Engine = def.Engine
	} else if c.Engine.Version == "" {
		c.Engine.Version = def.Engine.Version
	}
	if c.Defaults == nil {
		c.Defaults = def.Defaults
		if len(c.Sweeps) == 0 {
			c.Sweeps = def.Sweeps
		}
		return
	}
	d, dd := c.Defaults, def.Defaults
	if d.Tx == nil {
		d.Tx = dd.Tx
	}
	if d.Rx == nil {
		d.Rx = dd.Rx
	}
	if d.Transient == nil {
		d.Transient = dd.Transient
	}
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&d.Tx.VHigh, dd.Tx.VHigh)
	fill(&d.Tx.RiseTime, dd.Tx.RiseTime)
	fill(&d.Tx.UnitInterval, dd.Tx.UnitInterval)
	fill(&d.Tx.Resistance, dd.Tx.Resistance)
	fill(&d.Tx.Capacitance, dd.Tx.Capacitance)
	fill(&d.Rx.Resistance, dd.Rx.Resistance)
	fill(&d.Rx.Capacitance, dd.Rx.Capacitance)
	fill(&d.Transient.Step, dd.Transient.Step)
	fill(&d.Transient.Stop, dd.Transient.Stop)
	if len(c.Sweeps) == 0 {
		c.Sweeps = def.Sweeps
	}
}

// Save writes the configuration back as HCL.
func (c *Config) Save(path string) error {
	f := hclwrite.NewEmptyFile()
	root := f.Body()

	eng := root.AppendNewBlock("engine", nil).Body()
	if c.Engine.Bridge != "" {
		eng.SetAttributeValue("bridge", cty.StringVal(c.Engine.Bridge))
	}
	eng.SetAttributeValue("version", cty.StringVal(c.Engine.Version))
	root.AppendNewline()

	d := root.AppendNewBlock("defaults", nil).Body()
	tx := d.AppendNewBlock("tx", nil).Body()
	tx.SetAttributeValue("vhigh", cty.StringVal(c.Defaults.Tx.VHigh))
	tx.SetAttributeValue("rise_time", cty.StringVal(c.Defaults.Tx.RiseTime))
	tx.SetAttributeValue("unit_interval", cty.StringVal(c.Defaults.Tx.UnitInterval))
	tx.SetAttributeValue("resistance", cty.StringVal(c.Defaults.Tx.Resistance))
	tx.SetAttributeValue("capacitance", cty.StringVal(c.Defaults.Tx.Capacitance))
	rx := d.AppendNewBlock("rx", nil).Body()
	rx.SetAttributeValue("resistance", cty.StringVal(c.Defaults.Rx.Resistance))
	rx.SetAttributeValue("capacitance", cty.StringVal(c.Defaults.Rx.Capacitance))
	tr := d.AppendNewBlock("transient", nil).Body()
	tr.SetAttributeValue("step", cty.StringVal(c.Defaults.Transient.Step))
	tr.SetAttributeValue("stop", cty.StringVal(c.Defaults.Transient.Stop))
	if c.Defaults.ThresholdDB != nil {
		d.SetAttributeValue("threshold_db", cty.NumberFloatVal(*c.Defaults.ThresholdDB))
	}
	root.AppendNewline()

	for _, s := range c.Sweeps {
		b := root.AppendNewBlock("sweep", []string{s.Kind}).Body()
		b.SetAttributeValue("start", cty.StringVal(s.Start))
		b.SetAttributeValue("stop", cty.StringVal(s.Stop))
		b.SetAttributeValue("value", cty.StringVal(s.Value))
	}

	if err := os.WriteFile(path, f.Bytes(), 0o644); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// TxParams converts the defaults into the channel stage form.
func (c *Config) TxParams() channel.TxParams {
	return channel.TxParams{
		VHigh:        c.Defaults.Tx.VHigh,
		RiseTime:     c.Defaults.Tx.RiseTime,
		UnitInterval: c.Defaults.Tx.UnitInterval,
		Resistance:   c.Defaults.Tx.Resistance,
		Capacitance:  c.Defaults.Tx.Capacitance,
	}
}

func (c *Config) RxParams() channel.RxParams {
	return channel.RxParams{
		Resistance:  c.Defaults.Rx.Resistance,
		Capacitance: c.Defaults.Rx.Capacitance,
	}
}

func (c *Config) TransientParams() channel.TransientParams {
	return channel.TransientParams{
		Step: c.Defaults.Transient.Step,
		Stop: c.Defaults.Transient.Stop,
	}
}

// SolveSweeps converts the sweep blocks into the solve stage form.
func (c *Config) SolveSweeps() []solve.Sweep {
	out := make([]solve.Sweep, len(c.Sweeps))
	for i, s := range c.Sweeps {
		out[i] = solve.Sweep{
			Kind:        solve.SweepKind(s.Kind),
			Start:       s.Start,
			Stop:        s.Stop,
			StepOrCount: s.Value,
		}
	}
	return out
}
