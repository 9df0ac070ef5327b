// Package solve configures and drives the frequency-domain solve that
// produces the channel's Touchstone network model.
package solve

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/channeltrace/cct/pkg/quantity"
)

// SolverKind selects the field solver setup created in the layout.
type SolverKind string

const (
	SolverSIwave SolverKind = "SIwave"
	SolverHFSS   SolverKind = "HFSS"
)

// SweepKind is the sweep row type as it appears in the settings table and
// in simulation.json.
type SweepKind string

const (
	SweepLinearCount SweepKind = "linear count"
	SweepLogScale    SweepKind = "log scale"
	SweepLinearScale SweepKind = "linear scale"
)

// ConfigError reports a solve configuration the engine would reject.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

func configf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// Sweep is one frequency sweep row. Start, Stop and StepOrCount keep their
// engineering spelling ("0.1GHz") because the engine consumes them
// verbatim; StepOrCount is a point count for linear-count and log-scale
// rows and a frequency step for linear-scale rows.
type Sweep struct {
	Kind        SweepKind
	Start       string
	Stop        string
	StepOrCount string
}

// Sweeps serialize as the engine's 4-element row form:
// ["linear scale", "0.1GHz", "10GHz", "0.1GHz"].
func (s Sweep) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]string{string(s.Kind), s.Start, s.Stop, s.StepOrCount})
}

func (s *Sweep) UnmarshalJSON(data []byte) error {
	var row []string
	if err := json.Unmarshal(data, &row); err != nil {
		return err
	}
	if len(row) != 4 {
		return fmt.Errorf("sweep row has %d fields, want 4", len(row))
	}
	s.Kind = SweepKind(strings.ToLower(strings.TrimSpace(row[0])))
	s.Start, s.Stop, s.StepOrCount = row[1], row[2], row[3]
	return nil
}

// Validate parses the row's quantities and checks the sweep is ascending
// with a positive step or count.
func (s Sweep) Validate() error {
	start, err := quantity.Parse(s.Start)
	if err != nil {
		return configf("sweep start: %v", err)
	}
	stop, err := quantity.Parse(s.Stop)
	if err != nil {
		return configf("sweep stop: %v", err)
	}
	for _, q := range []quantity.Quantity{start, stop} {
		if q.Unit != "" && q.Unit != "Hz" {
			return configf("sweep bound %s is not a frequency", q.Raw)
		}
	}
	if start.Value >= stop.Value {
		return configf("sweep start %s is not below stop %s", s.Start, s.Stop)
	}
	switch s.Kind {
	case SweepLinearCount, SweepLogScale:
		n, err := strconv.Atoi(strings.TrimSpace(s.StepOrCount))
		if err != nil || n <= 0 {
			return configf("sweep count %q is not a positive integer", s.StepOrCount)
		}
	case SweepLinearScale:
		step, err := quantity.Parse(s.StepOrCount)
		if err != nil {
			return configf("sweep step: %v", err)
		}
		if step.Unit != "" && step.Unit != "Hz" {
			return configf("sweep step %s is not a frequency", step.Raw)
		}
		if step.Value <= 0 {
			return configf("sweep step %s is not positive", s.StepOrCount)
		}
	default:
		return configf("unknown sweep type %q", s.Kind)
	}
	return nil
}

// DefaultSweeps is the stock three-row sweep covering DC to 10 GHz.
func DefaultSweeps() []Sweep {
	return []Sweep{
		{Kind: SweepLinearCount, Start: "0", Stop: "1kHz", StepOrCount: "3"},
		{Kind: SweepLogScale, Start: "1kHz", Stop: "0.1GHz", StepOrCount: "10"},
		{Kind: SweepLinearScale, Start: "0.1GHz", Stop: "10GHz", StepOrCount: "0.1GHz"},
	}
}

// Cutout clips the layout around the signal nets before solving.
type Cutout struct {
	Enabled       bool     `json:"enabled"`
	ExpansionSize string   `json:"expansion_size"`
	SignalNets    []string `json:"signal_nets"`
	ReferenceNet  string   `json:"reference_net"`
}

// Config is the solve configuration persisted as simulation.json next to
// the layout.
type Config struct {
	LayoutPath    string     `json:"aedb_path"`
	EngineVersion string     `json:"edb_version"`
	Cutout        Cutout     `json:"cutout"`
	Solver        SolverKind `json:"solver"`
	Sweeps        []Sweep    `json:"frequency_sweeps"`
}

// Validate checks the configuration before anything is written to disk.
func (c *Config) Validate() error {
	if c.LayoutPath == "" {
		return configf("no layout path set")
	}
	switch c.Solver {
	case SolverSIwave, SolverHFSS:
	default:
		return configf("unknown solver %q", c.Solver)
	}
	if len(c.Sweeps) == 0 {
		return configf("no frequency sweeps defined")
	}
	for i, s := range c.Sweeps {
		if err := s.Validate(); err != nil {
			return configf("sweep %d: %v", i+1, err)
		}
	}
	if c.Cutout.Enabled {
		if len(c.Cutout.SignalNets) == 0 {
			return configf("cutout enabled with no signal nets")
		}
		if c.Cutout.ReferenceNet == "" {
			return configf("cutout enabled with no reference net")
		}
		size, err := quantity.Parse(c.Cutout.ExpansionSize)
		if err != nil {
			return configf("cutout expansion size: %v", err)
		}
		if size.Value <= 0 {
			return configf("cutout expansion size %s is not positive", c.Cutout.ExpansionSize)
		}
	}
	return nil
}

// Save writes the configuration as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadConfig reads a simulation.json.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("solve: %w", err)
	}
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("solve: %s: %w", path, err)
	}
	return &c, nil
}

// Result records where the solve left its Touchstone file.
type Result struct {
	TouchstonePath string `json:"touchstone_path"`
}

// Save writes result.json.
func (r *Result) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadResult reads a result.json.
func LoadResult(path string) (*Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("solve: %w", err)
	}
	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("solve: %s: %w", path, err)
	}
	if r.TouchstonePath == "" {
		return nil, fmt.Errorf("solve: %s: no touchstone path recorded", path)
	}
	return &r, nil
}
