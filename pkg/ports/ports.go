// Package ports defines the port configuration record: which component pins
// act as transmitter or receiver on each selected net, plus the reference
// net and termination context the solver ports are built against.
package ports

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Role classifies a component group. The transmitter side is the memory
// controller, the receiver side the DRAM devices.
type Role string

const (
	RoleController Role = "controller"
	RoleDRAM       Role = "dram"
)

// NetType distinguishes single-ended nets from differential pair members.
type NetType string

const (
	NetSingle       NetType = "single"
	NetDifferential NetType = "differential"
)

// Polarity marks which leg of a differential pair a port excites.
type Polarity string

const (
	PolarityNone     Polarity = ""
	PolarityPositive Polarity = "positive"
	PolarityNegative Polarity = "negative"
)

// ValidationError reports user input that violates a structural invariant.
// It is surfaced at the stage boundary without advancing workflow state.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Port is one excitation/termination terminal of the channel.
type Port struct {
	Sequence     int      `json:"sequence"`
	Name         string   `json:"name"`
	Component    string   `json:"component"`
	Role         Role     `json:"component_role"`
	Net          string   `json:"net"`
	NetType      NetType  `json:"net_type"`
	Pair         string   `json:"pair"`
	Polarity     Polarity `json:"polarity"`
	ReferenceNet string   `json:"reference_net"`
}

// Record is the port configuration record persisted between the Port Setup,
// Simulation and CCT stages.
type Record struct {
	LayoutPath           string   `json:"aedb_path"`
	ReferenceNet         string   `json:"reference_net"`
	ControllerComponents []string `json:"controller_components"`
	DRAMComponents       []string `json:"dram_components"`
	Ports                []Port   `json:"ports"`
}

// PortCount returns the number of solver ports the record describes.
func (r *Record) PortCount() int { return len(r.Ports) }

// Nets returns the distinct signal nets referenced by the record, sorted.
func (r *Record) Nets() []string {
	seen := make(map[string]bool)
	for _, p := range r.Ports {
		seen[p.Net] = true
	}
	nets := make([]string, 0, len(seen))
	for net := range seen {
		nets = append(nets, net)
	}
	sort.Strings(nets)
	return nets
}

// PortsByRole filters ports by component role, preserving sequence order.
func (r *Record) PortsByRole(role Role) []Port {
	var out []Port
	for _, p := range r.Ports {
		if p.Role == role {
			out = append(out, p)
		}
	}
	return out
}

// Load reads a record from disk and normalizes it: role/type/polarity
// aliases are canonicalized, ports are sorted by sequence, renumbered from 1
// and renamed with the fresh sequence prefix.
func Load(path string) (*Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ports: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("ports: %s: %w", path, err)
	}
	if err := rec.Normalize(); err != nil {
		return nil, fmt.Errorf("ports: %s: %w", path, err)
	}
	return &rec, nil
}

// Save writes the record as indented JSON.
func (r *Record) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("ports: %w", err)
	}
	return nil
}
