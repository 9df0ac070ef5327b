// Package layout models an imported board design: components with their
// pin/net assignments and the differential pairs defined on the board. The
// heavy lifting of reading vendor container formats is done by the external
// layout tool; this package works on the snapshot document it produces.
package layout

import (
	"fmt"
	"sort"
	"strings"
)

// Format identifies the container format of a board layout.
type Format string

const (
	FormatBRD  Format = "brd"
	FormatAEDB Format = "aedb"
)

// ImportError reports that a layout could not be opened or parsed. The
// failure is terminal for the session until the user retries with a
// corrected path.
type ImportError struct {
	Path string
	Err  error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import %s: %v", e.Path, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// DetectFormat classifies a layout path by extension.
func DetectFormat(path string) (Format, error) {
	switch {
	case strings.HasSuffix(path, ".brd"):
		return FormatBRD, nil
	case strings.HasSuffix(path, ".aedb"):
		return FormatAEDB, nil
	}
	return "", &ImportError{Path: path, Err: fmt.Errorf("unsupported layout format (want .brd or .aedb)")}
}

// Pin is a component pin and the electrical net it connects to.
type Pin struct {
	Name string
	Net  string
}

// Component is a placed part with its pin list in snapshot order.
type Component struct {
	Name string
	Pins []Pin
}

// NetSet returns the set of nets touched by the component.
func (c *Component) NetSet() map[string]bool {
	nets := make(map[string]bool, len(c.Pins))
	for _, pin := range c.Pins {
		if pin.Net != "" {
			nets[pin.Net] = true
		}
	}
	return nets
}

// HasNet reports whether any pin of the component connects to net.
func (c *Component) HasNet(net string) bool {
	for _, pin := range c.Pins {
		if pin.Net == net {
			return true
		}
	}
	return false
}

// DiffPair names the two nets of a differential pair.
type DiffPair struct {
	Name     string
	Positive string
	Negative string
}

// Design is the session handle to an imported board layout.
type Design struct {
	Path         string
	Format       Format
	SnapshotPath string
	// AppliedPath points at the port-annotated copy of the layout database
	// once the Port Applier has run; empty before that.
	AppliedPath string

	components map[string]*Component
	diffPairs  map[string]DiffPair
}

// Component looks up a component by reference designator.
func (d *Design) Component(name string) (*Component, bool) {
	c, ok := d.components[name]
	return c, ok
}

// Components returns all components sorted by descending pin count, ties by
// name. Large parts (controllers, DRAMs) surface first in selection lists.
func (d *Design) Components() []*Component {
	out := make([]*Component, 0, len(d.components))
	for _, c := range d.components {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Pins) != len(out[j].Pins) {
			return len(out[i].Pins) > len(out[j].Pins)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// DiffPairs returns the board's differential pairs sorted by name.
func (d *Design) DiffPairs() []DiffPair {
	out := make([]DiffPair, 0, len(d.diffPairs))
	for _, p := range d.diffPairs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// HasNet reports whether any component pin references net.
func (d *Design) HasNet(net string) bool {
	for _, c := range d.components {
		if c.HasNet(net) {
			return true
		}
	}
	return false
}

// CommonNets returns the nets shared between two component groups: nets with
// at least one pin in each group.
func (d *Design) CommonNets(groupA, groupB []string) []string {
	netsA := d.groupNets(groupA)
	netsB := d.groupNets(groupB)
	var common []string
	for net := range netsA {
		if netsB[net] {
			common = append(common, net)
		}
	}
	sort.Strings(common)
	return common
}

func (d *Design) groupNets(group []string) map[string]bool {
	nets := make(map[string]bool)
	for _, name := range group {
		if c, ok := d.components[name]; ok {
			for net := range c.NetSet() {
				nets[net] = true
			}
		}
	}
	return nets
}

// PinCount counts how many pins across the given components land on net.
// Reference-net candidates are ranked by this count.
func (d *Design) PinCount(net string, components []string) int {
	count := 0
	for _, name := range components {
		c, ok := d.components[name]
		if !ok {
			continue
		}
		for _, pin := range c.Pins {
			if pin.Net == net {
				count++
			}
		}
	}
	return count
}

// NetSelection partitions the nets common to the transmitter and receiver
// groups into single-ended candidates and complete differential pairs, and
// ranks reference-net candidates by pin count.
type NetSelection struct {
	SingleEnded []string
	Pairs       []DiffPair
	// ReferenceCandidates is ordered by descending pin count across both
	// groups; the first entry is the default reference net.
	ReferenceCandidates []string
}

// SelectNets computes the selectable nets for a transmitter/receiver
// component partition.
func (d *Design) SelectNets(txGroup, rxGroup []string) NetSelection {
	common := d.CommonNets(txGroup, rxGroup)
	commonSet := make(map[string]bool, len(common))
	for _, net := range common {
		commonSet[net] = true
	}

	inPair := make(map[string]bool)
	var pairs []DiffPair
	for _, p := range d.DiffPairs() {
		inPair[p.Positive] = true
		inPair[p.Negative] = true
		if commonSet[p.Positive] && commonSet[p.Negative] {
			pairs = append(pairs, p)
		}
	}

	var single []string
	for _, net := range common {
		if inPair[net] || strings.EqualFold(net, "GND") {
			continue
		}
		single = append(single, net)
	}

	all := append(append([]string(nil), txGroup...), rxGroup...)
	refs := append([]string(nil), common...)
	sort.SliceStable(refs, func(i, j int) bool {
		return d.PinCount(refs[i], all) > d.PinCount(refs[j], all)
	})

	return NetSelection{SingleEnded: single, Pairs: pairs, ReferenceCandidates: refs}
}
