package ports

import (
	"fmt"

	"github.com/channeltrace/cct/pkg/layout"
)

// Selection is the user's port setup choice: a component partition, the
// signal nets of interest and the reference net.
type Selection struct {
	ControllerComponents []string
	DRAMComponents       []string
	SingleNets           []string
	PairNames            []string
	ReferenceNet         string
}

// Build validates the selection against the design and produces the port
// configuration record. On any violated invariant it returns a
// ValidationError and no record is produced.
func Build(d *layout.Design, sel Selection) (*Record, error) {
	if len(sel.ControllerComponents) == 0 {
		return nil, Validationf("no transmitter (controller) components selected")
	}
	if len(sel.DRAMComponents) == 0 {
		return nil, Validationf("no receiver (DRAM) components selected")
	}
	txSet := make(map[string]bool, len(sel.ControllerComponents))
	for _, name := range sel.ControllerComponents {
		txSet[name] = true
	}
	for _, name := range sel.DRAMComponents {
		if txSet[name] {
			return nil, Validationf("component %s selected in both roles", name)
		}
	}
	if len(sel.SingleNets) == 0 && len(sel.PairNames) == 0 {
		return nil, Validationf("no nets selected")
	}
	for _, group := range [][]string{sel.ControllerComponents, sel.DRAMComponents} {
		for _, name := range group {
			if _, ok := d.Component(name); !ok {
				return nil, Validationf("component %s not present in design", name)
			}
		}
	}
	if sel.ReferenceNet == "" {
		return nil, Validationf("no reference net selected")
	}
	if !d.HasNet(sel.ReferenceNet) {
		return nil, Validationf("reference net %s not present in design", sel.ReferenceNet)
	}

	pairByName := make(map[string]layout.DiffPair)
	for _, p := range d.DiffPairs() {
		pairByName[p.Name] = p
	}

	rec := &Record{
		LayoutPath:           d.Path,
		ReferenceNet:         sel.ReferenceNet,
		ControllerComponents: append([]string(nil), sel.ControllerComponents...),
		DRAMComponents:       append([]string(nil), sel.DRAMComponents...),
	}

	seq := 0
	addPort := func(component string, role Role, net string, netType NetType, pair string, polarity Polarity) {
		seq++
		rec.Ports = append(rec.Ports, Port{
			Sequence:     seq,
			Name:         fmt.Sprintf("%d_%s_%s", seq, component, net),
			Component:    component,
			Role:         role,
			Net:          net,
			NetType:      netType,
			Pair:         pair,
			Polarity:     polarity,
			ReferenceNet: sel.ReferenceNet,
		})
	}
	// Ports for a net are emitted controller side first, then DRAM side,
	// matching the sequence numbering the solver setup expects.
	addNet := func(net string, netType NetType, pair string, polarity Polarity) error {
		if !d.HasNet(net) {
			return Validationf("net %s not present in design", net)
		}
		for _, group := range []struct {
			role  Role
			comps []string
		}{
			{RoleController, sel.ControllerComponents},
			{RoleDRAM, sel.DRAMComponents},
		} {
			for _, name := range group.comps {
				c, _ := d.Component(name)
				if c.HasNet(net) {
					addPort(name, group.role, net, netType, pair, polarity)
				}
			}
		}
		return nil
	}

	for _, net := range sel.SingleNets {
		if err := addNet(net, NetSingle, "", PolarityNone); err != nil {
			return nil, err
		}
	}
	for _, pairName := range sel.PairNames {
		pair, ok := pairByName[pairName]
		if !ok {
			return nil, Validationf("differential pair %s not defined in design", pairName)
		}
		if err := addNet(pair.Positive, NetDifferential, pairName, PolarityPositive); err != nil {
			return nil, err
		}
		if err := addNet(pair.Negative, NetDifferential, pairName, PolarityNegative); err != nil {
			return nil, err
		}
	}

	if len(rec.Ports) == 0 {
		return nil, Validationf("selection produced no ports: chosen nets do not reach both roles")
	}
	return rec, nil
}

// SignalNets lists the nets a record excites, for the solver cutout.
func (r *Record) SignalNets() []string { return r.Nets() }
