// Package channel runs the transient channel check: it terminates the
// solved network model with transmitter and receiver circuits, runs one
// transient simulation per transmitter and reduces the received pulse
// responses to signal, ISI and crosstalk figures.
package channel

import (
	"fmt"
	"sort"
	"strings"

	"github.com/channeltrace/cct/pkg/ports"
	"github.com/channeltrace/cct/pkg/quantity"
	"github.com/channeltrace/cct/pkg/touchstone"
)

// TxParams configures the transmitter model. Values keep their
// engineering spelling because the netlist carries them verbatim.
type TxParams struct {
	VHigh        string
	RiseTime     string
	UnitInterval string
	Resistance   string
	Capacitance  string
}

// RxParams configures the receiver termination.
type RxParams struct {
	Resistance  string
	Capacitance string
}

// TransientParams set the simulator's time step and stop time.
type TransientParams struct {
	Step string
	Stop string
}

// Stock DDR-ish parameter set.
func DefaultTxParams() TxParams {
	return TxParams{VHigh: "0.8V", RiseTime: "30ps", UnitInterval: "133ps", Resistance: "40ohm", Capacitance: "1pF"}
}

func DefaultRxParams() RxParams {
	return RxParams{Resistance: "30ohm", Capacitance: "1.8pF"}
}

func DefaultTransientParams() TransientParams {
	return TransientParams{Step: "100ps", Stop: "3ns"}
}

// validateParams checks that every parameter parses as a quantity of the
// expected dimension.
func validateParams(tx TxParams, rx RxParams, tr TransientParams) error {
	checks := []struct {
		raw  string
		unit string
		name string
	}{
		{tx.VHigh, "V", "tx vhigh"},
		{tx.RiseTime, "s", "tx rise time"},
		{tx.UnitInterval, "s", "unit interval"},
		{tx.Resistance, "ohm", "tx resistance"},
		{tx.Capacitance, "F", "tx capacitance"},
		{rx.Resistance, "ohm", "rx resistance"},
		{rx.Capacitance, "F", "rx capacitance"},
		{tr.Step, "s", "transient step"},
		{tr.Stop, "s", "transient stop"},
	}
	for _, c := range checks {
		q, err := quantity.Parse(c.raw)
		if err != nil {
			return ports.Validationf("%s: %v", c.name, err)
		}
		if q.Unit != "" && q.Unit != c.unit {
			return ports.Validationf("%s %q: expected %s", c.name, c.raw, c.unit)
		}
		if q.Value <= 0 {
			return ports.Validationf("%s %q must be positive", c.name, c.raw)
		}
	}
	return nil
}

// group is one logical transmitter or receiver: a single-ended port or
// the two legs of a differential pair.
type group struct {
	label string
	diff  bool
	// key identifies the same logical channel end on both sides: the net
	// name, or the sorted pair nets joined with "::".
	key   string
	ports []ports.Port
}

func (g *group) sequences() []int {
	out := make([]int, len(g.ports))
	for i, p := range g.ports {
		out[i] = p.Sequence
	}
	return out
}

func (g *group) minSequence() int {
	min := g.ports[0].Sequence
	for _, p := range g.ports[1:] {
		if p.Sequence < min {
			min = p.Sequence
		}
	}
	return min
}

func diffKey(netA, netB string) string {
	if netB < netA {
		netA, netB = netB, netA
	}
	return netA + "::" + netB
}

// classify splits the record's ports into transmitter and receiver groups.
// Singles are grouped per net; differential entries pair up per
// (component, pair) with encounter-order polarity fallback, and pairs
// missing a leg are dropped.
func classify(list []ports.Port) (txs, rxs []*group) {
	build := func(role ports.Role) []*group {
		var singles []*group
		type pending struct {
			pos, neg *ports.Port
			order    int
		}
		pairKey := func(p ports.Port) string {
			pair := p.Pair
			if pair == "" {
				pair = p.Net
			}
			return p.Component + "\x00" + pair
		}
		pairs := map[string]*pending{}
		var pairOrder []string
		for i := range list {
			p := list[i]
			if p.Role != role {
				continue
			}
			if p.NetType != ports.NetDifferential {
				singles = append(singles, &group{label: p.Name, key: p.Net, ports: []ports.Port{p}})
				continue
			}
			k := pairKey(p)
			pd, ok := pairs[k]
			if !ok {
				pd = &pending{}
				pairs[k] = pd
				pairOrder = append(pairOrder, k)
			}
			polarity := p.Polarity
			if polarity == ports.PolarityNone {
				if pd.pos == nil {
					polarity = ports.PolarityPositive
				} else {
					polarity = ports.PolarityNegative
				}
			}
			if polarity == ports.PolarityPositive && pd.pos == nil {
				pp := p
				pd.pos = &pp
			} else if polarity == ports.PolarityNegative && pd.neg == nil {
				pp := p
				pd.neg = &pp
			}
		}
		sort.SliceStable(singles, func(a, b int) bool {
			return singles[a].ports[0].Sequence < singles[b].ports[0].Sequence
		})
		var diffs []*group
		for _, k := range pairOrder {
			pd := pairs[k]
			if pd.pos == nil || pd.neg == nil {
				continue
			}
			label := pd.pos.Pair
			if label == "" {
				label = pd.pos.Name + "/" + pd.neg.Name
			}
			diffs = append(diffs, &group{
				label: label,
				diff:  true,
				key:   diffKey(pd.pos.Net, pd.neg.Net),
				ports: []ports.Port{*pd.pos, *pd.neg},
			})
		}
		sort.SliceStable(diffs, func(a, b int) bool {
			return diffs[a].minSequence() < diffs[b].minSequence()
		})
		return append(singles, diffs...)
	}
	return build(ports.RoleController), build(ports.RoleDRAM)
}

// Analyzer owns one channel check: the network model, the port record and
// the termination parameters.
type Analyzer struct {
	NetworkPath string
	Network     *touchstone.Network
	Record      *ports.Record
	WorkDir     string

	// ThresholdDB enables coupling-based pruning when non-nil.
	ThresholdDB *float64
	// Version selects the vendor circuit release for Exec engines.
	Version string

	tx TxParams
	rx RxParams

	txGroups []*group
	rxGroups []*group

	// waveforms[rxKey][txKey] is the pulse response at a receiver while
	// one transmitter drives, time in ps and voltage in V.
	waveforms map[string]map[string]Waveform

	pruneCache map[string]*pruneResult
}

// Waveform is one received pulse response. Time is in picoseconds.
type Waveform struct {
	TimePs []float64
	Volts  []float64
}

// NewAnalyzer loads the network model and validates it against the port
// record. A port-count mismatch means the model was solved for a
// different record and is rejected before any engine call.
func NewAnalyzer(networkPath string, rec *ports.Record, workDir string) (*Analyzer, error) {
	net, err := touchstone.Load(networkPath)
	if err != nil {
		return nil, err
	}
	if net.NumPorts != rec.PortCount() {
		return nil, ports.Validationf(
			"network model has %d ports but the port record lists %d; re-run the frequency simulation",
			net.NumPorts, rec.PortCount())
	}
	a := &Analyzer{
		NetworkPath: networkPath,
		Network:     net,
		Record:      rec,
		WorkDir:     workDir,
		tx:          DefaultTxParams(),
		rx:          DefaultRxParams(),
		waveforms:   map[string]map[string]Waveform{},
		pruneCache:  map[string]*pruneResult{},
	}
	a.txGroups, a.rxGroups = classify(rec.Ports)
	if len(a.txGroups) == 0 {
		return nil, ports.Validationf("port record has no transmitter ports")
	}
	if len(a.rxGroups) == 0 {
		return nil, ports.Validationf("port record has no receiver ports")
	}
	return a, nil
}

// SetTxParams replaces the transmitter model and drops cached state.
func (a *Analyzer) SetTxParams(p TxParams) {
	a.tx = p
	a.invalidate()
}

// SetRxParams replaces the receiver termination and drops cached state.
func (a *Analyzer) SetRxParams(p RxParams) {
	a.rx = p
	a.invalidate()
}

// SetThreshold replaces the pruning threshold and drops cached state.
func (a *Analyzer) SetThreshold(thresholdDB *float64) {
	a.ThresholdDB = thresholdDB
	a.invalidate()
}

func (a *Analyzer) invalidate() {
	a.pruneCache = map[string]*pruneResult{}
	a.waveforms = map[string]map[string]Waveform{}
}

// Transmitters lists the transmitter group labels in run order.
func (a *Analyzer) Transmitters() []string {
	out := make([]string, len(a.txGroups))
	for i, g := range a.txGroups {
		out[i] = g.label
	}
	return out
}

// Receivers lists the receiver group labels.
func (a *Analyzer) Receivers() []string {
	out := make([]string, len(a.rxGroups))
	for i, g := range a.rxGroups {
		out[i] = g.label
	}
	return out
}

func (a *Analyzer) expectedTx(rx *group) *group {
	for _, tx := range a.txGroups {
		if tx.key == rx.key && tx.diff == rx.diff {
			return tx
		}
	}
	return nil
}

func (a *Analyzer) controllerSequences() []int {
	seen := map[int]bool{}
	var out []int
	for _, tx := range a.txGroups {
		for _, seq := range tx.sequences() {
			if !seen[seq] {
				seen[seq] = true
				out = append(out, seq)
			}
		}
	}
	sort.Ints(out)
	return out
}

func sanitizeLabel(label string) string {
	var b strings.Builder
	for _, r := range label {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9',
			r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := strings.Trim(b.String(), "_")
	if s == "" {
		return "tx"
	}
	return s
}

// unitIntervalPs returns the configured unit interval in picoseconds.
func (a *Analyzer) unitIntervalPs() (float64, error) {
	q, err := quantity.Parse(a.tx.UnitInterval)
	if err != nil {
		return 0, err
	}
	ui, err := q.Convert("ps")
	if err != nil {
		return 0, fmt.Errorf("unit interval: %w", err)
	}
	return ui, nil
}
