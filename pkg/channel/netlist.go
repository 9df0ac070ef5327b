package channel

import (
	"fmt"
	"strings"

	"github.com/channeltrace/cct/pkg/ports"
)

// channelModelLine emits the S-parameter block definition the transient
// simulator convolves the terminations against.
func channelModelLine(touchstonePath string) string {
	return fmt.Sprintf(`.model "Channel" S TSTONEFILE="%s" `+
		`INTERPOLATION=LINEAR INTDATTYP=MA HIGHPASS=10 LOWPASS=10 `+
		`convolution=1 enforce_passivity=0 Noisemodel=External`, touchstonePath)
}

func nodeName(sequence int) string {
	return fmt.Sprintf("net_%d", sequence)
}

// txLines emits the transmitter circuit for one group. An active
// transmitter drives a single pulse through its source resistance; a
// passive transmitter presents the same RC without the source. The
// differential driver splits vhigh symmetrically across the legs.
func txLines(g *group, p TxParams, active bool) []string {
	pulse := func(amplitude string, seq int) string {
		return fmt.Sprintf("V%d netb_%d 0 PULSE(0 %s 1e-10 %s %s %s 1.5e+100)",
			seq, seq, amplitude, p.RiseTime, p.RiseTime, p.UnitInterval)
	}
	rc := func(seq int) []string {
		return []string{
			fmt.Sprintf("R%d netb_%d net_%d %s", seq, seq, seq, p.Resistance),
			fmt.Sprintf("C%d netb_%d 0 %s", seq, seq, p.Capacitance),
		}
	}
	var lines []string
	if !g.diff {
		seq := g.ports[0].Sequence
		if active {
			lines = append(lines, pulse(p.VHigh, seq))
		}
		return append(lines, rc(seq)...)
	}
	pos, neg := g.ports[0].Sequence, g.ports[1].Sequence
	if active {
		lines = append(lines, pulse("0.5*"+p.VHigh, pos))
	}
	lines = append(lines, rc(pos)...)
	if active {
		lines = append(lines, pulse("-0.5*"+p.VHigh, neg))
	}
	return append(lines, rc(neg)...)
}

// rxLines emits the receiver RC termination for one group.
func rxLines(g *group, p RxParams) []string {
	var lines []string
	for _, port := range g.ports {
		seq := port.Sequence
		lines = append(lines,
			fmt.Sprintf("R%d net_%d 0 %s", seq, seq, p.Resistance),
			fmt.Sprintf("C%d net_%d 0 %s", seq, seq, p.Capacitance),
		)
	}
	return lines
}

// buildNetlist assembles the full run netlist for one active transmitter
// against a (possibly trimmed) port set.
func buildNetlist(touchstonePath string, portList []ports.Port, txs, rxs []*group, active *group, tx TxParams, rx RxParams) string {
	nodes := make([]string, len(portList))
	for i, p := range portList {
		nodes[i] = nodeName(p.Sequence)
	}
	lines := []string{
		channelModelLine(touchstonePath),
		fmt.Sprintf(`S1 %s FQMODEL="Channel"`, strings.Join(nodes, " ")),
	}
	for _, g := range txs {
		lines = append(lines, txLines(g, tx, g.key == active.key && g.diff == active.diff)...)
	}
	for _, g := range rxs {
		lines = append(lines, rxLines(g, rx)...)
	}
	return strings.Join(lines, "\n")
}
