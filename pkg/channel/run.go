package channel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/channeltrace/cct/internal/ctxlog"
	"github.com/channeltrace/cct/pkg/engine"
)

const netlistDirName = "netlist"

// Run executes one transient simulation per transmitter group and stores
// the received pulse responses. Earlier waveforms are discarded so a
// re-run never mixes parameter sets.
func (a *Analyzer) Run(ctx context.Context, sim engine.CircuitSimulator, tr TransientParams) error {
	if err := validateParams(a.tx, a.rx, tr); err != nil {
		return err
	}
	log := ctxlog.FromContext(ctx)
	a.waveforms = map[string]map[string]Waveform{}

	netlistDir := filepath.Join(a.WorkDir, netlistDirName)
	if err := os.MkdirAll(netlistDir, 0o755); err != nil {
		return fmt.Errorf("channel: %w", err)
	}

	for _, tx := range a.txGroups {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := a.pruneFor(tx)
		if err != nil {
			return err
		}
		log.Info(res.stats.String())

		netlist := buildNetlist(res.touchstonePath, res.trimmedPorts, res.txGroups, res.rxGroups, tx, a.tx, a.rx)
		netlistPath := filepath.Join(netlistDir,
			fmt.Sprintf("netlist_%03d_%s.cir", tx.minSequence(), sanitizeLabel(tx.label)))
		if err := os.WriteFile(netlistPath, []byte(netlist), 0o644); err != nil {
			return fmt.Errorf("channel: %w", err)
		}

		probes := probeNames(res.rxGroups)
		result, err := sim.RunTransient(ctx, netlistPath, probes)
		if err != nil {
			return err
		}
		if err := result.Validate(); err != nil {
			return err
		}
		if err := a.storeWaveforms(tx, res, result); err != nil {
			return err
		}
	}
	return nil
}

func probeNames(rxGroups []*group) []string {
	var names []string
	for _, rx := range rxGroups {
		for _, seq := range rx.sequences() {
			names = append(names, nodeName(seq))
		}
	}
	return names
}

func groupKey(g *group) string {
	if g.diff {
		return "diff:" + g.key
	}
	return "single:" + g.key
}

// storeWaveforms maps the trimmed run's probe data back onto the full
// receiver set. Differential receivers record the leg difference.
func (a *Analyzer) storeWaveforms(tx *group, res *pruneResult, result *engine.TransientResult) error {
	timePs := make([]float64, len(result.Time))
	for i, t := range result.Time {
		timePs[i] = t * 1e12
	}
	txKey := groupKey(tx)
	for _, rx := range res.rxGroups {
		var volts []float64
		if !rx.diff {
			v, ok := result.Probe(nodeName(rx.ports[0].Sequence))
			if !ok {
				continue
			}
			volts = append([]float64(nil), v...)
		} else {
			pos, okPos := result.Probe(nodeName(rx.ports[0].Sequence))
			neg, okNeg := result.Probe(nodeName(rx.ports[1].Sequence))
			if !okPos || !okNeg {
				continue
			}
			volts = make([]float64, len(pos))
			for i := range pos {
				volts[i] = pos[i] - neg[i]
			}
		}
		rxKey := groupKey(rx)
		if a.waveforms[rxKey] == nil {
			a.waveforms[rxKey] = map[string]Waveform{}
		}
		a.waveforms[rxKey][txKey] = Waveform{TimePs: timePs, Volts: volts}
	}
	return nil
}

// WaveformFor returns the stored pulse response at a receiver while a
// transmitter drives, both identified by group label.
func (a *Analyzer) WaveformFor(txLabel, rxLabel string) (Waveform, bool) {
	for _, rx := range a.rxGroups {
		if rx.label != rxLabel {
			continue
		}
		for _, tx := range a.txGroups {
			if tx.label == txLabel {
				w, ok := a.waveforms[groupKey(rx)][groupKey(tx)]
				return w, ok
			}
		}
	}
	return Waveform{}, false
}
