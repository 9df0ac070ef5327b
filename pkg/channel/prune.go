package channel

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/channeltrace/cct/pkg/ports"
)

const trimmedTouchstoneDir = "trimmed_touchstone"

// PruneStats summarizes the port reduction for one transmitter run.
type PruneStats struct {
	TxLabel        string
	ThresholdDB    *float64
	KeptPorts      int
	TotalPorts     int
	KeptRxPorts    int
	TotalRxPorts   int
	KeptRxGroups   int
	TotalRxGroups  int
	TouchstonePath string
}

// String renders the stats the way the run log shows them.
func (s PruneStats) String() string {
	msg := fmt.Sprintf("prune: tx %s: ports %d/%d (%.1f%%)",
		s.TxLabel, s.KeptPorts, s.TotalPorts,
		100*float64(s.KeptPorts)/float64(s.TotalPorts))
	if s.TotalRxPorts > 0 {
		msg += fmt.Sprintf(", rx ports %d/%d (%.1f%%)",
			s.KeptRxPorts, s.TotalRxPorts,
			100*float64(s.KeptRxPorts)/float64(s.TotalRxPorts))
	}
	if s.ThresholdDB != nil {
		msg += fmt.Sprintf(", threshold %g dB", *s.ThresholdDB)
	}
	return msg
}

// pruneResult is the per-transmitter reduced port set: the surviving
// original sequences, the renumbered ports, the regrouped terminations
// and the Touchstone file the run uses.
type pruneResult struct {
	keptSequences  []int
	trimmedPorts   []ports.Port
	txGroups       []*group
	rxGroups       []*group
	touchstonePath string
	stats          PruneStats
}

func (a *Analyzer) pruneFor(tx *group) (*pruneResult, error) {
	cacheKey := fmt.Sprintf("%v:%s", tx.diff, tx.key)
	if cached, ok := a.pruneCache[cacheKey]; ok {
		return cached, nil
	}
	res, err := a.computePrune(tx)
	if err != nil {
		return nil, err
	}
	a.pruneCache[cacheKey] = res
	return res, nil
}

// computePrune keeps every controller port, the transmitter's expected
// receiver and any receiver whose peak coupling from the active
// transmitter reaches the threshold. Without a threshold every port is
// kept and the full network is used.
func (a *Analyzer) computePrune(tx *group) (*pruneResult, error) {
	total := a.Record.PortCount()
	kept := map[int]bool{}
	for _, seq := range a.controllerSequences() {
		kept[seq] = true
	}

	totalRxGroups := len(a.rxGroups)
	totalRxPorts := 0
	for _, rx := range a.rxGroups {
		totalRxPorts += len(rx.ports)
	}

	if a.ThresholdDB == nil {
		for seq := 1; seq <= total; seq++ {
			kept[seq] = true
		}
	} else {
		txIdx := make([]int, 0, len(tx.ports))
		for _, seq := range tx.sequences() {
			txIdx = append(txIdx, seq-1)
		}
		for _, rx := range a.rxGroups {
			keep := a.expectedTx(rx) == tx
			if !keep {
				peak := math.Inf(-1)
				for _, seq := range rx.sequences() {
					if db := a.Network.MaxCouplingDB(seq-1, txIdx...); db > peak {
						peak = db
					}
				}
				keep = peak >= *a.ThresholdDB
			}
			if keep {
				for _, seq := range rx.sequences() {
					kept[seq] = true
				}
			}
		}
	}

	keptSorted := make([]int, 0, len(kept))
	for seq := range kept {
		keptSorted = append(keptSorted, seq)
	}
	sort.Ints(keptSorted)

	bySequence := map[int]ports.Port{}
	for _, p := range a.Record.Ports {
		bySequence[p.Sequence] = p
	}
	trimmed := make([]ports.Port, 0, len(keptSorted))
	for newSeq, origSeq := range keptSorted {
		p, ok := bySequence[origSeq]
		if !ok {
			return nil, ports.Validationf("port record has no sequence %d", origSeq)
		}
		p.Sequence = newSeq + 1
		p.Name = ports.PrefixPortName(p.Name, newSeq+1)
		trimmed = append(trimmed, p)
	}

	txGroups, rxGroups := classify(trimmed)

	keptRxGroups := len(rxGroups)
	keptRxPorts := 0
	for _, rx := range rxGroups {
		keptRxPorts += len(rx.ports)
	}

	tsPath := a.NetworkPath
	if a.ThresholdDB != nil && keptRxGroups < totalRxGroups {
		var err error
		tsPath, err = a.writeTrimmedTouchstone(tx, keptSorted)
		if err != nil {
			return nil, err
		}
	}

	res := &pruneResult{
		keptSequences:  keptSorted,
		trimmedPorts:   trimmed,
		txGroups:       txGroups,
		rxGroups:       rxGroups,
		touchstonePath: tsPath,
		stats: PruneStats{
			TxLabel:        tx.label,
			ThresholdDB:    a.ThresholdDB,
			KeptPorts:      len(keptSorted),
			TotalPorts:     total,
			KeptRxPorts:    keptRxPorts,
			TotalRxPorts:   totalRxPorts,
			KeptRxGroups:   keptRxGroups,
			TotalRxGroups:  totalRxGroups,
			TouchstonePath: tsPath,
		},
	}
	return res, nil
}

// writeTrimmedTouchstone extracts the kept ports into a smaller network
// model cached under the work directory.
func (a *Analyzer) writeTrimmedTouchstone(tx *group, keptSequences []int) (string, error) {
	indices := make([]int, len(keptSequences))
	for i, seq := range keptSequences {
		indices[i] = seq - 1
	}
	sub, err := a.Network.Subnetwork(indices)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(a.WorkDir, trimmedTouchstoneDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	stem := strings.TrimSuffix(filepath.Base(a.NetworkPath), filepath.Ext(a.NetworkPath))
	name := fmt.Sprintf("%s_%s_%dp.s%dp", stem, sanitizeLabel(tx.label), len(indices), len(indices))
	path := filepath.Join(dir, name)
	if err := sub.WriteFile(path); err != nil {
		return "", err
	}
	return path, nil
}

// PreRun computes the prune result for every transmitter without running
// the simulator and returns the per-transmitter stats plus the average
// kept ratios.
func (a *Analyzer) PreRun() ([]PruneStats, float64, float64, error) {
	var stats []PruneStats
	portRatio, rxRatio := 0.0, 0.0
	for _, tx := range a.txGroups {
		res, err := a.pruneFor(tx)
		if err != nil {
			return nil, 0, 0, err
		}
		stats = append(stats, res.stats)
		portRatio += float64(res.stats.KeptPorts) / float64(res.stats.TotalPorts)
		if res.stats.TotalRxPorts > 0 {
			rxRatio += float64(res.stats.KeptRxPorts) / float64(res.stats.TotalRxPorts)
		}
	}
	if len(stats) > 0 {
		portRatio /= float64(len(stats))
		rxRatio /= float64(len(stats))
	} else {
		portRatio, rxRatio = math.NaN(), math.NaN()
	}
	return stats, portRatio, rxRatio, nil
}
