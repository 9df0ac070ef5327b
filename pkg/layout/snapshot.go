package layout

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Snapshot is the JSON exchange document written by the layout tool next to
// the imported design: per-component (pin, net) tuples plus the board's
// differential pair table.
type Snapshot struct {
	// Component maps reference designator to [pin, net] tuples.
	Component map[string][][2]string `json:"component"`
	// Diff maps differential pair name to [positive, negative] nets.
	Diff map[string][2]string `json:"diff"`
}

// SnapshotPathFor derives the snapshot path for a layout: the container
// extension replaced by .json.
func SnapshotPathFor(layoutPath string) string {
	for _, ext := range []string{".aedb", ".brd"} {
		if strings.HasSuffix(layoutPath, ext) {
			return strings.TrimSuffix(layoutPath, ext) + ".json"
		}
	}
	return layoutPath + ".json"
}

// LoadSnapshot reads a snapshot document and assembles the Design handle.
func LoadSnapshot(layoutPath, snapshotPath string) (*Design, error) {
	format, err := DetectFormat(layoutPath)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(snapshotPath)
	if err != nil {
		return nil, &ImportError{Path: layoutPath, Err: err}
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, &ImportError{Path: layoutPath, Err: fmt.Errorf("malformed snapshot: %w", err)}
	}
	return FromSnapshot(layoutPath, format, snapshotPath, &snap)
}

// FromSnapshot builds a Design from an in-memory snapshot.
func FromSnapshot(layoutPath string, format Format, snapshotPath string, snap *Snapshot) (*Design, error) {
	if len(snap.Component) == 0 {
		return nil, &ImportError{Path: layoutPath, Err: fmt.Errorf("snapshot lists no components")}
	}
	d := &Design{
		Path:         layoutPath,
		Format:       format,
		SnapshotPath: snapshotPath,
		components:   make(map[string]*Component, len(snap.Component)),
		diffPairs:    make(map[string]DiffPair, len(snap.Diff)),
	}
	for name, pins := range snap.Component {
		c := &Component{Name: name, Pins: make([]Pin, 0, len(pins))}
		for _, tuple := range pins {
			c.Pins = append(c.Pins, Pin{Name: tuple[0], Net: tuple[1]})
		}
		d.components[name] = c
	}
	for name, nets := range snap.Diff {
		d.diffPairs[name] = DiffPair{Name: name, Positive: nets[0], Negative: nets[1]}
	}
	return d, nil
}

// SaveSnapshot writes the snapshot document; used by the in-memory layout
// simulator and by tests.
func SaveSnapshot(path string, snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
