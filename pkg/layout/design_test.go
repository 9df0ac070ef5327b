package layout

import (
	"errors"
	"path/filepath"
	"testing"
)

func testSnapshot() *Snapshot {
	return &Snapshot{
		Component: map[string][][2]string{
			"U1": {{"A1", "DQ0"}, {"A2", "DQ1"}, {"A3", "GND"}, {"A4", "CLK_P"}, {"A5", "CLK_N"}},
			"U2": {{"B1", "DQ0"}, {"B2", "DQ1"}, {"B3", "GND"}, {"B4", "CLK_P"}, {"B5", "CLK_N"}, {"B6", "VDD"}},
			"J1": {{"1", "VDD"}, {"2", "GND"}},
		},
		Diff: map[string][2]string{
			"CLK": {"CLK_P", "CLK_N"},
		},
	}
}

func testDesign(t *testing.T) *Design {
	t.Helper()
	d, err := FromSnapshot("board.aedb", FormatAEDB, "board.json", testSnapshot())
	if err != nil {
		t.Fatalf("FromSnapshot failed: %v", err)
	}
	return d
}

func TestDetectFormat(t *testing.T) {
	if f, err := DetectFormat("x/board.brd"); err != nil || f != FormatBRD {
		t.Errorf("DetectFormat(.brd) = %v, %v", f, err)
	}
	if f, err := DetectFormat("x/board.aedb"); err != nil || f != FormatAEDB {
		t.Errorf("DetectFormat(.aedb) = %v, %v", f, err)
	}
	_, err := DetectFormat("x/board.kicad_pcb")
	var ie *ImportError
	if !errors.As(err, &ie) {
		t.Errorf("DetectFormat(.kicad_pcb) error = %v, want ImportError", err)
	}
}

func TestComponentsSortedByPinCount(t *testing.T) {
	d := testDesign(t)
	comps := d.Components()
	if len(comps) != 3 {
		t.Fatalf("got %d components, want 3", len(comps))
	}
	if comps[0].Name != "U2" || comps[1].Name != "U1" || comps[2].Name != "J1" {
		t.Errorf("unexpected order: %s %s %s", comps[0].Name, comps[1].Name, comps[2].Name)
	}
}

func TestCommonNets(t *testing.T) {
	d := testDesign(t)
	common := d.CommonNets([]string{"U1"}, []string{"U2"})
	want := []string{"CLK_N", "CLK_P", "DQ0", "DQ1", "GND"}
	if len(common) != len(want) {
		t.Fatalf("common nets = %v, want %v", common, want)
	}
	for i := range want {
		if common[i] != want[i] {
			t.Fatalf("common nets = %v, want %v", common, want)
		}
	}
}

func TestSelectNets(t *testing.T) {
	d := testDesign(t)
	sel := d.SelectNets([]string{"U1"}, []string{"U2"})

	if len(sel.SingleEnded) != 2 || sel.SingleEnded[0] != "DQ0" || sel.SingleEnded[1] != "DQ1" {
		t.Errorf("single-ended = %v, want [DQ0 DQ1]", sel.SingleEnded)
	}
	if len(sel.Pairs) != 1 || sel.Pairs[0].Name != "CLK" {
		t.Errorf("pairs = %v, want [CLK]", sel.Pairs)
	}
	if len(sel.ReferenceCandidates) == 0 {
		t.Fatal("no reference candidates")
	}
	// GND has two pins across U1+U2, same as every other common net, so it
	// stays in rank order; the candidate list must contain it.
	found := false
	for _, net := range sel.ReferenceCandidates {
		if net == "GND" {
			found = true
		}
	}
	if !found {
		t.Errorf("reference candidates %v missing GND", sel.ReferenceCandidates)
	}
}

func TestSelectNetsExcludesIncompletePairs(t *testing.T) {
	snap := testSnapshot()
	// Break the pair: receiver no longer sees CLK_N.
	snap.Component["U2"] = [][2]string{{"B1", "DQ0"}, {"B4", "CLK_P"}}
	d, err := FromSnapshot("board.brd", FormatBRD, "board.json", snap)
	if err != nil {
		t.Fatalf("FromSnapshot failed: %v", err)
	}
	sel := d.SelectNets([]string{"U1"}, []string{"U2"})
	if len(sel.Pairs) != 0 {
		t.Errorf("pairs = %v, want none (incomplete on receiver side)", sel.Pairs)
	}
	// CLK_P belongs to a pair definition and must not leak into the
	// single-ended list.
	for _, net := range sel.SingleEnded {
		if net == "CLK_P" {
			t.Errorf("pair net CLK_P leaked into single-ended list")
		}
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "board.json")
	if err := SaveSnapshot(path, testSnapshot()); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	d, err := LoadSnapshot(filepath.Join(dir, "board.aedb"), path)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if _, ok := d.Component("U1"); !ok {
		t.Error("component U1 missing after round trip")
	}
	if !d.HasNet("DQ0") {
		t.Error("net DQ0 missing after round trip")
	}
	if got := d.SnapshotPath; got != path {
		t.Errorf("snapshot path = %q, want %q", got, path)
	}
}

func TestSnapshotPathFor(t *testing.T) {
	if got := SnapshotPathFor("/x/b.aedb"); got != "/x/b.json" {
		t.Errorf("SnapshotPathFor(.aedb) = %q", got)
	}
	if got := SnapshotPathFor("/x/b.brd"); got != "/x/b.json" {
		t.Errorf("SnapshotPathFor(.brd) = %q", got)
	}
}

func TestLoadSnapshotErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadSnapshot(filepath.Join(dir, "missing.aedb"), filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing snapshot")
	}
	var ie *ImportError
	_, err := LoadSnapshot(filepath.Join(dir, "missing.aedb"), filepath.Join(dir, "missing.json"))
	if !errors.As(err, &ie) {
		t.Fatalf("error = %v, want ImportError", err)
	}
}
