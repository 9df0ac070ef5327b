package channel

import (
	"context"
	"errors"
	"fmt"
	"math/cmplx"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/channeltrace/cct/pkg/engine"
	"github.com/channeltrace/cct/pkg/ports"
	"github.com/channeltrace/cct/pkg/touchstone"
)

// twoNetRecord is the canonical 4-port record: DQ0 and DQ1, each with a
// controller port and a DRAM port.
func twoNetRecord() *ports.Record {
	return &ports.Record{
		LayoutPath:   "board.aedb",
		ReferenceNet: "GND",
		Ports: []ports.Port{
			{Sequence: 1, Name: "1_U1_DQ0", Component: "U1", Role: ports.RoleController, Net: "DQ0", NetType: ports.NetSingle, ReferenceNet: "GND"},
			{Sequence: 2, Name: "2_U2_DQ0", Component: "U2", Role: ports.RoleDRAM, Net: "DQ0", NetType: ports.NetSingle, ReferenceNet: "GND"},
			{Sequence: 3, Name: "3_U1_DQ1", Component: "U1", Role: ports.RoleController, Net: "DQ1", NetType: ports.NetSingle, ReferenceNet: "GND"},
			{Sequence: 4, Name: "4_U2_DQ1", Component: "U2", Role: ports.RoleDRAM, Net: "DQ1", NetType: ports.NetSingle, ReferenceNet: "GND"},
		},
	}
}

func diffRecord() *ports.Record {
	return &ports.Record{
		LayoutPath:   "board.aedb",
		ReferenceNet: "GND",
		Ports: []ports.Port{
			{Sequence: 1, Name: "1_U1_CLK_P", Component: "U1", Role: ports.RoleController, Net: "CLK_P", NetType: ports.NetDifferential, Pair: "CLK", Polarity: ports.PolarityPositive},
			{Sequence: 2, Name: "2_U2_CLK_P", Component: "U2", Role: ports.RoleDRAM, Net: "CLK_P", NetType: ports.NetDifferential, Pair: "CLK", Polarity: ports.PolarityPositive},
			{Sequence: 3, Name: "3_U1_CLK_N", Component: "U1", Role: ports.RoleController, Net: "CLK_N", NetType: ports.NetDifferential, Pair: "CLK", Polarity: ports.PolarityNegative},
			{Sequence: 4, Name: "4_U2_CLK_N", Component: "U2", Role: ports.RoleDRAM, Net: "CLK_N", NetType: ports.NetDifferential, Pair: "CLK", Polarity: ports.PolarityNegative},
		},
	}
}

// writeNetwork builds an n-port network with the given off-default
// entries (rx, tx) -> magnitude and writes it next to the test dir.
func writeNetwork(t *testing.T, dir string, n int, entries map[[2]int]float64) string {
	t.Helper()
	net := &touchstone.Network{NumPorts: n, Reference: 50}
	for k := 0; k < 3; k++ {
		f := 1e9 * float64(k+1)
		net.FreqHz = append(net.FreqHz, f)
		matrix := make([][]complex128, n)
		for i := range matrix {
			matrix[i] = make([]complex128, n)
			for j := range matrix[i] {
				mag := 1e-6
				if m, ok := entries[[2]int{i, j}]; ok {
					mag = m
				}
				matrix[i][j] = cmplx.Rect(mag, 0)
			}
		}
		net.S = append(net.S, matrix)
	}
	path := filepath.Join(dir, fmt.Sprintf("board.s%dp", n))
	if err := net.WriteFile(path); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestNewAnalyzerRejectsPortCountMismatch(t *testing.T) {
	dir := t.TempDir()
	tsPath := writeNetwork(t, dir, 4, nil)
	rec := twoNetRecord()
	rec.Ports = append(rec.Ports,
		ports.Port{Sequence: 5, Name: "5_U1_DQ2", Component: "U1", Role: ports.RoleController, Net: "DQ2", NetType: ports.NetSingle},
		ports.Port{Sequence: 6, Name: "6_U2_DQ2", Component: "U2", Role: ports.RoleDRAM, Net: "DQ2", NetType: ports.NetSingle},
	)
	_, err := NewAnalyzer(tsPath, rec, dir)
	var ve *ports.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("NewAnalyzer error = %v, want ValidationError", err)
	}
}

func TestClassifySinglesAndPairs(t *testing.T) {
	txs, rxs := classify(twoNetRecord().Ports)
	if len(txs) != 2 || len(rxs) != 2 {
		t.Fatalf("groups = %d tx, %d rx, want 2/2", len(txs), len(rxs))
	}
	if txs[0].key != "DQ0" || txs[1].key != "DQ1" {
		t.Errorf("tx keys = %s, %s", txs[0].key, txs[1].key)
	}

	dtxs, drxs := classify(diffRecord().Ports)
	if len(dtxs) != 1 || len(drxs) != 1 {
		t.Fatalf("diff groups = %d tx, %d rx, want 1/1", len(dtxs), len(drxs))
	}
	if !dtxs[0].diff || dtxs[0].label != "CLK" || dtxs[0].key != "CLK_N::CLK_P" {
		t.Errorf("diff tx = %+v", dtxs[0])
	}
	if dtxs[0].ports[0].Polarity != ports.PolarityPositive {
		t.Errorf("first leg polarity = %s, want positive", dtxs[0].ports[0].Polarity)
	}
}

func TestClassifyDropsIncompletePair(t *testing.T) {
	rec := diffRecord()
	rec.Ports = rec.Ports[:3] // receiver negative leg missing
	_, rxs := classify(rec.Ports)
	if len(rxs) != 0 {
		t.Errorf("rx groups = %d, want 0 for incomplete pair", len(rxs))
	}
}

func TestNetlistSingleEnded(t *testing.T) {
	txs, rxs := classify(twoNetRecord().Ports)
	text := buildNetlist("chan.s4p", twoNetRecord().Ports, txs, rxs, txs[0], DefaultTxParams(), DefaultRxParams())
	lines := strings.Split(text, "\n")

	if !strings.Contains(lines[0], `.model "Channel" S TSTONEFILE="chan.s4p"`) {
		t.Errorf("model line = %q", lines[0])
	}
	if !strings.Contains(lines[0], "INTERPOLATION=LINEAR INTDATTYP=MA HIGHPASS=10 LOWPASS=10") {
		t.Errorf("model line lacks interpolation options: %q", lines[0])
	}
	if lines[1] != `S1 net_1 net_2 net_3 net_4 FQMODEL="Channel"` {
		t.Errorf("instance line = %q", lines[1])
	}
	if !strings.Contains(text, "V1 netb_1 0 PULSE(0 0.8V 1e-10 30ps 30ps 133ps 1.5e+100)") {
		t.Errorf("active pulse source missing:\n%s", text)
	}
	if strings.Contains(text, "V3 ") {
		t.Errorf("passive transmitter has a source:\n%s", text)
	}
	for _, want := range []string{
		"R1 netb_1 net_1 40ohm", "C1 netb_1 0 1pF",
		"R3 netb_3 net_3 40ohm", "C3 netb_3 0 1pF",
		"R2 net_2 0 30ohm", "C2 net_2 0 1.8pF",
		"R4 net_4 0 30ohm", "C4 net_4 0 1.8pF",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("netlist missing %q:\n%s", want, text)
		}
	}
}

func TestNetlistDifferentialDrive(t *testing.T) {
	txs, rxs := classify(diffRecord().Ports)
	text := buildNetlist("chan.s4p", diffRecord().Ports, txs, rxs, txs[0], DefaultTxParams(), DefaultRxParams())
	if !strings.Contains(text, "V1 netb_1 0 PULSE(0 0.5*0.8V") {
		t.Errorf("positive leg drive missing:\n%s", text)
	}
	if !strings.Contains(text, "V3 netb_3 0 PULSE(0 -0.5*0.8V") {
		t.Errorf("negative leg drive missing:\n%s", text)
	}
}

// runAnalyzer drives a full two-net analysis with deterministic
// waveforms: the victim sees a clean triangle, the aggressor a flat
// 10 mV floor.
func runAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	dir := t.TempDir()
	tsPath := writeNetwork(t, dir, 4, map[[2]int]float64{
		{1, 0}: 0.8, {0, 1}: 0.8,
		{3, 2}: 0.8, {2, 3}: 0.8,
	})
	a, err := NewAnalyzer(tsPath, twoNetRecord(), filepath.Join(dir, "cct_work"))
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	p := DefaultTxParams()
	p.UnitInterval = "200ps"
	a.SetTxParams(p)

	run := 0
	eng := &engine.SimEngine{
		OnTransient: func(netlistPath string, probes []string) (*engine.TransientResult, error) {
			run++
			victim := "net_2"
			if run == 2 {
				victim = "net_4"
			}
			res := &engine.TransientResult{Volts: map[string][]float64{}}
			for i := 0; i <= 10; i++ {
				res.Time = append(res.Time, float64(i)*1e-10)
			}
			for _, p := range probes {
				v := make([]float64, 11)
				if p == victim {
					v[2], v[3], v[4] = 0.5, 1.0, 0.5
				} else {
					for i := range v {
						v[i] = 0.01
					}
				}
				res.Volts[p] = v
			}
			return res, nil
		},
	}
	if err := a.Run(context.Background(), eng, DefaultTransientParams()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run != 2 {
		t.Fatalf("ran %d transients, want one per transmitter", run)
	}
	return a
}

func TestAnalyzerMetrics(t *testing.T) {
	a := runAnalyzer(t)
	rows, err := a.Calculate()
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	r := rows[0]
	if r.TxName != "1_U1_DQ0" || r.RxName != "2_U2_DQ0" {
		t.Errorf("row pairing = %s -> %s", r.TxName, r.RxName)
	}
	// Time axis 0..1000 ps; triangle window of 200 ps integrates 150 V*ps
	// with 50 V*ps left over; the 10 mV aggressor floor adds 10 V*ps.
	if !almostEqual(r.Sig, 150, 1e-6) {
		t.Errorf("sig = %v, want 150", r.Sig)
	}
	if !almostEqual(r.ISI, 50, 1e-6) {
		t.Errorf("isi = %v, want 50", r.ISI)
	}
	if !almostEqual(r.Xtalk, 10, 1e-6) {
		t.Errorf("xtalk = %v, want 10", r.Xtalk)
	}
	if !almostEqual(r.PseudoEye, 90, 1e-6) {
		t.Errorf("pseudo eye = %v, want 90", r.PseudoEye)
	}
	if !almostEqual(r.PowerRatio, 2.5, 1e-6) {
		t.Errorf("power ratio = %v, want 2.5", r.PowerRatio)
	}
}

func TestReportCSV(t *testing.T) {
	a := runAnalyzer(t)
	path := filepath.Join(t.TempDir(), "report", "cct.csv")
	rows, err := a.Report(path)
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(string(data), "\n")
	if lines[0] != reportHeader {
		t.Errorf("header = %q", lines[0])
	}
	if len(lines) != 1+len(rows) {
		t.Fatalf("csv has %d lines, want %d", len(lines), 1+len(rows))
	}
	if !strings.HasPrefix(lines[1], "1_U1_DQ0, 2_U2_DQ0, 150.000, 50.000, 10.000, 90.000, 2.500") {
		t.Errorf("first row = %q", lines[1])
	}
}

func TestPruneKeepsExpectedReceiver(t *testing.T) {
	dir := t.TempDir()
	// Thru paths strong, cross coupling far below threshold.
	tsPath := writeNetwork(t, dir, 4, map[[2]int]float64{
		{1, 0}: 0.8, {3, 2}: 0.8,
	})
	a, err := NewAnalyzer(tsPath, twoNetRecord(), filepath.Join(dir, "cct_work"))
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	threshold := -40.0
	a.SetThreshold(&threshold)

	stats, portRatio, rxRatio, err := a.PreRun()
	if err != nil {
		t.Fatalf("PreRun failed: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("got %d stats, want 2", len(stats))
	}
	s := stats[0]
	if s.KeptPorts != 3 || s.TotalPorts != 4 {
		t.Errorf("kept ports = %d/%d, want 3/4", s.KeptPorts, s.TotalPorts)
	}
	if s.KeptRxPorts != 1 || s.TotalRxPorts != 2 {
		t.Errorf("kept rx = %d/%d, want 1/2", s.KeptRxPorts, s.TotalRxPorts)
	}
	if !almostEqual(portRatio, 0.75, 1e-9) || !almostEqual(rxRatio, 0.5, 1e-9) {
		t.Errorf("ratios = %v, %v, want 0.75, 0.5", portRatio, rxRatio)
	}
	if !strings.Contains(s.TouchstonePath, trimmedTouchstoneDir) {
		t.Errorf("touchstone not trimmed: %q", s.TouchstonePath)
	}
	trimmed, err := touchstone.Load(s.TouchstonePath)
	if err != nil {
		t.Fatalf("trimmed network unreadable: %v", err)
	}
	if trimmed.NumPorts != 3 {
		t.Errorf("trimmed ports = %d, want 3", trimmed.NumPorts)
	}
}

func TestPruneKeepsCoupledAggressor(t *testing.T) {
	dir := t.TempDir()
	// DQ1's receiver couples strongly to DQ0's transmitter.
	tsPath := writeNetwork(t, dir, 4, map[[2]int]float64{
		{1, 0}: 0.8, {3, 2}: 0.8, {3, 0}: 0.1,
	})
	a, err := NewAnalyzer(tsPath, twoNetRecord(), filepath.Join(dir, "cct_work"))
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	threshold := -40.0 // 0.1 is -20 dB, above threshold
	a.SetThreshold(&threshold)
	stats, _, _, err := a.PreRun()
	if err != nil {
		t.Fatalf("PreRun failed: %v", err)
	}
	if stats[0].KeptPorts != 4 {
		t.Errorf("tx DQ0 kept %d ports, want all 4", stats[0].KeptPorts)
	}
	// The reverse direction stays quiet, so tx DQ1 still prunes.
	if stats[1].KeptPorts != 3 {
		t.Errorf("tx DQ1 kept %d ports, want 3", stats[1].KeptPorts)
	}
}

func TestRunWithPruningRenumbersNetlist(t *testing.T) {
	dir := t.TempDir()
	tsPath := writeNetwork(t, dir, 4, map[[2]int]float64{
		{1, 0}: 0.8, {3, 2}: 0.8,
	})
	a, err := NewAnalyzer(tsPath, twoNetRecord(), filepath.Join(dir, "cct_work"))
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	threshold := -40.0
	a.SetThreshold(&threshold)

	var netlists []string
	eng := &engine.SimEngine{
		OnTransient: func(netlistPath string, probes []string) (*engine.TransientResult, error) {
			data, err := os.ReadFile(netlistPath)
			if err != nil {
				return nil, err
			}
			netlists = append(netlists, string(data))
			res := &engine.TransientResult{Volts: map[string][]float64{}}
			for i := 0; i <= 10; i++ {
				res.Time = append(res.Time, float64(i)*1e-10)
			}
			for _, p := range probes {
				res.Volts[p] = make([]float64, 11)
			}
			return res, nil
		},
	}
	if err := a.Run(context.Background(), eng, DefaultTransientParams()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(netlists) != 2 {
		t.Fatalf("got %d netlists, want 2", len(netlists))
	}
	// Three kept ports renumber to net_1..net_3.
	if !strings.Contains(netlists[0], `S1 net_1 net_2 net_3 FQMODEL="Channel"`) {
		t.Errorf("first netlist not trimmed:\n%s", netlists[0])
	}
	if !strings.Contains(netlists[0], trimmedTouchstoneDir) {
		t.Errorf("first netlist references the full network:\n%s", netlists[0])
	}
}

func TestRunRejectsBadParams(t *testing.T) {
	dir := t.TempDir()
	tsPath := writeNetwork(t, dir, 4, nil)
	a, err := NewAnalyzer(tsPath, twoNetRecord(), dir)
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	p := DefaultTxParams()
	p.VHigh = "fast"
	a.SetTxParams(p)
	eng := &engine.SimEngine{}
	err = a.Run(context.Background(), eng, DefaultTransientParams())
	var ve *ports.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Run error = %v, want ValidationError", err)
	}
	if len(eng.Calls) != 0 {
		t.Errorf("engine invoked %v despite invalid params", eng.Calls)
	}
}
