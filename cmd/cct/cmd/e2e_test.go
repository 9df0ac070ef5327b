package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// runCommand executes the root command with args, capturing stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	// Read in background to prevent the pipe buffer from blocking.
	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		buf.ReadFrom(r)
		close(done)
	}()

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	w.Close()
	os.Stdout = old
	<-done
	return buf.String(), err
}

// resetState clears flag values and the memoized engine between tests.
func resetState() {
	verbose = false
	engineKind = "exec"
	sharedEngine = nil
	importStackup = ""
	portsLayout = ""
	portsTx = nil
	portsRx = nil
	portsNets = nil
	portsPairs = nil
	portsRef = ""
	simSolver = "SIwave"
	simCutout = false
	simExpansion = "0.002"
	channelModel = ""
	channelNoPrune = false
	channelOut = ""
	channelPlots = ""
	channelNoPlots = false
}

// TestWorkflowE2E drives the full workflow against the simulator backend.
func TestWorkflowE2E(t *testing.T) {
	resetState()
	dir := t.TempDir()
	layoutPath := filepath.Join(dir, "board.aedb")
	confPath := filepath.Join(dir, "cct.hcl")
	global := []string{"--engine", "sim", "--config", confPath}

	out, err := runCommand(t, append(global, "import", layoutPath)...)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	for _, want := range []string{"Imported", "U1", "U2", "CLK_P / CLK_N"} {
		if !strings.Contains(out, want) {
			t.Errorf("import output missing %q:\n%s", want, out)
		}
	}

	out, err = runCommand(t, append(global, "ports", "nets",
		"--layout", layoutPath, "--tx", "U1", "--rx", "U2")...)
	if err != nil {
		t.Fatalf("ports nets failed: %v", err)
	}
	for _, want := range []string{"DQ0", "DQ1", "Pair CLK", "Reference candidates"} {
		if !strings.Contains(out, want) {
			t.Errorf("ports nets output missing %q:\n%s", want, out)
		}
	}

	out, err = runCommand(t, append(global, "ports", "build",
		"--layout", layoutPath, "--tx", "U1", "--rx", "U2",
		"--net", "DQ0,DQ1", "--pair", "CLK", "--ref", "GND")...)
	if err != nil {
		t.Fatalf("ports build failed: %v", err)
	}
	for _, want := range []string{"Built 8 ports", "1_U1_DQ0", "8_U2_CLK_N", "Applied to"} {
		if !strings.Contains(out, want) {
			t.Errorf("ports build output missing %q:\n%s", want, out)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "ports.json")); err != nil {
		t.Errorf("ports.json not written: %v", err)
	}

	out, err = runCommand(t, append(global, "ports", "apply", "--layout", layoutPath)...)
	if err != nil {
		t.Fatalf("ports apply failed: %v", err)
	}
	if !strings.Contains(out, "Applied 8 ports") {
		t.Errorf("ports apply output:\n%s", out)
	}

	out, err = runCommand(t, append(global, "sim", "run", layoutPath, "--cutout")...)
	if err != nil {
		t.Fatalf("sim run failed: %v", err)
	}
	if !strings.Contains(out, "Network model written to") {
		t.Errorf("sim run output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "result.json")); err != nil {
		t.Errorf("result.json not written: %v", err)
	}

	out, err = runCommand(t, append(global, "channel", "prerun", layoutPath)...)
	if err != nil {
		t.Fatalf("channel prerun failed: %v", err)
	}
	if !strings.Contains(out, "Average kept ports") {
		t.Errorf("channel prerun output:\n%s", out)
	}

	out, err = runCommand(t, append(global, "channel", "run", layoutPath, "--no-plots")...)
	if err != nil {
		t.Fatalf("channel run failed: %v", err)
	}
	for _, want := range []string{"1_U1_DQ0", "2_U2_DQ0", "Report written to"} {
		if !strings.Contains(out, want) {
			t.Errorf("channel run output missing %q:\n%s", want, out)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "ports_cct.csv")); err != nil {
		t.Errorf("ports_cct.csv not written: %v", err)
	}
}

func TestImportRejectsUnknownFormat(t *testing.T) {
	resetState()
	if _, err := runCommand(t, "--engine", "sim", "import", "board.kicad_pcb"); err == nil {
		t.Error("import accepted an unsupported layout format")
	}
}

func TestExecEngineNeedsBridge(t *testing.T) {
	resetState()
	dir := t.TempDir()
	_, err := runCommand(t, "--engine", "exec",
		"--config", filepath.Join(dir, "cct.hcl"),
		"import", filepath.Join(dir, "board.aedb"))
	if err == nil || !strings.Contains(err.Error(), "bridge") {
		t.Errorf("err = %v, want missing bridge error", err)
	}
}

func TestUnknownEngineKind(t *testing.T) {
	resetState()
	dir := t.TempDir()
	_, err := runCommand(t, "--engine", "fpga",
		"--config", filepath.Join(dir, "cct.hcl"),
		"import", filepath.Join(dir, "board.aedb"))
	if err == nil || !strings.Contains(err.Error(), "unknown engine backend") {
		t.Errorf("err = %v, want unknown backend error", err)
	}
}
