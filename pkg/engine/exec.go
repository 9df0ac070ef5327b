package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/channeltrace/cct/pkg/layout"
	"github.com/channeltrace/cct/pkg/ports"
)

// Line protocol spoken by the bridge executable on stdout. Anything else
// is treated as a plain message.
const (
	prefixMessage  = "MESSAGE:"
	prefixProgress = "PROGRESS:"
	prefixFinished = "FINISHED:"
)

// ExecEngine drives the vendor engine through the bridge executable. Each
// operation is one bridge invocation; the bridge reports progress on
// stdout and failures on stderr with a nonzero exit status. Cancelling the
// context kills the bridge process, which is best effort: the vendor
// engine may keep lock files behind.
type ExecEngine struct {
	// Bridge is the path of the bridge executable.
	Bridge string
	// Version selects the installed engine release, e.g. "2024.1".
	Version string

	// OnMessage and OnProgress, when set, receive the bridge's MESSAGE
	// and PROGRESS lines as they arrive.
	OnMessage  func(text string)
	OnProgress func(percent int)
}

var _ Engine = (*ExecEngine)(nil)

func (e *ExecEngine) Import(ctx context.Context, layoutPath, stackupPath string) (string, error) {
	args := []string{"import", "--layout", layoutPath}
	if stackupPath != "" {
		args = append(args, "--stackup", stackupPath)
	}
	finished, err := e.run(ctx, "import", args)
	if err != nil {
		return "", err
	}
	if finished == "" {
		finished = layout.SnapshotPathFor(layoutPath)
	}
	return finished, nil
}

func (e *ExecEngine) ApplyPorts(ctx context.Context, design *layout.Design, rec *ports.Record) (string, error) {
	portsPath := filepath.Join(filepath.Dir(design.Path), "ports.json")
	if err := rec.Save(portsPath); err != nil {
		return "", &EngineError{Op: "apply-ports", Err: err}
	}
	finished, err := e.run(ctx, "apply-ports", []string{"apply-ports", "--layout", design.Path, "--ports", portsPath})
	if err != nil {
		return "", err
	}
	if finished == "" {
		return "", Enginef("apply-ports", "bridge reported no applied layout path")
	}
	return finished, nil
}

func (e *ExecEngine) PrepareSolve(ctx context.Context, appliedPath, configPath string) error {
	_, err := e.run(ctx, "prepare-solve", []string{"prepare-solve", "--layout", appliedPath, "--config", configPath})
	return err
}

func (e *ExecEngine) Solve(ctx context.Context, appliedPath string) (string, error) {
	finished, err := e.run(ctx, "solve", []string{"solve", "--layout", appliedPath})
	if err != nil {
		return "", err
	}
	if finished == "" {
		return "", Enginef("solve", "bridge reported no touchstone path")
	}
	return finished, nil
}

func (e *ExecEngine) RunTransient(ctx context.Context, netlistPath string, probes []string) (*TransientResult, error) {
	args := []string{"transient", "--netlist", netlistPath}
	for _, p := range probes {
		args = append(args, "--probe", p)
	}
	finished, err := e.run(ctx, "transient", args)
	if err != nil {
		return nil, err
	}
	if finished == "" {
		return nil, Enginef("transient", "bridge reported no waveform path")
	}
	f, err := os.Open(finished)
	if err != nil {
		return nil, &EngineError{Op: "transient", Err: err}
	}
	defer f.Close()
	res, err := ReadWaveformCSV(f)
	if err != nil {
		return nil, &EngineError{Op: "transient", Detail: finished, Err: err}
	}
	return res, nil
}

// run executes one bridge invocation and scans its stdout for protocol
// lines, returning the payload of the last FINISHED line.
func (e *ExecEngine) run(ctx context.Context, op string, args []string) (string, error) {
	if e.Bridge == "" {
		return "", Enginef(op, "no bridge executable configured")
	}
	if e.Version != "" {
		args = append(args, "--version", e.Version)
	}
	cmd := exec.CommandContext(ctx, e.Bridge, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", &EngineError{Op: op, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return "", &EngineError{Op: op, Err: err}
	}

	finished := ""
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, prefixFinished):
			finished = strings.TrimSpace(strings.TrimPrefix(line, prefixFinished))
		case strings.HasPrefix(line, prefixProgress):
			if e.OnProgress != nil {
				if pct, perr := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, prefixProgress))); perr == nil {
					e.OnProgress(pct)
				}
			}
		case strings.HasPrefix(line, prefixMessage):
			if e.OnMessage != nil {
				e.OnMessage(strings.TrimSpace(strings.TrimPrefix(line, prefixMessage)))
			}
		default:
			if e.OnMessage != nil {
				e.OnMessage(line)
			}
		}
	}
	scanErr := scanner.Err()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return "", &EngineError{Op: op, Detail: "cancelled", Err: ctx.Err()}
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", &EngineError{Op: op, Detail: detail, Err: err}
	}
	if scanErr != nil {
		return "", &EngineError{Op: op, Err: scanErr}
	}
	return finished, nil
}

// ReadWaveformCSV parses the bridge's waveform exchange format: a header
// row "time,<probe>,..." followed by one row per time point, values in
// seconds and volts.
func ReadWaveformCSV(r io.Reader) (*TransientResult, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("waveform csv: %w", err)
	}
	if len(header) < 2 || !strings.EqualFold(strings.TrimSpace(header[0]), "time") {
		return nil, fmt.Errorf("waveform csv: header %v lacks time column", header)
	}
	probes := make([]string, len(header)-1)
	for i, name := range header[1:] {
		probes[i] = strings.TrimSpace(name)
	}
	res := &TransientResult{Volts: make(map[string][]float64, len(probes))}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("waveform csv: %w", err)
		}
		if len(row) != len(header) {
			return nil, fmt.Errorf("waveform csv: row has %d fields, header has %d", len(row), len(header))
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(row[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("waveform csv: bad time %q: %w", row[0], err)
		}
		res.Time = append(res.Time, t)
		for i, name := range probes {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("waveform csv: bad value %q: %w", row[i+1], err)
			}
			res.Volts[name] = append(res.Volts[name], v)
		}
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}
