// Package session owns the workflow state: which stage artifacts exist,
// which stages may run, and the invalidation of downstream artifacts when
// an earlier stage is re-run. Stages execute one at a time.
package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"github.com/channeltrace/cct/internal/ctxlog"
	"github.com/channeltrace/cct/pkg/channel"
	"github.com/channeltrace/cct/pkg/engine"
	"github.com/channeltrace/cct/pkg/layout"
	"github.com/channeltrace/cct/pkg/ports"
	"github.com/channeltrace/cct/pkg/solve"
)

// Stage identifies one step of the workflow.
type Stage int

const (
	StageImport Stage = iota
	StagePortSetup
	StageSimulation
	StageCCT
	StageResult
)

func (s Stage) String() string {
	switch s {
	case StageImport:
		return "Import"
	case StagePortSetup:
		return "Port Setup"
	case StageSimulation:
		return "Simulation"
	case StageCCT:
		return "CCT"
	case StageResult:
		return "Result"
	}
	return "unknown"
}

// ErrBusy is returned when a stage is started while another one runs.
var ErrBusy = errors.New("session: a stage is already running")

// Session carries the artifacts produced so far. All exported methods are
// safe for concurrent use; stage runs are serialized.
type Session struct {
	Engine engine.Engine

	mu      sync.RWMutex
	running sync.Mutex

	design         *layout.Design
	record         *ports.Record
	recordPath     string
	touchstonePath string
	reportPath     string
	plotPaths      []string
	rows           []channel.Row
	pruneStats     []channel.PruneStats
}

// New creates an empty session driving the given engine.
func New(eng engine.Engine) *Session {
	return &Session{Engine: eng}
}

// Snapshot is an immutable view of the session for rendering.
type Snapshot struct {
	LayoutPath     string
	AppliedPath    string
	RecordPath     string
	PortCount      int
	TouchstonePath string
	ReportPath     string
	PlotPaths      []string
	Rows           []channel.Row
	PruneStats     []channel.PruneStats
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		RecordPath:     s.recordPath,
		TouchstonePath: s.touchstonePath,
		ReportPath:     s.reportPath,
		PlotPaths:      append([]string(nil), s.plotPaths...),
		Rows:           append([]channel.Row(nil), s.rows...),
		PruneStats:     append([]channel.PruneStats(nil), s.pruneStats...),
	}
	if s.design != nil {
		snap.LayoutPath = s.design.Path
		snap.AppliedPath = s.design.AppliedPath
	}
	if s.record != nil {
		snap.PortCount = s.record.PortCount()
	}
	return snap
}

// Design returns the imported design handle, or nil.
func (s *Session) Design() *layout.Design {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.design
}

// Record returns the current port record, or nil.
func (s *Session) Record() *ports.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record
}

// CanEnter reports whether a stage's prerequisites exist. Backward
// navigation is always allowed; this gates running a stage.
func (s *Session) CanEnter(st Stage) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch st {
	case StageImport:
		return true
	case StagePortSetup:
		return s.design != nil
	case StageSimulation:
		return s.record != nil
	case StageCCT:
		return s.touchstonePath != ""
	case StageResult:
		return s.reportPath != ""
	}
	return false
}

func (s *Session) begin() error {
	if !s.running.TryLock() {
		return ErrBusy
	}
	return nil
}

// Import runs the Import stage: the engine reads the layout, produces the
// design snapshot and the session loads it. Every downstream artifact is
// invalidated.
func (s *Session) Import(ctx context.Context, layoutPath, stackupPath string) (*layout.Design, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.running.Unlock()

	if _, err := layout.DetectFormat(layoutPath); err != nil {
		return nil, err
	}
	log := ctxlog.FromContext(ctx)
	log.Info("importing layout", "path", layoutPath)
	snapPath, err := s.Engine.Import(ctx, layoutPath, stackupPath)
	if err != nil {
		return nil, err
	}
	design, err := layout.LoadSnapshot(layoutPath, snapPath)
	if err != nil {
		return nil, err
	}
	log.Info("layout imported", "components", len(design.Components()))

	s.mu.Lock()
	s.design = design
	s.record = nil
	s.recordPath = ""
	s.invalidateFromSimulationLocked()
	s.mu.Unlock()
	return design, nil
}

// BuildPorts runs the Port Setup stage: validates the selection, writes
// ports.json next to the layout and applies the ports to the layout
// database. The network model and everything after it are invalidated.
func (s *Session) BuildPorts(ctx context.Context, sel ports.Selection) (*ports.Record, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.running.Unlock()

	s.mu.RLock()
	design := s.design
	s.mu.RUnlock()
	if design == nil {
		return nil, ports.Validationf("import a layout before building ports")
	}
	rec, err := ports.Build(design, sel)
	if err != nil {
		return nil, err
	}
	recordPath := filepath.Join(filepath.Dir(design.Path), "ports.json")
	if err := rec.Save(recordPath); err != nil {
		return nil, err
	}
	log := ctxlog.FromContext(ctx)
	log.Info("port record written", "path", recordPath, "ports", rec.PortCount())

	applied, err := ports.Apply(ctx, s.Engine, design, rec)
	if err != nil {
		return nil, err
	}
	log.Info("ports applied", "path", applied)

	s.mu.Lock()
	s.record = rec
	s.recordPath = recordPath
	s.invalidateFromSimulationLocked()
	s.mu.Unlock()
	return rec, nil
}

// RunSolve runs the Simulation stage and records the produced network
// model. The CCT report is invalidated.
func (s *Session) RunSolve(ctx context.Context, cfg *solve.Config) (string, error) {
	if err := s.begin(); err != nil {
		return "", err
	}
	defer s.running.Unlock()

	s.mu.RLock()
	design := s.design
	record := s.record
	s.mu.RUnlock()
	if design == nil || record == nil {
		return "", ports.Validationf("build and apply ports before running the simulation")
	}
	cfg.LayoutPath = design.Path
	if cfg.Cutout.Enabled && len(cfg.Cutout.SignalNets) == 0 {
		cfg.Cutout.SignalNets = record.SignalNets()
		cfg.Cutout.ReferenceNet = record.ReferenceNet
	}
	ctl := &solve.Controller{Layout: s.Engine, Solver: s.Engine}
	tsPath, err := ctl.Run(ctx, cfg)
	if err != nil {
		return "", err
	}
	ctxlog.FromContext(ctx).Info("network model produced", "path", tsPath)

	s.mu.Lock()
	s.touchstonePath = tsPath
	s.invalidateResultLocked()
	s.mu.Unlock()
	return tsPath, nil
}

// ChannelOptions parameterize the CCT stage.
type ChannelOptions struct {
	Tx          channel.TxParams
	Rx          channel.RxParams
	Transient   channel.TransientParams
	ThresholdDB *float64
	PlotDir     string
}

// PreRunChannel reports the prune statistics without simulating.
func (s *Session) PreRunChannel(ctx context.Context, opts ChannelOptions) ([]channel.PruneStats, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.running.Unlock()

	a, err := s.newAnalyzer(opts)
	if err != nil {
		return nil, err
	}
	stats, portRatio, rxRatio, err := a.PreRun()
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Info("prune preview",
		"avg_kept_ports", portRatio, "avg_kept_rx_ports", rxRatio)
	s.mu.Lock()
	s.pruneStats = stats
	s.mu.Unlock()
	return stats, nil
}

// RunChannel runs the CCT stage end to end: transient runs, metric
// reduction, the CSV report and the waveform plots.
func (s *Session) RunChannel(ctx context.Context, opts ChannelOptions) ([]channel.Row, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.running.Unlock()

	a, err := s.newAnalyzer(opts)
	if err != nil {
		return nil, err
	}
	if err := a.Run(ctx, s.Engine, opts.Transient); err != nil {
		return nil, err
	}

	s.mu.RLock()
	recordPath := s.recordPath
	s.mu.RUnlock()
	reportPath := filepath.Join(filepath.Dir(recordPath), "ports_cct.csv")
	rows, err := a.Report(reportPath)
	if err != nil {
		return nil, err
	}
	plotDir := opts.PlotDir
	if plotDir == "" {
		plotDir = filepath.Join(a.WorkDir, "plots")
	}
	plots, err := a.ExportPlots(plotDir)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Info("channel check complete",
		"report", reportPath, "rows", len(rows), "plots", len(plots))

	s.mu.Lock()
	s.reportPath = reportPath
	s.plotPaths = plots
	s.rows = rows
	s.mu.Unlock()
	return rows, nil
}

// newAnalyzer builds the channel analyzer against the current artifacts.
// The network model is re-validated against the record here so a stale
// model solved for an older record is rejected before any engine call.
func (s *Session) newAnalyzer(opts ChannelOptions) (*channel.Analyzer, error) {
	s.mu.RLock()
	record := s.record
	recordPath := s.recordPath
	tsPath := s.touchstonePath
	s.mu.RUnlock()
	if record == nil {
		return nil, ports.Validationf("build ports before running the channel check")
	}
	if tsPath == "" {
		return nil, ports.Validationf("run the frequency simulation before the channel check")
	}
	workDir := filepath.Join(filepath.Dir(recordPath), "cct_work")
	a, err := channel.NewAnalyzer(tsPath, record, workDir)
	if err != nil {
		return nil, err
	}
	a.SetTxParams(opts.Tx)
	a.SetRxParams(opts.Rx)
	a.SetThreshold(opts.ThresholdDB)
	return a, nil
}

func (s *Session) invalidateFromSimulationLocked() {
	s.touchstonePath = ""
	s.invalidateResultLocked()
}

func (s *Session) invalidateResultLocked() {
	s.reportPath = ""
	s.plotPaths = nil
	s.rows = nil
	s.pruneStats = nil
}
