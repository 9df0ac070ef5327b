package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/channeltrace/cct/internal/config"
	"github.com/channeltrace/cct/pkg/session"
)

// StateSnapshot captures a copy of the state data for rendering without
// requiring the UI to hold locks while laying out widgets.
type StateSnapshot struct {
	Busy      bool
	Status    string
	LastError error

	Stage   session.Stage
	Session session.Snapshot

	Logs []string

	LastUpdated time.Time
}

// AppState tracks the mutable state shared between the Gio event loop and
// the background goroutines driving the workflow stages.
type AppState struct {
	mu sync.RWMutex

	session    *session.Session
	config     *config.Config
	configPath string

	busy      bool
	status    string
	lastError error

	stage  session.Stage
	cancel context.CancelFunc

	logs     []string
	logLimit int

	lastUpdated time.Time

	// onChange is invoked after every mutation so the window can request
	// a new frame.
	onChange func()
}

// NewState returns a baseline AppState around the given session.
func NewState(sess *session.Session, conf *config.Config, configPath string) *AppState {
	return &AppState{
		session:     sess,
		config:      conf,
		configPath:  configPath,
		status:      "Import a layout to begin",
		stage:       session.StageImport,
		logLimit:    300,
		lastUpdated: time.Now(),
	}
}

// Session returns the workflow session driving the stages.
func (s *AppState) Session() *session.Session { return s.session }

// Config returns the loaded tool configuration.
func (s *AppState) Config() *config.Config { return s.config }

// SaveConfig writes the configuration back so the engine version and
// stage defaults survive restarts.
func (s *AppState) SaveConfig() error {
	return s.config.Save(s.configPath)
}

// Snapshot returns a copy of the mutable state for rendering.
func (s *AppState) Snapshot() StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logCopy := make([]string, len(s.logs))
	copy(logCopy, s.logs)

	return StateSnapshot{
		Busy:        s.busy,
		Status:      s.status,
		LastError:   s.lastError,
		Stage:       s.stage,
		Session:     s.session.Snapshot(),
		Logs:        logCopy,
		LastUpdated: s.lastUpdated,
	}
}

func (s *AppState) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

// SetBusy toggles the busy flag.
func (s *AppState) SetBusy(busy bool) {
	s.mu.Lock()
	s.busy = busy
	if !busy {
		s.cancel = nil
	}
	s.lastUpdated = time.Now()
	s.mu.Unlock()
	s.notify()
}

// Busy returns the current busy flag.
func (s *AppState) Busy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.busy
}

// SetCancel stores the cancel function of the running stage.
func (s *AppState) SetCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
}

// CancelRun aborts the running stage, if any.
func (s *AppState) CancelRun() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// SetStatus updates the user-facing status message.
func (s *AppState) SetStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.lastUpdated = time.Now()
	s.mu.Unlock()
	s.notify()
}

// SetError stores the latest error surfaced to the UI.
func (s *AppState) SetError(err error) {
	s.mu.Lock()
	s.lastError = err
	s.lastUpdated = time.Now()
	s.mu.Unlock()
	s.notify()
}

// SetStage moves the wizard to the given stage.
func (s *AppState) SetStage(st session.Stage) {
	s.mu.Lock()
	if s.stage == st {
		s.mu.Unlock()
		return
	}
	s.stage = st
	s.lastUpdated = time.Now()
	s.mu.Unlock()
	s.notify()
}

// Stage reports the currently shown stage.
func (s *AppState) Stage() session.Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stage
}

// AppendLog appends a log message, trimming the oldest entries past the
// limit.
func (s *AppState) AppendLog(msg string) {
	s.mu.Lock()
	s.logs = append(s.logs, msg)
	if s.logLimit > 0 && len(s.logs) > s.logLimit {
		offset := len(s.logs) - s.logLimit
		s.logs = append([]string(nil), s.logs[offset:]...)
	}
	s.lastUpdated = time.Now()
	s.mu.Unlock()
	s.notify()
}

// logHandler mirrors slog records from the stage runs into the log pane.
type logHandler struct {
	state *AppState
	attrs []slog.Attr
}

var _ slog.Handler = (*logHandler)(nil)

func (h *logHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (h *logHandler) Handle(ctx context.Context, rec slog.Record) error {
	msg := rec.Message
	appendAttr := func(a slog.Attr) bool {
		msg += fmt.Sprintf(" %s=%v", a.Key, a.Value)
		return true
	}
	for _, a := range h.attrs {
		appendAttr(a)
	}
	rec.Attrs(appendAttr)
	h.state.AppendLog(msg)
	return nil
}

func (h *logHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &logHandler{state: h.state, attrs: merged}
}

func (h *logHandler) WithGroup(name string) slog.Handler { return h }

// Logger returns a logger that writes into the log pane.
func (s *AppState) Logger() *slog.Logger {
	return slog.New(&logHandler{state: s})
}
