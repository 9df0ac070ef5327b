// Package ui is the Gio wizard over the five workflow stages: Import,
// Port Setup, Simulation, CCT and Result. All engine work runs on
// background goroutines; the event loop only reads state snapshots.
package ui

import (
	"log"
	"os"

	"gioui.org/app"
	"gioui.org/unit"

	"github.com/channeltrace/cct/internal/config"
	"github.com/channeltrace/cct/pkg/engine"
	"github.com/channeltrace/cct/pkg/session"
)

// Run launches the Gio UI and blocks until the window closes. The
// configuration is written back on exit so the engine version and stage
// defaults persist.
func Run(eng engine.Engine, conf *config.Config, configPath string) error {
	state := NewState(session.New(eng), conf, configPath)

	go func() {
		w := new(app.Window)
		w.Option(app.Title("Channel Check Tool"), app.Size(unit.Dp(1100), unit.Dp(760)))
		ui := New(w, state)
		if err := ui.Run(); err != nil {
			log.Printf("ui: %v", err)
		}
		if err := state.SaveConfig(); err != nil {
			log.Printf("ui: saving config: %v", err)
		}
		os.Exit(0)
	}()

	app.Main()
	return nil
}
