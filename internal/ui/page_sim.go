package ui

import (
	"context"
	"fmt"

	"gioui.org/layout"
	"gioui.org/unit"
	"gioui.org/widget/material"

	"github.com/channeltrace/cct/pkg/solve"
)

func (a *App) layoutSimulationPage(gtx layout.Context, state StateSnapshot) layout.Dimensions {
	sweeps := a.State.Config().SolveSweeps()

	children := []layout.FlexChild{
		layout.Rigid(material.H6(a.Theme, "Frequency simulation").Layout),
		layout.Rigid(layout.Spacer{Height: unit.Dp(12)}.Layout),
		layout.Rigid(material.CheckBox(a.Theme, &a.hfssCheck, "Use HFSS (full-wave) instead of SIwave").Layout),
		layout.Rigid(layout.Spacer{Height: unit.Dp(8)}.Layout),
		layout.Rigid(material.CheckBox(a.Theme, &a.cutoutCheck, "Cut out the signal net region before solving").Layout),
		layout.Rigid(layout.Spacer{Height: unit.Dp(8)}.Layout),
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			if !a.cutoutCheck.Value {
				return layout.Dimensions{}
			}
			return a.formRow(gtx, "Expansion (m)", &a.expansionEditor)
		}),
		layout.Rigid(layout.Spacer{Height: unit.Dp(12)}.Layout),
		layout.Rigid(material.Body1(a.Theme, "Frequency sweeps (cct.hcl)").Layout),
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			height := gtx.Dp(unit.Dp(80))
			gtx.Constraints.Max.Y = height
			return a.sweepList.Layout(gtx, len(sweeps), func(gtx layout.Context, i int) layout.Dimensions {
				s := sweeps[i]
				return material.Body2(a.Theme, fmt.Sprintf("%-14s %s .. %s (%s)", s.Kind, s.Start, s.Stop, s.StepOrCount)).Layout(gtx)
			})
		}),
		layout.Rigid(layout.Spacer{Height: unit.Dp(12)}.Layout),
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			return a.actionButton(gtx, &a.solveBtn, "Run simulation", state.Busy, a.startSolve)
		}),
	}

	if state.Session.TouchstonePath != "" {
		children = append(children,
			layout.Rigid(layout.Spacer{Height: unit.Dp(16)}.Layout),
			layout.Rigid(material.Body1(a.Theme, "Network model: "+state.Session.TouchstonePath).Layout),
		)
	}

	return layout.Flex{Axis: layout.Vertical}.Layout(gtx, children...)
}

func (a *App) startSolve() {
	conf := a.State.Config()
	cfg := &solve.Config{
		EngineVersion: conf.Engine.Version,
		Solver:        solve.SolverSIwave,
		Sweeps:        conf.SolveSweeps(),
	}
	if a.hfssCheck.Value {
		cfg.Solver = solve.SolverHFSS
	}
	if a.cutoutCheck.Value {
		cfg.Cutout = solve.Cutout{
			Enabled:       true,
			ExpansionSize: a.expansionEditor.Text(),
		}
	}
	sess := a.State.Session()
	a.runStage("Simulation", func(ctx context.Context) error {
		tsPath, err := sess.RunSolve(ctx, cfg)
		if err != nil {
			return err
		}
		a.State.AppendLog("Network model written to " + tsPath)
		return nil
	})
}
