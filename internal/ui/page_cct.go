package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gioui.org/layout"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"

	"github.com/channeltrace/cct/pkg/channel"
	"github.com/channeltrace/cct/pkg/session"
)

func (a *App) layoutCCTPage(gtx layout.Context, state StateSnapshot) layout.Dimensions {
	type field struct {
		label  string
		editor *widget.Editor
	}
	fields := []field{
		{"TX vhigh", &a.vhighEditor},
		{"TX rise time", &a.riseEditor},
		{"Unit interval", &a.intervalEditor},
		{"TX resistance", &a.txResEditor},
		{"TX capacitance", &a.txCapEditor},
		{"RX resistance", &a.rxResEditor},
		{"RX capacitance", &a.rxCapEditor},
		{"Step time", &a.stepEditor},
		{"Stop time", &a.stopEditor},
	}

	children := []layout.FlexChild{
		layout.Rigid(material.H6(a.Theme, "Channel check").Layout),
		layout.Rigid(layout.Spacer{Height: unit.Dp(12)}.Layout),
	}
	for _, f := range fields {
		f := f
		children = append(children,
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				return a.formRow(gtx, f.label, f.editor)
			}),
			layout.Rigid(layout.Spacer{Height: unit.Dp(4)}.Layout),
		)
	}
	children = append(children,
		layout.Rigid(layout.Spacer{Height: unit.Dp(8)}.Layout),
		layout.Rigid(material.CheckBox(a.Theme, &a.pruneCheck, "Prune weakly coupled ports").Layout),
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			if !a.pruneCheck.Value {
				return layout.Dimensions{}
			}
			return a.formRow(gtx, "Threshold (dB)", &a.thresholdEditor)
		}),
		layout.Rigid(layout.Spacer{Height: unit.Dp(12)}.Layout),
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			return layout.Flex{Axis: layout.Horizontal}.Layout(gtx,
				layout.Rigid(func(gtx layout.Context) layout.Dimensions {
					return a.actionButton(gtx, &a.prerunBtn, "Preview pruning", state.Busy, a.startPrerun)
				}),
				layout.Rigid(layout.Spacer{Width: unit.Dp(12)}.Layout),
				layout.Rigid(func(gtx layout.Context) layout.Dimensions {
					return a.actionButton(gtx, &a.runBtn, "Run channel check", state.Busy, a.startChannelRun)
				}),
			)
		}),
	)

	if stats := state.Session.PruneStats; len(stats) > 0 {
		children = append(children,
			layout.Rigid(layout.Spacer{Height: unit.Dp(12)}.Layout),
			layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
				return a.pruneList.Layout(gtx, len(stats), func(gtx layout.Context, i int) layout.Dimensions {
					return material.Body2(a.Theme, stats[i].String()).Layout(gtx)
				})
			}),
		)
	}

	return layout.Flex{Axis: layout.Vertical}.Layout(gtx, children...)
}

// channelOptions assembles the stage options from the form and writes the
// edited values back as the new configuration defaults.
func (a *App) channelOptions() (session.ChannelOptions, error) {
	opts := session.ChannelOptions{
		Tx: channel.TxParams{
			VHigh:        strings.TrimSpace(a.vhighEditor.Text()),
			RiseTime:     strings.TrimSpace(a.riseEditor.Text()),
			UnitInterval: strings.TrimSpace(a.intervalEditor.Text()),
			Resistance:   strings.TrimSpace(a.txResEditor.Text()),
			Capacitance:  strings.TrimSpace(a.txCapEditor.Text()),
		},
		Rx: channel.RxParams{
			Resistance:  strings.TrimSpace(a.rxResEditor.Text()),
			Capacitance: strings.TrimSpace(a.rxCapEditor.Text()),
		},
		Transient: channel.TransientParams{
			Step: strings.TrimSpace(a.stepEditor.Text()),
			Stop: strings.TrimSpace(a.stopEditor.Text()),
		},
	}
	if a.pruneCheck.Value {
		t, err := strconv.ParseFloat(strings.TrimSpace(a.thresholdEditor.Text()), 64)
		if err != nil {
			return opts, fmt.Errorf("threshold: %w", err)
		}
		opts.ThresholdDB = &t
	}

	conf := a.State.Config()
	d := conf.Defaults
	d.Tx.VHigh = opts.Tx.VHigh
	d.Tx.RiseTime = opts.Tx.RiseTime
	d.Tx.UnitInterval = opts.Tx.UnitInterval
	d.Tx.Resistance = opts.Tx.Resistance
	d.Tx.Capacitance = opts.Tx.Capacitance
	d.Rx.Resistance = opts.Rx.Resistance
	d.Rx.Capacitance = opts.Rx.Capacitance
	d.Transient.Step = opts.Transient.Step
	d.Transient.Stop = opts.Transient.Stop
	d.ThresholdDB = opts.ThresholdDB
	return opts, nil
}

func (a *App) startPrerun() {
	opts, err := a.channelOptions()
	if err != nil {
		a.State.SetError(err)
		return
	}
	sess := a.State.Session()
	a.runStage("Prune preview", func(ctx context.Context) error {
		stats, err := sess.PreRunChannel(ctx, opts)
		if err != nil {
			return err
		}
		for _, s := range stats {
			a.State.AppendLog(s.String())
		}
		return nil
	})
}

func (a *App) startChannelRun() {
	opts, err := a.channelOptions()
	if err != nil {
		a.State.SetError(err)
		return
	}
	sess := a.State.Session()
	a.runStage("Channel check", func(ctx context.Context) error {
		rows, err := sess.RunChannel(ctx, opts)
		if err != nil {
			return err
		}
		a.State.AppendLog(fmt.Sprintf("Channel check finished: %d receiver rows", len(rows)))
		a.State.SetStage(session.StageResult)
		return nil
	})
}
