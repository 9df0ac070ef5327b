package ui

import (
	"fmt"
	"math"

	"gioui.org/font"
	"gioui.org/layout"
	"gioui.org/unit"
	"gioui.org/widget/material"
)

func (a *App) layoutResultPage(gtx layout.Context, state StateSnapshot) layout.Dimensions {
	rows := state.Session.Rows
	if len(rows) == 0 {
		return material.Body1(a.Theme, "Run the channel check first.").Layout(gtx)
	}

	header := fmt.Sprintf("%-20s %-20s %10s %10s %10s %12s %8s",
		"tx", "rx", "sig", "isi", "xtalk", "pseudo_eye", "ratio")

	children := []layout.FlexChild{
		layout.Rigid(material.H6(a.Theme, "Results").Layout),
		layout.Rigid(layout.Spacer{Height: unit.Dp(12)}.Layout),
		layout.Rigid(material.Body1(a.Theme, "Report: "+state.Session.ReportPath).Layout),
		layout.Rigid(layout.Spacer{Height: unit.Dp(8)}.Layout),
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			lbl := material.Body2(a.Theme, header)
			lbl.Font.Weight = font.Bold
			return lbl.Layout(gtx)
		}),
		layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
			return a.rowList.Layout(gtx, len(rows), func(gtx layout.Context, i int) layout.Dimensions {
				r := rows[i]
				ratio := fmt.Sprintf("%8.3f", r.PowerRatio)
				if math.IsInf(r.PowerRatio, 1) {
					ratio = "     inf"
				}
				line := fmt.Sprintf("%-20s %-20s %10.3f %10.3f %10.3f %12.3f %s",
					r.TxName, r.RxName, r.Sig, r.ISI, r.Xtalk, r.PseudoEye, ratio)
				return material.Body2(a.Theme, line).Layout(gtx)
			})
		}),
	}

	if len(state.Session.PlotPaths) > 0 {
		children = append(children,
			layout.Rigid(layout.Spacer{Height: unit.Dp(8)}.Layout),
			layout.Rigid(material.Body2(a.Theme,
				fmt.Sprintf("%d waveform plots next to the report", len(state.Session.PlotPaths))).Layout),
		)
	}

	return layout.Flex{Axis: layout.Vertical}.Layout(gtx, children...)
}
