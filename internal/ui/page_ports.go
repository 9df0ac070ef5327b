package ui

import (
	"context"
	"fmt"
	"sort"

	"gioui.org/layout"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"

	"github.com/channeltrace/cct/pkg/ports"
)

// resetSelections drops the per-design checkbox state after a re-import.
func (a *App) resetSelections() {
	a.compRoles = make(map[string]*compRole)
	a.netChecks = make(map[string]*widget.Bool)
	a.pairChecks = make(map[string]*widget.Bool)
}

func (a *App) roleFor(name string) *compRole {
	r, ok := a.compRoles[name]
	if !ok {
		r = &compRole{}
		a.compRoles[name] = r
	}
	return r
}

func (a *App) checkFor(m map[string]*widget.Bool, name string) *widget.Bool {
	b, ok := m[name]
	if !ok {
		b = &widget.Bool{}
		m[name] = b
	}
	return b
}

// checkedGroups collects the transmitter and receiver component groups.
func (a *App) checkedGroups() (tx, rx []string) {
	design := a.State.Session().Design()
	if design == nil {
		return nil, nil
	}
	for _, c := range design.Components() {
		r := a.roleFor(c.Name)
		if r.tx.Value {
			tx = append(tx, c.Name)
		}
		if r.rx.Value {
			rx = append(rx, c.Name)
		}
	}
	return tx, rx
}

func (a *App) layoutPortSetupPage(gtx layout.Context, state StateSnapshot) layout.Dimensions {
	design := a.State.Session().Design()
	if design == nil {
		return material.Body1(a.Theme, "Import a layout first.").Layout(gtx)
	}
	comps := design.Components()
	txGroup, rxGroup := a.checkedGroups()
	sel := design.SelectNets(txGroup, rxGroup)

	// One scrollable pane: component roles, then selectable nets.
	type row func(gtx layout.Context) layout.Dimensions
	var rows []row
	rows = append(rows, func(gtx layout.Context) layout.Dimensions {
		return material.Body1(a.Theme, "Components").Layout(gtx)
	})
	for _, c := range comps {
		c := c
		rows = append(rows, func(gtx layout.Context) layout.Dimensions {
			r := a.roleFor(c.Name)
			return layout.Flex{Axis: layout.Horizontal, Alignment: layout.Middle}.Layout(gtx,
				layout.Rigid(func(gtx layout.Context) layout.Dimensions {
					width := gtx.Dp(unit.Dp(120))
					gtx.Constraints.Min.X = width
					gtx.Constraints.Max.X = width
					return material.Body2(a.Theme, fmt.Sprintf("%s (%d pins)", c.Name, len(c.Pins))).Layout(gtx)
				}),
				layout.Rigid(material.CheckBox(a.Theme, &r.tx, "TX").Layout),
				layout.Rigid(layout.Spacer{Width: unit.Dp(12)}.Layout),
				layout.Rigid(material.CheckBox(a.Theme, &r.rx, "RX").Layout),
			)
		})
	}

	if len(txGroup) > 0 && len(rxGroup) > 0 {
		rows = append(rows, func(gtx layout.Context) layout.Dimensions {
			return layout.Inset{Top: unit.Dp(10)}.Layout(gtx, material.Body1(a.Theme, "Signal nets").Layout)
		})
		for _, net := range sel.SingleEnded {
			net := net
			rows = append(rows, func(gtx layout.Context) layout.Dimensions {
				return material.CheckBox(a.Theme, a.checkFor(a.netChecks, net), net).Layout(gtx)
			})
		}
		for _, p := range sel.Pairs {
			p := p
			rows = append(rows, func(gtx layout.Context) layout.Dimensions {
				label := fmt.Sprintf("%s (%s / %s)", p.Name, p.Positive, p.Negative)
				return material.CheckBox(a.Theme, a.checkFor(a.pairChecks, p.Name), label).Layout(gtx)
			})
		}
	}

	children := []layout.FlexChild{
		layout.Rigid(material.H6(a.Theme, "Port setup").Layout),
		layout.Rigid(layout.Spacer{Height: unit.Dp(12)}.Layout),
		layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
			return a.selectList.Layout(gtx, len(rows), func(gtx layout.Context, i int) layout.Dimensions {
				return rows[i](gtx)
			})
		}),
		layout.Rigid(layout.Spacer{Height: unit.Dp(8)}.Layout),
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			return a.formRow(gtx, "Reference net", &a.refEditor)
		}),
		layout.Rigid(layout.Spacer{Height: unit.Dp(8)}.Layout),
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			return a.actionButton(gtx, &a.buildBtn, "Build and apply ports", state.Busy, a.startBuildPorts)
		}),
	}

	if rec := a.State.Session().Record(); rec != nil {
		children = append(children,
			layout.Rigid(layout.Spacer{Height: unit.Dp(12)}.Layout),
			layout.Rigid(material.Body1(a.Theme, fmt.Sprintf("%d ports built", rec.PortCount())).Layout),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				height := gtx.Dp(unit.Dp(140))
				gtx.Constraints.Max.Y = height
				return a.portList.Layout(gtx, rec.PortCount(), func(gtx layout.Context, i int) layout.Dimensions {
					p := rec.Ports[i]
					return material.Body2(a.Theme, fmt.Sprintf("%2d  %-20s %-6s %s", p.Sequence, p.Name, p.Role, p.Net)).Layout(gtx)
				})
			}),
		)
	}

	return layout.Flex{Axis: layout.Vertical}.Layout(gtx, children...)
}

func (a *App) startBuildPorts() {
	tx, rx := a.checkedGroups()
	var nets, pairs []string
	for name, b := range a.netChecks {
		if b.Value {
			nets = append(nets, name)
		}
	}
	for name, b := range a.pairChecks {
		if b.Value {
			pairs = append(pairs, name)
		}
	}
	sort.Strings(nets)
	sort.Strings(pairs)
	sel := ports.Selection{
		ControllerComponents: tx,
		DRAMComponents:       rx,
		SingleNets:           nets,
		PairNames:            pairs,
		ReferenceNet:         a.refEditor.Text(),
	}
	sess := a.State.Session()
	a.runStage("Port setup", func(ctx context.Context) error {
		rec, err := sess.BuildPorts(ctx, sel)
		if err != nil {
			return err
		}
		a.State.AppendLog(fmt.Sprintf("Built and applied %d ports", rec.PortCount()))
		return nil
	})
}
