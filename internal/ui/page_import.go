package ui

import (
	"context"
	"fmt"
	"os"

	"gioui.org/layout"
	"gioui.org/unit"
	"gioui.org/widget/material"
)

func (a *App) layoutImportPage(gtx layout.Context, state StateSnapshot) layout.Dimensions {
	for a.browseBtn.Clicked(gtx) {
		a.browseLayout()
	}

	design := a.State.Session().Design()

	children := []layout.FlexChild{
		layout.Rigid(material.H6(a.Theme, "Import layout").Layout),
		layout.Rigid(layout.Spacer{Height: unit.Dp(12)}.Layout),
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			return layout.Flex{Axis: layout.Horizontal, Alignment: layout.Middle}.Layout(gtx,
				layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
					return a.formRow(gtx, "Layout", &a.layoutEditor)
				}),
				layout.Rigid(layout.Spacer{Width: unit.Dp(8)}.Layout),
				layout.Rigid(func(gtx layout.Context) layout.Dimensions {
					btn := material.Button(a.Theme, &a.browseBtn, "Browse")
					btn.Inset = layout.UniformInset(unit.Dp(6))
					return btn.Layout(gtx)
				}),
			)
		}),
		layout.Rigid(layout.Spacer{Height: unit.Dp(8)}.Layout),
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			return a.formRow(gtx, "Stackup XML", &a.stackupEditor)
		}),
		layout.Rigid(layout.Spacer{Height: unit.Dp(12)}.Layout),
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			return a.actionButton(gtx, &a.importBtn, "Import", state.Busy, a.startImport)
		}),
	}

	if design != nil {
		comps := design.Components()
		children = append(children,
			layout.Rigid(layout.Spacer{Height: unit.Dp(16)}.Layout),
			layout.Rigid(material.Body1(a.Theme, fmt.Sprintf("%d components in %s", len(comps), design.Path)).Layout),
			layout.Rigid(layout.Spacer{Height: unit.Dp(8)}.Layout),
			layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
				return a.componentList.Layout(gtx, len(comps), func(gtx layout.Context, i int) layout.Dimensions {
					c := comps[i]
					return material.Body2(a.Theme, fmt.Sprintf("%-12s %4d pins", c.Name, len(c.Pins))).Layout(gtx)
				})
			}),
		)
	}

	return layout.Flex{Axis: layout.Vertical}.Layout(gtx, children...)
}

// browseLayout opens the platform file dialog. Explorer hands back an
// open file; only its path is wanted here.
func (a *App) browseLayout() {
	go func() {
		f, err := a.expl.ChooseFile("aedb", "brd")
		if err != nil {
			return
		}
		defer f.Close()
		if file, ok := f.(*os.File); ok {
			a.layoutEditor.SetText(file.Name())
			a.invalidate()
		}
	}()
}

func (a *App) startImport() {
	layoutPath := a.layoutEditor.Text()
	stackupPath := a.stackupEditor.Text()
	sess := a.State.Session()
	a.runStage("Import", func(ctx context.Context) error {
		design, err := sess.Import(ctx, layoutPath, stackupPath)
		if err != nil {
			return err
		}
		// New design invalidates the Port Setup selections.
		a.resetSelections()
		a.State.AppendLog(fmt.Sprintf("Imported %s: %d components", design.Path, len(design.Components())))
		return nil
	})
}
