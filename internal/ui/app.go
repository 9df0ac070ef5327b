package ui

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log"

	"gioui.org/app"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"
	"gioui.org/x/explorer"
	"golang.org/x/exp/shiny/materialdesign/icons"

	"github.com/channeltrace/cct/internal/ctxlog"
	"github.com/channeltrace/cct/pkg/session"
)

var workflowStages = []session.Stage{
	session.StageImport,
	session.StagePortSetup,
	session.StageSimulation,
	session.StageCCT,
	session.StageResult,
}

type stageEntry struct {
	stage session.Stage
	icon  *widget.Icon
	click widget.Clickable
}

func stageIcon(st session.Stage) *widget.Icon {
	var data []byte
	switch st {
	case session.StageImport:
		data = icons.FileFolderOpen
	case session.StagePortSetup:
		data = icons.ActionSettingsInputComponent
	case session.StageSimulation:
		data = icons.ActionTimeline
	case session.StageCCT:
		data = icons.EditorShowChart
	case session.StageResult:
		data = icons.ActionAssessment
	}
	icon, err := widget.NewIcon(data)
	if err != nil {
		log.Printf("ui: loading %s icon: %v", st, err)
		return nil
	}
	return icon
}

// compRole holds the transmitter/receiver group checkboxes of one
// component on the Port Setup page.
type compRole struct {
	tx widget.Bool
	rx widget.Bool
}

// App drives the Gio-based workflow wizard.
type App struct {
	Window *app.Window
	Theme  *material.Theme
	State  *AppState

	ops  op.Ops
	expl *explorer.Explorer

	navEntries []stageEntry

	// Import page.
	layoutEditor  widget.Editor
	stackupEditor widget.Editor
	browseBtn     widget.Clickable
	importBtn     widget.Clickable
	componentList layout.List

	// Port Setup page.
	compRoles  map[string]*compRole
	netChecks  map[string]*widget.Bool
	pairChecks map[string]*widget.Bool
	refEditor  widget.Editor
	buildBtn   widget.Clickable
	selectList layout.List
	portList   layout.List

	// Simulation page.
	hfssCheck       widget.Bool
	cutoutCheck     widget.Bool
	expansionEditor widget.Editor
	solveBtn        widget.Clickable
	sweepList       layout.List

	// CCT page.
	vhighEditor     widget.Editor
	riseEditor      widget.Editor
	intervalEditor  widget.Editor
	txResEditor     widget.Editor
	txCapEditor     widget.Editor
	rxResEditor     widget.Editor
	rxCapEditor     widget.Editor
	stepEditor      widget.Editor
	stopEditor      widget.Editor
	thresholdEditor widget.Editor
	pruneCheck      widget.Bool
	prerunBtn       widget.Clickable
	runBtn          widget.Clickable
	pruneList       layout.List

	// Result page.
	rowList layout.List

	logList   layout.List
	cancelBtn widget.Clickable
}

// New wires the Gio window, theme, and shared state together.
func New(window *app.Window, state *AppState) *App {
	theme := material.NewTheme()
	theme.Palette = material.Palette{
		Bg:         color.NRGBA{R: 245, G: 246, B: 252, A: 255},
		Fg:         color.NRGBA{R: 34, G: 37, B: 49, A: 255},
		ContrastBg: color.NRGBA{R: 80, G: 120, B: 255, A: 255},
		ContrastFg: color.NRGBA{R: 255, G: 255, B: 255, A: 255},
	}
	a := &App{
		Window:        window,
		Theme:         theme,
		State:         state,
		expl:          explorer.NewExplorer(window),
		componentList: layout.List{Axis: layout.Vertical},
		selectList:    layout.List{Axis: layout.Vertical},
		portList:      layout.List{Axis: layout.Vertical},
		sweepList:     layout.List{Axis: layout.Vertical},
		pruneList:     layout.List{Axis: layout.Vertical},
		rowList:       layout.List{Axis: layout.Vertical},
		logList:       layout.List{Axis: layout.Vertical},
		compRoles:     make(map[string]*compRole),
		netChecks:     make(map[string]*widget.Bool),
		pairChecks:    make(map[string]*widget.Bool),
	}
	for _, st := range workflowStages {
		a.navEntries = append(a.navEntries, stageEntry{stage: st, icon: stageIcon(st)})
	}
	a.initEditors()
	state.onChange = a.invalidate
	return a
}

func singleLine(ed *widget.Editor, text string) {
	ed.SingleLine = true
	ed.SetText(text)
}

// initEditors seeds the form fields from the configuration defaults.
func (a *App) initEditors() {
	conf := a.State.Config()
	singleLine(&a.layoutEditor, "")
	singleLine(&a.stackupEditor, "")
	singleLine(&a.refEditor, "GND")
	singleLine(&a.expansionEditor, "0.002")

	tx := conf.TxParams()
	singleLine(&a.vhighEditor, tx.VHigh)
	singleLine(&a.riseEditor, tx.RiseTime)
	singleLine(&a.intervalEditor, tx.UnitInterval)
	singleLine(&a.txResEditor, tx.Resistance)
	singleLine(&a.txCapEditor, tx.Capacitance)
	rx := conf.RxParams()
	singleLine(&a.rxResEditor, rx.Resistance)
	singleLine(&a.rxCapEditor, rx.Capacitance)
	tr := conf.TransientParams()
	singleLine(&a.stepEditor, tr.Step)
	singleLine(&a.stopEditor, tr.Stop)

	a.pruneCheck.Value = true
	threshold := "-40"
	if t := conf.Defaults.ThresholdDB; t != nil {
		threshold = fmt.Sprintf("%g", *t)
	}
	singleLine(&a.thresholdEditor, threshold)
}

// Run processes Gio events until the window is closed.
func (a *App) Run() error {
	for {
		e := a.Window.Event()
		a.expl.ListenEvents(e)
		switch ev := e.(type) {
		case app.DestroyEvent:
			return ev.Err
		case app.FrameEvent:
			gtx := app.NewContext(&a.ops, ev)
			a.layout(gtx)
			ev.Frame(gtx.Ops)
		}
	}
}

// invalidate requests a new frame.
func (a *App) invalidate() {
	if a.Window != nil {
		a.Window.Invalidate()
	}
}

// runStage executes one workflow stage in the background. Only one stage
// runs at a time; the buttons are disabled while busy.
func (a *App) runStage(name string, fn func(ctx context.Context) error) {
	if a.State.Busy() {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	ctx = ctxlog.WithLogger(ctx, a.State.Logger())
	a.State.SetCancel(cancel)
	a.State.SetBusy(true)
	a.State.SetStatus(name + "...")
	a.State.AppendLog(name + " started")

	go func() {
		defer cancel()
		err := fn(ctx)
		a.State.SetBusy(false)
		if err != nil {
			a.State.SetError(err)
			a.State.AppendLog(fmt.Sprintf("%s failed: %v", name, err))
			a.State.SetStatus(name + " failed")
			return
		}
		a.State.SetError(nil)
		a.State.SetStatus(name + " finished")
	}()
}

func (a *App) layout(gtx layout.Context) layout.Dimensions {
	state := a.State.Snapshot()

	paint.FillShape(gtx.Ops, color.NRGBA{R: 238, G: 241, B: 251, A: 255}, clip.Rect{Max: gtx.Constraints.Max}.Op())

	return layout.Flex{Axis: layout.Horizontal}.Layout(gtx,
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			return a.layoutNavigation(gtx, state)
		}),
		layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
			return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
				layout.Rigid(func(gtx layout.Context) layout.Dimensions {
					return a.layoutTopBar(gtx, state)
				}),
				layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
					return layout.Inset{Left: unit.Dp(12), Right: unit.Dp(12), Bottom: unit.Dp(8)}.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
						return a.layoutCard(gtx, func(gtx layout.Context) layout.Dimensions {
							return a.layoutStagePage(gtx, state)
						})
					})
				}),
				layout.Rigid(func(gtx layout.Context) layout.Dimensions {
					return a.layoutLogPane(gtx, state)
				}),
				layout.Rigid(func(gtx layout.Context) layout.Dimensions {
					return a.layoutStatus(gtx, state)
				}),
			)
		}),
	)
}

func (a *App) layoutNavigation(gtx layout.Context, state StateSnapshot) layout.Dimensions {
	width := gtx.Dp(unit.Dp(150))
	gtx.Constraints.Min.X = width
	gtx.Constraints.Max.X = width
	return layout.Stack{}.Layout(gtx,
		layout.Expanded(func(gtx layout.Context) layout.Dimensions {
			paint.FillShape(gtx.Ops, color.NRGBA{R: 45, G: 50, B: 68, A: 255}, clip.Rect{Max: gtx.Constraints.Max}.Op())
			return layout.Dimensions{Size: gtx.Constraints.Max}
		}),
		layout.Stacked(func(gtx layout.Context) layout.Dimensions {
			return layout.Inset{Top: unit.Dp(24), Bottom: unit.Dp(24), Left: unit.Dp(8), Right: unit.Dp(8)}.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
				children := make([]layout.FlexChild, 0, len(a.navEntries)*2)
				for i := range a.navEntries {
					entry := &a.navEntries[i]
					children = append(children, layout.Rigid(func(gtx layout.Context) layout.Dimensions {
						return a.layoutNavEntry(gtx, entry, state)
					}))
					children = append(children, layout.Rigid(layout.Spacer{Height: unit.Dp(8)}.Layout))
				}
				return layout.Flex{Axis: layout.Vertical}.Layout(gtx, children...)
			})
		}),
	)
}

func (a *App) layoutNavEntry(gtx layout.Context, entry *stageEntry, state StateSnapshot) layout.Dimensions {
	enterable := a.State.Session().CanEnter(entry.stage)
	for entry.click.Clicked(gtx) {
		if enterable {
			a.State.SetStage(entry.stage)
		}
	}

	width := gtx.Constraints.Max.X
	height := gtx.Dp(unit.Dp(44))
	size := image.Pt(width, height)
	gtx.Constraints.Min = size
	gtx.Constraints.Max = size

	bg := color.NRGBA{R: 45, G: 50, B: 68, A: 255}
	if entry.click.Hovered() && enterable {
		bg = color.NRGBA{R: 60, G: 66, B: 88, A: 255}
	}
	if state.Stage == entry.stage {
		bg = color.NRGBA{R: 80, G: 120, B: 255, A: 255}
	}
	textColor := color.NRGBA{R: 240, G: 244, B: 255, A: 255}
	if !enterable {
		textColor = color.NRGBA{R: 130, G: 136, B: 156, A: 255}
	}

	return entry.click.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Stack{}.Layout(gtx,
			layout.Expanded(func(gtx layout.Context) layout.Dimensions {
				rect := image.Rectangle{Max: size}.Inset(gtx.Dp(unit.Dp(2)))
				rr := gtx.Dp(unit.Dp(8))
				paint.FillShape(gtx.Ops, bg, clip.RRect{Rect: rect, NW: rr, NE: rr, SW: rr, SE: rr}.Op(gtx.Ops))
				return layout.Dimensions{Size: rect.Size()}
			}),
			layout.Stacked(func(gtx layout.Context) layout.Dimensions {
				return layout.UniformInset(unit.Dp(10)).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
					return layout.Flex{Axis: layout.Horizontal, Alignment: layout.Middle}.Layout(gtx,
						layout.Rigid(func(gtx layout.Context) layout.Dimensions {
							size := gtx.Dp(unit.Dp(20))
							gtx.Constraints.Min = image.Pt(size, size)
							gtx.Constraints.Max = gtx.Constraints.Min
							if entry.icon != nil {
								return entry.icon.Layout(gtx, textColor)
							}
							return layout.Dimensions{Size: gtx.Constraints.Min}
						}),
						layout.Rigid(layout.Spacer{Width: unit.Dp(8)}.Layout),
						layout.Rigid(func(gtx layout.Context) layout.Dimensions {
							lbl := material.Body2(a.Theme, entry.stage.String())
							lbl.Color = textColor
							return lbl.Layout(gtx)
						}),
					)
				})
			}),
		)
	})
}

func (a *App) layoutTopBar(gtx layout.Context, state StateSnapshot) layout.Dimensions {
	return layout.Inset{Top: unit.Dp(12), Bottom: unit.Dp(4), Left: unit.Dp(16), Right: unit.Dp(16)}.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Flex{Axis: layout.Horizontal, Alignment: layout.Middle}.Layout(gtx,
			layout.Rigid(material.H6(a.Theme, "Channel Check Tool").Layout),
			layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
				return layout.Dimensions{}
			}),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				if !state.Busy {
					return layout.Dimensions{}
				}
				for a.cancelBtn.Clicked(gtx) {
					a.State.CancelRun()
				}
				btn := material.Button(a.Theme, &a.cancelBtn, "Cancel")
				btn.Inset = layout.UniformInset(unit.Dp(6))
				btn.Background = color.NRGBA{R: 200, G: 70, B: 70, A: 255}
				return btn.Layout(gtx)
			}),
		)
	})
}

func (a *App) layoutStagePage(gtx layout.Context, state StateSnapshot) layout.Dimensions {
	switch state.Stage {
	case session.StagePortSetup:
		return a.layoutPortSetupPage(gtx, state)
	case session.StageSimulation:
		return a.layoutSimulationPage(gtx, state)
	case session.StageCCT:
		return a.layoutCCTPage(gtx, state)
	case session.StageResult:
		return a.layoutResultPage(gtx, state)
	default:
		return a.layoutImportPage(gtx, state)
	}
}

func (a *App) layoutCard(gtx layout.Context, body layout.Widget) layout.Dimensions {
	return layout.Stack{}.Layout(gtx,
		layout.Expanded(func(gtx layout.Context) layout.Dimensions {
			rr := gtx.Dp(unit.Dp(12))
			paint.FillShape(gtx.Ops, color.NRGBA{R: 248, G: 248, B: 253, A: 255}, clip.RRect{
				Rect: image.Rectangle{Max: gtx.Constraints.Max},
				NW:   rr, NE: rr, SW: rr, SE: rr,
			}.Op(gtx.Ops))
			return layout.Dimensions{Size: gtx.Constraints.Max}
		}),
		layout.Stacked(func(gtx layout.Context) layout.Dimensions {
			return layout.UniformInset(unit.Dp(16)).Layout(gtx, body)
		}),
	)
}

func (a *App) layoutLogPane(gtx layout.Context, state StateSnapshot) layout.Dimensions {
	height := gtx.Dp(unit.Dp(120))
	gtx.Constraints.Min.Y = height
	gtx.Constraints.Max.Y = height
	return layout.Inset{Left: unit.Dp(12), Right: unit.Dp(12), Bottom: unit.Dp(4)}.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Stack{}.Layout(gtx,
			layout.Expanded(func(gtx layout.Context) layout.Dimensions {
				rr := gtx.Dp(unit.Dp(8))
				paint.FillShape(gtx.Ops, color.NRGBA{R: 30, G: 33, B: 44, A: 255}, clip.RRect{
					Rect: image.Rectangle{Max: gtx.Constraints.Max},
					NW:   rr, NE: rr, SW: rr, SE: rr,
				}.Op(gtx.Ops))
				return layout.Dimensions{Size: gtx.Constraints.Max}
			}),
			layout.Stacked(func(gtx layout.Context) layout.Dimensions {
				return layout.UniformInset(unit.Dp(8)).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
					// Follow the newest entry.
					a.logList.ScrollToEnd = true
					return a.logList.Layout(gtx, len(state.Logs), func(gtx layout.Context, i int) layout.Dimensions {
						lbl := material.Caption(a.Theme, state.Logs[i])
						lbl.Color = color.NRGBA{R: 200, G: 210, B: 230, A: 255}
						return lbl.Layout(gtx)
					})
				})
			}),
		)
	})
}

func (a *App) layoutStatus(gtx layout.Context, state StateSnapshot) layout.Dimensions {
	return layout.Inset{Left: unit.Dp(16), Right: unit.Dp(16), Top: unit.Dp(2), Bottom: unit.Dp(8)}.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		text := state.Status
		col := a.Theme.Palette.Fg
		if state.LastError != nil {
			text = state.LastError.Error()
			col = color.NRGBA{R: 190, G: 40, B: 40, A: 255}
		}
		lbl := material.Body2(a.Theme, text)
		lbl.Color = col
		return lbl.Layout(gtx)
	})
}

// formRow lays out a caption and a bordered single-line editor.
func (a *App) formRow(gtx layout.Context, label string, ed *widget.Editor) layout.Dimensions {
	return layout.Flex{Axis: layout.Horizontal, Alignment: layout.Middle}.Layout(gtx,
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			width := gtx.Dp(unit.Dp(120))
			gtx.Constraints.Min.X = width
			gtx.Constraints.Max.X = width
			return material.Body2(a.Theme, label).Layout(gtx)
		}),
		layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
			border := widget.Border{
				Color:        color.NRGBA{R: 170, G: 176, B: 196, A: 255},
				CornerRadius: unit.Dp(4),
				Width:        unit.Dp(1),
			}
			return border.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
				return layout.UniformInset(unit.Dp(6)).Layout(gtx, material.Editor(a.Theme, ed, "").Layout)
			})
		}),
	)
}

// actionButton renders a button that is disabled while a stage runs.
func (a *App) actionButton(gtx layout.Context, click *widget.Clickable, label string, busy bool, onClick func()) layout.Dimensions {
	for click.Clicked(gtx) {
		if !busy {
			onClick()
		}
	}
	btn := material.Button(a.Theme, click, label)
	if busy {
		btn.Background = color.NRGBA{R: 160, G: 166, B: 186, A: 255}
	}
	return btn.Layout(gtx)
}
