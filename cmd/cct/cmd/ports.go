package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/channeltrace/cct/pkg/engine"
	"github.com/channeltrace/cct/pkg/layout"
	"github.com/channeltrace/cct/pkg/ports"
)

var (
	portsLayout string
	portsTx     []string
	portsRx     []string
	portsNets   []string
	portsPairs  []string
	portsRef    string
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "Port setup on an imported layout",
}

var portsNetsCmd = &cobra.Command{
	Use:   "nets",
	Short: "List the nets selectable between two component groups",
	Long: `Nets lists the signal nets common to the transmitter and receiver
component groups, split into single-ended candidates and complete
differential pairs, plus the reference net candidates ranked by pin
count.

Example:
  cct ports nets --layout board.aedb --tx U1 --rx U2,U3`,
	RunE: runPortsNets,
}

var portsApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply an existing ports.json to the layout",
	Long: `Apply pushes the port record next to the layout into a copy of the
layout database without rebuilding it. Useful after editing ports.json
by hand.

Example:
  cct ports apply --layout board.aedb`,
	RunE: runPortsApply,
}

var portsBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the port record and apply it to the layout",
	Long: `Build validates the selection, writes ports.json next to the layout
and applies the ports to a copy of the layout database.

Example:
  cct ports build --layout board.aedb --tx U1 --rx U2,U3 \
      --net DQ0,DQ1 --pair CLK --ref GND`,
	RunE: runPortsBuild,
}

// loadDesign reuses the snapshot written by a previous import when
// present, otherwise it imports the layout first.
func loadDesign(ctx context.Context, eng engine.Engine, layoutPath string) (*layout.Design, error) {
	if _, err := layout.DetectFormat(layoutPath); err != nil {
		return nil, err
	}
	snapPath := layout.SnapshotPathFor(layoutPath)
	if _, err := os.Stat(snapPath); err != nil {
		var impErr error
		snapPath, impErr = eng.Import(ctx, layoutPath, "")
		if impErr != nil {
			return nil, impErr
		}
	}
	return layout.LoadSnapshot(layoutPath, snapPath)
}

func runPortsNets(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := newEngine(conf)
	if err != nil {
		return err
	}
	design, err := loadDesign(commandContext(cmd), eng, portsLayout)
	if err != nil {
		return err
	}

	sel := design.SelectNets(portsTx, portsRx)
	fmt.Printf("Single-ended nets: %s\n", strings.Join(sel.SingleEnded, ", "))
	for _, p := range sel.Pairs {
		fmt.Printf("Pair %s: %s / %s\n", p.Name, p.Positive, p.Negative)
	}
	if len(sel.ReferenceCandidates) > 0 {
		fmt.Printf("Reference candidates: %s\n", strings.Join(sel.ReferenceCandidates, ", "))
	}
	return nil
}

func runPortsBuild(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := newEngine(conf)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	design, err := loadDesign(ctx, eng, portsLayout)
	if err != nil {
		return err
	}

	rec, err := ports.Build(design, ports.Selection{
		ControllerComponents: portsTx,
		DRAMComponents:       portsRx,
		SingleNets:           portsNets,
		PairNames:            portsPairs,
		ReferenceNet:         portsRef,
	})
	if err != nil {
		return err
	}
	recordPath := filepath.Join(filepath.Dir(design.Path), "ports.json")
	if err := rec.Save(recordPath); err != nil {
		return err
	}
	applied, err := ports.Apply(ctx, eng, design, rec)
	if err != nil {
		return err
	}

	fmt.Printf("Built %d ports, record %s\n", rec.PortCount(), recordPath)
	for _, p := range rec.Ports {
		fmt.Printf("  %2d  %-20s %-6s %s\n", p.Sequence, p.Name, p.Role, p.Net)
	}
	fmt.Printf("Applied to %s\n", applied)
	return nil
}

func runPortsApply(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := newEngine(conf)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	design, err := loadDesign(ctx, eng, portsLayout)
	if err != nil {
		return err
	}
	rec, err := ports.Load(filepath.Join(filepath.Dir(design.Path), "ports.json"))
	if err != nil {
		return err
	}
	applied, err := ports.Apply(ctx, eng, design, rec)
	if err != nil {
		return err
	}
	fmt.Printf("Applied %d ports to %s\n", rec.PortCount(), applied)
	return nil
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.AddCommand(portsNetsCmd)
	portsCmd.AddCommand(portsBuildCmd)
	portsCmd.AddCommand(portsApplyCmd)
	portsApplyCmd.Flags().StringVar(&portsLayout, "layout", "", "Layout database path")
	portsApplyCmd.MarkFlagRequired("layout")

	for _, c := range []*cobra.Command{portsNetsCmd, portsBuildCmd} {
		c.Flags().StringVar(&portsLayout, "layout", "", "Layout database path")
		c.Flags().StringSliceVar(&portsTx, "tx", nil, "Transmitter (controller) components")
		c.Flags().StringSliceVar(&portsRx, "rx", nil, "Receiver (DRAM) components")
		c.MarkFlagRequired("layout")
		c.MarkFlagRequired("tx")
		c.MarkFlagRequired("rx")
	}
	portsBuildCmd.Flags().StringSliceVar(&portsNets, "net", nil, "Single-ended signal nets")
	portsBuildCmd.Flags().StringSliceVar(&portsPairs, "pair", nil, "Differential pair names")
	portsBuildCmd.Flags().StringVar(&portsRef, "ref", "", "Reference net")
	portsBuildCmd.MarkFlagRequired("ref")
}
