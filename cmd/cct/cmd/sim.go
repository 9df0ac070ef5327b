package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/channeltrace/cct/pkg/ports"
	"github.com/channeltrace/cct/pkg/solve"
)

var (
	simSolver    string
	simCutout    bool
	simExpansion string
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Frequency-domain simulation of the ported layout",
}

var simRunCmd = &cobra.Command{
	Use:   "run <layout>",
	Short: "Solve the applied layout and produce the network model",
	Long: `Run writes simulation.json next to the layout, prepares the applied
layout copy for solving and runs the field solver. The produced
Touchstone path is recorded in result.json.

The frequency sweeps come from the sweep blocks in cct.hcl. With
--cutout the signal and reference nets from ports.json bound the
cutout region.

Example:
  cct sim run board.aedb --solver SIwave --cutout`,
	Args: cobra.ExactArgs(1),
	RunE: runSimRun,
}

func runSimRun(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := newEngine(conf)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	layoutPath := args[0]
	cfg := &solve.Config{
		LayoutPath:    layoutPath,
		EngineVersion: conf.Engine.Version,
		Solver:        solve.SolverKind(simSolver),
		Sweeps:        conf.SolveSweeps(),
	}
	if simCutout {
		rec, err := ports.Load(filepath.Join(filepath.Dir(layoutPath), "ports.json"))
		if err != nil {
			return fmt.Errorf("cutout needs the port record: %w", err)
		}
		cfg.Cutout = solve.Cutout{
			Enabled:       true,
			ExpansionSize: simExpansion,
			SignalNets:    rec.SignalNets(),
			ReferenceNet:  rec.ReferenceNet,
		}
	}

	ctl := &solve.Controller{Layout: eng, Solver: eng}
	tsPath, err := ctl.Run(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Network model written to %s\n", tsPath)
	if verbose {
		fmt.Printf("Result recorded in %s\n", solve.ResultPathFor(layoutPath))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(simCmd)
	simCmd.AddCommand(simRunCmd)
	simRunCmd.Flags().StringVar(&simSolver, "solver", string(solve.SolverSIwave), "Field solver: SIwave or HFSS")
	simRunCmd.Flags().BoolVar(&simCutout, "cutout", false, "Cut the layout down to the signal nets before solving")
	simRunCmd.Flags().StringVar(&simExpansion, "expansion", "0.002", "Cutout expansion size in meters")
}
