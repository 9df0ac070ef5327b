package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/channeltrace/cct/pkg/layout"
)

var importStackup string

var importCmd = &cobra.Command{
	Use:   "import <layout>",
	Short: "Import a board layout and list its components",
	Long: `Import reads a layout database (.aedb directory or .brd file) through
the engine, writes the design snapshot next to it and lists the
components found, largest first.

Examples:
  cct import board.aedb
  cct import board.brd --stackup stackup.xml`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
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
	if _, err := layout.DetectFormat(layoutPath); err != nil {
		return err
	}
	snapPath, err := eng.Import(ctx, layoutPath, importStackup)
	if err != nil {
		return err
	}
	design, err := layout.LoadSnapshot(layoutPath, snapPath)
	if err != nil {
		return err
	}

	comps := design.Components()
	fmt.Printf("Imported %s: %d components\n", layoutPath, len(comps))
	for _, c := range comps {
		fmt.Printf("  %-12s %4d pins\n", c.Name, len(c.Pins))
	}
	if pairs := design.DiffPairs(); len(pairs) > 0 {
		fmt.Printf("Differential pairs:\n")
		for _, p := range pairs {
			fmt.Printf("  %-12s %s / %s\n", p.Name, p.Positive, p.Negative)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVar(&importStackup, "stackup", "", "Stackup XML to apply during import")
}
