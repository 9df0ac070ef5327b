package cmd

import (
	"github.com/spf13/cobra"

	appui "github.com/channeltrace/cct/internal/ui"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Launch the graphical workflow",
	Long:  `Launch the five stage wizard: Import, Port Setup, Simulation, CCT, Result.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig()
		if err != nil {
			return err
		}
		eng, err := newEngine(conf)
		if err != nil {
			return err
		}
		return appui.Run(eng, conf, configPath)
	},
}

func init() {
	rootCmd.AddCommand(uiCmd)
}
