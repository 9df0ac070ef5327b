package cmd

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/channeltrace/cct/internal/config"
	"github.com/channeltrace/cct/pkg/channel"
	"github.com/channeltrace/cct/pkg/ports"
	"github.com/channeltrace/cct/pkg/solve"
)

var (
	channelModel     string
	channelThreshold float64
	channelNoPrune   bool
	channelOut       string
	channelPlots     string
	channelNoPlots   bool
)

var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Transient channel check against the network model",
}

var channelPrerunCmd = &cobra.Command{
	Use:   "prerun <layout>",
	Short: "Preview the crosstalk pruning without simulating",
	Long: `Prerun reports, for every transmitter, which ports survive the
coupling threshold and the resulting trimmed model sizes. No transient
simulation is run.

Example:
  cct channel prerun board.aedb --threshold -45`,
	Args: cobra.ExactArgs(1),
	RunE: runChannelPrerun,
}

var channelRunCmd = &cobra.Command{
	Use:   "run <layout>",
	Short: "Run the channel check and write the metric report",
	Long: `Run drives one transient simulation per transmitter, reduces the
receiver waveforms to the sig/isi/xtalk metrics and writes the report
CSV next to ports.json, plus one waveform plot per receiver.

Example:
  cct channel run board.aedb --out report.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runChannelRun,
}

// newChannelAnalyzer assembles the analyzer from the artifacts the
// earlier stages left next to the layout.
func newChannelAnalyzer(cmd *cobra.Command, conf *config.Config, layoutPath string) (*channel.Analyzer, string, error) {
	dir := filepath.Dir(layoutPath)
	rec, err := ports.Load(filepath.Join(dir, "ports.json"))
	if err != nil {
		return nil, "", err
	}
	tsPath := channelModel
	if tsPath == "" {
		res, err := solve.LoadResult(solve.ResultPathFor(layoutPath))
		if err != nil {
			return nil, "", fmt.Errorf("no network model; run the simulation first: %w", err)
		}
		tsPath = res.TouchstonePath
	}
	a, err := channel.NewAnalyzer(tsPath, rec, filepath.Join(dir, "cct_work"))
	if err != nil {
		return nil, "", err
	}
	a.SetTxParams(conf.TxParams())
	a.SetRxParams(conf.RxParams())

	switch {
	case channelNoPrune:
		a.SetThreshold(nil)
	case cmd.Flags().Changed("threshold"):
		t := channelThreshold
		a.SetThreshold(&t)
	default:
		a.SetThreshold(conf.Defaults.ThresholdDB)
	}
	return a, dir, nil
}

func runChannelPrerun(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	a, _, err := newChannelAnalyzer(cmd, conf, args[0])
	if err != nil {
		return err
	}
	stats, portRatio, rxRatio, err := a.PreRun()
	if err != nil {
		return err
	}
	for _, s := range stats {
		fmt.Println(s)
	}
	fmt.Printf("Average kept ports: %.1f%%, kept receivers: %.1f%%\n",
		portRatio*100, rxRatio*100)
	return nil
}

func runChannelRun(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := newEngine(conf)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	a, dir, err := newChannelAnalyzer(cmd, conf, args[0])
	if err != nil {
		return err
	}

	if err := a.Run(ctx, eng, conf.TransientParams()); err != nil {
		return err
	}
	out := channelOut
	if out == "" {
		out = filepath.Join(dir, "ports_cct.csv")
	}
	rows, err := a.Report(out)
	if err != nil {
		return err
	}
	fmt.Printf("%-20s %-20s %10s %10s %10s %12s %8s\n",
		"tx", "rx", "sig", "isi", "xtalk", "pseudo_eye", "ratio")
	for _, r := range rows {
		ratio := fmt.Sprintf("%8.3f", r.PowerRatio)
		if math.IsInf(r.PowerRatio, 1) {
			ratio = "     inf"
		}
		fmt.Printf("%-20s %-20s %10.3f %10.3f %10.3f %12.3f %s\n",
			r.TxName, r.RxName, r.Sig, r.ISI, r.Xtalk, r.PseudoEye, ratio)
	}
	fmt.Printf("Report written to %s\n", out)

	if !channelNoPlots {
		plotDir := channelPlots
		if plotDir == "" {
			plotDir = filepath.Join(a.WorkDir, "plots")
		}
		plots, err := a.ExportPlots(plotDir)
		if err != nil {
			return err
		}
		fmt.Printf("%d waveform plots in %s\n", len(plots), plotDir)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(channelCmd)
	channelCmd.AddCommand(channelPrerunCmd)
	channelCmd.AddCommand(channelRunCmd)

	for _, c := range []*cobra.Command{channelPrerunCmd, channelRunCmd} {
		c.Flags().StringVar(&channelModel, "model", "", "Touchstone file (defaults to the one in result.json)")
		c.Flags().Float64Var(&channelThreshold, "threshold", -40, "Coupling threshold in dB for port pruning")
		c.Flags().BoolVar(&channelNoPrune, "no-prune", false, "Keep every port regardless of coupling")
	}
	channelRunCmd.Flags().StringVar(&channelOut, "out", "", "Report CSV path (defaults to ports_cct.csv next to the layout)")
	channelRunCmd.Flags().StringVar(&channelPlots, "plots", "", "Waveform plot directory")
	channelRunCmd.Flags().BoolVar(&channelNoPlots, "no-plots", false, "Skip waveform plot export")
}
