/*
Copyright © 2018-2023 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/blacktop/unicycle/internal/colors"
	"github.com/blacktop/unicycle/internal/config"
	"github.com/blacktop/unicycle/pkg/solver"
	"github.com/briandowns/spinner"
	"github.com/caarlos0/ctrlc"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

func init() {
	rootCmd.AddCommand(probeCmd)

	addTargetFlags(probeCmd, "icount")
	probeCmd.Flags().Int("min", 1, "Shortest input")
	probeCmd.Flags().Int("max", 39, "Longest input")
	probeCmd.Flags().String("fill", "x", "Symbol the inputs are made of")
	probeCmd.Flags().Bool("raw", false, "Do not append a newline to inputs")
	probeCmd.Flags().Int("width", solver.HistogramWidth, "Histogram width")
	probeCmd.MarkFlagRequired("cmd")
}

// probeCmd represents the probe command
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Guess the secret length from instruction counts",
	Example: heredoc.Doc(`
		# ride inputs of length 1 to 39 and plot their counts
		❯ unicycle probe -c /tmp/crackme -e ptrace`),
	Args:          cobra.NoArgs,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		bindTargetFlags(cmd, "probe")
		viper.BindPFlag("probe.min", cmd.Flags().Lookup("min"))
		viper.BindPFlag("probe.max", cmd.Flags().Lookup("max"))
		viper.BindPFlag("probe.fill", cmd.Flags().Lookup("fill"))
		viper.BindPFlag("probe.raw", cmd.Flags().Lookup("raw"))
		viper.BindPFlag("probe.width", cmd.Flags().Lookup("width"))

		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}
		t, err := targetFromFlags("probe")
		if err != nil {
			return err
		}
		fill := []rune(viper.GetString("probe.fill"))
		if len(fill) != 1 {
			return fmt.Errorf("--fill must be a single symbol")
		}
		o, err := newOracle(conf, t, viper.GetString("probe.dir"))
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		minLen, maxLen := viper.GetInt("probe.min"), viper.GetInt("probe.max")
		spin := spinner.New(spinner.CharSets[38], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		spin.Prefix = color.BlueString("   • Probing lengths %d to %d... ", minLen, maxLen)
		if !viper.GetBool("verbose") && term.IsTerminal(int(os.Stderr.Fd())) {
			spin.Start()
		}
		defer spin.Stop()

		var samples []solver.LengthSample
		if err := ctrlc.Default.Run(ctx, func() error {
			samples, err = solver.Probe(ctx, o, &solver.ProbeConfig{
				Target:   t.Path,
				Args:     t.Args,
				Observer: t.Observer,
				Fill:     fill[0],
				Min:      minLen,
				Max:      maxLen,
				Raw:      viper.GetBool("probe.raw"),
			})
			return err
		}); err != nil {
			return err
		}

		spin.Stop()
		if err := solver.Histogram(os.Stdout, samples, viper.GetInt("probe.width")); err != nil {
			return err
		}
		if peak, ok := solver.Peak(samples); ok {
			log.WithFields(log.Fields{
				"length": peak.Length,
				"count":  humanize.Comma(peak.Count),
			}).Info(colors.Header("Most likely length"))
		}
		return nil
	},
}
