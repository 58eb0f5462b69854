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

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/blacktop/unicycle/internal/colors"
	"github.com/blacktop/unicycle/internal/config"
	"github.com/blacktop/unicycle/pkg/oracle"
	"github.com/caarlos0/ctrlc"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(rideCmd)

	addTargetFlags(rideCmd, "")
	rideCmd.Flags().StringP("input", "i", "", "Input fed to the target on stdin")
	rideCmd.Flags().Bool("dry-run", false, "Print the engine command line instead of running it")
	rideCmd.MarkFlagRequired("cmd")
	rideCmd.MarkFlagRequired("unicycle")
}

// rideCmd represents the ride command
var rideCmd = &cobra.Command{
	Use:   "ride",
	Short: "Ride a target once under an observer",
	Example: heredoc.Doc(`
		# count the instructions /tmp/crackme executes for one input
		❯ unicycle ride -c /tmp/crackme -u cycle -i "hunter2" -p /opt/pin
		# same thing without pin
		❯ unicycle ride -c /tmp/crackme -u icount -e ptrace -i "hunter2"`),
	Args:          cobra.NoArgs,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		bindTargetFlags(cmd, "ride")
		viper.BindPFlag("ride.input", cmd.Flags().Lookup("input"))
		viper.BindPFlag("ride.dry-run", cmd.Flags().Lookup("dry-run"))

		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}
		t, err := targetFromFlags("ride")
		if err != nil {
			return err
		}
		o, err := newOracle(conf, t, viper.GetString("ride.dir"))
		if err != nil {
			return err
		}
		q := &oracle.Query{
			Target:   t.Path,
			Args:     t.Args,
			Observer: t.Observer,
		}
		if cmd.Flags().Changed("input") {
			q.Stdin = []byte(viper.GetString("ride.input"))
		}

		if viper.GetBool("ride.dry-run") {
			c, err := o.Command(q)
			if err != nil {
				return err
			}
			fmt.Println(c)
			return nil
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		return ctrlc.Default.Run(ctx, func() error {
			res, count, err := o.Query(ctx, q)
			if res != nil {
				os.Stdout.Write(res.Stdout)
				os.Stderr.Write(res.Stderr)
			}
			if err != nil {
				var malformed *oracle.MalformedSideChannelError
				if errors.As(err, &malformed) {
					return errors.Wrapf(err, "observer %s did not report a count", t.Observer)
				}
				return errors.Wrap(err, "ride failed")
			}
			fmt.Fprintln(os.Stderr)
			log.WithFields(log.Fields{
				"rc":    res.ExitCode,
				"count": humanize.Comma(count),
			}).Info(colors.Header("Rode"))
			return nil
		})
	},
}
