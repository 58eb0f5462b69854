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
	"os"

	"github.com/apex/log"
	"github.com/blacktop/unicycle/internal/utils"
	"github.com/blacktop/unicycle/pkg/engine"
	"github.com/blacktop/unicycle/pkg/observer"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(pedalCmd)

	pedalCmd.Flags().StringP("engine", "e", "ptrace", "Instrumentation engine")
	pedalCmd.Flags().StringP("unicycle", "m", "icount", "Observer to run")
	pedalCmd.Flags().Uint64("start", observer.RangeStart, "Start of the observed address range")
	pedalCmd.Flags().Uint64("end", observer.RangeEnd, "End of the observed address range")
	pedalCmd.Flags().String("arch", "amd64", "Emulator architecture")
	pedalCmd.Flags().String("base", "0", "Emulator load address of the code blob")
	pedalCmd.Flags().String("entry", "0", "Emulator entry point offset")
	pedalCmd.Flags().String("until", "0", "Emulator stop address")
}

// pedalCmd represents the pedal command
var pedalCmd = &cobra.Command{
	Use:    "pedal [flags] -- <target> [args...]",
	Short:  "Run a target under a native engine and report the observer's count on stderr",
	Hidden: true,
	Args:   cobra.MinimumNArgs(1),
	// the target owns stdout and stderr; keep cobra quiet
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("engine")
		obsName, _ := cmd.Flags().GetString("unicycle")
		start, _ := cmd.Flags().GetUint64("start")
		end, _ := cmd.Flags().GetUint64("end")
		arch, _ := cmd.Flags().GetString("arch")
		var addrs [3]uint64
		for i, flag := range []string{"base", "entry", "until"} {
			str, _ := cmd.Flags().GetString(flag)
			addr, err := utils.ConvertStrToInt(str)
			if err != nil {
				return errors.Wrapf(err, "failed to parse --%s", flag)
			}
			addrs[i] = addr
		}
		base, entry, until := addrs[0], addrs[1], addrs[2]

		newEngine, err := engine.Lookup(name)
		if err != nil {
			return err
		}
		newObserver, err := observer.Lookup(obsName)
		if err != nil {
			return err
		}

		eng, err := newEngine(&engine.Config{
			Target: args[0],
			Args:   args[1:],
			Arch:   arch,
			Base:   base,
			Entry:  entry,
			Until:  until,
		})
		if err != nil {
			return errors.Wrapf(err, "failed to create %s engine", name)
		}
		obs, err := newObserver(&observer.Options{
			Start:       start,
			End:         end,
			SideChannel: os.Stderr,
			Arch:        arch,
		})
		if err != nil {
			return errors.Wrapf(err, "failed to create %s observer", obsName)
		}
		if err := obs.Activate(eng); err != nil {
			return err
		}

		rc, err := eng.Run(cmd.Context())
		if err != nil {
			log.WithError(err).Debug("pedal: engine failed")
			return err
		}
		os.Exit(rc)
		return nil
	},
}
