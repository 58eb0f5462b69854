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
	"fmt"
	"strings"

	"github.com/blacktop/unicycle/internal/colors"
	"github.com/blacktop/unicycle/internal/db"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	sessionsCmd.AddCommand(sessionsShowCmd)
}

// sessionsShowCmd represents the sessions show command
var sessionsShowCmd = &cobra.Command{
	Use:           "show <ID>",
	Short:         "Show the steps of a journaled search",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openJournal()
		if err != nil {
			return err
		}
		defer d.Close()

		s, err := db.FindSession(d, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s %s\n", colors.Header("Session:"), s.ID)
		fmt.Printf("%s %s %s\n", colors.Header("Target: "), s.Target, s.Args)
		fmt.Printf("%s %s (%s/%d)\n", colors.Header("Search: "), s.Observer, s.Chooser, s.Width)
		fmt.Printf("%s %s\n", colors.Header("Status: "), statusColor(s.Status))
		fmt.Printf("%s %q\n", colors.Header("Best:   "), s.Best)
		if s.Secret != "" {
			fmt.Printf("%s %s\n", colors.Header("Secret: "), colors.Secret(s.Secret))
		}
		if s.Error != "" {
			fmt.Printf("%s %s\n", colors.Header("Error:  "), colors.Failure(s.Error))
		}
		fmt.Printf("%s %s\n\n", colors.Header("Rides:  "), humanize.Comma(s.Queries))

		for _, st := range s.Steps {
			chosen := make(map[string]bool)
			for _, r := range st.Chosen {
				chosen[string(r)] = true
			}
			var cells []string
			for _, sc := range st.Scores {
				text := fmt.Sprintf("%q:", sc.Symbol)
				if sc.TimedOut {
					text += "timeout"
				} else {
					text += humanize.Comma(sc.Count)
				}
				cells = append(cells, colors.Score(text, chosen[sc.Symbol], sc.TimedOut))
			}
			fmt.Printf("%3d %s\n    %s\n", st.Depth, colors.Prefix(fmt.Sprintf("%q", st.Prefix)), strings.Join(cells, " "))
		}
		return nil
	},
}
