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
	"os"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/blacktop/unicycle/internal/db"
	"github.com/spf13/cobra"
)

func init() {
	sessionsCmd.AddCommand(sessionsGraphCmd)
	sessionsGraphCmd.Flags().StringP("output", "o", "", "Write the DOT graph to this file")
}

// sessionsGraphCmd represents the sessions graph command
var sessionsGraphCmd = &cobra.Command{
	Use:   "graph <ID>",
	Short: "Export the prefix tree of a journaled search as Graphviz DOT",
	Example: heredoc.Doc(`
		❯ unicycle sessions graph 3f2a9c1e | dot -Tsvg > search.svg`),
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

		if s.Secret != "" {
			g, err := db.SearchTree(s)
			if err != nil {
				return err
			}
			if path, err := db.SecretPath(g, s.Secret); err == nil {
				var hops []string
				for _, p := range path {
					hops = append(hops, fmt.Sprintf("%q", p))
				}
				log.WithField("session", s.ID).Debug("Secret path: " + strings.Join(hops, " → "))
			}
		}

		out := os.Stdout
		if path, _ := cmd.Flags().GetString("output"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("failed to create %s: %v", path, err)
			}
			defer f.Close()
			out = f
			log.WithField("path", path).Info("Writing search tree")
		}
		return db.WriteDOT(out, s)
	},
}
