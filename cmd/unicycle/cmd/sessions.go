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
	"text/tabwriter"

	"github.com/blacktop/unicycle/internal/colors"
	"github.com/blacktop/unicycle/internal/config"
	"github.com/blacktop/unicycle/internal/db"
	"github.com/blacktop/unicycle/internal/model"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func openJournal() (db.Database, error) {
	conf, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	d, err := db.Open(&conf.Database)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open search journal")
	}
	return d, nil
}

func statusColor(status string) string {
	switch status {
	case model.StatusFound:
		return colors.Secret(status)
	case model.StatusFailed:
		return colors.Failure(status)
	case model.StatusRunning, model.StatusInterrupted:
		return colors.Prefix(status)
	}
	return colors.Faint(status)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// sessionsCmd represents the sessions command
var sessionsCmd = &cobra.Command{
	Use:           "sessions",
	Aliases:       []string{"ls"},
	Short:         "List journaled searches",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openJournal()
		if err != nil {
			return err
		}
		defer d.Close()

		sessions, err := d.ListSessions()
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("no sessions")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, colors.Header("ID\tSTATUS\tTARGET\tBEST\tRIDES\tSTARTED"))
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%q\t%s\t%s\n",
				shortID(s.ID),
				statusColor(s.Status),
				s.Target,
				s.Best,
				humanize.Comma(s.Queries),
				humanize.Time(s.CreatedAt),
			)
		}
		return w.Flush()
	},
}
