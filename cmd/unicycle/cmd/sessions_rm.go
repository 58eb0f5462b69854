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

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/apex/log"
	"github.com/blacktop/unicycle/internal/db"
	"github.com/blacktop/unicycle/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	sessionsCmd.AddCommand(sessionsRmCmd)
	sessionsRmCmd.Flags().BoolP("force", "f", false, "Do not ask for confirmation")
}

// sessionsRmCmd represents the sessions rm command
var sessionsRmCmd = &cobra.Command{
	Use:           "rm <ID>...",
	Short:         "Delete journaled searches",
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openJournal()
		if err != nil {
			return err
		}
		defer d.Close()

		var sessions []*model.Session
		for _, id := range args {
			s, err := db.FindSession(d, id)
			if err != nil {
				return err
			}
			sessions = append(sessions, s)
		}

		if force, _ := cmd.Flags().GetBool("force"); !force {
			cont := false
			prompt := &survey.Confirm{
				Message: fmt.Sprintf("You are about to delete %d journaled search(es). Continue?", len(sessions)),
			}
			if err := survey.AskOne(prompt, &cont); err != nil {
				if err == terminal.InterruptErr {
					log.Warn("Exiting...")
					return nil
				}
				return err
			}
			if !cont {
				return nil
			}
		}

		for _, s := range sessions {
			if err := d.DeleteSession(s.ID); err != nil {
				return err
			}
			log.WithField("session", s.ID).Info("Deleted")
		}
		return nil
	},
}
