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
	"strings"
	"sync"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/blacktop/unicycle/internal/colors"
	"github.com/blacktop/unicycle/internal/config"
	"github.com/blacktop/unicycle/internal/db"
	"github.com/blacktop/unicycle/internal/utils"
	"github.com/blacktop/unicycle/pkg/oracle"
	"github.com/blacktop/unicycle/pkg/solver"
	"github.com/caarlos0/ctrlc"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

func init() {
	rootCmd.AddCommand(solveCmd)

	addTargetFlags(solveCmd, "icount")
	solveCmd.Flags().String("alphabet", "printable", "Candidate symbols in try order (or printable, digits, lower, upper, hex, alnum)")
	solveCmd.Flags().String("prefix", "", "Known start of the secret")
	solveCmd.Flags().Int("pad", 0, "Pad every candidate to this many symbols")
	solveCmd.Flags().String("pad-char", "X", "Padding symbol")
	solveCmd.Flags().Bool("raw", false, "Do not append a newline to candidates")
	solveCmd.Flags().Int("max-length", solver.DefaultMaxLength, "Give up past this many symbols")
	solveCmd.Flags().Int("max-queries", 0, "Give up after this many rides (0 for no limit)")
	solveCmd.Flags().IntP("parallel", "j", 1, "Rides in flight per step")
	solveCmd.Flags().Int("retries", 0, "Retry a ride that failed to spawn this many times")
	solveCmd.Flags().StringP("chooser", "s", "top", "How to pick the next symbols (top, deviation)")
	solveCmd.Flags().IntP("width", "k", 1, "How many symbols to extend per step (1 is greedy)")
	solveCmd.Flags().String("fail", "", "Success when this marker is absent from the stream")
	solveCmd.Flags().String("match", "", "Success when this marker is present in the stream")
	solveCmd.Flags().String("stream", "stdout", "Stream the markers are searched in (stdout, stderr)")
	solveCmd.Flags().Int("exit-code", -1, "Success when the target exits with this code")
	solveCmd.Flags().Bool("no-journal", false, "Do not record the search")
	solveCmd.Flags().String("resume", "", "Resume the journaled session with this id")
	solveCmd.Flags().StringP("report", "r", "", "Write a YAML report to this file")
	solveCmd.Flags().Bool("no-progress", false, "Hide the progress bars")
	solveCmd.Flags().Int("cache", 0, "Remember this many rides and skip repeats (0 to disable)")
}

// solveCmd represents the solve command
var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Brute force a secret input one symbol at a time",
	Example: heredoc.Doc(`
		# crackme prints "Incorrect" for wrong passwords
		❯ unicycle solve -c /tmp/crackme --fail Incorrect -p /opt/pin -u cycle
		# keep the two best symbols per step, four rides at a time, natively
		❯ unicycle solve -c /tmp/crackme --fail Incorrect -e ptrace -k 2 -j 4
		# pick up where an interrupted search stopped
		❯ unicycle solve --resume 3f2a9c1e --fail Incorrect`),
	Args:          cobra.NoArgs,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		bindTargetFlags(cmd, "solve")
		for _, name := range []string{
			"alphabet", "prefix", "pad", "pad-char", "raw", "max-length", "max-queries",
			"chooser", "width", "fail", "match", "stream", "exit-code", "no-journal",
			"resume", "report", "no-progress",
		} {
			viper.BindPFlag("solve."+name, cmd.Flags().Lookup(name))
		}
		viper.BindPFlag("solve.parallel", cmd.Flags().Lookup("parallel"))
		viper.BindPFlag("solve.retries", cmd.Flags().Lookup("retries"))
		viper.BindPFlag("solve.cache", cmd.Flags().Lookup("cache"))

		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}

		success, err := successFromFlags()
		if err != nil {
			return err
		}
		t, err := targetFromFlags("solve")
		if err != nil {
			return err
		}
		alphabet, err := solver.ParseAlphabet(viper.GetString("solve.alphabet"))
		if err != nil {
			return err
		}
		chooserName := viper.GetString("solve.chooser")
		width := viper.GetInt("solve.width")
		prefix := viper.GetString("solve.prefix")
		pad := viper.GetInt("solve.pad")

		var journal *db.Journal
		if resume := viper.GetString("solve.resume"); resume != "" {
			d, err := db.Open(&conf.Database)
			if err != nil {
				return errors.Wrap(err, "failed to open search journal")
			}
			defer closeJournal(d)
			journal, err = db.ResumeJournal(d, resume)
			if err != nil {
				return err
			}
			s := journal.Session
			if t.Args, err = journal.Args(); err != nil {
				return errors.Wrap(err, "failed to split journaled args")
			}
			t.Path, t.Observer = s.Target, s.Observer
			alphabet = []rune(s.Alphabet)
			chooserName, width, pad = s.Chooser, s.Width, s.Pad
			if p, ok := s.ResumePrefix(); ok {
				prefix = p
			}
			log.WithFields(log.Fields{
				"session": s.ID,
				"prefix":  prefix,
			}).Info("Resuming")
		}
		if t.Path == "" {
			cmd.SilenceUsage = false
			return fmt.Errorf("required flag(s) \"cmd\" not set")
		}

		choose, ok := solver.ChooserByName(chooserName, width)
		if !ok {
			return fmt.Errorf("unknown chooser %q (expected top or deviation)", chooserName)
		}
		padChar := []rune(viper.GetString("solve.pad-char"))
		if len(padChar) != 1 {
			return fmt.Errorf("--pad-char must be a single symbol")
		}

		o, err := newOracle(conf, t, viper.GetString("solve.dir"))
		if err != nil {
			return err
		}
		var querier solver.Querier = o
		var cache *oracle.Cached
		if conf.Solve.Cache > 0 {
			if cache, err = oracle.NewCached(o, conf.Solve.Cache); err != nil {
				return err
			}
			querier = cache
		}

		if journal == nil && !viper.GetBool("solve.no-journal") {
			d, err := db.Open(&conf.Database)
			if err != nil {
				log.WithError(err).Warn("Search journal disabled")
			} else {
				defer closeJournal(d)
				journal, err = db.NewJournal(d, &db.SessionInfo{
					Target:   t.Path,
					Args:     t.Args,
					Observer: t.Observer,
					Alphabet: alphabet,
					Chooser:  chooserName,
					Width:    width,
					Pad:      pad,
				})
				if err != nil {
					log.WithError(err).Warn("Search journal disabled")
					journal = nil
				} else {
					log.WithField("session", journal.Session.ID).Info("Journaling search")
				}
			}
		}

		sconf := &solver.Config{
			Target:       t.Path,
			Args:         t.Args,
			Observer:     t.Observer,
			Alphabet:     alphabet,
			Prefix:       prefix,
			Pad:          pad,
			PadChar:      padChar[0],
			Raw:          viper.GetBool("solve.raw"),
			MaxLength:    viper.GetInt("solve.max-length"),
			MaxQueries:   viper.GetInt("solve.max-queries"),
			Parallel:     conf.Solve.Parallel,
			Retries:      conf.Solve.Retries,
			RetryBackoff: conf.Solve.Backoff,
			Success:      success,
			Choose:       choose,
		}
		if journal != nil {
			sconf.Recorder = journal
		}

		var prog *stepProgress
		if !viper.GetBool("solve.no-progress") && !viper.GetBool("verbose") && term.IsTerminal(int(os.Stderr.Fd())) {
			prog = newStepProgress(len(alphabet))
			sconf.OnQuery = prog.query
		}
		sconf.OnStep = func(s *solver.Step) {
			if prog != nil {
				prog.done()
			}
			printStep(s)
		}

		log.WithFields(log.Fields{
			"target":   t.Path,
			"engine":   conf.Engine.Kind,
			"observer": t.Observer,
			"alphabet": len(alphabet),
			"chooser":  fmt.Sprintf("%s/%d", chooserName, width),
		}).Info("Solving")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		type outcome struct {
			res *solver.Result
			err error
		}
		done := make(chan outcome, 1)
		start := time.Now()
		if err := ctrlc.Default.Run(ctx, func() error {
			res, err := solver.Search(ctx, querier, sconf)
			done <- outcome{res, err}
			return nil
		}); err != nil {
			log.Warn("Interrupted, stopping rides...")
			cancel()
		}
		out := <-done
		if prog != nil {
			prog.wait()
		}
		if cache != nil {
			hits, misses := cache.Stats()
			log.WithFields(log.Fields{
				"hits":   hits,
				"misses": misses,
			}).Debug("Ride cache")
		}

		if journal != nil {
			if err := journal.Finish(out.res, out.err); err != nil {
				log.WithError(err).Warn("Failed to save search journal")
			}
		}
		if path := viper.GetString("solve.report"); path != "" {
			var id string
			if journal != nil {
				id = journal.Session.ID
			}
			if err := writeReport(path, newReport(id, t, out.res, out.err, journal)); err != nil {
				log.WithError(err).Error("Failed to write report")
			} else {
				log.WithField("path", path).Info("Wrote report")
			}
		}

		return summarize(out.res, out.err, time.Since(start))
	},
}

func successFromFlags() (solver.SuccessFunc, error) {
	stream, err := solver.ParseStream(viper.GetString("solve.stream"))
	if err != nil {
		return nil, err
	}
	var tests []solver.SuccessFunc
	if fail := viper.GetString("solve.fail"); fail != "" {
		tests = append(tests, solver.NotContains(stream, fail))
	}
	if match := viper.GetString("solve.match"); match != "" {
		tests = append(tests, solver.Contains(stream, match))
	}
	if rc := viper.GetInt("solve.exit-code"); rc >= 0 {
		tests = append(tests, solver.ExitCode(rc))
	}
	if len(tests) == 0 {
		return nil, fmt.Errorf("no success test: pass --fail, --match or --exit-code")
	}
	return solver.All(tests...), nil
}

func printStep(s *solver.Step) {
	chosen := make(map[rune]bool, len(s.Chosen))
	for _, c := range s.Chosen {
		chosen[c.Symbol] = true
	}
	var cells []string
	for _, e := range s.Scores {
		text := colors.Symbol(e.Symbol) + ":"
		if e.TimedOut {
			text += "timeout"
		} else {
			text += humanize.Comma(e.Score)
		}
		cells = append(cells, colors.Score(text, chosen[e.Symbol], e.TimedOut))
	}
	log.WithFields(log.Fields{
		"depth":  s.Depth,
		"prefix": colors.Prefix(fmt.Sprintf("%q", s.Prefix)),
	}).Debug(strings.Join(cells, " "))

	if s.Secret != "" {
		return
	}
	var picks []string
	for _, c := range s.Chosen {
		picks = append(picks, colors.Prefix(fmt.Sprintf("%q", s.Prefix+string(c.Symbol))))
	}
	if len(picks) == 0 {
		utils.Indent(log.WithField("prefix", fmt.Sprintf("%q", s.Prefix)).Warn, 2)("Dead end")
		return
	}
	utils.Indent(log.Info, 2)("Next " + strings.Join(picks, ", "))
}

func summarize(res *solver.Result, err error, took time.Duration) error {
	if res != nil {
		log.WithFields(log.Fields{
			"steps":   res.Steps,
			"rides":   humanize.Comma(res.Queries),
			"elapsed": took.Round(time.Millisecond),
		}).Debug("Search stats")
	}
	switch {
	case err == nil && res != nil && res.Found:
		log.WithField("rides", humanize.Comma(res.Queries)).Info(colors.Header("Found secret"))
		fmt.Println(colors.Secret(res.Secret))
		return nil
	case res != nil:
		log.WithField("best", fmt.Sprintf("%q", res.Best)).Error(colors.Failure("No secret found"))
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("search interrupted")
	}
	return err
}

// stepProgress draws one bar per search step.
type stepProgress struct {
	p     *mpb.Progress
	total int

	mu   sync.Mutex
	bar  *mpb.Bar
	step int
}

func newStepProgress(total int) *stepProgress {
	return &stepProgress{
		p:     mpb.New(mpb.WithWidth(60), mpb.WithOutput(os.Stderr)),
		total: total,
	}
}

func (sp *stepProgress) query(solver.ScoreEntry) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.bar == nil {
		sp.step++
		name := fmt.Sprintf("step %d", sp.step)
		sp.bar = sp.p.New(int64(sp.total),
			mpb.BarStyle().Lbound("[").Filler("=").Tip(">").Padding("-").Rbound("|"),
			mpb.PrependDecorators(
				decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
				decor.OnComplete(decor.AverageETA(decor.ET_STYLE_GO, decor.WC{W: 4}), "✅ "),
			),
			mpb.AppendDecorators(
				decor.CountersNoUnit("%d/%d"),
				decor.Name(" ] "),
			),
			mpb.BarRemoveOnComplete(),
		)
	}
	sp.bar.Increment()
}

// done completes the current bar even when the step stopped early.
func (sp *stepProgress) done() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.bar != nil {
		sp.bar.SetTotal(-1, true)
		sp.bar = nil
	}
}

func (sp *stepProgress) wait() {
	sp.done()
	sp.p.Wait()
}

// closeJournal closes d. The gob backend only saves on close, so a failure is logged.
func closeJournal(d db.Database) {
	if err := d.Close(); err != nil {
		log.WithError(err).Warn("Failed to close search journal")
	}
}
