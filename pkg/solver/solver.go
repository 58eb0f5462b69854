// Package solver recovers a secret input one symbol at a time by scoring every
// candidate next symbol against a side-channel oracle.
package solver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/apex/log"
	"github.com/blacktop/unicycle/internal/utils"
	"github.com/blacktop/unicycle/pkg/oracle"
	"github.com/blacktop/unicycle/pkg/ride"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxLength bounds the secret length when Config.MaxLength is unset.
const DefaultMaxLength = 64

// ErrNoCandidate is returned when every branch died without a successful ride.
var ErrNoCandidate = errors.New("search exhausted without a successful candidate")

// Querier scores one input; *oracle.Oracle in production.
type Querier interface {
	Query(ctx context.Context, q *oracle.Query) (*ride.Result, int64, error)
}

// ScoreEntry is the side-channel score of one candidate symbol.
type ScoreEntry struct {
	Symbol   rune
	Score    int64
	TimedOut bool // the ride timed out; worst possible score
}

func (e ScoreEntry) String() string {
	if e.TimedOut {
		return fmt.Sprintf("%q:timeout", e.Symbol)
	}
	return fmt.Sprintf("%q:%d", e.Symbol, e.Score)
}

// Step is everything learned while extending one prefix.
type Step struct {
	Depth  int
	Prefix string
	Scores []ScoreEntry // in alphabet order, only the symbols actually scored
	Chosen []ScoreEntry
	Secret string // set on the step that found the secret
}

// Recorder persists search steps.
type Recorder interface {
	RecordStep(step *Step) error
}

// Config drives a search.
type Config struct {
	Target   string
	Args     []string
	Observer string

	Alphabet []rune // tried in this order
	Prefix   string // already known start of the secret
	Pad      int    // candidates are left justified to this many symbols
	PadChar  rune   // defaults to 'X'
	Raw      bool   // do not append a newline to candidates

	MaxLength    int // defaults to DefaultMaxLength
	MaxQueries   int // 0 means unlimited
	Parallel     int // concurrent rides per step, defaults to 1
	Retries      int // extra attempts after a spawn failure
	RetryBackoff time.Duration

	Success SuccessFunc
	Choose  Chooser

	Recorder Recorder
	OnStep   func(*Step)
	OnQuery  func(ScoreEntry)
}

func (c *Config) validate() error {
	if len(c.Alphabet) == 0 {
		return fmt.Errorf("empty alphabet")
	}
	if c.Success == nil {
		return fmt.Errorf("no success test")
	}
	if c.Choose == nil {
		return fmt.Errorf("no candidate chooser")
	}
	seen := make(map[rune]bool, len(c.Alphabet))
	for _, r := range c.Alphabet {
		if seen[r] {
			return fmt.Errorf("alphabet repeats %q", r)
		}
		seen[r] = true
	}
	return nil
}

// Candidate returns the exact input sent for guess.
func (c *Config) Candidate(guess string) string {
	padChar := c.PadChar
	if padChar == 0 {
		padChar = 'X'
	}
	var sb strings.Builder
	sb.WriteString(guess)
	for n := utf8.RuneCountInString(guess); n < c.Pad; n++ {
		sb.WriteRune(padChar)
	}
	if !c.Raw {
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Result is the outcome of a search.
type Result struct {
	Found   bool
	Secret  string
	Input   string // the exact input that succeeded
	Best    string // longest prefix reached
	Steps   int
	Queries int64
}

type searcher struct {
	q       Querier
	conf    *Config
	queries atomic.Int64
}

// Search extends conf.Prefix until a candidate passes conf.Success.
//
// Each step scores every alphabet symbol appended to the current prefix, then
// asks conf.Choose which symbols to extend. Chosen symbols are explored depth
// first, in the order returned. The search fails with ErrNoCandidate once no
// branch is left; Result.Best still reports how far it got.
func Search(ctx context.Context, q Querier, conf *Config) (*Result, error) {
	if err := conf.validate(); err != nil {
		return nil, fmt.Errorf("invalid search config: %w", err)
	}
	s := &searcher{q: q, conf: conf}
	maxLen := conf.MaxLength
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}

	res := &Result{Best: conf.Prefix}
	stack := []string{conf.Prefix}
	for len(stack) > 0 {
		prefix := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		depth := utf8.RuneCountInString(prefix)
		if depth > utf8.RuneCountInString(res.Best) {
			res.Best = prefix
		}
		if depth >= maxLen {
			log.WithField("prefix", prefix).Debug("Reached maximum length")
			continue
		}
		if conf.MaxQueries > 0 && s.queries.Load()+int64(len(conf.Alphabet)) > int64(conf.MaxQueries) {
			log.WithField("queries", s.queries.Load()).Warn("Query budget exhausted")
			break
		}

		log.WithField("guess", prefix).Info("Scoring")
		step, hit, err := s.step(ctx, prefix)
		res.Steps++
		res.Queries = s.queries.Load()
		if err != nil {
			return res, err
		}
		step.Depth = depth

		if hit >= 0 {
			secret := prefix + string(conf.Alphabet[hit])
			step.Secret = secret
			s.publish(step)
			res.Found = true
			res.Secret = secret
			res.Input = conf.Candidate(secret)
			res.Best = secret
			return res, nil
		}

		step.Chosen = conf.Choose(step.Scores)
		s.publish(step)
		for i := len(step.Chosen) - 1; i >= 0; i-- {
			stack = append(stack, prefix+string(step.Chosen[i].Symbol))
		}
	}
	res.Queries = s.queries.Load()
	return res, ErrNoCandidate
}

func (s *searcher) publish(step *Step) {
	if s.conf.OnStep != nil {
		s.conf.OnStep(step)
	}
	if s.conf.Recorder != nil {
		if err := s.conf.Recorder.RecordStep(step); err != nil {
			log.WithError(err).Warn("failed to record search step")
		}
	}
}

// step scores every symbol after prefix. It returns the alphabet index of the
// first successful symbol, or -1.
func (s *searcher) step(ctx context.Context, prefix string) (*Step, int, error) {
	alphabet := s.conf.Alphabet
	entries := make([]ScoreEntry, len(alphabet))
	scored := make([]bool, len(alphabet))

	parallel := s.conf.Parallel
	if parallel <= 0 {
		parallel = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	// cut is the lowest index that ended the step, by success or by a fatal
	// error. Rides past it are cancelled and their outcome is discarded, so
	// the result matches a sequential walk of the alphabet.
	var mu sync.Mutex
	cut := len(alphabet)
	cancels := make([]context.CancelFunc, len(alphabet))
	errs := make([]error, len(alphabet))
	hits := make([]bool, len(alphabet))

	past := func(i int) bool {
		mu.Lock()
		defer mu.Unlock()
		return i > cut
	}
	end := func(i int) {
		mu.Lock()
		defer mu.Unlock()
		if i >= cut {
			return
		}
		cut = i
		for _, cancel := range cancels[i+1:] {
			if cancel != nil {
				cancel()
			}
		}
	}

	for i, sym := range alphabet {
		if gctx.Err() != nil || past(i) {
			break
		}
		rideCtx, cancel := context.WithCancel(gctx)
		mu.Lock()
		cancels[i] = cancel
		mu.Unlock()
		g.Go(func() error {
			defer cancel()
			if rideCtx.Err() != nil || past(i) {
				return nil
			}
			guess := prefix + string(sym)
			res, score, err := s.query(rideCtx, guess)
			if err != nil {
				if past(i) {
					return nil
				}
				var timeoutErr *ride.TimeoutError
				if errors.As(err, &timeoutErr) {
					log.WithField("guess", guess).Warn("Ride timed out")
					entries[i] = ScoreEntry{Symbol: sym, TimedOut: true}
					scored[i] = true
					s.notify(entries[i])
					return nil
				}
				errs[i] = fmt.Errorf("failed to score %q: %w", guess, err)
				end(i)
				return nil
			}
			entries[i] = ScoreEntry{Symbol: sym, Score: score}
			scored[i] = true
			s.notify(entries[i])
			if s.conf.Success(res) {
				hits[i] = true
				end(i)
			}
			return nil
		})
	}
	_ = g.Wait() // rides report through errs
	if ctx.Err() != nil {
		return nil, -1, ctx.Err()
	}

	step := &Step{Prefix: prefix}
	for i, ok := range scored {
		if ok && i <= cut {
			step.Scores = append(step.Scores, entries[i])
		}
	}
	if cut < len(alphabet) {
		if errs[cut] != nil {
			return nil, -1, errs[cut]
		}
		if hits[cut] {
			return step, cut, nil
		}
	}
	return step, -1, nil
}

func (s *searcher) notify(e ScoreEntry) {
	if s.conf.OnQuery != nil {
		s.conf.OnQuery(e)
	}
}

// query rides one guess, retrying spawn failures.
func (s *searcher) query(ctx context.Context, guess string) (*ride.Result, int64, error) {
	q := &oracle.Query{
		Target:   s.conf.Target,
		Args:     s.conf.Args,
		Observer: s.conf.Observer,
		Stdin:    []byte(s.conf.Candidate(guess)),
	}
	var (
		res   *ride.Result
		score int64
	)
	err := utils.Retry(ctx, s.conf.Retries+1, s.conf.RetryBackoff, func() error {
		var err error
		s.queries.Add(1)
		res, score, err = s.q.Query(ctx, q)
		var spawnErr *ride.SpawnError
		if err != nil && !errors.As(err, &spawnErr) {
			return utils.Stop(err)
		}
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	log.WithFields(log.Fields{
		"guess": guess,
		"score": score,
		"rc":    res.ExitCode,
	}).Debug("Scored")
	return res, score, nil
}
