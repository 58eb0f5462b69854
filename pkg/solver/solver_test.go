package solver

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blacktop/unicycle/pkg/oracle"
	"github.com/blacktop/unicycle/pkg/ride"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOracle scores a guess by how many leading characters match secret.
type fakeOracle struct {
	secret string
	jitter bool
	// hook may replace the answer for a guess
	hook  func(guess string) (*ride.Result, int64, error, bool)
	calls atomic.Int64
	mu    sync.Mutex
	seen  []string
}

func (f *fakeOracle) Query(ctx context.Context, q *oracle.Query) (*ride.Result, int64, error) {
	f.calls.Add(1)
	guess := strings.TrimSuffix(string(q.Stdin), "\n")
	f.mu.Lock()
	f.seen = append(f.seen, guess)
	f.mu.Unlock()
	if f.jitter {
		time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if f.hook != nil {
		if res, score, err, ok := f.hook(guess); ok {
			return res, score, err
		}
	}
	var score int64
	for i := 0; i < len(guess) && i < len(f.secret) && guess[i] == f.secret[i]; i++ {
		score++
	}
	res := &ride.Result{Stdout: []byte("Incorrect!\n"), Stderr: []byte("\n0"), ExitCode: 1}
	if guess == f.secret {
		res = &ride.Result{Stdout: []byte("Correct!\n"), ExitCode: 0}
	}
	return res, score, nil
}

func catConfig() *Config {
	return &Config{
		Target:   "/tmp/crackme",
		Observer: "icount",
		Alphabet: []rune("CATX"),
		Success:  NotContains(Stdout, "Incorrect"),
		Choose:   Greedy(),
	}
}

func TestSearch_GreedyConverges(t *testing.T) {
	o := &fakeOracle{secret: "CAT"}
	var steps []*Step
	conf := catConfig()
	conf.OnStep = func(s *Step) { steps = append(steps, s) }

	res, err := Search(context.Background(), o, conf)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, "CAT", res.Secret)
	assert.Equal(t, "CAT\n", res.Input)
	assert.Equal(t, "CAT", res.Best)
	assert.Equal(t, 3, res.Steps)
	// 4 + 4 + 3: the last step stops at the winning symbol
	assert.Equal(t, int64(11), res.Queries)
	assert.Equal(t, int64(11), o.calls.Load())

	require.Len(t, steps, 3)
	assert.Equal(t, "", steps[0].Prefix)
	assert.Equal(t, []ScoreEntry{{Symbol: 'C', Score: 1}}, steps[0].Chosen)
	assert.Equal(t, "C", steps[1].Prefix)
	assert.Equal(t, []ScoreEntry{{Symbol: 'A', Score: 2}}, steps[1].Chosen)
	assert.Equal(t, "CAT", steps[2].Secret)
	assert.Len(t, steps[2].Scores, 3)
}

func TestSearch_ShortCircuit(t *testing.T) {
	o := &fakeOracle{secret: "C"}
	res, err := Search(context.Background(), o, catConfig())
	require.NoError(t, err)
	assert.Equal(t, "C", res.Secret)
	assert.Equal(t, int64(1), o.calls.Load(), "symbols after the winner must not be ridden")
}

func TestSearch_Parallel(t *testing.T) {
	for i := 0; i < 5; i++ {
		o := &fakeOracle{secret: "CAT", jitter: true}
		conf := catConfig()
		conf.Parallel = 4
		var chosen []string
		conf.OnStep = func(s *Step) {
			for _, c := range s.Chosen {
				chosen = append(chosen, string(c.Symbol))
			}
		}
		res, err := Search(context.Background(), o, conf)
		require.NoError(t, err)
		assert.Equal(t, "CAT", res.Secret)
		assert.Equal(t, []string{"C", "A"}, chosen)
	}
}

func TestSearch_ParallelPrefersEarlierSymbol(t *testing.T) {
	tests := []struct {
		name     string
		parallel int
	}{
		{"sequential", 1},
		{"parallel", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &fakeOracle{}
			o.hook = func(guess string) (*ride.Result, int64, error, bool) {
				if guess == "A" {
					time.Sleep(50 * time.Millisecond)
				}
				return &ride.Result{Stdout: []byte("Correct!\n")}, 1, nil, true
			}
			conf := catConfig()
			conf.Alphabet = []rune("AB")
			conf.Parallel = tt.parallel
			var last *Step
			conf.OnStep = func(s *Step) { last = s }

			res, err := Search(context.Background(), o, conf)
			require.NoError(t, err)
			assert.True(t, res.Found)
			assert.Equal(t, "A", res.Secret)
			require.NotNil(t, last)
			assert.Equal(t, []ScoreEntry{{Symbol: 'A', Score: 1}}, last.Scores)
		})
	}
}

func TestSearch_ParallelEarlierFailureWins(t *testing.T) {
	bad := &oracle.MalformedSideChannelError{Line: "Segmentation fault"}
	o := &fakeOracle{secret: "B"}
	o.hook = func(guess string) (*ride.Result, int64, error, bool) {
		if guess == "A" {
			time.Sleep(50 * time.Millisecond)
			return nil, 0, bad, true
		}
		return nil, 0, nil, false
	}
	conf := catConfig()
	conf.Alphabet = []rune("AB")
	conf.Parallel = 2
	res, err := Search(context.Background(), o, conf)
	assert.ErrorIs(t, err, bad)
	require.NotNil(t, res)
	assert.False(t, res.Found)
}

func TestSearch_Exhaustion(t *testing.T) {
	never := func(*ride.Result) bool { return false }

	t.Run("length bound", func(t *testing.T) {
		o := &fakeOracle{secret: "zzzz"}
		conf := &Config{
			Alphabet:  []rune("ab"),
			Success:   never,
			Choose:    Greedy(),
			MaxLength: 3,
		}
		res, err := Search(context.Background(), o, conf)
		assert.ErrorIs(t, err, ErrNoCandidate)
		require.NotNil(t, res)
		assert.False(t, res.Found)
		assert.Equal(t, "aaa", res.Best)
		assert.Equal(t, 3, res.Steps)
	})

	t.Run("default bound", func(t *testing.T) {
		o := &fakeOracle{secret: "zzzz"}
		conf := &Config{Alphabet: []rune("ab"), Success: never, Choose: Greedy()}
		res, err := Search(context.Background(), o, conf)
		assert.ErrorIs(t, err, ErrNoCandidate)
		assert.Len(t, res.Best, DefaultMaxLength)
	})

	t.Run("chooser gives up", func(t *testing.T) {
		o := &fakeOracle{secret: "zzzz"}
		conf := &Config{
			Alphabet: []rune("abc"),
			Success:  never,
			Choose:   func([]ScoreEntry) []ScoreEntry { return nil },
		}
		res, err := Search(context.Background(), o, conf)
		assert.ErrorIs(t, err, ErrNoCandidate)
		assert.Equal(t, 1, res.Steps)
		assert.Equal(t, int64(3), o.calls.Load())
	})

	t.Run("query budget", func(t *testing.T) {
		o := &fakeOracle{secret: "zzzz"}
		conf := &Config{Alphabet: []rune("ab"), Success: never, Choose: TopK(2), MaxQueries: 5}
		_, err := Search(context.Background(), o, conf)
		assert.ErrorIs(t, err, ErrNoCandidate)
		assert.LessOrEqual(t, o.calls.Load(), int64(5))
	})
}

func TestSearch_Beam(t *testing.T) {
	o := &fakeOracle{secret: "CAT"}
	o.hook = func(guess string) (*ride.Result, int64, error, bool) {
		switch {
		case guess == "X":
			return &ride.Result{Stdout: []byte("Incorrect")}, 100, nil, true
		case strings.HasPrefix(guess, "X"):
			return nil, 0, &ride.TimeoutError{Path: "/tmp/crackme", Timeout: time.Second}, true
		}
		return nil, 0, nil, false
	}
	conf := catConfig()
	conf.Choose = TopK(2)
	var visited []string
	conf.OnStep = func(s *Step) { visited = append(visited, s.Prefix) }

	res, err := Search(context.Background(), o, conf)
	require.NoError(t, err)
	assert.Equal(t, "CAT", res.Secret)
	assert.Equal(t, []string{"", "X", "C", "CA"}, visited)
}

func TestSearch_Timeouts(t *testing.T) {
	o := &fakeOracle{secret: "CAT"}
	o.hook = func(guess string) (*ride.Result, int64, error, bool) {
		if guess == "C" {
			return nil, 0, &ride.TimeoutError{Path: "/tmp/crackme"}, true
		}
		return nil, 0, nil, false
	}
	conf := catConfig()
	conf.MaxLength = 1
	var first *Step
	conf.OnStep = func(s *Step) {
		if first == nil {
			first = s
		}
	}
	_, err := Search(context.Background(), o, conf)
	assert.ErrorIs(t, err, ErrNoCandidate)
	require.NotNil(t, first)
	assert.True(t, first.Scores[0].TimedOut)
	require.Len(t, first.Chosen, 1)
	assert.NotEqual(t, 'C', first.Chosen[0].Symbol, "a timed out ride is never extended")
}

func TestSearch_SpawnRetry(t *testing.T) {
	o := &fakeOracle{secret: "C"}
	failures := 2
	o.hook = func(guess string) (*ride.Result, int64, error, bool) {
		if failures > 0 {
			failures--
			return nil, 0, &ride.SpawnError{Path: "/opt/pin/pin", Err: errors.New("resource temporarily unavailable")}, true
		}
		return nil, 0, nil, false
	}
	conf := catConfig()
	conf.Retries = 2
	conf.RetryBackoff = time.Millisecond
	res, err := Search(context.Background(), o, conf)
	require.NoError(t, err)
	assert.Equal(t, "C", res.Secret)
	assert.Equal(t, int64(3), res.Queries)
}

func TestSearch_FatalErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"spawn error without retries", &ride.SpawnError{Path: "/opt/pin/pin", Err: errors.New("not found")}},
		{"malformed side channel", &oracle.MalformedSideChannelError{Line: "Segmentation fault"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &fakeOracle{secret: "CAT"}
			o.hook = func(guess string) (*ride.Result, int64, error, bool) {
				if guess == "A" {
					return nil, 0, tt.err, true
				}
				return nil, 0, nil, false
			}
			res, err := Search(context.Background(), o, catConfig())
			assert.ErrorIs(t, err, tt.err)
			assert.NotErrorIs(t, err, ErrNoCandidate)
			require.NotNil(t, res)
			assert.False(t, res.Found)
		})
	}
}

func TestSearch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Search(ctx, &fakeOracle{secret: "CAT"}, catConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

type memRecorder struct {
	steps []*Step
}

func (m *memRecorder) RecordStep(s *Step) error {
	m.steps = append(m.steps, s)
	return nil
}

func TestSearch_Recorder(t *testing.T) {
	rec := &memRecorder{}
	conf := catConfig()
	conf.Recorder = rec
	conf.Prefix = "C"
	res, err := Search(context.Background(), &fakeOracle{secret: "CAT"}, conf)
	require.NoError(t, err)
	assert.Equal(t, "CAT", res.Secret)
	require.Len(t, rec.steps, 2)
	assert.Equal(t, 1, rec.steps[0].Depth)
	assert.Equal(t, "CAT", rec.steps[1].Secret)
}

func TestSearch_InvalidConfig(t *testing.T) {
	for name, conf := range map[string]*Config{
		"no alphabet": {Success: ExitCode(0), Choose: Greedy()},
		"no success":  {Alphabet: []rune("a"), Choose: Greedy()},
		"no chooser":  {Alphabet: []rune("a"), Success: ExitCode(0)},
		"repeats":     {Alphabet: []rune("aa"), Success: ExitCode(0), Choose: Greedy()},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Search(context.Background(), &fakeOracle{}, conf)
			assert.Error(t, err)
		})
	}
}

func TestCandidate(t *testing.T) {
	tests := []struct {
		name  string
		conf  Config
		guess string
		want  string
	}{
		{"newline", Config{}, "ab", "ab\n"},
		{"padded", Config{Pad: 5}, "ab", "abXXX\n"},
		{"already long enough", Config{Pad: 2}, "abc", "abc\n"},
		{"custom fill", Config{Pad: 4, PadChar: '_'}, "a", "a___\n"},
		{"raw", Config{Pad: 3, Raw: true}, "a", "aXX"},
		{"runes count as one", Config{Pad: 3}, "é", "éXX\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.conf.Candidate(tt.guess))
		})
	}
}
