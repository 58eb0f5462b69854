package solver

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/blacktop/unicycle/pkg/oracle"
)

// HistogramWidth is the widest bar Histogram draws.
const HistogramWidth = 30

// ProbeConfig drives an input length probe.
type ProbeConfig struct {
	Target   string
	Args     []string
	Observer string
	Fill     rune // defaults to 'x'
	Min      int  // defaults to 1
	Max      int
	Raw      bool // do not append a newline
}

// LengthSample is the score of an input of one length.
type LengthSample struct {
	Length int
	Count  int64
}

// Probe rides inputs of every length in [Min, Max] so the secret's length can
// be read off the score jump.
func Probe(ctx context.Context, q Querier, conf *ProbeConfig) ([]LengthSample, error) {
	fill := conf.Fill
	if fill == 0 {
		fill = 'x'
	}
	minLen := conf.Min
	if minLen <= 0 {
		minLen = 1
	}
	if conf.Max < minLen {
		return nil, fmt.Errorf("invalid probe range [%d, %d]", minLen, conf.Max)
	}

	var samples []LengthSample
	for n := minLen; n <= conf.Max; n++ {
		input := strings.Repeat(string(fill), n)
		if !conf.Raw {
			input += "\n"
		}
		_, count, err := q.Query(ctx, &oracle.Query{
			Target:   conf.Target,
			Args:     conf.Args,
			Observer: conf.Observer,
			Stdin:    []byte(input),
		})
		if err != nil {
			return samples, fmt.Errorf("failed to probe length %d: %w", n, err)
		}
		samples = append(samples, LengthSample{Length: n, Count: count})
	}
	return samples, nil
}

// Peak returns the sample with the highest count; the shortest wins ties.
func Peak(samples []LengthSample) (LengthSample, bool) {
	if len(samples) == 0 {
		return LengthSample{}, false
	}
	best := samples[0]
	for _, s := range samples[1:] {
		if s.Count > best.Count {
			best = s
		}
	}
	return best, true
}

// Histogram writes one bar per sample, normalised to the largest count.
func Histogram(w io.Writer, samples []LengthSample, width int) error {
	if width <= 0 {
		width = HistogramWidth
	}
	var maxCount int64
	for _, s := range samples {
		if s.Count > maxCount {
			maxCount = s.Count
		}
	}
	for _, s := range samples {
		bar := 0
		if maxCount > 0 && s.Count > 0 {
			bar = int(float64(s.Count) / float64(maxCount) * float64(width))
		}
		if _, err := fmt.Fprintf(w, "%03d: %s\n", s.Length, strings.Repeat("*", bar)); err != nil {
			return err
		}
	}
	return nil
}
