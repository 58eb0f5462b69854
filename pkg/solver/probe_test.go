package solver

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/blacktop/unicycle/pkg/oracle"
	"github.com/blacktop/unicycle/pkg/ride"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lengthOracle struct {
	secretLen int
	inputs    []string
}

// Query counts more instructions once the input has the secret's length.
func (l *lengthOracle) Query(_ context.Context, q *oracle.Query) (*ride.Result, int64, error) {
	l.inputs = append(l.inputs, string(q.Stdin))
	n := len(strings.TrimSuffix(string(q.Stdin), "\n"))
	count := int64(1000 + n)
	if n == l.secretLen {
		count += 500
	}
	return &ride.Result{}, count, nil
}

func TestProbe(t *testing.T) {
	o := &lengthOracle{secretLen: 7}
	samples, err := Probe(context.Background(), o, &ProbeConfig{Target: "/tmp/crackme", Max: 10})
	require.NoError(t, err)
	require.Len(t, samples, 10)
	assert.Equal(t, "x\n", o.inputs[0])
	assert.Equal(t, "xxxxxxxxxx\n", o.inputs[9])

	peak, ok := Peak(samples)
	require.True(t, ok)
	assert.Equal(t, 7, peak.Length)
	assert.Equal(t, int64(1507), peak.Count)
}

func TestProbe_Options(t *testing.T) {
	o := &lengthOracle{}
	samples, err := Probe(context.Background(), o, &ProbeConfig{Fill: 'A', Min: 3, Max: 4, Raw: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "AAAA"}, o.inputs)
	assert.Equal(t, 3, samples[0].Length)

	_, err = Probe(context.Background(), o, &ProbeConfig{Min: 5, Max: 4})
	assert.Error(t, err)
}

type failingOracle struct{ after int }

func (f *failingOracle) Query(context.Context, *oracle.Query) (*ride.Result, int64, error) {
	if f.after == 0 {
		return nil, 0, errors.New("boom")
	}
	f.after--
	return &ride.Result{}, 1, nil
}

func TestProbe_Error(t *testing.T) {
	samples, err := Probe(context.Background(), &failingOracle{after: 2}, &ProbeConfig{Max: 5})
	assert.ErrorContains(t, err, "length 3")
	assert.Len(t, samples, 2)
}

func TestPeak(t *testing.T) {
	_, ok := Peak(nil)
	assert.False(t, ok)

	p, ok := Peak([]LengthSample{{1, 5}, {2, 9}, {3, 9}})
	require.True(t, ok)
	assert.Equal(t, 2, p.Length)
}

func TestHistogram(t *testing.T) {
	var buf bytes.Buffer
	err := Histogram(&buf, []LengthSample{{1, 10}, {2, 20}, {3, 0}, {12, 40}}, 4)
	require.NoError(t, err)
	assert.Equal(t, "001: *\n002: **\n003: \n012: ****\n", buf.String())

	buf.Reset()
	require.NoError(t, Histogram(&buf, []LengthSample{{5, 7}}, 0))
	assert.Equal(t, "005: "+strings.Repeat("*", HistogramWidth)+"\n", buf.String())
}
