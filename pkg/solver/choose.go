package solver

import (
	"math"
	"sort"
)

// Chooser picks, in order of preference, which scored symbols to extend the
// prefix with. An empty result kills the branch.
type Chooser func(entries []ScoreEntry) []ScoreEntry

// valid drops timed out entries; they never get extended.
func valid(entries []ScoreEntry) []ScoreEntry {
	out := make([]ScoreEntry, 0, len(entries))
	for _, e := range entries {
		if !e.TimedOut {
			out = append(out, e)
		}
	}
	return out
}

func firstK(entries []ScoreEntry, k int) []ScoreEntry {
	if k > 0 && len(entries) > k {
		return entries[:k]
	}
	return entries
}

// TopK keeps the k highest scores. Ties keep alphabet order.
func TopK(k int) Chooser {
	return func(entries []ScoreEntry) []ScoreEntry {
		out := valid(entries)
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Score > out[j].Score
		})
		return firstK(out, k)
	}
}

// Greedy keeps only the single best score.
func Greedy() Chooser {
	return TopK(1)
}

// Mean is the arithmetic mean of the non timed out scores.
func Mean(entries []ScoreEntry) float64 {
	var (
		sum float64
		n   int
	)
	for _, e := range entries {
		if e.TimedOut {
			continue
		}
		sum += float64(e.Score)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Deviation keeps the k scores farthest from this step's mean, in either
// direction. Ties keep alphabet order.
func Deviation(k int) Chooser {
	return func(entries []ScoreEntry) []ScoreEntry {
		out := valid(entries)
		avg := Mean(out)
		dev := func(e ScoreEntry) float64 {
			return math.Abs(float64(e.Score) - avg)
		}
		sort.SliceStable(out, func(i, j int) bool {
			return dev(out[i]) > dev(out[j])
		})
		return firstK(out, k)
	}
}

// ChooserByName returns "top" (TopK) or "deviation" (Deviation) of width k.
func ChooserByName(name string, k int) (Chooser, bool) {
	switch name {
	case "top", "greedy":
		return TopK(k), true
	case "deviation", "dev":
		return Deviation(k), true
	}
	return nil, false
}
