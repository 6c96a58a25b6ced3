package catboost

import (
	"sort"
)

// borders picks at most maxBorders split points for one feature. With few
// distinct values every midpoint is a border; otherwise the midpoints are
// taken at evenly spaced ranks of the sorted column.
func borders(column []float64, maxBorders int) []float64 {
	vals := append([]float64(nil), column...)
	sort.Float64s(vals)

	uniq := vals[:0:0]
	for i, v := range vals {
		if i == 0 || v != vals[i-1] {
			uniq = append(uniq, v)
		}
	}
	if len(uniq) < 2 {
		return nil
	}

	if len(uniq)-1 <= maxBorders {
		out := make([]float64, len(uniq)-1)
		for i := range out {
			out[i] = uniq[i] + (uniq[i+1]-uniq[i])/2
		}
		return out
	}

	n := len(vals)
	out := make([]float64, 0, maxBorders)
	for k := 1; k <= maxBorders; k++ {
		r := k * n / (maxBorders + 1)
		if r <= 0 || r >= n {
			continue
		}
		lo, hi := vals[r-1], vals[r]
		if hi <= lo {
			continue
		}
		b := lo + (hi-lo)/2
		if len(out) == 0 || b > out[len(out)-1] {
			out = append(out, b)
		}
	}
	return out
}

// binIndex returns the number of borders strictly below v, so that
// v > borders[k] exactly when k < binIndex.
func binIndex(b []float64, v float64) int {
	return sort.Search(len(b), func(i int) bool { return b[i] >= v })
}
