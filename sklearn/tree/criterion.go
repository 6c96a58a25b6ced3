package tree

import (
	"math"
	"sort"

	"github.com/mlops-project/trainer/pkg/errors"
)

// Criterion names accepted by the regressors.
const (
	SquaredError  = "squared_error"
	FriedmanMSE   = "friedman_mse"
	AbsoluteError = "absolute_error"
	Poisson       = "poisson"
)

// ValidateCriterion returns a ValidationError for unknown criteria.
func ValidateCriterion(c string) error {
	switch c {
	case SquaredError, FriedmanMSE, AbsoluteError, Poisson:
		return nil
	}
	return errors.NewValidationError("criterion", "must be one of squared_error, friedman_mse, absolute_error, poisson", c)
}

// nodeStats returns the prediction value and the impurity of the samples idx
// under criterion c.
func nodeStats(c string, y []float64, idx []int) (value, impurity float64) {
	n := float64(len(idx))
	switch c {
	case AbsoluteError:
		vals := make([]float64, len(idx))
		for i, k := range idx {
			vals[i] = y[k]
		}
		sort.Float64s(vals)
		med := median(vals)
		var dev float64
		for _, v := range vals {
			dev += math.Abs(v - med)
		}
		return med, dev / n
	case Poisson:
		var sum float64
		for _, k := range idx {
			sum += y[k]
		}
		mean := sum / n
		if mean <= 0 {
			return mean, 0
		}
		// half Poisson deviance
		var dev float64
		for _, k := range idx {
			dev += xlogy(y[k], y[k]/mean) - y[k] + mean
		}
		return mean, dev / n
	default:
		var sum float64
		for _, k := range idx {
			sum += y[k]
		}
		mean := sum / n
		var ss float64
		for _, k := range idx {
			d := y[k] - mean
			ss += d * d
		}
		return mean, ss / n
	}
}

// median of an already sorted slice.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func xlogy(x, y float64) float64 {
	if x == 0 {
		return 0
	}
	return x * math.Log(y)
}

// proxyImprovement scores a candidate split from running sums; higher is
// better. It is only used to rank splits within one node.
func proxyImprovement(c string, sumL, nL, sumR, nR float64) float64 {
	switch c {
	case FriedmanMSE:
		diff := nR*sumL - nL*sumR
		return diff * diff / (nL * nR)
	case Poisson:
		if sumL <= 0 || sumR <= 0 {
			return math.Inf(-1)
		}
		return sumL*math.Log(sumL/nL) + sumR*math.Log(sumR/nR)
	default:
		return sumL*sumL/nL + sumR*sumR/nR
	}
}
