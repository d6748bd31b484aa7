package series

import (
	"math"

	"github.com/hollyoak/citysignal/internal/domain"
)

// BoxCox is a fitted variance-stabilizing transform. Forward:
//
//	t(v) = (v^lambda - 1) / lambda   (lambda != 0)
//	t(v) = ln v                      (lambda == 0)
//
// The inverse is exact up to floating error, so conditioned results can be
// reported back in original units.
type BoxCox struct {
	Lambda float64
}

// FitBoxCox estimates lambda by maximizing the Box-Cox log-likelihood over
// the non-gap values, with a coarse grid over [-2, 2] refined once. All inputs
// must be strictly positive; the first offending value fails with
// TransformDomainError rather than being clipped.
func FitBoxCox(s *Series) (*BoxCox, error) {
	var data []float64
	for i, e := range s.Entries {
		if e.Gap {
			continue
		}
		if e.Value <= 0 {
			return nil, &domain.TransformDomainError{Value: e.Value, Index: i}
		}
		data = append(data, e.Value)
	}
	if len(data) < 2 {
		return nil, domain.ErrInsufficientSample
	}

	best, bestLL := 0.0, math.Inf(-1)
	search := func(lo, hi, step float64) {
		for lmbda := lo; lmbda <= hi+1e-12; lmbda += step {
			ll := boxcoxLogLikelihood(data, lmbda)
			if ll > bestLL {
				best, bestLL = lmbda, ll
			}
		}
	}
	search(-2, 2, 0.1)
	search(best-0.1, best+0.1, 0.005)

	return &BoxCox{Lambda: best}, nil
}

// boxcoxLogLikelihood is the profile log-likelihood used by the standard
// MLE fit: -n/2 * ln(var(t(x))) + (lambda-1) * sum(ln x).
func boxcoxLogLikelihood(data []float64, lmbda float64) float64 {
	n := float64(len(data))
	transformed := make([]float64, len(data))
	logSum := 0.0
	for i, v := range data {
		transformed[i] = boxcoxForward(v, lmbda)
		logSum += math.Log(v)
	}
	mean := 0.0
	for _, t := range transformed {
		mean += t
	}
	mean /= n
	variance := 0.0
	for _, t := range transformed {
		variance += (t - mean) * (t - mean)
	}
	variance /= n
	if variance <= 0 {
		return math.Inf(-1)
	}
	return -n/2*math.Log(variance) + (lmbda-1)*logSum
}

func boxcoxForward(v, lmbda float64) float64 {
	if lmbda == 0 {
		return math.Log(v)
	}
	return (math.Pow(v, lmbda) - 1) / lmbda
}

func boxcoxInverse(t, lmbda float64) float64 {
	if lmbda == 0 {
		return math.Exp(t)
	}
	return math.Pow(lmbda*t+1, 1/lmbda)
}

// Apply transforms the series in place on non-gap entries. Returns
// TransformDomainError on the first non-positive value.
func (b *BoxCox) Apply(s *Series) (*Series, error) {
	out := cloneSeries(s)
	for i := range out.Entries {
		if out.Entries[i].Gap {
			continue
		}
		if out.Entries[i].Value <= 0 {
			return nil, &domain.TransformDomainError{Value: out.Entries[i].Value, Index: i}
		}
		out.Entries[i].Value = boxcoxForward(out.Entries[i].Value, b.Lambda)
	}
	return out, nil
}

// Invert back-transforms non-gap entries to original units.
func (b *BoxCox) Invert(s *Series) *Series {
	out := cloneSeries(s)
	for i := range out.Entries {
		if out.Entries[i].Gap {
			continue
		}
		out.Entries[i].Value = boxcoxInverse(out.Entries[i].Value, b.Lambda)
	}
	return out
}

// Forward transforms a single value. Exposed for round-trip tests and for
// reporting fitted parameters.
func (b *BoxCox) Forward(v float64) float64 { return boxcoxForward(v, b.Lambda) }

// Inverse back-transforms a single value.
func (b *BoxCox) Inverse(t float64) float64 { return boxcoxInverse(t, b.Lambda) }

func cloneSeries(s *Series) *Series {
	entries := make([]Entry, len(s.Entries))
	copy(entries, s.Entries)
	return &Series{Key: s.Key, Width: s.Width, Entries: entries}
}
