// Package correlate searches a lag window for the lag maximizing Pearson
// correlation between two conditioned series.
package correlate

import (
	"fmt"
	"math"

	"github.com/hollyoak/citysignal/internal/domain"
	"github.com/hollyoak/citysignal/internal/series"
)

// LagScore is the correlation at one lag. Lag is signed in window units:
// positive means series B lags series A by that many windows.
type LagScore struct {
	Lag         int
	Correlation float64
	SampleSize  int
}

// Result is the full lag table plus the best-scoring lag. Lags whose
// overlap fell below the minimum sample count are listed in SkippedLags and
// never appear in the table as NaN.
type Result struct {
	Table       []LagScore
	Best        LagScore
	SkippedLags []int
}

// Search computes the correlation at every integer lag in [-maxLag, maxLag]
// using only the overlapping, non-gap index range at that lag. Lags with
// fewer than minSamples overlapping points are excluded. If no lag
// qualifies, Search returns domain.ErrInsufficientSample, which callers can
// tell apart from a present-but-weak correlation.
//
// Best is the highest correlation; ties resolve to the smallest |lag|, then
// to the negative lag, so results are deterministic.
func Search(a, b *series.Series, maxLag, minSamples int) (*Result, error) {
	if maxLag < 0 {
		return nil, fmt.Errorf("correlate: max lag must be >= 0, got %d", maxLag)
	}
	if minSamples < 2 {
		return nil, fmt.Errorf("correlate: min samples must be >= 2, got %d", minSamples)
	}
	if a.Width != b.Width {
		return nil, fmt.Errorf("correlate: window widths differ (%s vs %s)", a.Width, b.Width)
	}

	av, aok := a.Values()
	bv, bok := b.Values()

	res := &Result{}
	for lag := -maxLag; lag <= maxLag; lag++ {
		xs, ys := overlap(av, aok, bv, bok, lag)
		if len(xs) < minSamples {
			res.SkippedLags = append(res.SkippedLags, lag)
			continue
		}
		rho, ok := pearson(xs, ys)
		if !ok {
			// Zero variance on one side; correlation is undefined here.
			res.SkippedLags = append(res.SkippedLags, lag)
			continue
		}
		res.Table = append(res.Table, LagScore{Lag: lag, Correlation: rho, SampleSize: len(xs)})
	}

	if len(res.Table) == 0 {
		return nil, domain.ErrInsufficientSample
	}

	best := res.Table[0]
	for _, ls := range res.Table[1:] {
		if better(ls, best) {
			best = ls
		}
	}
	res.Best = best
	return res, nil
}

// better reports whether x beats the current best: higher correlation wins;
// ties go to the smaller |lag|, then the negative lag.
func better(x, best LagScore) bool {
	if x.Correlation != best.Correlation {
		return x.Correlation > best.Correlation
	}
	ax, ab := abs(x.Lag), abs(best.Lag)
	if ax != ab {
		return ax < ab
	}
	return x.Lag < best.Lag
}

// overlap pairs a[i] with b[i+lag] wherever both are observed. A positive
// lag therefore tests "B lags A": activity in A at time t aligns with
// activity in B at time t+lag.
func overlap(av []float64, aok []bool, bv []float64, bok []bool, lag int) ([]float64, []float64) {
	var xs, ys []float64
	for i := range av {
		j := i + lag
		if j < 0 || j >= len(bv) {
			continue
		}
		if !aok[i] || !bok[j] {
			continue
		}
		xs = append(xs, av[i])
		ys = append(ys, bv[j])
	}
	return xs, ys
}

// pearson computes the sample Pearson correlation coefficient. Returns
// false when either side has zero variance.
func pearson(xs, ys []float64) (float64, bool) {
	n := float64(len(xs))
	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= n
	my /= n

	var cov, vx, vy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0, false
	}
	rho := cov / math.Sqrt(vx*vy)
	// Clamp floating drift so results stay within [-1, 1].
	return math.Max(-1, math.Min(1, rho)), true
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// ToResult converts the best lag into a persistable CorrelationResult.
func (r *Result) ToResult(seriesA, seriesB string) domain.CorrelationResult {
	return domain.CorrelationResult{
		SeriesAKey:  seriesA,
		SeriesBKey:  seriesB,
		Lag:         r.Best.Lag,
		Correlation: r.Best.Correlation,
		SampleSize:  r.Best.SampleSize,
		ComputedAt:  domain.Clock().Now().UTC(),
	}
}
