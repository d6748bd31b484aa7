package series

import (
	"fmt"
	"time"

	"github.com/hollyoak/citysignal/internal/domain"
)

// Transform selects the variance-stabilizing transform.
type Transform string

const (
	TransformNone   Transform = "none"
	TransformBoxCox Transform = "boxcox"
)

// Options configures conditioning for one series.
type Options struct {
	Transform    Transform
	Differencing int // 0 = none, 1 = first difference, >1 = seasonal period
}

// Validate reports configuration contract violations.
func (o Options) Validate() error {
	switch o.Transform {
	case TransformNone, TransformBoxCox, "":
	default:
		return fmt.Errorf("series: unknown transform %q", o.Transform)
	}
	if o.Differencing < 0 {
		return fmt.Errorf("series: differencing must be >= 0, got %d", o.Differencing)
	}
	return nil
}

// Conditioned is a conditioned series plus the fitted transform (nil when
// none was applied) so callers can back-transform results.
type Conditioned struct {
	Series *Series
	BoxCox *BoxCox
}

// Condition materializes the full window grid for one key over
// [start, end) and applies the configured transform and differencing.
// TransformDomainError propagates unchanged so callers can pick a
// different transform or pre-filter.
func Condition(key string, buckets []domain.Bucket, start, end time.Time, width time.Duration, opts Options) (*Conditioned, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	s, err := Build(key, buckets, start, end, width)
	if err != nil {
		return nil, err
	}

	out := &Conditioned{Series: s}
	if opts.Transform == TransformBoxCox {
		bc, err := FitBoxCox(s)
		if err != nil {
			return nil, err
		}
		out.BoxCox = bc
		out.Series, err = bc.Apply(s)
		if err != nil {
			return nil, err
		}
	}

	if opts.Differencing > 0 {
		out.Series, err = Difference(out.Series, opts.Differencing)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
