// Package classify turns composite series, streak output and thresholds into
// a cleaned paddy mask with per-pixel start-date attributes.
//
// Two variants coexist. Seasonal works from user-declared onset, peak and
// harvest dates; Monitoring detects its onset from the sample series and
// tests decline from the first composite instead of towards a harvest. They
// share windowing, cleanup, exclusion and attribute code but keep their own
// predicates.
package classify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chrissnell/paddymap/internal/dekad"
	"github.com/chrissnell/paddymap/internal/engine"
	"github.com/chrissnell/paddymap/internal/raster"
)

// Variant names a classifier.
type Variant string

const (
	VariantSeasonal   Variant = "seasonal"
	VariantMonitoring Variant = "monitoring"
)

// ParseVariant validates a variant name.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(s); v {
	case VariantSeasonal, VariantMonitoring:
		return v, nil
	}
	return "", fmt.Errorf("unknown classifier variant %q", s)
}

// ErrEmptyWindow is returned when no composite exists around an anchor date.
var ErrEmptyWindow = errors.New("no composites around anchor date")

// Extremum selects the window reduction.
type Extremum int

const (
	Min Extremum = iota
	Max
)

func (x Extremum) String() string {
	if x == Max {
		return "max"
	}
	return "min"
}

// AnchorWindow returns the composites of the dekad nearest to anchor and of
// its neighbours in the dekad list. Dekads without a composite are skipped.
func AnchorWindow(series raster.Series, dekads []time.Time, anchor time.Time) raster.Series {
	i := dekad.Nearest(dekads, anchor)
	if i < 0 {
		return nil
	}
	var out raster.Series
	for _, d := range dekad.Adjacent(dekads, i) {
		if j := series.IndexOf(d); j >= 0 {
			out = append(out, series[j])
		}
	}
	return out
}

// WindowExtremum reduces the anchor window of series to its pixelwise
// minimum or maximum. A pixel masked in every window composite stays masked.
func WindowExtremum(ctx context.Context, e engine.Engine, series raster.Series, dekads []time.Time, anchor time.Time, x Extremum) (*raster.Raster, error) {
	window := AnchorWindow(series, dekads, anchor)
	if len(window) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyWindow, anchor.Format(time.DateOnly))
	}

	return engine.MapOne(ctx, e, func(_ int, in []float64, inOK []bool, out []float64, outOK []bool) {
		best := math.Inf(1)
		if x == Max {
			best = math.Inf(-1)
		}
		found := false
		for j, v := range in {
			if !inOK[j] {
				continue
			}
			found = true
			if (x == Max && v > best) || (x == Min && v < best) {
				best = v
			}
		}
		if found {
			out[0], outOK[0] = best, true
		}
	}, window.Rasters()...)
}

// ValuePattern requires the onset minimum to stay at or below the upper
// quartile of onset samples and the peak maximum to reach the lower quartile
// of peak samples.
func ValuePattern(sosMin, peakMax, q3Onset, q1Peak float64) bool {
	return sosMin <= q3Onset && peakMax >= q1Peak
}

// TimePattern requires at least one month between onset and peak.
func TimePattern(sos, peak time.Time) bool {
	return dekad.MonthsBetween(sos, peak) >= 1
}
