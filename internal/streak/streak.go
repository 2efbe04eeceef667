// Package streak tracks, per pixel, the longest run of consecutive positive
// composite-to-composite changes and the date that run started.
package streak

import (
	"context"
	"fmt"
	"time"

	"github.com/chrissnell/paddymap/internal/engine"
	"github.com/chrissnell/paddymap/internal/raster"
	"go.uber.org/zap"
)

// State is the fold state of one pixel. The Current* start fields are only
// meaningful while CurrentLength > 0.
type State struct {
	CurrentLength        int
	LongestLength        int
	CurrentStart         int64 // Unix milliseconds
	LongestStart         int64
	CurrentStartMonth    int
	LongestStartMonth    int
	CurrentStartMonthDay int // MM*100 + DD
	LongestStartMonthDay int
}

// MonthDay encodes t as MM*100+DD.
func MonthDay(t time.Time) int {
	t = t.UTC()
	return int(t.Month())*100 + t.Day()
}

// Step folds one difference into s. positive reports whether the difference
// is present and strictly positive; start is the timestamp of the earlier
// composite of the pair.
func Step(s State, positive bool, start time.Time) State {
	if !positive {
		s.CurrentLength = 0
		return s
	}

	if s.CurrentLength == 0 {
		start = start.UTC()
		s.CurrentStart = start.UnixMilli()
		s.CurrentStartMonth = int(start.Month())
		s.CurrentStartMonthDay = MonthDay(start)
	}
	s.CurrentLength++

	if s.CurrentLength > s.LongestLength ||
		(s.CurrentLength == s.LongestLength && s.CurrentStart < s.LongestStart) {
		s.LongestLength = s.CurrentLength
		s.LongestStart = s.CurrentStart
		s.LongestStartMonth = s.CurrentStartMonth
		s.LongestStartMonthDay = s.CurrentStartMonthDay
	}
	return s
}

// Fold runs Step over a whole difference sequence in time order.
func Fold(positive []bool, starts []time.Time) State {
	var s State
	for i := range positive {
		s = Step(s, positive[i], starts[i])
	}
	return s
}

// Differences returns diff[i] = series[i+1] - series[i], stamped with the time
// of series[i]. A pixel missing from either composite is missing from the
// difference.
func Differences(ctx context.Context, e engine.Engine, series raster.Series) (raster.Series, error) {
	if len(series) < 2 {
		return nil, nil
	}
	diffs := make(raster.Series, 0, len(series)-1)
	for i := 0; i+1 < len(series); i++ {
		d, err := engine.MapOne(ctx, e, func(_ int, in []float64, inOK []bool, out []float64, outOK []bool) {
			if inOK[0] && inOK[1] {
				out[0], outOK[0] = in[1]-in[0], true
			}
		}, series[i].Raster, series[i+1].Raster)
		if err != nil {
			return nil, fmt.Errorf("differencing %s: %w", series[i].Time.Format(time.DateOnly), err)
		}
		diffs = append(diffs, raster.Frame{Time: series[i].Time, Raster: d})
	}
	return diffs, nil
}

// Result holds the terminal fold state of every pixel. LongestLength is
// present wherever any difference was; the start rasters only where
// LongestLength > 0.
type Result struct {
	LongestLength *raster.Raster `msgpack:"longest_length"`
	LongestStart  *raster.Raster `msgpack:"longest_start"`
	StartMonth    *raster.Raster `msgpack:"start_month"`
	StartMonthDay *raster.Raster `msgpack:"start_month_day"`
}

// Tracker folds difference series on an engine. Pixels are independent and
// folded in parallel; each pixel's fold is a strict left fold over time.
type Tracker struct {
	engine engine.Engine
	logger *zap.SugaredLogger
}

// NewTracker returns a tracker bound to e.
func NewTracker(e engine.Engine, logger *zap.SugaredLogger) *Tracker {
	return &Tracker{engine: e, logger: logger}
}

// Track folds diffs, which must be in time order.
func (t *Tracker) Track(ctx context.Context, diffs raster.Series) (*Result, error) {
	if len(diffs) == 0 {
		return nil, fmt.Errorf("no differences to track")
	}
	if err := diffs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid difference series: %w", err)
	}

	starts := diffs.Times()
	outs, err := t.engine.Map(ctx, 4, func(_ int, in []float64, inOK []bool, out []float64, outOK []bool) {
		var s State
		seen := false
		for i := range in {
			seen = seen || inOK[i]
			s = Step(s, inOK[i] && in[i] > 0, starts[i])
		}
		if !seen {
			return
		}
		out[0], outOK[0] = float64(s.LongestLength), true
		if s.LongestLength > 0 {
			out[1], outOK[1] = float64(s.LongestStart), true
			out[2], outOK[2] = float64(s.LongestStartMonth), true
			out[3], outOK[3] = float64(s.LongestStartMonthDay), true
		}
	}, diffs.Rasters()...)
	if err != nil {
		return nil, fmt.Errorf("folding growth streaks: %w", err)
	}

	t.logger.Debugf("tracked growth streaks over %d differences", len(diffs))
	return &Result{
		LongestLength: outs[0],
		LongestStart:  outs[1],
		StartMonth:    outs[2],
		StartMonthDay: outs[3],
	}, nil
}
