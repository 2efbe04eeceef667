// Package dekad regularizes an irregular acquisition stream into composites
// on the 1st, 13th and 25th of every month.
package dekad

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/chrissnell/paddymap/internal/engine"
	"github.com/chrissnell/paddymap/internal/quantile"
	"github.com/chrissnell/paddymap/internal/raster"
	"go.uber.org/zap"
)

// ErrEmptySeries is returned when a run has fewer composites than it needs.
var ErrEmptySeries = errors.New("not enough dekad composites")

// Days are the days of month that open a dekad.
var Days = [3]int{1, 13, 25}

// List returns the dekad dates between start and end. The months are counted
// from start's month, the rounded number of months between the two dates; every
// dekad after end is dropped. Dates are UTC midnights.
func List(start, end time.Time) []time.Time {
	if end.Before(start) {
		return nil
	}
	months := int(math.Round(MonthsBetween(start, end)))
	endDay := end.UTC()

	seen := make(map[time.Time]bool)
	var list []time.Time
	for m := 0; m <= months; m++ {
		first := time.Date(start.Year(), start.Month()+time.Month(m), 1, 0, 0, 0, 0, time.UTC)
		for _, day := range Days {
			d := time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
			if d.After(endDay) || seen[d] {
				continue
			}
			seen[d] = true
			list = append(list, d)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Before(list[j]) })
	return list
}

// MonthsBetween returns the fractional number of calendar months from a to b.
func MonthsBetween(a, b time.Time) float64 {
	a, b = a.UTC(), b.UTC()
	whole := (b.Year()-a.Year())*12 + int(b.Month()-a.Month())
	anchor := addMonths(a, whole)
	if anchor.After(b) {
		whole--
		anchor = addMonths(a, whole)
	}
	next := addMonths(a, whole+1)
	return float64(whole) + float64(b.Sub(anchor))/float64(next.Sub(anchor))
}

// addMonths advances t by n months, clamping the day to the target month.
func addMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	day := min(t.Day(), first.AddDate(0, 1, -1).Day())
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Window returns the half-open acquisition window of dekads[i]. The last
// dekad closes at end.
func Window(dekads []time.Time, i int, end time.Time) (from, to time.Time) {
	if i+1 < len(dekads) {
		return dekads[i], dekads[i+1]
	}
	return dekads[i], end
}

// Nearest returns the index of the dekad closest to t, preferring the earlier
// one on a tie, or -1 for an empty list.
func Nearest(dekads []time.Time, t time.Time) int {
	best := -1
	var bestDist time.Duration
	for i, d := range dekads {
		dist := d.Sub(t)
		if dist < 0 {
			dist = -dist
		}
		if best < 0 || dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}

// Adjacent returns the dekad before, at and after index i, clipped at the
// ends of the list.
func Adjacent(dekads []time.Time, i int) []time.Time {
	var out []time.Time
	for j := i - 1; j <= i+1; j++ {
		if j >= 0 && j < len(dekads) {
			out = append(out, dekads[j])
		}
	}
	return out
}

// Composite is the median mRVI of one dekad, stored in fixed point.
type Composite struct {
	Dekad        time.Time           `msgpack:"dekad" json:"dekad"`
	Acquisitions int                 `msgpack:"acquisitions" json:"acquisitions"`
	Fixed        *raster.FixedRaster `msgpack:"fixed" json:"fixed"`
}

// Composites is a time-ordered composite sequence. Its length depends on the
// data and must never be assumed.
type Composites []Composite

// Series returns the composites as a raster series in raw fixed-point units.
func (cs Composites) Series() raster.Series {
	s := make(raster.Series, len(cs))
	for i, c := range cs {
		s[i] = raster.Frame{Time: c.Dekad, Raster: c.Fixed.Float()}
	}
	return s
}

// Dates returns the dekad of every composite.
func (cs Composites) Dates() []time.Time {
	ds := make([]time.Time, len(cs))
	for i, c := range cs {
		ds[i] = c.Dekad
	}
	return ds
}

// Require returns ErrEmptySeries unless there are at least n composites.
func (cs Composites) Require(n int) error {
	if len(cs) < n {
		return fmt.Errorf("%w: have %d, need %d", ErrEmptySeries, len(cs), n)
	}
	return nil
}

// Compositor builds dekad composites on an engine.
type Compositor struct {
	engine engine.Engine
	logger *zap.SugaredLogger
}

// NewCompositor returns a compositor bound to e.
func NewCompositor(e engine.Engine, logger *zap.SugaredLogger) *Compositor {
	return &Compositor{engine: e, logger: logger}
}

// Composite reduces the index series to one median composite per dekad.
// Dekads without acquisitions are skipped.
func (c *Compositor) Composite(ctx context.Context, series raster.Series, dekads []time.Time, end time.Time) (Composites, error) {
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("invalid acquisition series: %w", err)
	}

	var out Composites
	for i, d := range dekads {
		from, to := Window(dekads, i, end)
		members := between(series, from, to)
		if len(members) == 0 {
			c.logger.Debugf("no acquisitions for dekad %s, skipping", d.Format(time.DateOnly))
			continue
		}

		median, err := c.median(ctx, members)
		if err != nil {
			return nil, fmt.Errorf("compositing dekad %s: %w", d.Format(time.DateOnly), err)
		}
		out = append(out, Composite{
			Dekad:        d,
			Acquisitions: len(members),
			Fixed:        raster.ToFixed(median),
		})
	}

	c.logger.Infof("built %d composites from %d acquisitions over %d dekads", len(out), len(series), len(dekads))
	return out, nil
}

func between(series raster.Series, from, to time.Time) []*raster.Raster {
	lo := sort.Search(len(series), func(i int) bool { return !series[i].Time.Before(from) })
	hi := sort.Search(len(series), func(i int) bool { return !series[i].Time.Before(to) })
	if hi <= lo {
		return nil
	}
	return series[lo:hi].Rasters()
}

func (c *Compositor) median(ctx context.Context, members []*raster.Raster) (*raster.Raster, error) {
	return engine.MapOne(ctx, c.engine, func(_ int, in []float64, inOK []bool, out []float64, outOK []bool) {
		values := make([]float64, 0, len(in))
		for j, v := range in {
			if inOK[j] {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			return
		}
		out[0], outOK[0] = quantile.MedianInPlace(values), true
	}, members...)
}
