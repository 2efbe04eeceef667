// Package sampling reads composite values at a fixed set of sample points.
// The resulting series only feed threshold estimation and diagnostics; they
// never classify pixels directly.
package sampling

import (
	"sort"
	"time"

	"github.com/chrissnell/paddymap/internal/quantile"
	"github.com/chrissnell/paddymap/internal/raster"
	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/stat"
)

// Point is a named sample location in grid coordinates.
type Point struct {
	ID       string    `msgpack:"id" json:"id"`
	Location orb.Point `msgpack:"location" json:"location"`
}

// Sample is the value of one composite at one point.
type Sample struct {
	PointID string    `msgpack:"point_id" json:"point_id"`
	Time    time.Time `msgpack:"time" json:"time"`
	Value   float64   `msgpack:"value" json:"value"`
}

// Series holds every sample of a run, ordered by time and then point.
type Series []Sample

// Collect samples every frame at every point. Points outside the grid and
// masked pixels yield no sample.
func Collect(frames raster.Series, points []Point) Series {
	var out Series
	for _, f := range frames {
		for _, p := range points {
			col, row, ok := f.Raster.Grid.PixelOf(p.Location)
			if !ok {
				continue
			}
			if v, ok := f.Raster.At(f.Raster.Grid.Index(col, row)); ok {
				out = append(out, Sample{PointID: p.ID, Time: f.Time, Value: v})
			}
		}
	}
	return out
}

// At returns the values sampled exactly at t.
func (s Series) At(t time.Time) []float64 {
	var vs []float64
	for _, x := range s {
		if x.Time.Equal(t) {
			vs = append(vs, x.Value)
		}
	}
	return vs
}

// Times returns the distinct sample times in ascending order.
func (s Series) Times() []time.Time {
	seen := make(map[int64]bool)
	var ts []time.Time
	for _, x := range s {
		k := x.Time.UnixNano()
		if !seen[k] {
			seen[k] = true
			ts = append(ts, x.Time)
		}
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	return ts
}

// Aggregate is one value of an across-points series.
type Aggregate struct {
	Time  time.Time `msgpack:"time" json:"time"`
	Value float64   `msgpack:"value" json:"value"`
}

// MedianSeries returns the per-date median across points.
func (s Series) MedianSeries() []Aggregate {
	return s.aggregate(func(vs []float64) float64 {
		return quantile.MedianInPlace(vs)
	})
}

// MeanSeries returns the per-date mean across points.
func (s Series) MeanSeries() []Aggregate {
	return s.aggregate(func(vs []float64) float64 {
		return stat.Mean(vs, nil)
	})
}

func (s Series) aggregate(fn func([]float64) float64) []Aggregate {
	times := s.Times()
	out := make([]Aggregate, 0, len(times))
	for _, t := range times {
		out = append(out, Aggregate{Time: t, Value: fn(s.At(t))})
	}
	return out
}

// Dispersion summarises the spread of sample values on one date the way a
// box plot does. Outliers lie beyond 1.5 IQR of the quartiles.
type Dispersion struct {
	Time          time.Time `msgpack:"time" json:"time"`
	Count         int       `msgpack:"count" json:"count"`
	Q1            float64   `msgpack:"q1" json:"q1"`
	Median        float64   `msgpack:"median" json:"median"`
	Q3            float64   `msgpack:"q3" json:"q3"`
	WhiskerLow    float64   `msgpack:"whisker_low" json:"whisker_low"`
	WhiskerHigh   float64   `msgpack:"whisker_high" json:"whisker_high"`
	OutlierPoints []string  `msgpack:"outlier_points" json:"outlier_points"`
}

// Dispersions returns the per-date dispersion summary.
func (s Series) Dispersions() []Dispersion {
	var out []Dispersion
	for _, t := range s.Times() {
		var day Series
		for _, x := range s {
			if x.Time.Equal(t) {
				day = append(day, x)
			}
		}
		values := make([]float64, len(day))
		for i, x := range day {
			values[i] = x.Value
		}
		sort.Float64s(values)

		d := Dispersion{
			Time:   t,
			Count:  len(values),
			Q1:     quantile.Sorted(values, 0.25),
			Median: quantile.Sorted(values, 0.5),
			Q3:     quantile.Sorted(values, 0.75),
		}
		iqr := d.Q3 - d.Q1
		lo, hi := d.Q1-1.5*iqr, d.Q3+1.5*iqr
		for _, v := range values {
			if v >= lo {
				d.WhiskerLow = v
				break
			}
		}
		for i := len(values) - 1; i >= 0; i-- {
			if values[i] <= hi {
				d.WhiskerHigh = values[i]
				break
			}
		}
		for _, x := range day {
			if x.Value < lo || x.Value > hi {
				d.OutlierPoints = append(d.OutlierPoints, x.PointID)
			}
		}
		out = append(out, d)
	}
	return out
}
