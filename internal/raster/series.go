package raster

import (
	"fmt"
	"sort"
	"time"
)

// Frame is one timestamped raster of a series.
type Frame struct {
	Time   time.Time `msgpack:"time" json:"time"`
	Raster *Raster   `msgpack:"raster" json:"raster"`
}

// Series is an ordered raster time series over a single grid. Timestamps are
// strictly increasing.
type Series []Frame

// Validate checks ordering, uniqueness of timestamps and the shared grid.
func (s Series) Validate() error {
	for i := range s {
		if s[i].Raster == nil {
			return fmt.Errorf("frame %d (%s) has no raster", i, s[i].Time.Format(time.DateOnly))
		}
		if i == 0 {
			continue
		}
		if !s[i].Time.After(s[i-1].Time) {
			return fmt.Errorf("frame %d at %s does not follow %s", i, s[i].Time, s[i-1].Time)
		}
		if !s[i].Raster.Grid.Equal(s[0].Raster.Grid) {
			return fmt.Errorf("frame %d: %w", i, ErrGridMismatch)
		}
	}
	return nil
}

// Sort orders frames by time. Frames sharing a timestamp keep their
// relative order.
func (s Series) Sort() {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Time.Before(s[j].Time) })
}

// Times returns the timestamps of every frame.
func (s Series) Times() []time.Time {
	ts := make([]time.Time, len(s))
	for i, f := range s {
		ts[i] = f.Time
	}
	return ts
}

// IndexOf returns the position of the frame stamped exactly t, or -1.
func (s Series) IndexOf(t time.Time) int {
	i := sort.Search(len(s), func(i int) bool { return !s[i].Time.Before(t) })
	if i < len(s) && s[i].Time.Equal(t) {
		return i
	}
	return -1
}

// Rasters returns the rasters of the series in time order.
func (s Series) Rasters() []*Raster {
	rs := make([]*Raster, len(s))
	for i, f := range s {
		rs[i] = f.Raster
	}
	return rs
}
