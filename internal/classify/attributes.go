package classify

import (
	"context"
	"fmt"

	"github.com/chrissnell/paddymap/internal/engine"
	"github.com/chrissnell/paddymap/internal/raster"
	"github.com/chrissnell/paddymap/internal/streak"
)

// Growing-season classes derived from the spread of start dates.
const (
	SeasonEarly = 0
	SeasonMid   = 1
	SeasonLate  = 2
)

// Attributes are the per-pixel outputs of a classification.
type Attributes struct {
	Mask          *raster.Mask   `msgpack:"mask"`
	LongestLength *raster.Raster `msgpack:"longest_length"`
	StartDate     *raster.Raster `msgpack:"start_date"`
	StartMonth    *raster.Raster `msgpack:"start_month"`
	StartMonthDay *raster.Raster `msgpack:"start_month_day"`
	GrowingSeason *raster.Raster `msgpack:"growing_season"`
}

// Attribute restricts the streak outputs to classified pixels that had a
// growth run and derives the growing-season classes. The returned mask is m
// unchanged: classified pixels without a run keep counting towards area but
// carry no start date.
func Attribute(ctx context.Context, e engine.Engine, m *raster.Mask, s *streak.Result) (*Attributes, error) {
	if !m.Grid.Equal(s.LongestLength.Grid) {
		return nil, fmt.Errorf("streak output: %w", raster.ErrGridMismatch)
	}

	outs, err := e.Map(ctx, 4, func(px int, in []float64, inOK []bool, out []float64, outOK []bool) {
		if !m.Data[px] || !inOK[0] || in[0] <= 0 {
			return
		}
		for j := range out {
			out[j], outOK[j] = in[j], inOK[j]
		}
	}, s.LongestLength, s.LongestStart, s.StartMonth, s.StartMonthDay)
	if err != nil {
		return nil, fmt.Errorf("restricting streak attributes: %w", err)
	}

	a := &Attributes{
		Mask:          m.Clone(),
		LongestLength: outs[0],
		StartDate:     outs[1],
		StartMonth:    outs[2],
		StartMonthDay: outs[3],
	}

	if a.GrowingSeason, err = GrowingSeason(ctx, e, a.StartDate); err != nil {
		return nil, err
	}
	return a, nil
}

// GrowingSeason splits start dates into early, mid and late thirds of their
// observed range (at 33 % and 66 %).
func GrowingSeason(ctx context.Context, e engine.Engine, startDate *raster.Raster) (*raster.Raster, error) {
	res, err := e.RegionReduce(ctx, &engine.RegionRequest{Kind: engine.ReduceMinMax, Values: startDate})
	if err != nil {
		return nil, fmt.Errorf("start date range: %w", err)
	}
	if res.Count == 0 {
		return raster.New(startDate.Grid), nil
	}

	early := res.Min + (res.Max-res.Min)*0.33
	mid := res.Min + (res.Max-res.Min)*0.66
	return engine.MapOne(ctx, e, func(_ int, in []float64, inOK []bool, out []float64, outOK []bool) {
		if !inOK[0] {
			return
		}
		switch v := in[0]; {
		case v <= early:
			out[0] = SeasonEarly
		case v <= mid:
			out[0] = SeasonMid
		default:
			out[0] = SeasonLate
		}
		outOK[0] = true
	}, startDate)
}
