// Package mrvi derives the modified Radar Vegetation Index from filtered
// dual-polarization backscatter.
package mrvi

import (
	"context"
	"fmt"
	"math"

	"github.com/chrissnell/paddymap/internal/engine"
	"github.com/chrissnell/paddymap/internal/raster"
)

// Value returns sqrt(VV/(VV+VH)) * 4VH/(VV+VH). ok is false where the index
// is undefined.
func Value(vv, vh float64) (v float64, ok bool) {
	sum := vv + vh
	if sum == 0 {
		return 0, false
	}
	v = math.Sqrt(vv/sum) * (4 * vh / sum)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Calculator computes index rasters on an engine.
type Calculator struct {
	engine engine.Engine
}

// NewCalculator returns a calculator bound to e.
func NewCalculator(e engine.Engine) *Calculator {
	return &Calculator{engine: e}
}

// Bands computes the index from a VV and a VH band.
func (c *Calculator) Bands(ctx context.Context, vv, vh *raster.Raster) (*raster.Raster, error) {
	return engine.MapOne(ctx, c.engine, func(_ int, in []float64, inOK []bool, out []float64, outOK []bool) {
		if !inOK[0] || !inOK[1] {
			return
		}
		out[0], outOK[0] = Value(in[0], in[1])
	}, vv, vh)
}

// Scene computes the index of a filtered scene as a timestamped frame.
func (c *Calculator) Scene(ctx context.Context, s *raster.Scene) (raster.Frame, error) {
	idx, err := c.Bands(ctx, s.VV, s.VH)
	if err != nil {
		return raster.Frame{}, fmt.Errorf("computing mRVI of scene %s: %w", s.ID, err)
	}
	return raster.Frame{Time: s.Time, Raster: idx}, nil
}
