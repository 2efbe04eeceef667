// Package speckle implements the Lee adaptive filter used to suppress radar
// speckle in each polarization band before the vegetation index is derived.
package speckle

import (
	"context"
	"fmt"
	"math"

	"github.com/chrissnell/paddymap/internal/engine"
	"github.com/chrissnell/paddymap/internal/raster"
	"go.uber.org/zap"
)

const (
	DefaultRadius = 2
	DefaultENL    = 4.0
)

// Params configures the filter.
type Params struct {
	// Radius of the square window in pixels.
	Radius int
	// ENL is the equivalent number of looks of the input imagery. +Inf
	// disables filtering.
	ENL float64
}

// Filter applies the Lee filter through a raster engine.
type Filter struct {
	engine engine.Engine
	params Params
	logger *zap.SugaredLogger
}

// DefaultParams returns the radius 2, ENL 4 filter.
func DefaultParams() Params {
	return Params{Radius: DefaultRadius, ENL: DefaultENL}
}

// New returns a filter.
func New(e engine.Engine, p Params, logger *zap.SugaredLogger) (*Filter, error) {
	if p.Radius < 0 {
		return nil, fmt.Errorf("invalid filter radius %d", p.Radius)
	}
	if p.ENL <= 0 || math.IsNaN(p.ENL) {
		return nil, fmt.Errorf("invalid equivalent number of looks %v", p.ENL)
	}
	return &Filter{engine: e, params: p, logger: logger}, nil
}

// Params returns the effective filter parameters.
func (f *Filter) Params() Params {
	return f.params
}

// Lee returns the filtered value of a pixel given its local window statistics
// and the noise variance ratio sigmaV2 = 1/ENL.
func Lee(pixel, mean, variance, sigmaV2 float64) float64 {
	if variance <= 0 {
		return mean
	}
	varX := math.Max(0, (variance-mean*mean*sigmaV2)/(1+sigmaV2))
	k := math.Max(0, varX/variance)
	return mean + k*(pixel-mean)
}

// Band filters a single polarization band. Masked pixels stay masked and are
// excluded from their neighbours' window statistics.
func (f *Filter) Band(ctx context.Context, band *raster.Raster) (*raster.Raster, error) {
	moments, err := f.engine.NeighborhoodReduce(ctx, band, engine.Square(f.params.Radius), engine.MeanVariance{})
	if err != nil {
		return nil, fmt.Errorf("computing local statistics: %w", err)
	}

	sigmaV2 := 1 / f.params.ENL
	return engine.MapOne(ctx, f.engine, func(_ int, in []float64, inOK []bool, out []float64, outOK []bool) {
		if !inOK[0] || !inOK[1] || !inOK[2] {
			return
		}
		out[0], outOK[0] = Lee(in[0], in[1], in[2], sigmaV2), true
	}, band, moments[0], moments[1])
}

// Scene filters both polarization bands of s and returns a new scene carrying
// the same acquisition metadata.
func (f *Filter) Scene(ctx context.Context, s *raster.Scene) (*raster.Scene, error) {
	if s.VV == nil || s.VH == nil {
		return nil, fmt.Errorf("scene %s is missing a polarization band", s.ID)
	}

	vv, err := f.Band(ctx, s.VV)
	if err != nil {
		return nil, fmt.Errorf("filtering VV of scene %s: %w", s.ID, err)
	}
	vh, err := f.Band(ctx, s.VH)
	if err != nil {
		return nil, fmt.Errorf("filtering VH of scene %s: %w", s.ID, err)
	}

	out := *s
	out.Polarizations = append([]string(nil), s.Polarizations...)
	out.VV, out.VH = vv, vh
	f.logger.Debugf("filtered scene %s (%s)", s.ID, s.Time.Format("2006-01-02"))
	return &out, nil
}
