// Package engine defines the raster engine capability the pipeline runs on:
// elementwise Map, windowed NeighborhoodReduce and the blocking RegionReduce
// materialization point, plus a tile-parallel local implementation and a
// retrying wrapper for reductions served by remote workers.
package engine

import (
	"context"
	"errors"

	"github.com/chrissnell/paddymap/internal/raster"
)

var (
	// ErrRetryable marks a reduction failure that may succeed when retried
	// (timeouts, quota, transient worker errors).
	ErrRetryable = errors.New("retryable engine failure")

	// ErrRetryBudgetExhausted is returned once every retry of a reduction failed.
	ErrRetryBudgetExhausted = errors.New("region reduction retry budget exhausted")
)

// PixelFunc computes the outputs of one pixel from the co-located input
// values. px is the linear pixel index, in/inOK hold one entry per input
// raster, out/outOK one entry per output. The function must only write to
// out/outOK; buffers are reused between pixels.
type PixelFunc func(px int, in []float64, inOK []bool, out []float64, outOK []bool)

// Engine is the raster capability every stage is expressed against.
// Implementations may evaluate pixels in any order and partitioning; results
// must not depend on either. No call may mutate its inputs.
type Engine interface {
	// Map evaluates fn at every pixel of the inputs, which must share a grid,
	// and returns nOut new rasters.
	Map(ctx context.Context, nOut int, fn PixelFunc, inputs ...*raster.Raster) ([]*raster.Raster, error)

	// NeighborhoodReduce applies f over the kernel window around every pixel.
	NeighborhoodReduce(ctx context.Context, in *raster.Raster, k Kernel, f Focal) ([]*raster.Raster, error)

	Reducer
}

// Reducer is the synchronous materialization boundary. It may be served by a
// remote worker and therefore may be slow, time out or fail transiently.
type Reducer interface {
	RegionReduce(ctx context.Context, req *RegionRequest) (*RegionResult, error)
}

// MapOne is a convenience wrapper around Map for single-output transforms.
func MapOne(ctx context.Context, e Engine, fn PixelFunc, inputs ...*raster.Raster) (*raster.Raster, error) {
	out, err := e.Map(ctx, 1, fn, inputs...)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// hybrid evaluates maps and neighborhoods on one engine and delegates
// reductions to another reducer.
type hybrid struct {
	Engine
	reducer Reducer
}

// WithReducer returns an engine that runs Map and NeighborhoodReduce on e but
// sends every RegionReduce to r.
func WithReducer(e Engine, r Reducer) Engine {
	return &hybrid{Engine: e, reducer: r}
}

func (h *hybrid) RegionReduce(ctx context.Context, req *RegionRequest) (*RegionResult, error) {
	return h.reducer.RegionReduce(ctx, req)
}
