package engine

import (
	"context"
	"fmt"
	"runtime"

	"github.com/chrissnell/paddymap/internal/raster"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LocalConfig tunes the local engine.
type LocalConfig struct {
	// Workers bounds the number of tiles processed concurrently. Zero means
	// GOMAXPROCS.
	Workers int
	// TileRows is the height of each tile in rows. Zero means 64.
	TileRows int
}

// Local is an in-process, tile-parallel Engine. Each tile is a band of whole
// rows; tiles write disjoint regions of freshly allocated outputs.
type Local struct {
	workers  int
	tileRows int
	logger   *zap.SugaredLogger
}

// NewLocal creates a local engine.
func NewLocal(cfg LocalConfig, logger *zap.SugaredLogger) *Local {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.TileRows <= 0 {
		cfg.TileRows = 64
	}
	return &Local{
		workers:  cfg.Workers,
		tileRows: cfg.TileRows,
		logger:   logger,
	}
}

// forEachTile runs fn over [rowStart, rowEnd) tiles of a grid with height rows.
func (l *Local) forEachTile(ctx context.Context, height int, fn func(rowStart, rowEnd int)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for start := 0; start < height; start += l.tileRows {
		rowStart := start
		rowEnd := min(start+l.tileRows, height)
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(rowStart, rowEnd)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Map implements Engine.
func (l *Local) Map(ctx context.Context, nOut int, fn PixelFunc, inputs ...*raster.Raster) ([]*raster.Raster, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("map needs at least one input raster")
	}
	if err := raster.SameGrid(inputs...); err != nil {
		return nil, err
	}
	grid := inputs[0].Grid
	outs := make([]*raster.Raster, nOut)
	for i := range outs {
		outs[i] = raster.New(grid)
	}

	err := l.forEachTile(ctx, grid.Height, func(rowStart, rowEnd int) {
		in := make([]float64, len(inputs))
		inOK := make([]bool, len(inputs))
		out := make([]float64, nOut)
		outOK := make([]bool, nOut)
		for px := rowStart * grid.Width; px < rowEnd*grid.Width; px++ {
			for j, r := range inputs {
				in[j], inOK[j] = r.Data[px], r.Valid[px]
			}
			for j := range out {
				out[j], outOK[j] = 0, false
			}
			fn(px, in, inOK, out, outOK)
			for j, o := range outs {
				if outOK[j] {
					o.Set(px, out[j])
				}
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return outs, nil
}

// NeighborhoodReduce implements Engine.
func (l *Local) NeighborhoodReduce(ctx context.Context, in *raster.Raster, k Kernel, f Focal) ([]*raster.Raster, error) {
	grid := in.Grid
	nOut := f.Outputs()
	outs := make([]*raster.Raster, nOut)
	for i := range outs {
		outs[i] = raster.New(grid)
	}

	err := l.forEachTile(ctx, grid.Height, func(rowStart, rowEnd int) {
		values := make([]float64, 0, len(k.Offsets))
		out := make([]float64, nOut)
		outOK := make([]bool, nOut)
		for row := rowStart; row < rowEnd; row++ {
			for col := 0; col < grid.Width; col++ {
				values = values[:0]
				for _, o := range k.Offsets {
					c, r := col+o.DX, row+o.DY
					if !grid.Contains(c, r) {
						continue
					}
					if v, ok := in.At(grid.Index(c, r)); ok {
						values = append(values, v)
					}
				}
				for j := range out {
					out[j], outOK[j] = 0, false
				}
				f.Reduce(values, out, outOK)
				px := grid.Index(col, row)
				for j, o := range outs {
					if outOK[j] {
						o.Set(px, out[j])
					}
				}
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return outs, nil
}

// RegionReduce implements Reducer. Rows are reduced in parallel and merged in
// row order.
func (l *Local) RegionReduce(ctx context.Context, req *RegionRequest) (*RegionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	rows := make([]rowPartial, req.Values.Grid.Height)
	err := l.forEachTile(ctx, len(rows), func(rowStart, rowEnd int) {
		for row := rowStart; row < rowEnd; row++ {
			rows[row] = reduceRow(req, row)
		}
	})
	if err != nil {
		return nil, err
	}
	res := mergeRows(req.Kind, rows)
	l.logger.Debugw("region reduction complete", "kind", req.Kind, "pixels", res.Count)
	return res, nil
}
