package classify

import (
	"context"
	"fmt"
	"math"

	"github.com/chrissnell/paddymap/internal/engine"
	"github.com/chrissnell/paddymap/internal/raster"
	"go.uber.org/zap"
)

// Land-cover classes removed before dilation.
const (
	LandCoverTree    = 10
	LandCoverBuiltUp = 50
)

const (
	DefaultMinAreaM2    = 10000.0
	DefaultKernelRadius = 1
)

// CleanupParams configures mask cleanup.
type CleanupParams struct {
	ExcludedLandCover []int
	KernelRadius      int
	MinObjectAreaM2   float64
	EightConnected    bool
}

// DefaultCleanupParams masks tree cover and built-up land, dilates with a
// radius 1 circle and drops 4-connected objects under one hectare.
func DefaultCleanupParams() CleanupParams {
	return CleanupParams{
		ExcludedLandCover: []int{LandCoverTree, LandCoverBuiltUp},
		KernelRadius:      DefaultKernelRadius,
		MinObjectAreaM2:   DefaultMinAreaM2,
	}
}

// Cleaner removes noise from a raw classification mask.
type Cleaner struct {
	engine engine.Engine
	params CleanupParams
	logger *zap.SugaredLogger
}

// NewCleaner returns a cleaner bound to e.
func NewCleaner(e engine.Engine, p CleanupParams, logger *zap.SugaredLogger) *Cleaner {
	return &Cleaner{engine: e, params: p, logger: logger}
}

// Clean masks excluded land cover, dilates, then removes objects smaller than
// the minimum area. landcover may be nil.
func (c *Cleaner) Clean(ctx context.Context, m *raster.Mask, landcover *raster.Raster) (*raster.Mask, error) {
	before := m.Count()

	if landcover != nil {
		var err error
		if m, err = MaskLandCover(m, landcover, c.params.ExcludedLandCover); err != nil {
			return nil, err
		}
	}

	dilated, err := Dilate(ctx, c.engine, m, c.params.KernelRadius)
	if err != nil {
		return nil, err
	}

	cleaned := RemoveSmallObjects(dilated, c.params.MinObjectAreaM2, c.params.EightConnected)
	c.logger.Debugf("cleanup: %d raw, %d after land cover and dilation, %d kept", before, dilated.Count(), cleaned.Count())
	return cleaned, nil
}

// MaskLandCover clears every pixel whose land-cover class is excluded.
// Pixels without land-cover data are kept.
func MaskLandCover(m *raster.Mask, landcover *raster.Raster, excluded []int) (*raster.Mask, error) {
	if !m.Grid.Equal(landcover.Grid) {
		return nil, fmt.Errorf("land cover: %w", raster.ErrGridMismatch)
	}
	drop := make(map[int]bool, len(excluded))
	for _, cls := range excluded {
		drop[cls] = true
	}
	out := m.Clone()
	for i, set := range out.Data {
		if !set {
			continue
		}
		if v, ok := landcover.At(i); ok && drop[int(math.Round(v))] {
			out.Data[i] = false
		}
	}
	return out, nil
}

// Dilate grows the mask by a circular kernel of the given radius.
func Dilate(ctx context.Context, e engine.Engine, m *raster.Mask, radius int) (*raster.Mask, error) {
	if radius <= 0 {
		return m.Clone(), nil
	}
	outs, err := e.NeighborhoodReduce(ctx, m.AsRaster(), engine.Circle(radius), engine.FocalMax{})
	if err != nil {
		return nil, fmt.Errorf("dilating mask: %w", err)
	}
	return raster.MaskOf(outs[0]), nil
}

// RemoveSmallObjects clears connected objects whose pixel count times pixel
// area is below minArea square metres.
func RemoveSmallObjects(m *raster.Mask, minArea float64, eightConnected bool) *raster.Mask {
	labels, sizes := Label(m, eightConnected)
	out := raster.NewMask(m.Grid)
	for row := 0; row < m.Grid.Height; row++ {
		area := m.Grid.PixelArea(row)
		for col := 0; col < m.Grid.Width; col++ {
			i := m.Grid.Index(col, row)
			if l := labels[i]; l > 0 && float64(sizes[l])*area >= minArea {
				out.Data[i] = true
			}
		}
	}
	return out
}

// Label assigns a component number starting at 1 to every set pixel and
// returns the labels and the pixel count of each label (index 0 unused).
func Label(m *raster.Mask, eightConnected bool) ([]int32, []int) {
	g := m.Grid
	neighbours := [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	if eightConnected {
		neighbours = append(neighbours, [2]int{1, 1}, [2]int{1, -1}, [2]int{-1, 1}, [2]int{-1, -1})
	}

	labels := make([]int32, g.Len())
	sizes := []int{0}
	var stack []int
	for start, set := range m.Data {
		if !set || labels[start] != 0 {
			continue
		}
		label := int32(len(sizes))
		sizes = append(sizes, 0)
		labels[start] = label
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			sizes[label]++
			col, row := i%g.Width, i/g.Width
			for _, d := range neighbours {
				c, r := col+d[0], row+d[1]
				if !g.Contains(c, r) {
					continue
				}
				j := g.Index(c, r)
				if m.Data[j] && labels[j] == 0 {
					labels[j] = label
					stack = append(stack, j)
				}
			}
		}
	}
	return labels, sizes
}

// Erase clears every pixel of m set in exclusion.
func Erase(m, exclusion *raster.Mask) (*raster.Mask, error) {
	if exclusion == nil {
		return m.Clone(), nil
	}
	keep := exclusion.Not()
	return m.And(keep)
}
