// Package raster holds the in-memory pixel grid model shared by every pipeline
// stage: float rasters with an explicit validity mask, boolean masks, the
// fixed-point composite encoding, and the msgpack file codec.
package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// ErrGridMismatch is returned when rasters that must be co-registered are not.
var ErrGridMismatch = errors.New("rasters do not share a grid")

// Grid is a north-up affine pixel grid. OriginX/OriginY locate the upper-left
// corner of pixel (0,0). When Geographic is set, coordinates and pixel sizes
// are degrees of longitude/latitude; otherwise they are metres.
type Grid struct {
	Width       int     `msgpack:"width" json:"width"`
	Height      int     `msgpack:"height" json:"height"`
	OriginX     float64 `msgpack:"origin_x" json:"origin_x"`
	OriginY     float64 `msgpack:"origin_y" json:"origin_y"`
	PixelWidth  float64 `msgpack:"pixel_width" json:"pixel_width"`
	PixelHeight float64 `msgpack:"pixel_height" json:"pixel_height"`
	Geographic  bool    `msgpack:"geographic" json:"geographic"`
}

// Len returns the number of pixels in the grid.
func (g Grid) Len() int {
	return g.Width * g.Height
}

// Index returns the linear pixel index of (col, row).
func (g Grid) Index(col, row int) int {
	return row*g.Width + col
}

// Contains reports whether (col, row) lies inside the grid.
func (g Grid) Contains(col, row int) bool {
	return col >= 0 && row >= 0 && col < g.Width && row < g.Height
}

// Equal reports whether two grids describe the same pixels.
func (g Grid) Equal(o Grid) bool {
	const eps = 1e-9
	return g.Width == o.Width && g.Height == o.Height &&
		g.Geographic == o.Geographic &&
		math.Abs(g.OriginX-o.OriginX) < eps &&
		math.Abs(g.OriginY-o.OriginY) < eps &&
		math.Abs(g.PixelWidth-o.PixelWidth) < eps &&
		math.Abs(g.PixelHeight-o.PixelHeight) < eps
}

// Validate checks that the grid is usable.
func (g Grid) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("grid has non-positive dimensions %dx%d", g.Width, g.Height)
	}
	if g.PixelWidth <= 0 || g.PixelHeight <= 0 {
		return fmt.Errorf("grid has non-positive pixel size %gx%g", g.PixelWidth, g.PixelHeight)
	}
	return nil
}

// PixelCenter returns the map coordinate of the centre of (col, row).
func (g Grid) PixelCenter(col, row int) orb.Point {
	return orb.Point{
		g.OriginX + (float64(col)+0.5)*g.PixelWidth,
		g.OriginY - (float64(row)+0.5)*g.PixelHeight,
	}
}

// PixelBound returns the footprint of (col, row).
func (g Grid) PixelBound(col, row int) orb.Bound {
	minX := g.OriginX + float64(col)*g.PixelWidth
	maxY := g.OriginY - float64(row)*g.PixelHeight
	return orb.Bound{
		Min: orb.Point{minX, maxY - g.PixelHeight},
		Max: orb.Point{minX + g.PixelWidth, maxY},
	}
}

// PixelOf returns the pixel containing map coordinate p. ok is false when p
// falls outside the grid.
func (g Grid) PixelOf(p orb.Point) (col, row int, ok bool) {
	col = int(math.Floor((p[0] - g.OriginX) / g.PixelWidth))
	row = int(math.Floor((g.OriginY - p[1]) / g.PixelHeight))
	return col, row, g.Contains(col, row)
}

// Bound returns the extent of the whole grid.
func (g Grid) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{g.OriginX, g.OriginY - float64(g.Height)*g.PixelHeight},
		Max: orb.Point{g.OriginX + float64(g.Width)*g.PixelWidth, g.OriginY},
	}
}

// PixelArea returns the ground area in square metres of a pixel in the given
// row. Geographic grids use the geodesic area of the pixel footprint, so the
// value shrinks towards the poles; projected grids are uniform.
func (g Grid) PixelArea(row int) float64 {
	if !g.Geographic {
		return g.PixelWidth * g.PixelHeight
	}
	return geo.Area(g.PixelBound(0, row).ToPolygon())
}

// MetresToPixels converts a ground distance to a (possibly fractional) pixel
// count along the x axis at the grid's centre latitude.
func (g Grid) MetresToPixels(m float64) float64 {
	if !g.Geographic {
		return m / g.PixelWidth
	}
	c := g.Bound().Center()
	east := orb.Point{c[0] + g.PixelWidth, c[1]}
	return m / geo.Distance(c, east)
}
