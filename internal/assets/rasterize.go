package assets

import (
	"math"

	"github.com/chrissnell/paddymap/internal/raster"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Approximate metres per degree used for short buffer distances on
// geographic grids.
const (
	metresPerDegreeLat = 110574.0
	metresPerDegreeLon = 111320.0
)

// RasterizePolygons sets every pixel whose centre lies inside mp.
func RasterizePolygons(g raster.Grid, mp orb.MultiPolygon) *raster.Mask {
	m := raster.NewMask(g)
	for _, poly := range mp {
		c0, r0, c1, r1, ok := pixelRange(g, poly.Bound())
		if !ok {
			continue
		}
		for row := r0; row <= r1; row++ {
			for col := c0; col <= c1; col++ {
				i := g.Index(col, row)
				if !m.Data[i] && planar.PolygonContains(poly, g.PixelCenter(col, row)) {
					m.Data[i] = true
				}
			}
		}
	}
	return m
}

// ClipToAOI returns the mask of pixels inside the area of interest.
func ClipToAOI(g raster.Grid, aoi orb.MultiPolygon) *raster.Mask {
	return RasterizePolygons(g, aoi)
}

// RasterizeLines sets every pixel whose centre lies within bufferM metres of
// a line.
func RasterizeLines(g raster.Grid, ml orb.MultiLineString, bufferM float64) *raster.Mask {
	m := raster.NewMask(g)
	for _, ls := range ml {
		for k := 0; k+1 < len(ls); k++ {
			a, b := ls[k], ls[k+1]
			bound := orb.Bound{Min: a, Max: a}.Extend(b)
			bound = bound.Pad(bufferInMapUnits(g, bound.Center(), bufferM))

			c0, r0, c1, r1, ok := pixelRange(g, bound)
			if !ok {
				continue
			}
			for row := r0; row <= r1; row++ {
				for col := c0; col <= c1; col++ {
					i := g.Index(col, row)
					if !m.Data[i] && distanceMetres(g, a, b, g.PixelCenter(col, row)) <= bufferM {
						m.Data[i] = true
					}
				}
			}
		}
	}
	return m
}

// Exclusion rasterizes water polygons and buffered road centrelines into a
// single mask.
func Exclusion(g raster.Grid, water orb.MultiPolygon, roads orb.MultiLineString, roadBufferM float64) (*raster.Mask, error) {
	return RasterizePolygons(g, water).Or(RasterizeLines(g, roads, roadBufferM))
}

// pixelRange returns the inclusive pixel window covering b, clipped to g.
func pixelRange(g raster.Grid, b orb.Bound) (c0, r0, c1, r1 int, ok bool) {
	if !g.Bound().Intersects(b) {
		return 0, 0, 0, 0, false
	}
	c0 = int(math.Floor((b.Min[0] - g.OriginX) / g.PixelWidth))
	c1 = int(math.Floor((b.Max[0] - g.OriginX) / g.PixelWidth))
	r0 = int(math.Floor((g.OriginY - b.Max[1]) / g.PixelHeight))
	r1 = int(math.Floor((g.OriginY - b.Min[1]) / g.PixelHeight))
	c0, r0 = max(c0, 0), max(r0, 0)
	c1, r1 = min(c1, g.Width-1), min(r1, g.Height-1)
	return c0, r0, c1, r1, c0 <= c1 && r0 <= r1
}

func bufferInMapUnits(g raster.Grid, at orb.Point, m float64) float64 {
	if !g.Geographic {
		return m
	}
	cos := math.Max(math.Cos(at[1]*math.Pi/180), 1e-6)
	return math.Max(m/metresPerDegreeLat, m/(metresPerDegreeLon*cos))
}

// distanceMetres is the distance from p to segment ab. Geographic inputs are
// projected onto a local equirectangular plane centred on p.
func distanceMetres(g raster.Grid, a, b, p orb.Point) float64 {
	if !g.Geographic {
		return planar.DistanceFromSegment(a, b, p)
	}
	cos := math.Cos(p[1] * math.Pi / 180)
	project := func(q orb.Point) orb.Point {
		return orb.Point{(q[0] - p[0]) * metresPerDegreeLon * cos, (q[1] - p[1]) * metresPerDegreeLat}
	}
	return planar.DistanceFromSegment(project(a), project(b), orb.Point{})
}
