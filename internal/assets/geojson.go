// Package assets loads the vector and raster layers a run depends on: AOI
// polygons, sample points, roads, water bodies, land cover and the scene
// catalog. Vector layers are GeoJSON feature collections.
package assets

import (
	"fmt"
	"os"
	"strconv"

	"github.com/chrissnell/paddymap/internal/sampling"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ReadFeatureCollection parses a GeoJSON feature collection file.
func ReadFeatureCollection(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return fc, nil
}

// Polygons collects every polygonal geometry of fc.
func Polygons(fc *geojson.FeatureCollection) orb.MultiPolygon {
	var mp orb.MultiPolygon
	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = append(mp, g)
		case orb.MultiPolygon:
			mp = append(mp, g...)
		case orb.Bound:
			mp = append(mp, g.ToPolygon())
		}
	}
	return mp
}

// Lines collects every linear geometry of fc.
func Lines(fc *geojson.FeatureCollection) orb.MultiLineString {
	var ml orb.MultiLineString
	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.LineString:
			ml = append(ml, g)
		case orb.MultiLineString:
			ml = append(ml, g...)
		}
	}
	return ml
}

// Points converts point features to sample points. The point ID is taken from
// the feature ID, then the "point_id" or "id" property, then the position in
// the collection.
func Points(fc *geojson.FeatureCollection) []sampling.Point {
	var pts []sampling.Point
	for i, f := range fc.Features {
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		pts = append(pts, sampling.Point{ID: featureID(f, i), Location: p})
	}
	return pts
}

func featureID(f *geojson.Feature, i int) string {
	switch id := f.ID.(type) {
	case string:
		if id != "" {
			return id
		}
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	}
	for _, key := range []string{"point_id", "id"} {
		if v, ok := f.Properties[key]; ok {
			return fmt.Sprint(v)
		}
	}
	return strconv.Itoa(i)
}
