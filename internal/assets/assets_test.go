package assets

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chrissnell/paddymap/internal/raster"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

// 4x4 grid of 10 m pixels with its upper-left corner at (0, 40).
var grid = raster.Grid{Width: 4, Height: 4, OriginY: 40, PixelWidth: 10, PixelHeight: 10}

func square(x0, y0, x1, y1 float64) orb.Polygon {
	return orb.Polygon{{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}
}

func TestRasterizePolygons(t *testing.T) {
	tests := []struct {
		name     string
		polys    orb.MultiPolygon
		expected int
	}{
		{"upper-left quarter", orb.MultiPolygon{square(0, 20, 20, 40)}, 4},
		{"centre not covered", orb.MultiPolygon{square(0, 30, 4, 40)}, 0},
		{"overlapping polygons", orb.MultiPolygon{square(0, 20, 20, 40), square(10, 20, 30, 40)}, 6},
		{"outside the grid", orb.MultiPolygon{square(100, 100, 120, 120)}, 0},
		{"whole grid", orb.MultiPolygon{square(-5, -5, 45, 45)}, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RasterizePolygons(grid, tt.polys).Count(); got != tt.expected {
				t.Errorf("got %d pixels, expected %d", got, tt.expected)
			}
		})
	}
}

func TestRasterizeLines(t *testing.T) {
	// Horizontal road along y=20, between rows 1 and 2.
	road := orb.MultiLineString{{{0, 20}, {40, 20}}}

	tests := []struct {
		bufferM  float64
		expected int
	}{
		{1, 0},
		{6, 8},
		{16, 16},
	}
	for _, tt := range tests {
		m := RasterizeLines(grid, road, tt.bufferM)
		if got := m.Count(); got != tt.expected {
			t.Errorf("buffer %v m: got %d pixels, expected %d", tt.bufferM, got, tt.expected)
		}
	}

	m := RasterizeLines(grid, road, 6)
	for col := 0; col < grid.Width; col++ {
		if !m.Data[grid.Index(col, 1)] || !m.Data[grid.Index(col, 2)] || m.Data[grid.Index(col, 0)] {
			t.Fatalf("column %d not buffered as expected", col)
		}
	}
}

func TestDistanceMetresGeographic(t *testing.T) {
	g := raster.Grid{Width: 1, Height: 1, PixelWidth: 0.0001, PixelHeight: 0.0001, Geographic: true}
	d := distanceMetres(g, orb.Point{0, 0}, orb.Point{0.001, 0}, orb.Point{0.0005, 0.0001})
	if math.Abs(d-11.0574) > 0.01 {
		t.Errorf("distance = %v m, expected about 11.06", d)
	}
}

func TestExclusion(t *testing.T) {
	water := orb.MultiPolygon{square(0, 30, 20, 40)}
	roads := orb.MultiLineString{{{0, 5}, {40, 5}}}

	m, err := Exclusion(grid, water, roads, 3)
	if err != nil {
		t.Fatalf("Exclusion: %v", err)
	}
	if got := m.Count(); got != 6 {
		t.Errorf("excluded %d pixels, expected 6", got)
	}

	empty, err := Exclusion(grid, nil, nil, 3)
	if err != nil {
		t.Fatalf("Exclusion: %v", err)
	}
	if empty.Count() != 0 {
		t.Error("no layers must exclude nothing")
	}
}

func TestPoints(t *testing.T) {
	fc := geojson.NewFeatureCollection()

	a := geojson.NewFeature(orb.Point{1, 1})
	a.ID = "a"
	fc.Append(a)

	b := geojson.NewFeature(orb.Point{2, 2})
	b.Properties["point_id"] = "p2"
	fc.Append(b)

	fc.Append(geojson.NewFeature(orb.LineString{{0, 0}, {1, 1}}))
	fc.Append(geojson.NewFeature(orb.Point{3, 3}))

	pts := Points(fc)
	expected := []string{"a", "p2", "3"}
	if len(pts) != len(expected) {
		t.Fatalf("got %d points, expected %d", len(pts), len(expected))
	}
	for i, id := range expected {
		if pts[i].ID != id {
			t.Errorf("point %d ID = %q, expected %q", i, pts[i].ID, id)
		}
	}
}

func TestPolygonsAndLines(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(square(0, 0, 1, 1)))
	fc.Append(geojson.NewFeature(orb.MultiPolygon{square(2, 2, 3, 3), square(4, 4, 5, 5)}))
	fc.Append(geojson.NewFeature(orb.LineString{{0, 0}, {1, 1}}))
	fc.Append(geojson.NewFeature(orb.MultiLineString{{{0, 0}, {1, 1}}, {{2, 2}, {3, 3}}}))

	if n := len(Polygons(fc)); n != 3 {
		t.Errorf("got %d polygons, expected 3", n)
	}
	if n := len(Lines(fc)); n != 3 {
		t.Errorf("got %d lines, expected 3", n)
	}
}

func writeScene(t *testing.T, dir, id string, at time.Time, mode string, pols []string) {
	t.Helper()
	s := &raster.Scene{
		ID:            id,
		Time:          at,
		Mode:          mode,
		Polarizations: pols,
		ResolutionM:   DefaultResolutionM,
		VV:            raster.Filled(grid, 0.2),
		VH:            raster.Filled(grid, 0.05),
	}
	if err := raster.WriteScene(filepath.Join(dir, id+SceneExt), s); err != nil {
		t.Fatal(err)
	}
}

func TestCatalog(t *testing.T) {
	dir := t.TempDir()
	day := func(m time.Month, d int) time.Time { return time.Date(2023, m, d, 0, 0, 0, 0, time.UTC) }

	writeScene(t, dir, "s3", day(time.October, 20), "IW", []string{"VV", "VH"})
	writeScene(t, dir, "s1", day(time.October, 2), "IW", []string{"VV", "VH"})
	writeScene(t, dir, "s2", day(time.October, 8), "EW", []string{"VV", "VH"})
	writeScene(t, dir, "s4", day(time.October, 9), "IW", []string{"HH"})
	writeScene(t, dir, "s5", day(time.November, 1), "IW", []string{"VV", "VH"})
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := OpenCatalog(dir, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("OpenCatalog: %v", err)
	}
	if c.Len() != 5 {
		t.Fatalf("indexed %d scenes, expected 5", c.Len())
	}

	found := c.Find(DefaultQuery(day(time.October, 1), day(time.November, 1), grid.Bound()))
	if len(found) != 2 || found[0].ID != "s1" || found[1].ID != "s3" {
		ids := make([]string, len(found))
		for i, f := range found {
			ids[i] = f.ID
		}
		t.Fatalf("found %v, expected [s1 s3]", ids)
	}

	elsewhere := DefaultQuery(day(time.October, 1), day(time.November, 1), orb.Bound{Min: orb.Point{500, 500}, Max: orb.Point{600, 600}})
	if n := len(c.Find(elsewhere)); n != 0 {
		t.Errorf("found %d scenes outside the AOI", n)
	}

	scenes, err := c.Load(context.Background(), found)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(scenes) != 2 || scenes[0].VV == nil || !scenes[1].HasPolarization("VH") {
		t.Errorf("loaded scenes are incomplete: %+v", scenes)
	}
}

func TestStoreCachesLayers(t *testing.T) {
	dir := t.TempDir()
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(square(0, 0, 40, 40)))
	data, err := fc.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "aoi.geojson")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(Paths{AOIs: map[string]string{"field": path}}, zap.NewNop().Sugar())
	aoi, err := s.AOI("field")
	if err != nil {
		t.Fatalf("AOI: %v", err)
	}
	if len(aoi) != 1 {
		t.Fatalf("got %d polygons, expected 1", len(aoi))
	}

	// Served from memory once loaded.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AOI("field"); err != nil {
		t.Errorf("cached AOI: %v", err)
	}

	if _, err := s.AOI("missing"); err == nil {
		t.Error("expected an error for an unknown AOI")
	}

	roads, err := s.Roads()
	if err != nil || roads != nil {
		t.Errorf("unconfigured roads = %v, %v", roads, err)
	}
	lc, err := s.LandCover()
	if err != nil || lc != nil {
		t.Errorf("unconfigured land cover = %v, %v", lc, err)
	}
}
