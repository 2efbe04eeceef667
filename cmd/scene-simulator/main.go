// Package main generates a synthetic deployment: dual-polarization scenes of
// paddy fields growing in a flat background, the AOI and sample point layers
// and a configuration file pointing at them.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/chrissnell/paddymap/internal/assets"
	"github.com/chrissnell/paddymap/internal/raster"
	"github.com/chrissnell/paddymap/pkg/config"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gopkg.in/yaml.v2"
)

// field is one simulated paddy. Rows and columns are half-open.
type field struct {
	col0, col1, row0, row1 int
	// sowing shifts the growth curve of the field.
	sowing time.Time
}

// simulator produces scenes over a projected grid with 10 m pixels.
type simulator struct {
	grid   raster.Grid
	fields []field
	looks  float64
	rng    *rand.Rand
}

// vhFraction is the cross-polarized share of backscatter: low over flooded
// paddies, rising through the vegetative phase and falling at ripening.
func vhFraction(sowing, at time.Time) float64 {
	days := at.Sub(sowing).Hours() / 24
	switch {
	case days < 0:
		return 0.2
	case days < 90:
		return 0.05 + 0.2*math.Sin(math.Pi*days/120)
	default:
		return 0.05
	}
}

// speckle draws multiplicative gamma noise with unit mean.
func (s *simulator) speckle() float64 {
	if math.IsInf(s.looks, 1) {
		return 1
	}
	var sum float64
	for i := 0; i < int(s.looks); i++ {
		sum += s.rng.ExpFloat64()
	}
	return sum / math.Floor(s.looks)
}

func (s *simulator) scene(id string, at time.Time) *raster.Scene {
	vv, vh := raster.New(s.grid), raster.New(s.grid)
	for row := 0; row < s.grid.Height; row++ {
		for col := 0; col < s.grid.Width; col++ {
			q := 0.2
			for _, f := range s.fields {
				if col >= f.col0 && col < f.col1 && row >= f.row0 && row < f.row1 {
					q = vhFraction(f.sowing, at)
					break
				}
			}
			i := s.grid.Index(col, row)
			vv.Set(i, (1-q)*s.speckle())
			vh.Set(i, q*s.speckle())
		}
	}
	return &raster.Scene{
		ID:            id,
		Time:          at,
		Mode:          assets.DefaultMode,
		Polarizations: []string{"VV", "VH"},
		ResolutionM:   assets.DefaultResolutionM,
		VV:            vv,
		VH:            vh,
	}
}

func writeFeatures(path string, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func main() {
	out := flag.String("out", "simulated", "Directory to write the deployment to")
	size := flag.Int("size", 120, "Width and height of the grid in pixels")
	start := flag.String("start", "2023-10-01", "Date of the first acquisition (YYYY-MM-DD)")
	count := flag.Int("scenes", 15, "Number of acquisitions, one every revisit interval")
	revisit := flag.Int("revisit", 12, "Days between acquisitions")
	looks := flag.Float64("looks", config.DefaultENL, "Equivalent number of looks of the simulated speckle")
	seed := flag.Int64("seed", 1, "Random seed")
	flag.Parse()

	first, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		log.Fatalf("invalid -start: %v", err)
	}
	if *size < 20 {
		log.Fatalf("-size must be at least 20")
	}

	n := *size
	sim := &simulator{
		grid:  raster.Grid{Width: n, Height: n, OriginY: float64(n) * 10, PixelWidth: 10, PixelHeight: 10},
		looks: *looks,
		rng:   rand.New(rand.NewSource(*seed)),
	}
	// Two blocks sown a month apart.
	sim.fields = []field{
		{col0: n / 10, col1: n / 2, row0: n / 10, row1: n / 2, sowing: first},
		{col0: n / 2, col1: n * 9 / 10, row0: n / 2, row1: n * 9 / 10, sowing: first.AddDate(0, 1, 0)},
	}

	sceneDir := filepath.Join(*out, "scenes")
	if err := os.MkdirAll(sceneDir, 0o755); err != nil {
		log.Fatal(err)
	}
	for i := 0; i < *count; i++ {
		at := first.AddDate(0, 0, i * *revisit)
		id := fmt.Sprintf("SIM_%s", at.Format("20060102"))
		if err := raster.WriteScene(filepath.Join(sceneDir, id+assets.SceneExt), sim.scene(id, at)); err != nil {
			log.Fatalf("writing scene %s: %v", id, err)
		}
	}

	extent := float64(n) * 10
	aoi := geojson.NewFeatureCollection()
	aoi.Append(geojson.NewFeature(orb.Polygon{{{0, 0}, {extent, 0}, {extent, extent}, {0, extent}, {0, 0}}}))
	aoiPath := filepath.Join(*out, "aoi.geojson")
	if err := writeFeatures(aoiPath, aoi); err != nil {
		log.Fatal(err)
	}

	points := geojson.NewFeatureCollection()
	for i, f := range sim.fields {
		for j := 0; j < 5; j++ {
			col := f.col0 + (j+1)*(f.col1-f.col0)/6
			row := f.row0 + (j+1)*(f.row1-f.row0)/6
			p := geojson.NewFeature(sim.grid.PixelCenter(col, row))
			p.ID = fmt.Sprintf("field%d-%d", i+1, j+1)
			points.Append(p)
		}
	}
	pointsPath := filepath.Join(*out, "points.geojson")
	if err := writeFeatures(pointsPath, points); err != nil {
		log.Fatal(err)
	}

	cfg := config.ConfigData{
		Assets: config.AssetsData{
			AOIs:   map[string]string{"simulated": aoiPath},
			Points: pointsPath,
			Scenes: sceneDir,
		},
		Storage: config.StorageData{Cache: filepath.Join(*out, "cache.db")},
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		log.Fatal(err)
	}
	cfgPath := filepath.Join(*out, "paddymap.yaml")
	if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
		log.Fatal(err)
	}

	last := first.AddDate(0, 0, (*count-1) * *revisit)
	fmt.Printf("wrote %d scenes from %s to %s\n", *count, first.Format(time.DateOnly), last.Format(time.DateOnly))
	fmt.Printf("try: paddymap -config %s run -aoi simulated -variant monitoring -start %s -end %s\n",
		cfgPath, first.Format(time.DateOnly), last.Format(time.DateOnly))
}
