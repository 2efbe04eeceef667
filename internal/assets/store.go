package assets

import (
	"fmt"
	"sort"
	"sync"

	"github.com/chrissnell/paddymap/internal/raster"
	"github.com/chrissnell/paddymap/internal/sampling"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// Paths locates the asset files of a deployment.
type Paths struct {
	AOIs      map[string]string
	Points    string
	Roads     string
	Water     string
	LandCover string
	Scenes    string
}

// Store loads asset layers on first use and keeps them for later runs.
type Store struct {
	paths  Paths
	logger *zap.SugaredLogger

	mu        sync.RWMutex
	aois      map[string]orb.MultiPolygon
	points    []sampling.Point
	roads     orb.MultiLineString
	water     orb.MultiPolygon
	landcover *raster.Raster
	catalog   *Catalog
}

// NewStore returns a store over paths.
func NewStore(paths Paths, logger *zap.SugaredLogger) *Store {
	return &Store{
		paths:  paths,
		logger: logger,
		aois:   make(map[string]orb.MultiPolygon),
	}
}

// AOINames returns the configured AOI names in sorted order.
func (s *Store) AOINames() []string {
	names := make([]string, 0, len(s.paths.AOIs))
	for n := range s.paths.AOIs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AOI returns the polygons of the named area of interest.
func (s *Store) AOI(name string) (orb.MultiPolygon, error) {
	s.mu.RLock()
	mp, ok := s.aois[name]
	s.mu.RUnlock()
	if ok {
		return mp, nil
	}

	path, ok := s.paths.AOIs[name]
	if !ok {
		return nil, fmt.Errorf("unknown AOI %q", name)
	}
	fc, err := ReadFeatureCollection(path)
	if err != nil {
		return nil, fmt.Errorf("loading AOI %q: %w", name, err)
	}
	mp = Polygons(fc)
	if len(mp) == 0 {
		return nil, fmt.Errorf("AOI %q has no polygons", name)
	}

	s.mu.Lock()
	s.aois[name] = mp
	s.mu.Unlock()
	return mp, nil
}

// Points returns the sample point set.
func (s *Store) Points() ([]sampling.Point, error) {
	s.mu.RLock()
	pts := s.points
	s.mu.RUnlock()
	if pts != nil {
		return pts, nil
	}

	fc, err := ReadFeatureCollection(s.paths.Points)
	if err != nil {
		return nil, fmt.Errorf("loading sample points: %w", err)
	}
	pts = Points(fc)
	if len(pts) == 0 {
		return nil, fmt.Errorf("no sample points in %s", s.paths.Points)
	}

	s.mu.Lock()
	s.points = pts
	s.mu.Unlock()
	return pts, nil
}

// Roads returns the road centrelines. A store without a roads layer returns
// no lines.
func (s *Store) Roads() (orb.MultiLineString, error) {
	if s.paths.Roads == "" {
		return nil, nil
	}
	s.mu.RLock()
	roads := s.roads
	s.mu.RUnlock()
	if roads != nil {
		return roads, nil
	}

	fc, err := ReadFeatureCollection(s.paths.Roads)
	if err != nil {
		return nil, fmt.Errorf("loading roads: %w", err)
	}
	roads = Lines(fc)

	s.mu.Lock()
	s.roads = roads
	s.mu.Unlock()
	return roads, nil
}

// Water returns the water body polygons. A store without a water layer
// returns no polygons.
func (s *Store) Water() (orb.MultiPolygon, error) {
	if s.paths.Water == "" {
		return nil, nil
	}
	s.mu.RLock()
	water := s.water
	s.mu.RUnlock()
	if water != nil {
		return water, nil
	}

	fc, err := ReadFeatureCollection(s.paths.Water)
	if err != nil {
		return nil, fmt.Errorf("loading water bodies: %w", err)
	}
	water = Polygons(fc)

	s.mu.Lock()
	s.water = water
	s.mu.Unlock()
	return water, nil
}

// LandCover returns the categorical land-cover raster, or nil when none is
// configured.
func (s *Store) LandCover() (*raster.Raster, error) {
	if s.paths.LandCover == "" {
		return nil, nil
	}
	s.mu.RLock()
	lc := s.landcover
	s.mu.RUnlock()
	if lc != nil {
		return lc, nil
	}

	lc, err := raster.ReadRaster(s.paths.LandCover)
	if err != nil {
		return nil, fmt.Errorf("loading land cover: %w", err)
	}

	s.mu.Lock()
	s.landcover = lc
	s.mu.Unlock()
	return lc, nil
}

// Catalog returns the scene catalog, indexing it on first use.
func (s *Store) Catalog() (*Catalog, error) {
	s.mu.RLock()
	c := s.catalog
	s.mu.RUnlock()
	if c != nil {
		return c, nil
	}

	c, err := OpenCatalog(s.paths.Scenes, s.logger)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.catalog = c
	s.mu.Unlock()
	return c, nil
}
