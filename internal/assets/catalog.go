package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chrissnell/paddymap/internal/raster"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// SceneExt is the file extension of scene files in a catalog directory.
const SceneExt = ".scene"

// Acquisition defaults for the paddy pipeline.
const (
	DefaultMode         = "IW"
	DefaultPolarization = "VH"
	DefaultResolutionM  = 10.0
)

// Query selects scenes from a catalog. Zero-valued fields are not filtered on.
type Query struct {
	Start        time.Time
	End          time.Time
	Mode         string
	Polarization string
	ResolutionM  float64
	AOI          orb.Bound
}

// DefaultQuery returns the pipeline's acquisition filter for [start, end).
func DefaultQuery(start, end time.Time, aoi orb.Bound) Query {
	return Query{
		Start:        start,
		End:          end,
		Mode:         DefaultMode,
		Polarization: DefaultPolarization,
		ResolutionM:  DefaultResolutionM,
		AOI:          aoi,
	}
}

func (q Query) matches(info *raster.SceneInfo) bool {
	if !q.Start.IsZero() && info.Time.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && !info.Time.Before(q.End) {
		return false
	}
	if q.Mode != "" && !strings.EqualFold(info.Mode, q.Mode) {
		return false
	}
	if q.Polarization != "" && !hasPolarization(info.Polarizations, q.Polarization) {
		return false
	}
	if q.ResolutionM > 0 && info.ResolutionM != q.ResolutionM {
		return false
	}
	if !q.AOI.IsZero() && !info.Grid.Bound().Intersects(q.AOI) {
		return false
	}
	return true
}

func hasPolarization(pols []string, want string) bool {
	for _, p := range pols {
		if strings.EqualFold(p, want) {
			return true
		}
	}
	return false
}

// Catalog indexes the scene files of a directory by their headers.
type Catalog struct {
	dir    string
	scenes []*raster.SceneInfo
	logger *zap.SugaredLogger
}

// OpenCatalog reads the header of every scene file in dir.
func OpenCatalog(dir string, logger *zap.SugaredLogger) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scene catalog: %w", err)
	}

	c := &Catalog{dir: dir, logger: logger}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != SceneExt {
			continue
		}
		info, err := raster.ReadSceneInfo(filepath.Join(dir, e.Name()))
		if err != nil {
			logger.Warnf("skipping unreadable scene %s: %v", e.Name(), err)
			continue
		}
		c.scenes = append(c.scenes, info)
	}
	sort.SliceStable(c.scenes, func(i, j int) bool {
		return c.scenes[i].Time.Before(c.scenes[j].Time)
	})
	logger.Infof("scene catalog %s: %d scenes", dir, len(c.scenes))
	return c, nil
}

// Len returns the number of indexed scenes.
func (c *Catalog) Len() int {
	return len(c.scenes)
}

// Find returns the scenes matching q in time order.
func (c *Catalog) Find(q Query) []*raster.SceneInfo {
	var out []*raster.SceneInfo
	for _, s := range c.scenes {
		if q.matches(s) {
			out = append(out, s)
		}
	}
	return out
}

// Load decodes the scenes described by infos.
func (c *Catalog) Load(ctx context.Context, infos []*raster.SceneInfo) ([]*raster.Scene, error) {
	scenes := make([]*raster.Scene, 0, len(infos))
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := raster.ReadScene(info.Path)
		if err != nil {
			return nil, fmt.Errorf("loading scene %s: %w", info.ID, err)
		}
		scenes = append(scenes, s)
	}
	return scenes, nil
}
