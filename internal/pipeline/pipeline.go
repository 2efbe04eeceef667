// Package pipeline runs a complete paddy mapping analysis: scene selection,
// speckle filtering, mRVI, dekad composites, point sampling, thresholds,
// growth streaks, classification, cleanup and area statistics.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/chrissnell/paddymap/internal/assets"
	"github.com/chrissnell/paddymap/internal/cache"
	"github.com/chrissnell/paddymap/internal/classify"
	"github.com/chrissnell/paddymap/internal/dekad"
	"github.com/chrissnell/paddymap/internal/engine"
	"github.com/chrissnell/paddymap/internal/mrvi"
	"github.com/chrissnell/paddymap/internal/raster"
	"github.com/chrissnell/paddymap/internal/sampling"
	"github.com/chrissnell/paddymap/internal/speckle"
	"github.com/chrissnell/paddymap/internal/stats"
	"github.com/chrissnell/paddymap/internal/streak"
	"github.com/chrissnell/paddymap/internal/threshold"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// ErrPanic marks a run that was aborted by a recovered panic.
var ErrPanic = errors.New("pipeline panic")

// ErrNoScenes is returned when the catalog holds no matching acquisitions.
var ErrNoScenes = errors.New("no matching acquisitions")

// Config holds the algorithm parameters shared by every run. It is part of
// the cache key.
type Config struct {
	Speckle     speckle.Params         `msgpack:"speckle"`
	Cleanup     classify.CleanupParams `msgpack:"cleanup"`
	RoadBufferM float64                `msgpack:"road_buffer_m"`
	SeasonStart int                    `msgpack:"season_start"`
}

// DefaultConfig returns the standard parameters.
func DefaultConfig() Config {
	return Config{
		Speckle:     speckle.DefaultParams(),
		Cleanup:     classify.DefaultCleanupParams(),
		RoadBufferM: 3,
		SeasonStart: stats.DefaultSeasonStart,
	}
}

// ProgressFunc is told the name of each stage as it starts.
type ProgressFunc func(stage string)

// Runner executes runs. It is safe for concurrent use; runs share no mutable
// state besides the asset store and the cache.
type Runner struct {
	engine engine.Engine
	assets *assets.Store
	cache  *cache.Cache
	config Config
	logger *zap.SugaredLogger

	filter     *speckle.Filter
	index      *mrvi.Calculator
	compositor *dekad.Compositor
	tracker    *streak.Tracker
	seasonal   *classify.Seasonal
	monitoring *classify.Monitoring
	cleaner    *classify.Cleaner
	aggregator *stats.Aggregator
}

// NewRunner wires the stages onto e. c may be nil to disable caching.
func NewRunner(e engine.Engine, store *assets.Store, c *cache.Cache, cfg Config, logger *zap.SugaredLogger) (*Runner, error) {
	filter, err := speckle.New(e, cfg.Speckle, logger.Named("speckle"))
	if err != nil {
		return nil, err
	}
	if cfg.SeasonStart < 1 || cfg.SeasonStart > 12 {
		return nil, fmt.Errorf("season start %d is not a month", cfg.SeasonStart)
	}

	return &Runner{
		engine:     e,
		assets:     store,
		cache:      c,
		config:     cfg,
		logger:     logger,
		filter:     filter,
		index:      mrvi.NewCalculator(e),
		compositor: dekad.NewCompositor(e, logger.Named("dekad")),
		tracker:    streak.NewTracker(e, logger.Named("streak")),
		seasonal:   classify.NewSeasonal(e, logger.Named("classify")),
		monitoring: classify.NewMonitoring(e, logger.Named("classify")),
		cleaner:    classify.NewCleaner(e, cfg.Cleanup, logger.Named("cleanup")),
		aggregator: stats.NewAggregator(e, logger.Named("stats")),
	}, nil
}

// Config returns the runner's parameters.
func (r *Runner) Config() Config {
	return r.config
}

// Key returns the cache key of req under the runner's parameters.
func (r *Runner) Key(req Request) (uuid.UUID, error) {
	return cache.Key(cache.KeyParams{
		AOI:     req.AOI,
		Start:   req.Start,
		End:     req.End,
		Variant: string(req.Variant),
		Anchors: req.anchorList(),
		Params:  r.config,
	})
}

// Run executes req, serving it from the cache when an identical run already
// completed. progress may be nil.
func (r *Runner) Run(ctx context.Context, req Request, progress ProgressFunc) (res *Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Errorf("run panicked: %v\n%s", p, debug.Stack())
			res, err = nil, fmt.Errorf("%w: %v", ErrPanic, p)
		}
	}()

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if progress == nil {
		progress = func(string) {}
	}

	key, err := r.Key(req)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		var cached Result
		found, err := r.cache.Get(ctx, key, &cached)
		if err != nil {
			r.logger.Warnf("ignoring unreadable cache entry: %v", err)
		} else if found {
			r.logger.Infof("run %s served from cache", key)
			cached.CacheHit = true
			return &cached, nil
		}
	}

	s := &run{Runner: r, req: req, progress: progress, res: &Result{
		Request:     req,
		CacheKey:    key.String(),
		SeasonStart: r.config.SeasonStart,
	}}
	if err := s.execute(ctx); err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Put(ctx, key, s.res); err != nil {
			r.logger.Warnf("could not cache run %s: %v", key, err)
		}
	}
	return s.res, nil
}

// run carries the intermediate state of one execution.
type run struct {
	*Runner
	req      Request
	progress ProgressFunc
	res      *Result

	aoi     orb.MultiPolygon
	dekads  []time.Time
	frames  raster.Series
	series  raster.Series
	region  *raster.Mask
	streaks *streak.Result
	mask    *raster.Mask
}

func (s *run) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.progress(name)
	start := time.Now()
	if err := fn(ctx); err != nil {
		s.logger.Errorf("stage %s failed after %v: %v", name, time.Since(start), err)
		return fmt.Errorf("%s: %w", name, err)
	}
	s.logger.Infof("stage %s done in %v", name, time.Since(start))
	return nil
}

func (s *run) execute(ctx context.Context) error {
	stages := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"acquisitions", s.acquire},
		{"composites", s.composite},
		{"thresholds", s.thresholds},
		{"streaks", s.track},
		{"classification", s.classifyPixels},
		{"cleanup", s.cleanup},
		{"statistics", s.statistics},
	}
	for _, st := range stages {
		if err := s.stage(ctx, st.name, st.fn); err != nil {
			return err
		}
	}
	return nil
}

// acquire selects the scenes of the run and turns each one into a filtered
// mRVI frame.
func (s *run) acquire(ctx context.Context) error {
	aoi, err := s.assets.AOI(s.req.AOI)
	if err != nil {
		return err
	}
	s.aoi = aoi

	s.dekads = dekad.List(s.req.Start, s.req.End)
	if len(s.dekads) == 0 {
		return fmt.Errorf("%w: no dekads between %s and %s", dekad.ErrEmptySeries,
			s.req.Start.Format(time.DateOnly), s.req.End.Format(time.DateOnly))
	}
	s.res.Dekads = s.dekads

	catalog, err := s.assets.Catalog()
	if err != nil {
		return err
	}
	infos := catalog.Find(assets.DefaultQuery(s.req.Start, s.req.End, aoi.Bound()))
	if len(infos) == 0 {
		return ErrNoScenes
	}
	s.res.Scenes = len(infos)
	s.logger.Infof("%d acquisitions selected for AOI %s", len(infos), s.req.AOI)

	for _, info := range infos {
		scenes, err := catalog.Load(ctx, []*raster.SceneInfo{info})
		if err != nil {
			return err
		}
		filtered, err := s.filter.Scene(ctx, scenes[0])
		if err != nil {
			return fmt.Errorf("filtering scene %s: %w", info.ID, err)
		}
		frame, err := s.index.Scene(ctx, filtered)
		if err != nil {
			return fmt.Errorf("indexing scene %s: %w", info.ID, err)
		}
		s.frames = append(s.frames, frame)
	}
	s.frames.Sort()
	return nil
}

func (s *run) composite(ctx context.Context) error {
	cs, err := s.compositor.Composite(ctx, s.frames, s.dekads, s.req.End)
	if err != nil {
		return err
	}
	// Growth needs at least one difference.
	if err := cs.Require(2); err != nil {
		return err
	}
	s.frames = nil
	s.series = cs.Series()
	for _, c := range cs {
		s.res.Composites = append(s.res.Composites, CompositeInfo{Dekad: c.Dekad, Acquisitions: c.Acquisitions})
	}
	s.region = assets.ClipToAOI(s.series[0].Raster.Grid, s.aoi)
	return nil
}

func (s *run) thresholds(ctx context.Context) error {
	points, err := s.assets.Points()
	if err != nil {
		return err
	}
	samples := sampling.Collect(s.series, points)
	s.res.Samples = samples
	s.res.MeanSeries = samples.MeanSeries()
	s.res.Dispersions = samples.Dispersions()

	switch s.req.Variant {
	case classify.VariantSeasonal:
		th, err := threshold.EstimateSeasonal(samples, s.req.Anchors)
		if err != nil {
			return err
		}
		s.res.Seasonal = th
	case classify.VariantMonitoring:
		anchors, err := threshold.DetectMonitoringAnchors(samples)
		if err != nil {
			return err
		}
		th, err := threshold.EstimateMonitoring(samples, anchors)
		if err != nil {
			return err
		}
		s.res.Monitoring = th
	}
	return nil
}

func (s *run) track(ctx context.Context) error {
	diffs, err := streak.Differences(ctx, s.engine, s.series)
	if err != nil {
		return err
	}
	s.streaks, err = s.tracker.Track(ctx, diffs)
	return err
}

func (s *run) classifyPixels(ctx context.Context) error {
	var err error
	switch s.req.Variant {
	case classify.VariantSeasonal:
		s.mask, err = s.seasonal.Classify(ctx, classify.SeasonalInput{
			Composites: s.series,
			Dekads:     s.dekads,
			Anchors:    s.req.Anchors,
			Thresholds: s.res.Seasonal,
			Region:     s.region,
		})
	case classify.VariantMonitoring:
		s.mask, err = s.monitoring.Classify(ctx, classify.MonitoringInput{
			Composites: s.series,
			Dekads:     s.dekads,
			Thresholds: s.res.Monitoring,
			Region:     s.region,
		})
	}
	if err != nil {
		return err
	}
	s.res.RawMask = s.mask
	return nil
}

func (s *run) cleanup(ctx context.Context) error {
	grid := s.mask.Grid

	landcover, err := s.assets.LandCover()
	if err != nil {
		return err
	}
	if landcover != nil && !landcover.Grid.Equal(grid) {
		return fmt.Errorf("land cover: %w", raster.ErrGridMismatch)
	}
	cleaned, err := s.cleaner.Clean(ctx, s.mask, landcover)
	if err != nil {
		return err
	}

	water, err := s.assets.Water()
	if err != nil {
		return err
	}
	roads, err := s.assets.Roads()
	if err != nil {
		return err
	}
	exclusion, err := assets.Exclusion(grid, water, roads, s.config.RoadBufferM)
	if err != nil {
		return err
	}
	if cleaned, err = classify.Erase(cleaned, exclusion); err != nil {
		return err
	}
	// Dilation may reach past the AOI boundary.
	if cleaned, err = cleaned.And(s.region); err != nil {
		return err
	}

	s.res.Attributes, err = classify.Attribute(ctx, s.engine, cleaned, s.streaks)
	return err
}

func (s *run) statistics(ctx context.Context) error {
	a := s.res.Attributes
	st, err := s.aggregator.Aggregate(ctx, a.Mask, a.StartMonth, a.StartMonthDay)
	if errors.Is(err, stats.ErrNoClassifiedPixels) {
		s.logger.Warnf("no classified pixels in AOI %s", s.req.AOI)
		s.res.NoClassifiedPixels = true
		return nil
	}
	if err != nil {
		return err
	}
	s.res.Statistics = st
	return nil
}
