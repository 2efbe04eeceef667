package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/chrissnell/paddymap/internal/assets"
	"github.com/chrissnell/paddymap/internal/cache"
	"github.com/chrissnell/paddymap/internal/classify"
	"github.com/chrissnell/paddymap/internal/controllers/restserver"
	"github.com/chrissnell/paddymap/internal/engine"
	"github.com/chrissnell/paddymap/internal/engine/remote"
	"github.com/chrissnell/paddymap/internal/pipeline"
	"github.com/chrissnell/paddymap/internal/runs"
	"github.com/chrissnell/paddymap/internal/speckle"
	"github.com/chrissnell/paddymap/internal/storage/results"
	"github.com/chrissnell/paddymap/pkg/config"
	"go.uber.org/zap"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// Services are the wired collaborators of the application.
type Services struct {
	Config *config.ConfigData
	// Local is the in-process engine. Engine is Local with the configured
	// (possibly remote) reducer in front of its region reductions.
	Local   *engine.Local
	Engine  engine.Engine
	Assets  *assets.Store
	Cache   *cache.Cache
	Results *results.Store
	Runner  *pipeline.Runner
}

// PipelineConfig converts the pipeline section of the configuration.
func PipelineConfig(p config.PipelineData) pipeline.Config {
	return pipeline.Config{
		Speckle: speckle.Params{Radius: p.SpeckleRadius, ENL: p.ENL},
		Cleanup: classify.CleanupParams{
			ExcludedLandCover: p.ExcludedLandCover,
			KernelRadius:      p.KernelRadius,
			MinObjectAreaM2:   p.MinObjectAreaM2,
			EightConnected:    p.EightConnected,
		},
		RoadBufferM: p.RoadBufferM,
		SeasonStart: p.SeasonStartMonth,
	}
}

// AssetPaths converts the assets section of the configuration.
func AssetPaths(a config.AssetsData) assets.Paths {
	return assets.Paths{
		AOIs:      a.AOIs,
		Points:    a.Points,
		Roads:     a.Roads,
		Water:     a.Water,
		LandCover: a.LandCover,
		Scenes:    a.Scenes,
	}
}

// NewEngine builds the local engine and the reducer the pipeline uses: the
// local engine itself, or a remote worker when one is configured, behind a
// retry budget either way.
func NewEngine(ec config.EngineData, logger *zap.SugaredLogger) (*engine.Local, engine.Engine) {
	local := engine.NewLocal(engine.LocalConfig{Workers: ec.Workers, TileRows: ec.TileRows}, logger.Named("engine"))

	var reducer engine.Reducer = local
	if ec.RemoteReducerURL != "" {
		logger.Infof("region reductions go to %s", ec.RemoteReducerURL)
		reducer = remote.NewClient(ec.RemoteReducerURL, remote.ClientConfig{
			RetryMax: 1,
			Timeout:  ec.ReduceTimeout,
		}, logger.Named("reducer"))
	}
	reducer = engine.NewRetrying(reducer, engine.RetryPolicy{
		Timeout:    ec.ReduceTimeout,
		MaxRetries: ec.ReduceRetries,
		Backoff:    ec.ReduceBackoff,
	}, logger.Named("retry"))

	return local, engine.WithReducer(local, reducer)
}

// Build loads the configuration and wires every service. Callers must Close
// the result.
func (a *App) Build() (*Services, error) {
	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}

	s := &Services{Config: cfg}
	s.Local, s.Engine = NewEngine(cfg.Engine, a.logger)
	s.Assets = assets.NewStore(AssetPaths(cfg.Assets), a.logger.Named("assets"))

	if s.Cache, err = cache.Open(cfg.Storage.Cache, a.logger.Named("cache")); err != nil {
		return nil, err
	}

	if cfg.Storage.Results != "" {
		if s.Results, err = results.Connect(cfg.Storage.Results, a.logger.Named("results")); err != nil {
			s.Close()
			return nil, err
		}
	}

	if s.Runner, err = pipeline.NewRunner(s.Engine, s.Assets, s.Cache, PipelineConfig(cfg.Pipeline), a.logger.Named("pipeline")); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the cache and the result store.
func (s *Services) Close() {
	if s.Cache != nil {
		s.Cache.Close()
	}
	if s.Results != nil {
		s.Results.Close()
	}
}

// Run serves the REST API and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	svc, err := a.Build()
	if err != nil {
		return err
	}
	defer svc.Close()

	opts := restserver.Options{
		Runner:   svc.Runner,
		AOIs:     svc.Assets.AOINames(),
		Registry: runs.NewRegistry(),
	}
	if svc.Results != nil {
		opts.Results = svc.Results
	}
	// Only a node that reduces locally may serve as a worker for others.
	if svc.Config.Engine.RemoteReducerURL == "" {
		opts.Reducer = svc.Local
	}

	ctrl, err := restserver.NewController(ctx, &wg, svc.Config.REST, opts, a.logger.Named("rest"))
	if err != nil {
		return err
	}
	if err := ctrl.StartController(); err != nil {
		return err
	}

	a.logger.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	select {
	case <-sigs:
		a.logger.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	a.logger.Info("waiting for running pipelines and the server to terminate...")
	wg.Wait()
	a.logger.Info("shutdown complete")

	return nil
}
