package restserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chrissnell/paddymap/internal/engine"
	"github.com/chrissnell/paddymap/internal/engine/remote"
	"github.com/chrissnell/paddymap/internal/log"
	"github.com/chrissnell/paddymap/internal/pipeline"
	"github.com/chrissnell/paddymap/internal/runs"
	"github.com/chrissnell/paddymap/internal/stats"
	"github.com/chrissnell/paddymap/internal/storage/results"
	"github.com/chrissnell/paddymap/pkg/config"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Runner executes pipeline runs.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request, progress pipeline.ProgressFunc) (*pipeline.Result, error)
}

// ResultStore persists run summaries.
type ResultStore interface {
	SaveRun(ctx context.Context, run *results.Run, st *stats.Statistics, seasonStart int) error
}

// Options are the collaborators of the controller. Results and Reducer are
// optional.
type Options struct {
	Runner   Runner
	AOIs     []string
	Registry *runs.Registry
	Results  ResultStore
	// Reducer, when set, is served on /api/v1/reduce so this process can act
	// as a remote reduction worker.
	Reducer engine.Reducer
}

// Controller represents the REST server controller
type Controller struct {
	ctx        context.Context
	wg         *sync.WaitGroup
	restConfig config.RESTServerData
	Server     http.Server
	opts       Options
	logger     *zap.SugaredLogger
	handlers   *Handlers

	// results holds the latest finished results, oldest first in order.
	mu      sync.RWMutex
	results map[string]*pipeline.Result
	order   []string
}

// NewController creates a new REST server controller
func NewController(ctx context.Context, wg *sync.WaitGroup, rc config.RESTServerData, opts Options, logger *zap.SugaredLogger) (*Controller, error) {
	if opts.Runner == nil {
		return nil, fmt.Errorf("REST server needs a pipeline runner")
	}
	if opts.Registry == nil {
		opts.Registry = runs.NewRegistry()
	}

	// If a ListenAddr was not provided, listen on all interfaces
	if rc.ListenAddr == "" {
		logger.Info("rest.listen-addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		rc.ListenAddr = "0.0.0.0"
	}
	if rc.Port == 0 {
		logger.Infof("rest.port not provided; defaulting to %d", config.DefaultRESTPort)
		rc.Port = config.DefaultRESTPort
	}
	if rc.RetainedResults <= 0 {
		rc.RetainedResults = config.DefaultRetainedResults
	}

	ctrl := &Controller{
		ctx:        ctx,
		wg:         wg,
		restConfig: rc,
		opts:       opts,
		logger:     logger,
		results:    make(map[string]*pipeline.Result),
	}
	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", rc.ListenAddr, rc.Port)
	ctrl.Server.Handler = ctrl.setupRouter()

	return ctrl, nil
}

// StartController starts the REST server
func (c *Controller) StartController() error {
	c.logger.Infof("starting REST server on %s", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		if c.restConfig.Cert != "" && c.restConfig.Key != "" {
			if err := c.Server.ListenAndServeTLS(c.restConfig.Cert, c.restConfig.Key); err != http.ErrServerClosed {
				c.logger.Errorf("REST server error: %v", err)
			}
		} else {
			if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
				c.logger.Errorf("REST server error: %v", err)
			}
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("shutting down the REST server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(log.HTTPMiddleware(c.logger, "/api/v1/health"))

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", c.handlers.Health).Methods(http.MethodGet)
	api.HandleFunc("/aois", c.handlers.ListAOIs).Methods(http.MethodGet)
	api.HandleFunc("/runs", c.handlers.SubmitRun).Methods(http.MethodPost)
	api.HandleFunc("/runs", c.handlers.ListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", c.handlers.GetRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/stats", c.handlers.GetStats).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/layers", c.handlers.ListLayers).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/layers/{layer}", c.handlers.GetLayer).Methods(http.MethodGet)

	if c.opts.Reducer != nil {
		api.Handle("/reduce", remote.NewHandler(c.opts.Reducer, c.logger.Named("reduce")))
	}

	return router
}

// execute runs req in the background, tracking it under id.
func (c *Controller) execute(id string, req pipeline.Request) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		reg := c.opts.Registry
		reg.Start(id)
		res, err := c.opts.Runner.Run(c.ctx, req, func(stage string) {
			reg.Progress(id, stage)
		})
		if err != nil {
			c.logger.Errorw("run failed", "run", id, "aoi", req.AOI, "error", err)
			reg.Fail(id, err)
			c.persist(id, req, nil, err)
			return
		}

		c.keep(id, res)
		reg.Succeed(id, res.CacheHit)
		c.persist(id, req, res, nil)
		c.logger.Infow("run succeeded", "run", id, "aoi", req.AOI, "cache_hit", res.CacheHit)
	}()
}

// keep stores res under id, evicting the oldest results beyond the retention
// limit. Evicted runs stay in the registry and the result store.
func (c *Controller) keep(id string, res *pipeline.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[id] = res
	c.order = append(c.order, id)
	for len(c.order) > c.restConfig.RetainedResults {
		delete(c.results, c.order[0])
		c.order = c.order[1:]
	}
}

func (c *Controller) result(id string) (*pipeline.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.results[id]
	return res, ok
}

// persist writes the run summary to the result store, if one is configured.
func (c *Controller) persist(id string, req pipeline.Request, res *pipeline.Result, runErr error) {
	if c.opts.Results == nil {
		return
	}

	finished := time.Now()
	run := &results.Run{
		RunID:      id,
		AOI:        req.AOI,
		Variant:    string(req.Variant),
		StartDate:  req.Start,
		EndDate:    req.End,
		Status:     runs.StatusSucceeded,
		FinishedAt: &finished,
	}
	var st *stats.Statistics
	seasonStart := stats.DefaultSeasonStart
	if runErr != nil {
		run.Status = runs.StatusFailed
		run.Error = runErr.Error()
	} else {
		run.CacheKey = res.CacheKey
		run.Composites = len(res.Composites)
		seasonStart = res.SeasonStart
		if st = res.Statistics; st != nil {
			run.TotalHa = st.TotalHa
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.opts.Results.SaveRun(ctx, run, st, seasonStart); err != nil {
		c.logger.Errorf("could not persist run %s: %v", id, err)
	}
}
