package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/chrissnell/paddymap/internal/app"
	"github.com/chrissnell/paddymap/internal/classify"
	"github.com/chrissnell/paddymap/internal/log"
	"github.com/chrissnell/paddymap/internal/pipeline"
	"github.com/chrissnell/paddymap/internal/raster"
	"github.com/chrissnell/paddymap/internal/runs"
	"github.com/chrissnell/paddymap/internal/storage/results"
	"github.com/chrissnell/paddymap/internal/threshold"
	"github.com/chrissnell/paddymap/pkg/config"
	"github.com/google/uuid"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [flags] <command> [command flags]

Commands:
  serve   run the REST API
  run     execute one mapping run and write its layers
  check   validate the configuration and index the scene catalog

Flags:
`, filepath.Base(os.Args[0]))
	flag.PrintDefaults()
}

func main() {
	cfgFile := flag.String("config", "paddymap.yaml", "Path to the YAML configuration file")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("paddymap %s\n", version)
		os.Exit(0)
	}
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	// Set up logging
	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	filename, _ := filepath.Abs(*cfgFile)
	log.Debugf("using configuration %s", filename)
	application := app.New(config.NewYAMLProvider(filename), log.GetSugaredLogger())

	var err error
	switch cmd, args := flag.Arg(0), flag.Args()[1:]; cmd {
	case "serve":
		err = application.Run(context.Background())
	case "run":
		err = runOnce(application, args)
	case "check":
		err = check(application)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

// runSummary is what the run command prints.
type runSummary struct {
	RunID              string                       `json:"run_id"`
	CacheKey           string                       `json:"cache_key"`
	CacheHit           bool                         `json:"cache_hit"`
	Scenes             int                          `json:"scenes"`
	Composites         int                          `json:"composites"`
	NoClassifiedPixels bool                         `json:"no_classified_pixels"`
	Statistics         *pipeline.SeasonalStatistics `json:"statistics,omitempty"`
	Seasonal           *threshold.Seasonal          `json:"seasonal_thresholds,omitempty"`
	Monitoring         *threshold.Monitoring        `json:"monitoring_thresholds,omitempty"`
	Layers             map[string]string            `json:"layers,omitempty"`
}

func runOnce(application *app.App, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	aoi := fs.String("aoi", "", "Name of the configured AOI to map")
	start := fs.String("start", "", "First day of the analysis (YYYY-MM-DD)")
	end := fs.String("end", "", "Last day of the analysis (YYYY-MM-DD)")
	variant := fs.String("variant", string(classify.VariantSeasonal), "Classifier: seasonal or monitoring")
	onset := fs.String("onset", "", "Seasonal onset anchor (YYYY-MM-DD)")
	peak := fs.String("peak", "", "Seasonal peak anchor (YYYY-MM-DD)")
	harvest := fs.String("harvest", "", "Seasonal harvest anchor (YYYY-MM-DD)")
	out := fs.String("out", "", "Directory to write the output layers to")
	fs.Parse(args)

	req, err := buildRequest(*aoi, *start, *end, *variant, *onset, *peak, *harvest)
	if err != nil {
		return err
	}

	svc, err := application.Build()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	started := time.Now()
	res, runErr := svc.Runner.Run(ctx, req, func(stage string) {
		log.Infow("stage started", "run", runID, "stage", stage)
	})

	if svc.Results != nil {
		if err := persist(ctx, svc.Results, runID, req, res, runErr); err != nil {
			log.Errorw("could not persist run", "run", runID, "error", err)
		}
	}
	if runErr != nil {
		return runErr
	}
	log.Infof("run %s finished in %v", runID, time.Since(started).Round(time.Millisecond))

	summary := runSummary{
		RunID:              runID,
		CacheKey:           res.CacheKey,
		CacheHit:           res.CacheHit,
		Scenes:             res.Scenes,
		Composites:         len(res.Composites),
		NoClassifiedPixels: res.NoClassifiedPixels,
		Statistics:         res.SeasonalStatistics(),
		Seasonal:           res.Seasonal,
		Monitoring:         res.Monitoring,
	}
	if *out != "" {
		if summary.Layers, err = writeLayers(res, *out); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func buildRequest(aoi, start, end, variant, onset, peak, harvest string) (pipeline.Request, error) {
	var req pipeline.Request
	var err error

	day := func(name, s string) (time.Time, error) {
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return t, fmt.Errorf("-%s: expected YYYY-MM-DD, got %q", name, s)
		}
		return t, nil
	}

	req.AOI = aoi
	if req.Start, err = day("start", start); err != nil {
		return req, err
	}
	if req.End, err = day("end", end); err != nil {
		return req, err
	}
	if req.Variant, err = classify.ParseVariant(variant); err != nil {
		return req, err
	}
	if req.Variant == classify.VariantSeasonal {
		if req.Anchors.Onset, err = day("onset", onset); err != nil {
			return req, err
		}
		if req.Anchors.Peak, err = day("peak", peak); err != nil {
			return req, err
		}
		if req.Anchors.Harvest, err = day("harvest", harvest); err != nil {
			return req, err
		}
	}
	return req, req.Validate()
}

// writeLayers stores every layer of res under dir and returns the file of
// each layer.
func writeLayers(res *pipeline.Result, dir string) (map[string]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	files := make(map[string]string)
	for _, name := range pipeline.LayerNames() {
		layer, err := res.Layer(name)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, name+".raster")
		if err := raster.WriteRaster(path, layer); err != nil {
			return nil, fmt.Errorf("writing layer %s: %w", name, err)
		}
		files[name] = path
	}
	return files, nil
}

func persist(ctx context.Context, store *results.Store, runID string, req pipeline.Request, res *pipeline.Result, runErr error) error {
	finished := time.Now()
	run := &results.Run{
		RunID:      runID,
		AOI:        req.AOI,
		Variant:    string(req.Variant),
		StartDate:  req.Start,
		EndDate:    req.End,
		Status:     runs.StatusSucceeded,
		FinishedAt: &finished,
	}
	if runErr != nil {
		run.Status = runs.StatusFailed
		run.Error = runErr.Error()
		return store.SaveRun(ctx, run, nil, config.DefaultSeasonStartMonth)
	}

	run.CacheKey = res.CacheKey
	run.Composites = len(res.Composites)
	if res.Statistics != nil {
		run.TotalHa = res.Statistics.TotalHa
	}
	return store.SaveRun(ctx, run, res.Statistics, res.SeasonStart)
}

// check validates the configuration and reads the header of every scene.
func check(application *app.App) error {
	svc, err := application.Build()
	if err != nil {
		return err
	}
	defer svc.Close()

	fmt.Printf("AOIs: %v\n", svc.Assets.AOINames())
	for _, name := range svc.Assets.AOINames() {
		aoi, err := svc.Assets.AOI(name)
		if err != nil {
			return err
		}
		fmt.Printf("  %s: %d polygons, bound %v\n", name, len(aoi), aoi.Bound())
	}

	points, err := svc.Assets.Points()
	if err != nil {
		return err
	}
	fmt.Printf("Sample points: %d\n", len(points))

	catalog, err := svc.Assets.Catalog()
	if err != nil {
		return err
	}
	fmt.Printf("Scenes indexed: %d\n", catalog.Len())
	if catalog.Len() == 0 {
		log.Warnf("no scenes found under %s", svc.Config.Assets.Scenes)
	}
	fmt.Println("Configuration OK")
	return nil
}
