package classify

import (
	"context"
	"fmt"
	"time"

	"github.com/chrissnell/paddymap/internal/engine"
	"github.com/chrissnell/paddymap/internal/raster"
	"github.com/chrissnell/paddymap/internal/threshold"
	"go.uber.org/zap"
)

// SeasonalInput is everything the seasonal classifier consumes. Composite
// values and thresholds share the fixed-point unit.
type SeasonalInput struct {
	Composites raster.Series
	Dekads     []time.Time
	Anchors    threshold.SeasonalAnchors
	Thresholds *threshold.Seasonal
	// Region limits classification to the AOI. Nil means the whole grid.
	Region *raster.Mask
}

// SeasonalRule is the per-pixel seasonal predicate.
func SeasonalRule(sosMin, peakMax, fallMin float64, th *threshold.Seasonal, timeOK bool) bool {
	positiveGrowth := peakMax-sosMin > th.DiffOnsetPeak/2
	negativeDecline := peakMax-fallMin > th.DiffPeakHarvest/2
	return positiveGrowth && negativeDecline &&
		ValuePattern(sosMin, peakMax, th.Q3Onset, th.Q1Peak) && timeOK
}

// Seasonal classifies with user-declared onset, peak and harvest dates.
type Seasonal struct {
	engine engine.Engine
	logger *zap.SugaredLogger
}

// NewSeasonal returns a seasonal classifier bound to e.
func NewSeasonal(e engine.Engine, logger *zap.SugaredLogger) *Seasonal {
	return &Seasonal{engine: e, logger: logger}
}

// Classify returns the raw (uncleaned) seasonal mask.
func (c *Seasonal) Classify(ctx context.Context, in SeasonalInput) (*raster.Mask, error) {
	if in.Thresholds == nil {
		return nil, fmt.Errorf("seasonal classification requires thresholds")
	}
	if err := in.Anchors.Validate(); err != nil {
		return nil, err
	}

	sosMin, err := WindowExtremum(ctx, c.engine, in.Composites, in.Dekads, in.Anchors.Onset, Min)
	if err != nil {
		return nil, fmt.Errorf("onset window: %w", err)
	}
	peakMax, err := WindowExtremum(ctx, c.engine, in.Composites, in.Dekads, in.Anchors.Peak, Max)
	if err != nil {
		return nil, fmt.Errorf("peak window: %w", err)
	}
	fallMin, err := WindowExtremum(ctx, c.engine, in.Composites, in.Dekads, in.Anchors.Harvest, Min)
	if err != nil {
		return nil, fmt.Errorf("harvest window: %w", err)
	}

	timeOK := TimePattern(in.Anchors.Onset, in.Anchors.Peak)
	if !timeOK {
		c.logger.Warnf("onset %s and peak %s are less than a month apart, nothing will classify",
			in.Anchors.Onset.Format(time.DateOnly), in.Anchors.Peak.Format(time.DateOnly))
	}

	th := in.Thresholds
	classified, err := engine.MapOne(ctx, c.engine, func(_ int, v []float64, ok []bool, out []float64, outOK []bool) {
		if ok[0] && ok[1] && ok[2] && SeasonalRule(v[0], v[1], v[2], th, timeOK) {
			out[0], outOK[0] = 1, true
		}
	}, sosMin, peakMax, fallMin)
	if err != nil {
		return nil, fmt.Errorf("applying seasonal rule: %w", err)
	}

	return clip(raster.MaskOf(classified), in.Region)
}

func clip(m, region *raster.Mask) (*raster.Mask, error) {
	if region == nil {
		return m, nil
	}
	return m.And(region)
}
