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

// MonitoringInput is everything the monitoring classifier consumes. The
// anchors are carried by the thresholds.
type MonitoringInput struct {
	Composites raster.Series
	Dekads     []time.Time
	Thresholds *threshold.Monitoring
	Region     *raster.Mask
}

// MonitoringRule is the per-pixel monitoring predicate. Decline is measured
// from the start of the series down to the detected onset; there is no time
// pattern.
func MonitoringRule(startMax, sosMin, peakMax float64, th *threshold.Monitoring) bool {
	positiveGrowth := peakMax-sosMin > th.DiffSOSPeak/2
	negativeDecline := startMax-sosMin > th.DiffStartSOS/2
	return positiveGrowth && negativeDecline && ValuePattern(sosMin, peakMax, th.Q3SOS, th.Q1Peak)
}

// Monitoring classifies an in-progress season from detected anchors.
type Monitoring struct {
	engine engine.Engine
	logger *zap.SugaredLogger
}

// NewMonitoring returns a monitoring classifier bound to e.
func NewMonitoring(e engine.Engine, logger *zap.SugaredLogger) *Monitoring {
	return &Monitoring{engine: e, logger: logger}
}

// Classify returns the raw (uncleaned) monitoring mask.
func (c *Monitoring) Classify(ctx context.Context, in MonitoringInput) (*raster.Mask, error) {
	if in.Thresholds == nil {
		return nil, fmt.Errorf("monitoring classification requires thresholds")
	}
	a := in.Thresholds.Anchors

	startMax, err := WindowExtremum(ctx, c.engine, in.Composites, in.Dekads, a.Start, Max)
	if err != nil {
		return nil, fmt.Errorf("start window: %w", err)
	}
	sosMin, err := WindowExtremum(ctx, c.engine, in.Composites, in.Dekads, a.SOS, Min)
	if err != nil {
		return nil, fmt.Errorf("sos window: %w", err)
	}
	peakMax, err := WindowExtremum(ctx, c.engine, in.Composites, in.Dekads, a.Peak, Max)
	if err != nil {
		return nil, fmt.Errorf("peak window: %w", err)
	}

	c.logger.Debugf("monitoring anchors: start %s, sos %s, peak %s",
		a.Start.Format(time.DateOnly), a.SOS.Format(time.DateOnly), a.Peak.Format(time.DateOnly))

	th := in.Thresholds
	classified, err := engine.MapOne(ctx, c.engine, func(_ int, v []float64, ok []bool, out []float64, outOK []bool) {
		if ok[0] && ok[1] && ok[2] && MonitoringRule(v[0], v[1], v[2], th) {
			out[0], outOK[0] = 1, true
		}
	}, startMax, sosMin, peakMax)
	if err != nil {
		return nil, fmt.Errorf("applying monitoring rule: %w", err)
	}

	return clip(raster.MaskOf(classified), in.Region)
}
