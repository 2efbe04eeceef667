// Package threshold derives the per-run classification thresholds from
// point samples taken at the growth-stage anchor dates.
package threshold

import (
	"errors"
	"fmt"
	"time"

	"github.com/chrissnell/paddymap/internal/quantile"
	"github.com/chrissnell/paddymap/internal/sampling"
	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientStageData is returned when no sample was recorded at a stage
// anchor date. Classification cannot proceed without it.
var ErrInsufficientStageData = errors.New("insufficient sample data for growth stage")

// Stage names a growth-stage anchor.
type Stage string

const (
	StageOnset   Stage = "onset"
	StagePeak    Stage = "peak"
	StageHarvest Stage = "harvest"
	StageStart   Stage = "start"
)

// stageSummary is the quartile and mean of the values at one anchor.
type stageSummary struct {
	values []float64
	mean   float64
}

func summarize(samples sampling.Series, stage Stage, at time.Time) (stageSummary, error) {
	values := samples.At(at)
	if len(values) == 0 {
		return stageSummary{}, fmt.Errorf("%w: no %s samples on %s", ErrInsufficientStageData, stage, at.Format(time.DateOnly))
	}
	return stageSummary{values: values, mean: stat.Mean(values, nil)}, nil
}

func (s stageSummary) quantile(p float64) float64 {
	return quantile.Of(s.values, p)
}

// SeasonalAnchors are the user-declared stage dates of a seasonal run.
type SeasonalAnchors struct {
	Onset   time.Time `json:"onset" msgpack:"onset"`
	Peak    time.Time `json:"peak" msgpack:"peak"`
	Harvest time.Time `json:"harvest" msgpack:"harvest"`
}

// Validate requires onset < peak < harvest.
func (a SeasonalAnchors) Validate() error {
	if !a.Onset.Before(a.Peak) || !a.Peak.Before(a.Harvest) {
		return fmt.Errorf("anchors must satisfy onset < peak < harvest, got %s, %s, %s",
			a.Onset.Format(time.DateOnly), a.Peak.Format(time.DateOnly), a.Harvest.Format(time.DateOnly))
	}
	return nil
}

// Seasonal holds the thresholds of a seasonal run.
type Seasonal struct {
	Q3Onset         float64 `json:"q3_onset" msgpack:"q3_onset"`
	Q1Peak          float64 `json:"q1_peak" msgpack:"q1_peak"`
	MeanOnset       float64 `json:"mean_onset" msgpack:"mean_onset"`
	MeanPeak        float64 `json:"mean_peak" msgpack:"mean_peak"`
	MeanHarvest     float64 `json:"mean_harvest" msgpack:"mean_harvest"`
	DiffOnsetPeak   float64 `json:"diff_onset_peak" msgpack:"diff_onset_peak"`
	DiffPeakHarvest float64 `json:"diff_peak_harvest" msgpack:"diff_peak_harvest"`
}

// EstimateSeasonal computes seasonal thresholds from the samples recorded
// exactly on the anchor dates.
func EstimateSeasonal(samples sampling.Series, a SeasonalAnchors) (*Seasonal, error) {
	onset, err := summarize(samples, StageOnset, a.Onset)
	if err != nil {
		return nil, err
	}
	peak, err := summarize(samples, StagePeak, a.Peak)
	if err != nil {
		return nil, err
	}
	harvest, err := summarize(samples, StageHarvest, a.Harvest)
	if err != nil {
		return nil, err
	}

	return &Seasonal{
		Q3Onset:         onset.quantile(0.75),
		Q1Peak:          peak.quantile(0.25),
		MeanOnset:       onset.mean,
		MeanPeak:        peak.mean,
		MeanHarvest:     harvest.mean,
		DiffOnsetPeak:   peak.mean - onset.mean,
		DiffPeakHarvest: peak.mean - harvest.mean,
	}, nil
}

// MonitoringAnchors are the stage dates of a monitoring run. Start and Peak
// are the first and last sampled dates; SOS is detected.
type MonitoringAnchors struct {
	Start time.Time `json:"start" msgpack:"start"`
	SOS   time.Time `json:"sos" msgpack:"sos"`
	Peak  time.Time `json:"peak" msgpack:"peak"`
}

// DetectMonitoringAnchors locates the monitoring anchors on the
// median-across-points series. SOS is the first strict local minimum after
// the first date, or the first date when the series has none.
func DetectMonitoringAnchors(samples sampling.Series) (MonitoringAnchors, error) {
	series := samples.MedianSeries()
	if len(series) == 0 {
		return MonitoringAnchors{}, fmt.Errorf("%w: no samples to detect anchors from", ErrInsufficientStageData)
	}

	values := make([]float64, len(series))
	for i, p := range series {
		values[i] = p.Value
	}
	sos := 0
	if minima := LocalMinima(values); len(minima) > 0 {
		sos = minima[0]
	}

	return MonitoringAnchors{
		Start: series[0].Time,
		SOS:   series[sos].Time,
		Peak:  series[len(series)-1].Time,
	}, nil
}

// LocalMinima returns the indices of the strict interior local minima of x.
func LocalMinima(x []float64) []int {
	var idx []int
	for i := 1; i+1 < len(x); i++ {
		if x[i] < x[i-1] && x[i] < x[i+1] {
			idx = append(idx, i)
		}
	}
	return idx
}

// Monitoring holds the thresholds of a monitoring run.
type Monitoring struct {
	Anchors      MonitoringAnchors `json:"anchors" msgpack:"anchors"`
	Q3SOS        float64           `json:"q3_sos" msgpack:"q3_sos"`
	Q1Peak       float64           `json:"q1_peak" msgpack:"q1_peak"`
	MeanStart    float64           `json:"mean_start" msgpack:"mean_start"`
	MeanSOS      float64           `json:"mean_sos" msgpack:"mean_sos"`
	MeanPeak     float64           `json:"mean_peak" msgpack:"mean_peak"`
	DiffSOSPeak  float64           `json:"diff_sos_peak" msgpack:"diff_sos_peak"`
	DiffStartSOS float64           `json:"diff_start_sos" msgpack:"diff_start_sos"`
}

// EstimateMonitoring computes monitoring thresholds from the samples recorded
// exactly on the anchor dates.
func EstimateMonitoring(samples sampling.Series, a MonitoringAnchors) (*Monitoring, error) {
	start, err := summarize(samples, StageStart, a.Start)
	if err != nil {
		return nil, err
	}
	sos, err := summarize(samples, StageOnset, a.SOS)
	if err != nil {
		return nil, err
	}
	peak, err := summarize(samples, StagePeak, a.Peak)
	if err != nil {
		return nil, err
	}

	return &Monitoring{
		Anchors:      a,
		Q3SOS:        sos.quantile(0.75),
		Q1Peak:       peak.quantile(0.25),
		MeanStart:    start.mean,
		MeanSOS:      sos.mean,
		MeanPeak:     peak.mean,
		DiffSOSPeak:  peak.mean - sos.mean,
		DiffStartSOS: start.mean - sos.mean,
	}, nil
}
