package restserver

import (
	"fmt"
	"time"

	"github.com/chrissnell/paddymap/internal/classify"
	"github.com/chrissnell/paddymap/internal/pipeline"
	"github.com/chrissnell/paddymap/internal/runs"
	"github.com/chrissnell/paddymap/internal/threshold"
)

// AnchorsRequest carries the seasonal stage dates as YYYY-MM-DD strings.
type AnchorsRequest struct {
	Onset   string `json:"onset"`
	Peak    string `json:"peak"`
	Harvest string `json:"harvest"`
}

// RunRequest is the body of POST /api/v1/runs.
type RunRequest struct {
	AOI     string          `json:"aoi"`
	Start   string          `json:"start"`
	End     string          `json:"end"`
	Variant string          `json:"variant,omitempty"`
	Anchors *AnchorsRequest `json:"anchors,omitempty"`
}

// RunResponse describes a run and, once it has succeeded, its result.
type RunResponse struct {
	*runs.Status
	Result *pipeline.Result `json:"result,omitempty"`
}

// StatsResponse is the body of GET /api/v1/runs/{id}/stats.
type StatsResponse struct {
	NoClassifiedPixels bool `json:"no_classified_pixels"`
	*pipeline.SeasonalStatistics
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
	Runs   int    `json:"runs"`
}

func parseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: expected YYYY-MM-DD, got %q", field, s)
	}
	return t, nil
}

// toPipeline converts and validates the request.
func (r RunRequest) toPipeline() (pipeline.Request, error) {
	var req pipeline.Request
	var err error

	req.AOI = r.AOI
	if req.Start, err = parseDate("start", r.Start); err != nil {
		return req, err
	}
	if req.End, err = parseDate("end", r.End); err != nil {
		return req, err
	}

	variant := r.Variant
	if variant == "" {
		variant = string(classify.VariantSeasonal)
	}
	if req.Variant, err = classify.ParseVariant(variant); err != nil {
		return req, err
	}

	if req.Variant == classify.VariantSeasonal {
		if r.Anchors == nil {
			return req, fmt.Errorf("seasonal runs need onset, peak and harvest anchors")
		}
		var a threshold.SeasonalAnchors
		if a.Onset, err = parseDate("anchors.onset", r.Anchors.Onset); err != nil {
			return req, err
		}
		if a.Peak, err = parseDate("anchors.peak", r.Anchors.Peak); err != nil {
			return req, err
		}
		if a.Harvest, err = parseDate("anchors.harvest", r.Anchors.Harvest); err != nil {
			return req, err
		}
		req.Anchors = a
	}

	return req, req.Validate()
}
