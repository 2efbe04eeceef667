package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/chrissnell/paddymap/internal/classify"
	"github.com/chrissnell/paddymap/internal/threshold"
)

// Request describes one run.
type Request struct {
	AOI     string                    `json:"aoi" msgpack:"aoi"`
	Start   time.Time                 `json:"start" msgpack:"start"`
	End     time.Time                 `json:"end" msgpack:"end"`
	Variant classify.Variant          `json:"variant" msgpack:"variant"`
	Anchors threshold.SeasonalAnchors `json:"anchors,omitempty" msgpack:"anchors,omitempty"`
}

// Validate checks the request before any data is read. Seasonal runs need
// onset < peak < harvest inside [Start, End]; monitoring runs detect their
// anchors and ignore any that were given.
func (r Request) Validate() error {
	if r.AOI == "" {
		return errors.New("no AOI given")
	}
	if r.Start.IsZero() || r.End.IsZero() || !r.Start.Before(r.End) {
		return fmt.Errorf("invalid date range %s..%s", r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))
	}

	switch r.Variant {
	case classify.VariantSeasonal:
		if err := r.Anchors.Validate(); err != nil {
			return err
		}
		for _, a := range []time.Time{r.Anchors.Onset, r.Anchors.Peak, r.Anchors.Harvest} {
			if a.Before(r.Start) || a.After(r.End) {
				return fmt.Errorf("anchor %s outside %s..%s", a.Format(time.DateOnly),
					r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))
			}
		}
	case classify.VariantMonitoring:
	default:
		return fmt.Errorf("unknown variant %q", r.Variant)
	}
	return nil
}

// anchorList returns the user-declared anchors that key a run.
func (r Request) anchorList() []time.Time {
	if r.Variant != classify.VariantSeasonal {
		return nil
	}
	return []time.Time{r.Anchors.Onset, r.Anchors.Peak, r.Anchors.Harvest}
}
