package pipeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/chrissnell/paddymap/internal/classify"
	"github.com/chrissnell/paddymap/internal/raster"
	"github.com/chrissnell/paddymap/internal/sampling"
	"github.com/chrissnell/paddymap/internal/stats"
	"github.com/chrissnell/paddymap/internal/threshold"
)

// Layer names exposed by a Result.
const (
	LayerRawMask       = "raw_mask"
	LayerMask          = "mask"
	LayerLongestLength = "longest_length"
	LayerStartDate     = "start_date"
	LayerStartMonth    = "start_month"
	LayerStartMonthDay = "start_month_day"
	LayerGrowingSeason = "growing_season"
)

// CompositeInfo summarizes one composite of a run.
type CompositeInfo struct {
	Dekad        time.Time `json:"dekad" msgpack:"dekad"`
	Acquisitions int       `json:"acquisitions" msgpack:"acquisitions"`
}

// Result is everything a run produces. It is what the run cache stores.
type Result struct {
	Request    Request         `json:"request" msgpack:"request"`
	CacheKey   string          `json:"cache_key" msgpack:"cache_key"`
	Scenes     int             `json:"scenes" msgpack:"scenes"`
	Dekads     []time.Time     `json:"dekads" msgpack:"dekads"`
	Composites []CompositeInfo `json:"composites" msgpack:"composites"`

	Samples     sampling.Series       `json:"samples" msgpack:"samples"`
	MeanSeries  []sampling.Aggregate  `json:"mean_series" msgpack:"mean_series"`
	Dispersions []sampling.Dispersion `json:"dispersions" msgpack:"dispersions"`

	Seasonal   *threshold.Seasonal   `json:"seasonal_thresholds,omitempty" msgpack:"seasonal_thresholds,omitempty"`
	Monitoring *threshold.Monitoring `json:"monitoring_thresholds,omitempty" msgpack:"monitoring_thresholds,omitempty"`

	RawMask    *raster.Mask         `json:"-" msgpack:"raw_mask"`
	Attributes *classify.Attributes `json:"-" msgpack:"attributes"`

	// Statistics is nil when NoClassifiedPixels is set.
	Statistics         *stats.Statistics `json:"statistics,omitempty" msgpack:"statistics,omitempty"`
	NoClassifiedPixels bool              `json:"no_classified_pixels" msgpack:"no_classified_pixels"`
	SeasonStart        int               `json:"season_start" msgpack:"season_start"`

	CacheHit bool `json:"cache_hit" msgpack:"-"`
}

// LayerNames lists the layers Layer accepts.
func LayerNames() []string {
	names := []string{
		LayerRawMask, LayerMask, LayerLongestLength, LayerStartDate,
		LayerStartMonth, LayerStartMonthDay, LayerGrowingSeason,
	}
	sort.Strings(names)
	return names
}

// Layer returns one output raster by name. Masks are returned as 1/absent
// rasters.
func (r *Result) Layer(name string) (*raster.Raster, error) {
	if r.Attributes == nil {
		return nil, fmt.Errorf("run has no layers")
	}
	a := r.Attributes
	switch name {
	case LayerRawMask:
		return r.RawMask.AsRaster(), nil
	case LayerMask:
		return a.Mask.AsRaster(), nil
	case LayerLongestLength:
		return a.LongestLength, nil
	case LayerStartDate:
		return a.StartDate, nil
	case LayerStartMonth:
		return a.StartMonth, nil
	case LayerStartMonthDay:
		return a.StartMonthDay, nil
	case LayerGrowingSeason:
		return a.GrowingSeason, nil
	}
	return nil, fmt.Errorf("unknown layer %q", name)
}

// SeasonalStatistics is the seasonally ordered presentation of the statistics.
type SeasonalStatistics struct {
	TotalHa     float64       `json:"total_ha" msgpack:"total_ha"`
	SeasonStart int           `json:"season_start" msgpack:"season_start"`
	ByMonth     []stats.Group `json:"by_month" msgpack:"by_month"`
	ByMonthDay  []stats.Group `json:"by_month_day" msgpack:"by_month_day"`
}

// SeasonalStatistics orders the statistics from the configured season start
// with cumulative sums. It returns nil when nothing was classified.
func (r *Result) SeasonalStatistics() *SeasonalStatistics {
	if r.Statistics == nil {
		return nil
	}
	return &SeasonalStatistics{
		TotalHa:     r.Statistics.TotalHa,
		SeasonStart: r.SeasonStart,
		ByMonth:     r.Statistics.ByMonthSeasonal(r.SeasonStart),
		ByMonthDay:  r.Statistics.ByMonthDaySeasonal(r.SeasonStart),
	}
}
