// Package stats aggregates classified area by start month and start date.
package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/chrissnell/paddymap/internal/engine"
	"github.com/chrissnell/paddymap/internal/raster"
	"go.uber.org/zap"
)

// ErrNoClassifiedPixels is returned when the classified region is empty or
// fully masked. It is not a reduction failure.
var ErrNoClassifiedPixels = errors.New("no classified pixels")

// DefaultSeasonStart is October, the first month of the Maha cropping season.
const DefaultSeasonStart = 10

const squareMetresPerHectare = 10000

// AreaStatistic maps a grouping key (month 1-12 or MMDD) to hectares. A key
// is present only when at least one classified pixel carries it.
type AreaStatistic map[int]float64

// Keys returns the keys in ascending order.
func (a AreaStatistic) Keys() []int {
	keys := make([]int, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Statistics are the zonal area totals of one run.
type Statistics struct {
	TotalHa    float64       `json:"total_ha" msgpack:"total_ha"`
	ByMonth    AreaStatistic `json:"by_month" msgpack:"by_month"`
	ByMonthDay AreaStatistic `json:"by_month_day" msgpack:"by_month_day"`
}

// Aggregator computes Statistics through an engine's region reductions.
type Aggregator struct {
	reducer engine.Reducer
	logger  *zap.SugaredLogger
}

// NewAggregator returns an aggregator that reduces on r.
func NewAggregator(r engine.Reducer, logger *zap.SugaredLogger) *Aggregator {
	return &Aggregator{reducer: r, logger: logger}
}

// Aggregate sums the ground area of the classified pixels in total, per start
// month and per start MMDD.
func (a *Aggregator) Aggregate(ctx context.Context, mask *raster.Mask, month, monthDay *raster.Raster) (*Statistics, error) {
	area := raster.PixelAreas(mask.Grid)

	total, err := a.reducer.RegionReduce(ctx, &engine.RegionRequest{
		Kind:   engine.ReduceSum,
		Values: area,
		Region: mask,
	})
	if err != nil {
		return nil, fmt.Errorf("total area: %w", err)
	}
	if total.Count == 0 {
		return nil, ErrNoClassifiedPixels
	}

	byMonth, err := a.grouped(ctx, area, month, mask)
	if err != nil {
		return nil, fmt.Errorf("area by month: %w", err)
	}
	byMonthDay, err := a.grouped(ctx, area, monthDay, mask)
	if err != nil {
		return nil, fmt.Errorf("area by start date: %w", err)
	}

	s := &Statistics{
		TotalHa:    total.Sum / squareMetresPerHectare,
		ByMonth:    byMonth,
		ByMonthDay: byMonthDay,
	}
	a.logger.Infof("classified %.2f ha over %d pixels", s.TotalHa, total.Count)
	return s, nil
}

func (a *Aggregator) grouped(ctx context.Context, area, groups *raster.Raster, mask *raster.Mask) (AreaStatistic, error) {
	res, err := a.reducer.RegionReduce(ctx, &engine.RegionRequest{
		Kind:   engine.ReduceGroupedSum,
		Values: area,
		Groups: groups,
		Region: mask,
	})
	if err != nil {
		return nil, err
	}
	out := make(AreaStatistic, len(res.Groups))
	for k, sum := range res.Groups {
		if k == 0 {
			continue
		}
		out[int(k)] = sum / squareMetresPerHectare
	}
	return out, nil
}

// Group is one row of a seasonally ordered statistic.
type Group struct {
	Key          int     `json:"key" msgpack:"key"`
	Label        string  `json:"label" msgpack:"label"`
	AreaHa       float64 `json:"area_ha" msgpack:"area_ha"`
	CumulativeHa float64 `json:"cumulative_ha" msgpack:"cumulative_ha"`
}

// SeasonalMonthOrder lists the twelve months starting at seasonStart.
func SeasonalMonthOrder(seasonStart int) []int {
	order := make([]int, 12)
	for i := range order {
		order[i] = (seasonStart+i-1)%12 + 1
	}
	return order
}

// SeasonalDayIndex orders an MMDD key within a season starting at
// seasonStart.
func SeasonalDayIndex(mmdd, seasonStart int) int {
	month, day := mmdd/100, mmdd%100
	return ((month-seasonStart)%12+12)%12*31 + day
}

// ByMonthSeasonal orders the monthly statistic from seasonStart and adds the
// running cumulative area.
func (s *Statistics) ByMonthSeasonal(seasonStart int) []Group {
	var groups []Group
	for _, m := range SeasonalMonthOrder(seasonStart) {
		if ha, ok := s.ByMonth[m]; ok {
			groups = append(groups, Group{Key: m, Label: time.Month(m).String(), AreaHa: ha})
		}
	}
	return cumulate(groups)
}

// ByMonthDaySeasonal orders the start-date statistic from seasonStart and adds
// the running cumulative area.
func (s *Statistics) ByMonthDaySeasonal(seasonStart int) []Group {
	keys := s.ByMonthDay.Keys()
	sort.SliceStable(keys, func(i, j int) bool {
		return SeasonalDayIndex(keys[i], seasonStart) < SeasonalDayIndex(keys[j], seasonStart)
	})
	groups := make([]Group, 0, len(keys))
	for _, k := range keys {
		groups = append(groups, Group{
			Key:    k,
			Label:  fmt.Sprintf("%02d-%02d", k/100, k%100),
			AreaHa: s.ByMonthDay[k],
		})
	}
	return cumulate(groups)
}

func cumulate(groups []Group) []Group {
	var running float64
	for i := range groups {
		running += groups[i].AreaHa
		groups[i].CumulativeHa = running
	}
	return groups
}
