package results

import (
	"testing"

	"github.com/chrissnell/paddymap/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAreaRows(t *testing.T) {
	st := &stats.Statistics{
		TotalHa:    3,
		ByMonth:    stats.AreaStatistic{1: 1, 10: 2},
		ByMonthDay: stats.AreaStatistic{113: 1, 1013: 1.5, 1025: 0.5},
	}

	rows := AreaRows("run-1", st, stats.DefaultSeasonStart)
	require.Len(t, rows, 5)

	var months, days []AreaStat
	for _, r := range rows {
		assert.Equal(t, "run-1", r.RunID)
		switch r.Grouping {
		case GroupingMonth:
			months = append(months, r)
		case GroupingMonthDay:
			days = append(days, r)
		}
	}

	require.Len(t, months, 2)
	assert.Equal(t, 10, months[0].Key)
	assert.Equal(t, 0, months[0].Position)
	assert.Equal(t, 1, months[1].Key)
	assert.InDelta(t, 3.0, months[1].CumulativeHa, 1e-12)

	require.Len(t, days, 3)
	assert.Equal(t, []int{1013, 1025, 113}, []int{days[0].Key, days[1].Key, days[2].Key})
	assert.Equal(t, "01-13", days[2].Label)
}

func TestAreaRowsWithoutStatistics(t *testing.T) {
	assert.Empty(t, AreaRows("run-2", nil, stats.DefaultSeasonStart))
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "runs", Run{}.TableName())
	assert.Equal(t, "run_area_stats", AreaStat{}.TableName())
}
