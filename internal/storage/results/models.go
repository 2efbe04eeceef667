package results

import (
	"time"
)

// Run is the persisted summary of one pipeline run.
type Run struct {
	RunID      string     `gorm:"primaryKey;column:run_id"`
	CacheKey   string     `gorm:"column:cache_key;index"`
	AOI        string     `gorm:"column:aoi;not null"`
	Variant    string     `gorm:"column:variant;not null"`
	StartDate  time.Time  `gorm:"column:start_date;not null"`
	EndDate    time.Time  `gorm:"column:end_date;not null"`
	Status     string     `gorm:"column:status;not null"`
	Error      string     `gorm:"column:error"`
	TotalHa    float64    `gorm:"column:total_ha"`
	Composites int        `gorm:"column:composites"`
	CreatedAt  time.Time  `gorm:"column:created_at;default:CURRENT_TIMESTAMP"`
	FinishedAt *time.Time `gorm:"column:finished_at"`
}

// TableName specifies the table name for Run
func (Run) TableName() string {
	return "runs"
}

// Grouping names for AreaStat rows.
const (
	GroupingMonth    = "month"
	GroupingMonthDay = "month_day"
)

// AreaStat is one seasonally ordered area row of a run.
type AreaStat struct {
	ID           int     `gorm:"primaryKey;autoIncrement;column:id"`
	RunID        string  `gorm:"column:run_id;not null;index"`
	Grouping     string  `gorm:"column:grouping;not null"`
	Position     int     `gorm:"column:position;not null"`
	Key          int     `gorm:"column:key;not null"`
	Label        string  `gorm:"column:label"`
	AreaHa       float64 `gorm:"column:area_ha"`
	CumulativeHa float64 `gorm:"column:cumulative_ha"`
}

// TableName specifies the table name for AreaStat
func (AreaStat) TableName() string {
	return "run_area_stats"
}
