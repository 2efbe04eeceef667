// Package results persists run summaries and area statistics to PostgreSQL.
package results

import (
	"context"
	"fmt"
	"time"

	"github.com/chrissnell/paddymap/internal/log"
	"github.com/chrissnell/paddymap/internal/stats"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store writes and reads run results.
type Store struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

// Connect opens the results database and migrates its schema.
func Connect(connectionString string, logger *zap.SugaredLogger) (*Store, error) {
	dbLogger := gormLogger()

	logger.Info("connecting to results database...")
	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to results database: %w", err)
	}
	s := NewStore(db, logger)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	logger.Info("results database connection successful")
	return s, nil
}

// NewStore wraps an open gorm handle.
func NewStore(db *gorm.DB, logger *zap.SugaredLogger) *Store {
	return &Store{db: db, logger: logger}
}

func gormLogger() logger.Interface {
	return logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// Migrate creates or updates the runs and run_area_stats tables.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&Run{}, &AreaStat{}); err != nil {
		return fmt.Errorf("migrating results schema: %w", err)
	}
	return nil
}

// SaveRun upserts run and replaces its area statistics with st. st may be nil
// for runs that produced no statistics.
func (s *Store) SaveRun(ctx context.Context, run *Run, st *stats.Statistics, seasonStart int) error {
	rows := AreaRows(run.RunID, st, seasonStart)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(run).Error; err != nil {
			return fmt.Errorf("saving run %s: %w", run.RunID, err)
		}
		if err := tx.Where("run_id = ?", run.RunID).Delete(&AreaStat{}).Error; err != nil {
			return fmt.Errorf("clearing area stats of run %s: %w", run.RunID, err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("saving area stats of run %s: %w", run.RunID, err)
		}
		return nil
	})
}

// GetRun returns the stored summary of a run.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error; err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}
	return &run, nil
}

// GetAreaStats returns the rows of a run for one grouping in seasonal order.
func (s *Store) GetAreaStats(ctx context.Context, runID, grouping string) ([]AreaStat, error) {
	var rows []AreaStat
	err := s.db.WithContext(ctx).
		Where("run_id = ? AND grouping = ?", runID, grouping).
		Order("position").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("loading area stats of run %s: %w", runID, err)
	}
	return rows, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AreaRows flattens st into seasonally ordered rows.
func AreaRows(runID string, st *stats.Statistics, seasonStart int) []AreaStat {
	if st == nil {
		return nil
	}
	var rows []AreaStat
	add := func(grouping string, groups []stats.Group) {
		for i, g := range groups {
			rows = append(rows, AreaStat{
				RunID:        runID,
				Grouping:     grouping,
				Position:     i,
				Key:          g.Key,
				Label:        g.Label,
				AreaHa:       g.AreaHa,
				CumulativeHa: g.CumulativeHa,
			})
		}
	}
	add(GroupingMonth, st.ByMonthSeasonal(seasonStart))
	add(GroupingMonthDay, st.ByMonthDaySeasonal(seasonStart))
	return rows
}
