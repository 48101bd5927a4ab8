// Package store implements checkins.Store on top of gorm.
package store

import (
	"context"
	"time"

	"github.com/monocle-dev/crons/internal/checkins"
	"github.com/monocle-dev/crons/internal/models"
	"github.com/monocle-dev/crons/internal/types"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Atomic(ctx context.Context, fn func(tx checkins.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func (s *Store) ListCheckIns(ctx context.Context, monitorID uint, offset, limit int) ([]models.MonitorCheckIn, error) {
	var rows []models.MonitorCheckIn

	err := s.db.WithContext(ctx).
		Where("monitor_id = ?", monitorID).
		Order("date_added DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error

	return rows, err
}

// OverdueMonitors returns up to limit monitors whose next_checkin plus
// check-in margin is before now. The margin lives in the JSON config, so
// candidates are read in pages and filtered here until limit is reached.
func (s *Store) OverdueMonitors(ctx context.Context, now time.Time, limit int) ([]models.Monitor, error) {
	var overdue []models.Monitor

	for offset := 0; len(overdue) < limit; offset += limit {
		var candidates []models.Monitor

		err := s.db.WithContext(ctx).
			Where("next_checkin IS NOT NULL AND next_checkin < ?", now).
			Where("status <> ?", types.MonitorStatusDisabled).
			Order("next_checkin").
			Order("id").
			Offset(offset).
			Limit(limit).
			Find(&candidates).Error
		if err != nil {
			return nil, err
		}

		for _, m := range candidates {
			cfg, err := m.ParseConfig()
			if err != nil {
				continue
			}
			if m.NextCheckin.Add(time.Duration(cfg.CheckinMargin) * time.Minute).Before(now) {
				overdue = append(overdue, m)
				if len(overdue) == limit {
					break
				}
			}
		}

		if len(candidates) < limit {
			break
		}
	}

	return overdue, nil
}

type gormTx struct {
	db *gorm.DB
}

func (tx *gormTx) CreateCheckIn(ctx context.Context, checkin *models.MonitorCheckIn) error {
	return tx.db.WithContext(ctx).Create(checkin).Error
}

func (tx *gormTx) UpdateMonitor(ctx context.Context, monitorID uint, guard checkins.Guard, update checkins.MonitorUpdate) (bool, error) {
	columns := update.Columns()
	if len(columns) == 0 {
		return false, nil
	}
	columns["updated_at"] = time.Now().UTC()

	query := tx.db.WithContext(ctx).Model(&models.Monitor{}).Where("id = ?", monitorID)

	if guard.NotAfter != nil {
		query = query.Where("(last_checkin IS NULL OR last_checkin <= ?)", *guard.NotAfter)
	}
	if guard.NextCheckin != nil {
		query = query.Where("next_checkin = ?", *guard.NextCheckin)
	}
	if len(guard.ExcludeStatuses) > 0 {
		query = query.Where("status NOT IN ?", guard.ExcludeStatuses)
	}

	result := query.Updates(columns)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (tx *gormTx) LatestCheckIns(ctx context.Context, monitorID uint, limit int) ([]models.MonitorCheckIn, error) {
	var rows []models.MonitorCheckIn

	err := tx.db.WithContext(ctx).
		Where("monitor_id = ?", monitorID).
		Order("date_added DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error

	return rows, err
}
