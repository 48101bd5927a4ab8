// Package test is used for unit tests
package test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/monocle-dev/crons/internal/checkins"
	"github.com/monocle-dev/crons/internal/models"
	"github.com/monocle-dev/crons/internal/types"
)

// MemStore is an in-memory checkins.Store. Atomic holds a store-wide lock and
// stages writes, discarding them when the callback fails.
type MemStore struct {
	mu       sync.Mutex
	monitors map[uint]*models.Monitor
	checkins []models.MonitorCheckIn
	nextID   uint

	// FailUpdates, when set, is returned by every Tx.UpdateMonitor call.
	FailUpdates error
	// FailCreates, when set, is returned by every Tx.CreateCheckIn call.
	FailCreates error
}

func NewMemStore() *MemStore {
	return &MemStore{monitors: make(map[uint]*models.Monitor)}
}

// AddMonitor stores a copy of monitor.
func (s *MemStore) AddMonitor(monitor models.Monitor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.monitors[monitor.ID] = &monitor
}

// Monitor returns a copy of the stored monitor.
func (s *MemStore) Monitor(id uint) models.Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()

	return *s.monitors[id]
}

// CheckIns returns every stored check-in in insertion order.
func (s *MemStore) CheckIns() []models.MonitorCheckIn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.MonitorCheckIn, len(s.checkins))
	copy(out, s.checkins)
	return out
}

func (s *MemStore) Atomic(ctx context.Context, fn func(tx checkins.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, monitors: make(map[uint]models.Monitor), nextID: s.nextID}

	if err := fn(tx); err != nil {
		return err
	}

	for id, m := range tx.monitors {
		updated := m
		s.monitors[id] = &updated
	}
	s.checkins = append(s.checkins, tx.created...)
	s.nextID = tx.nextID

	return nil
}

func (s *MemStore) ListCheckIns(ctx context.Context, monitorID uint, offset, limit int) ([]models.MonitorCheckIn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := newestFirst(filterByMonitor(s.checkins, monitorID))

	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if limit < len(rows) {
		rows = rows[:limit]
	}

	return rows, nil
}

func (s *MemStore) OverdueMonitors(ctx context.Context, now time.Time, limit int) ([]models.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Monitor

	for _, m := range s.monitors {
		if m.NextCheckin == nil || m.Status == types.MonitorStatusDisabled {
			continue
		}

		cfg, _ := m.ParseConfig()
		deadline := m.NextCheckin.Add(time.Duration(cfg.CheckinMargin) * time.Minute)

		if deadline.Before(now) {
			out = append(out, *m)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

type memTx struct {
	store    *MemStore
	monitors map[uint]models.Monitor
	created  []models.MonitorCheckIn
	nextID   uint
}

func (tx *memTx) CreateCheckIn(ctx context.Context, checkin *models.MonitorCheckIn) error {
	if tx.store.FailCreates != nil {
		return tx.store.FailCreates
	}

	tx.nextID++
	checkin.ID = tx.nextID
	tx.created = append(tx.created, *checkin)

	return nil
}

func (tx *memTx) UpdateMonitor(ctx context.Context, monitorID uint, guard checkins.Guard, update checkins.MonitorUpdate) (bool, error) {
	if tx.store.FailUpdates != nil {
		return false, tx.store.FailUpdates
	}

	m, ok := tx.monitors[monitorID]
	if !ok {
		stored, exists := tx.store.monitors[monitorID]
		if !exists {
			return false, nil
		}
		m = *stored
	}

	if !guard.Allows(&m) {
		return false, nil
	}

	update.Apply(&m)
	tx.monitors[monitorID] = m

	return true, nil
}

func (tx *memTx) LatestCheckIns(ctx context.Context, monitorID uint, limit int) ([]models.MonitorCheckIn, error) {
	all := append(filterByMonitor(tx.store.checkins, monitorID), filterByMonitor(tx.created, monitorID)...)
	rows := newestFirst(all)

	if limit < len(rows) {
		rows = rows[:limit]
	}

	return rows, nil
}

func filterByMonitor(rows []models.MonitorCheckIn, monitorID uint) []models.MonitorCheckIn {
	var out []models.MonitorCheckIn

	for _, row := range rows {
		if row.MonitorID == monitorID {
			out = append(out, row)
		}
	}

	return out
}

func newestFirst(rows []models.MonitorCheckIn) []models.MonitorCheckIn {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].DateAdded.Equal(rows[j].DateAdded) {
			return rows[i].ID > rows[j].ID
		}
		return rows[i].DateAdded.After(rows[j].DateAdded)
	})
	return rows
}
