// Package checkins records monitor check-ins and applies the resulting
// monitor state transitions.
package checkins

import (
	"context"
	"slices"
	"time"

	"github.com/monocle-dev/crons/internal/models"
	"github.com/monocle-dev/crons/internal/types"
)

// Store is the persistence boundary of the package. Atomic runs fn inside a
// single transaction: if fn returns an error nothing it did is kept.
type Store interface {
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	ListCheckIns(ctx context.Context, monitorID uint, offset, limit int) ([]models.MonitorCheckIn, error)
	OverdueMonitors(ctx context.Context, now time.Time, limit int) ([]models.Monitor, error)
}

// Tx is the set of writes available inside Store.Atomic.
type Tx interface {
	// CreateCheckIn inserts the record and fills in its ID.
	CreateCheckIn(ctx context.Context, checkin *models.MonitorCheckIn) error
	// UpdateMonitor applies update only when guard holds for the stored row
	// and reports whether a row was changed.
	UpdateMonitor(ctx context.Context, monitorID uint, guard Guard, update MonitorUpdate) (bool, error)
	// LatestCheckIns returns up to limit check-ins, newest first.
	LatestCheckIns(ctx context.Context, monitorID uint, limit int) ([]models.MonitorCheckIn, error)
}

// Guard is the predicate of a conditional monitor update. All set
// conditions must hold.
type Guard struct {
	// NotAfter rejects rows whose last_checkin is strictly after it.
	// Rows without a last_checkin always pass.
	NotAfter *time.Time
	// NextCheckin, when set, requires next_checkin to equal it.
	NextCheckin *time.Time
	// ExcludeStatuses rejects rows in any of these statuses.
	ExcludeStatuses []types.MonitorStatus
}

// Allows evaluates the guard against an in-memory row. SQL stores translate
// the same conditions into a WHERE clause.
func (g Guard) Allows(m *models.Monitor) bool {
	if g.NotAfter != nil && m.LastCheckin != nil && m.LastCheckin.After(*g.NotAfter) {
		return false
	}

	if g.NextCheckin != nil && (m.NextCheckin == nil || !m.NextCheckin.Equal(*g.NextCheckin)) {
		return false
	}

	return !slices.Contains(g.ExcludeStatuses, m.Status)
}

// MonitorUpdate lists the fields to write. Nil fields are left untouched.
type MonitorUpdate struct {
	Status      *types.MonitorStatus
	LastCheckin *time.Time
	NextCheckin *time.Time
}

// Columns renders the update as a column map.
func (u MonitorUpdate) Columns() map[string]interface{} {
	columns := make(map[string]interface{}, 3)

	if u.Status != nil {
		columns["status"] = *u.Status
	}
	if u.LastCheckin != nil {
		columns["last_checkin"] = *u.LastCheckin
	}
	if u.NextCheckin != nil {
		columns["next_checkin"] = *u.NextCheckin
	}

	return columns
}

// Apply writes the update onto an in-memory row.
func (u MonitorUpdate) Apply(m *models.Monitor) {
	if u.Status != nil {
		m.Status = *u.Status
	}
	if u.LastCheckin != nil {
		t := *u.LastCheckin
		m.LastCheckin = &t
	}
	if u.NextCheckin != nil {
		t := *u.NextCheckin
		m.NextCheckin = &t
	}
}
