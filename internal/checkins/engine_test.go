package checkins_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/monocle-dev/crons/internal/checkins"
	"github.com/monocle-dev/crons/internal/models"
	"github.com/monocle-dev/crons/internal/test"
	"github.com/monocle-dev/crons/internal/types"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func hourlyMonitor(t *testing.T, id uint, threshold int) models.Monitor {
	t.Helper()

	cfg, err := json.Marshal(types.MonitorConfig{
		ScheduleType:     types.ScheduleInterval,
		Interval:         &types.IntervalConfig{Value: 1, Unit: "hour"},
		FailureThreshold: threshold,
	})
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}

	return models.Monitor{
		BaseModel: models.BaseModel{ID: id},
		ProjectID: 7,
		Name:      "nightly-backup",
		Status:    types.MonitorStatusActive,
		Config:    cfg,
	}
}

// fixedClock returns the given times in order, repeating the last one.
type fixedClock struct {
	mu    sync.Mutex
	times []time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.times[0]
	if len(c.times) > 1 {
		c.times = c.times[1:]
	}
	return now
}

func clockAt(times ...time.Time) checkins.Option {
	c := &fixedClock{times: times}
	return checkins.WithClock(c.Now)
}

func timePtr(v time.Time) *time.Time { return &v }

func intPtr(v int) *int { return &v }

func TestRecordCheckIn_FirstOK(t *testing.T) {
	store := test.NewMemStore()
	monitor := hourlyMonitor(t, 1, 0)
	store.AddMonitor(monitor)

	engine := checkins.NewEngine(store, clockAt(t0.Add(90*time.Second)))

	checkin, err := engine.RecordCheckIn(context.Background(), &monitor, 7, checkins.Report{
		Status:   types.CheckInOK,
		Duration: intPtr(500),
	})
	if err != nil {
		t.Fatalf("RecordCheckIn: %v", err)
	}

	if checkin.ID == 0 || checkin.Status != types.CheckInOK || *checkin.Duration != 500 || checkin.ProjectID != 7 {
		t.Fatalf("checkin = %+v", checkin)
	}

	got := store.Monitor(1)
	if got.Status != types.MonitorStatusOK {
		t.Errorf("Status = %q, want ok", got.Status)
	}
	if !got.LastCheckin.Equal(checkin.DateAdded) {
		t.Errorf("LastCheckin = %v, want %v", got.LastCheckin, checkin.DateAdded)
	}
	if want := t0.Add(time.Minute + time.Hour); !got.NextCheckin.Equal(want) {
		t.Errorf("NextCheckin = %v, want %v", got.NextCheckin, want)
	}
}

func TestRecordCheckIn_LateArrivalDoesNotRegress(t *testing.T) {
	store := test.NewMemStore()
	monitor := hourlyMonitor(t, 1, 0)
	monitor.Status = types.MonitorStatusError
	monitor.LastCheckin = timePtr(t0)
	monitor.NextCheckin = timePtr(t0.Add(time.Hour))
	store.AddMonitor(monitor)

	engine := checkins.NewEngine(store, clockAt(t0.Add(-time.Minute)))

	checkin, err := engine.RecordCheckIn(context.Background(), &monitor, 7, checkins.Report{Status: types.CheckInOK})
	if err != nil {
		t.Fatalf("RecordCheckIn: %v", err)
	}
	if checkin == nil {
		t.Fatal("expected a check-in to be recorded")
	}

	got := store.Monitor(1)
	if !got.LastCheckin.Equal(t0) || !got.NextCheckin.Equal(t0.Add(time.Hour)) || got.Status != types.MonitorStatusError {
		t.Fatalf("monitor changed by stale check-in: %+v", got)
	}
	if n := len(store.CheckIns()); n != 1 {
		t.Fatalf("check-ins = %d, want 1", n)
	}
}

func TestRecordCheckIn_EqualTimestampApplies(t *testing.T) {
	store := test.NewMemStore()
	monitor := hourlyMonitor(t, 1, 0)
	monitor.LastCheckin = timePtr(t0)
	store.AddMonitor(monitor)

	engine := checkins.NewEngine(store, clockAt(t0))

	if _, err := engine.RecordCheckIn(context.Background(), &monitor, 7, checkins.Report{Status: types.CheckInOK}); err != nil {
		t.Fatalf("RecordCheckIn: %v", err)
	}

	if got := store.Monitor(1); got.Status != types.MonitorStatusOK {
		t.Fatalf("Status = %q, want ok", got.Status)
	}
}

func TestRecordCheckIn_InProgressKeepsStatus(t *testing.T) {
	store := test.NewMemStore()
	monitor := hourlyMonitor(t, 1, 0)
	monitor.Status = types.MonitorStatusError
	store.AddMonitor(monitor)

	engine := checkins.NewEngine(store, clockAt(t0))

	if _, err := engine.RecordCheckIn(context.Background(), &monitor, 7, checkins.Report{Status: types.CheckInInProgress}); err != nil {
		t.Fatalf("RecordCheckIn: %v", err)
	}

	got := store.Monitor(1)
	if got.Status != types.MonitorStatusError {
		t.Errorf("Status = %q, want error", got.Status)
	}
	if got.LastCheckin == nil || !got.LastCheckin.Equal(t0) {
		t.Errorf("LastCheckin = %v, want %v", got.LastCheckin, t0)
	}
	if got.NextCheckin == nil || !got.NextCheckin.Equal(t0.Add(time.Hour)) {
		t.Errorf("NextCheckin = %v, want %v", got.NextCheckin, t0.Add(time.Hour))
	}
}

func TestRecordCheckIn_DisabledMonitorUntouched(t *testing.T) {
	store := test.NewMemStore()
	monitor := hourlyMonitor(t, 1, 0)
	monitor.Status = types.MonitorStatusDisabled
	store.AddMonitor(monitor)

	engine := checkins.NewEngine(store, clockAt(t0))

	for _, status := range []types.CheckInStatus{types.CheckInOK, types.CheckInError} {
		if _, err := engine.RecordCheckIn(context.Background(), &monitor, 7, checkins.Report{Status: status}); err != nil {
			t.Fatalf("RecordCheckIn(%s): %v", status, err)
		}
	}

	got := store.Monitor(1)
	if got.Status != types.MonitorStatusDisabled || got.LastCheckin != nil {
		t.Fatalf("disabled monitor changed: %+v", got)
	}
	if n := len(store.CheckIns()); n != 2 {
		t.Fatalf("check-ins = %d, want 2", n)
	}
}

func TestRecordCheckIn_Error(t *testing.T) {
	t.Run("flips with default threshold", func(t *testing.T) {
		store := test.NewMemStore()
		monitor := hourlyMonitor(t, 1, 0)
		monitor.Status = types.MonitorStatusOK
		store.AddMonitor(monitor)

		engine := checkins.NewEngine(store, clockAt(t0))

		if _, err := engine.RecordCheckIn(context.Background(), &monitor, 7, checkins.Report{Status: types.CheckInError}); err != nil {
			t.Fatalf("RecordCheckIn: %v", err)
		}

		got := store.Monitor(1)
		if got.Status != types.MonitorStatusError || !got.LastCheckin.Equal(t0) || !got.NextCheckin.Equal(t0.Add(time.Hour)) {
			t.Fatalf("monitor = %+v", got)
		}
	})

	t.Run("threshold not reached leaves monitor alone", func(t *testing.T) {
		store := test.NewMemStore()
		monitor := hourlyMonitor(t, 1, 3)
		monitor.Status = types.MonitorStatusOK
		store.AddMonitor(monitor)

		engine := checkins.NewEngine(store, clockAt(t0))

		checkin, err := engine.RecordCheckIn(context.Background(), &monitor, 7, checkins.Report{Status: types.CheckInError})
		if err != nil {
			t.Fatalf("RecordCheckIn: %v", err)
		}
		if checkin.Status != types.CheckInError {
			t.Fatalf("checkin status = %q", checkin.Status)
		}

		got := store.Monitor(1)
		if got.Status != types.MonitorStatusOK || got.LastCheckin != nil || got.NextCheckin != nil {
			t.Fatalf("monitor changed: %+v", got)
		}
	})

	t.Run("threshold reached by consecutive failures", func(t *testing.T) {
		store := test.NewMemStore()
		monitor := hourlyMonitor(t, 1, 2)
		monitor.Status = types.MonitorStatusOK
		store.AddMonitor(monitor)

		engine := checkins.NewEngine(store, clockAt(t0, t0.Add(time.Minute), t0.Add(2*time.Minute)))
		ctx := context.Background()

		for _, status := range []types.CheckInStatus{types.CheckInError, types.CheckInOK, types.CheckInError} {
			if _, err := engine.RecordCheckIn(ctx, &monitor, 7, checkins.Report{Status: status}); err != nil {
				t.Fatalf("RecordCheckIn: %v", err)
			}
		}
		if got := store.Monitor(1); got.Status != types.MonitorStatusOK {
			t.Fatalf("interleaved ok should reset the run, status = %q", got.Status)
		}

		engine = checkins.NewEngine(store, clockAt(t0.Add(3*time.Minute)))
		if _, err := engine.RecordCheckIn(ctx, &monitor, 7, checkins.Report{Status: types.CheckInError}); err != nil {
			t.Fatalf("RecordCheckIn: %v", err)
		}
		if got := store.Monitor(1); got.Status != types.MonitorStatusError {
			t.Fatalf("Status = %q, want error", got.Status)
		}
	})

	t.Run("stale failure does not regress", func(t *testing.T) {
		store := test.NewMemStore()
		monitor := hourlyMonitor(t, 1, 0)
		monitor.Status = types.MonitorStatusOK
		monitor.LastCheckin = timePtr(t0)
		store.AddMonitor(monitor)

		engine := checkins.NewEngine(store, clockAt(t0.Add(-time.Second)))

		if _, err := engine.RecordCheckIn(context.Background(), &monitor, 7, checkins.Report{Status: types.CheckInError}); err != nil {
			t.Fatalf("RecordCheckIn: %v", err)
		}
		if got := store.Monitor(1); got.Status != types.MonitorStatusOK || !got.LastCheckin.Equal(t0) {
			t.Fatalf("monitor = %+v", got)
		}
	})
}

func TestRecordCheckIn_RollsBackOnUpdateFailure(t *testing.T) {
	store := test.NewMemStore()
	monitor := hourlyMonitor(t, 1, 0)
	store.AddMonitor(monitor)
	store.FailUpdates = errors.New("connection reset")

	engine := checkins.NewEngine(store, clockAt(t0))

	for _, status := range []types.CheckInStatus{types.CheckInOK, types.CheckInError, types.CheckInInProgress} {
		checkin, err := engine.RecordCheckIn(context.Background(), &monitor, 7, checkins.Report{Status: status})

		var perr *checkins.PersistenceError
		if !errors.As(err, &perr) {
			t.Fatalf("%s: err = %v, want *PersistenceError", status, err)
		}
		if !errors.Is(err, store.FailUpdates) {
			t.Fatalf("%s: err = %v does not wrap the store error", status, err)
		}
		if checkin != nil {
			t.Fatalf("%s: got check-in %+v on failure", status, checkin)
		}
	}

	if n := len(store.CheckIns()); n != 0 {
		t.Fatalf("check-ins = %d, want 0 after rollback", n)
	}
}

func TestRecordCheckIn_CreateFailure(t *testing.T) {
	store := test.NewMemStore()
	monitor := hourlyMonitor(t, 1, 0)
	store.AddMonitor(monitor)
	store.FailCreates = errors.New("disk full")

	engine := checkins.NewEngine(store, clockAt(t0))

	_, err := engine.RecordCheckIn(context.Background(), &monitor, 7, checkins.Report{Status: types.CheckInOK})

	var perr *checkins.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *PersistenceError", err)
	}
	if got := store.Monitor(1); got.LastCheckin != nil {
		t.Fatalf("monitor changed: %+v", got)
	}
}

func TestRecordCheckIn_ConcurrentArrivalsResolveByTimestamp(t *testing.T) {
	const n = 50

	store := test.NewMemStore()
	monitor := hourlyMonitor(t, 1, 0)
	store.AddMonitor(monitor)

	times := make([]time.Time, n)
	for i := range times {
		times[i] = t0.Add(time.Duration(i) * time.Second)
	}
	latest := times[n-1]
	rand.New(rand.NewSource(1)).Shuffle(n, func(i, j int) { times[i], times[j] = times[j], times[i] })

	engine := checkins.NewEngine(store, clockAt(times...))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			status := types.CheckInOK
			if i%2 == 0 {
				status = types.CheckInInProgress
			}
			if _, err := engine.RecordCheckIn(context.Background(), &monitor, 7, checkins.Report{Status: status}); err != nil {
				t.Errorf("RecordCheckIn: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got := store.Monitor(1)
	if !got.LastCheckin.Equal(latest) {
		t.Fatalf("LastCheckin = %v, want %v", got.LastCheckin, latest)
	}
	if !got.NextCheckin.Equal(latest.Truncate(time.Minute).Add(time.Hour)) {
		t.Fatalf("NextCheckin = %v", got.NextCheckin)
	}
	if len(store.CheckIns()) != n {
		t.Fatalf("check-ins = %d, want %d", len(store.CheckIns()), n)
	}
}

func TestRecordCheckIn_NeverRewritesRecordedCheckIns(t *testing.T) {
	store := test.NewMemStore()
	monitor := hourlyMonitor(t, 1, 0)
	store.AddMonitor(monitor)

	engine := checkins.NewEngine(store, clockAt(t0, t0.Add(-time.Hour), t0.Add(time.Hour)))
	ctx := context.Background()

	var seen []models.MonitorCheckIn
	for _, status := range []types.CheckInStatus{types.CheckInOK, types.CheckInError, types.CheckInInProgress} {
		if _, err := engine.RecordCheckIn(ctx, &monitor, 7, checkins.Report{Status: status}); err != nil {
			t.Fatalf("RecordCheckIn: %v", err)
		}

		current := store.CheckIns()
		if len(current) != len(seen)+1 {
			t.Fatalf("check-ins = %d, want %d", len(current), len(seen)+1)
		}
		for i := range seen {
			if current[i].GUID != seen[i].GUID || current[i].Status != seen[i].Status || !current[i].DateAdded.Equal(seen[i].DateAdded) {
				t.Fatalf("check-in %d changed: %+v -> %+v", i, seen[i], current[i])
			}
		}
		seen = current
	}
}

func TestRecordMissed(t *testing.T) {
	t.Run("marks failed and keeps last check-in", func(t *testing.T) {
		store := test.NewMemStore()
		monitor := hourlyMonitor(t, 1, 0)
		monitor.Status = types.MonitorStatusOK
		monitor.LastCheckin = timePtr(t0)
		monitor.NextCheckin = timePtr(t0.Add(time.Hour))
		store.AddMonitor(monitor)

		now := t0.Add(2 * time.Hour)
		engine := checkins.NewEngine(store, clockAt(now))

		checkin, err := engine.RecordMissed(context.Background(), &monitor)
		if err != nil {
			t.Fatalf("RecordMissed: %v", err)
		}
		if checkin.Status != types.CheckInMissed {
			t.Fatalf("status = %q, want missed", checkin.Status)
		}

		got := store.Monitor(1)
		if got.Status != types.MonitorStatusError || !got.LastCheckin.Equal(t0) || !got.NextCheckin.Equal(now.Add(time.Hour)) {
			t.Fatalf("monitor = %+v", got)
		}
	})

	t.Run("advances deadline when escalation is withheld", func(t *testing.T) {
		store := test.NewMemStore()
		monitor := hourlyMonitor(t, 1, 5)
		monitor.Status = types.MonitorStatusOK
		monitor.LastCheckin = timePtr(t0)
		monitor.NextCheckin = timePtr(t0.Add(time.Hour))
		store.AddMonitor(monitor)

		now := t0.Add(2 * time.Hour)
		engine := checkins.NewEngine(store, clockAt(now))

		if _, err := engine.RecordMissed(context.Background(), &monitor); err != nil {
			t.Fatalf("RecordMissed: %v", err)
		}

		got := store.Monitor(1)
		if got.Status != types.MonitorStatusOK || !got.NextCheckin.Equal(now.Add(time.Hour)) {
			t.Fatalf("monitor = %+v", got)
		}
	})

	t.Run("stale sweep leaves a rescheduled monitor alone", func(t *testing.T) {
		store := test.NewMemStore()
		stale := hourlyMonitor(t, 1, 0)
		stale.Status = types.MonitorStatusOK
		stale.NextCheckin = timePtr(t0.Add(time.Hour))

		fresh := stale
		fresh.LastCheckin = timePtr(t0.Add(61 * time.Minute))
		fresh.NextCheckin = timePtr(t0.Add(2 * time.Hour))
		store.AddMonitor(fresh)

		engine := checkins.NewEngine(store, clockAt(t0.Add(90*time.Minute)))

		checkin, err := engine.RecordMissed(context.Background(), &stale)
		if err != nil {
			t.Fatalf("RecordMissed: %v", err)
		}
		if checkin != nil {
			t.Fatalf("checkin = %+v, want nil", checkin)
		}

		got := store.Monitor(1)
		if got.Status != types.MonitorStatusOK || !got.NextCheckin.Equal(t0.Add(2*time.Hour)) {
			t.Fatalf("monitor = %+v", got)
		}
		if n := len(store.CheckIns()); n != 0 {
			t.Fatalf("check-ins = %d, want 0", n)
		}
	})
}

func TestRecordCheckIn_InvalidSchedule(t *testing.T) {
	store := test.NewMemStore()
	monitor := hourlyMonitor(t, 1, 0)
	monitor.Config = []byte(`{"schedule_type":"never"}`)
	store.AddMonitor(monitor)

	engine := checkins.NewEngine(store, clockAt(t0))

	if _, err := engine.RecordCheckIn(context.Background(), &monitor, 7, checkins.Report{Status: types.CheckInOK}); err == nil {
		t.Fatal("expected schedule error")
	}
	if n := len(store.CheckIns()); n != 0 {
		t.Fatalf("check-ins = %d, want 0", n)
	}
}

func TestRecordMissed_StaleSweepDoesNotCountTowardsThreshold(t *testing.T) {
	store := test.NewMemStore()
	monitor := hourlyMonitor(t, 1, 2)
	monitor.Status = types.MonitorStatusOK
	monitor.LastCheckin = timePtr(t0.Add(-time.Hour))
	monitor.NextCheckin = timePtr(t0)
	store.AddMonitor(monitor)

	// The sweeper read the row before the job reported.
	snapshot := store.Monitor(1)

	var now time.Time
	engine := checkins.NewEngine(store, checkins.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	now = t0.Add(5 * time.Minute)
	current := store.Monitor(1)
	if _, err := engine.RecordCheckIn(ctx, &current, 7, checkins.Report{Status: types.CheckInOK}); err != nil {
		t.Fatalf("RecordCheckIn ok: %v", err)
	}

	now = t0.Add(5*time.Minute + time.Second)
	checkin, err := engine.RecordMissed(ctx, &snapshot)
	if err != nil {
		t.Fatalf("RecordMissed: %v", err)
	}
	if checkin != nil {
		t.Fatalf("stale sweep recorded %+v", checkin)
	}

	now = t0.Add(10 * time.Minute)
	current = store.Monitor(1)
	if _, err := engine.RecordCheckIn(ctx, &current, 7, checkins.Report{Status: types.CheckInError}); err != nil {
		t.Fatalf("RecordCheckIn error: %v", err)
	}

	if got := store.Monitor(1); got.Status != types.MonitorStatusOK {
		t.Fatalf("status = %q after one failure with threshold 2", got.Status)
	}

	for _, c := range store.CheckIns() {
		if c.Status == types.CheckInMissed {
			t.Fatalf("unexpected missed check-in %+v", c)
		}
	}
}
