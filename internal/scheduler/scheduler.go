// Package scheduler periodically records missed check-ins for monitors
// whose job did not report before its deadline.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/monocle-dev/crons/internal/checkins"
	"github.com/monocle-dev/crons/internal/models"
	"go.uber.org/zap"
)

const (
	DefaultInterval  = time.Minute
	DefaultBatchSize = 100
)

// Missed is the part of the check-in engine the sweeper needs.
type Missed interface {
	RecordMissed(ctx context.Context, monitor *models.Monitor) (*models.MonitorCheckIn, error)
}

type Scheduler struct {
	engine   Missed
	store    checkins.Store
	interval time.Duration
	batch    int
	now      func() time.Time
	log      *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	running bool
}

type Option func(*Scheduler)

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.batch = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// NewScheduler initializes a new Scheduler instance
func NewScheduler(engine Missed, store checkins.Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		engine:   engine,
		store:    store,
		interval: DefaultInterval,
		batch:    DefaultBatchSize,
		now:      checkins.Now,
		log:      zap.L(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start runs a sweep immediately and then on every tick until Stop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.stopped = make(chan struct{})
	s.running = true

	s.log.Info("Starting missed check-in sweeper", zap.Duration("interval", s.interval), zap.Int("batch_size", s.batch))

	go s.run(s.ctx, s.stopped)
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	stopped := s.stopped
	s.running = false
	s.mu.Unlock()

	<-stopped
	s.log.Info("Missed check-in sweeper stopped")
}

func (s *Scheduler) run(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("Sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep records a missed check-in for every overdue monitor, one batch at
// a time, and returns how many were recorded. Monitors that reported since
// the batch was read are skipped. A failure on one monitor is
// logged and does not stop the rest of the batch.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	now := s.now()

	overdue, err := s.store.OverdueMonitors(ctx, now, s.batch)
	if err != nil {
		return 0, err
	}

	recorded := 0

	for i := range overdue {
		if ctx.Err() != nil {
			return recorded, ctx.Err()
		}

		monitor := &overdue[i]

		checkin, err := s.engine.RecordMissed(ctx, monitor)
		if err != nil {
			s.log.Warn("Failed to record missed check-in",
				zap.Uint("monitor_id", monitor.ID),
				zap.Error(err),
			)
			continue
		}

		if checkin != nil {
			recorded++
		}
	}

	if recorded > 0 {
		s.log.Info("Recorded missed check-ins", zap.Int("count", recorded))
	}

	return recorded, nil
}

// Global scheduler instance
var globalScheduler *Scheduler

// Initialize creates and starts the global scheduler
func Initialize(engine Missed, store checkins.Store, opts ...Option) *Scheduler {
	Shutdown()

	globalScheduler = NewScheduler(engine, store, opts...)
	globalScheduler.Start()

	return globalScheduler
}

// Shutdown stops the global scheduler
func Shutdown() {
	if globalScheduler != nil {
		globalScheduler.Stop()
		globalScheduler = nil
	}
}
