package scheduler

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

const jobTag = "cache-invalidation"

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("scheduler already started")

// Midnight runs a clear function at every UTC midnight.
type Midnight struct {
	scheduler *gocron.Scheduler
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	started bool
}

// New creates a new Midnight scheduler.
func New(logger *slog.Logger) *Midnight {
	if logger == nil {
		logger = slog.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Midnight{
		scheduler: s,
		logger:    logger,
		now:       time.Now,
	}
}

// Start schedules clear daily at 00:00 UTC and starts the underlying scheduler.
func (m *Midnight) Start(clear func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return ErrAlreadyStarted
	}

	_, err := m.scheduler.Every(1).Day().At("00:00").Tag(jobTag).Do(func() {
		m.logger.Info("scheduler: running cache invalidation")
		clear()
		m.logger.Info("scheduler: next cache invalidation", "at", NextMidnight(m.now()))
	})
	if err != nil {
		return err
	}

	m.scheduler.StartAsync()
	m.started = true
	m.logger.Info("scheduler: cache invalidation armed", "at", NextMidnight(m.now()))
	return nil
}

// RunNow runs the invalidation immediately, as if midnight had just passed.
// The schedule itself is unchanged.
func (m *Midnight) RunNow() {
	m.scheduler.RunAll()
}

// Stop stops the scheduler and cancels any future runs.
func (m *Midnight) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		m.scheduler.Stop()
		m.started = false
	}
}

// NextMidnight returns the first UTC midnight strictly after now.
func NextMidnight(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
}

// UntilNextMidnight is the time left before the next scheduled invalidation.
func UntilNextMidnight(now time.Time) time.Duration {
	return NextMidnight(now).Sub(now)
}
