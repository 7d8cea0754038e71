package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jpalmerr/scorepulse/internal/metrics"
)

// Default intervals.
const (
	DefaultHighActivityInterval = 3 * time.Second
	DefaultIdleInterval         = 10 * time.Second
	DefaultReevaluateEvery      = time.Hour
)

// TickFunc is called once per tick. It should return promptly; long work
// belongs in goroutines it manages itself.
type TickFunc func(ctx context.Context)

// Ticker is a source of polling ticks. [Scheduler] is the polling
// implementation.
type Ticker interface {
	Start(ctx context.Context)
	Stop()
}

// Config configures a [Scheduler]. Zero values select defaults.
type Config struct {
	HighActivityInterval time.Duration
	IdleInterval         time.Duration
	ReevaluateEvery      time.Duration
	Table                ActivityTable

	// Location is the time zone the activity table is read in.
	// Defaults to time.Local.
	Location *time.Location
}

func (c Config) withDefaults() Config {
	if c.HighActivityInterval <= 0 {
		c.HighActivityInterval = DefaultHighActivityInterval
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = DefaultIdleInterval
	}
	if c.ReevaluateEvery <= 0 {
		c.ReevaluateEvery = DefaultReevaluateEvery
	}
	if c.Table == nil {
		c.Table = DefaultActivityTable()
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	return c
}

// Scheduler calls a [TickFunc] at an interval chosen from the activity
// table.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	cfg    Config
	tick   TickFunc
	clock  clockwork.Clock
	logger *slog.Logger

	interval atomic.Int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// New creates a [Scheduler]. It does nothing until [Scheduler.Start].
func New(cfg Config, tick TickFunc, clock clockwork.Clock, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:    cfg.withDefaults(),
		tick:   tick,
		clock:  clock,
		logger: logger,
	}
}

// CurrentInterval returns the interval the activity table selects for the
// current time.
func (s *Scheduler) CurrentInterval() time.Duration {
	if s.cfg.Table.Active(s.clock.Now().In(s.cfg.Location)) {
		return s.cfg.HighActivityInterval
	}
	return s.cfg.IdleInterval
}

// Interval returns the interval the running ticker is armed with, or zero
// before Start.
func (s *Scheduler) Interval() time.Duration {
	return time.Duration(s.interval.Load())
}

// Start ticks once immediately and then runs the loop in a background
// goroutine until [Scheduler.Stop] is called or ctx is cancelled.
//
// Start is idempotent. If Stop was called before Start, Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	if ctx == nil {
		ctx = context.Background()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	interval := s.CurrentInterval()
	s.setInterval(interval)

	go func() {
		defer s.wg.Done()
		s.run(loopCtx, interval)
	}()
}

// Stop halts the loop and waits for it to exit. A tick in progress is
// allowed to return first.
//
// Stop is idempotent and safe to call before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, interval time.Duration) {
	s.safeTick(ctx)

	ticker := s.clock.NewTicker(interval)
	defer func() { ticker.Stop() }()
	reevaluate := s.clock.NewTicker(s.cfg.ReevaluateEvery)
	defer reevaluate.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.safeTick(ctx)
		case <-reevaluate.Chan():
			next := s.CurrentInterval()
			if next == interval {
				continue
			}
			s.logger.Info("poll interval changed",
				"from", interval.String(),
				"to", next.String(),
			)
			ticker.Stop()
			ticker = s.clock.NewTicker(next)
			interval = next
			s.setInterval(next)
		}
	}
}

func (s *Scheduler) setInterval(d time.Duration) {
	s.interval.Store(int64(d))
	metrics.PollIntervalSeconds.Set(d.Seconds())
}

// safeTick calls the tick function with panic recovery so one bad tick does
// not stop polling.
func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tick panic",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	s.tick(ctx)
}
