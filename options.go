package scorepulse

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
)

// spConfig holds mutable state during ScorePulse construction.
type spConfig struct {
	title  string
	port   int
	logger *slog.Logger
	clock  clockwork.Clock

	leagueBaseURL   string
	scheduleBaseURL string
	upstreamTimeout time.Duration
	breakerFailures uint32
	breakerCooldown time.Duration

	highInterval    time.Duration
	idleInterval    time.Duration
	reevaluateEvery time.Duration
	activityWindows []ActivityWindow
	location        *time.Location

	maxConcurrency   int
	ttls             TTLs
	cacheMaxAge      time.Duration
	heldGrace        time.Duration
	fetchOnSubscribe bool
	playerWarmup     bool

	streamRate  float64
	streamBurst int
	maxStreams  int64

	snapshotCallbacks []func(Snapshot)
}

// Option is a function that configures a [ScorePulse] instance during
// construction. Options return an error if validation fails.
type Option func(*spConfig) error

// WithPort sets the HTTP port for streams, proxy routes and the dashboard.
// Defaults to 8080.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *spConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *spConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithTitle sets the dashboard title. Defaults to "ScorePulse".
func WithTitle(title string) Option {
	return func(cfg *spConfig) error {
		cfg.title = title
		return nil
	}
}

// WithLeagueBaseURL points the gateway at a different fantasy-league
// provider, for example a local mock.
func WithLeagueBaseURL(raw string) Option {
	return func(cfg *spConfig) error {
		if err := validateBaseURL(raw); err != nil {
			return fmt.Errorf("league base URL: %w", err)
		}
		cfg.leagueBaseURL = raw
		return nil
	}
}

// WithScheduleBaseURL points the gateway at a different sports-schedule
// provider.
func WithScheduleBaseURL(raw string) Option {
	return func(cfg *spConfig) error {
		if err := validateBaseURL(raw); err != nil {
			return fmt.Errorf("schedule base URL: %w", err)
		}
		cfg.scheduleBaseURL = raw
		return nil
	}
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

// WithUpstreamTimeout bounds each upstream request. Zero, the default,
// leaves requests bounded only by the transport and the caller's context.
func WithUpstreamTimeout(d time.Duration) Option {
	return func(cfg *spConfig) error {
		if d < 0 {
			return errors.New("upstream timeout cannot be negative")
		}
		cfg.upstreamTimeout = d
		return nil
	}
}

// WithCircuitBreaker sets how many consecutive upstream failures open a
// provider's circuit and how long it stays open. Defaults to 5 and 30s.
func WithCircuitBreaker(failures uint32, cooldown time.Duration) Option {
	return func(cfg *spConfig) error {
		if failures == 0 {
			return errors.New("circuit breaker failures must be positive")
		}
		if cooldown <= 0 {
			return errors.New("circuit breaker cooldown must be positive")
		}
		cfg.breakerFailures = failures
		cfg.breakerCooldown = cooldown
		return nil
	}
}

// WithPollIntervals sets the polling interval inside and outside activity
// windows. Defaults to 3s and 10s.
func WithPollIntervals(high, idle time.Duration) Option {
	return func(cfg *spConfig) error {
		if high <= 0 || idle <= 0 {
			return errors.New("poll intervals must be positive")
		}
		cfg.highInterval = high
		cfg.idleInterval = idle
		return nil
	}
}

// WithActivityWindows replaces the default game windows.
//
// Returns an error if a window has hours outside 0-23 or ends before it
// starts.
func WithActivityWindows(windows ...ActivityWindow) Option {
	return func(cfg *spConfig) error {
		for _, w := range windows {
			if w.FromHour < 0 || w.ToHour > 23 || w.FromHour > w.ToHour {
				return fmt.Errorf("invalid activity window %s %d-%d", w.Weekday, w.FromHour, w.ToHour)
			}
		}
		cfg.activityWindows = append([]ActivityWindow(nil), windows...)
		return nil
	}
}

// WithReevaluateEvery sets how often the polling interval is recomputed.
// Defaults to one hour.
func WithReevaluateEvery(d time.Duration) Option {
	return func(cfg *spConfig) error {
		if d <= 0 {
			return errors.New("reevaluate interval must be positive")
		}
		cfg.reevaluateEvery = d
		return nil
	}
}

// WithLocation sets the time zone activity windows are read in. Defaults
// to the local time zone.
func WithLocation(loc *time.Location) Option {
	return func(cfg *spConfig) error {
		if loc == nil {
			return errors.New("location cannot be nil")
		}
		cfg.location = loc
		return nil
	}
}

// WithMaxConcurrency limits how many watched league weeks are rebuilt at
// once. Defaults to 8.
func WithMaxConcurrency(n int) Option {
	return func(cfg *spConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithTTLs overrides cache TTLs. Zero fields keep their defaults.
func WithTTLs(ttls TTLs) Option {
	return func(cfg *spConfig) error {
		cfg.ttls = ttls
		return nil
	}
}

// WithCacheMaxAge sets how long an unrefreshed cache entry is kept for
// stale fallback before it is evicted. Defaults to twice the longest TTL.
func WithCacheMaxAge(d time.Duration) Option {
	return func(cfg *spConfig) error {
		if d <= 0 {
			return errors.New("cache max age must be positive")
		}
		cfg.cacheMaxAge = d
		return nil
	}
}

// WithHeldGrace sets how long the last snapshot of an unwatched league week
// is kept for reconnecting clients. Defaults to 10 minutes.
func WithHeldGrace(d time.Duration) Option {
	return func(cfg *spConfig) error {
		if d <= 0 {
			return errors.New("held grace must be positive")
		}
		cfg.heldGrace = d
		return nil
	}
}

// WithFetchOnSubscribe builds a snapshot as soon as the first subscriber of
// a league week connects instead of waiting for the next tick.
func WithFetchOnSubscribe(enabled bool) Option {
	return func(cfg *spConfig) error {
		cfg.fetchOnSubscribe = enabled
		return nil
	}
}

// WithPlayerWarmup keeps the player catalog cache warm on every build so
// the /api/players/nfl route rarely waits on the provider. Enabled by
// default; pass false to skip the catalog fetch during polling.
func WithPlayerWarmup(enabled bool) Option {
	return func(cfg *spConfig) error {
		cfg.playerWarmup = enabled
		return nil
	}
}

// WithStreamLimits limits new streams per client IP (perSecond with burst)
// and caps concurrent streams. Zero disables the respective limit.
func WithStreamLimits(perSecond float64, burst int, maxStreams int64) Option {
	return func(cfg *spConfig) error {
		if perSecond < 0 || burst < 0 || maxStreams < 0 {
			return errors.New("stream limits cannot be negative")
		}
		cfg.streamRate = perSecond
		cfg.streamBurst = burst
		cfg.maxStreams = maxStreams
		return nil
	}
}

// WithSnapshotCallback registers a function called with every snapshot that
// is broadcast, after change detection.
//
// Callbacks must be non-blocking. Panics are recovered and logged. Multiple
// callbacks run in registration order. Nil callbacks are ignored.
func WithSnapshotCallback(cb func(Snapshot)) Option {
	return func(cfg *spConfig) error {
		if cb == nil {
			return nil
		}
		cfg.snapshotCallbacks = append(cfg.snapshotCallbacks, cb)
		return nil
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(cfg *spConfig) error {
		if clock == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.clock = clock
		return nil
	}
}
