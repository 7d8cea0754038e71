package scorepulse

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/scorepulse/dashboard"
	"github.com/jpalmerr/scorepulse/internal/broadcast"
	"github.com/jpalmerr/scorepulse/internal/cache"
	"github.com/jpalmerr/scorepulse/internal/metrics"
	"github.com/jpalmerr/scorepulse/internal/registry"
	"github.com/jpalmerr/scorepulse/internal/schedule"
	"github.com/jpalmerr/scorepulse/internal/server"
	"github.com/jpalmerr/scorepulse/internal/snapshot"
	"github.com/jpalmerr/scorepulse/internal/upstream"
)

const (
	defaultPort           = 8080
	defaultMaxConcurrency = broadcast.DefaultMaxConcurrency
	defaultHeldGrace      = broadcast.DefaultHeldGrace
)

// ScorePulse wires the live-update pipeline: upstream gateway, response
// cache, snapshot builder, broadcaster, subscription registry, scheduler
// and HTTP server.
//
// The typical lifecycle is:
//
//	sp, err := scorepulse.New(scorepulse.WithPort(3001))
//	if err != nil {
//	    slog.Error("failed to create scorepulse", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	sp.Start(ctx) // blocks until context cancelled
type ScorePulse struct {
	cfg    spConfig
	logger *slog.Logger
}

// New creates a [ScorePulse] with the given options. Defaults:
//   - Port: 8080
//   - Poll intervals: 3s in activity windows, 10s otherwise
//   - Activity windows: Sunday, Monday, Thursday 13:00-23:59 local time
//   - Max concurrency: 8
//   - Held snapshot grace: 10 minutes
//   - Player catalog warmup: enabled
//
// Returns an error if any option is invalid or the combination is
// inconsistent.
func New(opts ...Option) (*ScorePulse, error) {
	cfg := spConfig{
		port:            defaultPort,
		highInterval:    schedule.DefaultHighActivityInterval,
		idleInterval:    schedule.DefaultIdleInterval,
		reevaluateEvery: schedule.DefaultReevaluateEvery,
		activityWindows: DefaultActivityWindows(),
		location:        time.Local,
		maxConcurrency:  defaultMaxConcurrency,
		heldGrace:       defaultHeldGrace,
		playerWarmup:    true,
		clock:           clockwork.NewRealClock(),
	}

	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	cfg.ttls = cfg.ttls.WithDefaults()
	ttls := cfg.ttls

	if cfg.cacheMaxAge == 0 {
		cfg.cacheMaxAge = 2 * ttls.Longest()
	}
	if cfg.cacheMaxAge <= ttls.Longest() {
		return nil, fmt.Errorf("cache max age %s must exceed the longest TTL %s", cfg.cacheMaxAge, ttls.Longest())
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ScorePulse{cfg: cfg, logger: logger}, nil
}

// Start runs the pipeline and serves HTTP until ctx is cancelled.
//
// Start is a blocking call. Returns nil on graceful shutdown, or an error if
// the HTTP server fails to start.
func (sp *ScorePulse) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	cfg := sp.cfg
	logger := sp.logger

	logger.Info("scorepulse starting",
		"port", cfg.port,
		"high_interval", cfg.highInterval.String(),
		"idle_interval", cfg.idleInterval.String(),
	)
	if cfg.ttls.LiveMatchups > cfg.highInterval {
		logger.Warn("live matchup TTL exceeds the high-activity poll interval; some ticks will see cached scores",
			"live_ttl", cfg.ttls.LiveMatchups.String(),
			"high_interval", cfg.highInterval.String(),
		)
	}

	gateway := upstream.NewGateway(upstream.Options{
		LeagueBaseURL:   cfg.leagueBaseURL,
		ScheduleBaseURL: cfg.scheduleBaseURL,
		Timeout:         cfg.upstreamTimeout,
		BreakerFailures: cfg.breakerFailures,
		BreakerCooldown: cfg.breakerCooldown,
	}, logger)
	defer gateway.Close()

	responseCache := cache.New(cfg.clock, logger)
	sources := cache.NewSources(responseCache, gateway, cfg.ttls)

	builder := snapshot.NewBuilder(sources, logger,
		snapshot.WithClock(cfg.clock),
		snapshot.WithPlayerWarmup(cfg.playerWarmup),
	)

	subscribers := registry.New(
		registry.WithClock(cfg.clock.Now),
		registry.WithOnChange(func(subs, keys int) {
			metrics.Subscribers.Set(float64(subs))
			metrics.ActiveKeys.Set(float64(keys))
		}),
	)

	broadcaster := broadcast.New(builder, subscribers, broadcast.Options{
		MaxConcurrency:   cfg.maxConcurrency,
		HeldGrace:        cfg.heldGrace,
		FetchOnSubscribe: cfg.fetchOnSubscribe,
		OnChange:         sp.dispatchSnapshot,
		Clock:            cfg.clock,
	}, logger)

	var ticker schedule.Ticker = schedule.New(schedule.Config{
		HighActivityInterval: cfg.highInterval,
		IdleInterval:         cfg.idleInterval,
		ReevaluateEvery:      cfg.reevaluateEvery,
		Table:                cfg.activityWindows,
		Location:             cfg.location,
	}, broadcaster.Tick, cfg.clock, logger)

	httpServer := server.New(server.Config{
		Port:                cfg.port,
		Title:               cfg.title,
		Assets:              dashboard.Assets,
		StreamRatePerSecond: cfg.streamRate,
		StreamBurst:         cfg.streamBurst,
		MaxStreams:          cfg.maxStreams,
	}, subscribers, broadcaster, sources, logger)
	if err := httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", cfg.port))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		responseCache.RunSweeper(gctx, cfg.cacheMaxAge/4, cfg.cacheMaxAge)
		return nil
	})
	g.Go(func() error {
		ticker.Start(gctx)
		<-gctx.Done()
		ticker.Stop()
		// passes dispatched by the last tick finish before shutdown completes
		broadcaster.Wait()
		return nil
	})

	err := g.Wait()
	logger.Info("scorepulse stopped")
	return err
}

// dispatchSnapshot fans a broadcast snapshot out to registered callbacks.
func (sp *ScorePulse) dispatchSnapshot(snap *snapshot.Snapshot) {
	for _, cb := range sp.cfg.snapshotCallbacks {
		invokeCallbackSafe(cb, *snap, sp.logger)
	}
}

// Port returns the configured HTTP port.
func (sp *ScorePulse) Port() int {
	return sp.cfg.port
}

// PollIntervals returns the high-activity and idle polling intervals.
func (sp *ScorePulse) PollIntervals() (high, idle time.Duration) {
	return sp.cfg.highInterval, sp.cfg.idleInterval
}

// TTLs returns the effective cache TTLs.
func (sp *ScorePulse) TTLs() TTLs {
	return sp.cfg.ttls
}

// invokeCallbackSafe calls a snapshot callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(Snapshot), snap Snapshot, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("snapshot callback panicked",
				"panic", r,
				"key", snap.Key().String(),
			)
		}
	}()
	cb(snap)
}
