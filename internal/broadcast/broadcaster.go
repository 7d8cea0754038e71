package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jpalmerr/scorepulse/internal/metrics"
	"github.com/jpalmerr/scorepulse/internal/registry"
	"github.com/jpalmerr/scorepulse/internal/snapshot"
)

// Default option values.
const (
	DefaultMaxConcurrency = 8
	DefaultHeldGrace      = 10 * time.Minute
	DefaultPassTimeout    = 30 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
)

// Builder produces a snapshot for a key.
type Builder interface {
	Build(ctx context.Context, key snapshot.WatchKey) (*snapshot.Snapshot, error)
}

// Registry is the subset of *registry.Registry the broadcaster needs.
type Registry interface {
	ActiveKeys() []snapshot.WatchKey
	Subscribers(key snapshot.WatchKey) []*registry.Subscriber
	Remove(id uuid.UUID) bool
}

// Options configures a [Broadcaster]. Zero values select defaults.
type Options struct {
	// MaxConcurrency bounds how many keys are built at once.
	MaxConcurrency int

	// HeldGrace is how long a held snapshot survives after its key loses
	// its last subscriber.
	HeldGrace time.Duration

	// PassTimeout bounds one build and fan-out.
	PassTimeout time.Duration

	// WriteTimeout bounds a single subscriber write.
	WriteTimeout time.Duration

	// FetchOnSubscribe starts a pass as soon as someone attaches to a key
	// that has no held snapshot yet, instead of waiting for the next tick.
	FetchOnSubscribe bool

	// OnChange is called with every snapshot that is broadcast. Panics are
	// recovered and logged.
	OnChange func(*snapshot.Snapshot)

	Clock clockwork.Clock
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = DefaultMaxConcurrency
	}
	if o.HeldGrace <= 0 {
		o.HeldGrace = DefaultHeldGrace
	}
	if o.PassTimeout <= 0 {
		o.PassTimeout = DefaultPassTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

type heldState struct {
	snap        *snapshot.Snapshot
	fingerprint []byte
	payload     []byte
	version     uint64
	lastWatched time.Time
}

// Broadcaster owns the held snapshot per key and pushes changes to
// subscribers.
//
// All methods are safe for concurrent use.
type Broadcaster struct {
	builder Builder
	reg     Registry
	opts    Options
	logger  *slog.Logger

	mu       sync.Mutex
	held     map[snapshot.WatchKey]*heldState
	inFlight map[snapshot.WatchKey]struct{}
	version  uint64

	sem chan struct{}
	wg  sync.WaitGroup
}

// New creates a [Broadcaster].
func New(builder Builder, reg Registry, opts Options, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	return &Broadcaster{
		builder:  builder,
		reg:      reg,
		opts:     opts,
		logger:   logger,
		held:     make(map[snapshot.WatchKey]*heldState),
		inFlight: make(map[snapshot.WatchKey]struct{}),
		sem:      make(chan struct{}, opts.MaxConcurrency),
	}
}

// Tick starts one pass for every actively watched key and returns without
// waiting for them. Keys whose previous pass is still running are skipped.
// Held snapshots past their grace window are dropped first.
func (b *Broadcaster) Tick(ctx context.Context) {
	keys := b.reg.ActiveKeys()
	b.expireHeld(keys)

	for _, key := range keys {
		b.dispatch(ctx, key)
	}
}

// Wait blocks until every dispatched pass has finished.
func (b *Broadcaster) Wait() {
	b.wg.Wait()
}

// Attach hands the held snapshot for sub's key to a newly registered
// subscriber. A subscriber that already received this version through a
// concurrent fan-out is not written to again.
//
// With FetchOnSubscribe and no held snapshot, a pass is started in the
// background; its lifetime is bounded by PassTimeout, not by ctx.
func (b *Broadcaster) Attach(ctx context.Context, sub *registry.Subscriber) error {
	b.mu.Lock()
	h, ok := b.held[sub.Key]
	var version uint64
	var payload []byte
	if ok {
		h.lastWatched = b.opts.Clock.Now()
		version, payload = h.version, h.payload
	}
	b.mu.Unlock()

	if !ok {
		if b.opts.FetchOnSubscribe {
			b.dispatch(context.WithoutCancel(ctx), sub.Key)
		}
		return nil
	}

	if err := b.deliver(ctx, sub, version, payload); err != nil {
		return fmt.Errorf("attach %s: %w", sub.Key, err)
	}
	return nil
}

// Held returns the held snapshot for key and its version.
func (b *Broadcaster) Held(key snapshot.WatchKey) (*snapshot.Snapshot, uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.held[key]
	if !ok {
		return nil, 0, false
	}
	return h.snap, h.version, true
}

// HeldCount returns the number of keys with a held snapshot.
func (b *Broadcaster) HeldCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.held)
}

// expireHeld refreshes the watch time of active keys and drops held
// snapshots whose key has been unwatched for longer than HeldGrace.
func (b *Broadcaster) expireHeld(active []snapshot.WatchKey) {
	now := b.opts.Clock.Now()
	watched := make(map[snapshot.WatchKey]struct{}, len(active))
	for _, k := range active {
		watched[k] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for key, h := range b.held {
		if _, ok := watched[key]; ok {
			h.lastWatched = now
			continue
		}
		if now.Sub(h.lastWatched) > b.opts.HeldGrace {
			delete(b.held, key)
			b.logger.Debug("held snapshot dropped", "key", key.String())
		}
	}
	metrics.HeldSnapshots.Set(float64(len(b.held)))
}

// dispatch runs one pass for key in the background unless one is already
// running.
func (b *Broadcaster) dispatch(ctx context.Context, key snapshot.WatchKey) {
	b.mu.Lock()
	if _, busy := b.inFlight[key]; busy {
		b.mu.Unlock()
		metrics.PassesSkippedTotal.Inc()
		b.logger.Debug("pass skipped, previous still in flight", "key", key.String())
		return
	}
	b.inFlight[key] = struct{}{}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		defer func() {
			b.mu.Lock()
			delete(b.inFlight, key)
			b.mu.Unlock()
		}()

		select {
		case b.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-b.sem }()

		passCtx, cancel := context.WithTimeout(ctx, b.opts.PassTimeout)
		defer cancel()
		b.pass(passCtx, key)
	}()
}

// pass builds key, detects change and fans out.
func (b *Broadcaster) pass(ctx context.Context, key snapshot.WatchKey) {
	start := b.opts.Clock.Now()
	snap, err := b.safeBuild(ctx, key)
	metrics.BuildDuration.Observe(b.opts.Clock.Since(start).Seconds())
	if err != nil {
		metrics.SnapshotBuildsTotal.WithLabelValues("error").Inc()
		b.logger.Warn("snapshot build failed", "key", key.String(), "error", err.Error())
		return
	}

	fingerprint, err := snap.Fingerprint()
	if err != nil {
		metrics.SnapshotBuildsTotal.WithLabelValues("error").Inc()
		b.logger.Error("snapshot fingerprint failed", "key", key.String(), "error", err.Error())
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		metrics.SnapshotBuildsTotal.WithLabelValues("error").Inc()
		b.logger.Error("snapshot encode failed", "key", key.String(), "error", err.Error())
		return
	}

	b.mu.Lock()
	if h, ok := b.held[key]; ok && bytes.Equal(h.fingerprint, fingerprint) {
		b.mu.Unlock()
		metrics.SnapshotBuildsTotal.WithLabelValues("unchanged").Inc()
		return
	}
	b.version++
	version := b.version
	b.held[key] = &heldState{
		snap:        snap,
		fingerprint: fingerprint,
		payload:     payload,
		version:     version,
		lastWatched: b.opts.Clock.Now(),
	}
	metrics.HeldSnapshots.Set(float64(len(b.held)))
	b.mu.Unlock()

	metrics.SnapshotBuildsTotal.WithLabelValues("changed").Inc()
	b.logger.Debug("snapshot changed", "key", key.String(), "version", version)

	if b.opts.OnChange != nil {
		b.invokeOnChangeSafe(snap)
	}
	b.fanOut(ctx, key, version, payload)
}

// fanOut writes payload to every subscriber of key. Subscribers whose write
// fails are removed; the rest still receive the update.
func (b *Broadcaster) fanOut(ctx context.Context, key snapshot.WatchKey, version uint64, payload []byte) {
	for _, sub := range b.reg.Subscribers(key) {
		if err := b.deliver(ctx, sub, version, payload); err != nil {
			b.logger.Info("subscriber removed after failed write",
				"key", key.String(),
				"subscriber", sub.ID.String(),
				"error", err.Error(),
			)
		}
	}
}

// deliver writes one version to sub, removing sub from the registry when
// the write fails.
func (b *Broadcaster) deliver(ctx context.Context, sub *registry.Subscriber, version uint64, payload []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, b.opts.WriteTimeout)
	defer cancel()

	sent, err := b.safeDeliver(writeCtx, sub, version, payload)
	if err != nil {
		metrics.FanoutWritesTotal.WithLabelValues("error").Inc()
		b.reg.Remove(sub.ID)
		return err
	}
	if sent {
		metrics.FanoutWritesTotal.WithLabelValues("ok").Inc()
	}
	return nil
}

// safeBuild calls the builder with panic recovery. A panic is logged with a
// correlation ID and returned as an error carrying that ID.
func (b *Broadcaster) safeBuild(ctx context.Context, key snapshot.WatchKey) (snap *snapshot.Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			b.logger.Error("snapshot build panic",
				"correlation_id", correlationID,
				"key", key.String(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			snap = nil
			err = fmt.Errorf("build panic (correlation_id: %s)", correlationID)
		}
	}()
	return b.builder.Build(ctx, key)
}

// safeDeliver writes to a subscriber sink with panic recovery.
func (b *Broadcaster) safeDeliver(ctx context.Context, sub *registry.Subscriber, version uint64, payload []byte) (sent bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			b.logger.Error("subscriber write panic",
				"correlation_id", correlationID,
				"subscriber", sub.ID.String(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			sent = false
			err = fmt.Errorf("write panic (correlation_id: %s)", correlationID)
		}
	}()
	return sub.Deliver(ctx, version, payload)
}

// invokeOnChangeSafe calls the change callback with panic recovery.
func (b *Broadcaster) invokeOnChangeSafe(snap *snapshot.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("snapshot callback panicked",
				"panic", r,
				"key", snap.Key().String(),
			)
		}
	}()
	b.opts.OnChange(snap)
}
