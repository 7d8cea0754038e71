package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/scorepulse/internal/snapshot"
)

// Sink is the write side of one subscriber stream.
//
// Send must not block indefinitely; implementations honor ctx and report a
// closed or stalled stream as an error.
type Sink interface {
	Send(ctx context.Context, payload []byte) error
}

// Subscriber is one live stream watching a single key.
type Subscriber struct {
	ID          uuid.UUID
	Key         snapshot.WatchKey
	Sink        Sink
	ConnectedAt time.Time

	mu          sync.Mutex
	lastVersion uint64
}

// Deliver writes payload if version is newer than the last version this
// subscriber received. It reports whether a write happened.
//
// Deliveries to one subscriber are serialized, so versions arrive strictly
// increasing.
func (s *Subscriber) Deliver(ctx context.Context, version uint64, payload []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if version <= s.lastVersion {
		return false, nil
	}
	if err := s.Sink.Send(ctx, payload); err != nil {
		return false, err
	}
	s.lastVersion = version
	return true, nil
}

// Option configures a [Registry].
type Option func(*Registry)

// WithOnChange registers fn to be called after every add or remove with the
// new subscriber and key counts. fn runs outside the registry lock.
func WithOnChange(fn func(subscribers, keys int)) Option {
	return func(r *Registry) {
		r.onChange = fn
	}
}

// WithClock sets the clock used for ConnectedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// Registry is a concurrency-safe set of subscribers indexed by key.
type Registry struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*Subscriber
	byKey map[snapshot.WatchKey]map[uuid.UUID]*Subscriber

	onChange func(subscribers, keys int)
	now      func() time.Time
}

// New creates an empty [Registry].
func New(opts ...Option) *Registry {
	r := &Registry{
		byID:  make(map[uuid.UUID]*Subscriber),
		byKey: make(map[snapshot.WatchKey]map[uuid.UUID]*Subscriber),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers a new subscriber for key writing to sink.
func (r *Registry) Add(key snapshot.WatchKey, sink Sink) *Subscriber {
	sub := &Subscriber{
		ID:          uuid.New(),
		Key:         key,
		Sink:        sink,
		ConnectedAt: r.now(),
	}

	r.mu.Lock()
	r.byID[sub.ID] = sub
	if r.byKey[key] == nil {
		r.byKey[key] = make(map[uuid.UUID]*Subscriber)
	}
	r.byKey[key][sub.ID] = sub
	subs, keys := len(r.byID), len(r.byKey)
	r.mu.Unlock()

	r.notify(subs, keys)
	return sub
}

// Remove unregisters the subscriber with id. It reports whether the
// subscriber was present; removing twice is harmless.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	sub, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.byID, id)
	delete(r.byKey[sub.Key], id)
	if len(r.byKey[sub.Key]) == 0 {
		delete(r.byKey, sub.Key)
	}
	subs, keys := len(r.byID), len(r.byKey)
	r.mu.Unlock()

	r.notify(subs, keys)
	return true
}

// ActiveKeys returns every key with at least one subscriber, sorted by
// league and week.
func (r *Registry) ActiveKeys() []snapshot.WatchKey {
	r.mu.RLock()
	keys := make([]snapshot.WatchKey, 0, len(r.byKey))
	for k := range r.byKey {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].LeagueID != keys[j].LeagueID {
			return keys[i].LeagueID < keys[j].LeagueID
		}
		return keys[i].Week < keys[j].Week
	})
	return keys
}

// Subscribers returns a copy of the subscribers for key, oldest first.
func (r *Registry) Subscribers(key snapshot.WatchKey) []*Subscriber {
	r.mu.RLock()
	subs := make([]*Subscriber, 0, len(r.byKey[key]))
	for _, s := range r.byKey[key] {
		subs = append(subs, s)
	}
	r.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool {
		return subs[i].ConnectedAt.Before(subs[j].ConnectedAt)
	})
	return subs
}

// Len returns the total number of subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// KeyCount returns the number of distinct watched keys.
func (r *Registry) KeyCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}

func (r *Registry) notify(subs, keys int) {
	if r.onChange != nil {
		r.onChange(subs, keys)
	}
}
