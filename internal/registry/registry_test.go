package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/scorepulse/internal/snapshot"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (s *recordingSink) Send(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, string(payload))
	return nil
}

func (s *recordingSink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

var (
	keyA = snapshot.WatchKey{LeagueID: "L1", Week: 1}
	keyB = snapshot.WatchKey{LeagueID: "L1", Week: 2}
	keyC = snapshot.WatchKey{LeagueID: "L0", Week: 9}
)

// TestRegistry_AddRemove verifies that keys become active with their first
// subscriber and inactive with their last.
func TestRegistry_AddRemove(t *testing.T) {
	r := New()

	s1 := r.Add(keyA, &recordingSink{})
	s2 := r.Add(keyA, &recordingSink{})
	assert.Equal(t, []snapshot.WatchKey{keyA}, r.ActiveKeys())
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 1, r.KeyCount())
	assert.NotEqual(t, s1.ID, s2.ID)

	assert.True(t, r.Remove(s1.ID))
	assert.Len(t, r.Subscribers(keyA), 1)

	assert.True(t, r.Remove(s2.ID))
	assert.Empty(t, r.Subscribers(keyA))
	assert.Empty(t, r.ActiveKeys())
	assert.Equal(t, 0, r.KeyCount())

	assert.False(t, r.Remove(s2.ID), "second remove should report absence")
	assert.False(t, r.Remove(uuid.New()))
}

// TestRegistry_ActiveKeysSorted verifies keys come back in a stable order.
func TestRegistry_ActiveKeysSorted(t *testing.T) {
	r := New()
	r.Add(keyB, &recordingSink{})
	r.Add(keyA, &recordingSink{})
	r.Add(keyC, &recordingSink{})

	assert.Equal(t, []snapshot.WatchKey{keyC, keyA, keyB}, r.ActiveKeys())
}

// TestRegistry_SubscribersIsCopy verifies that mutating the registry does not
// affect a slice already handed out.
func TestRegistry_SubscribersIsCopy(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	r := New(WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
	s1 := r.Add(keyA, &recordingSink{})
	s2 := r.Add(keyA, &recordingSink{})

	subs := r.Subscribers(keyA)
	require.Len(t, subs, 2)
	assert.Equal(t, s1.ID, subs[0].ID)
	assert.Equal(t, s2.ID, subs[1].ID)

	r.Remove(s1.ID)
	assert.Len(t, subs, 2)
	assert.Len(t, r.Subscribers(keyA), 1)
	assert.Empty(t, r.Subscribers(keyB))
}

// TestRegistry_OnChange verifies the hook sees every count change.
func TestRegistry_OnChange(t *testing.T) {
	type counts struct{ subs, keys int }
	var seen []counts
	r := New(WithOnChange(func(subs, keys int) {
		seen = append(seen, counts{subs, keys})
	}))

	s1 := r.Add(keyA, &recordingSink{})
	s2 := r.Add(keyB, &recordingSink{})
	r.Remove(s1.ID)
	r.Remove(s1.ID)
	r.Remove(s2.ID)

	assert.Equal(t, []counts{{1, 1}, {2, 2}, {1, 1}, {0, 0}}, seen)
}

// TestRegistry_ConcurrentAccess verifies the registry is safe under
// concurrent add, remove and iteration.
func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			key := snapshot.WatchKey{LeagueID: "L", Week: i%5 + 1}
			sub := r.Add(key, &recordingSink{})
			r.Remove(sub.ID)
		}(i)
		go func() {
			defer wg.Done()
			for _, k := range r.ActiveKeys() {
				_ = r.Subscribers(k)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.ActiveKeys())
}

// TestSubscriber_DeliverMonotonic verifies that a subscriber never receives
// the same or an older version twice.
func TestSubscriber_DeliverMonotonic(t *testing.T) {
	sink := &recordingSink{}
	sub := New().Add(keyA, sink)
	ctx := context.Background()

	sent, err := sub.Deliver(ctx, 2, []byte("v2"))
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = sub.Deliver(ctx, 2, []byte("v2 again"))
	require.NoError(t, err)
	assert.False(t, sent)

	sent, err = sub.Deliver(ctx, 1, []byte("v1"))
	require.NoError(t, err)
	assert.False(t, sent)

	sent, err = sub.Deliver(ctx, 3, []byte("v3"))
	require.NoError(t, err)
	assert.True(t, sent)

	assert.Equal(t, []string{"v2", "v3"}, sink.messages())
}

// TestSubscriber_DeliverError verifies that a failed write does not advance
// the delivered version.
func TestSubscriber_DeliverError(t *testing.T) {
	sink := &recordingSink{err: errors.New("broken pipe")}
	sub := New().Add(keyA, sink)

	sent, err := sub.Deliver(context.Background(), 1, []byte("v1"))
	assert.Error(t, err)
	assert.False(t, sent)

	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()

	sent, err = sub.Deliver(context.Background(), 1, []byte("v1"))
	require.NoError(t, err)
	assert.True(t, sent, "version 1 should still be deliverable after the failed write")
	assert.Equal(t, []string{"v1"}, sink.messages())
}
