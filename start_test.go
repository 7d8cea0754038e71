package scorepulse

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// newLeagueServer serves a single league week with two teams. The returned
// counter is team one's score in hundredths and may be changed while the
// server runs.
func newLeagueServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var score atomic.Int64
	score.Store(1000)

	mux := http.NewServeMux()
	mux.HandleFunc("/league/L1/matchups/1", func(w http.ResponseWriter, r *http.Request) {
		pts := float64(score.Load()) / 100
		fmt.Fprintf(w, `[
			{"matchup_id":1,"roster_id":1,"starters":["p1"],"players_points":{"p1":%v}},
			{"matchup_id":1,"roster_id":2,"starters":["p2"],"players_points":{"p2":8}}
		]`, pts)
	})
	mux.HandleFunc("/league/L1/rosters", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"roster_id":1,"owner_id":"u1"},{"roster_id":2,"owner_id":"u2"}]`)
	})
	mux.HandleFunc("/league/L1/users", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"user_id":"u1","display_name":"Alice"},{"user_id":"u2","username":"bob"}]`)
	})
	mux.HandleFunc("/players/nfl", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, &score
}

// waitForHealthy polls /health until the server answers.
func waitForHealthy(t *testing.T, port int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(fmt.Sprintf("http://localhost:%d/health", port))
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("server did not become healthy")
}

// nextSnapshot reads SSE frames until a data frame arrives.
func nextSnapshot(t *testing.T, r *bufio.Reader) Snapshot {
	t.Helper()
	type result struct {
		snap Snapshot
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				ch <- result{err: err}
				return
			}
			if data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
				var snap Snapshot
				ch <- result{snap: snap, err: json.Unmarshal([]byte(data), &snap)}
				return
			}
		}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			t.Fatalf("reading snapshot: %v", res.err)
		}
		return res.snap
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

// TestStart_StreamsChangedSnapshots runs the whole pipeline against a mock
// league provider: a subscriber receives the first snapshot and then only
// snapshots whose scores changed.
func TestStart_StreamsChangedSnapshots(t *testing.T) {
	league, score := newLeagueServer(t)

	var mu sync.Mutex
	var seen []Points
	sp, err := New(
		WithPort(19301),
		WithLogger(testLogger()),
		WithLeagueBaseURL(league.URL),
		WithPollIntervals(50*time.Millisecond, 50*time.Millisecond),
		WithTTLs(TTLs{LiveMatchups: 10 * time.Millisecond}),
		WithFetchOnSubscribe(true),
		WithSnapshotCallback(func(s Snapshot) {
			mu.Lock()
			seen = append(seen, s.Matchups[0].Team1.Points)
			mu.Unlock()
		}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sp.Start(ctx) }()
	waitForHealthy(t, 19301)

	resp, err := http.Get("http://localhost:19301/stream/matchup/L1/1")
	if err != nil {
		t.Fatalf("stream request error = %v", err)
	}
	defer resp.Body.Close()
	body := bufio.NewReader(resp.Body)

	first := nextSnapshot(t, body)
	if len(first.Matchups) != 1 {
		t.Fatalf("matchups = %d, want 1", len(first.Matchups))
	}
	m := first.Matchups[0]
	if m.Team1.TeamName != "Alice" || m.Team2.TeamName != "bob" {
		t.Errorf("team names = %q, %q, want Alice, bob", m.Team1.TeamName, m.Team2.TeamName)
	}
	if m.Team1.Points.Float64() != 10 {
		t.Errorf("team1 points = %v, want 10", m.Team1.Points)
	}

	score.Store(1250)
	second := nextSnapshot(t, body)
	if got := second.Matchups[0].Team1.Points.Float64(); got != 12.5 {
		t.Errorf("team1 points after change = %v, want 12.5", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Errorf("callback saw %d snapshots, want 2 (unchanged rebuilds are suppressed)", len(seen))
	}
}

// TestStart_ReturnsImmediatelyIfContextAlreadyCancelled verifies that Start
// returns immediately if the context is already cancelled.
func TestStart_ReturnsImmediatelyIfContextAlreadyCancelled(t *testing.T) {
	sp, err := New(WithPort(19302), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := sp.Start(ctx); err != nil {
		t.Errorf("Start() error = %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Errorf("Start() took %v with a cancelled context", time.Since(start))
	}
}

// TestStart_PortInUse verifies a bind failure is returned rather than
// blocking.
func TestStart_PortInUse(t *testing.T) {
	ln := httptest.NewServer(http.NotFoundHandler())
	defer ln.Close()
	p := ln.Listener.Addr().(*net.TCPAddr).Port

	sp, err := New(WithPort(p), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sp.Start(ctx); err == nil {
		t.Error("Start() expected error for port in use, got nil")
	}
}

// TestStart_MultipleSequentialRuns verifies a ScorePulse can be started
// again after a clean shutdown.
func TestStart_MultipleSequentialRuns(t *testing.T) {
	sp, err := New(WithPort(19303), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		err := sp.Start(ctx)
		cancel()
		if err != nil {
			t.Fatalf("run %d: Start() error = %v", i, err)
		}
		// shutdown of the previous listener is asynchronous
		time.Sleep(100 * time.Millisecond)
	}
}

func TestInvokeCallbackSafe_RecoversPanic(t *testing.T) {
	called := false
	invokeCallbackSafe(func(Snapshot) {
		called = true
		panic("callback bug")
	}, Snapshot{LeagueID: "L1", Week: 1}, testLogger())

	if !called {
		t.Error("callback was not invoked")
	}
}

func TestDispatchSnapshot_RunsCallbacksInOrder(t *testing.T) {
	var order []int
	sp, err := New(
		WithLogger(testLogger()),
		WithSnapshotCallback(func(Snapshot) { order = append(order, 1) }),
		WithSnapshotCallback(nil),
		WithSnapshotCallback(func(Snapshot) { order = append(order, 2); panic("second") }),
		WithSnapshotCallback(func(Snapshot) { order = append(order, 3) }),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	sp.dispatchSnapshot(&Snapshot{LeagueID: "L1", Week: 1})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("callback order = %v, want [1 2 3]", order)
	}
}
