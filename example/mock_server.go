package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
)

// mockLeague is a fantasy league whose player scores drift upward on every
// matchups request, like a live game day.
type mockLeague struct {
	mu     sync.Mutex
	points map[string]float64
}

var (
	mockUsers = []map[string]any{
		{"user_id": "u1", "username": "gridiron", "display_name": "Gridiron", "metadata": map[string]string{"team_name": "Blitz Brigade"}},
		{"user_id": "u2", "username": "redzone", "display_name": "RedZone"},
		{"user_id": "u3", "username": "hailmary"},
		{"user_id": "u4", "username": "picksix", "display_name": "Pick Six", "metadata": map[string]string{"team_name": "Fourth & Long"}},
	}
	mockStarters = map[int][]string{
		1: {"p1", "p2", "p3"},
		2: {"p4", "p5", "p6"},
		3: {"p7", "p8", "p9"},
		4: {"p10", "p11", "p12"},
	}
)

// StartMockLeagueServer runs a mock league provider serving one league
// ("demo") with four teams in two matchups. Scores change every 5-15
// requests. Call this in a goroutine before starting ScorePulse.
func StartMockLeagueServer(addr string) {
	league := &mockLeague{points: make(map[string]float64)}

	r := chi.NewRouter()
	r.Get("/league/{leagueId}", func(w http.ResponseWriter, r *http.Request) {
		writeMockJSON(w, map[string]any{"league_id": chi.URLParam(r, "leagueId"), "name": "Demo League", "season": "2025"})
	})
	r.Get("/league/{leagueId}/users", func(w http.ResponseWriter, r *http.Request) {
		writeMockJSON(w, mockUsers)
	})
	r.Get("/league/{leagueId}/rosters", func(w http.ResponseWriter, r *http.Request) {
		rosters := make([]map[string]any, 0, len(mockStarters))
		for id := 1; id <= len(mockStarters); id++ {
			rosters = append(rosters, map[string]any{"roster_id": id, "owner_id": "u" + strconv.Itoa(id)})
		}
		writeMockJSON(w, rosters)
	})
	r.Get("/league/{leagueId}/matchups/{week}", func(w http.ResponseWriter, r *http.Request) {
		writeMockJSON(w, league.matchups())
	})
	r.Get("/players/nfl", func(w http.ResponseWriter, r *http.Request) {
		writeMockJSON(w, map[string]any{})
	})

	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("mock server error", "error", err)
	}
}

func (l *mockLeague) matchups() []map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()

	// roughly one request in ten moves a score
	if rand.Intn(10) == 0 {
		roster := 1 + rand.Intn(len(mockStarters))
		player := mockStarters[roster][rand.Intn(3)]
		gain := float64(rand.Intn(70)) / 10
		l.points[player] += gain
		slog.Info("score change", "roster", roster, "player", player, "gain", gain)
	}

	out := make([]map[string]any, 0, len(mockStarters))
	for roster := 1; roster <= len(mockStarters); roster++ {
		pp := make(map[string]float64, 3)
		for _, p := range mockStarters[roster] {
			pp[p] = l.points[p]
		}
		out = append(out, map[string]any{
			"matchup_id":     (roster + 1) / 2,
			"roster_id":      roster,
			"starters":       mockStarters[roster],
			"players_points": pp,
		})
	}
	return out
}

func writeMockJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
