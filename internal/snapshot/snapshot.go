package snapshot

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// maxWeek bounds the week numbers accepted in a WatchKey.
const maxWeek = 25

// WatchKey identifies one matchup slate: a league and a week.
// It is comparable and used directly as a map key.
type WatchKey struct {
	LeagueID string
	Week     int
}

// ParseWatchKey validates path parameters into a WatchKey.
func ParseWatchKey(leagueID, week string) (WatchKey, error) {
	if leagueID == "" {
		return WatchKey{}, fmt.Errorf("league id is required")
	}
	w, err := strconv.Atoi(week)
	if err != nil {
		return WatchKey{}, fmt.Errorf("week %q is not a number", week)
	}
	if w < 1 || w > maxWeek {
		return WatchKey{}, fmt.Errorf("week must be between 1 and %d, got %d", maxWeek, w)
	}
	return WatchKey{LeagueID: leagueID, Week: w}, nil
}

// String renders the key as "leagueId-week".
func (k WatchKey) String() string {
	return k.LeagueID + "-" + strconv.Itoa(k.Week)
}

// TeamSnapshot is one side of a matchup.
type TeamSnapshot struct {
	RosterID     int               `json:"rosterId"`
	UserID       string            `json:"userId,omitempty"`
	TeamName     string            `json:"teamName"`
	Points       Points            `json:"points"`
	PlayerPoints map[string]Points `json:"playerPoints"`
}

// MatchupPair is a head-to-head matchup between two teams.
type MatchupPair struct {
	MatchupID int          `json:"matchupId"`
	Team1     TeamSnapshot `json:"team1"`
	Team2     TeamSnapshot `json:"team2"`
}

// Snapshot is the projection of a slate sent to subscribers. Matchups are
// ordered by MatchupID.
type Snapshot struct {
	LeagueID  string        `json:"leagueId"`
	Week      int           `json:"week"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Matchups  []MatchupPair `json:"matchups"`
}

// Key returns the snapshot's WatchKey.
func (s *Snapshot) Key() WatchKey {
	return WatchKey{LeagueID: s.LeagueID, Week: s.Week}
}

// Fingerprint returns the canonical encoding of s without UpdatedAt.
// Two snapshots with equal fingerprints carry the same scores.
func (s *Snapshot) Fingerprint() ([]byte, error) {
	cp := *s
	cp.UpdatedAt = time.Time{}
	return json.Marshal(cp)
}
