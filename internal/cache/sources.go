package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Gateway is the set of provider reads that [Sources] caches.
// It is satisfied by *upstream.Gateway.
type Gateway interface {
	User(ctx context.Context, username string) (json.RawMessage, error)
	UserLeagues(ctx context.Context, userID, season string) (json.RawMessage, error)
	League(ctx context.Context, leagueID string) (json.RawMessage, error)
	Rosters(ctx context.Context, leagueID string) (json.RawMessage, error)
	Users(ctx context.Context, leagueID string) (json.RawMessage, error)
	Matchups(ctx context.Context, leagueID string, week int) (json.RawMessage, error)
	Players(ctx context.Context) (json.RawMessage, error)
	Scoreboard(ctx context.Context, season, week int) (json.RawMessage, error)
	TeamRoster(ctx context.Context, teamID int) (json.RawMessage, error)
}

// TTLs assigns a time-to-live to each category of upstream data.
type TTLs struct {
	// League covers league metadata and user lookups.
	League time.Duration
	// Rosters covers league rosters and league users.
	Rosters time.Duration
	// Matchups is used for on-demand matchup reads.
	Matchups time.Duration
	// LiveMatchups is used by the polling loop and should not exceed the
	// shortest polling interval.
	LiveMatchups time.Duration
	// Players covers the global player catalog.
	Players time.Duration
	// Scoreboard covers the schedule provider's game scoreboard.
	Scoreboard time.Duration
	// PlayerMapping covers the player mapping built from every team roster.
	PlayerMapping time.Duration
}

// DefaultTTLs returns the TTLs used when none are configured.
func DefaultTTLs() TTLs {
	return TTLs{
		League:        30 * time.Minute,
		Rosters:       30 * time.Minute,
		Matchups:      10 * time.Second,
		LiveMatchups:  3 * time.Second,
		Players:       5 * time.Minute,
		Scoreboard:    30 * time.Second,
		PlayerMapping: time.Hour,
	}
}

// Longest returns the largest configured TTL.
func (t TTLs) Longest() time.Duration {
	longest := t.League
	for _, d := range []time.Duration{t.Rosters, t.Matchups, t.LiveMatchups, t.Players, t.Scoreboard, t.PlayerMapping} {
		if d > longest {
			longest = d
		}
	}
	return longest
}

// WithDefaults fills zero fields from DefaultTTLs.
func (t TTLs) WithDefaults() TTLs {
	d := DefaultTTLs()
	if t.League <= 0 {
		t.League = d.League
	}
	if t.Rosters <= 0 {
		t.Rosters = d.Rosters
	}
	if t.Matchups <= 0 {
		t.Matchups = d.Matchups
	}
	if t.LiveMatchups <= 0 {
		t.LiveMatchups = d.LiveMatchups
	}
	if t.Players <= 0 {
		t.Players = d.Players
	}
	if t.Scoreboard <= 0 {
		t.Scoreboard = d.Scoreboard
	}
	if t.PlayerMapping <= 0 {
		t.PlayerMapping = d.PlayerMapping
	}
	return t
}

// Sources is the cache-backed view of the provider endpoints.
//
// Each method maps to one cache key, so on-demand reads and the polling loop
// share entries (and in-flight fetches) for the same upstream resource.
type Sources struct {
	cache *Cache
	gw    Gateway
	ttl   TTLs
}

// NewSources binds gw to c. Zero TTL fields take their defaults.
func NewSources(c *Cache, gw Gateway, ttl TTLs) *Sources {
	return &Sources{cache: c, gw: gw, ttl: ttl.WithDefaults()}
}

// User returns a cached user lookup.
func (s *Sources) User(ctx context.Context, username string) (json.RawMessage, error) {
	return s.cache.GetOrFetch(ctx, "user-"+username, s.ttl.League, func(ctx context.Context) (json.RawMessage, error) {
		return s.gw.User(ctx, username)
	})
}

// UserLeagues returns a user's cached league list for a season.
func (s *Sources) UserLeagues(ctx context.Context, userID, season string) (json.RawMessage, error) {
	key := fmt.Sprintf("leagues-%s-%s", userID, season)
	return s.cache.GetOrFetch(ctx, key, s.ttl.League, func(ctx context.Context) (json.RawMessage, error) {
		return s.gw.UserLeagues(ctx, userID, season)
	})
}

// League returns cached league metadata.
func (s *Sources) League(ctx context.Context, leagueID string) (json.RawMessage, error) {
	return s.cache.GetOrFetch(ctx, "league-"+leagueID, s.ttl.League, func(ctx context.Context) (json.RawMessage, error) {
		return s.gw.League(ctx, leagueID)
	})
}

// Rosters returns a league's cached rosters.
func (s *Sources) Rosters(ctx context.Context, leagueID string) (json.RawMessage, error) {
	return s.cache.GetOrFetch(ctx, "rosters-"+leagueID, s.ttl.Rosters, func(ctx context.Context) (json.RawMessage, error) {
		return s.gw.Rosters(ctx, leagueID)
	})
}

// Users returns a league's cached users.
func (s *Sources) Users(ctx context.Context, leagueID string) (json.RawMessage, error) {
	return s.cache.GetOrFetch(ctx, "users-"+leagueID, s.ttl.Rosters, func(ctx context.Context) (json.RawMessage, error) {
		return s.gw.Users(ctx, leagueID)
	})
}

// Matchups returns a league week's matchups with the on-demand TTL.
func (s *Sources) Matchups(ctx context.Context, leagueID string, week int) (json.RawMessage, error) {
	return s.matchups(ctx, leagueID, week, s.ttl.Matchups)
}

// LiveMatchups returns a league week's matchups with the polling TTL.
func (s *Sources) LiveMatchups(ctx context.Context, leagueID string, week int) (json.RawMessage, error) {
	return s.matchups(ctx, leagueID, week, s.ttl.LiveMatchups)
}

func (s *Sources) matchups(ctx context.Context, leagueID string, week int, ttl time.Duration) (json.RawMessage, error) {
	key := fmt.Sprintf("matchups-%s-%d", leagueID, week)
	return s.cache.GetOrFetch(ctx, key, ttl, func(ctx context.Context) (json.RawMessage, error) {
		return s.gw.Matchups(ctx, leagueID, week)
	})
}

// Players returns the cached global player catalog.
func (s *Sources) Players(ctx context.Context) (json.RawMessage, error) {
	return s.cache.GetOrFetch(ctx, "nfl-players", s.ttl.Players, func(ctx context.Context) (json.RawMessage, error) {
		return s.gw.Players(ctx)
	})
}

// Scoreboard returns the cached scoreboard for a week of the current season.
// The season is the calendar year of the cache clock.
func (s *Sources) Scoreboard(ctx context.Context, week int) (json.RawMessage, error) {
	key := fmt.Sprintf("nfl-scoreboard-%d", week)
	season := s.cache.clock.Now().Year()
	return s.cache.GetOrFetch(ctx, key, s.ttl.Scoreboard, func(ctx context.Context) (json.RawMessage, error) {
		return s.gw.Scoreboard(ctx, season, week)
	})
}

// Len returns the number of cached entries.
func (s *Sources) Len() int {
	return s.cache.Len()
}
