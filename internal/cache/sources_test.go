package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway records every provider call it receives.
type fakeGateway struct {
	mu        sync.Mutex
	calls     []string
	failTeams map[int]bool
}

func (f *fakeGateway) record(call string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return json.RawMessage(fmt.Sprintf("%q", call)), nil
}

func (f *fakeGateway) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeGateway) User(_ context.Context, username string) (json.RawMessage, error) {
	return f.record("user " + username)
}

func (f *fakeGateway) UserLeagues(_ context.Context, userID, season string) (json.RawMessage, error) {
	return f.record("leagues " + userID + " " + season)
}

func (f *fakeGateway) League(_ context.Context, leagueID string) (json.RawMessage, error) {
	return f.record("league " + leagueID)
}

func (f *fakeGateway) Rosters(_ context.Context, leagueID string) (json.RawMessage, error) {
	return f.record("rosters " + leagueID)
}

func (f *fakeGateway) Users(_ context.Context, leagueID string) (json.RawMessage, error) {
	return f.record("users " + leagueID)
}

func (f *fakeGateway) Matchups(_ context.Context, leagueID string, week int) (json.RawMessage, error) {
	return f.record(fmt.Sprintf("matchups %s %d", leagueID, week))
}

func (f *fakeGateway) Players(_ context.Context) (json.RawMessage, error) {
	return f.record("players")
}

func (f *fakeGateway) Scoreboard(_ context.Context, season, week int) (json.RawMessage, error) {
	return f.record(fmt.Sprintf("scoreboard %d %d", season, week))
}

// TeamRoster returns one player per team, plus one without an id, and fails
// for the teams in failTeams.
func (f *fakeGateway) TeamRoster(_ context.Context, teamID int) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("team %d", teamID))
	fail := f.failTeams[teamID]
	f.mu.Unlock()

	if fail {
		return nil, errors.New("roster unavailable")
	}
	return json.RawMessage(fmt.Sprintf(`{
		"team": {"abbreviation": "T%d"},
		"athletes": [{"position": "offense", "items": [
			{"id": "%d01", "displayName": "Player O'Neil Jr.", "headshot": {"href": "https://img/%d.png"}},
			{"id": "", "displayName": "No Id"}
		]}]
	}`, teamID, teamID, teamID)), nil
}

func TestSources_LiveAndOnDemandMatchupsShareEntry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	gw := &fakeGateway{}
	src := NewSources(New(clock, testLogger()), gw, TTLs{Matchups: 10 * time.Second, LiveMatchups: 3 * time.Second})
	ctx := context.Background()

	_, err := src.LiveMatchups(ctx, "L1", 3)
	require.NoError(t, err)

	clock.Advance(5 * time.Second)

	// still fresh for the on-demand TTL, expired for the live TTL
	_, err = src.Matchups(ctx, "L1", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, gw.count())

	_, err = src.LiveMatchups(ctx, "L1", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, gw.count())
}

func TestSources_KeysAreDistinctPerResource(t *testing.T) {
	gw := &fakeGateway{}
	c := New(clockwork.NewFakeClock(), testLogger())
	src := NewSources(c, gw, TTLs{})
	ctx := context.Background()

	calls := []func() error{
		func() error { _, err := src.User(ctx, "alice"); return err },
		func() error { _, err := src.UserLeagues(ctx, "u1", "2026"); return err },
		func() error { _, err := src.League(ctx, "L1"); return err },
		func() error { _, err := src.Rosters(ctx, "L1"); return err },
		func() error { _, err := src.Users(ctx, "L1"); return err },
		func() error { _, err := src.Matchups(ctx, "L1", 1); return err },
		func() error { _, err := src.Players(ctx); return err },
		func() error { _, err := src.Scoreboard(ctx, 1); return err },
	}
	for _, call := range calls {
		require.NoError(t, call())
	}

	assert.Equal(t, len(calls), gw.count())
	assert.Equal(t, len(calls), src.Len())

	for _, key := range []string{
		"user-alice", "leagues-u1-2026", "league-L1", "rosters-L1",
		"users-L1", "matchups-L1-1", "nfl-players", "nfl-scoreboard-1",
	} {
		_, ok := c.Peek(key)
		assert.True(t, ok, "missing cache key %q", key)
	}
}

func TestSources_ScoreboardUsesClockYear(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, time.October, 18, 14, 0, 0, 0, time.UTC))
	gw := &fakeGateway{}
	src := NewSources(New(clock, testLogger()), gw, TTLs{})

	v, err := src.Scoreboard(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, `"scoreboard 2026 7"`, string(v))
}

func TestTTLs_Defaults(t *testing.T) {
	got := TTLs{Players: time.Hour}.WithDefaults()

	assert.Equal(t, time.Hour, got.Players)
	assert.Equal(t, DefaultTTLs().Matchups, got.Matchups)
	assert.Equal(t, time.Hour, got.Longest())
}

func TestSources_PlayerMappingSkipsFailedTeams(t *testing.T) {
	now := time.Date(2026, time.October, 18, 14, 0, 0, 0, time.UTC)
	gw := &fakeGateway{failTeams: map[int]bool{1: true, 34: true}}
	src := NewSources(New(clockwork.NewFakeClockAt(now), testLogger()), gw, TTLs{})

	raw, err := src.PlayerMapping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(ScheduleTeamIDs), gw.count())

	var got PlayerMapping
	require.NoError(t, json.Unmarshal(raw, &got))

	assert.Equal(t, 30, got.Metadata.SuccessfulTeams)
	assert.Equal(t, 30, got.Metadata.TotalPlayers)
	assert.Len(t, got.Players, 30)
	assert.True(t, got.Metadata.LastUpdated.Equal(now))

	require.Len(t, got.Metadata.Teams, 30)
	assert.Equal(t, MappedTeam{TeamID: 2, TeamAbbr: "T2", PlayerCount: 2}, got.Metadata.Teams[0])
	assert.Equal(t, 33, got.Metadata.Teams[29].TeamID)

	assert.Equal(t, MappedPlayer{ID: "201", Name: "Player O'Neil Jr.", Team: "T2", Headshot: "https://img/2.png"},
		got.Players["player oneil jr|T2"])
	_, ok := got.Players["player oneil jr|T1"]
	assert.False(t, ok, "failed team must not contribute players")
}

func TestSources_PlayerMappingIsCached(t *testing.T) {
	clock := clockwork.NewFakeClock()
	gw := &fakeGateway{}
	c := New(clock, testLogger())
	src := NewSources(c, gw, TTLs{})
	ctx := context.Background()

	first, err := src.PlayerMapping(ctx)
	require.NoError(t, err)
	second, err := src.PlayerMapping(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.Equal(t, len(ScheduleTeamIDs), gw.count())

	_, ok := c.Peek("espn-player-mapping")
	assert.True(t, ok)

	clock.Advance(59 * time.Minute)
	_, err = src.PlayerMapping(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(ScheduleTeamIDs), gw.count(), "still fresh within the hour")

	clock.Advance(2 * time.Minute)
	_, err = src.PlayerMapping(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2*len(ScheduleTeamIDs), gw.count())
}

func TestSources_PlayerMappingFailsWhenNoTeamSucceeds(t *testing.T) {
	failAll := make(map[int]bool, len(ScheduleTeamIDs))
	for _, id := range ScheduleTeamIDs {
		failAll[id] = true
	}
	gw := &fakeGateway{failTeams: failAll}
	c := New(clockwork.NewFakeClock(), testLogger())
	src := NewSources(c, gw, TTLs{})

	_, err := src.PlayerMapping(context.Background())
	require.Error(t, err)

	_, ok := c.Peek("espn-player-mapping")
	assert.False(t, ok, "an empty mapping must not be cached")
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Patrick Mahomes", "patrick mahomes"},
		{"Amon-Ra St. Brown", "amonra st brown"},
		{"D'Andre Swift", "dandre swift"},
		{"Kenneth Walker III", "kenneth walker iii"},
		{"A.J. Brown", "aj brown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeName(tt.in), "normalizeName(%q)", tt.in)
	}
}
