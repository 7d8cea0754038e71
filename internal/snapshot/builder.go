package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Source provides the upstream payloads a build needs, normally through the
// response cache. It is satisfied by *cache.Sources.
type Source interface {
	LiveMatchups(ctx context.Context, leagueID string, week int) (json.RawMessage, error)
	Rosters(ctx context.Context, leagueID string) (json.RawMessage, error)
	Users(ctx context.Context, leagueID string) (json.RawMessage, error)
	Players(ctx context.Context) (json.RawMessage, error)
}

type matchupRecord struct {
	MatchupID      *int               `json:"matchup_id"`
	RosterID       int                `json:"roster_id"`
	Starters       []string           `json:"starters"`
	StartersPoints []float64          `json:"starters_points"`
	PlayersPoints  map[string]float64 `json:"players_points"`
}

type rosterRecord struct {
	RosterID int    `json:"roster_id"`
	OwnerID  string `json:"owner_id"`
}

type userRecord struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Metadata    struct {
		TeamName string `json:"team_name"`
	} `json:"metadata"`
}

// Builder assembles snapshots from upstream league data.
type Builder struct {
	src         Source
	clock       clockwork.Clock
	logger      *slog.Logger
	warmPlayers bool
}

// BuilderOption configures a [Builder].
type BuilderOption func(*Builder)

// WithPlayerWarmup makes every build also refresh the player catalog cache
// entry. Catalog failures are logged and never fail the build.
func WithPlayerWarmup(enabled bool) BuilderOption {
	return func(b *Builder) {
		b.warmPlayers = enabled
	}
}

// WithClock sets the clock used for UpdatedAt.
func WithClock(clock clockwork.Clock) BuilderOption {
	return func(b *Builder) {
		b.clock = clock
	}
}

// NewBuilder creates a [Builder] reading from src.
func NewBuilder(src Source, logger *slog.Logger, opts ...BuilderOption) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Builder{
		src:    src,
		clock:  clockwork.NewRealClock(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build fetches matchups, rosters and users for key and joins them into a
// [Snapshot].
//
// Matchup groups that do not have exactly two entries (byes, malformed
// pairings) are skipped. A matchup whose roster is missing from the roster
// list fails the whole build with a *[BuildError] of reason
// [ReasonBrokenReference]; upstream failures fail it with
// [ReasonUpstream].
func (b *Builder) Build(ctx context.Context, key WatchKey) (*Snapshot, error) {
	var matchupsRaw, rostersRaw, usersRaw json.RawMessage

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		matchupsRaw, err = b.src.LiveMatchups(gctx, key.LeagueID, key.Week)
		return err
	})
	g.Go(func() (err error) {
		rostersRaw, err = b.src.Rosters(gctx, key.LeagueID)
		return err
	})
	g.Go(func() (err error) {
		usersRaw, err = b.src.Users(gctx, key.LeagueID)
		return err
	})
	if b.warmPlayers {
		g.Go(func() error {
			if _, err := b.src.Players(gctx); err != nil {
				b.logger.Debug("player catalog warmup failed", "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &BuildError{Key: key, Reason: ReasonUpstream, Err: err}
	}

	var matchups []matchupRecord
	if err := json.Unmarshal(matchupsRaw, &matchups); err != nil {
		return nil, &BuildError{Key: key, Reason: ReasonMalformed, Err: fmt.Errorf("matchups: %w", err)}
	}
	var rosters []rosterRecord
	if err := json.Unmarshal(rostersRaw, &rosters); err != nil {
		return nil, &BuildError{Key: key, Reason: ReasonMalformed, Err: fmt.Errorf("rosters: %w", err)}
	}
	var users []userRecord
	if err := json.Unmarshal(usersRaw, &users); err != nil {
		return nil, &BuildError{Key: key, Reason: ReasonMalformed, Err: fmt.Errorf("users: %w", err)}
	}

	rosterByID := make(map[int]rosterRecord, len(rosters))
	for _, r := range rosters {
		rosterByID[r.RosterID] = r
	}
	userByID := make(map[string]userRecord, len(users))
	for _, u := range users {
		userByID[u.UserID] = u
	}

	groups := make(map[int][]matchupRecord)
	for _, m := range matchups {
		if m.MatchupID == nil {
			continue // bye week entry
		}
		groups[*m.MatchupID] = append(groups[*m.MatchupID], m)
	}
	ids := make([]int, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	snap := &Snapshot{
		LeagueID:  key.LeagueID,
		Week:      key.Week,
		UpdatedAt: b.clock.Now().UTC().Truncate(time.Millisecond),
		Matchups:  make([]MatchupPair, 0, len(ids)),
	}
	for _, id := range ids {
		group := groups[id]
		if len(group) != 2 {
			continue
		}
		team1, err := resolveTeam(group[0], rosterByID, userByID)
		if err != nil {
			return nil, &BuildError{Key: key, Reason: ReasonBrokenReference, Err: err}
		}
		team2, err := resolveTeam(group[1], rosterByID, userByID)
		if err != nil {
			return nil, &BuildError{Key: key, Reason: ReasonBrokenReference, Err: err}
		}
		snap.Matchups = append(snap.Matchups, MatchupPair{MatchupID: id, Team1: team1, Team2: team2})
	}

	return snap, nil
}

func resolveTeam(m matchupRecord, rosters map[int]rosterRecord, users map[string]userRecord) (TeamSnapshot, error) {
	roster, ok := rosters[m.RosterID]
	if !ok {
		return TeamSnapshot{}, fmt.Errorf("matchup references unknown roster %d", m.RosterID)
	}

	team := TeamSnapshot{
		RosterID:     m.RosterID,
		TeamName:     fmt.Sprintf("Team %d", m.RosterID),
		PlayerPoints: playerPoints(m),
	}
	if user, ok := users[roster.OwnerID]; ok && roster.OwnerID != "" {
		team.UserID = user.UserID
		team.TeamName = teamName(user, team.TeamName)
	}
	team.Points = startersTotal(m.Starters, team.PlayerPoints)
	return team, nil
}

// teamName picks the first non-empty of the custom team name, display name
// and username.
func teamName(u userRecord, fallback string) string {
	for _, name := range []string{u.Metadata.TeamName, u.DisplayName, u.Username} {
		if name != "" {
			return name
		}
	}
	return fallback
}

// playerPoints maps every rostered player to their points. Starters missing
// from players_points take their value from starters_points by position.
func playerPoints(m matchupRecord) map[string]Points {
	out := make(map[string]Points, len(m.PlayersPoints))
	for id, pts := range m.PlayersPoints {
		out[id] = PointsFromFloat(pts)
	}
	for i, id := range m.Starters {
		if emptySlot(id) || i >= len(m.StartersPoints) {
			continue
		}
		if _, ok := out[id]; !ok {
			out[id] = PointsFromFloat(m.StartersPoints[i])
		}
	}
	return out
}

// startersTotal sums the points of the starting lineup only. Bench players
// never count toward a team's score.
func startersTotal(starters []string, points map[string]Points) Points {
	var total Points
	for _, id := range starters {
		if emptySlot(id) {
			continue
		}
		total += points[id]
	}
	return total
}

// emptySlot reports whether a starters entry is an unfilled lineup slot.
func emptySlot(id string) bool {
	return id == "" || id == "0"
}
