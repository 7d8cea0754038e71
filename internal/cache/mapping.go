package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// playerMappingKey is the cache key of the combined player mapping.
const playerMappingKey = "espn-player-mapping"

// ScheduleTeamIDs are the schedule provider's ids of the 32 football teams.
var ScheduleTeamIDs = []int{
	1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16,
	17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 33, 34,
}

// PlayerMapping maps "normalized name|team abbreviation" to the schedule
// provider's view of that player.
type PlayerMapping struct {
	Players  map[string]MappedPlayer `json:"playerMapping"`
	Metadata MappingMetadata         `json:"metadata"`
}

// MappedPlayer is one schedule-provider athlete.
type MappedPlayer struct {
	ID       string `json:"espnId"`
	Name     string `json:"name"`
	Team     string `json:"team"`
	Headshot string `json:"headshot,omitempty"`
}

// MappingMetadata summarizes how a [PlayerMapping] was built.
type MappingMetadata struct {
	TotalPlayers    int          `json:"totalPlayers"`
	SuccessfulTeams int          `json:"successfulTeams"`
	Teams           []MappedTeam `json:"teams"`
	LastUpdated     time.Time    `json:"lastUpdated"`
}

// MappedTeam records one team roster that contributed to the mapping.
type MappedTeam struct {
	TeamID      int    `json:"teamId"`
	TeamAbbr    string `json:"teamAbbr"`
	PlayerCount int    `json:"playerCount"`
}

var errNoTeamRosters = errors.New("no team roster could be fetched")

type teamRoster struct {
	Team struct {
		Abbreviation string `json:"abbreviation"`
	} `json:"team"`
	Athletes []struct {
		Items []struct {
			ID          string `json:"id"`
			DisplayName string `json:"displayName"`
			Headshot    struct {
				Href string `json:"href"`
			} `json:"headshot"`
		} `json:"items"`
	} `json:"athletes"`
}

// PlayerMapping returns the cached player mapping, building it from every
// team roster on a miss. Teams whose roster cannot be fetched or decoded are
// skipped; the build fails only when no team succeeds.
func (s *Sources) PlayerMapping(ctx context.Context) (json.RawMessage, error) {
	return s.cache.GetOrFetch(ctx, playerMappingKey, s.ttl.PlayerMapping, s.buildPlayerMapping)
}

func (s *Sources) buildPlayerMapping(ctx context.Context) (json.RawMessage, error) {
	rosters := make([]*teamRoster, len(ScheduleTeamIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, teamID := range ScheduleTeamIDs {
		i, teamID := i, teamID
		g.Go(func() error {
			raw, err := s.gw.TeamRoster(gctx, teamID)
			if err != nil {
				s.cache.logger.Warn("team roster unavailable", "team_id", teamID, "error", err.Error())
				return nil
			}
			var r teamRoster
			if err := json.Unmarshal(raw, &r); err != nil {
				s.cache.logger.Warn("team roster malformed", "team_id", teamID, "error", err.Error())
				return nil
			}
			rosters[i] = &r
			return nil
		})
	}
	_ = g.Wait()

	mapping := PlayerMapping{Players: make(map[string]MappedPlayer)}
	for i, r := range rosters {
		if r == nil {
			continue
		}
		abbr := r.Team.Abbreviation
		count := 0
		for _, group := range r.Athletes {
			count += len(group.Items)
			if abbr == "" {
				continue
			}
			for _, a := range group.Items {
				if a.ID == "" || a.DisplayName == "" {
					continue
				}
				mapping.Players[normalizeName(a.DisplayName)+"|"+abbr] = MappedPlayer{
					ID:       a.ID,
					Name:     a.DisplayName,
					Team:     abbr,
					Headshot: a.Headshot.Href,
				}
			}
		}
		mapping.Metadata.Teams = append(mapping.Metadata.Teams, MappedTeam{
			TeamID:      ScheduleTeamIDs[i],
			TeamAbbr:    abbr,
			PlayerCount: count,
		})
	}

	if len(mapping.Metadata.Teams) == 0 {
		return nil, errNoTeamRosters
	}
	mapping.Metadata.TotalPlayers = len(mapping.Players)
	mapping.Metadata.SuccessfulTeams = len(mapping.Metadata.Teams)
	mapping.Metadata.LastUpdated = s.cache.clock.Now().UTC()

	s.cache.logger.Info("player mapping built",
		"teams", mapping.Metadata.SuccessfulTeams,
		"players", mapping.Metadata.TotalPlayers,
	)
	return json.Marshal(mapping)
}

// normalizeName lowercases name and keeps only letters and whitespace.
func normalizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r == ' ', r == '\t':
			return r
		default:
			return -1
		}
	}, strings.ToLower(name))
}
