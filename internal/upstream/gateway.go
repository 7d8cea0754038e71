package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/jpalmerr/scorepulse/internal/metrics"
)

// Provider names used in errors, logs and metric labels.
const (
	ProviderLeague   = "league"
	ProviderSchedule = "schedule"
)

// Default provider base URLs.
const (
	DefaultLeagueBaseURL   = "https://api.sleeper.app/v1"
	DefaultScheduleBaseURL = "https://site.api.espn.com/apis/site/v2/sports/football/nfl"
)

const (
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second
)

// Options configures a [Gateway].
type Options struct {
	// LeagueBaseURL is the fantasy-league provider root. Defaults to DefaultLeagueBaseURL.
	LeagueBaseURL string

	// ScheduleBaseURL is the sports-schedule provider root. Defaults to DefaultScheduleBaseURL.
	ScheduleBaseURL string

	// Timeout bounds each request. Zero means no timeout beyond the transport defaults.
	Timeout time.Duration

	// BreakerFailures is the number of consecutive server-side failures that
	// opens a provider's circuit. Defaults to 5.
	BreakerFailures uint32

	// BreakerCooldown is how long an open circuit stays open before a trial
	// request is let through. Defaults to 30s.
	BreakerCooldown time.Duration
}

// Gateway exposes the read endpoints of both providers.
//
// Every call issues exactly one outbound request (or none, if the provider's
// circuit is open). Gateway is safe for concurrent use.
type Gateway struct {
	client   *Client
	league   *provider
	schedule *provider
}

type provider struct {
	name    string
	baseURL string
	client  *Client
	breaker *gobreaker.CircuitBreaker
}

type fetchResult struct {
	body json.RawMessage
	err  error
}

// NewGateway creates a [Gateway] with one circuit breaker per provider.
func NewGateway(opts Options, logger *slog.Logger) *Gateway {
	if opts.LeagueBaseURL == "" {
		opts.LeagueBaseURL = DefaultLeagueBaseURL
	}
	if opts.ScheduleBaseURL == "" {
		opts.ScheduleBaseURL = DefaultScheduleBaseURL
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = defaultBreakerFailures
	}
	if opts.BreakerCooldown == 0 {
		opts.BreakerCooldown = defaultBreakerCooldown
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := NewClient(opts.Timeout)
	return &Gateway{
		client:   client,
		league:   newProvider(ProviderLeague, opts.LeagueBaseURL, client, opts, logger),
		schedule: newProvider(ProviderSchedule, opts.ScheduleBaseURL, client, opts, logger),
	}
}

func newProvider(name, baseURL string, client *Client, opts Options, logger *slog.Logger) *provider {
	failures := opts.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("upstream circuit state changed",
				"provider", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))

	return &provider{
		name:    name,
		baseURL: baseURL,
		client:  client,
		breaker: breaker,
	}
}

// get fetches path relative to the provider root through the breaker.
// 4xx responses are returned to the caller but do not count as failures.
func (p *provider) get(ctx context.Context, path string) (json.RawMessage, error) {
	target := p.baseURL + path
	start := time.Now()

	out, err := p.breaker.Execute(func() (any, error) {
		body, err := p.client.Fetch(ctx, target)
		var ue *UpstreamError
		if errors.As(err, &ue) && ue.clientSide() {
			return fetchResult{err: err}, nil
		}
		return fetchResult{body: body}, err
	})
	metrics.UpstreamRequestDuration.WithLabelValues(p.name).Observe(time.Since(start).Seconds())

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.UpstreamRequestsTotal.WithLabelValues(p.name, "circuit_open").Inc()
		return nil, &UpstreamError{Provider: p.name, URL: target, Message: "circuit open", Err: err}
	}
	var body json.RawMessage
	if err == nil {
		if r, ok := out.(fetchResult); ok {
			body, err = r.body, r.err
		}
	}
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(p.name, "error").Inc()
		var ue *UpstreamError
		if errors.As(err, &ue) {
			ue.Provider = p.name
			return nil, ue
		}
		return nil, &UpstreamError{Provider: p.name, URL: target, Message: err.Error(), Err: err}
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(p.name, "ok").Inc()
	return body, nil
}

// User looks up a league-provider user by username or user ID.
func (g *Gateway) User(ctx context.Context, username string) (json.RawMessage, error) {
	return g.league.get(ctx, "/user/"+url.PathEscape(username))
}

// UserLeagues lists a user's football leagues for a season.
func (g *Gateway) UserLeagues(ctx context.Context, userID, season string) (json.RawMessage, error) {
	return g.league.get(ctx, fmt.Sprintf("/user/%s/leagues/nfl/%s", url.PathEscape(userID), url.PathEscape(season)))
}

// League returns league metadata.
func (g *Gateway) League(ctx context.Context, leagueID string) (json.RawMessage, error) {
	return g.league.get(ctx, "/league/"+url.PathEscape(leagueID))
}

// Rosters returns all rosters in a league.
func (g *Gateway) Rosters(ctx context.Context, leagueID string) (json.RawMessage, error) {
	return g.league.get(ctx, "/league/"+url.PathEscape(leagueID)+"/rosters")
}

// Users returns all users in a league.
func (g *Gateway) Users(ctx context.Context, leagueID string) (json.RawMessage, error) {
	return g.league.get(ctx, "/league/"+url.PathEscape(leagueID)+"/users")
}

// Matchups returns every roster's matchup entry for a league week.
func (g *Gateway) Matchups(ctx context.Context, leagueID string, week int) (json.RawMessage, error) {
	return g.league.get(ctx, "/league/"+url.PathEscape(leagueID)+"/matchups/"+strconv.Itoa(week))
}

// Players returns the global football player catalog.
func (g *Gateway) Players(ctx context.Context) (json.RawMessage, error) {
	return g.league.get(ctx, "/players/nfl")
}

// Scoreboard returns the schedule provider's regular-season scoreboard for a week.
func (g *Gateway) Scoreboard(ctx context.Context, season, week int) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("dates", strconv.Itoa(season))
	q.Set("seasontype", "2")
	q.Set("week", strconv.Itoa(week))
	return g.schedule.get(ctx, "/scoreboard?"+q.Encode())
}

// TeamRoster returns the schedule provider's roster for one team.
func (g *Gateway) TeamRoster(ctx context.Context, teamID int) (json.RawMessage, error) {
	return g.schedule.get(ctx, "/teams/"+strconv.Itoa(teamID)+"/roster")
}

// Close releases idle connections. Safe to call multiple times.
func (g *Gateway) Close() {
	if g == nil {
		return
	}
	g.client.Close()
}
