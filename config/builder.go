package config

import (
	"time"

	"github.com/jpalmerr/scorepulse"
)

// defaultBreakerCooldown applies when only breaker_failures is configured.
const defaultBreakerCooldown = 30 * time.Second

// BuildOptions converts parsed configuration into SDK options.
//
// Zero-valued fields are skipped so the SDK defaults apply. The returned
// options do not include a logger; callers add [scorepulse.WithLogger].
func BuildOptions(cfg *Config) ([]scorepulse.Option, error) {
	opts := []scorepulse.Option{
		scorepulse.WithPort(cfg.Port),
		scorepulse.WithPollIntervals(cfg.Polling.HighInterval.Duration(), cfg.Polling.IdleInterval.Duration()),
		scorepulse.WithFetchOnSubscribe(cfg.Polling.FetchOnSubscribe),
		scorepulse.WithTTLs(buildTTLs(cfg.Cache)),
	}

	if cfg.Polling.PlayerWarmup != nil {
		opts = append(opts, scorepulse.WithPlayerWarmup(*cfg.Polling.PlayerWarmup))
	}
	if cfg.Title != "" {
		opts = append(opts, scorepulse.WithTitle(cfg.Title))
	}

	up := cfg.Upstream
	if up.LeagueBaseURL != "" {
		opts = append(opts, scorepulse.WithLeagueBaseURL(up.LeagueBaseURL))
	}
	if up.ScheduleBaseURL != "" {
		opts = append(opts, scorepulse.WithScheduleBaseURL(up.ScheduleBaseURL))
	}
	if up.Timeout > 0 {
		opts = append(opts, scorepulse.WithUpstreamTimeout(up.Timeout.Duration()))
	}
	if up.BreakerFailures > 0 {
		cooldown := up.BreakerCooldown.Duration()
		if cooldown == 0 {
			cooldown = defaultBreakerCooldown
		}
		opts = append(opts, scorepulse.WithCircuitBreaker(up.BreakerFailures, cooldown))
	}

	p := cfg.Polling
	if p.ReevaluateEvery > 0 {
		opts = append(opts, scorepulse.WithReevaluateEvery(p.ReevaluateEvery.Duration()))
	}
	if p.MaxConcurrency > 0 {
		opts = append(opts, scorepulse.WithMaxConcurrency(p.MaxConcurrency))
	}
	if p.Timezone != "" {
		loc, err := cfg.Location()
		if err != nil {
			return nil, err
		}
		opts = append(opts, scorepulse.WithLocation(loc))
	}
	if len(p.Windows) > 0 {
		windows, err := buildWindows(p.Windows)
		if err != nil {
			return nil, err
		}
		opts = append(opts, scorepulse.WithActivityWindows(windows...))
	}

	if cfg.Cache.MaxAge > 0 {
		opts = append(opts, scorepulse.WithCacheMaxAge(cfg.Cache.MaxAge.Duration()))
	}

	s := cfg.Streams
	if s.HeldGrace > 0 {
		opts = append(opts, scorepulse.WithHeldGrace(s.HeldGrace.Duration()))
	}
	if s.RatePerSecond > 0 || s.Burst > 0 || s.MaxStreams > 0 {
		opts = append(opts, scorepulse.WithStreamLimits(s.RatePerSecond, s.Burst, s.MaxStreams))
	}

	return opts, nil
}

func buildTTLs(c CacheConfig) scorepulse.TTLs {
	return scorepulse.TTLs{
		League:        c.League.Duration(),
		Rosters:       c.Rosters.Duration(),
		Matchups:      c.Matchups.Duration(),
		LiveMatchups:  c.LiveMatchups.Duration(),
		Players:       c.Players.Duration(),
		Scoreboard:    c.Scoreboard.Duration(),
		PlayerMapping: c.PlayerMapping.Duration(),
	}
}

func buildWindows(cfgs []WindowConfig) ([]scorepulse.ActivityWindow, error) {
	windows := make([]scorepulse.ActivityWindow, 0, len(cfgs))
	for _, wc := range cfgs {
		day, err := parseWeekday(wc.Day)
		if err != nil {
			return nil, err
		}
		windows = append(windows, scorepulse.ActivityWindow{
			Weekday:  day,
			FromHour: wc.From,
			ToHour:   wc.To,
		})
	}
	return windows, nil
}
