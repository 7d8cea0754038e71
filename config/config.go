// Package config provides YAML configuration parsing for ScorePulse.
//
// This package enables running ScorePulse as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
// Every field is optional.
//
// Example configuration:
//
//	port: 3001
//	log_level: info
//
//	upstream:
//	  league_base_url: ${LEAGUE_API:-https://api.sleeper.app/v1}
//	  timeout: 10s
//
//	polling:
//	  high_interval: 3s
//	  idle_interval: 10s
//	  timezone: America/New_York
//	  windows:
//	    - day: sunday
//	      from: 13
//	      to: 23
//
//	cache:
//	  live_matchups: 3s
//	  players: 5m
//
//	streams:
//	  held_grace: 10m
//	  max_streams: 1000
//
// After the file is parsed, SCOREPULSE_* environment variables override
// selected fields (see [Load]).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// minPollInterval is the minimum allowed polling interval. It keeps a
// misconfigured deployment from hammering the upstream providers.
const minPollInterval = 1 * time.Second

// envPrefix prefixes every environment override.
const envPrefix = "SCOREPULSE_"

// Config is the root configuration structure for ScorePulse.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "ScorePulse" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	Upstream UpstreamConfig `yaml:"upstream"`
	Polling  PollingConfig  `yaml:"polling"`
	Cache    CacheConfig    `yaml:"cache"`
	Streams  StreamsConfig  `yaml:"streams"`
}

// UpstreamConfig configures the provider gateway.
type UpstreamConfig struct {
	// LeagueBaseURL is the fantasy-league provider root.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	LeagueBaseURL string `yaml:"league_base_url"`

	// ScheduleBaseURL is the sports-schedule provider root.
	// Supports environment variable substitution.
	ScheduleBaseURL string `yaml:"schedule_base_url"`

	// Timeout bounds each upstream request. Zero means no explicit timeout.
	Timeout Duration `yaml:"timeout"`

	// BreakerFailures is the number of consecutive failures that opens a
	// provider's circuit.
	BreakerFailures uint32 `yaml:"breaker_failures"`

	// BreakerCooldown is how long an open circuit stays open.
	BreakerCooldown Duration `yaml:"breaker_cooldown"`
}

// PollingConfig configures the adaptive scheduler.
type PollingConfig struct {
	// HighInterval is used inside activity windows. Defaults to 3s.
	HighInterval Duration `yaml:"high_interval"`

	// IdleInterval is used outside activity windows. Defaults to 10s.
	IdleInterval Duration `yaml:"idle_interval"`

	// ReevaluateEvery is how often the interval is recomputed. Defaults to 1h.
	ReevaluateEvery Duration `yaml:"reevaluate_every"`

	// Timezone is an IANA zone name the windows are read in. Defaults to
	// the server's local zone.
	Timezone string `yaml:"timezone"`

	// Windows replaces the default game windows when non-empty.
	Windows []WindowConfig `yaml:"windows"`

	// MaxConcurrency bounds concurrent snapshot builds.
	MaxConcurrency int `yaml:"max_concurrency"`

	// FetchOnSubscribe builds immediately when a new league week is watched.
	FetchOnSubscribe bool `yaml:"fetch_on_subscribe"`

	// PlayerWarmup keeps the player catalog cache warm during polling.
	// Unset keeps the library default, which is enabled.
	PlayerWarmup *bool `yaml:"player_warmup"`
}

// WindowConfig is one activity window. From and To are inclusive hours.
type WindowConfig struct {
	Day  string `yaml:"day"`
	From int    `yaml:"from"`
	To   int    `yaml:"to"`
}

// CacheConfig sets per-category TTLs. Zero keeps the default.
type CacheConfig struct {
	League        Duration `yaml:"league"`
	Rosters       Duration `yaml:"rosters"`
	Matchups      Duration `yaml:"matchups"`
	LiveMatchups  Duration `yaml:"live_matchups"`
	Players       Duration `yaml:"players"`
	Scoreboard    Duration `yaml:"scoreboard"`
	PlayerMapping Duration `yaml:"player_mapping"`

	// MaxAge is how long an unrefreshed entry is kept for stale fallback.
	MaxAge Duration `yaml:"max_age"`
}

// StreamsConfig configures subscriber streams.
type StreamsConfig struct {
	// HeldGrace keeps the last snapshot of an unwatched league week.
	HeldGrace Duration `yaml:"held_grace"`

	// RatePerSecond and Burst limit new streams per client IP.
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`

	// MaxStreams caps concurrent streams. Zero means unlimited.
	MaxStreams int64 `yaml:"max_streams"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envOverrides are the fields settable from the environment. Pointers stay
// nil when the variable is unset.
type envOverrides struct {
	Title           *string        `env:"TITLE"`
	Port            *int           `env:"PORT"`
	LogLevel        *string        `env:"LOG_LEVEL"`
	LeagueBaseURL   *string        `env:"LEAGUE_BASE_URL"`
	ScheduleBaseURL *string        `env:"SCHEDULE_BASE_URL"`
	UpstreamTimeout *time.Duration `env:"UPSTREAM_TIMEOUT"`
	HighInterval    *time.Duration `env:"HIGH_INTERVAL"`
	IdleInterval    *time.Duration `env:"IDLE_INTERVAL"`
	Timezone        *string        `env:"TIMEZONE"`
	MaxStreams      *int64         `env:"MAX_STREAMS"`
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with values
// from lookup.
func expandEnvVars(s string, lookup func(string) (string, bool)) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := lookup(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file, then applies
// SCOREPULSE_* environment overrides (SCOREPULSE_PORT,
// SCOREPULSE_LOG_LEVEL, SCOREPULSE_LEAGUE_BASE_URL, ...).
//
// An empty path skips the file and builds the config from defaults and the
// environment alone.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return parse(data, env.ToMap(os.Environ()))
}

// Parse parses YAML configuration data without environment overrides.
//
// ${VAR} references in URLs are still expanded from the process
// environment. Defaults are applied and the result is validated.
func Parse(data []byte) (*Config, error) {
	return parse(data, nil)
}

func parse(data []byte, environ map[string]string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	lookup := os.LookupEnv
	if environ != nil {
		lookup = func(k string) (string, bool) {
			v, ok := environ[k]
			return v, ok
		}
	}
	if err := cfg.expand(lookup); err != nil {
		return nil, err
	}

	if environ != nil {
		if err := cfg.applyEnv(environ); err != nil {
			return nil, err
		}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) expand(lookup func(string) (string, bool)) error {
	var err error
	if c.Upstream.LeagueBaseURL, err = expandEnvVars(c.Upstream.LeagueBaseURL, lookup); err != nil {
		return fmt.Errorf("upstream.league_base_url: %w", err)
	}
	if c.Upstream.ScheduleBaseURL, err = expandEnvVars(c.Upstream.ScheduleBaseURL, lookup); err != nil {
		return fmt.Errorf("upstream.schedule_base_url: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(environ map[string]string) error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: envPrefix, Environment: environ}); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}

	if o.Title != nil {
		c.Title = *o.Title
	}
	if o.Port != nil {
		c.Port = *o.Port
	}
	if o.LogLevel != nil {
		c.LogLevel = *o.LogLevel
	}
	if o.LeagueBaseURL != nil {
		c.Upstream.LeagueBaseURL = *o.LeagueBaseURL
	}
	if o.ScheduleBaseURL != nil {
		c.Upstream.ScheduleBaseURL = *o.ScheduleBaseURL
	}
	if o.UpstreamTimeout != nil {
		c.Upstream.Timeout = Duration(*o.UpstreamTimeout)
	}
	if o.HighInterval != nil {
		c.Polling.HighInterval = Duration(*o.HighInterval)
	}
	if o.IdleInterval != nil {
		c.Polling.IdleInterval = Duration(*o.IdleInterval)
	}
	if o.Timezone != nil {
		c.Polling.Timezone = *o.Timezone
	}
	if o.MaxStreams != nil {
		c.Streams.MaxStreams = *o.MaxStreams
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Polling.HighInterval == 0 {
		c.Polling.HighInterval = Duration(3 * time.Second)
	}
	if c.Polling.IdleInterval == 0 {
		c.Polling.IdleInterval = Duration(10 * time.Second)
	}
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if _, err := c.Level(); err != nil {
		return err
	}

	for name, raw := range map[string]string{
		"upstream.league_base_url":   c.Upstream.LeagueBaseURL,
		"upstream.schedule_base_url": c.Upstream.ScheduleBaseURL,
	} {
		if raw == "" {
			continue
		}
		if err := validateURL(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Upstream.Timeout < 0 {
		return fmt.Errorf("upstream.timeout cannot be negative, got %s", c.Upstream.Timeout.Duration())
	}
	if c.Upstream.BreakerCooldown < 0 {
		return fmt.Errorf("upstream.breaker_cooldown cannot be negative, got %s", c.Upstream.BreakerCooldown.Duration())
	}

	p := c.Polling
	if p.HighInterval.Duration() < minPollInterval {
		return fmt.Errorf("polling.high_interval must be at least %s, got %s", minPollInterval, p.HighInterval.Duration())
	}
	if p.IdleInterval < p.HighInterval {
		return fmt.Errorf("polling.idle_interval (%s) must not be shorter than polling.high_interval (%s)",
			p.IdleInterval.Duration(), p.HighInterval.Duration())
	}
	if p.ReevaluateEvery < 0 {
		return fmt.Errorf("polling.reevaluate_every cannot be negative, got %s", p.ReevaluateEvery.Duration())
	}
	if p.MaxConcurrency < 0 {
		return fmt.Errorf("polling.max_concurrency cannot be negative, got %d", p.MaxConcurrency)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for i, w := range p.Windows {
		if _, err := parseWeekday(w.Day); err != nil {
			return fmt.Errorf("polling.windows[%d]: %w", i, err)
		}
		if w.From < 0 || w.To > 23 || w.From > w.To {
			return fmt.Errorf("polling.windows[%d]: hours must satisfy 0 <= from <= to <= 23, got %d-%d", i, w.From, w.To)
		}
	}

	for name, d := range map[string]Duration{
		"cache.league":         c.Cache.League,
		"cache.rosters":        c.Cache.Rosters,
		"cache.matchups":       c.Cache.Matchups,
		"cache.live_matchups":  c.Cache.LiveMatchups,
		"cache.players":        c.Cache.Players,
		"cache.scoreboard":     c.Cache.Scoreboard,
		"cache.player_mapping": c.Cache.PlayerMapping,
		"cache.max_age":        c.Cache.MaxAge,
		"streams.held_grace":   c.Streams.HeldGrace,
	} {
		if d < 0 {
			return fmt.Errorf("%s cannot be negative, got %s", name, d.Duration())
		}
	}

	if c.Streams.RatePerSecond < 0 || c.Streams.Burst < 0 || c.Streams.MaxStreams < 0 {
		return errors.New("streams limits cannot be negative")
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// Location returns the time zone activity windows are read in.
func (c *Config) Location() (*time.Location, error) {
	if c.Polling.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Polling.Timezone)
	if err != nil {
		return nil, fmt.Errorf("polling.timezone: %w", err)
	}
	return loc, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme == "" {
		return errors.New("url must have a scheme (http:// or https://)")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

func parseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown day %q", s)
	}
	return d, nil
}
