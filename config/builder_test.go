package config

import (
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/scorepulse"
)

func TestBuildOptions_Defaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	opts, err := BuildOptions(cfg)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}

	sp, err := scorepulse.New(opts...)
	if err != nil {
		t.Fatalf("scorepulse.New() error = %v", err)
	}
	if sp.Port() != 8080 {
		t.Errorf("Port() = %d, want 8080", sp.Port())
	}
	if sp.TTLs() != scorepulse.DefaultTTLs() {
		t.Errorf("TTLs() = %+v, want defaults", sp.TTLs())
	}
}

func TestBuildOptions_AppliesConfig(t *testing.T) {
	yaml := `
port: 3001
upstream:
  breaker_failures: 2
polling:
  high_interval: 2s
  idle_interval: 15s
  timezone: UTC
  max_concurrency: 2
  windows:
    - day: sat
      from: 12
      to: 22
cache:
  live_matchups: 2s
  players: 10m
  player_mapping: 2h
streams:
  held_grace: 1m
  max_streams: 10
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	opts, err := BuildOptions(cfg)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}

	sp, err := scorepulse.New(opts...)
	if err != nil {
		t.Fatalf("scorepulse.New() error = %v", err)
	}

	if sp.Port() != 3001 {
		t.Errorf("Port() = %d, want 3001", sp.Port())
	}
	high, idle := sp.PollIntervals()
	if high != 2*time.Second || idle != 15*time.Second {
		t.Errorf("PollIntervals() = %v, %v, want 2s, 15s", high, idle)
	}

	ttls := sp.TTLs()
	if ttls.LiveMatchups != 2*time.Second {
		t.Errorf("TTLs().LiveMatchups = %v, want 2s", ttls.LiveMatchups)
	}
	if ttls.Players != 10*time.Minute {
		t.Errorf("TTLs().Players = %v, want 10m", ttls.Players)
	}
	if ttls.PlayerMapping != 2*time.Hour {
		t.Errorf("TTLs().PlayerMapping = %v, want 2h", ttls.PlayerMapping)
	}
	if ttls.League != scorepulse.DefaultTTLs().League {
		t.Errorf("TTLs().League = %v, want default", ttls.League)
	}
}

func TestBuildOptions_MaxAgeMustExceedLongestTTL(t *testing.T) {
	yaml := `
cache:
  players: 1h
  max_age: 30m
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	opts, err := BuildOptions(cfg)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}

	_, err = scorepulse.New(opts...)
	if err == nil {
		t.Fatal("scorepulse.New() expected error for max_age shorter than TTL")
	}
	if !strings.Contains(err.Error(), "must exceed") {
		t.Errorf("error = %q, want containing %q", err.Error(), "must exceed")
	}
}

func TestBuildWindows(t *testing.T) {
	windows, err := buildWindows([]WindowConfig{
		{Day: "sunday", From: 13, To: 23},
		{Day: "Mon", From: 19, To: 23},
	})
	if err != nil {
		t.Fatalf("buildWindows() error = %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("len(windows) = %d, want 2", len(windows))
	}

	want := scorepulse.ActivityWindow{Weekday: time.Monday, FromHour: 19, ToHour: 23}
	if windows[1] != want {
		t.Errorf("windows[1] = %+v, want %+v", windows[1], want)
	}

	if _, err := buildWindows([]WindowConfig{{Day: "someday"}}); err == nil {
		t.Error("buildWindows() expected error for unknown day")
	}
}
