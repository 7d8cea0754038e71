// Package scorepulse serves live fantasy-football matchup scores to many
// concurrent viewers while keeping upstream traffic bounded.
//
// Clients subscribe to a league and week over Server-Sent Events or a
// websocket. For every league week that has at least one subscriber, a
// polling loop rebuilds a compact matchup snapshot from the fantasy-league
// provider, compares it with the last one sent and pushes it only when a
// score or team actually changed. Upstream responses go through a TTL cache
// that coalesces concurrent fetches and falls back to the last good payload
// when a provider fails, so a provider outage never reaches subscribers as
// an error.
//
// # Quick Start
//
//	sp, _ := scorepulse.New(scorepulse.WithPort(3001))
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	sp.Start(ctx) // blocks until ctx is cancelled
//
// Then open /stream/matchup/{leagueId}/{week} with an EventSource.
//
// # Polling
//
// Polling runs every 3 seconds during typical game windows (Sunday, Monday
// and Thursday afternoons and evenings) and every 10 seconds otherwise. The
// windows are re-evaluated hourly. See [WithPollIntervals] and
// [WithActivityWindows].
//
// # Architecture
//
// ScorePulse consists of several internal packages (under internal/):
//
//   - internal/upstream: provider HTTP client with per-provider circuit breakers
//   - internal/cache: TTL cache with stale fallback and request coalescing
//   - internal/snapshot: snapshot model, scoring and the snapshot builder
//   - internal/registry: subscribers grouped by league week
//   - internal/broadcast: change detection and fan-out
//   - internal/schedule: activity-aware polling loop
//   - internal/server: HTTP routes, streams and limits
//   - internal/metrics: Prometheus collectors
//
// The internal packages are not part of the public API and may change
// without notice.
package scorepulse
