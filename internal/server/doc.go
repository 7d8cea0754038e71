// Package server provides the HTTP surface of scorepulse.
//
// Routes:
//
//   - GET /stream/matchup/{leagueId}/{week}: Server-Sent Events stream of
//     matchup snapshots for one league and week
//   - GET /ws/matchup/{leagueId}/{week}: the same stream over a websocket
//   - GET /api/...: read-through proxy routes served from the response cache
//   - GET /health: subscriber, cache and held snapshot counts
//   - GET /metrics: Prometheus metrics
//   - GET /: the embedded dashboard
//
// Stream handlers register a subscriber with the registry, hand it to the
// broadcaster for the held snapshot, then forward whatever the broadcaster
// delivers until the client disconnects or the server shuts down. New
// streams are admitted through a per-IP rate limit and a global cap.
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
