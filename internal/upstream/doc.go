// Package upstream performs the outbound HTTP calls to the two read-only data
// providers used by scorepulse: the fantasy-league provider and the
// sports-schedule provider.
//
// The main components are:
//
//   - [Client]: HTTP client wrapper with connection pooling and a body size limit
//   - [Gateway]: typed read endpoints for both providers, each behind a circuit breaker
//   - [UpstreamError]: the error returned for transport failures and non-2xx responses
//
// The package does not cache, retry or rate limit. Those concerns live in the
// cache package above it.
package upstream
