// Package cache provides the response cache that sits between scorepulse and
// the upstream providers.
//
// Every provider call goes through [Cache.GetOrFetch], which serves fresh
// entries without touching the network, coalesces concurrent misses for the
// same key into one upstream call, and falls back to the last good value when
// a refresh fails. [Sources] binds each provider endpoint to its cache key and
// time-to-live.
package cache
