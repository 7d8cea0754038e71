// Package snapshot builds the comparable projection of a league week's
// matchups that scorepulse pushes to subscribers.
//
// A [Snapshot] holds team totals and per-player points for every two-team
// matchup in a (league, week) slate, identified by a [WatchKey]. Points are
// carried as fixed-precision [Points] so that two builds from the same
// upstream data always serialize to identical bytes.
package snapshot
