// Package broadcast turns periodic snapshot builds into change events.
//
// On every [Broadcaster.Tick] each actively watched key gets one pass: build
// a snapshot, compare its fingerprint with the held one and, only when they
// differ, store it under a new version and write it to every subscriber of
// that key. Subscribers whose write fails are removed from the registry.
//
// Passes for different keys run concurrently up to a configured bound. A key
// whose previous pass has not finished is skipped for that tick, so a slow
// upstream never stacks up passes or delays other keys.
//
// Held snapshots outlive their subscribers for a grace window so a quick
// reconnect gets data immediately; after that they are dropped.
package broadcast
