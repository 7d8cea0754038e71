// Package registry tracks live subscriber streams grouped by [snapshot.WatchKey].
//
// The registry only records who is watching what. Delivery ordering lives on
// [Subscriber]: each subscriber remembers the last snapshot version it was
// sent and refuses anything older, so a snapshot handed over on attach and a
// concurrent fan-out can never reach the same stream twice or out of order.
//
// The set of keys with at least one subscriber drives polling: a key
// disappears from [Registry.ActiveKeys] as soon as its last subscriber is
// removed.
package registry
