package scorepulse

import (
	"github.com/jpalmerr/scorepulse/internal/cache"
	"github.com/jpalmerr/scorepulse/internal/schedule"
	"github.com/jpalmerr/scorepulse/internal/snapshot"
)

// Snapshot is the projection of one league week sent to subscribers. It
// carries the two-team matchups with their starter totals and per-player
// points.
type Snapshot = snapshot.Snapshot

// MatchupPair is a head-to-head matchup inside a [Snapshot].
type MatchupPair = snapshot.MatchupPair

// TeamSnapshot is one side of a [MatchupPair].
type TeamSnapshot = snapshot.TeamSnapshot

// Points is a fantasy score in hundredths of a point. It encodes as a plain
// JSON number.
type Points = snapshot.Points

// WatchKey identifies a league and week that subscribers can watch.
type WatchKey = snapshot.WatchKey

// ActivityWindow is a span of hours on one weekday during which polling runs
// at the high-activity interval. Both hours are inclusive.
type ActivityWindow = schedule.Window

// TTLs sets how long each category of upstream data is served from cache.
// Zero fields keep their defaults.
type TTLs = cache.TTLs

// DefaultTTLs returns the cache TTLs used when [WithTTLs] is not given.
func DefaultTTLs() TTLs {
	return cache.DefaultTTLs()
}

// DefaultActivityWindows returns the game windows used when
// [WithActivityWindows] is not given: Sunday, Monday and Thursday from
// 13:00 to 23:59.
func DefaultActivityWindows() []ActivityWindow {
	return schedule.DefaultActivityTable()
}
