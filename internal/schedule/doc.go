// Package schedule drives the polling loop at an interval that follows the
// game calendar.
//
// During activity windows (by default Sunday, Monday and Thursday afternoons
// and evenings) the loop ticks at the high-activity interval; otherwise it
// ticks at the idle interval. The interval is re-evaluated periodically and
// the ticker is re-armed only when it changes.
package schedule
