package daemon

import (
	"time"

	"github.com/robfig/cron/v3"
)

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule parses a 5-field cron expression (seconds fixed to 0).
func ParseSchedule(expr string) (cron.Schedule, error) {
	return scheduleParser.Parse(expr)
}

// mostRecentFireAtOrBefore walks sched forward from (now - lookback) and
// returns the latest fire time that is <= now, or the zero Time if the
// schedule never fires within the lookback window.
func mostRecentFireAtOrBefore(sched cron.Schedule, now time.Time, lookback time.Duration) time.Time {
	var last time.Time
	t := sched.Next(now.Add(-lookback))
	for !t.IsZero() && !t.After(now) {
		last = t
		t = sched.Next(t)
	}
	return last
}

// Decision is what the scheduler tick should do for one watch.
type Decision int

const (
	// DecisionNone means no new slot has fired since the recorded state.
	DecisionNone Decision = iota
	// DecisionFire means a rehearsal should be dispatched for the most
	// recent fire time.
	DecisionFire
	// DecisionAdvanceOnly means one or more slots were missed and catch-up
	// is disabled: the state silently advances without dispatching.
	DecisionAdvanceOnly
)

// EvaluateTick decides what to do for a single watch's cron schedule at
// tick time now, given the stack's last recorded state (zero value if
// never recorded) and whether catch-up is enabled. It returns the decision
// and, for DecisionFire/DecisionAdvanceOnly, the new state value to persist
// before any dispatch happens.
func EvaluateTick(sched cron.Schedule, now time.Time, lastState time.Time, catchUp bool) (Decision, time.Time) {
	lastFire := mostRecentFireAtOrBefore(sched, now, 24*time.Hour)
	if lastFire.IsZero() || !lastFire.After(lastState) {
		return DecisionNone, lastState
	}
	if catchUp {
		return DecisionFire, lastFire
	}
	return DecisionAdvanceOnly, lastFire
}
