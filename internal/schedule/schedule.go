// Package schedule computes the next execution instant for recurring jobs.
// All arithmetic is done in UTC and every computed instant is strictly in
// the future relative to its reference time.
package schedule

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownPolicy is returned when a policy string does not name a known
// iteration policy. Unknown policies are rejected at job creation time;
// there is no silent fallback cadence.
var ErrUnknownPolicy = errors.New("unknown iteration policy")

// Policy is a recurrence rule for a scheduled job.
type Policy string

const (
	Hourly Policy = "hourly"
	Daily  Policy = "daily"

	WeeklyMonday    Policy = "weekly_monday"
	WeeklyTuesday   Policy = "weekly_tuesday"
	WeeklyWednesday Policy = "weekly_wednesday"
	WeeklyThursday  Policy = "weekly_thursday"
	WeeklyFriday    Policy = "weekly_friday"
	WeeklySaturday  Policy = "weekly_saturday"
	WeeklySunday    Policy = "weekly_sunday"
)

var weekdays = map[Policy]time.Weekday{
	WeeklyMonday:    time.Monday,
	WeeklyTuesday:   time.Tuesday,
	WeeklyWednesday: time.Wednesday,
	WeeklyThursday:  time.Thursday,
	WeeklyFriday:    time.Friday,
	WeeklySaturday:  time.Saturday,
	WeeklySunday:    time.Sunday,
}

// ParsePolicy validates s and returns it as a Policy.
func ParsePolicy(s string) (Policy, error) {
	p := Policy(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
	return p, nil
}

// Valid reports whether p names a known iteration policy.
func (p Policy) Valid() bool {
	if p == Hourly || p == Daily {
		return true
	}
	_, ok := weekdays[p]
	return ok
}

// Period returns the fixed cadence of p.
func (p Policy) Period() time.Duration {
	switch p {
	case Hourly:
		return time.Hour
	case Daily:
		return 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// NextRun returns the first scheduled instant strictly after ref:
// the next top-of-hour for Hourly, the next midnight UTC for Daily, and
// the next occurrence of the policy's weekday at midnight UTC for weekly
// policies. A reference that already sits exactly on a scheduled instant
// advances a full period.
func NextRun(ref time.Time, p Policy) (time.Time, error) {
	ref = ref.UTC()
	switch {
	case p == Hourly:
		return ref.Truncate(time.Hour).Add(time.Hour), nil
	case p == Daily:
		return nextMidnight(ref), nil
	default:
		wd, ok := weekdays[p]
		if !ok {
			return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, string(p))
		}
		t := nextMidnight(ref)
		for t.Weekday() != wd {
			t = t.AddDate(0, 0, 1)
		}
		return t, nil
	}
}

// Advance moves an existing next-run instant one step forward. When prev has
// already passed (prev <= now) the schedule has missed at least one run, so
// the result snaps to NextRun(now, p) rather than scheduling in the past.
// Otherwise exactly one period is added to prev, keeping the cadence
// drift-free.
func Advance(prev time.Time, p Policy, now time.Time) (time.Time, error) {
	if !p.Valid() {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, string(p))
	}
	if !prev.After(now) {
		return NextRun(now, p)
	}
	return prev.UTC().Add(p.Period()), nil
}

// nextMidnight returns the first 00:00 UTC strictly after ref.
func nextMidnight(ref time.Time) time.Time {
	y, m, d := ref.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
