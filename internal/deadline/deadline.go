// Package deadline implements the cooperative wall-clock budget shared by
// every stage of a selection request.
//
// A Deadline never cancels work. Stages check it at entry and before each
// expensive call; once it is near they switch to their fastest fallback and
// stop starting new catalog calls, while calls already in flight finish.
package deadline

import "time"

// Defaults sized to stay under a 10s serverless execution limit.
const (
	DefaultBudget = 9 * time.Second
	DefaultMargin = 1500 * time.Millisecond
)

// Deadline is a soft wall-clock limit. The zero value never expires.
type Deadline struct {
	start  time.Time
	at     time.Time
	margin time.Duration
	now    func() time.Time
}

// New starts a deadline that expires budget from now.
func New(budget time.Duration) Deadline {
	return NewWithClock(budget, DefaultMargin, time.Now)
}

// NewWithClock is New with an explicit "near" margin and clock, for tests.
func NewWithClock(budget, margin time.Duration, now func() time.Time) Deadline {
	if now == nil {
		now = time.Now
	}
	start := now()
	return Deadline{start: start, at: start.Add(budget), margin: margin, now: now}
}

// None returns a deadline that never expires.
func None() Deadline {
	return Deadline{}
}

func (d Deadline) clock() time.Time {
	if d.now == nil {
		return time.Now()
	}
	return d.now()
}

// Exceeded reports whether the budget is spent.
func (d Deadline) Exceeded() bool {
	if d.at.IsZero() {
		return false
	}
	return !d.clock().Before(d.at)
}

// Near reports whether less than the margin remains; stages should only run
// fast fallbacks from here on.
func (d Deadline) Near() bool {
	if d.at.IsZero() {
		return false
	}
	return !d.clock().Before(d.at.Add(-d.margin))
}

// Remaining returns the time left, never negative. A zero Deadline reports
// a very large value.
func (d Deadline) Remaining() time.Duration {
	if d.at.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	if r := d.at.Sub(d.clock()); r > 0 {
		return r
	}
	return 0
}

// Elapsed returns the time since the deadline started.
func (d Deadline) Elapsed() time.Duration {
	if d.start.IsZero() {
		return 0
	}
	return d.clock().Sub(d.start)
}
