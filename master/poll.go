package master

import (
	"time"

	"github.com/dnp3go/master/app"
)

// PollSchedule is a user-configured periodic poll, spec.md §4.6's
// "Poll" task type. Due time is computed from the prior poll's
// completion time rather than a fixed wall-clock tick, per spec.md's
// invariant that back-to-back polls never overlap when an outstation is
// slow to respond.
type PollSchedule struct {
	Period  time.Duration
	Classes []int

	lastCompleted time.Time
	pending       bool
}

// NewPollSchedule builds a recurring poll for the given classes.
func NewPollSchedule(period time.Duration, classes []int) *PollSchedule {
	return &PollSchedule{Period: period, Classes: classes}
}

// due reports whether the poll's period has elapsed since its last
// completion (zero value means "never run", so it is due immediately).
// A poll already enqueued or in flight is never due again, so a slow
// outstation cannot pile up duplicate requests for the same schedule.
func (p *PollSchedule) due(now time.Time) bool {
	if p.pending {
		return false
	}
	if p.lastCompleted.IsZero() {
		return true
	}
	return now.Sub(p.lastCompleted) >= p.Period
}

// markCompleted records that this schedule's task has finished (success
// or failure), computing the next due time from completion rather than
// from when the task started, spec.md §3 invariant (v).
func (p *PollSchedule) markCompleted(at time.Time) {
	p.pending = false
	p.lastCompleted = at
}

// task builds the Task for this schedule's next run and marks the
// schedule pending so scheduleDuePolls does not enqueue it again before
// it finishes.
func (p *PollSchedule) task() *Task {
	p.pending = true
	t := NewReadTask(app.ClassRequestHeaders(p.Classes))
	t.Kind = TaskKindUserPoll
	t.pollSchedule = p
	return t
}
