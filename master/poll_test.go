package master

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPollScheduleDueOnFirstCheck(t *testing.T) {
	p := NewPollSchedule(time.Minute, []int{1, 2, 3})
	require.True(t, p.due(time.Now()))
}

func TestPollScheduleNotDueWhilePending(t *testing.T) {
	p := NewPollSchedule(time.Minute, []int{0})
	task := p.task()
	require.NotNil(t, task)
	require.False(t, p.due(time.Now()), "a schedule already queued must not be queued again")
}

func TestPollScheduleDueTimeComesFromCompletionNotStart(t *testing.T) {
	p := NewPollSchedule(10*time.Millisecond, []int{0})
	start := time.Now()
	p.task()

	// The run takes long enough that, measured from start, the period
	// would already have elapsed; due() must still say no until
	// markCompleted is actually called.
	later := start.Add(20 * time.Millisecond)
	require.False(t, p.due(later))

	p.markCompleted(later)
	require.False(t, p.due(later), "not due immediately after completion")
	require.True(t, p.due(later.Add(11*time.Millisecond)))
}

func TestPollScheduleTaskCarriesItselfForCompletionCallback(t *testing.T) {
	p := NewPollSchedule(time.Minute, []int{0})
	task := p.task()
	require.Same(t, p, task.pollSchedule)
	require.Equal(t, TaskKindUserPoll, task.Kind)
}
