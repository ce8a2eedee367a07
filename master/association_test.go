package master

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/dnp3go/master/app"
	"github.com/dnp3go/master/link"
)

func testAssociation(t *testing.T) *Association {
	t.Helper()
	addr, err := link.NewEndpointAddress(1024)
	require.NoError(t, err)
	a := NewAssociation(addr, AssociationConfig{}, logrus.NewEntry(logrus.New()))
	a.state = StateIdle
	return a
}

func TestNextTaskPrioritizesSystemTasksOverUserTasks(t *testing.T) {
	a := testAssociation(t)

	userTask := NewReadTask(nil)
	a.QueueUserTask(userTask)
	sysTask := NewClearRestartIINTask()
	a.autoQueue.PushBack(sysTask)

	got := a.nextTask()
	require.Same(t, sysTask, got, "a queued system task must run before any user task")
}

func TestNextTaskPrioritizesUserTasksOverDuePolls(t *testing.T) {
	a := testAssociation(t)

	pollTask := NewReadTask(nil)
	pollTask.Kind = TaskKindUserPoll
	a.QueuePollTask(pollTask)
	userTask := NewReadTask(nil)
	a.QueueUserTask(userTask)

	got := a.nextTask()
	require.Same(t, userTask, got)
}

func TestNextTaskRunsKeepAliveLast(t *testing.T) {
	a := testAssociation(t)
	a.armKeepAlive(NewKeepAliveTask())
	pollTask := NewReadTask(nil)
	pollTask.Kind = TaskKindUserPoll
	a.QueuePollTask(pollTask)

	got := a.nextTask()
	require.Equal(t, TaskKindUserPoll, got.Kind, "a due poll must run before a pending keep-alive")
}

func TestNextTaskReturnsNilWhenDisabled(t *testing.T) {
	a := testAssociation(t)
	a.Disable()
	a.QueueUserTask(NewReadTask(nil))
	require.Nil(t, a.nextTask())
}

func TestDueForKeepAliveRespectsTimeoutAndInFlight(t *testing.T) {
	a := testAssociation(t)
	require.False(t, a.dueForKeepAlive(time.Now()), "KeepAliveTimeout == 0 disables the feature")

	a.Config.KeepAliveTimeout = time.Millisecond
	a.lastActivity = time.Now().Add(-time.Hour)
	require.True(t, a.dueForKeepAlive(time.Now()))

	a.armKeepAlive(NewKeepAliveTask())
	require.False(t, a.dueForKeepAlive(time.Now()), "must not arm a second keep-alive while one is outstanding")
}

type fixedClockHandler struct{ millis int64 }

func (h fixedClockHandler) CurrentTime() (int64, bool) { return h.millis, true }

func TestCurrentTimeUsesInstalledHandler(t *testing.T) {
	a := testAssociation(t)
	want := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	a.Handler = fixedClockHandler{millis: want.UnixMilli()}
	got := a.currentTime()
	require.Equal(t, want.UnixMilli(), got.UnixMilli())
}

func TestCurrentTimeFallsBackToWallClockWithoutHandler(t *testing.T) {
	a := testAssociation(t)
	before := time.Now()
	got := a.currentTime()
	require.WithinDuration(t, before, got, time.Second)
}

func TestOnIINSchedulesClearRestartAndFreshIntegrityPoll(t *testing.T) {
	a := testAssociation(t)
	a.onIIN(app.IINDeviceRestart)
	// ClearRestartIIN, IntegrityPoll, EnableUnsolicited
	require.Equal(t, 3, a.autoQueue.Len())
	first := a.autoQueue.Front().Value.(*Task)
	require.Equal(t, TaskKindAutoClearRestartIIN, first.Kind)
}
