package master

import (
	"container/list"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dnp3go/master/app"
	"github.com/dnp3go/master/link"
)

// AssocState names the reactive states of spec.md §4.6's per-association
// state machine. The startup chain (Enable, reconnected) walks
// NeedsDisableUnsolicited -> NeedsIntegrityPoll -> NeedsEnableUnsolicited
// -> Idle, and task dispatch and completion move in and out of
// TaskInFlight. IIN bits in a response (NEED_TIME included) do not set a
// state: onIIN queues the matching task in autoQueue instead.
type AssocState int

const (
	StateDisabled AssocState = iota
	StateNeedsIntegrityPoll
	StateNeedsDisableUnsolicited
	StateNeedsEnableUnsolicited
	StateNeedsTime
	StateNeedsRestartRecovery
	StateIdle
	StateTaskInFlight
)

func (s AssocState) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateNeedsIntegrityPoll:
		return "needs_integrity_poll"
	case StateNeedsDisableUnsolicited:
		return "needs_disable_unsolicited"
	case StateNeedsEnableUnsolicited:
		return "needs_enable_unsolicited"
	case StateNeedsTime:
		return "needs_time"
	case StateNeedsRestartRecovery:
		return "needs_restart_recovery"
	case StateIdle:
		return "idle"
	case StateTaskInFlight:
		return "task_in_flight"
	}
	return "unknown"
}

// Association tracks one outstation's reactive state and task queues,
// spec.md §4.6. It is owned entirely by its Channel's runner goroutine;
// callers interact with it only by enqueuing tasks or reading exported
// snapshots, matching the teacher's single-writer session state.
type Association struct {
	Address link.EndpointAddress
	Config  AssociationConfig

	// ReadHandler receives every measurement dispatched from a solicited
	// or unsolicited response addressed to this association, spec.md
	// §4.4/§4.8. Nil means no one is listening; Dispatch is simply
	// skipped.
	ReadHandler app.ReadHandler
	Handler     AssociationHandler
	Info        AssociationInformation

	mu    sync.Mutex
	state AssocState

	// startupState records which Needs* state produced the task
	// currently in flight, so finishTask knows which link in the
	// Disable-Unsol->IntegrityPoll->Enable-Unsol startup chain to
	// advance to next. It is meaningless outside StateTaskInFlight.
	startupState AssocState

	userTasks      *list.List // *Task, FIFO, spec.md §4.6 priority tier 2
	autoQueue      *list.List // *Task, reactive/system tasks, priority tier 1
	pollQueue      *list.List // *Task, due polls, priority tier 3
	keepAlive      *Task      // pending keep-alive, priority tier 4 (lowest)

	lastPollCompleted map[TaskKind]time.Time
	retryBudgetUsed    int
	seq                uint8
	lastActivity       time.Time

	log *logrus.Entry
}

// nextSeq returns the next application-layer sequence number (0-15),
// rolling over per IEEE 1815 §4.2.2.
func (a *Association) nextSeq() uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.seq
	a.seq = (a.seq + 1) & 0x0F
	return s
}

// NewAssociation builds an Association in StateDisabled; Enable starts
// its reactive lifecycle.
func NewAssociation(addr link.EndpointAddress, cfg AssociationConfig, log *logrus.Entry) *Association {
	cfg.Check()
	return &Association{
		Address:           addr,
		Config:            cfg,
		state:             StateDisabled,
		userTasks:         list.New(),
		autoQueue:         list.New(),
		pollQueue:         list.New(),
		lastPollCompleted: make(map[TaskKind]time.Time),
		lastActivity:      time.Now(),
		log:               log.WithField("association", addr.String()),
	}
}

// Enable transitions Disabled into the startup chain
// NeedsDisableUnsolicited->NeedsIntegrityPoll->NeedsEnableUnsolicited
// (or straight to Idle if IntegrityAtStartup is false), spec.md
// scenario 1's entry point.
func (a *Association) Enable() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enterStartupChain()
	a.log.Debug("association enabled")
}

// enterStartupChain (re-)starts the Disable-Unsol -> IntegrityPoll ->
// Enable-Unsol sequence, used both by Enable and by reconnected, spec.md
// scenario 6's "reconnect must re-run the startup sequence". Callers
// must already hold a.mu.
func (a *Association) enterStartupChain() {
	if a.state != StateDisabled && a.state != StateIdle {
		return
	}
	if a.Config.IntegrityAtStartup {
		a.state = StateNeedsDisableUnsolicited
	} else {
		a.state = StateIdle
	}
}

// reconnected re-enters the startup chain for an already-enabled
// association after a fresh connection is established, spec.md scenario
// 6. A still-Disabled association is left untouched; Enable will start
// its own chain whenever the caller enables it.
func (a *Association) reconnected() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateDisabled {
		return
	}
	a.autoQueue.Init()
	a.pollQueue.Init()
	a.keepAlive = nil
	a.state = StateIdle
	a.enterStartupChain()
	a.log.Debug("association re-entering startup sequence after reconnect")
}

// Disable transitions to StateDisabled, discarding any queued automatic
// tasks and failing every queued user task with ErrShutdown.
func (a *Association) Disable() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = StateDisabled
	a.autoQueue.Init()
	a.pollQueue.Init()
	a.keepAlive = nil
	for e := a.userTasks.Front(); e != nil; e = e.Next() {
		e.Value.(*Task).complete(app.Response{}, ErrShutdown)
	}
	a.userTasks.Init()
	a.log.Debug("association disabled")
}

// QueueUserTask enqueues a caller-submitted task, spec.md §4.6's
// priority tier below the reactive/system tasks in autoQueue.
func (a *Association) QueueUserTask(t *Task) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.userTasks.PushBack(t)
}

// QueuePollTask enqueues a due periodic poll, spec.md §4.6's
// "due polls" priority tier (below user tasks, above keep-alive).
func (a *Association) QueuePollTask(t *Task) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pollQueue.PushBack(t)
}

// SetInformation installs the capability interface that receives task
// and unsolicited-response lifecycle callbacks, spec.md's design notes
// on AssociationInformation. Safe to call from any goroutine.
func (a *Association) SetInformation(info AssociationInformation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Info = info
}

// touchActivity records that traffic (a completed exchange or an
// unsolicited response) was just observed, resetting the keep-alive
// clock, spec.md §4.7.
func (a *Association) touchActivity() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastActivity = time.Now()
}

// dueForKeepAlive reports whether no traffic has been observed within
// Config.KeepAliveTimeout and no keep-alive is already outstanding.
// KeepAliveTimeout == 0 disables the feature.
func (a *Association) dueForKeepAlive(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Config.KeepAliveTimeout == 0 || a.keepAlive != nil {
		return false
	}
	return now.Sub(a.lastActivity) >= a.Config.KeepAliveTimeout
}

// armKeepAlive records t as the single outstanding keep-alive task.
func (a *Association) armKeepAlive(t *Task) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keepAlive = t
}

// currentTime returns the timestamp to write back to the outstation for
// a TimeSync task, consulting a.Handler if one is installed and falls
// back to the wall clock otherwise, spec.md's AssociationHandler design
// note. Callers must already hold a.mu; it never takes the lock itself
// so that the handler callback can't deadlock against it.
func (a *Association) currentTime() time.Time {
	if a.Handler != nil {
		if ms, ok := a.Handler.CurrentTime(); ok {
			return time.UnixMilli(ms)
		}
	}
	return time.Now()
}

// onIIN updates reactive state from a response's Internal Indications
// field, spec.md §4.6 "reactive triggers": NEED_TIME schedules a
// TimeSync, DEVICE_RESTART schedules ClearRestartIIN + a fresh integrity
// poll + re-enabling unsolicited reporting (scenario 5),
// EVENT_BUFFER_OVERFLOW schedules a fresh integrity poll, and
// CLASS_1/2/3_EVENTS bits schedule an event scan.
func (a *Association) onIIN(iin app.IIN) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if iin.Has(app.IINDeviceRestart) {
		a.autoQueue.PushFront(NewClearRestartIINTask())
		a.autoQueue.PushBack(NewIntegrityPollTask([]int{0, 1, 2, 3}))
		a.autoQueue.PushBack(NewEnableUnsolicitedTask(a.Config.EnableUnsolClasses))
		a.log.WithField("iin", "device_restart").Info("outstation restart observed")
	}
	if iin.Has(app.IINEventBufferOverflow) {
		a.autoQueue.PushBack(NewIntegrityPollTask([]int{0, 1, 2, 3}))
		a.log.WithField("iin", "event_buffer_overflow").Warn("outstation event buffer overflowed")
	}
	if iin.Has(app.IINNeedTime) && a.Config.AutoTimeSync != TimeSyncNone {
		a.autoQueue.PushBack(NewTimeSyncTask(app.NewTime(a.currentTime())))
	}
	classes := eventClassesFromIIN(iin)
	if len(classes) > 0 {
		a.autoQueue.PushBack(NewEventScanTask(classes))
	}
}

func eventClassesFromIIN(iin app.IIN) []int {
	var out []int
	if iin.Has(app.IINClass1Events) {
		out = append(out, 1)
	}
	if iin.Has(app.IINClass2Events) {
		out = append(out, 2)
	}
	if iin.Has(app.IINClass3Events) {
		out = append(out, 3)
	}
	return out
}

// nextTask returns the next task to run, consuming a state-machine
// transition task first (NeedsDisableUnsolicited/NeedsIntegrityPoll/
// NeedsEnableUnsolicited/NeedsTime, in that order as the startup chain
// moves through them), then autoQueue's reactive system tasks
// (ClearRestartIIN/DisableUnsol/IntegrityPoll/EnableUnsol/event scans),
// then user tasks (FIFO), then due polls, then keep-alive — spec.md
// §4.6's literal priority list: "system tasks > user tasks > due polls >
// keep-alive". It returns nil when the association is Disabled or has
// nothing runnable. Every branch records the consumed state in
// a.startupState so finishTask knows which link of the startup chain,
// if any, to advance.
func (a *Association) nextTask() *Task {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case StateDisabled:
		return nil
	case StateNeedsDisableUnsolicited:
		a.startupState = a.state
		a.state = StateTaskInFlight
		return NewDisableUnsolicitedTask(a.Config.DisableUnsolClasses)
	case StateNeedsIntegrityPoll:
		a.startupState = a.state
		a.state = StateTaskInFlight
		return NewIntegrityPollTask(a.Config.StartupIntegrityClasses)
	case StateNeedsEnableUnsolicited:
		a.startupState = a.state
		a.state = StateTaskInFlight
		return NewEnableUnsolicitedTask(a.Config.EnableUnsolClasses)
	case StateNeedsTime:
		a.startupState = a.state
		a.state = StateTaskInFlight
		return NewTimeSyncTask(app.NewTime(a.currentTime()))
	}

	if a.state != StateIdle {
		return nil
	}
	if e := a.autoQueue.Front(); e != nil {
		a.autoQueue.Remove(e)
		a.startupState = StateIdle
		a.state = StateTaskInFlight
		return e.Value.(*Task)
	}
	if e := a.userTasks.Front(); e != nil {
		a.userTasks.Remove(e)
		a.startupState = StateIdle
		a.state = StateTaskInFlight
		return e.Value.(*Task)
	}
	if e := a.pollQueue.Front(); e != nil {
		a.pollQueue.Remove(e)
		a.startupState = StateIdle
		a.state = StateTaskInFlight
		return e.Value.(*Task)
	}
	if a.keepAlive != nil {
		t := a.keepAlive
		a.keepAlive = nil
		a.startupState = StateIdle
		a.state = StateTaskInFlight
		return t
	}
	return nil
}

// nextStartupState reports which state follows the just-finished link
// of the Disable-Unsol -> IntegrityPoll -> Enable-Unsol startup chain
// (a.startupState), spec.md scenario 1. Any other originating state —
// including StateIdle, recorded by nextTask for every non-chain task —
// simply returns to Idle.
func (a *Association) nextStartupState() AssocState {
	switch a.startupState {
	case StateNeedsDisableUnsolicited:
		return StateNeedsIntegrityPoll
	case StateNeedsIntegrityPoll:
		return StateNeedsEnableUnsolicited
	}
	return StateIdle
}

// checkRetryBudget increments the association's retry counter when an
// auto-task completes without clearing the IIN bit that triggered it —
// NEED_TIME for a TimeSync task, EVENT_BUFFER_OVERFLOW for the integrity
// poll it schedules — spec.md scenario 3's retry-budget decision. A
// cleared bit resets the counter to zero; any other task kind leaves it
// unchanged.
// Callers must already hold a.mu. It returns ErrTaskTooManyRetries once
// Config.AutoTaskRetryBudget is exceeded, and resets the counter so the
// chain gets a fresh budget on its next attempt.
func (a *Association) checkRetryBudget(kind TaskKind, iin app.IIN) error {
	var stillTriggered bool
	switch kind {
	case TaskKindTimeSync:
		stillTriggered = iin.Has(app.IINNeedTime)
	case TaskKindAutoIntegrityPoll:
		stillTriggered = iin.Has(app.IINEventBufferOverflow)
	default:
		return nil
	}
	if !stillTriggered {
		a.retryBudgetUsed = 0
		return nil
	}
	a.retryBudgetUsed++
	if a.retryBudgetUsed <= a.Config.AutoTaskRetryBudget {
		return nil
	}
	a.retryBudgetUsed = 0
	return newTaskError(kind.String(), ErrTaskTooManyRetries)
}

// finishTask returns the association to the next link of the startup
// chain on success (or straight to Idle for a non-chain task, or for a
// failed chain step so one failure doesn't wedge the association
// forever), and folds the response's IIN bits into further reactive
// state, spec.md §4.6.
func (a *Association) finishTask(kind TaskKind, resp app.Response, err error) {
	a.mu.Lock()
	if a.state == StateTaskInFlight {
		if err == nil {
			a.state = a.nextStartupState()
		} else {
			a.state = StateIdle
		}
	}
	a.lastPollCompleted[kind] = time.Now()
	a.lastActivity = time.Now()
	info := a.Info

	var budgetErr error
	if err == nil {
		budgetErr = a.checkRetryBudget(kind, resp.IIN)
	}
	a.mu.Unlock()

	if info != nil {
		if err != nil {
			info.TaskFail(kind, err)
		} else {
			info.TaskSuccess(kind)
		}
	}
	if budgetErr != nil {
		a.log.WithField("kind", kind).Error(budgetErr.Error())
		if info != nil {
			info.TaskFail(kind, budgetErr)
		}
	}

	if err == nil {
		a.onIIN(resp.IIN)
	}
}

// State returns a snapshot of the current state for observability/CLI
// surfaces (spec.md §6's `lsr` association-status listing).
func (a *Association) State() AssocState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}
