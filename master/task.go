package master

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dnp3go/master/app"
)

// TaskKind names a task's role, mirroring the original's ReadTask/
// CommandTask/TimeSyncTask/RestartTask/... split (original_source
// master/src/master/tasks/*.rs) with the auto-generated tasks folded in
// as TaskKindAuto* instead of a separate trait.
type TaskKind int

const (
	TaskKindUserRead TaskKind = iota
	TaskKindCommand
	TaskKindTimeSync
	TaskKindRestart
	TaskKindAutoIntegrityPoll
	TaskKindAutoEventScan
	TaskKindAutoClearRestartIIN
	TaskKindAutoDisableUnsolicited
	TaskKindAutoEnableUnsolicited
	TaskKindUserPoll
	TaskKindKeepAlive
	TaskKindFileTransfer
	TaskKindReadAttribute
	TaskKindWriteAttribute
	TaskKindFreezeAtTime
)

func (k TaskKind) String() string {
	switch k {
	case TaskKindUserRead:
		return "read"
	case TaskKindCommand:
		return "command"
	case TaskKindTimeSync:
		return "time_sync"
	case TaskKindRestart:
		return "restart"
	case TaskKindAutoIntegrityPoll:
		return "auto_integrity_poll"
	case TaskKindAutoEventScan:
		return "auto_event_scan"
	case TaskKindAutoClearRestartIIN:
		return "auto_clear_restart_iin"
	case TaskKindAutoDisableUnsolicited:
		return "auto_disable_unsolicited"
	case TaskKindAutoEnableUnsolicited:
		return "auto_enable_unsolicited"
	case TaskKindUserPoll:
		return "poll"
	case TaskKindKeepAlive:
		return "keep_alive"
	case TaskKindFileTransfer:
		return "file_transfer"
	case TaskKindReadAttribute:
		return "read_attribute"
	case TaskKindWriteAttribute:
		return "write_attribute"
	case TaskKindFreezeAtTime:
		return "freeze_at_time"
	}
	return "unknown"
}

// priority orders tasks when more than one is runnable across
// associations in pickTask, spec.md §4.6's literal selection rule:
// "system tasks > user tasks > due polls > keep-alive", lowest value
// wins ties broken by arrival order.
func (k TaskKind) priority() int {
	switch k {
	case TaskKindAutoClearRestartIIN, TaskKindAutoDisableUnsolicited, TaskKindAutoEnableUnsolicited, TaskKindTimeSync, TaskKindRestart, TaskKindAutoIntegrityPoll, TaskKindAutoEventScan:
		return 0
	case TaskKindCommand, TaskKindUserRead, TaskKindFileTransfer, TaskKindReadAttribute, TaskKindWriteAttribute, TaskKindFreezeAtTime:
		return 1
	case TaskKindUserPoll:
		return 2
	case TaskKindKeepAlive:
		return 3
	}
	return 4
}

// CommandMode selects the select-before-operate/direct-operate sequence
// of a Command task, spec.md §4.5.
type CommandMode int

const (
	CommandDirectOperate CommandMode = iota
	CommandDirectOperateNoAck
	CommandSelectBeforeOperate
)

// TaskResult is delivered to a task's completion channel once the
// scheduler finishes running it (success or failure).
type TaskResult struct {
	Response app.Response
	Err      error
}

// Task is one unit of scheduler work against a single association. It
// is built by the New*Task constructors below and submitted through
// Association.Queue* or driven automatically by the state machine.
type Task struct {
	ID       uuid.UUID
	Kind     TaskKind
	Request  app.Request
	Mode     CommandMode
	done     chan TaskResult

	// pollSchedule is set only for TaskKindUserPoll tasks built by
	// PollSchedule.task; runner.finish uses it to mark the schedule's
	// completion time (spec.md §3 invariant (v)) instead of its start.
	pollSchedule *PollSchedule

	// File transfer fields, consulted only for TaskKindFileTransfer,
	// spec.md §4.5 "FileTransfer": Open -> Read/Write block loop -> Close.
	FileName   string
	FileMode   app.FileMode
	FileHandle uint32
	// FileWriteData is the payload to upload for FileModeWrite; it is
	// unused for FileModeRead, whose downloaded bytes go to FileResult.
	FileWriteData []byte
	// FileResult holds the full downloaded file on a successful
	// FileModeRead task.
	FileResult []byte

	// retries is reported in taskFields' log fields; nothing in this
	// package increments it. The auto-task retry budget is tracked per
	// association by Association.checkRetryBudget.
	retries int

	// builtAt records when the task was constructed.
	builtAt time.Time
}

func newTask(kind TaskKind, req app.Request) *Task {
	return &Task{
		ID:      uuid.New(),
		Kind:    kind,
		Request: req,
		done:    make(chan TaskResult, 1),
		builtAt: time.Now(),
	}
}

// Wait blocks until the task completes or ctx is canceled.
func (t *Task) Wait(ctx context.Context) (app.Response, error) {
	select {
	case r := <-t.done:
		return r.Response, r.Err
	case <-ctx.Done():
		return app.Response{}, ctx.Err()
	}
}

func (t *Task) complete(resp app.Response, err error) {
	t.done <- TaskResult{Response: resp, Err: err}
}

// nextRequestControl builds the FIR/FIN application control byte for a
// new task. The sequence number itself is assigned later, at transmit
// time, by the owning Association (see Association.nextSeq) so that it
// stays monotonic per-association regardless of the order tasks are
// constructed in.
func nextRequestControl() app.Control {
	return app.Control{FIR: true, FIN: true}
}

// NewReadTask builds a class/object read task, spec.md §4.5 "Read".
func NewReadTask(headers []app.RawObjectHeader) *Task {
	req := app.Request{Control: nextRequestControl(), Function: app.FuncRead, Objects: headers}
	return newTask(TaskKindUserRead, req)
}

// NewIntegrityPollTask builds the class 0/1/2/3 startup poll, spec.md
// scenario 1.
func NewIntegrityPollTask(classes []int) *Task {
	t := NewReadTask(app.ClassRequestHeaders(classes))
	t.Kind = TaskKindAutoIntegrityPoll
	return t
}

// NewEventScanTask builds an event-class-only poll, triggered reactively
// off IIN class-available bits (Association.onIIN), spec.md §4.6.
func NewEventScanTask(classes []int) *Task {
	t := NewReadTask(app.ClassRequestHeaders(classes))
	t.Kind = TaskKindAutoEventScan
	return t
}

// NewDirectOperateTask builds a g12v1 DIRECT_OPERATE command, spec.md
// §4.5 scenario 2 variant.
func NewDirectOperateTask(index uint16, crob app.CROB) *Task {
	req := app.Request{Control: nextRequestControl(), Function: app.FuncDirectOperate, Objects: []app.RawObjectHeader{app.CROBHeader(index, crob)}}
	t := newTask(TaskKindCommand, req)
	t.Mode = CommandDirectOperate
	return t
}

// NewDirectOperateNoAckTask is the unconfirmed DIRECT_OPERATE_NOACK
// variant; its Wait never observes a non-nil response since the
// outstation sends none.
func NewDirectOperateNoAckTask(index uint16, crob app.CROB) *Task {
	req := app.Request{Control: nextRequestControl(), Function: app.FuncDirectOperateNoAck, Objects: []app.RawObjectHeader{app.CROBHeader(index, crob)}}
	t := newTask(TaskKindCommand, req)
	t.Mode = CommandDirectOperateNoAck
	return t
}

// NewSelectOperateTask builds the paired SELECT/OPERATE sequence,
// spec.md scenario 2. The scheduler runs both fragments as one task and
// declares success only when every CROB echoed in both the SELECT and the
// OPERATE response carries StatusSuccess (IEEE 1815 §5.1.6.2); the echoed
// object bytes are not compared with the request.
func NewSelectOperateTask(index uint16, crob app.CROB) *Task {
	req := app.Request{Control: nextRequestControl(), Function: app.FuncSelect, Objects: []app.RawObjectHeader{app.CROBHeader(index, crob)}}
	t := newTask(TaskKindCommand, req)
	t.Mode = CommandSelectBeforeOperate
	return t
}

// NewTimeSyncTask builds a WRITE Time-and-Date task, spec.md §4.5
// "TimeSync" / scenario 3.
func NewTimeSyncTask(t0 app.Time) *Task {
	req := app.Request{Control: nextRequestControl(), Function: app.FuncWrite, Objects: []app.RawObjectHeader{app.TimeHeader(3, t0)}}
	return newTask(TaskKindTimeSync, req)
}

// NewRestartTask builds a COLD_RESTART or WARM_RESTART task, spec.md
// scenario 5.
func NewRestartTask(warm bool) *Task {
	fn := app.FuncColdRestart
	if warm {
		fn = app.FuncWarmRestart
	}
	req := app.Request{Control: nextRequestControl(), Function: fn}
	return newTask(TaskKindRestart, req)
}

// NewClearRestartIINTask builds the WRITE clearing IIN1.7
// (DEVICE_RESTART), run automatically right after a restart is observed.
func NewClearRestartIINTask() *Task {
	req := app.Request{Control: nextRequestControl(), Function: app.FuncWrite, Objects: []app.RawObjectHeader{app.ClearRestartIINHeader()}}
	t := newTask(TaskKindAutoClearRestartIIN, req)
	return t
}

// NewEnableUnsolicitedTask and NewDisableUnsolicitedTask build the
// ENABLE_UNSOLICITED/DISABLE_UNSOLICITED function-code tasks run at
// association startup, spec.md §4.6.
func NewEnableUnsolicitedTask(classes ClassSet) *Task {
	return newUnsolTask(app.FuncEnableUnsolicited, classes, TaskKindAutoEnableUnsolicited)
}

func NewDisableUnsolicitedTask(classes ClassSet) *Task {
	return newUnsolTask(app.FuncDisableUnsolicited, classes, TaskKindAutoDisableUnsolicited)
}

func newUnsolTask(fn app.FunctionCode, classes ClassSet, kind TaskKind) *Task {
	var ints []int
	for c := range classes {
		ints = append(ints, int(c))
	}
	req := app.Request{Control: nextRequestControl(), Function: fn, Objects: app.ClassRequestHeaders(ints)}
	return newTask(kind, req)
}

// NewKeepAliveTask builds a zero-object DELAY_MEASURE request used to
// detect a dead link when no other traffic has occurred within
// AssociationConfig.KeepAliveTimeout, spec.md §4.7.
func NewKeepAliveTask() *Task {
	req := app.Request{Control: nextRequestControl(), Function: app.FuncDelayMeasure}
	return newTask(TaskKindKeepAlive, req)
}

// NewFileReadTask builds a block-oriented file download task: OPEN_FILE,
// a READ/g70v5 block loop until the last-block bit, then CLOSE_FILE,
// spec.md §4.5 "FileTransfer". The downloaded bytes are in the Task's
// FileResult field once Wait returns.
func NewFileReadTask(fileName string) *Task {
	t := newTask(TaskKindFileTransfer, app.Request{})
	t.FileName = fileName
	t.FileMode = app.FileModeRead
	return t
}

// NewFileWriteTask builds a block-oriented file upload task carrying
// data, split into block-sized chunks by the runner.
func NewFileWriteTask(fileName string, data []byte) *Task {
	t := newTask(TaskKindFileTransfer, app.Request{})
	t.FileName = fileName
	t.FileMode = app.FileModeWrite
	t.FileWriteData = data
	return t
}

// NewFreezeAtTimeTask builds the supplemented FREEZE_AT_TIME task
// (SPEC_FULL.md supplemented feature list). The request carries the
// freeze time as a single g50v1 object and names no counter or class
// objects.
func NewFreezeAtTimeTask(at app.Time) *Task {
	req := app.Request{Control: nextRequestControl(), Function: app.FuncFreezeAtTime, Objects: []app.RawObjectHeader{app.TimeHeader(1, at)}}
	return newTask(TaskKindFreezeAtTime, req)
}

// NewReadAttributeTask builds a single-variation READ against group 0
// (device attributes), the supplemented "rda" verb.
func NewReadAttributeTask(variation uint8) *Task {
	header := app.RawObjectHeader{Header: app.ObjectHeader{
		Group: 0, Variation: variation, Qualifier: app.Qual8BitStartStop,
		Kind: app.RangeStartStop, Start: uint32(variation), Stop: uint32(variation),
	}}
	req := app.Request{Control: nextRequestControl(), Function: app.FuncRead, Objects: []app.RawObjectHeader{header}}
	return newTask(TaskKindReadAttribute, req)
}

// NewWriteAttributeTask builds a WRITE against a single writable group 0
// variation, the supplemented "wda" verb.
func NewWriteAttributeTask(variation uint8, data []byte) *Task {
	header := app.RawObjectHeader{
		Header: app.ObjectHeader{
			Group: 0, Variation: variation, Qualifier: app.Qual8BitStartStop,
			Kind: app.RangeStartStop, Start: uint32(variation), Stop: uint32(variation),
		},
		Data: data,
	}
	req := app.Request{Control: nextRequestControl(), Function: app.FuncWrite, Objects: []app.RawObjectHeader{header}}
	return newTask(TaskKindWriteAttribute, req)
}
