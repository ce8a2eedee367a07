package master

import "errors"

// Task-level error taxonomy, spec.md §7. Callers distinguish cases with
// errors.Is/errors.As in the teacher's style (session/ uses bare sentinel
// errors; here TaskError additionally carries which task failed).
var (
	ErrResponseTimeout            = errors.New("master: response timeout")
	ErrWrite                      = errors.New("master: write error")
	ErrLink                       = errors.New("master: link layer error")
	ErrMalformedResponse           = errors.New("master: malformed response")
	ErrUnexpectedResponseHeaders  = errors.New("master: unexpected response headers")
	ErrNonSuccessStatus           = errors.New("master: non-success status code")
	ErrNoConnection               = errors.New("master: no connection")
	ErrShutdown                   = errors.New("master: channel shut down")
	ErrBadEncoding                = errors.New("master: bad request encoding")
	ErrTaskTooManyRetries         = errors.New("master: task exceeded retry budget")
)

// TaskError wraps one of the sentinels above with the task that failed,
// letting a ReadHandler-style caller log both the class of failure and
// its origin without string-matching.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string { return "master: task " + e.Task + ": " + e.Err.Error() }

func (e *TaskError) Unwrap() error { return e.Err }

func newTaskError(task string, err error) *TaskError {
	return &TaskError{Task: task, Err: err}
}
