package master

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/dnp3go/master/app"
	"github.com/dnp3go/master/link"
	"github.com/dnp3go/master/transport"
)

// incomingFragment is a fully reassembled application fragment tagged
// with the data-link source address it arrived from.
type incomingFragment struct {
	source link.EndpointAddress
	data   []byte
	err    error
}

// runner owns every piece of mutable Channel state and runs on exactly
// one goroutine, spec.md §4.7's single-threaded cooperative scheduler.
// It is the generalization of the teacher's tcp struct (session/tcp.go)
// from a fixed two-station IEC 60870-5-104 link to DNP3's
// many-associations-per-channel model.
type runner struct {
	channel *Channel

	associations map[link.EndpointAddress]*Association
	polls        map[link.EndpointAddress][]*PollSchedule

	conn   net.Conn
	framer *link.Framer
	reasm  map[link.EndpointAddress]*transport.Reassembler

	incoming chan incomingFragment
	retries  int
}

func newRunner(c *Channel) *runner {
	return &runner{
		channel:      c,
		associations: make(map[link.EndpointAddress]*Association),
		polls:        make(map[link.EndpointAddress][]*PollSchedule),
		framer:       link.NewFramer(link.ErrorModeDiscard),
		reasm:        make(map[link.EndpointAddress]*transport.Reassembler),
		incoming:     make(chan incomingFragment, 8),
	}
}

// run is the top-level connect/serve/reconnect loop, spec.md scenario 6.
func (r *runner) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := r.channel.dial(ctx)
		if err != nil {
			r.channel.log.WithError(err).Warn("connect failed")
			if !r.sleepBackoff(ctx) {
				return
			}
			continue
		}
		r.conn = conn
		r.retries = 0
		r.channel.log.Info("connected")
		for _, assoc := range r.associations {
			assoc.reconnected()
		}

		err = r.serve(ctx)
		_ = r.conn.Close()
		if ctx.Err() != nil {
			return
		}
		r.channel.log.WithError(err).Warn("session ended, reconnecting")
		if !r.sleepBackoff(ctx) {
			return
		}
	}
}

func (r *runner) sleepBackoff(ctx context.Context) bool {
	delay := r.channel.strategy.Next(r.retries)
	r.retries++
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

// serve drives one connected session until the connection fails or ctx
// is canceled, dispatching mailbox ops, scheduling due tasks, and
// demuxing incoming fragments, spec.md §4.7.
func (r *runner) serve(ctx context.Context) error {
	readErrs := make(chan error, 1)
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go r.readLoop(sessionCtx, readErrs)

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErrs:
			return err
		case op := <-r.channel.mailbox:
			op(r)
		case frag := <-r.incoming:
			r.handleUnsolicited(frag)
		case <-ticker.C:
			r.scheduleDuePolls()
			if t, addr := r.pickTask(); t != nil {
				r.runTask(ctx, addr, t)
			}
		}
	}
}

// readLoop feeds bytes off conn through the link framer and transport
// reassembler, pushing complete application fragments onto r.incoming.
func (r *runner) readLoop(ctx context.Context, errs chan<- error) {
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := r.conn.Read(buf)
		if err != nil {
			errs <- err
			return
		}
		frames, ferr := r.framer.Feed(buf[:n])
		if ferr != nil {
			r.channel.metrics.incLinkError()
			var v link.Violation
			if errors.As(ferr, &v) && v.Fatal {
				errs <- ferr
				return
			}
		}
		for _, f := range frames {
			r.handleFrame(f)
		}
	}
}

func (r *runner) handleFrame(f link.Frame) {
	re, ok := r.reasm[f.Header.Source]
	if !ok {
		re = transport.NewReassembler(0)
		r.reasm[f.Header.Source] = re
	}
	fragment, err := re.Feed(f.UserData)
	if err != nil {
		select {
		case r.incoming <- incomingFragment{source: f.Header.Source, err: err}:
		default:
		}
		return
	}
	if fragment == nil {
		return
	}
	select {
	case r.incoming <- incomingFragment{source: f.Header.Source, data: fragment}:
	default:
	}
}

// handleUnsolicited processes a fragment that arrived without a task
// awaiting it: either an UNSOLICITED_RESPONSE (which must be confirmed
// immediately per IEEE 1815 §4.3.3, the Open Question decision recorded
// in SPEC_FULL.md) or a stray/late response that runTask's own read
// already timed out on.
func (r *runner) handleUnsolicited(frag incomingFragment) {
	if frag.err != nil {
		r.channel.log.WithError(frag.err).Debug("transport reassembly error")
		return
	}
	resp, err := app.UnmarshalResponse(frag.data)
	if err != nil {
		r.channel.log.WithError(err).Debug("malformed unsolicited fragment")
		return
	}
	if resp.Function != app.FuncUnsolicitedResponse {
		return
	}
	assoc, ok := r.associations[frag.source]
	if !ok {
		return
	}
	assoc.touchActivity()
	assoc.onIIN(resp.IIN)
	if assoc.ReadHandler != nil {
		if derr := app.Dispatch(resp, assoc.ReadHandler); derr != nil {
			assoc.log.WithError(derr).Debug("malformed unsolicited object data")
		}
	}
	if assoc.Info != nil {
		assoc.Info.UnsolicitedResponse()
	}

	confirm := app.Request{
		Control:  app.Control{FIR: true, FIN: true, Seq: resp.Control.Seq},
		Function: app.FuncConfirm,
	}
	r.write(frag.source, confirm)
}

// scheduleDuePolls moves any PollSchedule past its period into its
// association's poll queue, spec.md §4.6 "Poll", and arms a keep-alive
// task for any association that has seen no traffic within its
// configured KeepAliveTimeout, spec.md §4.7.
func (r *runner) scheduleDuePolls() {
	now := time.Now()
	for addr, schedules := range r.polls {
		assoc, ok := r.associations[addr]
		if !ok {
			continue
		}
		for _, p := range schedules {
			if p.due(now) {
				assoc.QueuePollTask(p.task())
			}
		}
	}
	for _, assoc := range r.associations {
		if assoc.dueForKeepAlive(now) {
			assoc.armKeepAlive(NewKeepAliveTask())
		}
	}
}

// pickTask scans associations for the next runnable task, breaking ties
// by task priority then by which association has waited longest.
func (r *runner) pickTask() (*Task, link.EndpointAddress) {
	var best *Task
	var bestAddr link.EndpointAddress
	for addr, a := range r.associations {
		t := a.nextTask()
		if t == nil {
			continue
		}
		if best == nil || t.Kind.priority() < best.Kind.priority() {
			best = t
			bestAddr = addr
		}
	}
	return best, bestAddr
}

func (r *runner) write(addr link.EndpointAddress, req app.Request) error {
	fragment := app.MarshalRequest(req)
	segments := transport.Segment(fragment, 0)
	for _, seg := range segments {
		h := link.Header{
			FromMaster:  true,
			PrimaryMsg:  true,
			Function:    link.FuncUnconfirmedUserData,
			Destination: addr,
			Source:      r.channel.config.MasterAddress,
		}
		frame, err := link.Encode(h, seg)
		if err != nil {
			return err
		}
		if _, err := r.conn.Write(frame); err != nil {
			return err
		}
	}
	return nil
}

// runTask runs t to completion, then feeds the outcome back into the
// association's state machine, spec.md §4.5/§4.7. A
// CommandSelectBeforeOperate task runs as two exchanges: SELECT, then
// (if every CROB echoed StatusSuccess) OPERATE with the identical object
// bytes, whose echo must also carry StatusSuccess for every CROB, IEEE
// 1815 §5.1.6.2, spec.md scenario 2. DirectOperateNoAck sends
// function 6 and never waits for a reply, spec.md §4.5 "Command".
func (r *runner) runTask(ctx context.Context, addr link.EndpointAddress, t *Task) {
	start := time.Now()
	assoc := r.associations[addr]
	if assoc.Info != nil {
		assoc.Info.TaskStart(t.Kind)
	}

	if t.Kind == TaskKindFileTransfer {
		r.runFileTransfer(ctx, assoc, t)
		return
	}

	if t.Mode == CommandDirectOperateNoAck {
		req := t.Request
		req.Control.Seq = assoc.nextSeq()
		err := r.write(addr, req)
		if err != nil {
			err = ErrWrite
		}
		r.finish(assoc, t, app.Response{}, err, start)
		return
	}

	resp, err := r.exchange(ctx, assoc, t.Request)
	if err == nil && t.Mode == CommandSelectBeforeOperate {
		if verr := verifySelectEcho(resp); verr != nil {
			err = newTaskError(t.Kind.String(), verr)
		} else {
			operate := t.Request
			operate.Function = app.FuncOperate
			resp, err = r.exchange(ctx, assoc, operate)
			if err == nil {
				if verr := verifySelectEcho(resp); verr != nil {
					err = newTaskError(t.Kind.String(), verr)
				}
			}
		}
	}

	if err != nil {
		r.finish(assoc, t, app.Response{}, err, start)
		return
	}
	r.finish(assoc, t, resp, nil, start)
}

// verifySelectEcho checks that every object the outstation echoed back
// in a SELECT or OPERATE response carries StatusSuccess, per IEEE 1815
// §5.1.6.2.
func verifySelectEcho(resp app.Response) error {
	if resp.IIN.Has(app.IINParameterError) || resp.IIN.Has(app.IINFuncNotSupported) {
		return ErrNonSuccessStatus
	}
	for _, obj := range resp.Objects {
		if len(obj.Data) < 11 {
			continue
		}
		if app.StatusCode(obj.Data[10]) != app.StatusSuccess {
			return ErrNonSuccessStatus
		}
	}
	return nil
}

// exchange writes req (assigning it the association's next sequence
// number) and reads the response, transparently continuing across a
// multi-fragment reply, spec.md §4.5 "Read"/scenario 4: each
// intermediate fragment (FIR after the first clear, FIN=0) is dispatched
// to the association's ReadHandler and, if it carries CON=1, confirmed
// before the next fragment is awaited; the loop ends on the fragment
// with FIN=1, whose objects (plus every intermediate fragment's) are
// returned merged for task-completion callers (e.g. Select/Operate echo
// verification, which only ever sees a single-fragment reply in
// practice). Each fragment gets its own ResponseTimeout window, spec.md
// §4.7 step 4 "per-fragment timeout".
func (r *runner) exchange(ctx context.Context, assoc *Association, req app.Request) (app.Response, error) {
	req.Control.Seq = assoc.nextSeq()
	addr := assoc.Address

	if err := r.write(addr, req); err != nil {
		return app.Response{}, ErrWrite
	}

	timeout := r.channel.config.ResponseTimeout
	if assoc.Config.ResponseTimeout != 0 {
		timeout = assoc.Config.ResponseTimeout
	}

	var merged app.Response
	first := true
	for {
		resp, err := r.awaitResponse(ctx, addr, timeout)
		if err != nil {
			return app.Response{}, err
		}
		assoc.touchActivity()

		if first {
			if resp.Control.Seq != req.Control.Seq {
				return app.Response{}, ErrUnexpectedResponseHeaders
			}
			merged = resp
			first = false
		} else {
			merged.IIN = resp.IIN
			merged.Control = resp.Control
			merged.Objects = append(merged.Objects, resp.Objects...)
		}

		if assoc.ReadHandler != nil {
			if derr := app.Dispatch(resp, assoc.ReadHandler); derr != nil {
				return app.Response{}, newTaskError("dispatch", ErrMalformedResponse)
			}
		}

		if resp.Control.CON {
			confirm := app.Request{
				Control:  app.Control{FIR: true, FIN: true, Seq: resp.Control.Seq},
				Function: app.FuncConfirm,
			}
			if werr := r.write(addr, confirm); werr != nil {
				return app.Response{}, ErrWrite
			}
		}

		if resp.Control.FIN {
			return merged, nil
		}
		// FIN=0: more fragments of the same response are expected; loop
		// to await the next one without re-transmitting the request.
	}
}

// awaitResponse blocks for one solicited fragment addressed to addr,
// transparently confirming and dispatching any unsolicited fragment
// that interleaves while waiting, spec.md §4.7's unsolicited demux.
func (r *runner) awaitResponse(ctx context.Context, addr link.EndpointAddress, timeout time.Duration) (app.Response, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case frag := <-r.incoming:
			if frag.source != addr {
				r.handleUnsolicited(frag)
				continue
			}
			if frag.err != nil {
				return app.Response{}, ErrMalformedResponse
			}
			resp, err := app.UnmarshalResponse(frag.data)
			if err != nil {
				return app.Response{}, ErrMalformedResponse
			}
			if resp.Function == app.FuncUnsolicitedResponse {
				r.handleUnsolicited(incomingFragment{source: addr, data: frag.data})
				continue
			}
			if resp.Function != app.FuncResponse {
				return app.Response{}, ErrUnexpectedResponseHeaders
			}
			return resp, nil
		case <-deadline.C:
			r.channel.metrics.incResponseTimeout()
			return app.Response{}, ErrResponseTimeout
		case <-ctx.Done():
			return app.Response{}, ErrShutdown
		}
	}
}

func (r *runner) finish(assoc *Association, t *Task, resp app.Response, err error, start time.Time) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	r.channel.metrics.observeTask(t.Kind, outcome, time.Since(start).Seconds())
	assoc.finishTask(t.Kind, resp, err)
	if t.pollSchedule != nil {
		t.pollSchedule.markCompleted(time.Now())
	}
	t.complete(resp, err)
}
