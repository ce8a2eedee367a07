// Package master implements the DNP3 master-station core: task types, the
// per-association state machine, and the channel scheduler/façade that
// arbitrates user and automatic tasks over a framed transport. The
// single-goroutine-owns-state shape is grounded on the teacher's
// session.tcp run loop (one goroutine owns conn/recv/send/sequence
// counters); here one goroutine owns a channel's transport plus every
// association sharing it, per spec.md §5.
package master

import (
	"time"

	"github.com/dnp3go/master/link"
)

// EventClass selects one of DNP3's three event classes.
type EventClass int

const (
	Class1 EventClass = 1
	Class2 EventClass = 2
	Class3 EventClass = 3
)

// ClassSet is a small, order-independent set of event classes.
type ClassSet map[EventClass]bool

// NewClassSet builds a ClassSet from the given classes.
func NewClassSet(classes ...EventClass) ClassSet {
	s := make(ClassSet, len(classes))
	for _, c := range classes {
		s[c] = true
	}
	return s
}

func (s ClassSet) Empty() bool { return len(s) == 0 }

// TimeSyncProcedure selects automatic time synchronization, spec.md §4.5.
// Any value other than TimeSyncNone enables it, and onIIN then queues the
// same WRITE g50v3 task (NewTimeSyncTask) for TimeSyncLAN and
// TimeSyncNonLAN; neither runs a RECORD_CURRENT_TIME or DELAY_MEASURE
// exchange first.
type TimeSyncProcedure int

const (
	TimeSyncNone TimeSyncProcedure = iota
	TimeSyncLAN
	TimeSyncNonLAN
)

// DecodeLevel is a graduated protocol-detail level, replacing the
// teacher's bare session.Trace boolean as in the pack's
// structured-logging repos. It is stored in MasterChannelConfig; no log
// statement in this package reads it.
type DecodeLevel int

const (
	DecodeNothing DecodeLevel = iota
	DecodeHeader
	DecodeObjectHeader
	DecodePayload
)

// MasterChannelConfig configures a Channel, spec.md §6.
type MasterChannelConfig struct {
	MasterAddress  link.EndpointAddress
	DecodeLevel    DecodeLevel
	ResponseTimeout time.Duration
	TxBufferSize   int
	RxBufferSize   int
}

// Check applies defaults for every unspecified field, in the teacher's
// TCPConfig.check() style (session/config.go).
func (c *MasterChannelConfig) Check() {
	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = 5 * time.Second
	}
	if c.TxBufferSize == 0 {
		c.TxBufferSize = 2048
	}
	if c.RxBufferSize == 0 {
		c.RxBufferSize = 2048
	}
}

// AssociationConfig configures one Association, spec.md §6.
type AssociationConfig struct {
	DisableUnsolClasses ClassSet
	EnableUnsolClasses  ClassSet
	StartupIntegrityClasses []int // subset of {0,1,2,3}
	EventScanOnEventsAvailable ClassSet
	AutoTimeSync        TimeSyncProcedure
	AutoTasksRetryStrategy RetryStrategy
	KeepAliveTimeout    time.Duration // zero disables keep-alive
	IntegrityAtStartup  bool

	// AutoTaskRetryBudget bounds retries for NEED_TIME and
	// EVENT_BUFFER_OVERFLOW auto-tasks; spec.md's open-question decision
	// (SPEC_FULL.md) fixes the default at 3.
	AutoTaskRetryBudget int

	// ResponseTimeout overrides the channel default per association when
	// non-zero.
	ResponseTimeout time.Duration
}

// RetryStrategy holds retry limits and backoff for automatic tasks.
// AssociationConfig.Check fills its defaults, but no code in this package
// reads it; the limit applied to repeated automatic tasks is
// AutoTaskRetryBudget (see Association.checkRetryBudget).
type RetryStrategy struct {
	MaxRetries int
	MinDelay   time.Duration
	MaxDelay   time.Duration
}

// Check applies defaults. IntegrityAtStartup is left untouched: its zero
// value (false) is a legitimate, deliberate configuration (spec.md's
// open question notes leave the default to the caller), so Check must
// not stomp an explicit `false` the way defaulting-on-zero would.
func (c *AssociationConfig) Check() {
	if c.AutoTaskRetryBudget == 0 {
		c.AutoTaskRetryBudget = 3
	}
	if c.AutoTasksRetryStrategy.MaxRetries == 0 {
		c.AutoTasksRetryStrategy.MaxRetries = 3
	}
	if c.AutoTasksRetryStrategy.MinDelay == 0 {
		c.AutoTasksRetryStrategy.MinDelay = 1 * time.Second
	}
	if c.AutoTasksRetryStrategy.MaxDelay == 0 {
		c.AutoTasksRetryStrategy.MaxDelay = 30 * time.Second
	}
}

// ConnectStrategy governs reconnect backoff, spec.md §6/scenario 6.
type ConnectStrategy struct {
	MinConnectDelay time.Duration
	MaxConnectDelay time.Duration
	ReconnectDelay  time.Duration
	Multiplier      float64
}

// Check applies defaults.
func (c *ConnectStrategy) Check() {
	if c.MinConnectDelay == 0 {
		c.MinConnectDelay = 1 * time.Second
	}
	if c.MaxConnectDelay == 0 {
		c.MaxConnectDelay = 10 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2
	}
}

// Next returns the delay to apply after the n-th consecutive failure
// (n starting at 0), implementing the exponential-backoff-with-ceiling
// sequence of spec.md scenario 6: t+1, t+2, t+4, t+8, t+10, t+10, ...
func (c ConnectStrategy) Next(n int) time.Duration {
	d := float64(c.MinConnectDelay)
	for i := 0; i < n; i++ {
		d *= c.Multiplier
		if d >= float64(c.MaxConnectDelay) {
			return c.MaxConnectDelay
		}
	}
	delay := time.Duration(d)
	if delay > c.MaxConnectDelay {
		delay = c.MaxConnectDelay
	}
	return delay
}
