package app

import (
	"encoding/binary"
	"time"
)

// bitfieldSpec marks a (group, variation) as a packed-bitfield encoding
// (groups 1, 3, 10, 80) rather than a fixed per-object byte count; value
// is the number of bits consumed per object (1 for single-bit groups, 2
// for double-bit binary).
type bitfieldSpec struct{ bitsPerObject int }

var bitfields = map[[2]uint8]bitfieldSpec{
	{1, 1}:  {1},  // g1v1  binary input, packed
	{3, 1}:  {2},  // g3v1  double-bit binary, packed
	{10, 1}: {1},  // g10v1 binary output status, packed
	{80, 1}: {1},  // g80v1 internal indications, packed
}

// fixedSizes maps (group, variation) to its fixed per-object octet size.
// This is not exhaustive of every variation in the standard (spec.md §1
// scopes full object-encoding tables out of the core); it covers every
// group/variation the task types and scenario tests in spec.md §8 name.
var fixedSizes = map[[2]uint8]int{
	{1, 2}: 1, // binary input, with flags

	{2, 1}: 1, // binary input event, no time
	{2, 2}: 3, // binary input event, relative time
	{2, 3}: 7, // binary input event, absolute time

	{3, 2}: 1, // double-bit binary, with flags
	{4, 1}: 1, {4, 2}: 3, {4, 3}: 7, // double-bit binary event

	{10, 2}: 1, // binary output status, with flags
	{11, 1}: 1, {11, 2}: 7, // binary output event

	{12, 1}: 11, // CROB: code+count+onTime+offTime+status

	{20, 1}: 5, {20, 2}: 3, {20, 5}: 4, {20, 6}: 2, // counter (with/without flag)
	{21, 1}: 5, {21, 2}: 3, {21, 5}: 4, {21, 6}: 2, // frozen counter
	{22, 1}: 5, {22, 2}: 3, {22, 5}: 9, {22, 6}: 7, // counter event
	{23, 1}: 5, {23, 2}: 3, {23, 5}: 9, {23, 6}: 7, // frozen counter event

	{30, 1}: 5, {30, 2}: 3, {30, 3}: 4, {30, 4}: 2, {30, 5}: 5, {30, 6}: 9, // analog input
	{31, 1}: 5, {31, 2}: 3, {31, 3}: 4, {31, 4}: 2, {31, 5}: 5, {31, 6}: 9, // frozen analog input
	{32, 1}: 5, {32, 2}: 3, {32, 3}: 9, {32, 4}: 7, {32, 5}: 9, {32, 6}: 7, {32, 7}: 13, {32, 8}: 11, // analog input event

	{40, 1}: 5, {40, 2}: 3, {40, 3}: 5, {40, 4}: 9, // analog output status
	{41, 1}: 5, {41, 2}: 3, {41, 3}: 5, {41, 4}: 9, // analog output block (command)

	{50, 1}: 6, {50, 3}: 6, {50, 4}: 10, // time and date (CTO)
	{51, 1}: 6, {51, 2}: 6,
	{52, 1}: 2, {52, 2}: 2, // time delay, coarse/fine

	{60, 1}: 0, {60, 2}: 0, {60, 3}: 0, {60, 4}: 0, // class 0/1/2/3 data, all-objects only
}

func objectSize(group, variation uint8) (size int, variable bool) {
	key := [2]uint8{group, variation}
	if group == 110 || group == 111 || group == 0 {
		return 0, true
	}
	if n, ok := fixedSizes[key]; ok {
		return n, false
	}
	return 0, false
}

// Time is DNP3's 48-bit millisecond timestamp, IEEE 1815 §4.3.14 (CTO).
// It counts milliseconds since the Unix epoch (UTC), or a relative delta
// when carried by a RECORD_CURRENT_TIME/DELAY_MEASURE exchange.
type Time uint64

// NewTime converts a wall-clock time to a DNP3 48-bit millisecond
// timestamp.
func NewTime(t time.Time) Time {
	return Time(t.UnixMilli())
}

// Time reports the wall-clock instant this timestamp represents,
// treating it as milliseconds since the Unix epoch (UTC).
func (t Time) Time() time.Time {
	return time.UnixMilli(int64(t)).UTC()
}

func decodeTime48(b []byte) Time {
	var buf [8]byte
	copy(buf[:6], b[:6])
	return Time(binary.LittleEndian.Uint64(buf[:]))
}

func encodeTime48(t Time, dst []byte) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(t))
	copy(dst, buf[:6])
}

// Flags is the quality-flags octet carried alongside most measurement
// values, IEEE 1815 §4.3.
type Flags uint8

const (
	FlagOnline         Flags = 1 << 0
	FlagRestart        Flags = 1 << 1
	FlagCommLost       Flags = 1 << 2
	FlagRemoteForced   Flags = 1 << 3
	FlagLocalForced    Flags = 1 << 4
	FlagChatterFilter  Flags = 1 << 5 // binary-type "ChatterFilter" / analog "OverRange"
	FlagReserved       Flags = 1 << 6 // binary "Reserved" / analog "ReferenceErr"
	FlagState          Flags = 1 << 7 // binary state, or rollover for counters
)

// BinaryInput is a single-bit measurement with quality flags.
type BinaryInput struct {
	Index int
	Value bool
	Flags Flags
	Time  Time
	HasTime bool
}

// DoubleBitBinary is a two-bit measurement state, IEEE 1815 §4.3.3.
type DoubleBitState uint8

const (
	DoubleBitIntermediate DoubleBitState = 0
	DoubleBitOff          DoubleBitState = 1
	DoubleBitOn           DoubleBitState = 2
	DoubleBitIndeterminate DoubleBitState = 3
)

type DoubleBitBinary struct {
	Index   int
	State   DoubleBitState
	Flags   Flags
	Time    Time
	HasTime bool
}

// BinaryOutputStatus reflects the current state of a control point.
type BinaryOutputStatus struct {
	Index int
	Value bool
	Flags Flags
}

// Counter is an integer accumulation value (groups 20-23).
type Counter struct {
	Index   int
	Value   uint32
	Flags   Flags
	Frozen  bool
	Time    Time
	HasTime bool
}

// AnalogInput is a signed or floating measurement (group 30-32).
type AnalogInput struct {
	Index    int
	Value    float64
	Flags    Flags
	HasFlags bool
	Time     Time
	HasTime  bool
}

// AnalogOutputStatus reflects the current state of an analog output
// (group 40).
type AnalogOutputStatus struct {
	Index int
	Value float64
	Flags Flags
}

// OctetString is an opaque byte string (group 110/111).
type OctetString struct {
	Index int
	Value []byte
}

// DeviceAttribute is a single group-0 variation, IEEE 1815 §4.3.
type DeviceAttribute struct {
	Variation uint8
	DataType  uint8
	Value     []byte
}
