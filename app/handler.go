package app

import "math"

// ReadHandler is the capability interface measurement dispatch calls into,
// spec.md §4.4. It mirrors the teacher's part5.Monitor family (one method
// per measurement kind) rather than a single variant-matching callback,
// so a user only implements the subsets their application cares about by
// embedding a handler that defaults the rest (see NopReadHandler).
//
// Every iterator passed to a method borrows the fragment buffer backing
// the Response it was built from; it must not be retained past the
// method call.
type ReadHandler interface {
	// BeginFragment/EndFragment bracket dispatch of one physical
	// fragment, spec.md §4.4.
	BeginFragment()
	EndFragment()

	BinaryInputs(*BinaryInputIterator)
	DoubleBitBinaries(*DoubleBitBinaryIterator)
	BinaryOutputStatuses(*BinaryOutputStatusIterator)
	Counters(*CounterIterator)
	FrozenCounters(*CounterIterator)
	AnalogInputs(*AnalogInputIterator)
	AnalogOutputStatuses(*AnalogOutputStatusIterator)
	OctetStrings(*OctetStringIterator)
	DeviceAttributes(*DeviceAttributeIterator)
}

// NopReadHandler implements ReadHandler with no-op methods, suitable for
// embedding so callers only override the measurement kinds they consume.
type NopReadHandler struct{}

func (NopReadHandler) BeginFragment()                                  {}
func (NopReadHandler) EndFragment()                                    {}
func (NopReadHandler) BinaryInputs(*BinaryInputIterator)                {}
func (NopReadHandler) DoubleBitBinaries(*DoubleBitBinaryIterator)       {}
func (NopReadHandler) BinaryOutputStatuses(*BinaryOutputStatusIterator) {}
func (NopReadHandler) Counters(*CounterIterator)                       {}
func (NopReadHandler) FrozenCounters(*CounterIterator)                 {}
func (NopReadHandler) AnalogInputs(*AnalogInputIterator)                {}
func (NopReadHandler) AnalogOutputStatuses(*AnalogOutputStatusIterator) {}
func (NopReadHandler) OctetStrings(*OctetStringIterator)                {}
func (NopReadHandler) DeviceAttributes(*DeviceAttributeIterator)        {}

// BinaryInputIterator walks one object header's worth of binary-input
// values. It is non-restartable: Next advances a cursor and the returned
// value is invalid once the owning handler method returns.
type BinaryInputIterator struct {
	entries []entry
	pos     int
	variation uint8
	bitfield  int // > 0 for packed groups
}

func (it *BinaryInputIterator) Next() (BinaryInput, bool) {
	if it.pos >= len(it.entries) {
		return BinaryInput{}, false
	}
	e := it.entries[it.pos]
	it.pos++
	bi := BinaryInput{Index: e.Index}
	if it.bitfield > 0 {
		bi.Value = e.Raw[0] != 0
		return bi, true
	}
	switch it.variation {
	case 2:
		bi.Flags = Flags(e.Raw[0])
		bi.Value = bi.Flags&FlagState != 0
	case 1:
		bi.Value = e.Raw[0]&1 != 0
	case 3:
		bi.Flags = Flags(e.Raw[0])
		bi.Value = bi.Flags&FlagState != 0
		bi.Time = decodeTime48(e.Raw[1:])
		bi.HasTime = true
	}
	return bi, true
}

type DoubleBitBinaryIterator struct {
	entries   []entry
	pos       int
	variation uint8
	bitfield  int
}

func (it *DoubleBitBinaryIterator) Next() (DoubleBitBinary, bool) {
	if it.pos >= len(it.entries) {
		return DoubleBitBinary{}, false
	}
	e := it.entries[it.pos]
	it.pos++
	d := DoubleBitBinary{Index: e.Index}
	if it.bitfield > 0 {
		d.State = DoubleBitState(e.Raw[0])
		return d, true
	}
	d.Flags = Flags(e.Raw[0])
	d.State = DoubleBitState(e.Raw[0] & 0x03)
	if it.variation == 3 && len(e.Raw) > 1 {
		d.Time = decodeTime48(e.Raw[1:])
		d.HasTime = true
	}
	return d, true
}

type BinaryOutputStatusIterator struct {
	entries   []entry
	pos       int
	variation uint8
	bitfield  int
}

func (it *BinaryOutputStatusIterator) Next() (BinaryOutputStatus, bool) {
	if it.pos >= len(it.entries) {
		return BinaryOutputStatus{}, false
	}
	e := it.entries[it.pos]
	it.pos++
	b := BinaryOutputStatus{Index: e.Index}
	if it.bitfield > 0 {
		b.Value = e.Raw[0] != 0
		return b, true
	}
	b.Flags = Flags(e.Raw[0])
	b.Value = b.Flags&FlagState != 0
	return b, true
}

type CounterIterator struct {
	entries   []entry
	pos       int
	group     uint8
	variation uint8
}

func (it *CounterIterator) Next() (Counter, bool) {
	if it.pos >= len(it.entries) {
		return Counter{}, false
	}
	e := it.entries[it.pos]
	it.pos++
	c := Counter{Index: e.Index, Frozen: it.group == 21 || it.group == 23}
	raw := e.Raw
	has32 := it.variation == 1 || it.variation == 5 || it.variation == 3
	hasFlags := it.variation < 5
	n := 0
	if hasFlags {
		c.Flags = Flags(raw[0])
		n = 1
	}
	if has32 {
		c.Value = uint32(raw[n]) | uint32(raw[n+1])<<8 | uint32(raw[n+2])<<16 | uint32(raw[n+3])<<24
		n += 4
	} else {
		c.Value = uint32(raw[n]) | uint32(raw[n+1])<<8
		n += 2
	}
	if len(raw) > n {
		c.Time = decodeTime48(raw[n:])
		c.HasTime = true
	}
	return c, true
}

type AnalogInputIterator struct {
	entries   []entry
	pos       int
	variation uint8
}

func (it *AnalogInputIterator) Next() (AnalogInput, bool) {
	if it.pos >= len(it.entries) {
		return AnalogInput{}, false
	}
	e := it.entries[it.pos]
	it.pos++
	a := AnalogInput{Index: e.Index}
	raw := e.Raw
	n := 0
	hasFlags := it.variation == 1 || it.variation == 2 || it.variation == 5 || it.variation == 6
	if hasFlags {
		a.Flags = Flags(raw[0])
		a.HasFlags = true
		n = 1
	}
	switch it.variation {
	case 1, 3: // 32-bit signed, with/without flag
		a.Value = float64(int32(uint32(raw[n]) | uint32(raw[n+1])<<8 | uint32(raw[n+2])<<16 | uint32(raw[n+3])<<24))
		n += 4
	case 2, 4: // 16-bit signed, with/without flag
		a.Value = float64(int16(uint16(raw[n]) | uint16(raw[n+1])<<8))
		n += 2
	case 5: // single-precision float
		a.Value = float64(decodeFloat32(raw[n:]))
		n += 4
	case 6: // double-precision float
		a.Value = decodeFloat64(raw[n:])
		n += 8
	}
	if len(raw) > n {
		a.Time = decodeTime48(raw[n:])
		a.HasTime = true
	}
	return a, true
}

type AnalogOutputStatusIterator struct {
	entries   []entry
	pos       int
	variation uint8
}

func (it *AnalogOutputStatusIterator) Next() (AnalogOutputStatus, bool) {
	if it.pos >= len(it.entries) {
		return AnalogOutputStatus{}, false
	}
	e := it.entries[it.pos]
	it.pos++
	a := AnalogOutputStatus{Index: e.Index}
	raw := e.Raw
	a.Flags = Flags(raw[0])
	switch it.variation {
	case 1:
		a.Value = float64(int32(uint32(raw[1]) | uint32(raw[2])<<8 | uint32(raw[3])<<16 | uint32(raw[4])<<24))
	case 2:
		a.Value = float64(int16(uint16(raw[1]) | uint16(raw[2])<<8))
	case 3:
		a.Value = float64(decodeFloat32(raw[1:]))
	case 4:
		a.Value = decodeFloat64(raw[1:])
	}
	return a, true
}

type OctetStringIterator struct {
	entries []entry
	pos     int
}

func (it *OctetStringIterator) Next() (OctetString, bool) {
	if it.pos >= len(it.entries) {
		return OctetString{}, false
	}
	e := it.entries[it.pos]
	it.pos++
	return OctetString{Index: e.Index, Value: e.Raw}, true
}

type DeviceAttributeIterator struct {
	objs []RawObjectHeader
	pos  int
}

func (it *DeviceAttributeIterator) Next() (DeviceAttribute, bool) {
	if it.pos >= len(it.objs) {
		return DeviceAttribute{}, false
	}
	o := it.objs[it.pos]
	it.pos++
	d := DeviceAttribute{Variation: o.Header.Variation}
	if len(o.Data) >= 2 {
		d.DataType = o.Data[0]
		n := int(o.Data[1])
		if 2+n <= len(o.Data) {
			d.Value = o.Data[2 : 2+n]
		}
	}
	return d, true
}

func decodeFloat32(b []byte) float32 {
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits)
}

func decodeFloat64(b []byte) float64 {
	bits := uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
	return math.Float64frombits(bits)
}
