package app

// Dispatch walks every object header in resp and calls the matching
// ReadHandler method with a borrowed iterator, bracketed by
// BeginFragment/EndFragment as required by spec.md §4.4. dispatchOne has
// no failure path, so the returned error is always nil; object lengths
// are checked earlier, when UnmarshalResponse parses the fragment.
func Dispatch(resp Response, h ReadHandler) error {
	h.BeginFragment()
	defer h.EndFragment()

	for _, obj := range resp.Objects {
		if err := dispatchOne(obj, h); err != nil {
			return err
		}
	}
	return nil
}

func dispatchOne(obj RawObjectHeader, h ReadHandler) error {
	g, v := obj.Header.Group, obj.Header.Variation

	if spec, ok := bitfields[[2]uint8{g, v}]; ok {
		bits := decodeBitfield(obj, spec.bitsPerObject)
		entries := make([]entry, len(bits))
		for i, b := range bits {
			entries[i] = entry{Index: b.Index, Raw: []byte{b.Value}}
		}
		switch g {
		case 1:
			h.BinaryInputs(&BinaryInputIterator{entries: entries, bitfield: 1})
		case 3:
			h.DoubleBitBinaries(&DoubleBitBinaryIterator{entries: entries, bitfield: 1})
		case 10:
			h.BinaryOutputStatuses(&BinaryOutputStatusIterator{entries: entries, bitfield: 1})
		case 80:
			// internal indication bits are not passed to the handler;
			// callers read the fragment's IIN field instead.
		}
		return nil
	}

	entries := objectEntries(obj)

	switch g {
	case 1:
		h.BinaryInputs(&BinaryInputIterator{entries: entries, variation: v})
	case 3:
		h.DoubleBitBinaries(&DoubleBitBinaryIterator{entries: entries, variation: v})
	case 10:
		h.BinaryOutputStatuses(&BinaryOutputStatusIterator{entries: entries, variation: v})
	case 20:
		h.Counters(&CounterIterator{entries: entries, group: g, variation: v})
	case 21:
		h.FrozenCounters(&CounterIterator{entries: entries, group: g, variation: v})
	case 22:
		h.Counters(&CounterIterator{entries: entries, group: g, variation: v})
	case 23:
		h.FrozenCounters(&CounterIterator{entries: entries, group: g, variation: v})
	case 30, 31, 32:
		h.AnalogInputs(&AnalogInputIterator{entries: entries, variation: v})
	case 40, 41:
		h.AnalogOutputStatuses(&AnalogOutputStatusIterator{entries: entries, variation: v})
	case 110, 111:
		h.OctetStrings(&OctetStringIterator{entries: entries})
	case 0:
		h.DeviceAttributes(&DeviceAttributeIterator{objs: []RawObjectHeader{obj}})
	}
	return nil
}

// ClassRequestHeaders builds the object-header sequence for a class
// 0/1/2/3 integrity or event poll, spec.md scenario 1: "g60v2 all, g60v3
// all, g60v4 all, g60v1 all" for the default startup integrity set
// {0,1,2,3}.
func ClassRequestHeaders(classes []int) []RawObjectHeader {
	variationForClass := map[int]uint8{0: 1, 1: 2, 2: 3, 3: 4}
	// Class 0 (the full static set) is conventionally requested last so
	// that event classes 1-3 are read before the larger static scan,
	// matching the scenario's declared ordering g60v2,v3,v4,v1.
	order := []int{1, 2, 3, 0}
	set := make(map[int]bool, len(classes))
	for _, c := range classes {
		set[c] = true
	}

	var out []RawObjectHeader
	for _, c := range order {
		if !set[c] {
			continue
		}
		out = append(out, RawObjectHeader{
			Header: ObjectHeader{Group: 60, Variation: variationForClass[c], Qualifier: QualAllObjects, Kind: RangeAllObjects},
		})
	}
	return out
}

// CROB encodes a g12v1 Control Relay Output Block.
type CROB struct {
	Code      ControlCode
	Count     uint8
	OnTime    uint32
	OffTime   uint32
	Status    StatusCode
}

// ControlCode is the CROB control-code octet, IEEE 1815 Table 4-8.
type ControlCode uint8

const (
	ControlNul      ControlCode = 0
	ControlPulseOn  ControlCode = 1
	ControlPulseOff ControlCode = 2
	ControlLatchOn  ControlCode = 3
	ControlLatchOff ControlCode = 4
)

func (c CROB) encode() []byte {
	out := make([]byte, 11)
	out[0] = byte(c.Code)
	out[1] = c.Count
	out[2] = byte(c.OnTime)
	out[3] = byte(c.OnTime >> 8)
	out[4] = byte(c.OnTime >> 16)
	out[5] = byte(c.OnTime >> 24)
	out[6] = byte(c.OffTime)
	out[7] = byte(c.OffTime >> 8)
	out[8] = byte(c.OffTime >> 16)
	out[9] = byte(c.OffTime >> 24)
	out[10] = byte(c.Status)
	return out
}

func decodeCROB(b []byte) CROB {
	return CROB{
		Code:    ControlCode(b[0]),
		Count:   b[1],
		OnTime:  uint32(b[2]) | uint32(b[3])<<8 | uint32(b[4])<<16 | uint32(b[5])<<24,
		OffTime: uint32(b[6]) | uint32(b[7])<<8 | uint32(b[8])<<16 | uint32(b[9])<<24,
		Status:  StatusCode(b[10]),
	}
}

// CROBHeader builds a single-index g12v1 count-prefixed object header
// carrying one CROB, spec.md scenario 2.
func CROBHeader(index uint16, crob CROB) RawObjectHeader {
	idx := []byte{byte(index), byte(index >> 8)}
	return RawObjectHeader{
		Header: ObjectHeader{Group: 12, Variation: 1, Qualifier: Qual16BitCountIndex, Kind: RangeCountPrefixed, Count: 1, IndexSize: 2},
		Data:   append(idx, crob.encode()...),
	}
}

// TimeHeader builds a g50v3 (write: time and date, last recorded time)
// or g50v1 (write: absolute time) object header, used by TimeSync tasks.
func TimeHeader(group uint8, t Time) RawObjectHeader {
	data := make([]byte, 6)
	encodeTime48(t, data)
	return RawObjectHeader{
		Header: ObjectHeader{Group: 50, Variation: group, Qualifier: Qual8BitCountIndex, Kind: RangeCountPrefixed, Count: 1, IndexSize: 1},
		Data:   append([]byte{0}, data...),
	}
}

// ClearRestartIINHeader builds a g80v1 write clearing the DEVICE_RESTART
// indication (index 7, value 0), IEEE 1815 §4.3.18, spec.md scenario 5.
func ClearRestartIINHeader() RawObjectHeader {
	return RawObjectHeader{
		Header: ObjectHeader{Group: 80, Variation: 1, Qualifier: Qual8BitStartStop, Kind: RangeStartStop, Start: 7, Stop: 7},
		Data:   []byte{0},
	}
}

// RestartDelay decodes a restart response's g52v1/v2 delay object.
func RestartDelay(resp Response) (uint16, bool) {
	for _, o := range resp.Objects {
		if o.Header.Group == 52 && len(o.Data) >= 2 {
			return uint16(o.Data[0]) | uint16(o.Data[1])<<8, true
		}
	}
	return 0, false
}
