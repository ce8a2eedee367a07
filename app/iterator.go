package app

// entry pairs a decoded point index with its still-encoded object bytes,
// borrowed directly from the fragment buffer (no copy of the payload
// itself — only this small index/slice-header pair is allocated, per the
// borrowed-iterator discipline in spec.md's design notes).
type entry struct {
	Index int
	Raw   []byte // zero-copy slice into the original fragment
}

// objectEntries expands a RawObjectHeader into one entry per addressed
// information object. It does not expand packed bitfield groups (g1v1,
// g3v1, g10v1, g80v1); callers for those groups use decodeBitfield
// instead.
func objectEntries(obj RawObjectHeader) []entry {
	h := obj.Header
	data := obj.Data
	size, variable := objectSize(h.Group, h.Variation)

	switch h.Kind {
	case RangeStartStop:
		count := h.objectCount()
		entries := make([]entry, 0, count)
		off := 0
		for i := 0; i < count; i++ {
			n := size
			if variable {
				n, _ = variableObjectLen(h.Group, h.Variation, data[off:])
			}
			entries = append(entries, entry{Index: int(h.Start) + i, Raw: data[off : off+n]})
			off += n
		}
		return entries

	case RangeCountPrefixed:
		entries := make([]entry, 0, h.Count)
		off := 0
		for i := 0; i < h.Count; i++ {
			idx := readIndex(data[off:], h.IndexSize)
			off += h.IndexSize
			n := size
			if variable {
				n, _ = variableObjectLen(h.Group, h.Variation, data[off:])
			}
			entries = append(entries, entry{Index: idx, Raw: data[off : off+n]})
			off += n
		}
		return entries

	case RangeCountOnly:
		entries := make([]entry, 0, h.Count)
		off := 0
		for i := 0; i < h.Count; i++ {
			n := size
			entries = append(entries, entry{Index: i, Raw: data[off : off+n]})
			off += n
		}
		return entries

	default:
		return nil
	}
}

func readIndex(b []byte, size int) int {
	switch size {
	case 1:
		return int(b[0])
	case 2:
		return int(b[0]) | int(b[1])<<8
	default:
		return 0
	}
}

// decodeBitfield expands a packed bitfield object header (groups 1, 3,
// 10, 80) into one value per addressed index, bitsPerObject wide.
func decodeBitfield(obj RawObjectHeader, bitsPerObject int) []struct {
	Index int
	Value uint8
} {
	h := obj.Header
	count := h.objectCount()
	out := make([]struct {
		Index int
		Value uint8
	}, 0, count)

	mask := uint8(1<<bitsPerObject) - 1
	bitPos := 0
	for i := 0; i < count; i++ {
		byteOff := bitPos / 8
		shift := bitPos % 8
		if byteOff >= len(obj.Data) {
			break
		}
		v := (obj.Data[byteOff] >> shift) & mask
		out = append(out, struct {
			Index int
			Value uint8
		}{Index: int(h.Start) + i, Value: v})
		bitPos += bitsPerObject
	}
	return out
}
