package app

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Parse errors, spec.md §4.3.
var (
	ErrInsufficientBytes = errors.New("dnp3: insufficient bytes to parse application fragment")
	ErrInvalidQualifier  = errors.New("dnp3: invalid or unsupported qualifier code")
	ErrUnknownGroupVariation = errors.New("dnp3: unknown group/variation")
	ErrInvalidRange      = errors.New("dnp3: range stop precedes start, or range exceeds fragment")
	ErrBadAttribute      = errors.New("dnp3: malformed device attribute encoding")
	ErrUnexpectedAllObjects = errors.New("dnp3: all-objects qualifier is illegal in a response")
)

// RangeKind classifies how an object header's objects are addressed,
// spec.md §3/§4.3.
type RangeKind int

const (
	// RangeAllObjects addresses every instance of (group, variation);
	// legal only in requests.
	RangeAllObjects RangeKind = iota
	// RangeStartStop addresses a contiguous index range [Start, Stop].
	RangeStartStop
	// RangeCountPrefixed addresses Count objects, each carrying its own
	// index as a prefix.
	RangeCountPrefixed
	// RangeCountOnly addresses Count objects with implicit sequential
	// indices (single-field quantity qualifiers 0x07/0x08).
	RangeCountOnly
)

// ObjectHeader is a parsed group/variation/qualifier triple, spec.md §3.
type ObjectHeader struct {
	Group     uint8
	Variation uint8
	Qualifier QualifierCode

	Kind  RangeKind
	Start uint32 // valid when Kind == RangeStartStop
	Stop  uint32 // valid when Kind == RangeStartStop
	Count int    // valid when Kind == RangeCountPrefixed || RangeCountOnly

	// IndexSize is the prefix width in octets for RangeCountPrefixed
	// (1 or 2); 0 otherwise.
	IndexSize int
}

// encodeObjectHeader serializes group, variation, qualifier and the
// range/count field. It does not encode the object data itself; callers
// build Data separately (see RawObjectHeader).
func encodeObjectHeader(h ObjectHeader) []byte {
	out := []byte{h.Group, h.Variation, byte(h.Qualifier)}
	switch h.Qualifier {
	case QualAllObjects:
		// no range field
	case Qual8BitStartStop:
		out = append(out, byte(h.Start), byte(h.Stop))
	case Qual16BitStartStop:
		out = binary.LittleEndian.AppendUint16(out, uint16(h.Start))
		out = binary.LittleEndian.AppendUint16(out, uint16(h.Stop))
	case Qual8BitQuantity:
		out = append(out, byte(h.Count))
	case Qual16BitQuantity:
		out = binary.LittleEndian.AppendUint16(out, uint16(h.Count))
	case Qual8BitCountIndex:
		out = append(out, byte(h.Count))
	case Qual16BitCountIndex:
		out = binary.LittleEndian.AppendUint16(out, uint16(h.Count))
	}
	return out
}

// parseObjectHeader reads one object header (group, variation, qualifier,
// range/count field) from the front of buf. It returns the header and the
// number of bytes consumed by the header alone (not the object data).
func parseObjectHeader(buf []byte, isResponse bool) (ObjectHeader, int, error) {
	if len(buf) < 3 {
		return ObjectHeader{}, 0, ErrInsufficientBytes
	}
	h := ObjectHeader{
		Group:     buf[0],
		Variation: buf[1],
		Qualifier: QualifierCode(buf[2]),
	}
	off := 3

	switch h.Qualifier {
	case QualAllObjects:
		if isResponse {
			return ObjectHeader{}, 0, ErrUnexpectedAllObjects
		}
		h.Kind = RangeAllObjects

	case Qual8BitStartStop:
		if len(buf) < off+2 {
			return ObjectHeader{}, 0, ErrInsufficientBytes
		}
		h.Kind = RangeStartStop
		h.Start = uint32(buf[off])
		h.Stop = uint32(buf[off+1])
		off += 2
		if h.Stop < h.Start {
			return ObjectHeader{}, 0, ErrInvalidRange
		}

	case Qual16BitStartStop:
		if len(buf) < off+4 {
			return ObjectHeader{}, 0, ErrInsufficientBytes
		}
		h.Kind = RangeStartStop
		h.Start = uint32(binary.LittleEndian.Uint16(buf[off:]))
		h.Stop = uint32(binary.LittleEndian.Uint16(buf[off+2:]))
		off += 4
		if h.Stop < h.Start {
			return ObjectHeader{}, 0, ErrInvalidRange
		}

	case Qual8BitQuantity:
		if len(buf) < off+1 {
			return ObjectHeader{}, 0, ErrInsufficientBytes
		}
		h.Kind = RangeCountOnly
		h.Count = int(buf[off])
		off++

	case Qual16BitQuantity:
		if len(buf) < off+2 {
			return ObjectHeader{}, 0, ErrInsufficientBytes
		}
		h.Kind = RangeCountOnly
		h.Count = int(binary.LittleEndian.Uint16(buf[off:]))
		off += 2

	case Qual8BitCountIndex:
		if len(buf) < off+1 {
			return ObjectHeader{}, 0, ErrInsufficientBytes
		}
		h.Kind = RangeCountPrefixed
		h.Count = int(buf[off])
		h.IndexSize = 1
		off++

	case Qual16BitCountIndex:
		if len(buf) < off+2 {
			return ObjectHeader{}, 0, ErrInsufficientBytes
		}
		h.Kind = RangeCountPrefixed
		h.Count = int(binary.LittleEndian.Uint16(buf[off:]))
		h.IndexSize = 2
		off += 2

	default:
		return ObjectHeader{}, 0, fmt.Errorf("%w: %#02x", ErrInvalidQualifier, h.Qualifier)
	}

	return h, off, nil
}

// objectCount returns the number of information objects addressed by h.
func (h ObjectHeader) objectCount() int {
	switch h.Kind {
	case RangeStartStop:
		return int(h.Stop-h.Start) + 1
	case RangeCountPrefixed, RangeCountOnly:
		return h.Count
	default:
		return 0
	}
}

// parseObjects performs the one-pass scan over the object-header sequence
// of a fragment, described in spec.md §4.3. Variable-length groups (octet
// string, device attribute, file) are dispatched to variableObjectLen; every
// other (group, variation) uses the fixed-size table in measurement.go.
// isResponse gates the legality of the all-objects qualifier.
func parseObjects(buf []byte, isResponse bool) ([]RawObjectHeader, error) {
	var out []RawObjectHeader
	for len(buf) > 0 {
		h, headerLen, err := parseObjectHeader(buf, isResponse)
		if err != nil {
			return nil, err
		}
		buf = buf[headerLen:]

		dataLen, err := objectDataLen(h, buf)
		if err != nil {
			return nil, err
		}
		if dataLen > len(buf) {
			return nil, fmt.Errorf("%w: declared object data exceeds fragment remainder", ErrInvalidRange)
		}

		out = append(out, RawObjectHeader{Header: h, Data: buf[:dataLen]})
		buf = buf[dataLen:]
	}
	return out, nil
}

// objectDataLen computes the number of trailing bytes occupied by h's
// object data (prefixes included for RangeCountPrefixed).
func objectDataLen(h ObjectHeader, rest []byte) (int, error) {
	if h.Kind == RangeAllObjects {
		return 0, nil
	}

	size, variable := objectSize(h.Group, h.Variation)
	bits, packed := bitfields[[2]uint8{h.Group, h.Variation}]
	if !variable && !packed && size == 0 {
		return 0, fmt.Errorf("%w: g%dv%d", ErrUnknownGroupVariation, h.Group, h.Variation)
	}

	count := h.objectCount()

	if packed {
		// Packed-bitfield groups (1, 3, 10, 80) address count objects of
		// bits.bitsPerObject bits each, rounded up to a whole byte, IEEE
		// 1815 §4.3 — never per-object index-prefixed, so this ignores
		// h.Kind == RangeCountPrefixed (no packed group uses that
		// qualifier form).
		return (count*bits.bitsPerObject + 7) / 8, nil
	}

	if h.Kind == RangeCountPrefixed {
		total := 0
		off := 0
		for i := 0; i < count; i++ {
			if off+h.IndexSize > len(rest) {
				return 0, ErrInsufficientBytes
			}
			off += h.IndexSize
			n := size
			if variable {
				var err error
				n, err = variableObjectLen(h.Group, h.Variation, rest[off:])
				if err != nil {
					return 0, err
				}
			}
			if off+n > len(rest) {
				return 0, ErrInsufficientBytes
			}
			off += n
			total += h.IndexSize + n
		}
		return total, nil
	}

	if variable {
		// Ranged variable-length objects (e.g. octet strings with a
		// fixed per-index width declared by Variation) use Variation
		// itself as the octet count for group 110/111.
		if h.Group == 110 || h.Group == 111 {
			return count * int(h.Variation), nil
		}
		return 0, fmt.Errorf("%w: variable-length group %d requires count-prefixed qualifier", ErrInvalidQualifier, h.Group)
	}

	return count * size, nil
}

func variableObjectLen(group, variation uint8, rest []byte) (int, error) {
	switch group {
	case 110, 111: // octet string
		return int(variation), nil
	case 0: // device attributes: 1 data-type byte + 1 length byte + payload
		if len(rest) < 2 {
			return 0, ErrBadAttribute
		}
		return 2 + int(rest[1]), nil
	default:
		return 0, fmt.Errorf("%w: g%dv%d", ErrUnknownGroupVariation, group, variation)
	}
}
