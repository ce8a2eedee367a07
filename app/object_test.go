package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRangedFixedSize(t *testing.T) {
	// g30v1 (analog input, 32-bit with flag), range [2,3]
	buf := []byte{30, 1, 0x00, 2, 3}
	buf = append(buf, 0x01, 10, 0, 0, 0) // index 2
	buf = append(buf, 0x01, 20, 0, 0, 0) // index 3

	objs, err := parseObjects(buf, true)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	require.Equal(t, RangeStartStop, objs[0].Header.Kind)

	entries := objectEntries(objs[0])
	require.Len(t, entries, 2)
	require.Equal(t, 2, entries[0].Index)
	require.Equal(t, 3, entries[1].Index)
}

func TestParseCountPrefixed(t *testing.T) {
	// g12v1 CROB, 2-byte index count-prefixed, one object at index 3
	header := []byte{12, 1, byte(Qual16BitCountIndex), 1, 0}
	idx := []byte{3, 0}
	crob := CROB{Code: ControlLatchOn, Count: 1}.encode()
	buf := append(append(header, idx...), crob...)

	objs, err := parseObjects(buf, false)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	require.Equal(t, RangeCountPrefixed, objs[0].Header.Kind)

	entries := objectEntries(objs[0])
	require.Len(t, entries, 1)
	require.Equal(t, 3, entries[0].Index)

	got := decodeCROB(entries[0].Raw)
	require.Equal(t, ControlLatchOn, got.Code)
}

func TestAllObjectsIllegalInResponse(t *testing.T) {
	buf := []byte{60, 1, byte(QualAllObjects)}
	_, err := parseObjects(buf, true)
	require.ErrorIs(t, err, ErrUnexpectedAllObjects)
}

func TestAllObjectsLegalInRequest(t *testing.T) {
	buf := []byte{60, 1, byte(QualAllObjects)}
	objs, err := parseObjects(buf, false)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	require.Equal(t, RangeAllObjects, objs[0].Header.Kind)
}

func TestRangeStopBeforeStartIsInvalid(t *testing.T) {
	buf := []byte{1, 2, byte(Qual8BitStartStop), 5, 2}
	_, err := parseObjects(buf, true)
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestDeclaredRangeExceedsFragmentIsError(t *testing.T) {
	// declares 10 objects of size 1 but supplies only 2 bytes
	buf := []byte{1, 2, byte(Qual8BitStartStop), 0, 9, 0xFF, 0xFF}
	_, err := parseObjects(buf, true)
	require.Error(t, err)
}

func TestUnknownGroupVariation(t *testing.T) {
	buf := []byte{200, 200, byte(Qual8BitStartStop), 0, 0, 0xFF}
	_, err := parseObjects(buf, true)
	require.ErrorIs(t, err, ErrUnknownGroupVariation)
}

func TestBitfieldDecode(t *testing.T) {
	// g1v1 binary input packed, range [0,7], one byte of bits
	buf := []byte{1, 1, byte(Qual8BitStartStop), 0, 7, 0b10110010}
	objs, err := parseObjects(buf, true)
	require.NoError(t, err)
	require.Len(t, objs, 1)

	bits := decodeBitfield(objs[0], 1)
	require.Len(t, bits, 8)
	// packed least-significant bit first: index i is bit i of 0b10110010
	require.EqualValues(t, 1, bits[1].Value)
	require.EqualValues(t, 1, bits[4].Value)
}

func TestHeaderRoundTrip(t *testing.T) {
	h := ObjectHeader{Group: 30, Variation: 1, Qualifier: Qual16BitStartStop, Kind: RangeStartStop, Start: 10, Stop: 20}
	encoded := encodeObjectHeader(h)
	decoded, n, err := parseObjectHeader(encoded, true)
	require.NoError(t, err)
	require.Equal(t, len(encoded), n)
	require.Equal(t, h.Group, decoded.Group)
	require.Equal(t, h.Start, decoded.Start)
	require.Equal(t, h.Stop, decoded.Stop)
}
