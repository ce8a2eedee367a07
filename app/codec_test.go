package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	NopReadHandler
	begins, ends int
	analogCount  int
	binaryCount  int
}

func (h *recordingHandler) BeginFragment() { h.begins++ }
func (h *recordingHandler) EndFragment()   { h.ends++ }

func (h *recordingHandler) AnalogInputs(it *AnalogInputIterator) {
	for {
		_, ok := it.Next()
		if !ok {
			break
		}
		h.analogCount++
	}
}

func (h *recordingHandler) BinaryInputs(it *BinaryInputIterator) {
	for {
		_, ok := it.Next()
		if !ok {
			break
		}
		h.binaryCount++
	}
}

func buildAnalogResponse(t *testing.T, indices []uint16) Response {
	t.Helper()
	start, stop := indices[0], indices[len(indices)-1]
	header := []byte{30, 1, byte(Qual16BitStartStop)}
	header = append(header, byte(start), byte(start>>8), byte(stop), byte(stop>>8))
	for range indices {
		header = append(header, 0x01, 1, 0, 0, 0)
	}
	resp, err := UnmarshalResponse(append([]byte{0xC0, byte(FuncResponse), 0, 0}, header...))
	require.NoError(t, err)
	return resp
}

func TestDispatchBracketsFragment(t *testing.T) {
	resp := buildAnalogResponse(t, []uint16{1, 2, 3})
	h := &recordingHandler{}
	err := Dispatch(resp, h)
	require.NoError(t, err)
	require.Equal(t, 1, h.begins)
	require.Equal(t, 1, h.ends)
	require.Equal(t, 3, h.analogCount)
}

func TestMarshalUnmarshalRequestRoundTrip(t *testing.T) {
	req := Request{
		Control:  Control{FIR: true, FIN: true, Seq: 5},
		Function: FuncRead,
		Objects:  ClassRequestHeaders([]int{0, 1, 2, 3}),
	}
	buf := MarshalRequest(req)
	got, err := UnmarshalRequest(buf)
	require.NoError(t, err)
	require.Equal(t, req.Control, got.Control)
	require.Equal(t, req.Function, got.Function)
	require.Len(t, got.Objects, 4)
	require.Equal(t, uint8(60), got.Objects[0].Header.Group)
	require.Equal(t, uint8(2), got.Objects[0].Header.Variation) // class 1 first
	require.Equal(t, uint8(1), got.Objects[3].Header.Variation) // class 0 last
}

func TestCROBRequestResponseByteForByte(t *testing.T) {
	crob := CROB{Code: ControlLatchOn, Count: 1}
	req := Request{
		Control:  Control{FIR: true, FIN: true, Seq: 1},
		Function: FuncSelect,
		Objects:  []RawObjectHeader{CROBHeader(3, crob)},
	}
	buf := MarshalRequest(req)

	// echo response: control octet, RESPONSE, two IIN octets, then the
	// request's object bytes unchanged (the CROB's status octet included)
	resp := make([]byte, len(buf)+2)
	resp[0] = buf[0]
	resp[1] = byte(FuncResponse)
	copy(resp[4:], buf[2:])
	got, err := UnmarshalResponse(resp)
	require.NoError(t, err)
	require.Len(t, got.Objects, 1)
	echoed := decodeCROB(got.Objects[0].Data[2:])
	require.Equal(t, crob.Code, echoed.Code)
	require.Equal(t, req.Objects[0].Data, got.Objects[0].Data)
}
