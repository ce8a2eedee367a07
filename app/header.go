package app

import "fmt"

// Control is the one-byte application control field: FIR, FIN, CON, UNS
// plus a 4-bit sequence number, IEEE 1815 Table 4-2.
type Control struct {
	FIR bool
	FIN bool
	CON bool
	UNS bool
	Seq uint8 // 0-15
}

func decodeControl(b byte) Control {
	return Control{
		FIR: b&0x80 != 0,
		FIN: b&0x40 != 0,
		CON: b&0x20 != 0,
		UNS: b&0x10 != 0,
		Seq: b & 0x0F,
	}
}

func (c Control) encode() byte {
	b := c.Seq & 0x0F
	if c.FIR {
		b |= 0x80
	}
	if c.FIN {
		b |= 0x40
	}
	if c.CON {
		b |= 0x20
	}
	if c.UNS {
		b |= 0x10
	}
	return b
}

func (c Control) String() string {
	return fmt.Sprintf("[fir=%v fin=%v con=%v uns=%v seq=%d]", c.FIR, c.FIN, c.CON, c.UNS, c.Seq)
}

// Request is a decoded or to-be-encoded application-layer request
// fragment.
type Request struct {
	Control  Control
	Function FunctionCode
	Objects  []RawObjectHeader
}

// Response is a decoded or to-be-encoded application-layer response
// fragment.
type Response struct {
	Control  Control
	Function FunctionCode // FuncResponse or FuncUnsolicitedResponse
	IIN      IIN
	Objects  []RawObjectHeader
}

// RawObjectHeader is one object header plus its still-encoded object
// data, produced by a single decode pass over the fragment. Dispatch
// (Parse) turns this into typed iterators without copying the underlying
// fragment buffer, per spec.md §4.3/§4.4 and the teacher's borrowed-slice
// style in info.ASDU.
type RawObjectHeader struct {
	Header ObjectHeader
	Data   []byte // still-encoded, borrows the fragment buffer
}

// MarshalRequest serializes a Request to an application fragment.
func MarshalRequest(r Request) []byte {
	out := make([]byte, 0, 2)
	out = append(out, r.Control.encode(), byte(r.Function))
	for _, obj := range r.Objects {
		out = append(out, encodeObjectHeader(obj.Header)...)
		out = append(out, obj.Data...)
	}
	return out
}

// MarshalResponse serializes a Response to an application fragment.
func MarshalResponse(r Response) []byte {
	out := make([]byte, 0, 4)
	out = append(out, r.Control.encode(), byte(r.Function))
	out = append(out, byte(r.IIN), byte(r.IIN>>8))
	for _, obj := range r.Objects {
		out = append(out, encodeObjectHeader(obj.Header)...)
		out = append(out, obj.Data...)
	}
	return out
}

// UnmarshalRequest parses a raw application fragment as a request.
func UnmarshalRequest(buf []byte) (Request, error) {
	if len(buf) < 2 {
		return Request{}, ErrInsufficientBytes
	}
	r := Request{
		Control:  decodeControl(buf[0]),
		Function: FunctionCode(buf[1]),
	}
	objs, err := parseObjects(buf[2:], false)
	if err != nil {
		return Request{}, err
	}
	r.Objects = objs
	return r, nil
}

// UnmarshalResponse parses a raw application fragment as a response.
func UnmarshalResponse(buf []byte) (Response, error) {
	if len(buf) < 4 {
		return Response{}, ErrInsufficientBytes
	}
	r := Response{
		Control:  decodeControl(buf[0]),
		Function: FunctionCode(buf[1]),
		IIN:      IIN(buf[2]) | IIN(buf[3])<<8,
	}
	objs, err := parseObjects(buf[4:], true)
	if err != nil {
		return Response{}, err
	}
	r.Objects = objs
	return r, nil
}
