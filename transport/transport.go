// Package transport implements the DNP3 transport function: segmentation
// of application fragments across link-layer user data, and reassembly of
// inbound segments keyed by source address. See spec.md §4.2.
package transport

import (
	"errors"
	"fmt"
)

// MaxFragmentSize is the default application fragment size limit in
// octets, spec.md §3.
const MaxFragmentSize = 2048

// maxSegmentPayload is one header byte reserved from the 250-octet link
// payload budget, spec.md §4.2.
const maxSegmentPayload = 249

// ErrFragmentTooLarge signals a fragment exceeding the configured maximum.
var ErrFragmentTooLarge = errors.New("dnp3: application fragment exceeds transport maximum")

// Header is the one-byte transport header: FIR, FIN and a 6-bit sequence
// number, spec.md §3.
type Header struct {
	FIR bool
	FIN bool
	Seq uint8 // 0-63
}

func decodeHeader(b byte) Header {
	return Header{
		FIR: b&0x40 != 0,
		FIN: b&0x80 != 0,
		Seq: b & 0x3F,
	}
}

func (h Header) encode() byte {
	b := h.Seq & 0x3F
	if h.FIR {
		b |= 0x40
	}
	if h.FIN {
		b |= 0x80
	}
	return b
}

// Segment splits an application fragment into transport-layer segments,
// each ready to hand to the link layer as one frame's user data (header
// byte plus up to 249 payload bytes). The first segment's FIR bit and the
// last segment's FIN bit are set; sequence numbers roll from startSeq mod
// 64.
func Segment(fragment []byte, startSeq uint8) [][]byte {
	if len(fragment) == 0 {
		h := Header{FIR: true, FIN: true, Seq: startSeq & 0x3F}
		return [][]byte{{h.encode()}}
	}

	var segments [][]byte
	seq := startSeq & 0x3F
	for off := 0; off < len(fragment); off += maxSegmentPayload {
		end := off + maxSegmentPayload
		if end > len(fragment) {
			end = len(fragment)
		}
		h := Header{
			FIR: off == 0,
			FIN: end == len(fragment),
			Seq: seq,
		}
		seg := make([]byte, 0, 1+end-off)
		seg = append(seg, h.encode())
		seg = append(seg, fragment[off:end]...)
		segments = append(segments, seg)
		seq = (seq + 1) & 0x3F
	}
	return segments
}

// Reassembler rebuilds application fragments from inbound transport
// segments, one state machine per source address as required by the
// association model (spec.md's EndpointAddress keys the association, so
// one Reassembler instance per association is sufficient in practice;
// Reassembler itself is address-agnostic and is keyed externally by the
// scheduler).
type Reassembler struct {
	maxSize int

	active   bool
	lastSeq  uint8
	buf      []byte
}

// NewReassembler returns a Reassembler bounded by maxSize bytes; 0 selects
// MaxFragmentSize.
func NewReassembler(maxSize int) *Reassembler {
	if maxSize <= 0 {
		maxSize = MaxFragmentSize
	}
	return &Reassembler{maxSize: maxSize}
}

// Feed consumes one transport segment (header byte + payload). It returns
// a non-nil fragment once a FIN segment completes a reassembly, or an
// error if the segment violates the transport rules of spec.md §4.2 (a
// gap, or a fragment exceeding the configured maximum). A returned error
// always resets the reassembly state; the caller should discard and wait
// for the next FIR segment.
func (r *Reassembler) Feed(segment []byte) ([]byte, error) {
	if len(segment) == 0 {
		return nil, errors.New("dnp3: empty transport segment")
	}
	h := decodeHeader(segment[0])
	payload := segment[1:]

	if h.FIR {
		r.buf = r.buf[:0]
		r.active = true
		r.lastSeq = h.Seq
	} else {
		if !r.active {
			return nil, errors.New("dnp3: transport segment without preceding FIR")
		}
		want := (r.lastSeq + 1) & 0x3F
		if h.Seq != want {
			r.active = false
			r.buf = r.buf[:0]
			return nil, fmt.Errorf("dnp3: transport sequence gap: got %d, want %d", h.Seq, want)
		}
		r.lastSeq = h.Seq
	}

	if len(r.buf)+len(payload) > r.maxSize {
		r.active = false
		r.buf = r.buf[:0]
		return nil, fmt.Errorf("%w: limit %d", ErrFragmentTooLarge, r.maxSize)
	}
	r.buf = append(r.buf, payload...)

	if !h.FIN {
		return nil, nil
	}

	out := make([]byte, len(r.buf))
	copy(out, r.buf)
	r.active = false
	r.buf = r.buf[:0]
	return out, nil
}

// Reset discards any in-progress reassembly, used when the owning
// association is reset (channel reconnect, spec.md invariant (i)/(v)).
func (r *Reassembler) Reset() {
	r.active = false
	r.buf = r.buf[:0]
}
