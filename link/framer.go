package link

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrorMode selects the recovery strategy for a corrupt frame, per
// spec.md §4.1.
type ErrorMode int

const (
	// ErrorModeClose tears the transport down on any CRC violation.
	ErrorModeClose ErrorMode = iota
	// ErrorModeDiscard drops the offending bytes and resynchronizes on
	// the next start-octet pair.
	ErrorModeDiscard
)

// Violation reports a framing defect observed by Framer.Feed.
type Violation struct {
	Reason string
	Fatal  bool // true when ErrorMode is ErrorModeClose
}

func (v Violation) Error() string { return fmt.Sprintf("dnp3: link violation: %s", v.Reason) }

var (
	errPayloadTooLarge = errors.New("dnp3: link payload exceeds 250 octets")
)

// Framer is a stateful link-layer codec. One Framer instance is owned by a
// single Channel and buffers partial frames across Feed calls, mirroring
// the teacher's tcp.recv buffering in session/tcp.go generalized to DNP3's
// block-CRC framing instead of a single whole-APDU CRC.
type Framer struct {
	Mode ErrorMode

	buf []byte // accumulated, not-yet-decoded bytes
}

// NewFramer returns a Framer ready to decode inbound bytes.
func NewFramer(mode ErrorMode) *Framer {
	return &Framer{Mode: mode}
}

// Encode serializes header and payload into one complete link frame,
// including the header CRC and one CRC per 16-byte user-data block.
func Encode(h Header, payload []byte) ([]byte, error) {
	if len(payload) > MaxUserDataSize {
		return nil, errPayloadTooLarge
	}
	h.Length = uint8(5 + len(payload))

	out := make([]byte, 0, HeaderSize+len(payload)+2*((len(payload)+blockSize-1)/blockSize))
	out = append(out, start0, start1, h.Length)

	ctrl := byte(h.Function) & 0x0F
	if h.PrimaryMsg {
		ctrl |= 1 << 6
		if h.FCV {
			ctrl |= 1 << 4
			if h.FCB {
				ctrl |= 1 << 5
			}
		}
	} else {
		// secondary station responses never carry FCB/FCV
	}
	if h.FromMaster {
		ctrl |= 1 << 7
	}
	out = append(out, ctrl)
	out = append(out, byte(h.Destination), byte(h.Destination>>8))
	out = append(out, byte(h.Source), byte(h.Source>>8))
	out = appendCRC(out, out[2:8])

	for off := 0; off < len(payload); off += blockSize {
		end := off + blockSize
		if end > len(payload) {
			end = len(payload)
		}
		block := payload[off:end]
		out = append(out, block...)
		out = appendCRC(out, block)
	}
	return out, nil
}

// Feed appends data to the internal buffer and returns every complete,
// CRC-valid frame it can decode. On a CRC failure in ErrorModeClose, Feed
// returns the accumulated frames (if any) plus a fatal Violation error; the
// caller must tear down the transport. In ErrorModeDiscard, Feed instead
// drops the offending bytes and keeps scanning: the start-octet pair for a
// bad length field or header CRC, the whole frame for a bad user-data
// block CRC.
func (fr *Framer) Feed(data []byte) ([]Frame, error) {
	fr.buf = append(fr.buf, data...)

	var out []Frame
	for {
		frame, consumed, err := fr.tryDecodeOne()
		if err != nil {
			if fr.Mode == ErrorModeClose {
				return out, err
			}
			// discard mode: resync past the bad start pair or frame
			fr.buf = fr.buf[consumed:]
			continue
		}
		if consumed == 0 {
			break // need more bytes
		}
		fr.buf = fr.buf[consumed:]
		if frame != nil {
			out = append(out, *frame)
		}
	}
	return out, nil
}

// tryDecodeOne attempts to decode a single frame from the front of the
// buffer. consumed is the number of bytes to drop regardless of success;
// a zero consumed with a nil error means "wait for more data".
func (fr *Framer) tryDecodeOne() (*Frame, int, error) {
	buf := fr.buf

	// resync on the start-octet pair
	i := 0
	for i+1 < len(buf) {
		if buf[i] == start0 && buf[i+1] == start1 {
			break
		}
		i++
	}
	if i > 0 {
		// junk before the next start pair; drop it and keep looking
		return nil, i, nil
	}
	if len(buf) < 2 {
		return nil, 0, nil
	}
	if len(buf) < HeaderSize {
		return nil, 0, nil // wait for the rest of the header
	}

	length := buf[2]
	if length < 5 {
		return nil, 2, Violation{Reason: "length field below minimum of 5", Fatal: fr.Mode == ErrorModeClose}
	}
	if !checkCRC(buf[2:10]) {
		return nil, 2, Violation{Reason: "header CRC mismatch", Fatal: fr.Mode == ErrorModeClose}
	}

	userLen := int(length) - 5
	nBlocks := (userLen + blockSize - 1) / blockSize
	if userLen == 0 {
		nBlocks = 0
	}
	total := HeaderSize + nBlocks*2 + userLen
	if len(buf) < total {
		return nil, 0, nil // wait for the rest of the frame
	}

	ctrl := buf[3]
	h := Header{
		Length:      length,
		FromMaster:  ctrl&(1<<7) != 0,
		PrimaryMsg:  ctrl&(1<<6) != 0,
		FCB:         ctrl&(1<<5) != 0,
		FCV:         ctrl&(1<<4) != 0,
		Function:    FrameFunction(ctrl & 0x0F),
		Destination: EndpointAddress(binary.LittleEndian.Uint16(buf[4:6])),
		Source:      EndpointAddress(binary.LittleEndian.Uint16(buf[6:8])),
	}
	h.Primary = h.PrimaryMsg

	userData := make([]byte, 0, userLen)
	off := HeaderSize
	remaining := userLen
	for remaining > 0 {
		n := blockSize
		if remaining < blockSize {
			n = remaining
		}
		block := buf[off : off+n+2]
		if !checkCRC(block) {
			return nil, total, Violation{Reason: "user-data block CRC mismatch", Fatal: fr.Mode == ErrorModeClose}
		}
		userData = append(userData, block[:n]...)
		off += n + 2
		remaining -= n
	}

	return &Frame{Header: h, UserData: userData}, total, nil
}
