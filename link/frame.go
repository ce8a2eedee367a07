// Package link implements the DNP3 data-link layer: 10-byte header framing,
// 16-byte block CRC protection, and the stateful decoder described in IEEE
// 1815 chapter 9. It borrows its stateful buffering shape from the
// teacher's session.tcp recv loop, generalized from a single fixed APCI
// header to DNP3's addressed, CRC-protected link frames.
package link

import (
	"errors"
	"fmt"
)

const (
	start0 byte = 0x05
	start1 byte = 0x64

	// HeaderSize is the length of the link header, start bytes through
	// the header CRC.
	HeaderSize = 10

	// MaxUserDataSize is the maximum payload a single link frame can
	// carry: the length octet's maximum of 255 less the 5 control and
	// address octets it also counts, for a total of 250 user-data
	// octets. See IEEE 1815 subclause 9.2.3.
	MaxUserDataSize = 250

	blockSize = 16
)

// EndpointAddress is a 16-bit DNP3 link address. The range
// 0xFFF0-0xFFFF is reserved and rejected by NewEndpointAddress.
type EndpointAddress uint16

// Reserved broadcast and special addresses, IEEE 1815 Table 9-1.
const (
	BroadcastNoAckAddress       EndpointAddress = 0xFFFD
	BroadcastOptionalAckAddress EndpointAddress = 0xFFFE
	BroadcastAllAckAddress      EndpointAddress = 0xFFFF
	SelfAddress                 EndpointAddress = 0xFFFC
)

// ErrReservedAddress signals use of a reserved DNP3 address where a
// concrete outstation or master address is required.
var ErrReservedAddress = errors.New("dnp3: address in reserved range 0xFFF0-0xFFFF")

// NewEndpointAddress validates addr and rejects the reserved range.
func NewEndpointAddress(addr uint16) (EndpointAddress, error) {
	if addr >= 0xFFF0 {
		return 0, fmt.Errorf("%w: %#04x", ErrReservedAddress, addr)
	}
	return EndpointAddress(addr), nil
}

// FrameFunction is the data-link function code carried by the control
// octet, IEEE 1815 Table 9-2.
type FrameFunction uint8

const (
	FuncResetLinkStates     FrameFunction = 0x00
	FuncTestLinkStates      FrameFunction = 0x02
	FuncConfirmedUserData   FrameFunction = 0x03
	FuncUnconfirmedUserData FrameFunction = 0x04
	FuncRequestLinkStatus   FrameFunction = 0x09

	// secondary-station responses
	FuncAck          FrameFunction = 0x00
	FuncNack         FrameFunction = 0x01
	FuncLinkStatus   FrameFunction = 0x0B
	FuncNotSupported FrameFunction = 0x0F
)

func (f FrameFunction) stringPrimary() string {
	switch f {
	case FuncResetLinkStates:
		return "RESET_LINK_STATES"
	case FuncTestLinkStates:
		return "TEST_LINK_STATES"
	case FuncConfirmedUserData:
		return "CONFIRMED_USER_DATA"
	case FuncUnconfirmedUserData:
		return "UNCONFIRMED_USER_DATA"
	case FuncRequestLinkStatus:
		return "REQUEST_LINK_STATUS"
	default:
		return fmt.Sprintf("<illegal primary %#x>", uint8(f))
	}
}

func (f FrameFunction) stringSecondary() string {
	switch f {
	case FuncAck:
		return "ACK"
	case FuncNack:
		return "NACK"
	case FuncLinkStatus:
		return "LINK_STATUS"
	case FuncNotSupported:
		return "NOT_SUPPORTED"
	default:
		return fmt.Sprintf("<illegal secondary %#x>", uint8(f))
	}
}

// Header is the 10-byte link header, minus the trailing two CRC bytes
// which the Framer validates but does not retain.
type Header struct {
	Length      uint8 // user-data octet count + 5 (control/dest/src)
	Primary     bool  // copy of PrimaryMsg (PRM bit), set by the Framer on decode
	FromMaster  bool  // DIR bit, same as Primary for requests
	PrimaryMsg  bool  // PRM bit: frame sent by the link's primary station
	FCB         bool  // frame count bit, alternates for confirmed transfers
	FCV         bool  // frame count valid
	Function    FrameFunction
	Destination EndpointAddress
	Source      EndpointAddress
}

// UserDataLen returns the number of user-data octets implied by Length.
func (h Header) UserDataLen() int {
	n := int(h.Length) - 5
	if n < 0 {
		return 0
	}
	return n
}

// Frame is one decoded data-link frame: header plus reassembled,
// CRC-verified user data (block CRCs stripped).
type Frame struct {
	Header
	UserData []byte
}

func (f Frame) String() string {
	dir := "sec"
	if f.PrimaryMsg {
		dir = "pri"
	}
	fn := f.Function.stringSecondary()
	if f.PrimaryMsg {
		fn = f.Function.stringPrimary()
	}
	return fmt.Sprintf("%s->%s %s[%s] len=%d", f.Source, f.Destination, dir, fn, len(f.UserData))
}

func (a EndpointAddress) String() string {
	switch a {
	case BroadcastNoAckAddress, BroadcastOptionalAckAddress, BroadcastAllAckAddress:
		return fmt.Sprintf("bcast(%#04x)", uint16(a))
	default:
		return fmt.Sprintf("%d", uint16(a))
	}
}
