package link

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{
		PrimaryMsg:  true,
		FromMaster:  true,
		FCB:         true,
		FCV:         true,
		Function:    FuncConfirmedUserData,
		Destination: 1024,
		Source:      1,
	}
	payload := make([]byte, 37)
	for i := range payload {
		payload[i] = byte(i)
	}

	frame, err := Encode(h, payload)
	require.NoError(t, err)

	fr := NewFramer(ErrorModeClose)
	frames, err := fr.Feed(frame)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	got := frames[0]
	require.Equal(t, h.FromMaster, got.FromMaster)
	require.Equal(t, h.PrimaryMsg, got.PrimaryMsg)
	require.Equal(t, h.FCB, got.FCB)
	require.Equal(t, h.FCV, got.FCV)
	require.Equal(t, h.Function, got.Function)
	require.Equal(t, h.Destination, got.Destination)
	require.Equal(t, h.Source, got.Source)
	require.Equal(t, payload, got.UserData)
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := Encode(Header{}, make([]byte, MaxUserDataSize+1))
	require.ErrorIs(t, err, errPayloadTooLarge)
}

func TestFeedAcrossMultipleCalls(t *testing.T) {
	h := Header{PrimaryMsg: true, FromMaster: true, Function: FuncRequestLinkStatus, Destination: 1, Source: 1024}
	frame, err := Encode(h, nil)
	require.NoError(t, err)

	fr := NewFramer(ErrorModeClose)
	frames, err := fr.Feed(frame[:5])
	require.NoError(t, err)
	require.Empty(t, frames)

	frames, err = fr.Feed(frame[5:])
	require.NoError(t, err)
	require.Len(t, frames, 1)
}

func TestHeaderCRCMismatchClose(t *testing.T) {
	h := Header{PrimaryMsg: true, FromMaster: true, Function: FuncRequestLinkStatus, Destination: 1, Source: 2}
	frame, err := Encode(h, nil)
	require.NoError(t, err)
	frame[8] ^= 0xFF // corrupt header CRC

	fr := NewFramer(ErrorModeClose)
	_, err = fr.Feed(frame)
	var v Violation
	require.ErrorAs(t, err, &v)
	require.True(t, v.Fatal)
}

func TestBlockCRCMismatchDiscardResyncs(t *testing.T) {
	h := Header{PrimaryMsg: true, FromMaster: true, Function: FuncConfirmedUserData, Destination: 1, Source: 2}
	bad, err := Encode(h, []byte("corrupt-me"))
	require.NoError(t, err)
	bad[HeaderSize] ^= 0xFF // corrupt first user-data byte, block CRC now invalid

	good, err := Encode(h, []byte("ok"))
	require.NoError(t, err)

	fr := NewFramer(ErrorModeDiscard)
	frames, err := fr.Feed(append(bad, good...))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, []byte("ok"), frames[0].UserData)
}

func TestAddressReservedRangeRejected(t *testing.T) {
	_, err := NewEndpointAddress(0xFFF0)
	require.ErrorIs(t, err, ErrReservedAddress)

	addr, err := NewEndpointAddress(65519)
	require.NoError(t, err)
	require.EqualValues(t, 65519, addr)
}
