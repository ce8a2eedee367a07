package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenFileHeaderEncodesNameModeAndSize(t *testing.T) {
	h := OpenFileHeader(OpenFileRequest{FileName: "log.bin", Mode: FileModeRead, Size: 0})
	require.Equal(t, uint8(70), h.Header.Group)
	require.Equal(t, uint8(FileObjCommand), h.Header.Variation)

	payload := h.Data[1:] // strip the leading count-prefix byte
	nameLen := int(payload[0]) | int(payload[1])<<8
	require.Equal(t, len("log.bin"), nameLen)
	require.Equal(t, "log.bin", string(payload[2:2+nameLen]))
	mode := uint16(payload[2+nameLen]) | uint16(payload[3+nameLen])<<8
	require.Equal(t, uint16(FileModeRead), mode)
	size := uint32(payload[4+nameLen]) | uint32(payload[5+nameLen])<<8 | uint32(payload[6+nameLen])<<16 | uint32(payload[7+nameLen])<<24
	require.Equal(t, uint32(0), size)
}

func TestDecodeFileStatusFields(t *testing.T) {
	data := []byte{
		0x01, 0x00, 0x00, 0x00, // handle = 1
		0x00, 0x10, 0x00, 0x00, // size = 4096
		0x00, 0x02, // max block size = 512
		byte(StatusSuccess),
	}
	status, ok := DecodeFileStatus(data)
	require.True(t, ok)
	require.Equal(t, uint32(1), status.Handle)
	require.Equal(t, uint32(4096), status.Size)
	require.Equal(t, uint16(512), status.MaxBlockSize)
	require.Equal(t, StatusSuccess, status.Status)
}

func TestDecodeFileStatusRejectsShortPayload(t *testing.T) {
	_, ok := DecodeFileStatus([]byte{1, 2, 3})
	require.False(t, ok)
}

func TestFileBlockEncodeDecodeRoundTrip(t *testing.T) {
	block := FileBlock{SeqNo: 42, Last: true, Data: []byte("tail bytes")}
	encoded := block.encode()
	got := decodeFileBlock(encoded)
	require.Equal(t, block.SeqNo, got.SeqNo)
	require.Equal(t, block.Last, got.Last)
	require.Equal(t, block.Data, got.Data)
}

func TestFileBlockSeqNoNeverCollidesWithLastBit(t *testing.T) {
	block := FileBlock{SeqNo: 0, Last: false, Data: nil}
	encoded := block.encode()
	got := decodeFileBlock(encoded)
	require.False(t, got.Last)
	require.Zero(t, got.SeqNo)
}

func TestFileTransportHeaderCarriesHandleAndBlock(t *testing.T) {
	h := FileTransportHeader(7, FileBlock{SeqNo: 3, Data: []byte{0xAA}})
	require.Equal(t, uint8(70), h.Header.Group)
	require.Equal(t, uint8(FileObjTransport), h.Header.Variation)
	handle := uint32(h.Data[0]) | uint32(h.Data[1])<<8
	require.Equal(t, uint32(7), handle)
	block := decodeFileBlock(h.Data[2:])
	require.Equal(t, uint32(3), block.SeqNo)
	require.Equal(t, []byte{0xAA}, block.Data)
}

func TestCloseFileHeaderCarriesHandle(t *testing.T) {
	h := CloseFileHeader(99)
	handle := uint32(h.Data[0]) | uint32(h.Data[1])<<8
	require.Equal(t, uint32(99), handle)
}

func TestFileStatusFromResponseFindsG70V4(t *testing.T) {
	resp := Response{Objects: []RawObjectHeader{
		{Header: ObjectHeader{Group: 70, Variation: FileObjCommandStatus}, Data: []byte{
			1, 0, 0, 0, 0, 16, 0, 0, 0, 2, byte(StatusSuccess),
		}},
	}}
	status, ok := FileStatusFromResponse(resp)
	require.True(t, ok)
	require.Equal(t, uint32(1), status.Handle)
}

func TestFileBlockFromResponseFindsG70V5(t *testing.T) {
	block := FileBlock{SeqNo: 5, Last: true, Data: []byte("x")}
	resp := Response{Objects: []RawObjectHeader{
		{Header: ObjectHeader{Group: 70, Variation: FileObjTransport}, Data: block.encode()},
	}}
	got, ok := FileBlockFromResponse(resp)
	require.True(t, ok)
	require.Equal(t, block.SeqNo, got.SeqNo)
	require.True(t, got.Last)
}
