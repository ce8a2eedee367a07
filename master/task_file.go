package master

import (
	"context"
	"time"

	"github.com/dnp3go/master/app"
)

// defaultFileBlockSize bounds write-block size when OPEN_FILE's response
// doesn't supply one (some outstations leave MaxBlockSize at 0 to mean
// "no preference"), spec.md §4.5 "FileTransfer".
const defaultFileBlockSize = 2048

// runFileTransfer executes a FileTransfer task's Open -> block loop ->
// Close sequence, spec.md §4.5 "FileTransfer". Each step reuses exchange
// so OPEN_FILE/CLOSE_FILE/block requests get the same per-fragment
// confirm and dispatch handling as every other task; the block loop
// itself is serialized through an app.BlockPipeline so at most one block
// request is outstanding at a time, matching DNP3 file transfer's
// strictly sequential semantics.
func (r *runner) runFileTransfer(ctx context.Context, assoc *Association, t *Task) {
	start := time.Now()

	openReq := app.Request{
		Function: app.FuncOpenFile,
		Objects:  []app.RawObjectHeader{app.OpenFileHeader(app.OpenFileRequest{FileName: t.FileName, Mode: t.FileMode})},
	}
	resp, err := r.exchange(ctx, assoc, openReq)
	if err != nil {
		r.finish(assoc, t, app.Response{}, err, start)
		return
	}
	status, ok := app.FileStatusFromResponse(resp)
	if !ok || status.Status != app.StatusSuccess {
		r.finish(assoc, t, resp, newTaskError(t.Kind.String(), ErrNonSuccessStatus), start)
		return
	}
	t.FileHandle = status.Handle

	blockSize := int(status.MaxBlockSize)
	if blockSize == 0 {
		blockSize = defaultFileBlockSize
	}

	pipeline := app.NewBlockPipeline()
	var transferErr error
	switch t.FileMode {
	case app.FileModeRead:
		transferErr = r.runFileReadBlocks(ctx, assoc, t, pipeline, status.Handle)
	case app.FileModeWrite:
		transferErr = r.runFileWriteBlocks(ctx, assoc, t, pipeline, status.Handle, blockSize)
	}

	closeReq := app.Request{Function: app.FuncCloseFile, Objects: []app.RawObjectHeader{app.CloseFileHeader(status.Handle)}}
	closeResp, closeErr := r.exchange(ctx, assoc, closeReq)

	if transferErr != nil {
		r.finish(assoc, t, app.Response{}, transferErr, start)
		return
	}
	if closeErr != nil {
		r.finish(assoc, t, app.Response{}, closeErr, start)
		return
	}
	r.finish(assoc, t, closeResp, nil, start)
}

// runFileReadBlocks reads successive g70v5 blocks from handle until the
// outstation marks one as the last block, appending payloads to
// t.FileResult in order.
func (r *runner) runFileReadBlocks(ctx context.Context, assoc *Association, t *Task, pipeline *app.BlockPipeline, handle uint32) error {
	seq := uint32(0)
	for {
		if err := pipeline.Acquire(ctx); err != nil {
			return err
		}
		req := app.Request{
			Function: app.FuncRead,
			Objects:  []app.RawObjectHeader{app.FileTransportHeader(handle, app.FileBlock{SeqNo: seq})},
		}
		resp, err := r.exchange(ctx, assoc, req)
		pipeline.Release()
		if err != nil {
			return err
		}
		block, ok := app.FileBlockFromResponse(resp)
		if !ok {
			return newTaskError(t.Kind.String(), ErrMalformedResponse)
		}
		t.FileResult = append(t.FileResult, block.Data...)
		if block.Last {
			return nil
		}
		seq++
	}
}

// runFileWriteBlocks splits t.FileWriteData into blockSize chunks and
// writes each as a g70v5 block in order, marking the final chunk's Last
// bit so the outstation knows to stop expecting more.
func (r *runner) runFileWriteBlocks(ctx context.Context, assoc *Association, t *Task, pipeline *app.BlockPipeline, handle uint32, blockSize int) error {
	data := t.FileWriteData
	offset := 0
	for {
		end := offset + blockSize
		last := false
		if end >= len(data) {
			end = len(data)
			last = true
		}
		block := app.FileBlock{SeqNo: uint32(offset / blockSize), Last: last, Data: data[offset:end]}

		if err := pipeline.Acquire(ctx); err != nil {
			return err
		}
		req := app.Request{
			Function: app.FuncWrite,
			Objects:  []app.RawObjectHeader{app.FileTransportHeader(handle, block)},
		}
		_, err := r.exchange(ctx, assoc, req)
		pipeline.Release()
		if err != nil {
			return err
		}
		if last {
			return nil
		}
		offset = end
	}
}
