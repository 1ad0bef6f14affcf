package fsm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rtgs-lab/sdlink/pkg/errors"
	"github.com/rtgs-lab/sdlink/pkg/transfer"
	"github.com/superfly/fsm"
)

// handleWriteConnect validates the input file and opens the serial port
func (m *Machine) handleWriteConnect(ctx context.Context, req *fsm.Request[WriteRequest, TransferResponse]) (*fsm.Response[TransferResponse], error) {
	slog.Info("fsm_state_connect", "port", req.Msg.Port, "file", req.Msg.FilePath)

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		slog.Error("max_retries_exceeded", "max_retries", m.maxRetries)
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &TransferResponse{}
	}

	if _, err := os.Stat(req.Msg.FilePath); err != nil {
		return nil, fsm.Abort(errors.Wrap(err, "input file not found"))
	}

	port, err := m.connect(req.Msg.Port, req.Msg.Baud)
	if err != nil {
		return nil, fsm.Abort(errors.Wrap(err, "failed to connect"))
	}
	resp.Port = port

	name := req.Msg.DeviceFilename
	if name == "" {
		name = filepath.Base(req.Msg.FilePath)
	}
	resp.DeviceFilename = name

	return fsm.NewResponse(resp), nil
}

// handleWriteHandshake forces the booting device into command mode
func (m *Machine) handleWriteHandshake(ctx context.Context, req *fsm.Request[WriteRequest, TransferResponse]) (*fsm.Response[TransferResponse], error) {
	slog.Info("fsm_state_handshake", "skip_trigger", req.Msg.SkipTrigger)

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if err := m.runHandshake(ctx, req.Msg.SkipTrigger, req.Msg.TimeoutSeconds); err != nil {
		return nil, fsm.Abort(err)
	}

	return fsm.NewResponse(resp), nil
}

// handleWriteTransfer runs the upload engine
func (m *Machine) handleWriteTransfer(ctx context.Context, req *fsm.Request[WriteRequest, TransferResponse]) (*fsm.Response[TransferResponse], error) {
	slog.Info("fsm_state_transfer", "operation", "write", "device_filename", req.W.Msg.DeviceFilename)

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	data, err := os.ReadFile(req.Msg.FilePath)
	if err != nil {
		return nil, fsm.Abort(errors.Wrapf(err, "failed to read %s", req.Msg.FilePath))
	}

	u := transfer.NewUploader(m.port, m.lines)
	u.ProgressOut = m.progressOut
	if req.Msg.ChunkSize > 0 {
		u.ChunkSize = req.Msg.ChunkSize
	}

	res, err := u.Run(ctx, data, resp.DeviceFilename)

	resp.ChunksSent = res.ChunksSent
	resp.TotalChunks = res.TotalChunks
	resp.BytesTransferred = res.BytesTransferred
	resp.DurationMS = res.Duration.Milliseconds()

	if err != nil {
		resp.ErrorMessage = res.Error
		return nil, fsm.Abort(errors.Wrap(err, "write failed"))
	}

	return fsm.NewResponse(resp), nil
}

// handleWriteComplete marks the workflow done
func (m *Machine) handleWriteComplete(ctx context.Context, req *fsm.Request[WriteRequest, TransferResponse]) (*fsm.Response[TransferResponse], error) {
	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	resp.Status = StatusComplete
	slog.Info("fsm_state_complete",
		"operation", "write",
		"device_filename", resp.DeviceFilename,
		"chunks_sent", resp.ChunksSent,
		"bytes_transferred", resp.BytesTransferred)

	return fsm.NewResponse(resp), nil
}
