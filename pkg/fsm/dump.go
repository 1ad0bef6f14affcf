package fsm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rtgs-lab/sdlink/pkg/errors"
	"github.com/rtgs-lab/sdlink/pkg/handshake"
	"github.com/rtgs-lab/sdlink/pkg/storage"
	"github.com/rtgs-lab/sdlink/pkg/transfer"
	"github.com/superfly/fsm"
)

// handleDumpConnect clears the output directory and opens the serial port
func (m *Machine) handleDumpConnect(ctx context.Context, req *fsm.Request[DumpRequest, TransferResponse]) (*fsm.Response[TransferResponse], error) {
	slog.Info("fsm_state_connect", "port", req.Msg.Port, "output_dir", req.Msg.OutputDir)

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		slog.Error("max_retries_exceeded", "max_retries", m.maxRetries)
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &TransferResponse{}
	}

	// A dump always starts from a clean mirror; no merge semantics.
	if err := transfer.ClearOutputDir(req.Msg.OutputDir); err != nil {
		return nil, fsm.Abort(errors.Wrap(err, "failed to prepare output directory"))
	}

	port, err := m.connect(req.Msg.Port, req.Msg.Baud)
	if err != nil {
		return nil, fsm.Abort(errors.Wrap(err, "failed to connect"))
	}
	resp.Port = port
	resp.OutputDir = req.Msg.OutputDir

	return fsm.NewResponse(resp), nil
}

// handleDumpHandshake forces the booting device into command mode
func (m *Machine) handleDumpHandshake(ctx context.Context, req *fsm.Request[DumpRequest, TransferResponse]) (*fsm.Response[TransferResponse], error) {
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

// handleDumpTransfer runs the download engine
func (m *Machine) handleDumpTransfer(ctx context.Context, req *fsm.Request[DumpRequest, TransferResponse]) (*fsm.Response[TransferResponse], error) {
	slog.Info("fsm_state_transfer", "operation", "dump")

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	d := transfer.NewDownloader(m.port, m.lines, req.Msg.OutputDir, m.validator)
	d.Recent = req.Msg.Recent
	d.ProgressOut = m.progressOut

	res, err := d.Run(ctx)

	resp.FilesProcessed = res.FilesProcessed
	resp.TotalFiles = res.TotalFiles
	resp.BytesTransferred = res.BytesTransferred
	resp.CorruptedFiles = res.CorruptedFiles
	resp.OutputDir = res.OutputDir
	resp.DurationMS = res.Duration.Milliseconds()

	if err != nil {
		resp.ErrorMessage = res.Error
		return nil, fsm.Abort(errors.Wrap(err, "dump failed"))
	}

	return fsm.NewResponse(resp), nil
}

// handleDumpArchive packs and uploads the dump when archival is enabled.
// Archival is best effort: a failure is logged but does not fail the dump.
func (m *Machine) handleDumpArchive(ctx context.Context, req *fsm.Request[DumpRequest, TransferResponse]) (*fsm.Response[TransferResponse], error) {
	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if m.store == nil {
		slog.Info("fsm_state_archive", "enabled", false)
		return fsm.NewResponse(resp), nil
	}

	slog.Info("fsm_state_archive", "enabled", true, "output_dir", resp.OutputDir)

	key := fmt.Sprintf("sd-dumps/%s-%s.tar.gz",
		filepath.Base(resp.OutputDir), time.Now().UTC().Format("20060102T150405Z"))
	archivePath := filepath.Join(os.TempDir(), filepath.Base(key))

	if _, err := storage.BuildArchive(resp.OutputDir, archivePath); err != nil {
		slog.Warn("archive_build_failed", "error", err)
		return fsm.NewResponse(resp), nil
	}
	defer os.Remove(archivePath)

	result, err := m.store.Upload(ctx, key, archivePath)
	if err != nil {
		slog.Warn("archive_upload_failed", "key", key, "error", err)
		return fsm.NewResponse(resp), nil
	}

	resp.ArchiveKey = result.Key
	slog.Info("archive_uploaded", "key", result.Key, "size", result.Size, "sha256", result.SHA256[:16]+"...")

	return fsm.NewResponse(resp), nil
}

// handleDumpComplete marks the workflow done
func (m *Machine) handleDumpComplete(ctx context.Context, req *fsm.Request[DumpRequest, TransferResponse]) (*fsm.Response[TransferResponse], error) {
	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	resp.Status = StatusComplete
	slog.Info("fsm_state_complete",
		"operation", "dump",
		"files_processed", resp.FilesProcessed,
		"total_files", resp.TotalFiles,
		"bytes_transferred", resp.BytesTransferred,
		"corrupted_files", len(resp.CorruptedFiles))

	return fsm.NewResponse(resp), nil
}

// runHandshake is shared by both workflows.
func (m *Machine) runHandshake(ctx context.Context, skip bool, timeoutSeconds int) error {
	if skip {
		slog.Info("handshake_skipped", "reason", "device already in command mode")
		return nil
	}

	engine := handshake.New(m.port, m.lines, slog.Default())
	if timeoutSeconds > 0 {
		engine.Timeout = time.Duration(timeoutSeconds) * time.Second
	}

	if err := engine.Run(ctx); err != nil {
		return errors.Wrap(err, "handshake failed (power cycle the device and retry, or use --skip-trigger)")
	}
	return nil
}
