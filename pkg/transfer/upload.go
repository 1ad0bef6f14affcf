package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rtgs-lab/sdlink/pkg/protocol"
)

// Uploader drives a single-file SD write. The host is the data source in
// this direction, so sequencing is strict and loss recovery is
// host-initiated: each chunk is sent and re-sent up to MaxRetries attempts
// until the device acknowledges it.
type Uploader struct {
	rw    io.ReadWriter
	lines *protocol.LineReader

	// ChunkSize is the payload size per CHUNK line; the final chunk may be
	// shorter.
	ChunkSize int

	// MaxRetries is the total number of send attempts per chunk.
	MaxRetries int

	StartTimeout    time.Duration // command echo to SD_WRITE_START
	StepTimeout     time.Duration // each pre-chunk protocol step
	AckTimeout      time.Duration // per-chunk ACK/NAK wait
	CompleteTimeout time.Duration // device-side commit after the last chunk

	// Poll is the idle sleep between empty reads.
	Poll time.Duration

	Log         *slog.Logger
	ProgressOut io.Writer
}

// NewUploader creates an upload engine over an open connection.
func NewUploader(rw io.ReadWriter, lines *protocol.LineReader) *Uploader {
	return &Uploader{
		rw:              rw,
		lines:           lines,
		ChunkSize:       512,
		MaxRetries:      3,
		StartTimeout:    10 * time.Second,
		StepTimeout:     10 * time.Second,
		AckTimeout:      30 * time.Second,
		CompleteTimeout: 30 * time.Second,
		Poll:            100 * time.Millisecond,
		Log:             slog.Default(),
		ProgressOut:     os.Stderr,
	}
}

// Run uploads data to the device as filename. The returned Result is always
// populated; err is non-nil exactly when Result.Success is false.
func (u *Uploader) Run(ctx context.Context, data []byte, filename string) (*Result, error) {
	totalChunks := (len(data) + u.ChunkSize - 1) / u.ChunkSize
	res := &Result{
		Operation:      OpWrite,
		DeviceFilename: filename,
		TotalChunks:    totalChunks,
		StartTime:      time.Now(),
	}

	u.Log.Info("write_start", "filename", filename, "size", len(data), "total_chunks", totalChunks)

	fail := func(err error) (*Result, error) {
		return res.fail(err.Error()), err
	}

	if err := u.sendCommand(ctx, filename); err != nil {
		return fail(err)
	}

	// The device announced SD_WRITE_START; acknowledge and walk the
	// strictly ordered preamble.
	if err := u.send("ACK\n"); err != nil {
		return fail(err)
	}
	if _, err := u.waitFor(ctx, u.StepTimeout, "SD_WRITE_READY", func(l string) bool {
		return strings.HasPrefix(l, protocol.TokenWriteReady)
	}); err != nil {
		return fail(err)
	}

	if err := u.send(protocol.FormatFileInfo(filename, int64(len(data)), totalChunks)); err != nil {
		return fail(err)
	}
	if _, err := u.waitFor(ctx, u.StepTimeout, "FILE_INFO_ACK", func(l string) bool {
		return strings.HasPrefix(l, protocol.TokenFileInfoAck)
	}); err != nil {
		return fail(err)
	}

	if _, err := u.waitFor(ctx, u.StepTimeout, "READY_FOR_CHUNKS", func(l string) bool {
		return l == protocol.TokenReadyChunks
	}); err != nil {
		return fail(err)
	}

	bar := newBar(u.ProgressOut, totalChunks, "upload "+filename)
	defer finishBar(bar)

	for num := 1; num <= totalChunks; num++ {
		start := (num - 1) * u.ChunkSize
		end := min(start+u.ChunkSize, len(data))
		payload := data[start:end]

		if err := u.sendChunk(ctx, filename, num, totalChunks, payload); err != nil {
			return fail(err)
		}

		res.ChunksSent++
		res.BytesTransferred += int64(len(payload))
		_ = bar.Add(1)
	}

	// Chunk receipt and device-side commit are distinct steps: the write
	// only succeeds once the device confirms the file is on the card.
	if _, err := u.waitFor(ctx, u.CompleteTimeout, "SD_WRITE_COMPLETE", func(l string) bool {
		return strings.HasPrefix(l, protocol.TokenWriteComplete)
	}); err != nil {
		return fail(err)
	}

	u.Log.Info("write_complete",
		"filename", filename,
		"chunks_sent", res.ChunksSent,
		"bytes_transferred", res.BytesTransferred)
	res.Success = true
	return res.finish(), nil
}

// sendCommand writes "Write SD <name>" and waits for SD_WRITE_START,
// skipping the command echo.
func (u *Uploader) sendCommand(ctx context.Context, filename string) error {
	cmd := fmt.Sprintf("%s %s", protocol.CmdWrite, filename)
	u.Log.Info("write_command_send", "command", cmd)

	if err := u.send(cmd + "\r"); err != nil {
		return err
	}

	_, err := u.waitFor(ctx, u.StartTimeout, "SD_WRITE_START", func(l string) bool {
		return strings.Contains(l, protocol.TokenWriteStart)
	})
	return err
}

// sendChunk transmits one chunk and waits for its acknowledgment, resending
// on NAK or timeout up to MaxRetries total attempts.
func (u *Uploader) sendChunk(ctx context.Context, filename string, num, total int, payload []byte) error {
	line := protocol.FormatChunk(filename, num, total, payload)

	for attempt := 1; attempt <= u.MaxRetries; attempt++ {
		if attempt > 1 {
			u.Log.Warn("write_chunk_retry", "chunk_num", num, "attempt", attempt)
		}
		if err := u.send(line); err != nil {
			return err
		}

		acked, err := u.awaitChunkAck(ctx, num)
		if err != nil {
			return err
		}
		if acked {
			return nil
		}
	}

	return fmt.Errorf("failed to send chunk %d after %d attempts", num, u.MaxRetries)
}

// awaitChunkAck waits one AckTimeout window for ACK or NAK of chunk num.
// Returns (false, nil) on NAK or timeout, both of which mean "resend".
func (u *Uploader) awaitChunkAck(ctx context.Context, num int) (bool, error) {
	ackPrefix := fmt.Sprintf("%s%d", protocol.TokenAck, num)
	nakPrefix := fmt.Sprintf("%s%d", protocol.TokenNak, num)
	deadline := time.Now().Add(u.AckTimeout)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return false, fmt.Errorf("write cancelled: %w", err)
		}

		line, err := u.lines.ReadLine()
		if err != nil {
			return false, fmt.Errorf("serial read: %w", err)
		}

		switch {
		case line == "":
			time.Sleep(u.Poll)
		case strings.HasPrefix(line, ackPrefix):
			return true, nil
		case strings.HasPrefix(line, nakPrefix):
			u.Log.Warn("write_chunk_nak", "chunk_num", num, "line", line)
			return false, nil
		case strings.HasPrefix(line, protocol.TokenProgress):
			u.Log.Debug("write_device_progress", "line", line)
		case strings.HasPrefix(line, protocol.TokenError):
			return false, fmt.Errorf("device error: %s", strings.TrimPrefix(line, protocol.TokenError))
		default:
			u.Log.Debug("write_unrecognized_line", "line", line)
		}
	}

	u.Log.Warn("write_chunk_ack_timeout", "chunk_num", num, "timeout", u.AckTimeout)
	return false, nil
}

// waitFor reads lines until accept matches, the device reports an error, or
// the timeout elapses. PROGRESS lines are informational and never end the
// wait.
func (u *Uploader) waitFor(ctx context.Context, timeout time.Duration, what string, accept func(string) bool) (string, error) {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("write cancelled: %w", err)
		}

		line, err := u.lines.ReadLine()
		if err != nil {
			return "", fmt.Errorf("serial read: %w", err)
		}

		switch {
		case line == "":
			time.Sleep(u.Poll)
		case accept(line):
			u.Log.Info("write_step", "token", what, "line", line)
			return line, nil
		case strings.HasPrefix(line, protocol.TokenProgress):
			u.Log.Debug("write_device_progress", "line", line)
		case strings.HasPrefix(line, protocol.TokenError):
			return "", fmt.Errorf("device error: %s", strings.TrimPrefix(line, protocol.TokenError))
		default:
			u.Log.Debug("write_unrecognized_line", "line", line)
		}
	}

	return "", fmt.Errorf("device did not send %s within %s", what, timeout)
}

func (u *Uploader) send(msg string) error {
	if _, err := u.rw.Write([]byte(msg)); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}
