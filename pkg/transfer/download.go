package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rtgs-lab/sdlink/pkg/checksum"
	"github.com/rtgs-lab/sdlink/pkg/protocol"
	"github.com/rtgs-lab/sdlink/pkg/security"
	"github.com/schollz/progressbar/v3"
)

// parseState tracks where the download loop is in the token stream. A CHUNK
// or FILE_END outside a FILE_START/FILE_END pair is ignored.
type parseState int

const (
	stateIdle parseState = iota
	stateInFile
)

// fileRecord is the in-flight file being reassembled from chunks. The
// accumulated buffer only ever contains CRC-verified chunk data; the
// whole-file CRC is computed over exactly this buffer before anything is
// written to disk.
type fileRecord struct {
	remotePath  string
	localPath   string // empty when the file is received but not persisted
	size        int64
	totalChunks int
	data        []byte
	chunksRecvd int
}

// Downloader drives a full SD dump: directory enumeration, chunked file
// transfer with per-chunk ACK/NAK, and whole-file CRC verification, writing
// a mirror of the remote tree under OutputDir.
//
// In this direction the host is a responder: a NAK'd chunk is resent by the
// device, the engine never re-requests.
type Downloader struct {
	rw        io.ReadWriter
	lines     *protocol.LineReader
	outputDir string
	validator *security.Validator

	// Recent limits the dump to the most recent N files of each type when
	// positive ("Dump SD Recent N").
	Recent int

	// StartTimeout bounds the wait between sending the command and the
	// first dump token.
	StartTimeout time.Duration

	// Poll is the idle sleep between empty reads.
	Poll time.Duration

	// Log and ProgressOut are injected so the engine has no global state;
	// tests capture both.
	Log         *slog.Logger
	ProgressOut io.Writer
}

// NewDownloader creates a download engine over an open connection. The line
// reader must be the same one used during the handshake so buffered bytes
// are not lost.
func NewDownloader(rw io.ReadWriter, lines *protocol.LineReader, outputDir string, validator *security.Validator) *Downloader {
	return &Downloader{
		rw:           rw,
		lines:        lines,
		outputDir:    outputDir,
		validator:    validator,
		StartTimeout: 10 * time.Second,
		Poll:         100 * time.Millisecond,
		Log:          slog.Default(),
		ProgressOut:  os.Stderr,
	}
}

// Run sends the dump command and processes the stream until
// SD_DUMP_COMPLETE, an ERROR token, a transport failure, or cancellation.
// The returned Result is always populated; err is non-nil exactly when
// Result.Success is false.
func (d *Downloader) Run(ctx context.Context) (*Result, error) {
	absOut, err := filepath.Abs(d.outputDir)
	if err != nil {
		absOut = d.outputDir
	}
	res := &Result{
		Operation: OpDump,
		OutputDir: absOut,
		StartTime: time.Now(),
	}

	if err := os.MkdirAll(d.outputDir, 0755); err != nil {
		return res.fail(err.Error()), fmt.Errorf("create output dir: %w", err)
	}

	pending, err := d.sendCommand(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return res.fail("operation cancelled by user"), err
		}
		return res.fail(err.Error()), err
	}

	var (
		state     = stateIdle
		cur       *fileRecord
		filesBar  *progressbar.ProgressBar
		chunksBar *progressbar.ProgressBar
	)
	defer func() {
		finishBar(chunksBar)
		finishBar(filesBar)
	}()

	for {
		if err := ctx.Err(); err != nil {
			return res.fail("operation cancelled by user"), fmt.Errorf("dump cancelled: %w", err)
		}

		line := pending
		pending = ""
		if line == "" {
			line, err = d.lines.ReadLine()
			if err != nil {
				return res.fail(err.Error()), fmt.Errorf("serial read: %w", err)
			}
			if line == "" {
				continue
			}
		}

		switch {
		case strings.HasPrefix(line, protocol.TokenRecentCount):
			if n, err := strconv.Atoi(strings.TrimPrefix(line, protocol.TokenRecentCount)); err == nil {
				d.Log.Info("dump_recent_filter", "recent_count", n)
			}

		case strings.HasPrefix(line, protocol.TokenTotalFiles):
			n, err := strconv.Atoi(strings.TrimPrefix(line, protocol.TokenTotalFiles))
			if err != nil {
				d.Log.Warn("dump_bad_total_files", "line", line)
				continue
			}
			res.TotalFiles = n
			d.Log.Info("dump_total_files", "total_files", n)
			finishBar(filesBar)
			filesBar = newBar(d.ProgressOut, n, "files")

		case strings.HasPrefix(line, protocol.TokenDirStart):
			d.Log.Info("dump_dir_enter", "path", strings.TrimPrefix(line, protocol.TokenDirStart))

		case strings.HasPrefix(line, protocol.TokenDirEnd):
			d.Log.Info("dump_dir_done", "path", strings.TrimPrefix(line, protocol.TokenDirEnd))

		case strings.HasPrefix(line, protocol.TokenFileStart):
			cur = d.startFile(line, res)
			if cur != nil {
				state = stateInFile
				finishBar(chunksBar)
				chunksBar = newBar(d.ProgressOut, cur.totalChunks, "chunks "+filepath.Base(cur.remotePath))
			}

		case strings.HasPrefix(line, protocol.TokenChunk):
			if state != stateInFile || cur == nil {
				d.Log.Warn("dump_chunk_outside_file", "line_prefix", protocol.TokenChunk)
				continue
			}
			if err := d.handleChunk(line, cur, res, chunksBar); err != nil {
				return res.fail(err.Error()), err
			}

		case strings.HasPrefix(line, protocol.TokenFileEnd):
			if state != stateInFile || cur == nil {
				continue
			}
			if err := d.finishFile(line, cur, res); err != nil {
				return res.fail(err.Error()), err
			}
			finishBar(chunksBar)
			chunksBar = nil
			if filesBar != nil {
				_ = filesBar.Add(1)
			}
			cur = nil
			state = stateIdle

		case line == protocol.TokenDumpComplete:
			d.Log.Info("dump_complete",
				"files_processed", res.FilesProcessed,
				"total_files", res.TotalFiles,
				"bytes_transferred", res.BytesTransferred,
				"corrupted_files", len(res.CorruptedFiles))
			res.Success = true
			return res.finish(), nil

		case strings.HasPrefix(line, protocol.TokenError):
			msg := strings.TrimPrefix(line, protocol.TokenError)
			d.Log.Error("dump_device_error", "message", msg)
			return res.fail("device error: " + msg), fmt.Errorf("device error: %s", msg)

		default:
			// Non-protocol output (debug prints from the firmware).
			d.Log.Debug("dump_unrecognized_line", "line", line)
		}
	}
}

// sendCommand writes the dump command and waits for evidence the dump
// started. RECENT_COUNT and TOTAL_FILES both imply a running dump; when one
// of them is the line that confirms the start it is returned so the main
// loop can process it.
func (d *Downloader) sendCommand(ctx context.Context) (string, error) {
	cmd := protocol.CmdDump
	if d.Recent > 0 {
		cmd = fmt.Sprintf("%s %d", protocol.CmdDumpRecent, d.Recent)
	}
	d.Log.Info("dump_command_send", "command", cmd)

	if _, err := d.rw.Write([]byte(cmd + "\r")); err != nil {
		return "", fmt.Errorf("send dump command: %w", err)
	}

	deadline := time.Now().Add(d.StartTimeout)
	echoed := false

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		line, err := d.lines.ReadLine()
		if err != nil {
			return "", fmt.Errorf("serial read: %w", err)
		}
		if line == "" {
			time.Sleep(d.Poll)
			continue
		}

		switch {
		case strings.HasPrefix(line, protocol.CommandEcho+protocol.CmdDump):
			echoed = true
		case strings.Contains(line, protocol.TokenDumpStart):
			return "", nil
		case strings.HasPrefix(line, protocol.TokenRecentCount),
			strings.HasPrefix(line, protocol.TokenTotalFiles):
			return line, nil
		}
	}

	if echoed {
		d.Log.Warn("dump_command_echoed_no_start")
	}
	return "", fmt.Errorf("SD dump did not start within %s", d.StartTimeout)
}

// startFile allocates the record for a FILE_START line. A file whose path
// or declared size fails validation is still received (so the stream keeps
// flowing) but never persisted.
func (d *Downloader) startFile(line string, res *Result) *fileRecord {
	fs, err := protocol.ParseFileStart(line)
	if err != nil {
		d.Log.Warn("dump_bad_file_start", "line", line, "error", err)
		return nil
	}

	rec := &fileRecord{
		remotePath:  fs.Path,
		size:        fs.Size,
		totalChunks: fs.TotalChunks,
	}

	rel, err := d.validator.SanitizeRemotePath(fs.Path)
	if err != nil {
		d.Log.Error("dump_path_rejected", "path", fs.Path, "error", err)
		return rec
	}
	if err := d.validator.ValidateFileSize(fs.Size); err != nil {
		d.Log.Error("dump_size_rejected", "path", fs.Path, "size", fs.Size, "error", err)
		return rec
	}

	local := filepath.Join(d.outputDir, rel)
	if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
		d.Log.Error("dump_mkdir_failed", "path", local, "error", err)
		return rec
	}
	rec.localPath = local

	d.Log.Info("dump_file_start",
		"path", fs.Path,
		"size", fs.Size,
		"total_chunks", fs.TotalChunks,
		"file_index", fs.Index,
		"total_files", res.TotalFiles)
	return rec
}

// handleChunk verifies one CHUNK line and answers ACK or NAK. Only errors
// from the transport itself are fatal.
func (d *Downloader) handleChunk(line string, cur *fileRecord, res *Result, bar *progressbar.ProgressBar) error {
	chunk, err := protocol.ParseChunk(line)
	if err != nil {
		d.Log.Warn("dump_chunk_parse_error", "error", err)
		return d.send(protocol.FormatNak(0, protocol.NakParseError))
	}

	if checksum.CRC32(chunk.Payload) != chunk.CRC {
		d.Log.Warn("dump_chunk_crc_mismatch", "chunk_num", chunk.Num, "path", cur.remotePath)
		return d.send(protocol.FormatNak(chunk.Num, protocol.NakCRCMismatch))
	}

	if err := d.send(protocol.FormatAck(chunk.Num)); err != nil {
		return err
	}

	cur.data = append(cur.data, chunk.Payload...)
	cur.chunksRecvd++
	res.BytesTransferred += int64(len(chunk.Payload))
	if bar != nil {
		_ = bar.Add(1)
	}
	return nil
}

// finishFile verifies the whole-file CRC from a FILE_END line and persists
// the buffer. A mismatch drops the file and the dump continues; the path is
// recorded in Result.CorruptedFiles.
func (d *Downloader) finishFile(line string, cur *fileRecord, res *Result) error {
	fe, err := protocol.ParseFileEnd(line)
	if err != nil {
		d.Log.Warn("dump_bad_file_end", "line", line, "error", err)
		res.FilesProcessed++
		return nil
	}

	got := checksum.CRC32(cur.data)
	switch {
	case got != fe.CRC:
		d.Log.Warn("dump_file_crc_mismatch",
			"path", cur.remotePath,
			"declared_crc", checksum.Hex(fe.CRC),
			"computed_crc", checksum.Hex(got))
		res.CorruptedFiles = append(res.CorruptedFiles, cur.remotePath)

	case cur.localPath == "":
		d.Log.Warn("dump_file_skipped", "path", cur.remotePath)

	default:
		if err := os.WriteFile(cur.localPath, cur.data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", cur.localPath, err)
		}
		d.Log.Info("dump_file_saved", "path", cur.localPath, "bytes", len(cur.data), "chunks", cur.chunksRecvd)
	}

	res.FilesProcessed++
	return nil
}

func (d *Downloader) send(msg string) error {
	if _, err := d.rw.Write([]byte(msg)); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}
