// Package protocol implements the line-oriented wire protocol spoken by the
// device firmware over serial. Every message is an ASCII line terminated by
// \n (tolerant of a trailing \r); binary payloads are hex-encoded inline in
// colon-delimited fields, never sent as raw bytes.
package protocol

// Device-to-host tokens (dump direction).
const (
	TokenDumpStart    = "SD_DUMP_START"
	TokenRecentCount  = "RECENT_COUNT:"
	TokenTotalFiles   = "TOTAL_FILES:"
	TokenDirStart     = "DIR_START:"
	TokenDirEnd       = "DIR_END:"
	TokenFileStart    = "FILE_START:"
	TokenChunk        = "CHUNK:"
	TokenFileEnd      = "FILE_END:"
	TokenDumpComplete = "SD_DUMP_COMPLETE"
	TokenError        = "ERROR:"
)

// Device-to-host tokens (write direction).
const (
	TokenWriteStart    = "SD_WRITE_START"
	TokenWriteReady    = "SD_WRITE_READY:"
	TokenFileInfoAck   = "FILE_INFO_ACK:"
	TokenReadyChunks   = "READY_FOR_CHUNKS"
	TokenAck           = "ACK:"
	TokenNak           = "NAK:"
	TokenProgress      = "PROGRESS:"
	TokenWriteComplete = "SD_WRITE_COMPLETE:"
)

// Host commands. Commands are terminated with a single \r; the firmware
// echoes them back prefixed with ">".
const (
	CmdDump       = "Dump SD"
	CmdDumpRecent = "Dump SD Recent"
	CmdWrite      = "Write SD"
	CommandEcho   = ">"
)

// NAK reasons emitted by the host in the dump direction.
const (
	NakCRCMismatch = "CRC_MISMATCH"
	NakParseError  = "PARSE_ERROR"
)

// Trigger is the control sequence that forces a booting device into command
// mode. It must be sent during the boot window, after the first boot output
// is observed.
var Trigger = []byte("\r\r")

// Command-mode sentinels. The firmware prints one of these when it enters
// command mode.
var CommandModeSentinels = []string{"Command Mode", "Here be Dragons"}
