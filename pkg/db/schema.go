package db

// Schema defines the SQLite schema for the transfer run history. Every dump
// or write invocation is recorded, successes and failures alike, so field
// crews can audit what came off which device and when.
const Schema = `
CREATE TABLE IF NOT EXISTS transfer_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    operation TEXT NOT NULL CHECK(operation IN ('dump', 'write')),
    port TEXT NOT NULL,
    baud INTEGER NOT NULL,
    success INTEGER NOT NULL,
    files_processed INTEGER NOT NULL DEFAULT 0,
    total_files INTEGER NOT NULL DEFAULT 0,
    chunks_sent INTEGER NOT NULL DEFAULT 0,
    total_chunks INTEGER NOT NULL DEFAULT 0,
    bytes_transferred INTEGER NOT NULL DEFAULT 0,
    corrupted_files TEXT,
    output_dir TEXT,
    device_filename TEXT,
    archive_key TEXT,
    note TEXT,
    error_message TEXT,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_transfer_runs_operation ON transfer_runs(operation);
CREATE INDEX IF NOT EXISTS idx_transfer_runs_created_at ON transfer_runs(created_at);
`

// Operation constants
const (
	OpDump  = "dump"
	OpWrite = "write"
)

// Run represents one recorded transfer invocation.
type Run struct {
	ID               int64
	Operation        string
	Port             string
	Baud             int
	Success          bool
	FilesProcessed   int
	TotalFiles       int
	ChunksSent       int
	TotalChunks      int
	BytesTransferred int64
	CorruptedFiles   string // newline-joined remote paths
	OutputDir        string
	DeviceFilename   string
	ArchiveKey       string
	Note             string
	ErrorMessage     string
	DurationMS       int64
	CreatedAt        string
}
