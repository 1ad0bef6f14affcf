// Package transfer implements the chunked download (SD dump) and upload
// (SD write) engines. Both directions move hex-encoded chunks over a
// line-oriented serial protocol, verified end to end with CRC32.
package transfer

import "time"

// Operation names.
const (
	OpDump  = "dump"
	OpWrite = "write"
)

// Result is the structured outcome of one dump or write. It is the only
// artifact handed to external collaborators (CLI output, run history,
// archival); the engines have no knowledge of how it is consumed.
type Result struct {
	Success   bool
	Operation string

	// Dump direction
	FilesProcessed int
	TotalFiles     int
	OutputDir      string

	// CorruptedFiles lists remote paths whose whole-file CRC failed. Such
	// files are dropped, not written, and the dump continues; the overall
	// Success flag stays true. Consumers that care about partial failure
	// must check this list.
	CorruptedFiles []string

	// Write direction
	ChunksSent     int
	TotalChunks    int
	DeviceFilename string

	BytesTransferred int64

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Error string
}

// finish stamps the end time and duration.
func (r *Result) finish() *Result {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	return r
}

// fail marks the result failed with a message.
func (r *Result) fail(msg string) *Result {
	r.Success = false
	r.Error = msg
	return r.finish()
}
