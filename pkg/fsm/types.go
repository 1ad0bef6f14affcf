package fsm

// DumpRequest is the SD dump workflow input
type DumpRequest struct {
	Port           string
	Baud           int
	OutputDir      string
	Recent         int
	SkipTrigger    bool
	TimeoutSeconds int
}

// WriteRequest is the SD write workflow input
type WriteRequest struct {
	Port           string
	Baud           int
	FilePath       string
	DeviceFilename string
	ChunkSize      int
	SkipTrigger    bool
	TimeoutSeconds int
}

// TransferResponse is the workflow output (accumulated across transitions)
type TransferResponse struct {
	// From Connect
	Port string

	// From Transfer
	FilesProcessed   int
	TotalFiles       int
	ChunksSent       int
	TotalChunks      int
	BytesTransferred int64
	CorruptedFiles   []string
	OutputDir        string
	DeviceFilename   string
	DurationMS       int64

	// From Archive
	ArchiveKey string

	// From Complete/Failed
	Status       string
	ErrorMessage string
}

// State names
const (
	StateConnect   = "connect"
	StateHandshake = "handshake"
	StateTransfer  = "transfer"
	StateArchive   = "archive"
	StateComplete  = "complete"
	StateFailed    = "failed"
)

// Status values recorded in TransferResponse.Status
const (
	StatusComplete = "complete"
	StatusFailed   = "failed"
)
