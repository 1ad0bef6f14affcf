package protocol

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/rtgs-lab/sdlink/pkg/checksum"
)

// FileStart announces one file in the dump stream:
// FILE_START:<path>:<size>:<total_chunks>:<file_index>
type FileStart struct {
	Path        string
	Size        int64
	TotalChunks int
	Index       int
}

// Chunk carries one hex-encoded slice of a file with its own checksum:
// CHUNK:<name>:<chunk_num>:<total_chunks>:<len>:<crc_hex>:<hex_payload>
// The same shape is used in both transfer directions.
type Chunk struct {
	Name        string
	Num         int
	TotalChunks int
	Length      int
	CRC         uint32
	Payload     []byte
}

// FileEnd closes a file block with the whole-file checksum:
// FILE_END:<path>:<crc_hex>
type FileEnd struct {
	Path string
	CRC  uint32
}

// ParseFileStart parses a FILE_START line.
func ParseFileStart(line string) (*FileStart, error) {
	parts := strings.Split(line, ":")
	if len(parts) != 5 {
		return nil, fmt.Errorf("FILE_START: expected 5 fields, got %d", len(parts))
	}

	size, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("FILE_START: bad size %q: %w", parts[2], err)
	}
	total, err := strconv.Atoi(parts[3])
	if err != nil {
		return nil, fmt.Errorf("FILE_START: bad chunk count %q: %w", parts[3], err)
	}
	index, err := strconv.Atoi(parts[4])
	if err != nil {
		return nil, fmt.Errorf("FILE_START: bad file index %q: %w", parts[4], err)
	}

	return &FileStart{Path: parts[1], Size: size, TotalChunks: total, Index: index}, nil
}

// ParseChunk parses a CHUNK line and decodes its hex payload. It does not
// verify the checksum; callers compare Chunk.CRC against
// checksum.CRC32(Chunk.Payload) and ACK or NAK accordingly.
func ParseChunk(line string) (*Chunk, error) {
	parts := strings.Split(line, ":")
	if len(parts) != 7 {
		return nil, fmt.Errorf("CHUNK: expected 7 fields, got %d", len(parts))
	}

	num, err := strconv.Atoi(parts[2])
	if err != nil {
		return nil, fmt.Errorf("CHUNK: bad chunk number %q: %w", parts[2], err)
	}
	total, err := strconv.Atoi(parts[3])
	if err != nil {
		return nil, fmt.Errorf("CHUNK: bad chunk count %q: %w", parts[3], err)
	}
	length, err := strconv.Atoi(parts[4])
	if err != nil {
		return nil, fmt.Errorf("CHUNK: bad length %q: %w", parts[4], err)
	}
	crc, err := checksum.ParseHex(parts[5])
	if err != nil {
		return nil, fmt.Errorf("CHUNK: %w", err)
	}
	payload, err := hex.DecodeString(parts[6])
	if err != nil {
		return nil, fmt.Errorf("CHUNK: bad hex payload: %w", err)
	}

	return &Chunk{
		Name:        parts[1],
		Num:         num,
		TotalChunks: total,
		Length:      length,
		CRC:         crc,
		Payload:     payload,
	}, nil
}

// ParseFileEnd parses a FILE_END line.
func ParseFileEnd(line string) (*FileEnd, error) {
	parts := strings.Split(line, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("FILE_END: expected 3 fields, got %d", len(parts))
	}
	crc, err := checksum.ParseHex(parts[2])
	if err != nil {
		return nil, fmt.Errorf("FILE_END: %w", err)
	}
	return &FileEnd{Path: parts[1], CRC: crc}, nil
}

// FormatChunk renders a CHUNK line for the write direction, computing the
// payload checksum and hex-encoding the payload uppercase as the firmware
// expects.
func FormatChunk(name string, num, total int, payload []byte) string {
	return fmt.Sprintf("CHUNK:%s:%d:%d:%d:%s:%s\n",
		name, num, total, len(payload),
		checksum.Hex(checksum.CRC32(payload)),
		strings.ToUpper(hex.EncodeToString(payload)))
}

// FormatFileInfo renders the FILE_INFO line that precedes chunked upload.
func FormatFileInfo(name string, size int64, totalChunks int) string {
	return fmt.Sprintf("FILE_INFO:%s:%d:%d\n", name, size, totalChunks)
}

// FormatAck renders a host ACK for a verified dump chunk.
func FormatAck(chunkNum int) string {
	return fmt.Sprintf("ACK:%d\n", chunkNum)
}

// FormatNak renders a host NAK with a reason; the firmware resends the
// rejected chunk.
func FormatNak(chunkNum int, reason string) string {
	return fmt.Sprintf("NAK:%d:%s\n", chunkNum, reason)
}
