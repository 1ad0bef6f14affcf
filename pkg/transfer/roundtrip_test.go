package transfer

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rtgs-lab/sdlink/pkg/checksum"
)

// TestRoundTrip uploads a file to a simulated device and dumps it back,
// checking the content and whole-file CRC survive both directions intact.
func TestRoundTrip(t *testing.T) {
	original := bytes.Repeat([]byte("gems sensing node 0042\n"), 40) // spans two chunks

	// Upload.
	dev := newMockDevice()
	u := newTestUploader(dev.conn)
	if _, err := u.Run(context.Background(), original, "node.cfg"); err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	stored := dev.contents()
	if !bytes.Equal(stored, original) {
		t.Fatal("device-side content differs from original")
	}

	// Dump the stored file back, chunked the way the firmware chunks it.
	conn := &scriptConn{}
	var lines []string
	lines = append(lines, "TOTAL_FILES:1")
	chunkSize := 512
	total := (len(stored) + chunkSize - 1) / chunkSize
	lines = append(lines, fmt.Sprintf("FILE_START:/node.cfg:%d:%d:1", len(stored), total))
	for num := 1; num <= total; num++ {
		start := (num - 1) * chunkSize
		end := min(start+chunkSize, len(stored))
		payload := stored[start:end]
		lines = append(lines, fmt.Sprintf("CHUNK:node.cfg:%d:%d:%d:%s:%s",
			num, total, len(payload),
			checksum.Hex(checksum.CRC32(payload)),
			strings.ToUpper(hex.EncodeToString(payload))))
	}
	lines = append(lines, fmt.Sprintf("FILE_END:/node.cfg:%s", checksum.Hex(checksum.CRC32(stored))))
	lines = append(lines, "SD_DUMP_COMPLETE")
	conn.push(lines...)

	d, outDir := newTestDownloader(t, conn)
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("dump failed: %v", err)
	}
	if len(res.CorruptedFiles) != 0 {
		t.Fatalf("round trip flagged corruption: %v", res.CorruptedFiles)
	}

	dumped, err := os.ReadFile(filepath.Join(outDir, "node.cfg"))
	if err != nil {
		t.Fatalf("dumped file missing: %v", err)
	}
	if !bytes.Equal(dumped, original) {
		t.Error("round-tripped content differs from original")
	}
	if checksum.CRC32(dumped) != checksum.CRC32(original) {
		t.Error("round-tripped CRC differs from original")
	}
}
