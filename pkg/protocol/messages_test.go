package protocol

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rtgs-lab/sdlink/pkg/checksum"
)

func TestParseFileStart(t *testing.T) {
	fs, err := ParseFileStart("FILE_START:/data/log001.csv:1024:2:1")
	if err != nil {
		t.Fatalf("ParseFileStart failed: %v", err)
	}
	if fs.Path != "/data/log001.csv" || fs.Size != 1024 || fs.TotalChunks != 2 || fs.Index != 1 {
		t.Errorf("unexpected result: %+v", fs)
	}
}

func TestParseFileStartBadFieldCount(t *testing.T) {
	tests := []string{
		"FILE_START:/a.txt:5:1",
		"FILE_START:/a.txt:5:1:1:extra",
		"FILE_START:",
	}
	for _, line := range tests {
		if _, err := ParseFileStart(line); err == nil {
			t.Errorf("expected error for %q", line)
		}
	}
}

func TestParseChunk(t *testing.T) {
	line := "CHUNK:a.txt:1:1:5:3610A686:68656C6C6F"

	c, err := ParseChunk(line)
	if err != nil {
		t.Fatalf("ParseChunk failed: %v", err)
	}
	if c.Name != "a.txt" || c.Num != 1 || c.TotalChunks != 1 || c.Length != 5 {
		t.Errorf("unexpected fields: %+v", c)
	}
	if !bytes.Equal(c.Payload, []byte("hello")) {
		t.Errorf("payload = %q, want hello", c.Payload)
	}
	if c.CRC != checksum.CRC32(c.Payload) {
		t.Errorf("declared CRC %08X does not match payload", c.CRC)
	}
}

func TestParseChunkErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"too few fields", "CHUNK:a.txt:1:1:5:3610A686"},
		{"too many fields", "CHUNK:a.txt:1:1:5:3610A686:68:65"},
		{"bad chunk number", "CHUNK:a.txt:x:1:5:3610A686:68656C6C6F"},
		{"bad crc", "CHUNK:a.txt:1:1:5:zzzzzzzz:68656C6C6F"},
		{"odd hex payload", "CHUNK:a.txt:1:1:5:3610A686:68656C6C6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseChunk(tt.line); err == nil {
				t.Errorf("expected error for %q", tt.line)
			}
		})
	}
}

func TestParseFileEnd(t *testing.T) {
	fe, err := ParseFileEnd("FILE_END:/data/log001.csv:3610A686")
	if err != nil {
		t.Fatalf("ParseFileEnd failed: %v", err)
	}
	if fe.Path != "/data/log001.csv" || fe.CRC != 0x3610A686 {
		t.Errorf("unexpected result: %+v", fe)
	}
}

func TestFormatChunkRoundTrip(t *testing.T) {
	payload := []byte("hello")

	line := FormatChunk("config.json", 3, 7, payload)
	if !strings.HasSuffix(line, "\n") {
		t.Fatal("chunk line must be newline terminated")
	}

	c, err := ParseChunk(strings.TrimSuffix(line, "\n"))
	if err != nil {
		t.Fatalf("formatted chunk does not parse: %v", err)
	}
	if c.Name != "config.json" || c.Num != 3 || c.TotalChunks != 7 || c.Length != 5 {
		t.Errorf("unexpected fields: %+v", c)
	}
	if !bytes.Equal(c.Payload, payload) {
		t.Errorf("payload mismatch: %q", c.Payload)
	}
	if c.CRC != checksum.CRC32(payload) {
		t.Errorf("crc mismatch: %08X", c.CRC)
	}
}

func TestFormatAckNak(t *testing.T) {
	if got := FormatAck(12); got != "ACK:12\n" {
		t.Errorf("FormatAck = %q", got)
	}
	if got := FormatNak(12, NakCRCMismatch); got != "NAK:12:CRC_MISMATCH\n" {
		t.Errorf("FormatNak = %q", got)
	}
}

func TestFormatFileInfo(t *testing.T) {
	if got := FormatFileInfo("cfg.json", 1024, 2); got != "FILE_INFO:cfg.json:1024:2\n" {
		t.Errorf("FormatFileInfo = %q", got)
	}
}
