package checksum

import "testing"

func TestCRC32KnownValues(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint32
	}{
		{"empty", []byte{}, 0x00000000},
		{"hello", []byte("hello"), 0x3610A686},
		{"single byte", []byte{0x00}, 0xD202EF8D},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CRC32(tt.data); got != tt.want {
				t.Errorf("CRC32(%q) = %08X, want %08X", tt.data, got, tt.want)
			}
		})
	}
}

func TestCRC32Deterministic(t *testing.T) {
	data := []byte("TOTAL_FILES:3")
	if CRC32(data) != CRC32(data) {
		t.Error("same input must yield same checksum")
	}
}

func TestHexRoundTrip(t *testing.T) {
	sum := CRC32([]byte("hello"))

	s := Hex(sum)
	if s != "3610A686" {
		t.Errorf("Hex = %s, want 3610A686", s)
	}

	parsed, err := ParseHex(s)
	if err != nil {
		t.Fatalf("ParseHex failed: %v", err)
	}
	if parsed != sum {
		t.Errorf("round trip mismatch: got %08X, want %08X", parsed, sum)
	}
}

func TestParseHexLowercase(t *testing.T) {
	parsed, err := ParseHex("3610a686")
	if err != nil {
		t.Fatalf("ParseHex failed: %v", err)
	}
	if parsed != 0x3610A686 {
		t.Errorf("got %08X, want 3610A686", parsed)
	}
}

func TestParseHexInvalid(t *testing.T) {
	if _, err := ParseHex("not-hex"); err == nil {
		t.Error("expected error for invalid hex")
	}
	if _, err := ParseHex("100000000"); err == nil {
		t.Error("expected error for value exceeding 32 bits")
	}
}
