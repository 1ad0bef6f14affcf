package security

import (
	"path/filepath"
	"testing"
)

func TestSanitizeRemotePath(t *testing.T) {
	v := NewValidator(0)

	tests := []struct {
		name      string
		remote    string
		want      string
		shouldErr bool
	}{
		{"rooted file", "/data.csv", "data.csv", false},
		{"nested path", "/data/2024/log001.csv", filepath.Join("data", "2024", "log001.csv"), false},
		{"relative path", "notes.txt", "notes.txt", false},
		{"reserved segment aliased", "/System Volume Information/IndexerVolumeGuid",
			filepath.Join("_System Volume Information_", "IndexerVolumeGuid"), false},
		{"traversal rejected", "/../../etc/passwd", "", true},
		{"embedded traversal rejected", "/data/../../secret", "", true},
		{"bare dotdot rejected", "..", "", true},
		{"empty rejected", "", "", true},
		{"root only rejected", "/", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.SanitizeRemotePath(tt.remote)
			if tt.shouldErr {
				if err == nil {
					t.Errorf("expected error for %q, got %q", tt.remote, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("SanitizeRemotePath(%q) failed: %v", tt.remote, err)
			}
			if got != tt.want {
				t.Errorf("SanitizeRemotePath(%q) = %q, want %q", tt.remote, got, tt.want)
			}
		})
	}
}

func TestValidateFileSize(t *testing.T) {
	v := NewValidator(1024)

	if err := v.ValidateFileSize(512); err != nil {
		t.Errorf("size within limit rejected: %v", err)
	}
	if err := v.ValidateFileSize(1024); err != nil {
		t.Errorf("size at limit rejected: %v", err)
	}
	if err := v.ValidateFileSize(2048); err == nil {
		t.Error("size above limit accepted")
	}
	if err := v.ValidateFileSize(-1); err == nil {
		t.Error("negative size accepted")
	}
}

func TestValidateFileSizeUnlimited(t *testing.T) {
	v := NewValidator(0)
	if err := v.ValidateFileSize(1 << 40); err != nil {
		t.Errorf("limit disabled but size rejected: %v", err)
	}
}
