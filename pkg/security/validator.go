// Package security validates remote paths and sizes declared by the device
// before anything is created on the local filesystem. FILE_START paths come
// off the wire and are untrusted input.
package security

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// reservedAliases maps directory names the local filesystem may refuse to
// create (or hide) to non-reserved stand-ins.
var reservedAliases = map[string]string{
	"System Volume Information": "_System Volume Information_",
}

// Validator checks device-declared paths and sizes.
type Validator struct {
	maxFileSize int64
}

// NewValidator creates a validator. maxFileSize bounds the declared size of
// any single file in a dump; zero disables the check.
func NewValidator(maxFileSize int64) *Validator {
	slog.Info("security_validator_init", "max_file_size", maxFileSize)
	return &Validator{maxFileSize: maxFileSize}
}

// SanitizeRemotePath converts a remote path from a FILE_START line into a
// relative path safe to create under the output root. Reserved directory
// names are aliased, the leading slash is stripped, and any path that
// resolves outside the output root is rejected.
func (v *Validator) SanitizeRemotePath(remote string) (string, error) {
	p := remote
	for reserved, alias := range reservedAliases {
		if strings.Contains(p, reserved) {
			slog.Info("security_path_aliased", "path", remote, "reserved", reserved)
			p = strings.ReplaceAll(p, reserved, alias)
		}
	}

	// Remote paths are rooted at the SD card; make them output-relative.
	p = strings.TrimLeft(p, "/")
	p = filepath.Clean(filepath.FromSlash(p))

	if p == "." || p == "" {
		slog.Error("security_path_rejected", "path", remote, "reason", "empty")
		return "", fmt.Errorf("security: empty remote path %q", remote)
	}
	if filepath.IsAbs(p) || p == ".." || strings.HasPrefix(p, ".."+string(filepath.Separator)) {
		slog.Error("security_path_rejected", "path", remote, "reason", "path_traversal")
		return "", fmt.Errorf("security: path traversal detected: %s", remote)
	}

	return p, nil
}

// ValidateFileSize checks a device-declared file size against the limit.
func (v *Validator) ValidateFileSize(size int64) error {
	if size < 0 {
		return fmt.Errorf("security: negative file size %d", size)
	}
	if v.maxFileSize > 0 && size > v.maxFileSize {
		slog.Error("security_file_size_exceeded", "file_size", size, "max_file_size", v.maxFileSize)
		return fmt.Errorf("security: declared file size %d exceeds max %d", size, v.maxFileSize)
	}
	return nil
}
