package transfer

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rtgs-lab/sdlink/pkg/errors"
)

// ClearOutputDir empties and recreates the dump output directory. A dump
// always starts from a clean tree; there are no incremental or merge
// semantics. If the path exists but is a regular file it is removed.
func ClearOutputDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		// Nothing to clear.
	case err != nil:
		return errors.Wrap(err, "failed to stat output directory")
	case info.IsDir():
		entries, err := os.ReadDir(dir)
		if err != nil {
			return errors.Wrap(err, "failed to read output directory")
		}
		for _, entry := range entries {
			if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
				return errors.Wrap(err, "failed to clear output directory")
			}
		}
		slog.Info("output_dir_cleared", "path", dir)
	default:
		if err := os.Remove(dir); err != nil {
			return errors.Wrap(err, "failed to remove file at output path")
		}
		slog.Info("output_path_file_removed", "path", dir)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}
	return nil
}
