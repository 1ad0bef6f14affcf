package storage

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rtgs-lab/sdlink/pkg/errors"
)

// BuildArchive packs the dump output tree at srcDir into a gzip-compressed
// tarball at destPath, preserving the mirrored directory structure. Returns
// the archive size in bytes.
func BuildArchive(srcDir, destPath string) (int64, error) {
	slog.Info("archive_build_start", "src_dir", srcDir, "dest", destPath)

	out, err := os.Create(destPath)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create archive file")
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	fileCount := 0
	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		if _, err := io.Copy(tw, f); err != nil {
			return err
		}
		fileCount++
		return nil
	})
	if err != nil {
		slog.Error("archive_build_failed", "src_dir", srcDir, "error", err)
		return 0, errors.Wrap(err, "failed to archive dump output")
	}

	if err := tw.Close(); err != nil {
		return 0, errors.Wrap(err, "failed to finalize tar")
	}
	if err := gz.Close(); err != nil {
		return 0, errors.Wrap(err, "failed to finalize gzip")
	}
	if err := out.Close(); err != nil {
		return 0, errors.Wrap(err, "failed to close archive file")
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return 0, errors.Wrap(err, "failed to stat archive")
	}

	slog.Info("archive_build_complete", "dest", destPath, "file_count", fileCount, "size", info.Size())
	return info.Size(), nil
}
