package db

import (
	"database/sql"
	"log/slog"

	"github.com/rtgs-lab/sdlink/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for transfer runs
type Repository struct {
	db *sql.DB
}

// NewRepository opens the run-history database and ensures the schema
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create inserts a new run record
func (r *Repository) Create(run *Run) error {
	slog.Info("database_create_run", "operation", run.Operation, "port", run.Port, "success", run.Success)

	query := `
		INSERT INTO transfer_runs (
			operation, port, baud, success,
			files_processed, total_files, chunks_sent, total_chunks, bytes_transferred,
			corrupted_files, output_dir, device_filename, archive_key, note, error_message, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		run.Operation, run.Port, run.Baud, boolToInt(run.Success),
		run.FilesProcessed, run.TotalFiles, run.ChunksSent, run.TotalChunks, run.BytesTransferred,
		run.CorruptedFiles, run.OutputDir, run.DeviceFilename, run.ArchiveKey, run.Note,
		run.ErrorMessage, run.DurationMS)
	if err != nil {
		slog.Error("database_insert_failed", "operation", run.Operation, "error", err)
		return errors.Wrap(err, "failed to insert run")
	}

	id, err := result.LastInsertId()
	if err != nil {
		slog.Error("database_last_insert_id_failed", "operation", run.Operation, "error", err)
		return errors.Wrap(err, "failed to get last insert id")
	}
	run.ID = id

	slog.Info("database_run_created", "run_id", run.ID, "operation", run.Operation)
	return nil
}

// List retrieves the most recent runs, newest first. limit <= 0 means all.
func (r *Repository) List(limit int) ([]*Run, error) {
	slog.Info("database_list_runs", "limit", limit)

	query := `
		SELECT id, operation, port, baud, success,
		       files_processed, total_files, chunks_sent, total_chunks, bytes_transferred,
		       corrupted_files, output_dir, device_filename, archive_key, note, error_message,
		       duration_ms, created_at
		FROM transfer_runs ORDER BY created_at DESC, id DESC
	`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = r.db.Query(query+" LIMIT ?", limit)
	} else {
		rows, err = r.db.Query(query)
	}
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Wrap(err, "rows error")
	}

	slog.Info("database_list_complete", "run_count", len(runs))
	return runs, nil
}

func scanRun(rows *sql.Rows) (*Run, error) {
	var run Run
	var success int
	var corrupted, outputDir, deviceFilename, archiveKey, note, errorMessage sql.NullString

	err := rows.Scan(
		&run.ID, &run.Operation, &run.Port, &run.Baud, &success,
		&run.FilesProcessed, &run.TotalFiles, &run.ChunksSent, &run.TotalChunks, &run.BytesTransferred,
		&corrupted, &outputDir, &deviceFilename, &archiveKey, &note, &errorMessage,
		&run.DurationMS, &run.CreatedAt)
	if err != nil {
		return nil, err
	}

	run.Success = success != 0
	run.CorruptedFiles = corrupted.String
	run.OutputDir = outputDir.String
	run.DeviceFilename = deviceFilename.String
	run.ArchiveKey = archiveKey.String
	run.Note = note.String
	run.ErrorMessage = errorMessage.String
	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
