package db

import (
	"path/filepath"
	"testing"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepository_CreateAndList(t *testing.T) {
	repo := testRepo(t)

	run := &Run{
		Operation:        OpDump,
		Port:             "/dev/ttyUSB0",
		Baud:             1000000,
		Success:          true,
		FilesProcessed:   12,
		TotalFiles:       12,
		BytesTransferred: 48213,
		OutputDir:        "/tmp/sd_dump_output",
		DurationMS:       9120,
	}

	if err := repo.Create(run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	if run.ID == 0 {
		t.Error("run ID not assigned")
	}

	runs, err := repo.List(0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}

	got := runs[0]
	if got.Operation != OpDump || got.Port != run.Port || !got.Success {
		t.Errorf("retrieved run mismatch: %+v", got)
	}
	if got.FilesProcessed != 12 || got.BytesTransferred != 48213 {
		t.Errorf("counters mismatch: %+v", got)
	}
}

func TestRepository_RecordsFailures(t *testing.T) {
	repo := testRepo(t)

	run := &Run{
		Operation:    OpWrite,
		Port:         "/dev/ttyACM1",
		Baud:         1000000,
		Success:      false,
		ErrorMessage: "failed to send chunk 3 after 3 attempts",
	}
	if err := repo.Create(run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	runs, _ := repo.List(0)
	if len(runs) != 1 || runs[0].Success {
		t.Fatalf("failure not recorded: %+v", runs)
	}
	if runs[0].ErrorMessage == "" {
		t.Error("error message not persisted")
	}
}

func TestRepository_ListLimit(t *testing.T) {
	repo := testRepo(t)

	for i := 0; i < 5; i++ {
		repo.Create(&Run{Operation: OpDump, Port: "/dev/ttyUSB0", Baud: 1000000, Success: true})
	}

	runs, err := repo.List(2)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
}

func TestRepository_CorruptedFilesRoundTrip(t *testing.T) {
	repo := testRepo(t)

	run := &Run{
		Operation:      OpDump,
		Port:           "/dev/ttyUSB0",
		Baud:           1000000,
		Success:        true,
		CorruptedFiles: "/data/log003.csv\n/data/log007.csv",
	}
	repo.Create(run)

	runs, _ := repo.List(1)
	if runs[0].CorruptedFiles != run.CorruptedFiles {
		t.Errorf("corrupted files = %q, want %q", runs[0].CorruptedFiles, run.CorruptedFiles)
	}
}
