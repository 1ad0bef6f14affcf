package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rtgs-lab/sdlink/internal/config"
	"github.com/rtgs-lab/sdlink/pkg/db"
	"github.com/rtgs-lab/sdlink/pkg/errors"
	appfsm "github.com/rtgs-lab/sdlink/pkg/fsm"
	"github.com/rtgs-lab/sdlink/pkg/security"
	"github.com/rtgs-lab/sdlink/pkg/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/superfly/fsm"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Download the SD card contents to a local directory",
	Args:  cobra.NoArgs,
	RunE:  runDump,
}

func init() {
	dumpCmd.Flags().String("output-dir", "./sd_dump_output", "Local directory for received files")
	dumpCmd.Flags().Int("recent", 0, "Only dump the N most recent files (0 dumps everything)")
	dumpCmd.Flags().Bool("skip-trigger", false, "Skip the boot handshake (device already in command mode)")
	dumpCmd.Flags().Bool("archive", false, "Upload a tar.gz of the dump to S3 after transfer")
	dumpCmd.Flags().String("note", "", "Free-form note recorded with this run")

	viper.BindPFlag("output-dir", dumpCmd.Flags().Lookup("output-dir"))
	viper.BindPFlag("recent", dumpCmd.Flags().Lookup("recent"))
	viper.BindPFlag("archive", dumpCmd.Flags().Lookup("archive"))

	rootCmd.AddCommand(dumpCmd)
}

func runDump(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	// Ensure all necessary directories exist
	if err := ensureDirectories(cfg.SQLitePath, cfg.FSMDBPath); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	var store *storage.Client
	if cfg.Archive {
		store, err = storage.NewClient(ctx, cfg.S3Bucket, cfg.S3Region)
		if err != nil {
			return errors.Wrap(err, "S3 client failed")
		}
	}

	validator := security.NewValidator(cfg.MaxFileSize)

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	machine := appfsm.NewMachine(repo, store, validator, cfg.FSMMaxRetries)
	defer machine.Close()

	start, _, err := machine.RegisterDump(ctx, manager)
	if err != nil {
		return errors.Wrap(err, "FSM register failed")
	}

	skipTrigger, _ := cmd.Flags().GetBool("skip-trigger")
	req := &appfsm.DumpRequest{
		Port:           cfg.Port,
		Baud:           cfg.Baud,
		OutputDir:      viper.GetString("output-dir"),
		Recent:         viper.GetInt("recent"),
		SkipTrigger:    skipTrigger,
		TimeoutSeconds: cfg.TimeoutSeconds,
	}
	resp := &appfsm.TransferResponse{}

	runKey := fmt.Sprintf("dump-%d", time.Now().UnixNano())
	version, err := start(ctx, runKey, fsm.NewRequest(req, resp))
	if err != nil {
		return errors.Wrap(err, "FSM start failed")
	}

	slog.Info("fsm_started", "version", version)

	runErr := manager.Wait(ctx, version)

	note, _ := cmd.Flags().GetString("note")
	recordRun(repo, db.OpDump, cfg.Baud, resp, note, runErr)

	if runErr != nil {
		return errors.Wrap(runErr, "dump failed")
	}

	fmt.Printf("Dump complete: %d/%d files -> %s\n", resp.FilesProcessed, resp.TotalFiles, resp.OutputDir)
	if len(resp.CorruptedFiles) > 0 {
		fmt.Printf("Skipped %d corrupted file(s):\n", len(resp.CorruptedFiles))
		for _, f := range resp.CorruptedFiles {
			fmt.Printf("  %s\n", f)
		}
	}
	if resp.ArchiveKey != "" {
		fmt.Printf("Archive uploaded: s3://%s/%s\n", cfg.S3Bucket, resp.ArchiveKey)
	}

	return nil
}

// recordRun persists the outcome of a transfer, successful or not. Recording
// failures is best effort and never masks the transfer error.
func recordRun(repo *db.Repository, operation string, baud int, resp *appfsm.TransferResponse, note string, runErr error) {
	run := &db.Run{
		Operation:        operation,
		Port:             resp.Port,
		Baud:             baud,
		Success:          runErr == nil,
		FilesProcessed:   resp.FilesProcessed,
		TotalFiles:       resp.TotalFiles,
		ChunksSent:       resp.ChunksSent,
		TotalChunks:      resp.TotalChunks,
		BytesTransferred: resp.BytesTransferred,
		CorruptedFiles:   strings.Join(resp.CorruptedFiles, "\n"),
		OutputDir:        resp.OutputDir,
		DeviceFilename:   resp.DeviceFilename,
		ArchiveKey:       resp.ArchiveKey,
		Note:             note,
		ErrorMessage:     resp.ErrorMessage,
		DurationMS:       resp.DurationMS,
	}
	if runErr != nil && run.ErrorMessage == "" {
		run.ErrorMessage = runErr.Error()
	}
	if err := repo.Create(run); err != nil {
		slog.Warn("run_record_failed", "error", err)
	}
}
