package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rtgs-lab/sdlink/internal/config"
	"github.com/rtgs-lab/sdlink/pkg/db"
	"github.com/rtgs-lab/sdlink/pkg/errors"
	appfsm "github.com/rtgs-lab/sdlink/pkg/fsm"
	"github.com/rtgs-lab/sdlink/pkg/security"
	"github.com/spf13/cobra"
	"github.com/superfly/fsm"
)

var writeCmd = &cobra.Command{
	Use:   "write <file>",
	Short: "Upload a local file to the SD card root",
	Args:  cobra.ExactArgs(1),
	RunE:  runWrite,
}

func init() {
	writeCmd.Flags().String("name", "", "Filename on the SD card (defaults to the local basename)")
	writeCmd.Flags().Bool("skip-trigger", false, "Skip the boot handshake (device already in command mode)")
	writeCmd.Flags().String("note", "", "Free-form note recorded with this run")

	rootCmd.AddCommand(writeCmd)
}

func runWrite(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	filePath := args[0]

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

	validator := security.NewValidator(cfg.MaxFileSize)

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	machine := appfsm.NewMachine(repo, nil, validator, cfg.FSMMaxRetries)
	defer machine.Close()

	start, _, err := machine.RegisterWrite(ctx, manager)
	if err != nil {
		return errors.Wrap(err, "FSM register failed")
	}

	name, _ := cmd.Flags().GetString("name")
	skipTrigger, _ := cmd.Flags().GetBool("skip-trigger")
	req := &appfsm.WriteRequest{
		Port:           cfg.Port,
		Baud:           cfg.Baud,
		FilePath:       filePath,
		DeviceFilename: name,
		ChunkSize:      cfg.ChunkSize,
		SkipTrigger:    skipTrigger,
		TimeoutSeconds: cfg.TimeoutSeconds,
	}
	resp := &appfsm.TransferResponse{}

	runKey := fmt.Sprintf("write-%d", time.Now().UnixNano())
	version, err := start(ctx, runKey, fsm.NewRequest(req, resp))
	if err != nil {
		return errors.Wrap(err, "FSM start failed")
	}

	slog.Info("fsm_started", "version", version)

	runErr := manager.Wait(ctx, version)

	note, _ := cmd.Flags().GetString("note")
	recordRun(repo, db.OpWrite, cfg.Baud, resp, note, runErr)

	if runErr != nil {
		return errors.Wrap(runErr, "write failed")
	}

	fmt.Printf("Write complete: %s (%d bytes, %d chunks)\n",
		resp.DeviceFilename, resp.BytesTransferred, resp.ChunksSent)

	return nil
}
