package commands

import (
	"fmt"

	"github.com/rtgs-lab/sdlink/internal/config"
	"github.com/rtgs-lab/sdlink/pkg/db"
	"github.com/rtgs-lab/sdlink/pkg/errors"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded transfer runs",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum number of runs to show")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	// Ensure database directory exists
	if err := ensureDirectories(cfg.SQLitePath, ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := repo.List(limit)
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(runs) == 0 {
		fmt.Println("No transfer runs recorded")
		return nil
	}

	fmt.Printf("%-5s %-20s %-6s %-8s %-12s %-10s %s\n",
		"ID", "WHEN", "OP", "OK", "FILES", "BYTES", "DETAIL")
	fmt.Println("--------------------------------------------------------------------------------")

	for _, run := range runs {
		ok := "no"
		if run.Success {
			ok = "yes"
		}
		detail := run.OutputDir
		if run.Operation == db.OpWrite {
			detail = run.DeviceFilename
		}
		if !run.Success && run.ErrorMessage != "" {
			detail = run.ErrorMessage
		}
		fmt.Printf("%-5d %-20s %-6s %-8s %-12s %-10d %s\n",
			run.ID, run.CreatedAt, run.Operation, ok,
			fmt.Sprintf("%d/%d", run.FilesProcessed, run.TotalFiles),
			run.BytesTransferred, detail)
	}

	return nil
}
