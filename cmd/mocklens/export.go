package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hyperengineering/mocklens/internal/store"
	"github.com/hyperengineering/mocklens/internal/table"
	"github.com/spf13/cobra"
)

var (
	exportProjectID string
	exportScreenID  string
	exportOut       string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a screen's latest result as CSV",
	Long:  "Write the latest saved record set of a screen as CSV, to --out or standard output.",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&dbPathOverride, "db", "",
		"Database path (overrides config and MOCKLENS_DB_PATH)")
	exportCmd.Flags().StringVar(&exportProjectID, "project", "", "Project ID")
	exportCmd.Flags().StringVar(&exportScreenID, "screen", "", "Screen ID")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output file (default: standard output)")
	exportCmd.MarkFlagRequired("project")
	exportCmd.MarkFlagRequired("screen")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := db.LatestResult(ctx, exportProjectID, exportScreenID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no saved result for screen %s in project %s", exportScreenID, exportProjectID)
		}
		return err
	}

	ctrl := table.New(res.Items)
	if exportOut == "" {
		return ctrl.ExportCSV(cmd.OutOrStdout())
	}

	// Render first so a failed export never leaves a partial file behind.
	data, err := ctrl.CSV()
	if err != nil {
		return fmt.Errorf("render csv: %w", err)
	}
	if err := os.WriteFile(exportOut, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", exportOut, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d elements to %s\n", len(res.Items), exportOut)
	return nil
}
