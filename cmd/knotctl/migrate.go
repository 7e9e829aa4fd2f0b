package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"knot-backend/internal/migration"
)

var (
	migrateFile   string
	migrateBackup string
)

// migrateCmd pushes a browser local-storage export to the server
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate a browser local-storage export into the backend",
	Long: `Read a JSON export of browser local storage and send its leads,
questionnaire responses, local accounts and admin data to the migration
endpoints. A backup of the export is written first. Records that fail are
logged and skipped.

Requires KNOT_API_TOKEN to hold an admin access token.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVarP(&migrateFile, "file", "f", "", "path to the local-storage export")
	migrateCmd.Flags().StringVar(&migrateBackup, "backup", "", "backup path (default: <file>.backup-<timestamp>.json)")
	_ = migrateCmd.MarkFlagRequired("file")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if cfg.APIToken == "" {
		return fmt.Errorf("KNOT_API_TOKEN is not set")
	}
	exp, err := migration.LoadExport(migrateFile)
	if err != nil {
		return err
	}

	now := time.Now()
	backup := migrateBackup
	if backup == "" {
		base := strings.TrimSuffix(migrateFile, filepath.Ext(migrateFile))
		backup = fmt.Sprintf("%s.backup-%s.json", base, now.Format("20060102T150405"))
	}
	if err := exp.WriteBackup(backup, now); err != nil {
		return err
	}
	log.Info("backup written", zap.String("path", backup))

	client := migration.NewClient(cfg.APIURL, cfg.APIToken, nil, log)
	report := client.Migrate(cmd.Context(), exp)

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	if !report.Success {
		return fmt.Errorf("%s", report.Message)
	}
	return nil
}
