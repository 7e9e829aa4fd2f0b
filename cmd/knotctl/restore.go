package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"knot-backend/internal/migration"
)

var (
	restoreBackup string
	restoreOut    string
)

// restoreCmd rebuilds a local-storage export from a migration backup
var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Rebuild a local-storage export from a migration backup",
	Long: `Read a backup written by "knotctl migrate" and write it back out as a
local-storage export: leads, questionnaire responses, local accounts and
admin stats under their browser storage keys, string-encoded as the browser
keeps them. The result can be loaded into the browser or migrated again.`,
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().StringVarP(&restoreBackup, "backup", "b", "", "backup file written by migrate")
	restoreCmd.Flags().StringVarP(&restoreOut, "out", "o", "restored-export.json", "output file")
	_ = restoreCmd.MarkFlagRequired("backup")
}

func runRestore(cmd *cobra.Command, args []string) error {
	b, err := migration.LoadBackup(restoreBackup)
	if err != nil {
		return err
	}
	exp, err := b.Export()
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(restoreOut, raw, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", restoreOut, err)
	}
	log.Info("export restored", zap.String("path", restoreOut),
		zap.Int("leads", len(b.Leads)), zap.Int("users", len(b.Users)),
		zap.Time("backup_taken", b.Timestamp))
	return nil
}
