package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"knot-backend/internal/migration"
	"knot-backend/internal/questionnaire"
)

var (
	seedCount int
	seedOut   string
	seedValue uint64
)

// seedCmd writes a synthetic local-storage export
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate a synthetic local-storage export",
	Long: `Generate leads with questionnaire answers, local accounts and admin
stats in the same shape the browser app stored them. The output can be fed
straight to "knotctl migrate".`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().IntVarP(&seedCount, "count", "n", 20, "number of leads to generate")
	seedCmd.Flags().StringVarP(&seedOut, "out", "o", "seed-export.json", "output file")
	seedCmd.Flags().Uint64Var(&seedValue, "seed", 0, "random seed for reproducible output (0 = random)")
}

func runSeed(cmd *cobra.Command, args []string) error {
	if seedCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}
	catalog, err := questionnaire.Default()
	if err != nil {
		return err
	}
	if seedValue == 0 {
		seedValue = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seedValue, seedValue>>1))

	exp, err := migration.GenerateExport(seedCount, rng, catalog, time.Now())
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(seedOut, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", seedOut, err)
	}
	log.Info("seed export written", zap.String("path", seedOut), zap.Int("leads", seedCount), zap.Uint64("seed", seedValue))
	return nil
}
