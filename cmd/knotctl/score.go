package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"knot-backend/internal/matching"
)

// scoreCmd compares two compatibility profiles
var scoreCmd = &cobra.Command{
	Use:   "score <a.json> <b.json>",
	Short: "Score two compatibility profiles against each other",
	Long: `Load two compatibility profiles and print the score of b from a's
point of view, with category scores, strengths and concerns.`,
	Args: cobra.ExactArgs(2),
	RunE: runScore,
}

func loadProfile(path string) (*matching.Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p matching.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if p.ID == "" {
		p.ID = path
	}
	return &p, nil
}

func runScore(cmd *cobra.Command, args []string) error {
	a, err := loadProfile(args[0])
	if err != nil {
		return err
	}
	b, err := loadProfile(args[1])
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(matching.Compatibility(a, b), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
