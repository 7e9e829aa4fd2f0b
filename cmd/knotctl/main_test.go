package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"knot-backend/internal/matching"
	"knot-backend/internal/migration"
)

func writeProfile(t *testing.T, dir, name string) string {
	t.Helper()
	p := matching.Profile{
		Age:       29,
		Location:  matching.Location{City: "Pune", State: "Maharashtra"},
		Education: "Masters",
		Religion:  "Hindu",
		Interests: []string{"Travel", "Music"},
		Values:    matching.Values{FamilyImportance: 8, CareerAmbition: 7, ReligiousValues: 5, TraditionalValues: 6, SocialLife: 6},
		Lifestyle: matching.Lifestyle{
			SmokingHabits:     matching.SmokingNever,
			DrinkingHabits:    matching.DrinkingSocially,
			ExerciseFrequency: 4,
			DietPreference:    matching.DietVegetarian,
		},
		PersonalityTraits: matching.PersonalityTraits{Extroversion: 6, Openness: 7, Agreeableness: 8, Conscientiousness: 7, EmotionalStability: 7},
		RelationshipGoals: matching.RelationshipGoals{TimelineToMarriage: matching.TimelineOneToTwo, ChildrenDesired: true},
		Preferences:       matching.Preferences{AgeRange: matching.AgeRange{Min: 25, Max: 33}},
	}
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func TestScoreCmd(t *testing.T) {
	dir := t.TempDir()
	a := writeProfile(t, dir, "a.json")
	b := writeProfile(t, dir, "b.json")

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	require.NoError(t, runScore(cmd, []string{a, b}))

	var score matching.MatchScore
	require.NoError(t, json.Unmarshal(out.Bytes(), &score))
	assert.Equal(t, b, score.UserID)
	assert.GreaterOrEqual(t, score.OverallScore, 90)
	assert.LessOrEqual(t, score.OverallScore, 100)

	assert.Error(t, runScore(cmd, []string{a, filepath.Join(dir, "missing.json")}))
}

func TestSeedCmd(t *testing.T) {
	log = zap.NewNop()
	out := filepath.Join(t.TempDir(), "export.json")
	seedCount, seedOut, seedValue = 6, out, 42
	defer func() { seedCount, seedOut, seedValue = 20, "seed-export.json", 0 }()

	require.NoError(t, runSeed(&cobra.Command{}, nil))

	exp, err := migration.LoadExport(out)
	require.NoError(t, err)
	var leads []map[string]any
	ok, err := exp.Decode(migration.KeyLeads, &leads)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, leads, 6)

	var users []map[string]any
	ok, err = exp.Decode(migration.KeyUsers, &users)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, users, 3)

	seedCount = 0
	assert.Error(t, runSeed(&cobra.Command{}, nil))
}

func TestRestoreCmd(t *testing.T) {
	log = zap.NewNop()
	dir := t.TempDir()

	seeded := filepath.Join(dir, "seed.json")
	seedCount, seedOut, seedValue = 4, seeded, 7
	defer func() { seedCount, seedOut, seedValue = 20, "seed-export.json", 0 }()
	require.NoError(t, runSeed(&cobra.Command{}, nil))
	exp, err := migration.LoadExport(seeded)
	require.NoError(t, err)

	backup := filepath.Join(dir, "backup.json")
	require.NoError(t, exp.WriteBackup(backup, time.Now()))

	restoreBackup, restoreOut = backup, filepath.Join(dir, "restored.json")
	defer func() { restoreBackup, restoreOut = "", "restored-export.json" }()
	require.NoError(t, runRestore(&cobra.Command{}, nil))

	restored, err := migration.LoadExport(restoreOut)
	require.NoError(t, err)
	var leads []map[string]any
	ok, err := restored.Decode(migration.KeyLeads, &leads)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, leads, 4)

	restoreBackup = filepath.Join(dir, "missing.json")
	assert.Error(t, runRestore(&cobra.Command{}, nil))
}
