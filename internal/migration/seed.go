package migration

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"knot-backend/internal/questionnaire"
)

var (
	seedFirstNames = []string{"Aarav", "Priya", "Rohan", "Ananya", "Vikram", "Neha", "Arjun", "Kavya", "Rahul", "Meera", "Ishaan", "Sanya"}
	seedLastNames  = []string{"Sharma", "Iyer", "Patel", "Reddy", "Gupta", "Nair", "Verma", "Rao", "Menon", "Kapoor"}
	seedCities     = []string{"Mumbai", "Bengaluru", "Delhi", "Pune", "Hyderabad", "Chennai", "Kolkata"}
	seedStatuses   = []string{"new", "new", "verified", "contacted"}
)

// GenerateExport builds a synthetic local-storage export with n leads,
// questionnaires for every other lead and n/2 local accounts. The same rng
// state yields the same export.
func GenerateExport(n int, rng *rand.Rand, catalog *questionnaire.Catalog, now time.Time) (Export, error) {
	leads := make([]map[string]any, 0, n)
	questionnaires := make([]map[string]any, 0, n/2+1)
	users := make([]map[string]any, 0, n/2)

	for i := 0; i < n; i++ {
		first := seedFirstNames[rng.IntN(len(seedFirstNames))]
		last := seedLastNames[rng.IntN(len(seedLastNames))]
		email := fmt.Sprintf("%s.%s.%d@example.com", strings.ToLower(first), strings.ToLower(last), i+1)
		created := now.Add(-time.Duration(rng.IntN(90*24)) * time.Hour).UTC()
		answers := randomAnswers(rng, catalog)
		leadID := fmt.Sprintf("lead_%d", created.UnixMilli()+int64(i))

		leads = append(leads, map[string]any{
			"id":        leadID,
			"name":      first + " " + last,
			"email":     email,
			"phone":     fmt.Sprintf("9%09d", rng.IntN(1_000_000_000)),
			"answers":   answers,
			"status":    seedStatuses[rng.IntN(len(seedStatuses))],
			"source":    "website",
			"createdAt": created.Format(time.RFC3339Nano),
			"updatedAt": created.Format(time.RFC3339Nano),
		})

		if i%2 == 0 {
			questionnaires = append(questionnaires, map[string]any{
				"id":         fmt.Sprintf("questionnaire_%d", i+1),
				"leadId":     leadID,
				"userName":   first + " " + last,
				"userEmail":  email,
				"userType":   "lead",
				"responses":  answers,
				"isComplete": true,
				"createdAt":  created.Format(time.RFC3339Nano),
			})
		}
		if i%2 == 1 {
			users = append(users, map[string]any{
				"id":                 fmt.Sprintf("local_user_%d", i+1),
				"name":               first + " " + last,
				"email":              email,
				"password":           "demo1234",
				"age":                22 + rng.IntN(15),
				"location":           seedCities[rng.IntN(len(seedCities))],
				"interests":          []string{"Travel", "Music"},
				"communicationStyle": "chat",
				"createdAt":          created.Format(time.RFC3339Nano),
			})
		}
	}

	exp := Export{}
	for key, v := range map[string]any{
		KeyLeads:          leads,
		KeyQuestionnaires: questionnaires,
		KeyUsers:          users,
		KeyAdminStats: map[string]any{
			"totalLeads":          len(leads),
			"totalUsers":          len(users),
			"totalQuestionnaires": len(questionnaires),
			"lastUpdated":         now.UTC().Format(time.RFC3339),
		},
	} {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		exp[key] = raw
	}
	return exp, nil
}

func randomAnswers(rng *rand.Rand, catalog *questionnaire.Catalog) map[string]any {
	answers := map[string]any{}
	for _, q := range catalog.Questions() {
		switch q.Type {
		case questionnaire.TypeSingleChoice, questionnaire.TypeScale:
			answers[q.ID] = q.Options[rng.IntN(len(q.Options))]
		case questionnaire.TypeMultipleChoice:
			picked := []string{q.Options[rng.IntN(len(q.Options))]}
			if other := q.Options[rng.IntN(len(q.Options))]; other != picked[0] {
				picked = append(picked, other)
			}
			answers[q.ID] = picked
		case questionnaire.TypeBoolean:
			answers[q.ID] = rng.IntN(2) == 1
		case questionnaire.TypeText:
			answers[q.ID] = "Looking for someone kind and curious."
		}
	}
	return answers
}
