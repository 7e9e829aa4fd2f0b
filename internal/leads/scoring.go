package leads

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"knot-backend/internal/config"
	"knot-backend/internal/model"
)

const maxLeadScore = 100

type scoringRule struct {
	name    string
	points  int
	program *vm.Program
}

// Scorer sums the points of every rule whose expression holds for a lead.
type Scorer struct {
	rules []scoringRule
}

// NewScorer compiles rules once. Each expression sees name, email, phone,
// source, answers and has_biodata.
func NewScorer(rules []config.LeadRuleConfig) (*Scorer, error) {
	s := &Scorer{}
	for _, r := range rules {
		prog, err := expr.Compile(r.Expression, expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile lead rule %q: %w", r.Name, err)
		}
		s.rules = append(s.rules, scoringRule{name: r.Name, points: r.Points, program: prog})
	}
	return s, nil
}

// RuleResult records whether a single rule fired.
type RuleResult struct {
	Name    string `json:"name"`
	Points  int    `json:"points"`
	Matched bool   `json:"matched"`
	Error   string `json:"error,omitempty"`
}

// Score returns the clamped total and the per-rule outcome. A rule that
// fails to evaluate counts as not matched.
func (s *Scorer) Score(lead *model.Lead) (int, []RuleResult) {
	env := leadEnv(lead)
	total := 0
	results := make([]RuleResult, 0, len(s.rules))
	for _, r := range s.rules {
		res := RuleResult{Name: r.name, Points: r.points}
		out, err := expr.Run(r.program, env)
		if err != nil {
			res.Error = err.Error()
		} else if b, ok := out.(bool); ok && b {
			res.Matched = true
			total += r.points
		}
		results = append(results, res)
	}
	if total < 0 {
		total = 0
	}
	if total > maxLeadScore {
		total = maxLeadScore
	}
	return total, results
}

func leadEnv(lead *model.Lead) map[string]any {
	answers := lead.Answers
	if answers == nil {
		answers = map[string]any{}
	}
	return map[string]any{
		"name":        lead.Name,
		"email":       lead.Email,
		"phone":       lead.Phone,
		"source":      lead.Source,
		"answers":     answers,
		"has_biodata": lead.BiodataKey != "",
	}
}
