package questionnaire

import (
	"fmt"
	"math"
	"strings"
)

// categoryWeights scales each question's contribution to the overall
// questionnaire score. Categories not listed weigh 1.
var categoryWeights = map[string]float64{
	"Values":        3,
	"Relationship":  2.5,
	"Future":        2,
	"Personality":   1.5,
	"Lifestyle":     1,
	"Social":        1,
	"Compatibility": 3,
}

func categoryWeight(category string) float64 {
	if w, ok := categoryWeights[category]; ok {
		return w
	}
	return 1
}

const (
	StrengthExceptional = "Exceptional"
	StrengthHigh        = "High"
	StrengthModerate    = "Moderate"
	StrengthLow         = "Low"
)

// CategoryScore is the 0-100 agreement within one question category.
type CategoryScore struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// Analysis explains a questionnaire score between two respondents.
type Analysis struct {
	Score             int             `json:"compatibilityScore"`
	Categories        []CategoryScore `json:"categories"`
	SharedInterests   []string        `json:"sharedInterests"`
	MatchingSections  []string        `json:"matchingSections"`
	PotentialConcerns []string        `json:"potentialConcerns"`
	Summary           string          `json:"summary"`
}

type Strength struct {
	Level           string   `json:"strength"`
	Factors         []string `json:"factors"`
	Recommendations []string `json:"recommendations"`
}

// Score returns the weighted 0-100 agreement between two answer sets.
// Every catalog question counts toward the denominator, so unanswered
// questions pull the score down.
func (c *Catalog) Score(a, b map[string]any) int {
	var total, matched float64
	for _, q := range c.questions {
		w := categoryWeight(q.Category)
		total += w
		if m, ok := questionMatch(q, a[q.ID], b[q.ID]); ok {
			matched += m * w
		}
	}
	if total == 0 {
		return 0
	}
	return int(math.Round(matched / total * 100))
}

// Breakdown returns the mean agreement per category over questions both
// sides answered, in catalog order. Categories with no shared answers
// score 0.
func (c *Catalog) Breakdown(a, b map[string]any) []CategoryScore {
	sums := make(map[string]float64, len(c.categories))
	counts := make(map[string]int, len(c.categories))
	for _, q := range c.questions {
		if m, ok := questionMatch(q, a[q.ID], b[q.ID]); ok {
			sums[q.Category] += m * 100
			counts[q.Category]++
		}
	}
	out := make([]CategoryScore, 0, len(c.categories))
	for _, cat := range c.categories {
		var s float64
		if n := counts[cat]; n > 0 {
			s = sums[cat] / float64(n)
		}
		out = append(out, CategoryScore{Category: cat, Score: s})
	}
	return out
}

// questionMatch scores one question in [0,1]. ok is false unless both
// sides answered.
func questionMatch(q Question, x, y any) (float64, bool) {
	if !answered(x) || !answered(y) {
		return 0, false
	}
	switch q.Type {
	case TypeMultipleChoice:
		xs, ok1 := stringList(x)
		ys, ok2 := stringList(y)
		if !ok1 || !ok2 {
			return 0, true
		}
		return jaccard(xs, ys), true
	case TypeScale:
		xi, ok1 := scaleIndex(q, x)
		yi, ok2 := scaleIndex(q, y)
		if !ok1 || !ok2 {
			return 0, true
		}
		// Imported answers skip validation and may sit outside the scale.
		n := len(q.Options)
		if xi < 0 || yi < 0 || xi >= n || yi >= n {
			return 0, true
		}
		if n == 1 {
			return 1, true
		}
		diff := math.Abs(float64(xi - yi))
		return 1 - diff/float64(n-1), true
	default:
		if sameAnswer(x, y) {
			return 1, true
		}
		return 0, true
	}
}

func jaccard(a, b []string) float64 {
	inB := make(map[string]bool, len(b))
	for _, s := range b {
		inB[s] = true
	}
	union := make(map[string]bool, len(a)+len(b))
	overlap := 0
	for _, s := range a {
		if inB[s] && !union[s] {
			overlap++
		}
		union[s] = true
	}
	for _, s := range b {
		union[s] = true
	}
	if len(union) == 0 {
		return 0
	}
	return float64(overlap) / float64(len(union))
}

func sameAnswer(x, y any) bool {
	xs, ok1 := x.(string)
	ys, ok2 := y.(string)
	if ok1 && ok2 {
		return xs == ys
	}
	return fmt.Sprint(x) == fmt.Sprint(y)
}

func text(v any) string {
	s, _ := v.(string)
	return s
}

// DealBreakers lists hard disagreements that deserve a conversation
// regardless of the overall score.
func (c *Catalog) DealBreakers(a, b map[string]any) []string {
	var out []string

	ca, cb := strings.ToLower(text(a["children_desire"])), strings.ToLower(text(b["children_desire"]))
	if ca != "" && cb != "" {
		if (strings.Contains(ca, "definitely want") && strings.Contains(cb, "definitely do not want")) ||
			(strings.Contains(ca, "definitely do not want") && strings.Contains(cb, "definitely want")) {
			out = append(out, "Strong disagreement on having children")
		}
	}

	if q, ok := c.Get("religious_importance"); ok && answered(a[q.ID]) && answered(b[q.ID]) {
		ra, ok1 := scaleIndex(q, a[q.ID])
		rb, ok2 := scaleIndex(q, b[q.ID])
		if ok1 && ok2 && absInt(ra-rb) >= 3 {
			out = append(out, "Significant difference in religious importance")
		}
	}

	sa, sb := text(a["smoking_habits"]), text(b["smoking_habits"])
	if (sa == "Regular smoker" && sb == "Never smoked") || (sa == "Never smoked" && sb == "Regular smoker") {
		out = append(out, "Smoking habits difference")
	}
	return out
}

// Analyze explains a precomputed score between two answer sets.
func (c *Catalog) Analyze(a, b map[string]any, score int) Analysis {
	an := Analysis{
		Score:             score,
		Categories:        c.Breakdown(a, b),
		SharedInterests:   []string{},
		MatchingSections:  []string{},
		PotentialConcerns: []string{},
	}

	if xs, ok := stringList(a["affection_style"]); ok {
		if ys, ok := stringList(b["affection_style"]); ok {
			for _, s := range xs {
				if contains(ys, s) {
					an.SharedInterests = append(an.SharedInterests, s)
				}
			}
		}
	}

	for _, cs := range an.Categories {
		switch {
		case cs.Score >= 80:
			an.MatchingSections = append(an.MatchingSections, cs.Category)
		case cs.Score < 50:
			an.PotentialConcerns = append(an.PotentialConcerns, cs.Category)
		}
	}
	an.PotentialConcerns = append(an.PotentialConcerns, c.DealBreakers(a, b)...)
	an.Summary = Summary(score, an.MatchingSections, an.SharedInterests, an.PotentialConcerns)
	return an
}

// Summary renders the one-paragraph match description shown to members.
func Summary(score int, sections, interests, concerns []string) string {
	var b strings.Builder
	switch {
	case score >= 90:
		b.WriteString("Exceptional compatibility! ")
	case score >= 80:
		b.WriteString("Very strong compatibility. ")
	case score >= 70:
		b.WriteString("Good compatibility potential. ")
	default:
		b.WriteString("Moderate compatibility. ")
	}
	if len(sections) > 0 {
		fmt.Fprintf(&b, "You align particularly well in %s.", strings.Join(firstN(sections, 2), " and "))
	}
	if len(interests) > 0 {
		fmt.Fprintf(&b, " You both value %s.", strings.Join(firstN(interests, 2), " and "))
	}
	if len(concerns) > 0 {
		fmt.Fprintf(&b, " Consider discussing %s to ensure alignment.", concerns[0])
	} else {
		b.WriteString(" No significant concerns identified.")
	}
	return b.String()
}

// RelationshipStrength predicts how a match is likely to develop.
func RelationshipStrength(an Analysis) Strength {
	var s Strength
	switch {
	case an.Score >= 90:
		s.Level = StrengthExceptional
		s.Factors = append(s.Factors, "Outstanding overall compatibility")
	case an.Score >= 80:
		s.Level = StrengthHigh
		s.Factors = append(s.Factors, "Strong compatibility across multiple areas")
	case an.Score >= 70:
		s.Level = StrengthModerate
		s.Factors = append(s.Factors, "Good foundation with some areas for growth")
	default:
		s.Level = StrengthLow
		s.Factors = append(s.Factors, "Limited compatibility, significant differences")
	}

	if contains(an.MatchingSections, "Values") {
		s.Factors = append(s.Factors, "Shared core values and beliefs")
	}
	if contains(an.MatchingSections, "Future") {
		s.Factors = append(s.Factors, "Aligned life goals and timeline")
	}
	if contains(an.MatchingSections, "Relationship") {
		s.Factors = append(s.Factors, "Compatible relationship styles")
	}

	if len(an.PotentialConcerns) == 0 {
		s.Recommendations = append(s.Recommendations, "Excellent match - proceed with confidence")
	} else {
		s.Recommendations = append(s.Recommendations, fmt.Sprintf("Discuss %s early in relationship", an.PotentialConcerns[0]))
	}
	if s.Level == StrengthExceptional || s.Level == StrengthHigh {
		s.Recommendations = append(s.Recommendations, "Consider meeting in person soon", "Focus on building emotional connection")
	} else {
		s.Recommendations = append(s.Recommendations, "Take time to understand differences", "Focus on building friendship first")
	}
	return s
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
