package matching

import (
	"math"
	"sort"
	"strings"
)

const DefaultLimit = 10

// CategoryScores holds the six 0-100 sub-scores.
type CategoryScores struct {
	BasicCompatibility float64 `json:"basicCompatibility"`
	PersonalityMatch   float64 `json:"personalityMatch"`
	LifestyleAlignment float64 `json:"lifestyleAlignment"`
	ValuesAlignment    float64 `json:"valuesAlignment"`
	GoalsCompatibility float64 `json:"goalsCompatibility"`
	PreferencesMatch   float64 `json:"preferencesMatch"`
}

// Weights are the contribution of each category to the overall score.
// They sum to 1.
var Weights = CategoryScores{
	BasicCompatibility: 0.15,
	PersonalityMatch:   0.25,
	LifestyleAlignment: 0.20,
	ValuesAlignment:    0.20,
	GoalsCompatibility: 0.15,
	PreferencesMatch:   0.05,
}

func (s CategoryScores) weighted() float64 {
	return s.BasicCompatibility*Weights.BasicCompatibility +
		s.PersonalityMatch*Weights.PersonalityMatch +
		s.LifestyleAlignment*Weights.LifestyleAlignment +
		s.ValuesAlignment*Weights.ValuesAlignment +
		s.GoalsCompatibility*Weights.GoalsCompatibility +
		s.PreferencesMatch*Weights.PreferencesMatch
}

type MatchScore struct {
	UserID         string         `json:"userId"`
	OverallScore   int            `json:"overallScore"`
	CategoryScores CategoryScores `json:"categoryScores"`
	Strengths      []string       `json:"strengths"`
	Concerns       []string       `json:"concerns"`
	Explanation    string         `json:"explanation"`
}

// Compatibility scores candidate b from a's point of view. Basic,
// personality, lifestyle and values are symmetric; preferences is not.
func Compatibility(a, b *Profile) MatchScore {
	scores := CategoryScores{
		BasicCompatibility: basicCompatibility(a, b),
		PersonalityMatch:   personalityMatch(a, b),
		LifestyleAlignment: lifestyleAlignment(a, b),
		ValuesAlignment:    valuesAlignment(a, b),
		GoalsCompatibility: goalsCompatibility(a, b),
		PreferencesMatch:   preferencesMatch(a, b),
	}

	overall := int(math.Round(scores.weighted()))
	overall = clamp(overall, 0, 100)

	return MatchScore{
		UserID:         b.ID,
		OverallScore:   overall,
		CategoryScores: scores,
		Strengths:      strengths(scores, a, b),
		Concerns:       concerns(scores, a, b),
		Explanation:    Explain(overall),
	}
}

// FindMatches ranks candidates for target by descending overall score,
// breaking ties by candidate id. The target itself is never returned.
func FindMatches(target *Profile, candidates []*Profile, limit int) []MatchScore {
	if limit <= 0 {
		limit = DefaultLimit
	}

	matches := make([]MatchScore, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || c.ID == target.ID {
			continue
		}
		matches = append(matches, Compatibility(target, c))
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].OverallScore != matches[j].OverallScore {
			return matches[i].OverallScore > matches[j].OverallScore
		}
		return matches[i].UserID < matches[j].UserID
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func basicCompatibility(a, b *Profile) float64 {
	var total float64

	total += band(absInt(a.Age-b.Age), []int{2, 5, 8, 12}, []float64{100, 80, 60, 40}, 20)

	ea, eb := educationLevel(a.Education), educationLevel(b.Education)
	switch {
	case ea < 0 || eb < 0:
		total += 70
	case ea == eb:
		total += 100
	case absInt(ea-eb) == 1:
		total += 80
	default:
		total += 60
	}

	switch {
	case strings.EqualFold(a.Location.City, b.Location.City):
		total += 100
	case strings.EqualFold(a.Location.State, b.Location.State):
		total += 70
	default:
		total += 40
	}

	if strings.EqualFold(a.Religion, b.Religion) {
		total += 100
	} else {
		total += 30
	}

	return total / 4
}

var educationLadder = []string{"high school", "bachelors", "masters", "phd"}

// educationLevel returns the index on the ladder, or -1 when the free-text
// education cannot be placed.
func educationLevel(education string) int {
	e := strings.ToLower(education)
	for i, level := range educationLadder {
		if strings.Contains(e, level) {
			return i
		}
	}
	return -1
}

func personalityMatch(a, b *Profile) float64 {
	pa, pb := a.PersonalityTraits, b.PersonalityTraits

	total := band(absInt(pa.Extroversion-pb.Extroversion), []int{2, 4}, []float64{100, 85}, 70)

	others := [][2]int{
		{pa.Openness, pb.Openness},
		{pa.Agreeableness, pb.Agreeableness},
		{pa.Conscientiousness, pb.Conscientiousness},
		{pa.EmotionalStability, pb.EmotionalStability},
	}
	for _, pair := range others {
		total += band(absInt(pair[0]-pair[1]), []int{1, 2, 3}, []float64{100, 85, 70}, 50)
	}

	return total / 5
}

func lifestyleAlignment(a, b *Profile) float64 {
	la, lb := a.Lifestyle, b.Lifestyle
	var total float64

	switch {
	case la.SmokingHabits == lb.SmokingHabits:
		total += 100
	case isPair(la.SmokingHabits, lb.SmokingHabits, SmokingNever, SmokingOccasionally):
		total += 60
	default:
		total += 30
	}

	switch {
	case la.DrinkingHabits == lb.DrinkingHabits:
		total += 100
	case isPair(la.DrinkingHabits, lb.DrinkingHabits, DrinkingNever, DrinkingSocially):
		total += 70
	default:
		total += 40
	}

	switch {
	case la.DietPreference == lb.DietPreference:
		total += 100
	case la.DietPreference == DietFlexible || lb.DietPreference == DietFlexible:
		total += 80
	default:
		total += 40
	}

	total += band(absInt(la.ExerciseFrequency-lb.ExerciseFrequency), []int{1, 2, 3}, []float64{100, 80, 60}, 40)

	return total / 4
}

func valuesAlignment(a, b *Profile) float64 {
	va, vb := a.Values.list(), b.Values.list()
	var total float64
	for i := range va {
		total += band(absInt(va[i]-vb[i]), []int{1, 2, 3, 4}, []float64{100, 80, 60, 40}, 20)
	}
	return total / float64(len(va))
}

var timelineMatrix = map[string]map[string]float64{
	TimelineWithinYear: {TimelineWithinYear: 100, TimelineOneToTwo: 80, TimelineTwoToThree: 60, TimelineFlexible: 70},
	TimelineOneToTwo:   {TimelineWithinYear: 80, TimelineOneToTwo: 100, TimelineTwoToThree: 90, TimelineFlexible: 85},
	TimelineTwoToThree: {TimelineWithinYear: 60, TimelineOneToTwo: 90, TimelineTwoToThree: 100, TimelineFlexible: 85},
	TimelineFlexible:   {TimelineWithinYear: 70, TimelineOneToTwo: 85, TimelineTwoToThree: 85, TimelineFlexible: 100},
}

// unknown timelines score like "flexible" against anything
const timelineUnknown = 70

func timelineScore(a, b string) float64 {
	if row, ok := timelineMatrix[a]; ok {
		if v, ok := row[b]; ok {
			return v
		}
	}
	return timelineUnknown
}

func goalsCompatibility(a, b *Profile) float64 {
	ga, gb := a.RelationshipGoals, b.RelationshipGoals
	var total float64

	total += timelineScore(ga.TimelineToMarriage, gb.TimelineToMarriage)

	if ga.ChildrenDesired == gb.ChildrenDesired {
		total += 100
		if ga.ChildrenDesired && ga.NumberOfChildren > 0 && gb.NumberOfChildren > 0 {
			switch absInt(ga.NumberOfChildren - gb.NumberOfChildren) {
			case 0:
				total += 20
			case 1:
				total += 10
			}
		}
	} else {
		total += 20
	}

	if ga.LivingWithParents == gb.LivingWithParents {
		total += 100
	} else {
		total += 60
	}

	return math.Min(total/3, 100)
}

func preferencesMatch(a, b *Profile) float64 {
	var total float64
	factors := 0

	bInRange := a.Preferences.AgeRange.contains(b.Age)
	aInRange := b.Preferences.AgeRange.contains(a.Age)
	switch {
	case aInRange && bInRange:
		total += 100
	case aInRange || bInRange:
		total += 70
	default:
		total += 30
	}
	factors++

	if prefs := a.Preferences.EducationPreference; len(prefs) > 0 {
		edu := strings.ToLower(b.Education)
		if anyContained(prefs, edu) {
			total += 100
		} else {
			total += 40
		}
		factors++
	}

	if prefs := a.Preferences.LocationPreference; len(prefs) > 0 {
		if anyContained(prefs, strings.ToLower(b.Location.City)) || anyContained(prefs, strings.ToLower(b.Location.State)) {
			total += 100
		} else {
			total += 50
		}
		factors++
	}

	return total / float64(factors)
}

func strengths(s CategoryScores, a, b *Profile) []string {
	out := []string{}
	if s.PersonalityMatch >= 85 {
		out = append(out, "Excellent personality compatibility")
	}
	if s.ValuesAlignment >= 85 {
		out = append(out, "Strong shared values")
	}
	if s.LifestyleAlignment >= 85 {
		out = append(out, "Similar lifestyle preferences")
	}
	if s.GoalsCompatibility >= 85 {
		out = append(out, "Aligned relationship goals")
	}
	if a.Location.City != "" && a.Location.City == b.Location.City {
		out = append(out, "Same city location")
	}
	if a.Religion != "" && a.Religion == b.Religion {
		out = append(out, "Shared religious background")
	}
	return out
}

func concerns(s CategoryScores, a, b *Profile) []string {
	out := []string{}
	if s.PersonalityMatch < 60 {
		out = append(out, "Personality differences may need attention")
	}
	if s.ValuesAlignment < 60 {
		out = append(out, "Different core values")
	}
	if s.LifestyleAlignment < 60 {
		out = append(out, "Lifestyle differences")
	}
	if a.RelationshipGoals.ChildrenDesired != b.RelationshipGoals.ChildrenDesired {
		out = append(out, "Different views on having children")
	}
	if absInt(a.Age-b.Age) > 8 {
		out = append(out, "Significant age difference")
	}
	return out
}

// Explain returns the human-readable summary for an overall score.
func Explain(overall int) string {
	switch {
	case overall >= 90:
		return "An exceptional match with strong compatibility across all major areas. This pairing shows great potential for a lasting relationship."
	case overall >= 80:
		return "A very good match with high compatibility in most areas. Minor differences can often strengthen a relationship."
	case overall >= 70:
		return "A good match with solid foundation. Some areas may need communication and understanding to build a strong relationship."
	case overall >= 60:
		return "A moderate match with potential. Success would depend on both partners' willingness to understand and adapt to differences."
	default:
		return "Lower compatibility score suggests significant differences. While not impossible, this pairing would require considerable effort and compromise."
	}
}

// band maps a distance onto descending score bands: the first limit the
// distance does not exceed picks the score, otherwise fallback.
func band(diff int, limits []int, scores []float64, fallback float64) float64 {
	for i, limit := range limits {
		if diff <= limit {
			return scores[i]
		}
	}
	return fallback
}

func isPair(a, b, x, y string) bool {
	return (a == x && b == y) || (a == y && b == x)
}

func anyContained(prefs []string, s string) bool {
	for _, p := range prefs {
		if p == "" {
			continue
		}
		if strings.Contains(s, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
