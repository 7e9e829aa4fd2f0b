package matching

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleProfile(id string) *Profile {
	return &Profile{
		ID:        id,
		Age:       28,
		Location:  Location{City: "Mumbai", State: "Maharashtra"},
		Education: "Masters in Computer Science",
		Religion:  "Hindu",
		Values: Values{
			FamilyImportance: 8, CareerAmbition: 7, ReligiousValues: 5,
			TraditionalValues: 6, SocialLife: 6,
		},
		Lifestyle: Lifestyle{
			SmokingHabits: SmokingNever, DrinkingHabits: DrinkingSocially,
			ExerciseFrequency: 3, DietPreference: DietVegetarian,
		},
		PersonalityTraits: PersonalityTraits{
			Extroversion: 6, Openness: 7, Agreeableness: 8,
			Conscientiousness: 7, EmotionalStability: 7,
		},
		RelationshipGoals: RelationshipGoals{
			TimelineToMarriage: TimelineOneToTwo, ChildrenDesired: true,
			NumberOfChildren: 2, LivingWithParents: false,
		},
		Preferences: Preferences{
			AgeRange:            AgeRange{Min: 24, Max: 32},
			EducationPreference: []string{"masters"},
			LocationPreference:  []string{"Mumbai"},
		},
	}
}

func TestCompatibility_IdenticalProfilesScoreHigh(t *testing.T) {
	a := sampleProfile("a")
	b := sampleProfile("b")

	score := Compatibility(a, b)
	assert.Equal(t, "b", score.UserID)
	assert.Equal(t, 100, score.OverallScore)
	assert.Equal(t, 100.0, score.CategoryScores.GoalsCompatibility)
	assert.Contains(t, score.Strengths, "Same city location")
	assert.Contains(t, score.Strengths, "Shared religious background")
	assert.Empty(t, score.Concerns)
	assert.Contains(t, score.Explanation, "exceptional")
}

func TestCompatibility_BasicBands(t *testing.T) {
	tests := []struct {
		ageGap int
		want   float64
	}{
		{0, 100}, {2, 100}, {3, 80}, {5, 80}, {7, 60}, {12, 40}, {13, 20},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("gap_%d", tt.ageGap), func(t *testing.T) {
			a := sampleProfile("a")
			b := sampleProfile("b")
			b.Age = a.Age + tt.ageGap
			// other basic factors are all 100, so the mean moves by a quarter
			want := (tt.want + 300) / 4
			assert.Equal(t, want, basicCompatibility(a, b))
		})
	}
}

func TestCompatibility_EducationLadder(t *testing.T) {
	a := sampleProfile("a")
	b := sampleProfile("b")

	b.Education = "Bachelors of Commerce"
	assert.Equal(t, (80.0+300)/4, basicCompatibility(a, b))

	b.Education = "High School"
	assert.Equal(t, (60.0+300)/4, basicCompatibility(a, b))

	b.Education = "Self taught"
	assert.Equal(t, (70.0+300)/4, basicCompatibility(a, b))
}

func TestCompatibility_LocationAndReligion(t *testing.T) {
	a := sampleProfile("a")
	b := sampleProfile("b")

	b.Location.City = "Pune"
	assert.Equal(t, (70.0+300)/4, basicCompatibility(a, b))

	b.Location.State = "Karnataka"
	assert.Equal(t, (40.0+300)/4, basicCompatibility(a, b))

	b = sampleProfile("b")
	b.Religion = "Christian"
	assert.Equal(t, (30.0+300)/4, basicCompatibility(a, b))
}

func TestCompatibility_Lifestyle(t *testing.T) {
	a := sampleProfile("a")
	b := sampleProfile("b")

	b.Lifestyle.SmokingHabits = SmokingOccasionally
	assert.Equal(t, (60.0+300)/4, lifestyleAlignment(a, b))

	b.Lifestyle.SmokingHabits = SmokingRegularly
	assert.Equal(t, (30.0+300)/4, lifestyleAlignment(a, b))

	b = sampleProfile("b")
	b.Lifestyle.DietPreference = DietFlexible
	assert.Equal(t, (80.0+300)/4, lifestyleAlignment(a, b))

	b.Lifestyle.DietPreference = DietNonVegetarian
	assert.Equal(t, (40.0+300)/4, lifestyleAlignment(a, b))
}

func TestCompatibility_ChildrenDisagreement(t *testing.T) {
	a := sampleProfile("a")
	b := sampleProfile("b")
	b.RelationshipGoals.ChildrenDesired = false

	score := Compatibility(a, b)
	assert.Contains(t, score.Concerns, "Different views on having children")
	// timeline 100, children 20, parents 100
	assert.InDelta(t, 220.0/3, score.CategoryScores.GoalsCompatibility, 0.001)
}

func TestCompatibility_TimelineMatrix(t *testing.T) {
	assert.Equal(t, 60.0, timelineScore(TimelineWithinYear, TimelineTwoToThree))
	assert.Equal(t, 85.0, timelineScore(TimelineFlexible, TimelineOneToTwo))
	assert.Equal(t, 90.0, timelineScore(TimelineTwoToThree, TimelineOneToTwo))
	assert.Equal(t, 70.0, timelineScore("someday", TimelineFlexible))
}

func TestCompatibility_Preferences(t *testing.T) {
	a := sampleProfile("a")
	b := sampleProfile("b")

	b.Age = 40
	// b outside a's range, a inside b's; education and location still match
	assert.Equal(t, (70.0+200)/3, preferencesMatch(a, b))

	b = sampleProfile("b")
	a.Preferences.EducationPreference = nil
	a.Preferences.LocationPreference = nil
	assert.Equal(t, 100.0, preferencesMatch(a, b))
}

func TestCompatibility_SymmetricCategories(t *testing.T) {
	a := sampleProfile("a")
	b := sampleProfile("b")
	b.Age = 35
	b.Education = "PhD"
	b.Location = Location{City: "Delhi", State: "Delhi"}
	b.PersonalityTraits.Extroversion = 2
	b.Values.CareerAmbition = 1
	b.Lifestyle.DrinkingHabits = DrinkingRegularly

	ab := Compatibility(a, b).CategoryScores
	ba := Compatibility(b, a).CategoryScores

	assert.Equal(t, ab.BasicCompatibility, ba.BasicCompatibility)
	assert.Equal(t, ab.PersonalityMatch, ba.PersonalityMatch)
	assert.Equal(t, ab.LifestyleAlignment, ba.LifestyleAlignment)
	assert.Equal(t, ab.ValuesAlignment, ba.ValuesAlignment)
}

func TestCompatibility_ScoreBounds(t *testing.T) {
	a := sampleProfile("a")
	far := &Profile{
		ID:        "far",
		Age:       60,
		Location:  Location{City: "Chennai", State: "Tamil Nadu"},
		Education: "High School",
		Religion:  "Sikh",
		Values:    Values{FamilyImportance: 1, CareerAmbition: 1, ReligiousValues: 10, TraditionalValues: 1, SocialLife: 1},
		Lifestyle: Lifestyle{SmokingHabits: SmokingRegularly, DrinkingHabits: DrinkingRegularly, ExerciseFrequency: 0, DietPreference: DietNonVegetarian},
		PersonalityTraits: PersonalityTraits{
			Extroversion: 1, Openness: 1, Agreeableness: 1, Conscientiousness: 1, EmotionalStability: 1,
		},
		RelationshipGoals: RelationshipGoals{TimelineToMarriage: TimelineWithinYear, LivingWithParents: true},
		Preferences:       Preferences{AgeRange: AgeRange{Min: 55, Max: 65}},
	}

	for _, pair := range [][2]*Profile{{a, far}, {far, a}, {a, a}, {far, far}} {
		s := Compatibility(pair[0], pair[1])
		assert.GreaterOrEqual(t, s.OverallScore, 0)
		assert.LessOrEqual(t, s.OverallScore, 100)
	}

	low := Compatibility(a, far)
	assert.Less(t, low.OverallScore, 60)
	assert.Contains(t, low.Concerns, "Significant age difference")
	assert.Contains(t, low.Explanation, "Lower compatibility")
}

func TestFindMatches(t *testing.T) {
	target := sampleProfile("me")

	close1 := sampleProfile("zed")
	close2 := sampleProfile("amy")
	mid := sampleProfile("mid")
	mid.Religion = "Jain"
	mid.Location = Location{City: "Kochi", State: "Kerala"}
	far := sampleProfile("far")
	far.Age = 50
	far.Lifestyle.SmokingHabits = SmokingRegularly
	far.RelationshipGoals.ChildrenDesired = false

	candidates := []*Profile{far, target, close1, mid, close2, nil}

	matches := FindMatches(target, candidates, 10)
	require.Len(t, matches, 4)
	for _, m := range matches {
		assert.NotEqual(t, "me", m.UserID)
	}
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].OverallScore, matches[i].OverallScore)
	}
	// equal scores fall back to id order
	assert.Equal(t, "amy", matches[0].UserID)
	assert.Equal(t, "zed", matches[1].UserID)
	assert.Equal(t, "far", matches[3].UserID)

	top := FindMatches(target, candidates, 2)
	assert.Len(t, top, 2)

	def := FindMatches(target, candidates, 0)
	assert.Len(t, def, 4)
}

func TestExplainBands(t *testing.T) {
	assert.Contains(t, Explain(95), "exceptional")
	assert.Contains(t, Explain(85), "very good")
	assert.Contains(t, Explain(72), "good match with solid")
	assert.Contains(t, Explain(60), "moderate")
	assert.Contains(t, Explain(10), "Lower")
}
