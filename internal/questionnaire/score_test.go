package questionnaire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knot-backend/internal/model"
)

// fullAnswers answers every catalog question with its first option, or
// the given overrides.
func fullAnswers(c *Catalog, overrides map[string]any) map[string]any {
	out := map[string]any{}
	for _, q := range c.Questions() {
		switch q.Type {
		case TypeMultipleChoice:
			out[q.ID] = []any{q.Options[0]}
		case TypeScale:
			out[q.ID] = "2"
		case TypeBoolean:
			out[q.ID] = true
		case TypeText:
			out[q.ID] = "something"
		default:
			out[q.ID] = q.Options[0]
		}
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

const tinyCatalog = `
questions:
  - id: faith
    category: Values
    text: "Faith?"
    type: scale
    options: ["0", "1", "2", "3", "4"]
    required: true
    order: 1
  - id: hobbies
    category: Leisure
    text: "Hobbies?"
    type: multiple_choice
    options: ["x", "y", "z"]
    required: false
    order: 2
`

func TestDefault_LoadsEmbeddedCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, 51, c.Len())
	assert.Equal(t, "Basic Info", c.Categories()[0])

	q, ok := c.Get("religious_importance")
	require.True(t, ok)
	assert.Equal(t, TypeScale, q.Type)
	assert.Len(t, q.Options, 5)

	qs := c.Questions()
	for i := 1; i < len(qs); i++ {
		assert.LessOrEqual(t, qs[i-1].Order, qs[i].Order)
	}
}

func TestParse_RejectsBadCatalogs(t *testing.T) {
	_, err := Parse([]byte("questions: []"))
	assert.Error(t, err)

	_, err = Parse([]byte(`
questions:
  - {id: a, category: X, text: A, type: text, order: 1}
  - {id: a, category: X, text: B, type: text, order: 2}
`))
	assert.ErrorContains(t, err, "duplicate")

	_, err = Parse([]byte(`
questions:
  - {id: a, category: X, text: A, type: single_choice, order: 1}
`))
	assert.ErrorContains(t, err, "needs options")
}

func TestScore_CompleteResponseAgainstItselfIsHundred(t *testing.T) {
	c := MustDefault()
	a := fullAnswers(c, nil)
	assert.Equal(t, 100, c.Score(a, a))
}

func TestScore_NothingAnsweredIsZero(t *testing.T) {
	c := MustDefault()
	assert.Equal(t, 0, c.Score(map[string]any{}, fullAnswers(c, nil)))
}

func TestScore_ScaleAndMultipleChoice(t *testing.T) {
	c, err := Parse([]byte(tinyCatalog))
	require.NoError(t, err)

	a := map[string]any{"faith": "0", "hobbies": []any{"x", "y"}}
	b := map[string]any{"faith": "4", "hobbies": []any{"y", "z"}}
	// faith contributes 0 with weight 3, hobbies 1/3 with weight 1.
	assert.Equal(t, 8, c.Score(a, b))

	b["faith"] = float64(1)
	// (0.75*3 + 1/3) / 4
	assert.Equal(t, 65, c.Score(a, b))

	bd := c.Breakdown(a, b)
	require.Len(t, bd, 2)
	assert.Equal(t, "Values", bd[0].Category)
	assert.InDelta(t, 75.0, bd[0].Score, 0.001)
	assert.InDelta(t, 33.333, bd[1].Score, 0.001)
}

func TestScore_OutOfRangeScaleScoresZero(t *testing.T) {
	c, err := Parse([]byte(tinyCatalog))
	require.NoError(t, err)

	// Imported responses arrive as decoded JSON and bypass ValidateComplete.
	a := map[string]any{"faith": float64(40), "hobbies": []any{"x"}}
	b := map[string]any{"faith": "0", "hobbies": []any{"x"}}
	// faith contributes 0 with weight 3, hobbies 1 with weight 1.
	assert.Equal(t, 25, c.Score(a, b))

	a["faith"] = float64(-7)
	score := c.Score(a, b)
	assert.GreaterOrEqual(t, score, 0)
	assert.LessOrEqual(t, score, 100)
	for _, cs := range c.Breakdown(a, b) {
		assert.GreaterOrEqual(t, cs.Score, 0.0, cs.Category)
		assert.LessOrEqual(t, cs.Score, 100.0, cs.Category)
	}
}

func TestScore_EmptyListCountsAsUnanswered(t *testing.T) {
	c, err := Parse([]byte(tinyCatalog))
	require.NoError(t, err)

	a := map[string]any{"hobbies": []any{}}
	b := map[string]any{"hobbies": []any{"x"}}
	bd := c.Breakdown(a, b)
	assert.Equal(t, 0.0, bd[1].Score)
}

func TestDealBreakers(t *testing.T) {
	c := MustDefault()

	a := map[string]any{
		"children_desire":      "Definitely want children",
		"religious_importance": "0",
		"smoking_habits":       "Never smoked",
	}
	b := map[string]any{
		"children_desire":      "Definitely do not want children",
		"religious_importance": "4",
		"smoking_habits":       "Regular smoker",
	}
	assert.Equal(t, []string{
		"Strong disagreement on having children",
		"Significant difference in religious importance",
		"Smoking habits difference",
	}, c.DealBreakers(a, b))
	assert.Len(t, c.DealBreakers(b, a), 3)

	b["religious_importance"] = "2"
	b["children_desire"] = "Not sure yet"
	b["smoking_habits"] = "Former smoker (quit)"
	assert.Empty(t, c.DealBreakers(a, b))
}

func TestSummary(t *testing.T) {
	got := Summary(92, []string{"Values", "Future", "Family"}, []string{"Gift giving"}, nil)
	assert.Equal(t, "Exceptional compatibility! You align particularly well in Values and Future. You both value Gift giving. No significant concerns identified.", got)

	got = Summary(65, nil, nil, []string{"Lifestyle"})
	assert.Equal(t, "Moderate compatibility.  Consider discussing Lifestyle to ensure alignment.", got)
}

func TestRelationshipStrength(t *testing.T) {
	s := RelationshipStrength(Analysis{Score: 85, MatchingSections: []string{"Values", "Relationship"}})
	assert.Equal(t, StrengthHigh, s.Level)
	assert.Equal(t, []string{
		"Strong compatibility across multiple areas",
		"Shared core values and beliefs",
		"Compatible relationship styles",
	}, s.Factors)
	assert.Equal(t, []string{
		"Excellent match - proceed with confidence",
		"Consider meeting in person soon",
		"Focus on building emotional connection",
	}, s.Recommendations)

	s = RelationshipStrength(Analysis{Score: 72, PotentialConcerns: []string{"Smoking habits difference"}})
	assert.Equal(t, StrengthModerate, s.Level)
	assert.Equal(t, "Discuss Smoking habits difference early in relationship", s.Recommendations[0])
	assert.Equal(t, "Focus on building friendship first", s.Recommendations[2])
}

func response(id, name, gender, wants string, answers map[string]any) *model.QuestionnaireResponse {
	answers["gender"] = gender
	answers["looking_for_gender"] = wants
	return &model.QuestionnaireResponse{
		ID: id, UserName: name, UserEmail: id + "@example.com",
		Responses: answers, IsComplete: true,
	}
}

func TestFindCompatible_FiltersAndSorts(t *testing.T) {
	c := MustDefault()

	target := response("me", "Asha", "Female", "Male", fullAnswers(c, nil))
	twin := response("twin", "Ravi", "Male", "Female", fullAnswers(c, nil))
	near := response("near", "Kiran", "Male", "Any gender", fullAnswers(c, map[string]any{
		"personality_type": c.mustQuestion("personality_type").Options[1],
	}))
	wrongGender := response("wg", "Meera", "Female", "Male", fullAnswers(c, nil))
	notInterested := response("ni", "Arjun", "Male", "Male", fullAnswers(c, nil))
	incomplete := response("inc", "Dev", "Male", "Female", fullAnswers(c, nil))
	incomplete.IsComplete = false
	anonymous := response("anon", "", "Male", "Female", fullAnswers(c, nil))
	anonymous.UserEmail = ""

	all := []*model.QuestionnaireResponse{target, near, twin, wrongGender, notInterested, incomplete, anonymous}
	matches := c.FindCompatible(target, all, DefaultMinScore, 10)

	require.Len(t, matches, 2)
	assert.Equal(t, "twin", matches[0].Candidate.ResponseID)
	// Only the two gender questions differ.
	assert.Equal(t, 97, matches[0].Score)
	assert.Equal(t, "near", matches[1].Candidate.ResponseID)
	assert.Less(t, matches[1].Score, matches[0].Score)
	assert.Equal(t, model.RespondentUser, matches[0].Candidate.UserType)
	assert.Equal(t, StrengthExceptional, matches[0].Strength.Level)
	assert.Contains(t, matches[0].Summary, "Exceptional compatibility!")

	assert.Len(t, c.FindCompatible(target, all, DefaultMinScore, 1), 1)
	assert.Empty(t, c.FindCompatible(target, all, 101, 10))
}

func TestFindCompatible_NameDefaultsToAnonymous(t *testing.T) {
	c := MustDefault()
	target := response("me", "Asha", "Female", "Any gender", fullAnswers(c, nil))
	other := response("o", "", "Male", "Any gender", fullAnswers(c, nil))

	matches := c.FindCompatible(target, []*model.QuestionnaireResponse{other}, 0, 10)
	require.Len(t, matches, 1)
	assert.Equal(t, "Anonymous", matches[0].Candidate.Name)
}

func TestValidateComplete(t *testing.T) {
	c := MustDefault()

	assert.Empty(t, c.ValidateComplete(fullAnswers(c, nil)))

	answers := fullAnswers(c, map[string]any{
		"gender":               "Martian",
		"religious_importance": "9",
		"affection_style":      []any{"Telepathy"},
	})
	delete(answers, "height")
	issues := c.ValidateComplete(answers)

	byID := map[string]string{}
	for _, is := range issues {
		byID[is.QuestionID] = is.Rule
	}
	assert.Equal(t, map[string]string{
		"gender":               "option",
		"religious_importance": "option",
		"affection_style":      "option",
		"height":               "required",
	}, byID)
}

func (c *Catalog) mustQuestion(id string) Question {
	q, ok := c.Get(id)
	if !ok {
		panic("unknown question " + id)
	}
	return q
}
