package questionnaire

import (
	"sort"

	"knot-backend/internal/model"
)

const (
	DefaultMinScore   = 70
	DefaultMatchLimit = 10
	anyGender         = "Any gender"
)

// Candidate is the contact card of a matched respondent.
type Candidate struct {
	ResponseID string `json:"id"`
	UserID     string `json:"userId,omitempty"`
	LeadID     string `json:"leadId,omitempty"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	UserType   string `json:"userType"`
	Location   string `json:"location,omitempty"`
	Profession string `json:"profession,omitempty"`
	Education  string `json:"education,omitempty"`
}

type Match struct {
	Candidate Candidate `json:"candidate"`
	Analysis
	Strength Strength `json:"relationshipStrength"`
}

// FindCompatible ranks complete responses against target. Both sides must
// accept each other's gender, and only scores at or above minScore are
// kept. Candidates with neither a name nor an email are skipped.
func (c *Catalog) FindCompatible(target *model.QuestionnaireResponse, all []*model.QuestionnaireResponse, minScore, limit int) []Match {
	if limit <= 0 {
		limit = DefaultMatchLimit
	}
	if target == nil {
		return []Match{}
	}

	gender := text(target.Responses["gender"])
	wants := text(target.Responses["looking_for_gender"])

	matches := []Match{}
	for _, r := range all {
		if r == nil || r.ID == target.ID || !r.IsComplete {
			continue
		}
		if !accepts(wants, text(r.Responses["gender"])) || !accepts(text(r.Responses["looking_for_gender"]), gender) {
			continue
		}
		score := c.Score(target.Responses, r.Responses)
		if score < minScore {
			continue
		}
		cand, ok := candidateFrom(r)
		if !ok {
			continue
		}
		an := c.Analyze(target.Responses, r.Responses, score)
		matches = append(matches, Match{Candidate: cand, Analysis: an, Strength: RelationshipStrength(an)})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Candidate.ResponseID < matches[j].Candidate.ResponseID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func accepts(wanted, gender string) bool {
	return wanted == anyGender || wanted == gender
}

func candidateFrom(r *model.QuestionnaireResponse) (Candidate, bool) {
	if r.UserName == "" && r.UserEmail == "" {
		return Candidate{}, false
	}
	cand := Candidate{
		ResponseID: r.ID,
		UserID:     r.UserID,
		LeadID:     r.LeadID,
		Name:       r.UserName,
		Email:      r.UserEmail,
		Phone:      r.UserPhone,
		UserType:   r.UserType,
		Location:   text(r.Responses["living_situation_preference"]),
		Profession: text(r.Responses["profession"]),
		Education:  text(r.Responses["education_level"]),
	}
	if cand.Name == "" {
		cand.Name = "Anonymous"
	}
	if cand.UserType == "" {
		cand.UserType = model.RespondentUser
	}
	return cand, true
}
