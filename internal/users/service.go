// Package users serves member profiles and advanced compatibility
// matches.
package users

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"knot-backend/internal/api"
	"knot-backend/internal/instrument"
	"knot-backend/internal/matching"
	"knot-backend/internal/model"
	"knot-backend/internal/storage"
	"knot-backend/internal/store"
	"knot-backend/internal/validate"
)

// MatchMailer sends the new-match email.
type MatchMailer interface {
	MatchNotification(ctx context.Context, to, name, matchName string, score int) error
}

type Options struct {
	TrialDays       int
	NotifyThreshold int
}

type Service struct {
	repo    store.UserRepository
	files   storage.Driver
	mailer  MatchMailer
	metrics *instrument.Metrics
	opts    Options
	log     *zap.Logger
	now     func() time.Time
}

func NewService(repo store.UserRepository, files storage.Driver, mailer MatchMailer, metrics *instrument.Metrics, opts Options, log *zap.Logger) *Service {
	if opts.TrialDays <= 0 {
		opts.TrialDays = 7
	}
	if opts.NotifyThreshold <= 0 {
		opts.NotifyThreshold = 90
	}
	return &Service{
		repo:    repo,
		files:   files,
		mailer:  mailer,
		metrics: metrics,
		opts:    opts,
		log:     log,
		now:     time.Now,
	}
}

func (s *Service) Get(ctx context.Context, id string) (*model.User, error) {
	u, err := s.repo.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, api.NotFoundError("User", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", id, err)
	}
	return u, nil
}

// ProfileUpdate carries the self-editable profile fields; nil means
// unchanged.
type ProfileUpdate struct {
	Name               *string   `json:"name"`
	Phone              *string   `json:"phone"`
	Age                *int      `json:"age"`
	Location           *string   `json:"location"`
	Education          *string   `json:"education"`
	Profession         *string   `json:"profession"`
	Bio                *string   `json:"bio"`
	Interests          *[]string `json:"interests"`
	Values             *string   `json:"values"`
	PartnerPreferences *string   `json:"partnerPreferences"`
	CommunicationStyle *string   `json:"communicationStyle"`
}

const maxBioLength = 1000

func (s *Service) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*model.User, error) {
	var errs validate.Errors
	if upd.Name != nil {
		validate.Name(&errs, "name", *upd.Name)
	}
	if upd.Phone != nil {
		validate.Phone(&errs, "phone", *upd.Phone)
	}
	if upd.Age != nil && (*upd.Age < 18 || *upd.Age > 100) {
		errs.Add("age", "range", "Age must be between 18 and 100")
	}
	if upd.Bio != nil && len([]rune(*upd.Bio)) > maxBioLength {
		errs.Add("bio", "max_length", "Bio must be less than 1000 characters")
	}
	if upd.CommunicationStyle != nil && *upd.CommunicationStyle != "" {
		validate.OneOf(&errs, "communicationStyle", *upd.CommunicationStyle,
			[]string{"chat", "call"}, "Communication style must be chat or call")
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	setString(&u.Name, upd.Name)
	if upd.Phone != nil {
		u.Phone = validate.NormalizePhone(*upd.Phone)
	}
	if upd.Age != nil {
		u.Age = *upd.Age
	}
	setString(&u.Location, upd.Location)
	setString(&u.Education, upd.Education)
	setString(&u.Profession, upd.Profession)
	setString(&u.Bio, upd.Bio)
	setString(&u.Values, upd.Values)
	setString(&u.PartnerPreferences, upd.PartnerPreferences)
	setString(&u.CommunicationStyle, upd.CommunicationStyle)
	if upd.Interests != nil {
		u.Interests = cleanList(*upd.Interests)
	}
	u.RefreshProfileComplete()
	return u, s.save(ctx, u)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[strings.ToLower(v)] {
			continue
		}
		seen[strings.ToLower(v)] = true
		out = append(out, v)
	}
	return out
}

func (s *Service) save(ctx context.Context, u *model.User) error {
	u.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, u); err != nil {
		return fmt.Errorf("update user %s: %w", u.ID, err)
	}
	return nil
}

// SetCompatibility stores the structured profile the advanced engine
// scores against.
func (s *Service) SetCompatibility(ctx context.Context, id string, p matching.Profile) (*model.User, error) {
	if err := profileErrors(&p).Err(); err != nil {
		return nil, err
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p.ID = ""
	p.Interests = cleanList(p.Interests)
	u.Compatibility = &p
	if u.Age == 0 {
		u.Age = p.Age
	}
	u.RefreshProfileComplete()
	return u, s.save(ctx, u)
}

func profileErrors(p *matching.Profile) validate.Errors {
	var errs validate.Errors
	if p.Age < 18 || p.Age > 100 {
		errs.Add("age", "range", "Age must be between 18 and 100")
	}
	scale := func(field string, v int) {
		if v < 1 || v > 10 {
			errs.Add(field, "range", "Must be between 1 and 10")
		}
	}
	scale("values.familyImportance", p.Values.FamilyImportance)
	scale("values.careerAmbition", p.Values.CareerAmbition)
	scale("values.religiousValues", p.Values.ReligiousValues)
	scale("values.traditionalValues", p.Values.TraditionalValues)
	scale("values.socialLife", p.Values.SocialLife)
	scale("personalityTraits.extroversion", p.PersonalityTraits.Extroversion)
	scale("personalityTraits.openness", p.PersonalityTraits.Openness)
	scale("personalityTraits.agreeableness", p.PersonalityTraits.Agreeableness)
	scale("personalityTraits.conscientiousness", p.PersonalityTraits.Conscientiousness)
	scale("personalityTraits.emotionalStability", p.PersonalityTraits.EmotionalStability)

	enum := func(field, v string, allowed ...string) {
		if v != "" {
			validate.OneOf(&errs, field, v, allowed, fmt.Sprintf("Must be one of %s", strings.Join(allowed, ", ")))
		}
	}
	enum("lifestyle.smokingHabits", p.Lifestyle.SmokingHabits, "never", "occasionally", "regularly")
	enum("lifestyle.drinkingHabits", p.Lifestyle.DrinkingHabits, "never", "socially", "regularly")
	enum("lifestyle.dietPreference", p.Lifestyle.DietPreference, "vegetarian", "non-vegetarian", "vegan", "flexible")
	enum("relationshipGoals.timelineToMarriage", p.RelationshipGoals.TimelineToMarriage,
		matching.TimelineWithinYear, matching.TimelineOneToTwo, matching.TimelineTwoToThree, matching.TimelineFlexible)

	if p.Lifestyle.ExerciseFrequency < 0 || p.Lifestyle.ExerciseFrequency > 14 {
		errs.Add("lifestyle.exerciseFrequency", "range", "Exercise frequency must be between 0 and 14 per week")
	}
	if r := p.Preferences.AgeRange; r.Min != 0 || r.Max != 0 {
		if r.Min < 18 || r.Max < r.Min {
			errs.Add("preferences.ageRange", "range", "Age range must start at 18 or above and min must not exceed max")
		}
	}
	return errs
}

// UploadPicture replaces the user's profile picture.
func (s *Service) UploadPicture(ctx context.Context, id, filename string, r io.Reader) (*model.User, error) {
	contentType, ok := storage.ContentType(storage.PictureTypes, filename)
	if !ok {
		return nil, api.ValidationError([]api.ErrorDetail{{
			Field: "file", Rule: "type", Message: "Profile picture must be a JPEG, PNG, WebP or GIF image",
		}})
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	key := storage.NewKey(storage.KindPicture, u.ID, filename)
	if err := s.files.Save(ctx, key, contentType, r); err != nil {
		return nil, fmt.Errorf("save picture: %w", err)
	}
	previous := u.ProfilePictureKey
	u.ProfilePictureKey = key
	u.ProfilePicture = s.files.URL(key)
	if err := s.save(ctx, u); err != nil {
		_ = s.files.Delete(ctx, key)
		return nil, err
	}
	if previous != "" {
		if err := s.files.Delete(ctx, previous); err != nil {
			s.log.Warn("delete replaced picture", zap.String("key", previous), zap.Error(err))
		}
	}
	return u, nil
}

// Public returns the member-visible part of another user's profile.
func (s *Service) Public(ctx context.Context, id string) (*model.PublicProfile, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.Active {
		return nil, api.NotFoundError("User", id)
	}
	p := u.Public()
	return &p, nil
}

// Match is one ranked candidate with the profile the caller may see.
type Match struct {
	matching.MatchScore
	User model.PublicProfile `json:"user"`
}

// Matches ranks active members with a compatibility profile against the
// caller. When notify is set, the caller is emailed about every returned
// match at or above the notification threshold.
func (s *Service) Matches(ctx context.Context, id string, limit int, notify bool) ([]Match, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	target := u.MatchingProfile()
	if target == nil {
		return nil, api.NewAppError("PROFILE_INCOMPLETE", 409, "Complete your compatibility profile to see matches")
	}

	candidates, err := s.repo.ListMatchable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list matchable users: %w", err)
	}
	byID := make(map[string]*model.User, len(candidates))
	profiles := make([]*matching.Profile, 0, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
		profiles = append(profiles, c.MatchingProfile())
	}

	s.metrics.MatchRun("advanced")
	scored := matching.FindMatches(target, profiles, limit)
	out := make([]Match, 0, len(scored))
	for _, m := range scored {
		out = append(out, Match{MatchScore: m, User: byID[m.UserID].Public()})
	}

	if notify && s.mailer != nil {
		for _, m := range out {
			if m.OverallScore < s.opts.NotifyThreshold {
				break
			}
			if err := s.mailer.MatchNotification(ctx, u.Email, u.Name, m.User.Name, m.OverallScore); err != nil {
				s.log.Warn("match notification", zap.String("user_id", u.ID), zap.Error(err))
			}
		}
	}
	return out, nil
}

func (s *Service) List(ctx context.Context, page, limit int) ([]*model.User, int64, error) {
	users, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

// StartTrial grants the free trial. Each account gets it once.
func (s *Service) StartTrial(ctx context.Context, id string) (*model.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Subscription.TrialStartedAt != nil {
		return nil, api.ConflictError("Free trial has already been used")
	}
	if u.Subscription.Status == model.SubscriptionActive {
		return nil, api.ConflictError("Subscription is already active")
	}
	now := s.now().UTC()
	ends := now.AddDate(0, 0, s.opts.TrialDays)
	u.Subscription.Plan = model.PlanTrial
	u.Subscription.Status = model.SubscriptionTrialing
	u.Subscription.TrialStartedAt = &now
	u.Subscription.TrialEndsAt = &ends
	return u, s.save(ctx, u)
}
