package model

import (
	"strings"
	"time"

	"knot-backend/internal/matching"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"

	PlanTrial = "trial"

	SubscriptionTrialing  = "trialing"
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
	SubscriptionExpired   = "expired"
)

type User struct {
	ID                       string            `bson:"_id,omitempty" json:"id"`
	Email                    string            `bson:"email" json:"email"`
	Name                     string            `bson:"name" json:"name"`
	Phone                    string            `bson:"phone" json:"phone"`
	Age                      int               `bson:"age,omitempty" json:"age,omitempty"`
	Location                 string            `bson:"location,omitempty" json:"location,omitempty"`
	Education                string            `bson:"education,omitempty" json:"education,omitempty"`
	Profession               string            `bson:"profession,omitempty" json:"profession,omitempty"`
	Bio                      string            `bson:"bio,omitempty" json:"bio,omitempty"`
	Interests                []string          `bson:"interests" json:"interests"`
	Values                   string            `bson:"values,omitempty" json:"values,omitempty"`
	PartnerPreferences       string            `bson:"partnerPreferences,omitempty" json:"partnerPreferences,omitempty"`
	CommunicationStyle       string            `bson:"communicationStyle,omitempty" json:"communicationStyle,omitempty"`
	ProfileComplete          bool              `bson:"profileComplete" json:"profileComplete"`
	QuestionnaireComplete    bool              `bson:"questionnaireComplete" json:"questionnaireComplete"`
	ProfilePicture           string            `bson:"profilePicture,omitempty" json:"profilePicture,omitempty"`
	ProfilePictureKey        string            `bson:"profilePictureKey,omitempty" json:"-"`
	IsVerified               bool              `bson:"isVerified" json:"isVerified"`
	Roles                    []string          `bson:"roles" json:"roles"`
	Active                   bool              `bson:"active" json:"active"`
	Subscription             Subscription      `bson:"subscription" json:"subscription"`
	Compatibility            *matching.Profile `bson:"compatibility,omitempty" json:"compatibility,omitempty"`
	PasswordHash             string            `bson:"passwordHash" json:"-"`
	LeadID                   string            `bson:"leadId,omitempty" json:"leadId,omitempty"`
	MigrationID              string            `bson:"migrationId,omitempty" json:"migrationId,omitempty"`
	MigratedFromLocalStorage bool              `bson:"migratedFromLocalStorage" json:"migratedFromLocalStorage"`
	CreatedAt                time.Time         `bson:"createdAt" json:"createdAt"`
	UpdatedAt                time.Time         `bson:"updatedAt" json:"updatedAt"`
}

type Subscription struct {
	Plan                 string     `bson:"plan,omitempty" json:"plan,omitempty"`
	Interval             string     `bson:"interval,omitempty" json:"interval,omitempty"`
	Status               string     `bson:"status,omitempty" json:"status,omitempty"`
	TrialStartedAt       *time.Time `bson:"trialStartedAt,omitempty" json:"trialStartedAt,omitempty"`
	TrialEndsAt          *time.Time `bson:"trialEndsAt,omitempty" json:"trialEndsAt,omitempty"`
	StartedAt            *time.Time `bson:"startedAt,omitempty" json:"startedAt,omitempty"`
	StripeCustomerID     string     `bson:"stripeCustomerId,omitempty" json:"-"`
	StripeSubscriptionID string     `bson:"stripeSubscriptionId,omitempty" json:"-"`
}

func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// RefreshProfileComplete recomputes ProfileComplete from the core profile
// fields.
func (u *User) RefreshProfileComplete() {
	u.ProfileComplete = strings.TrimSpace(u.Name) != "" &&
		u.Age > 0 &&
		strings.TrimSpace(u.Location) != "" &&
		strings.TrimSpace(u.Education) != "" &&
		strings.TrimSpace(u.Profession) != "" &&
		strings.TrimSpace(u.Bio) != ""
}

// MatchingProfile returns the compatibility profile keyed by the user's id,
// or nil when the user has not filled one in.
func (u *User) MatchingProfile() *matching.Profile {
	if u.Compatibility == nil {
		return nil
	}
	p := *u.Compatibility
	p.ID = u.ID
	return &p
}

// PublicProfile is what other members may see.
type PublicProfile struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Age            int      `json:"age,omitempty"`
	Location       string   `json:"location,omitempty"`
	Education      string   `json:"education,omitempty"`
	Profession     string   `json:"profession,omitempty"`
	Bio            string   `json:"bio,omitempty"`
	Interests      []string `json:"interests"`
	ProfilePicture string   `json:"profilePicture,omitempty"`
	IsVerified     bool     `json:"isVerified"`
}

func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:             u.ID,
		Name:           u.Name,
		Age:            u.Age,
		Location:       u.Location,
		Education:      u.Education,
		Profession:     u.Profession,
		Bio:            u.Bio,
		Interests:      u.Interests,
		ProfilePicture: u.ProfilePicture,
		IsVerified:     u.IsVerified,
	}
}
