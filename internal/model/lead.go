package model

import "time"

const (
	LeadStatusNew       = "new"
	LeadStatusVerified  = "verified"
	LeadStatusContacted = "contacted"
	LeadStatusDeleted   = "deleted"

	DefaultLeadSource = "website"
)

// ValidLeadStatus reports whether s is one of the lead lifecycle states.
func ValidLeadStatus(s string) bool {
	switch s {
	case LeadStatusNew, LeadStatusVerified, LeadStatusContacted, LeadStatusDeleted:
		return true
	}
	return false
}

type Lead struct {
	ID                       string         `bson:"_id,omitempty" json:"id"`
	Name                     string         `bson:"name" json:"name"`
	Email                    string         `bson:"email" json:"email"`
	Phone                    string         `bson:"phone" json:"phone"`
	Answers                  map[string]any `bson:"answers" json:"answers"`
	Status                   string         `bson:"status" json:"status"`
	Source                   string         `bson:"source" json:"source"`
	LeadScore                int            `bson:"leadScore" json:"leadScore"`
	Notes                    []LeadNote     `bson:"notes" json:"notes"`
	AssignedTo               string         `bson:"assignedTo,omitempty" json:"assignedTo,omitempty"`
	FollowUpDate             *time.Time     `bson:"followUpDate,omitempty" json:"followUpDate,omitempty"`
	FollowUpNotifiedAt       *time.Time     `bson:"followUpNotifiedAt,omitempty" json:"followUpNotifiedAt,omitempty"`
	FollowUpAttempts         int            `bson:"followUpAttempts,omitempty" json:"-"`
	FollowUpRetryAt          *time.Time     `bson:"followUpRetryAt,omitempty" json:"-"`
	IsActive                 bool           `bson:"isActive" json:"isActive"`
	BiodataKey               string         `bson:"biodataKey,omitempty" json:"biodataKey,omitempty"`
	MigrationID              string         `bson:"migrationId,omitempty" json:"migrationId,omitempty"`
	MigratedFromLocalStorage bool           `bson:"migratedFromLocalStorage" json:"migratedFromLocalStorage"`
	CreatedAt                time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt                time.Time      `bson:"updatedAt" json:"updatedAt"`
}

type LeadNote struct {
	Message string    `bson:"message" json:"message"`
	AddedBy string    `bson:"addedBy" json:"addedBy"`
	AddedAt time.Time `bson:"addedAt" json:"addedAt"`
}

// LeadFilter narrows admin lead listings. Search matches name, email or
// phone case-insensitively.
type LeadFilter struct {
	Status string
	Search string
	Page   int
	Limit  int
}

// LeadUpdate carries the admin-editable lead fields; nil means unchanged.
type LeadUpdate struct {
	Status       *string    `json:"status"`
	AssignedTo   *string    `json:"assignedTo"`
	FollowUpDate *time.Time `json:"followUpDate"`
	IsActive     *bool      `json:"isActive"`
	BiodataKey   *string    `json:"-"`
	LeadScore    *int       `json:"-"`
}
