package model

import "time"

const (
	RespondentUser = "user"
	RespondentLead = "lead"
)

type QuestionnaireResponse struct {
	ID                       string         `bson:"_id,omitempty" json:"id"`
	UserID                   string         `bson:"userId,omitempty" json:"userId,omitempty"`
	LeadID                   string         `bson:"leadId,omitempty" json:"leadId,omitempty"`
	UserName                 string         `bson:"userName,omitempty" json:"userName,omitempty"`
	UserEmail                string         `bson:"userEmail,omitempty" json:"userEmail,omitempty"`
	UserPhone                string         `bson:"userPhone,omitempty" json:"userPhone,omitempty"`
	UserType                 string         `bson:"userType,omitempty" json:"userType,omitempty"`
	Responses                map[string]any `bson:"responses" json:"responses"`
	IsComplete               bool           `bson:"isComplete" json:"isComplete"`
	CompletedAt              *time.Time     `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	Source                   string         `bson:"source,omitempty" json:"source,omitempty"`
	CompletionTime           float64        `bson:"completionTime,omitempty" json:"completionTime,omitempty"`
	MigrationID              string         `bson:"migrationId,omitempty" json:"migrationId,omitempty"`
	MigratedFromLocalStorage bool           `bson:"migratedFromLocalStorage" json:"migratedFromLocalStorage"`
	CreatedAt                time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt                time.Time      `bson:"updatedAt" json:"updatedAt"`
}
