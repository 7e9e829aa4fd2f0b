package model

import "time"

const DefaultContactSource = "contact-form"

type ContactSubmission struct {
	ID                     string    `bson:"_id,omitempty" json:"id"`
	Name                   string    `bson:"name" json:"name"`
	Email                  string    `bson:"email" json:"email"`
	Phone                  string    `bson:"phone" json:"phone"`
	Subject                string    `bson:"subject" json:"subject"`
	Message                string    `bson:"message" json:"message"`
	PreferredContactMethod string    `bson:"preferredContactMethod" json:"preferredContactMethod"`
	Source                 string    `bson:"source" json:"source"`
	SubmittedAt            time.Time `bson:"submittedAt" json:"submittedAt"`
}
