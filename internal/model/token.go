package model

import "time"

type RefreshToken struct {
	Token     string    `bson:"_id"`
	UserID    string    `bson:"userId"`
	ExpiresAt time.Time `bson:"expiresAt"`
	CreatedAt time.Time `bson:"createdAt"`
}

// PasswordReset stores only the SHA-256 of the emailed token.
type PasswordReset struct {
	TokenHash string     `bson:"_id"`
	UserID    string     `bson:"userId"`
	ExpiresAt time.Time  `bson:"expiresAt"`
	UsedAt    *time.Time `bson:"usedAt,omitempty"`
	CreatedAt time.Time  `bson:"createdAt"`
}
