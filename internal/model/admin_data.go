package model

import "time"

type AdminData struct {
	Key                      string    `bson:"_id" json:"key"`
	Data                     any       `bson:"data" json:"data"`
	MigratedFromLocalStorage bool      `bson:"migratedFromLocalStorage" json:"migratedFromLocalStorage"`
	CreatedAt                time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt                time.Time `bson:"updatedAt" json:"updatedAt"`
}
