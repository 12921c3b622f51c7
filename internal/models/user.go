package models

import "time"

// User is the slice of the end-user profile the chat subsystem reads and
// writes. Accounts themselves are owned by the auth service.
type User struct {
	ID         string     `json:"id" bson:"-" db:"id"`
	Name       string     `json:"name" bson:"name" db:"name"`
	Phone      string     `json:"phone" bson:"phone" db:"phone"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty" bson:"last_seen_at,omitempty" db:"last_seen_at"`
	CreatedAt  time.Time  `json:"createdAt" bson:"created_at" db:"created_at"`
}
