package models

import "time"

type ThreadStatus string

const (
	ThreadOpen   ThreadStatus = "open"
	ThreadClosed ThreadStatus = "closed"
)

type Thread struct {
	ID              string       `json:"id" bson:"_id" db:"id"`
	UserID          string       `json:"userId" bson:"user_id" db:"user_id"`
	IPAddress       string       `json:"ipAddress,omitempty" bson:"ip_address,omitempty" db:"ip_address"`
	LastMessageAt   *time.Time   `json:"lastMessageAt,omitempty" bson:"last_message_at,omitempty" db:"last_message_at"`
	LastMessageText string       `json:"lastMessageText" bson:"last_message_text" db:"last_message_text"`
	UnreadAdmin     int          `json:"unreadAdmin" bson:"unread_admin" db:"unread_admin"`
	UnreadUser      int          `json:"unreadUser" bson:"unread_user" db:"unread_user"`
	Status          ThreadStatus `json:"status" bson:"status" db:"status"`
	CreatedAt       time.Time    `json:"createdAt" bson:"created_at" db:"created_at"`
	UpdatedAt       time.Time    `json:"updatedAt" bson:"updated_at" db:"updated_at"`
}

// Unread returns the unread counter that belongs to the audience.
func (t *Thread) Unread(a Audience) int {
	if a == AudienceAdmin {
		return t.UnreadAdmin
	}
	return t.UnreadUser
}

// ThreadFilter selects threads for the staff inbox.
type ThreadFilter struct {
	Search string
	Page   Page
}

// ThreadSummary is a thread annotated with live presence for the staff inbox.
type ThreadSummary struct {
	Thread
	Online bool `json:"online"`
}

type ThreadList struct {
	Threads []ThreadSummary `json:"threads"`
	Total   int64           `json:"total"`
	Page    int             `json:"page"`
	Limit   int             `json:"limit"`
}
