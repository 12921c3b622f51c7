package models

import (
	"strings"
	"time"
)

// SenderRole identifies who authored a message.
type SenderRole string

const (
	SenderUser  SenderRole = "user"
	SenderAdmin SenderRole = "admin"
)

func (r SenderRole) Valid() bool {
	return r == SenderUser || r == SenderAdmin
}

// ImageSentinel is cached as a thread's last message text when the message
// carries only an image.
const ImageSentinel = "[image]"

type Message struct {
	ID                string     `json:"id" bson:"_id" db:"id"`
	ThreadID          string     `json:"threadId" bson:"thread_id" db:"thread_id"`
	SenderRole        SenderRole `json:"senderRole" bson:"sender_role" db:"sender_role"`
	SenderID          string     `json:"senderId" bson:"sender_id" db:"sender_id"`
	Text              string     `json:"text" bson:"text" db:"text"`
	ImageURL          *string    `json:"imageUrl,omitempty" bson:"image_url,omitempty" db:"image_url"`
	ReadByAdmin       bool       `json:"readByAdmin" bson:"read_by_admin" db:"read_by_admin"`
	ReadByUser        bool       `json:"readByUser" bson:"read_by_user" db:"read_by_user"`
	DeletedForUser    bool       `json:"-" bson:"deleted_for_user" db:"deleted_for_user"`
	DeletedForUserAt  *time.Time `json:"-" bson:"deleted_for_user_at,omitempty" db:"deleted_for_user_at"`
	DeletedForAdmin   bool       `json:"-" bson:"deleted_for_admin" db:"deleted_for_admin"`
	DeletedForAdminAt *time.Time `json:"-" bson:"deleted_for_admin_at,omitempty" db:"deleted_for_admin_at"`
	CreatedAt         time.Time  `json:"createdAt" bson:"created_at" db:"created_at"`
}

// HasImage reports whether the message references an uploaded image.
func (m *Message) HasImage() bool {
	return m.ImageURL != nil && strings.TrimSpace(*m.ImageURL) != ""
}

// SummaryText is the text cached on the thread for this message.
func (m *Message) SummaryText() string {
	return SummaryText(m.Text, m.ImageURL)
}

// SummaryText returns text, or ImageSentinel for image-only messages.
func SummaryText(text string, imageURL *string) string {
	if strings.TrimSpace(text) == "" && imageURL != nil && *imageURL != "" {
		return ImageSentinel
	}
	return text
}

// Page describes a 1-based page of results.
type Page struct {
	Number int
	Limit  int
}

// Offset is the number of rows to skip for this page.
func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Limit
}

type MessagePage struct {
	Messages []Message `json:"messages"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
	HasMore  bool      `json:"hasMore"`
}
