package models

import "time"

// Realtime event names.
const (
	EventJoinThread      = "join-thread"
	EventSendMessage     = "send-message"
	EventTyping          = "typing"
	EventMessageReceived = "message-received"
	EventThreadUpdated   = "thread-updated"
	EventTypingBroadcast = "typing-broadcast"
	EventThreadDeleted   = "thread-deleted"
	EventPresenceUpdate  = "presence-update"
	EventError           = "error"
)

type JoinThreadPayload struct {
	ThreadID string `json:"threadId"`
}

type SendMessagePayload struct {
	ThreadID string `json:"threadId,omitempty"`
	Text     string `json:"text"`
}

type TypingPayload struct {
	ThreadID string `json:"threadId"`
	Typing   bool   `json:"typing"`
}

type MessageReceivedPayload struct {
	ID         string     `json:"id"`
	ThreadID   string     `json:"threadId"`
	SenderRole SenderRole `json:"senderRole"`
	SenderID   string     `json:"senderId"`
	Text       string     `json:"text"`
	ImageURL   *string    `json:"imageUrl,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func NewMessageReceived(m *Message) MessageReceivedPayload {
	return MessageReceivedPayload{
		ID:         m.ID,
		ThreadID:   m.ThreadID,
		SenderRole: m.SenderRole,
		SenderID:   m.SenderID,
		Text:       m.Text,
		ImageURL:   m.ImageURL,
		CreatedAt:  m.CreatedAt,
	}
}

type ThreadUpdatedPayload struct {
	ThreadID        string     `json:"threadId"`
	UserID          string     `json:"userId"`
	LastMessageText string     `json:"lastMessageText"`
	LastMessageAt   *time.Time `json:"lastMessageAt,omitempty"`
	UnreadAdmin     int        `json:"unreadAdmin"`
	UnreadUser      int        `json:"unreadUser"`
	SenderRole      SenderRole `json:"senderRole"`
}

func NewThreadUpdated(t *Thread, role SenderRole) ThreadUpdatedPayload {
	return ThreadUpdatedPayload{
		ThreadID:        t.ID,
		UserID:          t.UserID,
		LastMessageText: t.LastMessageText,
		LastMessageAt:   t.LastMessageAt,
		UnreadAdmin:     t.UnreadAdmin,
		UnreadUser:      t.UnreadUser,
		SenderRole:      role,
	}
}

type TypingBroadcastPayload struct {
	ThreadID   string     `json:"threadId"`
	Typing     bool       `json:"typing"`
	SenderRole SenderRole `json:"senderRole"`
}

type ThreadDeletedPayload struct {
	ThreadID string `json:"threadId"`
}

type PresenceUpdatePayload struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}
