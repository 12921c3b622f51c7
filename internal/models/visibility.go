package models

// Audience is one of the two parties that read a thread.
type Audience string

const (
	AudienceUser  Audience = "user"
	AudienceAdmin Audience = "admin"
)

// AudienceFor maps a sender to the audience that wrote the message.
func AudienceFor(role SenderRole) Audience {
	if role == SenderAdmin {
		return AudienceAdmin
	}
	return AudienceUser
}

// Other returns the opposite audience.
func (a Audience) Other() Audience {
	if a == AudienceAdmin {
		return AudienceUser
	}
	return AudienceAdmin
}

// VisibleTo is the single visibility policy for messages. Retention only ever
// hides user-authored messages from the user; staff hide history manually.
func (m *Message) VisibleTo(a Audience) bool {
	switch a {
	case AudienceUser:
		return !m.DeletedForUser
	case AudienceAdmin:
		return !m.DeletedForAdmin
	default:
		return false
	}
}

// ReadBy reports whether the audience has read the message.
func (m *Message) ReadBy(a Audience) bool {
	if a == AudienceAdmin {
		return m.ReadByAdmin
	}
	return m.ReadByUser
}

// RetentionEligible reports whether the user-facing sweep may hide m given
// the cutoff.
func (m *Message) RetentionEligible(cutoff int64) bool {
	return m.SenderRole == SenderUser && !m.DeletedForUser && m.CreatedAt.UnixNano() < cutoff
}
