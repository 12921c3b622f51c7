package realtime

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vthuan-dev/bufforder-sub001/internal/models"
)

// Broadcaster turns persisted chat changes and presence transitions into
// room broadcasts.
type Broadcaster struct {
	hub *Hub
	log zerolog.Logger
}

func NewBroadcaster(hub *Hub, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{hub: hub, log: log.With().Str("component", "realtime-broadcaster").Logger()}
}

func (b *Broadcaster) MessageCreated(_ context.Context, thread *models.Thread, msg *models.Message) {
	b.send(models.EventMessageReceived, models.NewMessageReceived(msg), ThreadRoom(thread.ID))
	b.send(models.EventThreadUpdated, models.NewThreadUpdated(thread, msg.SenderRole), StaffRoom, UserRoom(thread.UserID))
}

func (b *Broadcaster) ThreadDeleted(_ context.Context, thread *models.Thread) {
	b.send(models.EventThreadDeleted, models.ThreadDeletedPayload{ThreadID: thread.ID},
		ThreadRoom(thread.ID), UserRoom(thread.UserID), StaffRoom)
}

func (b *Broadcaster) PresenceChanged(_ context.Context, userID string, online bool) {
	b.send(models.EventPresenceUpdate, models.PresenceUpdatePayload{UserID: userID, Online: online}, StaffRoom)
}

func (b *Broadcaster) send(event string, data any, rooms ...string) {
	payload, err := encode(event, data)
	if err != nil {
		b.log.Error().Err(err).Str("event", event).Msg("encode broadcast failed")
		return
	}
	n := b.hub.Broadcast(payload, rooms...)
	b.log.Debug().Str("event", event).Strs("rooms", rooms).Int("delivered", n).Msg("broadcast")
}
