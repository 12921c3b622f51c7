package realtime

import (
	"encoding/json"

	"github.com/vthuan-dev/bufforder-sub001/internal/models"
)

// StaffRoom is joined by every staff connection.
const StaffRoom = "staff"

func UserRoom(userID string) string     { return "user:" + userID }
func ThreadRoom(threadID string) string { return "thread:" + threadID }

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

func errorFrame(event, message string) []byte {
	b, _ := encode(models.EventError, models.ErrorPayload{Event: event, Message: message})
	return b
}
