package outbox

import (
	"encoding/json"
	"time"
)

// ActorRef identifies what produced the event; for disbursement flows this is
// usually a system actor (coordinator, callback processor, reconciliation job)
// rather than a human.
type ActorRef struct {
	System string `json:"system,omitempty"`
	UserID string `json:"userId,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
