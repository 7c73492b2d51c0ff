package event

import (
	"time"

	"github.com/google/uuid"
)

// Payload keys shared by publishers and handlers
const (
	KeyPreviousStatus = "previous_status"
	KeyNewStatus      = "new_status"
	KeyAction         = "action"
	KeyDetail         = "detail"
	KeyItemID         = "item_id"
	KeyMatchNumber    = "match_number"
)

// Event is something that happened to an invoice match
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	MatchID       string                 `json:"match_id"`
	FacilityID    string                 `json:"facility_id"`
	ActorID       string                 `json:"actor_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with a fresh ID and timestamp
func NewEvent(eventType Type, matchID, facilityID, actorID string, payload map[string]interface{}) *Event {
	return NewEventWithCorrelation(eventType, matchID, facilityID, actorID, payload, uuid.NewString())
}

// NewEventWithCorrelation creates an event linked to a correlation chain,
// typically every event raised by one service call
func NewEventWithCorrelation(eventType Type, matchID, facilityID, actorID string, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		MatchID:       matchID,
		FacilityID:    facilityID,
		ActorID:       actorID,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}
}

// GetPayloadString retrieves a string value from the payload. Values of
// a named string type such as a status are converted.
func (e *Event) GetPayloadString(key string) string {
	val, ok := e.Payload[key]
	if !ok || val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case interface{ String() string }:
		return v.String()
	}
	return ""
}
