// Package events delivers resource state changes to external publishers
// without blocking frame handling.
package events

import (
	"encoding/json"
	"time"

	uuid "github.com/satori/go.uuid"
)

// Topics carried by the bus.
const (
	TopicLED = "led"
)

// Event is one state change.
type Event struct {
	ID      string      `json:"id"`
	Topic   string      `json:"topic"`
	Key     string      `json:"key"` // ordering key; events with the same key stay in order
	Payload interface{} `json:"payload"`
}

// LEDChanged is the payload of TopicLED events.
type LEDChanged struct {
	LED bool   `json:"led"`
	At  string `json:"at"` // RFC 3339
}

// NewLEDEvent builds the event published when the LED output changes.
func NewLEDEvent(level bool, at time.Time) *Event {
	return &Event{
		ID:      newID(),
		Topic:   TopicLED,
		Key:     TopicLED,
		Payload: LEDChanged{LED: level, At: at.UTC().Format(time.RFC3339)},
	}
}

// Encode returns the JSON body sent to brokers: the payload alone.
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e.Payload)
}

func newID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return ""
	}
	return id.String()
}
