// Copyright 2026 Teyda Authors

package onebot

import (
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	EventMessage = "message"
	EventNotice  = "notice"
	EventMeta    = "meta"
)

// Self identifies the bot account an event belongs to.
type Self struct {
	Platform string `json:"platform"`
	UserID   string `json:"user_id"`
}

// BotStatus is the per-bot entry of a status report.
type BotStatus struct {
	Self   Self `json:"self"`
	Online bool `json:"online"`
}

// Status is the payload of meta.status_update events and get_status.
type Status struct {
	Good bool        `json:"good"`
	Bots []BotStatus `json:"bots"`
}

// Version is the payload of meta.connect events and get_version.
type Version struct {
	Impl          string `json:"impl"`
	Version       string `json:"version"`
	OneBotVersion string `json:"onebot_version"`
}

// Event is a canonical event envelope. It is immutable once built; variant
// fields beyond the common header are set only by the constructing
// translator and never mutated afterwards.
type Event struct {
	ID         string  `json:"id"`
	Time       float64 `json:"time"`
	Type       string  `json:"type"`
	DetailType string  `json:"detail_type"`
	SubType    string  `json:"sub_type"`
	Self       *Self   `json:"self,omitempty"`

	// Message events.
	MessageID  string  `json:"message_id,omitempty"`
	Message    Message `json:"message,omitempty"`
	AltMessage string  `json:"alt_message,omitempty"`

	// Message and notice events.
	UserID  string `json:"user_id,omitempty"`
	GroupID string `json:"group_id,omitempty"`

	// Meta events.
	Status  *Status  `json:"status,omitempty"`
	Version *Version `json:"version,omitempty"`
}

// NewEvent builds an event header with a fresh random id and the current
// wall clock. Translators overwrite Time when the raw payload carries its
// own timestamp.
func NewEvent(eventType, detailType string) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Time:       Now(),
		Type:       eventType,
		DetailType: detailType,
	}
}

// Now returns the current wall clock as fractional seconds since epoch.
func Now() float64 {
	return float64(time.Now().UnixMilli()) / 1000
}
