package chathub

import (
	"encoding/json"

	"vidmatch/backend/internal/models"
)

// Payload types for outbound events. Every event carries exactly one of
// these in models.Event.Data so clients (and tests) get a stable shape.

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PresencePayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
}

type OnlinePayload struct {
	Profile models.PublicProfile `json:"profile"`
}

type MatchedPayload struct {
	RoomID  string               `json:"room_id"`
	Partner models.PublicProfile `json:"partner"`
}

type SearchingPayload struct {
	QueuePosition int `json:"queue_position"`
}

type RoomEventPayload struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

type TypingPayload struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
	Typing bool   `json:"typing"`
}

type CallPayload struct {
	CallID   string               `json:"call_id"`
	CallType string               `json:"call_type,omitempty"`
	Peer     models.PublicProfile `json:"peer,omitempty"`
}

type CallEndedPayload struct {
	CallID string `json:"call_id"`
	Reason string `json:"reason"`
	// Duration is whole seconds of connected time, 0 if never connected.
	Duration int `json:"duration"`
}

type SignalPayload struct {
	CallID    string          `json:"call_id"`
	From      string          `json:"from"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type TogglePayload struct {
	CallID  string `json:"call_id"`
	UserID  string `json:"user_id"`
	Enabled bool   `json:"enabled"`
}
