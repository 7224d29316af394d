package models

import (
	"encoding/json"
	"time"
)

// Command is the single inbound frame shape read off a client connection.
// Type selects the handler; only the fields relevant to that type are set.
type Command struct {
	Type string `json:"type"`

	Preferences *MatchPreferences `json:"preferences,omitempty"`

	RoomID      string `json:"room_id,omitempty"`
	Message     string `json:"message,omitempty"`
	MessageType string `json:"message_type,omitempty"`

	TargetUserID string `json:"target_user_id,omitempty"`
	CallType     string `json:"call_type,omitempty"`
	CallID       string `json:"call_id,omitempty"`

	// WebRTC payloads are opaque to the core and relayed verbatim.
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`

	Enabled *bool `json:"enabled,omitempty"`
}

// Event is the single outbound frame shape written to a client connection.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// MatchPreferences is what a user asks for when entering the search queue.
// A zero value is normalized to "anyone of any adult age".
type MatchPreferences struct {
	Gender string `json:"gender"` // "male", "female" or "both"
	AgeMin int    `json:"age_min"`
	AgeMax int    `json:"age_max"`
}

const (
	GenderAny     = "both"
	defaultAgeMin = 18
	defaultAgeMax = 99
)

// Normalized returns a copy with unset fields replaced by defaults.
func (p MatchPreferences) Normalized() MatchPreferences {
	if p.Gender == "" {
		p.Gender = GenderAny
	}
	if p.AgeMin <= 0 {
		p.AgeMin = defaultAgeMin
	}
	if p.AgeMax <= 0 {
		p.AgeMax = defaultAgeMax
	}
	return p
}

// Accepts reports whether a candidate profile satisfies these preferences.
func (p MatchPreferences) Accepts(candidate *User) bool {
	if p.Gender != GenderAny && p.Gender != candidate.Gender {
		return false
	}
	return candidate.Age >= p.AgeMin && candidate.Age <= p.AgeMax
}

// ChatMessage is one entry of a room's bounded message log, and the payload
// of new_message events. Immutable once appended.
type ChatMessage struct {
	ID       string    `json:"id"`
	RoomID   string    `json:"room_id"`
	SenderID string    `json:"sender_id"`
	Content  string    `json:"content"`
	Type     string    `json:"type"` // "text", "image", "system"
	SentAt   time.Time `json:"sent_at"`
}
