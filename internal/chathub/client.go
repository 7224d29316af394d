package chathub

import (
	"github.com/rs/zerolog/log"

	"vidmatch/backend/internal/models"
)

// Client is the interface for any live connection to one participant.
// It abstracts the underlying transport so the hub, room store and call
// store can address every connection uniformly.
type Client interface {
	// GetUserID returns the authenticated identity bound to the connection.
	GetUserID() string

	// GetSendChannel returns the channel the hub writes outbound events to.
	// Sends through it must never block; use trySend.
	GetSendChannel() chan<- models.Event

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts down the connection and its send channel. Safe to call
	// more than once.
	Close()
}

// trySend delivers an event without blocking the hub loop. A client whose
// send buffer is full loses the event; the slow consumer is eventually torn
// down by its own write pump.
func trySend(c Client, ev models.Event) {
	select {
	case c.GetSendChannel() <- ev:
	default:
		log.Warn().Str("module", "chathub").Str("user_id", c.GetUserID()).Str("event", ev.Type).Msg("send buffer full, dropping event")
	}
}
