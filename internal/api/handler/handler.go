package handler

import "vidmatch/backend/internal/chathub"

// Handler bundles the HTTP endpoints in front of the chat hub.
type Handler struct {
	Hub       *chathub.ManagerService
	jwtSecret []byte
}

func NewHandler(hub *chathub.ManagerService, jwtSecret string) *Handler {
	return &Handler{Hub: hub, jwtSecret: []byte(jwtSecret)}
}
