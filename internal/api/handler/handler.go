package handler

import "mingle/backend/internal/chathub"

// Handler carries the hub reference for the HTTP layer.
type Handler struct {
	Hub *chathub.Hub
}

func NewHandler(hub *chathub.Hub) *Handler {
	return &Handler{Hub: hub}
}
