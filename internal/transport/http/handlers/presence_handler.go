package handlers

import (
	"net/http"

	"github.com/vedran77/riffchat/internal/service"
	"go.uber.org/zap"
)

type PresenceHandler struct {
	presence *service.PresenceService
	log      *zap.Logger
}

func NewPresenceHandler(presence *service.PresenceService, log *zap.Logger) *PresenceHandler {
	return &PresenceHandler{presence: presence, log: log}
}

func (h *PresenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "user")
	if !ok {
		return
	}

	p, err := h.presence.Get(r.Context(), userID)
	if err != nil {
		writeError(w, h.log, "get presence", err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{"presence": p})
}
