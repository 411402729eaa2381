package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/vedran77/riffchat/internal/domain"
	"github.com/vedran77/riffchat/internal/metrics"
	"github.com/vedran77/riffchat/internal/service"
	"github.com/vedran77/riffchat/internal/transport/http/middleware"
	"github.com/vedran77/riffchat/pkg/validator"
	"go.uber.org/zap"
)

type MessageHandler struct {
	messages *service.MessageService
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func NewMessageHandler(messages *service.MessageService, m *metrics.Metrics, log *zap.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, metrics: m, log: log}
}

// SendToUser sends a message to a user, creating the conversation on the
// first message.
func (h *MessageHandler) SendToUser(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.SendToUserInput
	if !decodeJSON(w, r, &input) {
		return
	}
	if input.ReceiverID == uuid.Nil {
		writeValidationErrors(w, validator.ValidationErrors{"receiverId": "Receiver is required"})
		return
	}

	msg, err := h.messages.SendToUser(r.Context(), userID, input)
	if err != nil {
		writeError(w, h.log, "send message to user", err)
		return
	}
	countSent(h.metrics, msg.Type())

	writeJSON(w, http.StatusCreated, envelope{"message": msg, "conversationId": msg.ConversationID})
}

func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, ok := pathID(w, r, "message")
	if !ok {
		return
	}

	var input struct {
		Content string `json:"content"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}

	msg, err := h.messages.Edit(r.Context(), messageID, userID, input.Content)
	if err != nil {
		writeError(w, h.log, "edit message", err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{"message": msg})
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, ok := pathID(w, r, "message")
	if !ok {
		return
	}

	if err := h.messages.Delete(r.Context(), messageID, userID); err != nil {
		writeError(w, h.log, "delete message", err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{"messageId": messageID})
}

func countSent(m *metrics.Metrics, t domain.MessageType) {
	if m != nil {
		m.MessagesSent.WithLabelValues(string(t)).Inc()
	}
}
