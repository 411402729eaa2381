package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/vedran77/riffchat/internal/metrics"
	"github.com/vedran77/riffchat/internal/service"
	"github.com/vedran77/riffchat/internal/transport/http/middleware"
	"github.com/vedran77/riffchat/pkg/validator"
	"go.uber.org/zap"
)

type ConversationHandler struct {
	conversations *service.ConversationService
	messages      *service.MessageService
	metrics       *metrics.Metrics
	log           *zap.Logger
}

func NewConversationHandler(conversations *service.ConversationService, messages *service.MessageService, m *metrics.Metrics, log *zap.Logger) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, messages: messages, metrics: m, log: log}
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	convs, err := h.conversations.List(r.Context(), userID)
	if err != nil {
		writeError(w, h.log, "list conversations", err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{"conversations": convs})
}

func (h *ConversationHandler) GetOrCreate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input struct {
		ReceiverID uuid.UUID `json:"receiverId"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}
	if input.ReceiverID == uuid.Nil {
		writeValidationErrors(w, validator.ValidationErrors{"receiverId": "Receiver is required"})
		return
	}

	conv, err := h.conversations.FindOrCreate(r.Context(), userID, input.ReceiverID)
	if err != nil {
		writeError(w, h.log, "get or create conversation", err)
		return
	}
	summary, err := h.conversations.Summarize(r.Context(), conv, userID)
	if err != nil {
		writeError(w, h.log, "summarize conversation", err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{"conversation": summary})
}

func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathID(w, r, "conversation")
	if !ok {
		return
	}

	q := r.URL.Query()
	page, limit, errs := validator.ValidatePage(q.Get("page"), q.Get("limit"))
	if errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	result, err := h.messages.List(r.Context(), convID, userID, page, limit)
	if err != nil {
		writeError(w, h.log, "list messages", err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		"messages": result.Messages,
		"pagination": envelope{
			"page":    result.Page,
			"limit":   result.Limit,
			"hasMore": result.HasMore,
		},
	})
}

func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathID(w, r, "conversation")
	if !ok {
		return
	}

	var input service.SendInput
	if !decodeJSON(w, r, &input) {
		return
	}

	msg, err := h.messages.Send(r.Context(), convID, userID, input)
	if err != nil {
		writeError(w, h.log, "send message", err)
		return
	}
	countSent(h.metrics, msg.Type())

	writeJSON(w, http.StatusCreated, envelope{"message": msg})
}

func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathID(w, r, "conversation")
	if !ok {
		return
	}

	n, err := h.messages.MarkRead(r.Context(), convID, userID)
	if err != nil {
		writeError(w, h.log, "mark read", err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{"markedRead": n})
}
