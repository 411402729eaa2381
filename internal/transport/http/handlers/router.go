package handlers

import "net/http"

// Router holds everything the HTTP surface serves. Gateway and Metrics are
// optional.
type Router struct {
	Auth          *AuthHandler
	Conversations *ConversationHandler
	Messages      *MessageHandler
	Presence      *PresenceHandler
	Health        *HealthHandler
	Gateway       http.Handler
	Metrics       http.Handler

	RequireAuth func(http.Handler) http.Handler
	// SendLimit wraps the message-creating routes. It runs after RequireAuth.
	SendLimit func(http.Handler) http.Handler
}

func (rt Router) Mux() *http.ServeMux {
	auth := rt.RequireAuth
	send := func(h http.HandlerFunc) http.Handler {
		if rt.SendLimit == nil {
			return auth(h)
		}
		return auth(rt.SendLimit(h))
	}
	protected := func(h http.HandlerFunc) http.Handler { return auth(h) }

	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", rt.Health.Health)
	mux.HandleFunc("POST /api/v1/auth/register", rt.Auth.Register)
	mux.HandleFunc("POST /api/v1/auth/login", rt.Auth.Login)
	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics)
	}
	if rt.Gateway != nil {
		mux.Handle("GET /ws", rt.Gateway)
	}

	// Protected - Conversations
	mux.Handle("GET /api/v1/conversations", protected(rt.Conversations.List))
	mux.Handle("POST /api/v1/conversations", protected(rt.Conversations.GetOrCreate))
	mux.Handle("GET /api/v1/conversations/{id}/messages", protected(rt.Conversations.ListMessages))
	mux.Handle("POST /api/v1/conversations/{id}/messages", send(rt.Conversations.SendMessage))
	mux.Handle("PATCH /api/v1/conversations/{id}/read", protected(rt.Conversations.MarkRead))

	// Protected - Messages
	mux.Handle("POST /api/v1/messages", send(rt.Messages.SendToUser))
	mux.Handle("PATCH /api/v1/messages/{id}", protected(rt.Messages.Edit))
	mux.Handle("DELETE /api/v1/messages/{id}", protected(rt.Messages.Delete))

	// Protected - Presence
	mux.Handle("GET /api/v1/users/{id}/presence", protected(rt.Presence.Get))

	return mux
}
