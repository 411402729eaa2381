package service

import "github.com/vedran77/riffchat/internal/apperr"

var (
	ErrUserNotFound         = apperr.New(apperr.NotFound, "user not found")
	ErrConversationNotFound = apperr.New(apperr.NotFound, "conversation not found")
	ErrMessageNotFound      = apperr.New(apperr.NotFound, "message not found")
	ErrNotParticipant       = apperr.New(apperr.Forbidden, "you are not a participant of this conversation")
	ErrNotMessageOwner      = apperr.New(apperr.Forbidden, "only the message sender can perform this action")
	ErrCannotMessageSelf    = apperr.New(apperr.InvalidInput, "cannot start a conversation with yourself")
	ErrInvalidReply         = apperr.New(apperr.InvalidInput, "replyTo must reference a message in this conversation")
	ErrMessageDeleted       = apperr.New(apperr.InvalidInput, "deleted messages cannot be edited")

	ErrEmailTaken    = apperr.New(apperr.Conflict, "email already taken")
	ErrUsernameTaken = apperr.New(apperr.Conflict, "username already taken")
	ErrInvalidCreds  = apperr.New(apperr.AuthFailed, "invalid email or password")
)
