package domain

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/vedran77/riffchat/internal/apperr"
)

type MessageType string

const (
	MessageTypeText    MessageType = "text"
	MessageTypeImage   MessageType = "image"
	MessageTypeAudio   MessageType = "audio"
	MessageTypeFile    MessageType = "file"
	MessageTypeListing MessageType = "listing"
)

const (
	MaxTextLength     = 1000
	MaxAttachmentSize = 25 << 20
)

func (t MessageType) IsMedia() bool {
	return t == MessageTypeImage || t == MessageTypeAudio || t == MessageTypeFile
}

func (t MessageType) Valid() bool {
	return t == MessageTypeText || t == MessageTypeListing || t.IsMedia()
}

// Body is the payload of a message. Exactly one of TextBody, MediaBody or
// ListingBody; the unexported method keeps the set closed.
type Body interface {
	Type() MessageType
	body()
}

type TextBody struct {
	Text string
}

func (TextBody) Type() MessageType { return MessageTypeText }
func (TextBody) body()             {}

type Attachment struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
}

// MediaBody carries an already uploaded file. Kind is image, audio or file.
type MediaBody struct {
	Kind       MessageType
	Attachment Attachment
}

func (b MediaBody) Type() MessageType { return b.Kind }
func (MediaBody) body()               {}

// ListingBody shares a marketplace listing by reference.
type ListingBody struct {
	ListingID uuid.UUID
}

func (ListingBody) Type() MessageType { return MessageTypeListing }
func (ListingBody) body()             {}

// BodyInput is the request shape of a message body. messageType defaults to text.
type BodyInput struct {
	MessageType MessageType `json:"messageType"`
	Content     *string     `json:"content,omitempty"`
	Attachment  *Attachment `json:"attachment,omitempty"`
	ListingID   *uuid.UUID  `json:"listingId,omitempty"`
}

func invalid(msg string) error {
	return apperr.New(apperr.InvalidInput, msg)
}

// Parse validates the input and returns the matching body variant.
func (in BodyInput) Parse() (Body, error) {
	t := in.MessageType
	if t == "" {
		t = MessageTypeText
	}
	if !t.Valid() {
		return nil, invalid("messageType must be one of text, image, audio, file, listing")
	}

	hasContent := in.Content != nil && *in.Content != ""
	switch {
	case t == MessageTypeText:
		if in.Attachment != nil || in.ListingID != nil {
			return nil, invalid("text messages carry content only")
		}
		if in.Content == nil {
			return nil, invalid("content is required")
		}
		return NewTextBody(*in.Content)

	case t.IsMedia():
		if hasContent || in.ListingID != nil {
			return nil, invalid(string(t) + " messages carry an attachment only")
		}
		if in.Attachment == nil {
			return nil, invalid("attachment is required")
		}
		return NewMediaBody(t, *in.Attachment)

	default:
		if hasContent || in.Attachment != nil {
			return nil, invalid("listing messages carry a listingId only")
		}
		if in.ListingID == nil || *in.ListingID == uuid.Nil {
			return nil, invalid("listingId is required")
		}
		return ListingBody{ListingID: *in.ListingID}, nil
	}
}

func NewTextBody(text string) (TextBody, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return TextBody{}, invalid("content is required")
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return TextBody{}, invalid("content must be at most 1000 characters")
	}
	return TextBody{Text: text}, nil
}

func NewMediaBody(kind MessageType, a Attachment) (MediaBody, error) {
	if !kind.IsMedia() {
		return MediaBody{}, invalid("not a media message type")
	}
	a.Filename = strings.TrimSpace(a.Filename)
	a.MimeType = strings.ToLower(strings.TrimSpace(a.MimeType))
	a.URL = strings.TrimSpace(a.URL)
	switch {
	case a.Filename == "":
		return MediaBody{}, invalid("attachment.filename is required")
	case a.URL == "":
		return MediaBody{}, invalid("attachment.url is required")
	case a.MimeType == "":
		return MediaBody{}, invalid("attachment.mimeType is required")
	case a.Size <= 0 || a.Size > MaxAttachmentSize:
		return MediaBody{}, invalid("attachment.size must be between 1 byte and 25 MiB")
	case kind == MessageTypeImage && !strings.HasPrefix(a.MimeType, "image/"):
		return MediaBody{}, invalid("image messages need an image/* attachment")
	case kind == MessageTypeAudio && !strings.HasPrefix(a.MimeType, "audio/"):
		return MediaBody{}, invalid("audio messages need an audio/* attachment")
	}
	if a.OriginalName == "" {
		a.OriginalName = a.Filename
	}
	return MediaBody{Kind: kind, Attachment: a}, nil
}

// BodyFromParts rebuilds a stored body. It checks shape only; stored rows
// were validated when they were written.
func BodyFromParts(t MessageType, content *string, attachment *Attachment, listingID *uuid.UUID) (Body, error) {
	switch {
	case t == MessageTypeText && content != nil:
		return TextBody{Text: *content}, nil
	case t.IsMedia() && attachment != nil:
		return MediaBody{Kind: t, Attachment: *attachment}, nil
	case t == MessageTypeListing && listingID != nil:
		return ListingBody{ListingID: *listingID}, nil
	}
	return nil, apperr.New(apperr.Internal, "message body does not match its type "+string(t))
}

type Message struct {
	ID              uuid.UUID
	ConversationID  uuid.UUID
	SenderID        uuid.UUID
	Body            Body
	ReplyTo         *uuid.UUID
	IsRead          bool
	ReadAt          *time.Time
	IsDeleted       bool
	DeletedAt       *time.Time
	DeletedBy       *uuid.UUID
	IsEdited        bool
	EditedAt        *time.Time
	OriginalMessage *string
	CreatedAt       time.Time
}

func (m *Message) Type() MessageType {
	if m.Body == nil {
		return ""
	}
	return m.Body.Type()
}

// Text returns the text of a text message and "" otherwise.
func (m *Message) Text() string {
	if b, ok := m.Body.(TextBody); ok {
		return b.Text
	}
	return ""
}

// Edit replaces the text of a text message. The first edit keeps the
// original text in OriginalMessage.
func (m *Message) Edit(text string, now time.Time) error {
	current, ok := m.Body.(TextBody)
	if !ok {
		return invalid("only text messages can be edited")
	}
	if m.IsDeleted {
		return invalid("deleted messages cannot be edited")
	}
	body, err := NewTextBody(text)
	if err != nil {
		return err
	}
	if m.OriginalMessage == nil {
		orig := current.Text
		m.OriginalMessage = &orig
	}
	m.Body = body
	m.IsEdited = true
	m.EditedAt = &now
	return nil
}

type messageWire struct {
	ID              uuid.UUID   `json:"id"`
	ConversationID  uuid.UUID   `json:"conversation"`
	SenderID        uuid.UUID   `json:"sender"`
	MessageType     MessageType `json:"messageType"`
	Content         *string     `json:"content,omitempty"`
	Attachment      *Attachment `json:"attachment,omitempty"`
	ListingID       *uuid.UUID  `json:"listingId,omitempty"`
	ReplyTo         *uuid.UUID  `json:"replyTo,omitempty"`
	IsRead          bool        `json:"isRead"`
	ReadAt          *time.Time  `json:"readAt,omitempty"`
	IsDeleted       bool        `json:"isDeleted"`
	DeletedAt       *time.Time  `json:"deletedAt,omitempty"`
	DeletedBy       *uuid.UUID  `json:"deletedBy,omitempty"`
	IsEdited        bool        `json:"isEdited"`
	EditedAt        *time.Time  `json:"editedAt,omitempty"`
	OriginalMessage *string     `json:"originalMessage,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	w := messageWire{
		ID:              m.ID,
		ConversationID:  m.ConversationID,
		SenderID:        m.SenderID,
		MessageType:     m.Type(),
		ReplyTo:         m.ReplyTo,
		IsRead:          m.IsRead,
		ReadAt:          m.ReadAt,
		IsDeleted:       m.IsDeleted,
		DeletedAt:       m.DeletedAt,
		DeletedBy:       m.DeletedBy,
		IsEdited:        m.IsEdited,
		EditedAt:        m.EditedAt,
		OriginalMessage: m.OriginalMessage,
		CreatedAt:       m.CreatedAt,
	}
	switch b := m.Body.(type) {
	case TextBody:
		w.Content = &b.Text
	case MediaBody:
		w.Attachment = &b.Attachment
	case ListingBody:
		w.ListingID = &b.ListingID
	}
	return json.Marshal(w)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	body, err := BodyFromParts(w.MessageType, w.Content, w.Attachment, w.ListingID)
	if err != nil {
		return err
	}
	*m = Message{
		ID:              w.ID,
		ConversationID:  w.ConversationID,
		SenderID:        w.SenderID,
		Body:            body,
		ReplyTo:         w.ReplyTo,
		IsRead:          w.IsRead,
		ReadAt:          w.ReadAt,
		IsDeleted:       w.IsDeleted,
		DeletedAt:       w.DeletedAt,
		DeletedBy:       w.DeletedBy,
		IsEdited:        w.IsEdited,
		EditedAt:        w.EditedAt,
		OriginalMessage: w.OriginalMessage,
		CreatedAt:       w.CreatedAt,
	}
	return nil
}
