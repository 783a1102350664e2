package domain

import "github.com/google/uuid"

// MessageType identifies the outbound payload shape.
type MessageType string

const (
	MessageTypeText        MessageType = "text"
	MessageTypeInteractive MessageType = "interactive"
	MessageTypeImage       MessageType = "image"
)

// ActionType is the tag of the InteractiveContent action union.
type ActionType string

const (
	ActionNone    ActionType = "none"
	ActionButtons ActionType = "buttons"
	ActionList    ActionType = "list"
)

// MaxQuickReplyButtons is the WhatsApp hard limit for quick-reply buttons.
const MaxQuickReplyButtons = 3

// MaxRowsPerSection is the WhatsApp hard limit for rows in a list section.
const MaxRowsPerSection = 10

// Button is a quick-reply button. ID is what comes back in the webhook when
// the user taps it, so ids must stay stable across releases.
type Button struct {
	ID    string
	Label string
}

// ListRow is a selectable row inside a list section.
type ListRow struct {
	ID          string
	Title       string
	Description string
}

// ListSection groups rows under an optional title.
type ListSection struct {
	Title string
	Rows  []ListRow
}

// InteractiveContent is a rich message body with at most one action block.
// Action selects which of Buttons/Sections is meaningful; the other stays nil.
type InteractiveContent struct {
	Body     string
	Footer   string
	Action   ActionType
	Buttons  []Button
	Sections []ListSection
}

// OutboundMessage is a fully resolved message ready for a provider adapter.
type OutboundMessage struct {
	RecipientPhone string
	UserID         uuid.NullUUID
	Type           MessageType
	Text           string // body for text messages, caption for images
	Interactive    *InteractiveContent
	ImageURL       string
	TemplateKey    string // empty for ad-hoc sends
}

// SendResult reports the outcome of a provider send attempt.
type SendResult struct {
	Success           bool
	ProviderName      string
	ProviderMessageID string
	ErrorMessage      string
}
