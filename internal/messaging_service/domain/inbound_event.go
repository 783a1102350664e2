package domain

import "time"

// InboundEventType tags what the user actually did.
type InboundEventType string

const (
	InboundEventText      InboundEventType = "text"
	InboundEventButton    InboundEventType = "button"
	InboundEventListReply InboundEventType = "list_reply"
	InboundEventMedia     InboundEventType = "media"
)

// InboundEvent is a provider-neutral inbound message, produced by an adapter's
// ParseWebhook. Phone is already normalized.
type InboundEvent struct {
	ProviderName string
	Type         InboundEventType
	Phone        string
	Text         string
	ReplyID      string // button id or list row id
	MediaURL     string
	Timestamp    time.Time
}
