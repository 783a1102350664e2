package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Direction of a logged message relative to this system.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// DeliveryStatus is the final outcome of a send attempt.
type DeliveryStatus string

const (
	DeliveryStatusSent   DeliveryStatus = "sent"
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// ContentPreviewMaxRunes bounds the stored preview; full bodies never hit the log.
const ContentPreviewMaxRunes = 160

// DeliveryRecord is one row of the append-only delivery log. Records are never
// updated after insertion; the log doubles as the reminder cooldown source.
type DeliveryRecord struct {
	ID                uuid.UUID
	UserID            uuid.NullUUID
	Phone             string
	Direction         Direction
	MessageType       MessageType
	TemplateKey       sql.NullString
	ProviderName      sql.NullString
	ProviderMessageID sql.NullString
	Status            DeliveryStatus
	ContentPreview    string
	ErrorMessage      sql.NullString
	CreatedAt         time.Time
}

// Preview truncates content to ContentPreviewMaxRunes runes for logging.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= ContentPreviewMaxRunes {
		return content
	}
	return string(runes[:ContentPreviewMaxRunes])
}
