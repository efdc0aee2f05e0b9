package domain

import "time"

// MessageAuthorType indicates who authored a message.
type MessageAuthorType string

const (
	AuthorTypeRequester MessageAuthorType = "REQUESTER"
	AuthorTypeAgent     MessageAuthorType = "AGENT"
	AuthorTypeSystem    MessageAuthorType = "SYSTEM"
)

// MessageDirection tells inbound customer mail from outbound replies.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "INBOUND"
	DirectionOutbound MessageDirection = "OUTBOUND"
)

// TicketMessage captures communications in a ticket thread.
type TicketMessage struct {
	ID                string
	TicketID          string
	Direction         MessageDirection
	AuthorType        MessageAuthorType
	FromAddress       string
	Subject           string
	Body              string
	ExternalMessageID string
	Attachments       []AttachmentReference
	CreatedAt         time.Time
}

// AttachmentReference stores metadata for ticket message attachments.
type AttachmentReference struct {
	ID              string
	TicketMessageID string
	StorageKey      string
	FileName        string
	MimeType        string
	SizeBytes       int64
	CreatedAt       time.Time
}
