package dto

import "time"

// InboundMailRequest is a message pushed by the mail relay.
type InboundMailRequest struct {
	ExternalID  string                  `json:"external_id"`
	From        string                  `json:"from"`
	FromName    string                  `json:"from_name"`
	To          []string                `json:"to"`
	Subject     string                  `json:"subject"`
	Body        string                  `json:"body"`
	HTMLBody    string                  `json:"html_body"`
	Headers     map[string]string       `json:"headers"`
	ReceivedAt  *time.Time              `json:"received_at"`
	Attachments []InboundAttachmentBody `json:"attachments"`
}

// InboundAttachmentBody carries base64 content (encoding/json decodes []byte from base64).
type InboundAttachmentBody struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

// InboundAcceptedResponse acknowledges a push.
type InboundAcceptedResponse struct {
	MailboxID  string `json:"mailbox_id"`
	ExternalID string `json:"external_id"`
	Queued     bool   `json:"queued"`
}

// InboundRecordResponse is one ingestion log entry.
type InboundRecordResponse struct {
	ID                string    `json:"id"`
	MailboxID         string    `json:"mailbox_id"`
	ExternalMessageID string    `json:"external_message_id"`
	TicketID          *string   `json:"ticket_id"`
	Outcome           string    `json:"outcome"`
	Reason            string    `json:"reason,omitempty"`
	ProcessedAt       time.Time `json:"processed_at"`
}
