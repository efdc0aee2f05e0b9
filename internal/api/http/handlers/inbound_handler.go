package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/supporthub/internal/api/dto"
	"github.com/spec-kit/supporthub/internal/domain"
	"github.com/spec-kit/supporthub/internal/mail"
	"github.com/spec-kit/supporthub/internal/service"
	apperrors "github.com/spec-kit/supporthub/pkg/util/errorutil"
)

// InboundHandler exposes the mail relay webhook and the ingestion log.
type InboundHandler struct {
	service *service.InboundService
}

// NewInboundHandler constructs handler.
func NewInboundHandler(inboundService *service.InboundService) *InboundHandler {
	return &InboundHandler{service: inboundService}
}

// Push POST /inbound/:mailboxId.
func (h *InboundHandler) Push(c *fiber.Ctx) error {
	var req dto.InboundMailRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	mailboxID := c.Params("mailboxId")
	msg := mail.Message{
		ExternalID: req.ExternalID,
		From:       req.From,
		FromName:   req.FromName,
		To:         req.To,
		Subject:    req.Subject,
		Body:       req.Body,
		HTMLBody:   req.HTMLBody,
		Headers:    req.Headers,
	}
	if req.ReceivedAt != nil {
		msg.ReceivedAt = req.ReceivedAt.UTC()
	} else {
		msg.ReceivedAt = time.Now().UTC()
	}
	for _, att := range req.Attachments {
		msg.Attachments = append(msg.Attachments, mail.Attachment{
			FileName:    att.FileName,
			ContentType: att.ContentType,
			Content:     att.Content,
		})
	}

	queued, err := h.service.Accept(c.UserContext(), mailboxID, msg)
	if err != nil {
		return err
	}
	status := http.StatusAccepted
	if !queued {
		status = http.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.InboundAcceptedResponse{
		MailboxID:  mailboxID,
		ExternalID: msg.ExternalID,
		Queued:     queued,
	}})
}

// ListRecent GET /tenants/:tenantId/inbound.
func (h *InboundHandler) ListRecent(c *fiber.Ctx) error {
	records, err := h.service.Recent(c.UserContext(), c.Params("tenantId"), parseInt(c.Query("limit"), 50))
	if err != nil {
		return err
	}
	items := make([]dto.InboundRecordResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, inboundRecordResponse(rec))
	}
	return c.JSON(fiber.Map{"data": items})
}

func inboundRecordResponse(rec domain.InboundMessageRecord) dto.InboundRecordResponse {
	return dto.InboundRecordResponse{
		ID:                rec.ID,
		MailboxID:         rec.MailboxID,
		ExternalMessageID: rec.ExternalMessageID,
		TicketID:          rec.TicketID,
		Outcome:           string(rec.Outcome),
		Reason:            rec.Reason,
		ProcessedAt:       rec.ProcessedAt,
	}
}
