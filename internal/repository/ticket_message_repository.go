package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/supporthub/internal/domain"
)

func insertMessage(ctx context.Context, db dbtx, msg *domain.TicketMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	const query = `
        INSERT INTO ticket_messages (id, ticket_id, direction, author_type, from_address, subject, body,
            external_message_id, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	if _, err := db.Exec(ctx, query,
		msg.ID,
		msg.TicketID,
		msg.Direction,
		msg.AuthorType,
		msg.FromAddress,
		msg.Subject,
		msg.Body,
		msg.ExternalMessageID,
		msg.CreatedAt,
	); err != nil {
		return err
	}
	for i := range msg.Attachments {
		msg.Attachments[i].TicketMessageID = msg.ID
		if err := insertAttachment(ctx, db, &msg.Attachments[i]); err != nil {
			return err
		}
	}
	return nil
}

func listMessages(ctx context.Context, db dbtx, ticketID string) ([]domain.TicketMessage, error) {
	const query = `
        SELECT id, ticket_id, direction, author_type, from_address, subject, body, external_message_id, created_at
        FROM ticket_messages WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketMessage
	for rows.Next() {
		var msg domain.TicketMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.Direction,
			&msg.AuthorType,
			&msg.FromAddress,
			&msg.Subject,
			&msg.Body,
			&msg.ExternalMessageID,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		attachments, err := listAttachments(ctx, db, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Attachments = attachments
	}
	return result, nil
}
