package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/persistence"
)

type MessageRepository struct {
	repository
}

const messageColumns = `
	id, conversation_id, direction, sender_type, text, attachments, processed_by, status, mid,
	reply_to_id, provider_message_id, created_at
`

// Save inserts the message. The partial unique index on (conversation_id, mid) rejects a second
// inbound delivery of the same mid.
func (r *MessageRepository) Save(ctx context.Context, message *models.Message) error {
	var attachments sql.NullString

	if len(message.Attachments) > 0 {
		data, err := json.Marshal(message.Attachments)
		if err != nil {
			return persistence.NewConversationError("SaveMessage", message.ConversationID, err)
		}

		attachments = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO messages (` + messageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		message.ID,
		message.ConversationID,
		message.Direction,
		message.SenderType,
		message.Text,
		attachments,
		message.ProcessedBy,
		message.Status,
		message.MID,
		message.ReplyToID,
		message.ProviderMessageID,
		message.CreatedAt,
	)
	if isUniqueViolation(err) {
		return persistence.NewConversationError("SaveMessage", message.ConversationID,
			fmt.Errorf("message %s: %w", message.MID, persistence.ErrDuplicateMessage))
	}

	if err != nil {
		return persistence.NewConversationError("SaveMessage", message.ConversationID, err)
	}

	return nil
}

func (r *MessageRepository) UpdateStatus(
	ctx context.Context,
	id string,
	status models.MessageStatus,
	processedBy models.ProcessedBy,
) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET status = $2, processed_by = CASE WHEN $3::text = '' THEN processed_by ELSE $3::text END
		WHERE id = $1
	`, id, status, processedBy)
	if err != nil {
		return fmt.Errorf("failed to update message %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update message %s: %w", id, err)
	}

	if affected == 0 {
		return fmt.Errorf("message %s: %w", id, persistence.ErrMessageNotFound)
	}

	return nil
}

func (r *MessageRepository) MarkSent(ctx context.Context, id, providerMessageID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE messages SET status = $2, provider_message_id = $3 WHERE id = $1
	`, id, models.MessageStatusSent, providerMessageID)
	if err != nil {
		return fmt.Errorf("failed to mark message %s sent: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark message %s sent: %w", id, err)
	}

	if affected == 0 {
		return fmt.Errorf("message %s: %w", id, persistence.ErrMessageNotFound)
	}

	return nil
}

func (r *MessageRepository) FindByMID(ctx context.Context, conversationID, mid string) (*models.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1 AND mid = $2 AND direction = 'in'
	`, conversationID, mid)

	message, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", mid, notFound(err, persistence.ErrMessageNotFound))
	}

	return message, nil
}

func (r *MessageRepository) FindReply(ctx context.Context, inboundID string) (*models.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE reply_to_id = $1 AND direction = 'out'
		ORDER BY created_at
		LIMIT 1
	`, inboundID)

	message, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("reply to %s: %w", inboundID, notFound(err, persistence.ErrMessageNotFound))
	}

	return message, nil
}

func (r *MessageRepository) Recent(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT * FROM (
			SELECT `+messageColumns+`
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at, id
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer r.closeRows(ctx, rows)

	messages := make([]*models.Message, 0, limit)

	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		messages = append(messages, message)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

func scanMessage(row scanner) (*models.Message, error) {
	var (
		message     models.Message
		attachments []byte
	)

	err := row.Scan(
		&message.ID,
		&message.ConversationID,
		&message.Direction,
		&message.SenderType,
		&message.Text,
		&attachments,
		&message.ProcessedBy,
		&message.Status,
		&message.MID,
		&message.ReplyToID,
		&message.ProviderMessageID,
		&message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(attachments) > 0 {
		err = json.Unmarshal(attachments, &message.Attachments)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal attachments: %w", err)
		}
	}

	return &message, nil
}
