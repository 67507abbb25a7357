package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/persistence"
)

type ConversationRepository struct {
	repository
}

const conversationColumns = `
	id, page_id, psid, COALESCE(customer_id, ''), status, last_message, last_updated, flow_state, context, created_at
`

func (r *ConversationRepository) GetByKey(ctx context.Context, pageID, psid string) (*models.Conversation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE page_id = $1 AND psid = $2`, pageID, psid)

	conversation, err := scanConversation(row)
	if err != nil {
		key := models.ConversationKey(pageID, psid)

		return nil, persistence.NewConversationError("GetByKey", key, notFound(err, persistence.ErrConversationNotFound))
	}

	return conversation, nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)

	conversation, err := scanConversation(row)
	if err != nil {
		return nil, persistence.NewConversationError("GetByID", id, notFound(err, persistence.ErrConversationNotFound))
	}

	return conversation, nil
}

func (r *ConversationRepository) Save(ctx context.Context, conversation *models.Conversation) error {
	var flowState sql.NullString

	if conversation.FlowState != nil {
		data, err := json.Marshal(conversation.FlowState)
		if err != nil {
			return persistence.NewConversationError("Save", conversation.ID, err)
		}

		flowState = sql.NullString{String: string(data), Valid: true}
	}

	variables := conversation.Context
	if variables == nil {
		variables = map[string]any{}
	}

	bindings, err := json.Marshal(variables)
	if err != nil {
		return persistence.NewConversationError("Save", conversation.ID, err)
	}

	var customerID sql.NullString
	if conversation.CustomerID != "" {
		customerID = sql.NullString{String: conversation.CustomerID, Valid: true}
	}

	query := `
		INSERT INTO conversations
			(id, page_id, psid, customer_id, status, last_message, last_updated, flow_state, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id
		  , status = EXCLUDED.status
		  , last_message = EXCLUDED.last_message
		  , last_updated = EXCLUDED.last_updated
		  , flow_state = EXCLUDED.flow_state
		  , context = EXCLUDED.context
	`

	_, err = r.db.ExecContext(ctx, query,
		conversation.ID,
		conversation.PageID,
		conversation.PSID,
		customerID,
		conversation.Status,
		conversation.LastMessage,
		conversation.LastUpdated,
		flowState,
		bindings,
		conversation.CreatedAt,
	)
	if err != nil {
		return persistence.NewConversationError("Save", conversation.ID, err)
	}

	return nil
}

func (r *ConversationRepository) ListByPage(ctx context.Context, pageID string) ([]*models.Conversation, error) {
	return r.query(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE page_id = $1 ORDER BY last_updated DESC`, pageID)
}

func (r *ConversationRepository) ListAwaitingResume(ctx context.Context, now time.Time) ([]*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE flow_state->>'awaiting_input_for' = 'wait'
		  AND (flow_state->>'resume_at')::timestamptz <= $1
		ORDER BY (flow_state->>'resume_at')::timestamptz
	`

	return r.query(ctx, query, now)
}

func (r *ConversationRepository) query(ctx context.Context, query string, args ...any) ([]*models.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer r.closeRows(ctx, rows)

	conversations := make([]*models.Conversation, 0)

	for rows.Next() {
		conversation, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}

		conversations = append(conversations, conversation)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}

	return conversations, nil
}

func scanConversation(row scanner) (*models.Conversation, error) {
	var (
		conversation models.Conversation
		flowState    []byte
		variables    []byte
	)

	err := row.Scan(
		&conversation.ID,
		&conversation.PageID,
		&conversation.PSID,
		&conversation.CustomerID,
		&conversation.Status,
		&conversation.LastMessage,
		&conversation.LastUpdated,
		&flowState,
		&variables,
		&conversation.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(flowState) > 0 {
		err = json.Unmarshal(flowState, &conversation.FlowState)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal flow state: %w", err)
		}
	}

	conversation.Context = make(map[string]any)

	if len(variables) > 0 {
		err = json.Unmarshal(variables, &conversation.Context)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal context: %w", err)
		}
	}

	return &conversation, nil
}
