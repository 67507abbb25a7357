package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/pagebot/pkg/conversation"
	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/persistence"
)

const conversationLockTTL = 10 * time.Second

// Conversation changes the status of conversations on behalf of human agents. It takes the same
// per-conversation lock as the engine.
type Conversation struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	locker      conversation.Locker
	now         func() time.Time
}

func NewConversation(logger *slog.Logger, persistence persistence.Persistence, locker conversation.Locker) *Conversation {
	return &Conversation{
		logger:      logger.With("module", "conversation-service"),
		persistence: persistence,
		locker:      locker,
		now:         time.Now,
	}
}

// Reactivate ends an agent handoff so automation answers the conversation again.
func (c *Conversation) Reactivate(ctx context.Context, conversationID string) (*models.Conversation, error) {
	return c.transition(ctx, conversationID, models.ConversationStatusActive, func(conv *models.Conversation) error {
		if conv.Status == models.ConversationStatusActive {
			return &ServiceError{
				Op:      "Reactivate",
				Code:    "CONVERSATION_ACTIVE",
				Message: fmt.Sprintf("conversation %s is already active", conv.ID),
				Err:     ErrConversationOpen,
			}
		}

		return nil
	})
}

// Close closes a conversation. The next inbound message reopens it as active.
func (c *Conversation) Close(ctx context.Context, conversationID string) (*models.Conversation, error) {
	return c.transition(ctx, conversationID, models.ConversationStatusClosed, nil)
}

func (c *Conversation) transition(
	ctx context.Context,
	conversationID string,
	status models.ConversationStatus,
	check func(*models.Conversation) error,
) (*models.Conversation, error) {
	conv, err := c.persistence.Conversations().GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	release, err := c.locker.Acquire(ctx, conv.Key(), conversationLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to lock conversation %s: %w", conversationID, err)
	}
	defer release()

	conv, err = c.persistence.Conversations().GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if check != nil {
		err = check(conv)
		if err != nil {
			return nil, err
		}
	}

	previous := conv.Status
	conv.Status = status
	conv.FlowState = nil
	conv.LastUpdated = c.now().UTC()

	err = c.persistence.Conversations().Save(ctx, conv)
	if err != nil {
		return nil, fmt.Errorf("failed to save conversation %s: %w", conversationID, err)
	}

	c.logger.InfoContext(ctx, "conversation status changed",
		"conversation_id", conv.ID,
		"from", previous,
		"to", status)

	return conv, nil
}
