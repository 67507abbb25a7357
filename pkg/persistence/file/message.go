package file

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/persistence"
)

type MessageRepository struct {
	p *Persistence
}

func (r *MessageRepository) store() collection[models.Message] {
	return newCollection[models.Message](r.p.root, "messages")
}

func (r *MessageRepository) Save(_ context.Context, message *models.Message) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if message.Direction == models.DirectionIn && message.MID != "" {
		existing, err := r.findByMID(message.ConversationID, message.MID)
		if err != nil {
			return err
		}

		if existing != nil && existing.ID != message.ID {
			return fmt.Errorf("message %s: %w", message.MID, persistence.ErrDuplicateMessage)
		}
	}

	err := r.store().write(message.ID, message)
	if err != nil {
		return fmt.Errorf("failed to save message %s: %w", message.ID, err)
	}

	return nil
}

func (r *MessageRepository) UpdateStatus(
	_ context.Context,
	id string,
	status models.MessageStatus,
	processedBy models.ProcessedBy,
) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	message, err := r.store().read(id)
	if err != nil {
		return fmt.Errorf("message %s: %w", id, notFound(err, persistence.ErrMessageNotFound))
	}

	message.Status = status
	if processedBy != "" {
		message.ProcessedBy = processedBy
	}

	return r.store().write(id, message)
}

func (r *MessageRepository) MarkSent(_ context.Context, id, providerMessageID string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	message, err := r.store().read(id)
	if err != nil {
		return fmt.Errorf("message %s: %w", id, notFound(err, persistence.ErrMessageNotFound))
	}

	message.Status = models.MessageStatusSent
	message.ProviderMessageID = providerMessageID

	return r.store().write(id, message)
}

func (r *MessageRepository) FindByMID(_ context.Context, conversationID, mid string) (*models.Message, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	message, err := r.findByMID(conversationID, mid)
	if err != nil {
		return nil, err
	}

	if message == nil {
		return nil, fmt.Errorf("message %s: %w", mid, persistence.ErrMessageNotFound)
	}

	return message, nil
}

func (r *MessageRepository) findByMID(conversationID, mid string) (*models.Message, error) {
	all, err := r.store().all()
	if err != nil {
		return nil, err
	}

	for _, message := range all {
		if message.ConversationID == conversationID && message.Direction == models.DirectionIn && message.MID == mid {
			return message, nil
		}
	}

	return nil, nil
}

func (r *MessageRepository) FindReply(_ context.Context, inboundID string) (*models.Message, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	all, err := r.store().all()
	if err != nil {
		return nil, err
	}

	for _, message := range all {
		if message.Direction == models.DirectionOut && message.ReplyToID == inboundID {
			return message, nil
		}
	}

	return nil, fmt.Errorf("reply to %s: %w", inboundID, persistence.ErrMessageNotFound)
}

func (r *MessageRepository) Recent(_ context.Context, conversationID string, limit int) ([]*models.Message, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	all, err := r.store().all()
	if err != nil {
		return nil, err
	}

	messages := make([]*models.Message, 0)

	for _, message := range all {
		if message.ConversationID == conversationID {
			messages = append(messages, message)
		}
	}

	slices.SortFunc(messages, func(a, b *models.Message) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	return messages, nil
}
