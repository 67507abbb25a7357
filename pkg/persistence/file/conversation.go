package file

import (
	"context"
	"time"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/persistence"
)

type ConversationRepository struct {
	p *Persistence
}

func (r *ConversationRepository) store() collection[models.Conversation] {
	return newCollection[models.Conversation](r.p.root, "conversations")
}

func (r *ConversationRepository) GetByKey(_ context.Context, pageID, psid string) (*models.Conversation, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	all, err := r.store().all()
	if err != nil {
		return nil, err
	}

	for _, conversation := range all {
		if conversation.PageID == pageID && conversation.PSID == psid {
			return conversation, nil
		}
	}

	return nil, persistence.NewConversationError("GetByKey", models.ConversationKey(pageID, psid), persistence.ErrConversationNotFound)
}

func (r *ConversationRepository) GetByID(_ context.Context, id string) (*models.Conversation, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	conversation, err := r.store().read(id)
	if err != nil {
		return nil, persistence.NewConversationError("GetByID", id, notFound(err, persistence.ErrConversationNotFound))
	}

	return conversation, nil
}

func (r *ConversationRepository) Save(_ context.Context, conversation *models.Conversation) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	err := r.store().write(conversation.ID, conversation)
	if err != nil {
		return persistence.NewConversationError("Save", conversation.ID, err)
	}

	return nil
}

func (r *ConversationRepository) ListByPage(_ context.Context, pageID string) ([]*models.Conversation, error) {
	return r.filter(func(c *models.Conversation) bool {
		return c.PageID == pageID
	})
}

func (r *ConversationRepository) ListAwaitingResume(_ context.Context, now time.Time) ([]*models.Conversation, error) {
	return r.filter(func(c *models.Conversation) bool {
		state := c.FlowState

		return state != nil &&
			state.AwaitingInputFor == models.AwaitWait &&
			state.ResumeAt != nil &&
			!state.ResumeAt.After(now)
	})
}

func (r *ConversationRepository) filter(keep func(*models.Conversation) bool) ([]*models.Conversation, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	all, err := r.store().all()
	if err != nil {
		return nil, err
	}

	conversations := make([]*models.Conversation, 0)

	for _, conversation := range all {
		if keep(conversation) {
			conversations = append(conversations, conversation)
		}
	}

	return conversations, nil
}
