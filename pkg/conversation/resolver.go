// Package conversation owns per-conversation bookkeeping: resolving the conversation of an inbound
// delivery, serializing work per conversation key and claiming message ids.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/persistence"
)

type ResolverOption func(*Resolver)

func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.now = now
	}
}

// Resolver finds or creates the conversation of a (page, sender) pair. Callers hold the
// conversation lock.
type Resolver struct {
	logger        *slog.Logger
	conversations persistence.ConversationRepository
	customers     persistence.CustomerRepository
	now           func() time.Time
}

func NewResolver(
	logger *slog.Logger,
	conversations persistence.ConversationRepository,
	customers persistence.CustomerRepository,
	opts ...ResolverOption,
) *Resolver {
	r := &Resolver{
		logger:        logger.With("module", "conversation_resolver"),
		conversations: conversations,
		customers:     customers,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve returns the conversation for pageID and psid and whether it was created by this call.
// A closed conversation is reopened as active. Pending conversations stay pending.
func (r *Resolver) Resolve(ctx context.Context, pageID, psid string) (*models.Conversation, bool, error) {
	conversation, err := r.conversations.GetByKey(ctx, pageID, psid)

	switch {
	case err == nil:
		if conversation.Context == nil {
			conversation.Context = make(map[string]any)
		}

		if conversation.Status == models.ConversationStatusClosed {
			conversation.Status = models.ConversationStatusActive
			conversation.LastUpdated = r.now().UTC()

			err = r.conversations.Save(ctx, conversation)
			if err != nil {
				return nil, false, fmt.Errorf("failed to reopen conversation %s: %w", conversation.ID, err)
			}

			r.logger.InfoContext(ctx, "conversation reopened", "conversation_id", conversation.ID)
		}

		return conversation, false, nil
	case !errors.Is(err, persistence.ErrConversationNotFound):
		return nil, false, fmt.Errorf("failed to load conversation %s: %w", models.ConversationKey(pageID, psid), err)
	}

	customer, err := r.customer(ctx, pageID, psid)
	if err != nil {
		return nil, false, err
	}

	now := r.now().UTC()
	conversation = &models.Conversation{
		ID:          models.NewID(),
		PageID:      pageID,
		PSID:        psid,
		CustomerID:  customer.ID,
		Status:      models.ConversationStatusActive,
		Context:     make(map[string]any),
		LastUpdated: now,
		CreatedAt:   now,
	}

	err = r.conversations.Save(ctx, conversation)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create conversation: %w", err)
	}

	r.logger.InfoContext(ctx, "conversation created",
		"conversation_id", conversation.ID,
		"page_id", pageID,
		"psid", psid)

	return conversation, true, nil
}

func (r *Resolver) customer(ctx context.Context, pageID, psid string) (*models.Customer, error) {
	customer, err := r.customers.FindByExternal(ctx, pageID, psid)
	if err == nil {
		return customer, nil
	}

	if !errors.Is(err, persistence.ErrCustomerNotFound) {
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}

	now := r.now().UTC()
	customer = &models.Customer{
		ID:         models.NewID(),
		PageID:     pageID,
		ExternalID: psid,
		Tags:       []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = r.customers.Save(ctx, customer)
	if err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	return customer, nil
}
