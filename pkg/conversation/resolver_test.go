package conversation

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/pagebot/pkg/mocks"
	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newTestResolver() (*Resolver, *mocks.MockConversationRepository, *mocks.MockCustomerRepository) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	conversations := &mocks.MockConversationRepository{}
	customers := &mocks.MockCustomerRepository{}

	resolver := NewResolver(logger, conversations, customers, WithClock(func() time.Time { return fixedNow }))

	return resolver, conversations, customers
}

func TestResolver_CreatesConversationAndCustomer(t *testing.T) {
	t.Parallel()

	resolver, conversations, customers := newTestResolver()
	ctx := context.Background()

	conversations.On("GetByKey", ctx, "p1", "u1").Return(nil, persistence.ErrConversationNotFound)
	customers.On("FindByExternal", ctx, "p1", "u1").Return(nil, persistence.ErrCustomerNotFound)
	customers.On("Save", ctx, mock.MatchedBy(func(c *models.Customer) bool {
		return c.PageID == "p1" && c.ExternalID == "u1" && c.ID != ""
	})).Return(nil)
	conversations.On("Save", ctx, mock.AnythingOfType("*models.Conversation")).Return(nil)

	conversation, created, err := resolver.Resolve(ctx, "p1", "u1")
	require.NoError(t, err)

	assert.True(t, created)
	assert.NotEmpty(t, conversation.ID)
	assert.NotEmpty(t, conversation.CustomerID)
	assert.Equal(t, models.ConversationStatusActive, conversation.Status)
	assert.Equal(t, fixedNow, conversation.CreatedAt)
	assert.NotNil(t, conversation.Context)
	conversations.AssertExpectations(t)
	customers.AssertExpectations(t)
}

func TestResolver_ReusesKnownCustomer(t *testing.T) {
	t.Parallel()

	resolver, conversations, customers := newTestResolver()
	ctx := context.Background()

	conversations.On("GetByKey", ctx, "p1", "u1").Return(nil, persistence.ErrConversationNotFound)
	customers.On("FindByExternal", ctx, "p1", "u1").Return(&models.Customer{ID: "cust-1"}, nil)
	conversations.On("Save", ctx, mock.AnythingOfType("*models.Conversation")).Return(nil)

	conversation, created, err := resolver.Resolve(ctx, "p1", "u1")
	require.NoError(t, err)

	assert.True(t, created)
	assert.Equal(t, "cust-1", conversation.CustomerID)
	customers.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestResolver_ExistingConversation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   models.ConversationStatus
		expected models.ConversationStatus
		saved    bool
	}{
		{name: "active stays active", status: models.ConversationStatusActive, expected: models.ConversationStatusActive},
		{name: "pending stays pending", status: models.ConversationStatusPending, expected: models.ConversationStatusPending},
		{name: "closed reopens", status: models.ConversationStatusClosed, expected: models.ConversationStatusActive, saved: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resolver, conversations, _ := newTestResolver()
			ctx := context.Background()

			existing := &models.Conversation{ID: "c1", PageID: "p1", PSID: "u1", Status: tt.status}
			conversations.On("GetByKey", ctx, "p1", "u1").Return(existing, nil)
			conversations.On("Save", ctx, existing).Return(nil)

			conversation, created, err := resolver.Resolve(ctx, "p1", "u1")
			require.NoError(t, err)

			assert.False(t, created)
			assert.Same(t, existing, conversation)
			assert.Equal(t, tt.expected, conversation.Status)
			assert.NotNil(t, conversation.Context)

			if tt.saved {
				conversations.AssertCalled(t, "Save", ctx, existing)
			} else {
				conversations.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestResolver_StorageFailure(t *testing.T) {
	t.Parallel()

	resolver, conversations, _ := newTestResolver()
	ctx := context.Background()
	storageErr := errors.New("connection refused")

	conversations.On("GetByKey", ctx, "p1", "u1").Return(nil, storageErr)

	_, _, err := resolver.Resolve(ctx, "p1", "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, storageErr)
}
