// Package persistence provides the storage abstraction for scenarios, conversations and messages.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/pagebot/pkg/models"
)

type Persistence interface {
	Scenarios() ScenarioRepository
	Conversations() ConversationRepository
	Messages() MessageRepository
	Customers() CustomerRepository
	Pages() PageRepository
	AIConfigs() AIConfigRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ScenarioRepository stores editable drafts and their immutable published versions.
type ScenarioRepository interface {
	// List returns the drafts of a page, or of every page when pageID is empty.
	List(ctx context.Context, pageID string) ([]*models.Scenario, error)
	GetByID(ctx context.Context, id string) (*models.Scenario, error)
	Save(ctx context.Context, scenario *models.Scenario) error
	Delete(ctx context.Context, id string) error

	// SaveVersion stores a snapshot. It fails with ErrVersionAlreadyExists if the version is taken.
	SaveVersion(ctx context.Context, version *models.ScenarioVersion) error
	Versions(ctx context.Context, scenarioID string) ([]*models.ScenarioVersion, error)
	Version(ctx context.Context, scenarioID string, version int) (*models.ScenarioVersion, error)
	LatestVersion(ctx context.Context, scenarioID string) (*models.ScenarioVersion, error)

	// PublishedForPage returns the latest published snapshot of every scenario of the page whose
	// draft is active. An empty pageID covers every page.
	PublishedForPage(ctx context.Context, pageID string) ([]*models.Scenario, error)
}

type ConversationRepository interface {
	GetByKey(ctx context.Context, pageID, psid string) (*models.Conversation, error)
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	Save(ctx context.Context, conversation *models.Conversation) error
	ListByPage(ctx context.Context, pageID string) ([]*models.Conversation, error)

	// ListAwaitingResume returns conversations suspended on a wait node whose resume time is before now.
	ListAwaitingResume(ctx context.Context, now time.Time) ([]*models.Conversation, error)
}

type MessageRepository interface {
	// Save inserts a message. Inbound messages are unique per (conversation, mid) and a second insert
	// fails with ErrDuplicateMessage.
	Save(ctx context.Context, message *models.Message) error
	UpdateStatus(ctx context.Context, id string, status models.MessageStatus, processedBy models.ProcessedBy) error

	// MarkSent records a delivered outbound message with the id the provider assigned to it.
	MarkSent(ctx context.Context, id, providerMessageID string) error
	FindByMID(ctx context.Context, conversationID, mid string) (*models.Message, error)
	FindReply(ctx context.Context, inboundID string) (*models.Message, error)

	// Recent returns at most limit messages of the conversation, oldest first.
	Recent(ctx context.Context, conversationID string, limit int) ([]*models.Message, error)
}

type CustomerRepository interface {
	GetByID(ctx context.Context, id string) (*models.Customer, error)
	FindByExternal(ctx context.Context, pageID, externalID string) (*models.Customer, error)
	Save(ctx context.Context, customer *models.Customer) error

	// AddTag appends tag to the customer's tags unless already present.
	AddTag(ctx context.Context, customerID, tag string) error
}

type PageRepository interface {
	GetByID(ctx context.Context, id string) (*models.Page, error)
	Save(ctx context.Context, page *models.Page) error
}

type AIConfigRepository interface {
	GetByID(ctx context.Context, id string) (*models.AIConfig, error)
	Save(ctx context.Context, config *models.AIConfig) error
}
