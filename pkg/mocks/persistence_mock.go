package mocks

import (
	"context"
	"time"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockCustomerRepository is a mock implementation of persistence.CustomerRepository interface.
type MockCustomerRepository struct {
	mock.Mock
}

func (m *MockCustomerRepository) GetByID(ctx context.Context, id string) (*models.Customer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Customer), args.Error(1)
}

func (m *MockCustomerRepository) FindByExternal(ctx context.Context, pageID, externalID string) (*models.Customer, error) {
	args := m.Called(ctx, pageID, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Customer), args.Error(1)
}

func (m *MockCustomerRepository) Save(ctx context.Context, customer *models.Customer) error {
	args := m.Called(ctx, customer)

	return args.Error(0)
}

func (m *MockCustomerRepository) AddTag(ctx context.Context, customerID, tag string) error {
	args := m.Called(ctx, customerID, tag)

	return args.Error(0)
}

// MockMessageRepository is a mock implementation of persistence.MessageRepository interface.
type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Save(ctx context.Context, message *models.Message) error {
	args := m.Called(ctx, message)

	return args.Error(0)
}

func (m *MockMessageRepository) UpdateStatus(
	ctx context.Context,
	id string,
	status models.MessageStatus,
	processedBy models.ProcessedBy,
) error {
	args := m.Called(ctx, id, status, processedBy)

	return args.Error(0)
}

func (m *MockMessageRepository) MarkSent(ctx context.Context, id, providerMessageID string) error {
	args := m.Called(ctx, id, providerMessageID)

	return args.Error(0)
}

func (m *MockMessageRepository) FindByMID(ctx context.Context, conversationID, mid string) (*models.Message, error) {
	args := m.Called(ctx, conversationID, mid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockMessageRepository) FindReply(ctx context.Context, inboundID string) (*models.Message, error) {
	args := m.Called(ctx, inboundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockMessageRepository) Recent(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Message), args.Error(1)
}

// MockAIConfigRepository is a mock implementation of persistence.AIConfigRepository interface.
type MockAIConfigRepository struct {
	mock.Mock
}

func (m *MockAIConfigRepository) GetByID(ctx context.Context, id string) (*models.AIConfig, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.AIConfig), args.Error(1)
}

func (m *MockAIConfigRepository) Save(ctx context.Context, config *models.AIConfig) error {
	args := m.Called(ctx, config)

	return args.Error(0)
}

// MockPageRepository is a mock implementation of persistence.PageRepository interface.
type MockPageRepository struct {
	mock.Mock
}

func (m *MockPageRepository) GetByID(ctx context.Context, id string) (*models.Page, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Page), args.Error(1)
}

func (m *MockPageRepository) Save(ctx context.Context, page *models.Page) error {
	args := m.Called(ctx, page)

	return args.Error(0)
}

// MockConversationRepository is a mock implementation of persistence.ConversationRepository interface.
type MockConversationRepository struct {
	mock.Mock
}

func (m *MockConversationRepository) GetByKey(ctx context.Context, pageID, psid string) (*models.Conversation, error) {
	args := m.Called(ctx, pageID, psid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockConversationRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockConversationRepository) Save(ctx context.Context, conversation *models.Conversation) error {
	args := m.Called(ctx, conversation)

	return args.Error(0)
}

func (m *MockConversationRepository) ListByPage(ctx context.Context, pageID string) ([]*models.Conversation, error) {
	args := m.Called(ctx, pageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Conversation), args.Error(1)
}

func (m *MockConversationRepository) ListAwaitingResume(ctx context.Context, now time.Time) ([]*models.Conversation, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Conversation), args.Error(1)
}

// MockScenarioRepository is a mock implementation of persistence.ScenarioRepository interface.
type MockScenarioRepository struct {
	mock.Mock
}

func (m *MockScenarioRepository) List(ctx context.Context, pageID string) ([]*models.Scenario, error) {
	args := m.Called(ctx, pageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Scenario), args.Error(1)
}

func (m *MockScenarioRepository) GetByID(ctx context.Context, id string) (*models.Scenario, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Scenario), args.Error(1)
}

func (m *MockScenarioRepository) Save(ctx context.Context, scenario *models.Scenario) error {
	args := m.Called(ctx, scenario)

	return args.Error(0)
}

func (m *MockScenarioRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockScenarioRepository) SaveVersion(ctx context.Context, version *models.ScenarioVersion) error {
	args := m.Called(ctx, version)

	return args.Error(0)
}

func (m *MockScenarioRepository) Versions(ctx context.Context, scenarioID string) ([]*models.ScenarioVersion, error) {
	args := m.Called(ctx, scenarioID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ScenarioVersion), args.Error(1)
}

func (m *MockScenarioRepository) Version(ctx context.Context, scenarioID string, version int) (*models.ScenarioVersion, error) {
	args := m.Called(ctx, scenarioID, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ScenarioVersion), args.Error(1)
}

func (m *MockScenarioRepository) LatestVersion(ctx context.Context, scenarioID string) (*models.ScenarioVersion, error) {
	args := m.Called(ctx, scenarioID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ScenarioVersion), args.Error(1)
}

func (m *MockScenarioRepository) PublishedForPage(ctx context.Context, pageID string) ([]*models.Scenario, error) {
	args := m.Called(ctx, pageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Scenario), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence interface. Repository mocks are
// returned as configured.
type MockPersistence struct {
	mock.Mock

	ScenarioRepository     *MockScenarioRepository
	ConversationRepository *MockConversationRepository
	MessageRepository      *MockMessageRepository
	CustomerRepository     *MockCustomerRepository
	PageRepository         *MockPageRepository
	AIConfigRepository     *MockAIConfigRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		ScenarioRepository:     &MockScenarioRepository{},
		ConversationRepository: &MockConversationRepository{},
		MessageRepository:      &MockMessageRepository{},
		CustomerRepository:     &MockCustomerRepository{},
		PageRepository:         &MockPageRepository{},
		AIConfigRepository:     &MockAIConfigRepository{},
	}
}

func (m *MockPersistence) Scenarios() persistence.ScenarioRepository {
	return m.ScenarioRepository
}

func (m *MockPersistence) Conversations() persistence.ConversationRepository {
	return m.ConversationRepository
}

func (m *MockPersistence) Messages() persistence.MessageRepository {
	return m.MessageRepository
}

func (m *MockPersistence) Customers() persistence.CustomerRepository {
	return m.CustomerRepository
}

func (m *MockPersistence) Pages() persistence.PageRepository {
	return m.PageRepository
}

func (m *MockPersistence) AIConfigs() persistence.AIConfigRepository {
	return m.AIConfigRepository
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

var _ persistence.Persistence = (*MockPersistence)(nil)
