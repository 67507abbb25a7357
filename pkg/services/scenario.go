package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/persistence"
)

// ErrScenarioNotFound is returned when a scenario is not found.
var ErrScenarioNotFound = persistence.ErrScenarioNotFound

type Scenario struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	now         func() time.Time
}

// NewScenario creates a new scenario draft service.
func NewScenario(logger *slog.Logger, persistence persistence.Persistence) *Scenario {
	return &Scenario{
		logger:      logger.With("module", "scenario-service"),
		persistence: persistence,
		now:         time.Now,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Scenario) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns the drafts of a page.
func (s *Scenario) List(ctx context.Context, pageID string) ([]*models.Scenario, error) {
	pageID = strings.TrimSpace(pageID)
	if pageID == "" {
		return nil, NewValidationError("List", "PAGE_REQUIRED", "page_id is required", ErrPageRequired)
	}

	scenarios, err := s.persistence.Scenarios().List(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}

	return scenarios, nil
}

// FetchByID retrieves a draft by its ID.
func (s *Scenario) FetchByID(ctx context.Context, id string) (*models.Scenario, error) {
	return s.persistence.Scenarios().GetByID(ctx, id)
}

// Create stores a new draft. Missing child ids are generated.
func (s *Scenario) Create(ctx context.Context, scenario *models.Scenario) (*models.Scenario, error) {
	err := validateDraft("Create", scenario)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	scenario.ID = models.NewID()
	scenario.PublishedVersion = 0
	scenario.CreatedAt = now
	scenario.UpdatedAt = now

	if scenario.Status == "" {
		scenario.Status = models.ScenarioStatusActive
	}

	assignIDs(scenario, now)

	err = s.persistence.Scenarios().Save(ctx, scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario: %w", err)
	}

	s.logger.InfoContext(ctx, "scenario created", "scenario_id", scenario.ID, "page_id", scenario.PageID)

	return scenario, nil
}

// Update replaces a draft. The page, creation time and published version are kept.
func (s *Scenario) Update(ctx context.Context, scenarioID string, scenario *models.Scenario) (*models.Scenario, error) {
	existing, err := s.persistence.Scenarios().GetByID(ctx, scenarioID)
	if err != nil {
		return nil, err
	}

	if scenario != nil && scenario.PageID == "" {
		scenario.PageID = existing.PageID
	}

	err = validateDraft("Update", scenario)
	if err != nil {
		return nil, err
	}

	if scenario.PageID != existing.PageID {
		return nil, &ServiceError{Op: "Update", Code: "PAGE_MISMATCH", Message: "a scenario cannot move to another page", Err: ErrPageMismatch}
	}

	now := s.now().UTC()
	scenario.ID = scenarioID
	scenario.CreatedAt = existing.CreatedAt
	scenario.PublishedVersion = existing.PublishedVersion
	scenario.UpdatedAt = now

	if scenario.Status == "" {
		scenario.Status = existing.Status
	}

	assignIDs(scenario, now)

	err = s.persistence.Scenarios().Save(ctx, scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to update scenario: %w", err)
	}

	return scenario, nil
}

// SetStatus activates or deactivates a draft. Only active scenarios with a published version run.
func (s *Scenario) SetStatus(ctx context.Context, scenarioID string, status models.ScenarioStatus) (*models.Scenario, error) {
	if status != models.ScenarioStatusActive && status != models.ScenarioStatusInactive {
		return nil, NewValidationError("SetStatus", "INVALID_STATUS", fmt.Sprintf("invalid status '%s'", status), ErrInvalidRequest)
	}

	scenario, err := s.persistence.Scenarios().GetByID(ctx, scenarioID)
	if err != nil {
		return nil, err
	}

	scenario.Status = status
	scenario.UpdatedAt = s.now().UTC()

	err = s.persistence.Scenarios().Save(ctx, scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to update scenario status: %w", err)
	}

	return scenario, nil
}

// Delete removes a draft and its versions.
func (s *Scenario) Delete(ctx context.Context, scenarioID string) error {
	_, err := s.persistence.Scenarios().GetByID(ctx, scenarioID)
	if err != nil {
		return err
	}

	err = s.persistence.Scenarios().Delete(ctx, scenarioID)
	if err != nil {
		return fmt.Errorf("failed to delete scenario: %w", err)
	}

	s.logger.InfoContext(ctx, "scenario deleted", "scenario_id", scenarioID)

	return nil
}

// validateDraft checks only what a draft needs to be stored. Publishing validates the rest.
func validateDraft(op string, scenario *models.Scenario) error {
	if scenario == nil {
		return ErrScenarioNil
	}

	scenario.Name = strings.TrimSpace(scenario.Name)
	scenario.PageID = strings.TrimSpace(scenario.PageID)

	if scenario.Name == "" {
		return NewValidationError(op, "NAME_REQUIRED", "scenario name is required", ErrScenarioNameRequired)
	}

	if scenario.PageID == "" {
		return NewValidationError(op, "PAGE_REQUIRED", "scenario page is required", ErrPageRequired)
	}

	if scenario.Status != "" && scenario.Status != models.ScenarioStatusActive && scenario.Status != models.ScenarioStatusInactive {
		return NewValidationError(op, "INVALID_STATUS", fmt.Sprintf("invalid status '%s'", scenario.Status), ErrInvalidRequest)
	}

	return nil
}

func assignIDs(scenario *models.Scenario, now time.Time) {
	for _, trigger := range scenario.Triggers {
		if trigger.ID == "" {
			trigger.ID = models.NewID()
		}

		if trigger.CreatedAt.IsZero() {
			trigger.CreatedAt = now
		}
	}

	for _, sub := range scenario.SubScripts {
		if sub.ID == "" {
			sub.ID = models.NewID()
		}

		if sub.CreatedAt.IsZero() {
			sub.CreatedAt = now
		}

		sub.ScenarioID = scenario.ID
	}

	for _, node := range scenario.Nodes {
		if node.ID == "" {
			node.ID = models.NewID()
		}
	}

	for _, link := range scenario.Links {
		if link.ID == "" {
			link.ID = models.NewID()
		}
	}

	for _, variable := range scenario.Variables {
		variable.ScenarioID = scenario.ID
	}
}
