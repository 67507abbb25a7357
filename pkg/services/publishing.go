package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/pagebot/pkg/eventbus"
	"github.com/dukex/pagebot/pkg/events"
	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/persistence"
)

// Publishing turns drafts into immutable versions and restores old versions into drafts.
type Publishing struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	validator   *Validator
	publisher   eventbus.EventPublisher
	now         func() time.Time
}

type PublishingOption func(*Publishing)

// WithEventPublisher emits scenario.published after every publish.
func WithEventPublisher(publisher eventbus.EventPublisher) PublishingOption {
	return func(p *Publishing) {
		p.publisher = publisher
	}
}

func WithPublishingClock(now func() time.Time) PublishingOption {
	return func(p *Publishing) {
		p.now = now
	}
}

// NewPublishing creates a new scenario publishing service.
func NewPublishing(logger *slog.Logger, persistence persistence.Persistence, opts ...PublishingOption) *Publishing {
	p := &Publishing{
		logger:      logger.With("module", "publishing"),
		persistence: persistence,
		validator:   NewValidator(),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Validate reports every problem that blocks publishing the draft.
func (p *Publishing) Validate(ctx context.Context, scenarioID string) error {
	scenario, err := p.persistence.Scenarios().GetByID(ctx, scenarioID)
	if err != nil {
		return err
	}

	return p.validator.Validate(scenario)
}

// Publish validates the draft and stores it as the next version.
func (p *Publishing) Publish(ctx context.Context, scenarioID, createdBy string) (*models.ScenarioVersion, error) {
	repository := p.persistence.Scenarios()

	draft, err := repository.GetByID(ctx, scenarioID)
	if err != nil {
		return nil, err
	}

	err = p.validator.Validate(draft)
	if err != nil {
		return nil, fmt.Errorf("scenario validation failed: %w", err)
	}

	next := 1

	latest, err := repository.LatestVersion(ctx, scenarioID)

	switch {
	case err == nil:
		next = latest.Version + 1
	case !persistence.IsVersionNotFound(err):
		return nil, fmt.Errorf("failed to read latest version: %w", err)
	}

	snapshot, err := draft.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to copy draft: %w", err)
	}

	snapshot.PublishedVersion = next

	version := &models.ScenarioVersion{
		ScenarioID: scenarioID,
		Version:    next,
		CreatedBy:  createdBy,
		CreatedAt:  p.now().UTC(),
		Snapshot:   snapshot,
	}

	err = repository.SaveVersion(ctx, version)
	if errors.Is(err, persistence.ErrVersionAlreadyExists) {
		return nil, &ServiceError{
			Op:      "Publish",
			Code:    "VERSION_CONFLICT",
			Message: fmt.Sprintf("version %d of %s was published concurrently", next, scenarioID),
			Err:     ErrVersionConflict,
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to publish scenario: %w", err)
	}

	draft.PublishedVersion = next

	err = repository.Save(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("failed to record published version: %w", err)
	}

	p.logger.InfoContext(ctx, "scenario published",
		"scenario_id", scenarioID,
		"version", next,
		"created_by", createdBy)

	p.announce(ctx, draft.PageID, version)

	return version, nil
}

func (p *Publishing) announce(ctx context.Context, pageID string, version *models.ScenarioVersion) {
	if p.publisher == nil {
		return
	}

	err := p.publisher.Publish(ctx, version.ScenarioID, events.ScenarioPublished{
		BaseEvent:  events.NewBaseEvent(events.ScenarioPublishedEvent, pageID),
		ScenarioID: version.ScenarioID,
		Version:    version.Version,
		CreatedBy:  version.CreatedBy,
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to publish scenario event", "scenario_id", version.ScenarioID, "error", err)
	}
}

// ListVersions returns the published versions of a scenario, newest first.
func (p *Publishing) ListVersions(ctx context.Context, scenarioID string) ([]*models.ScenarioVersion, error) {
	_, err := p.persistence.Scenarios().GetByID(ctx, scenarioID)
	if err != nil {
		return nil, err
	}

	return p.persistence.Scenarios().Versions(ctx, scenarioID)
}

// GetVersion returns one published version.
func (p *Publishing) GetVersion(ctx context.Context, scenarioID string, version int) (*models.ScenarioVersion, error) {
	return p.persistence.Scenarios().Version(ctx, scenarioID, version)
}

// Restore copies a published snapshot back into the draft. The draft keeps its status and its latest
// published version; publishing again is a separate step.
func (p *Publishing) Restore(ctx context.Context, scenarioID string, version int) (*models.Scenario, error) {
	repository := p.persistence.Scenarios()

	draft, err := repository.GetByID(ctx, scenarioID)
	if err != nil {
		return nil, err
	}

	stored, err := repository.Version(ctx, scenarioID, version)
	if err != nil {
		return nil, err
	}

	restored, err := stored.Snapshot.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to copy version %d: %w", version, err)
	}

	restored.ID = draft.ID
	restored.PageID = draft.PageID
	restored.Status = draft.Status
	restored.PublishedVersion = draft.PublishedVersion
	restored.CreatedAt = draft.CreatedAt
	restored.UpdatedAt = p.now().UTC()

	err = repository.Save(ctx, restored)
	if err != nil {
		return nil, fmt.Errorf("failed to restore version %d: %w", version, err)
	}

	p.logger.InfoContext(ctx, "scenario restored", "scenario_id", scenarioID, "version", version)

	return restored, nil
}
