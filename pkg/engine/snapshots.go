package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/persistence"
)

// Snapshots reads published scenario versions.
type Snapshots struct {
	scenarios persistence.ScenarioRepository
}

func NewSnapshots(scenarios persistence.ScenarioRepository) *Snapshots {
	return &Snapshots{scenarios: scenarios}
}

// Published returns the latest published snapshot of the scenario.
func (s *Snapshots) Published(ctx context.Context, scenarioID string) (*models.Scenario, error) {
	version, err := s.scenarios.LatestVersion(ctx, scenarioID)
	if errors.Is(err, persistence.ErrVersionNotFound) {
		return nil, fmt.Errorf("%s: %w", scenarioID, ErrScenarioNotPublished)
	}

	if err != nil {
		return nil, err
	}

	return snapshot(version), nil
}

// Version returns a specific published snapshot. Running flows stay on the version they started on.
func (s *Snapshots) Version(ctx context.Context, scenarioID string, version int) (*models.Scenario, error) {
	stored, err := s.scenarios.Version(ctx, scenarioID, version)
	if err != nil {
		return nil, err
	}

	return snapshot(stored), nil
}

func snapshot(version *models.ScenarioVersion) *models.Scenario {
	scenario := version.Snapshot
	scenario.PublishedVersion = version.Version

	return scenario
}
