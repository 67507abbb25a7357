package file

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/persistence"
)

// ScenarioRepository keeps drafts in scenarios/<id>.json and snapshots in
// scenario_versions/<id>/<version>.json.
type ScenarioRepository struct {
	p *Persistence
}

func (r *ScenarioRepository) drafts() collection[models.Scenario] {
	return newCollection[models.Scenario](r.p.root, "scenarios")
}

func (r *ScenarioRepository) versions(scenarioID string) collection[models.ScenarioVersion] {
	return newCollection[models.ScenarioVersion](r.p.root, "scenario_versions", scenarioID)
}

func (r *ScenarioRepository) List(_ context.Context, pageID string) ([]*models.Scenario, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.list(pageID)
}

func (r *ScenarioRepository) list(pageID string) ([]*models.Scenario, error) {
	all, err := r.drafts().all()
	if err != nil {
		return nil, err
	}

	scenarios := make([]*models.Scenario, 0, len(all))

	for _, scenario := range all {
		if pageID == "" || scenario.PageID == pageID {
			scenarios = append(scenarios, scenario)
		}
	}

	slices.SortFunc(scenarios, func(a, b *models.Scenario) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})

	return scenarios, nil
}

func (r *ScenarioRepository) GetByID(_ context.Context, id string) (*models.Scenario, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	scenario, err := r.drafts().read(id)
	if err != nil {
		return nil, persistence.NewScenarioError("GetByID", id, notFound(err, persistence.ErrScenarioNotFound))
	}

	return scenario, nil
}

// Save stores the draft, setting CreatedAt on first save and UpdatedAt on every save.
func (r *ScenarioRepository) Save(_ context.Context, scenario *models.Scenario) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	now := time.Now().UTC()
	if scenario.CreatedAt.IsZero() {
		scenario.CreatedAt = now
	}

	scenario.UpdatedAt = now

	err := r.drafts().write(scenario.ID, scenario)
	if err != nil {
		return persistence.NewScenarioError("Save", scenario.ID, err)
	}

	return nil
}

// Delete removes the draft and every published version.
func (r *ScenarioRepository) Delete(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	err := r.drafts().remove(id)
	if err != nil {
		return persistence.NewScenarioError("Delete", id, notFound(err, persistence.ErrScenarioNotFound))
	}

	err = os.RemoveAll(r.versions(id).dir)
	if err != nil {
		return persistence.NewScenarioError("Delete", id, err)
	}

	return nil
}

func (r *ScenarioRepository) SaveVersion(_ context.Context, version *models.ScenarioVersion) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	versions := r.versions(version.ScenarioID)
	key := strconv.Itoa(version.Version)

	_, err := versions.read(key)
	if err == nil {
		return persistence.NewVersionError("SaveVersion", version.ScenarioID, version.Version, persistence.ErrVersionAlreadyExists)
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return persistence.NewVersionError("SaveVersion", version.ScenarioID, version.Version, err)
	}

	err = versions.write(key, version)
	if err != nil {
		return persistence.NewVersionError("SaveVersion", version.ScenarioID, version.Version, err)
	}

	return nil
}

// Versions returns every version of the scenario, newest first.
func (r *ScenarioRepository) Versions(_ context.Context, scenarioID string) ([]*models.ScenarioVersion, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.listVersions(scenarioID)
}

func (r *ScenarioRepository) listVersions(scenarioID string) ([]*models.ScenarioVersion, error) {
	if err := validateID(scenarioID); err != nil {
		return nil, err
	}

	versions, err := r.versions(scenarioID).all()
	if err != nil {
		return nil, persistence.NewScenarioError("Versions", scenarioID, err)
	}

	slices.SortFunc(versions, func(a, b *models.ScenarioVersion) int {
		return cmp.Compare(b.Version, a.Version)
	})

	return versions, nil
}

func (r *ScenarioRepository) Version(_ context.Context, scenarioID string, version int) (*models.ScenarioVersion, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	stored, err := r.versions(scenarioID).read(strconv.Itoa(version))
	if err != nil {
		return nil, persistence.NewVersionError("Version", scenarioID, version, notFound(err, persistence.ErrVersionNotFound))
	}

	return stored, nil
}

func (r *ScenarioRepository) LatestVersion(_ context.Context, scenarioID string) (*models.ScenarioVersion, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.latest(scenarioID)
}

func (r *ScenarioRepository) latest(scenarioID string) (*models.ScenarioVersion, error) {
	versions, err := r.listVersions(scenarioID)
	if err != nil {
		return nil, err
	}

	if len(versions) == 0 {
		return nil, persistence.NewScenarioError("LatestVersion", scenarioID, persistence.ErrVersionNotFound)
	}

	return versions[0], nil
}

func (r *ScenarioRepository) PublishedForPage(_ context.Context, pageID string) ([]*models.Scenario, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	drafts, err := r.list(pageID)
	if err != nil {
		return nil, err
	}

	snapshots := make([]*models.Scenario, 0, len(drafts))

	for _, draft := range drafts {
		if !draft.IsActive() {
			continue
		}

		version, err := r.latest(draft.ID)
		if errors.Is(err, persistence.ErrVersionNotFound) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("failed to load published version of %s: %w", draft.ID, err)
		}

		snapshot := version.Snapshot
		if snapshot == nil {
			continue
		}

		snapshot.PublishedVersion = version.Version
		snapshots = append(snapshots, snapshot)
	}

	return snapshots, nil
}
