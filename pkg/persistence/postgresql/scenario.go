package postgresql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/persistence"
)

// ScenarioRepository stores each draft as a JSONB document and each published version as an
// immutable snapshot row.
type ScenarioRepository struct {
	repository
}

func (r *ScenarioRepository) List(ctx context.Context, pageID string) ([]*models.Scenario, error) {
	query := `
		SELECT definition
		FROM scenarios
		WHERE deleted_at IS NULL AND ($1 = '' OR page_id = $1)
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, pageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenarios: %w", err)
	}
	defer r.closeRows(ctx, rows)

	scenarios := make([]*models.Scenario, 0)

	for rows.Next() {
		scenario, err := scanScenario(rows)
		if err != nil {
			return nil, err
		}

		scenarios = append(scenarios, scenario)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating scenarios: %w", err)
	}

	return scenarios, nil
}

func (r *ScenarioRepository) GetByID(ctx context.Context, id string) (*models.Scenario, error) {
	row := r.db.QueryRowContext(ctx, `SELECT definition FROM scenarios WHERE id = $1 AND deleted_at IS NULL`, id)

	scenario, err := scanScenario(row)
	if err != nil {
		return nil, persistence.NewScenarioError("GetByID", id, notFound(err, persistence.ErrScenarioNotFound))
	}

	return scenario, nil
}

// Save upserts the draft, setting CreatedAt on first save and UpdatedAt on every save.
func (r *ScenarioRepository) Save(ctx context.Context, scenario *models.Scenario) error {
	now := time.Now().UTC()
	if scenario.CreatedAt.IsZero() {
		scenario.CreatedAt = now
	}

	scenario.UpdatedAt = now

	if scenario.ID == "" {
		scenario.ID = models.NewID()
	}

	definition, err := json.Marshal(scenario)
	if err != nil {
		return persistence.NewScenarioError("Save", scenario.ID, err)
	}

	query := `
		INSERT INTO scenarios (id, page_id, status, definition, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			page_id = EXCLUDED.page_id
		  , status = EXCLUDED.status
		  , definition = EXCLUDED.definition
		  , updated_at = EXCLUDED.updated_at
		  , deleted_at = NULL
	`

	_, err = r.db.ExecContext(ctx, query,
		scenario.ID, scenario.PageID, scenario.Status, definition, scenario.CreatedAt, scenario.UpdatedAt)
	if err != nil {
		return persistence.NewScenarioError("Save", scenario.ID, err)
	}

	return nil
}

// Delete soft deletes the draft. Published versions stay for audit.
func (r *ScenarioRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE scenarios SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return persistence.NewScenarioError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewScenarioError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewScenarioError("Delete", id, persistence.ErrScenarioNotFound)
	}

	return nil
}

func (r *ScenarioRepository) SaveVersion(ctx context.Context, version *models.ScenarioVersion) error {
	snapshot, err := json.Marshal(version.Snapshot)
	if err != nil {
		return persistence.NewVersionError("SaveVersion", version.ScenarioID, version.Version, err)
	}

	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scenario_versions (scenario_id, version, created_by, snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, version.ScenarioID, version.Version, version.CreatedBy, snapshot, version.CreatedAt)
	if isUniqueViolation(err) {
		return persistence.NewVersionError("SaveVersion", version.ScenarioID, version.Version, persistence.ErrVersionAlreadyExists)
	}

	if err != nil {
		return persistence.NewVersionError("SaveVersion", version.ScenarioID, version.Version, err)
	}

	return nil
}

const versionColumns = `scenario_id, version, created_by, snapshot, created_at`

// Versions returns every version of the scenario, newest first.
func (r *ScenarioRepository) Versions(ctx context.Context, scenarioID string) ([]*models.ScenarioVersion, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM scenario_versions WHERE scenario_id = $1 ORDER BY version DESC`, scenarioID)
	if err != nil {
		return nil, persistence.NewScenarioError("Versions", scenarioID, err)
	}
	defer r.closeRows(ctx, rows)

	versions := make([]*models.ScenarioVersion, 0)

	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, persistence.NewScenarioError("Versions", scenarioID, err)
		}

		versions = append(versions, version)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewScenarioError("Versions", scenarioID, err)
	}

	return versions, nil
}

func (r *ScenarioRepository) Version(ctx context.Context, scenarioID string, version int) (*models.ScenarioVersion, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM scenario_versions WHERE scenario_id = $1 AND version = $2`, scenarioID, version)

	stored, err := scanVersion(row)
	if err != nil {
		return nil, persistence.NewVersionError("Version", scenarioID, version, notFound(err, persistence.ErrVersionNotFound))
	}

	return stored, nil
}

func (r *ScenarioRepository) LatestVersion(ctx context.Context, scenarioID string) (*models.ScenarioVersion, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM scenario_versions WHERE scenario_id = $1 ORDER BY version DESC LIMIT 1`, scenarioID)

	stored, err := scanVersion(row)
	if err != nil {
		return nil, persistence.NewScenarioError("LatestVersion", scenarioID, notFound(err, persistence.ErrVersionNotFound))
	}

	return stored, nil
}

func (r *ScenarioRepository) PublishedForPage(ctx context.Context, pageID string) ([]*models.Scenario, error) {
	query := `
		SELECT v.version, v.snapshot
		FROM scenarios s
		JOIN LATERAL (
			SELECT version, snapshot
			FROM scenario_versions
			WHERE scenario_id = s.id
			ORDER BY version DESC
			LIMIT 1
		) v ON true
		WHERE ($1 = '' OR s.page_id = $1) AND s.status = 'active' AND s.deleted_at IS NULL
		ORDER BY s.created_at, s.id
	`

	rows, err := r.db.QueryContext(ctx, query, pageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query published scenarios: %w", err)
	}
	defer r.closeRows(ctx, rows)

	snapshots := make([]*models.Scenario, 0)

	for rows.Next() {
		var (
			version int
			data    []byte
		)

		err := rows.Scan(&version, &data)
		if err != nil {
			return nil, fmt.Errorf("failed to scan published scenario: %w", err)
		}

		var snapshot models.Scenario

		err = json.Unmarshal(data, &snapshot)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal published scenario: %w", err)
		}

		snapshot.PublishedVersion = version
		snapshots = append(snapshots, &snapshot)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating published scenarios: %w", err)
	}

	return snapshots, nil
}

func scanScenario(row scanner) (*models.Scenario, error) {
	var data []byte

	err := row.Scan(&data)
	if err != nil {
		return nil, err
	}

	var scenario models.Scenario

	err = json.Unmarshal(data, &scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal scenario: %w", err)
	}

	return &scenario, nil
}

func scanVersion(row scanner) (*models.ScenarioVersion, error) {
	var (
		version models.ScenarioVersion
		data    []byte
	)

	err := row.Scan(&version.ScenarioID, &version.Version, &version.CreatedBy, &data, &version.CreatedAt)
	if err != nil {
		return nil, err
	}

	var snapshot models.Scenario

	err = json.Unmarshal(data, &snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	version.Snapshot = &snapshot

	return &version, nil
}
