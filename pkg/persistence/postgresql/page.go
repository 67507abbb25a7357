package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/persistence"
)

type PageRepository struct {
	repository
}

func (r *PageRepository) GetByID(ctx context.Context, id string) (*models.Page, error) {
	var (
		page     models.Page
		configID sql.NullString
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, access_token, ai_enabled, default_ai_config_id, created_at
		FROM pages
		WHERE id = $1
	`, id).Scan(&page.ID, &page.Name, &page.AccessToken, &page.AIEnabled, &configID, &page.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("page %s: %w", id, notFound(err, persistence.ErrPageNotFound))
	}

	page.DefaultAIConfigID = configID.String

	return &page, nil
}

func (r *PageRepository) Save(ctx context.Context, page *models.Page) error {
	if page.CreatedAt.IsZero() {
		page.CreatedAt = time.Now().UTC()
	}

	var configID sql.NullString
	if page.DefaultAIConfigID != "" {
		configID = sql.NullString{String: page.DefaultAIConfigID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pages (id, name, access_token, ai_enabled, default_ai_config_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , access_token = EXCLUDED.access_token
		  , ai_enabled = EXCLUDED.ai_enabled
		  , default_ai_config_id = EXCLUDED.default_ai_config_id
	`, page.ID, page.Name, page.AccessToken, page.AIEnabled, configID, page.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save page %s: %w", page.ID, err)
	}

	return nil
}

type AIConfigRepository struct {
	repository
}

func (r *AIConfigRepository) GetByID(ctx context.Context, id string) (*models.AIConfig, error) {
	var config models.AIConfig

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, model, system_prompt, temperature, max_tokens, max_history_messages, created_at
		FROM ai_configs
		WHERE id = $1
	`, id).Scan(
		&config.ID,
		&config.Name,
		&config.Model,
		&config.SystemPrompt,
		&config.Temperature,
		&config.MaxTokens,
		&config.MaxHistoryMessages,
		&config.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ai config %s: %w", id, notFound(err, persistence.ErrAIConfigNotFound))
	}

	return &config, nil
}

func (r *AIConfigRepository) Save(ctx context.Context, config *models.AIConfig) error {
	if config.CreatedAt.IsZero() {
		config.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ai_configs (id, name, model, system_prompt, temperature, max_tokens, max_history_messages, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , model = EXCLUDED.model
		  , system_prompt = EXCLUDED.system_prompt
		  , temperature = EXCLUDED.temperature
		  , max_tokens = EXCLUDED.max_tokens
		  , max_history_messages = EXCLUDED.max_history_messages
	`, config.ID, config.Name, config.Model, config.SystemPrompt, config.Temperature,
		config.MaxTokens, config.MaxHistoryMessages, config.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save ai config %s: %w", config.ID, err)
	}

	return nil
}
