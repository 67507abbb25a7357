package file

import (
	"context"
	"fmt"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/persistence"
)

type PageRepository struct {
	p *Persistence
}

func (r *PageRepository) store() collection[models.Page] {
	return newCollection[models.Page](r.p.root, "pages")
}

func (r *PageRepository) GetByID(_ context.Context, id string) (*models.Page, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	page, err := r.store().read(id)
	if err != nil {
		return nil, fmt.Errorf("page %s: %w", id, notFound(err, persistence.ErrPageNotFound))
	}

	return page, nil
}

func (r *PageRepository) Save(_ context.Context, page *models.Page) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.store().write(page.ID, page)
}

type AIConfigRepository struct {
	p *Persistence
}

func (r *AIConfigRepository) store() collection[models.AIConfig] {
	return newCollection[models.AIConfig](r.p.root, "ai_configs")
}

func (r *AIConfigRepository) GetByID(_ context.Context, id string) (*models.AIConfig, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	config, err := r.store().read(id)
	if err != nil {
		return nil, fmt.Errorf("ai config %s: %w", id, notFound(err, persistence.ErrAIConfigNotFound))
	}

	return config, nil
}

func (r *AIConfigRepository) Save(_ context.Context, config *models.AIConfig) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.store().write(config.ID, config)
}
