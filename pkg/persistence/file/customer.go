package file

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/persistence"
)

type CustomerRepository struct {
	p *Persistence
}

func (r *CustomerRepository) store() collection[models.Customer] {
	return newCollection[models.Customer](r.p.root, "customers")
}

func (r *CustomerRepository) GetByID(_ context.Context, id string) (*models.Customer, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	customer, err := r.store().read(id)
	if err != nil {
		return nil, fmt.Errorf("customer %s: %w", id, notFound(err, persistence.ErrCustomerNotFound))
	}

	return customer, nil
}

func (r *CustomerRepository) FindByExternal(_ context.Context, pageID, externalID string) (*models.Customer, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	all, err := r.store().all()
	if err != nil {
		return nil, err
	}

	for _, customer := range all {
		if customer.PageID == pageID && customer.ExternalID == externalID {
			return customer, nil
		}
	}

	return nil, fmt.Errorf("customer %s: %w", externalID, persistence.ErrCustomerNotFound)
}

func (r *CustomerRepository) Save(_ context.Context, customer *models.Customer) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.store().write(customer.ID, customer)
}

func (r *CustomerRepository) AddTag(_ context.Context, customerID, tag string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	customer, err := r.store().read(customerID)
	if err != nil {
		return fmt.Errorf("customer %s: %w", customerID, notFound(err, persistence.ErrCustomerNotFound))
	}

	if customer.HasTag(tag) {
		return nil
	}

	customer.Tags = append(customer.Tags, tag)
	customer.UpdatedAt = time.Now().UTC()

	return r.store().write(customerID, customer)
}
