package postgresql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/persistence"
)

type CustomerRepository struct {
	repository
}

const customerColumns = `id, page_id, external_id, name, tags, created_at, updated_at`

func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*models.Customer, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)

	customer, err := scanCustomer(row)
	if err != nil {
		return nil, fmt.Errorf("customer %s: %w", id, notFound(err, persistence.ErrCustomerNotFound))
	}

	return customer, nil
}

func (r *CustomerRepository) FindByExternal(ctx context.Context, pageID, externalID string) (*models.Customer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE page_id = $1 AND external_id = $2`, pageID, externalID)

	customer, err := scanCustomer(row)
	if err != nil {
		return nil, fmt.Errorf("customer %s: %w", externalID, notFound(err, persistence.ErrCustomerNotFound))
	}

	return customer, nil
}

func (r *CustomerRepository) Save(ctx context.Context, customer *models.Customer) error {
	tags := customer.Tags
	if tags == nil {
		tags = []string{}
	}

	data, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	now := time.Now().UTC()
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = now
	}

	customer.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , tags = EXCLUDED.tags
		  , updated_at = EXCLUDED.updated_at
	`, customer.ID, customer.PageID, customer.ExternalID, customer.Name, string(data), customer.CreatedAt, customer.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save customer %s: %w", customer.ID, err)
	}

	return nil
}

// AddTag appends tag in a single statement so concurrent taggers cannot drop each other's tags.
func (r *CustomerRepository) AddTag(ctx context.Context, customerID, tag string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE customers
		SET tags = CASE WHEN tags @> jsonb_build_array($2::text) THEN tags ELSE tags || jsonb_build_array($2::text) END
		  , updated_at = NOW()
		WHERE id = $1
	`, customerID, tag)
	if err != nil {
		return fmt.Errorf("failed to tag customer %s: %w", customerID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to tag customer %s: %w", customerID, err)
	}

	if affected == 0 {
		return fmt.Errorf("customer %s: %w", customerID, persistence.ErrCustomerNotFound)
	}

	return nil
}

func scanCustomer(row scanner) (*models.Customer, error) {
	var (
		customer models.Customer
		tags     []byte
	)

	err := row.Scan(
		&customer.ID,
		&customer.PageID,
		&customer.ExternalID,
		&customer.Name,
		&tags,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	customer.Tags = make([]string, 0)

	err = json.Unmarshal(tags, &customer.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}

	return &customer, nil
}
