package company

import (
	"context"

	"github.com/google/uuid"
)

// CompanyRepository manages the single company row.
type CompanyRepository interface {
	Get(ctx context.Context) (*Company, error)
	Upsert(ctx context.Context, c *Company) error
}

type ContactMessageRepository interface {
	Create(ctx context.Context, m *ContactMessage) error
	GetByID(ctx context.Context, id uuid.UUID) (*ContactMessage, error)
	Update(ctx context.Context, m *ContactMessage) error
	List(ctx context.Context, status string, limit, offset int) ([]*ContactMessage, int, error)
}
