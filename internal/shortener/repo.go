package shortener

import "context"

// Repository persists links. Implementations map store failures to errx kinds:
// a missing row is NotFound, a duplicate code is Conflict, anything else is
// Unavailable.
type Repository interface {
	Create(ctx context.Context, link Link) (Link, error)
	GetByCode(ctx context.Context, code string) (Link, error)
	GetDestination(ctx context.Context, code string) (string, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Link, error)
	CountByOwner(ctx context.Context, ownerID string) (int64, error)
	IncrementClicks(ctx context.Context, code string, unique bool) error
	Delete(ctx context.Context, code string) error
}
