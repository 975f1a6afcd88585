package shortener

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	db "github.com/sundayezeilo/linkstat/internal/db/sqlc"
	"github.com/sundayezeilo/linkstat/internal/errx"
	"github.com/sundayezeilo/linkstat/internal/idgen"
)

// querier is the subset of *db.Queries the repository uses.
type querier interface {
	CreateLink(ctx context.Context, arg db.CreateLinkParams) (db.Link, error)
	GetLinkByCode(ctx context.Context, code string) (db.Link, error)
	GetDestinationByCode(ctx context.Context, code string) (string, error)
	LinkCodeExists(ctx context.Context, code string) (bool, error)
	ListLinksByOwner(ctx context.Context, arg db.ListLinksByOwnerParams) ([]db.Link, error)
	CountLinksByOwner(ctx context.Context, ownerID string) (int64, error)
	IncrementLinkClicks(ctx context.Context, arg db.IncrementLinkClicksParams) (int64, error)
	DeleteLink(ctx context.Context, code string) (int64, error)
}

type repo struct {
	q   querier
	ids idgen.Generator
}

type RepositoryConfig struct {
	IDGenerator idgen.Generator
}

// NewRepository returns a Postgres-backed Repository. Link IDs default to UUID v7.
func NewRepository(q querier, config *RepositoryConfig) Repository {
	if config == nil {
		config = &RepositoryConfig{}
	}
	ids := config.IDGenerator
	if ids == nil {
		ids = idgen.NewV7()
	}
	return &repo{q: q, ids: ids}
}

func toDomainLink(x db.Link) (Link, error) {
	if !x.CreatedAt.Valid {
		return Link{}, errors.New("created_at unexpectedly NULL")
	}
	return Link{
		ID:             x.ID,
		Code:           x.Code,
		DestinationURL: x.DestinationUrl,
		OwnerID:        x.OwnerID,
		TotalClicks:    x.TotalClicks,
		UniqueClicks:   x.UniqueClicks,
		CreatedAt:      x.CreatedAt.Time.UTC(),
	}, nil
}

func mapRepoError(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return errx.E(op, errx.NotFound, err)
	case isCodeUniqueViolation(err):
		return errx.E(op, errx.Conflict, err)
	default:
		return errx.E(op, errx.Unavailable, err)
	}
}

func (r *repo) Create(ctx context.Context, link Link) (Link, error) {
	const op = "shortener.repo.Create"

	if link.ID == uuid.Nil {
		id, err := r.ids.Generate()
		if err != nil {
			return Link{}, errx.E(op, errx.Internal, err)
		}
		link.ID = id
	}

	row, err := r.q.CreateLink(ctx, db.CreateLinkParams{
		ID:             link.ID,
		Code:           link.Code,
		DestinationUrl: link.DestinationURL,
		OwnerID:        link.OwnerID,
	})
	if err != nil {
		return Link{}, mapRepoError(op, err)
	}

	created, err := toDomainLink(row)
	if err != nil {
		return Link{}, errx.E(op, errx.Internal, err)
	}
	return created, nil
}

func (r *repo) GetByCode(ctx context.Context, code string) (Link, error) {
	const op = "shortener.repo.GetByCode"

	row, err := r.q.GetLinkByCode(ctx, code)
	if err != nil {
		return Link{}, mapRepoError(op, err)
	}

	link, err := toDomainLink(row)
	if err != nil {
		return Link{}, errx.E(op, errx.Internal, err)
	}
	return link, nil
}

func (r *repo) GetDestination(ctx context.Context, code string) (string, error) {
	const op = "shortener.repo.GetDestination"

	dest, err := r.q.GetDestinationByCode(ctx, code)
	if err != nil {
		return "", mapRepoError(op, err)
	}
	return dest, nil
}

func (r *repo) CodeExists(ctx context.Context, code string) (bool, error) {
	const op = "shortener.repo.CodeExists"

	exists, err := r.q.LinkCodeExists(ctx, code)
	if err != nil {
		return false, mapRepoError(op, err)
	}
	return exists, nil
}

func (r *repo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Link, error) {
	const op = "shortener.repo.ListByOwner"

	if limit < 0 || limit > math.MaxInt32 || offset < 0 || offset > math.MaxInt32 {
		return nil, errx.Errorf(op, errx.Invalid, "limit %d / offset %d out of range", limit, offset)
	}

	rows, err := r.q.ListLinksByOwner(ctx, db.ListLinksByOwnerParams{
		OwnerID: ownerID,
		Limit:   int32(limit),
		Offset:  int32(offset),
	})
	if err != nil {
		return nil, mapRepoError(op, err)
	}

	links := make([]Link, 0, len(rows))
	for _, row := range rows {
		link, err := toDomainLink(row)
		if err != nil {
			return nil, errx.E(op, errx.Internal, err)
		}
		links = append(links, link)
	}
	return links, nil
}

func (r *repo) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	const op = "shortener.repo.CountByOwner"

	n, err := r.q.CountLinksByOwner(ctx, ownerID)
	if err != nil {
		return 0, mapRepoError(op, err)
	}
	return n, nil
}

// IncrementClicks adds one to total_clicks, and to unique_clicks when unique,
// in a single UPDATE so concurrent visits never lose an increment.
func (r *repo) IncrementClicks(ctx context.Context, code string, unique bool) error {
	const op = "shortener.repo.IncrementClicks"

	n, err := r.q.IncrementLinkClicks(ctx, db.IncrementLinkClicksParams{
		IsUnique: unique,
		Code:     code,
	})
	if err != nil {
		return mapRepoError(op, err)
	}
	if n == 0 {
		return errx.E(op, errx.NotFound, fmt.Errorf("link %q: %w", code, pgx.ErrNoRows))
	}
	return nil
}

func (r *repo) Delete(ctx context.Context, code string) error {
	const op = "shortener.repo.Delete"

	n, err := r.q.DeleteLink(ctx, code)
	if err != nil {
		return mapRepoError(op, err)
	}
	if n == 0 {
		return errx.E(op, errx.NotFound, fmt.Errorf("link %q: %w", code, pgx.ErrNoRows))
	}
	return nil
}
