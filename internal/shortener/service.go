package shortener

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sundayezeilo/linkstat/internal/analytics"
	"github.com/sundayezeilo/linkstat/internal/cache"
	"github.com/sundayezeilo/linkstat/internal/errx"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
	DefaultStatsDays = 7
	MaxStatsDays     = 30
)

// CreateLinkRequest holds the parameters for creating a link.
type CreateLinkRequest struct {
	OwnerID     string
	OriginalURL string
	CustomCode  string // optional
}

// Service is the link management and redirect API.
//
// Every owner-scoped method reports a link that belongs to someone else as
// NotFound, so callers cannot discover codes they do not own.
type Service interface {
	Create(ctx context.Context, req CreateLinkRequest) (Link, error)
	Get(ctx context.Context, ownerID, code string) (Link, error)
	List(ctx context.Context, ownerID string, limit, offset int) (LinkPage, error)
	Delete(ctx context.Context, ownerID, code string) error
	ListClicks(ctx context.Context, ownerID, code string, limit, offset int) (ClickPage, error)
	Stats(ctx context.Context, ownerID, code string, days int) (LinkStats, error)
	Resolve(ctx context.Context, visit analytics.Visit) (string, error)
}

// CodeSource picks codes for new links.
type CodeSource interface {
	Generate(ctx context.Context, custom string) (string, error)
}

// ClickLog is the read and purge side of the click event store.
type ClickLog interface {
	List(ctx context.Context, code string, limit, offset int) ([]analytics.ClickEvent, int64, error)
	DeleteByCode(ctx context.Context, code string) (int64, error)
}

// DailyStats returns per-day click counts for a link.
type DailyStats interface {
	DailyClicks(ctx context.Context, code string, days int) ([]analytics.DailyCount, error)
}

// VisitDispatcher queues a visit for recording without waiting for it.
type VisitDispatcher interface {
	Dispatch(v analytics.Visit) bool
}

type service struct {
	repo       Repository
	codes      CodeSource
	cache      cache.Cache
	clicks     ClickLog
	stats      DailyStats
	dispatcher VisitDispatcher
	logger     *slog.Logger
}

// ServiceConfig wires the service's collaborators. Codes defaults to a
// CodeGenerator over repo and Cache to cache.Noop.
type ServiceConfig struct {
	Codes      CodeSource
	Cache      cache.Cache
	Clicks     ClickLog
	Stats      DailyStats
	Dispatcher VisitDispatcher
	Logger     *slog.Logger
}

func NewService(repo Repository, config *ServiceConfig) Service {
	if config == nil {
		config = &ServiceConfig{}
	}
	s := &service{
		repo:       repo,
		codes:      config.Codes,
		cache:      config.Cache,
		clicks:     config.Clicks,
		stats:      config.Stats,
		dispatcher: config.Dispatcher,
		logger:     config.Logger,
	}
	if s.codes == nil {
		s.codes = NewCodeGenerator(repo, nil)
	}
	if s.cache == nil {
		s.cache = cache.Noop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *service) Create(ctx context.Context, req CreateLinkRequest) (Link, error) {
	const op = "shortener.service.Create"

	if req.OwnerID == "" {
		return Link{}, errx.Errorf(op, errx.Unauthorized, "owner is required")
	}

	dest, err := SanitizeURL(req.OriginalURL)
	if err != nil {
		return Link{}, errx.E(op, errx.Invalid, err)
	}

	code, err := s.codes.Generate(ctx, req.CustomCode)
	if err != nil {
		return Link{}, errx.E(op, errx.KindOf(err), err)
	}

	s.purgeStaleClicks(ctx, code)

	link, err := s.repo.Create(ctx, Link{
		Code:           code,
		DestinationURL: dest,
		OwnerID:        req.OwnerID,
	})
	if err != nil {
		return Link{}, errx.E(op, errx.KindOf(err), err)
	}

	s.cache.PutLink(ctx, link.Code, link.DestinationURL)
	return link, nil
}

// purgeStaleClicks drops events left under code by a visit that was recorded
// after an earlier link with the same code was deleted. It runs before the
// insert, while the code cannot be resolved and no new events can arrive.
func (s *service) purgeStaleClicks(ctx context.Context, code string) {
	if s.clicks == nil {
		return
	}
	n, err := s.clicks.DeleteByCode(ctx, code)
	if err != nil {
		s.logger.WarnContext(ctx, "stale click events not purged", "code", code, "error", err)
		return
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "purged stale click events", "code", code, "count", n)
	}
}

func (s *service) Get(ctx context.Context, ownerID, code string) (Link, error) {
	const op = "shortener.service.Get"

	link, err := s.owned(ctx, ownerID, code)
	if err != nil {
		return Link{}, errx.E(op, errx.KindOf(err), err)
	}
	return link, nil
}

// List fetches one page of the owner's links and the owner's total in parallel.
func (s *service) List(ctx context.Context, ownerID string, limit, offset int) (LinkPage, error) {
	const op = "shortener.service.List"

	if err := checkPage(limit, offset); err != nil {
		return LinkPage{}, errx.E(op, errx.Invalid, err)
	}

	var (
		links []Link
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		links, err = s.repo.ListByOwner(gctx, ownerID, limit, offset)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.repo.CountByOwner(gctx, ownerID)
		return err
	})
	if err := g.Wait(); err != nil {
		return LinkPage{}, errx.E(op, errx.KindOf(err), err)
	}

	if links == nil {
		links = []Link{}
	}
	return LinkPage{Links: links, Total: total, Limit: limit, Offset: offset}, nil
}

// Delete removes the link row, then its click events and cached destination.
// Once the row is gone the link no longer resolves, so failures in the later
// steps are logged and not returned.
func (s *service) Delete(ctx context.Context, ownerID, code string) error {
	const op = "shortener.service.Delete"

	if _, err := s.owned(ctx, ownerID, code); err != nil {
		return errx.E(op, errx.KindOf(err), err)
	}

	if err := s.repo.Delete(ctx, code); err != nil {
		return errx.E(op, errx.KindOf(err), err)
	}

	if n, err := s.clicks.DeleteByCode(ctx, code); err != nil {
		s.logger.WarnContext(ctx, "click events left behind after delete", "code", code, "error", err)
	} else {
		s.logger.DebugContext(ctx, "click events deleted", "code", code, "count", n)
	}

	s.cache.InvalidateLink(ctx, code)
	return nil
}

func (s *service) ListClicks(ctx context.Context, ownerID, code string, limit, offset int) (ClickPage, error) {
	const op = "shortener.service.ListClicks"

	if err := checkPage(limit, offset); err != nil {
		return ClickPage{}, errx.E(op, errx.Invalid, err)
	}
	if _, err := s.owned(ctx, ownerID, code); err != nil {
		return ClickPage{}, errx.E(op, errx.KindOf(err), err)
	}

	clicks, total, err := s.clicks.List(ctx, code, limit, offset)
	if err != nil {
		return ClickPage{}, errx.E(op, errx.KindOf(err), err)
	}
	if clicks == nil {
		clicks = []analytics.ClickEvent{}
	}
	return ClickPage{Clicks: clicks, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *service) Stats(ctx context.Context, ownerID, code string, days int) (LinkStats, error) {
	const op = "shortener.service.Stats"

	if days < 1 || days > MaxStatsDays {
		return LinkStats{}, errx.Errorf(op, errx.Invalid, "days must be between 1 and %d", MaxStatsDays)
	}

	link, err := s.owned(ctx, ownerID, code)
	if err != nil {
		return LinkStats{}, errx.E(op, errx.KindOf(err), err)
	}

	daily, err := s.stats.DailyClicks(ctx, code, days)
	if err != nil {
		return LinkStats{}, errx.E(op, errx.KindOf(err), err)
	}
	return LinkStats{Link: link, Daily: daily}, nil
}

// Resolve returns the destination for visit.Code, reading through the cache,
// and queues the visit for recording. It never waits on analytics.
func (s *service) Resolve(ctx context.Context, visit analytics.Visit) (string, error) {
	const op = "shortener.service.Resolve"

	if err := ValidateCode(visit.Code); err != nil {
		return "", errx.E(op, errx.Invalid, err)
	}

	dest, hit := s.cache.GetLink(ctx, visit.Code)
	if !hit {
		var err error
		dest, err = s.repo.GetDestination(ctx, visit.Code)
		if err != nil {
			return "", errx.E(op, errx.KindOf(err), err)
		}
		s.cache.PutLink(ctx, visit.Code, dest)
	}

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(visit)
	}
	return dest, nil
}

// owned loads code and hides links that belong to another owner.
func (s *service) owned(ctx context.Context, ownerID, code string) (Link, error) {
	const op = "shortener.service.owned"

	if ownerID == "" {
		return Link{}, errx.Errorf(op, errx.Unauthorized, "owner is required")
	}
	if err := ValidateCode(code); err != nil {
		return Link{}, errx.E(op, errx.Invalid, err)
	}

	link, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return Link{}, errx.E(op, errx.KindOf(err), err)
	}
	if link.OwnerID != ownerID {
		return Link{}, errx.Errorf(op, errx.NotFound, "link not found")
	}
	return link, nil
}

func checkPage(limit, offset int) error {
	const op = "shortener.checkPage"

	if limit < 1 || limit > MaxPageLimit {
		return errx.Errorf(op, errx.Invalid, "limit must be between 1 and %d", MaxPageLimit)
	}
	if offset < 0 {
		return errx.Errorf(op, errx.Invalid, "offset cannot be negative")
	}
	return nil
}
