package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sundayezeilo/linkstat/internal/cache"
	"github.com/sundayezeilo/linkstat/internal/errx"
)

const DefaultStepTimeout = 500 * time.Millisecond

// Result reports how a recorded visit was classified.
type Result struct {
	IsUnique bool
}

// Recorder runs the click pipeline for a single visit.
type Recorder struct {
	events      EventStore
	counter     Counter
	cache       cache.Cache
	fp          *Fingerprinter
	stepTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// RecorderConfig holds the recorder's collaborators. Cache defaults to Noop,
// StepTimeout to DefaultStepTimeout and Clock to time.Now.
type RecorderConfig struct {
	Events      EventStore
	Counter     Counter
	Cache       cache.Cache
	Salt        string
	StepTimeout time.Duration
	Clock       func() time.Time
	Logger      *slog.Logger
}

// NewRecorder builds a Recorder, filling unset config fields with defaults.
func NewRecorder(cfg RecorderConfig) *Recorder {
	r := &Recorder{
		events:      cfg.Events,
		counter:     cfg.Counter,
		cache:       cfg.Cache,
		fp:          NewFingerprinter(cfg.Salt),
		stepTimeout: cfg.StepTimeout,
		now:         cfg.Clock,
		logger:      cfg.Logger,
	}
	if r.cache == nil {
		r.cache = cache.Noop{}
	}
	if r.stepTimeout <= 0 {
		r.stepTimeout = DefaultStepTimeout
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Record stores the visit and updates the derived counters.
//
// A visit is unique when its fingerprint is in neither the cache set nor the
// event log. The event is always appended; if that fails the remaining steps
// are skipped. Later step failures are collected and returned together after
// every step has been attempted.
func (r *Recorder) Record(ctx context.Context, v Visit) (Result, error) {
	const op = "analytics.recorder.Record"

	now := r.now().UTC()
	fp := r.fp.Fingerprint(v.IP, now)
	logger := r.logger.With("code", v.Code)

	var errs []error

	unique := true
	_ = r.step(ctx, func(ctx context.Context) error {
		unique = !r.cache.HasVisited(ctx, v.Code, fp)
		return nil
	})

	if unique {
		err := r.step(ctx, func(ctx context.Context) error {
			seen, err := r.events.Exists(ctx, v.Code, fp)
			if err != nil {
				return err
			}
			unique = !seen
			return nil
		})
		if err != nil {
			logger.WarnContext(ctx, "visitor lookup failed, counting as unique", "step", "exists", "error", err)
			errs = append(errs, fmt.Errorf("exists: %w", err))
		}
	}

	event := ClickEvent{
		Code:          v.Code,
		Timestamp:     now,
		IPFingerprint: fp,
		UserAgent:     v.UserAgent,
		Referrer:      v.Referrer,
		IsUnique:      unique,
	}
	if err := r.step(ctx, func(ctx context.Context) error { return r.events.Append(ctx, event) }); err != nil {
		logger.ErrorContext(ctx, "click event not stored", "step", "append", "error", err)
		errs = append(errs, fmt.Errorf("append: %w", err))
		return Result{IsUnique: unique}, errx.E(op, errx.Unavailable, errors.Join(errs...))
	}

	if err := r.step(ctx, func(ctx context.Context) error { return r.counter.IncrementClicks(ctx, v.Code, unique) }); err != nil {
		if errx.Is(err, errx.NotFound) {
			// Deleted while the visit was queued.
			logger.InfoContext(ctx, "link gone before click was counted", "step", "increment")
		} else {
			logger.ErrorContext(ctx, "click counters not updated", "step", "increment", "error", err)
		}
		errs = append(errs, fmt.Errorf("increment: %w", err))
	}

	if unique {
		_ = r.step(ctx, func(ctx context.Context) error {
			r.cache.MarkVisited(ctx, v.Code, fp)
			return nil
		})
	}

	_ = r.step(ctx, func(ctx context.Context) error {
		r.cache.InvalidateLink(ctx, v.Code)
		return nil
	})

	if len(errs) > 0 {
		return Result{IsUnique: unique}, errx.E(op, errx.Unavailable, errors.Join(errs...))
	}
	return Result{IsUnique: unique}, nil
}

func (r *Recorder) step(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.stepTimeout)
	defer cancel()
	return fn(ctx)
}
