// Package analytics records link visits and answers questions about them.
//
// A visit fans out to three stores that cannot be updated together: the click
// event log in MongoDB (the durable record), the per-link counters in Postgres,
// and the visitor fingerprint set in the cache. The event log is authoritative;
// counters and the fingerprint set are best-effort and may drift when a step
// fails. Nothing is rolled back.
package analytics

import (
	"context"
	"time"
)

// Visit is what the redirect handler knows about a single request.
type Visit struct {
	Code      string
	IP        string
	UserAgent string
	Referrer  string
}

// ClickEvent is one stored visit. The raw IP is never kept, only its fingerprint.
type ClickEvent struct {
	Code          string
	Timestamp     time.Time
	IPFingerprint string
	UserAgent     string
	Referrer      string
	IsUnique      bool
}

// DailyCount is the number of clicks on a single UTC day (YYYY-MM-DD).
type DailyCount struct {
	Date   string
	Clicks int64
}

// EventStore is the append-only click log.
type EventStore interface {
	Append(ctx context.Context, event ClickEvent) error
	Exists(ctx context.Context, code, fingerprint string) (bool, error)
	List(ctx context.Context, code string, limit, offset int) ([]ClickEvent, int64, error)
	CountByDay(ctx context.Context, code string, since time.Time) (map[string]int64, error)
	DeleteByCode(ctx context.Context, code string) (int64, error)
}

// Counter bumps the denormalised click counters of a link.
type Counter interface {
	IncrementClicks(ctx context.Context, code string, unique bool) error
}
