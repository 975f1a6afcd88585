package analytics

import (
	"context"
	"time"

	"github.com/sundayezeilo/linkstat/internal/errx"
)

// Aggregator builds per-day click series from the event log.
type Aggregator struct {
	events EventStore
	now    func() time.Time
}

// NewAggregator returns an aggregator; a nil clock means time.Now.
func NewAggregator(events EventStore, clock func() time.Time) *Aggregator {
	if clock == nil {
		clock = time.Now
	}
	return &Aggregator{events: events, now: clock}
}

// DailyClicks returns exactly days entries, oldest first and ending today (UTC).
// Days without events are reported with zero clicks. Callers bound days.
func (a *Aggregator) DailyClicks(ctx context.Context, code string, days int) ([]DailyCount, error) {
	const op = "analytics.stats.DailyClicks"

	if days < 1 {
		return nil, errx.Errorf(op, errx.Invalid, "days must be at least 1, got %d", days)
	}

	since := startOfDay(a.now()).AddDate(0, 0, -(days - 1))

	counts, err := a.events.CountByDay(ctx, code, since)
	if err != nil {
		return nil, errx.E(op, errx.KindOf(err), err)
	}
	return fillDays(since, days, counts), nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fillDays(since time.Time, days int, counts map[string]int64) []DailyCount {
	series := make([]DailyCount, days)
	for i := range days {
		day := since.AddDate(0, 0, i).Format(dayLayout)
		series[i] = DailyCount{Date: day, Clicks: counts[day]}
	}
	return series
}
