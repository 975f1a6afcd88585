package shortener

import (
	"time"

	"github.com/google/uuid"

	"github.com/sundayezeilo/linkstat/internal/analytics"
)

// Link maps a short code to its destination. Click counters are maintained by
// the analytics pipeline and only ever grow.
type Link struct {
	ID             uuid.UUID
	Code           string
	DestinationURL string
	OwnerID        string
	TotalClicks    int64
	UniqueClicks   int64
	CreatedAt      time.Time
}

type LinkPage struct {
	Links  []Link
	Total  int64
	Limit  int
	Offset int
}

type ClickPage struct {
	Clicks []analytics.ClickEvent
	Total  int64
	Limit  int
	Offset int
}

type LinkStats struct {
	Link  Link
	Daily []analytics.DailyCount
}
