package analytics

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memEvents is an in-memory EventStore.
type memEvents struct {
	mu     sync.Mutex
	events []ClickEvent

	appendErr error
	existsErr error
}

func (m *memEvents) Append(_ context.Context, e ClickEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memEvents) Exists(_ context.Context, code, fp string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	return slices.ContainsFunc(m.events, func(e ClickEvent) bool {
		return e.Code == code && e.IPFingerprint == fp
	}), nil
}

func (m *memEvents) List(_ context.Context, code string, limit, offset int) ([]ClickEvent, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ClickEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Code == code {
			out = append(out, m.events[i])
		}
	}
	total := int64(len(out))
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *memEvents) CountByDay(_ context.Context, code string, since time.Time) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int64{}
	for _, e := range m.events {
		if e.Code == code && !e.Timestamp.Before(since) {
			counts[e.Timestamp.UTC().Format(dayLayout)]++
		}
	}
	return counts, nil
}

func (m *memEvents) DeleteByCode(_ context.Context, code string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.events)
	m.events = slices.DeleteFunc(m.events, func(e ClickEvent) bool { return e.Code == code })
	return int64(before - len(m.events)), nil
}

func (m *memEvents) all() []ClickEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

// memCounter counts increments per code.
type memCounter struct {
	mu     sync.Mutex
	total  map[string]int64
	unique map[string]int64
	err    error
}

func newMemCounter() *memCounter {
	return &memCounter{total: map[string]int64{}, unique: map[string]int64{}}
}

func (c *memCounter) IncrementClicks(_ context.Context, code string, unique bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.total[code]++
	if unique {
		c.unique[code]++
	}
	return nil
}

func (c *memCounter) counts(code string) (int64, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total[code], c.unique[code]
}

// spyCache records which cache calls the recorder made.
type spyCache struct {
	mu          sync.Mutex
	visited     map[string]bool
	invalidated []string
	marked      []string
}

func newSpyCache() *spyCache { return &spyCache{visited: map[string]bool{}} }

func (s *spyCache) GetLink(context.Context, string) (string, bool) { return "", false }
func (s *spyCache) PutLink(context.Context, string, string)        {}
func (s *spyCache) Close() error                                   { return nil }

func (s *spyCache) InvalidateLink(_ context.Context, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, code)
}

func (s *spyCache) HasVisited(_ context.Context, code, fp string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visited[code+"|"+fp]
}

func (s *spyCache) MarkVisited(_ context.Context, code, fp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visited[code+"|"+fp] = true
	s.marked = append(s.marked, code)
}

// fixedClock returns a clock that can be moved forward by tests.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
