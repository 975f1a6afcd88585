// Package cache holds the fail-soft link and visitor cache used on the
// redirect path. Cache failures never reach callers: reads degrade to a miss
// and writes to a no-op.
package cache

import "context"

const (
	linkPrefix    = "link:"
	visitorPrefix = "unique_ips:"
)

// Cache is the read-through link cache plus the per-link set of visitor
// fingerprints seen in the current window.
type Cache interface {
	GetLink(ctx context.Context, code string) (string, bool)
	PutLink(ctx context.Context, code, destination string)
	InvalidateLink(ctx context.Context, code string)
	HasVisited(ctx context.Context, code, fingerprint string) bool
	MarkVisited(ctx context.Context, code, fingerprint string)
	Close() error
}

func linkKey(code string) string    { return linkPrefix + code }
func visitorKey(code string) string { return visitorPrefix + code }

// Noop is used when Redis is not reachable at startup. Every lookup misses.
type Noop struct{}

func (Noop) GetLink(context.Context, string) (string, bool)  { return "", false }
func (Noop) PutLink(context.Context, string, string)         {}
func (Noop) InvalidateLink(context.Context, string)          {}
func (Noop) HasVisited(context.Context, string, string) bool { return false }
func (Noop) MarkVisited(context.Context, string, string)     {}
func (Noop) Close() error                                    { return nil }

var _ Cache = Noop{}
