package cache

import (
	"context"
	"time"

	"github.com/ragline/ragline/internal/model"
)

// Store is the entry backend behind the semantic cache. Entries are
// write-once; eviction under memory pressure is the store's business, so
// callers must tolerate entries vanishing between calls.
type Store interface {
	Get(ctx context.Context, domain, key string) (*model.CacheEntry, bool, error)
	Set(ctx context.Context, entry *model.CacheEntry, ttl time.Duration) error
	// RecentByDomain returns up to limit entries for the domain, newest
	// first.
	RecentByDomain(ctx context.Context, domain string, limit int) ([]*model.CacheEntry, error)
	// DeleteDomain removes every entry for the domain and reports how many
	// went away. Not atomic with respect to concurrent reads.
	DeleteDomain(ctx context.Context, domain string) (int, error)
	// AcquireLease is an atomic conditional write marking one in-flight
	// generation per key; it reports false when someone else holds it.
	AcquireLease(ctx context.Context, domain, key string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, domain, key string) error
	Ping(ctx context.Context) error
	Close() error
}
