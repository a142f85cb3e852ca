package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ragline/ragline/internal/model"
)

// MemoryStore keeps entries in an expirable LRU. The LRU ttl is only a
// backstop; per-entry expiry is enforced by readers.
type MemoryStore struct {
	entries *expirable.LRU[string, *model.CacheEntry]

	mu     sync.Mutex
	recent map[string][]string
	leases map[string]time.Time

	recentLimit int
	now         func() time.Time
}

func NewMemoryStore(maxEntries, recentLimit int, maxTTL time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	if recentLimit <= 0 {
		recentLimit = 256
	}
	return &MemoryStore{
		entries:     expirable.NewLRU[string, *model.CacheEntry](maxEntries, nil, maxTTL),
		recent:      make(map[string][]string),
		leases:      make(map[string]time.Time),
		recentLimit: recentLimit,
		now:         time.Now,
	}
}

func storeKey(domain, key string) string {
	return domain + "|" + key
}

func (m *MemoryStore) Get(ctx context.Context, domain, key string) (*model.CacheEntry, bool, error) {
	entry, ok := m.entries.Get(storeKey(domain, key))
	if !ok {
		return nil, false, nil
	}
	if entry.Expired(m.now().Unix()) {
		m.entries.Remove(storeKey(domain, key))
		return nil, false, nil
	}
	return entry, true, nil
}

func (m *MemoryStore) Set(ctx context.Context, entry *model.CacheEntry, ttl time.Duration) error {
	m.entries.Add(storeKey(entry.Domain, entry.Key), entry)
	m.mu.Lock()
	defer m.mu.Unlock()
	ring := m.recent[entry.Domain]
	next := make([]string, 0, len(ring)+1)
	next = append(next, entry.Key)
	for _, k := range ring {
		if k == entry.Key {
			continue
		}
		next = append(next, k)
	}
	if len(next) > m.recentLimit {
		next = next[:m.recentLimit]
	}
	m.recent[entry.Domain] = next
	return nil
}

func (m *MemoryStore) RecentByDomain(ctx context.Context, domain string, limit int) ([]*model.CacheEntry, error) {
	m.mu.Lock()
	ring := make([]string, len(m.recent[domain]))
	copy(ring, m.recent[domain])
	m.mu.Unlock()

	now := m.now().Unix()
	out := make([]*model.CacheEntry, 0, limit)
	for _, key := range ring {
		if len(out) >= limit {
			break
		}
		entry, ok := m.entries.Get(storeKey(domain, key))
		if !ok || entry.Expired(now) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (m *MemoryStore) DeleteDomain(ctx context.Context, domain string) (int, error) {
	removed := 0
	for _, key := range m.entries.Keys() {
		entry, ok := m.entries.Peek(key)
		if !ok || entry.Domain != domain {
			continue
		}
		if m.entries.Remove(key) {
			removed++
		}
	}
	m.mu.Lock()
	delete(m.recent, domain)
	m.mu.Unlock()
	return removed, nil
}

func (m *MemoryStore) AcquireLease(ctx context.Context, domain, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	leaseKey := storeKey(domain, key)
	if expiry, ok := m.leases[leaseKey]; ok && m.now().Before(expiry) {
		return false, nil
	}
	m.leases[leaseKey] = m.now().Add(ttl)
	return true, nil
}

func (m *MemoryStore) ReleaseLease(ctx context.Context, domain, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.leases, storeKey(domain, key))
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	m.entries.Purge()
	return nil
}
