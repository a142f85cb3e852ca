package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	appErr "github.com/ragline/ragline/internal/pkg/errors"
	"github.com/ragline/ragline/internal/pkg/vecmath"

	"github.com/ragline/ragline/internal/model"
)

const leasePollInterval = 100 * time.Millisecond

type Config struct {
	ResponseTTL         time.Duration
	SimilarityThreshold float64
	ScanLimit           int
	LeaseTTL            time.Duration
	LeaseWait           time.Duration
}

// Hit carries the matched entry plus how it matched. Exact hits report
// similarity 1.0 without consulting the embedding.
type Hit struct {
	Entry      *model.CacheEntry
	Similarity float64
	Exact      bool
}

// SemanticCache layers query normalization and a nearest-neighbour scan on
// top of a plain key-value store. An exact key match short-circuits; failing
// that, recent entries from the same domain are scanned for a close-enough
// embedding.
type SemanticCache struct {
	store Store
	cfg   Config
	now   func() int64
}

func NewSemanticCache(store Store, cfg Config) *SemanticCache {
	if cfg.ResponseTTL <= 0 {
		cfg.ResponseTTL = time.Hour
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.95
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = 100
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Second
	}
	if cfg.LeaseWait <= 0 {
		cfg.LeaseWait = 2 * time.Second
	}
	return &SemanticCache{store: store, cfg: cfg, now: func() int64 { return time.Now().Unix() }}
}

// NormalizeQuery folds case and collapses runs of whitespace so trivially
// different phrasings of the same query share a cache key.
func NormalizeQuery(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// CacheKey derives the exact-match key from the normalized query text and
// the domain. The same words asked in a different domain never collide.
func CacheKey(text, domain string) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(text) + "|" + domain))
	return hex.EncodeToString(sum[:])
}

// Lookup checks the exact key first, then scans recent same-domain entries
// for a semantically close query. Store failures surface as
// ErrCacheUnavailable so callers can degrade to a miss.
func (c *SemanticCache) Lookup(ctx context.Context, key, domain string, embedding []float32) (*Hit, error) {
	entry, ok, err := c.store.Get(ctx, domain, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrCacheUnavailable, err)
	}
	if ok {
		return &Hit{Entry: entry, Similarity: 1.0, Exact: true}, nil
	}
	if len(embedding) == 0 {
		return nil, nil
	}

	recent, err := c.store.RecentByDomain(ctx, domain, c.cfg.ScanLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrCacheUnavailable, err)
	}
	var best *model.CacheEntry
	bestSim := 0.0
	for _, candidate := range recent {
		if len(candidate.Embedding) == 0 {
			continue
		}
		sim := vecmath.Cosine(embedding, candidate.Embedding)
		if sim >= c.cfg.SimilarityThreshold && sim > bestSim {
			best = candidate
			bestSim = sim
		}
	}
	if best == nil {
		return nil, nil
	}
	return &Hit{Entry: best, Similarity: bestSim}, nil
}

// Store writes a fresh entry under the given key. Entries are never updated
// in place; a second write under the same key replaces the first wholesale.
func (c *SemanticCache) Store(ctx context.Context, key, domain string, embedding []float32,
	response string, citations []model.Citation, tier string) error {

	now := c.now()
	entry := &model.CacheEntry{
		Key:       key,
		Domain:    domain,
		Embedding: vecmath.Clone(embedding),
		Response:  response,
		Citations: citations,
		Tier:      tier,
		Ctime:     now,
		Expiry:    now + int64(c.cfg.ResponseTTL/time.Second),
	}
	if err := c.store.Set(ctx, entry, c.cfg.ResponseTTL); err != nil {
		return fmt.Errorf("%w: %v", appErr.ErrCacheUnavailable, err)
	}
	return nil
}

// InvalidateDomain drops every entry in the domain. The walk is not atomic;
// lookups racing it may still see entries that are about to go.
func (c *SemanticCache) InvalidateDomain(ctx context.Context, domain string) (int, error) {
	removed, err := c.store.DeleteDomain(ctx, domain)
	if err != nil {
		return removed, fmt.Errorf("%w: %v", appErr.ErrCacheUnavailable, err)
	}
	return removed, nil
}

// TryLease claims the right to compute the response for a key. Exactly one
// caller wins per lease window; the rest should wait via AwaitLeaseholder.
func (c *SemanticCache) TryLease(ctx context.Context, domain, key string) (bool, error) {
	ok, err := c.store.AcquireLease(ctx, domain, key, c.cfg.LeaseTTL)
	if err != nil {
		return false, fmt.Errorf("%w: %v", appErr.ErrCacheUnavailable, err)
	}
	return ok, nil
}

// AwaitLeaseholder polls for the leaseholder's entry to land. It gives up
// after the configured wait and returns a miss so the caller can compute the
// answer itself rather than block indefinitely.
func (c *SemanticCache) AwaitLeaseholder(ctx context.Context, domain, key string) (*Hit, error) {
	deadline := time.Now().Add(c.cfg.LeaseWait)
	ticker := time.NewTicker(leasePollInterval)
	defer ticker.Stop()
	for {
		entry, ok, err := c.store.Get(ctx, domain, key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", appErr.ErrCacheUnavailable, err)
		}
		if ok {
			return &Hit{Entry: entry, Similarity: 1.0, Exact: true}, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ReleaseLease frees the key's lease early. Safe to call when no lease is
// held; expiry covers the crashed-holder case.
func (c *SemanticCache) ReleaseLease(ctx context.Context, domain, key string) error {
	if err := c.store.ReleaseLease(ctx, domain, key); err != nil {
		return fmt.Errorf("%w: %v", appErr.ErrCacheUnavailable, err)
	}
	return nil
}
