package handlers

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/chainflip-io/chainflip-backend-sub000/internal/swap"
	"github.com/ethereum/go-ethereum/common"
)

// EnvironmentReader fetches protocol environment state as of a historical
// block hash. Reading at the hash rather than at head keeps replayed fee
// computations deterministic.
type EnvironmentReader interface {
	EgressFee(ctx context.Context, asset swap.Asset, amount *big.Int, blockHash common.Hash) (*big.Int, error)
}

type feeCacheKey struct {
	asset     swap.Asset
	amount    string
	blockHash common.Hash
}

type feeCacheEntry struct {
	fee       *big.Int
	expiresAt time.Time
}

// EgressFeeCache memoizes environment egress-fee reads. Entries are keyed by
// immutable identifiers, so the TTL only bounds memory, not staleness.
type EgressFeeCache struct {
	reader EnvironmentReader
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[feeCacheKey]feeCacheEntry
}

// NewEgressFeeCache wraps an environment reader with a TTL cache.
func NewEgressFeeCache(reader EnvironmentReader, ttl time.Duration) *EgressFeeCache {
	return &EgressFeeCache{
		reader:  reader,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[feeCacheKey]feeCacheEntry),
	}
}

// EgressFee returns the cached fee when present, otherwise reads through.
func (c *EgressFeeCache) EgressFee(ctx context.Context, asset swap.Asset, amount *big.Int, blockHash common.Hash) (*big.Int, error) {
	key := feeCacheKey{asset: asset, blockHash: blockHash}
	if amount != nil {
		key.amount = amount.String()
	}

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && c.now().Before(entry.expiresAt) {
		c.mu.Unlock()
		return new(big.Int).Set(entry.fee), nil
	}
	c.mu.Unlock()

	fee, err := c.reader.EgressFee(ctx, asset, amount, blockHash)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = feeCacheEntry{fee: new(big.Int).Set(fee), expiresAt: c.now().Add(c.ttl)}
	c.evictExpiredLocked()
	c.mu.Unlock()

	return fee, nil
}

func (c *EgressFeeCache) evictExpiredLocked() {
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}
