package store

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

const resultCachePrefix = "result/"

// DefaultJobResultCacheTTL is the TTL JobResultCache entries use absent an
// override, per §3's JobResultCache definition.
const DefaultJobResultCacheTTL = 24 * time.Hour

// JobResultCache maps jobID to the last-observed BlobReceipt, serving
// idempotent retry reads from the same client. A small in-memory LRU
// fronts the durable store so repeated retries of the same job don't
// round-trip through the embedded KV.
type JobResultCache struct {
	kv  *KV
	ttl time.Duration
	hot *lru.Cache[string, BlobReceipt]
}

// NewJobResultCache constructs a cache over kv with the given TTL and
// in-memory hot-layer capacity.
func NewJobResultCache(kv *KV, ttl time.Duration, hotCapacity int) (*JobResultCache, error) {
	if ttl <= 0 {
		ttl = DefaultJobResultCacheTTL
	}
	if hotCapacity <= 0 {
		hotCapacity = 1024
	}
	hot, err := lru.New[string, BlobReceipt](hotCapacity)
	if err != nil {
		return nil, fmt.Errorf("construct result cache LRU: %w", err)
	}
	return &JobResultCache{kv: kv, ttl: ttl, hot: hot}, nil
}

// Get returns the cached receipt for jobID, or ErrKeyNotFound if absent or
// if the durable entry has expired. A receipt still held in the in-memory
// hot layer is returned without an expiry check.
func (c *JobResultCache) Get(jobID string) (BlobReceipt, error) {
	if receipt, ok := c.hot.Get(jobID); ok {
		return receipt, nil
	}

	raw, err := c.kv.Get(c.key(jobID))
	if err != nil {
		return BlobReceipt{}, err
	}
	if len(raw) < 8 {
		return BlobReceipt{}, fmt.Errorf("corrupt job result cache record for %s", jobID)
	}
	expiresAt := decodeTime(raw[:8])
	if time.Now().After(expiresAt) {
		return BlobReceipt{}, ErrKeyNotFound
	}
	var receipt BlobReceipt
	if err := cbor.Unmarshal(raw[8:], &receipt); err != nil {
		return BlobReceipt{}, fmt.Errorf("decode job result cache entry: %w", err)
	}
	c.hot.Add(jobID, receipt)
	return receipt, nil
}

// Put stores receipt for jobID with the cache's configured TTL.
func (c *JobResultCache) Put(jobID string, receipt BlobReceipt) error {
	encoded, err := cbor.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("encode job result cache entry: %w", err)
	}
	if err := c.kv.Set(c.key(jobID), EncodeDueValue(time.Now().Add(c.ttl), encoded)); err != nil {
		return err
	}
	c.hot.Add(jobID, receipt)
	return nil
}

func (c *JobResultCache) key(jobID string) []byte {
	return []byte(resultCachePrefix + jobID)
}
