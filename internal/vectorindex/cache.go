package vectorindex

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	appErr "github.com/xxxsen/scribe/internal/pkg/errors"
)

const defaultLoadTimeout = 2 * time.Minute

// Cache keeps the most recently used collection indexes in memory. Concurrent
// misses for one collection share a single load. A failed load, including
// an unknown collection, is never cached.
type Cache struct {
	store       Store
	lru         *expirable.LRU[string, *Index]
	group       singleflight.Group
	loadTimeout time.Duration
}

// NewCache bounds the cache to size collections. A zero ttl keeps entries
// until they are evicted by size.
func NewCache(store Store, size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 3
	}
	return &Cache{
		store:       store,
		lru:         expirable.NewLRU[string, *Index](size, nil, ttl),
		loadTimeout: defaultLoadTimeout,
	}
}

func (c *Cache) Store() Store {
	return c.store
}

// Get returns the index of collectionID, loading it on a miss. The load
// outlives a cancelled caller so that other waiters still get the result.
func (c *Cache) Get(ctx context.Context, collectionID string) (*Index, error) {
	if err := ValidateCollectionID(collectionID); err != nil {
		return nil, err
	}
	if idx, ok := c.lru.Get(collectionID); ok {
		return idx, nil
	}
	ch := c.group.DoChan(collectionID, func() (interface{}, error) {
		if idx, ok := c.lru.Get(collectionID); ok {
			return idx, nil
		}
		idx, err := c.load(ctx, collectionID)
		if err != nil {
			return nil, err
		}
		c.lru.Add(collectionID, idx)
		return idx, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Index), nil
	}
}

// Reload loads collectionID from the store and swaps it in. Searches in
// flight keep using the index they already hold. A collection that no
// longer exists is dropped.
func (c *Cache) Reload(ctx context.Context, collectionID string) error {
	if err := ValidateCollectionID(collectionID); err != nil {
		return err
	}
	res, err, _ := c.group.Do("reload:"+collectionID, func() (interface{}, error) {
		return c.load(ctx, collectionID)
	})
	if err != nil {
		if appErr.IsCollectionNotFound(err) {
			c.lru.Remove(collectionID)
		}
		return err
	}
	c.lru.Add(collectionID, res.(*Index))
	return nil
}

func (c *Cache) Invalidate(collectionID string) {
	c.lru.Remove(collectionID)
}

// Keys lists the cached collections, oldest first.
func (c *Cache) Keys() []string {
	return c.lru.Keys()
}

func (c *Cache) Contains(collectionID string) bool {
	return c.lru.Contains(collectionID)
}

// Exists reports whether collectionID has been ingested.
func (c *Cache) Exists(ctx context.Context, collectionID string) (bool, error) {
	if err := ValidateCollectionID(collectionID); err != nil {
		return false, err
	}
	if c.lru.Contains(collectionID) {
		return true, nil
	}
	return c.store.Exists(ctx, collectionID)
}

func (c *Cache) load(ctx context.Context, collectionID string) (*Index, error) {
	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
	defer cancel()
	start := time.Now()
	idx, err := c.store.Load(loadCtx, collectionID)
	if err != nil {
		if appErr.IsCollectionNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("load collection %q: %w", collectionID, err)
	}
	logutil.GetLogger(ctx).Debug("collection index cached",
		zap.String("collection_id", collectionID),
		zap.Int("chunks", idx.Len()),
		zap.Duration("cost", time.Since(start)),
	)
	return idx, nil
}
