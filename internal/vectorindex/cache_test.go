package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/scribe/internal/pkg/errors"
)

type countingStore struct {
	mu      sync.Mutex
	loads   atomic.Int32
	indexes map[string]*Index
	gate    chan struct{}
	err     error
}

func (s *countingStore) Load(ctx context.Context, id string) (*Index, error) {
	s.loads.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	idx, ok := s.indexes[id]
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, appErr.ErrCollectionNotFound)
	}
	return idx, nil
}

func (s *countingStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.indexes[id]
	return ok, nil
}

func (s *countingStore) EnsureCollection(ctx context.Context, id string, dim int) error {
	return nil
}

func (s *countingStore) Put(ctx context.Context, id, doc string, idx *Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[id] = idx
	return nil
}

func TestCacheLoadsOnceAndServesFromMemory(t *testing.T) {
	store := &countingStore{indexes: map[string]*Index{"dnd5e": New(2)}}
	cache := NewCache(store, 3, 0)
	ctx := context.Background()

	first, err := cache.Get(ctx, "dnd5e")
	require.NoError(t, err)
	second, err := cache.Get(ctx, "dnd5e")
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, int32(1), store.loads.Load())
	require.Equal(t, []string{"dnd5e"}, cache.Keys())
}

func TestCacheConcurrentMissesShareOneLoad(t *testing.T) {
	store := &countingStore{indexes: map[string]*Index{"dnd5e": New(2)}, gate: make(chan struct{})}
	cache := NewCache(store, 3, 0)

	var wg sync.WaitGroup
	results := make([]*Index, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			idx, err := cache.Get(context.Background(), "dnd5e")
			if err == nil {
				results[i] = idx
			}
		}(i)
	}
	require.Eventually(t, func() bool { return store.loads.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(store.gate)
	wg.Wait()

	require.Equal(t, int32(1), store.loads.Load())
	for _, idx := range results {
		require.NotNil(t, idx)
		require.Same(t, results[0], idx)
	}
}

func TestCacheNeverCachesNotFound(t *testing.T) {
	store := &countingStore{indexes: map[string]*Index{}}
	cache := NewCache(store, 3, 0)
	ctx := context.Background()

	_, err := cache.Get(ctx, "dnd5e")
	require.ErrorIs(t, err, appErr.ErrCollectionNotFound)
	require.False(t, cache.Contains("dnd5e"))

	require.NoError(t, store.Put(ctx, "dnd5e", "phb.pdf", New(2)))
	_, err = cache.Get(ctx, "dnd5e")
	require.NoError(t, err)
	require.Equal(t, int32(2), store.loads.Load())
}

func TestCacheReloadSwapsIndex(t *testing.T) {
	ctx := context.Background()
	old := New(2)
	store := &countingStore{indexes: map[string]*Index{"dnd5e": old}}
	cache := NewCache(store, 3, 0)

	held, err := cache.Get(ctx, "dnd5e")
	require.NoError(t, err)

	fresh := New(2)
	require.NoError(t, fresh.Add(chunk("a", nil, 1, 0)))
	require.NoError(t, store.Put(ctx, "dnd5e", "phb.pdf", fresh))
	require.NoError(t, cache.Reload(ctx, "dnd5e"))

	got, err := cache.Get(ctx, "dnd5e")
	require.NoError(t, err)
	require.Same(t, fresh, got)
	require.Same(t, old, held)
	require.Equal(t, 0, held.Len())
}

func TestCacheReloadFailureKeepsOldAndNotFoundDrops(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{indexes: map[string]*Index{"dnd5e": New(2)}}
	cache := NewCache(store, 3, 0)
	_, err := cache.Get(ctx, "dnd5e")
	require.NoError(t, err)

	store.err = errors.New("disk failure")
	require.Error(t, cache.Reload(ctx, "dnd5e"))
	require.True(t, cache.Contains("dnd5e"))

	store.err = nil
	delete(store.indexes, "dnd5e")
	require.ErrorIs(t, cache.Reload(ctx, "dnd5e"), appErr.ErrCollectionNotFound)
	require.False(t, cache.Contains("dnd5e"))
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{indexes: map[string]*Index{"a": New(1), "b": New(1), "c": New(1)}}
	cache := NewCache(store, 2, 0)
	for _, id := range []string{"a", "b", "c"} {
		_, err := cache.Get(ctx, id)
		require.NoError(t, err)
	}
	require.False(t, cache.Contains("a"))
	require.ElementsMatch(t, []string{"b", "c"}, cache.Keys())
}

func TestCacheGetHonoursCancellation(t *testing.T) {
	store := &countingStore{indexes: map[string]*Index{"dnd5e": New(2)}, gate: make(chan struct{})}
	defer close(store.gate)
	cache := NewCache(store, 3, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := cache.Get(ctx, "dnd5e")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCacheExistsAndValidation(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{indexes: map[string]*Index{"dnd5e": New(2)}}
	cache := NewCache(store, 3, 0)
	ok, err := cache.Exists(ctx, "dnd5e")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = cache.Exists(ctx, "pf2e")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = cache.Get(ctx, "")
	require.ErrorIs(t, err, appErr.ErrInvalid)
	require.Equal(t, int32(0), store.loads.Load())

	cache.Invalidate("dnd5e")
	require.False(t, cache.Contains("dnd5e"))
}
