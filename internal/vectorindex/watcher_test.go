package vectorindex

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/scribe/internal/filestore"
)

func TestWatcherCollectionOf(t *testing.T) {
	root := filepath.Join(t.TempDir(), "indexes")
	w := NewWatcher(root, nil)
	require.Equal(t, "dnd5e", w.collectionOf(filepath.Join(root, "dnd5e", "manifest.json")))
	require.Equal(t, "dnd5e", w.collectionOf(filepath.Join(root, "dnd5e", "docs", "phb.pdf.idx")))
	require.Equal(t, "", w.collectionOf(filepath.Join(root, "dnd5e")))
	require.Equal(t, "", w.collectionOf(root))
	require.Equal(t, "", w.collectionOf(filepath.Join(filepath.Dir(root), "elsewhere", "x")))
}

func TestWatcherReloadsCachedCollection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := t.TempDir()
	store := NewBlobStore(filestore.NewLocalStore(dir))
	first := New(2)
	require.NoError(t, first.Add(chunk("a", nil, 1, 0)))
	require.NoError(t, store.Put(ctx, "dnd5e", "phb.pdf", first))

	cache := NewCache(store, 3, 0)
	idx, err := cache.Get(ctx, "dnd5e")
	require.NoError(t, err)
	require.Equal(t, 1, idx.Len())

	w := NewWatcher(dir, cache)
	w.debounce = 20 * time.Millisecond
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	second := New(2)
	require.NoError(t, second.Add(chunk("b", nil, 0, 1)))
	require.NoError(t, store.Put(ctx, "dnd5e", "srd.pdf", second))

	require.Eventually(t, func() bool {
		idx, err := cache.Get(ctx, "dnd5e")
		return err == nil && idx.Len() == 2
	}, 5*time.Second, 20*time.Millisecond)
}
