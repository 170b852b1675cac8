// Package cachetest holds behavior tests shared by every cache.Cache
// implementation.
package cachetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsbridge/pkg/cache"
)

// Run exercises a fresh cache returned by newCache. The cache is closed by
// the suite.
func Run(t *testing.T, newCache func(t *testing.T) cache.Cache) {
	t.Run("MissOnEmpty", func(t *testing.T) {
		c := newCache(t)
		defer c.Close()

		_, ok, err := c.Lookup(context.Background(), "abc")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("PutLookupEvict", func(t *testing.T) {
		c := newCache(t)
		defer c.Close()
		ctx := context.Background()

		stored := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
		modified := time.Date(2026, 3, 14, 9, 26, 52, 123456789, time.Local)
		want := cache.Entry{Path: "/data/f.bin", Size: 11, ModTime: modified, StoredAt: stored}
		require.NoError(t, c.Put(ctx, "d1", want))

		got, ok, err := c.Lookup(ctx, "d1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want.Path, got.Path)
		assert.Equal(t, want.Size, got.Size)
		assert.True(t, want.StoredAt.Equal(got.StoredAt))
		assert.True(t, want.ModTime.Equal(got.ModTime), "mod time keeps nanoseconds")

		n, err := c.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		require.NoError(t, c.Evict(ctx, "d1"))
		_, ok, err = c.Lookup(ctx, "d1")
		require.NoError(t, err)
		assert.False(t, ok)

		assert.NoError(t, c.Evict(ctx, "never-stored"))
	})

	t.Run("PutReplaces", func(t *testing.T) {
		c := newCache(t)
		defer c.Close()
		ctx := context.Background()

		require.NoError(t, c.Put(ctx, "d", cache.Entry{Path: "/a"}))
		require.NoError(t, c.Put(ctx, "d", cache.Entry{Path: "/b"}))

		got, ok, err := c.Lookup(ctx, "d")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "/b", got.Path)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		c := newCache(t)
		defer c.Close()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, c.Put(ctx, "d", cache.Entry{}), context.Canceled)
		_, _, err := c.Lookup(ctx, "d")
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("Concurrent", func(t *testing.T) {
		c := newCache(t)
		defer c.Close()
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				digest := fmt.Sprintf("d%02d", i)
				assert.NoError(t, c.Put(ctx, digest, cache.Entry{Path: "/p/" + digest}))
				_, ok, err := c.Lookup(ctx, digest)
				assert.NoError(t, err)
				assert.True(t, ok)
			}(i)
		}
		wg.Wait()

		n, err := c.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 16, n)
	})

	t.Run("Closed", func(t *testing.T) {
		c := newCache(t)
		require.NoError(t, c.Close())

		_, _, err := c.Lookup(context.Background(), "d")
		assert.ErrorIs(t, err, cache.ErrClosed)
	})
}
