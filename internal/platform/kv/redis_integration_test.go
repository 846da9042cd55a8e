//go:build integration

package kv

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solrelay/pkg/testutil/containers"
)

func TestRedisBackendAgainstRealServer(t *testing.T) {
	ctx := context.Background()
	backend := NewRedisBackend(containers.Redis(t))

	t.Run("one winner across concurrent claims", func(t *testing.T) {
		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 32 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, err := backend.SetIfAbsent(ctx, "nonce:it", time.Minute); err == nil && ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("window counter expires", func(t *testing.T) {
		n, err := backend.Incr(ctx, "rl:it:0", 200*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		require.Eventually(t, func() bool {
			_, err := backend.Get(ctx, "rl:it:0")
			return err != nil
		}, 2*time.Second, 50*time.Millisecond)
	})

	t.Run("list trims to capacity", func(t *testing.T) {
		for _, v := range []string{"a", "b", "c"} {
			require.NoError(t, backend.PushHead(ctx, "activity:it", v))
		}
		require.NoError(t, backend.Trim(ctx, "activity:it", 2))
		got, err := backend.Range(ctx, "activity:it", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "b"}, got)
	})

	assert.Equal(t, StatusReady, backend.Status(ctx))
}
