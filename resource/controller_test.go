package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_NilIsNoop(t *testing.T) {
	var c *Controller
	ctx := context.Background()

	require.NoError(t, c.AcquireMemory(ctx, 1<<30))
	c.ReleaseMemory(1 << 30)
	assert.Equal(t, int64(0), c.MemoryUsage())
	require.NoError(t, c.AcquireIO(ctx, 1<<20))
}

func TestController_TracksMemory(t *testing.T) {
	c := NewController(Config{})
	ctx := context.Background()

	require.NoError(t, c.AcquireMemory(ctx, 100))
	require.NoError(t, c.AcquireMemory(ctx, 50))
	assert.Equal(t, int64(150), c.MemoryUsage())

	c.ReleaseMemory(100)
	assert.Equal(t, int64(50), c.MemoryUsage())

	c.ReleaseMemory(50)
	assert.Equal(t, int64(0), c.MemoryUsage())
}

func TestController_MemoryLimitBlocks(t *testing.T) {
	c := NewController(Config{CalibrationMemoryBytes: 100})

	require.NoError(t, c.AcquireMemory(context.Background(), 80))

	// Second acquisition exceeds the limit and must block until release or
	// context cancellation.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.AcquireMemory(ctx, 80)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(80), c.MemoryUsage())

	c.ReleaseMemory(80)
	require.NoError(t, c.AcquireMemory(context.Background(), 80))
	c.ReleaseMemory(80)
}

func TestController_ZeroBytesIsFree(t *testing.T) {
	c := NewController(Config{CalibrationMemoryBytes: 10})
	ctx := context.Background()

	require.NoError(t, c.AcquireMemory(ctx, 0))
	require.NoError(t, c.AcquireMemory(ctx, -5))
	assert.Equal(t, int64(0), c.MemoryUsage())
}

func TestController_IOUnlimitedByDefault(t *testing.T) {
	c := NewController(Config{})

	start := time.Now()
	require.NoError(t, c.AcquireIO(context.Background(), 1<<30))
	assert.Less(t, time.Since(start), time.Second)
}

func TestController_IORateLimited(t *testing.T) {
	// 1 KiB/s with a 1 KiB burst: the second request of a full burst cannot
	// be admitted immediately.
	c := NewController(Config{ArtifactIOBytesPerSec: 1024})
	ctx := context.Background()

	require.NoError(t, c.AcquireIO(ctx, 1024))

	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := c.AcquireIO(shortCtx, 1024)
	require.Error(t, err)
}
