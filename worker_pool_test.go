package layerpress

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_RunsTasks(t *testing.T) {
	pool := newWorkerPool(4)
	defer pool.close()

	var counter atomic.Int64
	var wg sync.WaitGroup

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		wg.Add(1)
		err := pool.submit(ctx, func() {
			defer wg.Done()
			counter.Add(1)
		})
		require.NoError(t, err)
	}

	wg.Wait()
	assert.Equal(t, int64(100), counter.Load())
}

func TestWorkerPool_SubmitAfterClose(t *testing.T) {
	pool := newWorkerPool(2)
	pool.close()

	err := pool.submit(context.Background(), func() {})
	require.ErrorIs(t, err, ErrPoolClosed)
}

func TestWorkerPool_CloseIsIdempotent(t *testing.T) {
	pool := newWorkerPool(2)
	pool.close()
	pool.close()
}

func TestWorkerPool_SubmitCanceledContext(t *testing.T) {
	pool := newWorkerPool(1)
	defer pool.close()

	// Saturate the single worker and the channel buffer so the next submit
	// has to block, then cancel.
	block := make(chan struct{})
	defer close(block)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = pool.submit(ctx, func() { <-block })
	}

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	err := pool.submit(canceled, func() {})
	require.ErrorIs(t, err, context.Canceled)
}
