package nonce_test

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/finchase/go-signing/internal/signing/nonce"
	"github/finchase/go-signing/internal/store/memory"
)

type staticChecker struct {
	known map[string]bool
}

func (c *staticChecker) WalletExists(_ context.Context, id string) (bool, error) {
	return c.known[id], nil
}

func TestAllocateSequential(t *testing.T) {
	ctx := context.Background()

	a, err := nonce.New(memory.NewNonceStore(), nil)
	require.NoError(t, err)

	for want := uint64(0); want < 5; want++ {
		got, err := a.AllocateAndIncrement(ctx, "w1", 1)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// Separate (wallet, chain) pairs carry independent counters.
	got, err := a.AllocateAndIncrement(ctx, "w1", 137)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got)

	got, err = a.AllocateAndIncrement(ctx, "w2", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got)
}

func TestAllocateConcurrentUnique(t *testing.T) {
	ctx := context.Background()

	a, err := nonce.New(memory.NewNonceStore(), nil)
	require.NoError(t, err)

	const workers = 32
	const perWorker = 25

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		nonces = make(map[uint64]int)
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				n, err := a.AllocateAndIncrement(ctx, "w1", 1)
				assert.NoError(t, err)

				mu.Lock()
				nonces[n]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, nonces, workers*perWorker, "every nonce must be handed out exactly once")
	for n, count := range nonces {
		require.Equal(t, 1, count, "nonce %d handed out %d times", n, count)
		require.Less(t, n, uint64(workers*perWorker))
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	ctx := context.Background()

	a, err := nonce.New(memory.NewNonceStore(), nil)
	require.NoError(t, err)

	next, err := a.Peek(ctx, "w1", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), next)

	_, err = a.AllocateAndIncrement(ctx, "w1", 1)
	require.NoError(t, err)

	next, err = a.Peek(ctx, "w1", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)

	next, err = a.Peek(ctx, "w1", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next, "peek must not advance the counter")
}

func TestResetOverwritesCounter(t *testing.T) {
	ctx := context.Background()

	a, err := nonce.New(memory.NewNonceStore(), nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := a.AllocateAndIncrement(ctx, "w1", 1)
		require.NoError(t, err)
	}

	require.NoError(t, a.Reset(ctx, "w1", 1, 5))

	got, err := a.AllocateAndIncrement(ctx, "w1", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got)

	// Reset backwards works too; the operator owns the consequences.
	require.NoError(t, a.Reset(ctx, "w1", 1, 0))

	got, err = a.AllocateAndIncrement(ctx, "w1", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got)
}

func TestUnknownWalletRejected(t *testing.T) {
	ctx := context.Background()

	a, err := nonce.New(memory.NewNonceStore(), &staticChecker{known: map[string]bool{"known": true}})
	require.NoError(t, err)

	_, err = a.AllocateAndIncrement(ctx, "unknown", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, nonce.ErrNoWallet))

	_, err = a.Peek(ctx, "unknown", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, nonce.ErrNoWallet))

	err = a.Reset(ctx, "unknown", 1, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, nonce.ErrNoWallet))

	_, err = a.AllocateAndIncrement(ctx, "known", 1)
	require.NoError(t, err)
}
