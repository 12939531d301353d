package concurrent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForEach_RunsAll(t *testing.T) {
	var total atomic.Int64
	err := ForEach([]int64{1, 2, 3, 4}, func(n int64) error {
		total.Add(n)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), total.Load())
}

func TestForEach_ReturnsError(t *testing.T) {
	boom := errors.New("boom")
	err := ForEach([]int{1, 2, 3}, func(n int) error {
		if n == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestFirst_ReturnsFirstSuccess(t *testing.T) {
	got, err := First(context.Background(), []int{1, 2, 3}, func(ctx context.Context, n int) (int, error) {
		if n != 2 {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return n * 10, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 20, got)
}

func TestFirst_AllFail(t *testing.T) {
	_, err := First(context.Background(), []int{1, 2}, func(context.Context, int) (int, error) {
		return 0, errors.New("refused")
	})
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestFirst_CancelsLosers(t *testing.T) {
	var cancelled atomic.Int32
	_, err := First(context.Background(), []int{1, 2, 3}, func(ctx context.Context, n int) (int, error) {
		if n == 1 {
			return n, nil
		}
		select {
		case <-ctx.Done():
			cancelled.Add(1)
			return 0, ctx.Err()
		case <-time.After(5 * time.Second):
			return n, nil
		}
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return cancelled.Load() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestFirst_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := First(ctx, []int{1}, func(ctx context.Context, _ int) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.Error(t, err)
}
