package intake

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackgroundWaitDrainsTasks(t *testing.T) {
	bg := NewBackground(time.Second, nil)
	var done atomic.Int32
	for i := 0; i < 5; i++ {
		bg.Go(context.Background(), "task", func(ctx context.Context) {
			time.Sleep(10 * time.Millisecond)
			done.Add(1)
		})
	}
	require.NoError(t, bg.Wait(context.Background()))
	assert.Equal(t, int32(5), done.Load())
}

func TestBackgroundTaskOutlivesParentButHasDeadline(t *testing.T) {
	bg := NewBackground(50*time.Millisecond, nil)
	parent, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "v"))
	cancel()

	var (
		parentErr atomic.Value
		value     atomic.Value
		deadline  atomic.Bool
	)
	bg.Go(parent, "task", func(ctx context.Context) {
		parentErr.Store(ctx.Err() == nil)
		value.Store(ctx.Value(ctxKey{}))
		_, ok := ctx.Deadline()
		deadline.Store(ok)
		<-ctx.Done()
	})
	require.NoError(t, bg.Wait(context.Background()))
	assert.Equal(t, true, parentErr.Load())
	assert.Equal(t, "v", value.Load())
	assert.True(t, deadline.Load())
}

type ctxKey struct{}

func TestBackgroundWaitRespectsContext(t *testing.T) {
	bg := NewBackground(time.Second, nil)
	release := make(chan struct{})
	bg.Go(context.Background(), "slow", func(ctx context.Context) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bg.Wait(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, bg.Wait(context.Background()))
}

func TestBackgroundRecoversPanics(t *testing.T) {
	bg := NewBackground(time.Second, nil)
	bg.Go(context.Background(), "panics", func(ctx context.Context) { panic("boom") })
	require.NoError(t, bg.Wait(context.Background()))
}
