package intake

import (
	"context"
	"sync"
	"time"

	"github.com/incierge/incierge-intake/pkg/logging"
)

const defaultSideEffectTimeout = 10 * time.Second

// Background runs post-response side effects. Tasks outlive the request
// context but are bounded by their own timeout, and Wait lets shutdown drain them.
type Background struct {
	wg      sync.WaitGroup
	timeout time.Duration
	logger  *logging.Logger
}

func NewBackground(timeout time.Duration, logger *logging.Logger) *Background {
	if timeout <= 0 {
		timeout = defaultSideEffectTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Background{timeout: timeout, logger: logger}
}

// Go starts fn detached from ctx's cancellation while keeping its values.
func (b *Background) Go(ctx context.Context, name string, fn func(ctx context.Context)) {
	detached := context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		taskCtx, cancel := context.WithTimeout(detached, b.timeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("background task panicked", "task", name, "panic", r)
			}
		}()
		fn(taskCtx)
	}()
}

// Wait blocks until every started task finished or ctx is done.
func (b *Background) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
