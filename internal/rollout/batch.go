package rollout

import (
	"context"
	"fmt"
	"sync"

	"github.com/samcharles93/rollout/internal/chat"
)

// semaphore bounds concurrent rollouts. A nil semaphore is unlimited.
type semaphore struct {
	ch chan struct{}
}

func newSemaphore(n int) *semaphore {
	if n <= 0 {
		return nil
	}
	return &semaphore{ch: make(chan struct{}, n)}
}

func (s *semaphore) acquire(ctx context.Context) bool {
	if s == nil {
		return true
	}
	select {
	case s.ch <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *semaphore) release() {
	if s != nil {
		<-s.ch
	}
}

// RunBatch rolls out every request with at most concurrency samples in
// flight (0 means one goroutine per sample). Traces keep input order. The
// first failure cancels the remaining samples and is returned.
func (r *Runner) RunBatch(ctx context.Context, reqs []*chat.InferRequest, concurrency int) ([]*Trace, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	traces := make([]*Trace, len(reqs))
	sem := newSemaphore(concurrency)

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i, req := range reqs {
		if !sem.acquire(ctx) {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.release()
			t, err := r.Run(ctx, req)
			if err != nil {
				fail(fmt.Errorf("sample %d: %w", i, err))
				return
			}
			traces[i] = t
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return traces, nil
}
