package scheduler

import (
	"context"
	"sync"

	"github.com/pulseboard/pulseboard/internal/widget"
)

// refreshPool is a fixed-size goroutine pool with a bounded queue of
// widget refresh jobs. Refreshes for distinct widgets run concurrently;
// serialization per widget is the scheduler's lock, not the pool's.
type refreshPool struct {
	queue chan widget.Spec
	run   func(ctx context.Context, spec widget.Spec)
	wg    sync.WaitGroup
}

// newRefreshPool starts n workers with queue capacity depth.
func newRefreshPool(ctx context.Context, n, depth int, run func(context.Context, widget.Spec)) *refreshPool {
	p := &refreshPool{
		queue: make(chan widget.Spec, depth),
		run:   run,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case spec, ok := <-p.queue:
					if !ok {
						return
					}
					p.run(ctx, spec)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	return p
}

// Submit enqueues a refresh without blocking (returns false if full).
func (p *refreshPool) Submit(spec widget.Spec) bool {
	select {
	case p.queue <- spec:
		return true
	default:
		return false
	}
}

// Drain closes the queue and waits for in-flight refreshes to finish.
func (p *refreshPool) Drain() {
	close(p.queue)
	p.wg.Wait()
}

func (p *refreshPool) QueueLen() int { return len(p.queue) }
func (p *refreshPool) QueueCap() int { return cap(p.queue) }
