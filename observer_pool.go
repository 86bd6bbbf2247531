package xview

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// observerPool dispatches view changes to observers asynchronously so a slow
// observer never blocks the projection commit path. Non-blocking: events are
// dropped when the buffer is full.
type observerPool struct {
	changeCh  chan *ViewChange
	workers   int
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    atomic.Bool
	dropped   atomic.Uint64
	processed atomic.Uint64
}

func newObserverPool(ctx context.Context, workers, bufferSize int) *observerPool {
	if workers < 1 {
		workers = 2
	}
	if bufferSize < 1 {
		bufferSize = 256
	}

	poolCtx, cancel := context.WithCancel(ctx)
	op := &observerPool{
		changeCh: make(chan *ViewChange, bufferSize),
		workers:  workers,
		ctx:      poolCtx,
		cancel:   cancel,
	}
	for i := 0; i < workers; i++ {
		op.wg.Add(1)
		go op.worker()
	}
	return op
}

// notify queues a view change for dispatch, dropping it if the buffer is full.
func (op *observerPool) notify(vc ViewChange, observers []ViewObserver) {
	if len(observers) == 0 || op.closed.Load() {
		return
	}
	vc.observers = make([]ViewObserver, len(observers))
	copy(vc.observers, observers)

	select {
	case op.changeCh <- &vc:
	default:
		op.dropped.Add(1)
	}
}

func (op *observerPool) worker() {
	defer op.wg.Done()
	for {
		select {
		case <-op.ctx.Done():
			// Drain remaining changes before exiting.
			for {
				select {
				case vc := <-op.changeCh:
					op.dispatch(vc)
				default:
					return
				}
			}
		case vc := <-op.changeCh:
			op.dispatch(vc)
			op.processed.Add(1)
		}
	}
}

// dispatch calls every observer, tolerating observer panics.
func (op *observerPool) dispatch(vc *ViewChange) {
	if vc == nil {
		return
	}
	for _, obs := range vc.observers {
		if obs == nil {
			continue
		}
		func() {
			defer func() { _ = recover() }()
			obs.OnViewChange(*vc)
		}()
	}
}

func (op *observerPool) close(timeout time.Duration) error {
	if op.closed.Swap(true) {
		return nil
	}
	op.cancel()

	done := make(chan struct{})
	go func() {
		op.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrObserverPoolShutdownTimeout
	}
}
