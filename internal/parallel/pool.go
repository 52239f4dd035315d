// Package parallel runs batches of work on a fixed set of goroutines.
package parallel

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// PanicError is returned by Run when a work item panics. Value is the
// first recovered panic value of the batch.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("parallel: work panicked: %v", e.Value)
}

// WorkerPool is a pool of goroutines for data-parallel batches.
//
// Each worker owns a queue. Run distributes a batch round-robin and idle
// workers steal from other queues, which balances batches whose items
// take uneven time.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan func()

	// closeMu keeps Close from closing done while Run is queueing.
	closeMu sync.RWMutex
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewWorkerPool starts a pool with the given number of workers. If
// workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	mine := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drain(mine)
			return
		case work := <-mine:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drain(mine)
				return
			case work := <-mine:
				work()
			}
		}
	}
}

func (p *WorkerPool) drain(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(myID int) func() {
	for i := range p.workers {
		if i == myID {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// Run executes every item and waits for all of them. A panicking item
// does not stop the others; the first panic is returned as *PanicError.
// After Close, items run on the calling goroutine.
func (p *WorkerPool) Run(work []func()) error {
	var (
		wg    sync.WaitGroup
		first atomic.Pointer[PanicError]
	)
	wrap := func(fn func()) func() {
		return func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					first.CompareAndSwap(nil, &PanicError{Value: r})
				}
			}()
			fn()
		}
	}

	wg.Add(len(work))
	p.closeMu.RLock()
	running := p.running.Load()
	for i, fn := range work {
		item := wrap(fn)
		if !running {
			item()
			continue
		}
		p.workQueues[i%p.workers] <- item
	}
	p.closeMu.RUnlock()
	wg.Wait()

	if pe := first.Load(); pe != nil {
		return pe
	}
	return nil
}

// Rows splits [0, height) into contiguous bands of at least minRows rows,
// about one per worker, and runs fn on each band.
func (p *WorkerPool) Rows(height, minRows int, fn func(y0, y1 int)) error {
	if height <= 0 {
		return nil
	}
	band := max((height+p.workers-1)/p.workers, minRows, 1)
	work := make([]func(), 0, (height+band-1)/band)
	for y0 := 0; y0 < height; y0 += band {
		y1 := min(y0+band, height)
		work = append(work, func() { fn(y0, y1) })
	}
	return p.Run(work)
}

// Close stops the workers. Queued work finishes first. Close is safe to
// call multiple times.
func (p *WorkerPool) Close() {
	p.closeMu.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.closeMu.Unlock()
		return
	}
	close(p.done)
	p.closeMu.Unlock()
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
