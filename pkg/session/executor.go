package session

import (
	"sync"
	"time"
)

// taskQueue runs blocking adapter calls on a single worker goroutine so
// callers can bound how long they wait. A call that times out abandons the
// worker: it is left to finish the wedged call and a fresh one takes over.
type taskQueue struct {
	mu    sync.Mutex
	size  int
	tasks chan func()
}

func newTaskQueue(size int) *taskQueue {
	q := &taskQueue{size: size}
	q.tasks = q.spawn()
	return q
}

func (q *taskQueue) spawn() chan func() {
	ch := make(chan func(), q.size)
	go func() {
		for fn := range ch {
			fn()
		}
	}()
	return ch
}

func (q *taskQueue) call(timeout time.Duration, fn func() error) error {
	res := make(chan error, 1)
	q.mu.Lock()
	ch := q.tasks
	select {
	case ch <- func() { res <- fn() }:
	default:
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.mu.Unlock()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case err := <-res:
		return err
	case <-t.C:
	}

	q.mu.Lock()
	if q.tasks == ch {
		close(ch)
		q.tasks = q.spawn()
		logger.Warnf("task still running after %s, worker abandoned", timeout)
	}
	q.mu.Unlock()
	return ErrTimeout
}

// looper is the callback home of one opened device. It runs on the
// goroutine that opened the device and executes posted callbacks in order
// until quit.
type looper struct {
	tasks chan func()
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newLooper() *looper {
	return &looper{
		tasks: make(chan func(), 64),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// run executes first and then serves posted callbacks.
func (l *looper) run(first func()) {
	defer close(l.done)
	first()
	for {
		select {
		case <-l.quit:
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

func (l *looper) Post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.quit:
		return false
	}
}

func (l *looper) Quit() {
	l.once.Do(func() { close(l.quit) })
}

// wait reports whether the looper exited within timeout.
func (l *looper) wait(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-l.done:
		return true
	case <-t.C:
		return false
	}
}

// future is a one-shot result handed from a worker to a waiting caller. A
// caller that gives up abandons it, and a late resolve reports false so the
// worker can clean up what it produced.
type future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	val       T
	err       error
	abandoned bool
}

func newFuture[T any]() *future[T] {
	return &future[T]{done: make(chan struct{})}
}

func (f *future[T]) resolve(v T, err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.abandoned {
		return false
	}
	f.val, f.err = v, err
	close(f.done)
	return true
}

func (f *future[T]) wait(timeout time.Duration) (T, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-f.done:
		return f.val, f.err
	case <-t.C:
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.done:
		return f.val, f.err
	default:
	}
	f.abandoned = true
	var zero T
	return zero, ErrTimeout
}
