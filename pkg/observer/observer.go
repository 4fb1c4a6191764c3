package observer

import (
	"sync"

	"go.uber.org/zap"
)

// Dispatcher runs notifications on a context chosen by the application,
// for example a UI loop or a test harness channel.
type Dispatcher interface {
	Dispatch(fn func())
}

type DispatcherFunc func(fn func())

func (f DispatcherFunc) Dispatch(fn func()) {
	f(fn)
}

// Registry holds the callbacks of one event kind. Notify iterates over a
// copy, so callbacks may add or remove entries while being notified.
type Registry[T any] struct {
	mu    sync.Mutex
	next  uint64
	ids   []uint64
	items map[uint64]T
}

// Add registers fn and returns a function removing it again.
func (r *Registry[T]) Add(fn T) (remove func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.items == nil {
		r.items = make(map[uint64]T)
	}
	r.next++
	id := r.next
	r.ids = append(r.ids, id)
	r.items[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.items[id]; !ok {
			return
		}
		delete(r.items, id)
		for i, v := range r.ids {
			if v == id {
				r.ids = append(r.ids[:i:i], r.ids[i+1:]...)
				break
			}
		}
	}
}

// Snapshot returns the registered callbacks in registration order.
func (r *Registry[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]T, 0, len(r.ids))
	for _, id := range r.ids {
		res = append(res, r.items[id])
	}

	return res
}

func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = nil
	r.items = nil
}

// Queue delivers posted notifications in posting order.
//
// Post only appends and is safe to call while holding other locks. Flush
// delivers everything pending; if another goroutine is already flushing, the
// call returns immediately and that goroutine delivers the new entries too.
// A callback that posts and flushes again from inside a notification therefore
// never deadlocks, its entries are delivered after the current one returns.
type Queue struct {
	mu       sync.Mutex
	pending  []func()
	draining bool

	target Dispatcher
	logger *zap.SugaredLogger
}

func NewQueue(target Dispatcher, logger *zap.SugaredLogger) *Queue {
	return &Queue{target: target, logger: logger}
}

func (q *Queue) Post(fn func()) {
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	q.mu.Unlock()
}

func (q *Queue) Flush() {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	for len(q.pending) > 0 {
		fn := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()
		q.deliver(fn)
		q.mu.Lock()
	}
	q.pending = nil
	q.draining = false
	q.mu.Unlock()
}

func (q *Queue) deliver(fn func()) {
	if q.target != nil {
		q.target.Dispatch(fn)
		return
	}
	defer func() {
		if r := recover(); r != nil && q.logger != nil {
			q.logger.Errorf("listener panicked: %v", r)
		}
	}()
	fn()
}
