package observer

import (
	"sync"
	"testing"
)

func TestRegistryRemoveDuringNotify(t *testing.T) {
	var r Registry[func(int)]
	var got []int
	var removeSecond func()
	r.Add(func(v int) {
		got = append(got, v)
		removeSecond()
	})
	removeSecond = r.Add(func(v int) { got = append(got, v*10) })

	for _, fn := range r.Snapshot() {
		fn(1)
	}
	for _, fn := range r.Snapshot() {
		fn(2)
	}

	want := []int{1, 10, 2}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if r.Len() != 1 {
		t.Fatalf("expected one listener left, got %d", r.Len())
	}
}

func TestQueueKeepsOrderOnReentrantFlush(t *testing.T) {
	q := NewQueue(nil, nil)
	var order []string

	q.Post(func() {
		order = append(order, "a")
		q.Post(func() { order = append(order, "c") })
		q.Flush()
		order = append(order, "a-done")
	})
	q.Post(func() { order = append(order, "b") })
	q.Flush()

	want := []string{"a", "a-done", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestQueueDispatcher(t *testing.T) {
	ch := make(chan func(), 4)
	q := NewQueue(DispatcherFunc(func(fn func()) { ch <- fn }), nil)

	var mu sync.Mutex
	n := 0
	for i := 0; i < 3; i++ {
		q.Post(func() {
			mu.Lock()
			n++
			mu.Unlock()
		})
	}
	q.Flush()
	if len(ch) != 3 {
		t.Fatalf("expected 3 dispatched notifications, got %d", len(ch))
	}
	for len(ch) > 0 {
		(<-ch)()
	}
	if n != 3 {
		t.Fatalf("expected 3 deliveries, got %d", n)
	}
}

func TestQueueRecoversListenerPanic(t *testing.T) {
	q := NewQueue(nil, nil)
	ran := false
	q.Post(func() { panic("boom") })
	q.Post(func() { ran = true })
	q.Flush()
	if !ran {
		t.Fatal("queue stopped after a panicking listener")
	}
}
