package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"camctl/pkg/session"
)

type stubCamera struct {
	mu    sync.Mutex
	calls int
	busy  bool
}

func (c *stubCamera) TakePhoto(req session.PhotoRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if !req.Name {
		panic("scheduled photos are named")
	}
	if c.busy {
		return session.ErrBusy
	}
	return nil
}

func TestSchedulerSkipsWhileBusy(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cam := &stubCamera{}
	s := New(ctx, cam)
	if err := s.Begin(10 * time.Millisecond); err != ErrInterval {
		t.Fatalf("got %v", err)
	}

	s.deal(time.Now())
	if st := s.Status(); st.Taken != 0 {
		t.Fatal("photo taken while stopped")
	}
	s.lock.Lock()
	s.status.Running = true
	s.lock.Unlock()

	s.deal(time.Now())
	cam.mu.Lock()
	cam.busy = true
	cam.mu.Unlock()
	s.deal(time.Now())
	st := s.Status()
	if st.Taken != 1 || st.Skipped != 1 {
		t.Fatalf("status %+v", st)
	}
}

func TestSchedulerTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cam := &stubCamera{}
	s := New(ctx, cam)
	if err := s.Begin(MinInterval); err != nil {
		t.Fatal(err)
	}
	time.Sleep(MinInterval + 300*time.Millisecond)
	s.Stop()
	if st := s.Status(); st.Taken < 1 || st.Running {
		t.Fatalf("status %+v", st)
	}
}
