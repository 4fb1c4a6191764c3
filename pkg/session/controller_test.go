package session

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"camctl/pkg/camera"
	"camctl/pkg/observer"
	"camctl/pkg/types"
)

func TestOpenTwice(t *testing.T) {
	h := openHarness(t, nil)
	if err := h.c.Open(0, vga); !errors.Is(err, ErrAlreadyOpened) {
		t.Fatalf("second open returned %v", err)
	}
	if !h.dev.Locked() || !h.dev.Previewing() {
		t.Fatal("device should be locked and previewing after open")
	}
}

func TestOpenFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.opener.FailNextOpen(errors.New("in use"))
	if err := h.c.Open(0, vga); err == nil {
		t.Fatal("open should fail")
	}
	if h.c.IsOpened() {
		t.Fatal("controller opened after a failed open")
	}
	h.open(t, vga)
	if !h.c.IsOpened() {
		t.Fatal("controller not opened")
	}
}

func TestOpenTimeoutReleasesLateDevice(t *testing.T) {
	h := newHarness(t, func(_ *camera.FakeConfig, cfg *Config) {
		cfg.OperationTimeout = 50 * time.Millisecond
	})
	h.opener.SetOpenDelay(200 * time.Millisecond)
	if err := h.c.Open(0, vga); !errors.Is(err, ErrTimeout) {
		t.Fatalf("open returned %v, want ErrTimeout", err)
	}
	if h.c.IsOpened() {
		t.Fatal("controller opened after a timeout")
	}
	eventually(t, "late device release", func() bool {
		dev := h.opener.Last()
		return dev != nil && dev.Released()
	})
}

func TestCloseWhileRecording(t *testing.T) {
	h := openHarness(t, nil)
	checkErr(t, h.c.StartRecording(types.DefaultVideoSettings(), types.NoLimit(), t.TempDir()+"/a.avi"))
	h.expectState(t, StateIdle, StateRecordingVideo)

	checkErr(t, h.c.Close())
	h.expectState(t, StateRecordingVideo, StateIdle)
	if !h.encs.last().snapshot().stopped {
		t.Fatal("encoder not stopped")
	}
	if !h.dev.Released() {
		t.Fatal("device not released")
	}
	if err := h.c.Close(); !errors.Is(err, ErrNotOpened) {
		t.Fatalf("second close returned %v", err)
	}
}

func TestDeviceErrorReleases(t *testing.T) {
	h := openHarness(t, nil)
	errs := make(chan DeviceError, 1)
	h.c.OnDeviceError(func(e DeviceError) { errs <- e })

	checkErr(t, h.c.StartRecording(types.DefaultVideoSettings(), types.NoLimit(), t.TempDir()+"/a.avi"))
	h.expectState(t, StateIdle, StateRecordingVideo)

	h.dev.InjectError(camera.ErrorServerDied, errors.New("server died"))
	select {
	case e := <-errs:
		if e.Code != camera.ErrorServerDied {
			t.Fatalf("got code %d", e.Code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no device error delivered")
	}
	h.expectState(t, StateRecordingVideo, StateIdle)
	if h.c.IsOpened() || !h.dev.Released() {
		t.Fatal("device should be released after a fault")
	}
	if !h.encs.last().snapshot().stopped {
		t.Fatal("encoder not stopped")
	}
	if _, ok := h.c.StopRecording(); ok {
		t.Fatal("stop after a fault should report nothing")
	}
}

func TestReopenAfterClose(t *testing.T) {
	h := openHarness(t, nil)
	first := h.dev
	checkErr(t, h.c.Close())
	h.open(t, vga)
	if h.dev == first {
		t.Fatal("expected a new device")
	}
	checkErr(t, h.c.TakePhoto(PhotoRequest{}))
	if p := h.expectPhoto(t); p.Err != nil {
		t.Fatal(p.Err)
	}
}

func TestFramesReachListeners(t *testing.T) {
	h := newHarness(t, func(_ *camera.FakeConfig, cfg *Config) {
		cfg.PreviewBufferDepth = 2
	})
	frames := make(chan int, 256)
	h.c.OnFrame(func(frame []byte, _ time.Time) { frames <- len(frame) })
	h.open(t, vga)

	for i := 0; i < 5; i++ {
		select {
		case n := <-frames:
			if n == 0 {
				t.Fatal("empty frame")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no preview frames")
		}
	}
	if n := h.dev.PendingBuffers(); n > 2 {
		t.Fatalf("%d buffers pending with depth 2", n)
	}

	checkErr(t, h.c.SetPreviewBufferDepth(0))
	eventually(t, "unbuffered frames", func() bool { return h.dev.PendingBuffers() == 0 })
	if err := h.c.SetPreviewBufferDepth(-1); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("negative depth returned %v", err)
	}
}

func TestStatsFollowPreview(t *testing.T) {
	h := openHarness(t, nil)
	eventually(t, "frame statistics", func() bool {
		_, ok := h.c.Stats()
		return ok
	})
	snap, _ := h.c.Stats()
	if snap.LastFps <= 0 {
		t.Fatalf("measured %f fps", snap.LastFps)
	}
}

func TestDispatcherDeliversEvents(t *testing.T) {
	var dispatched atomic.Int32
	delivered := make(chan func(), 256)
	go func() {
		for fn := range delivered {
			dispatched.Add(1)
			fn()
		}
	}()
	h := newHarness(t, func(_ *camera.FakeConfig, cfg *Config) {
		cfg.Dispatcher = observer.DispatcherFunc(func(fn func()) { delivered <- fn })
	})
	h.open(t, vga)
	checkErr(t, h.c.TakePhoto(PhotoRequest{}))

	h.expectState(t, StateIdle, StateTakingPhoto)
	h.expectState(t, StateTakingPhoto, StateIdle)
	if dispatched.Load() == 0 {
		t.Fatal("events bypassed the dispatcher")
	}
}

func mustParams(t *testing.T, c *Controller) camera.Parameters {
	t.Helper()
	p, err := c.Parameters()
	if err != nil {
		t.Fatal(err)
	}
	return p
}
