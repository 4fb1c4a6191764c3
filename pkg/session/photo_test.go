package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"camctl/pkg/camera"
	"camctl/pkg/types"
	"camctl/pkg/utils/image"
)

func TestPhotoToFile(t *testing.T) {
	h := openHarness(t, nil)
	file := filepath.Join(t.TempDir(), "photos", "a.jpg")
	checkErr(t, h.c.TakePhoto(PhotoRequest{File: file}))
	h.expectState(t, StateIdle, StateTakingPhoto)
	h.expectState(t, StateTakingPhoto, StateIdle)

	p := h.expectPhoto(t)
	if p.Err != nil {
		t.Fatal(p.Err)
	}
	if p.File != file || p.Data != nil {
		t.Fatalf("unexpected result %+v", p)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = image.DecodeJPEG(data); err != nil {
		t.Fatal(err)
	}
	if !h.dev.Previewing() {
		t.Fatal("preview not restored after capture")
	}
	if n := h.dev.Stats().AutoFocusRequests; n != 1 {
		t.Fatalf("%d autofocus requests", n)
	}
}

func TestPhotoToBytes(t *testing.T) {
	h := openHarness(t, nil)
	checkErr(t, h.c.TakePhoto(PhotoRequest{}))
	p := h.expectPhoto(t)
	if p.Err != nil {
		t.Fatal(p.Err)
	}
	if len(p.Data) == 0 || p.File != "" {
		t.Fatalf("unexpected result %+v", p)
	}
	if p.Size != mustParams(t, h.c).PictureSize {
		t.Fatalf("photo size %s", p.Size)
	}
}

type photoNamer struct{ dir string }

func (n photoNamer) PhotoPath(size types.Size) (string, error) {
	return filepath.Join(n.dir, "IMG_"+size.String()+".jpg"), nil
}

func (n photoNamer) VideoPath(size types.Size, f types.OutputFormat) (string, error) {
	return filepath.Join(n.dir, "VID_"+size.String()+"."+f.Ext()), nil
}

func TestPhotoNamed(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, func(_ *camera.FakeConfig, cfg *Config) {
		cfg.Namer = photoNamer{dir: dir}
	})
	h.open(t, vga)
	checkErr(t, h.c.TakePhoto(PhotoRequest{Name: true}))
	p := h.expectPhoto(t)
	if p.Err != nil {
		t.Fatal(p.Err)
	}
	if filepath.Dir(p.File) != dir {
		t.Fatalf("photo written to %s", p.File)
	}
	if _, err := os.Stat(p.File); err != nil {
		t.Fatal(err)
	}
}

func TestPhotoWithoutNamer(t *testing.T) {
	h := openHarness(t, nil)
	if err := h.c.TakePhoto(PhotoRequest{Name: true}); !errors.Is(err, ErrNoOutput) {
		t.Fatalf("got %v", err)
	}
	h.expectNoState(t)
}

func TestPhotoPreconditions(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.c.TakePhoto(PhotoRequest{}); !errors.Is(err, ErrNotOpened) {
		t.Fatalf("got %v before open", err)
	}
	h.open(t, nil)
	if err := h.c.TakePhoto(PhotoRequest{}); !errors.Is(err, ErrTargetNotReady) {
		t.Fatalf("got %v without a target", err)
	}
	h.expectNoState(t)
}

func TestBusyRejection(t *testing.T) {
	h := openHarness(t, func(fc *camera.FakeConfig, cfg *Config) {
		fc.AutoFocusSilent = true
		cfg.AutoFocusTimeout = 300 * time.Millisecond
	})
	checkErr(t, h.c.TakePhoto(PhotoRequest{}))
	h.expectState(t, StateIdle, StateTakingPhoto)

	if err := h.c.TakePhoto(PhotoRequest{}); !errors.Is(err, ErrBusy) {
		t.Fatalf("second photo returned %v", err)
	}
	if err := h.c.StartRecording(types.DefaultVideoSettings(), types.NoLimit(), t.TempDir()+"/a.avi"); !errors.Is(err, ErrBusy) {
		t.Fatalf("recording during a capture returned %v", err)
	}
	if err := h.c.SetZoom(3); !errors.Is(err, ErrBusy) {
		t.Fatalf("zoom during a capture returned %v", err)
	}
	if s := h.c.State(); s != StateTakingPhoto {
		t.Fatalf("state %s", s)
	}
	h.expectNoState(t)
	if h.encs.last() != nil {
		t.Fatal("encoder created during a capture")
	}

	if p := h.expectPhoto(t); p.Err != nil {
		t.Fatal(p.Err)
	}
	h.expectState(t, StateTakingPhoto, StateIdle)
}

func TestAutoFocusTimeout(t *testing.T) {
	h := openHarness(t, func(fc *camera.FakeConfig, cfg *Config) {
		fc.AutoFocusSilent = true
		cfg.AutoFocusTimeout = 50 * time.Millisecond
	})
	start := time.Now()
	checkErr(t, h.c.TakePhoto(PhotoRequest{}))
	if p := h.expectPhoto(t); p.Err != nil {
		t.Fatal(p.Err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Fatal("captured before the autofocus timeout")
	}
	eventually(t, "idle", func() bool { return h.c.State() == StateIdle })
	if n := h.dev.Stats().Pictures; n != 1 {
		t.Fatalf("%d pictures taken", n)
	}
}

func TestAutoFocusTimerCancelled(t *testing.T) {
	h := openHarness(t, func(_ *camera.FakeConfig, cfg *Config) {
		cfg.AutoFocusTimeout = 100 * time.Millisecond
	})
	checkErr(t, h.c.TakePhoto(PhotoRequest{}))
	if p := h.expectPhoto(t); p.Err != nil {
		t.Fatal(p.Err)
	}
	time.Sleep(200 * time.Millisecond)
	if n := h.dev.Stats().Pictures; n != 1 {
		t.Fatalf("%d pictures taken, the focus timer fired after focusing", n)
	}
	if s := h.c.State(); s != StateIdle {
		t.Fatalf("state %s", s)
	}
}

func TestFixedFocusSkipsAutoFocus(t *testing.T) {
	h := openHarness(t, nil)
	checkErr(t, h.c.SetFocusMode(types.FocusFixed))
	checkErr(t, h.c.TakePhoto(PhotoRequest{}))
	if p := h.expectPhoto(t); p.Err != nil {
		t.Fatal(p.Err)
	}
	if n := h.dev.Stats().AutoFocusRequests; n != 0 {
		t.Fatalf("%d autofocus requests with fixed focus", n)
	}
}

func TestUnexpectedCaptureCallbackPanics(t *testing.T) {
	h := openHarness(t, nil)
	h.c.mu.Lock()
	gen := h.c.gen
	h.c.mu.Unlock()

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for a picture nobody asked for")
		}
		if s := h.c.State(); s != StateIdle {
			t.Fatalf("state %s", s)
		}
	}()
	h.c.jpegCallback(gen, 42)([]byte{0xff, 0xd8})
}

func TestStaleCaptureCallbackIgnored(t *testing.T) {
	h := openHarness(t, nil)
	h.c.mu.Lock()
	gen := h.c.gen
	h.c.mu.Unlock()

	checkErr(t, h.c.Close())
	h.open(t, vga)
	h.c.jpegCallback(gen, 1)([]byte{0xff, 0xd8})
	select {
	case p := <-h.photos:
		t.Fatalf("stale callback delivered %+v", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLateCaptureAfterTriggerTimeout(t *testing.T) {
	h := openHarness(t, func(fc *camera.FakeConfig, cfg *Config) {
		fc.TriggerDelay = 150 * time.Millisecond
		cfg.OperationTimeout = 50 * time.Millisecond
	})
	checkErr(t, h.c.SetFocusMode(types.FocusFixed))
	if err := h.c.TakePhoto(PhotoRequest{}); !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	h.expectState(t, StateIdle, StateTakingPhoto)
	h.expectState(t, StateTakingPhoto, StateIdle)

	// the device finishes the abandoned capture and answers anyway
	eventually(t, "the late trigger", func() bool { return h.dev.Stats().Pictures == 1 })
	select {
	case p := <-h.photos:
		t.Fatalf("abandoned capture delivered %+v", p)
	case <-time.After(100 * time.Millisecond):
	}
	if s := h.c.State(); s != StateIdle {
		t.Fatalf("state %s", s)
	}
	h.expectNoState(t)
	if !h.c.IsOpened() {
		t.Fatal("controller closed by a late capture")
	}
}
