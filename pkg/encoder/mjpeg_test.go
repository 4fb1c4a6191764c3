package encoder

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"camctl/pkg/camera"
	"camctl/pkg/types"
)

type goLooper struct{}

func (goLooper) Post(fn func()) bool {
	go fn()
	return true
}

func openUnlocked(t *testing.T, fps float64) camera.Device {
	t.Helper()
	cfg := camera.DefaultFakeConfig()
	cfg.FrameRate = fps
	dev, err := camera.NewFakeOpener(cfg).Open(0, goLooper{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = dev.Release() })
	if err = dev.Unlock(); err != nil {
		t.Fatal(err)
	}
	return dev
}

func TestMJPEGRecord(t *testing.T) {
	dev := openUnlocked(t, 100)
	out := filepath.Join(t.TempDir(), "VID_test.avi")

	e := NewMJPEG()
	if err := e.SetCamera(dev); err != nil {
		t.Fatal(err)
	}
	if err := e.SetProfile(MJPEGProfile(types.QualityQVGA, types.Size{Width: 320, Height: 240}, 30)); err != nil {
		t.Fatal(err)
	}
	if err := e.SetAudioEncoder(types.AudioEncoderAAC); err != nil {
		t.Fatal(err)
	}
	if err := e.SetOutputFile(out); err != nil {
		t.Fatal(err)
	}
	if err := e.Prepare(); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}
	if e.Frames() == 0 {
		t.Fatal("no frames written")
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("RIFF")) || !bytes.Contains(data[:16], []byte("AVI ")) {
		t.Fatal("output is not an avi file")
	}
	e.Release()
}

func TestMJPEGSizeLimit(t *testing.T) {
	dev := openUnlocked(t, 100)

	e := NewMJPEG()
	info := make(chan int, 1)
	e.SetInfoCallback(func(what, _ int) { info <- what })
	_ = e.SetCamera(dev)
	_ = e.SetVideoSize(types.Size{Width: 320, Height: 240})
	_ = e.SetMaxFileSize(1)
	_ = e.SetOutputFile(filepath.Join(t.TempDir(), "limit.avi"))
	if err := e.Prepare(); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	defer e.Release()

	select {
	case what := <-info:
		if what != InfoMaxFileSizeReached {
			t.Fatalf("got info %d", what)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("size limit not reported")
	}
	// nothing is written past the limit
	n := e.Frames()
	time.Sleep(50 * time.Millisecond)
	if e.Frames() != n {
		t.Fatal("frames written after the limit")
	}
}

func TestMJPEGRejects(t *testing.T) {
	e := NewMJPEG()
	if err := e.SetVideoEncoder(types.VideoEncoderH264); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("h264: %v", err)
	}
	if err := e.SetOutputFormat(types.OutputFormatMPEG4); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("mp4: %v", err)
	}
	if err := e.Start(); !errors.Is(err, ErrState) {
		t.Fatalf("start before prepare: %v", err)
	}
	if err := e.Prepare(); err == nil {
		t.Fatal("prepare without a camera")
	}
}

func TestMJPEGStopWithoutFrames(t *testing.T) {
	dev := openUnlocked(t, 0)
	out := filepath.Join(t.TempDir(), "empty.avi")

	e := NewMJPEG()
	_ = e.SetCamera(dev)
	_ = e.SetVideoSize(types.Size{Width: 320, Height: 240})
	_ = e.SetOutputFile(out)
	if err := e.Prepare(); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	if err := e.Stop(); !errors.Is(err, ErrNoFrames) {
		t.Fatalf("expected ErrNoFrames, got %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatal("empty recording left behind")
	}
}

func TestProfileTable(t *testing.T) {
	table := NewProfileTable()
	table.RegisterSizes(0, camera.DefaultFakeConfig().VideoSizes, 0)

	p, ok := table.Profile(0, types.Quality720P)
	if !ok || p.Size() != (types.Size{Width: 1280, Height: 720}) || p.VideoFrameRate != types.DefaultVideoFrameRate {
		t.Fatalf("720p: %+v %v", p, ok)
	}
	if _, ok = table.Profile(0, types.QualityCIF); ok {
		t.Fatal("cif is not a supported size")
	}
	if p, _ = table.Profile(0, types.QualityHigh); p.VideoFrameWidth != 1920 {
		t.Fatalf("high: %+v", p)
	}
	if p, _ = table.Profile(0, types.QualityLow); p.VideoFrameWidth != 320 {
		t.Fatalf("low: %+v", p)
	}
	if _, ok = table.Profile(1, types.QualityHigh); ok {
		t.Fatal("unknown device has profiles")
	}
}
