package session

import (
	"errors"
	"testing"

	"camctl/pkg/camera"
	"camctl/pkg/types"
)

func TestUnsupportedValuesKeepPrevious(t *testing.T) {
	h := openHarness(t, nil)
	before := mustParams(t, h.c)

	checks := []struct {
		name string
		set  func() error
	}{
		{"preview size", func() error { return h.c.SetPreviewSize(types.Size{Width: 123, Height: 45}) }},
		{"picture size", func() error { return h.c.SetPictureSize(types.Size{Width: 1, Height: 1}) }},
		{"flash", func() error { return h.c.SetFlashMode(types.FlashTorch) }},
		{"effect", func() error { return h.c.SetColorEffect(types.EffectNegative) }},
		{"white balance", func() error { return h.c.SetWhiteBalance(types.WhiteBalanceCloudy) }},
		{"jpeg quality", func() error { return h.c.SetJPEGQuality(101) }},
		{"stabilization", func() error { return h.c.SetVideoStabilization(true) }},
		{"fps range", func() error { return h.c.SetPreviewFpsRange(types.FpsRange{Min: 1, Max: 2}) }},
		{"zoom", func() error { return h.c.SetZoom(11) }},
	}
	for _, c := range checks {
		if err := c.set(); !errors.Is(err, ErrUnsupported) {
			t.Fatalf("%s: got %v", c.name, err)
		}
	}

	after := mustParams(t, h.c)
	if after.PreviewSize != before.PreviewSize || after.PictureSize != before.PictureSize {
		t.Fatalf("sizes changed to %s / %s", after.PreviewSize, after.PictureSize)
	}
	if after.FlashMode != before.FlashMode || after.ColorEffect != before.ColorEffect ||
		after.WhiteBalance != before.WhiteBalance || after.Zoom != before.Zoom {
		t.Fatal("an unsupported value was applied")
	}
	dev, err := h.dev.Parameters()
	if err != nil {
		t.Fatal(err)
	}
	if dev.PreviewSize != before.PreviewSize {
		t.Fatalf("device preview size %s", dev.PreviewSize)
	}
	if !h.dev.Previewing() {
		t.Fatal("preview stopped by a rejected value")
	}
}

func TestSupportedValuesApplied(t *testing.T) {
	h := openHarness(t, nil)
	checkErr(t, h.c.SetPreviewSize(types.Size{Width: 1280, Height: 720}))
	checkErr(t, h.c.SetPictureSize(types.Size{Width: 1920, Height: 1080}))
	checkErr(t, h.c.SetFlashMode(types.FlashOn))
	checkErr(t, h.c.SetColorEffect(types.EffectSepia))
	checkErr(t, h.c.SetJPEGQuality(80))
	checkErr(t, h.c.SetControl(0x00980900, 42))

	p, err := h.dev.Parameters()
	if err != nil {
		t.Fatal(err)
	}
	if p.PreviewSize != (types.Size{Width: 1280, Height: 720}) || p.PictureSize != (types.Size{Width: 1920, Height: 1080}) {
		t.Fatalf("sizes %s / %s", p.PreviewSize, p.PictureSize)
	}
	if p.FlashMode != types.FlashOn || p.ColorEffect != types.EffectSepia || p.JPEGQuality != 80 {
		t.Fatalf("parameters %+v", p)
	}
	if p.Controls[0x00980900] != 42 {
		t.Fatal("control not applied")
	}
	if !h.dev.Previewing() {
		t.Fatal("preview not restarted after a size change")
	}
	s := h.c.CameraSettings()
	if s.PreviewSize != p.PreviewSize || s.FlashMode != types.FlashOn {
		t.Fatal("settings not remembered")
	}
}

func TestSetParametersFailureKeepsPrevious(t *testing.T) {
	h := openHarness(t, nil)
	before := mustParams(t, h.c)
	h.dev.FailSetParameters(errors.New("io error"))
	if err := h.c.SetPictureSize(types.Size{Width: 640, Height: 480}); err == nil {
		t.Fatal("set should fail")
	}
	if p := mustParams(t, h.c); p.PictureSize != before.PictureSize {
		t.Fatalf("picture size %s after a failed set", p.PictureSize)
	}
	if h.c.CameraSettings().PictureSize == (types.Size{Width: 640, Height: 480}) {
		t.Fatal("failed value remembered")
	}
}

func TestSettingsStoredBeforeOpen(t *testing.T) {
	h := newHarness(t, nil)
	checkErr(t, h.c.SetPictureSize(types.Size{Width: 1920, Height: 1080}))
	checkErr(t, h.c.SetColorEffect(types.EffectMono))
	checkErr(t, h.c.SetFlashMode(types.FlashTorch))
	h.open(t, vga)

	p := mustParams(t, h.c)
	if p.PictureSize != (types.Size{Width: 1920, Height: 1080}) || p.ColorEffect != types.EffectMono {
		t.Fatalf("stored settings not applied: %+v", p)
	}
	if p.FlashMode == types.FlashTorch {
		t.Fatal("unsupported stored flash mode applied")
	}
}

func TestSetCameraSettingsPartial(t *testing.T) {
	h := openHarness(t, nil)
	s := types.DefaultCameraSettings()
	s.PictureSize = types.Size{Width: 640, Height: 480}
	s.WhiteBalance = types.WhiteBalanceCloudy
	if err := h.c.SetCameraSettings(s); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("got %v", err)
	}
	p := mustParams(t, h.c)
	if p.PictureSize != s.PictureSize {
		t.Fatal("supported field not applied")
	}
	if p.WhiteBalance != types.WhiteBalanceAuto {
		t.Fatalf("white balance %s", p.WhiteBalance)
	}
}

func TestApplyPreset(t *testing.T) {
	h := openHarness(t, nil)
	v, err := h.c.ApplyPreset(PresetLow)
	checkErr(t, err)
	if v.Quality != types.QualityLow {
		t.Fatalf("quality %s", v.Quality)
	}
	if p := mustParams(t, h.c); p.PictureSize != (types.Size{Width: 640, Height: 480}) {
		t.Fatalf("picture size %s", p.PictureSize)
	}
	v, err = h.c.ApplyPreset(PresetHigh)
	checkErr(t, err)
	if v.Quality != types.QualityHigh {
		t.Fatalf("quality %s", v.Quality)
	}
	if p := mustParams(t, h.c); p.PictureSize != (types.Size{Width: 3280, Height: 2464}) {
		t.Fatalf("picture size %s", p.PictureSize)
	}
}

func TestZoomAndScale(t *testing.T) {
	h := openHarness(t, nil)
	checkErr(t, h.c.SetZoom(5))
	if z := h.c.Zoom(); z != 5 {
		t.Fatalf("zoom %d", z)
	}
	checkErr(t, h.c.SetZoom(types.ZoomNotSpecified))
	if z := h.c.Zoom(); z != 5 {
		t.Fatalf("zoom %d after an unspecified zoom", z)
	}

	z, err := h.c.OnScale(1.2)
	checkErr(t, err)
	if z != 7 {
		t.Fatalf("scaled to %d, want 7", z)
	}
	if z, _ = h.c.OnScale(3); z != 10 {
		t.Fatalf("scaled to %d, want the maximum", z)
	}
	if z, _ = h.c.OnScale(0); z != 0 {
		t.Fatalf("scaled to %d, want 0", z)
	}
}

func TestZoomUnsupported(t *testing.T) {
	h := openHarness(t, func(fc *camera.FakeConfig, _ *Config) {
		fc.MaxZoom = 0
	})
	if err := h.c.SetZoom(1); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("got %v", err)
	}
	if _, err := h.c.OnScale(2); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("got %v", err)
	}
}

func TestSettingsRequireIdle(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.c.Parameters(); !errors.Is(err, ErrNotOpened) {
		t.Fatalf("got %v", err)
	}
	if _, err := h.c.OnScale(2); !errors.Is(err, ErrNotOpened) {
		t.Fatalf("got %v", err)
	}
	if _, err := h.c.ApplyPreset(PresetMedium); !errors.Is(err, ErrNotOpened) {
		t.Fatalf("got %v", err)
	}
}

func TestSurfaceLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	h.open(t, nil)
	if h.dev.Previewing() {
		t.Fatal("previewing without a target")
	}
	if err := h.c.SurfaceCreated(nil); !errors.Is(err, ErrTargetNotReady) {
		t.Fatalf("got %v", err)
	}

	checkErr(t, h.c.SurfaceCreated(SizedTarget{Width: 1080, Height: 1920}))
	if !h.dev.Previewing() {
		t.Fatal("preview not started")
	}
	if p := mustParams(t, h.c); p.PreviewSize != (types.Size{Width: 1920, Height: 1080}) {
		t.Fatalf("preview size %s for a 1080x1920 target", p.PreviewSize)
	}

	checkErr(t, h.c.SurfaceChanged(types.Size{Width: 640, Height: 480}))
	if p := mustParams(t, h.c); p.PreviewSize != (types.Size{Width: 640, Height: 480}) {
		t.Fatalf("preview size %s after resize", p.PreviewSize)
	}
	if !h.dev.Previewing() {
		t.Fatal("preview not restarted after resize")
	}

	h.c.SurfaceDestroyed()
	if h.dev.Previewing() {
		t.Fatal("preview running without a target")
	}
	if err := h.c.SurfaceChanged(types.Size{Width: 320, Height: 240}); !errors.Is(err, ErrTargetNotReady) {
		t.Fatalf("got %v", err)
	}
}

func TestExplicitPreviewSizeWinsOverTarget(t *testing.T) {
	h := openHarness(t, nil)
	checkErr(t, h.c.SetPreviewSize(types.Size{Width: 320, Height: 240}))
	checkErr(t, h.c.SurfaceChanged(types.Size{Width: 1920, Height: 1080}))
	if p := mustParams(t, h.c); p.PreviewSize != (types.Size{Width: 320, Height: 240}) {
		t.Fatalf("preview size %s", p.PreviewSize)
	}
}

func TestDisplayRotation(t *testing.T) {
	h := openHarness(t, nil)
	h.c.SetDisplayRotation(90)
	want := camera.PictureRotation(h.dev.Info(), 90)
	if p := mustParams(t, h.c); p.Rotation != want {
		t.Fatalf("rotation %d, want %d", p.Rotation, want)
	}
}
