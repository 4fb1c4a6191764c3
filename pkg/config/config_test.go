package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"camctl/pkg/types"
)

func TestLoadMissing(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "none.json"))
	if err != nil {
		t.Fatal(err)
	}
	if c.LogLevel != "info" || c.Video.ThumbnailGrid != types.DefaultThumbnailGrid {
		t.Fatalf("config %+v", c)
	}
}

func TestLoadFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camctl.json")
	data := `{"logLevel":"loud","deviceFps":500,"autoFocusTimeout":-1,"frameRateWait":500,"camera":{"jpegQuality":80}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	d := Default()
	if c.LogLevel != d.LogLevel || c.DeviceFPS != d.DeviceFPS || c.AutoFocusTimeout != d.AutoFocusTimeout {
		t.Fatalf("invalid values kept: %+v", c)
	}
	sc := c.Session()
	if sc.FrameRateWait != 500*time.Millisecond {
		t.Fatalf("frame rate wait %s", sc.FrameRateWait)
	}
	if sc.Settings.JPEGQuality != 80 || sc.Settings.FocusMode != types.FocusAuto {
		t.Fatalf("camera settings %+v", sc.Settings)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camctl.json")
	c := Default()
	c.Device = 2
	c.PreviewBufferDepth = 0
	if err := c.Save(path); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Device != 2 || got.PreviewBufferDepth != 0 {
		t.Fatalf("config %+v", got)
	}
}

func TestLoadBroken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camctl.json")
	if err := os.WriteFile(path, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("broken file accepted")
	}
}
