package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"camctl/pkg/framestats"
	"camctl/pkg/session"
	"camctl/pkg/thumbnail"
	"camctl/pkg/types"
	"camctl/pkg/utils"
)

// Config is the JSON config file. Durations are in milliseconds like the
// rest of the API.
type Config struct {
	LogLevel  string `json:"logLevel"`
	NTPServer string `json:"ntpServer"`

	// browser origins allowed to call the api, empty allows any
	AllowOrigins []string `json:"allowOrigins,omitempty"`

	Device         int            `json:"device"`
	DevicePaths    map[int]string `json:"devicePaths,omitempty"`
	DeviceFPS      int            `json:"deviceFps"`
	DeviceFacing   types.Facing   `json:"deviceFacing"`
	DeviceRotation int            `json:"deviceRotation"`

	PreviewWidth       int `json:"previewWidth"`
	PreviewHeight      int `json:"previewHeight"`
	PreviewBufferDepth int `json:"previewBufferDepth"`

	// ms
	AutoFocusTimeout int `json:"autoFocusTimeout"`
	OperationTimeout int `json:"operationTimeout"`
	FrameRateWait    int `json:"frameRateWait"`
	StatsInterval    int `json:"statsInterval"`
	StatsNotify      int `json:"statsNotify"`

	Camera    types.CameraSettings `json:"camera"`
	Video     types.VideoSettings  `json:"video"`
	Thumbnail thumbnail.Config     `json:"thumbnail"`
}

func Default() Config {
	sc := session.DefaultConfig()
	stats := framestats.DefaultConfig()
	return Config{
		LogLevel:           "info",
		NTPServer:          "pool.ntp.org",
		DeviceFPS:          types.DefaultVideoFrameRate,
		PreviewWidth:       640,
		PreviewHeight:      480,
		PreviewBufferDepth: sc.PreviewBufferDepth,
		AutoFocusTimeout:   int(sc.AutoFocusTimeout.Milliseconds()),
		OperationTimeout:   int(sc.OperationTimeout.Milliseconds()),
		FrameRateWait:      int(sc.FrameRateWait.Milliseconds()),
		StatsInterval:      int(stats.CalculateInterval.Milliseconds()),
		StatsNotify:        int(stats.NotifyInterval.Milliseconds()),
		Camera:             types.DefaultCameraSettings(),
		Video:              types.DefaultVideoSettings(),
		Thumbnail:          thumbnail.DefaultConfig(),
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, err
	}
	if err = json.Unmarshal(data, &c); err != nil {
		return Default(), fmt.Errorf("parse config %s: %w", path, err)
	}

	return c.normalize(), nil
}

func (c Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// normalize replaces invalid values with defaults.
func (c Config) normalize() Config {
	d := Default()
	if c.LogLevel == "" || utils.SetLevel(c.LogLevel) != nil {
		utils.GetLogger().Warnf("log level %q invalid, using %s", c.LogLevel, d.LogLevel)
		c.LogLevel = d.LogLevel
	}
	if c.Device < 0 {
		c.Device = d.Device
	}
	if c.DeviceFPS <= 0 || c.DeviceFPS > types.VideoFrameRateMax {
		c.DeviceFPS = d.DeviceFPS
	}
	if c.PreviewWidth <= 0 || c.PreviewHeight <= 0 {
		c.PreviewWidth, c.PreviewHeight = d.PreviewWidth, d.PreviewHeight
	}
	if c.PreviewBufferDepth < 0 {
		c.PreviewBufferDepth = d.PreviewBufferDepth
	}
	for _, v := range []struct{ got, def *int }{
		{&c.AutoFocusTimeout, &d.AutoFocusTimeout},
		{&c.OperationTimeout, &d.OperationTimeout},
		{&c.FrameRateWait, &d.FrameRateWait},
		{&c.StatsInterval, &d.StatsInterval},
	} {
		if *v.got <= 0 {
			*v.got = *v.def
		}
	}
	if c.StatsNotify < 0 {
		c.StatsNotify = d.StatsNotify
	}
	if c.Video.ThumbnailGrid <= 0 {
		c.Video.ThumbnailGrid = types.DefaultThumbnailGrid
	}

	return c
}

// Session builds the controller configuration.
func (c Config) Session() session.Config {
	sc := session.DefaultConfig()
	sc.PreviewBufferDepth = c.PreviewBufferDepth
	sc.AutoFocusTimeout = utils.MsToDuration(c.AutoFocusTimeout)
	sc.OperationTimeout = utils.MsToDuration(c.OperationTimeout)
	sc.FrameRateWait = utils.MsToDuration(c.FrameRateWait)
	sc.Stats.CalculateInterval = utils.MsToDuration(c.StatsInterval)
	sc.Stats.NotifyInterval = utils.MsToDuration(c.StatsNotify)
	sc.Settings = c.Camera

	return sc
}

func (c Config) PreviewSize() types.Size {
	return types.Size{Width: c.PreviewWidth, Height: c.PreviewHeight}
}
