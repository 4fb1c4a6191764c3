package session

import (
	"time"

	"camctl/pkg/encoder"
	"camctl/pkg/framestats"
	"camctl/pkg/observer"
	"camctl/pkg/types"
)

const (
	DefaultPreviewBufferDepth = 3
	DefaultAutoFocusTimeout   = 3 * time.Second
	DefaultOperationTimeout   = 10 * time.Second
	DefaultFrameRateWait      = 2 * time.Second

	taskQueueSize = 8
)

// PostProcessor turns finished recordings into preview thumbnails.
type PostProcessor interface {
	Enqueue(rec types.RecordingOutput) error
}

// Namer names output files for requests that do not carry a path.
type Namer interface {
	PhotoPath(size types.Size) (string, error)
	VideoPath(size types.Size, format types.OutputFormat) (string, error)
}

type Config struct {
	// PreviewBufferDepth is the number of preview callback buffers handed to
	// the device, 0 disables buffering.
	PreviewBufferDepth int
	// AutoFocusTimeout bounds the wait for a focus result before capturing.
	AutoFocusTimeout time.Duration
	// OperationTimeout bounds device open, capture triggering and encoder
	// stop/release.
	OperationTimeout time.Duration
	// FrameRateWait bounds the wait for a first measured preview frame rate
	// when a recording has no explicit or profile rate.
	FrameRateWait time.Duration

	Stats    framestats.Config
	Settings types.CameraSettings

	// Dispatcher runs listener notifications; nil runs them on the goroutine
	// that completed the transition.
	Dispatcher observer.Dispatcher
	// Profiles defaults to a table derived from the video sizes of each
	// opened device.
	Profiles   types.ProfileProvider
	NewEncoder encoder.Factory
	Post       PostProcessor
	Namer      Namer
}

func DefaultConfig() Config {
	return Config{
		PreviewBufferDepth: DefaultPreviewBufferDepth,
		AutoFocusTimeout:   DefaultAutoFocusTimeout,
		OperationTimeout:   DefaultOperationTimeout,
		FrameRateWait:      DefaultFrameRateWait,
		Stats:              framestats.DefaultConfig(),
		Settings:           types.DefaultCameraSettings(),
		NewEncoder:         encoder.MJPEGFactory,
	}
}

// normalize replaces invalid values with defaults.
func (c Config) normalize() Config {
	if c.PreviewBufferDepth < 0 {
		logger.Warnf("preview buffer depth %d invalid, using %d", c.PreviewBufferDepth, DefaultPreviewBufferDepth)
		c.PreviewBufferDepth = DefaultPreviewBufferDepth
	}
	if c.AutoFocusTimeout <= 0 {
		c.AutoFocusTimeout = DefaultAutoFocusTimeout
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = DefaultOperationTimeout
	}
	if c.FrameRateWait <= 0 {
		c.FrameRateWait = DefaultFrameRateWait
	}
	c.Stats = c.Stats.Normalize()
	if c.Settings.PictureFormat == "" {
		c.Settings.PictureFormat = types.PixelFormatJPEG
	}
	if c.Settings.JPEGQuality <= 0 || c.Settings.JPEGQuality > types.JPEGQualityMax {
		c.Settings.JPEGQuality = types.JPEGQualityMax
	}
	if c.NewEncoder == nil {
		c.NewEncoder = encoder.MJPEGFactory
	}
	return c
}
