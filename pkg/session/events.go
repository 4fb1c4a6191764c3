package session

import (
	"time"

	"camctl/pkg/framestats"
	"camctl/pkg/observer"
	"camctl/pkg/types"
)

type StateChange struct {
	From State `json:"from"`
	To   State `json:"to"`
}

// DeviceError reports a device level fault. The device has been released
// when it is delivered.
type DeviceError struct {
	DeviceID int   `json:"deviceId"`
	Code     int   `json:"code"`
	Err      error `json:"-"`
}

// EncoderError reports a recording stopped by an encoder fault. File is empty
// when nothing valid was written.
type EncoderError struct {
	What  int    `json:"what"`
	Extra int    `json:"extra"`
	File  string `json:"file"`
}

// Photo is the outcome of a capture. Data is set when no output file was
// requested.
type Photo struct {
	File    string        `json:"file,omitempty"`
	Data    []byte        `json:"-"`
	Size    types.Size    `json:"size"`
	Elapsed time.Duration `json:"elapsed"`
	Err     error         `json:"-"`
}

type LimitReached struct {
	What  int               `json:"what"`
	Limit types.RecordLimit `json:"limit"`
	File  string            `json:"file"`
}

type ThumbnailFailed struct {
	Recording types.RecordingOutput `json:"recording"`
	Err       error                 `json:"-"`
}

// FrameListener runs on the streaming goroutine of the device. frame is only
// valid for the duration of the call.
type FrameListener func(frame []byte, ts time.Time)

type listeners struct {
	state           observer.Registry[func(StateChange)]
	deviceError     observer.Registry[func(DeviceError)]
	encoderError    observer.Registry[func(EncoderError)]
	photo           observer.Registry[func(Photo)]
	limitReached    observer.Registry[func(LimitReached)]
	thumbnailReady  observer.Registry[func(types.Thumbnail)]
	thumbnailFailed observer.Registry[func(ThumbnailFailed)]
	frame           observer.Registry[FrameListener]
}

func (c *Controller) OnStateChanged(fn func(StateChange)) (remove func()) {
	return c.listeners.state.Add(fn)
}

func (c *Controller) OnDeviceError(fn func(DeviceError)) (remove func()) {
	return c.listeners.deviceError.Add(fn)
}

func (c *Controller) OnEncoderError(fn func(EncoderError)) (remove func()) {
	return c.listeners.encoderError.Add(fn)
}

func (c *Controller) OnPhoto(fn func(Photo)) (remove func()) {
	return c.listeners.photo.Add(fn)
}

func (c *Controller) OnLimitReached(fn func(LimitReached)) (remove func()) {
	return c.listeners.limitReached.Add(fn)
}

func (c *Controller) OnThumbnailReady(fn func(types.Thumbnail)) (remove func()) {
	return c.listeners.thumbnailReady.Add(fn)
}

func (c *Controller) OnThumbnailFailed(fn func(ThumbnailFailed)) (remove func()) {
	return c.listeners.thumbnailFailed.Add(fn)
}

func (c *Controller) OnFrame(fn FrameListener) (remove func()) {
	return c.listeners.frame.Add(fn)
}

// OnFrameStats registers for statistics snapshots published by the frame
// statistics engine of the preview stream.
func (c *Controller) OnFrameStats(fn framestats.Listener) (remove func()) {
	return c.stats.AddListener(fn)
}

// post queues one notification per registered listener. The queue is
// flushed when the coordination lock is released.
func post[T any](c *Controller, r *observer.Registry[func(T)], v T) {
	for _, fn := range r.Snapshot() {
		fn := fn
		c.events.Post(func() { fn(v) })
	}
}

// ThumbnailReady and ThumbnailFailed receive post-processing results.
func (c *Controller) ThumbnailReady(t types.Thumbnail) {
	post(c, &c.listeners.thumbnailReady, t)
	c.events.Flush()
}

func (c *Controller) ThumbnailFailed(rec types.RecordingOutput, err error) {
	logger.Warnf("thumbnail for %s failed: %s", rec.File, err)
	post(c, &c.listeners.thumbnailFailed, ThumbnailFailed{Recording: rec, Err: err})
	c.events.Flush()
}
