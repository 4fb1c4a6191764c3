package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"camctl/pkg/camera"
	"camctl/pkg/encoder"
	"camctl/pkg/framestats"
	"camctl/pkg/observer"
	"camctl/pkg/types"
	"camctl/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger().Named("session")
}

// Controller serializes access to one exclusive capture device across
// preview, photo capture and video recording.
//
// Every field below mu is guarded by it. Listener notifications are queued
// while mu is held and delivered in order once it is released.
type Controller struct {
	cfg    Config
	opener camera.Opener
	table  *encoder.ProfileTable

	stats  *framestats.Calculator
	tasks  *taskQueue
	events *observer.Queue
	// jobs runs internal follow-up work that must not happen under mu.
	jobs      *observer.Queue
	listeners listeners

	mu      sync.Mutex
	fsm     *fsm.FSM
	dev     camera.Device
	gen     uint64
	worker  *looper
	opening bool

	locked      bool
	previewing  bool
	target      camera.DisplayTarget
	targetSize  types.Size
	rotation    int
	settings    types.CameraSettings
	params      camera.Parameters
	bufferDepth int

	photo     *photoJob
	photoSeq  uint64
	recording *recording
}

func New(opener camera.Opener, cfg Config) *Controller {
	cfg = cfg.normalize()
	c := &Controller{
		cfg:         cfg,
		opener:      opener,
		stats:       framestats.New(cfg.Stats, cfg.Dispatcher),
		tasks:       newTaskQueue(taskQueueSize),
		events:      observer.NewQueue(cfg.Dispatcher, logger),
		jobs:        observer.NewQueue(nil, logger),
		settings:    cfg.Settings,
		bufferDepth: cfg.PreviewBufferDepth,
	}
	if cfg.Profiles == nil {
		c.table = encoder.NewProfileTable()
		c.cfg.Profiles = c.table
	}
	c.fsm = newStateMachine(c.onEnterState)
	return c
}

func (c *Controller) unlock() {
	c.mu.Unlock()
	c.jobs.Flush()
	c.events.Flush()
}

// Open opens device id on a dedicated worker goroutine, which afterwards
// hosts the device callbacks. target may be nil until the display surface
// exists.
func (c *Controller) Open(id int, target camera.DisplayTarget) error {
	c.mu.Lock()
	if c.dev != nil || c.opening {
		c.mu.Unlock()
		return ErrAlreadyOpened
	}
	prev := c.worker
	c.opening = true
	c.mu.Unlock()

	if prev != nil && !prev.wait(c.cfg.OperationTimeout) {
		c.mu.Lock()
		c.opening = false
		c.mu.Unlock()
		return ErrWorkerAlive
	}

	w := newLooper()
	res := newFuture[camera.Device]()
	go w.run(func() {
		dev, err := c.opener.Open(id, w)
		if !res.resolve(dev, err) {
			logger.Warnf("device %d opened after the caller gave up, releasing", id)
			if dev != nil {
				_ = dev.Release()
			}
			w.Quit()
			return
		}
		if err != nil {
			w.Quit()
		}
	})
	dev, err := res.wait(c.cfg.OperationTimeout)

	c.mu.Lock()
	defer c.unlock()
	c.opening = false
	c.worker = w
	if err != nil {
		return fmt.Errorf("open device %d: %w", id, err)
	}

	c.dev = dev
	c.gen++
	c.locked = true
	c.previewing = false
	dev.SetErrorCallback(c.deviceErrorCallback(c.gen))

	params, err := dev.Parameters()
	if err != nil {
		c.releaseDeviceLocked()
		return fmt.Errorf("read parameters of device %d: %w", id, err)
	}
	c.params = params
	if c.table != nil {
		c.table.RegisterSizes(id, params.VideoSizes(), types.DefaultVideoFrameRate)
	}
	if err = c.applySettingsLocked(c.settings); err != nil {
		logger.Warnf("apply settings to device %d: %s", id, err)
	}
	c.setupPreviewCallbackLocked()
	logger.Infof("opened device %d (%s)", id, dev.Info().Name)

	if target != nil {
		c.attachTargetLocked(target, target.Size())
	}
	return nil
}

// Close releases the device. A running recording is stopped first and a
// pending capture is dropped.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.unlock()
	if c.dev == nil {
		return ErrNotOpened
	}
	if c.recording != nil {
		c.stopRecordingLocked(true)
	}
	c.dropPhotoLocked()
	c.releaseDeviceLocked()
	return nil
}

func (c *Controller) IsOpened() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dev != nil
}

// Device returns the info of the opened device.
func (c *Controller) Device() (types.DeviceInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return types.DeviceInfo{}, false
	}
	return c.dev.Info(), true
}

// Stats returns the latest frame statistics of the preview stream.
func (c *Controller) Stats() (framestats.Snapshot, bool) {
	return c.stats.Snapshot()
}

func (c *Controller) releaseDeviceLocked() {
	dev := c.dev
	c.stopPreviewLocked()
	dev.SetPreviewCallback(nil, false)
	dev.SetErrorCallback(nil)
	if err := c.tasks.call(c.cfg.OperationTimeout, dev.Release); err != nil {
		logger.Errorf("release device %d: %s", dev.Info().ID, err)
	}
	c.dev = nil
	c.gen++
	c.locked = false
	c.params = camera.Parameters{}
	if c.worker != nil {
		c.worker.Quit()
	}
	logger.Infof("device %d released", dev.Info().ID)
}

// deviceErrorCallback handles faults reported by the device. The device is
// released unconditionally and the controller becomes unopened.
func (c *Controller) deviceErrorCallback(gen uint64) camera.ErrorCallback {
	return func(code int, err error) {
		c.mu.Lock()
		defer c.unlock()
		if gen != c.gen || c.dev == nil {
			return
		}
		c.deviceFaultLocked(code, err)
	}
}

// deviceFaultLocked tears everything down after a fault the device cannot
// recover from.
func (c *Controller) deviceFaultLocked(code int, err error) {
	id := c.dev.Info().ID
	logger.Errorf("device %d error %d: %v", id, code, err)
	if c.recording != nil {
		c.stopRecordingLocked(false)
	}
	c.dropPhotoLocked()
	c.releaseDeviceLocked()
	post(c, &c.listeners.deviceError, DeviceError{DeviceID: id, Code: code, Err: err})
}

// relockLocked takes the device back from the encoder.
func (c *Controller) relockLocked() error {
	if err := c.dev.Lock(); err != nil {
		logger.Warnf("lock device: %s", err)
	}
	if err := c.dev.Reconnect(); err != nil {
		return fmt.Errorf("reconnect device: %w", err)
	}
	c.locked = true
	return nil
}

func (c *Controller) startPreviewLocked() error {
	if c.dev == nil || c.target == nil || c.previewing || !c.locked {
		return nil
	}
	if err := c.dev.StartPreview(); err != nil {
		return fmt.Errorf("start preview: %w", err)
	}
	c.previewing = true
	c.jobs.Post(c.stats.Start)
	return nil
}

func (c *Controller) stopPreviewLocked() {
	if c.dev == nil || !c.previewing {
		return
	}
	if err := c.dev.StopPreview(); err != nil {
		logger.Warnf("stop preview: %s", err)
	}
	c.previewing = false
	c.jobs.Post(c.stats.Stop)
}

// restorePreviewLocked restarts the preview after a capture or recording,
// logging instead of failing the transition back to idle.
func (c *Controller) restorePreviewLocked() {
	if err := c.startPreviewLocked(); err != nil {
		logger.Errorf("restore preview: %s", err)
	}
}

// setupPreviewCallbackLocked installs the frame callback and hands the
// device its callback buffers.
func (c *Controller) setupPreviewCallbackLocked() {
	dev, depth := c.dev, c.bufferDepth
	dev.SetPreviewCallback(nil, false)
	if depth == 0 {
		dev.SetPreviewCallback(c.frameCallback(dev, false), false)
		return
	}
	dev.SetPreviewCallback(c.frameCallback(dev, true), true)
	size := previewBufferSize(c.params)
	for i := 0; i < depth; i++ {
		dev.AddCallbackBuffer(make([]byte, size))
	}
}

// frameCallback never takes the coordination lock, so frame rate waits
// holding it still receive measurements.
func (c *Controller) frameCallback(dev camera.Device, buffered bool) camera.FrameCallback {
	return func(frame []byte, ts time.Time) {
		c.stats.OnFrameAt(ts)
		for _, l := range c.listeners.frame.Snapshot() {
			l(frame, ts)
		}
		if buffered {
			dev.AddCallbackBuffer(frame)
		}
	}
}

// SetPreviewBufferDepth changes the number of preview callback buffers, 0
// disables buffering.
func (c *Controller) SetPreviewBufferDepth(n int) error {
	if n < 0 {
		return fmt.Errorf("buffer depth %d: %w", n, ErrUnsupported)
	}
	c.mu.Lock()
	defer c.unlock()
	c.bufferDepth = n
	if c.dev != nil && c.locked {
		c.setupPreviewCallbackLocked()
	}
	return nil
}

func previewBufferSize(p camera.Parameters) int {
	size := p.PreviewSize
	if bpp := p.PreviewFormat.BitsPerPixel(); bpp > 0 {
		return size.Area() * bpp / 8
	}
	return size.Area()
}
