package camera

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"

	"camctl/pkg/types"
)

const (
	DefaultDevicePattern = "/dev/video%d"
	DefaultFPS           = 15
	DefaultBufferSize    = 2

	captureTimeout   = 5 * time.Second
	autoFocusTimeout = 3 * time.Second
	busyRetries      = 5
)

var ErrCapturing = errors.New("picture capture in progress")

// candidateSizes are offered for sensors that report stepwise frame sizes.
var candidateSizes = []types.Size{
	{Width: 320, Height: 240}, {Width: 640, Height: 480}, {Width: 1280, Height: 720},
	{Width: 1640, Height: 1232}, {Width: 1920, Height: 1080}, {Width: 3280, Height: 2464},
}

// V4L2Opener opens video4linux capture nodes through go4vl.
type V4L2Opener struct {
	// Paths maps ids to device nodes; ids without entry use DefaultDevicePattern.
	Paths       map[int]string
	FPS         int
	BufferSize  int
	Facing      types.Facing
	Orientation int
}

func (o V4L2Opener) path(id int) string {
	if p, ok := o.Paths[id]; ok {
		return p
	}
	return fmt.Sprintf(DefaultDevicePattern, id)
}

// Probe is what a capture node reports about itself.
type Probe struct {
	Path     string
	Sizes    []types.Size
	Controls []v4l2.Control
}

// ProbeDevice briefly opens path and queries its jpeg frame sizes and
// controls.
func ProbeDevice(path string) (Probe, error) {
	probe, err := device.Open(path,
		device.WithBufferSize(1),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: v4l2.PixelFmtJPEG,
			Width:       320,
			Height:      240,
		}),
	)
	if err != nil {
		return Probe{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer probe.Close()

	sizes, err := jpegFrameSizes(probe.Fd())
	if err != nil {
		return Probe{}, fmt.Errorf("query frame sizes of %s: %w", path, err)
	}
	if len(sizes) == 0 {
		return Probe{}, fmt.Errorf("%s has no jpeg frame sizes: %w", path, ErrUnsupported)
	}
	ctrls, err := v4l2.QueryAllExtControls(probe.Fd())
	if err != nil {
		logger.Warnf("query controls of %s: %s", path, err)
	}

	return Probe{Path: path, Sizes: sizes, Controls: ctrls}, nil
}

func (o V4L2Opener) Open(id int, looper Looper) (Device, error) {
	path := o.path(id)
	p, err := ProbeDevice(path)
	if err != nil {
		return nil, err
	}
	sizes := p.Sizes
	ctrls := make(map[v4l2.CtrlID]v4l2.Control, len(p.Controls))
	for _, ctrl := range p.Controls {
		ctrls[ctrl.ID] = ctrl
	}

	fps := o.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	bufSize := o.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	d := &V4L2Device{
		path:    path,
		info:    types.DeviceInfo{ID: id, Name: path, Facing: o.Facing, Orientation: o.Orientation},
		looper:  looper,
		fps:     fps,
		bufSize: bufSize,
		ctrls:   ctrls,
		locked:  true,
	}
	d.params = d.initialParameters(sizes)
	logger.Infof("opened %s: %d sizes, %d controls", path, len(sizes), len(ctrls))

	return d, nil
}

func jpegFrameSizes(fd uintptr) ([]types.Size, error) {
	all, err := v4l2.GetAllFormatFrameSizes(fd)
	if err != nil {
		return nil, err
	}
	var res []types.Size
	add := func(s types.Size) {
		if !types.Contains(res, s) {
			res = append(res, s)
		}
	}
	for _, fs := range all {
		if fs.PixelFormat != v4l2.PixelFmtJPEG && fs.PixelFormat != v4l2.PixelFmtMJPEG {
			continue
		}
		if fs.Size.MinWidth < fs.Size.MaxWidth {
			for _, c := range candidateSizes {
				if uint32(c.Width) >= fs.Size.MinWidth && uint32(c.Width) <= fs.Size.MaxWidth &&
					uint32(c.Height) >= fs.Size.MinHeight && uint32(c.Height) <= fs.Size.MaxHeight {
					add(c)
				}
			}
		}
		add(types.Size{Width: int(fs.Size.MaxWidth), Height: int(fs.Size.MaxHeight)})
	}
	slices.SortFunc(res, func(a, b types.Size) int { return a.Area() - b.Area() })

	return res, nil
}

// V4L2Device drives a V4L2 node. The node is only held open while a stream
// runs, so lock and unlock only gate which side receives frames.
type V4L2Device struct {
	path    string
	info    types.DeviceInfo
	looper  Looper
	fps     int
	bufSize int
	ctrls   map[v4l2.CtrlID]v4l2.Control

	mu        sync.Mutex
	params    Parameters
	locked    bool
	released  bool
	capturing bool
	stream    *stream
	target    DisplayTarget
	rotation  int

	frameCb  FrameCallback
	buffered bool
	buffers  [][]byte
	errCb    ErrorCallback
	sink     FrameSink
}

type stream struct {
	dev     *device.Device
	size    types.Size
	preview bool
	cancel  context.CancelFunc
	stop    chan struct{}
}

func (d *V4L2Device) initialParameters(sizes []types.Size) Parameters {
	p := Parameters{
		PreviewFormat:             types.PixelFormatJPEG,
		PictureFormat:             types.PixelFormatJPEG,
		JPEGQuality:               90,
		FlashMode:                 types.FlashOff,
		FocusMode:                 types.FocusFixed,
		ColorEffect:               types.EffectNone,
		PreviewFpsRange:           types.FpsRange{Min: 1, Max: float64(d.fps)},
		SupportedPreviewSizes:     sizes,
		SupportedPictureSizes:     sizes,
		SupportedVideoSizes:       sizes,
		SupportedPreviewFormats:   []types.PixelFormat{types.PixelFormatJPEG},
		SupportedPictureFormats:   []types.PixelFormat{types.PixelFormatJPEG},
		SupportedPreviewFpsRanges: []types.FpsRange{{Min: 1, Max: float64(d.fps)}},
	}
	supportedModes(d.ctrls, &p)
	if _, ok := d.ctrls[ctrlWhiteBalancePreset]; ok {
		p.WhiteBalance = types.WhiteBalanceAuto
	}
	p.PreviewSize, _ = FindMediumSize(sizes)
	p.PictureSize, _ = FindHighSize(sizes)

	return p
}

// Controls returns the controls reported by the driver.
func (d *V4L2Device) Controls() []v4l2.Control {
	res := make([]v4l2.Control, 0, len(d.ctrls))
	for _, c := range d.ctrls {
		res = append(res, c)
	}
	slices.SortFunc(res, func(a, b v4l2.Control) int { return int(a.ID) - int(b.ID) })
	return res
}

func (d *V4L2Device) Info() types.DeviceInfo {
	return d.info
}

func (d *V4L2Device) Lock() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	d.locked = true
	return nil
}

func (d *V4L2Device) Unlock() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	d.locked = false
	return nil
}

// Reconnect takes the node back after an encoder used it and reapplies the
// current parameters.
func (d *V4L2Device) Reconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	d.locked = true
	if d.stream != nil && !d.stream.preview {
		d.closeStream()
	}
	return nil
}

func (d *V4L2Device) Parameters() (Parameters, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(); err != nil {
		return Parameters{}, err
	}
	return d.params.Clone(), nil
}

func (d *V4L2Device) SetParameters(p Parameters) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(); err != nil {
		return err
	}
	if !types.Contains(d.params.SupportedPreviewSizes, p.PreviewSize) {
		return fmt.Errorf("preview size %s: %w", p.PreviewSize, ErrUnsupported)
	}
	if !types.Contains(d.params.SupportedPictureSizes, p.PictureSize) {
		return fmt.Errorf("picture size %s: %w", p.PictureSize, ErrUnsupported)
	}
	if d.stream != nil && d.stream.preview && p.PreviewSize != d.stream.size {
		return fmt.Errorf("preview size can not change while previewing: %w", ErrUnsupported)
	}

	next := p.Clone()
	// supported sets are owned by the device
	next.SupportedPreviewSizes = d.params.SupportedPreviewSizes
	next.SupportedPictureSizes = d.params.SupportedPictureSizes
	next.SupportedVideoSizes = d.params.SupportedVideoSizes
	next.SupportedPreviewFormats = d.params.SupportedPreviewFormats
	next.SupportedPictureFormats = d.params.SupportedPictureFormats
	next.SupportedFlashModes = d.params.SupportedFlashModes
	next.SupportedFocusModes = d.params.SupportedFocusModes
	next.SupportedColorEffects = d.params.SupportedColorEffects
	next.SupportedWhiteBalance = d.params.SupportedWhiteBalance
	next.SupportedPreviewFpsRanges = d.params.SupportedPreviewFpsRanges
	next.MaxZoom = d.params.MaxZoom
	next.VideoStabilizationSupported = d.params.VideoStabilizationSupported
	d.params = next

	if d.stream != nil {
		d.applyControls(d.stream.dev)
	}
	return nil
}

func (d *V4L2Device) SetDisplayTarget(t DisplayTarget) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	d.target = t
	return nil
}

// SetDisplayOrientation is recorded only, frames are delivered as JPEG and
// rotated by the consumer.
func (d *V4L2Device) SetDisplayOrientation(degrees int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rotation = degrees
	return nil
}

func (d *V4L2Device) StartPreview() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(); err != nil {
		return err
	}
	if d.capturing {
		return ErrCapturing
	}
	if d.stream != nil {
		if d.stream.preview {
			return nil
		}
		d.closeStream()
	}
	return d.openStream(d.params.PreviewSize, d.fps, true)
}

func (d *V4L2Device) StopPreview() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	if d.stream != nil && d.stream.preview {
		d.closeStream()
	}
	return nil
}

func (d *V4L2Device) SetPreviewCallback(cb FrameCallback, buffered bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frameCb = cb
	d.buffered = buffered
	if !buffered || cb == nil {
		d.buffers = nil
	}
}

func (d *V4L2Device) AddCallbackBuffer(buf []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.buffered && buf != nil {
		d.buffers = append(d.buffers, buf)
	}
}

func (d *V4L2Device) SetErrorCallback(cb ErrorCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errCb = cb
}

// AutoFocus starts a one-shot focus pass and polls the driver status.
func (d *V4L2Device) AutoFocus(cb AutoFocusCallback) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(); err != nil {
		return err
	}
	if _, ok := d.ctrls[ctrlAutoFocusStart]; !ok {
		return fmt.Errorf("autofocus: %w", ErrUnsupported)
	}
	if d.stream == nil {
		return errors.New("autofocus needs a running stream")
	}
	dev := d.stream.dev
	if err := dev.SetControlValue(ctrlAutoFocusStart, 1); err != nil {
		return fmt.Errorf("start autofocus: %w", err)
	}

	_, hasStatus := d.ctrls[ctrlAutoFocusStatus]
	go func() {
		success := true
		if hasStatus {
			success = pollAutoFocus(dev.Fd())
		}
		if cb != nil {
			d.looper.Post(func() { cb(success) })
		}
	}()
	return nil
}

func pollAutoFocus(fd uintptr) bool {
	deadline := time.Now().Add(autoFocusTimeout)
	for time.Now().Before(deadline) {
		ctrl, err := v4l2.GetControl(fd, ctrlAutoFocusStatus)
		if err != nil {
			return false
		}
		switch {
		case ctrl.Value&autoFocusStatusReached != 0:
			return true
		case ctrl.Value&autoFocusStatusFailed != 0:
			return false
		}
		time.Sleep(50 * time.Millisecond)
	}
	return false
}

func (d *V4L2Device) CancelAutoFocus() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.ctrls[ctrlAutoFocusStop]; !ok || d.stream == nil {
		return nil
	}
	return d.stream.dev.SetControlValue(ctrlAutoFocusStop, 1)
}

// TakePicture stops the preview, grabs one frame at the picture size on a
// separate stream and reports it through the looper. A failed capture
// reports nil data.
func (d *V4L2Device) TakePicture(shutter ShutterCallback, raw, jpeg PictureCallback) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(); err != nil {
		return err
	}
	if d.capturing {
		return ErrCapturing
	}
	if d.stream != nil {
		d.closeStream()
	}
	d.capturing = true
	size := d.params.PictureSize
	controls := controlsFor(d.params, d.ctrls)

	go func() {
		data, err := d.grab(size, controls)
		d.mu.Lock()
		d.capturing = false
		d.mu.Unlock()
		if err != nil {
			logger.Errorf("capture %s from %s: %s", size, d.path, err)
		}
		if shutter != nil {
			d.looper.Post(shutter)
		}
		if raw != nil {
			d.looper.Post(func() { raw(nil) })
		}
		if jpeg != nil {
			d.looper.Post(func() { jpeg(data) })
		}
	}()
	return nil
}

func (d *V4L2Device) grab(size types.Size, controls types.Controls) ([]byte, error) {
	dev, err := d.openNode(size, 1)
	if err != nil {
		return nil, err
	}
	defer dev.Close()
	for k, v := range controls {
		if err := dev.SetControlValue(k, v); err != nil {
			logger.Warnf("set ctrl(%d) to %d, err: %s", k, v, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err = dev.Start(ctx); err != nil {
		return nil, err
	}

	t := time.NewTimer(captureTimeout)
	defer t.Stop()
	select {
	case frame, ok := <-dev.GetOutput():
		if !ok || len(frame) == 0 {
			return nil, errors.New("capture stream closed")
		}
		return append([]byte(nil), frame...), nil
	case <-t.C:
		return nil, errors.New("frame timeout")
	}
}

func (d *V4L2Device) Attach(size types.Size, fps int, sink FrameSink) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	if d.locked {
		return ErrLocked
	}
	if d.sink != nil {
		return ErrAttached
	}
	if d.stream != nil {
		d.closeStream()
	}
	if fps <= 0 {
		fps = d.fps
	}
	d.sink = sink
	if err := d.openStream(size, fps, false); err != nil {
		d.sink = nil
		return err
	}
	return nil
}

func (d *V4L2Device) Detach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink = nil
	if d.stream != nil && !d.stream.preview {
		d.closeStream()
	}
}

func (d *V4L2Device) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil
	}
	if d.stream != nil {
		d.closeStream()
	}
	d.released = true
	d.frameCb = nil
	d.sink = nil
	d.buffers = nil
	logger.Infof("released %s", d.path)
	return nil
}

func (d *V4L2Device) checkLocked() error {
	if d.released {
		return ErrReleased
	}
	if !d.locked {
		return ErrNotLocked
	}
	return nil
}

func (d *V4L2Device) openNode(size types.Size, fps int) (*device.Device, error) {
	var (
		dev *device.Device
		err error
	)
	for i := 0; i < busyRetries; i++ {
		dev, err = device.Open(d.path,
			device.WithBufferSize(uint32(d.bufSize)),
			device.WithFPS(uint32(fps)),
			device.WithPixFormat(v4l2.PixFormat{
				PixelFormat: v4l2.PixelFmtJPEG,
				Width:       uint32(size.Width),
				Height:      uint32(size.Height),
				Field:       v4l2.FieldNone,
			}),
		)
		if err == nil {
			return dev, nil
		}
		if !isBusyErr(err) {
			break
		}
		logger.Warnf("open %s busy, will retry %d/%d: %v", d.path, i+1, busyRetries, err)
		time.Sleep(150 * time.Millisecond)
	}
	return nil, err
}

// openStream must be called with d.mu held.
func (d *V4L2Device) openStream(size types.Size, fps int, preview bool) error {
	dev, err := d.openNode(size, fps)
	if err != nil {
		return err
	}
	d.applyControls(dev)

	ctx, cancel := context.WithCancel(context.Background())
	if err = dev.Start(ctx); err != nil {
		cancel()
		_ = dev.Close()
		return err
	}
	s := &stream{dev: dev, size: size, preview: preview, cancel: cancel, stop: make(chan struct{})}
	d.stream = s
	go d.pump(s)
	logger.Debugf("stream %s started at %s, preview %t", d.path, size, preview)

	return nil
}

// closeStream must be called with d.mu held.
func (d *V4L2Device) closeStream() {
	s := d.stream
	d.stream = nil
	close(s.stop)
	s.cancel()
	// let the go4vl stream loop observe the cancellation before closing
	time.Sleep(100 * time.Millisecond)
	if err := s.dev.Close(); err != nil {
		logger.Warnf("close %s: %s", d.path, err)
	}
}

func (d *V4L2Device) applyControls(dev *device.Device) {
	for k, v := range controlsFor(d.params, d.ctrls) {
		if err := dev.SetControlValue(k, v); err != nil {
			logger.Warnf("set ctrl(%d) to %d, err: %s", k, v, err)
		}
	}
}

func (d *V4L2Device) pump(s *stream) {
	out := s.dev.GetOutput()
	for {
		select {
		case <-s.stop:
			return
		case frame, ok := <-out:
			if !ok {
				d.streamEnded(s)
				return
			}
			if len(frame) > 0 {
				d.deliver(s, frame, time.Now())
			}
		}
	}
}

func (d *V4L2Device) streamEnded(s *stream) {
	d.mu.Lock()
	if d.stream != s {
		d.mu.Unlock()
		return
	}
	cb := d.errCb
	d.mu.Unlock()
	if cb != nil {
		d.looper.Post(func() { cb(ErrorStreamEnded, fmt.Errorf("stream of %s ended", d.path)) })
	}
}

func (d *V4L2Device) deliver(s *stream, frame []byte, ts time.Time) {
	d.mu.Lock()
	if d.stream != s {
		d.mu.Unlock()
		return
	}
	switch {
	case s.preview && d.locked && d.frameCb != nil:
		cb := d.frameCb
		var buf []byte
		if d.buffered {
			if len(d.buffers) == 0 {
				d.mu.Unlock()
				return
			}
			buf = d.buffers[0]
			d.buffers = d.buffers[1:]
		}
		d.mu.Unlock()
		if cap(buf) < len(frame) {
			buf = make([]byte, len(frame))
		}
		buf = buf[:len(frame)]
		copy(buf, frame)
		cb(buf, ts)
	case !s.preview && !d.locked && d.sink != nil:
		sink := d.sink
		d.mu.Unlock()
		sink(append([]byte(nil), frame...), ts)
	default:
		d.mu.Unlock()
	}
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "busy") || strings.Contains(s, "ebusy")
}
