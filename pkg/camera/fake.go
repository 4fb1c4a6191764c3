package camera

import (
	"fmt"
	"sync"
	"time"

	"camctl/pkg/types"
	"camctl/pkg/utils/image"
)

// FakeConfig describes a simulated sensor.
type FakeConfig struct {
	Info         types.DeviceInfo
	PreviewSizes []types.Size
	PictureSizes []types.Size
	VideoSizes   []types.Size
	FpsRanges    []types.FpsRange
	FocusModes   []types.FocusMode
	FlashModes   []types.FlashMode
	MaxZoom      int

	// FrameRate is the simulated stream rate, 0 produces no frames.
	FrameRate float64
	// FrameSize is the size of the generated pattern frames.
	FrameSize types.Size

	AutoFocusDelay time.Duration
	// AutoFocusSilent drops autofocus requests without ever answering.
	AutoFocusSilent bool
	PictureDelay    time.Duration
	// TriggerDelay blocks TakePicture before it returns.
	TriggerDelay time.Duration
}

func DefaultFakeConfig() FakeConfig {
	return FakeConfig{
		Info: types.DeviceInfo{Name: "fake", Facing: types.FacingBack, Orientation: 90},
		PreviewSizes: []types.Size{
			{Width: 320, Height: 240}, {Width: 640, Height: 480}, {Width: 1280, Height: 720}, {Width: 1920, Height: 1080},
		},
		PictureSizes: []types.Size{
			{Width: 640, Height: 480}, {Width: 1920, Height: 1080}, {Width: 3280, Height: 2464},
		},
		VideoSizes: []types.Size{
			{Width: 320, Height: 240}, {Width: 640, Height: 480}, {Width: 1280, Height: 720}, {Width: 1920, Height: 1080},
		},
		FpsRanges:      []types.FpsRange{{Min: 5, Max: 30}, {Min: 15, Max: 60}},
		FocusModes:     []types.FocusMode{types.FocusAuto, types.FocusFixed, types.FocusContinuousVideo},
		FlashModes:     []types.FlashMode{types.FlashOff, types.FlashAuto, types.FlashOn},
		MaxZoom:        10,
		FrameRate:      30,
		FrameSize:      types.Size{Width: 64, Height: 48},
		AutoFocusDelay: 10 * time.Millisecond,
		PictureDelay:   10 * time.Millisecond,
	}
}

// FakeStats counts the calls a FakeDevice received.
type FakeStats struct {
	Locks             int
	Unlocks           int
	Reconnects        int
	PreviewStarts     int
	PreviewStops      int
	AutoFocusRequests int
	Pictures          int
	FramesDelivered   int
	FramesSunk        int
	FramesDropped     int
}

// FakeOpener hands out simulated devices for ids below Count.
type FakeOpener struct {
	cfg   FakeConfig
	Count int

	mu        sync.Mutex
	openErr   error
	openDelay time.Duration
	devices   []*FakeDevice
}

func NewFakeOpener(cfg FakeConfig) *FakeOpener {
	return &FakeOpener{cfg: cfg, Count: 1}
}

// FailNextOpen makes the next Open call fail with err.
func (o *FakeOpener) FailNextOpen(err error) {
	o.mu.Lock()
	o.openErr = err
	o.mu.Unlock()
}

func (o *FakeOpener) SetOpenDelay(d time.Duration) {
	o.mu.Lock()
	o.openDelay = d
	o.mu.Unlock()
}

func (o *FakeOpener) Open(id int, looper Looper) (Device, error) {
	o.mu.Lock()
	err, delay := o.openErr, o.openDelay
	o.openErr = nil
	o.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	if id < 0 || id >= o.Count {
		return nil, fmt.Errorf("open device %d: %w", id, ErrNotFound)
	}

	cfg := o.cfg
	cfg.Info.ID = id
	d := newFakeDevice(cfg, looper)
	o.mu.Lock()
	o.devices = append(o.devices, d)
	o.mu.Unlock()

	return d, nil
}

// Last returns the most recently opened device.
func (o *FakeOpener) Last() *FakeDevice {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.devices) == 0 {
		return nil
	}
	return o.devices[len(o.devices)-1]
}

// FakeDevice simulates a capture device producing pattern frames.
type FakeDevice struct {
	cfg    FakeConfig
	looper Looper

	mu         sync.Mutex
	params     Parameters
	locked     bool
	previewing bool
	released   bool
	target     DisplayTarget
	rotation   int

	frameCb  FrameCallback
	buffered bool
	buffers  [][]byte
	errCb    ErrorCallback
	sink     FrameSink
	sinkSize types.Size

	failSetParameters error
	stats             FakeStats

	frames [][]byte
	seq    int
	stop   chan struct{}
}

func newFakeDevice(cfg FakeConfig, looper Looper) *FakeDevice {
	if cfg.FrameSize.IsZero() {
		cfg.FrameSize = types.Size{Width: 64, Height: 48}
	}
	d := &FakeDevice{
		cfg:    cfg,
		looper: looper,
		locked: true,
		stop:   make(chan struct{}),
	}
	d.params = d.initialParameters()
	for i := 0; i < 4; i++ {
		d.frames = append(d.frames, image.Pattern(cfg.FrameSize.Width, cfg.FrameSize.Height, i))
	}
	go d.produce()

	return d
}

func (d *FakeDevice) initialParameters() Parameters {
	p := Parameters{
		PreviewFormat:             types.PixelFormatNV21,
		PictureFormat:             types.PixelFormatJPEG,
		JPEGQuality:               types.JPEGQualityMax,
		FlashMode:                 types.FlashOff,
		FocusMode:                 types.FocusFixed,
		ColorEffect:               types.EffectNone,
		WhiteBalance:              types.WhiteBalanceAuto,
		SupportedPreviewSizes:     d.cfg.PreviewSizes,
		SupportedPictureSizes:     d.cfg.PictureSizes,
		SupportedVideoSizes:       d.cfg.VideoSizes,
		SupportedPreviewFormats:   []types.PixelFormat{types.PixelFormatNV21, types.PixelFormatJPEG},
		SupportedPictureFormats:   []types.PixelFormat{types.PixelFormatJPEG},
		SupportedFlashModes:       d.cfg.FlashModes,
		SupportedFocusModes:       d.cfg.FocusModes,
		SupportedColorEffects:     []types.ColorEffect{types.EffectNone, types.EffectMono, types.EffectSepia},
		SupportedWhiteBalance:     []types.WhiteBalance{types.WhiteBalanceAuto, types.WhiteBalanceDaylight},
		SupportedPreviewFpsRanges: d.cfg.FpsRanges,
		MaxZoom:                   d.cfg.MaxZoom,
	}
	if len(d.cfg.PreviewSizes) > 0 {
		p.PreviewSize = d.cfg.PreviewSizes[0]
	}
	if len(d.cfg.PictureSizes) > 0 {
		p.PictureSize = d.cfg.PictureSizes[len(d.cfg.PictureSizes)-1]
	}
	if len(d.cfg.FpsRanges) > 0 {
		p.PreviewFpsRange = d.cfg.FpsRanges[len(d.cfg.FpsRanges)-1]
	}

	return p
}

func (d *FakeDevice) Info() types.DeviceInfo {
	return d.cfg.Info
}

func (d *FakeDevice) Lock() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	d.locked = true
	d.stats.Locks++
	return nil
}

func (d *FakeDevice) Unlock() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	d.locked = false
	d.stats.Unlocks++
	return nil
}

func (d *FakeDevice) Reconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	d.locked = true
	d.stats.Reconnects++
	return nil
}

func (d *FakeDevice) Parameters() (Parameters, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(); err != nil {
		return Parameters{}, err
	}
	return d.params.Clone(), nil
}

func (d *FakeDevice) SetParameters(p Parameters) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(); err != nil {
		return err
	}
	if d.failSetParameters != nil {
		return d.failSetParameters
	}
	if !p.PreviewSize.IsZero() && !types.Contains(d.params.SupportedPreviewSizes, p.PreviewSize) {
		return fmt.Errorf("preview size %s: %w", p.PreviewSize, ErrUnsupported)
	}
	if !p.PictureSize.IsZero() && !types.Contains(d.params.SupportedPictureSizes, p.PictureSize) {
		return fmt.Errorf("picture size %s: %w", p.PictureSize, ErrUnsupported)
	}
	if p.Zoom < types.ZoomMin || p.Zoom > d.params.MaxZoom {
		return fmt.Errorf("zoom %d: %w", p.Zoom, ErrUnsupported)
	}

	next := d.params
	next.PreviewSize = p.PreviewSize
	next.PictureSize = p.PictureSize
	next.PreviewFormat = p.PreviewFormat
	next.PictureFormat = p.PictureFormat
	next.JPEGQuality = p.JPEGQuality
	next.FlashMode = p.FlashMode
	next.FocusMode = p.FocusMode
	next.ColorEffect = p.ColorEffect
	next.WhiteBalance = p.WhiteBalance
	next.PreviewFpsRange = p.PreviewFpsRange
	next.VideoStabilization = p.VideoStabilization
	next.RecordingHint = p.RecordingHint
	next.Zoom = p.Zoom
	next.Rotation = p.Rotation
	next.Controls = p.Clone().Controls
	d.params = next

	return nil
}

func (d *FakeDevice) SetDisplayTarget(t DisplayTarget) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	d.target = t
	return nil
}

func (d *FakeDevice) SetDisplayOrientation(degrees int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rotation = degrees
	return nil
}

func (d *FakeDevice) StartPreview() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(); err != nil {
		return err
	}
	d.previewing = true
	d.stats.PreviewStarts++
	return nil
}

func (d *FakeDevice) StopPreview() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	d.previewing = false
	d.stats.PreviewStops++
	return nil
}

func (d *FakeDevice) SetPreviewCallback(cb FrameCallback, buffered bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frameCb = cb
	d.buffered = buffered
	if !buffered || cb == nil {
		d.buffers = nil
	}
}

func (d *FakeDevice) AddCallbackBuffer(buf []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.buffered && buf != nil {
		d.buffers = append(d.buffers, buf)
	}
}

func (d *FakeDevice) SetErrorCallback(cb ErrorCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errCb = cb
}

func (d *FakeDevice) AutoFocus(cb AutoFocusCallback) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(); err != nil {
		return err
	}
	d.stats.AutoFocusRequests++
	if d.cfg.AutoFocusSilent || cb == nil {
		return nil
	}
	delay := d.cfg.AutoFocusDelay
	go func() {
		time.Sleep(delay)
		d.looper.Post(func() { cb(true) })
	}()
	return nil
}

func (d *FakeDevice) CancelAutoFocus() error {
	return nil
}

func (d *FakeDevice) TakePicture(shutter ShutterCallback, raw, jpeg PictureCallback) error {
	if d.cfg.TriggerDelay > 0 {
		time.Sleep(d.cfg.TriggerDelay)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(); err != nil {
		return err
	}
	d.previewing = false
	d.stats.Pictures++
	data := image.Pattern(d.cfg.FrameSize.Width, d.cfg.FrameSize.Height, d.stats.Pictures)
	delay := d.cfg.PictureDelay
	go func() {
		time.Sleep(delay)
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

func (d *FakeDevice) Attach(size types.Size, _ int, sink FrameSink) error {
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
	d.sink = sink
	d.sinkSize = size
	return nil
}

func (d *FakeDevice) Detach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink = nil
}

func (d *FakeDevice) Release() error {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return nil
	}
	d.released = true
	d.previewing = false
	d.frameCb = nil
	d.sink = nil
	close(d.stop)
	d.mu.Unlock()

	return nil
}

// InjectError reports a device level fault through the looper.
func (d *FakeDevice) InjectError(code int, err error) {
	d.mu.Lock()
	cb := d.errCb
	d.mu.Unlock()
	if cb != nil {
		d.looper.Post(func() { cb(code, err) })
	}
}

// FailSetParameters makes SetParameters fail with err, nil restores it.
func (d *FakeDevice) FailSetParameters(err error) {
	d.mu.Lock()
	d.failSetParameters = err
	d.mu.Unlock()
}

func (d *FakeDevice) Stats() FakeStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *FakeDevice) Locked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locked
}

func (d *FakeDevice) Previewing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.previewing
}

func (d *FakeDevice) Attached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sink != nil
}

func (d *FakeDevice) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

// PendingBuffers is the number of callback buffers the device holds.
func (d *FakeDevice) PendingBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

func (d *FakeDevice) checkLocked() error {
	if d.released {
		return ErrReleased
	}
	if !d.locked {
		return ErrNotLocked
	}
	return nil
}

func (d *FakeDevice) produce() {
	if d.cfg.FrameRate <= 0 {
		<-d.stop
		return
	}

	t := time.NewTicker(time.Duration(float64(time.Second) / d.cfg.FrameRate))
	defer t.Stop()
	for {
		select {
		case <-d.stop:
			return
		case ts := <-t.C:
			d.tick(ts)
		}
	}
}

func (d *FakeDevice) tick(ts time.Time) {
	d.mu.Lock()
	frame := d.frames[d.seq%len(d.frames)]
	d.seq++

	switch {
	case d.previewing && d.locked && d.frameCb != nil:
		cb := d.frameCb
		if d.buffered {
			if len(d.buffers) == 0 {
				d.stats.FramesDropped++
				d.mu.Unlock()
				return
			}
			buf := d.buffers[0]
			d.buffers = d.buffers[1:]
			if cap(buf) < len(frame) {
				buf = make([]byte, len(frame))
			}
			buf = buf[:len(frame)]
			copy(buf, frame)
			frame = buf
		}
		d.stats.FramesDelivered++
		d.mu.Unlock()
		cb(frame, ts)
	case !d.locked && d.sink != nil:
		sink := d.sink
		d.stats.FramesSunk++
		d.mu.Unlock()
		sink(frame, ts)
	default:
		d.mu.Unlock()
	}
}
