package encoder

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/icza/mjpeg"

	"camctl/pkg/camera"
	"camctl/pkg/types"
)

var ErrNoFrames = errors.New("no frames recorded")

type state int

const (
	stateInitial state = iota
	statePrepared
	stateRecording
	stateStopped
	stateReleased
)

// MJPEG writes the JPEG frames of an attached device into an AVI file.
// It has no audio track, audio settings are accepted and ignored.
type MJPEG struct {
	mu    sync.Mutex
	state state

	dev         camera.Device
	size        types.Size
	fps         int
	bitRate     int
	orientation int
	maxDuration time.Duration
	maxSize     int64
	path        string
	errCb       ErrorCallback
	infoCb      InfoCallback

	aw       mjpeg.AviWriter
	frames   int
	bytes    int64
	started  time.Time
	limitHit bool
	failed   bool
}

func NewMJPEG() *MJPEG {
	return &MJPEG{fps: types.DefaultVideoFrameRate}
}

// MJPEGFactory is an encoder.Factory producing MJPEG encoders.
func MJPEGFactory() Encoder {
	return NewMJPEG()
}

func (e *MJPEG) configurable() error {
	if e.state != stateInitial {
		return fmt.Errorf("configure in state %d: %w", e.state, ErrState)
	}
	return nil
}

func (e *MJPEG) SetCamera(dev camera.Device) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.configurable(); err != nil {
		return err
	}
	e.dev = dev
	return nil
}

func (e *MJPEG) SetProfile(p types.Profile) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.configurable(); err != nil {
		return err
	}
	if err := checkVideoEncoder(p.VideoCodec); err != nil {
		return err
	}
	if err := checkOutputFormat(p.FileFormat); err != nil {
		return err
	}
	e.size = p.Size()
	if p.VideoFrameRate > 0 {
		e.fps = p.VideoFrameRate
	}
	e.bitRate = p.VideoBitRate
	return nil
}

func (e *MJPEG) SetOutputFormat(f types.OutputFormat) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.configurable(); err != nil {
		return err
	}
	return checkOutputFormat(f)
}

func (e *MJPEG) SetVideoEncoder(enc types.VideoEncoder) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.configurable(); err != nil {
		return err
	}
	return checkVideoEncoder(enc)
}

func (e *MJPEG) SetAudioEncoder(enc types.AudioEncoder) error {
	if enc != types.AudioEncoderDefault {
		logger.Warnf("audio encoder %q ignored, mjpeg recordings have no audio", enc)
	}
	return nil
}

func (e *MJPEG) SetVideoFrameRate(fps int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.configurable(); err != nil {
		return err
	}
	if fps <= 0 || fps > types.VideoFrameRateMax {
		return fmt.Errorf("frame rate %d: %w", fps, ErrUnsupported)
	}
	e.fps = fps
	return nil
}

func (e *MJPEG) SetVideoSize(size types.Size) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.configurable(); err != nil {
		return err
	}
	if size.IsZero() {
		return fmt.Errorf("video size %s: %w", size, ErrUnsupported)
	}
	e.size = size
	return nil
}

func (e *MJPEG) SetVideoEncodingBitRate(bps int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bitRate = bps
	return nil
}

func (e *MJPEG) SetOrientationHint(degrees int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if degrees%90 != 0 {
		return fmt.Errorf("orientation %d: %w", degrees, ErrUnsupported)
	}
	e.orientation = degrees
	return nil
}

func (e *MJPEG) SetMaxDuration(d time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.configurable(); err != nil {
		return err
	}
	e.maxDuration = max(d, 0)
	return nil
}

func (e *MJPEG) SetMaxFileSize(n int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.configurable(); err != nil {
		return err
	}
	e.maxSize = max(n, 0)
	return nil
}

func (e *MJPEG) SetOutputFile(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.configurable(); err != nil {
		return err
	}
	e.path = path
	return nil
}

func (e *MJPEG) SetErrorCallback(cb ErrorCallback) {
	e.mu.Lock()
	e.errCb = cb
	e.mu.Unlock()
}

func (e *MJPEG) SetInfoCallback(cb InfoCallback) {
	e.mu.Lock()
	e.infoCb = cb
	e.mu.Unlock()
}

func (e *MJPEG) Prepare() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.configurable(); err != nil {
		return err
	}
	if e.dev == nil {
		return fmt.Errorf("prepare: %w", errors.New("no camera bound"))
	}
	if e.path == "" {
		return ErrNoOutput
	}
	if e.size.IsZero() {
		return fmt.Errorf("prepare: video size not set: %w", ErrState)
	}

	aw, err := mjpeg.New(e.path, int32(e.size.Width), int32(e.size.Height), int32(e.fps))
	if err != nil {
		return fmt.Errorf("create %s: %w", e.path, err)
	}
	e.aw = aw
	e.state = statePrepared
	return nil
}

func (e *MJPEG) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != statePrepared {
		return fmt.Errorf("start in state %d: %w", e.state, ErrState)
	}
	e.frames, e.bytes = 0, 0
	e.limitHit, e.failed = false, false
	e.started = time.Now()
	e.state = stateRecording
	if err := e.dev.Attach(e.size, e.fps, e.onFrame); err != nil {
		e.state = statePrepared
		return fmt.Errorf("attach to camera: %w", err)
	}
	logger.Infof("recording %s at %s %d fps, limits: %s / %s", e.path, e.size, e.fps,
		e.maxDuration, humanize.Bytes(uint64(e.maxSize)))
	return nil
}

func (e *MJPEG) onFrame(frame []byte, _ time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateRecording || e.limitHit || e.failed {
		return
	}
	if err := e.aw.AddFrame(frame); err != nil {
		e.failed = true
		logger.Errorf("write frame to %s: %s", e.path, err)
		if cb := e.errCb; cb != nil {
			go cb(ErrorWrite, 0)
		}
		return
	}
	e.frames++
	e.bytes += int64(len(frame))

	what := 0
	switch {
	case e.maxDuration > 0 && time.Since(e.started) >= e.maxDuration:
		what = InfoMaxDurationReached
	case e.maxSize > 0 && e.bytes >= e.maxSize:
		what = InfoMaxFileSizeReached
	}
	if what != 0 {
		e.limitHit = true
		if cb := e.infoCb; cb != nil {
			go cb(what, e.frames)
		}
	}
}

func (e *MJPEG) Stop() error {
	e.mu.Lock()
	if e.state != stateRecording {
		e.mu.Unlock()
		return fmt.Errorf("stop in state %d: %w", e.state, ErrState)
	}
	e.state = stateStopped
	dev, aw, path, frames, size := e.dev, e.aw, e.path, e.frames, e.bytes
	e.aw = nil
	e.mu.Unlock()

	// detach outside the lock, the device may be delivering a frame
	dev.Detach()
	if err := aw.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if frames == 0 {
		_ = os.Remove(path)
		return ErrNoFrames
	}
	logger.Infof("recorded %d frames (%s) to %s", frames, humanize.Bytes(uint64(size)), path)
	return nil
}

func (e *MJPEG) Reset() {
	e.mu.Lock()
	st, dev, aw := e.state, e.dev, e.aw
	e.state = stateInitial
	e.aw = nil
	e.dev = nil
	e.path = ""
	e.maxDuration, e.maxSize = 0, 0
	e.mu.Unlock()

	if st == stateRecording && dev != nil {
		dev.Detach()
	}
	if aw != nil {
		_ = aw.Close()
	}
}

func (e *MJPEG) Release() {
	e.Reset()
	e.mu.Lock()
	e.state = stateReleased
	e.errCb, e.infoCb = nil, nil
	e.mu.Unlock()
}

// Frames is the number of frames written by the current or last recording.
func (e *MJPEG) Frames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

func checkVideoEncoder(enc types.VideoEncoder) error {
	if enc != types.VideoEncoderDefault && enc != types.VideoEncoderMJPEG {
		return fmt.Errorf("video encoder %q: %w", enc, ErrUnsupported)
	}
	return nil
}

func checkOutputFormat(f types.OutputFormat) error {
	if f != types.OutputFormatDefault && f != types.OutputFormatAVI {
		return fmt.Errorf("output format %q: %w", f, ErrUnsupported)
	}
	return nil
}
