package camera

import (
	"errors"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap"

	"camctl/pkg/types"
	"camctl/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger().Named("camera")
}

var (
	ErrNotLocked   = errors.New("device is not locked")
	ErrLocked      = errors.New("device is locked")
	ErrReleased    = errors.New("device released")
	ErrNotFound    = errors.New("device not found")
	ErrUnsupported = errors.New("unsupported by device")
	ErrAttached    = errors.New("a sink is already attached")
)

// Device error codes delivered through ErrorCallback.
const (
	ErrorUnknown     = 1
	ErrorEvicted     = 2
	ErrorServerDied  = 100
	ErrorStreamEnded = 101
)

type (
	// FrameCallback receives preview frames on the device's streaming
	// goroutine. With buffering enabled frame is a buffer previously handed
	// to AddCallbackBuffer and must be returned once consumed.
	FrameCallback func(frame []byte, ts time.Time)
	// FrameSink receives frames while an encoder is attached.
	FrameSink         func(frame []byte, ts time.Time)
	ErrorCallback     func(code int, err error)
	AutoFocusCallback func(success bool)
	ShutterCallback   func()
	PictureCallback   func(data []byte)
)

// Looper hosts device callbacks. Error, autofocus and picture callbacks are
// posted to the looper the device was opened with. Post returns false once
// the looper stopped.
type Looper interface {
	Post(fn func()) bool
}

// DisplayTarget is the surface preview frames are rendered into.
type DisplayTarget interface {
	Size() types.Size
}

// Opener opens exclusive capture devices by numeric id.
type Opener interface {
	Open(id int, looper Looper) (Device, error)
}

// Device is an exclusive capture device.
//
// A freshly opened device is locked. Parameter access and preview are only
// valid while locked; Attach is only valid while unlocked.
type Device interface {
	Info() types.DeviceInfo

	Lock() error
	Unlock() error
	Reconnect() error

	Parameters() (Parameters, error)
	SetParameters(p Parameters) error

	SetDisplayTarget(t DisplayTarget) error
	SetDisplayOrientation(degrees int) error
	StartPreview() error
	StopPreview() error
	SetPreviewCallback(cb FrameCallback, buffered bool)
	AddCallbackBuffer(buf []byte)
	SetErrorCallback(cb ErrorCallback)

	AutoFocus(cb AutoFocusCallback) error
	CancelAutoFocus() error
	TakePicture(shutter ShutterCallback, raw, jpeg PictureCallback) error

	// Attach streams frames of the given size to sink until Detach.
	Attach(size types.Size, fps int, sink FrameSink) error
	Detach()

	Release() error
}

// Parameters is a copy of the device configuration together with the value
// sets it supports.
type Parameters struct {
	PreviewSize        types.Size         `json:"previewSize"`
	PictureSize        types.Size         `json:"pictureSize"`
	PreviewFormat      types.PixelFormat  `json:"previewFormat"`
	PictureFormat      types.PixelFormat  `json:"pictureFormat"`
	JPEGQuality        int                `json:"jpegQuality"`
	FlashMode          types.FlashMode    `json:"flashMode"`
	FocusMode          types.FocusMode    `json:"focusMode"`
	ColorEffect        types.ColorEffect  `json:"colorEffect"`
	WhiteBalance       types.WhiteBalance `json:"whiteBalance"`
	PreviewFpsRange    types.FpsRange     `json:"previewFpsRange"`
	VideoStabilization bool               `json:"videoStabilization"`
	RecordingHint      bool               `json:"recordingHint"`
	Zoom               int                `json:"zoom"`
	Rotation           int                `json:"rotation"`
	Controls           types.Controls     `json:"controls,omitempty"`

	SupportedPreviewSizes       []types.Size         `json:"supportedPreviewSizes"`
	SupportedPictureSizes       []types.Size         `json:"supportedPictureSizes"`
	SupportedVideoSizes         []types.Size         `json:"supportedVideoSizes"`
	SupportedPreviewFormats     []types.PixelFormat  `json:"supportedPreviewFormats"`
	SupportedPictureFormats     []types.PixelFormat  `json:"supportedPictureFormats"`
	SupportedFlashModes         []types.FlashMode    `json:"supportedFlashModes"`
	SupportedFocusModes         []types.FocusMode    `json:"supportedFocusModes"`
	SupportedColorEffects       []types.ColorEffect  `json:"supportedColorEffects"`
	SupportedWhiteBalance       []types.WhiteBalance `json:"supportedWhiteBalance"`
	SupportedPreviewFpsRanges   []types.FpsRange     `json:"supportedPreviewFpsRanges"`
	MaxZoom                     int                  `json:"maxZoom"`
	VideoStabilizationSupported bool                 `json:"videoStabilizationSupported"`
}

func (p Parameters) Clone() Parameters {
	p.Controls = maps.Clone(p.Controls)
	p.SupportedPreviewSizes = slices.Clone(p.SupportedPreviewSizes)
	p.SupportedPictureSizes = slices.Clone(p.SupportedPictureSizes)
	p.SupportedVideoSizes = slices.Clone(p.SupportedVideoSizes)
	p.SupportedPreviewFormats = slices.Clone(p.SupportedPreviewFormats)
	p.SupportedPictureFormats = slices.Clone(p.SupportedPictureFormats)
	p.SupportedFlashModes = slices.Clone(p.SupportedFlashModes)
	p.SupportedFocusModes = slices.Clone(p.SupportedFocusModes)
	p.SupportedColorEffects = slices.Clone(p.SupportedColorEffects)
	p.SupportedWhiteBalance = slices.Clone(p.SupportedWhiteBalance)
	p.SupportedPreviewFpsRanges = slices.Clone(p.SupportedPreviewFpsRanges)

	return p
}

// VideoSizes falls back to the preview sizes when the device does not list
// dedicated video sizes.
func (p Parameters) VideoSizes() []types.Size {
	if len(p.SupportedVideoSizes) > 0 {
		return p.SupportedVideoSizes
	}
	return p.SupportedPreviewSizes
}

// ZoomSupported reports whether the device can zoom at all.
func (p Parameters) ZoomSupported() bool {
	return p.MaxZoom > types.ZoomMin
}
