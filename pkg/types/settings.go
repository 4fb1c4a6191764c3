package types

type PixelFormat string

const (
	PixelFormatJPEG  PixelFormat = "JPEG"
	PixelFormatMJPEG PixelFormat = "MJPEG"
	PixelFormatNV21  PixelFormat = "NV21"
	PixelFormatYUYV  PixelFormat = "YUYV"
	PixelFormatRGB24 PixelFormat = "RGB24"
)

// BitsPerPixel is used to size preview callback buffers. Compressed formats
// report 0 and get buffers sized from the raw frame instead.
func (f PixelFormat) BitsPerPixel() int {
	switch f {
	case PixelFormatNV21:
		return 12
	case PixelFormatYUYV:
		return 16
	case PixelFormatRGB24:
		return 24
	default:
		return 0
	}
}

type FlashMode string

const (
	FlashOff     FlashMode = "off"
	FlashAuto    FlashMode = "auto"
	FlashOn      FlashMode = "on"
	FlashRedEye  FlashMode = "red-eye"
	FlashTorch   FlashMode = "torch"
	FlashDefault FlashMode = ""
)

type FocusMode string

const (
	FocusAuto              FocusMode = "auto"
	FocusInfinity          FocusMode = "infinity"
	FocusMacro             FocusMode = "macro"
	FocusFixed             FocusMode = "fixed"
	FocusEDOF              FocusMode = "edof"
	FocusContinuousVideo   FocusMode = "continuous-video"
	FocusContinuousPicture FocusMode = "continuous-picture"
	FocusDefault           FocusMode = ""
)

// NeedsAutoFocus reports whether a capture in this mode should request a
// focus pass first.
func (m FocusMode) NeedsAutoFocus() bool {
	return m == FocusAuto || m == FocusMacro
}

type ColorEffect string

const (
	EffectNone     ColorEffect = "none"
	EffectMono     ColorEffect = "mono"
	EffectNegative ColorEffect = "negative"
	EffectSepia    ColorEffect = "sepia"
	EffectDefault  ColorEffect = ""
)

type WhiteBalance string

const (
	WhiteBalanceAuto         WhiteBalance = "auto"
	WhiteBalanceIncandescent WhiteBalance = "incandescent"
	WhiteBalanceFluorescent  WhiteBalance = "fluorescent"
	WhiteBalanceDaylight     WhiteBalance = "daylight"
	WhiteBalanceCloudy       WhiteBalance = "cloudy-daylight"
	WhiteBalanceDefault      WhiteBalance = ""
)

const (
	ZoomMin          = 0
	ZoomNotSpecified = -1

	JPEGQualityMax = 100

	FrameRateAuto = 0
)

// CameraSettings is the desired capture configuration. Zero values mean
// "leave as the device reports it".
type CameraSettings struct {
	PictureFormat      PixelFormat  `json:"pictureFormat"`
	PreviewFormat      PixelFormat  `json:"previewFormat"`
	PictureSize        Size         `json:"pictureSize"`
	PreviewSize        Size         `json:"previewSize"`
	JPEGQuality        int          `json:"jpegQuality"`
	FlashMode          FlashMode    `json:"flashMode"`
	FocusMode          FocusMode    `json:"focusMode"`
	ColorEffect        ColorEffect  `json:"colorEffect"`
	WhiteBalance       WhiteBalance `json:"whiteBalance"`
	VideoStabilization bool         `json:"videoStabilization"`
	PreviewFrameRate   int          `json:"previewFrameRate"`
	Zoom               int          `json:"zoom"`
	Controls           Controls     `json:"controls,omitempty"`
}

func DefaultCameraSettings() CameraSettings {
	return CameraSettings{
		PictureFormat:      PixelFormatJPEG,
		PreviewFormat:      PixelFormatNV21,
		JPEGQuality:        JPEGQualityMax,
		FlashMode:          FlashAuto,
		FocusMode:          FocusAuto,
		ColorEffect:        EffectNone,
		WhiteBalance:       WhiteBalanceAuto,
		VideoStabilization: true,
		PreviewFrameRate:   FrameRateAuto,
		Zoom:               ZoomNotSpecified,
	}
}
