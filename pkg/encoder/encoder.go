package encoder

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"camctl/pkg/camera"
	"camctl/pkg/types"
	"camctl/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger().Named("encoder")
}

var (
	ErrState       = errors.New("invalid encoder state")
	ErrUnsupported = errors.New("unsupported encoder setting")
	ErrNoOutput    = errors.New("output file not set")
)

// Info codes delivered through InfoCallback.
const (
	InfoMaxDurationReached = 800
	InfoMaxFileSizeReached = 801
)

// Error codes delivered through ErrorCallback.
const (
	ErrorUnknown = 1
	ErrorWrite   = 2
	ErrorSource  = 3
)

type (
	ErrorCallback func(what, extra int)
	InfoCallback  func(what, extra int)
)

// Encoder records frames of an unlocked capture device into a file.
//
// Callbacks are delivered on goroutines of their own and may arrive after
// Stop returned; receivers must tolerate stale deliveries.
type Encoder interface {
	SetCamera(dev camera.Device) error
	SetProfile(p types.Profile) error
	SetOutputFormat(f types.OutputFormat) error
	SetVideoEncoder(enc types.VideoEncoder) error
	SetAudioEncoder(enc types.AudioEncoder) error
	SetVideoFrameRate(fps int) error
	SetVideoSize(size types.Size) error
	SetVideoEncodingBitRate(bps int) error
	SetOrientationHint(degrees int) error
	SetMaxDuration(d time.Duration) error
	SetMaxFileSize(n int64) error
	SetOutputFile(path string) error
	SetErrorCallback(cb ErrorCallback)
	SetInfoCallback(cb InfoCallback)

	Prepare() error
	Start() error
	Stop() error
	Reset()
	Release()
}

// Factory creates a fresh encoder for every recording.
type Factory func() Encoder
