package types

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

type VideoQuality int

const (
	QualityDefault VideoQuality = -1
	QualityHigh    VideoQuality = 0
	QualityLow     VideoQuality = 2
	Quality1080P   VideoQuality = 3
	Quality720P    VideoQuality = 4
	Quality480P    VideoQuality = 5
	QualityCIF     VideoQuality = 6
	QualityQCIF    VideoQuality = 7
	QualityQVGA    VideoQuality = 8
)

var qualityNames = map[VideoQuality]string{
	QualityDefault: "default",
	QualityHigh:    "high",
	QualityLow:     "low",
	Quality1080P:   "1080p",
	Quality720P:    "720p",
	Quality480P:    "480p",
	QualityCIF:     "cif",
	QualityQCIF:    "qcif",
	QualityQVGA:    "qvga",
}

func (q VideoQuality) String() string {
	if name, ok := qualityNames[q]; ok {
		return name
	}
	return fmt.Sprintf("quality(%d)", int(q))
}

// Resolution is the frame size a fixed-size quality stands for. HIGH, LOW and
// DEFAULT depend on the device and report false.
func (q VideoQuality) Resolution() (Size, bool) {
	switch q {
	case Quality1080P:
		return Size{1920, 1080}, true
	case Quality720P:
		return Size{1280, 720}, true
	case Quality480P:
		return Size{720, 480}, true
	case QualityCIF:
		return Size{352, 288}, true
	case QualityQCIF:
		return Size{176, 144}, true
	case QualityQVGA:
		return Size{320, 240}, true
	default:
		return Size{}, false
	}
}

type VideoEncoder string

const (
	VideoEncoderDefault VideoEncoder = ""
	VideoEncoderH263    VideoEncoder = "h263"
	VideoEncoderH264    VideoEncoder = "h264"
	VideoEncoderMPEG4SP VideoEncoder = "mpeg4-sp"
	VideoEncoderMJPEG   VideoEncoder = "mjpeg"
)

type AudioEncoder string

const (
	AudioEncoderDefault AudioEncoder = ""
	AudioEncoderAMRNB   AudioEncoder = "amr-nb"
	AudioEncoderAMRWB   AudioEncoder = "amr-wb"
	AudioEncoderAAC     AudioEncoder = "aac"
)

type OutputFormat string

const (
	OutputFormatDefault  OutputFormat = ""
	OutputFormatThreeGPP OutputFormat = "3gp"
	OutputFormatMPEG4    OutputFormat = "mp4"
	OutputFormatAVI      OutputFormat = "avi"
)

// OutputFormatFor is the container a video codec is written into.
func OutputFormatFor(enc VideoEncoder) OutputFormat {
	switch enc {
	case VideoEncoderH263:
		return OutputFormatThreeGPP
	case VideoEncoderMJPEG:
		return OutputFormatAVI
	case VideoEncoderH264, VideoEncoderMPEG4SP:
		return OutputFormatMPEG4
	default:
		return OutputFormatDefault
	}
}

// Ext is the file extension, without dot, for the container.
func (f OutputFormat) Ext() string {
	if f == OutputFormatDefault {
		return string(OutputFormatMPEG4)
	}
	return string(f)
}

// Profile is a bundle of encoder parameters for one quality level.
type Profile struct {
	Quality          VideoQuality `json:"quality"`
	FileFormat       OutputFormat `json:"fileFormat"`
	VideoCodec       VideoEncoder `json:"videoCodec"`
	AudioCodec       AudioEncoder `json:"audioCodec"`
	VideoBitRate     int          `json:"videoBitRate"`
	AudioBitRate     int          `json:"audioBitRate"`
	AudioSampleRate  int          `json:"audioSampleRate"`
	AudioChannels    int          `json:"audioChannels"`
	VideoFrameRate   int          `json:"videoFrameRate"`
	VideoFrameWidth  int          `json:"videoFrameWidth"`
	VideoFrameHeight int          `json:"videoFrameHeight"`
}

func (p Profile) Size() Size {
	return Size{p.VideoFrameWidth, p.VideoFrameHeight}
}

// ProfileProvider looks up the profile a device supports for a quality.
type ProfileProvider interface {
	Profile(deviceID int, quality VideoQuality) (Profile, bool)
}

const (
	VideoFrameRateMax     = 60
	DefaultVideoFrameRate = 30
	DefaultThumbnailGrid  = 3
)

type VideoSettings struct {
	Quality         VideoQuality `json:"quality"`
	VideoEncoder    VideoEncoder `json:"videoEncoder"`
	AudioEncoder    AudioEncoder `json:"audioEncoder"`
	AudioDisabled   bool         `json:"audioDisabled"`
	Size            Size         `json:"size"`
	FrameRate       int          `json:"frameRate"`
	MakeThumbnail   bool         `json:"makeThumbnail"`
	ThumbnailGrid   int          `json:"thumbnailGrid"`
	OrientationHint int          `json:"orientationHint"`
}

func DefaultVideoSettings() VideoSettings {
	return VideoSettings{
		Quality:       QualityDefault,
		FrameRate:     FrameRateAuto,
		MakeThumbnail: true,
		ThumbnailGrid: DefaultThumbnailGrid,
	}
}

type LimitKind int

const (
	LimitNone LimitKind = iota
	LimitTime
	LimitSize
)

// RecordLimit stops a recording after a duration or a file size.
type RecordLimit struct {
	Kind     LimitKind     `json:"kind"`
	Duration time.Duration `json:"duration,omitempty"`
	Bytes    int64         `json:"bytes,omitempty"`
}

func NoLimit() RecordLimit {
	return RecordLimit{Kind: LimitNone}
}

func TimeLimit(d time.Duration) RecordLimit {
	return RecordLimit{Kind: LimitTime, Duration: d}
}

func SizeLimit(n int64) RecordLimit {
	return RecordLimit{Kind: LimitSize, Bytes: n}
}

func (l RecordLimit) String() string {
	switch l.Kind {
	case LimitTime:
		return "time " + l.Duration.String()
	case LimitSize:
		return "size " + humanize.Bytes(uint64(l.Bytes))
	default:
		return "none"
	}
}

// RecordingOutput describes a finished recording handed to post-processing.
type RecordingOutput struct {
	ID        string        `json:"id"`
	DeviceID  int           `json:"deviceId"`
	File      string        `json:"file"`
	Size      Size          `json:"size"`
	Settings  VideoSettings `json:"settings"`
	CreatedAt time.Time     `json:"createdAt"`
}

type Thumbnail struct {
	Recording RecordingOutput `json:"recording"`
	File      string          `json:"file"`
	Frames    int             `json:"frames"`
}
