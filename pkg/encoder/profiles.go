package encoder

import (
	"sync"

	"camctl/pkg/camera"
	"camctl/pkg/types"
)

var fixedQualities = []types.VideoQuality{
	types.Quality1080P,
	types.Quality720P,
	types.Quality480P,
	types.QualityCIF,
	types.QualityQVGA,
	types.QualityQCIF,
}

// ProfileTable holds the recording profiles each device supports.
type ProfileTable struct {
	mu       sync.RWMutex
	profiles map[int]map[types.VideoQuality]types.Profile
}

func NewProfileTable() *ProfileTable {
	return &ProfileTable{profiles: make(map[int]map[types.VideoQuality]types.Profile)}
}

func (t *ProfileTable) Register(deviceID int, p types.Profile) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.profiles[deviceID]
	if !ok {
		m = make(map[types.VideoQuality]types.Profile)
		t.profiles[deviceID] = m
	}
	m[p.Quality] = p
}

// RegisterSizes derives MJPEG profiles from the video sizes of a device:
// one per fixed quality whose resolution is supported, plus HIGH and LOW.
func (t *ProfileTable) RegisterSizes(deviceID int, sizes []types.Size, fps int) {
	if fps <= 0 {
		fps = types.DefaultVideoFrameRate
	}
	for _, q := range fixedQualities {
		if res, ok := q.Resolution(); ok && types.Contains(sizes, res) {
			t.Register(deviceID, MJPEGProfile(q, res, fps))
		}
	}
	if high, ok := camera.FindHighSize(sizes); ok {
		t.Register(deviceID, MJPEGProfile(types.QualityHigh, high, fps))
	}
	if low, ok := camera.FindLowSize(sizes); ok {
		t.Register(deviceID, MJPEGProfile(types.QualityLow, low, fps))
	}
}

func (t *ProfileTable) Profile(deviceID int, q types.VideoQuality) (types.Profile, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.profiles[deviceID][q]
	return p, ok
}

func MJPEGProfile(q types.VideoQuality, size types.Size, fps int) types.Profile {
	return types.Profile{
		Quality:          q,
		FileFormat:       types.OutputFormatAVI,
		VideoCodec:       types.VideoEncoderMJPEG,
		AudioCodec:       types.AudioEncoderDefault,
		VideoBitRate:     size.Area() * fps,
		VideoFrameRate:   fps,
		VideoFrameWidth:  size.Width,
		VideoFrameHeight: size.Height,
	}
}
