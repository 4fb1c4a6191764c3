package session

import (
	"fmt"
	"math"

	"camctl/pkg/camera"
	"camctl/pkg/encoder"
	"camctl/pkg/types"
)

// recordPlan is the encoder configuration resolved for one recording.
type recordPlan struct {
	profile    types.Profile
	useProfile bool

	videoEnc    types.VideoEncoder
	audioEnc    types.AudioEncoder
	format      types.OutputFormat
	size        types.Size
	fps         int
	orientation int
}

// resolvePlanLocked reconciles the requested settings with the device's
// profiles and supported values. A supported profile wins except for
// explicitly requested encoders; without one every field is resolved on its
// own and an unsupported size falls back to the medium video size.
func (c *Controller) resolvePlanLocked(s types.VideoSettings) (recordPlan, error) {
	var plan recordPlan
	id := c.dev.Info().ID

	if s.Quality != types.QualityDefault {
		if p, ok := c.cfg.Profiles.Profile(id, s.Quality); ok {
			plan.profile, plan.useProfile = p, true
		} else {
			logger.Warnf("quality %s not supported by device %d, using default", s.Quality, id)
		}
	}

	if plan.useProfile {
		p := plan.profile
		if s.VideoEncoder != types.VideoEncoderDefault {
			p.VideoCodec = s.VideoEncoder
			p.FileFormat = types.OutputFormatFor(s.VideoEncoder)
		}
		if s.AudioEncoder != types.AudioEncoderDefault {
			p.AudioCodec = s.AudioEncoder
		}
		plan.profile = p
		plan.videoEnc, plan.audioEnc = p.VideoCodec, p.AudioCodec
		plan.format = p.FileFormat
		plan.size = p.Size()
	} else {
		plan.videoEnc, plan.audioEnc = s.VideoEncoder, s.AudioEncoder
		plan.format = types.OutputFormatFor(s.VideoEncoder)
		sizes := c.params.VideoSizes()
		plan.size = s.Size
		if !types.Contains(sizes, s.Size) {
			medium, ok := camera.FindMediumSize(sizes)
			if !ok {
				return plan, fmt.Errorf("device %d reports no video sizes: %w", id, ErrUnsupported)
			}
			if !s.Size.IsZero() {
				logger.Warnf("video size %s not supported, using %s", s.Size, medium)
			}
			plan.size = medium
		}
	}
	if plan.format == types.OutputFormatDefault && plan.videoEnc == types.VideoEncoderDefault {
		plan.format = types.OutputFormatFor(types.VideoEncoderMJPEG)
	}

	plan.fps = c.resolveFrameRateLocked(s.FrameRate, plan)
	plan.orientation = s.OrientationHint
	if plan.orientation == 0 {
		plan.orientation = camera.PictureRotation(c.dev.Info(), c.rotation)
	}
	return plan, nil
}

// resolveFrameRateLocked picks the recording rate: an explicit supported
// rate, then the profile rate. It returns 0 when the rate has to come from
// a preview measurement, see measuredRateLocked.
func (c *Controller) resolveFrameRateLocked(requested int, plan recordPlan) int {
	if requested != types.FrameRateAuto {
		if c.frameRateSupported(requested) {
			return requested
		}
		logger.Warnf("frame rate %d not supported", requested)
	}
	if plan.useProfile && plan.profile.VideoFrameRate > 0 {
		return plan.profile.VideoFrameRate
	}
	return 0
}

// measuredRateLocked uses a measured preview rate when the device supports
// it and falls back to the default.
func (c *Controller) measuredRateLocked(fps float64) int {
	measured := int(math.Round(fps))
	if measured > 0 && c.frameRateSupported(measured) {
		logger.Infof("recording at measured preview rate %d fps", measured)
		return measured
	}
	logger.Infof("no usable frame rate measured (%d), using %d fps", measured, types.DefaultVideoFrameRate)
	return types.DefaultVideoFrameRate
}

func (c *Controller) frameRateSupported(fps int) bool {
	if fps <= 0 || fps > types.VideoFrameRateMax {
		return false
	}
	ranges := c.params.SupportedPreviewFpsRanges
	if len(ranges) == 0 {
		return true
	}
	for _, r := range ranges {
		if r.Contains(float64(fps)) {
			return true
		}
	}
	return false
}

// configureEncoder applies a plan to a fresh encoder bound to dev.
func configureEncoder(enc encoder.Encoder, dev camera.Device, plan recordPlan, s types.VideoSettings,
	limit types.RecordLimit, file string) error {
	type step struct {
		name string
		fn   func() error
	}
	steps := []step{{"camera", func() error { return enc.SetCamera(dev) }}}
	add := func(name string, fn func() error) {
		steps = append(steps, step{name, fn})
	}

	if plan.useProfile {
		p := plan.profile
		if s.AudioDisabled {
			add("output format", func() error { return enc.SetOutputFormat(p.FileFormat) })
			add("frame rate", func() error { return enc.SetVideoFrameRate(p.VideoFrameRate) })
			add("video size", func() error { return enc.SetVideoSize(p.Size()) })
			add("bit rate", func() error { return enc.SetVideoEncodingBitRate(p.VideoBitRate) })
			add("video encoder", func() error { return enc.SetVideoEncoder(p.VideoCodec) })
		} else {
			add("profile", func() error { return enc.SetProfile(p) })
		}
		if plan.fps != p.VideoFrameRate {
			add("frame rate", func() error { return enc.SetVideoFrameRate(plan.fps) })
		}
	} else {
		add("output format", func() error { return enc.SetOutputFormat(plan.format) })
		add("frame rate", func() error { return enc.SetVideoFrameRate(plan.fps) })
		add("video size", func() error { return enc.SetVideoSize(plan.size) })
		if !s.AudioDisabled {
			add("audio encoder", func() error { return enc.SetAudioEncoder(plan.audioEnc) })
		}
		add("video encoder", func() error { return enc.SetVideoEncoder(plan.videoEnc) })
	}
	add("orientation", func() error { return enc.SetOrientationHint(plan.orientation) })

	switch limit.Kind {
	case types.LimitTime:
		add("max duration", func() error { return enc.SetMaxDuration(limit.Duration) })
	case types.LimitSize:
		add("max file size", func() error { return enc.SetMaxFileSize(limit.Bytes) })
	}
	add("output file", func() error { return enc.SetOutputFile(file) })

	for _, st := range steps {
		if err := st.fn(); err != nil {
			return fmt.Errorf("set %s: %w", st.name, err)
		}
	}
	return nil
}
