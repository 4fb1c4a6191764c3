package session

import (
	"errors"
	"fmt"
	"maps"
	"math"

	"github.com/vladimirvivien/go4vl/v4l2"

	"camctl/pkg/camera"
	"camctl/pkg/types"
)

type Preset string

const (
	PresetLow    Preset = "low"
	PresetMedium Preset = "medium"
	PresetHigh   Preset = "high"
)

func presetSize(sizes []types.Size, p Preset) (types.Size, bool) {
	switch p {
	case PresetLow:
		return camera.FindLowSize(sizes)
	case PresetHigh:
		return camera.FindHighSize(sizes)
	default:
		return camera.FindMediumSize(sizes)
	}
}

// VideoPreset returns the recording settings matching a size preset.
func VideoPreset(p Preset) types.VideoSettings {
	v := types.DefaultVideoSettings()
	switch p {
	case PresetLow:
		v.Quality = types.QualityLow
	case PresetHigh:
		v.Quality = types.QualityHigh
	}
	return v
}

func unsupported(what string, v any) error {
	return fmt.Errorf("%s %v: %w", what, v, ErrUnsupported)
}

// CameraSettings returns the desired settings, applied again on every open.
func (c *Controller) CameraSettings() types.CameraSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.settings
	s.Controls = maps.Clone(s.Controls)
	return s
}

// Parameters returns the configuration the device reports.
func (c *Controller) Parameters() (camera.Parameters, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return camera.Parameters{}, ErrNotOpened
	}
	return c.params.Clone(), nil
}

// SetCameraSettings applies every field the device supports and keeps the
// previous value of the others.
func (c *Controller) SetCameraSettings(s types.CameraSettings) error {
	c.mu.Lock()
	defer c.unlock()
	if c.dev == nil {
		c.settings = s
		return nil
	}
	if err := c.configurableLocked(); err != nil {
		return err
	}
	c.settings = s
	return c.applySettingsLocked(s)
}

func (c *Controller) ApplyPreset(p Preset) (types.VideoSettings, error) {
	c.mu.Lock()
	defer c.unlock()
	if err := c.configurableLocked(); err != nil {
		return types.VideoSettings{}, err
	}
	s := c.settings
	if size, ok := presetSize(c.params.SupportedPictureSizes, p); ok {
		s.PictureSize = size
	}
	c.settings = s
	return VideoPreset(p), c.applySettingsLocked(s)
}

func (c *Controller) SetPreviewSize(size types.Size) error {
	return c.setValue("preview size", size,
		func(p camera.Parameters) bool { return types.Contains(p.SupportedPreviewSizes, size) },
		func(s *types.CameraSettings) { s.PreviewSize = size },
		func(p *camera.Parameters) { p.PreviewSize = size }, true)
}

func (c *Controller) SetPictureSize(size types.Size) error {
	return c.setValue("picture size", size,
		func(p camera.Parameters) bool { return types.Contains(p.SupportedPictureSizes, size) },
		func(s *types.CameraSettings) { s.PictureSize = size },
		func(p *camera.Parameters) { p.PictureSize = size }, false)
}

func (c *Controller) SetJPEGQuality(q int) error {
	return c.setValue("jpeg quality", q,
		func(camera.Parameters) bool { return q > 0 && q <= types.JPEGQualityMax },
		func(s *types.CameraSettings) { s.JPEGQuality = q },
		func(p *camera.Parameters) { p.JPEGQuality = q }, false)
}

func (c *Controller) SetFlashMode(m types.FlashMode) error {
	return c.setValue("flash mode", m,
		func(p camera.Parameters) bool { return types.Contains(p.SupportedFlashModes, m) },
		func(s *types.CameraSettings) { s.FlashMode = m },
		func(p *camera.Parameters) { p.FlashMode = m }, false)
}

func (c *Controller) SetFocusMode(m types.FocusMode) error {
	return c.setValue("focus mode", m,
		func(p camera.Parameters) bool { return types.Contains(p.SupportedFocusModes, m) },
		func(s *types.CameraSettings) { s.FocusMode = m },
		func(p *camera.Parameters) { p.FocusMode = m }, false)
}

func (c *Controller) SetColorEffect(e types.ColorEffect) error {
	return c.setValue("color effect", e,
		func(p camera.Parameters) bool { return types.Contains(p.SupportedColorEffects, e) },
		func(s *types.CameraSettings) { s.ColorEffect = e },
		func(p *camera.Parameters) { p.ColorEffect = e }, false)
}

func (c *Controller) SetWhiteBalance(wb types.WhiteBalance) error {
	return c.setValue("white balance", wb,
		func(p camera.Parameters) bool { return types.Contains(p.SupportedWhiteBalance, wb) },
		func(s *types.CameraSettings) { s.WhiteBalance = wb },
		func(p *camera.Parameters) { p.WhiteBalance = wb }, false)
}

func (c *Controller) SetVideoStabilization(on bool) error {
	return c.setValue("video stabilization", on,
		func(p camera.Parameters) bool { return !on || p.VideoStabilizationSupported },
		func(s *types.CameraSettings) { s.VideoStabilization = on },
		func(p *camera.Parameters) { p.VideoStabilization = on }, false)
}

func (c *Controller) SetPreviewFpsRange(r types.FpsRange) error {
	return c.setValue("preview fps range", r,
		func(p camera.Parameters) bool { return types.Contains(p.SupportedPreviewFpsRanges, r) },
		func(*types.CameraSettings) {},
		func(p *camera.Parameters) { p.PreviewFpsRange = r }, true)
}

// SetControl overrides a raw device control on top of the mapped settings.
func (c *Controller) SetControl(id v4l2.CtrlID, value v4l2.CtrlValue) error {
	return c.setValue("control", id,
		func(camera.Parameters) bool { return true },
		func(s *types.CameraSettings) {
			if s.Controls == nil {
				s.Controls = make(types.Controls)
			}
			s.Controls[id] = value
		},
		func(p *camera.Parameters) {
			if p.Controls == nil {
				p.Controls = make(types.Controls)
			}
			p.Controls[id] = value
		}, false)
}

func (c *Controller) Zoom() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params.Zoom
}

// SetZoom sets the zoom level within [0, MaxZoom]. ZoomNotSpecified is a
// no-op.
func (c *Controller) SetZoom(z int) error {
	if z == types.ZoomNotSpecified {
		return nil
	}
	return c.setValue("zoom", z,
		func(p camera.Parameters) bool { return p.ZoomSupported() && z >= types.ZoomMin && z <= p.MaxZoom },
		func(s *types.CameraSettings) { s.Zoom = z },
		func(p *camera.Parameters) { p.Zoom = z }, false)
}

// OnScale maps a pinch gesture scale factor onto the zoom range and returns
// the resulting zoom level.
func (c *Controller) OnScale(factor float64) (int, error) {
	c.mu.Lock()
	defer c.unlock()
	if err := c.configurableLocked(); err != nil {
		return 0, err
	}
	if !c.params.ZoomSupported() {
		return 0, unsupported("zoom", factor)
	}
	cur := c.params.Zoom
	next := cur + int(math.Round((factor-1)*float64(c.params.MaxZoom)))
	next = min(max(next, types.ZoomMin), c.params.MaxZoom)
	if next == cur {
		return cur, nil
	}
	if err := c.updateParamsLocked(func(p *camera.Parameters) { p.Zoom = next }, false); err != nil {
		return cur, err
	}
	c.settings.Zoom = next
	return c.params.Zoom, nil
}

// setValue applies one setting with last-good-value semantics: an
// unsupported or failing value leaves the previous one in effect. Without an
// opened device the value is stored and applied on the next open.
func (c *Controller) setValue(what string, v any, supported func(camera.Parameters) bool,
	store func(*types.CameraSettings), apply func(*camera.Parameters), restartPreview bool) error {
	c.mu.Lock()
	defer c.unlock()
	if c.dev == nil {
		store(&c.settings)
		return nil
	}
	if err := c.configurableLocked(); err != nil {
		return err
	}
	if !supported(c.params) {
		err := unsupported(what, v)
		logger.Warn(err)
		return err
	}
	if err := c.updateParamsLocked(apply, restartPreview); err != nil {
		logger.Warnf("set %s to %v: %s", what, v, err)
		return err
	}
	store(&c.settings)
	return nil
}

func (c *Controller) configurableLocked() error {
	switch {
	case c.dev == nil:
		return ErrNotOpened
	case c.State() != StateIdle:
		return ErrBusy
	case !c.locked:
		return ErrNotLocked
	}
	return nil
}

// applySettingsLocked maps desired settings onto the device parameters.
// Unsupported fields keep their current value and are reported together.
func (c *Controller) applySettingsLocked(s types.CameraSettings) error {
	p := c.params.Clone()
	var errs []error
	reject := func(what string, v any) {
		err := unsupported(what, v)
		logger.Warn(err)
		errs = append(errs, err)
	}

	if !s.PictureSize.IsZero() {
		if types.Contains(p.SupportedPictureSizes, s.PictureSize) {
			p.PictureSize = s.PictureSize
		} else {
			reject("picture size", s.PictureSize)
		}
	}
	if !s.PreviewSize.IsZero() {
		if types.Contains(p.SupportedPreviewSizes, s.PreviewSize) {
			p.PreviewSize = s.PreviewSize
		} else {
			reject("preview size", s.PreviewSize)
		}
	}
	if s.PictureFormat != "" {
		if types.Contains(p.SupportedPictureFormats, s.PictureFormat) {
			p.PictureFormat = s.PictureFormat
		} else {
			reject("picture format", s.PictureFormat)
		}
	}
	if s.PreviewFormat != "" {
		if types.Contains(p.SupportedPreviewFormats, s.PreviewFormat) {
			p.PreviewFormat = s.PreviewFormat
		} else {
			reject("preview format", s.PreviewFormat)
		}
	}
	if s.JPEGQuality > 0 && s.JPEGQuality <= types.JPEGQualityMax {
		p.JPEGQuality = s.JPEGQuality
	}
	if s.FlashMode != types.FlashDefault {
		if types.Contains(p.SupportedFlashModes, s.FlashMode) {
			p.FlashMode = s.FlashMode
		} else {
			reject("flash mode", s.FlashMode)
		}
	}
	if s.FocusMode != types.FocusDefault {
		if types.Contains(p.SupportedFocusModes, s.FocusMode) {
			p.FocusMode = s.FocusMode
		} else {
			reject("focus mode", s.FocusMode)
		}
	}
	if s.ColorEffect != types.EffectDefault {
		if types.Contains(p.SupportedColorEffects, s.ColorEffect) {
			p.ColorEffect = s.ColorEffect
		} else {
			reject("color effect", s.ColorEffect)
		}
	}
	if s.WhiteBalance != types.WhiteBalanceDefault {
		if types.Contains(p.SupportedWhiteBalance, s.WhiteBalance) {
			p.WhiteBalance = s.WhiteBalance
		} else {
			reject("white balance", s.WhiteBalance)
		}
	}
	p.VideoStabilization = s.VideoStabilization && p.VideoStabilizationSupported
	if s.PreviewFrameRate != types.FrameRateAuto {
		if r, ok := fpsRangeFor(p.SupportedPreviewFpsRanges, s.PreviewFrameRate); ok {
			p.PreviewFpsRange = r
		} else {
			reject("preview frame rate", s.PreviewFrameRate)
		}
	}
	if s.Zoom != types.ZoomNotSpecified {
		if p.ZoomSupported() && s.Zoom >= types.ZoomMin && s.Zoom <= p.MaxZoom {
			p.Zoom = s.Zoom
		} else {
			reject("zoom", s.Zoom)
		}
	}
	if len(s.Controls) > 0 {
		if p.Controls == nil {
			p.Controls = make(types.Controls)
		}
		maps.Copy(p.Controls, s.Controls)
	}

	if err := c.setParamsLocked(p, true); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// fpsRangeFor picks the narrowest range reaching up to fps.
func fpsRangeFor(ranges []types.FpsRange, fps int) (types.FpsRange, bool) {
	var (
		best  types.FpsRange
		found bool
	)
	for _, r := range ranges {
		if !r.Contains(float64(fps)) {
			continue
		}
		if !found || r.Max-r.Min < best.Max-best.Min {
			best, found = r, true
		}
	}
	return best, found
}

func (c *Controller) updateParamsLocked(mut func(*camera.Parameters), restartPreview bool) error {
	if c.dev == nil {
		return ErrNotOpened
	}
	if !c.locked {
		return ErrNotLocked
	}
	p := c.params.Clone()
	mut(&p)
	return c.setParamsLocked(p, restartPreview)
}

// setParamsLocked writes p to the device. On failure the cached parameters
// stay as they were.
func (c *Controller) setParamsLocked(p camera.Parameters, restartPreview bool) error {
	before := c.params.PreviewSize
	restart := restartPreview && c.previewing
	if restart {
		c.stopPreviewLocked()
	}
	err := c.dev.SetParameters(p)
	if err == nil {
		if fresh, perr := c.dev.Parameters(); perr == nil {
			c.params = fresh
		} else {
			logger.Warnf("read back parameters: %s", perr)
			c.params = p
		}
		if c.params.PreviewSize != before && c.bufferDepth > 0 {
			c.setupPreviewCallbackLocked()
		}
	}
	if restart {
		c.restorePreviewLocked()
	}
	if err != nil {
		return fmt.Errorf("set parameters: %w", err)
	}
	return nil
}
