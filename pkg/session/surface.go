package session

import (
	"camctl/pkg/camera"
	"camctl/pkg/types"
)

// SizedTarget is a display target of fixed size, used by headless consumers
// such as the preview stream of the HTTP API.
type SizedTarget types.Size

func (t SizedTarget) Size() types.Size {
	return types.Size(t)
}

// SurfaceCreated makes target the preview destination and starts the
// preview when the device is idle.
func (c *Controller) SurfaceCreated(target camera.DisplayTarget) error {
	if target == nil {
		return ErrTargetNotReady
	}
	c.mu.Lock()
	defer c.unlock()
	c.attachTargetLocked(target, target.Size())
	return nil
}

// SurfaceChanged renegotiates the preview size for a resized target.
func (c *Controller) SurfaceChanged(size types.Size) error {
	c.mu.Lock()
	defer c.unlock()
	if c.target == nil {
		return ErrTargetNotReady
	}
	c.targetSize = size
	if c.dev == nil || c.State() != StateIdle || !c.locked {
		return nil
	}
	c.stopPreviewLocked()
	c.adaptPreviewSizeLocked(size)
	c.restorePreviewLocked()
	return nil
}

// SurfaceDestroyed stops the preview. A running recording continues.
func (c *Controller) SurfaceDestroyed() {
	c.mu.Lock()
	defer c.unlock()
	c.stopPreviewLocked()
	c.target = nil
	c.targetSize = types.Size{}
	if c.dev != nil {
		if err := c.dev.SetDisplayTarget(nil); err != nil {
			logger.Warnf("detach display target: %s", err)
		}
	}
}

// SetDisplayRotation reacts to a display orientation change. The rotation
// also feeds the picture rotation and the orientation hint of recordings.
func (c *Controller) SetDisplayRotation(degrees int) {
	c.mu.Lock()
	defer c.unlock()
	c.rotation = degrees
	if c.dev != nil {
		c.applyOrientationLocked()
	}
}

func (c *Controller) attachTargetLocked(target camera.DisplayTarget, size types.Size) {
	c.target = target
	c.targetSize = size
	if c.dev == nil {
		return
	}
	if err := c.dev.SetDisplayTarget(target); err != nil {
		logger.Warnf("set display target: %s", err)
	}
	c.applyOrientationLocked()
	// a recording restores the preview when it stops
	if c.State() != StateIdle || !c.locked {
		return
	}
	c.adaptPreviewSizeLocked(size)
	c.restorePreviewLocked()
}

// adaptPreviewSizeLocked picks the preview size fitting the target unless
// one was chosen explicitly.
func (c *Controller) adaptPreviewSizeLocked(size types.Size) {
	if !c.settings.PreviewSize.IsZero() {
		return
	}
	best, ok := camera.OptimalPreviewSize(c.params.SupportedPreviewSizes, size)
	if !ok || best == c.params.PreviewSize {
		return
	}
	if err := c.updateParamsLocked(func(p *camera.Parameters) { p.PreviewSize = best }, true); err != nil {
		logger.Warnf("preview size %s for target %s: %s", best, size, err)
	}
}

func (c *Controller) applyOrientationLocked() {
	info := c.dev.Info()
	if err := c.dev.SetDisplayOrientation(camera.DisplayOrientation(info, c.rotation)); err != nil {
		logger.Warnf("set display orientation: %s", err)
	}
	if !c.locked || c.State() != StateIdle {
		return
	}
	rot := camera.PictureRotation(info, c.rotation)
	if rot == c.params.Rotation {
		return
	}
	if err := c.updateParamsLocked(func(p *camera.Parameters) { p.Rotation = rot }, false); err != nil {
		logger.Warnf("set picture rotation: %s", err)
	}
}
