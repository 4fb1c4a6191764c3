package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"camctl/pkg/camera"
	"camctl/pkg/encoder"
	"camctl/pkg/types"
)

type recording struct {
	id       string
	enc      encoder.Encoder
	file     string
	plan     recordPlan
	settings types.VideoSettings
	limit    types.RecordLimit
	started  time.Time
}

func (r *recording) output(deviceID int) types.RecordingOutput {
	return types.RecordingOutput{
		ID:        r.id,
		DeviceID:  deviceID,
		File:      r.file,
		Size:      r.plan.size,
		Settings:  r.settings,
		CreatedAt: r.started,
	}
}

// StartRecording hands the device to a fresh encoder and starts recording
// into file, or into a file named by the configured Namer when file is
// empty. Any failure rolls the device back to preview and leaves the session
// idle.
func (c *Controller) StartRecording(s types.VideoSettings, limit types.RecordLimit, file string) error {
	c.mu.Lock()
	defer c.unlock()
	if err := c.checkRecordableLocked(); err != nil {
		return err
	}

	plan, err := c.resolvePlanLocked(s)
	if err != nil {
		return err
	}
	if plan.fps == 0 {
		// device callbacks keep running while the preview rate is measured
		gen := c.gen
		c.mu.Unlock()
		fps := c.stats.WaitFps(c.cfg.FrameRateWait)
		c.mu.Lock()
		if err = c.checkRecordableLocked(); err != nil {
			return err
		}
		if c.gen != gen {
			return ErrNotOpened
		}
		plan.fps = c.measuredRateLocked(fps)
	}
	if file == "" {
		if c.cfg.Namer == nil {
			return ErrNoOutput
		}
		if file, err = c.cfg.Namer.VideoPath(plan.size, plan.format); err != nil {
			return fmt.Errorf("name video: %w", err)
		}
	}

	enc := c.cfg.NewEncoder()
	enc.SetErrorCallback(func(what, extra int) { c.onEncoderError(enc, what, extra) })
	enc.SetInfoCallback(func(what, extra int) { c.onEncoderInfo(enc, what, extra) })

	c.stopPreviewLocked()
	c.setRecordingHintLocked(true)
	if err = c.dev.Unlock(); err != nil {
		c.rollbackLocked(enc)
		return fmt.Errorf("unlock device: %w", err)
	}
	c.locked = false
	if err = configureEncoder(enc, c.dev, plan, s, limit, file); err != nil {
		c.rollbackLocked(enc)
		return fmt.Errorf("configure encoder: %w", err)
	}
	if err = enc.Prepare(); err != nil {
		c.rollbackLocked(enc)
		return fmt.Errorf("prepare encoder: %w", err)
	}
	if err = enc.Start(); err != nil {
		c.rollbackLocked(enc)
		return fmt.Errorf("start encoder: %w", err)
	}

	c.recording = &recording{
		id:       uuid.NewString(),
		enc:      enc,
		file:     file,
		plan:     plan,
		settings: s,
		limit:    limit,
		started:  time.Now(),
	}
	c.fire(evStartRecording)
	logger.Infof("recording %s: %s %d fps, limit %s", file, plan.size, plan.fps, limit)
	return nil
}

func (c *Controller) checkRecordableLocked() error {
	switch {
	case c.dev == nil:
		return ErrNotOpened
	case c.recording != nil || c.State() != StateIdle:
		return ErrBusy
	case c.target == nil:
		return ErrTargetNotReady
	case !c.locked:
		return ErrNotLocked
	}
	return nil
}

// StopRecording stops a running recording and returns its file. It returns
// false when nothing was recording or no valid file was produced.
func (c *Controller) StopRecording() (string, bool) {
	c.mu.Lock()
	defer c.unlock()
	if c.recording == nil {
		return "", false
	}
	out, ok := c.stopRecordingLocked(true)
	return out.File, ok
}

// Recording describes the running recording.
func (c *Controller) Recording() (types.RecordingOutput, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recording == nil || c.dev == nil {
		return types.RecordingOutput{}, false
	}
	return c.recording.output(c.dev.Info().ID), true
}

// stopRecordingLocked stops and releases the encoder and returns to idle.
// With restore set the device is taken back and the preview restarted.
// File is cleared when no valid recording was produced.
func (c *Controller) stopRecordingLocked(restore bool) (types.RecordingOutput, bool) {
	rec := c.recording
	c.recording = nil
	out := rec.output(c.dev.Info().ID)

	err := c.tasks.call(c.cfg.OperationTimeout, rec.enc.Stop)
	if errors.Is(err, ErrTimeout) {
		logger.Errorf("encoder did not stop within %s, handle discarded", c.cfg.OperationTimeout)
	} else {
		if err != nil {
			logger.Warnf("stop encoder: %s", err)
		}
		c.releaseEncoderLocked(rec.enc)
	}
	valid := err == nil
	if !valid {
		out.File = ""
	} else {
		logger.Infof("recorded %s in %s", rec.file, time.Since(rec.started).Round(time.Millisecond))
	}

	if restore {
		if err := c.relockLocked(); err != nil {
			c.fire(evStopRecording)
			c.deviceFaultLocked(camera.ErrorUnknown, err)
			return out, valid
		}
		c.setRecordingHintLocked(false)
		c.restorePreviewLocked()
	}
	c.fire(evStopRecording)

	if valid && rec.settings.MakeThumbnail && c.cfg.Post != nil {
		if err := c.cfg.Post.Enqueue(out); err != nil {
			logger.Warnf("enqueue thumbnail for %s: %s", out.File, err)
			post(c, &c.listeners.thumbnailFailed, ThumbnailFailed{Recording: out, Err: err})
		}
	}
	return out, valid
}

func (c *Controller) releaseEncoderLocked(enc encoder.Encoder) {
	err := c.tasks.call(c.cfg.OperationTimeout, func() error {
		enc.Reset()
		enc.Release()
		return nil
	})
	if err != nil {
		logger.Errorf("release encoder: %s", err)
	}
}

// rollbackLocked undoes a partial lock handoff.
func (c *Controller) rollbackLocked(enc encoder.Encoder) {
	c.releaseEncoderLocked(enc)
	if !c.locked {
		if err := c.relockLocked(); err != nil {
			c.deviceFaultLocked(camera.ErrorUnknown, err)
			return
		}
	}
	c.setRecordingHintLocked(false)
	c.restorePreviewLocked()
}

func (c *Controller) setRecordingHintLocked(on bool) {
	if c.params.RecordingHint == on {
		return
	}
	if err := c.updateParamsLocked(func(p *camera.Parameters) { p.RecordingHint = on }, false); err != nil {
		logger.Warnf("set recording hint: %s", err)
	}
}

// currentEncoder filters callbacks of encoders that were already stopped.
func (c *Controller) currentEncoder(enc encoder.Encoder) bool {
	if c.recording == nil || c.recording.enc != enc {
		return false
	}
	if c.State() != StateRecordingVideo {
		panic(fmt.Sprintf("session: encoder callback in state %s", c.State()))
	}
	return true
}

func (c *Controller) onEncoderError(enc encoder.Encoder, what, extra int) {
	c.mu.Lock()
	defer c.unlock()
	if !c.currentEncoder(enc) {
		logger.Debugf("ignoring error %d of a stopped encoder", what)
		return
	}
	logger.Errorf("encoder error %d (%d)", what, extra)
	out, _ := c.stopRecordingLocked(true)
	post(c, &c.listeners.encoderError, EncoderError{What: what, Extra: extra, File: out.File})
}

func (c *Controller) onEncoderInfo(enc encoder.Encoder, what, extra int) {
	c.mu.Lock()
	defer c.unlock()
	if !c.currentEncoder(enc) {
		return
	}
	switch what {
	case encoder.InfoMaxDurationReached, encoder.InfoMaxFileSizeReached:
		limit := c.recording.limit
		logger.Infof("recording limit %s reached", limit)
		out, _ := c.stopRecordingLocked(true)
		post(c, &c.listeners.limitReached, LimitReached{What: what, Limit: limit, File: out.File})
	default:
		logger.Debugf("encoder info %d (%d)", what, extra)
	}
}
