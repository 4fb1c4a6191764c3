package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"camctl/pkg/camera"
	"camctl/pkg/types"
)

// PhotoRequest says where a capture goes. With neither File nor Name set
// the JPEG bytes are delivered to the photo listeners.
type PhotoRequest struct {
	File string `json:"file"`
	// Name asks the configured Namer for a file when File is empty.
	Name bool `json:"name"`
}

type photoJob struct {
	seq     uint64
	gen     uint64
	file    string
	size    types.Size
	started time.Time

	// awaitingFocus is cleared by whichever of the focus callback and the
	// timeout comes first; the other one then does nothing.
	awaitingFocus bool
	focusTimer    *time.Timer
	capturing     bool
}

// TakePhoto starts a capture. It returns once the capture is under way; the
// result is delivered to the photo listeners.
func (c *Controller) TakePhoto(req PhotoRequest) error {
	c.mu.Lock()
	defer c.unlock()
	switch {
	case c.dev == nil:
		return ErrNotOpened
	case c.State() != StateIdle:
		return ErrBusy
	case !c.locked:
		return ErrNotLocked
	case c.target == nil:
		return ErrTargetNotReady
	}

	file := req.File
	if file == "" && req.Name {
		if c.cfg.Namer == nil {
			return ErrNoOutput
		}
		var err error
		if file, err = c.cfg.Namer.PhotoPath(c.params.PictureSize); err != nil {
			return fmt.Errorf("name photo: %w", err)
		}
	}

	c.photoSeq++
	job := &photoJob{
		seq:     c.photoSeq,
		gen:     c.gen,
		file:    file,
		size:    c.params.PictureSize,
		started: time.Now(),
	}
	c.photo = job
	c.fire(evTakePhoto)

	if c.params.FocusMode.NeedsAutoFocus() {
		job.awaitingFocus = true
		if err := c.dev.AutoFocus(c.autoFocusCallback(job.gen, job.seq)); err != nil {
			logger.Warnf("autofocus: %s, capturing without focus", err)
			job.awaitingFocus = false
		} else {
			seq := job.seq
			job.focusTimer = time.AfterFunc(c.cfg.AutoFocusTimeout, func() { c.onAutoFocusTimeout(seq) })
			return nil
		}
	}
	return c.capturePhotoLocked()
}

// capturePhotoLocked triggers the capture on the task queue. On failure the
// session returns to idle.
func (c *Controller) capturePhotoLocked() error {
	job, dev := c.photo, c.dev
	job.capturing = true
	gen, seq := job.gen, job.seq
	err := c.tasks.call(c.cfg.OperationTimeout, func() error {
		return dev.TakePicture(c.shutterCallback(gen, seq), c.rawCallback(gen, seq), c.jpegCallback(gen, seq))
	})
	if err != nil {
		c.photo = nil
		c.previewing = false
		c.restorePreviewLocked()
		c.fire(evPhotoDone)
		return fmt.Errorf("take picture: %w", err)
	}
	// the device stops the preview for the capture
	c.previewing = false
	c.jobs.Post(c.stats.Stop)
	return nil
}

func (c *Controller) focusPending(gen, seq uint64) bool {
	return gen == c.gen && c.photo != nil && c.photo.seq == seq && c.photo.awaitingFocus
}

func (c *Controller) autoFocusCallback(gen, seq uint64) camera.AutoFocusCallback {
	return func(success bool) {
		c.mu.Lock()
		defer c.unlock()
		if !c.focusPending(gen, seq) {
			return
		}
		c.photo.awaitingFocus = false
		c.photo.focusTimer.Stop()
		if !success {
			logger.Warn("autofocus failed, capturing anyway")
		}
		c.captureAfterFocusLocked()
	}
}

func (c *Controller) onAutoFocusTimeout(seq uint64) {
	c.mu.Lock()
	defer c.unlock()
	if c.photo == nil || !c.focusPending(c.photo.gen, seq) {
		return
	}
	c.photo.awaitingFocus = false
	logger.Warnf("no autofocus result within %s, capturing anyway", c.cfg.AutoFocusTimeout)
	if err := c.dev.CancelAutoFocus(); err != nil {
		logger.Warnf("cancel autofocus: %s", err)
	}
	c.captureAfterFocusLocked()
}

func (c *Controller) captureAfterFocusLocked() {
	job := c.photo
	if err := c.capturePhotoLocked(); err != nil {
		logger.Errorf("capture: %s", err)
		post(c, &c.listeners.photo, Photo{File: job.file, Size: job.size, Elapsed: time.Since(job.started), Err: err})
	}
}

// checkCaptureCallback filters callbacks of released devices and of
// captures given up on, and panics on callbacks the device was not asked for.
func (c *Controller) checkCaptureCallback(kind string, gen, seq uint64) bool {
	if gen != c.gen {
		return false
	}
	if seq > c.photoSeq {
		panic(fmt.Sprintf("session: %s callback for unknown capture %d", kind, seq))
	}
	if c.photo == nil || c.photo.seq != seq {
		logger.Warnf("dropping late %s callback of abandoned capture %d", kind, seq)
		return false
	}
	if c.State() != StateTakingPhoto || !c.photo.capturing {
		panic(fmt.Sprintf("session: %s callback in state %s", kind, c.State()))
	}
	return true
}

func (c *Controller) shutterCallback(gen, seq uint64) camera.ShutterCallback {
	return func() {
		c.mu.Lock()
		defer c.unlock()
		if c.checkCaptureCallback("shutter", gen, seq) {
			logger.Debugf("shutter after %s", time.Since(c.photo.started))
		}
	}
}

func (c *Controller) rawCallback(gen, seq uint64) camera.PictureCallback {
	return func([]byte) {
		c.mu.Lock()
		defer c.unlock()
		c.checkCaptureCallback("raw picture", gen, seq)
	}
}

func (c *Controller) jpegCallback(gen, seq uint64) camera.PictureCallback {
	return func(data []byte) {
		c.mu.Lock()
		defer c.unlock()
		if !c.checkCaptureCallback("jpeg picture", gen, seq) {
			return
		}
		job := c.photo
		c.photo = nil

		res := Photo{File: job.file, Size: job.size, Elapsed: time.Since(job.started)}
		switch {
		case data == nil:
			res.Err = ErrCaptureFailed
		case job.file != "":
			res.Err = writePhoto(job.file, data)
		default:
			res.Data = data
		}
		if res.Err != nil {
			logger.Errorf("capture: %s", res.Err)
		} else {
			logger.Infof("captured %s in %s", job.size, res.Elapsed)
		}

		c.restorePreviewLocked()
		c.fire(evPhotoDone)
		post(c, &c.listeners.photo, res)
	}
}

// dropPhotoLocked abandons a pending capture, its callbacks become stale.
func (c *Controller) dropPhotoLocked() {
	if c.photo == nil {
		return
	}
	if c.photo.focusTimer != nil {
		c.photo.focusTimer.Stop()
	}
	c.photo = nil
	c.fire(evReset)
}

func writePhoto(file string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(file), os.ModePerm); err != nil {
		return fmt.Errorf("create photo dir: %w", err)
	}
	if err := os.WriteFile(file, data, 0644); err != nil {
		return fmt.Errorf("write photo: %w", err)
	}
	return nil
}
