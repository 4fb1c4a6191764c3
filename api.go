package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vincent-vinf/go-jsend"

	"camctl/pkg/ov"
	"camctl/pkg/schedule"
	"camctl/pkg/session"
	"camctl/pkg/storage"
	"camctl/pkg/types"
	"camctl/pkg/utils"
	"camctl/pkg/utils/ps"
)

const (
	webDavStart    = "start"
	webDavShutdown = "shutdown"

	photoWait = 10 * time.Second
)

func (a *app) routes(api *gin.RouterGroup) {
	deviceRouter := api.Group("/device")
	deviceRouter.GET("", a.getState)
	deviceRouter.POST("/open", a.openDevice)
	deviceRouter.POST("/close", a.closeDevice)
	deviceRouter.GET("/parameters", a.getParameters)
	deviceRouter.PUT("/control", a.updateControl)
	deviceRouter.GET("/realtime/video", a.previewStream)
	deviceRouter.PUT("/webdav", a.ctlWebdav)

	sessionRouter := api.Group("/session")
	sessionRouter.POST("/photo", a.takePhoto)
	sessionRouter.POST("/recording", a.startRecording)
	sessionRouter.DELETE("/recording", a.stopRecording)
	sessionRouter.GET("/recording", a.getRecording)
	sessionRouter.GET("/settings", a.getSettings)
	sessionRouter.PUT("/settings", a.updateSettings)
	sessionRouter.PUT("/zoom", a.setZoom)
	sessionRouter.PUT("/scale", a.scale)
	sessionRouter.PUT("/preset", a.applyPreset)
	sessionRouter.PUT("/buffer", a.setBufferDepth)
	sessionRouter.GET("/stats", a.getStats)
	sessionRouter.GET("/stats/ws", a.statsSocket)

	scheduleRouter := api.Group("/schedule")
	scheduleRouter.GET("", a.getSchedule)
	scheduleRouter.POST("", a.startSchedule)
	scheduleRouter.DELETE("", a.stopSchedule)

	mediaRouter := api.Group("/media")
	mediaRouter.GET("/:kind", a.listMedia)
	mediaRouter.GET("/:kind/:name", a.getMedia)
	mediaRouter.DELETE("/:kind/:name", a.deleteMedia)

	api.GET("/status", a.getStatus)
}

// sessionErr maps controller errors to response codes.
func sessionErr(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrAlreadyOpened),
		errors.Is(err, session.ErrNotOpened),
		errors.Is(err, session.ErrNotLocked),
		errors.Is(err, session.ErrTargetNotReady),
		errors.Is(err, session.ErrWorkerAlive):
		code = http.StatusConflict
	case errors.Is(err, session.ErrUnsupported),
		errors.Is(err, schedule.ErrInterval),
		errors.Is(err, storage.ErrInvalidName),
		errors.Is(err, storage.ErrUnknownKind):
		code = http.StatusBadRequest
	case errors.Is(err, session.ErrTimeout):
		code = http.StatusGatewayTimeout
	case errors.Is(err, os.ErrNotExist):
		code = http.StatusNotFound
	}
	c.JSON(code, jsend.SimpleErr(err.Error()))
}

func internalErr(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, jsend.SimpleErr(err.Error()))
}

func (a *app) state() ov.State {
	s := ov.State{
		Opened: a.ctrl.IsOpened(),
		State:  string(a.ctrl.State()),
		Zoom:   a.ctrl.Zoom(),
	}
	if info, ok := a.ctrl.Device(); ok {
		s.Device = &info
	}
	if rec, ok := a.ctrl.Recording(); ok {
		s.Recording = &rec
	}
	return s
}

func (a *app) getState(c *gin.Context) {
	c.JSON(http.StatusOK, jsend.Success(a.state()))
}

func (a *app) openDevice(c *gin.Context) {
	req := ov.Open{Device: a.cfg.Device}
	if c.Request.ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return
		}
	}
	size := a.cfg.PreviewSize()
	if req.Width > 0 && req.Height > 0 {
		size = types.Size{Width: req.Width, Height: req.Height}
	}
	if err := a.ctrl.Open(req.Device, session.SizedTarget(size)); err != nil {
		sessionErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(a.state()))
}

func (a *app) closeDevice(c *gin.Context) {
	a.sched.Stop()
	if err := a.ctrl.Close(); err != nil {
		sessionErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(a.state()))
}

func (a *app) getParameters(c *gin.Context) {
	p, err := a.ctrl.Parameters()
	if err != nil {
		sessionErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(p))
}

func (a *app) updateControl(c *gin.Context) {
	var req ov.UpdateConfig
	if err := c.Bind(&req); err != nil {
		return
	}
	if err := a.ctrl.SetControl(req.ID, req.Value); err != nil {
		sessionErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(req))
}

// takePhoto saves a named photo, or returns the JPEG itself when the client
// asks for a download.
func (a *app) takePhoto(c *gin.Context) {
	var req ov.Photo
	if c.Request.ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return
		}
	}
	if !req.Download {
		if err := a.ctrl.TakePhoto(session.PhotoRequest{Name: true}); err != nil {
			sessionErr(c, err)
			return
		}
		c.JSON(http.StatusOK, jsend.Success(a.state()))
		return
	}

	// scheduled photos always carry a file, a download never does
	photos := make(chan session.Photo, 1)
	remove := a.ctrl.OnPhoto(func(p session.Photo) {
		if p.File != "" {
			return
		}
		select {
		case photos <- p:
		default:
		}
	})
	defer remove()

	if err := a.ctrl.TakePhoto(session.PhotoRequest{}); err != nil {
		sessionErr(c, err)
		return
	}
	select {
	case p := <-photos:
		if p.Err != nil {
			internalErr(c, p.Err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("inline; filename=photo_%s.jpg", p.Size))
		c.Data(http.StatusOK, "image/jpeg", p.Data)
	case <-time.After(photoWait):
		sessionErr(c, session.ErrTimeout)
	case <-c.Request.Context().Done():
	}
}

func (a *app) startRecording(c *gin.Context) {
	var req ov.Record
	if c.Request.ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return
		}
	}
	a.cfgLock.Lock()
	settings := a.cfg.Video
	a.cfgLock.Unlock()
	if req.Settings != nil {
		settings = *req.Settings
	}
	if err := a.ctrl.StartRecording(settings, req.Limit(), ""); err != nil {
		sessionErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(a.state()))
}

func (a *app) stopRecording(c *gin.Context) {
	file, ok := a.ctrl.StopRecording()
	if !ok {
		c.JSON(http.StatusOK, jsend.Success(nil))
		return
	}

	c.JSON(http.StatusOK, jsend.Success(file))
}

func (a *app) getRecording(c *gin.Context) {
	rec, ok := a.ctrl.Recording()
	if !ok {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("not recording"))
		return
	}

	c.JSON(http.StatusOK, jsend.Success(rec))
}

func (a *app) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, jsend.Success(a.ctrl.CameraSettings()))
}

func (a *app) updateSettings(c *gin.Context) {
	settings := a.ctrl.CameraSettings()
	if err := c.Bind(&settings); err != nil {
		return
	}
	err := a.ctrl.SetCameraSettings(settings)
	a.persistSettings()
	if err != nil {
		sessionErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(a.ctrl.CameraSettings()))
}

// persistSettings writes the applied camera settings back to the config file
// so the next start opens with them.
func (a *app) persistSettings() {
	a.cfgLock.Lock()
	defer a.cfgLock.Unlock()
	a.cfg.Camera = a.ctrl.CameraSettings()
	if a.configPath == "" {
		return
	}
	if err := a.cfg.Save(a.configPath); err != nil {
		logger.Warnf("save config: %s", err)
	}
}

func (a *app) setZoom(c *gin.Context) {
	var req ov.Zoom
	if err := c.Bind(&req); err != nil {
		return
	}
	if err := a.ctrl.SetZoom(req.Level); err != nil {
		sessionErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(a.ctrl.Zoom()))
}

func (a *app) scale(c *gin.Context) {
	var req ov.Scale
	if err := c.Bind(&req); err != nil {
		return
	}
	zoom, err := a.ctrl.OnScale(req.Factor)
	if err != nil {
		sessionErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(zoom))
}

func (a *app) applyPreset(c *gin.Context) {
	var req ov.Preset
	if err := c.Bind(&req); err != nil {
		return
	}
	video, err := a.ctrl.ApplyPreset(session.Preset(req.Preset))
	if err != nil {
		sessionErr(c, err)
		return
	}
	a.cfgLock.Lock()
	a.cfg.Video = video
	a.cfgLock.Unlock()
	a.persistSettings()

	c.JSON(http.StatusOK, jsend.Success(video))
}

func (a *app) setBufferDepth(c *gin.Context) {
	var req ov.BufferDepth
	if err := c.Bind(&req); err != nil {
		return
	}
	if err := a.ctrl.SetPreviewBufferDepth(req.Depth); err != nil {
		sessionErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(req))
}

func (a *app) getStats(c *gin.Context) {
	snap, ok := a.ctrl.Stats()
	if !ok {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("no frame statistics yet"))
		return
	}

	c.JSON(http.StatusOK, jsend.Success(snap))
}

func (a *app) getSchedule(c *gin.Context) {
	c.JSON(http.StatusOK, jsend.Success(a.sched.Status()))
}

func (a *app) startSchedule(c *gin.Context) {
	var req ov.Schedule
	if err := c.Bind(&req); err != nil {
		return
	}
	if err := a.sched.Begin(utils.MsToDuration(req.Interval)); err != nil {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(fmt.Sprintf("interval %dms: %s, minimum %s", req.Interval, err, schedule.MinInterval)))
		return
	}

	c.JSON(http.StatusOK, jsend.Success(a.sched.Status()))
}

func (a *app) stopSchedule(c *gin.Context) {
	a.sched.Stop()
	c.JSON(http.StatusOK, jsend.Success(a.sched.Status()))
}

func (a *app) listMedia(c *gin.Context) {
	media, err := a.stg.ListMedia(storage.Kind(c.Param("kind")))
	if err != nil {
		sessionErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(media))
}

func (a *app) getMedia(c *gin.Context) {
	p, err := a.stg.MediaPath(storage.Kind(c.Param("kind")), c.Param("name"))
	if err != nil {
		sessionErr(c, err)
		return
	}

	c.File(p)
}

func (a *app) deleteMedia(c *gin.Context) {
	if err := a.stg.DeleteMedia(storage.Kind(c.Param("kind")), c.Param("name")); err != nil {
		sessionErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(c.Param("name")))
}

func (a *app) getStatus(c *gin.Context) {
	status, err := ps.HostStatus(a.stg.Root())
	if err != nil {
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(gin.H{
		"host":    status,
		"session": a.state(),
		"viewers": a.preview.viewers(),
		"webdav":  a.dav.Running(),
	}))
}

func (a *app) ctlWebdav(c *gin.Context) {
	op := c.Query("op")
	switch op {
	case webDavStart:
		a.dav.Start()
		c.JSON(http.StatusOK, jsend.Success(gin.H{"port": a.dav.Port()}))
	case webDavShutdown:
		a.dav.Stop()
		c.JSON(http.StatusOK, jsend.Success("the webdav service is stopped"))
	default:
		c.JSON(http.StatusBadRequest, jsend.SimpleErr("unknown operation"))
	}
}
