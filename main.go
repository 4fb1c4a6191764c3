package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/vincent-vinf/go-jsend"
	"go.uber.org/zap"

	"camctl/pkg/camera"
	"camctl/pkg/config"
	"camctl/pkg/schedule"
	"camctl/pkg/session"
	"camctl/pkg/storage"
	"camctl/pkg/thumbnail"
	"camctl/pkg/utils"
	"camctl/pkg/webdav"
)

var (
	webdavPort = flag.Int("webdav-port", 9998, "webdav port")
	port       = flag.Int("port", 9999, "ui port")
	storageDir = flag.String("dir", "./camctl", "media directory")
	staticsDir = flag.String("statics", "./statics", "web ui directory")
	configFile = flag.String("config", "./camctl.json", "config file")
	fake       = flag.Bool("fake", false, "use a simulated camera")
	syncClock  = flag.Bool("ntp", true, "correct file name timestamps with NTP")

	logger *zap.SugaredLogger
)

func init() {
	logger = utils.GetLogger()
}

// app wires the controller to the HTTP surface.
type app struct {
	cfgLock    sync.Mutex
	cfg        config.Config
	configPath string
	ctrl       *session.Controller
	stg        *storage.Storage
	queue      *thumbnail.Queue
	sched      *schedule.Scheduler
	dav        *webdav.Webdav
	preview    *frameHub
}

func main() {
	flag.Parse()
	defer logger.Sync()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Fatal(err)
	}
	if *syncClock && cfg.NTPServer != "" {
		go func() {
			if _, err := utils.SyncClock(cfg.NTPServer); err != nil {
				logger.Warnf("ntp sync with %s: %s", cfg.NTPServer, err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, newOpener(cfg), *storageDir)
	if err != nil {
		logger.Fatal(err)
	}
	a.configPath = *configFile
	if err = a.ctrl.Open(cfg.Device, session.SizedTarget(cfg.PreviewSize())); err != nil {
		logger.Errorf("open device %d: %s", cfg.Device, err)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(utils.Cors(cfg.AllowOrigins...))
	if err := registerStaticsDir(r, *staticsDir, "/"); err != nil {
		logger.Warn(err)
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("page not found"))
	})
	a.routes(r.Group("/api"))

	utils.ListenAndServe(r, *port, a.shutdown)
}

func newApp(ctx context.Context, cfg config.Config, opener camera.Opener, dir string) (*app, error) {
	stg, err := storage.New(dir)
	if err != nil {
		return nil, err
	}
	queue := thumbnail.New(cfg.Thumbnail, stg)

	sc := cfg.Session()
	sc.Namer = stg
	sc.Post = queue
	a := &app{
		cfg:     cfg,
		ctrl:    session.New(opener, sc),
		stg:     stg,
		queue:   queue,
		dav:     webdav.New(ctx, *webdavPort, stg.Root()),
		preview: newFrameHub(),
	}
	a.sched = schedule.New(ctx, a.ctrl)
	queue.SetReporter(a.ctrl)
	if err = queue.Start(ctx); err != nil {
		return nil, err
	}
	a.watch()

	return a, nil
}

func (a *app) shutdown() {
	a.sched.Stop()
	a.dav.Stop()
	if a.ctrl.IsOpened() {
		if err := a.ctrl.Close(); err != nil {
			logger.Errorf("close device: %s", err)
		}
	}
	a.queue.Stop()
}

func newOpener(cfg config.Config) camera.Opener {
	if *fake {
		logger.Info("using a simulated camera")
		return camera.NewFakeOpener(camera.DefaultFakeConfig())
	}
	return camera.V4L2Opener{
		Paths:       cfg.DevicePaths,
		FPS:         cfg.DeviceFPS,
		Facing:      cfg.DeviceFacing,
		Orientation: cfg.DeviceRotation,
	}
}

// watch logs controller events and feeds the preview stream.
func (a *app) watch() {
	a.ctrl.OnStateChanged(func(s session.StateChange) {
		logger.Debugf("session %s -> %s", s.From, s.To)
	})
	a.ctrl.OnDeviceError(func(e session.DeviceError) {
		logger.Errorf("device %d failed (%d): %v", e.DeviceID, e.Code, e.Err)
	})
	a.ctrl.OnEncoderError(func(e session.EncoderError) {
		logger.Errorf("recording %s failed: encoder error %d", e.File, e.What)
	})
	a.ctrl.OnLimitReached(func(l session.LimitReached) {
		logger.Infof("recording %s stopped at %s", l.File, l.Limit)
	})
	a.ctrl.OnPhoto(func(p session.Photo) {
		if p.Err != nil {
			logger.Errorf("photo failed: %s", p.Err)
		}
	})
	a.ctrl.OnThumbnailFailed(func(f session.ThumbnailFailed) {
		logger.Warnf("no preview for %s: %v", f.Recording.File, f.Err)
	})
	a.ctrl.OnFrame(a.preview.publish)
}

func registerStaticsDir(group gin.IRoutes, dir, relativeGroup string) error {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("the specified directory %s does not exist", dir)
	}
	dir = filepath.ToSlash(filepath.Clean(dir))
	group.StaticFile(relativeGroup, filepath.Join(dir, "index.html"))
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			relativePath := path.Join(relativeGroup, strings.Replace(filepath.ToSlash(p), dir, "", 1))
			group.StaticFile(relativePath, p)
		}
		return nil
	})
}
