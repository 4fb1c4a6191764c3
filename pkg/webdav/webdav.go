package webdav

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/webdav"

	"camctl/pkg/utils"
)

// Webdav exports the media directory on its own port and can be switched
// on and off at runtime.
type Webdav struct {
	lock   sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	port   int
	dir    string
}

func New(ctx context.Context, port int, dir string) *Webdav {
	return &Webdav{
		ctx:  ctx,
		port: port,
		dir:  dir,
	}
}

func (w *Webdav) Start() {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.cancel != nil {
		return
	}
	newCtx, cancel := context.WithCancel(w.ctx)
	w.cancel = cancel
	Serve(newCtx, w.port, w.dir)
}

func (w *Webdav) Stop() {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}

func (w *Webdav) Running() bool {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.cancel != nil
}

func (w *Webdav) Port() int {
	return w.port
}

// Handler serves dir over WebDAV.
func Handler(dir string, logger *zap.SugaredLogger) http.Handler {
	return &webdav.Handler{
		FileSystem: webdav.Dir(dir),
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				logger.Errorf("WEBDAV [%s]: %s, err: %s", r.Method, r.URL, err)
			}
		},
	}
}

func Serve(ctx context.Context, port int, dir string) {
	logger := utils.GetLogger().Named("webdav")
	svr := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: Handler(dir, logger),
	}

	go func() {
		logger.Infof("serving %s on :%d", dir, port)
		if err := svr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("webdav server err: %s", err)
		}
	}()
	go func() {
		<-ctx.Done()
		srcCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := svr.Shutdown(srcCtx); err != nil {
			logger.Errorf("shutdown webdav server err: %s", err)
		}
	}()
}
