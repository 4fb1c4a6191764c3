package main

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/vincent-vinf/go-jsend"

	"camctl/pkg/framestats"
)

const (
	subscriberBuffer = 2
	wsWriteWait      = 5 * time.Second
)

// frameHub fans preview frames out to HTTP viewers. Slow viewers lose
// frames instead of holding up the device.
type frameHub struct {
	lock sync.Mutex
	subs map[chan []byte]struct{}
}

func newFrameHub() *frameHub {
	return &frameHub{subs: make(map[chan []byte]struct{})}
}

func (h *frameHub) subscribe() chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	h.lock.Lock()
	h.subs[ch] = struct{}{}
	h.lock.Unlock()
	return ch
}

func (h *frameHub) unsubscribe(ch chan []byte) {
	h.lock.Lock()
	delete(h.subs, ch)
	h.lock.Unlock()
}

func (h *frameHub) viewers() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.subs)
}

// publish is a session.FrameListener, frame is reused by the device after
// it returns.
func (h *frameHub) publish(frame []byte, _ time.Time) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if len(h.subs) == 0 {
		return
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	for ch := range h.subs {
		select {
		case ch <- cp:
		default:
		}
	}
}

func (a *app) previewStream(c *gin.Context) {
	if !a.ctrl.IsOpened() {
		c.JSON(http.StatusConflict, jsend.SimpleErr("device not opened"))
		return
	}
	frames := a.preview.subscribe()
	defer a.preview.unsubscribe(frames)

	mimeWriter := multipart.NewWriter(c.Writer)
	c.Header("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", mimeWriter.Boundary()))
	partHeader := make(textproto.MIMEHeader)
	partHeader.Add("Content-Type", "image/jpeg")

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-frames:
			partWriter, err := mimeWriter.CreatePart(partHeader)
			if err != nil {
				logger.Warnf("failed to create multi-part writer: %s", err)
				return
			}
			if _, err = partWriter.Write(frame); err != nil {
				logger.Debugf("preview viewer gone: %s", err)
				return
			}
			c.Writer.Flush()
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// statsSocket pushes every frame statistics snapshot to the client until it
// disconnects.
func (a *app) statsSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("upgrade websocket: %s", err)
		return
	}
	defer conn.Close()

	snaps := make(chan framestats.Snapshot, 1)
	remove := a.ctrl.OnFrameStats(func(s framestats.Snapshot) {
		select {
		case snaps <- s:
		default:
		}
	})
	defer remove()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if s, ok := a.ctrl.Stats(); ok {
		select {
		case snaps <- s:
		default:
		}
	}
	for {
		select {
		case <-closed:
			return
		case s := <-snaps:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err = conn.WriteJSON(s); err != nil {
				logger.Debugf("stats socket closed: %s", err)
				return
			}
		}
	}
}
