package framestats

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"camctl/pkg/observer"
	"camctl/pkg/utils"
)

type Listener func(Snapshot)

// Calculator turns frame arrival events into frame rate statistics.
//
// OnFrame never blocks: events go to a bounded queue drained by one worker
// goroutine, which does all aggregation and publishes snapshots to listeners.
type Calculator struct {
	cfg    Config
	logger *zap.SugaredLogger

	listeners observer.Registry[Listener]
	notify    *observer.Queue

	mu          sync.RWMutex
	events      chan time.Time
	done        chan struct{}
	first       chan struct{}
	snapshot    Snapshot
	hasSnapshot bool

	dropped atomic.Int64
}

// New creates a stopped calculator. Listeners run on target when it is not
// nil, else on the worker goroutine.
func New(cfg Config, target observer.Dispatcher) *Calculator {
	logger := utils.GetLogger().Named("framestats")
	return &Calculator{
		cfg:    cfg.Normalize(),
		logger: logger,
		notify: observer.NewQueue(target, logger),
	}
}

func (c *Calculator) Config() Config {
	return c.cfg
}

func (c *Calculator) AddListener(l Listener) (remove func()) {
	return c.listeners.Add(l)
}

// Start begins a new stream. A running stream is stopped first and all
// counters are reset.
func (c *Calculator) Start() {
	c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = make(chan time.Time, c.cfg.QueueSize)
	c.done = make(chan struct{})
	c.first = make(chan struct{})
	c.snapshot = Snapshot{}
	c.hasSnapshot = false
	c.dropped.Store(0)

	go c.run(c.events, c.done, c.first)
	c.logger.Debugf("stream started, calculate interval %s, notify interval %s",
		c.cfg.CalculateInterval, c.cfg.NotifyInterval)
}

// Stop tears down the worker after it drained the queued events.
func (c *Calculator) Stop() {
	c.mu.Lock()
	events, done := c.events, c.done
	c.events, c.done = nil, nil
	c.mu.Unlock()

	if events == nil {
		return
	}
	close(events)
	<-done
	c.logger.Debug("stream stopped")
}

func (c *Calculator) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.events != nil
}

// OnFrame reports a frame that arrived now.
func (c *Calculator) OnFrame() {
	c.OnFrameAt(time.Now())
}

// OnFrameAt reports a frame that arrived at ts. Events outside a running
// stream are ignored.
func (c *Calculator) OnFrameAt(ts time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.events == nil {
		return
	}
	select {
	case c.events <- ts:
	default:
		c.dropped.Add(1)
	}
}

// Snapshot returns the latest published or aggregated statistics.
func (c *Calculator) Snapshot() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.snapshot
	s.DroppedEvents = c.dropped.Load()
	return s, c.hasSnapshot
}

func (c *Calculator) LastFps() float64 {
	s, _ := c.Snapshot()
	return s.LastFps
}

// WaitFps returns the last measured rate, waiting up to timeout for the first
// measurement of the current stream. It returns 0 when none arrived.
func (c *Calculator) WaitFps(timeout time.Duration) float64 {
	c.mu.RLock()
	first, has, fps := c.first, c.hasSnapshot, c.snapshot.LastFps
	c.mu.RUnlock()
	if has || first == nil || timeout <= 0 {
		return fps
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-first:
	case <-t.C:
		c.logger.Warnf("no frame rate measured within %s", timeout)
	}

	return c.LastFps()
}

func (c *Calculator) run(events <-chan time.Time, done, first chan struct{}) {
	defer close(done)

	agg := newAggregator(c.cfg)
	firstClosed := false
	for ts := range events {
		aggregated, publish := agg.add(ts)
		if !aggregated {
			continue
		}
		snap := agg.snap
		c.mu.Lock()
		c.snapshot = snap
		c.hasSnapshot = true
		c.mu.Unlock()
		if !firstClosed {
			close(first)
			firstClosed = true
		}
		if publish {
			c.publish(snap)
		}
	}
}

func (c *Calculator) publish(snap Snapshot) {
	snap.DroppedEvents = c.dropped.Load()
	for _, l := range c.listeners.Snapshot() {
		l := l
		c.notify.Post(func() { l(snap) })
	}
	c.notify.Flush()
}
