package framestats

import "time"

// aggregator holds the interval accumulators. It is owned by the worker
// goroutine and never shared.
type aggregator struct {
	cfg Config

	start         time.Time
	intervalStart time.Time
	lastFrame     time.Time

	intervalFrames int64
	deltaSum       time.Duration
	deltaCount     int64

	totalFrames    int64
	fpsSum         float64
	intervals      int64
	frameTimeSum   time.Duration
	frameTimeCount int64

	lastNotify        time.Time
	framesSinceNotify int64

	snap Snapshot
}

func newAggregator(cfg Config) *aggregator {
	return &aggregator{cfg: cfg}
}

// add accounts one frame. It reports whether an interval was closed and
// whether the resulting snapshot is due for publication.
func (a *aggregator) add(ts time.Time) (aggregated, publish bool) {
	if a.start.IsZero() {
		a.start = ts
		a.intervalStart = ts
		a.snap.StartTime = ts
	}
	if ts.Before(a.lastFrame) {
		return false, false
	}

	// the frame that closes an interval opens the next one
	if ts.Sub(a.intervalStart) >= a.cfg.CalculateInterval {
		a.aggregate(ts)
		aggregated = true
		a.intervalStart = ts

		base := a.lastNotify
		if base.IsZero() {
			base = a.start
		}
		if a.cfg.NotifyInterval == 0 || ts.Sub(base) >= a.cfg.NotifyInterval {
			a.snap.FramesSinceLastNotify = a.framesSinceNotify
			a.framesSinceNotify = 0
			a.lastNotify = ts
			publish = true
		}
	}

	if !a.lastFrame.IsZero() {
		a.deltaSum += ts.Sub(a.lastFrame)
		a.deltaCount++
	}
	a.lastFrame = ts
	a.intervalFrames++
	a.framesSinceNotify++

	return aggregated, publish
}

func (a *aggregator) aggregate(ts time.Time) {
	fps := float64(a.intervalFrames) / a.cfg.CalculateInterval.Seconds()

	var frameTime time.Duration
	if a.deltaCount > 0 {
		frameTime = a.deltaSum / time.Duration(a.deltaCount)
		a.frameTimeSum += frameTime
		a.frameTimeCount++
	}
	a.totalFrames += a.intervalFrames
	a.fpsSum += fps
	a.intervals++

	s := &a.snap
	s.UpdatedAt = ts
	s.LastFps = fps
	s.LastAverageFrameTime = frameTime
	s.AverageFps = a.fpsSum / float64(a.intervals)
	if a.frameTimeCount > 0 {
		s.AverageFrameTime = a.frameTimeSum / time.Duration(a.frameTimeCount)
	}
	if elapsed := ts.Sub(a.start).Seconds(); elapsed > 0 {
		s.AverageFpsOverall = float64(a.totalFrames) / elapsed
	}
	s.TotalFrames = a.totalFrames
	s.Intervals = a.intervals

	a.intervalFrames = 0
	a.deltaSum = 0
	a.deltaCount = 0
}
