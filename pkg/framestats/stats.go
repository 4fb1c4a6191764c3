package framestats

import (
	"fmt"
	"time"
)

const (
	DefaultCalculateInterval = time.Second
	DefaultNotifyInterval    = time.Second
	DefaultQueueSize         = 256
)

type Config struct {
	// CalculateInterval is the aggregation window.
	CalculateInterval time.Duration `json:"calculateInterval"`
	// NotifyInterval is the minimum time between two published snapshots,
	// 0 publishes after every aggregation.
	NotifyInterval time.Duration `json:"notifyInterval"`
	// QueueSize bounds the frame event queue, events are dropped when full.
	QueueSize int `json:"queueSize"`
}

func DefaultConfig() Config {
	return Config{
		CalculateInterval: DefaultCalculateInterval,
		NotifyInterval:    DefaultNotifyInterval,
		QueueSize:         DefaultQueueSize,
	}
}

// Normalize replaces out of range values with defaults.
func (c Config) Normalize() Config {
	if c.CalculateInterval <= 0 {
		c.CalculateInterval = DefaultCalculateInterval
	}
	if c.NotifyInterval < 0 {
		c.NotifyInterval = DefaultNotifyInterval
	}
	if c.NotifyInterval != 0 && c.NotifyInterval < c.CalculateInterval {
		c.NotifyInterval = max(DefaultNotifyInterval, c.CalculateInterval)
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}

	return c
}

// Snapshot is a point-in-time view of the stream statistics.
type Snapshot struct {
	StartTime time.Time `json:"startTime"`
	// Time of the frame that closed the last aggregation interval.
	UpdatedAt time.Time `json:"updatedAt"`

	LastFps              float64       `json:"lastFps"`
	LastAverageFrameTime time.Duration `json:"lastAverageFrameTime"`

	// AverageFps is the mean of the per-interval rates.
	AverageFps float64 `json:"averageFps"`
	// AverageFpsOverall is total frames over total elapsed stream time.
	AverageFpsOverall     float64       `json:"averageFpsOverall"`
	AverageFrameTime      time.Duration `json:"averageFrameTime"`
	TotalFrames           int64         `json:"totalFrames"`
	Intervals             int64         `json:"intervals"`
	FramesSinceLastNotify int64         `json:"framesSinceLastNotify"`
	DroppedEvents         int64         `json:"droppedEvents"`
}

func (s Snapshot) String() string {
	return fmt.Sprintf("fps %.2f (avg %.2f, overall %.2f), frame time %s (avg %s), frames %d",
		s.LastFps, s.AverageFps, s.AverageFpsOverall,
		s.LastAverageFrameTime, s.AverageFrameTime, s.TotalFrames)
}
