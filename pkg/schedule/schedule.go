package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"camctl/pkg/session"
	"camctl/pkg/utils"
)

const MinInterval = time.Second

var ErrInterval = errors.New("interval too short")

// Camera is the part of the session controller the scheduler drives.
type Camera interface {
	TakePhoto(req session.PhotoRequest) error
}

type Status struct {
	Running  bool          `json:"running"`
	Interval time.Duration `json:"interval"`
	Taken    int           `json:"taken"`
	Skipped  int           `json:"skipped"`
	LastErr  string        `json:"lastErr,omitempty"`
}

// Scheduler takes a named photo every interval. Ticks that find the camera
// busy are skipped.
type Scheduler struct {
	t      *time.Ticker
	camera Camera
	lock   sync.Mutex
	status Status
	logger *zap.SugaredLogger
}

func New(ctx context.Context, camera Camera) *Scheduler {
	t := time.NewTicker(time.Second)
	t.Stop()

	s := &Scheduler{
		t:      t,
		camera: camera,
		logger: utils.GetLogger().Named("schedule"),
	}
	s.startDeal(ctx)

	return s
}

func (s *Scheduler) Begin(interval time.Duration) error {
	if interval < MinInterval {
		return ErrInterval
	}
	s.lock.Lock()
	s.status = Status{Running: true, Interval: interval}
	s.lock.Unlock()
	s.t.Reset(interval)
	s.logger.Infof("scheduler: photo every %s", interval)

	return nil
}

func (s *Scheduler) Stop() {
	s.logger.Info("scheduler: stopped")
	s.t.Stop()
	s.lock.Lock()
	s.status.Running = false
	s.lock.Unlock()
}

func (s *Scheduler) Status() Status {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.status
}

func (s *Scheduler) startDeal(ctx context.Context) {
	go func(s *Scheduler) {
		for {
			select {
			case start := <-s.t.C:
				s.deal(start)
			case <-ctx.Done():
				s.t.Stop()
				s.logger.Info("scheduler: exited")
				return
			}
		}
	}(s)
}

func (s *Scheduler) deal(start time.Time) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.status.Running {
		return
	}
	err := s.camera.TakePhoto(session.PhotoRequest{Name: true})
	switch {
	case errors.Is(err, session.ErrBusy):
		s.status.Skipped++
		s.logger.Debugf("scheduler: camera busy, skipping tick of %v", start)
	case err != nil:
		s.status.LastErr = err.Error()
		s.logger.Errorf("scheduler: take photo: %s", err)
	default:
		s.status.Taken++
		s.logger.Debugf("scheduler: capture started after %s", time.Since(start))
	}
}
