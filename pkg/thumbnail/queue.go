package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"camctl/pkg/types"
	"camctl/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger().Named("thumbnail")
}

var (
	ErrQueueFull = errors.New("thumbnail queue is full")
	ErrStopped   = errors.New("thumbnail queue is stopped")
)

const (
	DefaultWorkers   = 2
	DefaultQueueSize = 16
	DefaultCellWidth = 320
	DefaultQuality   = 85
)

type Config struct {
	Workers   int `json:"workers"`
	QueueSize int `json:"queueSize"`
	CellWidth int `json:"cellWidth"`
	Quality   int `json:"quality"`
}

func DefaultConfig() Config {
	return Config{
		Workers:   DefaultWorkers,
		QueueSize: DefaultQueueSize,
		CellWidth: DefaultCellWidth,
		Quality:   DefaultQuality,
	}
}

func (c Config) normalize() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.CellWidth <= 0 {
		c.CellWidth = DefaultCellWidth
	}
	if c.Quality <= 0 || c.Quality > 100 {
		c.Quality = DefaultQuality
	}

	return c
}

// Reporter receives the outcome of every job.
type Reporter interface {
	ThumbnailReady(types.Thumbnail)
	ThumbnailFailed(types.RecordingOutput, error)
}

// Store persists pending jobs so they survive a restart.
type Store interface {
	SaveJob(id string, job any) error
	LoadJobs(decode func(id string, data []byte) error) error
	DeleteJob(id string) error
}

type Job struct {
	ID        string                `json:"id"`
	Recording types.RecordingOutput `json:"recording"`
	Grid      int                   `json:"grid"`
	CreatedAt time.Time             `json:"createdAt"`
}

// Queue renders recording previews on a fixed pool of workers.
type Queue struct {
	cfg   Config
	store Store
	jobs  chan Job

	mu       sync.Mutex
	reporter Reporter
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func New(cfg Config, store Store) *Queue {
	cfg = cfg.normalize()
	return &Queue{
		cfg:   cfg,
		store: store,
		jobs:  make(chan Job, cfg.QueueSize),
	}
}

func (q *Queue) SetReporter(r Reporter) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reporter = r
}

// Start spawns the workers and re-queues jobs left over by a previous run.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return nil
	}
	var restored []Job
	if q.store != nil {
		err := q.store.LoadJobs(func(id string, data []byte) error {
			var j Job
			if err := json.Unmarshal(data, &j); err != nil {
				return err
			}
			j.ID = id
			restored = append(restored, j)
			return nil
		})
		if err != nil {
			return fmt.Errorf("restore jobs: %w", err)
		}
	}

	ctx, q.cancel = context.WithCancel(ctx)
	q.running = true
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
	if len(restored) > 0 {
		logger.Infof("restoring %d thumbnail jobs", len(restored))
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for _, j := range restored {
				select {
				case q.jobs <- j:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	return nil
}

// Stop waits for running jobs. Queued jobs stay persisted for the next
// Start.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	for {
		select {
		case <-q.jobs:
		default:
			return
		}
	}
}

// Enqueue persists a thumbnail job for rec and queues it.
func (q *Queue) Enqueue(rec types.RecordingOutput) error {
	grid := rec.Settings.ThumbnailGrid
	if grid <= 0 {
		grid = types.DefaultThumbnailGrid
	}
	j := Job{
		ID:        uuid.NewString(),
		Recording: rec,
		Grid:      grid,
		CreatedAt: time.Now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return ErrStopped
	}
	if q.store != nil {
		if err := q.store.SaveJob(j.ID, j); err != nil {
			return fmt.Errorf("persist job: %w", err)
		}
	}
	select {
	case q.jobs <- j:
		logger.Debugf("queued thumbnail %s for %s", j.ID, rec.File)
		return nil
	default:
		q.forget(j.ID)
		return ErrQueueFull
	}
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-q.jobs:
			q.run(j)
		}
	}
}

func (q *Queue) run(j Job) {
	start := time.Now()
	out, frames, err := Generate(j.Recording.File, j.Grid, q.cfg.CellWidth, q.cfg.Quality)
	q.forget(j.ID)

	q.mu.Lock()
	r := q.reporter
	q.mu.Unlock()
	if err != nil {
		logger.Errorf("thumbnail for %s: %s", j.Recording.File, err)
		if r != nil {
			r.ThumbnailFailed(j.Recording, err)
		}
		return
	}
	logger.Infof("thumbnail %s from %d frames in %s", out, frames, time.Since(start).Round(time.Millisecond))
	if r != nil {
		r.ThumbnailReady(types.Thumbnail{Recording: j.Recording, File: out, Frames: frames})
	}
}

func (q *Queue) forget(id string) {
	if q.store == nil {
		return
	}
	if err := q.store.DeleteJob(id); err != nil {
		logger.Warnf("delete job %s: %s", id, err)
	}
}
