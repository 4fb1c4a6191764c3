package thumbnail

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/icza/mjpeg"

	"camctl/pkg/storage"
	"camctl/pkg/types"
	imgutil "camctl/pkg/utils/image"
)

func writeAVI(t *testing.T, dir string, frames int) string {
	t.Helper()
	file := filepath.Join(dir, "VID_test_64x48.avi")
	aw, err := mjpeg.New(file, 64, 48, 10)
	checkErr(t, err)
	for i := 0; i < frames; i++ {
		checkErr(t, aw.AddFrame(imgutil.Pattern(64, 48, i)))
	}
	checkErr(t, aw.Close())
	return file
}

func TestIndexFrames(t *testing.T) {
	file := writeAVI(t, t.TempDir(), 12)
	f, err := os.Open(file)
	checkErr(t, err)
	defer f.Close()

	chunks, err := indexFrames(f)
	checkErr(t, err)
	if len(chunks) != 12 {
		t.Fatalf("indexed %d frames", len(chunks))
	}
	data, err := readChunk(f, chunks[5])
	checkErr(t, err)
	if _, err = imgutil.DecodeJPEG(data); err != nil {
		t.Fatal(err)
	}
}

func TestIndexRejectsOtherFiles(t *testing.T) {
	file := filepath.Join(t.TempDir(), "a.avi")
	checkErr(t, os.WriteFile(file, []byte("RIFF\x04\x00\x00\x00WAVE"), 0644))
	f, err := os.Open(file)
	checkErr(t, err)
	defer f.Close()
	if _, err = indexFrames(f); !errors.Is(err, ErrNotAVI) {
		t.Fatalf("got %v", err)
	}
}

func TestSample(t *testing.T) {
	if got := sample(4, 9); len(got) != 4 || got[3] != 3 {
		t.Fatalf("sample(4, 9) = %v", got)
	}
	got := sample(90, 9)
	if len(got) != 9 || got[0] != 5 || got[8] != 85 {
		t.Fatalf("sample(90, 9) = %v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("indices not increasing: %v", got)
		}
	}
	if sample(0, 9) != nil {
		t.Fatal("frames sampled from an empty recording")
	}
}

func TestGenerate(t *testing.T) {
	file := writeAVI(t, t.TempDir(), 20)
	out, frames, err := Generate(file, 3, 32, 80)
	checkErr(t, err)
	if frames != 9 {
		t.Fatalf("used %d frames", frames)
	}
	if out != storage.ThumbnailPath(file) {
		t.Fatalf("preview at %s", out)
	}
	data, err := os.ReadFile(out)
	checkErr(t, err)
	img, err := imgutil.DecodeJPEG(data)
	checkErr(t, err)
	if b := img.Bounds(); b.Dx() != 96 || b.Dy() != 72 {
		t.Fatalf("preview is %dx%d", b.Dx(), b.Dy())
	}
}

type memStore struct {
	mu   sync.Mutex
	jobs map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string][]byte)}
}

func (s *memStore) SaveJob(id string, job any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	s.jobs[id] = data
	return nil
}

func (s *memStore) LoadJobs(decode func(id string, data []byte) error) error {
	s.mu.Lock()
	jobs := make(map[string][]byte, len(s.jobs))
	for id, data := range s.jobs {
		jobs[id] = data
	}
	s.mu.Unlock()
	for id, data := range jobs {
		if err := decode(id, data); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore) DeleteJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

type chanReporter struct {
	ready  chan types.Thumbnail
	failed chan error
}

func newChanReporter() *chanReporter {
	return &chanReporter{ready: make(chan types.Thumbnail, 8), failed: make(chan error, 8)}
}

func (r *chanReporter) ThumbnailReady(t types.Thumbnail) { r.ready <- t }

func (r *chanReporter) ThumbnailFailed(_ types.RecordingOutput, err error) { r.failed <- err }

func TestQueue(t *testing.T) {
	dir := t.TempDir()
	file := writeAVI(t, dir, 10)
	store := newMemStore()
	rep := newChanReporter()
	q := New(Config{}, store)
	q.SetReporter(rep)
	if err := q.Enqueue(types.RecordingOutput{File: file}); !errors.Is(err, ErrStopped) {
		t.Fatalf("enqueue before start returned %v", err)
	}
	checkErr(t, q.Start(context.Background()))
	defer q.Stop()

	checkErr(t, q.Enqueue(types.RecordingOutput{File: file, Settings: types.DefaultVideoSettings()}))
	select {
	case th := <-rep.ready:
		if th.Frames != 9 || th.Recording.File != file {
			t.Fatalf("thumbnail %+v", th)
		}
	case err := <-rep.failed:
		t.Fatal(err)
	case <-time.After(5 * time.Second):
		t.Fatal("no thumbnail")
	}

	checkErr(t, q.Enqueue(types.RecordingOutput{File: filepath.Join(dir, "missing.avi")}))
	select {
	case <-rep.failed:
	case <-time.After(5 * time.Second):
		t.Fatal("no failure reported")
	}
	if n := store.len(); n != 0 {
		t.Fatalf("%d jobs left persisted", n)
	}
}

func TestQueueRestoresJobs(t *testing.T) {
	file := writeAVI(t, t.TempDir(), 10)
	store := newMemStore()
	checkErr(t, store.SaveJob("left-over", Job{Recording: types.RecordingOutput{File: file}, Grid: 2}))

	rep := newChanReporter()
	q := New(DefaultConfig(), store)
	q.SetReporter(rep)
	checkErr(t, q.Start(context.Background()))
	defer q.Stop()

	select {
	case th := <-rep.ready:
		if th.Frames != 4 {
			t.Fatalf("restored job used %d frames, want a 2x2 grid", th.Frames)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("restored job not run")
	}
	eventually(t, func() bool { return store.len() == 0 })
}

func TestQueueWithStorage(t *testing.T) {
	s, err := storage.New(t.TempDir())
	checkErr(t, err)
	q := New(DefaultConfig(), s)
	checkErr(t, q.Start(context.Background()))
	q.Stop()

	// jobs persisted by a stopped process are picked up on the next start
	rec := types.RecordingOutput{File: writeAVI(t, s.VideoDir(), 5)}
	checkErr(t, s.SaveJob("pending", Job{ID: "pending", Recording: rec, Grid: 1}))

	rep := newChanReporter()
	q = New(DefaultConfig(), s)
	q.SetReporter(rep)
	checkErr(t, q.Start(context.Background()))
	defer q.Stop()
	select {
	case th := <-rep.ready:
		if th.Frames != 1 {
			t.Fatalf("used %d frames", th.Frames)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("persisted job not run")
	}
	list, err := s.ListMedia(storage.KindVideo)
	checkErr(t, err)
	if len(list) != 1 || list[0].Thumbnail == "" {
		t.Fatalf("listed %+v", list)
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func checkErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
