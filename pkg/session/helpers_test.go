package session

import (
	"sync"
	"testing"
	"time"

	"camctl/pkg/camera"
	"camctl/pkg/encoder"
	"camctl/pkg/types"
)

// fakeEncoder records its configuration and lets tests fire callbacks.
type fakeEncoder struct {
	mu sync.Mutex

	dev         camera.Device
	profile     *types.Profile
	format      types.OutputFormat
	video       types.VideoEncoder
	size        types.Size
	fps         int
	maxDuration time.Duration
	maxSize     int64
	file        string
	errCb       encoder.ErrorCallback
	infoCb      encoder.InfoCallback

	failPrepare error
	failStop    error
	stopDelay   time.Duration

	prepared bool
	started  bool
	stopped  bool
	released bool
}

func (e *fakeEncoder) SetCamera(dev camera.Device) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dev = dev
	return nil
}

func (e *fakeEncoder) SetProfile(p types.Profile) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profile = &p
	e.format, e.video = p.FileFormat, p.VideoCodec
	e.size, e.fps = p.Size(), p.VideoFrameRate
	return nil
}

func (e *fakeEncoder) SetOutputFormat(f types.OutputFormat) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.format = f
	return nil
}

func (e *fakeEncoder) SetVideoEncoder(enc types.VideoEncoder) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.video = enc
	return nil
}

func (e *fakeEncoder) SetAudioEncoder(types.AudioEncoder) error { return nil }

func (e *fakeEncoder) SetVideoFrameRate(fps int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fps = fps
	return nil
}

func (e *fakeEncoder) SetVideoSize(size types.Size) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.size = size
	return nil
}

func (e *fakeEncoder) SetVideoEncodingBitRate(int) error { return nil }

func (e *fakeEncoder) SetOrientationHint(int) error { return nil }

func (e *fakeEncoder) SetMaxDuration(d time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxDuration = d
	return nil
}

func (e *fakeEncoder) SetMaxFileSize(n int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxSize = n
	return nil
}

func (e *fakeEncoder) SetOutputFile(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.file = path
	return nil
}

func (e *fakeEncoder) SetErrorCallback(cb encoder.ErrorCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errCb = cb
}

func (e *fakeEncoder) SetInfoCallback(cb encoder.InfoCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.infoCb = cb
}

func (e *fakeEncoder) Prepare() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failPrepare != nil {
		return e.failPrepare
	}
	e.prepared = true
	return nil
}

func (e *fakeEncoder) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = true
	return nil
}

func (e *fakeEncoder) Stop() error {
	e.mu.Lock()
	delay, err := e.stopDelay, e.failStop
	e.mu.Unlock()
	time.Sleep(delay)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	return err
}

func (e *fakeEncoder) Reset() {}

func (e *fakeEncoder) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.released = true
}

func (e *fakeEncoder) fireError(what int) {
	e.mu.Lock()
	cb := e.errCb
	e.mu.Unlock()
	go cb(what, 0)
}

func (e *fakeEncoder) fireInfo(what int) {
	e.mu.Lock()
	cb := e.infoCb
	e.mu.Unlock()
	go cb(what, 0)
}

func (e *fakeEncoder) snapshot() fakeEncoder {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fakeEncoder{
		profile:  e.profile,
		format:   e.format,
		video:    e.video,
		size:     e.size,
		fps:      e.fps,
		file:     e.file,
		prepared: e.prepared,
		started:  e.started,
		stopped:  e.stopped,
		released: e.released,
	}
}

type encoders struct {
	mu          sync.Mutex
	list        []*fakeEncoder
	failPrepare error
	failStop    error
	stopDelay   time.Duration
}

func (e *encoders) factory() encoder.Encoder {
	e.mu.Lock()
	defer e.mu.Unlock()
	fe := &fakeEncoder{failPrepare: e.failPrepare, failStop: e.failStop, stopDelay: e.stopDelay}
	e.list = append(e.list, fe)
	return fe
}

func (e *encoders) last() *fakeEncoder {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.list) == 0 {
		return nil
	}
	return e.list[len(e.list)-1]
}

type fakePost struct {
	mu   sync.Mutex
	jobs []types.RecordingOutput
}

func (p *fakePost) Enqueue(rec types.RecordingOutput) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, rec)
	return nil
}

func (p *fakePost) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.jobs)
}

type harness struct {
	c      *Controller
	opener *camera.FakeOpener
	dev    *camera.FakeDevice
	encs   *encoders
	states chan StateChange
	photos chan Photo
}

var vga = SizedTarget{Width: 640, Height: 480}

func newHarness(t *testing.T, mutate func(*camera.FakeConfig, *Config)) *harness {
	t.Helper()
	fc := camera.DefaultFakeConfig()
	cfg := DefaultConfig()
	cfg.AutoFocusTimeout = 200 * time.Millisecond
	cfg.OperationTimeout = 2 * time.Second
	cfg.FrameRateWait = 50 * time.Millisecond
	cfg.Stats.CalculateInterval = 200 * time.Millisecond
	cfg.Stats.NotifyInterval = 0
	h := &harness{
		encs:   &encoders{},
		states: make(chan StateChange, 64),
		photos: make(chan Photo, 8),
	}
	cfg.NewEncoder = h.encs.factory
	if mutate != nil {
		mutate(&fc, &cfg)
	}

	h.opener = camera.NewFakeOpener(fc)
	h.c = New(h.opener, cfg)
	h.c.OnStateChanged(func(s StateChange) { h.states <- s })
	h.c.OnPhoto(func(p Photo) { h.photos <- p })
	return h
}

func (h *harness) open(t *testing.T, target camera.DisplayTarget) {
	t.Helper()
	if err := h.c.Open(0, target); err != nil {
		t.Fatal(err)
	}
	h.dev = h.opener.Last()
	t.Cleanup(func() { _ = h.c.Close() })
}

func openHarness(t *testing.T, mutate func(*camera.FakeConfig, *Config)) *harness {
	t.Helper()
	h := newHarness(t, mutate)
	h.open(t, vga)
	return h
}

func (h *harness) expectState(t *testing.T, from, to State) {
	t.Helper()
	select {
	case s := <-h.states:
		if s.From != from || s.To != to {
			t.Fatalf("got transition %s -> %s, want %s -> %s", s.From, s.To, from, to)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no transition %s -> %s", from, to)
	}
}

func (h *harness) expectNoState(t *testing.T) {
	t.Helper()
	select {
	case s := <-h.states:
		t.Fatalf("unexpected transition %s -> %s", s.From, s.To)
	case <-time.After(50 * time.Millisecond):
	}
}

func (h *harness) expectPhoto(t *testing.T) Photo {
	t.Helper()
	select {
	case p := <-h.photos:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no photo delivered")
	}
	return Photo{}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
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
