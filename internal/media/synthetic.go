package media

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// SyntheticDevice produces generated chunks instead of real capture.
// Used on test rigs without a camera and by tests.
type SyntheticDevice struct {
	// Err is returned by Open when set, e.g. ErrPermissionDenied
	Err error
	// Interval between generated chunks while recording; zero emits only on Start and Stop
	Interval time.Duration
	// Silent recorders never emit a chunk
	Silent bool

	mu      sync.Mutex
	streams []*SyntheticStream
}

// NewSyntheticDevice creates a device emitting a chunk every interval
func NewSyntheticDevice(interval time.Duration) *SyntheticDevice {
	return &SyntheticDevice{Interval: interval}
}

// Open returns a new stream with one video and, if requested, one audio track
func (d *SyntheticDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Err != nil {
		return nil, d.Err
	}

	s := &SyntheticStream{
		interval: d.Interval,
		silent:   d.Silent,
		tracks:   []*captureTrack{newCaptureTrack(KindVideo)},
	}
	if c.Audio {
		s.tracks = append(s.tracks, newCaptureTrack(KindAudio))
	}

	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	return s, nil
}

// Streams returns every stream opened so far
func (d *SyntheticDevice) Streams() []*SyntheticStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*SyntheticStream(nil), d.streams...)
}

// SyntheticStream is a stream opened by SyntheticDevice
type SyntheticStream struct {
	interval time.Duration
	silent   bool
	tracks   []*captureTrack

	stops    atomic.Int32
	released atomic.Int32

	mu        sync.Mutex
	recorders []*syntheticRecorder
}

func (s *SyntheticStream) Tracks() []Track {
	out := make([]Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

func (s *SyntheticStream) NewRecorder(mimeType string) (Recorder, error) {
	if s.released.Load() > 0 {
		return nil, ErrStreamStopped
	}
	if mimeType != MimeTypeWebM {
		return nil, fmt.Errorf("unsupported mime type: %s", mimeType)
	}

	r := &syntheticRecorder{interval: s.interval, silent: s.silent}
	s.mu.Lock()
	s.recorders = append(s.recorders, r)
	s.mu.Unlock()
	return r, nil
}

// Stop stops every track. Calls are counted so tests can check release happens once.
func (s *SyntheticStream) Stop() {
	s.stops.Add(1)
	if s.released.Add(1) > 1 {
		return
	}

	s.mu.Lock()
	recs := s.recorders
	s.mu.Unlock()
	for _, r := range recs {
		if r.Recording() {
			_ = r.Stop()
		}
	}
	for _, t := range s.tracks {
		t.Stop()
	}
}

// StopCalls returns how many times Stop was called
func (s *SyntheticStream) StopCalls() int {
	return int(s.stops.Load())
}

// Recorders returns every recorder created on the stream
func (s *SyntheticStream) Recorders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recorders)
}

type syntheticRecorder struct {
	interval time.Duration
	silent   bool

	mu        sync.Mutex
	recording bool
	onChunk   func([]byte)
	seq       int
	quit      chan struct{}
	done      chan struct{}
}

func (r *syntheticRecorder) emit() {
	if r.silent {
		return
	}
	r.seq++
	r.onChunk([]byte(fmt.Sprintf("webm-chunk-%04d;", r.seq)))
}

func (r *syntheticRecorder) Start(onChunk func([]byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return ErrAlreadyRecording
	}
	r.recording = true
	r.onChunk = onChunk
	r.emit()

	if r.interval > 0 {
		r.quit = make(chan struct{})
		r.done = make(chan struct{})
		go r.generate(r.quit, r.done)
	}
	return nil
}

func (r *syntheticRecorder) generate(quit, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.recording {
				r.emit()
			}
			r.mu.Unlock()
		}
	}
}

// Stop emits a final chunk, mirroring an encoder flush
func (r *syntheticRecorder) Stop() error {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil
	}
	r.recording = false
	quit, done := r.quit, r.done
	r.quit, r.done = nil, nil
	r.mu.Unlock()

	if quit != nil {
		close(quit)
		<-done
	}

	r.mu.Lock()
	r.emit()
	r.mu.Unlock()
	return nil
}

func (r *syntheticRecorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}
