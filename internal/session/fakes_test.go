package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/terra-clan/interview-recorder/internal/journal"
	"github.com/terra-clan/interview-recorder/internal/media"
	"github.com/terra-clan/interview-recorder/internal/models"
)

// fakeClock hands out tickers that only fire when the test says so
type fakeClock struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (c *fakeClock) Now() time.Time { return time.Unix(1700000000, 0) }

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	t := &fakeTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

func (c *fakeClock) current() *fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tickers) == 0 {
		return nil
	}
	return c.tickers[len(c.tickers)-1]
}

func (c *fakeClock) created() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

type fakeTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() { t.once.Do(func() { close(t.stopped) }) }

// tick delivers one tick; false once the ticker is stopped
func (t *fakeTicker) tick() bool {
	select {
	case t.ch <- time.Now():
		return true
	case <-t.stopped:
		return false
	}
}

func (t *fakeTicker) isStopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

type fakeSource struct {
	def *models.InterviewDefinition
	err error
}

func (s *fakeSource) FetchInterview(ctx context.Context, token string) (*models.InterviewDefinition, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.def, nil
}

type fakeUploader struct {
	mu          sync.Mutex
	clips       map[int][]byte
	order       []int
	attempts    map[int]int
	failNext    map[int]int // question id -> failures still to return
	completeErr error
	completes   int
	block       chan struct{} // when set, uploads wait on it or ctx
	started     chan struct{}
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{
		clips:    make(map[int][]byte),
		attempts: make(map[int]int),
		failNext: make(map[int]int),
	}
}

func (u *fakeUploader) UploadClip(ctx context.Context, token string, questionID int, clip io.Reader, size int64) error {
	u.mu.Lock()
	u.attempts[questionID]++
	block, started := u.block, u.started
	u.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	data, err := io.ReadAll(clip)
	if err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failNext[questionID] > 0 {
		u.failNext[questionID]--
		return errors.New("backend returned 502")
	}
	u.clips[questionID] = data
	u.order = append(u.order, questionID)
	return nil
}

func (u *fakeUploader) CompleteInterview(ctx context.Context, token string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.completes++
	return u.completeErr
}

func (u *fakeUploader) failures(questionID, n int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.failNext[questionID] = n
}

func (u *fakeUploader) uploaded() []int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]int(nil), u.order...)
}

func (u *fakeUploader) attemptsFor(questionID int) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.attempts[questionID]
}

func (u *fakeUploader) completions() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.completes
}

type memorySink struct {
	mu     sync.Mutex
	events []journal.Event
}

func (s *memorySink) Record(ctx context.Context, e journal.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *memorySink) count(typ journal.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// slowDevice holds Open until release is closed, then opens regardless of ctx,
// like a camera that finishes initialising after the caller gave up
type slowDevice struct {
	inner   *media.SyntheticDevice
	opening chan struct{}
	release chan struct{}
}

func newSlowDevice() *slowDevice {
	return &slowDevice{
		inner:   media.NewSyntheticDevice(0),
		opening: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (d *slowDevice) Open(ctx context.Context, c media.Constraints) (media.Stream, error) {
	close(d.opening)
	<-d.release
	return d.inner.Open(context.Background(), c)
}
