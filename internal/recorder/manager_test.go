package recorder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/interview-recorder/internal/fixtures"
	"github.com/terra-clan/interview-recorder/internal/media"
	"github.com/terra-clan/interview-recorder/internal/models"
	"github.com/terra-clan/interview-recorder/internal/session"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *manualClock) NewTicker(d time.Duration) session.Ticker {
	return session.SystemClock{}.NewTicker(d)
}

type testEnv struct {
	manager *SessionManager
	device  *media.SyntheticDevice
	clock   *manualClock
	spool   *fixtures.Spool
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	loader := fixtures.NewLoader()
	def := &models.InterviewDefinition{
		CandidateName: "Alex",
		Questions: []models.Question{
			{ID: 1, Prompt: "One", TimeLimitSeconds: 120},
			{ID: 2, Prompt: "Two", TimeLimitSeconds: 60},
		},
	}
	loader.Add("token-aaaa", def, nil)
	loader.Add("token-bbbb", def, nil)

	spool, err := fixtures.NewSpool(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{
		device: media.NewSyntheticDevice(0),
		clock:  &manualClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)},
		spool:  spool,
	}
	opts.Clock = env.clock
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = 10 * time.Minute
	}
	env.manager = NewManager(loader, spool, env.device, opts)
	t.Cleanup(func() { env.manager.Close() })
	return env
}

func TestCreateAndGet(t *testing.T) {
	env := newTestEnv(t, Options{})

	c, err := env.manager.Create(context.Background(), "token-aaaa")
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID())

	got, err := env.manager.Get(c.ID())
	require.NoError(t, err)
	assert.Same(t, c, got)

	snap := c.Snapshot()
	assert.Equal(t, models.StageWelcome, snap.Stage)
	assert.Equal(t, 2, snap.TotalQuestions)
	assert.Equal(t, c.ID(), snap.SessionID)

	list := env.manager.List()
	require.Len(t, list, 1)
	assert.Equal(t, c.ID(), list[0].SessionID)
}

func TestCreateUnknownToken(t *testing.T) {
	env := newTestEnv(t, Options{})

	_, err := env.manager.Create(context.Background(), "nope")
	require.ErrorIs(t, err, session.ErrInvalidToken)
	assert.Equal(t, 0, env.manager.Len())
}

func TestDeviceBusy(t *testing.T) {
	env := newTestEnv(t, Options{})

	first, err := env.manager.Create(context.Background(), "token-aaaa")
	require.NoError(t, err)

	_, err = env.manager.Create(context.Background(), "token-bbbb")
	require.ErrorIs(t, err, ErrDeviceBusy)

	require.NoError(t, env.manager.Delete(first.ID()))
	_, err = env.manager.Create(context.Background(), "token-bbbb")
	require.NoError(t, err)
}

func TestSharedDevice(t *testing.T) {
	env := newTestEnv(t, Options{SharedDevice: true})

	_, err := env.manager.Create(context.Background(), "token-aaaa")
	require.NoError(t, err)
	_, err = env.manager.Create(context.Background(), "token-bbbb")
	require.NoError(t, err)
	assert.Len(t, env.manager.List(), 2)
}

func TestDeleteReleasesStream(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	c, err := env.manager.Create(ctx, "token-aaaa")
	require.NoError(t, err)
	require.NoError(t, c.Proceed(ctx))
	require.NoError(t, c.BeginInterview(ctx))
	require.NoError(t, c.StartRecording(ctx))

	require.NoError(t, env.manager.Delete(c.ID()))

	stream := env.device.Streams()[0]
	assert.Equal(t, 1, stream.StopCalls())
	assert.Equal(t, 0, media.LiveTracks(stream))

	_, err = env.manager.Get(c.ID())
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.ErrorIs(t, env.manager.Delete(c.ID()), ErrSessionNotFound)
}

func TestGetExpiredIdle(t *testing.T) {
	env := newTestEnv(t, Options{IdleTimeout: 5 * time.Minute})

	c, err := env.manager.Create(context.Background(), "token-aaaa")
	require.NoError(t, err)

	assert.Empty(t, env.manager.GetExpired(env.clock.Now()))

	env.clock.Advance(6 * time.Minute)
	expired := env.manager.GetExpired(env.clock.Now())
	require.Len(t, expired, 1)
	assert.Equal(t, c.ID(), expired[0].ID)
	assert.Equal(t, "idle", expired[0].Reason)
}

func TestGetExpiredTerminal(t *testing.T) {
	env := newTestEnv(t, Options{IdleTimeout: 5 * time.Minute, SharedDevice: true})
	env.device.Err = media.ErrPermissionDenied
	ctx := context.Background()

	c, err := env.manager.Create(ctx, "token-aaaa")
	require.NoError(t, err)
	require.ErrorIs(t, c.Proceed(ctx), session.ErrPermissionDenied)

	// First observation starts the terminal grace period
	assert.Empty(t, env.manager.GetExpired(env.clock.Now()))

	env.clock.Advance(5 * time.Minute)
	expired := env.manager.GetExpired(env.clock.Now())
	require.Len(t, expired, 1)
	assert.Equal(t, "terminal", expired[0].Reason)
	assert.Equal(t, models.StageError, expired[0].Stage)
}

func TestTerminalSessionFreesDevice(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.device.Err = media.ErrNoDevice
	ctx := context.Background()

	c, err := env.manager.Create(ctx, "token-aaaa")
	require.NoError(t, err)
	require.Error(t, c.Proceed(ctx))

	_, err = env.manager.Create(ctx, "token-bbbb")
	require.NoError(t, err)
}

func TestCloseAll(t *testing.T) {
	env := newTestEnv(t, Options{SharedDevice: true})
	ctx := context.Background()

	a, err := env.manager.Create(ctx, "token-aaaa")
	require.NoError(t, err)
	_, err = env.manager.Create(ctx, "token-bbbb")
	require.NoError(t, err)

	require.NoError(t, env.manager.Close())
	assert.Equal(t, 0, env.manager.Len())
	require.ErrorIs(t, env.manager.Ping(ctx), ErrShuttingDown)

	_, err = env.manager.Create(ctx, "token-aaaa")
	require.ErrorIs(t, err, ErrShuttingDown)

	select {
	case <-a.Done():
	default:
		t.Fatal("session not torn down")
	}
}
