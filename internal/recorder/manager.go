package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/interview-recorder/internal/journal"
	"github.com/terra-clan/interview-recorder/internal/media"
	"github.com/terra-clan/interview-recorder/internal/metrics"
	"github.com/terra-clan/interview-recorder/internal/models"
	"github.com/terra-clan/interview-recorder/internal/session"
)

// Common errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrDeviceBusy      = errors.New("capture device is in use by another session")
	ErrShuttingDown    = errors.New("recorder is shutting down")
)

// Manager defines the interface for session management
type Manager interface {
	Create(ctx context.Context, token string) (*session.Controller, error)
	Get(id string) (*session.Controller, error)
	List() []models.Snapshot
	Delete(id string) error
	GetExpired(now time.Time) []ExpiredSession
	Ping(ctx context.Context) error
	Close() error
}

// Options configures sessions created by the manager
type Options struct {
	Policy          session.UploadPolicy
	Constraints     media.Constraints
	FetchTimeout    time.Duration
	UploadTimeout   time.Duration
	CompleteTimeout time.Duration
	// IdleTimeout is how long a session may go undriven, or stay terminal, before it is reaped
	IdleTimeout time.Duration
	// SharedDevice allows several live sessions on one capture device
	SharedDevice bool
	Clock        session.Clock
	Sink         journal.Sink
	Metrics      *metrics.Metrics
}

// ExpiredSession describes a session the reaper should close
type ExpiredSession struct {
	ID           string
	Stage        models.Stage
	LastActivity time.Time
	Reason       string
}

type entry struct {
	c             *session.Controller
	createdAt     time.Time
	terminalSince time.Time
}

// SessionManager implements Manager for sessions sharing one capture device
type SessionManager struct {
	source   session.InterviewSource
	uploader session.Uploader
	device   media.Device
	opts     Options

	mu       sync.RWMutex
	sessions map[string]*entry
	closed   bool
}

// NewManager creates a new SessionManager
func NewManager(source session.InterviewSource, uploader session.Uploader, device media.Device, opts Options) *SessionManager {
	if opts.Clock == nil {
		opts.Clock = session.SystemClock{}
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	return &SessionManager{
		source:   source,
		uploader: uploader,
		device:   device,
		opts:     opts,
		sessions: make(map[string]*entry),
	}
}

// Create registers a session for token and loads its interview.
// A session that fails to load is discarded and the load error returned.
func (m *SessionManager) Create(ctx context.Context, token string) (*session.Controller, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if !m.opts.SharedDevice {
		for id, e := range m.sessions {
			if !e.c.Snapshot().Stage.IsTerminal() {
				m.mu.Unlock()
				return nil, fmt.Errorf("%w: session %s", ErrDeviceBusy, id)
			}
		}
	}

	id := uuid.New().String()
	c := session.New(token, m.source, m.uploader, m.device, session.Options{
		ID:              id,
		Clock:           m.opts.Clock,
		Sink:            m.opts.Sink,
		Metrics:         m.opts.Metrics,
		Constraints:     m.opts.Constraints,
		Policy:          m.opts.Policy,
		FetchTimeout:    m.opts.FetchTimeout,
		UploadTimeout:   m.opts.UploadTimeout,
		CompleteTimeout: m.opts.CompleteTimeout,
	})
	m.sessions[id] = &entry{c: c, createdAt: m.opts.Clock.Now()}
	m.mu.Unlock()

	if err := c.Load(ctx); err != nil {
		slog.Warn("session failed to load",
			"id", id,
			"token", journal.MaskToken(token),
			"error", err,
		)
		m.remove(id)
		c.Close()
		return nil, err
	}

	slog.Info("session created",
		"id", id,
		"token", journal.MaskToken(token),
		"questions", c.Snapshot().TotalQuestions,
	)

	return c, nil
}

// Get returns a live session by id
func (m *SessionManager) Get(id string) (*session.Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e.c, nil
}

// List returns snapshots of all sessions, oldest first
func (m *SessionManager) List() []models.Snapshot {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].createdAt.Before(entries[j].createdAt)
	})

	out := make([]models.Snapshot, len(entries))
	for i, e := range entries {
		out[i] = e.c.Snapshot()
	}
	return out
}

// Delete tears a session down and forgets it
func (m *SessionManager) Delete(id string) error {
	e := m.remove(id)
	if e == nil {
		return ErrSessionNotFound
	}

	if err := e.c.Close(); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	slog.Info("session closed", "id", id)
	return nil
}

func (m *SessionManager) remove(id string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.sessions, id)
	return e
}

// GetExpired returns sessions idle for longer than IdleTimeout
// and sessions that have been terminal for longer than IdleTimeout
func (m *SessionManager) GetExpired(now time.Time) []ExpiredSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []ExpiredSession
	for id, e := range m.sessions {
		snap := e.c.Snapshot()
		last := e.c.LastActivity()

		if snap.Stage.IsTerminal() {
			if e.terminalSince.IsZero() {
				e.terminalSince = now
			}
			if now.Sub(e.terminalSince) >= m.opts.IdleTimeout {
				expired = append(expired, ExpiredSession{ID: id, Stage: snap.Stage, LastActivity: last, Reason: "terminal"})
			}
			continue
		}

		// An upload in flight is progress even without caller activity
		if snap.Stage == models.StageUploading {
			continue
		}

		if now.Sub(last) >= m.opts.IdleTimeout {
			expired = append(expired, ExpiredSession{ID: id, Stage: snap.Stage, LastActivity: last, Reason: "idle"})
		}
	}
	return expired
}

// Ping reports whether new sessions are accepted
func (m *SessionManager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrShuttingDown
	}
	return ctx.Err()
}

// Len returns the number of registered sessions
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close tears down every session and rejects new ones
func (m *SessionManager) Close() error {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for id, e := range sessions {
		wg.Add(1)
		go func(id string, c *session.Controller) {
			defer wg.Done()
			if err := c.Close(); err != nil {
				slog.Error("failed to close session", "id", id, "error", err)
			}
		}(id, e.c)
	}
	wg.Wait()

	slog.Info("all sessions closed", "count", len(sessions))
	return nil
}
