package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/terra-clan/interview-recorder/internal/recorder"
)

// Reaper closes sessions whose UI went away without closing them
type Reaper struct {
	manager  recorder.Manager
	interval time.Duration
	now      func() time.Time
}

// NewReaper creates a new cleanup worker
func NewReaper(manager recorder.Manager, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}

	return &Reaper{
		manager:  manager,
		interval: interval,
		now:      time.Now,
	}
}

// Start begins the cleanup worker in a goroutine
func (r *Reaper) Start(ctx context.Context) {
	go r.run(ctx)
}

// run is the main loop for the cleanup worker
func (r *Reaper) run(ctx context.Context) {
	slog.Info("session reaper started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session reaper stopped")
			return
		case <-ticker.C:
			r.Reap()
		}
	}
}

// Reap closes every expired session and returns how many were closed
func (r *Reaper) Reap() int {
	slog.Debug("running reaper cycle")

	expired := r.manager.GetExpired(r.now())
	if len(expired) == 0 {
		slog.Debug("no expired sessions found")
		return 0
	}

	slog.Info("found expired sessions", "count", len(expired))

	closed := 0
	for _, s := range expired {
		slog.Info("closing expired session",
			"id", s.ID,
			"stage", string(s.Stage),
			"reason", s.Reason,
			"last_activity", s.LastActivity,
		)

		if err := r.manager.Delete(s.ID); err != nil {
			slog.Error("failed to close expired session",
				"error", err,
				"id", s.ID,
			)
			continue
		}
		closed++
	}
	return closed
}
