package journal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// LogSink writes events to slog
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink backed by the given logger (default logger if nil)
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Record logs the event; failures are logged at warn level
func (s *LogSink) Record(ctx context.Context, e Event) error {
	level := slog.LevelInfo
	if e.Type == EventUploadFailed || e.Type == EventCompletionFailed || e.Type == EventLoadFailed || e.Type == EventCameraDenied {
		level = slog.LevelWarn
	}

	attrs := []any{
		"event_id", e.ID.String(),
		"session_id", e.SessionID,
		"token", e.Token,
		"type", string(e.Type),
		"stage", e.Stage,
	}
	if e.QuestionID != nil {
		attrs = append(attrs, "question_id", *e.QuestionID)
	}
	if e.Message != "" {
		attrs = append(attrs, "message", e.Message)
	}

	s.logger.Log(ctx, level, "session event", attrs...)
	return nil
}

// MultiSink fans an event out to several sinks
type MultiSink []Sink

// Record sends the event to every sink and joins their errors
func (m MultiSink) Record(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event
type Discard struct{}

func (Discard) Record(context.Context, Event) error { return nil }

// Async decouples callers from a slow sink. Events are dropped when the buffer is full.
type Async struct {
	sink    Sink
	events  chan Event
	timeout time.Duration
	wg      sync.WaitGroup
	once    sync.Once
}

// NewAsync starts a background writer for sink
func NewAsync(sink Sink, buffer int, timeout time.Duration) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	a := &Async{
		sink:    sink,
		events:  make(chan Event, buffer),
		timeout: timeout,
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Record queues the event
func (a *Async) Record(_ context.Context, e Event) error {
	select {
	case a.events <- e:
		return nil
	default:
		slog.Warn("journal buffer full, dropping event", "type", string(e.Type), "session_id", e.SessionID)
		return ErrBufferFull
	}
}

func (a *Async) run() {
	defer a.wg.Done()
	for e := range a.events {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.sink.Record(ctx, e); err != nil {
			slog.Error("failed to record journal event", "error", err, "type", string(e.Type), "session_id", e.SessionID)
		}
		cancel()
	}
}

// Close flushes queued events and stops the writer. Record must not be called afterwards.
func (a *Async) Close() error {
	a.once.Do(func() {
		close(a.events)
	})
	a.wg.Wait()
	return nil
}

// ErrBufferFull is returned by Async.Record when the queue is saturated
var ErrBufferFull = errors.New("journal buffer full")
