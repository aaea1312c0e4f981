package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/terra-clan/interview-recorder/internal/journal"
	"github.com/terra-clan/interview-recorder/internal/media"
	"github.com/terra-clan/interview-recorder/internal/metrics"
	"github.com/terra-clan/interview-recorder/internal/models"
)

// InterviewSource resolves an interview token to its definition
type InterviewSource interface {
	FetchInterview(ctx context.Context, token string) (*models.InterviewDefinition, error)
}

// Uploader accepts one clip per question and the final completion signal
type Uploader interface {
	UploadClip(ctx context.Context, token string, questionID int, clip io.Reader, size int64) error
	CompleteInterview(ctx context.Context, token string) error
}

// Options holds optional collaborators and timeouts
type Options struct {
	ID              string
	Clock           Clock
	Sink            journal.Sink
	Metrics         *metrics.Metrics
	Constraints     media.Constraints
	Policy          UploadPolicy
	FetchTimeout    time.Duration
	CameraTimeout   time.Duration
	UploadTimeout   time.Duration
	CompleteTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.Clock == nil {
		o.Clock = SystemClock{}
	}
	if o.Sink == nil {
		o.Sink = journal.Discard{}
	}
	if o.Constraints == (media.Constraints{}) {
		o.Constraints = media.DefaultConstraints()
	}
	o.Policy = o.Policy.withDefaults()
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 15 * time.Second
	}
	if o.CameraTimeout <= 0 {
		o.CameraTimeout = 60 * time.Second
	}
	if o.UploadTimeout <= 0 {
		o.UploadTimeout = 5 * time.Minute
	}
	if o.CompleteTimeout <= 0 {
		o.CompleteTimeout = 15 * time.Second
	}
}

type command struct {
	fn    func() error
	reply chan error
}

// Controller runs one candidate's recording session.
// All session state is owned by a single loop goroutine; public methods
// send commands to it and wait for the answer.
type Controller struct {
	id       string
	token    string
	source   InterviewSource
	uploader Uploader
	device   media.Device
	opts     Options

	ctx    context.Context // cancelled on Close, bounds every network call
	cancel context.CancelFunc

	cmds      chan command
	done      chan struct{} // closed by Close
	exited    chan struct{} // closed when the loop returns
	closeOnce sync.Once

	chunks   chunkBuffer
	progress atomic.Int32
	snapshot atomic.Pointer[models.Snapshot]
	lastSeen atomic.Int64

	// loop-owned state
	stage         models.Stage
	def           *models.InterviewDefinition
	index         int
	remaining     int
	loading       bool
	acquiring     bool
	cameraReady   bool
	stream        media.Stream
	recorder      media.Recorder
	recording     bool
	ticker        Ticker
	tickC         <-chan time.Time
	uploadsTried  int
	uploadsFailed int
	autoStops     int
	errMsg        string
	released      bool
	subs          map[int]chan models.Snapshot
	nextSub       int
}

// New creates a controller in the welcome stage and starts its loop.
// Call Load to resolve the interview definition.
func New(token string, source InterviewSource, uploader Uploader, device media.Device, opts Options) *Controller {
	opts.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		id:       opts.ID,
		token:    token,
		source:   source,
		uploader: uploader,
		device:   device,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		cmds:     make(chan command),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
		stage:    models.StageWelcome,
		subs:     make(map[int]chan models.Snapshot),
	}
	c.touch()
	c.publish()

	go c.run()

	return c
}

// ID returns the session id
func (c *Controller) ID() string {
	return c.id
}

// Token returns the interview token
func (c *Controller) Token() string {
	return c.token
}

func (c *Controller) run() {
	defer close(c.exited)

	for {
		select {
		case cmd := <-c.cmds:
			err := cmd.fn()
			c.publish()
			cmd.reply <- err
		case <-c.tickC:
			c.onTick()
			c.publish()
		case <-c.done:
			c.teardown()
			c.publish()
			for id, ch := range c.subs {
				close(ch)
				delete(c.subs, id)
			}
			return
		}
	}
}

// do runs fn on the loop
func (c *Controller) do(ctx context.Context, fn func() error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}

	select {
	case c.cmds <- cmd:
	case <-c.exited:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	c.touch()

	// Once accepted the command always completes, so the reply is awaited unconditionally
	return <-cmd.reply
}

func (c *Controller) touch() {
	c.lastSeen.Store(c.opts.Clock.Now().UnixNano())
}

// LastActivity returns when a caller last drove the session
func (c *Controller) LastActivity() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// Load fetches the interview definition. Any failure is terminal.
func (c *Controller) Load(ctx context.Context) error {
	err := c.do(ctx, func() error {
		if c.stage != models.StageWelcome || c.def != nil || c.loading {
			return invalid("load", c.stage, "interview already loaded")
		}
		c.loading = true
		return nil
	})
	if err != nil {
		return err
	}

	fetchCtx, cancel := context.WithTimeout(c.ctx, c.opts.FetchTimeout)
	def, fetchErr := c.source.FetchInterview(fetchCtx, c.token)
	cancel()

	if fetchErr == nil {
		fetchErr = def.Validate()
	}

	return c.do(context.Background(), func() error {
		c.loading = false
		if fetchErr != nil {
			c.record(journal.EventLoadFailed, nil, fetchErr.Error())
			c.fail(ErrInvalidToken)
			return fmt.Errorf("%w: %v", ErrInvalidToken, fetchErr)
		}

		c.def = def
		c.opts.Metrics.IncrementSessionsStarted()
		c.record(journal.EventSessionLoaded, nil, fmt.Sprintf("%d questions", len(def.Questions)))
		return nil
	})
}

// Definition returns the loaded interview definition.
// It is nil before Load succeeds and once the session is closed.
func (c *Controller) Definition() *models.InterviewDefinition {
	var def *models.InterviewDefinition
	if err := c.do(context.Background(), func() error {
		def = c.def
		return nil
	}); err != nil {
		return nil
	}
	return def
}

// Proceed leaves the welcome stage and requests camera access
func (c *Controller) Proceed(ctx context.Context) error {
	err := c.do(ctx, func() error {
		if c.stage != models.StageWelcome || c.def == nil {
			return invalid("proceed", c.stage, "interview not loaded")
		}
		c.setStage(models.StageCameraSetup)
		return nil
	})
	if err != nil {
		return err
	}

	return c.RequestCameraAccess(ctx)
}

// RequestCameraAccess acquires the capture stream. A denial is terminal and never re-prompted.
func (c *Controller) RequestCameraAccess(ctx context.Context) error {
	err := c.do(ctx, func() error {
		if c.stage != models.StageCameraSetup {
			return invalid("request camera", c.stage, "")
		}
		if c.stream != nil || c.acquiring {
			return invalid("request camera", c.stage, "camera already requested")
		}
		c.acquiring = true
		return nil
	})
	if err != nil {
		return err
	}

	openCtx, cancel := context.WithTimeout(c.ctx, c.opts.CameraTimeout)
	stream, openErr := c.device.Open(openCtx, c.opts.Constraints)
	cancel()

	applyErr := c.do(context.Background(), func() error {
		c.acquiring = false
		if openErr != nil {
			c.record(journal.EventCameraDenied, nil, openErr.Error())
			c.fail(ErrPermissionDenied)
			return fmt.Errorf("%w: %v", ErrPermissionDenied, openErr)
		}

		c.stream = stream
		c.cameraReady = true
		return nil
	})

	// Torn down while the device was opening; nobody else will release it
	if errors.Is(applyErr, ErrClosed) && openErr == nil {
		stream.Stop()
	}

	return applyErr
}

// BeginInterview moves from camera setup to the first question
func (c *Controller) BeginInterview(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.stage != models.StageCameraSetup || !c.cameraReady {
			return invalid("begin interview", c.stage, "camera not ready")
		}
		c.index = 0
		c.remaining = c.def.Questions[0].TimeLimitSeconds
		c.setStage(models.StageRecording)
		return nil
	})
}

// StartRecording begins capturing the answer to the current question and starts the countdown.
// A previous take of the same question is discarded.
func (c *Controller) StartRecording(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.stage != models.StageRecording || !c.cameraReady || c.stream == nil {
			return invalid("start recording", c.stage, "")
		}
		if c.recording {
			return invalid("start recording", c.stage, "already recording")
		}

		rec, err := c.stream.NewRecorder(media.MimeTypeWebM)
		if err != nil {
			return fmt.Errorf("failed to create recorder: %w", err)
		}

		c.chunks.reset()
		if err := rec.Start(c.chunks.add); err != nil {
			return fmt.Errorf("failed to start recorder: %w", err)
		}

		q := c.def.Questions[c.index]
		c.recorder = rec
		c.recording = true
		c.remaining = q.TimeLimitSeconds
		c.ticker = c.opts.Clock.NewTicker(time.Second)
		c.tickC = c.ticker.C()

		c.opts.Metrics.IncrementRecordingsStarted()
		c.record(journal.EventRecordingStarted, &q.ID, "")
		return nil
	})
}

// StopRecording ends capture for the current question. Submitting is a separate step.
func (c *Controller) StopRecording(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.stage != models.StageRecording || !c.recording {
			return invalid("stop recording", c.stage, "not recording")
		}
		c.stopRecording(false)
		return nil
	})
}

func (c *Controller) onTick() {
	if !c.recording {
		return
	}

	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining == 0 {
		c.autoStops++
		c.opts.Metrics.IncrementAutoStops()
		c.stopRecording(true)
	}
}

// stopRecording cancels the countdown and flushes the recorder
func (c *Controller) stopRecording(auto bool) {
	c.stopTicker()

	if c.recorder != nil {
		if err := c.recorder.Stop(); err != nil {
			slog.Warn("failed to stop recorder", "error", err, "session_id", c.id)
		}
		c.recorder = nil
	}
	c.recording = false

	q := c.def.Questions[c.index]
	if auto {
		c.record(journal.EventAutoStopped, &q.ID, "time limit reached")
	} else {
		c.record(journal.EventRecordingStopped, &q.ID, "")
	}
}

func (c *Controller) stopTicker() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	c.tickC = nil
}

type submission struct {
	question models.Question
	clip     []byte
	last     bool
}

// SubmitAndAdvance uploads the recorded clip and moves to the next question,
// or finishes the session after the last one.
// Upload and completion failures are non-fatal unless the policy requires success.
func (c *Controller) SubmitAndAdvance(ctx context.Context) error {
	var sub submission
	err := c.do(ctx, func() error {
		if c.stage != models.StageRecording || c.recording {
			return invalid("submit", c.stage, "recording must be stopped first")
		}
		if c.chunks.len() == 0 {
			return ErrNoChunks
		}

		sub = submission{
			question: c.def.Questions[c.index],
			clip:     c.chunks.clip(),
			last:     c.index == len(c.def.Questions)-1,
		}
		c.uploadsTried++
		c.progress.Store(0)
		c.setStage(models.StageUploading)
		return nil
	})
	if err != nil {
		return err
	}

	uploadErr := c.upload(sub)
	c.opts.Metrics.IncrementUpload(uploadErr == nil, len(sub.clip))

	proceed := uploadErr == nil || !c.opts.Policy.RequireSuccess

	var completeErr error
	if sub.last && proceed {
		completeErr = c.complete()
		c.opts.Metrics.IncrementCompletion(completeErr == nil)
	}

	return c.do(context.Background(), func() error {
		qid := sub.question.ID
		if uploadErr != nil {
			c.uploadsFailed++
			c.record(journal.EventUploadFailed, &qid, uploadErr.Error())
			slog.Error("failed to upload clip",
				"error", uploadErr,
				"session_id", c.id,
				"token", journal.MaskToken(c.token),
				"question_id", qid,
			)
		} else {
			c.record(journal.EventUploadSucceeded, &qid, fmt.Sprintf("%d bytes", len(sub.clip)))
		}

		if !proceed {
			// Keep the clip so the candidate can resubmit
			c.progress.Store(0)
			c.setStage(models.StageRecording)
			return fmt.Errorf("%w: question %d: %v", ErrUpload, qid, uploadErr)
		}

		c.chunks.reset()
		c.progress.Store(0)

		if sub.last {
			if completeErr != nil {
				c.record(journal.EventCompletionFailed, nil, completeErr.Error())
				slog.Error("failed to send completion signal",
					"error", completeErr,
					"session_id", c.id,
					"token", journal.MaskToken(c.token),
				)
			} else {
				c.record(journal.EventCompletionSent, nil, "")
			}
			c.setStage(models.StageComplete)
			c.opts.Metrics.IncrementSessionsCompleted()
			c.releaseStream()
			return nil
		}

		c.index++
		c.remaining = c.def.Questions[c.index].TimeLimitSeconds
		c.setStage(models.StageRecording)
		return nil
	})
}

func (c *Controller) upload(sub submission) error {
	attempt := 0
	return c.opts.Policy.retry(c.ctx, func() error {
		attempt++
		ctx, cancel := context.WithTimeout(c.ctx, c.opts.UploadTimeout)
		defer cancel()

		body := newProgressReader(sub.clip, &c.progress)
		err := c.uploader.UploadClip(ctx, c.token, sub.question.ID, body, int64(len(sub.clip)))
		if err != nil {
			slog.Warn("clip upload attempt failed",
				"error", err,
				"attempt", attempt,
				"session_id", c.id,
				"question_id", sub.question.ID,
			)
			return err
		}
		c.progress.Store(100)
		return nil
	})
}

func (c *Controller) complete() error {
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.CompleteTimeout)
	defer cancel()

	if err := c.uploader.CompleteInterview(ctx, c.token); err != nil {
		return fmt.Errorf("%w: %v", ErrCompletionSignal, err)
	}
	return nil
}

// Snapshot returns the latest view of the session
func (c *Controller) Snapshot() models.Snapshot {
	snap := *c.snapshot.Load()
	if snap.Stage == models.StageUploading {
		snap.UploadProgress = int(c.progress.Load())
	}
	return snap
}

// Subscribe delivers a snapshot after every state change until ctx is done or the session closes.
// Slow subscribers miss intermediate snapshots.
func (c *Controller) Subscribe(ctx context.Context) (<-chan models.Snapshot, error) {
	ch := make(chan models.Snapshot, 16)
	var id int

	err := c.do(ctx, func() error {
		id = c.nextSub
		c.nextSub++
		c.subs[id] = ch
		ch <- c.Snapshot()
		return nil
	})
	if err != nil {
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			c.do(context.Background(), func() error {
				if sub, ok := c.subs[id]; ok {
					close(sub)
					delete(c.subs, id)
				}
				return nil
			})
		case <-c.exited:
		}
	}()

	return ch, nil
}

// Close tears the session down: recording stops, the countdown is cancelled and
// every track of the stream is stopped. Safe to call more than once and from any goroutine.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.done)
	})
	<-c.exited
	return nil
}

// Done is closed once the session loop has exited
func (c *Controller) Done() <-chan struct{} {
	return c.exited
}

func (c *Controller) teardown() {
	if c.recording {
		c.stopTicker()
		if c.recorder != nil {
			if err := c.recorder.Stop(); err != nil {
				slog.Warn("failed to stop recorder on teardown", "error", err, "session_id", c.id)
			}
			c.recorder = nil
		}
		c.recording = false
	}
	c.stopTicker()
	c.releaseStream()
	c.chunks.reset()

	c.opts.Metrics.IncrementSessionsTornDown()
	c.record(journal.EventTornDown, nil, "")
}

// releaseStream stops every track exactly once per session
func (c *Controller) releaseStream() {
	if c.released {
		return
	}
	if c.stream == nil {
		return
	}
	c.stream.Stop()
	c.stream = nil
	c.released = true
	c.cameraReady = false
}

func (c *Controller) fail(cause error) {
	c.stopTicker()
	if c.recorder != nil {
		if err := c.recorder.Stop(); err != nil {
			slog.Warn("failed to stop recorder on failure", "error", err, "session_id", c.id)
		}
		c.recorder = nil
	}
	c.recording = false
	c.errMsg = cause.Error()
	c.setStage(models.StageError)
	c.opts.Metrics.IncrementSessionsFailed()
	c.releaseStream()
}

func (c *Controller) setStage(stage models.Stage) {
	if c.stage == stage {
		return
	}
	from := c.stage
	c.stage = stage

	slog.Info("session stage changed",
		"session_id", c.id,
		"from", string(from),
		"to", string(stage),
	)
	c.record(journal.EventStageChanged, nil, fmt.Sprintf("%s -> %s", from, stage))
}

func (c *Controller) record(typ journal.EventType, questionID *int, msg string) {
	e := journal.NewEvent(c.id, c.token, typ, string(c.stage)).WithMessage(msg)
	if questionID != nil {
		e = e.WithQuestion(*questionID)
	}
	if err := c.opts.Sink.Record(context.Background(), e); err != nil {
		slog.Warn("failed to record session event", "error", err, "type", string(typ), "session_id", c.id)
	}
}

// publish stores a fresh snapshot and fans it out to subscribers
func (c *Controller) publish() {
	snap := models.Snapshot{
		SessionID:        c.id,
		Stage:            c.stage,
		QuestionIndex:    c.index,
		TimeRemaining:    c.remaining,
		Recording:        c.recording,
		CameraReady:      c.cameraReady,
		CapturedChunks:   c.chunks.len(),
		UploadProgress:   int(c.progress.Load()),
		UploadsAttempted: c.uploadsTried,
		UploadsFailed:    c.uploadsFailed,
		AutoStops:        c.autoStops,
		Error:            c.errMsg,
		UpdatedAt:        c.opts.Clock.Now(),
	}
	if c.def != nil {
		snap.CandidateName = c.def.CandidateName
		snap.JobTitle = c.def.JobTitle
		snap.CompanyName = c.def.CompanyName
		snap.TotalQuestions = len(c.def.Questions)
		if c.stage == models.StageRecording || c.stage == models.StageUploading {
			q := c.def.Questions[c.index]
			snap.QuestionID = q.ID
			snap.Prompt = q.Prompt
		}
	}
	c.snapshot.Store(&snap)

	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
