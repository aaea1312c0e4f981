package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// FFmpegConfig holds capture settings for the ffmpeg-backed device
type FFmpegConfig struct {
	Binary      string // ffmpeg executable, looked up in PATH when relative
	VideoDevice string // v4l2 node, e.g. /dev/video0
	AudioDevice string // ALSA device name; empty disables audio
	FrameRate   int
	ChunkSize   int
	StopTimeout time.Duration
}

// FFmpegDevice captures from local v4l2/ALSA devices through an ffmpeg subprocess
type FFmpegDevice struct {
	config FFmpegConfig
}

// NewFFmpegDevice creates a new ffmpeg-backed capture device
func NewFFmpegDevice(cfg FFmpegConfig) *FFmpegDevice {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.VideoDevice == "" {
		cfg.VideoDevice = "/dev/video0"
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 64 * 1024
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	return &FFmpegDevice{config: cfg}
}

// Open checks that the capture devices are present and readable.
// The device nodes are only held open by ffmpeg while a recorder runs.
func (d *FFmpegDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := exec.LookPath(d.config.Binary); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not available: %v", ErrNoDevice, err)
	}

	f, err := os.Open(d.config.VideoDevice)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("%w: %s", ErrNoDevice, d.config.VideoDevice)
		case errors.Is(err, os.ErrPermission):
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, d.config.VideoDevice)
		default:
			return nil, fmt.Errorf("failed to open video device: %w", err)
		}
	}
	f.Close()

	s := &ffmpegStream{
		config:      d.config,
		constraints: c,
		tracks:      []*captureTrack{newCaptureTrack(KindVideo)},
	}
	if c.Audio && d.config.AudioDevice != "" {
		s.tracks = append(s.tracks, newCaptureTrack(KindAudio))
	}

	slog.Info("capture stream opened",
		"video_device", d.config.VideoDevice,
		"audio_device", d.config.AudioDevice,
		"width", c.Width,
		"height", c.Height,
	)

	return s, nil
}

type captureTrack struct {
	kind TrackKind
	live atomic.Bool
}

func newCaptureTrack(kind TrackKind) *captureTrack {
	t := &captureTrack{kind: kind}
	t.live.Store(true)
	return t
}

func (t *captureTrack) Kind() TrackKind { return t.kind }
func (t *captureTrack) Live() bool      { return t.live.Load() }
func (t *captureTrack) Stop()           { t.live.Store(false) }

type ffmpegStream struct {
	config      FFmpegConfig
	constraints Constraints

	mu       sync.Mutex
	tracks   []*captureTrack
	recorder *ffmpegRecorder
	stopped  bool
}

func (s *ffmpegStream) Tracks() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

func (s *ffmpegStream) NewRecorder(mimeType string) (Recorder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrStreamStopped
	}
	if mimeType != MimeTypeWebM {
		return nil, fmt.Errorf("unsupported mime type: %s", mimeType)
	}

	r := &ffmpegRecorder{
		binary:      s.config.Binary,
		args:        buildCaptureArgs(s.config, s.constraints, len(s.tracks) > 1),
		chunkSize:   s.config.ChunkSize,
		stopTimeout: s.config.StopTimeout,
	}
	s.recorder = r
	return r, nil
}

func (s *ffmpegStream) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	rec := s.recorder
	s.recorder = nil
	tracks := s.tracks
	s.mu.Unlock()

	if rec != nil && rec.Recording() {
		if err := rec.Stop(); err != nil {
			slog.Warn("failed to stop recorder during stream stop", "error", err)
		}
	}
	for _, t := range tracks {
		t.Stop()
	}
	slog.Info("capture stream stopped", "video_device", s.config.VideoDevice)
}

// buildCaptureArgs builds the ffmpeg command line producing WebM on stdout.
// FacingMode has no v4l2 equivalent; the configured device node decides the camera.
func buildCaptureArgs(cfg FFmpegConfig, c Constraints, withAudio bool) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2",
		"-framerate", strconv.Itoa(cfg.FrameRate),
	}
	if c.Width > 0 && c.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", c.Width, c.Height))
	}
	args = append(args, "-i", cfg.VideoDevice)

	if withAudio {
		args = append(args, "-f", "alsa", "-i", cfg.AudioDevice)
	}

	args = append(args,
		"-c:v", "libvpx-vp9",
		"-deadline", "realtime",
		"-cpu-used", "8",
		"-b:v", "1M",
	)
	if withAudio {
		args = append(args, "-c:a", "libopus")
	} else {
		args = append(args, "-an")
	}

	return append(args, "-f", "webm", "pipe:1")
}

type ffmpegRecorder struct {
	binary      string
	args        []string
	chunkSize   int
	stopTimeout time.Duration

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	done    chan struct{}
	running bool
}

func (r *ffmpegRecorder) Start(onChunk func([]byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrAlreadyRecording
	}

	cmd := exec.Command(r.binary, r.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	r.cmd = cmd
	r.stdin = stdin
	r.done = make(chan struct{})
	r.running = true

	go r.pump(stdout, onChunk, r.done)

	slog.Debug("ffmpeg recorder started", "pid", cmd.Process.Pid)
	return nil
}

// pump reads encoder output until EOF
func (r *ffmpegRecorder) pump(stdout io.Reader, onChunk func([]byte), done chan struct{}) {
	defer close(done)

	buf := make([]byte, r.chunkSize)
	for {
		n, err := io.ReadFull(stdout, buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onChunk(chunk)
		}
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				slog.Debug("ffmpeg read error", "error", err)
			}
			return
		}
	}
}

func (r *ffmpegRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	r.running = false

	// "q" asks ffmpeg to finalize the container and exit
	if _, err := io.WriteString(r.stdin, "q"); err != nil {
		slog.Debug("failed to send quit to ffmpeg", "error", err)
	}
	r.stdin.Close()

	select {
	case <-r.done:
	case <-time.After(r.stopTimeout):
		slog.Warn("ffmpeg did not exit in time, killing", "timeout", r.stopTimeout)
		r.cmd.Process.Kill()
		<-r.done
	}

	if err := r.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return fmt.Errorf("ffmpeg wait failed: %w", err)
		}
		slog.Debug("ffmpeg exited with status", "code", exitErr.ExitCode())
	}

	return nil
}

func (r *ffmpegRecorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
