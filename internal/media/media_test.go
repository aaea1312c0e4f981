package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCaptureArgs(t *testing.T) {
	cfg := FFmpegConfig{VideoDevice: "/dev/video2", AudioDevice: "hw:1", FrameRate: 25}

	args := strings.Join(buildCaptureArgs(cfg, DefaultConstraints(), true), " ")
	assert.Contains(t, args, "-f v4l2 -framerate 25 -video_size 1280x720 -i /dev/video2")
	assert.Contains(t, args, "-f alsa -i hw:1")
	assert.Contains(t, args, "-c:v libvpx-vp9")
	assert.Contains(t, args, "-c:a libopus")
	assert.True(t, strings.HasSuffix(args, "-f webm pipe:1"))

	silent := strings.Join(buildCaptureArgs(cfg, Constraints{}, false), " ")
	assert.NotContains(t, silent, "alsa")
	assert.NotContains(t, silent, "-video_size")
	assert.Contains(t, silent, "-an")
}

func TestFFmpegDeviceMissingNode(t *testing.T) {
	d := NewFFmpegDevice(FFmpegConfig{
		Binary:      "sh",
		VideoDevice: filepath.Join(t.TempDir(), "video9"),
	})

	_, err := d.Open(context.Background(), DefaultConstraints())
	require.ErrorIs(t, err, ErrNoDevice)
}

func TestFFmpegDeviceMissingBinary(t *testing.T) {
	d := NewFFmpegDevice(FFmpegConfig{Binary: "definitely-not-ffmpeg-" + t.Name()})

	_, err := d.Open(context.Background(), DefaultConstraints())
	require.ErrorIs(t, err, ErrNoDevice)
}

func TestFFmpegStreamStop(t *testing.T) {
	node := filepath.Join(t.TempDir(), "video0")
	require.NoError(t, os.WriteFile(node, nil, 0o644))

	d := NewFFmpegDevice(FFmpegConfig{Binary: "sh", VideoDevice: node, AudioDevice: "default"})
	s, err := d.Open(context.Background(), DefaultConstraints())
	require.NoError(t, err)
	assert.Equal(t, 2, LiveTracks(s))

	_, err = s.NewRecorder("video/mp4")
	require.Error(t, err)

	s.Stop()
	s.Stop()
	assert.Equal(t, 0, LiveTracks(s))

	_, err = s.NewRecorder(MimeTypeWebM)
	require.ErrorIs(t, err, ErrStreamStopped)
}

type chunkSink struct {
	mu     sync.Mutex
	chunks [][]byte
}

func (c *chunkSink) add(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, b)
}

func (c *chunkSink) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chunks)
}

func TestSyntheticRecorderFlushesOnStop(t *testing.T) {
	d := NewSyntheticDevice(0)
	s, err := d.Open(context.Background(), DefaultConstraints())
	require.NoError(t, err)

	rec, err := s.NewRecorder(MimeTypeWebM)
	require.NoError(t, err)

	sink := &chunkSink{}
	require.NoError(t, rec.Start(sink.add))
	assert.True(t, rec.Recording())
	require.ErrorIs(t, rec.Start(sink.add), ErrAlreadyRecording)

	require.NoError(t, rec.Stop())
	assert.False(t, rec.Recording())
	assert.Equal(t, 2, sink.len())

	// Stopping twice does not flush again
	require.NoError(t, rec.Stop())
	assert.Equal(t, 2, sink.len())
}

func TestSyntheticRecorderInterval(t *testing.T) {
	d := NewSyntheticDevice(time.Millisecond)
	s, err := d.Open(context.Background(), DefaultConstraints())
	require.NoError(t, err)

	rec, err := s.NewRecorder(MimeTypeWebM)
	require.NoError(t, err)

	sink := &chunkSink{}
	require.NoError(t, rec.Start(sink.add))
	require.Eventually(t, func() bool { return sink.len() >= 4 }, time.Second, time.Millisecond)
	require.NoError(t, rec.Stop())

	n := sink.len()
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, n, sink.len(), "no chunks after stop")
}

func TestSyntheticStreamStopReleasesTracks(t *testing.T) {
	d := NewSyntheticDevice(0)
	s, err := d.Open(context.Background(), Constraints{Audio: false})
	require.NoError(t, err)
	assert.Equal(t, 1, LiveTracks(s))

	rec, err := s.NewRecorder(MimeTypeWebM)
	require.NoError(t, err)
	sink := &chunkSink{}
	require.NoError(t, rec.Start(sink.add))

	stream := d.Streams()[0]
	stream.Stop()
	stream.Stop()

	assert.False(t, rec.Recording())
	assert.Equal(t, 0, LiveTracks(s))
	assert.Equal(t, 2, stream.StopCalls())
}

func TestSyntheticDeviceDenied(t *testing.T) {
	d := &SyntheticDevice{Err: ErrPermissionDenied}
	_, err := d.Open(context.Background(), DefaultConstraints())
	assert.True(t, errors.Is(err, ErrPermissionDenied))
	assert.Empty(t, d.Streams())
}
