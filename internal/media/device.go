package media

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrPermissionDenied = errors.New("capture permission denied")
	ErrNoDevice         = errors.New("no capture device")
	ErrStreamStopped    = errors.New("stream is stopped")
	ErrAlreadyRecording = errors.New("recorder already started")
)

// MimeTypeWebM is the container produced by recorders
const MimeTypeWebM = "video/webm;codecs=vp9"

// TrackKind distinguishes audio and video tracks
type TrackKind string

const (
	KindAudio TrackKind = "audio"
	KindVideo TrackKind = "video"
)

// Constraints describes the requested capture stream
type Constraints struct {
	Width      int
	Height     int
	FacingMode string // "user" prefers the front-facing camera
	Audio      bool
}

// DefaultConstraints returns 1280x720 front-facing video with audio
func DefaultConstraints() Constraints {
	return Constraints{
		Width:      1280,
		Height:     720,
		FacingMode: "user",
		Audio:      true,
	}
}

// Device is the platform capture primitive
type Device interface {
	// Open acquires a combined audio+video stream.
	// Returns ErrPermissionDenied or ErrNoDevice when capture is not possible.
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is a live capture stream owned by exactly one session
type Stream interface {
	Tracks() []Track
	NewRecorder(mimeType string) (Recorder, error)
	// Stop stops every track. Safe to call more than once.
	Stop()
}

// Track is a single audio or video track of a stream
type Track interface {
	Kind() TrackKind
	Live() bool
	Stop()
}

// Recorder encodes a stream into binary chunks
type Recorder interface {
	// Start begins delivering chunks to onChunk. Empty chunks are never delivered.
	Start(onChunk func([]byte)) error
	// Stop ends capture. Remaining buffered data is delivered through onChunk before Stop returns.
	Stop() error
	Recording() bool
}

// LiveTracks counts tracks that have not been stopped
func LiveTracks(s Stream) int {
	if s == nil {
		return 0
	}
	n := 0
	for _, t := range s.Tracks() {
		if t.Live() {
			n++
		}
	}
	return n
}
