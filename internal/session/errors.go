package session

import (
	"errors"
	"fmt"

	"github.com/terra-clan/interview-recorder/internal/models"
)

// Terminal errors move the session to the error stage
var (
	ErrInvalidToken     = errors.New("interview link is invalid or expired")
	ErrPermissionDenied = errors.New("unable to access camera, please allow camera permissions")
)

// Non-fatal errors are recorded and swallowed unless the upload policy requires success
var (
	ErrUpload           = errors.New("clip upload failed")
	ErrCompletionSignal = errors.New("completion signal failed")
)

// Precondition errors leave the session untouched
var (
	ErrInvalidTransition = errors.New("operation not valid in current stage")
	ErrNoChunks          = errors.New("nothing has been recorded for this question")
	ErrClosed            = errors.New("session is closed")
)

// TransitionError describes a rejected operation
type TransitionError struct {
	Op     string
	Stage  models.Stage
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: not valid in stage %s: %s", e.Op, e.Stage, e.Reason)
	}
	return fmt.Sprintf("%s: not valid in stage %s", e.Op, e.Stage)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

func invalid(op string, stage models.Stage, reason string) error {
	return &TransitionError{Op: op, Stage: stage, Reason: reason}
}

// IsTerminal reports whether err ends the session
func IsTerminal(err error) bool {
	return errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrPermissionDenied)
}
