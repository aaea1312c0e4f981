package fixtures

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidToken is returned for tokens that cannot name a directory
var ErrInvalidToken = errors.New("token is not usable as a spool directory")

// Spool accepts clips by writing them to disk, standing in for the upload service
type Spool struct {
	dir string
}

// NewSpool creates the spool directory if needed
func NewSpool(dir string) (*Spool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool dir %s: %w", dir, err)
	}
	return &Spool{dir: dir}, nil
}

func (s *Spool) tokenDir(token string) (string, error) {
	if token == "" || token == "." || token == ".." || strings.ContainsAny(token, `/\`) {
		return "", ErrInvalidToken
	}
	dir := filepath.Join(s.dir, token)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return dir, nil
}

// ClipPath returns where the clip of a question is stored
func (s *Spool) ClipPath(token string, questionID int) string {
	return filepath.Join(s.dir, token, fmt.Sprintf("question_%d.webm", questionID))
}

// UploadClip writes the clip atomically, replacing an earlier one for the same question
func (s *Spool) UploadClip(ctx context.Context, token string, questionID int, clip io.Reader, size int64) error {
	dir, err := s.tokenDir(token)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: clip})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write clip: %w", err)
	}

	dst := s.ClipPath(token, questionID)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to store clip: %w", err)
	}

	slog.Info("clip spooled", "path", dst, "bytes", n, "expected_bytes", size)
	return nil
}

// CompleteInterview writes a "complete" marker with the completion time
func (s *Spool) CompleteInterview(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.tokenDir(token)
	if err != nil {
		return err
	}

	marker := filepath.Join(dir, "complete")
	if err := os.WriteFile(marker, []byte(time.Now().UTC().Format(time.RFC3339)+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write completion marker: %w", err)
	}
	return nil
}

// ctxReader stops a copy once ctx is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
