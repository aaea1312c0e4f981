package session

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// UploadPolicy controls clip delivery.
// The zero value delivers each clip at most once and advances regardless of the outcome.
type UploadPolicy struct {
	// MaxAttempts is the number of upload calls per question (minimum 1)
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// RequireSuccess keeps the candidate on the question until its clip is accepted
	RequireSuccess bool
}

func (p UploadPolicy) withDefaults() UploadPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 500 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 10 * time.Second
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	return p
}

// retry runs op up to MaxAttempts times with exponential backoff between attempts.
// A cancelled ctx stops retrying immediately.
func (p UploadPolicy) retry(ctx context.Context, op func() error) error {
	if p.MaxAttempts <= 1 {
		return op()
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialBackoff
	exp.MaxInterval = p.MaxBackoff
	exp.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
