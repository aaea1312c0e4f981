package models

import (
	"errors"
	"fmt"
	"time"
)

// Question is a single prompt the candidate answers with one clip
type Question struct {
	ID               int    `json:"id" yaml:"id"`
	Prompt           string `json:"prompt" yaml:"prompt"`
	TimeLimitSeconds int    `json:"time_limit_seconds" yaml:"time_limit"`
}

// TimeLimit returns the answer window as a duration
func (q Question) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitSeconds) * time.Second
}

// InterviewDefinition is resolved once per session from the interview token.
// Question order defines the recording sequence.
type InterviewDefinition struct {
	CandidateName string     `json:"candidate_name"`
	JobTitle      string     `json:"job_title"`
	CompanyName   string     `json:"company_name"`
	Questions     []Question `json:"questions"`
}

// ErrInvalidDefinition is returned by Validate
var ErrInvalidDefinition = errors.New("invalid interview definition")

// Validate checks the invariants the recording flow relies on
func (d *InterviewDefinition) Validate() error {
	if d == nil || len(d.Questions) == 0 {
		return fmt.Errorf("%w: no questions", ErrInvalidDefinition)
	}

	seen := make(map[int]struct{}, len(d.Questions))
	for i, q := range d.Questions {
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %d", ErrInvalidDefinition, q.ID)
		}
		seen[q.ID] = struct{}{}

		if q.TimeLimitSeconds <= 0 {
			return fmt.Errorf("%w: question %d (index %d) has non-positive time limit", ErrInvalidDefinition, q.ID, i)
		}
	}

	return nil
}

// TotalTime sums the time limits of all questions
func (d *InterviewDefinition) TotalTime() time.Duration {
	var total time.Duration
	for _, q := range d.Questions {
		total += q.TimeLimit()
	}
	return total
}
