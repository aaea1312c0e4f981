package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/terra-clan/interview-recorder/pkg/auth"
)

// User is the authenticated hiring team member
type User struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Company string `json:"company,omitempty"`
	Role    string `json:"role,omitempty"`
}

// LoginResponse is returned by login and signup
type LoginResponse struct {
	Tokens auth.Tokens `json:"tokens"`
	User   User        `json:"user"`
}

// JobQuestion is an interview question attached to a job posting
type JobQuestion struct {
	ID        int    `json:"id"`
	Question  string `json:"question"`
	TimeLimit int    `json:"time_limit"`
}

// Job represents a job posting
type Job struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	RequiredSkills []string      `json:"required_skills"`
	Questions      []JobQuestion `json:"questions"`
	Status         string        `json:"status"`
	CreatedAt      string        `json:"created_at"`
}

// JobInput represents a job creation or update request
type JobInput struct {
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	RequiredSkills []string      `json:"required_skills"`
	Questions      []JobQuestion `json:"questions"`
	Status         string        `json:"status,omitempty"`
}

// Candidate is a person invited to a job's interview
type Candidate struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone,omitempty"`
	Status         string `json:"status"`
	JobID          string `json:"job_id"`
	JobTitle       string `json:"job_title,omitempty"`
	Notes          string `json:"notes,omitempty"`
	InterviewToken string `json:"interview_token"`
	CreatedAt      string `json:"created_at"`
}

// Interview is a recorded interview as listed for review
type Interview struct {
	ID              string `json:"id"`
	CandidateID     string `json:"candidate_id"`
	CandidateName   string `json:"candidate_name,omitempty"`
	CandidateEmail  string `json:"candidate_email,omitempty"`
	JobID           string `json:"job_id"`
	JobTitle        string `json:"job_title,omitempty"`
	Status          string `json:"status"`
	VideoURL        string `json:"video_url,omitempty"`
	Transcript      string `json:"transcript,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	CreatedAt       string `json:"created_at"`
	CompletedAt     string `json:"completed_at,omitempty"`
}

// CandidateInput represents a candidate creation or update request
type CandidateInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Login authenticates and stores the issued tokens in the attached session
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	req := map[string]string{"email": email, "password": password}

	var resp LoginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", req, &resp, false); err != nil {
		return nil, err
	}

	if err := c.storeLogin(ctx, resp.Tokens); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Signup registers a hiring team member and logs them in
func (c *Client) Signup(ctx context.Context, email, password, company, role string) (*LoginResponse, error) {
	req := map[string]string{
		"email":    email,
		"password": password,
		"company":  company,
		"role":     role,
	}

	var resp LoginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/signup", req, &resp, false); err != nil {
		return nil, err
	}

	if err := c.storeLogin(ctx, resp.Tokens); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) storeLogin(ctx context.Context, t auth.Tokens) error {
	if c.session == nil {
		return nil
	}
	return c.session.Login(ctx, t)
}

// Logout forgets the stored tokens
func (c *Client) Logout(ctx context.Context) error {
	if c.session == nil {
		return nil
	}
	return c.session.Logout(ctx)
}

// Me returns the authenticated user
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.doJSON(ctx, http.MethodGet, "/auth/me", nil, &u, true); err != nil {
		return nil, err
	}
	return &u, nil
}

// Refresh exchanges a refresh token for a new pair without touching the session
func (c *Client) Refresh(ctx context.Context, refreshToken string) (auth.Tokens, error) {
	return c.refreshTokens(ctx, refreshToken)
}

func (c *Client) refreshTokens(ctx context.Context, refreshToken string) (auth.Tokens, error) {
	req := map[string]string{"refresh_token": refreshToken}

	var t auth.Tokens
	if err := c.doJSON(ctx, http.MethodPost, "/auth/refresh", req, &t, false); err != nil {
		return auth.Tokens{}, err
	}
	if t.AccessToken == "" {
		return auth.Tokens{}, fmt.Errorf("refresh response without access token")
	}
	return t, nil
}

// ListJobs retrieves all job postings
func (c *Client) ListJobs(ctx context.Context) ([]Job, error) {
	var jobs []Job
	if err := c.doJSON(ctx, http.MethodGet, "/jobs", nil, &jobs, true); err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetJob retrieves a job posting by ID
func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := c.doJSON(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, &job, true); err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJob creates a job posting
func (c *Client) CreateJob(ctx context.Context, in JobInput) (*Job, error) {
	var job Job
	if err := c.doJSON(ctx, http.MethodPost, "/jobs", in, &job, true); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJob replaces a job posting
func (c *Client) UpdateJob(ctx context.Context, id string, in JobInput) (*Job, error) {
	var job Job
	if err := c.doJSON(ctx, http.MethodPut, "/jobs/"+url.PathEscape(id), in, &job, true); err != nil {
		return nil, err
	}
	return &job, nil
}

// DeleteJob removes a job posting
func (c *Client) DeleteJob(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/jobs/"+url.PathEscape(id), nil, nil, true)
}

// ListCandidates retrieves the candidates of a job
func (c *Client) ListCandidates(ctx context.Context, jobID string) ([]Candidate, error) {
	var candidates []Candidate
	if err := c.doJSON(ctx, http.MethodGet, "/candidates/job/"+url.PathEscape(jobID), nil, &candidates, true); err != nil {
		return nil, err
	}
	return candidates, nil
}

// CreateCandidate invites a candidate to a job's interview
func (c *Client) CreateCandidate(ctx context.Context, jobID string, in CandidateInput) (*Candidate, error) {
	var cand Candidate
	if err := c.doJSON(ctx, http.MethodPost, "/candidates/"+url.PathEscape(jobID), in, &cand, true); err != nil {
		return nil, err
	}
	return &cand, nil
}

// UpdateCandidate updates a candidate
func (c *Client) UpdateCandidate(ctx context.Context, candidateID string, in CandidateInput) (*Candidate, error) {
	var cand Candidate
	if err := c.doJSON(ctx, http.MethodPut, "/candidates/"+url.PathEscape(candidateID), in, &cand, true); err != nil {
		return nil, err
	}
	return &cand, nil
}

// DeleteCandidate removes a candidate
func (c *Client) DeleteCandidate(ctx context.Context, candidateID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/candidates/"+url.PathEscape(candidateID), nil, nil, true)
}

// GetCandidate retrieves a candidate by ID
func (c *Client) GetCandidate(ctx context.Context, candidateID string) (*Candidate, error) {
	var cand Candidate
	if err := c.doJSON(ctx, http.MethodGet, "/candidates/"+url.PathEscape(candidateID), nil, &cand, true); err != nil {
		return nil, err
	}
	return &cand, nil
}

// ListInterviews retrieves recorded interviews, only those of candidateID when it is not empty
func (c *Client) ListInterviews(ctx context.Context, candidateID string) ([]Interview, error) {
	path := "/interviews"
	if candidateID != "" {
		path += "?" + url.Values{"candidate_id": {candidateID}}.Encode()
	}

	var interviews []Interview
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &interviews, true); err != nil {
		return nil, err
	}
	return interviews, nil
}
