package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/terra-clan/interview-recorder/internal/models"
)

// interviewResponse is the backend's wire shape for an interview link
type interviewResponse struct {
	Name      string `json:"name"`
	JobTitle  string `json:"job_title"`
	Company   string `json:"company"`
	Questions []struct {
		ID        int    `json:"id"`
		Question  string `json:"question"`
		TimeLimit int    `json:"time_limit"`
	} `json:"questions"`
}

// FetchInterview resolves an interview token. Unknown or expired tokens return ErrNotFound.
func (c *Client) FetchInterview(ctx context.Context, token string) (*models.InterviewDefinition, error) {
	path := fmt.Sprintf("/candidates/interview/%s", url.PathEscape(token))

	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}

	var raw interviewResponse
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	def := &models.InterviewDefinition{
		CandidateName: raw.Name,
		JobTitle:      raw.JobTitle,
		CompanyName:   raw.Company,
		Questions:     make([]models.Question, 0, len(raw.Questions)),
	}
	for _, q := range raw.Questions {
		def.Questions = append(def.Questions, models.Question{
			ID:               q.ID,
			Prompt:           q.Question,
			TimeLimitSeconds: q.TimeLimit,
		})
	}

	return def, nil
}

// UploadClip posts one recorded answer as multipart field "file".
// The clip is streamed, so it is read exactly once per call.
func (c *Client) UploadClip(ctx context.Context, token string, questionID int, clip io.Reader, size int64) error {
	path := fmt.Sprintf("/videos/upload/%s/%d", url.PathEscape(token), questionID)

	pr, pw := io.Pipe()
	defer pr.Close()

	mw := multipart.NewWriter(pw)

	go func() {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="file"; filename="question_%d.webm"`, questionID))
		header.Set("Content-Type", "video/webm")

		part, err := mw.CreatePart(header)
		if err == nil {
			_, err = io.Copy(part, clip)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, pr)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	if _, err := c.send(req); err != nil {
		return fmt.Errorf("upload question %d (%d bytes): %w", questionID, size, err)
	}

	return nil
}

// CompleteInterview marks the interview finished server-side
func (c *Client) CompleteInterview(ctx context.Context, token string) error {
	path := fmt.Sprintf("/videos/complete/%s", url.PathEscape(token))

	if _, err := c.doRequest(ctx, http.MethodPost, path, nil, ""); err != nil {
		return fmt.Errorf("complete interview: %w", err)
	}
	return nil
}

// Health checks if the backend answers
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/health", nil, "")
	return err
}
