package models

import "time"

// Stage represents where a session is in the recording flow
type Stage string

const (
	StageWelcome     Stage = "welcome"      // Definition loaded, intro shown
	StageCameraSetup Stage = "camera_setup" // Waiting for camera/mic
	StageRecording   Stage = "recording"    // Answering the current question
	StageUploading   Stage = "uploading"    // Clip for the current question in flight
	StageComplete    Stage = "complete"     // All clips handled, stream released
	StageError       Stage = "error"        // Fatal, nothing left to do
)

// IsTerminal returns true if the stage is a final state
func (s Stage) IsTerminal() bool {
	return s == StageComplete || s == StageError
}

// HoldsStream returns true for stages during which the session may own a capture stream
func (s Stage) HoldsStream() bool {
	return s == StageCameraSetup || s == StageRecording || s == StageUploading
}

// Snapshot is a read-only view of a session for rendering
type Snapshot struct {
	SessionID        string    `json:"session_id,omitempty"`
	Stage            Stage     `json:"stage"`
	CandidateName    string    `json:"candidate_name,omitempty"`
	JobTitle         string    `json:"job_title,omitempty"`
	CompanyName      string    `json:"company_name,omitempty"`
	QuestionIndex    int       `json:"question_index"`
	TotalQuestions   int       `json:"total_questions"`
	QuestionID       int       `json:"question_id,omitempty"`
	Prompt           string    `json:"prompt,omitempty"`
	TimeRemaining    int       `json:"time_remaining_seconds"`
	Recording        bool      `json:"recording"`
	CameraReady      bool      `json:"camera_ready"`
	CapturedChunks   int       `json:"captured_chunks"`
	UploadProgress   int       `json:"upload_progress"`
	UploadsAttempted int       `json:"uploads_attempted"`
	UploadsFailed    int       `json:"uploads_failed"`
	AutoStops        int       `json:"auto_stops"`
	Error            string    `json:"error,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IsLastQuestion reports whether the current question is the final one
func (s Snapshot) IsLastQuestion() bool {
	return s.TotalQuestions > 0 && s.QuestionIndex == s.TotalQuestions-1
}
