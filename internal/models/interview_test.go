package models

import (
	"errors"
	"testing"
	"time"
)

func TestInterviewDefinitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		def     *InterviewDefinition
		wantErr bool
	}{
		{"nil", nil, true},
		{"no questions", &InterviewDefinition{}, true},
		{"duplicate ids", &InterviewDefinition{Questions: []Question{{ID: 1, TimeLimitSeconds: 10}, {ID: 1, TimeLimitSeconds: 20}}}, true},
		{"zero limit", &InterviewDefinition{Questions: []Question{{ID: 1, TimeLimitSeconds: 0}}}, true},
		{"negative limit", &InterviewDefinition{Questions: []Question{{ID: 1, TimeLimitSeconds: -5}}}, true},
		{"valid", &InterviewDefinition{Questions: []Question{{ID: 1, TimeLimitSeconds: 120}, {ID: 2, TimeLimitSeconds: 60}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidDefinition) {
				t.Errorf("expected ErrInvalidDefinition, got %v", err)
			}
		})
	}
}

func TestTotalTime(t *testing.T) {
	def := &InterviewDefinition{Questions: []Question{
		{ID: 1, TimeLimitSeconds: 120},
		{ID: 2, TimeLimitSeconds: 180},
		{ID: 3, TimeLimitSeconds: 60},
	}}
	if got := def.TotalTime(); got != 6*time.Minute {
		t.Errorf("TotalTime() = %v, want 6m", got)
	}
}

func TestStage(t *testing.T) {
	if !StageComplete.IsTerminal() || !StageError.IsTerminal() {
		t.Error("complete and error must be terminal")
	}
	if StageUploading.IsTerminal() {
		t.Error("uploading is not terminal")
	}
	if !StageRecording.HoldsStream() || StageWelcome.HoldsStream() {
		t.Error("unexpected HoldsStream result")
	}

	snap := Snapshot{QuestionIndex: 2, TotalQuestions: 3}
	if !snap.IsLastQuestion() {
		t.Error("index 2 of 3 is the last question")
	}
}
