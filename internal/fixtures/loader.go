package fixtures

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/interview-recorder/internal/models"
)

// ErrNotFound is returned for unknown or expired tokens
var ErrNotFound = errors.New("interview not found")

// interviewFile is the on-disk YAML shape of one interview link
type interviewFile struct {
	Token         string `yaml:"token"`
	CandidateName string `yaml:"candidate_name"`
	JobTitle      string `yaml:"job_title"`
	CompanyName   string `yaml:"company_name"`
	ExpiresAt     string `yaml:"expires_at"`
	Questions     []struct {
		ID        int    `yaml:"id"`
		Prompt    string `yaml:"prompt"`
		TimeLimit int    `yaml:"time_limit"`
	} `yaml:"questions"`
}

type entry struct {
	def       *models.InterviewDefinition
	expiresAt *time.Time
}

// Loader serves interview definitions from YAML files, for offline and demo use
type Loader struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

// NewLoader creates an empty loader
func NewLoader() *Loader {
	return &Loader{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// LoadFromDir loads every *.yaml / *.yml file in dir. Invalid files are skipped with a warning.
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading interview fixtures", "dir", dir)

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return fmt.Errorf("invalid fixtures dir %q: %w", dir, err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	loaded := 0
	for _, file := range files {
		if err := l.LoadFromFile(file); err != nil {
			slog.Warn("failed to load interview fixture", "file", file, "error", err)
			continue
		}
		loaded++
	}

	slog.Info("interview fixtures loaded", "count", loaded, "total_files", len(files))
	return nil
}

// LoadFromFile loads a single interview from a YAML file
func (l *Loader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var f interviewFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if f.Token == "" {
		return fmt.Errorf("token is required")
	}

	def := &models.InterviewDefinition{
		CandidateName: f.CandidateName,
		JobTitle:      f.JobTitle,
		CompanyName:   f.CompanyName,
	}
	for _, q := range f.Questions {
		def.Questions = append(def.Questions, models.Question{
			ID:               q.ID,
			Prompt:           q.Prompt,
			TimeLimitSeconds: q.TimeLimit,
		})
	}
	if err := def.Validate(); err != nil {
		return err
	}

	e := &entry{def: def}
	if f.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, f.ExpiresAt)
		if err != nil {
			return fmt.Errorf("invalid expires_at: %w", err)
		}
		e.expiresAt = &t
	}

	l.mu.Lock()
	l.entries[f.Token] = e
	l.mu.Unlock()

	slog.Info("interview fixture loaded", "file", filepath.Base(path), "questions", len(def.Questions))
	return nil
}

// Add programmatically registers an interview
func (l *Loader) Add(token string, def *models.InterviewDefinition, expiresAt *time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[token] = &entry{def: def, expiresAt: expiresAt}
}

// Tokens returns all loaded tokens, sorted
func (l *Loader) Tokens() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tokens := make([]string, 0, len(l.entries))
	for t := range l.entries {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	return tokens
}

// FetchInterview returns a copy of the definition for token
func (l *Loader) FetchInterview(ctx context.Context, token string) (*models.InterviewDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	e, ok := l.entries[token]
	l.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if e.expiresAt != nil && l.now().After(*e.expiresAt) {
		return nil, fmt.Errorf("%w: expired at %s", ErrNotFound, e.expiresAt.Format(time.RFC3339))
	}

	def := *e.def
	def.Questions = append([]models.Question(nil), e.def.Questions...)
	return &def, nil
}
