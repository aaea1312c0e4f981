package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "***", MaskToken("short"))
	assert.Equal(t, "abcdefgh...", MaskToken("abcdefghijklmnop"))

	e := NewEvent("s1", "abcdefghijklmnop", EventStageChanged, "welcome")
	assert.Equal(t, "abcdefgh...", e.Token, "events never carry the raw token")
	assert.NotEqual(t, uuid.Nil, e.ID)
}

func TestPostgresSinkRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sink := NewPostgresSink(db)
	e := NewEvent("sess-1", "tok-0123456789", EventUploadFailed, "uploading").
		WithQuestion(3).
		WithMessage("backend returned 502")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO session_events")).
		WithArgs(e.ID.String(), "sess-1", "tok-0123...", "upload_failed", int64(3), "uploading", "backend returned 502", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, sink.Record(context.Background(), e))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSinkRecordError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO session_events")).
		WillReturnError(errors.New("connection refused"))

	err = NewPostgresSink(db).Record(context.Background(), NewEvent("s", "t", EventTornDown, "recording"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestPostgresSinkListSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id1, id2 := uuid.New(), uuid.New()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "session_id", "token", "type", "question_id", "stage", "message", "created_at"}).
		AddRow(id1.String(), "sess-1", "tok-0123...", "stage_changed", nil, "recording", "welcome -> recording", at).
		AddRow(id2.String(), "sess-1", "tok-0123...", "upload_succeeded", int64(4), "uploading", nil, at.Add(time.Second))

	mock.ExpectQuery(regexp.QuoteMeta("FROM session_events")).
		WithArgs("sess-1", 50).
		WillReturnRows(rows)

	events, err := NewPostgresSink(db).ListSession(context.Background(), "sess-1", 50)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, id1, events[0].ID)
	assert.Nil(t, events[0].QuestionID)
	assert.Equal(t, "welcome -> recording", events[0].Message)

	assert.Equal(t, EventUploadSucceeded, events[1].Type)
	require.NotNil(t, events[1].QuestionID)
	assert.Equal(t, 4, *events[1].QuestionID)
	assert.Empty(t, events[1].Message)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	sink := NewLogSink(logger)
	require.NoError(t, sink.Record(context.Background(),
		NewEvent("sess-1", "tok-0123456789", EventUploadFailed, "uploading").WithQuestion(2)))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "upload_failed", line["type"])
	assert.Equal(t, "tok-0123...", line["token"])
	assert.EqualValues(t, 2, line["question_id"])
}

type collectSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (c *collectSink) Record(ctx context.Context, e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return c.err
}

func (c *collectSink) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestMultiSink(t *testing.T) {
	ok := &collectSink{}
	broken := &collectSink{err: errors.New("disk full")}

	err := MultiSink{ok, broken}.Record(context.Background(), NewEvent("s", "t", EventTornDown, "complete"))
	require.Error(t, err)
	assert.Equal(t, 1, ok.len(), "a failing sink does not stop the others")
	assert.Equal(t, 1, broken.len())
}

func TestAsyncFlushesOnClose(t *testing.T) {
	inner := &collectSink{}
	async := NewAsync(inner, 16, time.Second)

	for i := 0; i < 10; i++ {
		require.NoError(t, async.Record(context.Background(), NewEvent("s", "t", EventStageChanged, "recording")))
	}
	require.NoError(t, async.Close())
	assert.Equal(t, 10, inner.len())
}

type blockingSink struct {
	release chan struct{}
}

func (b *blockingSink) Record(ctx context.Context, e Event) error {
	<-b.release
	return nil
}

func TestAsyncDropsWhenFull(t *testing.T) {
	inner := &blockingSink{release: make(chan struct{})}
	async := NewAsync(inner, 1, time.Second)

	var dropped bool
	for i := 0; i < 5; i++ {
		if err := async.Record(context.Background(), NewEvent("s", "t", EventStageChanged, "recording")); errors.Is(err, ErrBufferFull) {
			dropped = true
		}
	}
	assert.True(t, dropped)

	close(inner.release)
	require.NoError(t, async.Close())
}

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_b.sql":     {Data: []byte("SELECT 2;")},
		"001_a.sql":     {Data: []byte("SELECT 1;")},
		"notes.txt":     {Data: []byte("not a migration")},
		"004_dir.sql/x": {Data: []byte("nested")},
	}

	migrations, err := loadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, "001_a.sql", migrations[0].name)
	assert.Equal(t, "002_b.sql", migrations[1].name)
	assert.Equal(t, "SELECT 1;", migrations[0].sql)
	assert.Len(t, migrations[0].checksum, 64)
	assert.NotEqual(t, migrations[0].checksum, migrations[1].checksum)

	_, err = loadMigrations(os.DirFS(filepath.Join(t.TempDir(), "missing")))
	require.Error(t, err)
}

func TestPlanMigrations(t *testing.T) {
	migrations, err := loadMigrations(fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"002_b.sql": {Data: []byte("SELECT 2;")},
		"003_c.sql": {Data: []byte("SELECT 3;")},
	})
	require.NoError(t, err)

	pending, err := planMigrations(migrations, map[string]string{"002_b.sql": migrations[1].checksum})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "001_a.sql", pending[0].name)
	assert.Equal(t, "003_c.sql", pending[1].name)

	_, err = planMigrations(migrations, map[string]string{"001_a.sql": "edited"})
	assert.ErrorIs(t, err, ErrMigrationChanged)
}

func TestBundledMigrations(t *testing.T) {
	dir := filepath.Join("..", "..", "migrations")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Skip("migrations directory not found, skipping")
	}

	migrations, err := loadMigrations(os.DirFS(dir))
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Contains(t, migrations[0].sql, "session_events")
}
