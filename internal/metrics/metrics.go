package metrics

import (
	"sync"
	"time"
)

// Metrics holds in-process counters for the recorder
type Metrics struct {
	mu                sync.RWMutex
	SessionsStarted   int64
	SessionsCompleted int64
	SessionsFailed    int64
	SessionsTornDown  int64
	RecordingsStarted int64
	AutoStops         int64
	UploadsAttempted  int64
	UploadsFailed     int64
	UploadBytes       int64
	CompletionsSent   int64
	CompletionsFailed int64
	LastUpdateTime    time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{
		LastUpdateTime: time.Now(),
	}
}

func (m *Metrics) update(fn func()) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fn()
	m.LastUpdateTime = time.Now()
}

func (m *Metrics) IncrementSessionsStarted() {
	m.update(func() { m.SessionsStarted++ })
}

func (m *Metrics) IncrementSessionsCompleted() {
	m.update(func() { m.SessionsCompleted++ })
}

func (m *Metrics) IncrementSessionsFailed() {
	m.update(func() { m.SessionsFailed++ })
}

func (m *Metrics) IncrementSessionsTornDown() {
	m.update(func() { m.SessionsTornDown++ })
}

func (m *Metrics) IncrementRecordingsStarted() {
	m.update(func() { m.RecordingsStarted++ })
}

func (m *Metrics) IncrementAutoStops() {
	m.update(func() { m.AutoStops++ })
}

func (m *Metrics) IncrementUpload(success bool, bytes int) {
	m.update(func() {
		m.UploadsAttempted++
		if success {
			m.UploadBytes += int64(bytes)
		} else {
			m.UploadsFailed++
		}
	})
}

func (m *Metrics) IncrementCompletion(success bool) {
	m.update(func() {
		if success {
			m.CompletionsSent++
		} else {
			m.CompletionsFailed++
		}
	})
}

// Snapshot is a copy of the counters without the lock
type Snapshot struct {
	SessionsStarted   int64     `json:"sessions_started"`
	SessionsCompleted int64     `json:"sessions_completed"`
	SessionsFailed    int64     `json:"sessions_failed"`
	SessionsTornDown  int64     `json:"sessions_torn_down"`
	RecordingsStarted int64     `json:"recordings_started"`
	AutoStops         int64     `json:"auto_stops"`
	UploadsAttempted  int64     `json:"uploads_attempted"`
	UploadsFailed     int64     `json:"uploads_failed"`
	UploadBytes       int64     `json:"upload_bytes"`
	CompletionsSent   int64     `json:"completions_sent"`
	CompletionsFailed int64     `json:"completions_failed"`
	LastUpdateTime    time.Time `json:"last_update_time"`
}

func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		SessionsStarted:   m.SessionsStarted,
		SessionsCompleted: m.SessionsCompleted,
		SessionsFailed:    m.SessionsFailed,
		SessionsTornDown:  m.SessionsTornDown,
		RecordingsStarted: m.RecordingsStarted,
		AutoStops:         m.AutoStops,
		UploadsAttempted:  m.UploadsAttempted,
		UploadsFailed:     m.UploadsFailed,
		UploadBytes:       m.UploadBytes,
		CompletionsSent:   m.CompletionsSent,
		CompletionsFailed: m.CompletionsFailed,
		LastUpdateTime:    m.LastUpdateTime,
	}
}
