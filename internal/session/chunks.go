package session

import (
	"bytes"
	"io"
	"sync"
	"sync/atomic"
)

// chunkBuffer collects recorder output for the current question.
// Recorders write from their own goroutines, including during Stop.
type chunkBuffer struct {
	mu     sync.Mutex
	chunks [][]byte
	size   int
}

func (b *chunkBuffer) add(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = append(b.chunks, chunk)
	b.size += len(chunk)
}

func (b *chunkBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// clip concatenates all chunks into one payload
func (b *chunkBuffer) clip() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]byte, 0, b.size)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return out
}

func (b *chunkBuffer) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = nil
	b.size = 0
}

// progressReader reports upload progress as a percentage
type progressReader struct {
	r        io.Reader
	total    int64
	sent     int64
	progress *atomic.Int32
}

func newProgressReader(clip []byte, progress *atomic.Int32) *progressReader {
	progress.Store(0)
	return &progressReader{
		r:        bytes.NewReader(clip),
		total:    int64(len(clip)),
		progress: progress,
	}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.sent += int64(n)
	if p.total > 0 {
		pct := int32(p.sent * 100 / p.total)
		// 100 is reserved for a confirmed upload
		if pct > 99 {
			pct = 99
		}
		p.progress.Store(pct)
	}
	return n, err
}
