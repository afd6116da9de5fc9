package capture

import (
	"bytes"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Recorder persists a live stream line by line while it is being parsed.
type Recorder struct {
	mu      sync.Mutex
	id      string
	file    *os.File
	pending []byte
	now     func() time.Time
	err     error
}

// NewCaptureID returns a sortable capture id.
func NewCaptureID(now time.Time) string {
	return now.UTC().Format("20060102T150405") + "-" + uuid.NewString()[:8]
}

// NewRecorder opens a capture for writing.
func (s *Store) NewRecorder(captureID string) (*Recorder, error) {
	file, err := s.openAppend(captureID)
	if err != nil {
		return nil, err
	}
	return &Recorder{id: captureID, file: file, now: time.Now}, nil
}

// ID returns the capture id.
func (r *Recorder) ID() string {
	return r.id
}

// Write implements io.Writer. Complete lines are persisted immediately;
// a trailing partial line waits for more data or Close. The first
// persistence error is kept and reported by Close so the tee never
// interrupts the live stream.
func (r *Recorder) Write(data []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, data...)
	for {
		idx := bytes.IndexByte(r.pending, '\n')
		if idx < 0 {
			break
		}
		r.persist(string(r.pending[:idx]), false)
		r.pending = r.pending[idx+1:]
	}
	return len(data), nil
}

// Tee returns a reader that copies everything read from source into the
// capture.
func (r *Recorder) Tee(source io.Reader) io.Reader {
	return io.TeeReader(source, r)
}

// Close persists any unterminated trailing line and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) > 0 {
		r.persist(string(r.pending), true)
		r.pending = nil
	}
	if err := r.file.Close(); err != nil && r.err == nil {
		r.err = err
	}
	return r.err
}

func (r *Recorder) persist(line string, partial bool) {
	if r.err != nil || (line == "" && !partial) {
		return
	}
	r.err = writeRecord(r.file, Record{Line: line, Partial: partial, At: r.now()})
}
