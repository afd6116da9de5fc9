package capture

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// lineRecordType marks a captured wire line.
const lineRecordType = "stream_line"

// maxRecordSize bounds one JSONL record when loading.
const maxRecordSize = 10 * 1024 * 1024

// ErrCaptureID reports a missing or unsafe capture id.
var ErrCaptureID = errors.New("invalid capture id")

// Record is one captured wire line.
type Record struct {
	// Type tags the record so loaders can skip anything else.
	Type string `json:"type"`
	// Line is the raw wire line without its newline.
	Line string `json:"line"`
	// Partial marks a trailing line the stream never terminated.
	Partial bool `json:"partial,omitempty"`
	// At records when the line completed.
	At time.Time `json:"at"`
}

// Info summarizes one capture file.
type Info struct {
	// ID is the capture id.
	ID string
	// ModTime is the last write time.
	ModTime time.Time
	// Size is the file size in bytes.
	Size int64
}

// Store manages raw stream captures under ~/.agentconsole/captures.
type Store struct {
	// BaseDir is the root for all persisted data.
	BaseDir string
}

// NewStore constructs a Store using the default base directory.
func NewStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home dir: %w", err)
	}
	return &Store{BaseDir: filepath.Join(home, ".agentconsole")}, nil
}

// Path returns the JSONL path for a capture.
func (s *Store) Path(captureID string) string {
	return filepath.Join(s.BaseDir, "captures", captureID+".jsonl")
}

// Append writes one record to a capture.
func (s *Store) Append(captureID string, record Record) error {
	file, err := s.openAppend(captureID)
	if err != nil {
		return err
	}
	defer file.Close()
	return writeRecord(file, record)
}

func (s *Store) openAppend(captureID string) (*os.File, error) {
	if err := validateID(captureID); err != nil {
		return nil, err
	}
	path := s.Path(captureID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create capture dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	return file, nil
}

func writeRecord(writer io.Writer, record Record) error {
	if record.Type == "" {
		record.Type = lineRecordType
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal capture record: %w", err)
	}
	if _, err := writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write capture record: %w", err)
	}
	return nil
}

// Load reads the records of a capture id, or of a capture file path when
// captureID names an existing file.
func (s *Store) Load(captureID string) ([]Record, error) {
	path := captureID
	if info, err := os.Stat(captureID); err != nil || info.IsDir() {
		if err := validateID(captureID); err != nil {
			return nil, err
		}
		path = s.Path(captureID)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadRecords(file)
}

// ReadRecords decodes captured records, skipping malformed or foreign
// entries so a partially written capture still replays.
func ReadRecords(reader io.Reader) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record Record
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			continue
		}
		if record.Type != lineRecordType {
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read capture file: %w", err)
	}
	return records, nil
}

// List returns captures sorted by modification time, newest first.
func (s *Store) List(limit int) ([]Info, error) {
	entries, err := os.ReadDir(filepath.Join(s.BaseDir, "captures"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var list []Info
	for _, item := range entries {
		if item.IsDir() || filepath.Ext(item.Name()) != ".jsonl" {
			continue
		}
		info, err := item.Info()
		if err != nil {
			continue
		}
		list = append(list, Info{
			ID:      strings.TrimSuffix(item.Name(), ".jsonl"),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].ModTime.After(list[j].ModTime)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Reader rebuilds the captured byte stream. Partial records are emitted
// without a newline, exactly as they arrived.
func Reader(records []Record) io.Reader {
	var builder strings.Builder
	for _, record := range records {
		builder.WriteString(record.Line)
		if !record.Partial {
			builder.WriteByte('\n')
		}
	}
	return strings.NewReader(builder.String())
}

func validateID(captureID string) error {
	if captureID == "" || strings.ContainsAny(captureID, `/\`) || strings.Contains(captureID, "..") {
		return fmt.Errorf("%w: %q", ErrCaptureID, captureID)
	}
	return nil
}
