// Package audit keeps a bounded history of merge attempts and their
// per-file resolution plans.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/joescharf/strand/internal/resolve"
)

// MaxRecords caps the audit log at the most recent merges.
const MaxRecords = 50

// Record is one merge attempt's audit entry.
type Record struct {
	SessionID string              `json:"session_id"`
	Branch    string              `json:"branch"`
	StartedAt time.Time           `json:"started_at"`
	MergedAt  time.Time           `json:"merged_at"`
	Plan      []resolve.PlanEntry `json:"plan,omitempty"`
	Resolved  []string            `json:"resolved,omitempty"`
}

// Log appends merge records. Injectable so tests can observe records
// without touching the filesystem.
type Log interface {
	Append(rec Record) error
}

// FileLog stores records as a JSON array, keeping the last MaxRecords.
type FileLog struct {
	Path string
}

// NewFileLog creates a log writing to path.
func NewFileLog(path string) *FileLog {
	return &FileLog{Path: path}
}

// Append adds a record, trimming the oldest beyond the cap.
func (f *FileLog) Append(rec Record) error {
	var records []Record
	if data, err := os.ReadFile(f.Path); err == nil {
		// A corrupt log starts over rather than blocking the merge.
		_ = json.Unmarshal(data, &records)
	}

	records = append(records, rec)
	if len(records) > MaxRecords {
		records = records[len(records)-MaxRecords:]
	}

	if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, data, 0644)
}

// Read returns the stored records, newest last.
func (f *FileLog) Read() ([]Record, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// NopLog discards all records.
type NopLog struct{}

func (NopLog) Append(Record) error { return nil }
