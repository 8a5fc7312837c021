// Package notify records merge completions for other processes to
// observe. The default sink writes a JSON record at a well-known path;
// delivery is best-effort and failures are reported, not fatal.
package notify

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/gen2brain/beeep"
)

// MergeRecord is the most recent merge, published for polling by other
// sessions.
type MergeRecord struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Branch    string    `json:"branch"`
	Strategy  string    `json:"strategy"`
	Message   string    `json:"message"`
}

// Sink receives merge completion records. Injectable so tests can assert
// on what would have been written without touching the filesystem.
type Sink interface {
	MergeCompleted(rec MergeRecord) error
}

// FileSink writes the latest merge record to a JSON file, overwriting the
// previous one.
type FileSink struct {
	Path    string
	Desktop bool
}

// NewFileSink creates a sink writing to path. When desktop is set, a
// desktop notification accompanies each record.
func NewFileSink(path string, desktop bool) *FileSink {
	return &FileSink{Path: path, Desktop: desktop}
}

// MergeCompleted writes the record. The desktop ping is fire-and-forget.
func (f *FileSink) MergeCompleted(rec MergeRecord) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(f.Path, data, 0644); err != nil {
		return err
	}
	if f.Desktop {
		_ = beeep.Notify("strand", rec.Branch+" merged", "")
	}
	return nil
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) MergeCompleted(MergeRecord) error { return nil }
