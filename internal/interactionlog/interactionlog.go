// Package interactionlog appends question/answer interactions to a CSV file.
package interactionlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Header is the first row of every log file.
var Header = []string{
	"trace_id", "timestamp", "filename", "question", "answer",
	"sources", "document_type", "status", "error_message",
}

const (
	// TimestampLayout formats Record.Time.
	TimestampLayout = "2006-01-02 15:04:05"

	previewRunes    = 80
	sourceSeparator = " || "
)

// Record is one logged interaction.
type Record struct {
	TraceID      string
	Time         time.Time
	FileName     string
	Question     string
	Answer       string
	Sources      []string
	DocumentType string
	Status       string
	Error        string
}

// Writer appends records to a CSV file. It is safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	path string
}

// New returns a Writer for path. The file and its directory are created on
// the first Write.
func New(path string) *Writer {
	return &Writer{path: path}
}

// Path returns the log file location.
func (w *Writer) Path() string { return w.path }

// Write appends rec, writing Header first if the file does not exist yet.
func (w *Writer) Write(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	_, statErr := os.Stat(w.path)
	fresh := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open interaction log: %w", err)
	}
	cw := csv.NewWriter(f)
	if fresh {
		if err := cw.Write(Header); err != nil {
			f.Close()
			return err
		}
	}
	if err := cw.Write(rec.row()); err != nil {
		f.Close()
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (r Record) row() []string {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	status := r.Status
	if status == "" {
		status = "success"
	}
	return []string{
		r.TraceID,
		ts.Format(TimestampLayout),
		r.FileName,
		r.Question,
		r.Answer,
		SourcePreview(r.Sources),
		r.DocumentType,
		status,
		r.Error,
	}
}

// SourcePreview shortens each source to its first 80 runes with newlines
// replaced by spaces, and joins them with " || ".
func SourcePreview(sources []string) string {
	parts := make([]string, len(sources))
	for i, s := range sources {
		if rs := []rune(s); len(rs) > previewRunes {
			s = string(rs[:previewRunes])
		}
		parts[i] = strings.ReplaceAll(s, "\n", " ")
	}
	return strings.Join(parts, sourceSeparator)
}
