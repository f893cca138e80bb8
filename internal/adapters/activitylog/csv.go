package activitylog

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/EdinaDepner/CadenceCoach/internal/domain/model"
)

// CSVWriter appends rows to one CSV file per session, flushing every row.
type CSVWriter struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	w      *csv.Writer
	closed bool
}

// FileName returns the CSV file name used for a session.
func FileName(s model.Session) string {
	return fmt.Sprintf("%d_%s.csv", s.ParticipantID, s.ID)
}

// NewCSVWriter creates dir if needed and opens the session file in append
// mode. The header is written only when the file is new.
func NewCSVWriter(dir string, s model.Session) (*CSVWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create log dir: %w", ErrWriteFailed, err)
	}
	path := filepath.Join(dir, FileName(s))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrWriteFailed, path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: stat %s: %w", ErrWriteFailed, path, err)
	}

	cw := &CSVWriter{path: path, file: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := cw.writeRow(model.Header); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return cw, nil
}

// CSVFactory opens CSV writers under dir.
func CSVFactory(dir string) Factory {
	return func(_ context.Context, s model.Session) (Writer, error) {
		return NewCSVWriter(dir, s)
	}
}

// Path returns the file being written.
func (c *CSVWriter) Path() string { return c.path }

// Append writes one row and flushes it to the file.
func (c *CSVWriter) Append(_ context.Context, r model.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.writeRow(r.Values())
}

func (c *CSVWriter) writeRow(row []string) error {
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

// Close flushes and closes the file.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.w.Flush()
	if err := c.file.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrWriteFailed, c.path, err)
	}
	return nil
}
