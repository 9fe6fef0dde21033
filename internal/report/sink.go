package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"firestige.xyz/sniffer/internal/traffic"
)

// Report is one rendered snapshot.
type Report struct {
	Header
	Protocols []ProtocolShare `json:"protocols"`
	Traffic   traffic.Snapshot `json:"traffic"`
	Text      string           `json:"-"`
}

// Sink receives every rendered report.
type Sink interface {
	Name() string
	Write(ctx context.Context, r Report) error
	Close() error
}

// FileSink rewrites a file with the latest report. Readers never see a
// partially written file.
type FileSink struct {
	path string
}

// NewFileSink creates the parent directory of path if needed.
func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("report path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	return &FileSink{path: path}, nil
}

// Name implements Sink.
func (s *FileSink) Name() string { return "file" }

// Write implements Sink using write-to-temp then rename.
func (s *FileSink) Write(_ context.Context, r Report) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp report: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.WriteString(tmp, r.Text); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp report: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod report: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename report: %w", err)
	}
	return nil
}

// Close implements Sink.
func (s *FileSink) Close() error { return nil }

// ConsoleSink prints every report to a writer, usually stdout.
type ConsoleSink struct {
	w io.Writer
}

// NewConsoleSink writes to w, or stdout when w is nil.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleSink{w: w}
}

// Name implements Sink.
func (s *ConsoleSink) Name() string { return "console" }

// Write implements Sink.
func (s *ConsoleSink) Write(_ context.Context, r Report) error {
	_, err := fmt.Fprintf(s.w, "%s\n", r.Text)
	return err
}

// Close implements Sink.
func (s *ConsoleSink) Close() error { return nil }
