// Package report persists the per-run error report.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"barsync/internal/domain"
)

// Header is the first row of every error report.
var Header = []string{"symbol", "message"}

// CSVWriter writes the error report as a CSV file, replacing the previous
// run's report.
type CSVWriter struct {
	Path string
}

// NewCSVWriter creates a CSVWriter for path.
func NewCSVWriter(path string) *CSVWriter {
	return &CSVWriter{Path: path}
}

// WriteErrors writes entries in order beneath the header. The file is
// replaced atomically.
func (w *CSVWriter) WriteErrors(_ context.Context, entries []domain.ErrorEntry) (err error) {
	dir := filepath.Dir(w.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(w.Path)+"-*")
	if err != nil {
		return fmt.Errorf("creating temp report: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	cw := csv.NewWriter(tmp)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write([]string{e.Symbol, e.Message}); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), w.Path); err != nil {
		return fmt.Errorf("renaming report: %w", err)
	}
	return nil
}

// ReadErrors loads a report written by CSVWriter.
func ReadErrors(path string) ([]domain.ErrorEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading report %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	entries := make([]domain.ErrorEntry, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) < 2 {
			continue
		}
		entries = append(entries, domain.ErrorEntry{Symbol: row[0], Message: row[1]})
	}
	return entries, nil
}
