package writer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/lamim/corpusforge/pkg/models"
)

// DatasetWriter writes one document's training records as JSON Lines, one
// object per line with exactly the question/answer/context keys.
type DatasetWriter struct {
	file   *os.File
	path   string
	count  int
	logger *slog.Logger
}

// NewDatasetWriter creates (or truncates) the dataset file at path.
func NewDatasetWriter(path string, logger *slog.Logger) (*DatasetWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset file: %w", err)
	}

	logger.Info("Created dataset file", "path", path)

	return &DatasetWriter{
		file:   file,
		path:   path,
		logger: logger,
	}, nil
}

// WriteRecord appends a single record line.
func (dw *DatasetWriter) WriteRecord(record models.TrainingRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if _, err := dw.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	dw.count++
	return nil
}

// Count returns how many records have been written.
func (dw *DatasetWriter) Count() int {
	return dw.count
}

// Path returns the dataset file path.
func (dw *DatasetWriter) Path() string {
	return dw.path
}

// Close syncs and closes the dataset file.
func (dw *DatasetWriter) Close() error {
	if err := dw.file.Sync(); err != nil {
		dw.logger.Warn("Failed to sync dataset file", "error", err)
	}

	if err := dw.file.Close(); err != nil {
		return fmt.Errorf("failed to close dataset file: %w", err)
	}

	dw.logger.Debug("Closed dataset file", "path", dw.path, "records", dw.count)
	return nil
}
