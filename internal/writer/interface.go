package writer

import "github.com/lamim/corpusforge/pkg/models"

// RecordWriter is the sink for training records. DatasetWriter is the file
// implementation; the pipeline and the standalone filter command both write
// through this interface.
type RecordWriter interface {
	WriteRecord(record models.TrainingRecord) error
	Close() error
}
