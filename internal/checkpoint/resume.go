package checkpoint

import (
	"fmt"
	"os"

	"github.com/lamim/corpusforge/pkg/models"
)

// Validate verifies a loaded checkpoint is resumable against the current run.
// A nil return means the checkpoint may be resumed; otherwise the error names
// the first mismatch. A stale checkpoint is never an abort condition, the
// caller discards it and starts fresh.
func Validate(state *models.GenerationState, contentPath string, maxDifficulty int) error {
	if state == nil {
		return fmt.Errorf("no checkpoint state")
	}

	if state.SourceContentPath != contentPath {
		return fmt.Errorf("checkpoint source mismatch: saved for %q, current is %q",
			state.SourceContentPath, contentPath)
	}

	if state.MaxDifficultyLevel != maxDifficulty {
		return fmt.Errorf("checkpoint difficulty mismatch: saved with max level %d, current run requests %d",
			state.MaxDifficultyLevel, maxDifficulty)
	}

	if _, err := os.Stat(contentPath); err != nil {
		return fmt.Errorf("checkpoint source content no longer readable: %w", err)
	}

	return nil
}
