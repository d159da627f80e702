// Package checkpoint persists resumable generation state, one JSON file per
// document under the progress directory.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lamim/corpusforge/pkg/models"
)

// ProgressSuffix is appended to the document key to form the checkpoint
// filename.
const ProgressSuffix = "_qa_progress.json"

// Store owns the durable representation of generation state. Writes are
// synchronous: the engine must not advance past a unit of work whose
// checkpoint is not safely on disk, and a save failure has to surface
// immediately rather than from a background writer after more work ran.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a checkpoint store rooted at dir, creating the directory
// if needed.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create progress directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Path returns the checkpoint file path for a document key.
func (s *Store) Path(documentKey string) string {
	return filepath.Join(s.dir, documentKey+ProgressSuffix)
}

// Save overwrites the checkpoint for the state's document key, refreshing
// UpdatedAt. The write is atomic: marshal, write a temp file, rename over
// the final path, so a crash mid-write can never leave a file that parses
// as valid-but-wrong. Save errors propagate; silently losing checkpoint
// durability would defeat resumability.
func (s *Store) Save(state *models.GenerationState) error {
	if state.DocumentKey == "" {
		return fmt.Errorf("checkpoint state has no document key")
	}

	state.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	path := s.Path(state.DocumentKey)
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp checkpoint: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename checkpoint: %w", err)
	}

	s.logger.Debug("Checkpoint saved",
		"document", state.DocumentKey,
		"next_page", state.NextPageIndex,
		"next_difficulty", state.NextDifficultyLevel,
		"pairs", len(state.AccumulatedPairs))
	return nil
}

// Load reads the checkpoint for a document key. Absent, unreadable, and
// corrupted checkpoints all report (nil, false); a checkpoint that cannot be
// parsed is worth a warning but never an error, the run simply starts fresh.
func (s *Store) Load(documentKey string) (*models.GenerationState, bool) {
	path := s.Path(documentKey)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read checkpoint, treating as absent",
				"document", documentKey, "error", err)
		}
		return nil, false
	}

	var state models.GenerationState
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("Corrupted checkpoint, treating as absent",
			"document", documentKey, "path", path, "error", err)
		return nil, false
	}

	s.logger.Info("Checkpoint loaded",
		"document", state.DocumentKey,
		"next_page", state.NextPageIndex,
		"next_difficulty", state.NextDifficultyLevel,
		"pairs", len(state.AccumulatedPairs),
		"updated_at", state.UpdatedAt)

	return &state, true
}

// Delete removes the checkpoint for a document key. Deleting an absent
// checkpoint is not an error.
func (s *Store) Delete(documentKey string) error {
	err := os.Remove(s.Path(documentKey))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	if err == nil {
		s.logger.Debug("Checkpoint deleted", "document", documentKey)
	}
	return nil
}

// List returns every readable checkpoint in the progress directory, sorted
// by document key. Corrupted files are skipped with a warning, same as Load.
func (s *Store) List() []*models.GenerationState {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("Failed to read progress directory", "dir", s.dir, "error", err)
		return nil
	}

	var states []*models.GenerationState
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ProgressSuffix) {
			continue
		}
		key := strings.TrimSuffix(name, ProgressSuffix)
		if state, ok := s.Load(key); ok {
			states = append(states, state)
		}
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].DocumentKey < states[j].DocumentKey
	})
	return states
}
