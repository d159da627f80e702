// Package engine drives QA-pair generation across the (page x difficulty)
// iteration space, checkpointing after every unit so an interrupted run
// resumes without repeating or skipping work.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lamim/corpusforge/internal/dedupe"
	"github.com/lamim/corpusforge/internal/metrics"
	"github.com/lamim/corpusforge/pkg/models"
)

// CandidateGenerator produces raw QA candidates for one page of content at
// one difficulty level. Entries missing fields are the caller's problem to
// filter; the generator only fails on transport or decode-level errors.
type CandidateGenerator interface {
	GenerateCandidates(ctx context.Context, content string, difficultyLevel int, avoidQuestions []string) ([]models.CandidatePair, error)
}

// CheckpointSink persists generation state between units of work.
type CheckpointSink interface {
	Save(state *models.GenerationState) error
}

// ProgressFunc receives the running pair total and the difficulty level in
// flight. It is called immediately before and after each generation call.
type ProgressFunc func(producedCount, currentDifficulty int)

// RunRequest describes one document's generation run.
type RunRequest struct {
	Pages              []models.Page
	DocumentKey        string
	SourceContentPath  string
	MaxDifficultyLevel int

	// Resume is a validated checkpoint to continue from, or nil for a
	// fresh run.
	Resume *models.GenerationState

	// OnProgress may be nil.
	OnProgress ProgressFunc

	// Sink may be nil, in which case the run is not resumable.
	Sink CheckpointSink
}

// Engine iterates pages in order and difficulties 1..max within each page,
// invoking the generation capability once per unit. It owns the in-memory
// working state for the duration of a run; the sink owns the durable copy.
type Engine struct {
	generator CandidateGenerator
	logger    *slog.Logger
}

func New(generator CandidateGenerator, logger *slog.Logger) *Engine {
	return &Engine{generator: generator, logger: logger}
}

// Run executes the generation loop and returns the full accumulated pair
// sequence. On any generation or checkpoint error the run aborts; the last
// successfully saved checkpoint stays on disk for later resumption.
//
// Page indices are 1-based positions within req.Pages. A resume cursor is
// honored exactly: pages before NextPageIndex are skipped, the resume page
// starts at NextDifficultyLevel, and every later page starts at 1.
func (e *Engine) Run(ctx context.Context, req RunRequest) ([]models.QAPair, error) {
	if req.MaxDifficultyLevel < 1 {
		return nil, fmt.Errorf("max difficulty level must be at least 1, got %d", req.MaxDifficultyLevel)
	}

	state := e.initState(req)
	seen := make(map[string]struct{}, len(state.SeenQuestions))
	for _, q := range state.SeenQuestions {
		seen[q] = struct{}{}
	}

	resumed := req.Resume != nil
	if resumed {
		e.logger.Info("Resuming generation",
			"document", state.DocumentKey,
			"next_page", state.NextPageIndex,
			"next_difficulty", state.NextDifficultyLevel,
			"accumulated_pairs", len(state.AccumulatedPairs))
	} else {
		e.logger.Info("Starting generation",
			"document", state.DocumentKey,
			"pages", len(req.Pages),
			"max_difficulty", req.MaxDifficultyLevel)
	}

	for idx := 1; idx <= len(req.Pages); idx++ {
		if idx < state.NextPageIndex {
			continue
		}
		page := req.Pages[idx-1]

		startDifficulty := 1
		if resumed && idx == req.Resume.NextPageIndex {
			startDifficulty = req.Resume.NextDifficultyLevel
		}

		for difficulty := startDifficulty; difficulty <= req.MaxDifficultyLevel; difficulty++ {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("generation interrupted at page %d difficulty %d: %w", page.PageNumber, difficulty, err)
			}

			if req.OnProgress != nil {
				req.OnProgress(len(state.AccumulatedPairs), difficulty)
			}

			unitStart := time.Now()
			candidates, err := e.generator.GenerateCandidates(ctx, page.Text, difficulty, append([]string(nil), state.SeenQuestions...))
			if err != nil {
				metrics.IncGenerationUnit(err)
				return nil, fmt.Errorf("generation failed at page %d difficulty %d: %w", page.PageNumber, difficulty, err)
			}

			accepted, incomplete := 0, 0
			for _, candidate := range candidates {
				if !candidate.Complete() {
					incomplete++
					continue
				}
				state.AccumulatedPairs = append(state.AccumulatedPairs, models.QAPair{
					Question:        candidate.Question,
					Answer:          candidate.Answer,
					Context:         candidate.Context,
					DifficultyLevel: difficulty,
					DocumentID:      page.DocumentID,
					PageNumber:      page.PageNumber,
				})
				key := dedupe.Key(candidate.Question)
				if _, dup := seen[key]; !dup {
					seen[key] = struct{}{}
					state.SeenQuestions = append(state.SeenQuestions, key)
				}
				accepted++
			}
			metrics.IncCandidates(accepted, incomplete)

			if req.OnProgress != nil {
				req.OnProgress(len(state.AccumulatedPairs), difficulty)
			}

			// Cursor moves to the unit that has NOT run yet, so a crash
			// after the save resumes exactly there.
			if difficulty < req.MaxDifficultyLevel {
				state.NextPageIndex = idx
				state.NextDifficultyLevel = difficulty + 1
			} else {
				state.NextPageIndex = idx + 1
				state.NextDifficultyLevel = 1
			}

			if req.Sink != nil {
				if err := req.Sink.Save(state); err != nil {
					return nil, fmt.Errorf("failed to checkpoint after page %d difficulty %d: %w", page.PageNumber, difficulty, err)
				}
			}

			metrics.IncGenerationUnit(nil)
			metrics.SetDocumentProgress(state.Progress())

			e.logger.Debug("Unit complete",
				"document", state.DocumentKey,
				"page", page.PageNumber,
				"difficulty", difficulty,
				"accepted", accepted,
				"incomplete", incomplete,
				"total_pairs", len(state.AccumulatedPairs),
				"duration_ms", time.Since(unitStart).Milliseconds())
		}
	}

	e.logger.Info("Generation complete",
		"document", state.DocumentKey,
		"pairs", len(state.AccumulatedPairs))
	return state.AccumulatedPairs, nil
}

// initState builds the working state: either a deep copy of the resume
// checkpoint (the caller's copy stays untouched) or a fresh cursor at
// page 1, difficulty 1.
func (e *Engine) initState(req RunRequest) *models.GenerationState {
	now := time.Now().UTC()
	if req.Resume == nil {
		return &models.GenerationState{
			DocumentKey:         req.DocumentKey,
			SourceContentPath:   req.SourceContentPath,
			MaxDifficultyLevel:  req.MaxDifficultyLevel,
			NextPageIndex:       1,
			NextDifficultyLevel: 1,
			TotalPages:          len(req.Pages),
			CreatedAt:           now,
			UpdatedAt:           now,
		}
	}

	state := *req.Resume
	state.TotalPages = len(req.Pages)
	state.AccumulatedPairs = append([]models.QAPair(nil), req.Resume.AccumulatedPairs...)
	state.SeenQuestions = append([]string(nil), req.Resume.SeenQuestions...)
	return &state
}
