// Package pipeline composes conversion, segmentation, generation,
// deduplication, quality filtering, and output writing into the full
// resumable run for one document, and the strictly sequential batch over
// many documents.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/lamim/corpusforge/internal/api"
	"github.com/lamim/corpusforge/internal/checkpoint"
	"github.com/lamim/corpusforge/internal/config"
	"github.com/lamim/corpusforge/internal/convert"
	"github.com/lamim/corpusforge/internal/dedupe"
	"github.com/lamim/corpusforge/internal/engine"
	"github.com/lamim/corpusforge/internal/metrics"
	"github.com/lamim/corpusforge/internal/quality"
	"github.com/lamim/corpusforge/internal/segment"
	"github.com/lamim/corpusforge/internal/util"
	"github.com/lamim/corpusforge/internal/writer"
	"github.com/lamim/corpusforge/pkg/models"
)

// Converter turns a source document into paginated markdown at outPath.
// convert.Converter is the production implementation.
type Converter interface {
	Convert(ctx context.Context, pdfPath, outPath string, onPage convert.ProgressFunc) (int, error)
}

// ConfirmResumeFunc decides whether a valid checkpoint should be resumed.
// Returning false discards it and starts the document fresh. The CLI wires
// an interactive prompt here; a nil func always resumes.
type ConfirmResumeFunc func(state *models.GenerationState) bool

// Pipeline runs the QA extraction for documents. All processing is
// single-writer sequential: one document at a time, one (page, difficulty)
// unit in flight, so the checkpoint protocol never sees concurrent access.
type Pipeline struct {
	cfg           *config.Config
	layout        *writer.Layout
	store         *checkpoint.Store
	converter     Converter
	engine        *engine.Engine
	quality       *quality.Filter
	confirmResume ConfirmResumeFunc
	logger        *slog.Logger
}

// New creates a pipeline. qualityFilter may be nil when quality filtering is
// disabled; confirmResume may be nil to always resume valid checkpoints.
func New(
	cfg *config.Config,
	layout *writer.Layout,
	store *checkpoint.Store,
	converter Converter,
	generator engine.CandidateGenerator,
	qualityFilter *quality.Filter,
	confirmResume ConfirmResumeFunc,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:           cfg,
		layout:        layout,
		store:         store,
		converter:     converter,
		engine:        engine.New(generator, logger),
		quality:       qualityFilter,
		confirmResume: confirmResume,
		logger:        logger,
	}
}

// Run processes documents strictly in order and collects one explicit result
// per document. A failed document never aborts the batch; cancellation stops
// before the next document starts, leaving the remaining ones untouched.
func (p *Pipeline) Run(ctx context.Context, docs []writer.InputDocument) (models.BatchSummary, []models.DocumentResult) {
	start := time.Now()
	summary := models.BatchSummary{}
	results := make([]models.DocumentResult, 0, len(docs))

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("Batch interrupted, remaining documents skipped",
				"processed", len(results), "remaining", len(docs)-len(results))
			break
		}

		result := p.ProcessDocument(ctx, doc)
		results = append(results, result)
		summary.Add(result)

		if result.Failed() {
			p.logger.Error("Document failed",
				"document", result.Document,
				"error", describeError(result.Err),
				"duration", result.Duration.Round(time.Second))
			continue
		}
		p.logger.Info("Document complete",
			"document", result.Document,
			"pairs", result.PairCount,
			"output", result.OutputPath,
			"duration", result.Duration.Round(time.Second))
	}

	summary.Duration = time.Since(start)
	p.logger.Info("Batch complete",
		"documents", summary.Documents,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"total_pairs", summary.TotalPairs,
		"duration", summary.Duration.Round(time.Second))
	return summary, results
}

// ProcessDocument runs the full pipeline for one document: convert (or reuse
// markdown), segment, resolve checkpoint, generate, deduplicate, optionally
// quality-filter, write the dataset, delete the checkpoint. Any failure
// leaves the last saved checkpoint on disk for later resumption.
func (p *Pipeline) ProcessDocument(ctx context.Context, doc writer.InputDocument) models.DocumentResult {
	start := time.Now()
	key := util.DocumentKey(doc.Path)

	count, outputPath, err := p.processDocument(ctx, doc, key)
	return models.DocumentResult{
		Document:   key,
		PairCount:  count,
		OutputPath: outputPath,
		Err:        err,
		Duration:   time.Since(start),
	}
}

func (p *Pipeline) processDocument(ctx context.Context, doc writer.InputDocument, key string) (int, string, error) {
	if !doc.Convertible {
		return 0, "", fmt.Errorf("unsupported format for conversion: %s", doc.Path)
	}

	mdPath, err := p.ensureMarkdown(ctx, doc.Path, key)
	if err != nil {
		return 0, "", err
	}

	content, err := os.ReadFile(mdPath)
	if err != nil {
		return 0, "", fmt.Errorf("failed to read markdown: %w", err)
	}

	pages := segment.Split(string(content), key)
	if len(pages) == 0 {
		return 0, "", fmt.Errorf("no parsable pages in %s", mdPath)
	}

	resume := p.resolveCheckpoint(key, mdPath)

	pairs, err := p.generate(ctx, key, mdPath, pages, resume)
	if err != nil {
		return 0, "", err
	}

	deduped := dedupe.Pairs(pairs)
	if dropped := len(pairs) - len(deduped); dropped > 0 {
		metrics.AddDuplicatesDropped(dropped)
		p.logger.Info("Duplicates removed", "document", key, "dropped", dropped)
	}

	if p.quality != nil && p.cfg.Quality.Enabled {
		deduped, _ = p.quality.Apply(ctx, deduped)
	}

	outputPath := p.layout.OutputPath(key)
	if err := p.writeDataset(outputPath, deduped); err != nil {
		return 0, "", err
	}

	// A completed run never leaves a resumable checkpoint behind, resumed
	// or not.
	if err := p.store.Delete(key); err != nil {
		return 0, "", err
	}

	return len(deduped), outputPath, nil
}

// ensureMarkdown returns the path of the document's paginated markdown,
// converting the source when no reusable conversion exists.
func (p *Pipeline) ensureMarkdown(ctx context.Context, srcPath, key string) (string, error) {
	mdPath := p.layout.MarkdownPath(key)

	if _, err := os.Stat(mdPath); err == nil && p.cfg.General.ReuseMarkdown {
		p.logger.Info("Reusing existing markdown", "document", key, "path", mdPath)
		return mdPath, nil
	}

	var bar *progressbar.ProgressBar
	_, err := p.converter.Convert(ctx, srcPath, mdPath, func(pageNum, totalPages int) {
		if bar == nil {
			bar = progressbar.Default(int64(totalPages), "Converting "+key)
		}
		_ = bar.Set(pageNum)
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return "", fmt.Errorf("conversion failed: %w", err)
	}
	return mdPath, nil
}

// resolveCheckpoint loads and gates the document's checkpoint. Stale or
// declined checkpoints are deleted so a failed fresh run cannot resurrect
// them; delete failures here only warn, a leftover stale file is rejected
// again on the next run anyway.
func (p *Pipeline) resolveCheckpoint(key, mdPath string) *models.GenerationState {
	state, ok := p.store.Load(key)
	if !ok {
		return nil
	}

	if err := checkpoint.Validate(state, mdPath, p.cfg.General.MaxDifficultyLevel); err != nil {
		p.logger.Warn("Discarding stale checkpoint", "document", key, "reason", err)
		p.discardCheckpoint(key)
		return nil
	}

	if p.cfg.General.ForceRestart {
		p.logger.Info("Force restart requested, discarding valid checkpoint",
			"document", key, "pairs", len(state.AccumulatedPairs))
		p.discardCheckpoint(key)
		return nil
	}

	if p.confirmResume != nil && !p.confirmResume(state) {
		p.logger.Info("Resume declined, discarding checkpoint",
			"document", key, "pairs", len(state.AccumulatedPairs))
		p.discardCheckpoint(key)
		return nil
	}

	return state
}

func (p *Pipeline) discardCheckpoint(key string) {
	if err := p.store.Delete(key); err != nil {
		p.logger.Warn("Failed to delete checkpoint", "document", key, "error", err)
	}
}

func (p *Pipeline) generate(ctx context.Context, key, mdPath string, pages []models.Page, resume *models.GenerationState) ([]models.QAPair, error) {
	maxDifficulty := p.cfg.General.MaxDifficultyLevel
	totalUnits := len(pages) * maxDifficulty

	bar := progressbar.NewOptions(totalUnits,
		progressbar.OptionSetDescription("Generating "+key),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	done := 0
	if resume != nil {
		done = resume.CompletedUnits()
		_ = bar.Set(done)
	}

	// The engine reports before and after each call; the second report for
	// a unit marks its completion.
	inFlight := false
	onProgress := func(producedCount, currentDifficulty int) {
		if inFlight {
			done++
			_ = bar.Set(done)
		}
		inFlight = !inFlight
		bar.Describe(fmt.Sprintf("Generating %s [difficulty %d, %d pairs]", key, currentDifficulty, producedCount))
	}

	pairs, err := p.engine.Run(ctx, engine.RunRequest{
		Pages:              pages,
		DocumentKey:        key,
		SourceContentPath:  mdPath,
		MaxDifficultyLevel: maxDifficulty,
		Resume:             resume,
		OnProgress:         onProgress,
		Sink:               p.store,
	})
	_ = bar.Finish()
	if err != nil {
		return nil, err
	}
	return pairs, nil
}

func (p *Pipeline) writeDataset(outputPath string, pairs []models.QAPair) error {
	dw, err := writer.NewDatasetWriter(outputPath, p.logger)
	if err != nil {
		return err
	}

	for _, pair := range pairs {
		if err := dw.WriteRecord(pair.TrainingRecord()); err != nil {
			_ = dw.Close()
			return err
		}
	}

	if err := dw.Close(); err != nil {
		return err
	}
	metrics.AddPairsWritten(len(pairs))
	return nil
}

// describeError maps API failures to a message that tells the user what to
// fix instead of echoing a raw HTTP status.
func describeError(err error) string {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return fmt.Sprintf("authentication failed (HTTP %d), check the API key environment variables: %v", apiErr.StatusCode, err)
		case apiErr.StatusCode == 429:
			return fmt.Sprintf("rate limited by the provider after retries, lower rate_limit_per_minute or wait before resuming: %v", err)
		case apiErr.StatusCode >= 500:
			return fmt.Sprintf("upstream provider error (HTTP %d), the run can be resumed from its checkpoint: %v", apiErr.StatusCode, err)
		}
	}
	return err.Error()
}
