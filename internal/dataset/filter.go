// Package dataset holds standalone operations over existing JSONL datasets.
package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/lamim/corpusforge/internal/api"
	"github.com/lamim/corpusforge/internal/config"
	"github.com/lamim/corpusforge/internal/metrics"
	"github.com/lamim/corpusforge/internal/quality"
	"github.com/lamim/corpusforge/internal/util"
	"github.com/lamim/corpusforge/internal/writer"
	"github.com/lamim/corpusforge/pkg/models"
)

// FilterOptions controls a standalone quality pass over an existing dataset.
type FilterOptions struct {
	InputPath string

	// OutputPath defaults to <input stem>_filtered.jsonl next to the input.
	OutputPath string
}

// FilterResult summarizes a filter pass.
type FilterResult struct {
	Input    int
	Kept     int
	Rejected int
	Output   string
}

// Filter re-screens an existing JSONL dataset with the quality judge and
// writes the survivors to a new file. Judge failures keep the record, same
// as the in-pipeline filter.
func Filter(
	ctx context.Context,
	logger *slog.Logger,
	cfg *config.Config,
	secrets *config.Secrets,
	client *api.Client,
	opts FilterOptions,
) (*FilterResult, error) {
	if opts.InputPath == "" {
		return nil, fmt.Errorf("input path is required")
	}
	if _, ok := cfg.JudgeModel(); !ok {
		return nil, fmt.Errorf("config is missing 'judge' model; it is required for dataset filtering")
	}

	if opts.OutputPath == "" {
		dir := filepath.Dir(opts.InputPath)
		stem := util.DocumentKey(opts.InputPath)
		opts.OutputPath = filepath.Join(dir, stem+"_filtered.jsonl")
	}
	if opts.OutputPath == opts.InputPath {
		return nil, fmt.Errorf("output path must differ from input path")
	}

	records, err := readRecords(opts.InputPath)
	if err != nil {
		return nil, err
	}

	out, err := writer.NewDatasetWriter(opts.OutputPath, logger)
	if err != nil {
		return nil, err
	}

	check := quality.New(cfg, secrets, client, logger)
	bar := progressbar.Default(int64(len(records)), "Filtering dataset")

	rejected := 0
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("filtering interrupted: %w", err)
		}

		pair := models.QAPair{Question: record.Question, Answer: record.Answer, Context: record.Context}
		leak, err := check.Check(ctx, pair)
		if err != nil {
			logger.Warn("Leak check failed, keeping record",
				"question", util.TruncateString(record.Question, 80),
				"error", err)
			leak = false
		}

		if leak {
			rejected++
		} else if err := out.WriteRecord(record); err != nil {
			_ = out.Close()
			return nil, err
		}

		_ = bar.Add(1)
	}

	if err := out.Close(); err != nil {
		return nil, err
	}

	metrics.AddQualityRejections(rejected)
	metrics.AddPairsWritten(out.Count())

	result := &FilterResult{
		Input:    len(records),
		Kept:     out.Count(),
		Rejected: rejected,
		Output:   opts.OutputPath,
	}
	logger.Info("Dataset filtered",
		"input", result.Input,
		"kept", result.Kept,
		"rejected", result.Rejected,
		"output", result.Output)
	return result, nil
}

// readRecords loads a JSONL dataset. Blank lines are skipped; a malformed
// line is an error naming its line number.
func readRecords(path string) ([]models.TrainingRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input dataset: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	var records []models.TrainingRecord
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var record models.TrainingRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, fmt.Errorf("line %d: failed to parse record: %w", lineNum, err)
		}
		records = append(records, record)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed while reading input dataset: %w", err)
	}

	return records, nil
}
