package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lamim/corpusforge/internal/api"
	"github.com/lamim/corpusforge/internal/checkpoint"
	"github.com/lamim/corpusforge/internal/config"
	"github.com/lamim/corpusforge/internal/convert"
	"github.com/lamim/corpusforge/internal/dataset"
	"github.com/lamim/corpusforge/internal/engine"
	"github.com/lamim/corpusforge/internal/hfhub"
	"github.com/lamim/corpusforge/internal/metrics"
	"github.com/lamim/corpusforge/internal/pipeline"
	"github.com/lamim/corpusforge/internal/quality"
	"github.com/lamim/corpusforge/internal/util"
	"github.com/lamim/corpusforge/internal/writer"
	"github.com/lamim/corpusforge/pkg/models"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath    string
	envFile       string
	forceRestart  bool
	reuseMarkdown bool
	maxDifficulty int
	uploadToHF    bool
	hfRepoID      string
	verbose       bool
	clearAll      bool
	filterOutput  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "corpusforge",
		Short: "CorpusForge - QA Training Data Extractor",
		Long: `CorpusForge extracts question-answer training pairs from technical
PDF documents: pages are converted to markdown through an LLM-assisted OCR
step, then QA pairs are generated at increasing difficulty levels with
exact-match deduplication and crash-resumable progress tracking.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
	}

	runCmd := &cobra.Command{
		Use:   "run [files...]",
		Short: "Run the QA extraction pipeline",
		Long: `Run the complete extraction pipeline over the given files, or over
every supported document in the configured input directory:
1. Convert each PDF to paginated markdown (reused when already converted)
2. Generate QA pairs for every (page, difficulty) unit, checkpointing each
3. Deduplicate and optionally quality-filter the accumulated pairs
4. Write one JSONL dataset per document
5. Optional: upload the datasets to Hugging Face Hub

An interrupted run leaves its checkpoint behind; running again resumes it.`,
		RunE: runPipeline,
	}
	runCmd.Flags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")
	runCmd.Flags().StringVar(&envFile, "env-file", ".env", "Path to environment file")
	runCmd.Flags().BoolVar(&forceRestart, "force-restart", false, "Discard valid checkpoints instead of resuming")
	runCmd.Flags().BoolVar(&reuseMarkdown, "reuse-markdown", false, "Skip conversion when processed markdown already exists")
	runCmd.Flags().IntVar(&maxDifficulty, "max-difficulty", 0, "Override the configured maximum difficulty level (1-5)")
	runCmd.Flags().BoolVar(&uploadToHF, "upload-to-hf", false, "Upload results to Hugging Face Hub")
	runCmd.Flags().StringVar(&hfRepoID, "hf-repo-id", "", "Hugging Face repository ID (e.g., username/dataset-name)")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	checkpointCmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage checkpoints",
		Long:  "Manage per-document generation checkpoints for resuming interrupted runs",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List resumable checkpoints",
		Long:  "List every document with a resumable checkpoint in the progress directory",
		RunE:  listCheckpoints,
	}
	listCmd.Flags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")

	inspectCmd := &cobra.Command{
		Use:   "inspect <document>",
		Short: "Inspect a checkpoint",
		Long:  "Display the full checkpoint state for a document key (the source file's stem)",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectCheckpoint,
	}
	inspectCmd.Flags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")

	clearCmd := &cobra.Command{
		Use:   "clear [document]",
		Short: "Delete checkpoints",
		Long:  "Delete the checkpoint for one document, or every checkpoint with --all",
		RunE:  clearCheckpoints,
	}
	clearCmd.Flags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")
	clearCmd.Flags().BoolVar(&clearAll, "all", false, "Delete every checkpoint")

	checkpointCmd.AddCommand(listCmd)
	checkpointCmd.AddCommand(inspectCmd)
	checkpointCmd.AddCommand(clearCmd)

	filterCmd := &cobra.Command{
		Use:   "filter <dataset.jsonl>",
		Short: "Quality-filter an existing dataset",
		Long: `Re-screen an existing JSONL dataset with the configured judge model,
writing records that pass the answer-leak check to a new file.`,
		Args: cobra.ExactArgs(1),
		RunE: filterDataset,
	}
	filterCmd.Flags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")
	filterCmd.Flags().StringVar(&envFile, "env-file", ".env", "Path to environment file")
	filterCmd.Flags().StringVar(&filterOutput, "output", "", "Output path (default: <input>_filtered.jsonl)")
	filterCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	uploadCmd := &cobra.Command{
		Use:   "upload <dataset.jsonl>...",
		Short: "Upload datasets to Hugging Face Hub",
		Long:  "Upload one or more JSONL datasets, plus a generated dataset card, to a Hugging Face dataset repository",
		Args:  cobra.MinimumNArgs(1),
		RunE:  uploadDatasets,
	}
	uploadCmd.Flags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")
	uploadCmd.Flags().StringVar(&envFile, "env-file", ".env", "Path to environment file")
	uploadCmd.Flags().StringVar(&hfRepoID, "hf-repo-id", "", "Hugging Face repository ID (e.g., username/dataset-name)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(uploadCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the env file, the TOML config, and applies CLI flag
// overrides on top.
func loadConfig(cmd *cobra.Command) (*config.Config, *config.Secrets, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load env file: %v\n", err)
		}
	}

	cfg, secrets, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if cmd.Flags().Changed("force-restart") {
		cfg.General.ForceRestart = forceRestart
	}
	if cmd.Flags().Changed("reuse-markdown") {
		cfg.General.ReuseMarkdown = reuseMarkdown
	}
	if cmd.Flags().Changed("max-difficulty") {
		cfg.General.MaxDifficultyLevel = maxDifficulty
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}

	return cfg, secrets, nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, secrets, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	layout, err := writer.NewLayout(cfg.Data)
	if err != nil {
		return fmt.Errorf("failed to create data layout: %w", err)
	}

	logLevel := parseLogLevel(cfg.General.LogLevel)
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger, logFile, runID, err := writer.SetupLogger(layout.LogDir(), logLevel)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer func() {
		if logFile != nil {
			_ = logFile.Sync()
			_ = logFile.Close()
		}
	}()

	logger.Info("CorpusForge starting",
		"version", Version,
		"config", configPath,
		"run_id", runID,
		"max_difficulty", cfg.General.MaxDifficultyLevel)

	metrics.Serve(cfg.General.MetricsListenAddr, logger)

	docs, err := resolveDocuments(layout, args)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no supported documents found (looked in %s)", layout.InputDir())
	}

	apiClient := api.NewClient(logger)
	store, err := checkpoint.NewStore(layout.ProgressDir(), logger)
	if err != nil {
		return err
	}
	converter := convert.New(cfg, secrets, apiClient, logger)
	generator := engine.NewLLMGenerator(apiClient, cfg, secrets, logger)

	var qualityFilter *quality.Filter
	if cfg.Quality.Enabled {
		qualityFilter = quality.New(cfg, secrets, apiClient, logger)
	}

	pipe := pipeline.New(cfg, layout, store, converter, generator, qualityFilter, confirmResumePrompt, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, results := pipe.Run(ctx, docs)
	printBatchReport(summary, results)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("interrupted after %d of %d documents; run again to resume from the saved checkpoints", summary.Documents, len(docs))
	}

	if uploadToHF && summary.Succeeded > 0 {
		if err := uploadResults(cfg, secrets, logger, results); err != nil {
			// The local artifacts are the deliverable; a failed upload is
			// reported but does not fail the run.
			logger.Error("Upload failed", "error", err)
			fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
		}
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d documents failed", summary.Failed, summary.Documents)
	}
	return nil
}

// resolveDocuments expands explicit CLI arguments, or falls back to scanning
// the configured input directory.
func resolveDocuments(layout *writer.Layout, args []string) ([]writer.InputDocument, error) {
	if len(args) == 0 {
		return writer.Discover(layout.InputDir())
	}

	var docs []writer.InputDocument
	for _, arg := range args {
		found, err := writer.Discover(arg)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("unsupported document: %s", arg)
		}
		docs = append(docs, found...)
	}
	return docs, nil
}

// confirmResumePrompt asks whether to resume a valid checkpoint. When stdin
// is not a terminal (batch jobs, CI) the checkpoint is resumed without
// asking; --force-restart is the non-interactive way to discard it.
func confirmResumePrompt(state *models.GenerationState) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return true
	}

	totalUnits := state.TotalPages * state.MaxDifficultyLevel
	fmt.Printf("Found checkpoint for %q: %d/%d units done, %d pairs, last saved %s.\nResume? [Y/n] ",
		state.DocumentKey,
		state.CompletedUnits(), totalUnits,
		len(state.AccumulatedPairs),
		state.UpdatedAt.Format(time.RFC3339))

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return true
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "" || answer == "y" || answer == "yes"
}

func printBatchReport(summary models.BatchSummary, results []models.DocumentResult) {
	fmt.Println()
	for _, r := range results {
		if r.Failed() {
			fmt.Printf("  FAIL  %-30s %v\n", r.Document, r.Err)
			continue
		}
		fmt.Printf("  OK    %-30s %d pairs -> %s\n", r.Document, r.PairCount, r.OutputPath)
	}
	fmt.Printf("\n%d document(s): %d succeeded, %d failed, %d pairs total (%s)\n",
		summary.Documents, summary.Succeeded, summary.Failed, summary.TotalPairs,
		summary.Duration.Round(time.Second))
}

func uploadResults(cfg *config.Config, secrets *config.Secrets, logger *slog.Logger, results []models.DocumentResult) error {
	repoID := hfRepoID
	if repoID == "" {
		repoID = cfg.HuggingFace.RepoID
	}
	if repoID == "" {
		return fmt.Errorf("--hf-repo-id must be specified (or huggingface.repo_id configured) when using --upload-to-hf")
	}
	if secrets.HuggingFaceToken == "" {
		return fmt.Errorf("HF_TOKEN environment variable must be set for uploads")
	}

	var files []hfhub.UploadFile
	var entries []hfhub.CardEntry
	for _, r := range results {
		if r.Failed() {
			continue
		}
		name := r.Document + ".jsonl"
		files = append(files, hfhub.UploadFile{LocalPath: r.OutputPath, PathInRepo: name})
		entries = append(entries, hfhub.CardEntry{Name: name, Pairs: r.PairCount})
	}

	uploader := hfhub.NewUploader(secrets.HuggingFaceToken, logger)
	return uploader.Upload(repoID, hfhub.DatasetCard(repoID, entries), files)
}

// quietLogger is for checkpoint subcommands, which print their own output
// and only need warnings from the store.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func openStore() (*checkpoint.Store, error) {
	cfg, _, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return checkpoint.NewStore(cfg.Data.ProgressDir, quietLogger())
}

func listCheckpoints(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	states := store.List()
	if len(states) == 0 {
		fmt.Println("No checkpoints found.")
		return nil
	}

	fmt.Printf("%-30s %-12s %-10s %-8s %s\n", "DOCUMENT", "NEXT UNIT", "PROGRESS", "PAIRS", "UPDATED")
	for _, s := range states {
		fmt.Printf("%-30s page %-2d d%-3d %-9.1f%% %-8d %s\n",
			s.DocumentKey,
			s.NextPageIndex, s.NextDifficultyLevel,
			s.Progress(),
			len(s.AccumulatedPairs),
			s.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func inspectCheckpoint(cmd *cobra.Command, args []string) error {
	key := args[0]
	if err := writer.ValidateDocumentKey(key); err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	state, ok := store.Load(key)
	if !ok {
		return fmt.Errorf("no checkpoint for document %q", key)
	}

	fmt.Printf("Document:        %s\n", state.DocumentKey)
	fmt.Printf("Source content:  %s\n", state.SourceContentPath)
	fmt.Printf("Max difficulty:  %d\n", state.MaxDifficultyLevel)
	fmt.Printf("Next unit:       page %d, difficulty %d\n", state.NextPageIndex, state.NextDifficultyLevel)
	fmt.Printf("Total pages:     %d\n", state.TotalPages)
	fmt.Printf("Progress:        %.1f%% (%d units done)\n", state.Progress(), state.CompletedUnits())
	fmt.Printf("Pairs:           %d\n", len(state.AccumulatedPairs))
	fmt.Printf("Seen questions:  %d\n", len(state.SeenQuestions))
	fmt.Printf("Created:         %s\n", state.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Updated:         %s\n", state.UpdatedAt.Format(time.RFC3339))

	if len(state.AccumulatedPairs) > 0 {
		fmt.Println("\nLast pair:")
		data, err := json.MarshalIndent(state.AccumulatedPairs[len(state.AccumulatedPairs)-1], "  ", "  ")
		if err == nil {
			fmt.Printf("  %s\n", data)
		}
	}
	return nil
}

func clearCheckpoints(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	if clearAll {
		states := store.List()
		for _, s := range states {
			if err := store.Delete(s.DocumentKey); err != nil {
				return err
			}
			fmt.Printf("Deleted checkpoint for %q\n", s.DocumentKey)
		}
		if len(states) == 0 {
			fmt.Println("No checkpoints found.")
		}
		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("specify a document key or --all")
	}
	key := args[0]
	if err := writer.ValidateDocumentKey(key); err != nil {
		return err
	}
	if err := store.Delete(key); err != nil {
		return err
	}
	fmt.Printf("Deleted checkpoint for %q\n", key)
	return nil
}

func filterDataset(cmd *cobra.Command, args []string) error {
	cfg, secrets, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logLevel := parseLogLevel(cfg.General.LogLevel)
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := dataset.Filter(ctx, logger, cfg, secrets, api.NewClient(logger), dataset.FilterOptions{
		InputPath:  args[0],
		OutputPath: filterOutput,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Filtered %d record(s): %d kept, %d rejected -> %s\n",
		result.Input, result.Kept, result.Rejected, result.Output)
	return nil
}

func uploadDatasets(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load env file: %v\n", err)
		}
	}

	cfg, secrets, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	repoID := hfRepoID
	if repoID == "" {
		repoID = cfg.HuggingFace.RepoID
	}
	if repoID == "" {
		return fmt.Errorf("--hf-repo-id must be specified (or huggingface.repo_id configured)")
	}
	if secrets.HuggingFaceToken == "" {
		return fmt.Errorf("HF_TOKEN environment variable must be set for uploads")
	}

	var files []hfhub.UploadFile
	var entries []hfhub.CardEntry
	for _, path := range args {
		pairs, err := countLines(path)
		if err != nil {
			return err
		}
		name := util.DocumentKey(path) + ".jsonl"
		files = append(files, hfhub.UploadFile{LocalPath: path, PathInRepo: name})
		entries = append(entries, hfhub.CardEntry{Name: name, Pairs: pairs})
	}

	uploader := hfhub.NewUploader(secrets.HuggingFaceToken, quietLogger())
	if err := uploader.Upload(repoID, hfhub.DatasetCard(repoID, entries), files); err != nil {
		return err
	}
	fmt.Printf("Uploaded %d file(s) to https://huggingface.co/datasets/%s\n", len(files), repoID)
	return nil
}

func countLines(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	count := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			count++
		}
	}
	return count, scanner.Err()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
