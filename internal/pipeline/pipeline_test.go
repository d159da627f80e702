package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lamim/corpusforge/internal/api"
	"github.com/lamim/corpusforge/internal/checkpoint"
	"github.com/lamim/corpusforge/internal/config"
	"github.com/lamim/corpusforge/internal/convert"
	"github.com/lamim/corpusforge/internal/writer"
	"github.com/lamim/corpusforge/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(t *testing.T, maxDifficulty int) *config.Config {
	t.Helper()
	base := t.TempDir()
	return &config.Config{
		General: config.GeneralConfig{
			MaxDifficultyLevel: maxDifficulty,
			MinPairsPerCall:    1,
			MaxPairsPerCall:    5,
			LogLevel:           "error",
		},
		Data: config.DataConfig{
			InputDir:     filepath.Join(base, "input"),
			ProcessedDir: filepath.Join(base, "processed"),
			OutputDir:    filepath.Join(base, "output"),
			ProgressDir:  filepath.Join(base, "progress"),
			LogDir:       filepath.Join(base, "logs"),
		},
	}
}

// fakeConverter writes n pages of markdown, one distinct body per page.
type fakeConverter struct {
	pages int
	calls int
	err   error
}

func (f *fakeConverter) Convert(_ context.Context, _, outPath string, onPage convert.ProgressFunc) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	content := ""
	for i := 1; i <= f.pages; i++ {
		content += fmt.Sprintf("## Page %d\n\nbody of page %d\n\n", i, i)
		if onPage != nil {
			onPage(i, f.pages)
		}
	}
	if err := os.WriteFile(outPath, []byte(content), 0644); err != nil {
		return 0, err
	}
	return f.pages, nil
}

// fakeGenerator returns one distinct complete candidate per unit and records
// each invocation as "page/difficulty".
type fakeGenerator struct {
	calls   []string
	respond func(call int, content string, difficulty int) ([]models.CandidatePair, error)
}

func (f *fakeGenerator) GenerateCandidates(_ context.Context, content string, difficulty int, _ []string) ([]models.CandidatePair, error) {
	f.calls = append(f.calls, fmt.Sprintf("%s/%d", content, difficulty))
	if f.respond != nil {
		return f.respond(len(f.calls), content, difficulty)
	}
	return []models.CandidatePair{{
		Question: fmt.Sprintf("What does %q cover at level %d?", content, difficulty),
		Answer:   "The page covers it.",
		Context:  content,
	}}, nil
}

type fixture struct {
	cfg    *config.Config
	store  *checkpoint.Store
	layout *writer.Layout
	conv   *fakeConverter
	gen    *fakeGenerator
	pipe   *Pipeline
	pdf    writer.InputDocument
}

func newFixture(t *testing.T, cfg *config.Config, pages int) *fixture {
	t.Helper()

	layout, err := writer.NewLayout(cfg.Data)
	if err != nil {
		t.Fatalf("NewLayout failed: %v", err)
	}
	store, err := checkpoint.NewStore(cfg.Data.ProgressDir, testLogger())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	pdfPath := filepath.Join(cfg.Data.InputDir, "manual.pdf")
	if err := os.WriteFile(pdfPath, []byte("%PDF-1.4"), 0644); err != nil {
		t.Fatalf("failed to write fixture pdf: %v", err)
	}

	conv := &fakeConverter{pages: pages}
	gen := &fakeGenerator{}
	pipe := New(cfg, layout, store, conv, gen, nil, nil, testLogger())

	return &fixture{
		cfg:    cfg,
		store:  store,
		layout: layout,
		conv:   conv,
		gen:    gen,
		pipe:   pipe,
		pdf:    writer.InputDocument{Path: pdfPath, Convertible: true},
	}
}

func readJSONLines(t *testing.T, path string) []map[string]string {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer file.Close()

	var lines []map[string]string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record map[string]string
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", len(lines)+1, err)
		}
		lines = append(lines, record)
	}
	return lines
}

func TestProcessDocumentEndToEnd(t *testing.T) {
	f := newFixture(t, testConfig(t, 2), 2)

	result := f.pipe.ProcessDocument(context.Background(), f.pdf)
	if result.Failed() {
		t.Fatalf("ProcessDocument failed: %v", result.Err)
	}

	if result.PairCount != 4 {
		t.Errorf("pair count = %d, want 4 (2 pages x 2 levels)", result.PairCount)
	}

	lines := readJSONLines(t, result.OutputPath)
	if len(lines) != 4 {
		t.Fatalf("output has %d lines, want 4", len(lines))
	}
	for i, record := range lines {
		if len(record) != 3 {
			t.Errorf("line %d has %d keys, want exactly question/answer/context", i+1, len(record))
		}
		for _, field := range []string{"question", "answer", "context"} {
			if record[field] == "" {
				t.Errorf("line %d missing %q", i+1, field)
			}
		}
	}

	if _, ok := f.store.Load("manual"); ok {
		t.Error("checkpoint still present after successful run")
	}
}

func TestProcessDocumentCrashThenResume(t *testing.T) {
	cfg := testConfig(t, 2)
	f := newFixture(t, cfg, 2)

	// First run dies after unit (page 1, difficulty 1) completes.
	f.gen.respond = func(call int, content string, difficulty int) ([]models.CandidatePair, error) {
		if call == 2 {
			return nil, errors.New("simulated provider outage")
		}
		return []models.CandidatePair{{
			Question: fmt.Sprintf("Q %s/%d", content, difficulty),
			Answer:   "A",
			Context:  content,
		}}, nil
	}

	result := f.pipe.ProcessDocument(context.Background(), f.pdf)
	if !result.Failed() {
		t.Fatal("expected first run to fail")
	}

	state, ok := f.store.Load("manual")
	if !ok {
		t.Fatal("no checkpoint left after failed run")
	}
	if state.NextPageIndex != 1 || state.NextDifficultyLevel != 2 {
		t.Fatalf("checkpoint cursor = (%d, %d), want (1, 2)", state.NextPageIndex, state.NextDifficultyLevel)
	}
	if len(state.AccumulatedPairs) != 1 {
		t.Fatalf("checkpoint holds %d pairs, want 1", len(state.AccumulatedPairs))
	}

	// Second run resumes: only (1,2), (2,1), (2,2) are invoked.
	f.gen.respond = nil
	f.gen.calls = nil
	result = f.pipe.ProcessDocument(context.Background(), f.pdf)
	if result.Failed() {
		t.Fatalf("resumed run failed: %v", result.Err)
	}

	wantCalls := []string{"body of page 1/2", "body of page 2/1", "body of page 2/2"}
	if len(f.gen.calls) != len(wantCalls) {
		t.Fatalf("resumed calls = %v, want %v", f.gen.calls, wantCalls)
	}
	for i, want := range wantCalls {
		if f.gen.calls[i] != want {
			t.Errorf("resumed call %d = %q, want %q", i, f.gen.calls[i], want)
		}
	}

	if result.PairCount != 4 {
		t.Errorf("pair count after resume = %d, want 4", result.PairCount)
	}
	if _, ok := f.store.Load("manual"); ok {
		t.Error("checkpoint still present after successful resume")
	}
}

func TestProcessDocumentDiscardsStaleCheckpoint(t *testing.T) {
	cfg := testConfig(t, 2)
	f := newFixture(t, cfg, 2)

	// Saved against a different max difficulty: stale, must not be resumed
	// even though the content path matches.
	stale := &models.GenerationState{
		DocumentKey:         "manual",
		SourceContentPath:   f.layout.MarkdownPath("manual"),
		MaxDifficultyLevel:  3,
		NextPageIndex:       2,
		NextDifficultyLevel: 1,
		TotalPages:          2,
		AccumulatedPairs:    []models.QAPair{{Question: "old", Answer: "old", Context: "old"}},
	}
	if err := f.store.Save(stale); err != nil {
		t.Fatalf("failed to seed checkpoint: %v", err)
	}
	// The markdown the stale checkpoint points at must exist for the path
	// check to be the deciding condition.
	if _, err := f.conv.Convert(context.Background(), f.pdf.Path, f.layout.MarkdownPath("manual"), nil); err != nil {
		t.Fatalf("failed to seed markdown: %v", err)
	}

	result := f.pipe.ProcessDocument(context.Background(), f.pdf)
	if result.Failed() {
		t.Fatalf("ProcessDocument failed: %v", result.Err)
	}

	if len(f.gen.calls) != 4 {
		t.Errorf("fresh run made %d calls, want all 4 units", len(f.gen.calls))
	}
	if result.PairCount != 4 {
		t.Errorf("pair count = %d, want 4 with no stale pairs carried over", result.PairCount)
	}
}

func TestProcessDocumentForceRestart(t *testing.T) {
	cfg := testConfig(t, 2)
	cfg.General.ForceRestart = true
	f := newFixture(t, cfg, 2)

	if _, err := f.conv.Convert(context.Background(), f.pdf.Path, f.layout.MarkdownPath("manual"), nil); err != nil {
		t.Fatalf("failed to seed markdown: %v", err)
	}
	valid := &models.GenerationState{
		DocumentKey:         "manual",
		SourceContentPath:   f.layout.MarkdownPath("manual"),
		MaxDifficultyLevel:  2,
		NextPageIndex:       2,
		NextDifficultyLevel: 1,
		TotalPages:          2,
	}
	if err := f.store.Save(valid); err != nil {
		t.Fatalf("failed to seed checkpoint: %v", err)
	}

	result := f.pipe.ProcessDocument(context.Background(), f.pdf)
	if result.Failed() {
		t.Fatalf("ProcessDocument failed: %v", result.Err)
	}
	if len(f.gen.calls) != 4 {
		t.Errorf("force restart made %d calls, want all 4 units", len(f.gen.calls))
	}
}

func TestProcessDocumentResumeDeclined(t *testing.T) {
	cfg := testConfig(t, 2)
	f := newFixture(t, cfg, 2)
	f.pipe.confirmResume = func(*models.GenerationState) bool { return false }

	if _, err := f.conv.Convert(context.Background(), f.pdf.Path, f.layout.MarkdownPath("manual"), nil); err != nil {
		t.Fatalf("failed to seed markdown: %v", err)
	}
	valid := &models.GenerationState{
		DocumentKey:         "manual",
		SourceContentPath:   f.layout.MarkdownPath("manual"),
		MaxDifficultyLevel:  2,
		NextPageIndex:       2,
		NextDifficultyLevel: 2,
		TotalPages:          2,
		AccumulatedPairs:    []models.QAPair{{Question: "kept?", Answer: "no", Context: "c"}},
	}
	if err := f.store.Save(valid); err != nil {
		t.Fatalf("failed to seed checkpoint: %v", err)
	}

	result := f.pipe.ProcessDocument(context.Background(), f.pdf)
	if result.Failed() {
		t.Fatalf("ProcessDocument failed: %v", result.Err)
	}
	if len(f.gen.calls) != 4 {
		t.Errorf("declined resume made %d calls, want all 4 units", len(f.gen.calls))
	}
	if result.PairCount != 4 {
		t.Errorf("pair count = %d, want 4 fresh pairs only", result.PairCount)
	}
}

func TestProcessDocumentReusesMarkdown(t *testing.T) {
	cfg := testConfig(t, 1)
	cfg.General.ReuseMarkdown = true
	f := newFixture(t, cfg, 1)

	md := "## Page 1\n\nalready converted\n"
	if err := os.WriteFile(f.layout.MarkdownPath("manual"), []byte(md), 0644); err != nil {
		t.Fatalf("failed to seed markdown: %v", err)
	}

	result := f.pipe.ProcessDocument(context.Background(), f.pdf)
	if result.Failed() {
		t.Fatalf("ProcessDocument failed: %v", result.Err)
	}
	if f.conv.calls != 0 {
		t.Errorf("converter called %d times, want 0 with reusable markdown", f.conv.calls)
	}
	if len(f.gen.calls) != 1 || f.gen.calls[0] != "already converted/1" {
		t.Errorf("generation calls = %v, want the reused page content", f.gen.calls)
	}
}

func TestProcessDocumentDeduplicatesOutput(t *testing.T) {
	f := newFixture(t, testConfig(t, 2), 1)

	// Both units return the same question modulo case and whitespace.
	f.gen.respond = func(call int, content string, difficulty int) ([]models.CandidatePair, error) {
		q := "What is covered?"
		if call == 2 {
			q = "  what is covered? "
		}
		return []models.CandidatePair{{Question: q, Answer: fmt.Sprintf("A%d", call), Context: content}}, nil
	}

	result := f.pipe.ProcessDocument(context.Background(), f.pdf)
	if result.Failed() {
		t.Fatalf("ProcessDocument failed: %v", result.Err)
	}
	if result.PairCount != 1 {
		t.Fatalf("pair count = %d, want 1 after deduplication", result.PairCount)
	}

	lines := readJSONLines(t, result.OutputPath)
	if len(lines) != 1 {
		t.Fatalf("output has %d lines, want 1", len(lines))
	}
	if lines[0]["answer"] != "A1" {
		t.Errorf("surviving answer = %q, want the first occurrence A1", lines[0]["answer"])
	}
}

func TestProcessDocumentUnsupportedFormat(t *testing.T) {
	f := newFixture(t, testConfig(t, 1), 1)

	docx := filepath.Join(f.cfg.Data.InputDir, "notes.docx")
	if err := os.WriteFile(docx, []byte("stub"), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	result := f.pipe.ProcessDocument(context.Background(), writer.InputDocument{Path: docx, Convertible: false})
	if !result.Failed() {
		t.Fatal("expected unsupported format to fail the document")
	}
	if f.conv.calls != 0 {
		t.Errorf("converter called %d times for an unsupported format", f.conv.calls)
	}
}

func TestProcessDocumentConversionFailure(t *testing.T) {
	f := newFixture(t, testConfig(t, 1), 1)
	f.conv.err = errors.New("ocr endpoint unreachable")

	result := f.pipe.ProcessDocument(context.Background(), f.pdf)
	if !result.Failed() {
		t.Fatal("expected conversion failure to fail the document")
	}
	if len(f.gen.calls) != 0 {
		t.Errorf("generation ran despite conversion failure: %v", f.gen.calls)
	}
}

func TestRunContinuesPastFailedDocument(t *testing.T) {
	cfg := testConfig(t, 1)
	f := newFixture(t, cfg, 1)

	broken := filepath.Join(cfg.Data.InputDir, "broken.docx")
	if err := os.WriteFile(broken, []byte("stub"), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	docs := []writer.InputDocument{
		{Path: broken, Convertible: false},
		f.pdf,
	}

	summary, results := f.pipe.Run(context.Background(), docs)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !results[0].Failed() {
		t.Error("first document should have failed")
	}
	if results[1].Failed() {
		t.Errorf("second document failed: %v", results[1].Err)
	}
	if summary.Documents != 2 || summary.Succeeded != 1 || summary.Failed != 1 {
		t.Errorf("summary = %+v, want 2 documents, 1 succeeded, 1 failed", summary)
	}
	if summary.TotalPairs != 1 {
		t.Errorf("summary total pairs = %d, want 1", summary.TotalPairs)
	}
}

func TestRunStopsOnCancellation(t *testing.T) {
	cfg := testConfig(t, 1)
	f := newFixture(t, cfg, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, results := f.pipe.Run(ctx, []writer.InputDocument{f.pdf})
	if len(results) != 0 {
		t.Errorf("cancelled batch produced %d results, want 0", len(results))
	}
	if summary.Documents != 0 {
		t.Errorf("summary counts %d documents, want 0", summary.Documents)
	}
}

func TestResumePrefixStaysStable(t *testing.T) {
	// The resumed run's accumulated sequence must start with exactly the
	// pairs the checkpoint held, in order.
	cfg := testConfig(t, 2)
	f := newFixture(t, cfg, 2)

	f.gen.respond = func(call int, content string, difficulty int) ([]models.CandidatePair, error) {
		if call == 4 {
			return nil, errors.New("interrupted")
		}
		return []models.CandidatePair{{
			Question: fmt.Sprintf("Q%d %s/%d", call, content, difficulty),
			Answer:   "A",
			Context:  content,
		}}, nil
	}
	if result := f.pipe.ProcessDocument(context.Background(), f.pdf); !result.Failed() {
		t.Fatal("expected first run to fail")
	}

	saved, ok := f.store.Load("manual")
	if !ok {
		t.Fatal("no checkpoint after failed run")
	}
	prefix := append([]models.QAPair(nil), saved.AccumulatedPairs...)

	f.gen.respond = nil
	result := f.pipe.ProcessDocument(context.Background(), f.pdf)
	if result.Failed() {
		t.Fatalf("resumed run failed: %v", result.Err)
	}

	lines := readJSONLines(t, result.OutputPath)
	if len(lines) < len(prefix) {
		t.Fatalf("output has %d lines, fewer than the %d checkpointed pairs", len(lines), len(prefix))
	}
	for i, pair := range prefix {
		if lines[i]["question"] != pair.Question {
			t.Errorf("line %d question = %q, want checkpointed %q", i+1, lines[i]["question"], pair.Question)
		}
	}
}

func TestDescribeError(t *testing.T) {
	plain := errors.New("boom")
	if got := describeError(plain); got != "boom" {
		t.Errorf("describeError(plain) = %q", got)
	}

	tests := []struct {
		status int
		want   string
	}{
		{401, "authentication failed"},
		{429, "rate limited"},
		{502, "upstream provider error"},
	}
	for _, tt := range tests {
		wrapped := fmt.Errorf("unit failed: %w", &api.APIError{Message: "nope", StatusCode: tt.status})
		got := describeError(wrapped)
		if !strings.Contains(got, tt.want) {
			t.Errorf("describeError(status %d) = %q, want it to mention %q", tt.status, got, tt.want)
		}
	}
}
