package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lamim/corpusforge/internal/api"
	"github.com/lamim/corpusforge/internal/config"
	"github.com/lamim/corpusforge/internal/util"
	"github.com/lamim/corpusforge/pkg/models"
)

// difficultyGuidelines describe what each level asks of the reader. Level 1
// is recall; level 5 requires combining and judging material across the page.
var difficultyGuidelines = map[int]string{
	1: "Ask basic factual questions that test recall of information stated explicitly on the page.",
	2: "Ask conceptual questions that test understanding of ideas, definitions, and relationships.",
	3: "Ask application questions that require applying the page's knowledge to a concrete scenario.",
	4: "Ask analysis questions that require breaking down, comparing, or contrasting the material.",
	5: "Ask synthesis and evaluation questions that require combining multiple concepts and judging trade-offs.",
}

// LLMGenerator implements CandidateGenerator against an OpenAI-compatible
// chat endpoint. Retry and rate limiting live in the api client; a failure
// surfacing here has already exhausted its retries.
type LLMGenerator struct {
	client  *api.Client
	cfg     *config.Config
	secrets *config.Secrets
	logger  *slog.Logger
}

func NewLLMGenerator(client *api.Client, cfg *config.Config, secrets *config.Secrets, logger *slog.Logger) *LLMGenerator {
	return &LLMGenerator{client: client, cfg: cfg, secrets: secrets, logger: logger}
}

// GenerateCandidates renders the QA prompt for one page at one difficulty,
// calls the generation model, and decodes the returned JSON array. Entries
// that fail to decode individually are skipped; entries missing fields are
// returned as-is for the engine to filter.
func (g *LLMGenerator) GenerateCandidates(ctx context.Context, content string, difficultyLevel int, avoidQuestions []string) ([]models.CandidatePair, error) {
	guideline, ok := difficultyGuidelines[difficultyLevel]
	if !ok {
		return nil, fmt.Errorf("no guideline for difficulty level %d", difficultyLevel)
	}

	prompt, err := util.RenderTemplate(g.cfg.PromptTemplates.QAGeneration, map[string]interface{}{
		"MinPairs":           g.cfg.General.MinPairsPerCall,
		"MaxPairs":           g.cfg.General.MaxPairsPerCall,
		"DifficultyLevel":    difficultyLevel,
		"MaxDifficultyLevel": g.cfg.General.MaxDifficultyLevel,
		"Guideline":          guideline,
		"Content":            content,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render qa template: %w", err)
	}
	prompt += formatAvoidList(avoidQuestions)

	modelCfg := g.cfg.GeneratorModel()
	resp, err := g.client.ChatCompletion(ctx, modelCfg, g.secrets.GetAPIKey(modelCfg.BaseURL), []api.Message{
		api.TextMessage("user", prompt),
	})
	if err != nil {
		return nil, fmt.Errorf("qa generation call failed: %w", err)
	}

	return g.parseCandidates(resp.FirstContent())
}

func (g *LLMGenerator) parseCandidates(raw string) ([]models.CandidatePair, error) {
	if util.ContainsThinkTags(raw) {
		raw = util.StripThinkTags(raw)
	}

	arrayJSON, err := util.ExtractJSONArray(raw)
	if err != nil {
		return nil, fmt.Errorf("no JSON array in model response: %w", err)
	}
	arrayJSON = util.SanitizeJSON(arrayJSON)

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(arrayJSON), &entries); err != nil {
		return nil, fmt.Errorf("failed to parse candidate array: %w", err)
	}

	candidates := make([]models.CandidatePair, 0, len(entries))
	for i, entry := range entries {
		var candidate models.CandidatePair
		if err := json.Unmarshal(entry, &candidate); err != nil {
			g.logger.Debug("Skipping malformed candidate entry", "index", i, "error", err)
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// formatAvoidList renders the already-asked questions as a plain bullet list
// appended after the rendered template. Appending keeps user-supplied
// questions out of template execution entirely.
func formatAvoidList(avoidQuestions []string) string {
	if len(avoidQuestions) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\nDo not repeat or closely paraphrase any of these existing questions:\n")
	for _, q := range avoidQuestions {
		sb.WriteString("- ")
		sb.WriteString(q)
		sb.WriteString("\n")
	}
	return sb.String()
}
