// Package quality screens generated QA pairs with an LLM judge. The only
// check is answer leakage: a question that contains or directly reveals its
// own answer is useless as training data.
package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lamim/corpusforge/internal/api"
	"github.com/lamim/corpusforge/internal/config"
	"github.com/lamim/corpusforge/internal/metrics"
	"github.com/lamim/corpusforge/internal/util"
	"github.com/lamim/corpusforge/pkg/models"
)

// Filter runs the answer-leak check over a pair sequence. Judge failures
// never drop data: a pair the judge could not assess is kept.
type Filter struct {
	cfg     *config.Config
	secrets *config.Secrets
	client  *api.Client
	logger  *slog.Logger
}

func New(cfg *config.Config, secrets *config.Secrets, client *api.Client, logger *slog.Logger) *Filter {
	return &Filter{
		cfg:     cfg,
		secrets: secrets,
		client:  client,
		logger:  logger.With("component", "quality"),
	}
}

// Apply returns the pairs that pass the leak check plus the rejected count.
// On cancellation the remaining pairs are kept unjudged so an interrupt
// never loses accepted work.
func (f *Filter) Apply(ctx context.Context, pairs []models.QAPair) ([]models.QAPair, int) {
	judgeModel, ok := f.cfg.JudgeModel()
	if !ok {
		return pairs, 0
	}

	kept := make([]models.QAPair, 0, len(pairs))
	rejected := 0
	for i, pair := range pairs {
		if ctx.Err() != nil {
			f.logger.Warn("Quality filtering interrupted, keeping remaining pairs unjudged",
				"judged", i, "remaining", len(pairs)-i)
			kept = append(kept, pairs[i:]...)
			break
		}

		leak, err := f.checkLeak(ctx, judgeModel, pair)
		if err != nil {
			f.logger.Warn("Leak check failed, keeping pair",
				"question", util.TruncateString(pair.Question, 80),
				"error", err)
			kept = append(kept, pair)
			continue
		}
		if leak {
			rejected++
			f.logger.Debug("Dropping answer-leaking pair",
				"question", util.TruncateString(pair.Question, 80),
				"page", pair.PageNumber,
				"difficulty", pair.DifficultyLevel)
			continue
		}
		kept = append(kept, pair)
	}

	metrics.AddQualityRejections(rejected)
	f.logger.Info("Quality filtering complete",
		"input_pairs", len(pairs),
		"kept", len(kept),
		"rejected", rejected)
	return kept, rejected
}

// Check runs the leak check for a single pair. Unlike Apply it surfaces
// judge errors so callers with their own loop can decide what a failure
// means.
func (f *Filter) Check(ctx context.Context, pair models.QAPair) (bool, error) {
	judgeModel, ok := f.cfg.JudgeModel()
	if !ok {
		return false, fmt.Errorf("no judge model configured")
	}
	return f.checkLeak(ctx, judgeModel, pair)
}

func (f *Filter) checkLeak(ctx context.Context, judgeModel config.ModelConfig, pair models.QAPair) (bool, error) {
	prompt, err := util.RenderTemplate(f.cfg.PromptTemplates.JudgeLeakCheck, map[string]interface{}{
		"Question": pair.Question,
		"Answer":   pair.Answer,
	})
	if err != nil {
		return false, fmt.Errorf("failed to render judge template: %w", err)
	}

	resp, err := f.client.ChatCompletion(ctx, judgeModel, f.secrets.GetAPIKey(judgeModel.BaseURL), []api.Message{
		api.TextMessage("user", prompt),
	})
	if err != nil {
		return false, err
	}

	return parseVerdict(resp.FirstContent())
}

// parseVerdict reads the judge's one-word answer. Some judges wrap it in a
// JSON object instead; those are unwrapped before matching. Anything other
// than a recognizable LEAK or OK is an error, which the caller maps to keep.
func parseVerdict(response string) (bool, error) {
	raw := strings.TrimSpace(util.StripThinkTags(response))
	if strings.Contains(raw, "{") {
		var wrapped struct {
			Verdict string `json:"verdict"`
		}
		if err := json.Unmarshal([]byte(util.ExtractJSONObject(raw)), &wrapped); err == nil && wrapped.Verdict != "" {
			raw = wrapped.Verdict
		}
	}
	verdict := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(verdict, "LEAK"):
		return true, nil
	case strings.HasPrefix(verdict, "OK"):
		return false, nil
	default:
		return false, fmt.Errorf("unrecognized judge verdict %q", util.TruncateString(response, 60))
	}
}
