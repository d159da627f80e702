package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lamim/corpusforge/internal/api"
	"github.com/lamim/corpusforge/internal/config"
)

func chatResponse(content string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"id":     "test-123",
		"object": "chat.completion",
		"model":  "test-model",
		"choices": []map[string]interface{}{
			{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	})
	return string(body)
}

func generatorConfig(baseURL string) *config.Config {
	cfg := &config.Config{}
	cfg.General.MaxDifficultyLevel = 5
	cfg.General.MinPairsPerCall = 3
	cfg.General.MaxPairsPerCall = 5
	cfg.PromptTemplates.QAGeneration = config.GetDefaultQATemplate()
	cfg.Models = map[string]config.ModelConfig{
		"generator": {
			BaseURL:            baseURL,
			ModelName:          "test-model",
			Temperature:        0.7,
			TopP:               1.0,
			MaxOutputTokens:    512,
			RateLimitPerMinute: 600,
			MaxRetries:         0,
			MaxBackoffSeconds:  1,
			HTTPTimeoutSeconds: 10,
		},
	}
	return cfg
}

func testSecrets() *config.Secrets {
	return &config.Secrets{APIKeys: map[string]string{"generic": "test-key"}}
}

// capturedPrompt pulls the user message text out of a recorded request body.
func capturedPrompt(t *testing.T, body []byte) string {
	t.Helper()
	var req struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("failed to decode request body: %v", err)
	}
	if len(req.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(req.Messages))
	}
	return req.Messages[0].Content
}

func TestGenerateCandidates(t *testing.T) {
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		content := "```json\n[{\"question\": \"What limits the flow rate?\", \"answer\": \"The valve diameter.\", \"context\": \"The valve diameter limits flow.\"}, {\"question\": \"Orphan?\"}]\n```"
		_, _ = w.Write([]byte(chatResponse(content)))
	}))
	defer server.Close()

	gen := NewLLMGenerator(api.NewClient(testLogger()), generatorConfig(server.URL), testSecrets(), testLogger())

	candidates, err := gen.GenerateCandidates(context.Background(), "The valve diameter limits flow.", 3, []string{"What is a valve?"})
	if err != nil {
		t.Fatalf("GenerateCandidates failed: %v", err)
	}

	// Incomplete entries pass through; filtering them is the engine's job.
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}
	if candidates[0].Question != "What limits the flow rate?" || !candidates[0].Complete() {
		t.Errorf("first candidate = %+v", candidates[0])
	}
	if candidates[1].Complete() {
		t.Errorf("second candidate should be incomplete, got %+v", candidates[1])
	}

	prompt := capturedPrompt(t, body)
	if !strings.Contains(prompt, "The valve diameter limits flow.") {
		t.Error("prompt should contain the page content")
	}
	if !strings.Contains(prompt, "level 3 of 5") {
		t.Error("prompt should name the difficulty level")
	}
	if !strings.Contains(prompt, "application questions") {
		t.Error("prompt should carry the level 3 guideline")
	}
	if !strings.Contains(prompt, "- What is a valve?") {
		t.Error("prompt should list the avoid questions")
	}
}

func TestGenerateCandidatesNoAvoidList(t *testing.T) {
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(chatResponse("[]")))
	}))
	defer server.Close()

	gen := NewLLMGenerator(api.NewClient(testLogger()), generatorConfig(server.URL), testSecrets(), testLogger())

	candidates, err := gen.GenerateCandidates(context.Background(), "content", 1, nil)
	if err != nil {
		t.Fatalf("GenerateCandidates failed: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("got %d candidates, want 0", len(candidates))
	}

	if strings.Contains(capturedPrompt(t, body), "existing questions") {
		t.Error("prompt should not carry an avoid section when there is nothing to avoid")
	}
}

func TestGenerateCandidatesStripsThinkTags(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := "<think>level 2 means concepts, let me re-read the page</think>[{\"question\": \"Why does pressure drop?\", \"answer\": \"Friction losses.\", \"context\": \"Pressure drops from friction.\"}]"
		_, _ = w.Write([]byte(chatResponse(content)))
	}))
	defer server.Close()

	gen := NewLLMGenerator(api.NewClient(testLogger()), generatorConfig(server.URL), testSecrets(), testLogger())

	candidates, err := gen.GenerateCandidates(context.Background(), "content", 2, nil)
	if err != nil {
		t.Fatalf("GenerateCandidates failed: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Question != "Why does pressure drop?" {
		t.Errorf("candidates = %+v", candidates)
	}
}

func TestGenerateCandidatesSkipsMalformedEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := `[{"question": "Good?", "answer": "Yes.", "context": "ctx"}, "not an object", {"question": "Also good?", "answer": "Yes.", "context": "ctx"}]`
		_, _ = w.Write([]byte(chatResponse(content)))
	}))
	defer server.Close()

	gen := NewLLMGenerator(api.NewClient(testLogger()), generatorConfig(server.URL), testSecrets(), testLogger())

	candidates, err := gen.GenerateCandidates(context.Background(), "content", 1, nil)
	if err != nil {
		t.Fatalf("GenerateCandidates failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2 (string entry skipped)", len(candidates))
	}
}

func TestGenerateCandidatesNoArrayInResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chatResponse("I could not find any questions to ask about this page.")))
	}))
	defer server.Close()

	gen := NewLLMGenerator(api.NewClient(testLogger()), generatorConfig(server.URL), testSecrets(), testLogger())

	if _, err := gen.GenerateCandidates(context.Background(), "content", 1, nil); err == nil {
		t.Error("expected an error when the response carries no JSON array")
	}
}

func TestGenerateCandidatesRejectsUnknownDifficulty(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(chatResponse("[]")))
	}))
	defer server.Close()

	gen := NewLLMGenerator(api.NewClient(testLogger()), generatorConfig(server.URL), testSecrets(), testLogger())

	if _, err := gen.GenerateCandidates(context.Background(), "content", 7, nil); err == nil {
		t.Error("expected an error for difficulty 7")
	}
	if calls != 0 {
		t.Errorf("no HTTP call expected for an invalid difficulty, got %d", calls)
	}
}
