package convert

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lamim/corpusforge/internal/api"
	"github.com/lamim/corpusforge/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func converterConfig(baseURL string) *config.Config {
	cfg := &config.Config{}
	cfg.PromptTemplates.OCRCorrection = config.GetDefaultOCRCorrectionTemplate()
	cfg.PromptTemplates.OCRTranscription = config.GetDefaultOCRTranscriptionTemplate()
	cfg.Models = map[string]config.ModelConfig{
		"generator": {
			BaseURL:            baseURL,
			ModelName:          "ocr-model",
			Temperature:        0.1,
			TopP:               1.0,
			MaxOutputTokens:    4096,
			RateLimitPerMinute: 600,
			MaxRetries:         0,
			MaxBackoffSeconds:  1,
			HTTPTimeoutSeconds: 30,
		},
	}
	return cfg
}

func TestOCRPromptWithTextLayer(t *testing.T) {
	c := New(converterConfig("http://localhost"), &config.Secrets{}, api.NewClient(testLogger()), testLogger())

	prompt, err := c.ocrPrompt("Der Druck betraegt 3,5 bar.")
	if err != nil {
		t.Fatalf("ocrPrompt failed: %v", err)
	}
	if !strings.Contains(prompt, "Der Druck betraegt 3,5 bar.") {
		t.Error("correction prompt should carry the extracted text")
	}
	if !strings.Contains(prompt, "EXTRACTED TEXT") {
		t.Error("correction prompt should use the correction template")
	}
}

func TestOCRPromptWithoutTextLayer(t *testing.T) {
	c := New(converterConfig("http://localhost"), &config.Secrets{}, api.NewClient(testLogger()), testLogger())

	for _, text := range []string{"", "   \n\t "} {
		prompt, err := c.ocrPrompt(text)
		if err != nil {
			t.Fatalf("ocrPrompt(%q) failed: %v", text, err)
		}
		if !strings.Contains(prompt, "Transcribe the attached page image") {
			t.Errorf("ocrPrompt(%q) should use the transcription template", text)
		}
		if strings.Contains(prompt, "EXTRACTED TEXT") {
			t.Errorf("ocrPrompt(%q) should not reference extracted text", text)
		}
	}
}

func TestConvertMissingPDF(t *testing.T) {
	c := New(converterConfig("http://localhost"), &config.Secrets{}, api.NewClient(testLogger()), testLogger())

	_, err := c.Convert(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"), filepath.Join(t.TempDir(), "out.md"), nil)
	if err == nil {
		t.Error("Convert of a missing pdf should fail")
	}
}

// TestConvertSamplePDF runs the full conversion against a real fixture when
// one is present. Drop any small PDF at testdata/sample.pdf to enable it.
func TestConvertSamplePDF(t *testing.T) {
	fixture := filepath.Join("testdata", "sample.pdf")
	if _, err := os.Stat(fixture); os.IsNotExist(err) {
		t.Skipf("fixture %s not present", fixture)
	}

	var sawImagePart bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content []struct {
					Type string `json:"type"`
				} `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			for _, m := range req.Messages {
				for _, part := range m.Content {
					if part.Type == "image_url" {
						sawImagePart = true
					}
				}
			}
		}

		body, _ := json.Marshal(map[string]interface{}{
			"id":     "ocr-1",
			"object": "chat.completion",
			"model":  "ocr-model",
			"choices": []map[string]interface{}{
				{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": "# Heading\n\nPage body text."},
					"finish_reason": "stop",
				},
			},
		})
		_, _ = w.Write(body)
	}))
	defer server.Close()

	outPath := filepath.Join(t.TempDir(), "sample.md")
	c := New(converterConfig(server.URL), &config.Secrets{}, api.NewClient(testLogger()), testLogger())

	pageCount, err := c.Convert(context.Background(), fixture, outPath, nil)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if pageCount < 1 {
		t.Fatalf("pageCount = %d, want at least 1", pageCount)
	}
	if !sawImagePart {
		t.Error("OCR request should carry an image_url content part")
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if !strings.Contains(string(data), "## Page 1") {
		t.Errorf("output missing page marker:\n%s", string(data))
	}
	if !strings.Contains(string(data), "Page body text.") {
		t.Error("output missing OCR content")
	}
}
