package util

import (
	"strings"
	"testing"
)

func TestRenderTemplate_Basic(t *testing.T) {
	tmpl := "Difficulty {{.DifficultyLevel}} of {{.MaxDifficultyLevel}}."
	data := map[string]interface{}{
		"DifficultyLevel":    2,
		"MaxDifficultyLevel": 5,
	}

	result, err := RenderTemplate(tmpl, data)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := "Difficulty 2 of 5."
	if result != expected {
		t.Errorf("Expected '%s', got '%s'", expected, result)
	}
}

func TestRenderTemplate_PageContent(t *testing.T) {
	tmpl := "PAGE CONTENT:\n{{.Content}}\n\nGenerate {{.MinPairs}} to {{.MaxPairs}} pairs."
	data := map[string]interface{}{
		"Content":  "The TCP handshake has three steps.",
		"MinPairs": 3,
		"MaxPairs": 5,
	}

	result, err := RenderTemplate(tmpl, data)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !strings.Contains(result, "TCP handshake") {
		t.Errorf("Result should contain the page content: %s", result)
	}
	if !strings.Contains(result, "3 to 5 pairs") {
		t.Errorf("Result should contain the pair range: %s", result)
	}
}

func TestRenderTemplate_InvalidTemplate(t *testing.T) {
	tmpl := "Content {{.Content" // Missing closing braces
	data := map[string]interface{}{
		"Content": "text",
	}

	_, err := RenderTemplate(tmpl, data)
	if err == nil {
		t.Error("Expected error for invalid template, got nil")
	}
}

func TestRenderTemplate_MissingKey(t *testing.T) {
	tmpl := "Content: {{.Content}}"
	data := map[string]interface{}{}

	// missingkey=error makes placeholder typos loud
	_, err := RenderTemplate(tmpl, data)
	if err == nil {
		t.Error("Expected error for missing key, got nil")
	}
}

func TestRenderTemplate_ForbiddenDirective(t *testing.T) {
	tests := []string{
		`{{call .F}}`,
		`{{define "x"}}y{{end}}`,
		`{{template "x"}}`,
		`{{block "x" .}}y{{end}}`,
	}

	for _, tmpl := range tests {
		t.Run(tmpl, func(t *testing.T) {
			_, err := RenderTemplate(tmpl, map[string]interface{}{})
			if err == nil {
				t.Errorf("Expected error for forbidden directive in %q", tmpl)
			}
		})
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{
			name:   "under limit",
			input:  "short",
			maxLen: 10,
			want:   "short",
		},
		{
			name:   "over limit",
			input:  "this is a longer string",
			maxLen: 4,
			want:   "this...",
		},
		{
			name:   "multibyte runes",
			input:  "日本語のテキスト",
			maxLen: 3,
			want:   "日本語...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateString(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("TruncateString() = %q, want %q", got, tt.want)
			}
		})
	}
}
