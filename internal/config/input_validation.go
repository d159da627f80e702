package config

import (
	"fmt"
	"net/url"
	"unicode"
)

const (
	// MaxModelNameLength is the maximum allowed length for model names
	MaxModelNameLength = 100

	// MaxTemplateSize is the maximum allowed size for template content
	MaxTemplateSize = 50 * 1024 // 50KB

	// MaxDataPathLength is the maximum allowed length for data directory paths
	MaxDataPathLength = 4096
)

// ValidateInputs performs additional validation on user-controllable fields.
// This prevents oversized templates, malformed endpoints, and path values
// that would fail in confusing ways deep inside the pipeline.
func (c *Config) ValidateInputs() error {
	// Validate model configurations
	for name, mc := range c.Models {
		if err := validateModelName(mc.ModelName, name); err != nil {
			return err
		}

		if err := validateBaseURL(mc.BaseURL, name); err != nil {
			return err
		}
	}

	// Validate template sizes
	if err := c.validateTemplateSizes(); err != nil {
		return err
	}

	// Validate data directory paths
	if err := c.validateDataPaths(); err != nil {
		return err
	}

	return nil
}

// validateModelName checks model name for malformed values
func validateModelName(modelName, configKey string) error {
	if len(modelName) > MaxModelNameLength {
		return fmt.Errorf("model '%s' name exceeds maximum length of %d (got %d)",
			configKey, MaxModelNameLength, len(modelName))
	}

	// Check for control characters
	if containsControlChars(modelName) {
		return fmt.Errorf("model '%s' name contains invalid control characters", configKey)
	}

	return nil
}

// validateBaseURL checks that the base URL is properly formatted and safe
func validateBaseURL(baseURL, configKey string) error {
	// Parse URL
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("model '%s' has invalid base_url: %w", configKey, err)
	}

	// Check scheme
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("model '%s' base_url must use http or https scheme (got %s)",
			configKey, u.Scheme)
	}

	// Check host is present
	if u.Host == "" {
		return fmt.Errorf("model '%s' base_url must have a host", configKey)
	}

	return nil
}

// validateTemplateSizes checks that templates are within reasonable size limits
func (c *Config) validateTemplateSizes() error {
	templates := []struct {
		name  string
		value string
	}{
		{"qa_generation", c.PromptTemplates.QAGeneration},
		{"ocr_correction", c.PromptTemplates.OCRCorrection},
		{"ocr_transcription", c.PromptTemplates.OCRTranscription},
		{"judge_leak_check", c.PromptTemplates.JudgeLeakCheck},
	}

	for _, tmpl := range templates {
		if len(tmpl.value) > MaxTemplateSize {
			return fmt.Errorf("template '%s' exceeds maximum size of %d bytes (got %d)",
				tmpl.name, MaxTemplateSize, len(tmpl.value))
		}
	}

	return nil
}

// validateDataPaths checks that configured data directories are sane paths
func (c *Config) validateDataPaths() error {
	paths := []struct {
		name  string
		value string
	}{
		{"data.input_dir", c.Data.InputDir},
		{"data.processed_dir", c.Data.ProcessedDir},
		{"data.output_dir", c.Data.OutputDir},
		{"data.progress_dir", c.Data.ProgressDir},
		{"data.log_dir", c.Data.LogDir},
	}

	for _, p := range paths {
		if len(p.value) > MaxDataPathLength {
			return fmt.Errorf("%s exceeds maximum length of %d (got %d)",
				p.name, MaxDataPathLength, len(p.value))
		}
		if containsControlChars(p.value) {
			return fmt.Errorf("%s contains invalid control characters", p.name)
		}
	}

	return nil
}

// containsControlChars checks if a string contains control characters
// (excluding newlines, tabs, and carriage returns which are acceptable)
func containsControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return true
		}
	}
	return false
}
