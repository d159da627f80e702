package config

import (
	"fmt"
	"os"
	"strings"
)

// Config represents the complete application configuration
type Config struct {
	General         GeneralConfig          `toml:"general"`
	Data            DataConfig             `toml:"data"`
	Models          map[string]ModelConfig `toml:"models"`
	Quality         QualityConfig          `toml:"quality"`
	PromptTemplates PromptTemplates        `toml:"prompt_templates"`
	HuggingFace     HuggingFaceConfig      `toml:"huggingface"`
}

// GeneralConfig holds pipeline-wide settings
type GeneralConfig struct {
	MaxDifficultyLevel int    `toml:"max_difficulty_level"` // Highest difficulty tier to generate (1-5)
	MinPairsPerCall    int    `toml:"min_pairs_per_call"`   // Lower bound requested per generation call
	MaxPairsPerCall    int    `toml:"max_pairs_per_call"`   // Upper bound requested per generation call
	ForceRestart       bool   `toml:"force_restart"`        // Discard valid checkpoints instead of resuming
	ReuseMarkdown      bool   `toml:"reuse_markdown"`       // Skip conversion when processed markdown already exists
	LogLevel           string `toml:"log_level"`            // debug, info, warn, error
	MetricsListenAddr  string `toml:"metrics_listen_addr"`  // Prometheus listen address, empty = disabled
}

// DataConfig holds the on-disk layout for pipeline artifacts
type DataConfig struct {
	InputDir     string `toml:"input_dir"`     // Source documents
	ProcessedDir string `toml:"processed_dir"` // Converted paginated markdown
	OutputDir    string `toml:"output_dir"`    // Final JSONL datasets
	ProgressDir  string `toml:"progress_dir"`  // Resumable checkpoints
	LogDir       string `toml:"log_dir"`       // Per-run JSON logs
}

// QualityConfig holds optional judge-based filtering settings
type QualityConfig struct {
	Enabled bool `toml:"enabled"` // Drop pairs whose question leaks its own answer
}

// ModelConfig represents configuration for a single model endpoint
type ModelConfig struct {
	BaseURL            string  `toml:"base_url"`
	ModelName          string  `toml:"model_name"`
	Temperature        float64 `toml:"temperature"`
	TopP               float64 `toml:"top_p"`
	MaxOutputTokens    int     `toml:"max_output_tokens"`
	ContextSize        int     `toml:"context_size"`
	RateLimitPerMinute int     `toml:"rate_limit_per_minute"`
	MaxBackoffSeconds  int     `toml:"max_backoff_seconds"`  // Optional: max backoff duration (default 120)
	MaxRetries         int     `toml:"max_retries"`          // Optional: max retry attempts (default 3, -1 = unlimited)
	HTTPTimeoutSeconds int     `toml:"http_timeout_seconds"` // Optional: HTTP request timeout (default 120, 0 = no timeout)
}

// PromptTemplates holds all customizable prompt templates
type PromptTemplates struct {
	QAGeneration     string `toml:"qa_generation"`     // Per-unit question generation prompt
	OCRCorrection    string `toml:"ocr_correction"`    // Used when the page has an embedded text layer
	OCRTranscription string `toml:"ocr_transcription"` // Used when the page is image-only
	JudgeLeakCheck   string `toml:"judge_leak_check"`  // Answer-leak verdict prompt
}

// HuggingFaceConfig holds Hugging Face Hub settings
type HuggingFaceConfig struct {
	RepoID string `toml:"repo_id"`
}

// Secrets holds sensitive credentials loaded from environment variables
type Secrets struct {
	APIKeys          map[string]string
	HuggingFaceToken string
}

const (
	// MinDifficultyLevel is the lowest difficulty tier
	MinDifficultyLevel = 1
	// MaxDifficultyLevelLimit is the highest difficulty tier the prompts define
	MaxDifficultyLevelLimit = 5
	// MaxPairsPerCallLimit caps how many pairs one call may request
	MaxPairsPerCallLimit = 20
)

// ModelRoles are the endpoint roles the pipeline can be configured with.
// "generator" is required; "ocr" falls back to the generator endpoint when
// absent; "judge" is required only when quality filtering is enabled.
var ModelRoles = []string{"generator", "ocr", "judge"}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.General.MaxDifficultyLevel < MinDifficultyLevel || c.General.MaxDifficultyLevel > MaxDifficultyLevelLimit {
		return fmt.Errorf("general.max_difficulty_level must be between %d and %d (got %d)",
			MinDifficultyLevel, MaxDifficultyLevelLimit, c.General.MaxDifficultyLevel)
	}
	if c.General.MinPairsPerCall < 1 {
		return fmt.Errorf("general.min_pairs_per_call must be at least 1 (got %d)", c.General.MinPairsPerCall)
	}
	if c.General.MaxPairsPerCall < c.General.MinPairsPerCall {
		return fmt.Errorf("general.max_pairs_per_call (%d) must not be less than min_pairs_per_call (%d)",
			c.General.MaxPairsPerCall, c.General.MinPairsPerCall)
	}
	if c.General.MaxPairsPerCall > MaxPairsPerCallLimit {
		return fmt.Errorf("general.max_pairs_per_call must not exceed %d (got %d)",
			MaxPairsPerCallLimit, c.General.MaxPairsPerCall)
	}
	switch c.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("general.log_level must be one of: debug, info, warn, error (got %s)", c.General.LogLevel)
	}

	for _, dir := range []struct {
		name  string
		value string
	}{
		{"data.input_dir", c.Data.InputDir},
		{"data.processed_dir", c.Data.ProcessedDir},
		{"data.output_dir", c.Data.OutputDir},
		{"data.progress_dir", c.Data.ProgressDir},
		{"data.log_dir", c.Data.LogDir},
	} {
		if dir.value == "" {
			return fmt.Errorf("%s must not be empty", dir.name)
		}
	}

	// Validate generator model exists
	generator, ok := c.Models["generator"]
	if !ok {
		return fmt.Errorf("models.generator is required")
	}
	if err := validateModelConfig("generator", generator); err != nil {
		return err
	}

	// OCR model is optional; when present it must be complete
	if ocr, ok := c.Models["ocr"]; ok {
		if err := validateModelConfig("ocr", ocr); err != nil {
			return err
		}
	}

	// Judge model is required only when quality filtering is enabled
	judge, judgeExists := c.Models["judge"]
	if c.Quality.Enabled {
		if !judgeExists {
			return fmt.Errorf("quality.enabled=true requires models.judge")
		}
		if err := validateModelConfig("judge", judge); err != nil {
			return err
		}
	}

	for name := range c.Models {
		if !isKnownRole(name) {
			return fmt.Errorf("models.%s is not a recognized role (expected one of: %s)",
				name, strings.Join(ModelRoles, ", "))
		}
	}

	return nil
}

// GeneratorModel returns the QA generation endpoint configuration.
func (c *Config) GeneratorModel() ModelConfig {
	return c.Models["generator"]
}

// OCRModel returns the OCR endpoint configuration, falling back to the
// generator endpoint when no dedicated OCR model is configured.
func (c *Config) OCRModel() ModelConfig {
	if mc, ok := c.Models["ocr"]; ok {
		return mc
	}
	return c.Models["generator"]
}

// JudgeModel returns the quality judge endpoint configuration and whether one
// is configured.
func (c *Config) JudgeModel() (ModelConfig, bool) {
	mc, ok := c.Models["judge"]
	return mc, ok
}

func isKnownRole(name string) bool {
	for _, role := range ModelRoles {
		if name == role {
			return true
		}
	}
	return false
}

func validateModelConfig(name string, mc ModelConfig) error {
	if mc.BaseURL == "" {
		return fmt.Errorf("models.%s.base_url is required", name)
	}
	if mc.ModelName == "" {
		return fmt.Errorf("models.%s.model_name is required", name)
	}
	if mc.Temperature < 0 || mc.Temperature > 2 {
		return fmt.Errorf("models.%s.temperature must be between 0 and 2", name)
	}
	if mc.TopP < 0 || mc.TopP > 1 {
		return fmt.Errorf("models.%s.top_p must be between 0 and 1", name)
	}
	if mc.MaxOutputTokens < 1 {
		return fmt.Errorf("models.%s.max_output_tokens must be at least 1", name)
	}
	if mc.ContextSize < 1 {
		return fmt.Errorf("models.%s.context_size must be at least 1", name)
	}
	if mc.RateLimitPerMinute < 1 {
		return fmt.Errorf("models.%s.rate_limit_per_minute must be at least 1", name)
	}
	if mc.MaxOutputTokens > mc.ContextSize {
		return fmt.Errorf("models.%s.max_output_tokens (%d) must not exceed context_size (%d)",
			name, mc.MaxOutputTokens, mc.ContextSize)
	}
	return nil
}

// LoadSecrets loads sensitive credentials from environment variables
func LoadSecrets() (*Secrets, error) {
	secrets := &Secrets{
		APIKeys: make(map[string]string),
	}

	// Load generic API key (provider-agnostic)
	if key := os.Getenv("CORPUSFORGE_API_KEY"); key != "" {
		secrets.APIKeys["generic"] = key
	}
	if key := os.Getenv("API_KEY"); key != "" && secrets.APIKeys["generic"] == "" {
		secrets.APIKeys["generic"] = key
	}

	// Load provider-specific API keys (optional, override generic)
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		secrets.APIKeys["openai"] = key
	}
	if key := os.Getenv("AZURE_OPENAI_API_KEY"); key != "" {
		secrets.APIKeys["azure"] = key
	}
	if key := os.Getenv("NVIDIA_API_KEY"); key != "" {
		secrets.APIKeys["nvidia"] = key
	}
	if key := os.Getenv("TOGETHER_API_KEY"); key != "" {
		secrets.APIKeys["together"] = key
	}

	// Load Hugging Face token
	secrets.HuggingFaceToken = os.Getenv("HF_TOKEN")
	if secrets.HuggingFaceToken == "" {
		secrets.HuggingFaceToken = os.Getenv("HUGGING_FACE_TOKEN")
	}

	return secrets, nil
}

// GetAPIKey returns the API key for a given base URL
func (s *Secrets) GetAPIKey(baseURL string) string {
	// Try to match common provider domains (provider-specific keys)
	if strings.Contains(baseURL, "openai.azure.com") {
		if key := s.APIKeys["azure"]; key != "" {
			return key
		}
	}
	if strings.Contains(baseURL, "openai.com") {
		if key := s.APIKeys["openai"]; key != "" {
			return key
		}
	}
	if strings.Contains(baseURL, "nvidia.com") {
		if key := s.APIKeys["nvidia"]; key != "" {
			return key
		}
	}
	if strings.Contains(baseURL, "together.xyz") || strings.Contains(baseURL, "together.ai") {
		if key := s.APIKeys["together"]; key != "" {
			return key
		}
	}

	// Fall back to the generic key for any OpenAI-compatible provider
	if key := s.APIKeys["generic"]; key != "" {
		return key
	}

	// If no key found, return empty (could be local server without auth)
	return ""
}

// GetProviderName extracts a provider name from a base URL for rate limiting
func GetProviderName(baseURL string) string {
	if strings.Contains(baseURL, "openai.azure.com") {
		return "azure"
	}
	if strings.Contains(baseURL, "openai.com") {
		return "openai"
	}
	if strings.Contains(baseURL, "nvidia.com") {
		return "nvidia"
	}
	if strings.Contains(baseURL, "together.xyz") || strings.Contains(baseURL, "together.ai") {
		return "together"
	}
	// For localhost or unknown providers, use the full base URL as provider name
	return baseURL
}
