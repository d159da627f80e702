package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Load reads and parses the configuration file and environment variables
func Load(configPath string) (*Config, *Secrets, error) {
	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse TOML
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply defaults
	applyDefaults(&cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Additional input validation
	if err := cfg.ValidateInputs(); err != nil {
		return nil, nil, fmt.Errorf("input validation failed: %w", err)
	}

	// Load secrets from environment
	secrets, err := LoadSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	return &cfg, secrets, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	// General defaults
	if cfg.General.MaxDifficultyLevel == 0 {
		cfg.General.MaxDifficultyLevel = 5
	}
	if cfg.General.MinPairsPerCall == 0 {
		cfg.General.MinPairsPerCall = 3
	}
	if cfg.General.MaxPairsPerCall == 0 {
		cfg.General.MaxPairsPerCall = 5
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}

	// Data layout defaults
	if cfg.Data.InputDir == "" {
		cfg.Data.InputDir = "data/input"
	}
	if cfg.Data.ProcessedDir == "" {
		cfg.Data.ProcessedDir = "data/processed"
	}
	if cfg.Data.OutputDir == "" {
		cfg.Data.OutputDir = "data/output"
	}
	if cfg.Data.ProgressDir == "" {
		cfg.Data.ProgressDir = "data/progress"
	}
	if cfg.Data.LogDir == "" {
		cfg.Data.LogDir = "data/logs"
	}

	// Apply defaults for each model
	for name, model := range cfg.Models {
		if model.Temperature == 0 {
			model.Temperature = 0.7
		}
		if model.TopP == 0 {
			model.TopP = 1.0
		}
		if model.MaxOutputTokens == 0 {
			model.MaxOutputTokens = 4096
		}
		if model.ContextSize == 0 {
			model.ContextSize = 16384
		}
		if model.RateLimitPerMinute == 0 {
			model.RateLimitPerMinute = 60
		}
		if model.MaxBackoffSeconds == 0 {
			model.MaxBackoffSeconds = 120
		}
		// In TOML, 0 is indistinguishable from unset, so:
		// - Unset (0) defaults to 3
		// - Explicitly -1 means unlimited retries
		if model.MaxRetries == 0 {
			model.MaxRetries = 3
		}
		if model.HTTPTimeoutSeconds == 0 {
			model.HTTPTimeoutSeconds = 120
		}
		cfg.Models[name] = model
	}

	// Apply default templates if not provided
	if cfg.PromptTemplates.QAGeneration == "" {
		cfg.PromptTemplates.QAGeneration = GetDefaultQATemplate()
	}
	if cfg.PromptTemplates.OCRCorrection == "" {
		cfg.PromptTemplates.OCRCorrection = GetDefaultOCRCorrectionTemplate()
	}
	if cfg.PromptTemplates.OCRTranscription == "" {
		cfg.PromptTemplates.OCRTranscription = GetDefaultOCRTranscriptionTemplate()
	}
	if cfg.PromptTemplates.JudgeLeakCheck == "" {
		cfg.PromptTemplates.JudgeLeakCheck = GetDefaultJudgeLeakTemplate()
	}
}
