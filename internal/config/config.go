package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the Visceral agent service
type Config struct {
	Server struct {
		Port         int           `env:"PORT" envDefault:"8080" validate:"min=1,max=65535"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"120s"`
		BodyLimit    int           `env:"BODY_LIMIT" envDefault:"1048576" validate:"min=1"` // 1MB
	}

	Storage struct {
		// RulesFile is the snapshot the rule collection is loaded from and
		// flushed to on every mutation; .yaml/.yml selects YAML, otherwise JSON
		RulesFile string `env:"RULES_FILE" envDefault:"./data/rules.json"`
	}

	Cache struct {
		MaxSize int `env:"CACHE_MAX_SIZE" envDefault:"1024" validate:"min=16"`
	}

	LLM struct {
		Provider string        `env:"LLM_PROVIDER" envDefault:"ollama" validate:"oneof=ollama openai"`
		BaseURL  string        `env:"LLM_BASE_URL" envDefault:"http://localhost:11434"`
		Model    string        `env:"LLM_MODEL" envDefault:"mistral:latest"`
		APIKey   string        `env:"LLM_API_KEY"`
		Timeout  time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
	}

	Scoring struct {
		MinScore  float64 `env:"SCORE_MIN" envDefault:"0"`
		MaxScore  float64 `env:"SCORE_MAX" envDefault:"10"`
		Baseline  float64 `env:"SCORE_BASELINE" envDefault:"2"`
		Increment float64 `env:"SCORE_INCREMENT" envDefault:"1" validate:"gt=0"`
		Decrement float64 `env:"SCORE_DECREMENT" envDefault:"1" validate:"gt=0"`
	}

	Synthesis struct {
		MaxAttempts int  `env:"SYNTHESIS_MAX_ATTEMPTS" envDefault:"2" validate:"min=1,max=10"`
		SeedRule    bool `env:"SEED_DEFAULT_RULE" envDefault:"true"`
	}

	Security struct {
		CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," validate:"cors_origins"`
	}

	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
		Format string `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json text"`
	}
}

// Load loads configuration from environment variables and .env files
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration using struct tags
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.RegisterValidation("cors_origins", validateCORSOrigins); err != nil {
		return fmt.Errorf("failed to register cors_origins validation: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

// validateCORSOrigins validates CORS origins format
func validateCORSOrigins(fl validator.FieldLevel) bool {
	origins := fl.Field().Interface().([]string)
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return false
		}
	}
	return true
}

// validateCustomRules performs additional validation beyond struct tags
func validateCustomRules(cfg *Config) error {
	if cfg.Storage.RulesFile == "" {
		return fmt.Errorf("rules file path cannot be empty")
	}

	if cfg.Server.ReadTimeout < time.Millisecond {
		return fmt.Errorf("read timeout must be at least 1ms")
	}
	if cfg.Server.WriteTimeout < time.Millisecond {
		return fmt.Errorf("write timeout must be at least 1ms")
	}

	if cfg.Scoring.MaxScore <= cfg.Scoring.MinScore {
		return fmt.Errorf("score maximum must be greater than score minimum")
	}
	if cfg.Scoring.Baseline < cfg.Scoring.MinScore || cfg.Scoring.Baseline > cfg.Scoring.MaxScore {
		return fmt.Errorf("score baseline must lie within [min, max]")
	}

	if cfg.LLM.Provider == "ollama" && cfg.LLM.BaseURL == "" {
		return fmt.Errorf("ollama provider requires a base URL")
	}
	if cfg.LLM.Provider == "openai" && cfg.LLM.APIKey == "" {
		return fmt.Errorf("openai provider requires an API key")
	}
	if cfg.LLM.Timeout < time.Second {
		return fmt.Errorf("model timeout must be at least 1 second")
	}

	return nil
}

// EnsureDirectories creates the directory holding the rule snapshot
func (cfg *Config) EnsureDirectories() error {
	dir := filepath.Dir(cfg.Storage.RulesFile)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", dir, err)
		}
	}
	return nil
}

// formatValidationError formats validation errors into readable messages
func formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var messages []string
		for _, e := range validationErrors {
			switch e.Tag() {
			case "required":
				messages = append(messages, fmt.Sprintf("%s is required", e.Field()))
			case "min":
				messages = append(messages, fmt.Sprintf("%s must be at least %s", e.Field(), e.Param()))
			case "max":
				messages = append(messages, fmt.Sprintf("%s must be at most %s", e.Field(), e.Param()))
			case "gt":
				messages = append(messages, fmt.Sprintf("%s must be greater than %s", e.Field(), e.Param()))
			case "oneof":
				messages = append(messages, fmt.Sprintf("%s must be one of: %s", e.Field(), e.Param()))
			case "cors_origins":
				messages = append(messages, fmt.Sprintf("%s contains invalid origin format", e.Field()))
			default:
				messages = append(messages, fmt.Sprintf("%s failed validation: %s", e.Field(), e.Tag()))
			}
		}
		return fmt.Errorf("validation errors: %s", strings.Join(messages, "; "))
	}
	return err
}
