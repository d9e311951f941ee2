package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 120*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 1048576, cfg.Server.BodyLimit)

	assert.Equal(t, "./data/rules.json", cfg.Storage.RulesFile)
	assert.Equal(t, 1024, cfg.Cache.MaxSize)

	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "http://localhost:11434", cfg.LLM.BaseURL)
	assert.Equal(t, "mistral:latest", cfg.LLM.Model)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)

	assert.Equal(t, float64(0), cfg.Scoring.MinScore)
	assert.Equal(t, float64(10), cfg.Scoring.MaxScore)
	assert.Equal(t, float64(2), cfg.Scoring.Baseline)
	assert.Equal(t, float64(1), cfg.Scoring.Increment)
	assert.Equal(t, float64(1), cfg.Scoring.Decrement)

	assert.Equal(t, 2, cfg.Synthesis.MaxAttempts)
	assert.True(t, cfg.Synthesis.SeedRule)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RULES_FILE", "/tmp/rules.yaml")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("SCORE_BASELINE", "5")
	t.Setenv("SYNTHESIS_MAX_ATTEMPTS", "4")
	t.Setenv("CORS_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/rules.yaml", cfg.Storage.RulesFile)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, float64(5), cfg.Scoring.Baseline)
	assert.Equal(t, 4, cfg.Synthesis.MaxAttempts)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Security.CORSOrigins)
}

func TestLoad_InvalidProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "anthropic")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_OpenAIRequiresAPIKey(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("LLM_API_KEY", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ScoreBoundsValidated(t *testing.T) {
	t.Setenv("SCORE_MIN", "5")
	t.Setenv("SCORE_MAX", "5")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_BaselineMustBeInRange(t *testing.T) {
	t.Setenv("SCORE_BASELINE", "99")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ModelTimeoutMinimum(t *testing.T) {
	t.Setenv("LLM_TIMEOUT", "100ms")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidCORSOrigin(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "ftp://not-a-web-origin")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_WildcardCORSOrigin(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "*")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, cfg.Security.CORSOrigins)
}
