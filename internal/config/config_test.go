package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-llm-key")
	t.Setenv("TAVILY_API_KEY", "test-tavily-key")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Research.MaxVerificationRetries)
	assert.Equal(t, 70, cfg.Research.ConfidenceThreshold)
	assert.Equal(t, 5, cfg.Research.MaxSearchResults)
	assert.Equal(t, 3, cfg.Tools.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.LLM.InterCallDelay)
	assert.Equal(t, "deepresearch-tasks", cfg.Temporal.TaskQueue)
	assert.Equal(t, "test-llm-key", cfg.LLM.APIKey)
	assert.Equal(t, "test-tavily-key", cfg.Tools.TavilyAPIKey)
}

func TestLoadMissingCredentials(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("TAVILY_API_KEY", "")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, research.IsConfigurationError(err))
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deepresearch.yaml")
	body := []byte(`
llm:
  api_key: file-key
  model: llama-3.3-70b-versatile
tools:
  tavily_api_key: file-tavily
research:
  confidence_threshold: 80
`)
	require.NoError(t, os.WriteFile(path, body, 0o644))
	t.Setenv("DEEPRESEARCH_RESEARCH_MAX_SEARCH_RESULTS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.LLM.Model)
	assert.Equal(t, 80, cfg.Research.ConfidenceThreshold)
	assert.Equal(t, 7, cfg.Research.MaxSearchResults)
}

func TestValidateThresholdRange(t *testing.T) {
	cfg := &Config{}
	cfg.LLM.APIKey = "k"
	cfg.Tools.TavilyAPIKey = "k"
	cfg.Research.ConfidenceThreshold = 170
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, research.IsConfigurationError(err))
}
