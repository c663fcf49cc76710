package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, "evals", c.Evals.Root)
	assert.Equal(t, 4, c.Evals.MaxConcurrentCases)
	assert.Equal(t, 5, c.Evals.JudgeSlots)
	assert.Equal(t, "anthropic", c.Judge.Provider)
	assert.Equal(t, "claude-sonnet-4-5-20250929", c.Judge.Model)
	assert.Equal(t, 60*time.Second, c.Judge.Timeout())
	assert.Equal(t, time.Second, c.Judge.InitialBackoff())
	assert.Equal(t, 3, c.Judge.MaxRetries)
	assert.Equal(t, 5*time.Minute, c.Generators.Timeout())
	require.NoError(t, c.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
evals:
  root: fixtures/evals
  max_concurrent_cases: 8
judge:
  provider: gemini
  model: gemini-2.5-flash
  timeout_sec: 30
generators:
  security:
    command: "review-security {artifact}"
  timeout_sec: 120
`), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fixtures/evals", c.Evals.Root)
	assert.Equal(t, 8, c.Evals.MaxConcurrentCases)
	assert.Equal(t, 5, c.Evals.JudgeSlots, "unset keys keep defaults")
	assert.Equal(t, "gemini", c.Judge.Provider)
	assert.Equal(t, 30*time.Second, c.Judge.Timeout())
	assert.Equal(t, "review-security {artifact}", c.Generators.Security.Command)
	assert.Equal(t, 2*time.Minute, c.Generators.Timeout())
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("evals: [not: a: map"), 0644))
	_, err := Load(path)
	require.Error(t, err)
}

func envOf(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Run("anthropic key", func(t *testing.T) {
		c := Default()
		c.ApplyEnvOverrides(envOf(map[string]string{"EVALS_ANTHROPIC_API_KEY": "sk-test"}))
		assert.Equal(t, "sk-test", c.Judge.APIKey)
		assert.Equal(t, "anthropic", c.Judge.Provider)
	})

	t.Run("gemini fallback", func(t *testing.T) {
		c := Default()
		c.ApplyEnvOverrides(envOf(map[string]string{"GEMINI_API_KEY": "g-test"}))
		assert.Equal(t, "g-test", c.Judge.APIKey)
		assert.Equal(t, "gemini", c.Judge.Provider)
	})

	t.Run("anthropic key wins over gemini", func(t *testing.T) {
		c := Default()
		c.ApplyEnvOverrides(envOf(map[string]string{
			"EVALS_ANTHROPIC_API_KEY": "sk-test",
			"GEMINI_API_KEY":          "g-test",
		}))
		assert.Equal(t, "sk-test", c.Judge.APIKey)
		assert.Equal(t, "anthropic", c.Judge.Provider)
	})

	t.Run("explicit provider override", func(t *testing.T) {
		c := Default()
		c.ApplyEnvOverrides(envOf(map[string]string{
			"EVALS_ANTHROPIC_API_KEY": "sk-test",
			"EVALS_JUDGE_PROVIDER":    "gemini",
			"EVALS_JUDGE_MODEL":       "gemini-2.5-pro",
		}))
		assert.Equal(t, "gemini", c.Judge.Provider)
		assert.Equal(t, "gemini-2.5-pro", c.Judge.Model)
	})

	t.Run("numeric and boolean overrides", func(t *testing.T) {
		c := Default()
		c.ApplyEnvOverrides(envOf(map[string]string{
			"EVALS_ROOT":                 "other/evals",
			"EVALS_MAX_CONCURRENT_CASES": "2",
			"EVALS_DEBUG":                "true",
		}))
		assert.Equal(t, "other/evals", c.Evals.Root)
		assert.Equal(t, 2, c.Evals.MaxConcurrentCases)
		assert.True(t, c.Logging.DebugMode)
	})

	t.Run("invalid numeric ignored", func(t *testing.T) {
		c := Default()
		c.ApplyEnvOverrides(envOf(map[string]string{"EVALS_MAX_CONCURRENT_CASES": "zero"}))
		assert.Equal(t, 4, c.Evals.MaxConcurrentCases)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty root", func(c *Config) { c.Evals.Root = "" }},
		{"zero concurrency", func(c *Config) { c.Evals.MaxConcurrentCases = 0 }},
		{"zero judge slots", func(c *Config) { c.Evals.JudgeSlots = 0 }},
		{"unknown provider", func(c *Config) { c.Judge.Provider = "openai" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
