package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, ":5000", cfg.Addr())
	assert.Equal(t, DefaultAllowedOrigins, cfg.AllowedOrigins)
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, DefaultOpenAIModel, cfg.LLM.Model)
	assert.Equal(t, DefaultLLMTimeout, cfg.LLM.Timeout)
	assert.False(t, cfg.RateLimit.Enabled())
}

func TestLoad_Env(t *testing.T) {
	cfg, err := Load("", envMap(map[string]string{
		EnvPort:               "3000",
		EnvAllowedOrigins:     "http://a.test, http://b.test ,",
		EnvLLMTimeout:         "90",
		EnvLLMTemperature:     "0.7",
		EnvRateLimitPerMinute: "30",
		EnvRateLimitBurst:     "5",
		EnvMaxUploadBytes:     "1024",
		EnvLLMProxy:           "http://proxy.test:3128",
	}))
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, 90*time.Second, cfg.LLM.Timeout)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-9)
	assert.True(t, cfg.RateLimit.Enabled())
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Equal(t, int64(1024), cfg.MaxUploadBytes)
	assert.Equal(t, "http://proxy.test:3128", cfg.LLM.Proxy)
}

func TestLoad_OllamaDefaults(t *testing.T) {
	cfg, err := Load("", envMap(map[string]string{EnvLLMProvider: "Ollama"}))
	require.NoError(t, err)

	assert.Equal(t, ProviderOllama, cfg.LLM.Provider)
	assert.Equal(t, DefaultOllamaModel, cfg.LLM.Model)
	assert.Equal(t, DefaultOllamaURL, cfg.LLM.BaseURL)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reviewer.yaml")
	content := `port: "8080"
allowed_origins:
  - https://example.test
llm:
  model: gpt-4o
  timeout: 2m
rate_limit:
  requests_per_minute: 12
  burst: 3
server:
  write_timeout: 10m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path, envMap(map[string]string{EnvLLMModel: "gpt-4.1-mini"}))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"https://example.test"}, cfg.AllowedOrigins)
	assert.Equal(t, "gpt-4.1-mini", cfg.LLM.Model, "env overrides file")
	assert.Equal(t, 2*time.Minute, cfg.LLM.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, DefaultShutdownTimeout, cfg.Server.ShutdownTimeout, "unset keys keep defaults")
	assert.Equal(t, 3, cfg.RateLimit.Burst)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad port", env: map[string]string{EnvPort: "http"}},
		{name: "port out of range", env: map[string]string{EnvPort: "70000"}},
		{name: "unknown provider", env: map[string]string{EnvLLMProvider: "carrier-pigeon"}},
		{name: "bad timeout", env: map[string]string{EnvLLMTimeout: "soon"}},
		{name: "negative timeout", env: map[string]string{EnvLLMTimeout: "-5"}},
		{name: "temperature too high", env: map[string]string{EnvLLMTemperature: "3"}},
		{name: "bad upload limit", env: map[string]string{EnvMaxUploadBytes: "lots"}},
		{name: "relative proxy", env: map[string]string{EnvLLMProxy: "proxy.test:3128"}},
		{name: "zero burst with limit", env: map[string]string{EnvRateLimitPerMinute: "10", EnvRateLimitBurst: "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("", envMap(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), envMap(nil))
	assert.ErrorContains(t, err, "failed to read config file")
}
