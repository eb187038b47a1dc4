// Package config builds the immutable server configuration from defaults, an
// optional YAML file and the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by Load
const (
	EnvConfigPath         = "REVIEWER_CONFIG"
	EnvPort               = "PORT"
	EnvAllowedOrigins     = "REVIEWER_ALLOWED_ORIGINS"
	EnvMaxUploadBytes     = "REVIEWER_MAX_UPLOAD_BYTES"
	EnvMaxPDFPages        = "REVIEWER_MAX_PDF_PAGES"
	EnvLLMProvider        = "REVIEWER_LLM_PROVIDER"
	EnvLLMModel           = "REVIEWER_LLM_MODEL"
	EnvLLMBaseURL         = "REVIEWER_LLM_BASE_URL"
	EnvLLMAPIKey          = "REVIEWER_LLM_API_KEY" // #nosec G101 -- env var name, not a credential
	EnvLLMTimeout         = "REVIEWER_LLM_TIMEOUT"
	EnvLLMTemperature     = "REVIEWER_LLM_TEMPERATURE"
	EnvLLMMaxTokens       = "REVIEWER_LLM_MAX_TOKENS"
	EnvLLMMaxContentChars = "REVIEWER_LLM_MAX_CONTENT_CHARS"
	EnvLLMProxy           = "REVIEWER_LLM_PROXY"
	EnvRateLimitPerMinute = "REVIEWER_RATE_LIMIT_PER_MINUTE"
	EnvRateLimitBurst     = "REVIEWER_RATE_LIMIT_BURST"
)

// LLM providers
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Defaults
const (
	DefaultPort            = "5000"
	DefaultMaxUploadBytes  = int64(50 * 1024 * 1024)
	DefaultMaxPDFPages     = 500
	DefaultOpenAIModel     = "gpt-4o-mini"
	DefaultOllamaModel     = "llama3.1"
	DefaultOllamaURL       = "http://localhost:11434"
	DefaultLLMTimeout      = 240 * time.Second
	DefaultTemperature     = 0.2
	DefaultMaxTokens       = 16384
	DefaultMaxContentChars = 400000
	DefaultReadTimeout     = 60 * time.Second
	DefaultWriteTimeout    = 5 * time.Minute
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
)

// DefaultAllowedOrigins is the CORS allow-list used when none is configured
var DefaultAllowedOrigins = []string{
	"http://localhost:3000",
	"https://last-minute-learner.vercel.app",
}

// LLMConfig configures the structured completion provider
type LLMConfig struct {
	Provider        string        `yaml:"provider"`
	Model           string        `yaml:"model"`
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	Timeout         time.Duration `yaml:"timeout"`
	Temperature     float64       `yaml:"temperature"`
	MaxTokens       int           `yaml:"max_tokens"`
	MaxContentChars int           `yaml:"max_content_chars"`

	// Proxy overrides HTTPS_PROXY/HTTP_PROXY for provider calls
	Proxy string `yaml:"proxy"`
}

// RateLimitConfig configures per-client request limiting. Zero disables it.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// Enabled reports whether rate limiting is active
func (r RateLimitConfig) Enabled() bool {
	return r.RequestsPerMinute > 0
}

// ServerConfig holds HTTP server timeouts
type ServerConfig struct {
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Config is the process-wide configuration. It is built once at startup and
// never modified afterwards.
type Config struct {
	Port           string          `yaml:"port"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	MaxUploadBytes int64           `yaml:"max_upload_bytes"`
	MaxPDFPages    int             `yaml:"max_pdf_pages"`
	LLM            LLMConfig       `yaml:"llm"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	Server         ServerConfig    `yaml:"server"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Port:           DefaultPort,
		AllowedOrigins: append([]string(nil), DefaultAllowedOrigins...),
		MaxUploadBytes: DefaultMaxUploadBytes,
		MaxPDFPages:    DefaultMaxPDFPages,
		LLM: LLMConfig{
			Provider:        ProviderOpenAI,
			Timeout:         DefaultLLMTimeout,
			Temperature:     DefaultTemperature,
			MaxTokens:       DefaultMaxTokens,
			MaxContentChars: DefaultMaxContentChars,
		},
		RateLimit: RateLimitConfig{Burst: 1},
		Server: ServerConfig{
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			IdleTimeout:     DefaultIdleTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
	}
}

// LookupFunc resolves an environment variable, matching os.LookupEnv
type LookupFunc func(key string) (string, bool)

// Load builds a Config from defaults, the YAML file at path (if non-empty)
// and the environment, then validates it
func Load(path string, lookup LookupFunc) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	cfg.applyProviderDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the config
func (c *Config) applyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str(EnvPort, &c.Port)
	str(EnvLLMProvider, &c.LLM.Provider)
	str(EnvLLMModel, &c.LLM.Model)
	str(EnvLLMBaseURL, &c.LLM.BaseURL)
	str(EnvLLMAPIKey, &c.LLM.APIKey)
	str(EnvLLMProxy, &c.LLM.Proxy)

	if v, ok := lookup(EnvAllowedOrigins); ok && strings.TrimSpace(v) != "" {
		c.AllowedOrigins = splitList(v)
	}

	var err error
	if c.MaxUploadBytes, err = envInt64(lookup, EnvMaxUploadBytes, c.MaxUploadBytes); err != nil {
		return err
	}
	if c.MaxPDFPages, err = envInt(lookup, EnvMaxPDFPages, c.MaxPDFPages); err != nil {
		return err
	}
	if c.LLM.MaxTokens, err = envInt(lookup, EnvLLMMaxTokens, c.LLM.MaxTokens); err != nil {
		return err
	}
	if c.LLM.MaxContentChars, err = envInt(lookup, EnvLLMMaxContentChars, c.LLM.MaxContentChars); err != nil {
		return err
	}
	if c.LLM.Temperature, err = envFloat(lookup, EnvLLMTemperature, c.LLM.Temperature); err != nil {
		return err
	}
	if c.LLM.Timeout, err = envDuration(lookup, EnvLLMTimeout, c.LLM.Timeout); err != nil {
		return err
	}
	if c.RateLimit.RequestsPerMinute, err = envFloat(lookup, EnvRateLimitPerMinute, c.RateLimit.RequestsPerMinute); err != nil {
		return err
	}
	if c.RateLimit.Burst, err = envInt(lookup, EnvRateLimitBurst, c.RateLimit.Burst); err != nil {
		return err
	}

	return nil
}

// applyProviderDefaults fills the model and base URL for the chosen provider
func (c *Config) applyProviderDefaults() {
	c.LLM.Provider = strings.ToLower(c.LLM.Provider)
	switch c.LLM.Provider {
	case ProviderOpenAI:
		if c.LLM.Model == "" {
			c.LLM.Model = DefaultOpenAIModel
		}
	case ProviderOllama:
		if c.LLM.Model == "" {
			c.LLM.Model = DefaultOllamaModel
		}
		if c.LLM.BaseURL == "" {
			c.LLM.BaseURL = DefaultOllamaURL
		}
	}
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", c.Port)
	}

	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("unsupported llm provider %q (expected %s or %s)", c.LLM.Provider, ProviderOpenAI, ProviderOllama)
	}

	if c.LLM.Model == "" {
		return fmt.Errorf("llm model must be set")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm timeout must be positive")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature %.2f out of range [0, 2]", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm max_tokens must be positive")
	}
	if c.LLM.MaxContentChars <= 0 {
		return fmt.Errorf("llm max_content_chars must be positive")
	}
	if c.LLM.Proxy != "" {
		if u, err := url.Parse(c.LLM.Proxy); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("llm proxy must be an absolute URL")
		}
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}
	if c.MaxPDFPages <= 0 {
		return fmt.Errorf("max_pdf_pages must be positive")
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must not be negative")
	}
	if c.RateLimit.Enabled() && c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit.burst must be at least 1")
	}

	return nil
}

// Addr returns the listen address for the HTTP server
func (c *Config) Addr() string {
	return ":" + c.Port
}

func splitList(v string) []string {
	var out []string
	for item := range strings.SplitSeq(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envInt(lookup LookupFunc, key string, def int) (int, error) {
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envInt64(lookup LookupFunc, key string, def int64) (int64, error) {
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envFloat(lookup LookupFunc, key string, def float64) (float64, error) {
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

// envDuration accepts Go durations ("90s") or a bare number of seconds
func envDuration(lookup LookupFunc, key string, def time.Duration) (time.Duration, error) {
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	v = strings.TrimSpace(v)
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
