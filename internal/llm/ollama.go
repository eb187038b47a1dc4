package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/last-minute-learner/reviewer-api/internal/config"
	"github.com/last-minute-learner/reviewer-api/internal/reviewer"
	"github.com/last-minute-learner/reviewer-api/internal/telemetry"
	"github.com/last-minute-learner/reviewer-api/internal/utils/httpclient"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaGenerator requests JSON-mode completions from a local Ollama server
type OllamaGenerator struct {
	llm             llms.Model
	model           string
	baseURL         string
	temperature     float64
	maxTokens       int
	timeout         time.Duration
	maxContentChars int
	logger          *logrus.Logger
}

// NewOllamaGenerator creates a generator for the configured Ollama model
func NewOllamaGenerator(cfg config.LLMConfig, logger *logrus.Logger) (*OllamaGenerator, error) {
	llm, err := ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithFormat("json"),
		ollama.WithHTTPClient(httpclient.NewLLMClient(cfg, logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}

	return &OllamaGenerator{
		llm:             llm,
		model:           cfg.Model,
		baseURL:         cfg.BaseURL,
		temperature:     cfg.Temperature,
		maxTokens:       cfg.MaxTokens,
		timeout:         cfg.Timeout,
		maxContentChars: cfg.MaxContentChars,
		logger:          logger,
	}, nil
}

// Name identifies the provider in logs and errors
func (g *OllamaGenerator) Name() string {
	return config.ProviderOllama
}

// Generate runs one completion and decodes the reviewer document from it
func (g *OllamaGenerator) Generate(ctx context.Context, content string) (doc *reviewer.ReviewerDocument, err error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ctx, span := telemetry.StartLLMSpan(ctx, g.Name(), g.model, g.baseURL, g.temperature, g.maxTokens)
	defer func() { telemetry.EndSpan(span, err) }()

	content, truncated := FitContent(content, g.maxContentChars)
	if truncated {
		g.logger.WithField("max_chars", g.maxContentChars).Warn("Content exceeded budget and was truncated")
	}

	start := time.Now()
	output, err := llms.GenerateFromSinglePrompt(ctx, g.llm, BuildPrompt(content)+jsonInstruction,
		llms.WithTemperature(g.temperature),
		llms.WithMaxTokens(g.maxTokens),
	)
	if err != nil {
		return nil, &reviewer.GenerationError{Provider: g.Name(), Err: fmt.Errorf("ollama request failed: %w", err)}
	}

	g.logger.WithFields(logrus.Fields{
		"model":         g.model,
		"output_length": len(output),
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Debug("Ollama completion finished")

	doc, err = decodeDocument(output)
	if err != nil {
		return nil, &reviewer.GenerationError{Provider: g.Name(), Err: err}
	}
	return doc, nil
}
