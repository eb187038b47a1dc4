package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/last-minute-learner/reviewer-api/internal/config"
	"github.com/last-minute-learner/reviewer-api/internal/reviewer"
	"github.com/last-minute-learner/reviewer-api/internal/telemetry"
	"github.com/last-minute-learner/reviewer-api/internal/utils/httpclient"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"
)

// OpenAIGenerator requests schema-constrained chat completions from an
// OpenAI compatible API
type OpenAIGenerator struct {
	client          *openai.Client
	model           string
	baseURL         string
	temperature     float64
	maxTokens       int
	timeout         time.Duration
	maxContentChars int
	logger          *logrus.Logger
}

// NewOpenAIGenerator creates a generator from config. An empty API key leaves
// the SDK to read OPENAI_API_KEY.
func NewOpenAIGenerator(cfg config.LLMConfig, logger *logrus.Logger) *OpenAIGenerator {
	opts := []option.RequestOption{
		option.WithHTTPClient(httpclient.NewLLMClient(cfg, logger)),
		// Each request is attempted exactly once
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)

	return &OpenAIGenerator{
		client:          &client,
		model:           cfg.Model,
		baseURL:         cfg.BaseURL,
		temperature:     cfg.Temperature,
		maxTokens:       cfg.MaxTokens,
		timeout:         cfg.Timeout,
		maxContentChars: cfg.MaxContentChars,
		logger:          logger,
	}
}

// Name identifies the provider in logs and errors
func (g *OpenAIGenerator) Name() string {
	return config.ProviderOpenAI
}

// Generate runs one completion and decodes the reviewer document from it
func (g *OpenAIGenerator) Generate(ctx context.Context, content string) (doc *reviewer.ReviewerDocument, err error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ctx, span := telemetry.StartLLMSpan(ctx, g.Name(), g.model, g.baseURL, g.temperature, g.maxTokens)
	defer func() { telemetry.EndSpan(span, err) }()

	content, truncated := FitContent(content, g.maxContentChars)
	if truncated {
		g.logger.WithField("max_chars", g.maxContentChars).Warn("Content exceeded budget and was truncated")
	}

	start := time.Now()
	response, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(BuildPrompt(content)),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        schemaName,
					Description: openai.String(schemaDescription),
					Schema:      ReviewerSchema(),
					// Bounds are checked locally; strict mode rejects minItems/maxItems
					Strict: openai.Bool(false),
				},
			},
		},
		MaxTokens:   openai.Int(int64(g.maxTokens)),
		Temperature: openai.Float(g.temperature),
	})
	if err != nil {
		return nil, g.fail(fmt.Errorf("chat completion request failed: %w", err))
	}

	if len(response.Choices) == 0 {
		return nil, g.fail(fmt.Errorf("no response choices returned from LLM"))
	}

	choice := response.Choices[0]
	finishReason := string(choice.FinishReason)
	usage := response.Usage
	telemetry.RecordLLMUsage(span, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens, finishReason)
	telemetry.RecordLLMTokens(ctx, g.Name(), g.model, usage.PromptTokens, usage.CompletionTokens)

	g.logger.WithFields(logrus.Fields{
		"model":             g.model,
		"prompt_tokens":     usage.PromptTokens,
		"completion_tokens": usage.CompletionTokens,
		"finish_reason":     finishReason,
		"duration_ms":       time.Since(start).Milliseconds(),
	}).Debug("Chat completion finished")

	if choice.Message.Refusal != "" {
		return nil, g.fail(fmt.Errorf("model refused: %s", choice.Message.Refusal))
	}

	doc, err = decodeDocument(choice.Message.Content)
	if err != nil {
		if finishReason == "length" {
			err = fmt.Errorf("output truncated at max_tokens: %w", err)
		}
		return nil, g.fail(err)
	}

	return doc, nil
}

func (g *OpenAIGenerator) fail(err error) error {
	return &reviewer.GenerationError{Provider: g.Name(), Err: err}
}
