// Package llm turns composed study content into a ReviewerDocument using a
// structured-output language model.
package llm

import (
	"fmt"

	"github.com/last-minute-learner/reviewer-api/internal/config"
	"github.com/last-minute-learner/reviewer-api/internal/reviewer"
	"github.com/sirupsen/logrus"
)

// New returns the generator for the configured provider
func New(cfg config.LLMConfig, logger *logrus.Logger) (reviewer.Generator, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIGenerator(cfg, logger), nil
	case config.ProviderOllama:
		return NewOllamaGenerator(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
