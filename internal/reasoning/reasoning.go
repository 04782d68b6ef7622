// Package reasoning provides the language model backends the decision
// pipeline completes its prompts with.
package reasoning

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/refset/churn-decision-agent/internal/config"
	"github.com/refset/churn-decision-agent/internal/decision"
)

// New builds the backend named by cfg.Provider.
func New(ctx context.Context, cfg config.ReasoningConfig, log *zap.Logger) (decision.Backend, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
			JSONMode:    cfg.JSONMode,
		}, log), nil
	case "gemini":
		// The OpenAI defaults mean "not set" for Gemini.
		defaults := config.Default().Reasoning
		baseURL, model := cfg.BaseURL, cfg.Model
		if baseURL == defaults.BaseURL {
			baseURL = ""
		}
		if model == defaults.Model {
			model = ""
		}
		g, err := NewGemini(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     baseURL,
			Model:       model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
			JSONMode:    cfg.JSONMode,
		}, log)
		if err != nil {
			return nil, err
		}
		return g, nil
	}
	return nil, fmt.Errorf("unknown reasoning provider %q", cfg.Provider)
}
