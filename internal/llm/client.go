package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lazypower/attend/internal/config"
)

// ErrNoProvider is returned by NewClient when extraction is configured off.
var ErrNoProvider = errors.New("no llm provider configured")

// Client is the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, prompt string) (*Response, error)
}

// Response holds the result of an LLM completion.
type Response struct {
	Content    string
	Provider   string
	TokensUsed int
}

// Options tunes a completion request. Extraction wants short, cold answers.
type Options struct {
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// DefaultOptions are used by every provider unless overridden.
func DefaultOptions() Options {
	return Options{MaxTokens: 1024, Temperature: 0.1, Timeout: 60 * time.Second}
}

// NewClient creates an LLM client based on the config provider setting.
func NewClient(cfg config.LLMConfig) (Client, error) {
	opts := DefaultOptions()
	switch cfg.Provider {
	case "", "none":
		return nil, ErrNoProvider
	case "claude-cli":
		model := cfg.Model
		if model == "" {
			model = "haiku"
		}
		return NewClaudeCLI(model, opts), nil
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("anthropic provider requires ANTHROPIC_API_KEY or config")
		}
		model := cfg.Model
		if model == "" || model == "haiku" {
			model = "claude-haiku-4-5-20251001"
		}
		return NewAnthropic(cfg.AnthropicKey, model, opts), nil
	case "ollama":
		url := cfg.OllamaURL
		if url == "" {
			url = "http://localhost:11434"
		}
		model := cfg.OllamaModel
		if model == "" {
			model = "llama3.2"
		}
		return NewOllama(url, model, opts), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
}
