// Package llm builds the plan-generation model for the configured provider. Every provider
// is exposed as a langchaingo llms.Model.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rahul/exoscope/pkg/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	defaultMaxTokens   = 1024
	defaultTemperature = 0.1
)

// New returns the model for provider name.
func New(ctx context.Context, name string, cfg config.ProviderConfig) (llms.Model, error) {
	switch strings.ToLower(name) {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		return ollama.New(opts...)
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic: api key is missing")
		}
		return NewAnthropic(cfg), nil
	case "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini: api key is missing")
		}
		return NewGemini(ctx, cfg)
	}
	return nil, fmt.Errorf("provider %s is not supported", name)
}

// turn is one conversational message flattened to text.
type turn struct {
	ai   bool
	text string
}

// flatten splits messages into a system prompt and alternating human/AI turns. Consecutive
// messages from the same side are merged and leading AI turns are dropped, since both
// hosted APIs expect the conversation to open with the user.
func flatten(messages []llms.MessageContent) (string, []turn) {
	var (
		system []string
		turns  []turn
	)
	for _, m := range messages {
		text := textOf(m)
		if text == "" {
			continue
		}
		switch m.Role {
		case llms.ChatMessageTypeSystem:
			system = append(system, text)
			continue
		case llms.ChatMessageTypeAI:
			if len(turns) == 0 {
				continue
			}
			if last := &turns[len(turns)-1]; last.ai {
				last.text += "\n\n" + text
				continue
			}
			turns = append(turns, turn{ai: true, text: text})
		default:
			if len(turns) > 0 && !turns[len(turns)-1].ai {
				turns[len(turns)-1].text += "\n\n" + text
				continue
			}
			turns = append(turns, turn{text: text})
		}
	}
	return strings.Join(system, "\n\n"), turns
}

func textOf(m llms.MessageContent) string {
	var parts []string
	for _, p := range m.Parts {
		if t, ok := p.(llms.TextContent); ok && t.Text != "" {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func callOptions(options []llms.CallOption) llms.CallOptions {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	return opts
}

func response(text, stop string, usage map[string]any) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:        text,
			StopReason:     stop,
			GenerationInfo: usage,
		}},
	}
}
