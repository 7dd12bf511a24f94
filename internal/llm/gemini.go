package llm

import (
	"context"
	"fmt"

	"github.com/rahul/exoscope/pkg/config"
	"github.com/tmc/langchaingo/llms"
	"google.golang.org/genai"
)

// Gemini adapts the Gemini API to llms.Model.
type Gemini struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
}

func NewGemini(ctx context.Context, cfg config.ProviderConfig) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	g := &Gemini{
		client:      client,
		model:       cfg.Model,
		maxTokens:   int32(cfg.MaxTokens),
		temperature: float32(cfg.Temperature),
	}
	if g.maxTokens <= 0 {
		g.maxTokens = defaultMaxTokens
	}
	if g.temperature <= 0 {
		g.temperature = defaultTemperature
	}
	return g, nil
}

func (g *Gemini) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := callOptions(options)
	system, turns := flatten(messages)
	if len(turns) == 0 {
		return nil, fmt.Errorf("gemini: no user message to send")
	}

	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		if t.ai {
			contents = append(contents, genai.NewContentFromText(t.text, genai.RoleModel))
		} else {
			contents = append(contents, genai.NewContentFromText(t.text, genai.RoleUser))
		}
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.temperature),
		MaxOutputTokens: g.maxTokens,
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(opts.Temperature))
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	usage := map[string]any{}
	if resp.UsageMetadata != nil {
		usage["PromptTokens"] = int(resp.UsageMetadata.PromptTokenCount)
		usage["CompletionTokens"] = int(resp.UsageMetadata.CandidatesTokenCount)
		usage["TotalTokens"] = int(resp.UsageMetadata.TotalTokenCount)
	}
	return response(text, "", usage), nil
}

func (g *Gemini) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, g, prompt, options...)
}
