package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/quiplabs/quip/internal/chat"
	"github.com/quiplabs/quip/internal/config"
)

// Generator wraps a langchaingo chat model for reply generation.
type Generator struct {
	llm       llms.Model
	modelName string
	persona   string
}

// Compile-time check that Generator satisfies the pipeline port.
var _ chat.Generator = (*Generator)(nil)

// NewGenerator creates a generation model based on configuration.
func NewGenerator(ctx context.Context, cfg config.Config) (*Generator, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderGoogle:
		if cfg.GoogleAPIKey == "" {
			return nil, fmt.Errorf("Google API key required")
		}
		model, err = googleai.New(ctx,
			googleai.WithAPIKey(cfg.GoogleAPIKey),
			googleai.WithDefaultModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create google model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Generator{
		llm:       model,
		modelName: cfg.LLMModel,
		persona:   cfg.Persona,
	}, nil
}

// Generate produces one reply from the ordered prompt segments. The
// persona and any context segment become system messages; transcript
// segments keep their roles.
func (g *Generator) Generate(ctx context.Context, segments []chat.Segment) (string, error) {
	messages := make([]llms.MessageContent, 0, len(segments)+1)
	if g.persona != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, g.persona))
	}

	for _, seg := range segments {
		var role llms.ChatMessageType
		switch seg.Role {
		case chat.SegmentContext:
			role = llms.ChatMessageTypeSystem
		case chat.SegmentAssistant:
			role = llms.ChatMessageTypeAI
		default:
			role = llms.ChatMessageTypeHuman
		}
		messages = append(messages, llms.TextParts(role, seg.Text))
	}

	response, err := g.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", classify("generate", err)
	}
	if len(response.Choices) == 0 {
		return "", classify("generate", fmt.Errorf("no response choices"))
	}

	return response.Choices[0].Content, nil
}

// Model returns the LLM model name.
func (g *Generator) Model() string {
	return g.modelName
}
