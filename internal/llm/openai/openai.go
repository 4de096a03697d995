// Package openai implements llm.Provider on top of any OpenAI-compatible API
// (OpenAI, Groq, Ollama, Together, DeepSeek, Hugging Face router, vLLM).
package openai

import (
	"context"
	"errors"
	"fmt"
	"math"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/efebarandurmaz/gloombot/internal/llm"
)

const defaultEmbedModel = "text-embedding-3-small"

// Client implements llm.Provider for OpenAI-compatible APIs.
type Client struct {
	name       string
	model      string
	embedModel string
	api        *goopenai.Client
}

// New creates an OpenAI-compatible provider. An empty baseURL targets api.openai.com.
func New(apiKey, model, baseURL, embedModel string) *Client {
	return NewNamed("openai", apiKey, model, baseURL, embedModel)
}

// NewNamed is New with a provider name used in errors and traces.
func NewNamed(name, apiKey, model, baseURL, embedModel string) *Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if embedModel == "" {
		embedModel = defaultEmbedModel
	}
	return &Client{
		name:       name,
		model:      model,
		embedModel: embedModel,
		api:        goopenai.NewClientWithConfig(cfg),
	}
}

// Register adds every preset from llm.KnownProviders plus "custom" to f.
// Presets fall back to their well-known base URL when cfg.BaseURL is empty.
func Register(f *llm.ProviderFactory) {
	for name, url := range llm.KnownProviders {
		name, url := name, url
		f.Register(name, func(cfg llm.ProviderConfig) (llm.Provider, error) {
			base := cfg.BaseURL
			if base == "" {
				base = url
			}
			return NewNamed(name, cfg.APIKey, cfg.Model, base, cfg.EmbedModel), nil
		})
	}
	f.Register("custom", func(cfg llm.ProviderConfig) (llm.Provider, error) {
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("custom provider requires base_url")
		}
		return NewNamed("custom", cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.EmbedModel), nil
	})
}

func (c *Client) Name() string { return c.name }

// Model returns the chat model this client completes with.
func (c *Client) Model() string { return c.model }

// EmbedModel returns the embedding model this client embeds with.
func (c *Client) EmbedModel() string { return c.embedModel }

func (c *Client) Complete(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	msgs := make([]goopenai.ChatCompletionMessage, 0, len(prompt.Messages)+1)
	if prompt.SystemPrompt != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: prompt.SystemPrompt})
	}
	for _, m := range prompt.Messages {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	req := goopenai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
	}
	if opts != nil {
		if opts.MaxTokens != nil {
			req.MaxTokens = *opts.MaxTokens
		}
		if opts.Temperature != nil {
			req.Temperature = temperature(*opts.Temperature)
		}
		if opts.TopP != nil {
			req.TopP = float32(*opts.TopP)
		}
		if len(opts.StopSeqs) > 0 {
			req.Stop = opts.StopSeqs
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, c.wrap(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: %w", c.name, llm.ErrEmptyResponse)
	}

	choice := resp.Choices[0]
	return &llm.Response{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		StopReason:   string(choice.FinishReason),
	}, nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.api.CreateEmbeddings(ctx, goopenai.EmbeddingRequestStrings{
		Input: texts,
		Model: goopenai.EmbeddingModel(c.embedModel),
	})
	if err != nil {
		return nil, c.wrap(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%s embed: got %d vectors for %d inputs: %w", c.name, len(resp.Data), len(texts), llm.ErrEmptyResponse)
	}

	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		out[idx] = d.Embedding
	}
	return out, nil
}

// wrap converts go-openai HTTP failures into llm.StatusError so llm.Classify
// can tell throttling and outages from bad credentials.
func (c *Client) wrap(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &llm.StatusError{Provider: c.name, StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &llm.StatusError{Provider: c.name, StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return fmt.Errorf("%s: %w", c.name, err)
}

// temperature maps t onto the wire. go-openai drops a zero temperature from the
// request body, which lets the server apply its own default of 1.
func temperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}
