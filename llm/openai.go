package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/varunalfred/Finmentor-sub000/errs"
)

// OpenAIClient is the secondary Client implementation and the concrete
// Embedder, grounded on
// _examples/intelligencedev-manifold/internal/llm/openai/client.go's
// Client (SDK construction via option.RequestOption, chat-completions call
// shape) generalized down to this module's narrower Complete/Embed
// contracts.
type OpenAIClient struct {
	sdk            sdk.Client
	model          string
	embeddingModel string
}

type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
}

const (
	DefaultOpenAIModel          = "gpt-4o-mini"
	DefaultOpenAIEmbeddingModel = "text-embedding-3-small"
)

func NewOpenAIClient(cfg OpenAIConfig, httpClient *http.Client) *OpenAIClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultOpenAIModel
	}
	embeddingModel := strings.TrimSpace(cfg.EmbeddingModel)
	if embeddingModel == "" {
		embeddingModel = DefaultOpenAIEmbeddingModel
	}

	return &OpenAIClient{
		sdk:            sdk.NewClient(opts...),
		model:          model,
		embeddingModel: embeddingModel,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}

	maxTokens := int64(1024)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := sdk.ChatCompletionNewParams{
		Model: c.model,
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.UserMessage(req.Prompt),
		},
		MaxTokens: sdk.Int(maxTokens),
	}

	var resp *sdk.ChatCompletion
	if err := retryOnTransport(ctx, func() error {
		r, err := c.sdk.Chat.Completions.New(ctx, params)
		if err != nil {
			return classifyOpenAIError("OpenAIClient.Complete", err)
		}
		resp = r
		return nil
	}); err != nil {
		return CompletionResult{}, err
	}
	if len(resp.Choices) == 0 {
		return CompletionResult{}, errs.Wrap("OpenAIClient.Complete", errs.ErrMalformedOutput, "no choices returned")
	}

	text := resp.Choices[0].Message.Content
	result := CompletionResult{
		Text:       text,
		TokensUsed: int(resp.Usage.TotalTokens),
	}
	if len(req.TargetSchema) > 0 {
		var parsed map[string]interface{}
		if json.Unmarshal([]byte(text), &parsed) == nil {
			result.ParsedFields = parsed
		}
	}
	return result, nil
}

// Embed implements the abstract Embedder contract of §6.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp *sdk.CreateEmbeddingResponse
	if err := retryOnTransport(ctx, func() error {
		r, err := c.sdk.Embeddings.New(ctx, sdk.EmbeddingNewParams{
			Model: c.embeddingModel,
			Input: sdk.EmbeddingNewParamsInputUnion{OfString: sdk.String(text)},
		})
		if err != nil {
			return classifyOpenAIError("OpenAIClient.Embed", err)
		}
		resp = r
		return nil
	}); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errs.Wrap("OpenAIClient.Embed", errs.ErrMalformedOutput, "no embedding data returned")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func classifyOpenAIError(op string, err error) error {
	if strings.Contains(err.Error(), "429") {
		return errs.Wrap(op, errs.ErrRateLimited, err.Error())
	}
	if strings.Contains(err.Error(), "deadline exceeded") || strings.Contains(err.Error(), "context canceled") {
		return errs.Wrap(op, errs.ErrAgentTimeout, err.Error())
	}
	return errs.Wrap(op, errs.ErrTransport, err.Error())
}

// OpenAIDetectEnvironment mirrors AnthropicDetectEnvironment: OpenAI is the
// secondary provider, picked only when Anthropic's key is absent.
func OpenAIDetectEnvironment() (priority int, available bool) {
	return 50, os.Getenv("OPENAI_API_KEY") != ""
}
