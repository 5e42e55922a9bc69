package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/varunalfred/Finmentor-sub000/errs"
)

// AnthropicClient is the primary Client implementation, grounded on
// _examples/intelligencedev-manifold/internal/llm/anthropic/client.go's
// Client.Chat: SDK construction via functional option.RequestOption values,
// a MessageNewParams request, and error classification around the single
// sdk.Messages.New call.
type AnthropicClient struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64
}

// AnthropicConfig configures AnthropicClient. APIKey, BaseURL, and Model
// mirror the teacher's config.AnthropicConfig fields.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// DefaultAnthropicModel matches the teacher's own fallback default.
const DefaultAnthropicModel = string(anthropic.ModelClaude3_7SonnetLatest)

func NewAnthropicClient(cfg AnthropicConfig, httpClient *http.Client) *AnthropicClient {
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
		model = DefaultAnthropicModel
	}

	return &AnthropicClient{
		sdk:       anthropic.NewClient(opts...),
		model:     model,
		maxTokens: 1024,
	}
}

// Complete implements Client. The target schema is folded into the prompt
// as an instruction (structured-decoding by convention, not by SDK-level
// tool forcing) and the response is best-effort JSON-parsed against it;
// callers needing strict schema conformance retry via the C9 "stricter
// reminder" path on parse failure, not inside this adapter.
func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}

	var resp *anthropic.Message
	if err := retryOnTransport(ctx, func() error {
		r, err := c.sdk.Messages.New(ctx, params)
		if err != nil {
			return classifyAnthropicError("AnthropicClient.Complete", err)
		}
		resp = r
		return nil
	}); err != nil {
		return CompletionResult{}, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	result := CompletionResult{
		Text:       text.String(),
		TokensUsed: int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}

	if len(req.TargetSchema) > 0 {
		var parsed map[string]interface{}
		if json.Unmarshal([]byte(text.String()), &parsed) == nil {
			result.ParsedFields = parsed
		}
	}

	return result, nil
}

// classifyAnthropicError maps the SDK's error into a §7 kind. Rather than
// assert on the SDK's internal apierror shape (which shifts across SDK
// versions), a 429 substring is treated as RateLimited and everything else
// as a retryable Transport error, matching §6's "client is expected to
// implement its own retry for Transport" and "surface RateLimited
// immediately".
func classifyAnthropicError(op string, err error) error {
	if strings.Contains(err.Error(), "429") {
		return errs.Wrap(op, errs.ErrRateLimited, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(op, errs.ErrAgentTimeout, err.Error())
	}
	return errs.Wrap(op, errs.ErrTransport, err.Error())
}

// AnthropicDetectEnvironment mirrors the teacher's ai.ProviderFactory contract
// (_examples/itsneelabh-gomind/ai/registry.go): higher priority wins among
// available providers. Anthropic is preferred when its key is present.
func AnthropicDetectEnvironment() (priority int, available bool) {
	return 100, os.Getenv("ANTHROPIC_API_KEY") != ""
}
