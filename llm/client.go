// Package llm implements the abstract LLM client and embedder contracts of
// §6, plus concrete adapters over the Anthropic and OpenAI SDKs, selected
// by availability the way the teacher's ai.ProviderRegistry picks a
// provider: highest declared priority among those whose credentials are
// actually present in the environment.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/varunalfred/Finmentor-sub000/errs"
)

// CompletionRequest is the abstract request shape of §6's
// complete(prompt, target_schema, max_tokens, deadline).
type CompletionRequest struct {
	Prompt       string
	TargetSchema []string // required field names the caller expects back
	MaxTokens    int
	Deadline     time.Time
}

// CompletionResult carries the raw text, whatever structured fields the
// client managed to parse out against TargetSchema, and token accounting.
type CompletionResult struct {
	Text         string
	ParsedFields map[string]interface{}
	TokensUsed   int
}

// Client is the abstract LLM client contract consumed by the reasoning
// agent (C9) and the intent classifier's model fallback (C5). Concrete
// implementations must retry Transport errors themselves (bounded,
// jittered — see errs.Retry) and must surface RateLimited immediately
// rather than silently retrying it, so the core rate limiter stays
// accurate.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// retryOnTransport runs attempt in errs.DefaultRetryConfig's bounded,
// jittered loop, but only while attempt's classified error is Transport
// (§6: "the client is expected to implement its own retry for Transport").
// Success, RateLimited, or an agent-level Timeout all stop the loop on the
// first attempt so RateLimited keeps surfacing immediately and the core
// rate limiter stays accurate.
func retryOnTransport(ctx context.Context, attempt func() error) error {
	var last error
	if err := errs.Retry(ctx, errs.DefaultRetryConfig(), func() error {
		last = attempt()
		if last != nil && errors.Is(last, errs.ErrTransport) {
			return last
		}
		return nil
	}); err != nil {
		return err
	}
	return last
}

// Embedder is re-declared here (matching retrieval.Embedder's shape) so
// concrete adapters can satisfy both without this package importing
// retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// classifyTransportError maps a low-level SDK error into one of the named
// §7 kinds the rest of the system understands, so callers can use
// errs.Kind uniformly regardless of which provider answered.
func classifyTransportError(op string, err error, isRateLimited, isTimeout func(error) bool) error {
	if err == nil {
		return nil
	}
	switch {
	case isRateLimited != nil && isRateLimited(err):
		return errs.Wrap(op, errs.ErrRateLimited, err.Error())
	case isTimeout != nil && isTimeout(err):
		return errs.Wrap(op, errs.ErrAgentTimeout, err.Error())
	default:
		return errs.Wrap(op, errs.ErrTransport, err.Error())
	}
}
