package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varunalfred/Finmentor-sub000/errs"
	"github.com/varunalfred/Finmentor-sub000/llm"
	"github.com/varunalfred/Finmentor-sub000/registry"
	"github.com/varunalfred/Finmentor-sub000/tools"
)

type fakeClient struct {
	responses []llm.CompletionResult
	errs      []error
	calls     int
}

func (f *fakeClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResult, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], err
	}
	return llm.CompletionResult{}, err
}

func educationDef() registry.Definition {
	return registry.Definition{
		Type:   registry.Education,
		Output: registry.Schema{RequiredFields: requiredFields, DomainFields: []string{"concepts_covered"}},
	}
}

func TestInvokeSucceedsOnFirstTry(t *testing.T) {
	client := &fakeClient{responses: []llm.CompletionResult{
		{
			Text: `{"analysis":"...","recommendation":"read more","confidence":80,"sources_used":["llm_knowledge"],"concepts_covered":["pe_ratio"]}`,
			ParsedFields: map[string]interface{}{
				"analysis": "...", "recommendation": "read more", "confidence": 80.0,
				"sources_used": []interface{}{"llm_knowledge"}, "concepts_covered": []interface{}{"pe_ratio"},
			},
		},
	}}
	a := New(educationDef(), client, "You are an education agent.")

	out, err := a.Invoke(context.Background(), Input{Query: "What is a P/E ratio?"}, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 80, out.Confidence)
	assert.Equal(t, 1, client.calls)
}

func TestInvokeRetriesOnceOnParseFailureThenSucceeds(t *testing.T) {
	client := &fakeClient{responses: []llm.CompletionResult{
		{Text: "not json at all", ParsedFields: nil},
		{
			Text: `{"analysis":"a","recommendation":"r","confidence":50,"sources_used":[],"concepts_covered":[]}`,
			ParsedFields: map[string]interface{}{
				"analysis": "a", "recommendation": "r", "confidence": 50.0,
				"sources_used": []interface{}{}, "concepts_covered": []interface{}{},
			},
		},
	}}
	a := New(educationDef(), client, "You are an education agent.")

	out, err := a.Invoke(context.Background(), Input{Query: "q"}, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 2, client.calls)
}

func TestInvokeFailsWithMalformedOutputAfterOneRetry(t *testing.T) {
	client := &fakeClient{responses: []llm.CompletionResult{
		{Text: "nope", ParsedFields: nil},
		{Text: "still nope", ParsedFields: nil},
	}}
	a := New(educationDef(), client, "You are an education agent.")

	out, err := a.Invoke(context.Background(), Input{Query: "q"}, time.Now().Add(time.Second))
	assert.Error(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, 2, client.calls)
}

func TestInvokeMissingRequiredFieldIsMalformed(t *testing.T) {
	client := &fakeClient{responses: []llm.CompletionResult{
		{Text: "{}", ParsedFields: map[string]interface{}{"analysis": "a"}},
		{Text: "{}", ParsedFields: map[string]interface{}{"analysis": "a"}},
	}}
	a := New(educationDef(), client, "template")

	_, err := a.Invoke(context.Background(), Input{Query: "q"}, time.Now().Add(time.Second))
	assert.Error(t, err)
}

func TestInvokePropagatesAgentTimeoutWithoutRetryingOrRelabeling(t *testing.T) {
	timeoutErr := errs.Wrap("fake.Complete", errs.ErrAgentTimeout, "deadline exceeded")
	client := &fakeClient{errs: []error{timeoutErr}}
	a := New(educationDef(), client, "You are an education agent.")

	out, err := a.Invoke(context.Background(), Input{Query: "q"}, time.Now().Add(time.Second))
	require.Error(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "agent_timeout", errs.Kind(err))
	assert.NotEqual(t, "malformed_output", errs.Kind(err))
	assert.Equal(t, 1, client.calls, "a classified completion error must not consume the parse-failure retry")
}

func TestInvokePropagatesRateLimitedWithoutRelabeling(t *testing.T) {
	rlErr := errs.Wrap("fake.Complete", errs.ErrRateLimited, "budget exhausted")
	client := &fakeClient{errs: []error{rlErr}}
	a := New(educationDef(), client, "You are an education agent.")

	out, err := a.Invoke(context.Background(), Input{Query: "q"}, time.Now().Add(time.Second))
	require.Error(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "rate_limited", errs.Kind(err))
	assert.Equal(t, 1, client.calls)
}

type promptCapturingClient struct {
	lastPrompt string
}

func (c *promptCapturingClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResult, error) {
	c.lastPrompt = req.Prompt
	return llm.CompletionResult{ParsedFields: map[string]interface{}{
		"analysis": "a", "recommendation": "r", "confidence": 50.0, "sources_used": []interface{}{"market_data"},
	}}, nil
}

func marketAnalystDef() registry.Definition {
	return registry.Definition{
		Type:   registry.MarketAnalyst,
		Output: registry.Schema{RequiredFields: requiredFields},
		Tools:  []string{"get_quote"},
	}
}

func TestInvokeFoldsToolResultsIntoContextWhenSymbolFacetPresent(t *testing.T) {
	client := &promptCapturingClient{}
	reg := tools.NewRegistry(tools.NewGetQuoteTool(tools.DeterministicFetcher{}))
	a := NewWithTools(marketAnalystDef(), client, "You are a market analyst.", tools.NewInvoker(reg))

	_, err := a.Invoke(context.Background(), Input{Query: "how is AAPL doing", Facets: map[string]interface{}{"symbol": "AAPL"}}, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Contains(t, client.lastPrompt, "[tool:get_quote]")
}

func TestInvokeSkipsToolCallWithoutSymbolFacet(t *testing.T) {
	client := &promptCapturingClient{}
	reg := tools.NewRegistry(tools.NewGetQuoteTool(tools.DeterministicFetcher{}))
	a := NewWithTools(marketAnalystDef(), client, "You are a market analyst.", tools.NewInvoker(reg))

	_, err := a.Invoke(context.Background(), Input{Query: "how is the market"}, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.NotContains(t, client.lastPrompt, "[tool:get_quote]")
}
