// Package agent implements C9, the reasoning agent: binding an input
// schema, an output schema, and a prompt template to one invocation of the
// abstract LLM client, with the retry-once-then-MalformedOutput contract
// of §4.9.
//
// Grounded on the capability-method shape of
// _examples/itsneelabh-gomind/examples/financial-intelligence-system/agents/portfolio-advisor/main.go
// (each capability binds input fields, output fields, and an
// @llm_prompt), generalized from one hard-coded Go method per capability
// into a single Agent type parameterized by a registry.Definition and a
// prompt template string.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/varunalfred/Finmentor-sub000/errs"
	"github.com/varunalfred/Finmentor-sub000/llm"
	"github.com/varunalfred/Finmentor-sub000/registry"
	"github.com/varunalfred/Finmentor-sub000/tools"
)

// Output is the per-agent result, always carrying §4.9's required fields
// plus whatever domain fields the registry.Definition declares.
type Output struct {
	AgentType      registry.AgentType
	Analysis       string
	Recommendation string
	Confidence     int // 0-100
	SourcesUsed    []string
	Domain         map[string]interface{}
	Success        bool
	FailureReason  string
	StartedAt      time.Time
	EndedAt        time.Time
}

// Input bundles everything an agent invocation needs: the raw query, user
// facets, the retrieved context (opaque here — callers pass its rendered
// text), and the outputs of its declared dependencies.
type Input struct {
	Query           string
	Facets          map[string]interface{}
	ContextText     string
	DependencyOutputs map[registry.AgentType]Output
}

// Agent is one bound reasoning agent.
type Agent struct {
	def      registry.Definition
	client   llm.Client
	template string
	toolInvoker *tools.Invoker
}

// New binds a registry.Definition to an LLM client and a prompt template.
// template may use the {{query}}, {{facets}}, {{context}}, and
// {{dependencies}} placeholders; PromptTemplate below fills them.
func New(def registry.Definition, client llm.Client, template string) *Agent {
	return &Agent{def: def, client: client, template: template}
}

// NewWithTools is New plus a tool invoker: before every prompt is built,
// the agent calls every tool def.Tools names (when in.Facets carries a
// "symbol" or "indicator" key the tool needs) and folds the results into
// the retrieved-context block (§6: "invoked only ... within the agent's
// own LLM turn").
func NewWithTools(def registry.Definition, client llm.Client, template string, invoker *tools.Invoker) *Agent {
	return &Agent{def: def, client: client, template: template, toolInvoker: invoker}
}

// requiredFields is §4.9's "Required output fields (all agents)".
var requiredFields = []string{"analysis", "recommendation", "confidence", "sources_used"}

// Invoke builds the prompt, calls the LLM client with the agent's target
// schema, and on parse failure retries exactly once with a stricter
// reminder before failing with MalformedOutput (§4.9). It never mutates
// Input.
func (a *Agent) Invoke(ctx context.Context, in Input, deadline time.Time) (Output, error) {
	started := time.Now()
	in = a.withToolContext(ctx, in)
	prompt := a.buildPrompt(in, false)
	op := fmt.Sprintf("agent.Invoke[%s]", a.def.Type)

	result, completeErr := a.complete(ctx, prompt, deadline)
	if completeErr != nil {
		return a.fail(started, completeErr), fmt.Errorf("%s: %w", op, completeErr)
	}

	out, parseErr := a.parseOutput(result)
	if parseErr == nil {
		out.StartedAt = started
		out.EndedAt = time.Now()
		out.Success = true
		return out, nil
	}

	// One stricter retry, per §4.9 — only a genuine parse failure gets a
	// retry; a classified completion error (Timeout/RateLimited/Transport)
	// propagates immediately above without consuming the retry.
	retryPrompt := a.buildPrompt(in, true)
	result, completeErr = a.complete(ctx, retryPrompt, deadline)
	if completeErr != nil {
		return a.fail(started, completeErr), fmt.Errorf("%s: %w", op, completeErr)
	}

	out, parseErr = a.parseOutput(result)
	if parseErr == nil {
		out.StartedAt = started
		out.EndedAt = time.Now()
		out.Success = true
		return out, nil
	}

	return a.fail(started, parseErr), errs.Wrap(op, errs.ErrMalformedOutput, parseErr.Error())
}

func (a *Agent) fail(started time.Time, err error) Output {
	return Output{
		AgentType:     a.def.Type,
		Success:       false,
		FailureReason: err.Error(),
		StartedAt:     started,
		EndedAt:       time.Now(),
	}
}

// withToolContext calls every tool this agent's definition declares and
// appends the results to ContextText, leaving in unchanged when no
// invoker is bound or the definition declares no tools.
func (a *Agent) withToolContext(ctx context.Context, in Input) Input {
	if a.toolInvoker == nil || len(a.def.Tools) == 0 {
		return in
	}
	args := map[string]interface{}{}
	if symbol, ok := in.Facets["symbol"].(string); ok && symbol != "" {
		args["symbol"] = symbol
	}
	if indicator, ok := in.Facets["indicator"].(string); ok && indicator != "" {
		args["indicator"] = indicator
	}
	if len(args) == 0 {
		return in
	}
	toolText := a.toolInvoker.Invoke(ctx, a.def.Tools, args)
	if toolText == "" {
		return in
	}
	if in.ContextText != "" {
		in.ContextText += "\n" + toolText
	} else {
		in.ContextText = toolText
	}
	return in
}

func (a *Agent) complete(ctx context.Context, prompt string, deadline time.Time) (llm.CompletionResult, error) {
	return a.client.Complete(ctx, llm.CompletionRequest{
		Prompt:       prompt,
		TargetSchema: append(append([]string{}, requiredFields...), a.def.Output.DomainFields...),
		MaxTokens:    1024,
		Deadline:     deadline,
	})
}

// buildPrompt renders the agent's template. stricter appends a reminder of
// the exact required JSON fields, used on retry after a parse failure.
func (a *Agent) buildPrompt(in Input, stricter bool) string {
	var b strings.Builder
	b.WriteString(a.template)
	b.WriteString("\n\nQuery: ")
	b.WriteString(in.Query)
	if len(in.Facets) > 0 {
		b.WriteString("\nUser facets: ")
		enc, _ := json.Marshal(in.Facets)
		b.Write(enc)
	}
	if in.ContextText != "" {
		b.WriteString("\nRetrieved context:\n")
		b.WriteString(in.ContextText)
	}
	if len(in.DependencyOutputs) > 0 {
		b.WriteString("\nUpstream agent outputs:\n")
		for depType, depOut := range in.DependencyOutputs {
			fmt.Fprintf(&b, "- %s: success=%v analysis=%q recommendation=%q\n",
				depType, depOut.Success, depOut.Analysis, depOut.Recommendation)
		}
	}

	allFields := append(append([]string{}, requiredFields...), a.def.Output.DomainFields...)
	b.WriteString("\nRespond with a single JSON object containing exactly these fields: ")
	b.WriteString(strings.Join(allFields, ", "))
	b.WriteString(".")

	if stricter {
		b.WriteString("\nYour previous response could not be parsed as JSON matching that exact field list. " +
			"Respond with ONLY the JSON object, no surrounding prose, no markdown code fences.")
	}

	return b.String()
}

// parseOutput validates the LLM's parsed fields against the required
// schema and builds an Output. Domain fields not recognized as scalars
// pass through unchanged into Output.Domain.
func (a *Agent) parseOutput(result llm.CompletionResult) (Output, error) {
	fields := result.ParsedFields
	if fields == nil {
		return Output{}, fmt.Errorf("response was not valid JSON: %q", truncate(result.Text, 200))
	}

	for _, f := range requiredFields {
		if _, ok := fields[f]; !ok {
			return Output{}, fmt.Errorf("missing required field %q", f)
		}
	}

	analysis, _ := fields["analysis"].(string)
	recommendation, _ := fields["recommendation"].(string)

	confidence := 0
	switch v := fields["confidence"].(type) {
	case float64:
		confidence = int(v)
	case int:
		confidence = v
	}

	var sources []string
	if raw, ok := fields["sources_used"].([]interface{}); ok {
		for _, s := range raw {
			if str, ok := s.(string); ok {
				sources = append(sources, str)
			}
		}
	}

	domain := make(map[string]interface{}, len(a.def.Output.DomainFields))
	for _, f := range a.def.Output.DomainFields {
		if v, ok := fields[f]; ok {
			domain[f] = v
		}
	}

	return Output{
		AgentType:      a.def.Type,
		Analysis:       analysis,
		Recommendation: recommendation,
		Confidence:     confidence,
		SourcesUsed:    sources,
		Domain:         domain,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
