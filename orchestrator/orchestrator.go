// Package orchestrator implements C10 (see types.go's package doc above
// this file for the grounding note). This file is the top-level
// Orchestrator.Process entry point: derive required agents from intent,
// build the ExecutionPlan, retrieve the ContextBundle, run every stage
// through the batched executor, and synthesize.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/varunalfred/Finmentor-sub000/agent"
	"github.com/varunalfred/Finmentor-sub000/errs"
	"github.com/varunalfred/Finmentor-sub000/executor"
	"github.com/varunalfred/Finmentor-sub000/intent"
	"github.com/varunalfred/Finmentor-sub000/logging"
	"github.com/varunalfred/Finmentor-sub000/planner"
	"github.com/varunalfred/Finmentor-sub000/registry"
	"github.com/varunalfred/Finmentor-sub000/retrieval"
)

// defaultHistorySize matches the teacher's OrchestratorConfig.HistorySize
// default order of magnitude, bounding the execution history's memory
// footprint without needing an explicit opt-in.
const defaultHistorySize = 50

// Facets is the lightweight user-context record threaded from the caller
// through retrieval and into every agent invocation.
type Facets struct {
	OwnerID         string
	RiskTolerance   string
	ExperienceLevel string
	Language        string
	AttachedDoc     string
}

func (f Facets) retrievalFacets() retrieval.Facets {
	return retrieval.Facets{
		OwnerID:            f.OwnerID,
		RiskTolerance:      f.RiskTolerance,
		ExperienceLevel:    f.ExperienceLevel,
		AttachedDocumentID: f.AttachedDoc,
	}
}

func (f Facets) asMap() map[string]interface{} {
	m := map[string]interface{}{}
	if f.RiskTolerance != "" {
		m["risk_tolerance"] = f.RiskTolerance
	}
	if f.ExperienceLevel != "" {
		m["experience_level"] = f.ExperienceLevel
	}
	if f.Language != "" {
		m["language"] = f.Language
	}
	return m
}

// StageObserver receives §4.11's thought events as the orchestrator moves
// through stages, so the Streaming Session (C11) can forward them verbatim
// without the orchestrator knowing anything about SSE/event wire formats.
type StageObserver interface {
	OnThought(message string, agentType string)
}

type noopObserver struct{}

func (noopObserver) OnThought(string, string) {}

// Telemetry receives one event per agent invocation and one per synthesis,
// so the telemetry package can turn them into spans/counters without this
// package importing otel directly.
type Telemetry interface {
	RecordAgentInvocation(ctx context.Context, agentType registry.AgentType, duration time.Duration, err error)
	RecordSynthesisConflict(ctx context.Context, conflicted bool)
}

type noopTelemetry struct{}

func (noopTelemetry) RecordAgentInvocation(context.Context, registry.AgentType, time.Duration, error) {}
func (noopTelemetry) RecordSynthesisConflict(context.Context, bool)                                    {}

// Orchestrator implements C10: process(query, facets, required_agents).
type Orchestrator struct {
	registry          *registry.Registry
	planner           *planner.Planner
	rag               *retrieval.Service
	executor          *executor.Executor
	breaker           *CircuitBreaker
	agents            map[registry.AgentType]*agent.Agent
	llmCallDeadline   time.Duration
	conflictThreshold int
	verificationFloor float64
	logger            logging.Logger
	telemetry         Telemetry

	historyMutex sync.RWMutex
	history      []ExecutionRecord
	historySize  int
}

// New wires an Orchestrator from its collaborators. agents must cover every
// AgentType the registry declares; a type missing from agents is recorded
// as a failed agent with an InvalidSelection error the first time it would
// be invoked, and the rest of the turn continues.
func New(
	reg *registry.Registry,
	p *planner.Planner,
	rag *retrieval.Service,
	exec *executor.Executor,
	breaker *CircuitBreaker,
	agents map[registry.AgentType]*agent.Agent,
	llmCallDeadline time.Duration,
	conflictThreshold int,
	verificationFloor float64,
	logger logging.Logger,
) *Orchestrator {
	if logger == nil {
		logger = logging.NoOp{}
	}
	if llmCallDeadline <= 0 {
		llmCallDeadline = 25 * time.Second
	}
	return &Orchestrator{
		registry:          reg,
		planner:           p,
		rag:               rag,
		executor:          exec,
		breaker:           breaker,
		agents:            agents,
		llmCallDeadline:   llmCallDeadline,
		conflictThreshold: conflictThreshold,
		verificationFloor: verificationFloor,
		logger:            logger,
		telemetry:         noopTelemetry{},
		historySize:       defaultHistorySize,
	}
}

// SetHistorySize overrides the default bound on retained execution-history
// entries (§12). n <= 0 resets it to defaultHistorySize.
func (o *Orchestrator) SetHistorySize(n int) {
	if n <= 0 {
		n = defaultHistorySize
	}
	o.historyMutex.Lock()
	o.historySize = n
	if len(o.history) > n {
		o.history = o.history[len(o.history)-n:]
	}
	o.historyMutex.Unlock()
}

// ExecutionHistory returns a copy of the most recent retained executions,
// oldest first, matching the teacher's GetExecutionHistory contract.
func (o *Orchestrator) ExecutionHistory() []ExecutionRecord {
	o.historyMutex.RLock()
	defer o.historyMutex.RUnlock()
	out := make([]ExecutionRecord, len(o.history))
	copy(out, o.history)
	return out
}

// recordExecution appends one ExecutionRecord, trimming the oldest entry
// once historySize is exceeded (§12, teacher's recordExecution).
func (o *Orchestrator) recordExecution(query string, result OrchestratedResult) {
	o.historyMutex.Lock()
	defer o.historyMutex.Unlock()
	o.history = append(o.history, ExecutionRecord{
		Query:           query,
		Intent:          result.Intent,
		Status:          result.Status,
		AgentsConsulted: result.AgentsConsulted,
		DurationMS:      result.DurationMS,
		RecordedAt:      time.Now(),
	})
	if len(o.history) > o.historySize {
		o.history = o.history[len(o.history)-o.historySize:]
	}
}

// SetTelemetry binds a Telemetry sink, e.g. telemetry.Provider, so every
// agent invocation and synthesis this Orchestrator runs is also recorded as
// a span/metric.
func (o *Orchestrator) SetTelemetry(t Telemetry) {
	if t == nil {
		t = noopTelemetry{}
	}
	o.telemetry = t
}

// Process implements §4.10. requiredAgents may be nil/empty, in which case
// it is derived from the classified intent via intent.RequiredAgents.
func (o *Orchestrator) Process(ctx context.Context, query string, facets Facets, requiredAgents []registry.AgentType, observer StageObserver) OrchestratedResult {
	start := time.Now()
	if observer == nil {
		observer = noopObserver{}
	}

	bundle, classified, err := o.rag.Retrieve(ctx, query, facets.retrievalFacets())
	if err != nil {
		result := OrchestratedResult{
			Status:       StatusFailed,
			ErrorKind:    errs.Kind(err),
			ErrorMessage: err.Error(),
			DurationMS:   durationMS(start),
		}
		o.recordExecution(query, result)
		return result
	}
	observer.OnThought("retrieved context for "+string(classified), "")

	wanted := requiredAgents
	if len(wanted) == 0 {
		wanted = intent.RequiredAgents[classified]
	}

	plan, err := o.planner.BuildStages(wanted)
	if err != nil {
		result := OrchestratedResult{
			Status:       StatusFailed,
			Intent:       string(classified),
			Bundle:       bundle,
			ErrorKind:    errs.Kind(err),
			ErrorMessage: err.Error(),
			DurationMS:   durationMS(start),
		}
		o.recordExecution(query, result)
		return result
	}
	observer.OnThought("built execution plan", "")

	results := make(StageResults, len(plan.Stages)*2)
	var flatOrder []registry.AgentType

	for _, stage := range plan.Stages {
		observer.OnThought("executing stage", "")
		tasks := make([]executor.Task, len(stage))
		for i, t := range stage {
			t := t
			tasks[i] = o.buildTask(ctx, t, query, facets, bundle, results, observer)
		}

		taskResults := o.executor.ExecuteBatch(ctx, tasks)
		for i, tr := range taskResults {
			t := stage[i]
			flatOrder = append(flatOrder, t)
			if tr.Err != nil {
				results[t] = agent.Output{
					AgentType:     t,
					Success:       false,
					FailureReason: tr.Err.Error(),
				}
				continue
			}
			out, ok := tr.Value.(agent.Output)
			if !ok {
				results[t] = agent.Output{AgentType: t, Success: false, FailureReason: "internal: unexpected task result type"}
				continue
			}
			results[t] = out
		}
	}

	observer.OnThought("synthesizing", "")
	synthesis, conflicted := Synthesize(flatOrder, results, o.conflictThreshold)
	o.telemetry.RecordSynthesisConflict(ctx, conflicted)
	thin := bundle.Thin
	if o.verificationFloor > 0 {
		thin = bundle.Relevance < o.verificationFloor && retrieval.BuildPlan(classified, facets.AttachedDoc != "").NeedsVerification
	}
	if thin {
		synthesis = "_Note: limited supporting context was available for this answer._\n\n" + synthesis
	}

	status, sourcesUsed := o.summarize(flatOrder, results, bundle)
	confidence := aggregateConfidence(flatOrder, results)

	result := OrchestratedResult{
		Status:          status,
		Intent:          string(classified),
		Synthesis:       synthesis,
		StageResults:    results,
		Bundle:          bundle,
		Confidence:      confidence,
		AgentsConsulted: flatOrder,
		SourcesUsed:     sourcesUsed,
		DurationMS:      durationMS(start),
	}
	o.recordExecution(query, result)
	return result
}

// buildTask closes over one agent invocation as an executor.Task: it
// resolves the bound Agent, gathers the dependency outputs already staged,
// and respects a circuit breaker opened by a prior run of failures.
func (o *Orchestrator) buildTask(ctx context.Context, t registry.AgentType, query string, facets Facets, bundle retrieval.Bundle, results StageResults, observer StageObserver) executor.Task {
	return func(ctx context.Context) (interface{}, error) {
		observer.OnThought("invoking", string(t))

		if o.breaker != nil && !o.breaker.CanExecute() {
			return agent.Output{
				AgentType:     t,
				Success:       false,
				FailureReason: "circuit breaker open: too many recent LLM failures",
			}, nil
		}

		a, ok := o.agents[t]
		if !ok {
			return agent.Output{}, errs.Wrap("Orchestrator.buildTask", errs.ErrInvalidSelection, "no bound agent for "+string(t))
		}

		depOutputs := results.DependencyOutputsFor(o.registry, t)
		if dependencyFailed(o.registry, t, results) {
			out := agent.Output{
				AgentType:     t,
				Success:       false,
				FailureReason: "dependency_failed",
			}
			observer.OnThought("degraded: dependency failed", string(t))
			return out, nil
		}

		in := agent.Input{
			Query:             query,
			Facets:            facets.asMap(),
			ContextText:       renderBundle(bundle),
			DependencyOutputs: depOutputs,
		}

		invokeStart := time.Now()
		out, err := a.Invoke(ctx, in, time.Now().Add(o.llmCallDeadline))
		o.telemetry.RecordAgentInvocation(ctx, t, time.Since(invokeStart), err)
		if err != nil {
			if o.breaker != nil {
				o.breaker.RecordFailure()
			}
			observer.OnThought("failed: "+errs.Kind(err), string(t))
			return out, nil // agent failure never aborts the stage (§4.10 step 4)
		}
		if o.breaker != nil {
			o.breaker.RecordSuccess()
		}
		observer.OnThought("completed", string(t))
		return out, nil
	}
}

// dependencyFailed is true when t strictly depends on an agent that either
// never ran or did not succeed (§4.10 step 4's "dependency_failed marker").
func dependencyFailed(reg *registry.Registry, t registry.AgentType, all StageResults) bool {
	for dep := range reg.DependsOn(t) {
		out, ran := all[dep]
		if !ran || !out.Success {
			return true
		}
	}
	return false
}

// renderBundle flattens a ContextBundle's fragments into the prose block
// the agent's prompt template embeds under "Retrieved context:".
func renderBundle(b retrieval.Bundle) string {
	if len(b.Fragments) == 0 {
		return ""
	}
	var out string
	for _, f := range b.Fragments {
		out += "[" + string(f.Source) + "] " + f.Text + "\n"
	}
	return out
}

// summarize derives the terminal status (§6/§7's "a turn fails only on
// planner errors or the turn deadline; every other failure degrades the
// turn") and the deduplicated sources_used set across every successful
// agent plus the bundle's own contribution.
func (o *Orchestrator) summarize(order []registry.AgentType, results StageResults, bundle retrieval.Bundle) (Status, []string) {
	total, succeeded := 0, 0
	sources := map[string]struct{}{}

	for _, t := range order {
		total++
		out, ok := results[t]
		if !ok {
			continue
		}
		if out.Success {
			succeeded++
			for _, s := range out.SourcesUsed {
				sources[s] = struct{}{}
			}
		}
	}

	if len(bundle.Fragments) > 0 {
		hasStrong := false
		for _, f := range bundle.Fragments {
			if f.Score >= 0.5 {
				hasStrong = true
				break
			}
		}
		if hasStrong {
			sources["knowledge_base"] = struct{}{}
		}
	}
	if len(sources) == 0 {
		sources["llm_knowledge"] = struct{}{}
	}

	sourceList := make([]string, 0, len(sources))
	for s := range sources {
		sourceList = append(sourceList, s)
	}

	switch {
	case total == 0:
		return StatusOK, sourceList
	case succeeded == total:
		return StatusOK, sourceList
	case succeeded == 0:
		return StatusFailed, sourceList
	default:
		return StatusPartial, sourceList
	}
}

// aggregateConfidence is the mean confidence across successful agents, 0 if
// none succeeded — feeds the terminal metadata.confidence (§4.11).
func aggregateConfidence(order []registry.AgentType, results StageResults) int {
	sum, n := 0, 0
	for _, t := range order {
		out, ok := results[t]
		if ok && out.Success {
			sum += out.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / n
}
