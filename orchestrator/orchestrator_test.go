package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varunalfred/Finmentor-sub000/agent"
	"github.com/varunalfred/Finmentor-sub000/executor"
	"github.com/varunalfred/Finmentor-sub000/intent"
	"github.com/varunalfred/Finmentor-sub000/llm"
	"github.com/varunalfred/Finmentor-sub000/logging"
	"github.com/varunalfred/Finmentor-sub000/planner"
	"github.com/varunalfred/Finmentor-sub000/registry"
	"github.com/varunalfred/Finmentor-sub000/retrieval"
)

// fakeLLM returns a fixed analysis/recommendation/confidence triple for
// every call, optionally failing twice-in-a-row to exercise MalformedOutput.
type fakeLLM struct {
	analysis       string
	recommendation string
	confidence     float64
	domainFields   map[string]interface{}
	malformedCount int
	calls          int
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResult, error) {
	f.calls++
	if f.calls <= f.malformedCount {
		return llm.CompletionResult{Text: "not json"}, nil
	}
	fields := map[string]interface{}{
		"analysis":       f.analysis,
		"recommendation": f.recommendation,
		"confidence":     f.confidence,
		"sources_used":   []interface{}{"llm_knowledge"},
	}
	for k, v := range f.domainFields {
		fields[k] = v
	}
	return llm.CompletionResult{Text: "ok", ParsedFields: fields}, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

type fakeStore struct {
	id      retrieval.StoreID
	results []retrieval.Fragment
}

func (s *fakeStore) ID() retrieval.StoreID { return s.id }
func (s *fakeStore) Healthy(ctx context.Context) bool { return true }
func (s *fakeStore) Search(ctx context.Context, embedding []float32, k int, filters retrieval.Filters) ([]retrieval.Fragment, error) {
	return s.results, nil
}

func newOrchestratorForTest(t *testing.T, confidences map[registry.AgentType]float64, malformed map[registry.AgentType]int) *Orchestrator {
	t.Helper()
	reg := registry.New()
	p := planner.New(reg, planner.AutoAdd)
	classifier := intent.New(nil, nil)
	stores := map[retrieval.StoreID]retrieval.Store{
		retrieval.StoreEducation: &fakeStore{id: retrieval.StoreEducation, results: []retrieval.Fragment{
			{Source: retrieval.StoreEducation, Text: "A P/E ratio is price over earnings.", Score: 0.8},
		}},
	}
	rag := retrieval.New(classifier, fakeEmbedder{}, stores, logging.NoOp{})
	exec := executor.New(2, nil, logging.NoOp{})
	breaker := NewCircuitBreaker(5, time.Second)

	agents := make(map[registry.AgentType]*agent.Agent, len(reg.All()))
	for _, at := range reg.All() {
		def, err := reg.Get(at)
		require.NoError(t, err)
		conf := 70.0
		if c, ok := confidences[at]; ok {
			conf = c
		}
		client := &fakeLLM{
			analysis:       "analysis for " + string(at),
			recommendation: "recommendation from " + string(at),
			confidence:     conf,
			malformedCount: malformed[at],
		}
		agents[at] = agent.New(def, client, "You are "+string(at)+".")
	}

	return New(reg, p, rag, exec, breaker, agents, 2*time.Second, 60, 0.3, logging.NoOp{})
}

func TestProcessEducationalQuerySingleAgent(t *testing.T) {
	o := newOrchestratorForTest(t, nil, nil)
	result := o.Process(context.Background(), "What is a P/E ratio?", Facets{}, nil, nil)

	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, "educational_query", result.Intent)
	assert.Equal(t, []registry.AgentType{registry.Education}, result.AgentsConsulted)
	assert.Contains(t, result.SourcesUsed, "knowledge_base")
}

func TestProcessPortfolioAdviceConsultsFiveAgents(t *testing.T) {
	o := newOrchestratorForTest(t, nil, nil)
	result := o.Process(context.Background(), "Should I rebalance my portfolio now?", Facets{RiskTolerance: "moderate"}, nil, nil)

	require.Equal(t, StatusOK, result.Status)
	// intent.RequiredAgents[PortfolioAdvice] requests {market_analyst,
	// technical_analysis, risk_assessment, portfolio_optimizer}; under the
	// default auto_add policy the planner also pulls in economic_analysis,
	// risk_assessment's third declared dependency that the intent map
	// itself doesn't name. Three stages either way: tier0 agents, then
	// risk_assessment, then portfolio_optimizer.
	assert.Len(t, result.AgentsConsulted, 5)
	assert.Contains(t, result.AgentsConsulted, registry.EconomicAnalysis)
}

func TestProcessAgentFailureDoesNotAbortPeersAndDowngradesDependents(t *testing.T) {
	o := newOrchestratorForTest(t, nil, map[registry.AgentType]int{registry.TechnicalAnalysis: 2})
	result := o.Process(context.Background(), "Should I rebalance my portfolio now?", Facets{}, nil, nil)

	require.Equal(t, StatusPartial, result.Status)
	marketResult, ok := result.StageResults[registry.MarketAnalyst]
	require.True(t, ok)
	assert.True(t, marketResult.Success)

	techResult, ok := result.StageResults[registry.TechnicalAnalysis]
	require.True(t, ok)
	assert.False(t, techResult.Success)

	riskResult, ok := result.StageResults[registry.RiskAssessment]
	require.True(t, ok)
	assert.False(t, riskResult.Success)
	assert.Equal(t, "dependency_failed", riskResult.FailureReason)
}

func TestProcessMissingDependencyAutoAdd(t *testing.T) {
	o := newOrchestratorForTest(t, nil, nil)
	result := o.Process(context.Background(), "optimize my allocation", Facets{}, []registry.AgentType{registry.PortfolioOptimizer}, nil)

	require.Equal(t, StatusOK, result.Status)
	assert.Contains(t, result.AgentsConsulted, registry.MarketAnalyst)
	assert.Contains(t, result.AgentsConsulted, registry.RiskAssessment)
	assert.Contains(t, result.AgentsConsulted, registry.PortfolioOptimizer)
}

func TestProcessRecordsExecutionHistory(t *testing.T) {
	o := newOrchestratorForTest(t, nil, nil)

	o.Process(context.Background(), "What is a P/E ratio?", Facets{}, nil, nil)
	o.Process(context.Background(), "What is a P/E ratio?", Facets{}, nil, nil)

	history := o.ExecutionHistory()
	require.Len(t, history, 2)
	assert.Equal(t, "What is a P/E ratio?", history[0].Query)
	assert.Equal(t, "educational_query", history[0].Intent)
	assert.Equal(t, StatusOK, history[0].Status)
	assert.Equal(t, []registry.AgentType{registry.Education}, history[0].AgentsConsulted)
}

func TestProcessRecordsFailedExecutionInHistory(t *testing.T) {
	reg := registry.New()
	p := planner.New(reg, planner.Fail)
	classifier := intent.New(nil, nil)
	rag := retrieval.New(classifier, fakeEmbedder{}, map[retrieval.StoreID]retrieval.Store{}, logging.NoOp{})
	exec := executor.New(2, nil, logging.NoOp{})
	def, _ := reg.Get(registry.PortfolioOptimizer)
	agents := map[registry.AgentType]*agent.Agent{registry.PortfolioOptimizer: agent.New(def, &fakeLLM{}, "t")}
	o := New(reg, p, rag, exec, nil, agents, time.Second, 60, 0.3, logging.NoOp{})

	o.Process(context.Background(), "optimize", Facets{}, []registry.AgentType{registry.PortfolioOptimizer}, nil)

	history := o.ExecutionHistory()
	require.Len(t, history, 1)
	assert.Equal(t, StatusFailed, history[0].Status)
}

func TestExecutionHistoryBoundedBySetHistorySize(t *testing.T) {
	o := newOrchestratorForTest(t, nil, nil)
	o.SetHistorySize(2)

	for i := 0; i < 5; i++ {
		o.Process(context.Background(), "What is a P/E ratio?", Facets{}, nil, nil)
	}

	assert.Len(t, o.ExecutionHistory(), 2)
}

func TestProcessMissingDependencyFailPolicyEmitsMissingDependencyNoLLMCall(t *testing.T) {
	reg := registry.New()
	p := planner.New(reg, planner.Fail)
	classifier := intent.New(nil, nil)
	rag := retrieval.New(classifier, fakeEmbedder{}, map[retrieval.StoreID]retrieval.Store{}, logging.NoOp{})
	exec := executor.New(2, nil, logging.NoOp{})

	client := &fakeLLM{analysis: "x", recommendation: "y", confidence: 70}
	def, _ := reg.Get(registry.PortfolioOptimizer)
	agents := map[registry.AgentType]*agent.Agent{registry.PortfolioOptimizer: agent.New(def, client, "t")}

	o := New(reg, p, rag, exec, nil, agents, time.Second, 60, 0.3, logging.NoOp{})
	result := o.Process(context.Background(), "optimize", Facets{}, []registry.AgentType{registry.PortfolioOptimizer}, nil)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "missing_dependency", result.ErrorKind)
	assert.Equal(t, 0, client.calls)
}
