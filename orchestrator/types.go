// Package orchestrator implements C10, the top-level orchestrator:
// deriving required agents from intent, building the ExecutionPlan via
// the planner, retrieving a ContextBundle, running every stage through the
// batched executor, and synthesising a final answer.
//
// Grounded on _examples/itsneelabh-gomind/pkg/orchestration/orchestrator.go's
// StandardOrchestrator (ProcessRequest's cache-check/route/execute/
// synthesise/respond pipeline, inline CircuitBreaker) and executor.go's
// PlanExecutor, generalized from RoutingPlan/RoutingStep-shaped state to
// this module's registry/planner/agent types.
package orchestrator

import (
	"time"

	"github.com/varunalfred/Finmentor-sub000/agent"
	"github.com/varunalfred/Finmentor-sub000/registry"
	"github.com/varunalfred/Finmentor-sub000/retrieval"
)

// StageResults accumulates every agent's Output across the turn so far,
// keyed by AgentType. It is turn-local and touched only by the
// orchestrator goroutine driving one turn — §5's "no locking is needed".
type StageResults map[registry.AgentType]agent.Output

// DependencyOutputsFor filters accumulated results down to the ones t
// actually depends on, per §4.10 step 4 ("dependency outputs filtered
// from the accumulated StageResults").
func (s StageResults) DependencyOutputsFor(reg *registry.Registry, t registry.AgentType) map[registry.AgentType]agent.Output {
	deps := reg.DependsOn(t)
	out := make(map[registry.AgentType]agent.Output, len(deps))
	for dep := range deps {
		if result, ok := s[dep]; ok {
			out[dep] = result
		}
	}
	return out
}

// Status is the terminal metadata.status signal of §6.
type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// OrchestratedResult is the return value of Orchestrator.Process.
type OrchestratedResult struct {
	Status         Status
	Intent         string
	Synthesis      string
	StageResults   StageResults
	Bundle         retrieval.Bundle
	Confidence     int
	AgentsConsulted []registry.AgentType
	SourcesUsed    []string
	DurationMS     int64
	ErrorKind      string
	ErrorMessage   string
}

func durationMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

// ExecutionRecord is one retained entry of the orchestrator's bounded
// execution history (§12's supplemented feature), grounded on the
// teacher's ExecutionRecord/GetExecutionHistory in
// _examples/itsneelabh-gomind/pkg/orchestration/orchestrator.go, narrowed
// to this module's query/intent/status vocabulary.
type ExecutionRecord struct {
	Query           string
	Intent          string
	Status          Status
	AgentsConsulted []registry.AgentType
	DurationMS      int64
	RecordedAt      time.Time
}
