// Package planner implements C4, the dependency planner: turning a
// requested set of agents into an ordered ExecutionPlan of stages, where
// every agent in a stage has all its dependencies satisfied by an earlier
// stage.
//
// It generalizes the teacher's PlanExecutor.groupStepsByOrder
// (_examples/itsneelabh-gomind/pkg/orchestration/executor.go), which groups
// pre-ordered steps by a numeric Order field the caller must have already
// computed correctly, into an actual topological sort that computes stage
// order from the registry's dependency graph — the teacher's own comment
// above checkDependencies calls its version "a simplified check", which is
// the gap this package closes.
package planner

import (
	"sort"

	"github.com/varunalfred/Finmentor-sub000/errs"
	"github.com/varunalfred/Finmentor-sub000/registry"
)

// MissingDependencyPolicy selects what build_stages does when a requested
// agent depends on an agent absent from the request set (§4.4, §6).
type MissingDependencyPolicy string

const (
	AutoAdd MissingDependencyPolicy = "auto_add"
	Fail    MissingDependencyPolicy = "fail"
)

// ExecutionPlan is an ordered list of stages. Agents within a stage have no
// dependency on one another and can run concurrently; stage N+1 may depend
// on any agent in stage 0..N.
type ExecutionPlan struct {
	Stages [][]registry.AgentType
}

// Planner builds ExecutionPlans against a fixed registry.
type Planner struct {
	reg    *registry.Registry
	policy MissingDependencyPolicy
}

// New builds a Planner. policy defaults to AutoAdd per §6's documented
// default.
func New(reg *registry.Registry, policy MissingDependencyPolicy) *Planner {
	if policy == "" {
		policy = AutoAdd
	}
	return &Planner{reg: reg, policy: policy}
}

// BuildStages implements §4.4's algorithm: repeatedly peel off the "ready"
// set (requested agents whose dependencies are already staged), erroring
// with InvalidSelection if nothing is ever ready, and resolving missing
// dependencies per the configured policy before the loop starts.
func (p *Planner) BuildStages(requested []registry.AgentType) (ExecutionPlan, error) {
	want := make(map[registry.AgentType]struct{}, len(requested))
	for _, a := range requested {
		if _, err := p.reg.Get(a); err != nil {
			return ExecutionPlan{}, errs.Wrap("planner.BuildStages", errs.ErrInvalidSelection, string(a))
		}
		want[a] = struct{}{}
	}

	if err := p.resolveMissingDependencies(want); err != nil {
		return ExecutionPlan{}, err
	}

	done := make(map[registry.AgentType]struct{}, len(want))
	var stages [][]registry.AgentType

	for len(want) > 0 {
		var ready []registry.AgentType
		for a := range want {
			if dependenciesSatisfied(p.reg.DependsOn(a), done) {
				ready = append(ready, a)
			}
		}
		if len(ready) == 0 {
			return ExecutionPlan{}, errs.Wrap("planner.BuildStages", errs.ErrInvalidSelection,
				"no agent in the remaining selection has its dependencies satisfied")
		}

		sort.Slice(ready, func(i, j int) bool { return registry.Rank(ready[i]) < registry.Rank(ready[j]) })
		stages = append(stages, ready)

		for _, a := range ready {
			done[a] = struct{}{}
			delete(want, a)
		}
	}

	return ExecutionPlan{Stages: stages}, nil
}

// resolveMissingDependencies walks the transitive closure of want, either
// adding missing dependencies in place (AutoAdd) or failing on the first
// one found (Fail).
func (p *Planner) resolveMissingDependencies(want map[registry.AgentType]struct{}) error {
	for {
		var toAdd []registry.AgentType
		for a := range want {
			for dep := range p.reg.DependsOn(a) {
				if _, ok := want[dep]; !ok {
					if p.policy == Fail {
						return errs.Wrap("planner.resolveMissingDependencies", errs.ErrMissingDependency,
							string(dep)+" required by "+string(a))
					}
					toAdd = append(toAdd, dep)
				}
			}
		}
		if len(toAdd) == 0 {
			return nil
		}
		for _, a := range toAdd {
			want[a] = struct{}{}
		}
	}
}

func dependenciesSatisfied(deps map[registry.AgentType]struct{}, done map[registry.AgentType]struct{}) bool {
	for d := range deps {
		if _, ok := done[d]; !ok {
			return false
		}
	}
	return true
}
