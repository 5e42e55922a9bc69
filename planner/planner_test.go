package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varunalfred/Finmentor-sub000/errs"
	"github.com/varunalfred/Finmentor-sub000/registry"
)

func TestBuildStagesSimpleNoDeps(t *testing.T) {
	reg := registry.New()
	p := New(reg, AutoAdd)

	plan, err := p.BuildStages([]registry.AgentType{registry.Education})
	require.NoError(t, err)
	require.Len(t, plan.Stages, 1)
	assert.Equal(t, []registry.AgentType{registry.Education}, plan.Stages[0])
}

func TestBuildStagesAutoAddsMissingDependencies(t *testing.T) {
	reg := registry.New()
	p := New(reg, AutoAdd)

	plan, err := p.BuildStages([]registry.AgentType{registry.PortfolioOptimizer})
	require.NoError(t, err)
	require.Len(t, plan.Stages, 3)

	assert.ElementsMatch(t, []registry.AgentType{
		registry.MarketAnalyst, registry.TechnicalAnalysis, registry.EconomicAnalysis,
	}, plan.Stages[0])
	assert.Equal(t, []registry.AgentType{registry.RiskAssessment}, plan.Stages[1])
	assert.Equal(t, []registry.AgentType{registry.PortfolioOptimizer}, plan.Stages[2])
}

func TestBuildStagesFailPolicyReturnsMissingDependency(t *testing.T) {
	reg := registry.New()
	p := New(reg, Fail)

	_, err := p.BuildStages([]registry.AgentType{registry.PortfolioOptimizer})
	assert.ErrorIs(t, err, errs.ErrMissingDependency)
}

func TestBuildStagesUnknownAgentIsInvalidSelection(t *testing.T) {
	reg := registry.New()
	p := New(reg, AutoAdd)

	_, err := p.BuildStages([]registry.AgentType{registry.AgentType("not_a_real_agent")})
	assert.ErrorIs(t, err, errs.ErrInvalidSelection)
}

func TestBuildStagesIsDeterministicWithinAStage(t *testing.T) {
	reg := registry.New()
	p := New(reg, AutoAdd)

	plan, err := p.BuildStages([]registry.AgentType{
		registry.EconomicAnalysis, registry.MarketAnalyst, registry.TechnicalAnalysis,
	})
	require.NoError(t, err)
	require.Len(t, plan.Stages, 1)
	assert.Equal(t, []registry.AgentType{
		registry.MarketAnalyst, registry.TechnicalAnalysis, registry.EconomicAnalysis,
	}, plan.Stages[0])
}

func TestBuildStagesMultipleIndependentRequests(t *testing.T) {
	reg := registry.New()
	p := New(reg, AutoAdd)

	plan, err := p.BuildStages([]registry.AgentType{
		registry.TaxAdvisor, registry.CostAnalyzer,
	})
	require.NoError(t, err)
	// Stage 0: tier0 deps of risk_assessment; stage1: risk_assessment;
	// stage2: portfolio_optimizer; stage3: tax_advisor + cost_analyzer.
	require.Len(t, plan.Stages, 4)
	assert.ElementsMatch(t, []registry.AgentType{registry.TaxAdvisor, registry.CostAnalyzer}, plan.Stages[3])
}
