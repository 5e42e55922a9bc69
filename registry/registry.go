// Package registry implements C3, the agent registry: the closed catalogue
// of AgentTypes, their declared dependencies, and their input/output
// schemas.
//
// It is grounded on the teacher's ai.ProviderRegistry
// (_examples/itsneelabh-gomind/ai/registry.go) for the register/lookup/list
// shape, and on the financial-intelligence-system example agents (notably
// agents/portfolio-advisor/main.go's @capability/@description/@input_types
// annotation block) for the per-agent description and schema fields.
package registry

import (
	"fmt"
	"sort"

	"github.com/varunalfred/Finmentor-sub000/errs"
)

// AgentType is one of the closed set of reasoning agents the orchestrator
// can invoke.
type AgentType string

const (
	MarketAnalyst          AgentType = "market_analyst"
	TechnicalAnalysis      AgentType = "technical_analysis"
	NewsSentiment          AgentType = "news_sentiment"
	EconomicAnalysis       AgentType = "economic_analysis"
	Education              AgentType = "education"
	EarningsAnalysis       AgentType = "earnings_analysis"
	DividendAnalysis       AgentType = "dividend_analysis"
	PsychologicalProfiling AgentType = "psychological_profiling"
	RiskAssessment         AgentType = "risk_assessment"
	Behavioral             AgentType = "behavioral"
	PortfolioOptimizer     AgentType = "portfolio_optimizer"
	TaxAdvisor             AgentType = "tax_advisor"
	CostAnalyzer           AgentType = "cost_analyzer"
)

// Ordered is the stable total order on AgentType the planner sorts ties by
// (§4.4's determinism requirement). Index position is rank.
var Ordered = []AgentType{
	MarketAnalyst, TechnicalAnalysis, NewsSentiment, EconomicAnalysis,
	Education, EarningsAnalysis, DividendAnalysis, PsychologicalProfiling,
	RiskAssessment, Behavioral, PortfolioOptimizer, TaxAdvisor, CostAnalyzer,
}

// Rank returns a's position in the stable total order, for deterministic
// tie-breaking within a planner stage.
func Rank(a AgentType) int {
	for i, t := range Ordered {
		if t == a {
			return i
		}
	}
	return len(Ordered)
}

// Schema describes the shape of an agent's input or output, for validation
// and for documentation surfaced to operators. Fields are descriptive
// labels, not a full JSON-schema — the invocation adapter is the thing that
// actually marshals/unmarshals.
type Schema struct {
	// RequiredFields are always present regardless of agent type.
	RequiredFields []string
	// DomainFields are specific to this agent's output (e.g. "trend" for
	// technical_analysis, "target_allocation" for portfolio_optimizer).
	DomainFields []string
}

// Definition is everything the registry holds for one AgentType.
type Definition struct {
	Type        AgentType
	Description string
	DependsOn   map[AgentType]struct{}
	Input       Schema
	Output      Schema
	// Tools names the market-data tools (§6) this agent's signature
	// declares the capability to call. Empty for agents with no such
	// capability (e.g. education, tax_advisor).
	Tools []string
}

// Registry is the closed catalogue of agent definitions. It is built once
// at construction and is immutable thereafter — there is no runtime
// Register call, unlike the teacher's ai.ProviderRegistry, because the
// catalogue here is fixed by §4.3 rather than dynamically discovered.
type Registry struct {
	definitions map[AgentType]Definition
}

// commonOutputFields are present on every agent's output schema per §4.3:
// "always including a free-text analysis plus a structured recommendation".
var commonOutputFields = []string{"analysis", "recommendation", "confidence", "sources_used"}

var commonInputFields = []string{"query", "facets"}

// New builds the canonical registry described in §4.3. It statically
// cannot contain a cycle — the graph is hand-written below and checked by
// NewWithDefinitions, which runs the same check for hand-built catalogues
// used in tests.
func New() *Registry {
	r, err := NewWithDefinitions(canonicalDefinitions())
	if err != nil {
		// The canonical graph is fixed at compile time; if this ever
		// trips, the catalogue below was edited into an inconsistent
		// state.
		panic(err)
	}
	return r
}

// NewWithDefinitions builds a Registry from an arbitrary set of
// definitions, rejecting a cyclic dependency graph at construction per
// §4.3's "the registry rejects a hand-built cyclic graph at construction
// with an initialisation error". Used directly by tests that exercise the
// cyclic-rejection path with a deliberately broken catalogue.
func NewWithDefinitions(defs []Definition) (*Registry, error) {
	m := make(map[AgentType]Definition, len(defs))
	for _, d := range defs {
		m[d.Type] = d
	}
	r := &Registry{definitions: m}
	if err := r.validateAcyclic(); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the definition for t, or ErrAgentNotFound.
func (r *Registry) Get(t AgentType) (Definition, error) {
	d, ok := r.definitions[t]
	if !ok {
		return Definition{}, errs.Wrap("registry.Get", errs.ErrAgentNotFound, string(t))
	}
	return d, nil
}

// DependsOn returns the declared dependency set for t.
func (r *Registry) DependsOn(t AgentType) map[AgentType]struct{} {
	return r.definitions[t].DependsOn
}

// All returns every AgentType in the registry, in the stable total order.
func (r *Registry) All() []AgentType {
	out := make([]AgentType, 0, len(r.definitions))
	for t := range r.definitions {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return Rank(out[i]) < Rank(out[j]) })
	return out
}

// validateAcyclic runs a DFS cycle check over the declared dependency
// edges. Called once at construction.
func (r *Registry) validateAcyclic() error {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[AgentType]int, len(r.definitions))

	var visit func(t AgentType) error
	visit = func(t AgentType) error {
		color[t] = grey
		for dep := range r.definitions[t].DependsOn {
			switch color[dep] {
			case grey:
				return errs.Wrap("registry.validateAcyclic", errs.ErrCyclicDependency,
					fmt.Sprintf("%s -> %s", t, dep))
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[t] = black
		return nil
	}

	for t := range r.definitions {
		if color[t] == white {
			if err := visit(t); err != nil {
				return err
			}
		}
	}
	return nil
}

func dep(types ...AgentType) map[AgentType]struct{} {
	m := make(map[AgentType]struct{}, len(types))
	for _, t := range types {
		m[t] = struct{}{}
	}
	return m
}

// canonicalDefinitions is the §4.3 dependency graph, tier by tier.
func canonicalDefinitions() []Definition {
	tier0 := func(t AgentType, desc string, domainFields ...string) Definition {
		return Definition{
			Type:        t,
			Description: desc,
			DependsOn:   dep(),
			Input:       Schema{RequiredFields: commonInputFields},
			Output:      Schema{RequiredFields: commonOutputFields, DomainFields: domainFields},
		}
	}
	withTools := func(d Definition, tools ...string) Definition {
		d.Tools = tools
		return d
	}

	return []Definition{
		withTools(tier0(MarketAnalyst, "Analyzes current market conditions, indices, and sector performance.", "market_summary", "sector_moves"),
			"get_quote", "get_historical_prices"),
		withTools(tier0(TechnicalAnalysis, "Computes chart-based indicators and trend signals for named symbols.", "trend", "indicators"),
			"get_quote", "get_historical_prices"),
		tier0(NewsSentiment, "Scores recent news coverage for sentiment relevant to a symbol or sector.", "sentiment_score", "headlines"),
		withTools(tier0(EconomicAnalysis, "Analyzes macroeconomic indicators (rates, inflation, employment) for their market effect.", "indicators", "outlook"),
			"get_economic_indicator"),
		tier0(Education, "Explains financial concepts at a level matched to the user's stated experience.", "concepts_covered"),
		withTools(tier0(EarningsAnalysis, "Analyzes reported and expected earnings for a company.", "eps_surprise", "guidance"),
			"get_earnings"),
		withTools(tier0(DividendAnalysis, "Analyzes dividend yield, payout ratio, and sustainability for a holding.", "yield", "payout_ratio"),
			"get_dividend_history"),
		tier0(PsychologicalProfiling, "Infers the user's risk temperament and behavioral biases from conversation history.", "risk_temperament", "biases_detected"),

		{
			Type:        RiskAssessment,
			Description: "Synthesizes market, technical, and economic analysis into a portfolio risk profile.",
			DependsOn:   dep(MarketAnalyst, TechnicalAnalysis, EconomicAnalysis),
			Input:       Schema{RequiredFields: commonInputFields},
			Output:      Schema{RequiredFields: commonOutputFields, DomainFields: []string{"risk_score", "risk_factors"}},
		},
		{
			Type:        Behavioral,
			Description: "Turns a psychological profile into concrete behavioral guardrails for the user's decisions.",
			DependsOn:   dep(PsychologicalProfiling),
			Input:       Schema{RequiredFields: commonInputFields},
			Output:      Schema{RequiredFields: commonOutputFields, DomainFields: []string{"guardrails"}},
		},
		{
			Type:        PortfolioOptimizer,
			Description: "Proposes a target allocation given a risk profile.",
			DependsOn:   dep(RiskAssessment),
			Input:       Schema{RequiredFields: commonInputFields},
			Output:      Schema{RequiredFields: commonOutputFields, DomainFields: []string{"target_allocation", "rebalance_plan"}},
		},
		{
			Type:        TaxAdvisor,
			Description: "Evaluates tax-lot and tax-location implications of a proposed allocation change.",
			DependsOn:   dep(PortfolioOptimizer),
			Input:       Schema{RequiredFields: commonInputFields},
			Output:      Schema{RequiredFields: commonOutputFields, DomainFields: []string{"estimated_tax_impact"}},
		},
		{
			Type:        CostAnalyzer,
			Description: "Estimates transaction and fund-expense costs of a proposed allocation change.",
			DependsOn:   dep(PortfolioOptimizer),
			Input:       Schema{RequiredFields: commonInputFields},
			Output:      Schema{RequiredFields: commonOutputFields, DomainFields: []string{"estimated_cost"}},
		},
	}
}
