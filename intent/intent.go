// Package intent implements C5, the intent classifier: a rule-first
// matcher over normalised query text with fallback to a model call when
// the rules are inconclusive.
//
// Grounded on the routing-mode-selection idiom of
// _examples/itsneelabh-gomind/pkg/routing/interfaces.go (a Router picks a
// cheap heuristic path first and only calls into a model when the
// heuristic can't decide), generalized here into per-intent cue scoring.
package intent

import (
	"context"
	"strings"

	"github.com/varunalfred/Finmentor-sub000/ratelimit"
	"github.com/varunalfred/Finmentor-sub000/registry"
)

// Intent is one of the closed set of conversational intents.
type Intent string

const (
	HistoricalReference Intent = "historical_reference"
	EducationalQuery     Intent = "educational_query"
	MarketAnalysis       Intent = "market_analysis"
	PortfolioAdvice      Intent = "portfolio_advice"
	RiskAssessment       Intent = "risk_assessment"
	GeneralChat          Intent = "general_chat"
)

// priorityOrder is the fixed tie-break list from §4.5: earlier entries win
// ties because a false negative costs more downstream for them.
var priorityOrder = []Intent{
	PortfolioAdvice, RiskAssessment, MarketAnalysis, EducationalQuery, HistoricalReference, GeneralChat,
}

// cueSet declares the lexical cues for one intent, per §4.5's examples.
var cueSet = map[Intent][]string{
	HistoricalReference: {"last time", "previously", "earlier we", "you said before", "we discussed"},
	EducationalQuery:     {"what is", "what does", "how does", "explain", "define"},
	MarketAnalysis:       {"market", "index", "sector", "s&p", "nasdaq", "dow"},
	PortfolioAdvice:      {"should i buy", "should i sell", "rebalance", "my portfolio", "my holdings", "sell now", "buy now"},
	RiskAssessment:       {"how risky", "risk tolerance", "volatility", "downside", "diversified"},
	GeneralChat:          {},
}

// RequiredAgents is the fixed intent→agents map §4.10 step 1 uses to derive
// required_agents when the caller didn't supply any.
var RequiredAgents = map[Intent][]registry.AgentType{
	HistoricalReference: {registry.Education},
	EducationalQuery:    {registry.Education},
	MarketAnalysis:      {registry.MarketAnalyst, registry.TechnicalAnalysis, registry.EconomicAnalysis},
	PortfolioAdvice:     {registry.MarketAnalyst, registry.TechnicalAnalysis, registry.RiskAssessment, registry.PortfolioOptimizer},
	RiskAssessment:      {registry.MarketAnalyst, registry.TechnicalAnalysis, registry.EconomicAnalysis, registry.RiskAssessment},
	GeneralChat:         {registry.Education},
}

// Result is a classified intent with its confidence.
type Result struct {
	Intent     Intent
	Confidence float64
	FromModel  bool
}

// ModelFallback is called when rule-matching is inconclusive (every cue
// score is zero). It returns the model's best guess at the intent and a
// confidence in [0,1].
type ModelFallback func(ctx context.Context, query string) (Intent, float64, error)

// Classifier implements C5.
type Classifier struct {
	limiter  *ratelimit.Limiter
	fallback ModelFallback
}

// New builds a Classifier. limiter and fallback may be nil — with a nil
// fallback, an inconclusive query always resolves to GeneralChat at
// confidence 0.5 per §4.5.
func New(limiter *ratelimit.Limiter, fallback ModelFallback) *Classifier {
	return &Classifier{limiter: limiter, fallback: fallback}
}

// Classify scores query against every intent's cue set and returns the
// highest-scoring non-zero intent, breaking ties by priorityOrder. If every
// score is zero, it consumes one rate-limiter token and calls the model
// fallback (the Open Question's resolved policy); if no fallback is
// configured or the fallback errors, it returns GeneralChat at confidence
// 0.5.
func (c *Classifier) Classify(ctx context.Context, query string) (Result, error) {
	normalized := strings.ToLower(strings.TrimSpace(query))

	best := GeneralChat
	bestScore := 0.0
	for _, in := range priorityOrder {
		s := score(normalized, cueSet[in])
		if s > bestScore {
			bestScore = s
			best = in
		}
	}

	if bestScore > 0 {
		return Result{Intent: best, Confidence: bestScore}, nil
	}

	if c.fallback == nil {
		return Result{Intent: GeneralChat, Confidence: 0.5}, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx, 1); err != nil {
			return Result{Intent: GeneralChat, Confidence: 0.5}, nil
		}
	}

	in, conf, err := c.fallback(ctx, query)
	if err != nil {
		return Result{Intent: GeneralChat, Confidence: 0.5}, nil
	}
	return Result{Intent: in, Confidence: conf, FromModel: true}, nil
}

func score(normalized string, cues []string) float64 {
	if len(cues) == 0 {
		return 0
	}
	matched := 0
	for _, cue := range cues {
		if strings.Contains(normalized, cue) {
			matched++
		}
	}
	return float64(matched) / float64(len(cues))
}
