// Package tools implements §6's market-data tools: a closed set of named
// tools, each with a declared input/output schema, invoked only by agents
// whose registry.Definition declares the capability, and only within that
// agent's own LLM turn (never shared across agents or persisted).
//
// The concrete market-data fetch adapters are explicitly out of scope
// (spec's Non-goals name "market-data fetch adapters" as a thin external
// collaborator); what belongs here is the tool contract and invocation
// plumbing the reasoning agents actually call through, grounded on
// _examples/itsneelabh-gomind/core/capability.go's Capability/Handler shape
// (a named, schema-described unit of behavior invoked through a uniform
// function signature) generalized from an HTTP-exposed agent capability to
// an in-process tool call.
package tools

import (
	"context"
	"fmt"
	"time"
)

// Schema names the fields a tool's args/result carry, descriptive only
// (matching registry.Schema's own non-JSON-schema posture).
type Schema struct {
	Input  []string
	Output []string
}

// Tool is one named, schema-described market-data operation.
type Tool interface {
	Name() string
	Schema() Schema
	Call(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)
}

// Registry is the closed catalogue of tools an Invoker may call, looked up
// by name the way registry.Registry looks up agents by AgentType.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry builds a Registry from the given tools, last write wins on a
// duplicate name.
func NewRegistry(ts ...Tool) *Registry {
	m := make(map[string]Tool, len(ts))
	for _, t := range ts {
		m[t.Name()] = t
	}
	return &Registry{tools: m}
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names lists every registered tool name, for diagnostics and for
// validating a registry.Definition.Tools list against what's actually
// wired.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for n := range r.tools {
		out = append(out, n)
	}
	return out
}

// QuoteFetcher is the external collaborator get_quote ultimately calls —
// the "market-data fetch adapter" the spec places out of scope. Production
// wiring supplies a real implementation; this package only defines the
// seam and a deterministic fake for tests.
type QuoteFetcher interface {
	Quote(ctx context.Context, symbol string) (price, change, changePct float64, asOf time.Time, err error)
}

// getQuoteTool implements get_quote(symbol) -> {price, change, change_pct, as_of}.
type getQuoteTool struct {
	fetcher QuoteFetcher
}

// NewGetQuoteTool binds a QuoteFetcher to the get_quote tool contract.
func NewGetQuoteTool(fetcher QuoteFetcher) Tool {
	return &getQuoteTool{fetcher: fetcher}
}

func (t *getQuoteTool) Name() string { return "get_quote" }

func (t *getQuoteTool) Schema() Schema {
	return Schema{Input: []string{"symbol"}, Output: []string{"price", "change", "change_pct", "as_of"}}
}

func (t *getQuoteTool) Call(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	symbol, _ := args["symbol"].(string)
	if symbol == "" {
		return nil, fmt.Errorf("get_quote: symbol is required")
	}
	price, change, changePct, asOf, err := t.fetcher.Quote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("get_quote(%s): %w", symbol, err)
	}
	return map[string]interface{}{
		"price":      price,
		"change":     change,
		"change_pct": changePct,
		"as_of":      asOf.Format(time.RFC3339),
	}, nil
}

// HistoryFetcher is the external collaborator get_historical_prices calls.
type HistoryFetcher interface {
	History(ctx context.Context, symbol string, days int) ([]float64, error)
}

type getHistoricalPricesTool struct {
	fetcher HistoryFetcher
}

func NewGetHistoricalPricesTool(fetcher HistoryFetcher) Tool {
	return &getHistoricalPricesTool{fetcher: fetcher}
}

func (t *getHistoricalPricesTool) Name() string { return "get_historical_prices" }

func (t *getHistoricalPricesTool) Schema() Schema {
	return Schema{Input: []string{"symbol", "days"}, Output: []string{"closes"}}
}

func (t *getHistoricalPricesTool) Call(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	symbol, _ := args["symbol"].(string)
	if symbol == "" {
		return nil, fmt.Errorf("get_historical_prices: symbol is required")
	}
	days := 30
	if d, ok := args["days"].(int); ok && d > 0 {
		days = d
	}
	closes, err := t.fetcher.History(ctx, symbol, days)
	if err != nil {
		return nil, fmt.Errorf("get_historical_prices(%s): %w", symbol, err)
	}
	return map[string]interface{}{"closes": closes}, nil
}

// EarningsFetcher is the external collaborator get_earnings calls.
type EarningsFetcher interface {
	Earnings(ctx context.Context, symbol string) (epsActual, epsEstimate float64, reportedAt time.Time, err error)
}

type getEarningsTool struct {
	fetcher EarningsFetcher
}

func NewGetEarningsTool(fetcher EarningsFetcher) Tool {
	return &getEarningsTool{fetcher: fetcher}
}

func (t *getEarningsTool) Name() string { return "get_earnings" }

func (t *getEarningsTool) Schema() Schema {
	return Schema{Input: []string{"symbol"}, Output: []string{"eps_actual", "eps_estimate", "reported_at"}}
}

func (t *getEarningsTool) Call(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	symbol, _ := args["symbol"].(string)
	if symbol == "" {
		return nil, fmt.Errorf("get_earnings: symbol is required")
	}
	actual, estimate, reportedAt, err := t.fetcher.Earnings(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("get_earnings(%s): %w", symbol, err)
	}
	return map[string]interface{}{
		"eps_actual":   actual,
		"eps_estimate": estimate,
		"reported_at":  reportedAt.Format(time.RFC3339),
	}, nil
}

// DividendFetcher is the external collaborator get_dividend_history calls.
type DividendFetcher interface {
	DividendHistory(ctx context.Context, symbol string) (yield, payoutRatio float64, err error)
}

type getDividendHistoryTool struct {
	fetcher DividendFetcher
}

func NewGetDividendHistoryTool(fetcher DividendFetcher) Tool {
	return &getDividendHistoryTool{fetcher: fetcher}
}

func (t *getDividendHistoryTool) Name() string { return "get_dividend_history" }

func (t *getDividendHistoryTool) Schema() Schema {
	return Schema{Input: []string{"symbol"}, Output: []string{"yield", "payout_ratio"}}
}

func (t *getDividendHistoryTool) Call(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	symbol, _ := args["symbol"].(string)
	if symbol == "" {
		return nil, fmt.Errorf("get_dividend_history: symbol is required")
	}
	yield, payout, err := t.fetcher.DividendHistory(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("get_dividend_history(%s): %w", symbol, err)
	}
	return map[string]interface{}{"yield": yield, "payout_ratio": payout}, nil
}

// EconomicIndicatorFetcher is the external collaborator get_economic_indicator calls.
type EconomicIndicatorFetcher interface {
	Indicator(ctx context.Context, name string) (value float64, asOf time.Time, err error)
}

type getEconomicIndicatorTool struct {
	fetcher EconomicIndicatorFetcher
}

func NewGetEconomicIndicatorTool(fetcher EconomicIndicatorFetcher) Tool {
	return &getEconomicIndicatorTool{fetcher: fetcher}
}

func (t *getEconomicIndicatorTool) Name() string { return "get_economic_indicator" }

func (t *getEconomicIndicatorTool) Schema() Schema {
	return Schema{Input: []string{"indicator"}, Output: []string{"value", "as_of"}}
}

func (t *getEconomicIndicatorTool) Call(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	indicator, _ := args["indicator"].(string)
	if indicator == "" {
		return nil, fmt.Errorf("get_economic_indicator: indicator is required")
	}
	value, asOf, err := t.fetcher.Indicator(ctx, indicator)
	if err != nil {
		return nil, fmt.Errorf("get_economic_indicator(%s): %w", indicator, err)
	}
	return map[string]interface{}{"value": value, "as_of": asOf.Format(time.RFC3339)}, nil
}
