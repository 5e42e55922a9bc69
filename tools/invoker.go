package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Invoker calls every tool an agent declares and renders the results as a
// context block the agent's prompt can embed, matching §6's "invoked only
// by agents whose signature declares the capability, and only within the
// agent's own LLM turn" — the invocation happens once per agent call, its
// result never outlives that call.
type Invoker struct {
	reg *Registry
}

func NewInvoker(reg *Registry) *Invoker {
	return &Invoker{reg: reg}
}

// Invoke calls each named tool with args, skipping any tool name the
// registry doesn't recognize (a declared-but-unwired tool degrades
// silently rather than failing the agent's turn, matching §7's general
// degrade-don't-fail posture for non-planner failures). A tool call error
// is rendered into the block rather than propagated, for the same reason.
func (inv *Invoker) Invoke(ctx context.Context, toolNames []string, args map[string]interface{}) string {
	if len(toolNames) == 0 {
		return ""
	}
	names := append([]string{}, toolNames...)
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		tool, ok := inv.reg.Get(name)
		if !ok {
			continue
		}
		result, err := tool.Call(ctx, args)
		if err != nil {
			fmt.Fprintf(&b, "[tool:%s] error: %s\n", name, err.Error())
			continue
		}
		fmt.Fprintf(&b, "[tool:%s] %s\n", name, formatResult(result))
	}
	return b.String()
}

func formatResult(result map[string]interface{}) string {
	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, result[k]))
	}
	return strings.Join(parts, " ")
}
