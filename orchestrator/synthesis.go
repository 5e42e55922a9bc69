package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/varunalfred/Finmentor-sub000/registry"
)

// conflictPhrase is the literal sentence the resolved Open Question
// requires whenever the top two confidence-weighted recommendations
// disagree and both clear the conflict threshold.
const conflictPhrase = "These signals conflict — treat this as mixed signals, not a single verdict."

// Synthesize implements §4.10 step 5: concatenate each successful agent's
// analysis under a labelled heading, then append a consolidated
// recommendation section. Conflicting recommendations are resolved by the
// deterministic template recorded against the spec's synthesis Open
// Question: when the top two confidence-weighted recommendations differ
// and both exceed conflictThreshold, both are emitted labelled Primary/
// Alternative with the literal conflict sentence; otherwise the
// highest-confidence recommendation alone is emitted.
// Synthesize returns the rendered answer and whether the top two
// recommendations conflicted (used to feed the synthesis-conflict counter
// in telemetry).
func Synthesize(order []registry.AgentType, results StageResults, conflictThreshold int) (string, bool) {
	var body strings.Builder

	for _, t := range order {
		out, ok := results[t]
		if !ok {
			continue
		}
		fmt.Fprintf(&body, "## %s\n", heading(t))
		if !out.Success {
			fmt.Fprintf(&body, "_Unable to complete: %s._\n\n", out.FailureReason)
			continue
		}
		body.WriteString(out.Analysis)
		body.WriteString("\n\n")
	}

	recommendation, conflicted := consolidateRecommendations(order, results, conflictThreshold)
	body.WriteString("## Recommendation\n")
	body.WriteString(recommendation)

	return body.String(), conflicted
}

// weighted is one agent's recommendation paired with its confidence, used
// to find the top two distinct recommendation strings by weight.
type weighted struct {
	agentType      registry.AgentType
	recommendation string
	confidence     int
}

func consolidateRecommendations(order []registry.AgentType, results StageResults, conflictThreshold int) string {
	var candidates []weighted
	for _, t := range order {
		out, ok := results[t]
		if !ok || !out.Success || strings.TrimSpace(out.Recommendation) == "" {
			continue
		}
		candidates = append(candidates, weighted{agentType: t, recommendation: out.Recommendation, confidence: out.Confidence})
	}

	if len(candidates) == 0 {
		return "No agent produced a recommendation for this turn."
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].confidence > candidates[j].confidence })

	top := candidates[0]
	// Find the highest-confidence candidate whose recommendation text
	// actually differs from top's, to compare as the "second" signal.
	var second *weighted
	for i := 1; i < len(candidates); i++ {
		if candidates[i].recommendation != top.recommendation {
			c := candidates[i]
			second = &c
			break
		}
	}

	if second == nil || second.confidence <= conflictThreshold || top.confidence <= conflictThreshold {
		return fmt.Sprintf("%s (confidence %d, from %s).", top.recommendation, top.confidence, top.agentType)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Primary: %s (confidence %d, from %s).\n", top.recommendation, top.confidence, top.agentType)
	fmt.Fprintf(&b, "Alternative: %s (confidence %d, from %s).\n", second.recommendation, second.confidence, second.agentType)
	b.WriteString(conflictPhrase)
	return b.String()
}

func heading(t registry.AgentType) string {
	words := strings.Split(string(t), "_")
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
