package llm

import (
	"fmt"
	"sort"
)

// candidate pairs a provider name with the priority/availability its
// DetectEnvironment reported, mirroring
// _examples/itsneelabh-gomind/ai/registry.go's detectBestProvider
// candidate-collection loop.
type candidate struct {
	name     string
	priority int
	client   Client
}

// SelectClient picks the highest-priority available Client, the way the
// teacher's detectBestProvider sorts registered providers by priority and
// takes the best available one. Unlike the teacher's runtime-registered
// global registry, the provider set here is fixed to the two constructed
// clients — there is no dynamic Register call because this module's
// provider set is closed at deployment configuration time, not discovered
// at runtime.
func SelectClient(anthropicClient *AnthropicClient, openaiClient *OpenAIClient) (Client, string, error) {
	var candidates []candidate

	if p, ok := AnthropicDetectEnvironment(); ok && anthropicClient != nil {
		candidates = append(candidates, candidate{name: "anthropic", priority: p, client: anthropicClient})
	}
	if p, ok := OpenAIDetectEnvironment(); ok && openaiClient != nil {
		candidates = append(candidates, candidate{name: "openai", priority: p, client: openaiClient})
	}

	if len(candidates) == 0 {
		return nil, "", fmt.Errorf("llm: no provider available (set ANTHROPIC_API_KEY or OPENAI_API_KEY)")
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].priority > candidates[j].priority })
	return candidates[0].client, candidates[0].name, nil
}
