package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
)

// Bundle is the ContextBundle of the data model: an ordered, deduplicated
// sequence of fragments with an aggregate relevance score. Immutable once
// built — callers only ever read from it.
type Bundle struct {
	Fragments []Fragment
	Relevance float64
	Thin      bool
	Intent    string
}

var normalizeWhitespace = regexp.MustCompile(`\s+`)

func normalizedHash(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(normalizeWhitespace.ReplaceAllString(text, " ")))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// assemble implements §4.8 steps 5-6: concatenate per-store fragments,
// deduplicate by a hash of normalized content (keeping the
// highest-scoring copy of a duplicate), sort by score descending, and
// aggregate relevance as min(1, sum(top-scores)/plan.expected_minimum) —
// the Open Question's resolved formula. If the plan needs verification and
// the aggregate relevance is below 0.3, the bundle is flagged thin.
func assemble(plan Plan, perStore map[StoreID][]Fragment, intentName string) Bundle {
	seen := make(map[string]int) // hash -> index into deduped
	deduped := make([]Fragment, 0)

	for _, q := range plan.Queries {
		for _, f := range perStore[q.Store] {
			h := normalizedHash(f.Text)
			if idx, ok := seen[h]; ok {
				if f.Score > deduped[idx].Score {
					deduped[idx] = f
				}
				continue
			}
			seen[h] = len(deduped)
			deduped = append(deduped, f)
		}
	}

	sort.SliceStable(deduped, func(i, j int) bool { return deduped[i].Score > deduped[j].Score })

	sum := 0.0
	for _, f := range deduped {
		sum += f.Score
	}

	relevance := sum / plan.ExpectedMinimum()
	if relevance > 1 {
		relevance = 1
	}
	if relevance < 0 {
		relevance = 0
	}

	thin := plan.NeedsVerification && relevance < 0.3

	return Bundle{
		Fragments: deduped,
		Relevance: relevance,
		Thin:      thin,
		Intent:    intentName,
	}
}
