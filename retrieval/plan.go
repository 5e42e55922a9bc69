// Package retrieval implements C6 (Retrieval Planner), C7 (Vector Store
// Adapter), and C8 (RAG Service): turning a classified intent into a store
// fan-out plan, querying each store uniformly, and assembling the results
// into an immutable ContextBundle.
package retrieval

import (
	"github.com/varunalfred/Finmentor-sub000/intent"
)

// StoreID names one of the closed corpora a plan can select.
type StoreID string

const (
	StoreConversations StoreID = "conversations"
	StoreEducation     StoreID = "education"
	StoreDocuments     StoreID = "documents"
	StoreMarket        StoreID = "market"
)

// Horizon restricts how far back a store query should look.
type Horizon string

const (
	HorizonRecent Horizon = "recent"
	HorizonAll    Horizon = "all"
)

// StoreQuery is one store selected by a Plan along with the k to use
// against it — almost always the plan's uniform k, except the attached-
// document override (§4.6: "documents is added with k=3 regardless of
// intent").
type StoreQuery struct {
	Store StoreID
	K     int
}

// Plan is the RetrievalPlan record of the data model: which stores to hit
// (and at what k each), the time horizon, and whether the bundle this plan
// produces is required to clear a relevance bar before the orchestrator
// trusts it unreservedly.
type Plan struct {
	Queries           []StoreQuery
	Horizon           Horizon
	NeedsVerification bool
}

// Stores returns the plan's store identifiers in order, for callers that
// only need the set (e.g. logging, tests).
func (p Plan) Stores() []StoreID {
	out := make([]StoreID, len(p.Queries))
	for i, q := range p.Queries {
		out[i] = q.Store
	}
	return out
}

// template is one row of §4.6's closed intent→RetrievalPlan mapping.
type template struct {
	stores            []StoreID
	k                 int
	horizon           Horizon
	needsVerification bool
}

var templates = map[intent.Intent]template{
	intent.HistoricalReference: {stores: []StoreID{StoreConversations}, k: 5, horizon: HorizonRecent},
	intent.EducationalQuery:    {stores: []StoreID{StoreEducation}, k: 5, horizon: HorizonAll},
	intent.MarketAnalysis:      {stores: []StoreID{StoreEducation, StoreMarket}, k: 4, horizon: HorizonRecent},
	intent.PortfolioAdvice:     {stores: []StoreID{StoreConversations, StoreEducation, StoreMarket}, k: 3, horizon: HorizonRecent, needsVerification: true},
	intent.RiskAssessment:      {stores: []StoreID{StoreConversations, StoreEducation}, k: 3, horizon: HorizonAll, needsVerification: true},
	intent.GeneralChat:         {stores: []StoreID{StoreEducation}, k: 2, horizon: HorizonAll},
}

const documentAttachmentK = 3

// BuildPlan implements C6: looks up the closed template for in, then adds
// the documents store at k=3 if an attached document is present,
// regardless of intent and regardless of the template's own k.
func BuildPlan(in intent.Intent, hasAttachedDocument bool) Plan {
	t, ok := templates[in]
	if !ok {
		t = templates[intent.GeneralChat]
	}

	queries := make([]StoreQuery, 0, len(t.stores)+1)
	for _, s := range t.stores {
		queries = append(queries, StoreQuery{Store: s, K: t.k})
	}
	if hasAttachedDocument {
		queries = append(queries, StoreQuery{Store: StoreDocuments, K: documentAttachmentK})
	}

	return Plan{
		Queries:           queries,
		Horizon:           t.horizon,
		NeedsVerification: t.needsVerification,
	}
}

// ExpectedMinimum is the denominator of the relevance-aggregation formula
// resolved for the Open Question in §4.8 step 6:
// min(1, sum(top-scores) / expected_minimum), expected_minimum = len(stores) * k * 0.6,
// where "k" is each store's own per-query k.
func (p Plan) ExpectedMinimum() float64 {
	total := 0.0
	for _, q := range p.Queries {
		total += float64(q.K) * 0.6
	}
	if total <= 0 {
		return 1
	}
	return total
}
