package retrieval

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/varunalfred/Finmentor-sub000/errs"
	"github.com/varunalfred/Finmentor-sub000/intent"
	"github.com/varunalfred/Finmentor-sub000/logging"
)

// Embedder is the abstract embedding contract of §6: turns query text into
// a vector the stores can search against. Concrete adapters live in the
// llm package (OpenAIClient.Embed), kept separate from this
// package so retrieval never imports a specific SDK directly.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Facets are the lightweight user-context hints the orchestrator forwards
// into retrieval (risk tolerance, experience level, attached document id,
// owner id for conversation scoping).
type Facets struct {
	OwnerID            string
	RiskTolerance      string
	ExperienceLevel    string
	AttachedDocumentID string
}

// Telemetry receives one event per store search, win regardless of outcome,
// so the telemetry package can turn each call into a span without this
// package importing otel directly.
type Telemetry interface {
	RecordStoreSearch(ctx context.Context, store StoreID, fragments int, err error)
}

type noopTelemetry struct{}

func (noopTelemetry) RecordStoreSearch(context.Context, StoreID, int, error) {}

// cachedBundle is one entry of Service's response cache, grounded on the
// teacher's StandardOrchestrator.cache (cachedResponse/checkCache/
// cacheResponse/cleanupCache in
// _examples/itsneelabh-gomind/pkg/orchestration/orchestrator.go), carried
// forward here as a RAG-layer cache keyed by normalised query text rather
// than the teacher's own orchestrator-level request cache (§12).
type cachedBundle struct {
	bundle    Bundle
	intent    intent.Intent
	expiresAt time.Time
}

// Service implements C8: classify intent, build a retrieval plan, embed
// the query, fan out to every selected store, and assemble a Bundle.
type Service struct {
	classifier *intent.Classifier
	embedder   Embedder
	stores     map[StoreID]Store
	logger     logging.Logger
	telemetry  Telemetry

	cacheMutex   sync.RWMutex
	cache        map[string]*cachedBundle
	cacheTTL     time.Duration
	cacheEnabled bool
}

// New wires a Service from its collaborators. stores need not cover every
// StoreID — a plan referencing a store with no adapter configured is
// simply skipped, the same as an unhealthy store.
func New(classifier *intent.Classifier, embedder Embedder, stores map[StoreID]Store, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &Service{classifier: classifier, embedder: embedder, stores: stores, logger: logger, telemetry: noopTelemetry{}}
}

// SetTelemetry binds a Telemetry sink, e.g. telemetry.Provider, so every
// store search this Service makes is also recorded as a span/metric.
func (s *Service) SetTelemetry(t Telemetry) {
	if t == nil {
		t = noopTelemetry{}
	}
	s.telemetry = t
}

// EnableCache turns on response caching keyed by normalised query text
// (§12's supplemented feature, carried forward from the teacher's
// StandardOrchestrator.config.CacheEnabled/CacheTTL), starting a background
// goroutine that evicts expired entries once a minute the way the
// teacher's cleanupCache does. Disabled by default; call once at
// construction. A zero or negative ttl falls back to a 5 minute default.
func (s *Service) EnableCache(ttl time.Duration) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	s.cacheMutex.Lock()
	s.cache = make(map[string]*cachedBundle)
	s.cacheTTL = ttl
	s.cacheEnabled = true
	s.cacheMutex.Unlock()
	go s.cleanupCache()
}

// cacheKey normalises query text (lowercased, whitespace-collapsed) and
// scopes it by the facets that change what Retrieve returns for the same
// text: owner (conversations are owner-scoped) and attached document.
func cacheKey(query string, facets Facets) string {
	norm := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return norm + "|" + facets.OwnerID + "|" + facets.AttachedDocumentID
}

func (s *Service) checkCache(key string) (Bundle, intent.Intent, bool) {
	s.cacheMutex.RLock()
	defer s.cacheMutex.RUnlock()
	entry, ok := s.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return Bundle{}, "", false
	}
	return entry.bundle, entry.intent, true
}

func (s *Service) cacheResponse(key string, bundle Bundle, classified intent.Intent) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()
	s.cache[key] = &cachedBundle{bundle: bundle, intent: classified, expiresAt: time.Now().Add(s.cacheTTL)}
}

func (s *Service) cleanupCache() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		s.cacheMutex.Lock()
		now := time.Now()
		for k, v := range s.cache {
			if now.After(v.expiresAt) {
				delete(s.cache, k)
			}
		}
		s.cacheMutex.Unlock()
	}
}

// CacheLen reports the number of live cache entries, for tests.
func (s *Service) CacheLen() int {
	s.cacheMutex.RLock()
	defer s.cacheMutex.RUnlock()
	return len(s.cache)
}

// Retrieve implements §4.8's seven-step algorithm and returns the bundle
// plus the intent that was used to build its plan, per step 7 ("used by
// the orchestrator to seed agent selection").
func (s *Service) Retrieve(ctx context.Context, query string, facets Facets) (Bundle, intent.Intent, error) {
	key := cacheKey(query, facets)
	if s.cacheEnabled {
		if bundle, classified, hit := s.checkCache(key); hit {
			return bundle, classified, nil
		}
	}

	classified, err := s.classifier.Classify(ctx, query)
	if err != nil {
		return Bundle{}, "", err
	}

	plan := BuildPlan(classified.Intent, facets.AttachedDocumentID != "")

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return Bundle{}, "", errs.Wrap("retrieval.Service.Retrieve", errs.ErrTransport, err.Error())
	}

	filters := Filters{OwnerID: facets.OwnerID, DocumentID: facets.AttachedDocumentID}

	perStore := make(map[StoreID][]Fragment, len(plan.Queries))
	for _, q := range plan.Queries {
		store, ok := s.stores[q.Store]
		if !ok {
			continue
		}
		if !store.Healthy(ctx) {
			s.logger.Warn("store unhealthy, treating as empty", map[string]interface{}{"store": q.Store})
			s.telemetry.RecordStoreSearch(ctx, q.Store, 0, errs.ErrStoreUnhealthy)
			continue
		}
		fragments, err := store.Search(ctx, embedding, q.K, filters)
		s.telemetry.RecordStoreSearch(ctx, q.Store, len(fragments), err)
		if err != nil {
			s.logger.Warn("store search failed, treating as empty", map[string]interface{}{
				"store": q.Store,
				"error": err.Error(),
			})
			continue
		}
		perStore[q.Store] = fragments
	}

	bundle := assemble(plan, perStore, string(classified.Intent))
	if s.cacheEnabled {
		s.cacheResponse(key, bundle, classified.Intent)
	}
	return bundle, classified.Intent, nil
}
