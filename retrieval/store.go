package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/qdrant/go-client/qdrant"

	"github.com/varunalfred/Finmentor-sub000/errs"
)

// Fragment is one retrieved piece of context, matching the ContextBundle
// element of the data model: {source, text, score, provenance}.
type Fragment struct {
	Source     StoreID
	Text       string
	Score      float64 // cosine similarity, at most 1; RedisConversationStore can return negative values
	Provenance string
}

// Filters narrows a search per §4.7: owner-scoped (conversations),
// document-scoped (chunks), visibility (public/private).
type Filters struct {
	OwnerID    string
	DocumentID string
	Visibility string // "public" | "private", empty = unrestricted
}

func (f Filters) toMap() map[string]string {
	m := make(map[string]string, 3)
	if f.OwnerID != "" {
		m["owner_id"] = f.OwnerID
	}
	if f.DocumentID != "" {
		m["document_id"] = f.DocumentID
	}
	if f.Visibility != "" {
		m["visibility"] = f.Visibility
	}
	return m
}

// Store is C7's uniform interface over every corpus. An unhealthy store
// must be treated by callers as producing an empty result, never as a
// failure of the turn (§4.7).
type Store interface {
	ID() StoreID
	Search(ctx context.Context, embedding []float32, k int, filters Filters) ([]Fragment, error)
	Healthy(ctx context.Context) bool
}

// QdrantStore is a Store backed by a Qdrant collection, one per corpus
// (education, market, documents). Grounded on
// _examples/intelligencedev-manifold/internal/persistence/databases/qdrant_vector.go's
// qdrantVector.SimilaritySearch.
type QdrantStore struct {
	id         StoreID
	client     *qdrant.Client
	collection string
}

// NewQdrantStore wires a Qdrant gRPC client (default port 6334, matching
// the teacher's NewQdrantVector) to one named collection.
func NewQdrantStore(id StoreID, host string, port int, collection string, useTLS bool, apiKey string) (*QdrantStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("qdrant store %s: collection name is required", id)
	}
	if port == 0 {
		port = 6334
	}
	cfg := &qdrant.Config{Host: host, Port: port, UseTLS: useTLS}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("qdrant store %s: create client: %w", id, err)
	}
	return &QdrantStore{id: id, client: client, collection: collection}, nil
}

func (s *QdrantStore) ID() StoreID { return s.id }

func (s *QdrantStore) Search(ctx context.Context, embedding []float32, k int, filters Filters) ([]Fragment, error) {
	if k <= 0 {
		k = 5
	}
	var queryFilter *qdrant.Filter
	if fm := filters.toMap(); len(fm) > 0 {
		must := make([]*qdrant.Condition, 0, len(fm))
		for key, val := range fm {
			must = append(must, qdrant.NewMatch(key, val))
		}
		queryFilter = &qdrant.Filter{Must: must}
	}

	limit := uint64(k)
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(embedding),
		Limit:          &limit,
		Filter:         queryFilter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, errs.Wrap("QdrantStore.Search", errs.ErrTransport, err.Error())
	}

	fragments := make([]Fragment, 0, len(hits))
	for _, hit := range hits {
		text := ""
		provenance := ""
		if hit.Payload != nil {
			if v, ok := hit.Payload["text"]; ok {
				text = v.GetStringValue()
			}
			if v, ok := hit.Payload["provenance"]; ok {
				provenance = v.GetStringValue()
			}
		}
		fragments = append(fragments, Fragment{
			Source:     s.id,
			Text:       text,
			Score:      float64(hit.Score),
			Provenance: provenance,
		})
	}
	sort.Slice(fragments, func(i, j int) bool { return fragments[i].Score > fragments[j].Score })
	return fragments, nil
}

func (s *QdrantStore) Healthy(ctx context.Context) bool {
	_, err := s.client.CollectionExists(ctx, s.collection)
	return err == nil
}

// conversationWindow is how many of an owner's most recent turns the cache
// keeps; the corpus is small and recent per-user so a brute-force cosine
// scan over this bound is cheap, unlike a full vector index.
const conversationWindow = 50

// conversationEntry is what's pushed onto an owner's Redis list: the turn
// text alongside the same embedding vector that was persisted with it, so
// Search can score against it directly instead of re-embedding on read.
type conversationEntry struct {
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

// RedisConversationStore implements the "conversations" corpus as a cosine
// similarity search over recently cached turn embeddings held in Redis,
// grounded on the teacher's core.SchemaCache JSON-over-redis.Client caching
// idiom: conversation history lives in a fast cache in front of the
// durable Postgres log (persistence package), not in Qdrant, because it is
// owner-scoped and short-lived by comparison to the knowledge corpora.
type RedisConversationStore struct {
	client *redis.Client
}

func NewRedisConversationStore(client *redis.Client) *RedisConversationStore {
	return &RedisConversationStore{client: client}
}

func (s *RedisConversationStore) ID() StoreID { return StoreConversations }

// Append caches one more turn for ownerID, trimming the list back to
// conversationWindow entries so the corpus this Search scans never grows
// unbounded. Call after persistence.Persistence.AppendTurn succeeds.
func (s *RedisConversationStore) Append(ctx context.Context, ownerID, text string, embedding []float32) error {
	if ownerID == "" || strings.TrimSpace(text) == "" {
		return nil
	}
	data, err := json.Marshal(conversationEntry{Text: text, Embedding: embedding})
	if err != nil {
		return errs.Wrap("RedisConversationStore.Append", errs.ErrTransport, err.Error())
	}
	key := "conv:" + ownerID
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, conversationWindow-1)
	pipe.Expire(ctx, key, 30*24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.Wrap("RedisConversationStore.Append", errs.ErrTransport, err.Error())
	}
	return nil
}

// Search scores cached turns for an owner by cosine similarity against
// embedding, satisfying the round-trip invariant: a message just persisted
// in the same owner scope and re-embedded the same way returns as the top
// result whenever the store is healthy.
func (s *RedisConversationStore) Search(ctx context.Context, embedding []float32, k int, filters Filters) ([]Fragment, error) {
	if filters.OwnerID == "" {
		return nil, nil
	}
	key := "conv:" + filters.OwnerID
	raw, err := s.client.LRange(ctx, key, 0, conversationWindow-1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, errs.Wrap("RedisConversationStore.Search", errs.ErrTransport, err.Error())
	}

	fragments := make([]Fragment, 0, len(raw))
	for i, data := range raw {
		var entry conversationEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			continue
		}
		fragments = append(fragments, Fragment{
			Source:     StoreConversations,
			Text:       entry.Text,
			Score:      cosineSimilarity(embedding, entry.Embedding),
			Provenance: "conversation:" + filters.OwnerID + ":" + strconv.Itoa(i),
		})
	}
	sort.Slice(fragments, func(i, j int) bool { return fragments[i].Score > fragments[j].Score })
	if k > 0 && len(fragments) > k {
		fragments = fragments[:k]
	}
	return fragments, nil
}

func (s *RedisConversationStore) Healthy(ctx context.Context) bool {
	return s.client.Ping(ctx).Err() == nil
}

// cosineSimilarity returns the cosine similarity of a and b in [-1,1], or 0
// if either is empty or they differ in length (a malformed/legacy cache
// entry, treated as unrelated rather than an error).
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
