package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varunalfred/Finmentor-sub000/agent"
	"github.com/varunalfred/Finmentor-sub000/executor"
	"github.com/varunalfred/Finmentor-sub000/intent"
	"github.com/varunalfred/Finmentor-sub000/llm"
	"github.com/varunalfred/Finmentor-sub000/logging"
	"github.com/varunalfred/Finmentor-sub000/orchestrator"
	"github.com/varunalfred/Finmentor-sub000/persistence"
	"github.com/varunalfred/Finmentor-sub000/planner"
	"github.com/varunalfred/Finmentor-sub000/registry"
	"github.com/varunalfred/Finmentor-sub000/retrieval"
)

type fakeLLM struct{}

func (fakeLLM) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResult, error) {
	return llm.CompletionResult{Text: "ok", ParsedFields: map[string]interface{}{
		"analysis":       "a P/E ratio is price over earnings",
		"recommendation": "no action needed",
		"confidence":     80.0,
		"sources_used":   []interface{}{"llm_knowledge"},
	}}, nil
}

type fakeEmbedder struct{ calls int }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return []float32{0.1, 0.2, 0.3}, nil
}

type recordingEmitter struct {
	events []Event
}

func (r *recordingEmitter) Emit(e Event) { r.events = append(r.events, e) }

func (r *recordingEmitter) kinds() []EventKind {
	out := make([]EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func newTestSession(t *testing.T, p persistence.Persistence, embedder Embedder, deadline time.Duration) *Session {
	t.Helper()
	reg := registry.New()
	pl := planner.New(reg, planner.AutoAdd)
	classifier := intent.New(nil, nil)
	stores := map[retrieval.StoreID]retrieval.Store{}
	rag := retrieval.New(classifier, &fakeEmbedder{}, stores, logging.NoOp{})
	exec := executor.New(2, nil, logging.NoOp{})

	agents := make(map[registry.AgentType]*agent.Agent, len(reg.All()))
	for _, at := range reg.All() {
		def, err := reg.Get(at)
		require.NoError(t, err)
		agents[at] = agent.New(def, fakeLLM{}, "You are "+string(at)+".")
	}

	breaker := orchestrator.NewCircuitBreaker(5, time.Second)
	o := orchestrator.New(reg, pl, rag, exec, breaker, agents, 2*time.Second, 60, 0.3, logging.NoOp{})
	return New(o, p, embedder, deadline, logging.NoOp{})
}

func TestRunSuccessfulTurnEmitsFullLifecycleAndPersists(t *testing.T) {
	store := persistence.NewInMemory()
	embedder := &fakeEmbedder{}
	s := newTestSession(t, store, embedder, 5*time.Second)

	emitter := &recordingEmitter{}
	meta := s.Run(context.Background(), "owner-1", "", "What is a P/E ratio?", orchestrator.Facets{}, nil, emitter)

	assert.Equal(t, "ok", meta.Status)
	assert.True(t, meta.Persisted)
	assert.NotEmpty(t, meta.ConversationID)
	assert.Contains(t, emitter.kinds(), EventThought)
	assert.Contains(t, emitter.kinds(), EventToken)
	require.Equal(t, EventMetadata, emitter.events[len(emitter.events)-1].Kind)

	msgs := store.Messages(meta.ConversationID)
	require.Len(t, msgs, 2)
	assert.Equal(t, persistence.RoleUser, msgs[0].Role)
	assert.Equal(t, persistence.RoleAssistant, msgs[1].Role)
	assert.NotEmpty(t, msgs[0].Embedding)
	assert.NotEmpty(t, msgs[1].Embedding)
}

func TestRunDeadlineExceededFailsTurnAndPersistsUserOnly(t *testing.T) {
	store := persistence.NewInMemory()
	s := newTestSession(t, store, &fakeEmbedder{}, time.Nanosecond)

	emitter := &recordingEmitter{}
	meta := s.Run(context.Background(), "owner-1", "", "Should I rebalance?", orchestrator.Facets{}, nil, emitter)

	assert.Equal(t, "failed", meta.Status)
	assert.Contains(t, emitter.kinds(), EventError)
	lastErr := emitter.events[len(emitter.events)-2]
	require.Equal(t, EventError, lastErr.Kind)
	assert.Equal(t, "turn_timeout", lastErr.ErrorKind)

	msgs := store.Messages(meta.ConversationID)
	require.Len(t, msgs, 1)
	assert.Equal(t, persistence.RoleUser, msgs[0].Role)
	assert.Equal(t, "turn_timeout", msgs[0].ErrorKind)
}

func TestRunPersistenceFailureDegradesWithoutFailingTurn(t *testing.T) {
	store := persistence.NewInMemory()
	store.FailNext = true
	s := newTestSession(t, store, &fakeEmbedder{}, 5*time.Second)

	emitter := &recordingEmitter{}
	meta := s.Run(context.Background(), "owner-1", "", "What is a P/E ratio?", orchestrator.Facets{}, nil, emitter)

	assert.Equal(t, "ok", meta.Status)
	assert.False(t, meta.Persisted)
}

func TestRunWithoutPersistenceReportsUnpersisted(t *testing.T) {
	s := newTestSession(t, nil, nil, 5*time.Second)
	emitter := &recordingEmitter{}
	meta := s.Run(context.Background(), "owner-1", "conv-1", "What is a P/E ratio?", orchestrator.Facets{}, nil, emitter)

	assert.Equal(t, "ok", meta.Status)
	assert.False(t, meta.Persisted)
	assert.Equal(t, "conv-1", meta.ConversationID)
}
