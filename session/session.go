// Package session implements C11, the Streaming Session: the per-turn state
// machine of §4.11 that drives one user query through the orchestrator,
// emits incremental thought/token/metadata events, and persists the
// resulting user+assistant pair.
//
// Grounded on _examples/itsneelabh-gomind/core/async_task.go's
// Task/TaskProgress/ProgressReporter push-event idiom (a handler reports
// progress through a narrow Report(*TaskProgress) interface rather than
// returning a value synchronously), adapted from a generic async-task
// progress record into this domain's thought/token/metadata event union and
// from a single Report call into a running stream of them.
package session

import (
	"context"
	"strings"
	"time"

	"github.com/varunalfred/Finmentor-sub000/errs"
	"github.com/varunalfred/Finmentor-sub000/logging"
	"github.com/varunalfred/Finmentor-sub000/orchestrator"
	"github.com/varunalfred/Finmentor-sub000/persistence"
	"github.com/varunalfred/Finmentor-sub000/registry"
)

// State is one of §4.11's one-way transition states.
type State string

const (
	StateReceived     State = "RECEIVED"
	StateRetrieving   State = "RETRIEVING"
	StatePlanning     State = "PLANNING"
	StateExecuting    State = "EXECUTING"
	StateSynthesising State = "SYNTHESISING"
	StatePersisting   State = "PERSISTING"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// EventKind tags which fields of Event are populated.
type EventKind string

const (
	EventThought  EventKind = "thought"
	EventToken    EventKind = "token"
	EventMetadata EventKind = "metadata"
	EventError    EventKind = "error"
)

// Event is the tagged union of §6's exposed stream events.
type Event struct {
	Kind EventKind

	// thought
	Message string
	Agent   string

	// token
	Delta string

	// metadata
	Metadata *Metadata

	// error
	ErrorKind    string
	ErrorMessage string
}

// Metadata is the terminal metadata event's payload (§4.11/§6).
type Metadata struct {
	ConversationID  string
	Confidence      int
	DurationMS      int64
	AgentsConsulted []string
	SourcesUsed     []string
	Status          string
	Persisted       bool
}

// Emitter receives every Event a Session produces, in total order, matching
// §5's "emission to the stream is totally ordered per turn".
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a plain function to Emitter.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

// Embedder turns message content into the fixed-dimensional vector stored
// alongside it, matching §6's embed(text) contract.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// tokenChunkSize is the number of runes streamed per token event. The spec
// leaves granularity implementation-free; this module chunks by a fixed
// rune count so the emission is deterministic for tests.
const tokenChunkSize = 24

type noopStageObserver struct{}

func (noopStageObserver) OnThought(string, string) {}

// Session drives one turn's RECEIVED→...→DONE/FAILED lifecycle.
type Session struct {
	orchestrator *orchestrator.Orchestrator
	persistence  persistence.Persistence
	embedder     Embedder
	turnDeadline time.Duration
	logger       logging.Logger
	telemetry    orchestrator.StageObserver
}

// New builds a Session. persistence and embedder may be nil, in which case
// the turn still runs to completion but is reported unpersisted
// (Metadata.Persisted=false) and without embeddings.
func New(o *orchestrator.Orchestrator, p persistence.Persistence, embedder Embedder, turnDeadline time.Duration, logger logging.Logger) *Session {
	if turnDeadline <= 0 {
		turnDeadline = 60 * time.Second
	}
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &Session{orchestrator: o, persistence: p, embedder: embedder, turnDeadline: turnDeadline, logger: logger, telemetry: noopStageObserver{}}
}

// SetTelemetry binds a second StageObserver — e.g. telemetry.Provider — that
// receives every thought alongside the session's own event stream, so a
// turn's stage transitions become trace spans without the session itself
// depending on otel.
func (s *Session) SetTelemetry(observer orchestrator.StageObserver) {
	if observer == nil {
		observer = noopStageObserver{}
	}
	s.telemetry = observer
}

// Run executes one turn, emitting every event to emit, and returns the
// terminal Metadata (also the last event emitted).
func (s *Session) Run(ctx context.Context, ownerID, conversationID, query string, facets orchestrator.Facets, requiredAgents []registry.AgentType, emit Emitter) Metadata {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.turnDeadline)
	defer cancel()

	state := StateReceived
	emit.Emit(Event{Kind: EventThought, Message: "received query"})

	obs := &thoughtForwarder{emit: emit, state: &state, telemetry: s.telemetry}
	result := s.orchestrator.Process(ctx, query, facets, requiredAgents, obs)

	if ctx.Err() != nil {
		// Turn-level deadline expired (§5): fail the turn, discard partial
		// results, never stream a cancelled synthesis's tokens.
		state = StateFailed
		emit.Emit(Event{Kind: EventError, ErrorKind: "turn_timeout", ErrorMessage: "turn deadline exceeded"})
		meta := Metadata{Status: "failed", DurationMS: durationMS(start)}
		id, err := s.persistUserOnly(context.Background(), ownerID, conversationID, query, "turn_timeout")
		meta.ConversationID, meta.Persisted = id, err == nil
		emit.Emit(Event{Kind: EventMetadata, Metadata: &meta})
		return meta
	}

	if result.Status == orchestrator.StatusFailed && result.ErrorKind != "" {
		state = StateFailed
		emit.Emit(Event{Kind: EventError, ErrorKind: result.ErrorKind, ErrorMessage: result.ErrorMessage})
		meta := Metadata{Status: string(result.Status), DurationMS: durationMS(start)}
		id, err := s.persistUserOnly(context.Background(), ownerID, conversationID, query, result.ErrorKind)
		meta.ConversationID, meta.Persisted = id, err == nil
		emit.Emit(Event{Kind: EventMetadata, Metadata: &meta})
		return meta
	}

	state = StateSynthesising
	s.streamTokens(result.Synthesis, emit)

	state = StatePersisting
	emit.Emit(Event{Kind: EventThought, Message: "persisting conversation"})
	newConversationID, persisted := s.persistSuccess(ctx, ownerID, conversationID, query, result)

	if result.Status == orchestrator.StatusFailed {
		state = StateFailed
	} else {
		state = StateDone
	}

	meta := Metadata{
		ConversationID:  newConversationID,
		Confidence:      result.Confidence,
		DurationMS:      durationMS(start),
		AgentsConsulted: agentNames(result.AgentsConsulted),
		SourcesUsed:     result.SourcesUsed,
		Status:          string(result.Status),
		Persisted:       persisted,
	}
	emit.Emit(Event{Kind: EventMetadata, Metadata: &meta})
	return meta
}

// streamTokens emits the synthesis as a sequence of token events, each
// carrying only its appended suffix (§4.11).
func (s *Session) streamTokens(synthesis string, emit Emitter) {
	runes := []rune(synthesis)
	for i := 0; i < len(runes); i += tokenChunkSize {
		end := i + tokenChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		emit.Emit(Event{Kind: EventToken, Delta: string(runes[i:end])})
	}
}

// persistSuccess appends the user+assistant pair on a successful or partial
// turn. A persistence failure degrades to persisted=false per §5/§7 rather
// than failing the turn.
func (s *Session) persistSuccess(ctx context.Context, ownerID, conversationID, query string, result orchestrator.OrchestratedResult) (string, bool) {
	if s.persistence == nil {
		return conversationID, false
	}

	userEmbedding := s.embed(ctx, query)
	assistantEmbedding := s.embed(ctx, result.Synthesis)
	confidence := result.Confidence

	userMsg := persistence.Message{Role: persistence.RoleUser, Content: query, Embedding: userEmbedding}
	assistantMsg := persistence.Message{
		Role:       persistence.RoleAssistant,
		Content:    result.Synthesis,
		Embedding:  assistantEmbedding,
		Confidence: &confidence,
	}

	id, err := s.persistence.AppendTurn(ctx, ownerID, conversationID, userMsg, assistantMsg, persistence.Metadata{
		ConversationID:  conversationID,
		Confidence:      result.Confidence,
		AgentsConsulted: agentNames(result.AgentsConsulted),
		SourcesUsed:     result.SourcesUsed,
		Status:          string(result.Status),
	})
	if err != nil {
		s.logger.Warn("conversation persistence failed, turn still reported to caller", map[string]interface{}{
			"error": err.Error(), "kind": errs.Kind(err),
		})
		return conversationID, false
	}
	return id, true
}

// persistUserOnly appends only the user message with an error marker, per
// §4.11's "On terminal failure only the user message is persisted with an
// error marker so retries remain auditable."
func (s *Session) persistUserOnly(ctx context.Context, ownerID, conversationID, query, errorKind string) (string, error) {
	if s.persistence == nil {
		return conversationID, errs.Wrap("Session.persistUserOnly", errs.ErrPersistenceFailure, "no persistence configured")
	}
	userMsg := persistence.Message{
		Role:      persistence.RoleUser,
		Content:   query,
		Embedding: s.embed(ctx, query),
		ErrorKind: errorKind,
	}
	id, err := s.persistence.AppendTurn(ctx, ownerID, conversationID, userMsg, persistence.Message{}, persistence.Metadata{
		ConversationID: conversationID,
		Status:         "failed",
	})
	if err != nil {
		return conversationID, err
	}
	return id, nil
}

func (s *Session) embed(ctx context.Context, text string) []float32 {
	if s.embedder == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Warn("embedding failed, persisting without vector", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return vec
}

func agentNames(agents []registry.AgentType) []string {
	out := make([]string, len(agents))
	for i, a := range agents {
		out[i] = string(a)
	}
	return out
}

func durationMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

// thoughtForwarder implements orchestrator.StageObserver, forwarding every
// orchestrator thought into the session's event stream and keeping the
// session's State roughly in step with the orchestrator's own progress
// (§4.11: "On each transition the session emits a thought event").
type thoughtForwarder struct {
	emit      Emitter
	state     *State
	telemetry orchestrator.StageObserver
}

func (t *thoughtForwarder) OnThought(message, agentType string) {
	switch {
	case strings.HasPrefix(message, "retrieved context"):
		*t.state = StateRetrieving
	case message == "built execution plan":
		*t.state = StatePlanning
	case message == "executing stage":
		*t.state = StateExecuting
	case message == "synthesizing":
		*t.state = StateSynthesising
	}
	t.emit.Emit(Event{Kind: EventThought, Message: message, Agent: agentType})
	t.telemetry.OnThought(message, agentType)
}
