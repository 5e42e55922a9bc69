package persistence

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/varunalfred/Finmentor-sub000/errs"
)

// InMemory is an in-memory Persistence fake for tests, matching §10.4's "an
// in-memory Persistence live alongside the real adapters so unit tests never
// need real network calls" — grounded on the teacher's core.MockDiscovery /
// ai.mock providers idiom of a test double implementing the production
// interface directly rather than a separate recorded-fixture layer.
type InMemory struct {
	mu            sync.Mutex
	conversations map[string][]Message
	metadata      map[string][]Metadata
	FailNext      bool // forces the next AppendTurn to return ErrPersistenceFailure
}

// NewInMemory builds an empty in-memory Persistence.
func NewInMemory() *InMemory {
	return &InMemory{
		conversations: make(map[string][]Message),
		metadata:      make(map[string][]Metadata),
	}
}

func (m *InMemory) AppendTurn(ctx context.Context, ownerID, conversationID string, user, assistant Message, meta Metadata) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNext {
		m.FailNext = false
		return "", errs.Wrap("InMemory.AppendTurn", errs.ErrPersistenceFailure, "forced failure")
	}

	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	if user.Content != "" || user.Role != "" {
		m.conversations[conversationID] = append(m.conversations[conversationID], user)
	}
	if assistant.Content != "" || assistant.Role != "" {
		m.conversations[conversationID] = append(m.conversations[conversationID], assistant)
	}
	m.metadata[conversationID] = append(m.metadata[conversationID], meta)
	return conversationID, nil
}

// Messages returns every message appended to conversationID, in append
// order, for test assertions.
func (m *InMemory) Messages(conversationID string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.conversations[conversationID]))
	copy(out, m.conversations[conversationID])
	return out
}
