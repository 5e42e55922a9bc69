// Package persistence implements §6's append_turn contract and the
// ConversationRecord data model: one pgx transaction per turn writing both
// the user and assistant message atomically, the way the teacher's
// pgChatStore.AppendMessages does.
//
// Grounded on
// _examples/intelligencedev-manifold/internal/persistence/databases/chat_store_postgres.go's
// AppendMessages (BeginTx/defer-Rollback/Commit shape, one INSERT per
// message inside the transaction, a companion UPDATE on the parent session
// row) — adapted from a chat-session table to the conversation_messages /
// conversations tables this domain needs, and from string session ids to
// this module's owner-scoped conversation ids.
package persistence

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/varunalfred/Finmentor-sub000/errs"
)

// Role is a ConversationRecord message's speaker.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the data model's ConversationRecord: "{id, role,
// content, created_at, embedding, confidence?, model?}".
type Message struct {
	ID         string
	Role       Role
	Content    string
	CreatedAt  time.Time
	Embedding  []float32
	Confidence *int
	Model      string
	ErrorKind  string // set only when persisted after a failed turn (§4.11)
}

// Metadata is the terminal metadata event's payload (§4.11), passed to
// AppendTurn with the two messages. InMemory records it per conversation;
// PostgresPersistence.AppendTurn does not write it to the database.
type Metadata struct {
	ConversationID  string
	Confidence      int
	DurationMS      int64
	AgentsConsulted []string
	SourcesUsed     []string
	Status          string
}

// Persistence is §6's append_turn contract.
type Persistence interface {
	// AppendTurn writes user and assistant atomically (single transaction)
	// and returns the conversation id the pair was appended to, creating a
	// new conversation when conversationID is empty (§3: "created on first
	// user turn, appended on each turn, never edited").
	AppendTurn(ctx context.Context, ownerID, conversationID string, user, assistant Message, meta Metadata) (string, error)
}

// PostgresPersistence is the production Persistence backed by pgx.
type PostgresPersistence struct {
	pool *pgxpool.Pool
}

// NewPostgresPersistence wires a pgx pool for append-only conversation
// storage.
func NewPostgresPersistence(pool *pgxpool.Pool) *PostgresPersistence {
	return &PostgresPersistence{pool: pool}
}

// AppendTurn implements §5's "transaction-scoped: one transaction per turn
// writing both messages atomically". On a persistence failure it returns a
// wrapped errs.ErrPersistenceFailure; the caller (the orchestrator/session)
// must still report the turn to the user with persisted=false, never fail
// the turn outright (§7).
func (p *PostgresPersistence) AppendTurn(ctx context.Context, ownerID, conversationID string, user, assistant Message, meta Metadata) (string, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", errs.Wrap("PostgresPersistence.AppendTurn", errs.ErrPersistenceFailure, err.Error())
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if conversationID == "" {
		conversationID = uuid.NewString()
		if _, err := tx.Exec(ctx, `
INSERT INTO conversations (id, owner_id, created_at, updated_at)
VALUES ($1, $2, NOW(), NOW())`, conversationID, ownerID); err != nil {
			return "", errs.Wrap("PostgresPersistence.AppendTurn", errs.ErrPersistenceFailure, err.Error())
		}
	}

	for _, m := range []Message{user, assistant} {
		if m.Content == "" && m.Role == "" {
			continue // assistant message omitted on a failed turn (§4.11)
		}
		id := m.ID
		if id == "" {
			id = uuid.NewString()
		}
		createdAt := m.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO conversation_messages (id, conversation_id, role, content, embedding, confidence, model, error_kind, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			id, conversationID, string(m.Role), m.Content, embeddingLiteral(m.Embedding), m.Confidence, nullIfEmpty(m.Model), nullIfEmpty(m.ErrorKind), createdAt,
		); err != nil {
			return "", errs.Wrap("PostgresPersistence.AppendTurn", errs.ErrPersistenceFailure, err.Error())
		}
	}

	if _, err := tx.Exec(ctx, `
UPDATE conversations SET updated_at = NOW() WHERE id = $1`, conversationID); err != nil {
		return "", errs.Wrap("PostgresPersistence.AppendTurn", errs.ErrPersistenceFailure, err.Error())
	}

	if err := tx.Commit(ctx); err != nil {
		return "", errs.Wrap("PostgresPersistence.AppendTurn", errs.ErrPersistenceFailure, err.Error())
	}

	return conversationID, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// embeddingLiteral renders a vector as pgvector's text input format
// ("[0.1,0.2,...]"), matching how pgvector-backed columns accept literals
// over the wire without a dedicated Go type.
func embeddingLiteral(v []float32) interface{} {
	if len(v) == 0 {
		return nil
	}
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
