// Package store persists conversations, messages, edit versions, attached
// files and document chunks in PostgreSQL, and answers nearest-neighbour
// queries over chunk embeddings via pgvector.
//
// All reads that cross a trust boundary are owner-scoped: a lookup for a
// conversation or message another user owns reports ErrNotFound.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an entity does not exist or is not visible
// to the requesting owner.
var ErrNotFound = errors.New("not found")

// Role identifies the author of a message. It is a closed enumeration;
// values arriving from the outside must pass through ParseRole.
type Role string

// Valid message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ParseRole validates an untrusted role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAssistant, RoleSystem:
		return Role(s), nil
	default:
		return "", fmt.Errorf("invalid role %q (must be user, assistant or system)", s)
	}
}

// Conversation is an ordered sequence of messages owned by a single user.
// UpdatedAt moves forward whenever any message beneath it is created,
// edited or deleted.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single turn in a conversation. Its identity is immutable;
// content changes only through edits, which snapshot the prior content
// into a MessageVersion first.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessageVersion is an immutable snapshot of a message's content taken at
// the moment of an edit. Append-only.
type MessageVersion struct {
	ID        uuid.UUID `json:"id"`
	MessageID uuid.UUID `json:"message_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageFile records a document uploaded against a message. The raw bytes
// live in the file storage collaborator under StoragePath; the chunked,
// embedded content lives in document_chunks.
type MessageFile struct {
	ID          uuid.UUID `json:"id"`
	MessageID   uuid.UUID `json:"message_id"`
	FileName    string    `json:"file_name"`
	StoragePath string    `json:"storage_path"`
	FileType    string    `json:"file_type"`
	FileSize    int64     `json:"file_size"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChunkMetadata is the positional metadata stored alongside each chunk.
type ChunkMetadata struct {
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_index"`
	Position   int    `json:"position"`
}

// DocumentChunk is a bounded segment of an uploaded document with its
// embedding. Immutable once created; the embedding is computed exactly once
// at ingestion.
type DocumentChunk struct {
	ID        uuid.UUID     `json:"id"`
	FileID    uuid.UUID     `json:"file_id"`
	Content   string        `json:"content"`
	Embedding []float32     `json:"-"`
	Metadata  ChunkMetadata `json:"metadata"`
	CreatedAt time.Time     `json:"created_at"`
}

// ChunkMatch is a similarity search hit: a chunk and its L2 distance from
// the query embedding.
type ChunkMatch struct {
	Chunk    DocumentChunk `json:"chunk"`
	Distance float64       `json:"distance"`
}
