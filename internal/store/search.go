package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// CreateFile records an uploaded document against a message.
func (s *Store) CreateFile(ctx context.Context, messageID uuid.UUID, fileName, storagePath, fileType string, fileSize int64) (*MessageFile, error) {
	var f MessageFile
	err := s.pool.QueryRow(ctx,
		`INSERT INTO message_files (message_id, file_name, storage_path, file_type, file_size)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, message_id, file_name, storage_path, file_type, file_size, created_at`,
		messageID, fileName, storagePath, fileType, fileSize).
		Scan(&f.ID, &f.MessageID, &f.FileName, &f.StoragePath, &f.FileType, &f.FileSize, &f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating file record: %w", err)
	}
	s.logger.Debug("created file record", "id", f.ID, "message", messageID, "name", fileName)
	return &f, nil
}

// ListFiles returns a message's files in creation order.
func (s *Store) ListFiles(ctx context.Context, messageID uuid.UUID) ([]*MessageFile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, message_id, file_name, storage_path, file_type, file_size, created_at
		 FROM message_files
		 WHERE message_id = $1
		 ORDER BY created_at, id`,
		messageID)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	defer rows.Close()

	files := make([]*MessageFile, 0)
	for rows.Next() {
		var f MessageFile
		if err := rows.Scan(&f.ID, &f.MessageID, &f.FileName, &f.StoragePath, &f.FileType, &f.FileSize, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning file: %w", err)
		}
		files = append(files, &f)
	}
	return files, rows.Err()
}

// InsertChunk persists a document chunk with its embedding. The embedding is
// computed exactly once, before this call; chunks are never updated.
func (s *Store) InsertChunk(ctx context.Context, chunk *DocumentChunk) error {
	metadata, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling chunk metadata: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO document_chunks (file_id, content, embedding, metadata)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		chunk.FileID, chunk.Content, pgvector.NewVector(chunk.Embedding), metadata).
		Scan(&chunk.ID, &chunk.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting chunk %d of file %s: %w", chunk.Metadata.ChunkIndex, chunk.FileID, err)
	}
	return nil
}

// SearchChunks returns the chunks nearest to the query embedding under L2
// distance, ascending, ties broken by chunk id for determinism. Results
// beyond maxDistance are excluded and at most limit rows are returned.
// When conversationID is non-nil the search is restricted to chunks of files
// uploaded within that conversation. An empty result is not an error.
func (s *Store) SearchChunks(ctx context.Context, embedding []float32, conversationID *uuid.UUID, maxDistance float64, limit int) ([]ChunkMatch, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.file_id, c.content, c.metadata, c.created_at,
		        c.embedding <-> $1 AS distance
		 FROM document_chunks c
		 WHERE ($2::uuid IS NULL OR c.file_id IN (
		        SELECT f.id
		        FROM message_files f
		        JOIN messages m ON m.id = f.message_id
		        WHERE m.conversation_id = $2))
		   AND c.embedding <-> $1 <= $3
		 ORDER BY distance, c.id
		 LIMIT $4`,
		vec, conversationID, maxDistance, limit)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	matches := make([]ChunkMatch, 0)
	for rows.Next() {
		var (
			m        ChunkMatch
			metadata []byte
		)
		if err := rows.Scan(&m.Chunk.ID, &m.Chunk.FileID, &m.Chunk.Content, &metadata, &m.Chunk.CreatedAt, &m.Distance); err != nil {
			return nil, fmt.Errorf("scanning chunk match: %w", err)
		}
		if err := json.Unmarshal(metadata, &m.Chunk.Metadata); err != nil {
			s.logger.Warn("failed to parse chunk metadata", "chunk_id", m.Chunk.ID, "error", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
