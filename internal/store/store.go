package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatllm/internal/log"
)

// Store provides persistence for all conversation entities.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// New creates a Store over the given connection pool.
func New(pool *pgxpool.Pool, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

const conversationColumns = "id, owner_id, title, created_at, updated_at"

func scanConversation(row pgx.Row) (*Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.OwnerID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateConversation creates an empty conversation for the given owner.
func (s *Store) CreateConversation(ctx context.Context, ownerID uuid.UUID, title string) (*Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (owner_id, title)
		 VALUES ($1, $2)
		 RETURNING `+conversationColumns,
		ownerID, title)
	c, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	s.logger.Debug("created conversation", "id", c.ID, "owner", ownerID)
	return c, nil
}

// GetConversation retrieves a conversation scoped to its owner.
func (s *Store) GetConversation(ctx context.Context, ownerID, id uuid.UUID) (*Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+`
		 FROM conversations
		 WHERE id = $1 AND owner_id = $2`,
		id, ownerID)
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation %s: %w", id, err)
	}
	return c, nil
}

// ListConversations returns the owner's conversations, most recently
// updated first.
func (s *Store) ListConversations(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+conversationColumns+`
		 FROM conversations
		 WHERE owner_id = $1
		 ORDER BY updated_at DESC, id
		 LIMIT $2 OFFSET $3`,
		ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]*Conversation, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// RenameConversation sets a new title, scoped to the owner.
func (s *Store) RenameConversation(ctx context.Context, ownerID, id uuid.UUID, title string) (*Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE conversations
		 SET title = $3, updated_at = GREATEST(updated_at, now())
		 WHERE id = $1 AND owner_id = $2
		 RETURNING `+conversationColumns,
		id, ownerID, title)
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("renaming conversation %s: %w", id, err)
	}
	return c, nil
}

// DeleteConversation removes a conversation and, through cascading foreign
// keys, every message, version, file and chunk beneath it.
func (s *Store) DeleteConversation(ctx context.Context, ownerID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM conversations WHERE id = $1 AND owner_id = $2`,
		id, ownerID)
	if err != nil {
		return fmt.Errorf("deleting conversation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	s.logger.Debug("deleted conversation", "id", id)
	return nil
}

const messageColumns = "id, conversation_id, role, content, created_at"

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMessage appends a message to a conversation and bumps the
// conversation's updated_at in the same transaction.
func (s *Store) CreateMessage(ctx context.Context, conversationID uuid.UUID, role Role, content string) (*Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(ctx, tx, s.logger)

	row := tx.QueryRow(ctx,
		`INSERT INTO messages (conversation_id, role, content)
		 VALUES ($1, $2, $3)
		 RETURNING `+messageColumns,
		conversationID, role, content)
	m, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	if err := touchTx(ctx, tx, conversationID); err != nil {
		return nil, fmt.Errorf("touching conversation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing message: %w", err)
	}

	s.logger.Debug("created message", "id", m.ID, "conversation", conversationID, "role", role)
	return m, nil
}

// GetMessage retrieves a message, scoped to the owner of its conversation.
func (s *Store) GetMessage(ctx context.Context, ownerID, id uuid.UUID) (*Message, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT m.id, m.conversation_id, m.role, m.content, m.created_at
		 FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE m.id = $1 AND c.owner_id = $2`,
		id, ownerID)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting message %s: %w", id, err)
	}
	return m, nil
}

// ListMessages returns all messages of a conversation in creation order.
func (s *Store) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error) {
	return s.listMessages(ctx,
		`SELECT `+messageColumns+`
		 FROM messages
		 WHERE conversation_id = $1
		 ORDER BY created_at, id`,
		conversationID)
}

// ListMessagesThrough returns the messages of a conversation created at or
// before the cutoff, in creation order. Messages persisted concurrently with
// a later creation time never appear.
func (s *Store) ListMessagesThrough(ctx context.Context, conversationID uuid.UUID, cutoff time.Time) ([]*Message, error) {
	return s.listMessages(ctx,
		`SELECT `+messageColumns+`
		 FROM messages
		 WHERE conversation_id = $1 AND created_at <= $2
		 ORDER BY created_at, id`,
		conversationID, cutoff)
}

func (s *Store) listMessages(ctx context.Context, sql string, args ...any) ([]*Message, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MessageAfter returns the message immediately following the given one in
// creation order, or nil when it is the last message of its conversation.
func (s *Store) MessageAfter(ctx context.Context, m *Message) (*Message, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+`
		 FROM messages
		 WHERE conversation_id = $1 AND (created_at, id) > ($2, $3)
		 ORDER BY created_at, id
		 LIMIT 1`,
		m.ConversationID, m.CreatedAt, m.ID)
	next, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding message after %s: %w", m.ID, err)
	}
	return next, nil
}

// SnapshotAndUpdateMessage snapshots the message's current content into a
// new version, overwrites the content, and bumps the conversation's
// updated_at — atomically. Concurrent edits are serialized by the row lock;
// last write wins, but every overwritten content survives as a version.
func (s *Store) SnapshotAndUpdateMessage(ctx context.Context, id uuid.UUID, content string) (*Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(ctx, tx, s.logger)

	row := tx.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1 FOR UPDATE`, id)
	current, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("locking message %s: %w", id, err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO message_versions (message_id, content) VALUES ($1, $2)`,
		id, current.Content); err != nil {
		return nil, fmt.Errorf("snapshotting message %s: %w", id, err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE messages SET content = $2 WHERE id = $1`, id, content); err != nil {
		return nil, fmt.Errorf("updating message %s: %w", id, err)
	}

	if err := touchTx(ctx, tx, current.ConversationID); err != nil {
		return nil, fmt.Errorf("touching conversation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing edit: %w", err)
	}

	current.Content = content
	s.logger.Debug("edited message", "id", id)
	return current, nil
}

// DeleteMessage removes a single message (versions, files and chunks cascade)
// and bumps the conversation's updated_at.
func (s *Store) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(ctx, tx, s.logger)

	var conversationID uuid.UUID
	err = tx.QueryRow(ctx,
		`DELETE FROM messages WHERE id = $1 RETURNING conversation_id`, id).
		Scan(&conversationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("deleting message %s: %w", id, err)
	}

	if err := touchTx(ctx, tx, conversationID); err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}

	s.logger.Debug("deleted message", "id", id)
	return nil
}

// DeleteMessages clears every message of a conversation and bumps its
// updated_at.
func (s *Store) DeleteMessages(ctx context.Context, conversationID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(ctx, tx, s.logger)

	if _, err := tx.Exec(ctx,
		`DELETE FROM messages WHERE conversation_id = $1`, conversationID); err != nil {
		return fmt.Errorf("clearing conversation %s: %w", conversationID, err)
	}
	if err := touchTx(ctx, tx, conversationID); err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	return tx.Commit(ctx)
}

// ListVersions returns a message's edit snapshots, newest first, scoped to
// the owner of the enclosing conversation.
func (s *Store) ListVersions(ctx context.Context, ownerID, messageID uuid.UUID) ([]*MessageVersion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT v.id, v.message_id, v.content, v.created_at
		 FROM message_versions v
		 JOIN messages m ON m.id = v.message_id
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE v.message_id = $1 AND c.owner_id = $2
		 ORDER BY v.created_at DESC, v.id`,
		messageID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	defer rows.Close()

	versions := make([]*MessageVersion, 0)
	for rows.Next() {
		var v MessageVersion
		if err := rows.Scan(&v.ID, &v.MessageID, &v.Content, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		versions = append(versions, &v)
	}
	return versions, rows.Err()
}

// touchTx bumps updated_at within an open transaction.
func touchTx(ctx context.Context, tx pgx.Tx, conversationID uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`UPDATE conversations
		 SET updated_at = GREATEST(updated_at, now())
		 WHERE id = $1`,
		conversationID)
	return err
}

// rollback discards an uncommitted transaction; a failed rollback after a
// successful commit is expected and logged at debug only.
func rollback(ctx context.Context, tx pgx.Tx, logger log.Logger) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		logger.Debug("transaction rollback", "error", err)
	}
}
