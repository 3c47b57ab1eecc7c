// Package conversation implements the lifecycle rules for conversations and
// their messages: append, edit with version snapshots, paired deletion,
// forking and history windows.
//
// Persistence is behind the Store interface so the rules can be exercised
// without a database.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chatllm/internal/log"
	"chatllm/internal/store"
)

// ErrEditForbidden is returned when an edit targets a message whose role
// does not permit user edits.
var ErrEditForbidden = errors.New("only user messages can be edited")

// DefaultTitle names conversations created without an explicit title.
const DefaultTitle = "New Conversation"

// Store is the persistence surface the service needs.
type Store interface {
	CreateConversation(ctx context.Context, ownerID uuid.UUID, title string) (*store.Conversation, error)
	GetConversation(ctx context.Context, ownerID, id uuid.UUID) (*store.Conversation, error)
	ListConversations(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*store.Conversation, error)
	RenameConversation(ctx context.Context, ownerID, id uuid.UUID, title string) (*store.Conversation, error)
	DeleteConversation(ctx context.Context, ownerID, id uuid.UUID) error

	CreateMessage(ctx context.Context, conversationID uuid.UUID, role store.Role, content string) (*store.Message, error)
	GetMessage(ctx context.Context, ownerID, id uuid.UUID) (*store.Message, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*store.Message, error)
	ListMessagesThrough(ctx context.Context, conversationID uuid.UUID, cutoff time.Time) ([]*store.Message, error)
	MessageAfter(ctx context.Context, m *store.Message) (*store.Message, error)
	SnapshotAndUpdateMessage(ctx context.Context, id uuid.UUID, content string) (*store.Message, error)
	DeleteMessage(ctx context.Context, id uuid.UUID) error
	DeleteMessages(ctx context.Context, conversationID uuid.UUID) error
	ListVersions(ctx context.Context, ownerID, messageID uuid.UUID) ([]*store.MessageVersion, error)
}

// Service enforces the conversation rules on top of a Store.
type Service struct {
	store  Store
	logger log.Logger
}

// NewService creates a Service.
func NewService(st Store, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Service{store: st, logger: logger}
}

// Create starts an empty conversation. An empty title falls back to
// DefaultTitle.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, title string) (*store.Conversation, error) {
	if title == "" {
		title = DefaultTitle
	}
	return s.store.CreateConversation(ctx, ownerID, title)
}

// Get returns a conversation the owner can see.
func (s *Service) Get(ctx context.Context, ownerID, id uuid.UUID) (*store.Conversation, error) {
	return s.store.GetConversation(ctx, ownerID, id)
}

// List returns the owner's conversations, most recently updated first.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*store.Conversation, error) {
	return s.store.ListConversations(ctx, ownerID, limit, offset)
}

// Rename changes a conversation's title.
func (s *Service) Rename(ctx context.Context, ownerID, id uuid.UUID, title string) (*store.Conversation, error) {
	if title == "" {
		return nil, errors.New("title must not be empty")
	}
	return s.store.RenameConversation(ctx, ownerID, id, title)
}

// Delete removes a conversation with everything beneath it.
func (s *Service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	return s.store.DeleteConversation(ctx, ownerID, id)
}

// ClearHistory deletes every message of a conversation but keeps the
// conversation itself.
func (s *Service) ClearHistory(ctx context.Context, ownerID, id uuid.UUID) error {
	if _, err := s.store.GetConversation(ctx, ownerID, id); err != nil {
		return err
	}
	return s.store.DeleteMessages(ctx, id)
}

// Append adds a message to a conversation the owner can see. The role string
// is untrusted and validated here.
func (s *Service) Append(ctx context.Context, ownerID, conversationID uuid.UUID, role, content string) (*store.Message, error) {
	r, err := store.ParseRole(role)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetConversation(ctx, ownerID, conversationID); err != nil {
		return nil, err
	}
	return s.store.CreateMessage(ctx, conversationID, r, content)
}

// Message returns a single message the owner can see.
func (s *Service) Message(ctx context.Context, ownerID, id uuid.UUID) (*store.Message, error) {
	return s.store.GetMessage(ctx, ownerID, id)
}

// History returns a conversation's messages in creation order.
func (s *Service) History(ctx context.Context, ownerID, conversationID uuid.UUID) ([]*store.Message, error) {
	if _, err := s.store.GetConversation(ctx, ownerID, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID)
}

// HistoryBefore returns the messages of m's conversation that precede m in
// creation order, excluding m itself. This is the prompt window used when
// regenerating m.
func (s *Service) HistoryBefore(ctx context.Context, m *store.Message) ([]*store.Message, error) {
	msgs, err := s.store.ListMessagesThrough(ctx, m.ConversationID, m.CreatedAt)
	if err != nil {
		return nil, err
	}
	before := make([]*store.Message, 0, len(msgs))
	for _, other := range msgs {
		if other.ID == m.ID {
			break
		}
		before = append(before, other)
	}
	return before, nil
}

// Edit overwrites a user message's content, snapshotting the prior content
// as a version first. Only user messages may be edited this way; assistant
// turns change only through regeneration.
func (s *Service) Edit(ctx context.Context, ownerID, messageID uuid.UUID, content string) (*store.Message, error) {
	m, err := s.store.GetMessage(ctx, ownerID, messageID)
	if err != nil {
		return nil, err
	}
	if m.Role != store.RoleUser {
		return nil, fmt.Errorf("message %s has role %s: %w", messageID, m.Role, ErrEditForbidden)
	}
	return s.store.SnapshotAndUpdateMessage(ctx, messageID, content)
}

// Overwrite replaces a message's content regardless of role, still
// snapshotting the prior content. Used by regeneration so a replaced
// assistant answer is never lost.
func (s *Service) Overwrite(ctx context.Context, ownerID, messageID uuid.UUID, content string) (*store.Message, error) {
	if _, err := s.store.GetMessage(ctx, ownerID, messageID); err != nil {
		return nil, err
	}
	return s.store.SnapshotAndUpdateMessage(ctx, messageID, content)
}

// DeleteMessage removes a message. Deleting a user message also removes the
// assistant reply immediately following it, so a conversation never keeps an
// answer whose question is gone.
func (s *Service) DeleteMessage(ctx context.Context, ownerID, messageID uuid.UUID) error {
	m, err := s.store.GetMessage(ctx, ownerID, messageID)
	if err != nil {
		return err
	}

	if m.Role == store.RoleUser {
		next, err := s.store.MessageAfter(ctx, m)
		if err != nil {
			return err
		}
		if next != nil && next.Role == store.RoleAssistant {
			if err := s.store.DeleteMessage(ctx, next.ID); err != nil {
				return fmt.Errorf("deleting paired reply: %w", err)
			}
		}
	}
	return s.store.DeleteMessage(ctx, messageID)
}

// Versions returns a message's edit snapshots, newest first.
func (s *Service) Versions(ctx context.Context, ownerID, messageID uuid.UUID) ([]*store.MessageVersion, error) {
	if _, err := s.store.GetMessage(ctx, ownerID, messageID); err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, ownerID, messageID)
}

// Fork copies a conversation into a new one titled "Fork of <title>". Only
// role and content carry over; the copies get fresh identities and the fork
// shares no edit history or files with the source. Later changes to either
// side never affect the other.
func (s *Service) Fork(ctx context.Context, ownerID, conversationID uuid.UUID) (*store.Conversation, error) {
	src, err := s.store.GetConversation(ctx, ownerID, conversationID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	fork, err := s.store.CreateConversation(ctx, ownerID, "Fork of "+src.Title)
	if err != nil {
		return nil, fmt.Errorf("creating fork: %w", err)
	}
	for _, m := range msgs {
		if _, err := s.store.CreateMessage(ctx, fork.ID, m.Role, m.Content); err != nil {
			return nil, fmt.Errorf("copying message into fork: %w", err)
		}
	}

	s.logger.Info("forked conversation", "source", conversationID, "fork", fork.ID, "messages", len(msgs))
	return fork, nil
}
