// Package testutil provides test doubles and infrastructure helpers shared
// across package tests.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chatllm/internal/store"
)

// MemStore is an in-memory conversation store with the same visibility and
// ordering rules as the database-backed one. Not safe for concurrent use;
// tests drive it from one goroutine.
type MemStore struct {
	Conversations map[uuid.UUID]*store.Conversation
	Messages      []*store.Message
	Versions      map[uuid.UUID][]*store.MessageVersion
	Files         map[uuid.UUID][]*store.MessageFile

	now time.Time
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		Conversations: make(map[uuid.UUID]*store.Conversation),
		Versions:      make(map[uuid.UUID][]*store.MessageVersion),
		Files:         make(map[uuid.UUID][]*store.MessageFile),
		now:           time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *MemStore) tick() time.Time {
	f.now = f.now.Add(time.Second)
	return f.now
}

func (f *MemStore) CreateConversation(_ context.Context, ownerID uuid.UUID, title string) (*store.Conversation, error) {
	c := &store.Conversation{ID: uuid.New(), OwnerID: ownerID, Title: title, CreatedAt: f.tick(), UpdatedAt: f.now}
	f.Conversations[c.ID] = c
	return c, nil
}

func (f *MemStore) GetConversation(_ context.Context, ownerID, id uuid.UUID) (*store.Conversation, error) {
	c, ok := f.Conversations[id]
	if !ok || c.OwnerID != ownerID {
		return nil, fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
	}
	return c, nil
}

func (f *MemStore) ListConversations(_ context.Context, ownerID uuid.UUID, limit, offset int) ([]*store.Conversation, error) {
	out := make([]*store.Conversation, 0)
	for _, c := range f.Conversations {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *MemStore) RenameConversation(ctx context.Context, ownerID, id uuid.UUID, title string) (*store.Conversation, error) {
	c, err := f.GetConversation(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	c.Title = title
	c.UpdatedAt = f.tick()
	return c, nil
}

func (f *MemStore) DeleteConversation(ctx context.Context, ownerID, id uuid.UUID) error {
	if _, err := f.GetConversation(ctx, ownerID, id); err != nil {
		return err
	}
	delete(f.Conversations, id)
	return f.DeleteMessages(ctx, id)
}

func (f *MemStore) CreateMessage(_ context.Context, conversationID uuid.UUID, role store.Role, content string) (*store.Message, error) {
	m := &store.Message{ID: uuid.New(), ConversationID: conversationID, Role: role, Content: content, CreatedAt: f.tick()}
	f.Messages = append(f.Messages, m)
	if c, ok := f.Conversations[conversationID]; ok {
		c.UpdatedAt = f.now
	}
	return m, nil
}

func (f *MemStore) GetMessage(_ context.Context, ownerID, id uuid.UUID) (*store.Message, error) {
	for _, m := range f.Messages {
		if m.ID == id {
			if c, ok := f.Conversations[m.ConversationID]; ok && c.OwnerID == ownerID {
				return m, nil
			}
		}
	}
	return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
}

func (f *MemStore) ListMessages(_ context.Context, conversationID uuid.UUID) ([]*store.Message, error) {
	out := make([]*store.Message, 0)
	for _, m := range f.Messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *MemStore) ListMessagesThrough(ctx context.Context, conversationID uuid.UUID, cutoff time.Time) ([]*store.Message, error) {
	all, _ := f.ListMessages(ctx, conversationID)
	out := make([]*store.Message, 0, len(all))
	for _, m := range all {
		if !m.CreatedAt.After(cutoff) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *MemStore) MessageAfter(ctx context.Context, m *store.Message) (*store.Message, error) {
	all, _ := f.ListMessages(ctx, m.ConversationID)
	for i, other := range all {
		if other.ID == m.ID && i+1 < len(all) {
			return all[i+1], nil
		}
	}
	return nil, nil
}

func (f *MemStore) SnapshotAndUpdateMessage(_ context.Context, id uuid.UUID, content string) (*store.Message, error) {
	for _, m := range f.Messages {
		if m.ID == id {
			v := &store.MessageVersion{ID: uuid.New(), MessageID: id, Content: m.Content, CreatedAt: f.tick()}
			f.Versions[id] = append([]*store.MessageVersion{v}, f.Versions[id]...)
			m.Content = content
			return m, nil
		}
	}
	return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
}

func (f *MemStore) DeleteMessage(_ context.Context, id uuid.UUID) error {
	for i, m := range f.Messages {
		if m.ID == id {
			f.Messages = append(f.Messages[:i], f.Messages[i+1:]...)
			delete(f.Versions, id)
			delete(f.Files, id)
			return nil
		}
	}
	return fmt.Errorf("message %s: %w", id, store.ErrNotFound)
}

func (f *MemStore) DeleteMessages(ctx context.Context, conversationID uuid.UUID) error {
	kept := f.Messages[:0]
	for _, m := range f.Messages {
		if m.ConversationID != conversationID {
			kept = append(kept, m)
		} else {
			delete(f.Versions, m.ID)
			delete(f.Files, m.ID)
		}
	}
	f.Messages = kept
	return nil
}

func (f *MemStore) ListVersions(_ context.Context, _, messageID uuid.UUID) ([]*store.MessageVersion, error) {
	return f.Versions[messageID], nil
}

// CreateFile implements the file record surface used by upload handlers.
func (f *MemStore) CreateFile(_ context.Context, messageID uuid.UUID, fileName, storagePath, fileType string, fileSize int64) (*store.MessageFile, error) {
	rec := &store.MessageFile{
		ID:          uuid.New(),
		MessageID:   messageID,
		FileName:    fileName,
		StoragePath: storagePath,
		FileType:    fileType,
		FileSize:    fileSize,
		CreatedAt:   f.tick(),
	}
	f.Files[messageID] = append(f.Files[messageID], rec)
	return rec, nil
}

func (f *MemStore) ListFiles(_ context.Context, messageID uuid.UUID) ([]*store.MessageFile, error) {
	return f.Files[messageID], nil
}
