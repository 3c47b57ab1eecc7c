package conversation

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatllm/internal/store"
	"chatllm/internal/testutil"
)

func setup(t *testing.T) (*Service, uuid.UUID, *store.Conversation) {
	t.Helper()
	svc := NewService(testutil.NewMemStore(), nil)
	owner := uuid.New()
	conv, err := svc.Create(context.Background(), owner, "Project planning")
	require.NoError(t, err)
	return svc, owner, conv
}

func TestCreate_DefaultTitle(t *testing.T) {
	svc := NewService(testutil.NewMemStore(), nil)
	conv, err := svc.Create(context.Background(), uuid.New(), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, conv.Title)
}

func TestAppend(t *testing.T) {
	svc, owner, conv := setup(t)
	ctx := context.Background()

	m, err := svc.Append(ctx, owner, conv.ID, "user", "hello")
	require.NoError(t, err)
	assert.Equal(t, store.RoleUser, m.Role)

	t.Run("invalid role", func(t *testing.T) {
		_, err := svc.Append(ctx, owner, conv.ID, "wizard", "hello")
		assert.Error(t, err)
	})

	t.Run("foreign conversation is invisible", func(t *testing.T) {
		_, err := svc.Append(ctx, uuid.New(), conv.ID, "user", "hello")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestEdit(t *testing.T) {
	svc, owner, conv := setup(t)
	ctx := context.Background()

	m, err := svc.Append(ctx, owner, conv.ID, "user", "v1")
	require.NoError(t, err)

	t.Run("each edit snapshots the prior content", func(t *testing.T) {
		for i := 2; i <= 4; i++ {
			_, err := svc.Edit(ctx, owner, m.ID, fmt.Sprintf("v%d", i))
			require.NoError(t, err)
		}

		got, err := svc.Message(ctx, owner, m.ID)
		require.NoError(t, err)
		assert.Equal(t, "v4", got.Content)

		versions, err := svc.Versions(ctx, owner, m.ID)
		require.NoError(t, err)
		require.Len(t, versions, 3)
		// Newest snapshot first.
		assert.Equal(t, "v3", versions[0].Content)
		assert.Equal(t, "v2", versions[1].Content)
		assert.Equal(t, "v1", versions[2].Content)
	})

	t.Run("assistant messages are not editable", func(t *testing.T) {
		reply, err := svc.Append(ctx, owner, conv.ID, "assistant", "answer")
		require.NoError(t, err)

		_, err = svc.Edit(ctx, owner, reply.ID, "tampered")
		assert.ErrorIs(t, err, ErrEditForbidden)
	})
}

func TestOverwrite_SnapshotsAssistantContent(t *testing.T) {
	svc, owner, conv := setup(t)
	ctx := context.Background()

	reply, err := svc.Append(ctx, owner, conv.ID, "assistant", "first answer")
	require.NoError(t, err)

	_, err = svc.Overwrite(ctx, owner, reply.ID, "regenerated answer")
	require.NoError(t, err)

	versions, err := svc.Versions(ctx, owner, reply.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "first answer", versions[0].Content)
}

func TestDeleteMessage_PairedTurn(t *testing.T) {
	ctx := context.Background()

	t.Run("user message takes its reply with it", func(t *testing.T) {
		svc, owner, conv := setup(t)
		q, _ := svc.Append(ctx, owner, conv.ID, "user", "question")
		svc.Append(ctx, owner, conv.ID, "assistant", "answer")
		later, _ := svc.Append(ctx, owner, conv.ID, "user", "unrelated")

		require.NoError(t, svc.DeleteMessage(ctx, owner, q.ID))

		rest, err := svc.History(ctx, owner, conv.ID)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, later.ID, rest[0].ID)
	})

	t.Run("user message followed by another user message deletes alone", func(t *testing.T) {
		svc, owner, conv := setup(t)
		first, _ := svc.Append(ctx, owner, conv.ID, "user", "first")
		second, _ := svc.Append(ctx, owner, conv.ID, "user", "second")

		require.NoError(t, svc.DeleteMessage(ctx, owner, first.ID))

		rest, _ := svc.History(ctx, owner, conv.ID)
		require.Len(t, rest, 1)
		assert.Equal(t, second.ID, rest[0].ID)
	})

	t.Run("assistant message deletes alone", func(t *testing.T) {
		svc, owner, conv := setup(t)
		q, _ := svc.Append(ctx, owner, conv.ID, "user", "question")
		a, _ := svc.Append(ctx, owner, conv.ID, "assistant", "answer")

		require.NoError(t, svc.DeleteMessage(ctx, owner, a.ID))

		rest, _ := svc.History(ctx, owner, conv.ID)
		require.Len(t, rest, 1)
		assert.Equal(t, q.ID, rest[0].ID)
	})

	t.Run("last user message has no pair", func(t *testing.T) {
		svc, owner, conv := setup(t)
		q, _ := svc.Append(ctx, owner, conv.ID, "user", "question")

		require.NoError(t, svc.DeleteMessage(ctx, owner, q.ID))

		rest, _ := svc.History(ctx, owner, conv.ID)
		assert.Empty(t, rest)
	})
}

func TestFork(t *testing.T) {
	svc, owner, conv := setup(t)
	ctx := context.Background()

	q, _ := svc.Append(ctx, owner, conv.ID, "user", "question")
	svc.Append(ctx, owner, conv.ID, "assistant", "answer")
	_, err := svc.Edit(ctx, owner, q.ID, "edited question")
	require.NoError(t, err)

	fork, err := svc.Fork(ctx, owner, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fork of Project planning", fork.Title)
	assert.NotEqual(t, conv.ID, fork.ID)

	copies, err := svc.History(ctx, owner, fork.ID)
	require.NoError(t, err)
	require.Len(t, copies, 2)
	assert.Equal(t, "edited question", copies[0].Content)
	assert.Equal(t, store.RoleUser, copies[0].Role)
	assert.Equal(t, "answer", copies[1].Content)

	t.Run("copies carry no edit history", func(t *testing.T) {
		versions, err := svc.Versions(ctx, owner, copies[0].ID)
		require.NoError(t, err)
		assert.Empty(t, versions)
	})

	t.Run("sides evolve independently", func(t *testing.T) {
		_, err := svc.Edit(ctx, owner, copies[0].ID, "diverged")
		require.NoError(t, err)

		original, err := svc.Message(ctx, owner, q.ID)
		require.NoError(t, err)
		assert.Equal(t, "edited question", original.Content)
	})
}

func TestHistoryBefore(t *testing.T) {
	svc, owner, conv := setup(t)
	ctx := context.Background()

	q1, _ := svc.Append(ctx, owner, conv.ID, "user", "q1")
	a1, _ := svc.Append(ctx, owner, conv.ID, "assistant", "a1")
	svc.Append(ctx, owner, conv.ID, "user", "q2")

	before, err := svc.HistoryBefore(ctx, a1)
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.Equal(t, q1.ID, before[0].ID)
}

func TestClearHistory(t *testing.T) {
	svc, owner, conv := setup(t)
	ctx := context.Background()

	svc.Append(ctx, owner, conv.ID, "user", "q")
	svc.Append(ctx, owner, conv.ID, "assistant", "a")

	require.NoError(t, svc.ClearHistory(ctx, owner, conv.ID))

	rest, err := svc.History(ctx, owner, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, rest)

	// The conversation itself survives.
	_, err = svc.Get(ctx, owner, conv.ID)
	assert.NoError(t, err)

	t.Run("foreign owner cannot clear", func(t *testing.T) {
		err := svc.ClearHistory(ctx, uuid.New(), conv.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestVersions_UnknownMessage(t *testing.T) {
	svc, owner, _ := setup(t)
	_, err := svc.Versions(context.Background(), owner, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
