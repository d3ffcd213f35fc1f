package store

import (
	"context"
	"testing"
	"time"

	"github.com/ashureev/mailpilot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})
	return s
}

func newTask(owner string, at time.Time) *domain.ScheduledSendTask {
	return &domain.ScheduledSendTask{
		DraftReference:      "D1",
		Owner:               owner,
		Recipient:           "bob@example.com",
		Subject:             "Hello",
		ScheduledAt:         at,
		CredentialsSnapshot: []byte("sealed"),
	}
}

func TestCreateAndGetTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	task := newTask("alice@example.com", at)
	require.NoError(t, s.CreateTask(ctx, task))
	require.NotEmpty(t, task.ID)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.TaskPending, got.Status)
	assert.True(t, got.ScheduledAt.Equal(at))
	assert.Equal(t, []byte("sealed"), got.CredentialsSnapshot)
	assert.Nil(t, got.SentAt)
	assert.Nil(t, got.FailedAt)

	missing, err := s.GetTask(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestClaimIsExclusive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := newTask("alice@example.com", time.Now())
	require.NoError(t, s.CreateTask(ctx, task))

	first, err := s.ClaimTask(ctx, task.ID)
	require.NoError(t, err)
	second, err := s.ClaimTask(ctx, task.ID)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)

	pending, err := s.ListTasksByStatus(ctx, domain.TaskPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTerminalStatusIsImmutable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := newTask("alice@example.com", time.Now())
	require.NoError(t, s.CreateTask(ctx, task))

	// Not claimed yet: terminal writes are rejected.
	assert.ErrorIs(t, s.MarkSent(ctx, task.ID, "M1", time.Now()), ErrStaleStatus)

	claimed, err := s.ClaimTask(ctx, task.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, s.MarkSent(ctx, task.ID, "M1", time.Now()))
	assert.ErrorIs(t, s.MarkFailed(ctx, task.ID, "late failure", time.Now()), ErrStaleStatus)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskSent, got.Status)
	assert.Equal(t, "M1", got.ProviderMessageID)
	assert.NotNil(t, got.SentAt)
	assert.Nil(t, got.FailedAt)
}

func TestCancelTaskRequiresOwnerAndPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := newTask("alice@example.com", time.Now().Add(time.Hour))
	require.NoError(t, s.CreateTask(ctx, task))

	ok, err := s.CancelTask(ctx, task.ID, "mallory@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CancelTask(ctx, task.ID, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	claimed, err := s.ClaimTask(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	counts, err := s.CountTasksByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.TaskCancelled])
}

func TestListTasksByOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateTask(ctx, newTask("alice@example.com", time.Now())))
	require.NoError(t, s.CreateTask(ctx, newTask("alice@example.com", time.Now())))
	require.NoError(t, s.CreateTask(ctx, newTask("bob@example.com", time.Now())))

	tasks, err := s.ListTasksByOwner(ctx, "alice@example.com", domain.TaskPending)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestMediatorSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	name := "Alice"
	sess := &MediatorSession{
		SessionID: "sess-1",
		State:     domain.SlotState{RecipientName: &name, CC: []string{"bob"}},
		Transcript: []domain.ChatMessage{
			{Role: domain.RoleSystem, Content: "prompt"},
			{Role: domain.RoleUser, Content: "email alice"},
		},
	}
	require.NoError(t, s.UpsertMediatorSession(ctx, sess))

	got, err := s.GetMediatorSession(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Alice", *got.State.RecipientName)
	assert.Equal(t, []string{"bob"}, got.State.CC)
	assert.Len(t, got.Transcript, 2)

	require.NoError(t, s.DeleteMediatorSession(ctx, "sess-1"))
	got, err = s.GetMediatorSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCleanupMediatorSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.now = func() time.Time { return time.Now().Add(-3 * time.Hour) }
	require.NoError(t, s.UpsertMediatorSession(ctx, &MediatorSession{SessionID: "old"}))
	s.now = time.Now
	require.NoError(t, s.UpsertMediatorSession(ctx, &MediatorSession{SessionID: "fresh"}))

	n, err := s.CleanupMediatorSessions(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRelationsKeepInsertionOrderAndIgnoreDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner := "alice@example.com"
	require.NoError(t, s.SaveRelation(ctx, domain.Relation{Owner: owner, Relation: "manager", Email: "boss@x.com"}))
	require.NoError(t, s.SaveRelation(ctx, domain.Relation{Owner: owner, Relation: "friend", Email: "pal@x.com"}))
	require.NoError(t, s.SaveRelation(ctx, domain.Relation{Owner: owner, Relation: "manager", Email: "boss@x.com"}))

	rels, err := s.ListRelations(ctx, owner)
	require.NoError(t, err)
	require.Len(t, rels, 2)
	assert.Equal(t, "manager", rels[0].Relation)
	assert.Equal(t, "pal@x.com", rels[1].Email)
}

func TestAuthSessionAndUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertAuthSession(ctx, &domain.AuthSession{SessionID: "s1", OAuthState: "st"}))
	got, err := s.GetAuthSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Authenticated())
	assert.Equal(t, "st", got.OAuthState)

	got.OwnerEmail = "alice@example.com"
	got.SealedCredentials = []byte("x")
	require.NoError(t, s.UpsertAuthSession(ctx, got))
	got, err = s.GetAuthSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.Authenticated())

	require.NoError(t, s.UpsertUser(ctx, &domain.User{Email: "alice@example.com", Name: "Alice"}))
	user, err := s.GetUser(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "Alice", user.Name)

	require.NoError(t, s.DeleteAuthSession(ctx, "s1"))
	got, err = s.GetAuthSession(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
