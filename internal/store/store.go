// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/mailpilot/internal/domain"
)

// ErrStaleStatus is returned by conditional task updates when the task is no
// longer in the expected status.
var ErrStaleStatus = errors.New("task status changed concurrently")

// TaskStore persists scheduled send tasks.
type TaskStore interface {
	// CreateTask stores a new task. The store assigns ID and CreatedAt when empty.
	CreateTask(ctx context.Context, task *domain.ScheduledSendTask) error

	// GetTask retrieves a task by ID. Returns nil, nil when not found.
	GetTask(ctx context.Context, id string) (*domain.ScheduledSendTask, error)

	// ListTasksByStatus returns all tasks with the given status.
	ListTasksByStatus(ctx context.Context, status domain.TaskStatus) ([]*domain.ScheduledSendTask, error)

	// ListTasksByOwner returns the owner's tasks with the given status.
	ListTasksByOwner(ctx context.Context, owner string, status domain.TaskStatus) ([]*domain.ScheduledSendTask, error)

	// ClaimTask atomically moves a pending task to processing.
	// Returns false, nil if another claimant won or the task is no longer pending.
	ClaimTask(ctx context.Context, id string) (bool, error)

	// MarkSent moves a processing task to sent.
	MarkSent(ctx context.Context, id, providerMessageID string, at time.Time) error

	// MarkFailed moves a processing task to failed.
	MarkFailed(ctx context.Context, id, detail string, at time.Time) error

	// CancelTask moves a pending task owned by owner to cancelled.
	// Returns false, nil if the task is not pending or not owned by owner.
	CancelTask(ctx context.Context, id, owner string) (bool, error)

	// CountTasksByStatus returns the number of tasks per status.
	CountTasksByStatus(ctx context.Context) (map[domain.TaskStatus]int, error)
}

// MediatorSession is the persisted form of a mediator conversation.
type MediatorSession struct {
	SessionID  string
	State      domain.SlotState
	Transcript []domain.ChatMessage
	UpdatedAt  time.Time
}

// SessionStore persists mediator state for recovery across restarts.
type SessionStore interface {
	// GetMediatorSession returns nil, nil for unknown sessions.
	GetMediatorSession(ctx context.Context, sessionID string) (*MediatorSession, error)

	// UpsertMediatorSession creates or replaces the session row.
	UpsertMediatorSession(ctx context.Context, session *MediatorSession) error

	// DeleteMediatorSession removes the session row.
	DeleteMediatorSession(ctx context.Context, sessionID string) error

	// CleanupMediatorSessions removes sessions idle for longer than ttl.
	CleanupMediatorSessions(ctx context.Context, ttl time.Duration) (int64, error)
}

// RelationStore persists the owner's relation -> email history.
type RelationStore interface {
	// SaveRelation records relation -> email for owner. Duplicates are ignored.
	SaveRelation(ctx context.Context, rel domain.Relation) error

	// ListRelations returns the owner's relations in insertion order.
	ListRelations(ctx context.Context, owner string) ([]domain.Relation, error)
}

// AuthStore persists users and browser auth sessions.
type AuthStore interface {
	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// GetUser returns nil, nil when the user is unknown.
	GetUser(ctx context.Context, email string) (*domain.User, error)

	// GetAuthSession returns nil, nil when the session is unknown.
	GetAuthSession(ctx context.Context, sessionID string) (*domain.AuthSession, error)

	// UpsertAuthSession creates or updates an auth session.
	UpsertAuthSession(ctx context.Context, session *domain.AuthSession) error

	// DeleteAuthSession removes an auth session.
	DeleteAuthSession(ctx context.Context, sessionID string) error
}

// Repository is the full persistence surface used by the server.
type Repository interface {
	TaskStore
	SessionStore
	RelationStore
	AuthStore

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
