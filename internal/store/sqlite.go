package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/mailpilot/internal/domain"
	"github.com/ashureev/mailpilot/internal/shared"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	writeRetries   = 3
	writeBaseDelay = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository. dbPath ":memory:" opens a
// private in-memory database on a single connection.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	inMemory := dbPath == ":memory:"

	dsn := dbPath
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		// WAL for concurrent readers while the scheduler writes.
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if inMemory {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.runMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) runMigrations(ctx context.Context) error {
	var tableCount int
	if err := s.db.GetContext(ctx, &tableCount,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'`); err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	current := 0
	if tableCount > 0 {
		if err := s.db.GetContext(ctx, &current, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration v%d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`, m.version, s.now().Unix()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
		slog.Debug("Applied migration", "version", m.version)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// --- scheduled sends ---

type taskRow struct {
	ID                string         `db:"id"`
	DraftReference    string         `db:"draft_reference"`
	Owner             string         `db:"owner"`
	Recipient         string         `db:"recipient"`
	Subject           string         `db:"subject"`
	ScheduledAt       int64          `db:"scheduled_at"`
	Status            string         `db:"status"`
	Credentials       []byte         `db:"credentials"`
	CreatedAt         int64          `db:"created_at"`
	SentAt            sql.NullInt64  `db:"sent_at"`
	ProviderMessageID sql.NullString `db:"provider_message_id"`
	FailedAt          sql.NullInt64  `db:"failed_at"`
	ErrorDetail       sql.NullString `db:"error_detail"`
	UpdatedAt         int64          `db:"updated_at"`
}

func (r *taskRow) toDomain() *domain.ScheduledSendTask {
	t := &domain.ScheduledSendTask{
		ID:                  r.ID,
		DraftReference:      r.DraftReference,
		Owner:               r.Owner,
		Recipient:           r.Recipient,
		Subject:             r.Subject,
		ScheduledAt:         time.Unix(r.ScheduledAt, 0).UTC(),
		Status:              domain.TaskStatus(r.Status),
		CredentialsSnapshot: r.Credentials,
		CreatedAt:           time.Unix(r.CreatedAt, 0).UTC(),
		ProviderMessageID:   r.ProviderMessageID.String,
		ErrorDetail:         r.ErrorDetail.String,
	}
	if r.SentAt.Valid {
		ts := time.Unix(r.SentAt.Int64, 0).UTC()
		t.SentAt = &ts
	}
	if r.FailedAt.Valid {
		ts := time.Unix(r.FailedAt.Int64, 0).UTC()
		t.FailedAt = &ts
	}
	return t
}

const taskColumns = `id, draft_reference, owner, recipient, subject, scheduled_at, status,
	credentials, created_at, sent_at, provider_message_id, failed_at, error_detail, updated_at`

// CreateTask stores a new pending task.
func (s *SQLiteStore) CreateTask(ctx context.Context, task *domain.ScheduledSendTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.Status == "" {
		task.Status = domain.TaskPending
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO scheduled_sends (
			id, draft_reference, owner, recipient, subject, scheduled_at, status,
			credentials, created_at, updated_at
		) VALUES (
			:id, :draft_reference, :owner, :recipient, :subject, :scheduled_at, :status,
			:credentials, :created_at, :updated_at
		)`, taskRow{
		ID:             task.ID,
		DraftReference: task.DraftReference,
		Owner:          task.Owner,
		Recipient:      task.Recipient,
		Subject:        task.Subject,
		ScheduledAt:    task.ScheduledAt.Unix(),
		Status:         string(task.Status),
		Credentials:    task.CredentialsSnapshot,
		CreatedAt:      task.CreatedAt.Unix(),
		UpdatedAt:      now.Unix(),
	})
	if err != nil {
		return fmt.Errorf("insert scheduled send: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*domain.ScheduledSendTask, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, `SELECT `+taskColumns+` FROM scheduled_sends WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scheduled send: %w", err)
	}
	return row.toDomain(), nil
}

// ListTasksByStatus returns all tasks with the given status.
func (s *SQLiteStore) ListTasksByStatus(ctx context.Context, status domain.TaskStatus) ([]*domain.ScheduledSendTask, error) {
	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT `+taskColumns+` FROM scheduled_sends WHERE status = ?`, string(status)); err != nil {
		return nil, fmt.Errorf("list scheduled sends by status: %w", err)
	}
	return toTasks(rows), nil
}

// ListTasksByOwner returns the owner's tasks with the given status.
func (s *SQLiteStore) ListTasksByOwner(ctx context.Context, owner string, status domain.TaskStatus) ([]*domain.ScheduledSendTask, error) {
	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT `+taskColumns+` FROM scheduled_sends WHERE owner = ? AND status = ?`, owner, string(status)); err != nil {
		return nil, fmt.Errorf("list scheduled sends by owner: %w", err)
	}
	return toTasks(rows), nil
}

func toTasks(rows []taskRow) []*domain.ScheduledSendTask {
	tasks := make([]*domain.ScheduledSendTask, 0, len(rows))
	for i := range rows {
		tasks = append(tasks, rows[i].toDomain())
	}
	return tasks
}

// ClaimTask atomically moves a pending task to processing.
func (s *SQLiteStore) ClaimTask(ctx context.Context, id string) (bool, error) {
	var claimed bool
	err := shared.RetryOnConflict(ctx, "claim_task", writeRetries, writeBaseDelay, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE scheduled_sends SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(domain.TaskProcessing), s.now().Unix(), id, string(domain.TaskPending))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		claimed = n == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("claim scheduled send %s: %w", id, err)
	}
	return claimed, nil
}

// MarkSent moves a processing task to sent.
func (s *SQLiteStore) MarkSent(ctx context.Context, id, providerMessageID string, at time.Time) error {
	return s.finishTask(ctx, "mark_sent", id,
		`UPDATE scheduled_sends SET status = ?, sent_at = ?, provider_message_id = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(domain.TaskSent), at.Unix(), providerMessageID, s.now().Unix(), id, string(domain.TaskProcessing))
}

// MarkFailed moves a processing task to failed.
func (s *SQLiteStore) MarkFailed(ctx context.Context, id, detail string, at time.Time) error {
	return s.finishTask(ctx, "mark_failed", id,
		`UPDATE scheduled_sends SET status = ?, failed_at = ?, error_detail = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(domain.TaskFailed), at.Unix(), detail, s.now().Unix(), id, string(domain.TaskProcessing))
}

func (s *SQLiteStore) finishTask(ctx context.Context, op, id, query string, args ...interface{}) error {
	var rows int64
	err := shared.RetryOnConflict(ctx, op, writeRetries, writeBaseDelay, func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		rows, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	if rows == 0 {
		slog.Warn("Terminal task update affected 0 rows", "op", op, "task_id", id)
		return fmt.Errorf("%s %s: %w", op, id, ErrStaleStatus)
	}
	return nil
}

// CancelTask moves a pending task owned by owner to cancelled.
func (s *SQLiteStore) CancelTask(ctx context.Context, id, owner string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_sends SET status = ?, updated_at = ? WHERE id = ? AND owner = ? AND status = ?`,
		string(domain.TaskCancelled), s.now().Unix(), id, owner, string(domain.TaskPending))
	if err != nil {
		return false, fmt.Errorf("cancel scheduled send: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return n == 1, nil
}

// CountTasksByStatus returns the number of tasks per status.
func (s *SQLiteStore) CountTasksByStatus(ctx context.Context) (map[domain.TaskStatus]int, error) {
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT status, COUNT(*) AS n FROM scheduled_sends GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count scheduled sends: %w", err)
	}
	counts := make(map[domain.TaskStatus]int, len(rows))
	for _, r := range rows {
		counts[domain.TaskStatus(r.Status)] = r.N
	}
	return counts, nil
}

// --- mediator sessions ---

// GetMediatorSession retrieves persisted mediator state.
func (s *SQLiteStore) GetMediatorSession(ctx context.Context, sessionID string) (*MediatorSession, error) {
	var row struct {
		SessionID      string `db:"session_id"`
		StateJSON      string `db:"state_json"`
		TranscriptJSON string `db:"transcript_json"`
		UpdatedAt      int64  `db:"updated_at"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT session_id, state_json, transcript_json, updated_at FROM mediator_sessions WHERE session_id = ?`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mediator session: %w", err)
	}

	sess := &MediatorSession{SessionID: row.SessionID, UpdatedAt: time.Unix(row.UpdatedAt, 0)}
	if err := json.Unmarshal([]byte(row.StateJSON), &sess.State); err != nil {
		return nil, fmt.Errorf("decode mediator state: %w", err)
	}
	if err := json.Unmarshal([]byte(row.TranscriptJSON), &sess.Transcript); err != nil {
		return nil, fmt.Errorf("decode mediator transcript: %w", err)
	}
	return sess, nil
}

// UpsertMediatorSession creates or replaces the session row.
func (s *SQLiteStore) UpsertMediatorSession(ctx context.Context, session *MediatorSession) error {
	stateJSON, err := json.Marshal(session.State)
	if err != nil {
		return fmt.Errorf("encode mediator state: %w", err)
	}
	transcriptJSON, err := json.Marshal(session.Transcript)
	if err != nil {
		return fmt.Errorf("encode mediator transcript: %w", err)
	}

	return shared.RetryOnConflict(ctx, "upsert_mediator_session", writeRetries, writeBaseDelay, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO mediator_sessions (session_id, state_json, transcript_json, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET
				state_json = excluded.state_json,
				transcript_json = excluded.transcript_json,
				updated_at = excluded.updated_at`,
			session.SessionID, string(stateJSON), string(transcriptJSON), s.now().Unix())
		if err != nil {
			return fmt.Errorf("upsert mediator session: %w", err)
		}
		return nil
	})
}

// DeleteMediatorSession removes the session row.
func (s *SQLiteStore) DeleteMediatorSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM mediator_sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete mediator session: %w", err)
	}
	return nil
}

// CleanupMediatorSessions removes sessions idle for longer than ttl.
func (s *SQLiteStore) CleanupMediatorSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := s.now().Add(-ttl).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM mediator_sessions WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup mediator sessions: %w", err)
	}
	return res.RowsAffected()
}

// --- relations ---

// SaveRelation records relation -> email for owner.
func (s *SQLiteStore) SaveRelation(ctx context.Context, rel domain.Relation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relations (owner, relation, email, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(owner, relation, email) DO NOTHING`,
		rel.Owner, rel.Relation, rel.Email, s.now().Unix())
	if err != nil {
		return fmt.Errorf("save relation: %w", err)
	}
	return nil
}

// ListRelations returns the owner's relations in insertion order.
func (s *SQLiteStore) ListRelations(ctx context.Context, owner string) ([]domain.Relation, error) {
	var rels []domain.Relation
	if err := s.db.SelectContext(ctx, &rels,
		`SELECT owner, relation, email FROM relations WHERE owner = ? ORDER BY id`,
		owner); err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	return rels, nil
}

// --- users and auth sessions ---

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	now := s.now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.LastSeenAt.IsZero() {
		user.LastSeenAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, name, picture, last_seen_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			name = excluded.name,
			picture = excluded.picture,
			last_seen_at = excluded.last_seen_at`,
		user.Email, user.Name, user.Picture, user.LastSeenAt.Unix(), user.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by email.
func (s *SQLiteStore) GetUser(ctx context.Context, email string) (*domain.User, error) {
	var row struct {
		Email      string `db:"email"`
		Name       string `db:"name"`
		Picture    string `db:"picture"`
		LastSeenAt int64  `db:"last_seen_at"`
		CreatedAt  int64  `db:"created_at"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT email, name, picture, last_seen_at, created_at FROM users WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &domain.User{
		Email:      row.Email,
		Name:       row.Name,
		Picture:    row.Picture,
		LastSeenAt: time.Unix(row.LastSeenAt, 0),
		CreatedAt:  time.Unix(row.CreatedAt, 0),
	}, nil
}

// GetAuthSession retrieves an auth session.
func (s *SQLiteStore) GetAuthSession(ctx context.Context, sessionID string) (*domain.AuthSession, error) {
	var row struct {
		SessionID   string `db:"session_id"`
		OwnerEmail  string `db:"owner_email"`
		OwnerName   string `db:"owner_name"`
		Picture     string `db:"picture"`
		Credentials []byte `db:"credentials"`
		OAuthState  string `db:"oauth_state"`
		CreatedAt   int64  `db:"created_at"`
		UpdatedAt   int64  `db:"updated_at"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT session_id, owner_email, owner_name, picture, credentials, oauth_state, created_at, updated_at
		FROM auth_sessions WHERE session_id = ?`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get auth session: %w", err)
	}
	return &domain.AuthSession{
		SessionID:         row.SessionID,
		OwnerEmail:        row.OwnerEmail,
		OwnerName:         row.OwnerName,
		Picture:           row.Picture,
		SealedCredentials: row.Credentials,
		OAuthState:        row.OAuthState,
		CreatedAt:         time.Unix(row.CreatedAt, 0),
		UpdatedAt:         time.Unix(row.UpdatedAt, 0),
	}, nil
}

// UpsertAuthSession creates or updates an auth session.
func (s *SQLiteStore) UpsertAuthSession(ctx context.Context, session *domain.AuthSession) error {
	now := s.now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_sessions (session_id, owner_email, owner_name, picture, credentials, oauth_state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			owner_email = excluded.owner_email,
			owner_name = excluded.owner_name,
			picture = excluded.picture,
			credentials = excluded.credentials,
			oauth_state = excluded.oauth_state,
			updated_at = excluded.updated_at`,
		session.SessionID, session.OwnerEmail, session.OwnerName, session.Picture,
		session.SealedCredentials, session.OAuthState, session.CreatedAt.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("upsert auth session: %w", err)
	}
	return nil
}

// DeleteAuthSession removes an auth session.
func (s *SQLiteStore) DeleteAuthSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete auth session: %w", err)
	}
	return nil
}
