// Package scheduler persists deferred sends and executes them from a
// polling loop.
//
// The store is the only source of truth: every cycle re-reads pending tasks,
// and a task is claimed with a conditional pending -> processing update
// before its draft is sent, so concurrent pollers never send the same draft
// twice. A failed send is recorded on the task and never retried.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/mailpilot/internal/domain"
	"github.com/ashureev/mailpilot/internal/observability"
	"github.com/ashureev/mailpilot/internal/shared"
	"github.com/ashureev/mailpilot/internal/store"
)

// terminalWriteTimeout bounds the status write after a send, which must
// happen even when the task's own deadline has passed.
const terminalWriteTimeout = 5 * time.Second

// DraftSender sends an existing provider draft on behalf of its owner.
type DraftSender interface {
	SendDraft(ctx context.Context, creds *domain.Credentials, draftID string) (string, error)
}

// CredentialSealer seals credential snapshots at rest.
type CredentialSealer interface {
	Seal(creds *domain.Credentials) ([]byte, error)
	Open(sealed []byte) (*domain.Credentials, error)
}

// Config tunes the poll loop.
type Config struct {
	PollInterval time.Duration
	TaskTimeout  time.Duration
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval: 60 * time.Second,
		TaskTimeout:  30 * time.Second,
	}
}

// EnqueueRequest describes a draft to send later.
type EnqueueRequest struct {
	Owner       string
	DraftID     string
	Recipient   string
	Subject     string
	ScheduledAt time.Time
	Credentials *domain.Credentials
}

// Scheduler owns the deferred-send poll loop.
type Scheduler struct {
	store  store.TaskStore
	sender DraftSender
	sealer CredentialSealer
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu             sync.Mutex
	running        bool
	stopCh         chan struct{}
	done           chan struct{}
	cycles         int64
	lastCycleStart time.Time
	lastCycleEnd   time.Time
	lastCycleErr   string
}

// New creates a scheduler. Zero config fields fall back to DefaultConfig.
func New(tasks store.TaskStore, sender DraftSender, sealer CredentialSealer, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}
	return &Scheduler{
		store:  tasks,
		sender: sender,
		sealer: sealer,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Enqueue persists a pending task and returns its id. It does not wait for
// the send.
func (s *Scheduler) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	const op = "scheduler.enqueue"

	switch {
	case strings.TrimSpace(req.DraftID) == "":
		return "", shared.Validation(op, "draft id is required")
	case strings.TrimSpace(req.Recipient) == "":
		return "", shared.Validation(op, "recipient is required")
	case strings.TrimSpace(req.Owner) == "":
		return "", shared.Validation(op, "owner is required")
	case req.Credentials == nil:
		return "", shared.Validation(op, "credentials are required")
	case req.ScheduledAt.IsZero():
		return "", shared.Validation(op, "scheduled time is required")
	}

	sealed, err := s.sealer.Seal(req.Credentials)
	if err != nil {
		return "", err
	}

	task := &domain.ScheduledSendTask{
		DraftReference:      req.DraftID,
		Owner:               req.Owner,
		Recipient:           req.Recipient,
		Subject:             req.Subject,
		ScheduledAt:         req.ScheduledAt.UTC(),
		Status:              domain.TaskPending,
		CredentialsSnapshot: sealed,
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return "", shared.Store(op, err)
	}

	s.logger.Info("Scheduled send enqueued",
		"task_id", task.ID,
		"owner", task.Owner,
		"scheduled_at", task.ScheduledAt,
	)
	return task.ID, nil
}

// Start launches the poll loop. The first cycle runs immediately. Calling
// Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	stop := make(chan struct{})
	done := make(chan struct{})
	s.stopCh = stop
	s.done = done
	s.mu.Unlock()

	go s.loop(ctx, stop, done)
}

// Stop halts the poll loop and waits for an in-flight cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.running = false
	done := s.done
	s.mu.Unlock()

	<-done
}

func (s *Scheduler) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		if s.stopCh == stop {
			s.running = false
		}
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	s.logger.Info("Scheduler started", "interval", s.cfg.PollInterval, "task_timeout", s.cfg.TaskTimeout)

	s.runCycle(ctx)
	for {
		select {
		case <-ticker.C:
			s.runCycle(ctx)
		case <-stop:
			s.logger.Info("Scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Scheduler shutting down", "reason", ctx.Err())
			return
		}
	}
}

// runCycle runs one cycle and records its outcome. A panic ends the cycle,
// not the loop.
func (s *Scheduler) runCycle(ctx context.Context) {
	start := s.now()
	s.mu.Lock()
	s.lastCycleStart = start
	s.mu.Unlock()

	var cycleErr error
	defer func() {
		if r := recover(); r != nil {
			cycleErr = fmt.Errorf("panic: %v", r)
			s.logger.Error("Scheduler cycle panicked", "panic", r)
			observability.RecordSchedulerCycle("panic", 0)
		}

		s.mu.Lock()
		s.cycles++
		s.lastCycleEnd = s.now()
		s.lastCycleErr = ""
		if cycleErr != nil {
			s.lastCycleErr = cycleErr.Error()
		}
		s.mu.Unlock()
	}()

	cycleErr = s.RunOnce(ctx)
}

// RunOnce executes every due pending task once. Failures of individual tasks
// are recorded on the tasks; only a failed pending query is returned.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	pending, err := s.store.ListTasksByStatus(ctx, domain.TaskPending)
	if err != nil {
		s.logger.Error("Scheduler failed to list pending tasks", "error", err)
		observability.RecordSchedulerCycle("error", 0)
		return shared.Store("scheduler.cycle", err)
	}

	now := s.now().UTC()
	var due []*domain.ScheduledSendTask
	for _, t := range pending {
		if t.Due(now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledAt.Before(due[j].ScheduledAt) })

	if len(due) > 0 {
		s.logger.Info("Scheduler found due tasks", "due", len(due), "pending", len(pending))
	}
	for _, t := range due {
		if ctx.Err() != nil {
			break
		}
		s.process(ctx, t)
	}

	observability.RecordSchedulerCycle("success", len(pending)-len(due))
	return nil
}

// process claims and sends one task. Once claimed, a task runs to a terminal
// status under its own timeout; stopping the loop does not abort the send.
func (s *Scheduler) process(ctx context.Context, task *domain.ScheduledSendTask) {
	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.TaskTimeout)
	defer cancel()

	claimed, err := s.store.ClaimTask(taskCtx, task.ID)
	if err != nil {
		s.logger.Error("Scheduler failed to claim task", "task_id", task.ID, "error", err)
		return
	}
	if !claimed {
		s.logger.Debug("Scheduler lost claim, skipping", "task_id", task.ID)
		observability.RecordScheduledSend("lost_claim")
		return
	}

	creds, err := s.sealer.Open(task.CredentialsSnapshot)
	if err != nil {
		s.fail(ctx, task, fmt.Errorf("credentials unreadable: %w", err))
		return
	}

	messageID, err := s.sender.SendDraft(taskCtx, creds, task.DraftReference)
	if err != nil {
		s.fail(ctx, task, err)
		return
	}

	writeCtx, writeCancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer writeCancel()
	if err := s.store.MarkSent(writeCtx, task.ID, messageID, s.now().UTC()); err != nil {
		s.logTerminalWriteError(task, domain.TaskSent, err)
		return
	}

	observability.RecordScheduledSend("sent")
	s.logger.Info("Scheduled send delivered",
		"task_id", task.ID,
		"owner", task.Owner,
		"provider_message_id", messageID,
	)
}

func (s *Scheduler) fail(ctx context.Context, task *domain.ScheduledSendTask, cause error) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	observability.RecordScheduledSend("failed")
	s.logger.Warn("Scheduled send failed", "task_id", task.ID, "owner", task.Owner, "error", cause)
	if err := s.store.MarkFailed(writeCtx, task.ID, cause.Error(), s.now().UTC()); err != nil {
		s.logTerminalWriteError(task, domain.TaskFailed, err)
	}
}

func (s *Scheduler) logTerminalWriteError(task *domain.ScheduledSendTask, status domain.TaskStatus, err error) {
	if errors.Is(err, store.ErrStaleStatus) {
		s.logger.Warn("Scheduler terminal write lost, task changed concurrently",
			"task_id", task.ID, "status", status)
		return
	}
	s.logger.Error("Scheduler failed to record task outcome",
		"task_id", task.ID, "status", status, "error", err)
}

// ListScheduled returns the owner's pending tasks, earliest first.
func (s *Scheduler) ListScheduled(ctx context.Context, owner string) ([]*domain.ScheduledSendTask, error) {
	tasks, err := s.store.ListTasksByOwner(ctx, owner, domain.TaskPending)
	if err != nil {
		return nil, shared.Store("scheduler.list", err)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ScheduledAt.Before(tasks[j].ScheduledAt) })
	return tasks, nil
}

// Cancel moves the owner's pending task to cancelled.
func (s *Scheduler) Cancel(ctx context.Context, owner, id string) error {
	const op = "scheduler.cancel"

	if strings.TrimSpace(id) == "" {
		return shared.Validation(op, "task id is required")
	}
	ok, err := s.store.CancelTask(ctx, id, owner)
	if err != nil {
		return shared.Store(op, err)
	}
	if ok {
		s.logger.Info("Scheduled send cancelled", "task_id", id, "owner", owner)
		return nil
	}

	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return shared.Store(op, err)
	}
	if task == nil {
		return shared.E(shared.KindNotFound, op, "scheduled message not found", nil)
	}
	if task.Owner != owner {
		return shared.Validation(op, "scheduled message belongs to another account")
	}
	return shared.Validation(op, fmt.Sprintf("scheduled message is already %s", task.Status))
}
