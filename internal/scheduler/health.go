package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/ashureev/mailpilot/internal/domain"
	"github.com/ashureev/mailpilot/internal/shared"
)

// NextRun is an upcoming pending task.
type NextRun struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// Health is a liveness snapshot of the poll loop.
type Health struct {
	Alive          bool       `json:"alive"`
	PollInterval   string     `json:"poll_interval"`
	CyclesRun      int64      `json:"cycles_run"`
	LastCycleStart *time.Time `json:"last_cycle_start,omitempty"`
	LastCycleEnd   *time.Time `json:"last_cycle_end,omitempty"`
	LastCycleError string     `json:"last_cycle_error,omitempty"`
	QueueDepth     int        `json:"queue_depth"`
	Stuck          int        `json:"stuck_processing"`
	NextRuns       []NextRun  `json:"next_runs"`
	CurrentTimeUTC time.Time  `json:"current_time_utc"`
}

// Status summarises task counts per status.
type Status struct {
	Running      bool           `json:"running"`
	PollInterval string         `json:"poll_interval"`
	Counts       map[string]int `json:"counts"`
}

// Health reports loop liveness, queue depth and tasks left in processing by
// an interrupted cycle.
func (s *Scheduler) Health(ctx context.Context) (*Health, error) {
	const op = "scheduler.health"

	h := s.loopSnapshot()

	pending, err := s.store.ListTasksByStatus(ctx, domain.TaskPending)
	if err != nil {
		return h, shared.Store(op, err)
	}
	processing, err := s.store.ListTasksByStatus(ctx, domain.TaskProcessing)
	if err != nil {
		return h, shared.Store(op, err)
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].ScheduledAt.Before(pending[j].ScheduledAt) })
	h.QueueDepth = len(pending)
	h.Stuck = len(processing)
	h.NextRuns = make([]NextRun, 0, len(pending))
	for _, t := range pending {
		h.NextRuns = append(h.NextRuns, NextRun{ID: t.ID, Owner: t.Owner, ScheduledAt: t.ScheduledAt})
	}
	return h, nil
}

func (s *Scheduler) loopSnapshot() *Health {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := &Health{
		Alive:          s.running,
		PollInterval:   s.cfg.PollInterval.String(),
		CyclesRun:      s.cycles,
		LastCycleError: s.lastCycleErr,
		NextRuns:       []NextRun{},
		CurrentTimeUTC: s.now().UTC(),
	}
	if !s.lastCycleStart.IsZero() {
		t := s.lastCycleStart.UTC()
		h.LastCycleStart = &t
	}
	if !s.lastCycleEnd.IsZero() {
		t := s.lastCycleEnd.UTC()
		h.LastCycleEnd = &t
	}
	return h
}

// Status returns task counts keyed by status name.
func (s *Scheduler) Status(ctx context.Context) (*Status, error) {
	counts, err := s.store.CountTasksByStatus(ctx)
	if err != nil {
		return nil, shared.Store("scheduler.status", err)
	}

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	st := &Status{
		Running:      running,
		PollInterval: s.cfg.PollInterval.String(),
		Counts:       make(map[string]int, len(counts)),
	}
	for _, status := range []domain.TaskStatus{
		domain.TaskPending, domain.TaskProcessing, domain.TaskSent, domain.TaskFailed, domain.TaskCancelled,
	} {
		st.Counts[string(status)] = counts[status]
	}
	return st, nil
}
