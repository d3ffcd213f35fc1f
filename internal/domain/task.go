// Package domain defines the core types shared across the service.
package domain

import "time"

// TaskStatus is the lifecycle state of a scheduled send.
type TaskStatus string

// Task statuses. Sent, failed and cancelled are terminal.
const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskSent       TaskStatus = "sent"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskSent, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// ScheduledSendTask is a deferred "send this draft" instruction.
type ScheduledSendTask struct {
	ID                  string
	DraftReference      string
	Owner               string
	Recipient           string
	Subject             string
	ScheduledAt         time.Time
	Status              TaskStatus
	CredentialsSnapshot []byte
	CreatedAt           time.Time
	SentAt              *time.Time
	ProviderMessageID   string
	FailedAt            *time.Time
	ErrorDetail         string
}

// Due reports whether the task should run at now.
func (t *ScheduledSendTask) Due(now time.Time) bool {
	return !t.ScheduledAt.After(now)
}
