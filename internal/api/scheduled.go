package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const noSubject = "(No Subject)"

// scheduledMessage renders a pending task in the inbox row shape so the
// frontend can list it beside received mail.
type scheduledMessage struct {
	ID          string `json:"id"`
	DraftID     string `json:"draft_id"`
	Subject     string `json:"subject"`
	From        string `json:"from"`
	To          string `json:"to"`
	Date        string `json:"date"`
	Snippet     string `json:"snippet"`
	IsUnread    bool   `json:"isUnread"`
	IsScheduled bool   `json:"isScheduled"`
}

// ListScheduled returns the owner's pending sends, earliest first.
func (h *Handler) ListScheduled(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, _, err := h.credentials(ctx)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	tasks, err := h.scheduler.ListScheduled(ctx, owner)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	rows := make([]scheduledMessage, 0, len(tasks))
	for _, t := range tasks {
		subject := t.Subject
		if subject == "" {
			subject = noSubject
		}
		rows = append(rows, scheduledMessage{
			ID:          t.ID,
			DraftID:     t.DraftReference,
			Subject:     subject,
			From:        owner,
			To:          t.Recipient,
			Date:        t.ScheduledAt.UTC().Format(time.RFC3339),
			Snippet:     "Scheduled for delivery...",
			IsScheduled: true,
		})
	}
	OK(w, map[string]interface{}{"messages": rows, "nextPageToken": nil})
}

// CancelScheduled cancels one of the owner's pending sends.
func (h *Handler) CancelScheduled(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, _, err := h.credentials(ctx)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := h.scheduler.Cancel(ctx, owner, chi.URLParam(r, "id")); err != nil {
		h.Fail(w, r, err)
		return
	}
	OK(w, nil)
}

// SchedulerStatus reports loop state and task counts.
func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.scheduler.Status(r.Context())
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	OK(w, map[string]interface{}{"status": st})
}

// SchedulerHealth reports loop liveness and the next due sends.
func (h *Handler) SchedulerHealth(w http.ResponseWriter, r *http.Request) {
	hs, err := h.scheduler.Health(r.Context())
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	OK(w, map[string]interface{}{"health": hs})
}
