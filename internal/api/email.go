package api

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/mailpilot/internal/domain"
	"github.com/ashureev/mailpilot/internal/identity"
	"github.com/ashureev/mailpilot/internal/scheduler"
	"github.com/ashureev/mailpilot/internal/shared"
)

const maxUploadSize = 32 << 20

type summarizeRequest struct {
	Text string `json:"text"`
}

// Generate drafts an email from the conversation's slot state. A revision
// instruction in the state turns the call into a rewrite of the last draft.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := identity.ConversationKey(ctx)
	state := h.mediator.CurrentState(ctx, key)
	if state.Description == nil || strings.TrimSpace(*state.Description) == "" {
		h.Fail(w, r, shared.Validation("api.generate", "Description not ready"))
		return
	}

	description := *state.Description
	if state.RecipientName != nil {
		description += "\nRecipient name: " + *state.RecipientName
	}
	revision := ""
	if state.MailRevision != nil {
		revision = *state.MailRevision
	}

	draft, err := h.generator.Generate(ctx, key, description, revision)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	OK(w, map[string]interface{}{"subject": draft.Subject, "body": draft.Body})
}

// Summarize condenses the posted text.
func (h *Handler) Summarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.Fail(w, r, err)
		return
	}
	summary, err := h.summarizer.Summarize(r.Context(), req.Text)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	OK(w, map[string]interface{}{"summary": summary})
}

// SendEmail sends the posted message now, or drafts it and schedules the
// send when scheduledTime is set.
func (h *Handler) SendEmail(w http.ResponseWriter, r *http.Request) {
	const op = "api.send"

	ctx := r.Context()
	owner, creds, err := h.credentials(ctx)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	provider, err := h.mail()
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		h.Fail(w, r, shared.E(shared.KindValidation, op, "invalid form data", err))
		return
	}

	msg := &domain.OutgoingMessage{
		To:        strings.TrimSpace(r.FormValue("to")),
		Subject:   r.FormValue("subject"),
		HTMLBody:  r.FormValue("body"),
		ThreadID:  r.FormValue("threadId"),
		InReplyTo: r.FormValue("messageId"),
		CC:        addressList(r.FormValue("cc")),
		BCC:       addressList(r.FormValue("bcc")),
	}
	if msg.To == "" {
		h.Fail(w, r, shared.Validation(op, "recipient is required"))
		return
	}
	msg.Attachments, err = readAttachments(r.MultipartForm)
	if err != nil {
		h.Fail(w, r, shared.E(shared.KindValidation, op, "unreadable attachment", err))
		return
	}

	// Only the relation is taken from slot state. Copy recipients come from
	// the submitted form, since slot state holds them as the user spoke them.
	state := h.mediator.CurrentState(ctx, identity.ConversationKey(ctx))

	if raw := strings.TrimSpace(r.FormValue("scheduledTime")); raw != "" {
		h.scheduleSend(w, r, owner, creds, msg, raw, state.RecipientRelation)
		return
	}

	id, err := provider.Send(ctx, creds, msg)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.recordRelation(r, owner, msg.To, state.RecipientRelation)
	h.logger.Info("Email sent", "owner", owner, "provider_message_id", id)
	OK(w, map[string]interface{}{"id": id})
}

func (h *Handler) scheduleSend(w http.ResponseWriter, r *http.Request, owner string, creds *domain.Credentials, msg *domain.OutgoingMessage, raw string, relation *string) {
	ctx := r.Context()
	at, err := scheduler.ParseScheduleTime(raw)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	draftID, err := h.provider.CreateDraft(ctx, creds, msg)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	id, err := h.scheduler.Enqueue(ctx, scheduler.EnqueueRequest{
		Owner:       owner,
		DraftID:     draftID,
		Recipient:   msg.To,
		Subject:     msg.Subject,
		ScheduledAt: at,
		Credentials: creds,
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	h.recordRelation(r, owner, msg.To, relation)
	OK(w, map[string]interface{}{
		"scheduled": true,
		"time":      at.UTC().Format(time.RFC3339),
		"db_id":     id,
	})
}

func (h *Handler) recordRelation(r *http.Request, owner, to string, relation *string) {
	if relation != nil {
		h.contacts.RecordRelation(r.Context(), owner, to, *relation)
	}
}

func readAttachments(form *multipart.Form) ([]domain.Attachment, error) {
	if form == nil {
		return nil, nil
	}
	var out []domain.Attachment
	for _, fh := range form.File["attachments"] {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		out = append(out, domain.Attachment{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return out, nil
}

// DownloadAttachment streams one attachment of a received message.
func (h *Handler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	const op = "api.attachment"

	ctx := r.Context()
	_, creds, err := h.credentials(ctx)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	provider, err := h.mail()
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	q := r.URL.Query()
	messageID, attachmentID := q.Get("messageId"), q.Get("attachmentId")
	if messageID == "" || attachmentID == "" {
		h.Fail(w, r, shared.Validation(op, "messageId and attachmentId are required"))
		return
	}
	filename := q.Get("filename")
	if filename == "" {
		filename = "download"
	}

	att, err := provider.GetAttachment(ctx, creds, messageID, attachmentID)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	ct := mime.TypeByExtension(filepath.Ext(filename))
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(att.Data); err != nil {
		h.logger.Debug("Attachment write aborted", "error", err)
	}
}

// addressList splits a comma-separated form field into trimmed entries.
func addressList(field string) []string {
	var out []string
	for _, part := range strings.Split(field, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
