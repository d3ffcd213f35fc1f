package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers every API route. limit wraps the routes that call
// the language model.
func (h *Handler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}

	r.Get("/auth/google/callback", h.GoogleCallback)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Get("/auth/status", h.AuthStatus)
		r.Get("/auth/google/login", h.GoogleLogin)
		r.Post("/auth/logout", h.Logout)

		r.Get("/contacts/search", h.SearchContacts)

		r.Post("/email/send", h.SendEmail)
		r.Get("/email/attachment", h.DownloadAttachment)

		r.Get("/inbox/messages", h.ListMessages)
		r.Get("/inbox/message/{id}", h.GetMessage)

		r.Get("/scheduled/messages", h.ListScheduled)
		r.Delete("/scheduled/messages/{id}", h.CancelScheduled)
		r.Get("/scheduler/status", h.SchedulerStatus)
		r.Get("/scheduler/health", h.SchedulerHealth)

		r.Get("/mediator/state", h.MediatorState)
		r.Post("/mediator/reset", h.ResetConversation)
		r.Get("/compose/context", h.ComposeContext)

		r.Group(func(r chi.Router) {
			r.Use(limit)
			r.Post("/mediator/advance", h.Advance)
			r.Post("/email/generate", h.Generate)
			r.Post("/email/summarize", h.Summarize)
			r.Post("/audio/transcribe", h.Transcribe)
		})
	})
}
