package api

import (
	"errors"
	"net/http"

	"github.com/ashureev/mailpilot/internal/shared"
)

const maxAudioUpload = 26 << 20

// Transcribe converts an uploaded recording to text.
func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	const op = "api.transcribe"

	if h.transcriber == nil {
		h.Fail(w, r, shared.E(shared.KindTranscription, op, "transcription is not configured", nil))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAudioUpload)
	file, header, err := r.FormFile("audio")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Fail(w, r, shared.Validation(op, "audio file too large"))
			return
		}
		h.Fail(w, r, shared.Validation(op, "No audio file"))
		return
	}
	defer func() { _ = file.Close() }()

	text, err := h.transcriber.Transcribe(r.Context(), header.Filename, file)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	OK(w, map[string]interface{}{"text": text})
}
