package mailprovider

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/ashureev/mailpilot/internal/domain"
	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sentAt = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

func TestBuildMessageSinglePart(t *testing.T) {
	raw, err := buildMessage(&domain.OutgoingMessage{
		To:       "Alice <alice@example.com>",
		CC:       []string{"bob@example.com"},
		Subject:  "Lunch on Friday",
		HTMLBody: "<p>Hi Alice</p>",
	}, "", sentAt)
	require.NoError(t, err)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer mr.Close()

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Lunch on Friday", subject)

	to, err := mr.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "alice@example.com", to[0].Address)

	cc, err := mr.Header.AddressList("Cc")
	require.NoError(t, err)
	require.Len(t, cc, 1)
	assert.Empty(t, mr.Header.Get("In-Reply-To"))

	part, err := mr.NextPart()
	require.NoError(t, err)
	ct, _, err := part.Header.(*mail.InlineHeader).ContentType()
	require.NoError(t, err)
	assert.Equal(t, "text/html", ct)
	body, err := io.ReadAll(part.Body)
	require.NoError(t, err)
	assert.Equal(t, "<p>Hi Alice</p>", string(body))
}

func TestBuildMessageWithAttachmentAndReply(t *testing.T) {
	raw, err := buildMessage(&domain.OutgoingMessage{
		To:       "alice@example.com",
		Subject:  "Re: Report",
		HTMLBody: "<p>Attached</p>",
		Attachments: []domain.Attachment{
			{Filename: "report.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")},
			{Filename: "notes.bin", Data: []byte{0, 1, 2}},
		},
	}, "<orig@mail.example.com>", sentAt)
	require.NoError(t, err)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer mr.Close()

	assert.Equal(t, "<orig@mail.example.com>", mr.Header.Get("In-Reply-To"))
	assert.Equal(t, "<orig@mail.example.com>", mr.Header.Get("References"))

	var html string
	files := map[string]string{}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(part.Body)
		require.NoError(t, err)

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			html = string(data)
		case *mail.AttachmentHeader:
			name, err := h.Filename()
			require.NoError(t, err)
			ct, _, err := h.ContentType()
			require.NoError(t, err)
			files[name] = ct
			if name == "report.pdf" {
				assert.Equal(t, "%PDF-1.4", string(data))
			}
		}
	}

	assert.Equal(t, "<p>Attached</p>", html)
	assert.Equal(t, map[string]string{
		"report.pdf": "application/pdf",
		"notes.bin":  "application/octet-stream",
	}, files)
}

func TestBuildMessageRejectsBadAddress(t *testing.T) {
	_, err := buildMessage(&domain.OutgoingMessage{To: "not an address", HTMLBody: "x"}, "", sentAt)
	assert.Error(t, err)
}
