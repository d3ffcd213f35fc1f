package mailprovider

import (
	"encoding/base64"
	"strings"

	"github.com/ashureev/mailpilot/internal/domain"
	"google.golang.org/api/gmail/v1"
)

const (
	noSubject      = "(No Subject)"
	unknownParty   = "Unknown"
	previewLength  = 500
	unreadLabel    = "UNREAD"
	defaultLabel   = "INBOX"
	defaultPageLen = 20
)

// headerValue returns the first header named name, case-insensitively.
func headerValue(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// decodeData decodes Gmail's URL-safe base64, padded or not.
func decodeData(data string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(data)
}

// bodies walks the MIME tree and returns the first text/plain and text/html
// bodies found.
func bodies(part *gmail.MessagePart) (plain, html string) {
	if part == nil {
		return "", ""
	}
	var walk func(p *gmail.MessagePart)
	walk = func(p *gmail.MessagePart) {
		if p.Filename == "" && p.Body != nil && p.Body.Data != "" {
			data, err := decodeData(p.Body.Data)
			if err == nil {
				switch {
				case strings.HasPrefix(p.MimeType, "text/plain") && plain == "":
					plain = string(data)
				case strings.HasPrefix(p.MimeType, "text/html") && html == "":
					html = string(data)
				}
			}
		}
		for _, child := range p.Parts {
			walk(child)
		}
	}
	walk(part)
	return plain, html
}

func attachmentRefs(part *gmail.MessagePart) []domain.AttachmentRef {
	if part == nil {
		return nil
	}
	var refs []domain.AttachmentRef
	if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
		refs = append(refs, domain.AttachmentRef{
			AttachmentID: part.Body.AttachmentId,
			Filename:     part.Filename,
			MimeType:     part.MimeType,
			Size:         part.Body.Size,
		})
	}
	for _, child := range part.Parts {
		refs = append(refs, attachmentRefs(child)...)
	}
	return refs
}

func hasLabel(labels []string, want string) bool {
	for _, l := range labels {
		if l == want {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// toSummary converts a full-format message into an inbox row.
func toSummary(m *gmail.Message) domain.MessageSummary {
	var headers []*gmail.MessagePartHeader
	if m.Payload != nil {
		headers = m.Payload.Headers
	}
	plain, _ := bodies(m.Payload)
	return domain.MessageSummary{
		ID:       m.Id,
		ThreadID: m.ThreadId,
		Subject:  orDefault(headerValue(headers, "Subject"), noSubject),
		From:     orDefault(headerValue(headers, "From"), unknownParty),
		To:       orDefault(headerValue(headers, "To"), unknownParty),
		Date:     headerValue(headers, "Date"),
		Snippet:  m.Snippet,
		Body:     truncateRunes(plain, previewLength),
		IsUnread: hasLabel(m.LabelIds, unreadLabel),
	}
}

// toDetail converts a full-format message, preferring the HTML body.
func toDetail(m *gmail.Message) *domain.MessageDetail {
	var headers []*gmail.MessagePartHeader
	if m.Payload != nil {
		headers = m.Payload.Headers
	}
	plain, html := bodies(m.Payload)
	d := &domain.MessageDetail{
		ID:          m.Id,
		ThreadID:    m.ThreadId,
		Subject:     orDefault(headerValue(headers, "Subject"), noSubject),
		From:        orDefault(headerValue(headers, "From"), unknownParty),
		To:          orDefault(headerValue(headers, "To"), unknownParty),
		Date:        headerValue(headers, "Date"),
		Body:        plain,
		Attachments: attachmentRefs(m.Payload),
	}
	if html != "" {
		d.Body = html
		d.IsHTML = true
	}
	return d
}
