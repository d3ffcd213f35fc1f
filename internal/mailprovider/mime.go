package mailprovider

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ashureev/mailpilot/internal/domain"
	"github.com/emersion/go-message/mail"
)

// buildMessage renders msg as an RFC 5322 message with an HTML body. When
// inReplyTo is set the message is threaded under it.
func buildMessage(msg *domain.OutgoingMessage, inReplyTo string, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetSubject(msg.Subject)

	if err := setAddresses(&h, "To", []string{msg.To}); err != nil {
		return nil, err
	}
	if err := setAddresses(&h, "Cc", msg.CC); err != nil {
		return nil, err
	}
	if err := setAddresses(&h, "Bcc", msg.BCC); err != nil {
		return nil, err
	}
	if inReplyTo != "" {
		h.Set("In-Reply-To", inReplyTo)
		h.Set("References", inReplyTo)
	}

	var buf bytes.Buffer
	if len(msg.Attachments) == 0 {
		h.SetContentType("text/html", map[string]string{"charset": "utf-8"})
		w, err := mail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, fmt.Errorf("create message: %w", err)
		}
		if _, err := io.WriteString(w, msg.HTMLBody); err != nil {
			return nil, fmt.Errorf("write body: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("close message: %w", err)
		}
		return buf.Bytes(), nil
	}

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if err := writeHTMLPart(mw, msg.HTMLBody); err != nil {
		return nil, err
	}
	for _, a := range msg.Attachments {
		if err := writeAttachment(mw, a); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}
	return buf.Bytes(), nil
}

func setAddresses(h *mail.Header, key string, values []string) error {
	var addrs []*mail.Address
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		list, err := mail.ParseAddressList(v)
		if err != nil {
			return fmt.Errorf("invalid %s address %q: %w", key, v, err)
		}
		addrs = append(addrs, list...)
	}
	if len(addrs) > 0 {
		h.SetAddressList(key, addrs)
	}
	return nil
}

func writeHTMLPart(mw *mail.Writer, body string) error {
	tw, err := mw.CreateInline()
	if err != nil {
		return fmt.Errorf("create body: %w", err)
	}
	var ph mail.InlineHeader
	ph.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	w, err := tw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("create body part: %w", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close body part: %w", err)
	}
	return tw.Close()
}

func writeAttachment(mw *mail.Writer, a domain.Attachment) error {
	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var ah mail.AttachmentHeader
	ah.SetContentType(contentType, nil)
	ah.SetFilename(a.Filename)
	w, err := mw.CreateAttachment(ah)
	if err != nil {
		return fmt.Errorf("create attachment %s: %w", a.Filename, err)
	}
	if _, err := w.Write(a.Data); err != nil {
		return fmt.Errorf("write attachment %s: %w", a.Filename, err)
	}
	return w.Close()
}
