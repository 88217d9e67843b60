package gmail

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

const defaultAttachmentType = "application/octet-stream"

type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// OutgoingMessage is a reply or new message to be sent through the provider.
type OutgoingMessage struct {
	From        string
	To          []string
	Cc          []string
	Subject     string
	Body        string
	Attachments []Attachment
	ThreadID    string
	InReplyTo   string
	References  string
}

type SentMessage struct {
	ID           string
	ThreadID     string
	InternalDate int64
}

// BuildMIME renders msg as an RFC 5322 message. When References is empty it
// falls back to InReplyTo so replies stay in the recipient's thread.
func BuildMIME(msg OutgoingMessage, now time.Time) ([]byte, error) {
	if len(msg.To) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}

	var h mail.Header
	h.SetDate(now)
	h.SetSubject(msg.Subject)

	if msg.From != "" {
		from, err := mail.ParseAddress(msg.From)
		if err != nil {
			return nil, fmt.Errorf("parse from: %w", err)
		}
		h.SetAddressList("From", []*mail.Address{from})
	}

	to, err := parseAddresses(msg.To)
	if err != nil {
		return nil, fmt.Errorf("parse to: %w", err)
	}
	h.SetAddressList("To", to)

	if len(msg.Cc) > 0 {
		cc, err := parseAddresses(msg.Cc)
		if err != nil {
			return nil, fmt.Errorf("parse cc: %w", err)
		}
		h.SetAddressList("Cc", cc)
	}

	inReplyTo := strings.TrimSpace(msg.InReplyTo)
	references := strings.TrimSpace(msg.References)
	if references == "" {
		references = inReplyTo
	}
	if inReplyTo != "" {
		h.Set("In-Reply-To", inReplyTo)
	}
	if references != "" {
		h.Set("References", references)
	}

	var buf bytes.Buffer
	if len(msg.Attachments) == 0 {
		h.Set("Content-Type", "text/plain; charset=utf-8")
		w, err := mail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(msg.Body)); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, err
	}

	var th mail.InlineHeader
	th.Set("Content-Type", "text/plain; charset=utf-8")
	tw, err := mw.CreateSingleInline(th)
	if err != nil {
		return nil, err
	}
	if _, err := tw.Write([]byte(msg.Body)); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	for _, att := range msg.Attachments {
		var ah mail.AttachmentHeader
		contentType := strings.TrimSpace(att.ContentType)
		if contentType == "" {
			contentType = defaultAttachmentType
		}
		filename := strings.TrimSpace(att.Filename)
		if filename == "" {
			filename = "attachment"
		}
		ah.Set("Content-Type", contentType)
		ah.SetFilename(filename)

		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, err
		}
		if _, err := aw.Write(att.Content); err != nil {
			return nil, err
		}
		if err := aw.Close(); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func parseAddresses(values []string) ([]*mail.Address, error) {
	var list []*mail.Address
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		addrs, err := mail.ParseAddressList(value)
		if err != nil {
			return nil, err
		}
		list = append(list, addrs...)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no valid address")
	}
	return list, nil
}
