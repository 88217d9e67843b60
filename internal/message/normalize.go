package message

import (
	"encoding/base64"
	"io"
	"mime"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-message/charset"
)

const fragmentSeparator = "\n\n"

// Normalize converts a provider message into its canonical form. It never fails:
// undecodable parts become empty fragments and an unresolvable timestamp is
// reported through TimestampResolved.
func Normalize(raw RawMessage) CanonicalMessage {
	headers := raw.Headers
	if len(headers) == 0 && raw.Payload != nil {
		headers = raw.Payload.Headers
	}

	date, ok := ResolveTimestamp(headers, raw.InternalDate)

	return CanonicalMessage{
		ID:                raw.ID,
		ThreadID:          raw.ThreadID,
		Subject:           strings.TrimSpace(headers.Get("Subject")),
		From:              strings.TrimSpace(headers.Get("From")),
		To:                strings.TrimSpace(headers.Get("To")),
		Cc:                strings.TrimSpace(headers.Get("Cc")),
		Snippet:           raw.Snippet,
		Date:              date,
		TimestampResolved: ok,
		Body:              Body(raw.Payload),
		MessageIDHeader:   strings.TrimSpace(headers.Get("Message-Id")),
		ReferencesHeader:  strings.TrimSpace(headers.Get("References")),
	}
}

// ResolveTimestamp picks the first Received header's date suffix, then the Date
// header, then the provider's internal millisecond timestamp. The result is UTC.
func ResolveTimestamp(headers Headers, internalDate int64) (time.Time, bool) {
	if received := headers.Values("Received"); len(received) > 0 {
		if idx := strings.LastIndex(received[0], ";"); idx >= 0 {
			if t, err := mail.ParseDate(strings.TrimSpace(received[0][idx+1:])); err == nil {
				return t.UTC(), true
			}
		}
	}

	if value := strings.TrimSpace(headers.Get("Date")); value != "" {
		if t, err := mail.ParseDate(value); err == nil {
			return t.UTC(), true
		}
	}

	if internalDate > 0 {
		return time.UnixMilli(internalDate).UTC(), true
	}

	return time.Time{}, false
}

// Body flattens the MIME tree into plain text. text/plain leaves come first,
// followed by converted HTML and other leaves in tree order.
func Body(root *Part) string {
	var plain, rest []string

	for _, leaf := range leaves(root, nil) {
		mediaType, params := mediaType(leaf)
		text := decodePart(leaf.Data, params["charset"])

		switch {
		case mediaType == "text/plain":
			text = strings.TrimSpace(text)
			if text != "" {
				plain = append(plain, text)
			}
		case mediaType == "text/html":
			if text = HTMLToText(text); text != "" {
				rest = append(rest, text)
			}
		case leaf.Filename != "":
			// attachments are not part of the readable body
		default:
			if text = strings.TrimSpace(text); text != "" {
				rest = append(rest, text)
			}
		}
	}

	return strings.Join(append(plain, rest...), fragmentSeparator)
}

func leaves(p *Part, acc []*Part) []*Part {
	if p == nil {
		return acc
	}

	if len(p.Parts) > 0 || strings.HasPrefix(strings.ToLower(p.MimeType), "multipart/") {
		for _, child := range p.Parts {
			acc = leaves(child, acc)
		}
		return acc
	}

	return append(acc, p)
}

func mediaType(p *Part) (string, map[string]string) {
	contentType := p.Headers.Get("Content-Type")
	if contentType != "" {
		if mt, params, err := mime.ParseMediaType(contentType); err == nil {
			if p.MimeType != "" {
				mt = strings.ToLower(p.MimeType)
			}
			return mt, params
		}
	}
	return strings.ToLower(strings.TrimSpace(p.MimeType)), map[string]string{}
}

func decodePart(data, label string) string {
	if data == "" {
		return ""
	}

	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return ""
		}
	}

	label = strings.TrimSpace(label)
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "us-ascii") {
		return string(decoded)
	}

	r, err := charset.Reader(label, strings.NewReader(string(decoded)))
	if err != nil {
		return string(decoded)
	}
	converted, err := io.ReadAll(r)
	if err != nil {
		return string(decoded)
	}
	return string(converted)
}
