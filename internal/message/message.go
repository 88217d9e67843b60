package message

import (
	"sort"
	"strings"
	"time"
)

// Header is a single message header. Order and duplicates are preserved.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered multi-map of message headers.
type Headers []Header

// Get returns the first value for name, matched case-insensitively.
func (h Headers) Get(name string) string {
	for _, header := range h {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

// Values returns all values for name in the order they appear.
func (h Headers) Values(name string) []string {
	var values []string
	for _, header := range h {
		if strings.EqualFold(header.Name, name) {
			values = append(values, header.Value)
		}
	}
	return values
}

// Part is one node of the MIME tree as delivered by the provider.
// Data is base64url encoded.
type Part struct {
	MimeType string
	Filename string
	Headers  Headers
	Data     string
	Parts    []*Part
}

// RawMessage is a provider message before normalization.
type RawMessage struct {
	ID           string
	ThreadID     string
	Snippet      string
	Headers      Headers
	Payload      *Part
	InternalDate int64
}

// CanonicalMessage is the normalized form consumed by classification and listing.
type CanonicalMessage struct {
	ID                string    `json:"id"`
	ThreadID          string    `json:"threadId"`
	Subject           string    `json:"subject"`
	From              string    `json:"from"`
	To                string    `json:"to"`
	Cc                string    `json:"cc,omitempty"`
	Snippet           string    `json:"snippet,omitempty"`
	Date              time.Time `json:"date"`
	TimestampResolved bool      `json:"timestampResolved"`
	Body              string    `json:"body"`
	MessageIDHeader   string    `json:"messageIdHeader,omitempty"`
	ReferencesHeader  string    `json:"referencesHeader,omitempty"`
}

// SortNewestFirst orders messages by resolved timestamp descending.
// Messages without a resolved timestamp go last, keeping their relative order.
func SortNewestFirst(msgs []CanonicalMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i], msgs[j]
		if a.TimestampResolved != b.TimestampResolved {
			return a.TimestampResolved
		}
		return a.Date.After(b.Date)
	})
}
