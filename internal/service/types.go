package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/spigell/bpmatch/internal/extract"
	"github.com/spigell/bpmatch/internal/match"
	"github.com/spigell/bpmatch/internal/message"
	"github.com/spigell/bpmatch/internal/store"
)

// ErrValidation marks errors caused by a bad request.
var ErrValidation = errors.New("validation failed")

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type TriggerResponse struct {
	RunID string `json:"runId"`
}

// ListMessagesRequest selects mailbox messages. Date selects a single day and
// wins over Start/End.
type ListMessagesRequest struct {
	Keyword  string
	Date     time.Time
	Start    time.Time
	End      time.Time
	Page     int
	PageSize int
}

type ListMessagesResponse struct {
	Items    []message.CanonicalMessage `json:"items"`
	Page     int                        `json:"page"`
	PageSize int                        `json:"pageSize"`
	HasNext  bool                       `json:"hasNext"`
	Estimate int64                      `json:"estimate"`
}

type MatchRequest struct {
	JobID string `json:"jobId"`
}

type MatchResponse struct {
	Job     store.Record   `json:"job"`
	Matches []match.Result `json:"matches"`
}

type AdHocMatchRequest struct {
	Body string `json:"body"`
}

type AdHocMatchResponse struct {
	Extracted extract.Detail `json:"extracted"`
	Defaulted bool           `json:"defaulted"`
	Matches   []match.Result `json:"matches"`
}

// AttachmentInput carries base64 content. Content that is not valid base64 is sent as is.
type AttachmentInput struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type SendRequest struct {
	To          []string          `json:"to"`
	Cc          []string          `json:"cc"`
	Subject     string            `json:"subject"`
	Body        string            `json:"body"`
	Attachments []AttachmentInput `json:"attachments"`
	ThreadID    string            `json:"threadId"`
	InReplyTo   string            `json:"inReplyTo"`
	References  string            `json:"references"`
	MailType    string            `json:"mailType"`
}

type SendResponse struct {
	MessageID string `json:"messageId"`
	ThreadID  string `json:"threadId"`
}

type RecordQuery struct {
	Country  *int
	Skill    string
	Since    time.Time
	Page     int
	PageSize int
}

type RecordPage struct {
	Items    []store.Record `json:"items"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
	Total    int            `json:"total"`
	HasNext  bool           `json:"hasNext"`
}

type SentPage struct {
	Items    []store.SentMail `json:"items"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
	Total    int              `json:"total"`
	HasNext  bool             `json:"hasNext"`
}
