package service

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/bpmatch/internal/gmail"
	"github.com/spigell/bpmatch/internal/harvest"
	"github.com/spigell/bpmatch/internal/match"
	"github.com/spigell/bpmatch/internal/message"
	"github.com/spigell/bpmatch/internal/store"
)

type Mailbox interface {
	DefaultQuery() string
	Page(ctx context.Context, query string, start, end time.Time, page, size int) (gmail.ListPage, bool, error)
	FetchDetails(ctx context.Context, ids []string) ([]message.RawMessage, error)
	Send(ctx context.Context, msg gmail.OutgoingMessage) (gmail.SentMessage, error)
}

type Records interface {
	List(ctx context.Context, kind store.Kind, f store.Filter) ([]store.Record, int, error)
	Get(ctx context.Context, kind store.Kind, id string) (store.Record, error)
	LogSent(ctx context.Context, m store.SentMail) error
	ListSent(ctx context.Context, page, size int) ([]store.SentMail, int, error)
}

type Matcher interface {
	MatchJob(ctx context.Context, jobID string) (store.Record, []match.Result, error)
	MatchCandidate(ctx context.Context, body string) (match.AdHoc, error)
}

type Harvester interface {
	Trigger(ctx context.Context) string
	Last() (harvest.Run, bool)
}

// Service is the inbound interface consumed by the HTTP adapter and the CLI.
type Service struct {
	mailbox   Mailbox
	records   Records
	matcher   Matcher
	harvester Harvester
	logger    *zap.Logger
	now       func() time.Time
}

func New(mailbox Mailbox, records Records, matcher Matcher, harvester Harvester, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		mailbox:   mailbox,
		records:   records,
		matcher:   matcher,
		harvester: harvester,
		logger:    logger,
		now:       time.Now,
	}
}

// TriggerHarvest starts a detached run and returns without waiting for it.
func (s *Service) TriggerHarvest(ctx context.Context) TriggerResponse {
	id := s.harvester.Trigger(ctx)
	s.logger.Info("harvest triggered", zap.String("run_id", id))
	return TriggerResponse{RunID: id}
}

func (s *Service) LastHarvest() (harvest.Run, bool) {
	return s.harvester.Last()
}

func (s *Service) ListMessages(ctx context.Context, req ListMessagesRequest) (ListMessagesResponse, error) {
	page, size := store.NormalizePage(req.Page, req.PageSize)

	start, end := req.Start, req.End
	if !req.Date.IsZero() {
		start, end = req.Date, req.Date
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return ListMessagesResponse{}, &ValidationError{Field: "end", Reason: "must not be before start"}
	}

	query := strings.TrimSpace(req.Keyword)
	if query == "" {
		query = s.mailbox.DefaultQuery()
	}

	listed, hasNext, err := s.mailbox.Page(ctx, query, start, end, page, size)
	if err != nil {
		return ListMessagesResponse{}, err
	}

	raws, err := s.mailbox.FetchDetails(ctx, listed.IDs)
	if err != nil {
		return ListMessagesResponse{}, err
	}

	items := make([]message.CanonicalMessage, 0, len(raws))
	for _, raw := range raws {
		items = append(items, message.Normalize(raw))
	}
	message.SortNewestFirst(items)

	return ListMessagesResponse{
		Items:    items,
		Page:     page,
		PageSize: size,
		HasNext:  hasNext,
		Estimate: listed.Estimate,
	}, nil
}

func (s *Service) MatchJob(ctx context.Context, req MatchRequest) (MatchResponse, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return MatchResponse{}, &ValidationError{Field: "jobId", Reason: "is required"}
	}

	job, results, err := s.matcher.MatchJob(ctx, strings.TrimSpace(req.JobID))
	if err != nil {
		return MatchResponse{}, err
	}
	return MatchResponse{Job: job, Matches: results}, nil
}

func (s *Service) MatchAdHocCandidate(ctx context.Context, req AdHocMatchRequest) (AdHocMatchResponse, error) {
	if strings.TrimSpace(req.Body) == "" {
		return AdHocMatchResponse{}, &ValidationError{Field: "body", Reason: "is required"}
	}

	res, err := s.matcher.MatchCandidate(ctx, req.Body)
	if err != nil {
		return AdHocMatchResponse{}, err
	}
	return AdHocMatchResponse{Extracted: res.Detail, Defaulted: res.Defaulted, Matches: res.Matches}, nil
}

// SendReply sends through the mailbox and records the sent mail. A failure to
// record does not fail the send.
func (s *Service) SendReply(ctx context.Context, req SendRequest) (SendResponse, error) {
	to := cleanList(req.To)
	if len(to) == 0 {
		return SendResponse{}, &ValidationError{Field: "to", Reason: "at least one recipient is required"}
	}
	if strings.TrimSpace(req.Subject) == "" {
		return SendResponse{}, &ValidationError{Field: "subject", Reason: "is required"}
	}

	out := gmail.OutgoingMessage{
		To:         to,
		Cc:         cleanList(req.Cc),
		Subject:    req.Subject,
		Body:       req.Body,
		ThreadID:   strings.TrimSpace(req.ThreadID),
		InReplyTo:  strings.TrimSpace(req.InReplyTo),
		References: strings.TrimSpace(req.References),
	}

	names := make(store.NameList, 0, len(req.Attachments))
	for _, att := range req.Attachments {
		out.Attachments = append(out.Attachments, gmail.Attachment{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Content:     decodeContent(att.Content),
		})
		name := strings.TrimSpace(att.Filename)
		if name == "" {
			name = "attachment"
		}
		names = append(names, name)
	}

	sent, err := s.mailbox.Send(ctx, out)
	if err != nil {
		return SendResponse{}, err
	}

	sentAt := s.now()
	if sent.InternalDate > 0 {
		sentAt = time.UnixMilli(sent.InternalDate)
	}

	logErr := s.records.LogSent(ctx, store.SentMail{
		MessageID:   sent.ID,
		ThreadID:    sent.ThreadID,
		SentAt:      sentAt,
		To:          strings.Join(to, ", "),
		Cc:          strings.Join(out.Cc, ", "),
		Subject:     req.Subject,
		Body:        req.Body,
		Attachments: names,
		MailType:    strings.TrimSpace(req.MailType),
	})
	if logErr != nil {
		s.logger.Warn("failed to record sent mail", zap.String("message_id", sent.ID), zap.Error(logErr))
	}

	return SendResponse{MessageID: sent.ID, ThreadID: sent.ThreadID}, nil
}

func (s *Service) ListSent(ctx context.Context, page, size int) (SentPage, error) {
	page, size = store.NormalizePage(page, size)
	items, total, err := s.records.ListSent(ctx, page, size)
	if err != nil {
		return SentPage{}, err
	}
	return SentPage{Items: items, Page: page, PageSize: size, Total: total, HasNext: page*size < total}, nil
}

func (s *Service) ListRecords(ctx context.Context, kind store.Kind, q RecordQuery) (RecordPage, error) {
	if q.Country != nil && *q.Country != 0 && *q.Country != 1 {
		return RecordPage{}, &ValidationError{Field: "country", Reason: "must be 0 or 1"}
	}

	page, size := store.NormalizePage(q.Page, q.PageSize)
	items, total, err := s.records.List(ctx, kind, store.Filter{
		Country:  q.Country,
		Skill:    q.Skill,
		Since:    q.Since,
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		return RecordPage{}, err
	}
	return RecordPage{Items: items, Page: page, PageSize: size, Total: total, HasNext: page*size < total}, nil
}

func (s *Service) GetRecord(ctx context.Context, kind store.Kind, id string) (store.Record, error) {
	if strings.TrimSpace(id) == "" {
		return store.Record{}, &ValidationError{Field: "id", Reason: "is required"}
	}
	return s.records.Get(ctx, kind, strings.TrimSpace(id))
}

func decodeContent(content string) []byte {
	trimmed := strings.TrimSpace(content)
	if data, err := base64.StdEncoding.DecodeString(trimmed); err == nil {
		return data
	}
	if data, err := base64.URLEncoding.DecodeString(trimmed); err == nil {
		return data
	}
	return []byte(content)
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
