package gmail

import (
	"context"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	gm "google.golang.org/api/gmail/v1"

	"github.com/spigell/bpmatch/internal/message"
)

const defaultConcurrency = 10

// Service implements API on top of the Gmail REST client.
type Service struct {
	svc         *gm.Service
	concurrency int
	logger      *zap.Logger
}

func NewService(svc *gm.Service, concurrency int, logger *zap.Logger) *Service {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{svc: svc, concurrency: concurrency, logger: logger}
}

func (s *Service) List(ctx context.Context, user, query, cursor string, size int64) (ListPage, error) {
	call := s.svc.Users.Messages.List(user).MaxResults(size).Context(ctx)
	if query != "" {
		call = call.Q(query)
	}
	if cursor != "" {
		call = call.PageToken(cursor)
	}

	resp, err := call.Do()
	if err != nil {
		return ListPage{}, err
	}

	page := ListPage{
		IDs:        make([]string, 0, len(resp.Messages)),
		NextCursor: resp.NextPageToken,
		Estimate:   resp.ResultSizeEstimate,
	}
	for _, m := range resp.Messages {
		page.IDs = append(page.IDs, m.Id)
	}

	return page, nil
}

// BatchGet fetches the chunk with bounded parallelism. Items that fail for
// reasons other than authentication or quota are dropped.
func (s *Service) BatchGet(ctx context.Context, user string, ids []string) ([]message.RawMessage, error) {
	fetched := make([]*message.RawMessage, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, id := range ids {
		g.Go(func() error {
			m, err := s.svc.Users.Messages.Get(user, id).Format("full").Context(gctx).Do()
			if err != nil {
				wrapped := wrapError("get", err)
				if IsFatal(wrapped) {
					return wrapped
				}
				s.logger.Debug("dropping message from batch", zap.String("id", id), zap.Error(err))
				return nil
			}

			raw := convertMessage(m)
			fetched[i] = &raw
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	messages := make([]message.RawMessage, 0, len(ids))
	for _, m := range fetched {
		if m != nil {
			messages = append(messages, *m)
		}
	}

	return messages, nil
}

func (s *Service) Send(ctx context.Context, user string, raw []byte, threadID string) (SentMessage, error) {
	msg := &gm.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: threadID,
	}

	resp, err := s.svc.Users.Messages.Send(user, msg).Context(ctx).Do()
	if err != nil {
		return SentMessage{}, err
	}
	if resp == nil || resp.Id == "" {
		return SentMessage{}, fmt.Errorf("provider returned no message id")
	}

	return SentMessage{ID: resp.Id, ThreadID: resp.ThreadId, InternalDate: resp.InternalDate}, nil
}

func convertMessage(m *gm.Message) message.RawMessage {
	raw := message.RawMessage{
		ID:           m.Id,
		ThreadID:     m.ThreadId,
		Snippet:      m.Snippet,
		InternalDate: m.InternalDate,
	}

	if m.Payload != nil {
		raw.Payload = convertPart(m.Payload)
		raw.Headers = raw.Payload.Headers
	}

	return raw
}

func convertPart(p *gm.MessagePart) *message.Part {
	part := &message.Part{
		MimeType: p.MimeType,
		Filename: p.Filename,
		Headers:  make(message.Headers, 0, len(p.Headers)),
	}

	for _, h := range p.Headers {
		part.Headers = append(part.Headers, message.Header{Name: h.Name, Value: h.Value})
	}
	if p.Body != nil {
		part.Data = p.Body.Data
	}
	for _, child := range p.Parts {
		part.Parts = append(part.Parts, convertPart(child))
	}

	return part
}
