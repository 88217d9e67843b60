package gmail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"

	"github.com/spigell/bpmatch/internal/message"
)

const (
	// BatchLimit is the provider's ceiling for one grouped detail request.
	BatchLimit = 100

	DefaultUser     = "me"
	DefaultPageSize = 20

	queryDateLayout = "2006/01/02"
)

// ListPage is one page of message identifiers returned by the provider.
type ListPage struct {
	IDs        []string
	NextCursor string
	Estimate   int64
}

// API is the subset of the provider used by Client. A grouped BatchGet call
// returns the messages that could be fetched and drops the rest, except for
// authentication and quota failures which are returned as errors.
type API interface {
	List(ctx context.Context, user, query, cursor string, size int64) (ListPage, error)
	BatchGet(ctx context.Context, user string, ids []string) ([]message.RawMessage, error)
	Send(ctx context.Context, user string, raw []byte, threadID string) (SentMessage, error)
}

type Options struct {
	User  string
	Query string
}

// Client is the quota-respecting mailbox client.
type Client struct {
	api    API
	user   string
	query  string
	logger *zap.Logger
	cb     *gobreaker.CircuitBreaker
	now    func() time.Time
}

func New(api API, opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	user := strings.TrimSpace(opts.User)
	if user == "" {
		user = DefaultUser
	}

	settings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			var nce *nonCircuitError
			return err == nil || errors.As(err, &nce)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Client{
		api:    api,
		user:   user,
		query:  strings.TrimSpace(opts.Query),
		logger: logger,
		cb:     gobreaker.NewCircuitBreaker(settings),
		now:    time.Now,
	}
}

// DefaultQuery returns the configured free-text search term.
func (c *Client) DefaultQuery() string {
	return c.query
}

// ComposeQuery joins the free-text term with date bounds. The start day is
// inclusive; the end day is made inclusive by sending the following day as
// the exclusive upper bound.
func ComposeQuery(term string, start, end time.Time) string {
	parts := make([]string, 0, 3)
	if term = strings.TrimSpace(term); term != "" {
		parts = append(parts, term)
	}
	if !start.IsZero() {
		parts = append(parts, "after:"+start.Format(queryDateLayout))
	}
	if !end.IsZero() {
		parts = append(parts, "before:"+end.AddDate(0, 0, 1).Format(queryDateLayout))
	}
	return strings.Join(parts, " ")
}

// Search returns one page of identifiers matching query within the window.
func (c *Client) Search(ctx context.Context, query string, start, end time.Time, cursor string, size int) (ListPage, error) {
	if size <= 0 {
		size = DefaultPageSize
	}

	q := ComposeQuery(query, start, end)
	c.logger.Debug("searching mailbox", zap.String("query", q), zap.Bool("has_cursor", cursor != ""), zap.Int("size", size))

	var page ListPage
	err := c.execute(ctx, "list", func() error {
		var err error
		page, err = c.api.List(ctx, c.user, q, cursor, int64(size))
		return err
	})
	if err != nil {
		return ListPage{}, err
	}

	return page, nil
}

// Page walks the provider cursor from the first page until the requested
// page number and returns only that page. hasMore reports whether the
// provider returned a further cursor.
func (c *Client) Page(ctx context.Context, query string, start, end time.Time, page, size int) (ListPage, bool, error) {
	if page < 1 {
		page = 1
	}

	cursor := ""
	for current := 1; ; current++ {
		result, err := c.Search(ctx, query, start, end, cursor, size)
		if err != nil {
			return ListPage{}, false, err
		}

		if current == page {
			return result, result.NextCursor != "", nil
		}

		if result.NextCursor == "" {
			c.logger.Debug("requested page is past the last page", zap.Int("page", page), zap.Int("last", current))
			return ListPage{Estimate: result.Estimate}, false, nil
		}

		cursor = result.NextCursor
	}
}

// FetchDetails retrieves full messages in sequential chunks of at most BatchLimit identifiers.
func (c *Client) FetchDetails(ctx context.Context, ids []string) ([]message.RawMessage, error) {
	messages := make([]message.RawMessage, 0, len(ids))

	for start := 0; start < len(ids); start += BatchLimit {
		end := start + BatchLimit
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		var fetched []message.RawMessage
		err := c.execute(ctx, "batch get", func() error {
			var err error
			fetched, err = c.api.BatchGet(ctx, c.user, chunk)
			return err
		})
		if err != nil {
			return nil, err
		}

		if dropped := len(chunk) - len(fetched); dropped > 0 {
			c.logger.Warn("dropped messages from batch", zap.Int("requested", len(chunk)), zap.Int("dropped", dropped))
		}

		messages = append(messages, fetched...)
	}

	return messages, nil
}

// Send delivers a composed message, optionally inside an existing thread.
func (c *Client) Send(ctx context.Context, msg OutgoingMessage) (SentMessage, error) {
	raw, err := BuildMIME(msg, c.now())
	if err != nil {
		return SentMessage{}, fmt.Errorf("build message: %w", err)
	}

	var sent SentMessage
	err = c.execute(ctx, "send", func() error {
		var err error
		sent, err = c.api.Send(ctx, c.user, raw, msg.ThreadID)
		return err
	})
	if err != nil {
		return SentMessage{}, err
	}

	c.logger.Info("message sent", zap.String("id", sent.ID), zap.String("thread_id", sent.ThreadID))

	return sent, nil
}

func (c *Client) execute(ctx context.Context, op string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := c.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if isClientError(err) {
				return nil, &nonCircuitError{err: err}
			}
			return nil, err
		}
		return nil, nil
	})

	var nce *nonCircuitError
	if errors.As(err, &nce) {
		err = nce.err
	}

	if err != nil {
		c.logger.Debug("provider call failed",
			zap.String("op", op),
			zap.String("breaker", c.cb.State().String()),
			zap.Error(err),
		)
	}

	return wrapError(op, err)
}

func isClientError(err error) bool {
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrNotFound) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 400, 401, 403, 404:
			return true
		}
	}
	return false
}
