package harvest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/bpmatch/internal/classify"
	"github.com/spigell/bpmatch/internal/extract"
	"github.com/spigell/bpmatch/internal/gmail"
	"github.com/spigell/bpmatch/internal/logger"
	"github.com/spigell/bpmatch/internal/message"
	"github.com/spigell/bpmatch/internal/store"
)

const (
	DefaultWindowDays = 14
	DefaultPageSize   = 100

	// provider ceiling for one list call
	maxListSize = 500
)

type Mailbox interface {
	Search(ctx context.Context, query string, start, end time.Time, cursor string, size int) (gmail.ListPage, error)
	FetchDetails(ctx context.Context, ids []string) ([]message.RawMessage, error)
}

// Store is the ledger and record store used by a run.
type Store interface {
	Seen(ctx context.Context, ids []string) (map[string]struct{}, error)
	Save(ctx context.Context, kind store.Kind, rec store.Record) error
}

type Classifier interface {
	Classify(ctx context.Context, subject string) classify.Label
}

type Extractor interface {
	Extract(ctx context.Context, label classify.Label, body string) (extract.Detail, error)
}

type Config struct {
	Query      string
	WindowDays int
	PageSize   int
	// MaxPages stops a run after this many pages. Zero walks every page.
	MaxPages int
}

type Orchestrator struct {
	mailbox    Mailbox
	store      Store
	classifier Classifier
	extractor  Extractor
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time

	active atomic.Int32
	mu     sync.Mutex
	last   *Run
}

func New(mailbox Mailbox, st Store, classifier Classifier, extractor Extractor, cfg Config, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = DefaultWindowDays
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PageSize > maxListSize {
		cfg.PageSize = maxListSize
	}
	if cfg.MaxPages < 0 {
		cfg.MaxPages = 0
	}

	return &Orchestrator{
		mailbox:    mailbox,
		store:      st,
		classifier: classifier,
		extractor:  extractor,
		cfg:        cfg,
		logger:     log,
		now:        time.Now,
	}
}

// Trigger starts a run detached from ctx's cancellation and returns its id at once.
// Failures are only visible in the logs and through Last.
func (o *Orchestrator) Trigger(ctx context.Context) string {
	id := uuid.NewString()
	if active := o.active.Load(); active > 0 {
		o.logger.Warn("harvest already running, starting an overlapping run",
			zap.String(logger.FieldRunID, id),
			zap.Int32("active", active),
		)
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		_, _ = o.run(detached, id)
	}()

	return id
}

// Run executes one harvest synchronously.
func (o *Orchestrator) Run(ctx context.Context) (*Run, error) {
	return o.run(ctx, uuid.NewString())
}

// Last returns a copy of the most recently finished run.
func (o *Orchestrator) Last() (Run, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return Run{}, false
	}
	return *o.last, true
}

// Active reports how many runs are in progress.
func (o *Orchestrator) Active() int {
	return int(o.active.Load())
}

func (o *Orchestrator) run(ctx context.Context, id string) (run *Run, err error) {
	o.active.Add(1)
	defer o.active.Add(-1)

	start, end := Window(o.now(), o.cfg.WindowDays)
	run = &Run{
		ID:              id,
		StartedAt:       o.now(),
		State:           StateIdle,
		WindowStart:     start,
		WindowEnd:       end,
		Projects:        []store.Record{},
		Technicians:     []store.Record{},
		PersistFailures: []PersistFailure{},
	}
	log := logger.WithRun(o.logger, id)

	log.Info("harvest started",
		zap.Time("window_start", start),
		zap.Time("window_end", end),
		zap.Int("page_size", o.cfg.PageSize),
		zap.Int("max_pages", o.cfg.MaxPages),
	)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("harvest panicked: %v", r)
		}

		run.FinishedAt = o.now()
		if err != nil {
			failedIn := run.State
			run.State = StateFailed
			run.Error = err.Error()
			log.Error("harvest failed",
				zap.String("failed_in", string(failedIn)),
				zap.Int("pages", run.Pages),
				zap.Duration("duration", run.Duration()),
				zap.Error(err),
				zap.Stack("trace"),
			)
		} else {
			run.State = StateIdle
			log.Info("harvest finished",
				zap.Int("pages", run.Pages),
				zap.Int("listed", run.Listed),
				zap.Int("duplicates", run.Duplicates),
				zap.Int("job_offers", run.JobOffers),
				zap.Int("candidate_offers", run.CandidateOffers),
				zap.Int("others", run.Others),
				zap.Int("projects_saved", len(run.Projects)),
				zap.Int("technicians_saved", len(run.Technicians)),
				zap.Int("persist_failures", len(run.PersistFailures)),
				zap.Duration("duration", run.Duration()),
			)
		}

		snapshot := *run
		o.mu.Lock()
		o.last = &snapshot
		o.mu.Unlock()
	}()

	cursor := ""
	for {
		run.State = StatePaging
		page, err := o.mailbox.Search(ctx, o.cfg.Query, start, end, cursor, o.cfg.PageSize)
		if err != nil {
			return run, fmt.Errorf("search page %d: %w", run.Pages+1, err)
		}
		run.Pages++
		run.Listed += len(page.IDs)

		log.Info("page fetched",
			zap.Int("page", run.Pages),
			zap.Int("count", len(page.IDs)),
			zap.Bool("has_more", page.NextCursor != ""),
		)

		if err := o.processPage(ctx, log, run, page.IDs); err != nil {
			return run, err
		}

		if page.NextCursor == "" {
			break
		}
		if o.cfg.MaxPages > 0 && run.Pages >= o.cfg.MaxPages {
			log.Info("page limit reached", zap.Int("max_pages", o.cfg.MaxPages))
			break
		}
		cursor = page.NextCursor
	}

	return run, nil
}

func (o *Orchestrator) processPage(ctx context.Context, log *zap.Logger, run *Run, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	run.State = StateFiltering
	seen, err := o.store.Seen(ctx, ids)
	if err != nil {
		return fmt.Errorf("check ledger: %w", err)
	}

	fresh := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			run.Duplicates++
			continue
		}
		fresh = append(fresh, id)
	}
	if len(fresh) == 0 {
		return nil
	}

	raws, err := o.mailbox.FetchDetails(ctx, fresh)
	if err != nil {
		return fmt.Errorf("fetch details: %w", err)
	}
	run.Fetched += len(raws)

	for _, raw := range raws {
		msg := message.Normalize(raw)
		if !msg.TimestampResolved {
			log.Warn("message timestamp unresolved", zap.String(logger.FieldMessageID, msg.ID))
		}

		run.State = StateClassifying
		label := o.classifier.Classify(ctx, msg.Subject)
		run.count(label)

		var kind store.Kind
		switch label {
		case classify.JobOffer:
			kind = store.KindProject
		case classify.CandidateOffer:
			kind = store.KindTechnician
		default:
			log.Debug("skipping unclassified message",
				zap.String(logger.FieldMessageID, msg.ID),
				zap.String("subject", logger.TruncateForLog(msg.Subject, 80)),
			)
			continue
		}

		run.State = StateExtracting
		detail, extractErr := o.extractor.Extract(ctx, label, msg.Body)
		if extractErr != nil {
			run.Defaulted++
			log.Warn("extraction defaulted",
				zap.String(logger.FieldMessageID, msg.ID),
				zap.Stringer("label", label),
				zap.Error(extractErr),
			)
		}

		run.State = StatePersisting
		rec := toRecord(msg, detail)
		if err := o.store.Save(ctx, kind, rec); err != nil {
			if errors.Is(err, store.ErrAlreadyProcessed) {
				run.Duplicates++
				log.Debug("message already processed", zap.String(logger.FieldMessageID, msg.ID))
				continue
			}
			run.PersistFailures = append(run.PersistFailures, PersistFailure{MessageID: msg.ID, Error: err.Error()})
			log.Error("persist failed", zap.String(logger.FieldMessageID, msg.ID), zap.Error(err))
			continue
		}

		if kind == store.KindProject {
			run.Projects = append(run.Projects, rec)
		} else {
			run.Technicians = append(run.Technicians, rec)
		}
	}

	return nil
}

func toRecord(msg message.CanonicalMessage, detail extract.Detail) store.Record {
	rec := store.Record{
		ID:      msg.ID,
		Title:   msg.Subject,
		Address: msg.From,
		Body:    msg.Body,
		Country: detail.Country,
		Skills:  store.SkillList(detail.Skills),
		Price:   detail.Price,
	}
	if msg.TimestampResolved {
		received := msg.Date
		rec.ReceivedAt = &received
	}
	return rec
}
