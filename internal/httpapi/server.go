package httpapi

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/spigell/bpmatch/internal/harvest"
	"github.com/spigell/bpmatch/internal/service"
	"github.com/spigell/bpmatch/internal/store"
)

// Backend is the set of operations exposed over HTTP. *service.Service implements it.
type Backend interface {
	TriggerHarvest(ctx context.Context) service.TriggerResponse
	LastHarvest() (harvest.Run, bool)
	ListMessages(ctx context.Context, req service.ListMessagesRequest) (service.ListMessagesResponse, error)
	MatchJob(ctx context.Context, req service.MatchRequest) (service.MatchResponse, error)
	MatchAdHocCandidate(ctx context.Context, req service.AdHocMatchRequest) (service.AdHocMatchResponse, error)
	SendReply(ctx context.Context, req service.SendRequest) (service.SendResponse, error)
	ListSent(ctx context.Context, page, size int) (service.SentPage, error)
	ListRecords(ctx context.Context, kind store.Kind, q service.RecordQuery) (service.RecordPage, error)
	GetRecord(ctx context.Context, kind store.Kind, id string) (store.Record, error)
}

type Server struct {
	app     *fiber.App
	backend Backend
	logger  *zap.Logger
}

func New(backend Backend, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          errorHandler(logger),
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             10 * 1024 * 1024,
	})

	s := &Server{app: app, backend: backend, logger: logger}
	app.Use(fiberrecover.New())
	app.Use(s.requestLogger)
	s.routes()

	return s
}

func (s *Server) routes() {
	api := s.app.Group("/api")

	api.Post("/harvest", s.triggerHarvest)
	api.Get("/harvest/last", s.lastHarvest)

	api.Get("/messages", s.listMessages)

	api.Get("/jobs/:id/matches", s.matchJob)
	api.Post("/candidates/match", s.matchCandidate)

	api.Post("/mail/send", s.sendMail)
	api.Get("/mail/sent", s.listSent)

	api.Get("/projects", s.listRecords(store.KindProject))
	api.Get("/projects/:id", s.getRecord(store.KindProject))
	api.Get("/technicians", s.listRecords(store.KindTechnician))
	api.Get("/technicians/:id", s.getRecord(store.KindTechnician))

	s.app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "route not found")
	})
}

// App exposes the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("request handled",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", c.Response().StatusCode()),
		zap.Duration("duration", time.Since(start)),
	)
	return err
}
