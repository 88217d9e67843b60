package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spigell/bpmatch/internal/gmail"
	"github.com/spigell/bpmatch/internal/service"
	"github.com/spigell/bpmatch/internal/store"
)

const (
	CodeOK         = "OK"
	CodeValidation = "ERR_VALIDATION"
	CodeNotFound   = "ERR_NOT_FOUND"
	CodeAuth       = "ERR_AUTH"
	CodeQuota      = "ERR_QUOTA"
	CodeServer     = "ERR_SERVER"
)

// Envelope wraps every response body.
type Envelope struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	Meta    any    `json:"meta,omitempty"`
}

type pageMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	HasNext  bool  `json:"hasNext"`
	Total    int   `json:"total,omitempty"`
	Estimate int64 `json:"estimate,omitempty"`
}

func ok(c *fiber.Ctx, status int, data, meta any) error {
	return c.Status(status).JSON(Envelope{Success: true, Code: CodeOK, Message: "ok", Data: data, Meta: meta})
}

func fail(c *fiber.Ctx, status int, code, msg string) error {
	return c.Status(status).JSON(Envelope{Success: false, Code: code, Message: msg})
}

// errorHandler maps domain errors onto the envelope. Server-side details are
// logged and never returned to the client.
func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		switch {
		case errors.Is(err, service.ErrValidation):
			return fail(c, fiber.StatusBadRequest, CodeValidation, err.Error())
		case errors.Is(err, store.ErrNotFound), errors.Is(err, gmail.ErrNotFound):
			return fail(c, fiber.StatusNotFound, CodeNotFound, "resource not found")
		case errors.Is(err, gmail.ErrAuth):
			logger.Warn("mail provider rejected credentials", zap.String("path", c.Path()), zap.Error(err))
			return fail(c, fiber.StatusBadGateway, CodeAuth, "mail provider authorization failed")
		case errors.Is(err, gmail.ErrQuota):
			logger.Warn("mail provider quota exhausted", zap.String("path", c.Path()), zap.Error(err))
			return fail(c, fiber.StatusTooManyRequests, CodeQuota, "mail provider quota exhausted")
		case errors.As(err, &fe):
			code := CodeServer
			switch {
			case fe.Code == fiber.StatusNotFound:
				code = CodeNotFound
			case fe.Code < fiber.StatusInternalServerError:
				code = CodeValidation
			}
			return fail(c, fe.Code, code, fe.Message)
		default:
			logger.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
			return fail(c, fiber.StatusInternalServerError, CodeServer, "internal server error")
		}
	}
}
