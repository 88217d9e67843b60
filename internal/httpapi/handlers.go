package httpapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spigell/bpmatch/internal/service"
	"github.com/spigell/bpmatch/internal/store"
)

const dateLayout = "2006-01-02"

func (s *Server) triggerHarvest(c *fiber.Ctx) error {
	return ok(c, fiber.StatusAccepted, s.backend.TriggerHarvest(c.UserContext()), nil)
}

func (s *Server) lastHarvest(c *fiber.Ctx) error {
	run, found := s.backend.LastHarvest()
	if !found {
		return fiber.NewError(fiber.StatusNotFound, "no harvest has run yet")
	}
	return ok(c, fiber.StatusOK, run, nil)
}

func (s *Server) listMessages(c *fiber.Ctx) error {
	req := service.ListMessagesRequest{
		Keyword:  c.Query("keyword"),
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("pageSize", 0),
	}

	var err error
	if req.Date, err = queryDate(c, "date"); err != nil {
		return err
	}
	if req.Start, err = queryDate(c, "start"); err != nil {
		return err
	}
	if req.End, err = queryDate(c, "end"); err != nil {
		return err
	}

	resp, err := s.backend.ListMessages(c.UserContext(), req)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, resp.Items, pageMeta{
		Page:     resp.Page,
		PageSize: resp.PageSize,
		HasNext:  resp.HasNext,
		Estimate: resp.Estimate,
	})
}

func (s *Server) matchJob(c *fiber.Ctx) error {
	resp, err := s.backend.MatchJob(c.UserContext(), service.MatchRequest{JobID: c.Params("id")})
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, resp, nil)
}

func (s *Server) matchCandidate(c *fiber.Ctx) error {
	var req service.AdHocMatchRequest
	if err := c.BodyParser(&req); err != nil {
		return &service.ValidationError{Field: "body", Reason: "invalid request payload"}
	}

	resp, err := s.backend.MatchAdHocCandidate(c.UserContext(), req)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, resp, nil)
}

func (s *Server) sendMail(c *fiber.Ctx) error {
	var req service.SendRequest
	if err := c.BodyParser(&req); err != nil {
		return &service.ValidationError{Field: "body", Reason: "invalid request payload"}
	}

	resp, err := s.backend.SendReply(c.UserContext(), req)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, resp, nil)
}

func (s *Server) listSent(c *fiber.Ctx) error {
	resp, err := s.backend.ListSent(c.UserContext(), c.QueryInt("page", 1), c.QueryInt("pageSize", 0))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, resp.Items, pageMeta{
		Page:     resp.Page,
		PageSize: resp.PageSize,
		HasNext:  resp.HasNext,
		Total:    resp.Total,
	})
}

func (s *Server) listRecords(kind store.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := service.RecordQuery{
			Skill:    strings.TrimSpace(c.Query("skill")),
			Page:     c.QueryInt("page", 1),
			PageSize: c.QueryInt("pageSize", 0),
		}

		if raw := c.Query("country"); raw != "" {
			country, err := strconv.Atoi(raw)
			if err != nil {
				return &service.ValidationError{Field: "country", Reason: "must be 0 or 1"}
			}
			q.Country = &country
		}

		var err error
		if q.Since, err = queryDate(c, "since"); err != nil {
			return err
		}

		resp, err := s.backend.ListRecords(c.UserContext(), kind, q)
		if err != nil {
			return err
		}
		return ok(c, fiber.StatusOK, resp.Items, pageMeta{
			Page:     resp.Page,
			PageSize: resp.PageSize,
			HasNext:  resp.HasNext,
			Total:    resp.Total,
		})
	}
}

func (s *Server) getRecord(kind store.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rec, err := s.backend.GetRecord(c.UserContext(), kind, c.Params("id"))
		if err != nil {
			return err
		}
		return ok(c, fiber.StatusOK, rec, nil)
	}
}

func queryDate(c *fiber.Ctx, key string) (time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, &service.ValidationError{Field: key, Reason: "expected YYYY-MM-DD"}
	}
	return t, nil
}
