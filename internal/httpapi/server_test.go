package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/bpmatch/internal/gmail"
	"github.com/spigell/bpmatch/internal/harvest"
	"github.com/spigell/bpmatch/internal/match"
	"github.com/spigell/bpmatch/internal/service"
	"github.com/spigell/bpmatch/internal/store"
)

type stubBackend struct {
	listReq   service.ListMessagesRequest
	recordQ   service.RecordQuery
	recordK   store.Kind
	sendReq   service.SendRequest
	sendErr   error
	last      *harvest.Run
	listErr   error
	triggered int
}

func (s *stubBackend) TriggerHarvest(context.Context) service.TriggerResponse {
	s.triggered++
	return service.TriggerResponse{RunID: "run-1"}
}

func (s *stubBackend) LastHarvest() (harvest.Run, bool) {
	if s.last == nil {
		return harvest.Run{}, false
	}
	return *s.last, true
}

func (s *stubBackend) ListMessages(_ context.Context, req service.ListMessagesRequest) (service.ListMessagesResponse, error) {
	s.listReq = req
	if s.listErr != nil {
		return service.ListMessagesResponse{}, s.listErr
	}
	return service.ListMessagesResponse{Page: 2, PageSize: 20, HasNext: true, Estimate: 57}, nil
}

func (s *stubBackend) MatchJob(_ context.Context, req service.MatchRequest) (service.MatchResponse, error) {
	if req.JobID != "job-1" {
		return service.MatchResponse{}, store.ErrNotFound
	}
	return service.MatchResponse{
		Job:     store.Record{ID: "job-1"},
		Matches: []match.Result{{TechnicianID: "t1", JobID: "job-1", MatchedSkills: []string{"java"}, Score: 1}},
	}, nil
}

func (s *stubBackend) MatchAdHocCandidate(_ context.Context, req service.AdHocMatchRequest) (service.AdHocMatchResponse, error) {
	if strings.TrimSpace(req.Body) == "" {
		return service.AdHocMatchResponse{}, &service.ValidationError{Field: "body", Reason: "is required"}
	}
	return service.AdHocMatchResponse{Matches: []match.Result{}}, nil
}

func (s *stubBackend) SendReply(_ context.Context, req service.SendRequest) (service.SendResponse, error) {
	s.sendReq = req
	if s.sendErr != nil {
		return service.SendResponse{}, s.sendErr
	}
	return service.SendResponse{MessageID: "s1", ThreadID: req.ThreadID}, nil
}

func (s *stubBackend) ListSent(context.Context, int, int) (service.SentPage, error) {
	return service.SentPage{Page: 1, PageSize: 20}, nil
}

func (s *stubBackend) ListRecords(_ context.Context, kind store.Kind, q service.RecordQuery) (service.RecordPage, error) {
	s.recordK, s.recordQ = kind, q
	return service.RecordPage{Items: []store.Record{{ID: "p1"}}, Page: 1, PageSize: 20, Total: 1}, nil
}

func (s *stubBackend) GetRecord(_ context.Context, kind store.Kind, id string) (store.Record, error) {
	if kind == store.KindTechnician && id == "t1" {
		return store.Record{ID: id}, nil
	}
	return store.Record{}, store.ErrNotFound
}

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
}

func do(t *testing.T, srv *Server, method, target, body string) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s %s: %v", method, target, err)
	}
	return resp.StatusCode, env
}

func TestRoutes(t *testing.T) {
	finished := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	backend := &stubBackend{last: &harvest.Run{ID: "run-0", FinishedAt: finished}}
	srv := New(backend, nil)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		code   string
	}{
		{name: "trigger harvest", method: http.MethodPost, target: "/api/harvest", status: http.StatusAccepted, code: CodeOK},
		{name: "last harvest", method: http.MethodGet, target: "/api/harvest/last", status: http.StatusOK, code: CodeOK},
		{name: "messages", method: http.MethodGet, target: "/api/messages?keyword=java&page=2", status: http.StatusOK, code: CodeOK},
		{name: "messages bad date", method: http.MethodGet, target: "/api/messages?date=05/01/2024", status: http.StatusBadRequest, code: CodeValidation},
		{name: "job matches", method: http.MethodGet, target: "/api/jobs/job-1/matches", status: http.StatusOK, code: CodeOK},
		{name: "job matches missing", method: http.MethodGet, target: "/api/jobs/nope/matches", status: http.StatusNotFound, code: CodeNotFound},
		{name: "candidate match", method: http.MethodPost, target: "/api/candidates/match", body: `{"body":"Java 5年"}`, status: http.StatusOK, code: CodeOK},
		{name: "candidate match empty", method: http.MethodPost, target: "/api/candidates/match", body: `{"body":""}`, status: http.StatusBadRequest, code: CodeValidation},
		{name: "candidate match malformed", method: http.MethodPost, target: "/api/candidates/match", body: `{"body":`, status: http.StatusBadRequest, code: CodeValidation},
		{name: "send", method: http.MethodPost, target: "/api/mail/send", body: `{"to":["a@example.jp"],"subject":"hi","threadId":"th1"}`, status: http.StatusOK, code: CodeOK},
		{name: "sent log", method: http.MethodGet, target: "/api/mail/sent", status: http.StatusOK, code: CodeOK},
		{name: "projects", method: http.MethodGet, target: "/api/projects?country=0&skill=java&since=2024-05-01", status: http.StatusOK, code: CodeOK},
		{name: "projects bad country", method: http.MethodGet, target: "/api/projects?country=abc", status: http.StatusBadRequest, code: CodeValidation},
		{name: "technician", method: http.MethodGet, target: "/api/technicians/t1", status: http.StatusOK, code: CodeOK},
		{name: "technician missing", method: http.MethodGet, target: "/api/technicians/p1", status: http.StatusNotFound, code: CodeNotFound},
		{name: "unknown route", method: http.MethodGet, target: "/api/unknown", status: http.StatusNotFound, code: CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, srv, tt.method, tt.target, tt.body)
			if status != tt.status {
				t.Fatalf("expected status %d, got %d (%+v)", tt.status, status, env)
			}
			if env.Code != tt.code {
				t.Fatalf("expected code %s, got %s", tt.code, env.Code)
			}
			if env.Success != (tt.code == CodeOK) {
				t.Fatalf("unexpected success flag %v", env.Success)
			}
		})
	}

	if backend.triggered != 1 {
		t.Fatalf("expected one trigger, got %d", backend.triggered)
	}
	if backend.listReq.Keyword != "java" || backend.listReq.Page != 2 {
		t.Fatalf("unexpected list request %+v", backend.listReq)
	}
	if backend.recordK != store.KindProject || backend.recordQ.Country == nil || *backend.recordQ.Country != 0 {
		t.Fatalf("unexpected record query %+v", backend.recordQ)
	}
	if !backend.recordQ.Since.Equal(finished) || backend.recordQ.Skill != "java" {
		t.Fatalf("unexpected record filter %+v", backend.recordQ)
	}
	if backend.sendReq.ThreadID != "th1" || len(backend.sendReq.To) != 1 {
		t.Fatalf("unexpected send request %+v", backend.sendReq)
	}
}

func TestMessagesMeta(t *testing.T) {
	srv := New(&stubBackend{}, nil)

	_, env := do(t, srv, http.MethodGet, "/api/messages?start=2024-05-01&end=2024-05-07", "")
	if env.Meta["estimate"] != float64(57) || env.Meta["hasNext"] != true || env.Meta["page"] != float64(2) {
		t.Fatalf("unexpected meta %v", env.Meta)
	}
}

func TestLastHarvestBeforeFirstRun(t *testing.T) {
	srv := New(&stubBackend{}, nil)

	status, env := do(t, srv, http.MethodGet, "/api/harvest/last", "")
	if status != http.StatusNotFound || env.Code != CodeNotFound {
		t.Fatalf("unexpected response %d %+v", status, env)
	}
}

func TestProviderErrorsMapped(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "auth", err: &gmail.ProviderError{Op: "send", Kind: gmail.ErrAuth, Err: errors.New("401")}, status: http.StatusBadGateway, code: CodeAuth},
		{name: "quota", err: &gmail.ProviderError{Op: "send", Kind: gmail.ErrQuota, Err: errors.New("429")}, status: http.StatusTooManyRequests, code: CodeQuota},
		{name: "other", err: errors.New("boom"), status: http.StatusInternalServerError, code: CodeServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(&stubBackend{sendErr: tt.err}, nil)
			status, env := do(t, srv, http.MethodPost, "/api/mail/send", `{"to":["a@example.jp"],"subject":"hi"}`)
			if status != tt.status || env.Code != tt.code {
				t.Fatalf("expected %d/%s, got %d/%s", tt.status, tt.code, status, env.Code)
			}
		})
	}
}

func TestServerErrorIsLoggedNotLeaked(t *testing.T) {
	core, observed := observer.New(zapcore.ErrorLevel)
	srv := New(&stubBackend{listErr: errors.New("dsn=secret")}, zap.New(core))

	status, env := do(t, srv, http.MethodGet, "/api/messages", "")
	if status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", status)
	}
	if strings.Contains(env.Message, "secret") {
		t.Fatalf("internal error leaked: %q", env.Message)
	}
	if observed.FilterMessage("request failed").Len() != 1 {
		t.Fatalf("expected the error to be logged")
	}
}
