package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spigell/bpmatch/internal/harvest"
	"github.com/spigell/bpmatch/internal/store"
)

func TestAuthCode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "bare code", input: " 4/0AbCd ", want: "4/0AbCd"},
		{name: "redirect url", input: "http://localhost/?state=s1&code=4%2F0AbCd&scope=x", want: "4/0AbCd"},
		{name: "state mismatch", input: "http://localhost/?state=other&code=abc", wantErr: true},
		{name: "empty code", input: "http://localhost/?state=s1&code=", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := authCode(tt.input, "s1")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got code %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	got, err := parseDate("2024-05-01")
	if err != nil || !got.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected result %v, %v", got, err)
	}

	if got, err := parseDate(""); err != nil || !got.IsZero() {
		t.Fatalf("empty input should give zero time, got %v, %v", got, err)
	}

	if _, err := parseDate("01/05/2024"); err == nil {
		t.Fatalf("expected error for wrong layout")
	}
}

func TestSummarizeDropsBodies(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	run := &harvest.Run{
		ID:          "r1",
		State:       harvest.StateIdle,
		StartedAt:   start,
		FinishedAt:  start.Add(90 * time.Second),
		WindowStart: start,
		WindowEnd:   start.AddDate(0, 0, 14),
		Projects:    []store.Record{{ID: "p1", Body: "long body"}},
	}

	s := summarize(run)
	if s.WindowStart != "2024-05-01" || s.WindowEnd != "2024-05-15" {
		t.Fatalf("unexpected window %s..%s", s.WindowStart, s.WindowEnd)
	}
	if len(s.Projects) != 1 || s.Projects[0] != "p1" {
		t.Fatalf("unexpected projects %v", s.Projects)
	}
	if len(s.Technicians) != 0 {
		t.Fatalf("expected no technicians, got %v", s.Technicians)
	}
	if s.Duration != "1m30s" {
		t.Fatalf("unexpected duration %q", s.Duration)
	}
}

func TestHarvestLoggerWritesDailyFile(t *testing.T) {
	dir := t.TempDir()

	log, closeLog, err := newHarvestLogger(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	log.Named("harvest").Info("harvest finished")
	if err := closeLog(); err != nil {
		t.Fatalf("closing log: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "harvest_*.log"))
	if err != nil || len(files) != 1 {
		t.Fatalf("expected one daily file, got %v, %v", files, err)
	}

	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), "harvest finished") {
		t.Fatalf("expected entry in daily file, got %q", data)
	}
}
