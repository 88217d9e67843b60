package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), DriverSQLite, ":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func at(day, hour int) *time.Time {
	t := time.Date(2024, 5, day, hour, 0, 0, 0, time.UTC)
	return &t
}

func TestSaveAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := Record{
		ID:         "m1",
		Title:      "【急募案件】Java",
		Address:    "sales@example.jp",
		Body:       "Java/AWS 60万",
		ReceivedAt: at(1, 9),
		Country:    1,
		Skills:     SkillList{"java", "aws"},
		Price:      60,
	}

	if err := s.SaveProject(ctx, rec); err != nil {
		t.Fatalf("SaveProject: %v", err)
	}

	got, err := s.GetProject(ctx, "m1")
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Title != rec.Title || got.Price != 60 || !reflect.DeepEqual(got.Skills, rec.Skills) {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.ReceivedAt == nil || !got.ReceivedAt.Equal(*rec.ReceivedAt) {
		t.Fatalf("unexpected received_at: %v", got.ReceivedAt)
	}

	if _, err := s.GetTechnician(ctx, "m1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveIsIdempotentPerMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveTechnician(ctx, Record{ID: "m1", Skills: SkillList{"go"}}); err != nil {
		t.Fatalf("first save: %v", err)
	}

	// the ledger rejects the id regardless of the target table
	if err := s.SaveProject(ctx, Record{ID: "m1"}); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
	if _, err := s.GetProject(ctx, "m1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("duplicate must not leave a partial record, got %v", err)
	}

	seen, err := s.Seen(ctx, []string{"m1", "m2"})
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if _, ok := seen["m1"]; !ok || len(seen) != 1 {
		t.Fatalf("unexpected seen set: %v", seen)
	}
}

func TestSeenEmptyAndMarkSeen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seen, err := s.Seen(ctx, nil)
	if err != nil || len(seen) != 0 {
		t.Fatalf("Seen(nil) = %v, %v", seen, err)
	}

	if err := s.MarkSeen(ctx, "x", nil); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	if err := s.MarkSeen(ctx, "x", at(2, 0)); err != nil {
		t.Fatalf("MarkSeen twice: %v", err)
	}

	seen, err = s.Seen(ctx, []string{"x", "y", "z"})
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("expected one seen id, got %v", seen)
	}
}

func TestListFilterAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records := []Record{
		{ID: "a", ReceivedAt: at(1, 0), Country: 1, Skills: SkillList{"java", "aws"}},
		{ID: "b", ReceivedAt: at(3, 0), Country: 1, Skills: SkillList{"javascript"}},
		{ID: "c", ReceivedAt: at(2, 0), Country: 0, Skills: SkillList{"java"}},
		{ID: "d", Country: 1, Skills: SkillList{"go"}},
	}
	for _, rec := range records {
		if err := s.SaveTechnician(ctx, rec); err != nil {
			t.Fatalf("save %s: %v", rec.ID, err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
		total  int
	}{
		{name: "all newest first", filter: Filter{}, want: []string{"b", "c", "a", "d"}, total: 4},
		{name: "skill is exact", filter: Filter{Skill: "JAVA"}, want: []string{"c", "a"}, total: 2},
		{name: "country", filter: Filter{Country: intPtr(0)}, want: []string{"c"}, total: 1},
		{name: "since", filter: Filter{Since: *at(2, 0)}, want: []string{"b", "c"}, total: 2},
		{name: "second page", filter: Filter{Page: 2, PageSize: 3}, want: []string{"d"}, total: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := s.ListTechnicians(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListTechnicians: %v", err)
			}
			if total != tt.total {
				t.Fatalf("total = %d, want %d", total, tt.total)
			}
			var ids []string
			for _, rec := range got {
				ids = append(ids, rec.ID)
			}
			if !reflect.DeepEqual(ids, tt.want) {
				t.Fatalf("ids = %v, want %v", ids, tt.want)
			}
		})
	}

	partition, err := s.Technicians(ctx, 1)
	if err != nil {
		t.Fatalf("Technicians: %v", err)
	}
	if len(partition) != 3 || partition[0].ID != "b" {
		t.Fatalf("unexpected partition: %+v", partition)
	}
}

func TestSentLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := SentMail{MessageID: "s1", SentAt: *at(1, 0), To: "a@example.jp", Subject: "old", Attachments: NameList{"cv.pdf"}}
	second := SentMail{MessageID: "s2", SentAt: *at(2, 0), To: "b@example.jp", Subject: "new", MailType: "reply"}

	for _, m := range []SentMail{first, second} {
		if err := s.LogSent(ctx, m); err != nil {
			t.Fatalf("LogSent: %v", err)
		}
	}

	first.Subject = "updated"
	if err := s.LogSent(ctx, first); err != nil {
		t.Fatalf("LogSent upsert: %v", err)
	}

	items, total, err := s.ListSent(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListSent: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("unexpected sent log size: %d/%d", total, len(items))
	}
	if items[0].MessageID != "s2" || items[1].Subject != "updated" {
		t.Fatalf("unexpected order or content: %+v", items)
	}
	if !reflect.DeepEqual(items[1].Attachments, NameList{"cv.pdf"}) || len(items[0].Attachments) != 0 {
		t.Fatalf("unexpected attachments: %+v / %+v", items[1].Attachments, items[0].Attachments)
	}
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		page, size         int
		wantPage, wantSize int
	}{
		{0, 0, 1, 20},
		{3, 50, 3, 50},
		{1, 500, 1, 100},
	}

	for _, tt := range tests {
		page, size := NormalizePage(tt.page, tt.size)
		if page != tt.wantPage || size != tt.wantSize {
			t.Fatalf("NormalizePage(%d, %d) = %d, %d", tt.page, tt.size, page, size)
		}
	}
}

func intPtr(v int) *int { return &v }
