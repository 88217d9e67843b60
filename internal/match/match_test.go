package match

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/spigell/bpmatch/internal/classify"
	"github.com/spigell/bpmatch/internal/extract"
	"github.com/spigell/bpmatch/internal/store"
)

func TestJobPartitionAndScore(t *testing.T) {
	job := store.Record{ID: "job", Country: 1, Skills: store.SkillList{"java", "aws"}}
	candidates := []store.Record{
		{ID: "A", Country: 1, Skills: store.SkillList{"java", "aws", "docker"}},
		{ID: "B", Country: 1, Skills: store.SkillList{"python"}},
		{ID: "C", Country: 0, Skills: store.SkillList{"java"}},
	}

	got := Job(job, candidates)
	if len(got) != 1 {
		t.Fatalf("expected exactly one match, got %+v", got)
	}
	if got[0].TechnicianID != "A" || got[0].JobID != "job" || got[0].Score != 2 {
		t.Fatalf("unexpected match: %+v", got[0])
	}
	if !reflect.DeepEqual(got[0].MatchedSkills, []string{"java", "aws"}) {
		t.Fatalf("unexpected matched skills: %v", got[0].MatchedSkills)
	}
}

func TestJobOrderingIsStable(t *testing.T) {
	job := store.Record{ID: "job", Country: 1, Skills: store.SkillList{"Go", "k8s", "aws"}}
	candidates := []store.Record{
		{ID: "one", Country: 1, Skills: store.SkillList{"go"}},
		{ID: "three", Country: 1, Skills: store.SkillList{"GO", "AWS", "k8s"}},
		{ID: "first-tie", Country: 1, Skills: store.SkillList{"aws", "go"}},
		{ID: "second-tie", Country: 1, Skills: store.SkillList{"k8s", "go", "go"}},
	}

	got := Job(job, candidates)

	var ids []string
	for _, r := range got {
		ids = append(ids, r.TechnicianID)
	}
	want := []string{"three", "first-tie", "second-tie", "one"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("order = %v, want %v", ids, want)
	}
	if got[2].Score != 2 {
		t.Fatalf("duplicate skills must count once, got %d", got[2].Score)
	}
}

type fakeRecords struct {
	projects    map[string]store.Record
	technicians []store.Record
	country     int
}

func (f *fakeRecords) GetProject(_ context.Context, id string) (store.Record, error) {
	rec, ok := f.projects[id]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	return rec, nil
}

func (f *fakeRecords) Technicians(_ context.Context, country int) ([]store.Record, error) {
	f.country = country
	return f.technicians, nil
}

func (f *fakeRecords) Projects(_ context.Context, country int) ([]store.Record, error) {
	f.country = country
	var out []store.Record
	for _, p := range f.projects {
		out = append(out, p)
	}
	return out, nil
}

type fakeExtractor struct {
	detail extract.Detail
	err    error
	label  classify.Label
}

func (f *fakeExtractor) Extract(_ context.Context, label classify.Label, _ string) (extract.Detail, error) {
	f.label = label
	return f.detail, f.err
}

func TestEngineMatchJob(t *testing.T) {
	records := &fakeRecords{
		projects:    map[string]store.Record{"p1": {ID: "p1", Country: 0, Skills: store.SkillList{"sap"}}},
		technicians: []store.Record{{ID: "t1", Country: 0, Skills: store.SkillList{"SAP"}}},
	}
	engine := NewEngine(records, &fakeExtractor{})

	job, results, err := engine.MatchJob(context.Background(), "p1")
	if err != nil {
		t.Fatalf("MatchJob: %v", err)
	}
	if job.ID != "p1" || records.country != 0 || len(results) != 1 || results[0].TechnicianID != "t1" {
		t.Fatalf("unexpected result: %+v %+v", job, results)
	}

	if _, _, err := engine.MatchJob(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEngineMatchCandidate(t *testing.T) {
	records := &fakeRecords{projects: map[string]store.Record{
		"p1": {ID: "p1", Country: 1, Skills: store.SkillList{"java", "spring"}},
	}}
	extractor := &fakeExtractor{detail: extract.Detail{Country: 1, Skills: []string{"java"}, Price: 55}}
	engine := NewEngine(records, extractor)

	got, err := engine.MatchCandidate(context.Background(), "Java 5年 55万")
	if err != nil {
		t.Fatalf("MatchCandidate: %v", err)
	}
	if extractor.label != classify.CandidateOffer {
		t.Fatalf("expected candidate prompt, got %v", extractor.label)
	}
	if got.Defaulted || got.Detail.Price != 55 || len(got.Matches) != 1 || got.Matches[0].JobID != "p1" {
		t.Fatalf("unexpected ad hoc result: %+v", got)
	}

	extractor.err = &extract.ExtractionError{Stage: "parse", Err: errors.New("bad json")}
	extractor.detail = extract.Default()
	got, err = engine.MatchCandidate(context.Background(), "???")
	if err != nil {
		t.Fatalf("MatchCandidate: %v", err)
	}
	if !got.Defaulted || len(got.Matches) != 0 {
		t.Fatalf("expected defaulted result without matches: %+v", got)
	}
}
