package match

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spigell/bpmatch/internal/classify"
	"github.com/spigell/bpmatch/internal/extract"
	"github.com/spigell/bpmatch/internal/store"
)

// Result pairs a technician with a job by their shared skills. Score is the
// number of shared skills.
type Result struct {
	TechnicianID  string       `json:"technicianId"`
	JobID         string       `json:"jobId"`
	MatchedSkills []string     `json:"matchedSkills"`
	Score         int          `json:"score"`
	Record        store.Record `json:"record"`
}

// Rank scores every candidate sharing the job's country code. Candidates with
// no shared skill are left out; the rest are sorted by score descending and
// keep their input order on ties.
func Rank(job store.Record, candidates []store.Record, jobIsTarget bool) []Result {
	jobSkills := make(map[string]struct{}, len(job.Skills))
	for _, skill := range job.Skills {
		jobSkills[strings.ToLower(strings.TrimSpace(skill))] = struct{}{}
	}

	results := []Result{}
	for _, cand := range candidates {
		if cand.Country != job.Country {
			continue
		}

		matched := intersect(jobSkills, cand.Skills)
		if len(matched) == 0 {
			continue
		}

		res := Result{MatchedSkills: matched, Score: len(matched), Record: cand}
		if jobIsTarget {
			res.JobID, res.TechnicianID = job.ID, cand.ID
		} else {
			res.JobID, res.TechnicianID = cand.ID, job.ID
		}
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results
}

// Job matches technicians against a job record.
func Job(job store.Record, technicians []store.Record) []Result {
	return Rank(job, technicians, true)
}

// intersect keeps the candidate's order and drops repeated skills.
func intersect(want map[string]struct{}, skills []string) []string {
	matched := []string{}
	seen := make(map[string]struct{}, len(skills))
	for _, skill := range skills {
		skill = strings.ToLower(strings.TrimSpace(skill))
		if _, ok := want[skill]; !ok {
			continue
		}
		if _, dup := seen[skill]; dup {
			continue
		}
		seen[skill] = struct{}{}
		matched = append(matched, skill)
	}
	return matched
}

// Records is the part of the record store the engine reads.
type Records interface {
	GetProject(ctx context.Context, id string) (store.Record, error)
	Technicians(ctx context.Context, country int) ([]store.Record, error)
	Projects(ctx context.Context, country int) ([]store.Record, error)
}

// Extractor derives details from an unpersisted body.
type Extractor interface {
	Extract(ctx context.Context, label classify.Label, body string) (extract.Detail, error)
}

type Engine struct {
	records   Records
	extractor Extractor
}

func NewEngine(records Records, extractor Extractor) *Engine {
	return &Engine{records: records, extractor: extractor}
}

// MatchJob loads a project record and ranks the technicians in its partition.
func (e *Engine) MatchJob(ctx context.Context, jobID string) (store.Record, []Result, error) {
	job, err := e.records.GetProject(ctx, jobID)
	if err != nil {
		return store.Record{}, nil, err
	}

	technicians, err := e.records.Technicians(ctx, job.Country)
	if err != nil {
		return store.Record{}, nil, fmt.Errorf("load technicians: %w", err)
	}

	return job, Job(job, technicians), nil
}

// AdHoc is the outcome of matching a body that has not been persisted.
type AdHoc struct {
	Detail extract.Detail
	// Defaulted is set when extraction fell back to default values.
	Defaulted bool
	Matches   []Result
}

// MatchCandidate extracts the candidate details from body and ranks the
// projects in the same partition.
func (e *Engine) MatchCandidate(ctx context.Context, body string) (AdHoc, error) {
	detail, extractErr := e.extractor.Extract(ctx, classify.CandidateOffer, body)

	candidate := store.Record{
		Body:    body,
		Country: detail.Country,
		Skills:  store.SkillList(detail.Skills),
		Price:   detail.Price,
	}

	projects, err := e.records.Projects(ctx, candidate.Country)
	if err != nil {
		return AdHoc{}, fmt.Errorf("load projects: %w", err)
	}

	return AdHoc{
		Detail:    detail,
		Defaulted: extractErr != nil,
		Matches:   Rank(candidate, projects, false),
	}, nil
}
