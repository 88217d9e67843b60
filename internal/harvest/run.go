package harvest

import (
	"time"

	"github.com/spigell/bpmatch/internal/classify"
	"github.com/spigell/bpmatch/internal/store"
)

// State is the orchestrator stage a run is in.
type State string

const (
	StateIdle        State = "idle"
	StatePaging      State = "paging"
	StateFiltering   State = "filtering"
	StateClassifying State = "classifying"
	StateExtracting  State = "extracting"
	StatePersisting  State = "persisting"
	StateFailed      State = "failed"
)

// PersistFailure records a message that could not be stored.
type PersistFailure struct {
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
}

// Run is the result of one harvest. Each run owns its result lists, so
// concurrent runs never share state.
type Run struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	State       State     `json:"state"`
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`

	Pages      int `json:"pages"`
	Listed     int `json:"listed"`
	Duplicates int `json:"duplicates"`
	Fetched    int `json:"fetched"`

	JobOffers       int `json:"jobOffers"`
	CandidateOffers int `json:"candidateOffers"`
	Others          int `json:"others"`
	Defaulted       int `json:"defaulted"`

	Projects        []store.Record   `json:"projects"`
	Technicians     []store.Record   `json:"technicians"`
	PersistFailures []PersistFailure `json:"persistFailures"`

	Error string `json:"error,omitempty"`
}

func (r *Run) count(label classify.Label) {
	switch label {
	case classify.JobOffer:
		r.JobOffers++
	case classify.CandidateOffer:
		r.CandidateOffers++
	default:
		r.Others++
	}
}

// Duration is the wall time of a finished run.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Window returns the trailing window of days ending today, both ends inclusive.
func Window(now time.Time, days int) (time.Time, time.Time) {
	now = now.UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if days < 0 {
		days = 0
	}
	return end.AddDate(0, 0, -days), end
}
