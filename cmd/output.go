package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/spigell/bpmatch/internal/harvest"
	"github.com/spigell/bpmatch/internal/store"
)

const dateLayout = "2006-01-02"

func printJSON(w io.Writer, v any) error {
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(pretty))
	return err
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return t, nil
}

type runSummary struct {
	ID              string                   `json:"id"`
	State           harvest.State            `json:"state"`
	WindowStart     string                   `json:"windowStart"`
	WindowEnd       string                   `json:"windowEnd"`
	Duration        string                   `json:"duration"`
	Pages           int                      `json:"pages"`
	Listed          int                      `json:"listed"`
	Duplicates      int                      `json:"duplicates"`
	Fetched         int                      `json:"fetched"`
	JobOffers       int                      `json:"jobOffers"`
	CandidateOffers int                      `json:"candidateOffers"`
	Others          int                      `json:"others"`
	Defaulted       int                      `json:"defaulted"`
	Projects        []string                 `json:"projects"`
	Technicians     []string                 `json:"technicians"`
	PersistFailures []harvest.PersistFailure `json:"persistFailures,omitempty"`
	Error           string                   `json:"error,omitempty"`
}

// summarize drops record bodies so the printed summary stays readable.
func summarize(run *harvest.Run) runSummary {
	return runSummary{
		ID:              run.ID,
		State:           run.State,
		WindowStart:     run.WindowStart.Format(dateLayout),
		WindowEnd:       run.WindowEnd.Format(dateLayout),
		Duration:        run.Duration().String(),
		Pages:           run.Pages,
		Listed:          run.Listed,
		Duplicates:      run.Duplicates,
		Fetched:         run.Fetched,
		JobOffers:       run.JobOffers,
		CandidateOffers: run.CandidateOffers,
		Others:          run.Others,
		Defaulted:       run.Defaulted,
		Projects:        recordIDs(run.Projects),
		Technicians:     recordIDs(run.Technicians),
		PersistFailures: run.PersistFailures,
		Error:           run.Error,
	}
}

func recordIDs(records []store.Record) []string {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	return ids
}
