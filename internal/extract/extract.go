package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	_ "embed"

	json "github.com/goccy/go-json"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/bpmatch/internal/ai"
	"github.com/spigell/bpmatch/internal/classify"
	"github.com/spigell/bpmatch/internal/logger"
)

const (
	CountryRestricted   = 0
	CountryUnrestricted = 1
)

var (
	//go:embed prompt_job.md
	jobPrompt string
	//go:embed prompt_candidate.md
	candidatePrompt string

	ErrUnsupportedLabel = errors.New("label has no extraction prompt")
)

// Detail is the structured information derived from a message body.
type Detail struct {
	Country int      `json:"country"`
	Skills  []string `json:"skills"`
	Price   int      `json:"price"`
}

// Default is the detail used when nothing could be extracted.
func Default() Detail {
	return Detail{Country: CountryUnrestricted, Skills: []string{}, Price: 0}
}

// ExtractionError reports that the returned Detail holds defaults because the
// model could not be called or its reply could not be understood.
type ExtractionError struct {
	Label classify.Label
	Stage string
	Raw   string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %s: %v", e.Label, e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

type Extractor struct {
	model     ai.Completer
	logger    *zap.Logger
	maxLogLen int
}

func New(model ai.Completer, log *zap.Logger, maxLogLength int) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	if maxLogLength <= 0 {
		maxLogLength = 200
	}

	provider, modelName := ai.Describe(model)

	return &Extractor{
		model:     model,
		logger:    logger.WithCommonFields(log, provider, modelName),
		maxLogLen: maxLogLength,
	}
}

// Extract runs the label-specific prompt over body. On any failure it returns
// Default() together with an *ExtractionError, so callers may carry on.
func (e *Extractor) Extract(ctx context.Context, label classify.Label, body string) (Detail, error) {
	prompt, ok := promptFor(label)
	if !ok {
		return Default(), &ExtractionError{Label: label, Stage: "prompt", Err: ErrUnsupportedLabel}
	}

	if e.model == nil {
		return Default(), &ExtractionError{Label: label, Stage: "model", Err: errors.New("no model configured")}
	}

	raw, err := e.model.Complete(ctx, prompt, body)
	if err != nil {
		return Default(), &ExtractionError{Label: label, Stage: "model", Err: err}
	}

	e.logger.Debug("extraction response",
		zap.Stringer("label", label),
		zap.String("response_preview", logger.TruncateForLog(raw, e.maxLogLen)),
	)

	detail, err := ParseResponse(raw, body)
	if err != nil {
		return Default(), &ExtractionError{Label: label, Stage: "parse", Raw: raw, Err: err}
	}

	return detail, nil
}

func promptFor(label classify.Label) (string, bool) {
	switch label {
	case classify.JobOffer:
		return jobPrompt, true
	case classify.CandidateOffer:
		return candidatePrompt, true
	default:
		return "", false
	}
}

// ParseResponse decodes the model reply and normalizes every field. The price
// found in body by ScanPrice takes precedence over the model's figure.
func ParseResponse(raw, body string) (Detail, error) {
	var data map[string]any
	if err := decodeObject(raw, &data); err != nil {
		return Detail{}, err
	}

	price, found := ScanPrice(body)
	if !found {
		price = coercePrice(data["price"])
	}

	return Detail{
		Country: coerceCountry(data["country"]),
		Skills:  NormalizeSkills(data["skills"]),
		Price:   price,
	}, nil
}

func decodeObject(raw string, target *map[string]any) error {
	cleaned := extractJSON(raw)
	err := json.Unmarshal([]byte(cleaned), target)
	if err == nil && *target != nil {
		return nil
	}

	// replies sometimes wrap the object in prose
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if retry := json.Unmarshal([]byte(cleaned[start:end+1]), target); retry == nil && *target != nil {
			return nil
		}
	}

	if err == nil {
		err = errors.New("response is not a json object")
	}
	return fmt.Errorf("parse model response: %w", err)
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```JSON")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceCountry(v any) int {
	if v == nil {
		return CountryUnrestricted
	}

	var code int
	if err := mapstructure.WeakDecode(v, &code); err != nil {
		return CountryUnrestricted
	}
	if code == CountryRestricted {
		return CountryRestricted
	}
	return CountryUnrestricted
}

func coercePrice(v any) int {
	if v == nil {
		return 0
	}

	var price float64
	if err := mapstructure.WeakDecode(v, &price); err != nil || price < 0 {
		return 0
	}
	return int(price)
}

// NormalizeSkills lower-cases and trims every entry and drops duplicates,
// keeping the first occurrence. Entries containing commas are split, since the
// store keeps skills comma-joined. Anything but a list yields an empty slice.
func NormalizeSkills(v any) []string {
	out := []string{}

	var items []any
	switch val := v.(type) {
	case []any:
		items = val
	case []string:
		for _, s := range val {
			items = append(items, s)
		}
	default:
		return out
	}

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		var s string
		if err := mapstructure.WeakDecode(item, &s); err != nil {
			continue
		}
		for _, part := range strings.Split(s, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			if _, dup := seen[part]; dup {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}

	return out
}
