package classify

import (
	"context"
	"strconv"
	"strings"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/bpmatch/internal/ai"
	"github.com/spigell/bpmatch/internal/logger"
)

// Label is the classification of a message subject.
type Label int

const (
	JobOffer       Label = 0
	CandidateOffer Label = 1
	Other          Label = -1
)

func (l Label) String() string {
	switch l {
	case JobOffer:
		return "job_offer"
	case CandidateOffer:
		return "candidate_offer"
	default:
		return "other"
	}
}

var (
	DefaultJobKeywords       = []string{"急募案件", "エンド直", "代替"}
	DefaultCandidateKeywords = []string{"歳", "人材", "要員", "社員", "フリーランス"}
)

//go:embed prompt.md
var systemPrompt string

// Source tells whether a label came from the keyword table or from the model.
type Source string

const (
	SourceRule  Source = "rule"
	SourceModel Source = "model"
)

type Classifier struct {
	model     ai.Completer
	job       []string
	candidate []string
	logger    *zap.Logger
	maxLogLen int
}

type Options struct {
	JobKeywords       []string
	CandidateKeywords []string
	MaxLogLength      int
}

// New builds a classifier. Empty keyword lists fall back to the defaults.
func New(model ai.Completer, opts Options, log *zap.Logger) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}

	job := cleanKeywords(opts.JobKeywords)
	if len(job) == 0 {
		job = DefaultJobKeywords
	}
	candidate := cleanKeywords(opts.CandidateKeywords)
	if len(candidate) == 0 {
		candidate = DefaultCandidateKeywords
	}

	maxLogLen := opts.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = 200
	}

	provider, modelName := ai.Describe(model)

	return &Classifier{
		model:     model,
		job:       job,
		candidate: candidate,
		logger:    logger.WithCommonFields(log, provider, modelName),
		maxLogLen: maxLogLen,
	}
}

// Classify returns the label for subject.
func (c *Classifier) Classify(ctx context.Context, subject string) Label {
	label, _ := c.ClassifyWithSource(ctx, subject)
	return label
}

// ClassifyWithSource checks the job keywords, then the candidate keywords, and
// only then asks the model. Model failures and unexpected replies yield Other.
func (c *Classifier) ClassifyWithSource(ctx context.Context, subject string) (Label, Source) {
	if label, keyword, ok := c.MatchRules(subject); ok {
		c.logger.Debug("subject matched keyword rule",
			zap.String("keyword", keyword),
			zap.Stringer("label", label),
		)
		return label, SourceRule
	}

	if c.model == nil {
		return Other, SourceModel
	}

	raw, err := c.model.Complete(ctx, systemPrompt, subject)
	if err != nil {
		c.logger.Warn("model classification failed", zap.String("subject", logger.TruncateForLog(subject, c.maxLogLen)), zap.Error(err))
		return Other, SourceModel
	}

	label := ParseLabel(raw)
	c.logger.Debug("model classified subject",
		zap.String("subject", logger.TruncateForLog(subject, c.maxLogLen)),
		zap.String("response", logger.TruncateForLog(raw, c.maxLogLen)),
		zap.Stringer("label", label),
	)

	return label, SourceModel
}

// MatchRules applies the keyword table only.
func (c *Classifier) MatchRules(subject string) (Label, string, bool) {
	for _, kw := range c.job {
		if strings.Contains(subject, kw) {
			return JobOffer, kw, true
		}
	}
	for _, kw := range c.candidate {
		if strings.Contains(subject, kw) {
			return CandidateOffer, kw, true
		}
	}
	return Other, "", false
}

// ParseLabel converts a model reply into a label. Anything but 0, 1 or -1 is Other.
func ParseLabel(raw string) Label {
	value, err := strconv.Atoi(strings.Trim(strings.TrimSpace(raw), "`\"'"))
	if err != nil {
		return Other
	}

	switch Label(value) {
	case JobOffer, CandidateOffer:
		return Label(value)
	default:
		return Other
	}
}

func cleanKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, kw := range in {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
