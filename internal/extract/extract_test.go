package extract

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/spigell/bpmatch/internal/classify"
)

type stubModel struct {
	reply  string
	err    error
	system string
	calls  int
}

func (s *stubModel) Complete(_ context.Context, system, _ string) (string, error) {
	s.calls++
	s.system = system
	return s.reply, s.err
}

func TestNormalizeSkills(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{name: "dedup lower", in: []any{"Java", "AWS", "java"}, want: []string{"java", "aws"}},
		{name: "trim and drop empty", in: []any{" Go ", "", nil, "GO"}, want: []string{"go"}},
		{name: "numbers become strings", in: []any{"C#", 365.0}, want: []string{"c#", "365"}},
		{name: "comma entries split", in: []any{"Node,JS", "js", " , "}, want: []string{"node", "js"}},
		{name: "string is not a list", in: "java, aws", want: []string{}},
		{name: "missing", in: nil, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeSkills(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("NormalizeSkills(%v) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestScanPrice(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		want  int
		found bool
	}{
		{name: "ten thousand idiom", body: "【単価】60万円（精算あり）", want: 60, found: true},
		{name: "idiom without yen", body: "スキル見合い 〜60万", want: 60, found: true},
		{name: "absolute yen", body: "報酬：600,000円/月", want: 600000, found: true},
		{name: "bare figure after keyword", body: "単価 600000 (税別)", want: 600000, found: true},
		{name: "full width digits", body: "月額６５万円", want: 65, found: true},
		{name: "range keeps first numeral", body: "単価：55~60万", want: 55, found: true},
		{name: "first figure wins", body: "時給3000円、月額50万", want: 3000, found: true},
		{name: "no reward language", body: "Java開発 2名募集 フルリモート", want: 0, found: false},
		{name: "counter after keyword", body: "単価：スキル見合い（面談1回）", want: 0, found: false},
		{name: "capital in signature", body: "要員のご紹介です。\n--\n株式会社サンプル 資本金 1,000万円", want: 0, found: false},
		{name: "keyword figure beats earlier amount", body: "交通費：上限10,000円\n単価：60万", want: 60, found: true},
		{name: "headcount before bare figure", body: "募集2名 〜70万円", want: 70, found: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ScanPrice(tt.body)
			if got != tt.want || found != tt.found {
				t.Fatalf("ScanPrice(%q) = %d/%v, want %d/%v", tt.body, got, found, tt.want, tt.found)
			}
		})
	}
}

func TestExtractPriceNormalization(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		reply string
		want  int
	}{
		{name: "idiom", body: "単価：60万円", reply: `{"country":1,"skills":[],"price":600000}`, want: 60},
		{name: "absolute", body: "単価：600000円", reply: `{"country":1,"skills":[],"price":60}`, want: 600000},
		{name: "none", body: "よろしくお願いします", reply: `{"country":1,"skills":[],"price":0}`, want: 0},
		{name: "model price used when body has none", body: "六十万", reply: `{"price":"60"}`, want: 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(&stubModel{reply: tt.reply}, nil, 0)
			got, err := e.Extract(context.Background(), classify.JobOffer, tt.body)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if got.Price != tt.want {
				t.Fatalf("price = %d, want %d", got.Price, tt.want)
			}
		})
	}
}

func TestExtractUsesLabelPrompt(t *testing.T) {
	model := &stubModel{reply: "```json\n{\"country\": 0, \"skills\": [\"Java\", \"AWS\", \"java\"], \"price\": 70}\n```"}
	e := New(model, nil, 0)

	got, err := e.Extract(context.Background(), classify.CandidateOffer, "日本籍 Java/AWS 70万")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	want := Detail{Country: 0, Skills: []string{"java", "aws"}, Price: 70}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if !strings.Contains(model.system, "candidate offer") {
		t.Fatalf("expected candidate prompt, got %q", model.system)
	}
}

func TestExtractDefaults(t *testing.T) {
	tests := []struct {
		name  string
		model *stubModel
		label classify.Label
		stage string
	}{
		{name: "not json", model: &stubModel{reply: "申し訳ありません"}, label: classify.JobOffer, stage: "parse"},
		{name: "model error", model: &stubModel{err: errors.New("timeout")}, label: classify.JobOffer, stage: "model"},
		{name: "other label", model: &stubModel{reply: "{}"}, label: classify.Other, stage: "prompt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(tt.model, nil, 0).Extract(context.Background(), tt.label, "単価60万")

			var extractionErr *ExtractionError
			if !errors.As(err, &extractionErr) {
				t.Fatalf("expected ExtractionError, got %v", err)
			}
			if extractionErr.Stage != tt.stage {
				t.Fatalf("stage = %q, want %q", extractionErr.Stage, tt.stage)
			}
			if !reflect.DeepEqual(got, Default()) {
				t.Fatalf("expected defaults, got %+v", got)
			}
		})
	}
}

func TestParseResponseCoercion(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		country int
	}{
		{name: "string zero", raw: `{"country":"0"}`, country: 0},
		{name: "missing", raw: `{"skills":["go"]}`, country: 1},
		{name: "unparseable", raw: `{"country":"日本籍"}`, country: 1},
		{name: "out of range", raw: `{"country":7}`, country: 1},
		{name: "wrapped in prose", raw: `Here it is: {"country":0} thanks`, country: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResponse(tt.raw, "")
			if err != nil {
				t.Fatalf("ParseResponse: %v", err)
			}
			if got.Country != tt.country {
				t.Fatalf("country = %d, want %d", got.Country, tt.country)
			}
			if got.Skills == nil {
				t.Fatalf("skills must never be nil")
			}
		})
	}
}
