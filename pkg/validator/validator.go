// Package validator runs the independent second-pass review of a generated
// artifact. It is best-effort: every path returns a Verdict.
package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"offload/pkg/ollama"
	"offload/pkg/prompt"
	"offload/pkg/protocol"
)

// Sampling options for the audit call.
const (
	Temperature = 0.1
	NumPredict  = 2048
)

// ErrValidationUnparseable means the reply held no JSON verdict.
var ErrValidationUnparseable = errors.New("validation response unparseable")

// Generator is the subset of the generation client the validator needs.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, opts ollama.Options) (ollama.Result, error)
}

// Validator audits artifacts with a separate generation call.
type Validator struct {
	gen    Generator
	model  string // overrides the package's model when set
	logger *zap.Logger
}

// New returns a Validator. model may be empty to audit with the same model
// that generated the artifact.
func New(gen Generator, model string, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{gen: gen, model: model, logger: logger}
}

// Model returns the model that will audit p.
func (v *Validator) Model(p protocol.WorkPackage) string {
	if v.model != "" {
		return v.model
	}
	if p.SelectedModel != "" {
		return p.SelectedModel
	}
	return protocol.FallbackModel
}

// Validate audits code written for p. Generation failures yield an invalid
// verdict carrying the cause; they are never returned as errors.
func (v *Validator) Validate(ctx context.Context, code string, p protocol.WorkPackage) protocol.Verdict {
	model := v.Model(p)
	res, err := v.gen.Generate(ctx, model, prompt.ValidationPrompt(code, p), ollama.Options{
		Temperature: Temperature,
		NumPredict:  NumPredict,
		NoTools:     true,
	})
	if err != nil {
		v.logger.Warn("validation call failed", zap.String("package_id", p.ID), zap.String("model", model), zap.Error(err))
		return protocol.Verdict{
			IsValid:         false,
			Recommendations: []string{"validation unavailable: " + err.Error()},
		}
	}

	verdict, err := ParseVerdict(res.Text)
	if err != nil {
		v.logger.Info("validator reply not structured; using heuristic",
			zap.String("package_id", p.ID), zap.Bool("is_valid", verdict.IsValid))
	}
	return verdict
}

type wireVerdict struct {
	IsValid             *bool    `json:"is_valid"`
	CompilationIssues   []string `json:"compilation_issues"`
	MissingDependencies []string `json:"missing_dependencies"`
	CompletenessIssues  []string `json:"completeness_issues"`
	ProductionIssues    []string `json:"production_issues"`
	Recommendations     []string `json:"recommendations"`
	QualityScore        *float64 `json:"overall_quality_score"`
}

// ParseVerdict extracts the structured verdict from a validator reply.
// It tries the span from the first '{' to the last '}', then the first
// complete JSON value starting at the first '{'. When neither decodes into
// an object with is_valid, it returns a heuristic verdict (valid iff the
// reply mentions "true") together with ErrValidationUnparseable.
func ParseVerdict(text string) (protocol.Verdict, error) {
	if w, ok := decode(text); ok {
		return w.verdict(), nil
	}
	return protocol.Verdict{
		IsValid:   strings.Contains(strings.ToLower(text), "true"),
		Heuristic: true,
		Raw:       text,
	}, fmt.Errorf("%w: %s", ErrValidationUnparseable, preview(text))
}

func decode(text string) (wireVerdict, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return wireVerdict{}, false
	}
	var w wireVerdict
	if end := strings.LastIndexByte(text, '}'); end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &w); err == nil && w.IsValid != nil {
			return w, true
		}
	}
	w = wireVerdict{}
	dec := json.NewDecoder(bytes.NewReader([]byte(text[start:])))
	if err := dec.Decode(&w); err == nil && w.IsValid != nil {
		return w, true
	}
	return wireVerdict{}, false
}

func (w wireVerdict) verdict() protocol.Verdict {
	v := protocol.Verdict{
		IsValid:             *w.IsValid,
		CompilationIssues:   nonNil(w.CompilationIssues),
		MissingDependencies: nonNil(w.MissingDependencies),
		CompletenessIssues:  append(append([]string(nil), w.CompletenessIssues...), w.ProductionIssues...),
		Recommendations:     nonNil(w.Recommendations),
	}
	if w.QualityScore != nil {
		score := int(math.Round(math.Max(0, math.Min(100, *w.QualityScore))))
		v.QualityScore = &score
	}
	return v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > 80 {
		return string(r[:80]) + "..."
	}
	return s
}
