package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// DefaultMaxContentChars bounds how much scraped text is sent to the model.
const DefaultMaxContentChars = 8000

// CompletionRequest is a single JSON-mode prompt.
type CompletionRequest struct {
	System string
	User   string
}

// Completer is the language-model service.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Config controls the Analyzer.
type Config struct {
	MaxContentChars int
}

// Analyzer prompts a Completer and validates the response schema. It does not
// retry parse or validation failures.
type Analyzer struct {
	completer Completer
	validate  *validator.Validate
	cfg       Config
	logger    *zap.Logger
}

// New constructs an Analyzer.
func New(completer Completer, cfg Config, logger *zap.Logger) *Analyzer {
	if cfg.MaxContentChars <= 0 {
		cfg.MaxContentChars = DefaultMaxContentChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		completer: completer,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		cfg:       cfg,
		logger:    logger,
	}
}

// Analyze sends a bounded prefix of content to the model and parses the result.
func (a *Analyzer) Analyze(ctx context.Context, content string, kind Type) (Result, error) {
	if !kind.Valid() {
		return Result{}, fmt.Errorf("%w: unknown analysis type %q", ErrAnalysisFailed, kind)
	}
	if strings.TrimSpace(content) == "" {
		return Result{}, fmt.Errorf("%w: no content to analyze", ErrAnalysisFailed)
	}
	prompt := userPrompt(kind, truncate(content, a.cfg.MaxContentChars))
	raw, err := a.completer.Complete(ctx, CompletionRequest{System: systemPrompt, User: prompt})
	if err != nil {
		return Result{}, fmt.Errorf("complete %s analysis: %w", kind, err)
	}
	a.logger.Debug("model response received", zap.String("analysis_type", string(kind)), zap.Int("bytes", len(raw)))
	return a.parse(kind, raw)
}

func (a *Analyzer) parse(kind Type, raw string) (Result, error) {
	body := stripFences(raw)
	res := Result{Type: kind, Raw: raw}
	var target any
	if kind == TypeWebsite {
		res.Website = &WebsiteAnalysis{}
		target = res.Website
	} else {
		res.Report = &Report{}
		target = res.Report
	}
	if err := json.Unmarshal([]byte(body), target); err != nil {
		return Result{}, fmt.Errorf("%w: parse %s response: %w", ErrAnalysisFailed, kind, err)
	}
	if res.Report != nil {
		res.Report.normalize()
	}
	if err := a.validate.Struct(target); err != nil {
		return Result{}, fmt.Errorf("%w: validate %s response: %w", ErrAnalysisFailed, kind, err)
	}
	return res, nil
}

// truncate keeps at most limit runes.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

// stripFences tolerates models that wrap JSON in ``` fences despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
