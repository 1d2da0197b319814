// Package normalize turns an untrusted vision-model completion into a
// validated record set.
//
// The text is stripped of markdown fences and then decoded with a sequence of
// increasingly lenient attempts; the first that yields JSON wins. The decoded
// value is unwrapped to an array and every element is run through the
// coercion table in package item, so no untyped data leaves this package.
package normalize

import (
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hyperengineering/mocklens/pkg/item"
)

// FinishReason is the upstream generation's stop reason.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
)

// Truncated reports whether the generation hit its token limit.
func (f FinishReason) Truncated() bool { return f == FinishLength }

// Strategy names the parse attempt that produced a result.
type Strategy string

const (
	StrategyWhole            Strategy = "whole"
	StrategyArray            Strategy = "array"
	StrategyTrailingComma    Strategy = "trailing_comma"
	StrategyTruncationRepair Strategy = "truncation_repair"
	StrategyFirstValue       Strategy = "first_value"
	StrategyDegraded         Strategy = "degraded"
)

// DegradedDescription tags records recovered by the content-only fallback.
const DegradedDescription = "[degraded] Recovered from an unstructured model response; verify manually"

// DegradedElementType is the element type given to fallback records.
const DegradedElementType = "Text"

// DefaultPreviewLength bounds the text echoed in parse diagnostics.
const DefaultPreviewLength = 240

// wrapperKeys are checked in order when the completion is an object.
var wrapperKeys = []string{"results", "items", "data", "array"}

var contentFragment = regexp.MustCompile(`"content"\s*:\s*"((?:[^"\\]|\\.)*)"`)

// Result is a normalized record set plus what the caller must warn about.
type Result struct {
	Records []item.Record `json:"items"`
	// Truncated is set when the generation stopped at its token limit;
	// trailing elements may be missing.
	Truncated bool `json:"truncated"`
	// Degraded is set when only bare content strings could be recovered.
	Degraded bool     `json:"degraded"`
	Strategy Strategy `json:"strategy"`
}

// Normalizer converts completion text into records.
type Normalizer struct {
	allowDegraded bool
	previewLength int
	logger        *slog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithDegradedFallback enables or disables content-only recovery.
func WithDegradedFallback(enabled bool) Option {
	return func(n *Normalizer) { n.allowDegraded = enabled }
}

// WithPreviewLength sets the number of runes echoed in errors.
func WithPreviewLength(runes int) Option {
	return func(n *Normalizer) {
		if runes > 0 {
			n.previewLength = runes
		}
	}
}

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(n *Normalizer) {
		if l != nil {
			n.logger = l
		}
	}
}

// New creates a Normalizer. The degraded fallback is on by default.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		allowDegraded: true,
		previewLength: DefaultPreviewLength,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize parses text into records. Truncated completions are parsed like
// any other; Result.Truncated tells the caller to warn that the set may be
// incomplete. It returns a *ParseError or *ShapeError, and no records, when
// nothing usable could be recovered.
func (n *Normalizer) Normalize(text string, finish FinishReason) (*Result, error) {
	truncated := finish.Truncated()
	if truncated {
		n.logger.Warn("completion truncated",
			"component", "normalizer",
			"length", len(text),
		)
	}

	body := stripFences(text)
	v, strategy, err := parse(body)
	var values []any
	if err == nil {
		values, err = unwrap(v)
	}
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Preview = n.preview(text)
		}
		var se *ShapeError
		if errors.As(err, &se) {
			se.Preview = n.preview(text)
		}
		if n.allowDegraded {
			if records := degraded(text); len(records) > 0 {
				n.logger.Warn("completion recovered in degraded mode",
					"component", "normalizer",
					"records", len(records),
					"cause", err.Error(),
				)
				return &Result{
					Records:   records,
					Truncated: truncated,
					Degraded:  true,
					Strategy:  StrategyDegraded,
				}, nil
			}
		}
		n.logger.Warn("completion rejected",
			"component", "normalizer",
			"error", err,
		)
		return nil, err
	}

	records := Records(values)
	n.logger.Debug("completion normalized",
		"component", "normalizer",
		"strategy", string(strategy),
		"records", len(records),
	)
	return &Result{
		Records:   records,
		Truncated: truncated,
		Strategy:  strategy,
	}, nil
}

// parse runs the decode attempts in order; the first success wins.
func parse(s string) (any, Strategy, error) {
	var lastErr error

	v, err := decode(s)
	if err == nil {
		return v, StrategyWhole, nil
	}
	lastErr = err

	if v, ok := firstArray(s); ok {
		return v, StrategyArray, nil
	}

	stripped := stripTrailingCommas(s)
	if stripped != s {
		if v, ok := firstArray(stripped); ok {
			return v, StrategyTrailingComma, nil
		}
	}

	if repaired := repairTruncated(stripped); repaired != "" {
		if v, err := decode(repaired); err == nil {
			return v, StrategyTruncationRepair, nil
		}
	}

	for _, candidate := range []string{s, stripped} {
		spans := outermostSpans(candidate, "[{")
		if len(spans) == 0 {
			continue
		}
		v, err := decode(spans[0])
		if err == nil {
			return v, StrategyFirstValue, nil
		}
		lastErr = err
	}

	return nil, "", &ParseError{Err: lastErr}
}

// firstArray decodes the first outermost [...] span that parses, preferring
// one whose elements include an object so a bracketed aside in prose does not
// shadow the real payload.
func firstArray(s string) (any, bool) {
	var fallback any
	found := false
	for _, span := range outermostSpans(s, "[") {
		v, err := decode(span)
		if err != nil {
			continue
		}
		arr := v.([]any)
		if len(arr) == 0 || containsObject(arr) {
			return v, true
		}
		if !found {
			fallback, found = v, true
		}
	}
	return fallback, found
}

func containsObject(arr []any) bool {
	for _, e := range arr {
		if _, ok := e.(map[string]any); ok {
			return true
		}
	}
	return false
}

// unwrap returns the record array from an array or a wrapping object.
func unwrap(v any) ([]any, error) {
	switch x := v.(type) {
	case []any:
		return x, nil
	case map[string]any:
		for _, k := range wrapperKeys {
			if arr, ok := x[k].([]any); ok {
				return arr, nil
			}
		}
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, &ShapeError{Kind: "object", Keys: keys}
	default:
		return nil, &ShapeError{Kind: kindOf(v)}
	}
}

func kindOf(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	}
	return "unknown"
}

// degraded pulls bare "content" strings out of text that could not be
// decoded and wraps each in a minimal, clearly tagged record.
func degraded(text string) []item.Record {
	matches := contentFragment.FindAllStringSubmatch(text, -1)
	records := make([]item.Record, 0, len(matches))
	for _, m := range matches {
		var content string
		if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &content); err != nil {
			content = m[1]
		}
		r := item.New(len(records) + 1)
		r.Content = item.NormalizeContent(content)
		r.ElementType = DegradedElementType
		r.Description = DegradedDescription
		records = append(records, r)
	}
	return records
}

func (n *Normalizer) preview(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "(empty completion)"
	}
	if utf8.RuneCountInString(text) <= n.previewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:n.previewLength]) + "..."
}
