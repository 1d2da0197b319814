// Package vision builds and dispatches the image analysis request and maps
// its failures onto a user-facing error taxonomy.
package vision

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyperengineering/mocklens/internal/normalize"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Compile-time interface check
var _ ImageAnalyzer = (*Analyzer)(nil)

// ImageAnalyzer turns an image into a normalized record set.
type ImageAnalyzer interface {
	Analyze(ctx context.Context, img Image) (*normalize.Result, error)
	ModelName() string
}

// CompletionsService defines the interface for making chat completion calls.
// This abstraction enables testing without calling the real OpenAI API.
type CompletionsService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Config configures an Analyzer.
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	MaxTokens     int
	MaxImageBytes int64
	// Timeout bounds one request; zero leaves the client default.
	Timeout time.Duration
}

// Completion is the raw text answer and its stop reason.
type Completion struct {
	Text         string
	FinishReason normalize.FinishReason
	Model        string
}

// Analyzer sends one image per call to an OpenAI chat model.
type Analyzer struct {
	completions CompletionsService
	credential  Credential
	builder     Builder
	normalizer  *normalize.Normalizer
	timeout     time.Duration
}

// NewOpenAI creates an Analyzer backed by the OpenAI API. Requests are not
// retried; a failure surfaces immediately so the user can retry by hand.
func NewOpenAI(cfg Config, n *normalize.Normalizer) *Analyzer {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return newAnalyzer(client.Chat.Completions, cfg, n)
}

func newAnalyzer(svc CompletionsService, cfg Config, n *normalize.Normalizer) *Analyzer {
	builder := NewBuilder(cfg.Model)
	if cfg.MaxTokens > 0 {
		builder.MaxTokens = cfg.MaxTokens
	}
	if cfg.MaxImageBytes > 0 {
		builder.MaxImageBytes = cfg.MaxImageBytes
	}
	if n == nil {
		n = normalize.New()
	}
	return &Analyzer{
		completions: svc,
		credential:  Credential{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL},
		builder:     builder,
		normalizer:  n,
		timeout:     cfg.Timeout,
	}
}

// Complete sends img to the model and returns its raw answer.
func (a *Analyzer) Complete(ctx context.Context, img Image) (*Completion, error) {
	params, err := a.builder.Build(a.credential, img)
	if err != nil {
		return nil, err
	}

	var opts []option.RequestOption
	if a.timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(a.timeout))
	}

	start := time.Now()
	resp, err := a.completions.New(ctx, params, opts...)
	if err != nil {
		classified := classify(err)
		slog.Error("vision request failed",
			"component", "vision",
			"model", a.builder.Model,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", classified,
		)
		return nil, classified
	}
	if len(resp.Choices) == 0 {
		return nil, &UpstreamError{
			Category:   CategoryUnknown,
			StatusCode: 200,
			Message:    "response contained no choices",
		}
	}

	choice := resp.Choices[0]
	slog.Info("vision request completed",
		"component", "vision",
		"model", resp.Model,
		"finish_reason", string(choice.FinishReason),
		"completion_tokens", resp.Usage.CompletionTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &Completion{
		Text:         choice.Message.Content,
		FinishReason: normalize.FinishReason(choice.FinishReason),
		Model:        resp.Model,
	}, nil
}

// Analyze sends img to the model and normalizes the answer.
func (a *Analyzer) Analyze(ctx context.Context, img Image) (*normalize.Result, error) {
	completion, err := a.Complete(ctx, img)
	if err != nil {
		return nil, err
	}
	return a.normalizer.Normalize(completion.Text, completion.FinishReason)
}

// ModelName returns the configured model name
func (a *Analyzer) ModelName() string {
	return a.builder.Model
}
