package vision

import (
	"strings"

	"github.com/openai/openai-go"
)

// Credential is the API key used for the vision model. It is passed
// explicitly rather than read from ambient state.
type Credential struct {
	APIKey string
	// BaseURL is set for OpenAI-compatible endpoints whose keys do not carry
	// the "sk-" prefix.
	BaseURL string
}

// Validate reports a missing or malformed key.
func (c Credential) Validate() error {
	key := c.APIKey
	switch {
	case key == "":
		return &CredentialError{Reason: "missing: set OPENAI_API_KEY"}
	case strings.TrimSpace(key) != key || strings.ContainsAny(key, " \t\r\n"):
		return &CredentialError{Reason: "malformed: contains whitespace"}
	case c.BaseURL == "" && !strings.HasPrefix(key, "sk-"):
		return &CredentialError{Reason: `malformed: expected "sk-" prefix`}
	}
	return nil
}

// Builder produces the chat completion request for one image.
type Builder struct {
	Model         string
	SystemPrompt  string
	UserPrompt    string
	MaxTokens     int
	MaxImageBytes int64
}

// NewBuilder returns a Builder with the default prompts and limits.
func NewBuilder(model string) Builder {
	return Builder{
		Model:         model,
		SystemPrompt:  DefaultSystemPrompt,
		UserPrompt:    DefaultUserPrompt,
		MaxTokens:     4096,
		MaxImageBytes: DefaultMaxImageBytes,
	}
}

// Build validates the credential and image, in that order, and returns the
// request: a fixed system instruction plus a user turn carrying a text part
// and the image as a data URI.
func (b Builder) Build(cred Credential, img Image) (openai.ChatCompletionNewParams, error) {
	if err := cred.Validate(); err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	limit := b.MaxImageBytes
	if limit <= 0 {
		limit = DefaultMaxImageBytes
	}
	if size := int64(len(img.Data)); size > limit {
		return openai.ChatCompletionNewParams{}, &ImageError{
			Kind:      ErrImageTooLarge,
			MediaType: img.MediaType,
			Size:      size,
			Limit:     limit,
		}
	}
	if img.MediaType == "" {
		detected, err := DetectImage(img.Data, img.Filename)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		img = detected
	}
	if len(img.Data) == 0 {
		return openai.ChatCompletionNewParams{}, &ImageError{Kind: ErrUnsupportedMediaType, Detail: "empty file"}
	}
	if !supported(img.MediaType) {
		return openai.ChatCompletionNewParams{}, &ImageError{
			Kind:      ErrUnsupportedMediaType,
			MediaType: img.MediaType,
			Size:      int64(len(img.Data)),
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(b.SystemPrompt),
			openai.UserMessageParts(
				openai.TextPart(b.UserPrompt),
				openai.ImagePart(img.DataURI()),
			),
		}),
		Model: openai.F(openai.ChatModel(b.Model)),
	}
	if b.MaxTokens > 0 {
		params.MaxTokens = openai.F(int64(b.MaxTokens))
	}
	return params, nil
}
