package vision

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
)

// CredentialError is returned before any network call when the API key is
// missing or malformed.
type CredentialError struct {
	Reason string
}

func (e *CredentialError) Error() string {
	return "vision credential " + e.Reason
}

// NetworkError wraps a transport failure reaching the vision model.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("vision request failed: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Category groups upstream failures by what the user can do about them.
type Category string

const (
	CategoryInvalidCredential Category = "invalid_credential"
	CategoryRateLimited       Category = "rate_limited"
	CategoryBilling           Category = "billing"
	CategoryServerError       Category = "server_error"
	CategoryBadRequest        Category = "bad_request"
	CategoryUnknown           Category = "unknown"
)

var userMessages = map[Category]string{
	CategoryInvalidCredential: "The vision API rejected the configured API key. Check the key and try again.",
	CategoryRateLimited:       "The vision API is rate limiting requests. Wait a moment and retry.",
	CategoryBilling:           "The vision API account has no remaining quota. Check billing for the account.",
	CategoryServerError:       "The vision API had an internal error. Retry the analysis.",
	CategoryBadRequest:        "The vision API rejected the request. The image may be unreadable or too large.",
	CategoryUnknown:           "The vision API returned an unexpected error.",
}

// UpstreamError is a non-success response from the vision model.
type UpstreamError struct {
	Category   Category `json:"category"`
	StatusCode int      `json:"status"`
	Type       string   `json:"type,omitempty"`
	Code       string   `json:"code,omitempty"`
	Message    string   `json:"message,omitempty"`
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("vision model returned %d (%s): %s", e.StatusCode, e.Category, e.Message)
}

// UserMessage is the text shown to the user for this failure.
func (e *UpstreamError) UserMessage() string {
	if msg, ok := userMessages[e.Category]; ok {
		return msg
	}
	return userMessages[CategoryUnknown]
}

// classify converts a client error into the package taxonomy. Cancellation
// is passed through untouched.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &UpstreamError{
			Category:   categorize(apiErr.StatusCode, apiErr.Type, apiErr.Code),
			StatusCode: apiErr.StatusCode,
			Type:       apiErr.Type,
			Code:       apiErr.Code,
			Message:    apiErr.Message,
		}
	}
	return &NetworkError{Err: err}
}

func categorize(status int, errType, code string) Category {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CategoryInvalidCredential
	case status == http.StatusPaymentRequired:
		return CategoryBilling
	case status == http.StatusTooManyRequests:
		if code == "insufficient_quota" || errType == "insufficient_quota" {
			return CategoryBilling
		}
		return CategoryRateLimited
	case status >= 500:
		return CategoryServerError
	case status >= 400:
		return CategoryBadRequest
	default:
		return CategoryUnknown
	}
}
