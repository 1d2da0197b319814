package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/mocklens/internal/normalize"
	"github.com/hyperengineering/mocklens/internal/store"
	"github.com/hyperengineering/mocklens/internal/upload"
	"github.com/hyperengineering/mocklens/internal/validation"
	"github.com/hyperengineering/mocklens/internal/vision"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

type problemType struct {
	typeURI string
	title   string
}

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]problemType{
	http.StatusUnauthorized: {
		typeURI: "https://mocklens.dev/errors/unauthorized",
		title:   "Unauthorized",
	},
	http.StatusBadRequest: {
		typeURI: "https://mocklens.dev/errors/bad-request",
		title:   "Bad Request",
	},
	http.StatusNotFound: {
		typeURI: "https://mocklens.dev/errors/not-found",
		title:   "Not Found",
	},
	http.StatusInternalServerError: {
		typeURI: "https://mocklens.dev/errors/internal-error",
		title:   "Internal Server Error",
	},
	http.StatusUnprocessableEntity: {
		typeURI: "https://mocklens.dev/errors/validation-error",
		title:   "Validation Error",
	},
	http.StatusServiceUnavailable: {
		typeURI: "https://mocklens.dev/errors/service-unavailable",
		title:   "Service Unavailable",
	},
	http.StatusConflict: {
		typeURI: "https://mocklens.dev/errors/conflict",
		title:   "Conflict",
	},
	http.StatusTooManyRequests: {
		typeURI: "https://mocklens.dev/errors/rate-limit",
		title:   "Too Many Requests",
	},
	http.StatusRequestEntityTooLarge: {
		typeURI: "https://mocklens.dev/errors/image-too-large",
		title:   "Image Too Large",
	},
	http.StatusUnsupportedMediaType: {
		typeURI: "https://mocklens.dev/errors/unsupported-media-type",
		title:   "Unsupported Media Type",
	},
	http.StatusBadGateway: {
		typeURI: "https://mocklens.dev/errors/upstream-error",
		title:   "Vision Model Error",
	},
}

func newProblem(r *http.Request, status int, detail string) Problem {
	pt, ok := problemTypes[status]
	if !ok {
		pt = problemType{
			typeURI: "https://mocklens.dev/errors/unknown",
			title:   http.StatusText(status),
		}
	}
	return Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}
}

func writeProblemBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	writeProblemBody(w, status, newProblem(r, status, detail))
}

// ProblemWithErrors extends Problem with validation error details.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

// WriteProblemWithErrors writes a 422 Problem Details response with field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	writeProblemBody(w, http.StatusUnprocessableEntity, ProblemWithErrors{
		Problem: newProblem(r, http.StatusUnprocessableEntity, detail),
		Errors:  errs,
	})
}

// AnalysisProblem extends Problem with what went wrong during image analysis.
type AnalysisProblem struct {
	Problem
	Category       string   `json:"category"`
	UpstreamStatus int      `json:"upstream_status,omitempty"`
	UpstreamType   string   `json:"upstream_type,omitempty"`
	UpstreamCode   string   `json:"upstream_code,omitempty"`
	Preview        string   `json:"preview,omitempty"`
	Keys           []string `json:"keys,omitempty"`
}

// MapStoreError converts domain errors to Problem Details responses.
func MapStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Resource not found")
	case errors.Is(err, store.ErrDuplicateProject):
		WriteProblem(w, r, http.StatusConflict, "A project with this name already exists")
	case errors.Is(err, upload.ErrNotFound), errors.Is(err, upload.ErrInvalidRef):
		WriteProblem(w, r, http.StatusNotFound, "Image not found")
	default:
		// Never expose internal error details to client
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}

// MapAnalyzeError converts analysis failures to Problem Details responses.
// Credential problems are server misconfiguration and are reported without
// detail.
func MapAnalyzeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		credErr     *vision.CredentialError
		imageErr    *vision.ImageError
		upstreamErr *vision.UpstreamError
		networkErr  *vision.NetworkError
		parseErr    *normalize.ParseError
		shapeErr    *normalize.ShapeError
	)

	switch {
	case errors.As(err, &credErr):
		slog.Error("vision credential misconfigured", "component", "api", "reason", credErr.Reason)
		writeAnalysisProblem(w, r, http.StatusInternalServerError,
			"The server's vision API key is not configured", AnalysisProblem{Category: "configuration"})

	case errors.As(err, &imageErr):
		status := http.StatusUnsupportedMediaType
		if errors.Is(imageErr, vision.ErrImageTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeAnalysisProblem(w, r, status, imageErr.Error(), AnalysisProblem{Category: "image"})

	case errors.As(err, &upstreamErr):
		writeAnalysisProblem(w, r, http.StatusBadGateway, upstreamErr.UserMessage(), AnalysisProblem{
			Category:       string(upstreamErr.Category),
			UpstreamStatus: upstreamErr.StatusCode,
			UpstreamType:   upstreamErr.Type,
			UpstreamCode:   upstreamErr.Code,
		})

	case errors.As(err, &networkErr):
		writeAnalysisProblem(w, r, http.StatusServiceUnavailable,
			"The vision API could not be reached. Check connectivity and retry.", AnalysisProblem{Category: "network"})

	case errors.As(err, &parseErr):
		writeAnalysisProblem(w, r, http.StatusUnprocessableEntity,
			"The model response could not be parsed as JSON", AnalysisProblem{Category: "parse", Preview: parseErr.Preview})

	case errors.As(err, &shapeErr):
		writeAnalysisProblem(w, r, http.StatusUnprocessableEntity, shapeErr.Error(), AnalysisProblem{
			Category: "shape",
			Preview:  shapeErr.Preview,
			Keys:     shapeErr.Keys,
		})

	case errors.Is(err, context.DeadlineExceeded):
		writeAnalysisProblem(w, r, http.StatusServiceUnavailable,
			"The vision API did not answer in time. Retry the analysis.", AnalysisProblem{Category: "timeout"})

	default:
		slog.Error("analysis failed", "component", "api", "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}

func writeAnalysisProblem(w http.ResponseWriter, r *http.Request, status int, detail string, p AnalysisProblem) {
	p.Problem = newProblem(r, status, detail)
	writeProblemBody(w, status, p)
}
