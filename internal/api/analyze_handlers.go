package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/mocklens/internal/normalize"
	"github.com/hyperengineering/mocklens/internal/types"
	"github.com/hyperengineering/mocklens/internal/upload"
	"github.com/hyperengineering/mocklens/internal/vision"
)

// multipartOverhead is slack above the image limit for form boundaries and fields.
const multipartOverhead = 1 << 20

const (
	WarningTruncated = "The model stopped at its output limit, so trailing elements may be missing. Review the list or retry with a smaller image."
	WarningDegraded  = "Only element text could be recovered from the model response. Types, roles and fields are defaults and need manual review."
	WarningEmpty     = "No UI elements were detected in the image."
)

// Upload handles POST /api/v1/uploads (multipart field "image").
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	img, ok := h.readMultipartImage(w, r, false)
	if !ok {
		return
	}

	ref, err := h.images.Save(r.Context(), img.Data, img.MediaType)
	if err != nil {
		slog.Error("save upload failed", "component", "api", "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	slog.Info("image uploaded",
		"component", "api",
		"action", "upload",
		"image_ref", ref,
		"media_type", img.MediaType,
		"size", len(img.Data),
	)
	writeJSON(w, http.StatusCreated, types.Upload{
		ImageRef:  ref,
		Filename:  img.Filename,
		MediaType: img.MediaType,
		Size:      int64(len(img.Data)),
	})
}

// UploadURL handles GET /api/v1/uploads/{ref}/url
func (h *Handler) UploadURL(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	url, expiry, err := h.images.PresignedURL(r.Context(), ref)
	if err != nil {
		if errors.Is(err, upload.ErrNotConfigured) {
			WriteProblem(w, r, http.StatusNotFound, "Object storage is not configured")
			return
		}
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.UploadURL{ImageRef: ref, URL: url, ExpiresAt: expiry.UTC()})
}

// Analyze handles POST /api/v1/analyze. The image comes from multipart field
// "image", or from form field "image_ref" naming an earlier upload.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	img, ok := h.readMultipartImage(w, r, true)
	if !ok {
		return
	}

	start := time.Now()
	res, err := h.analyzer.Analyze(r.Context(), img)
	if err != nil {
		slog.Warn("analysis failed",
			"component", "api",
			"action", "analyze",
			"filename", img.Filename,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		MapAnalyzeError(w, r, err)
		return
	}

	slog.Info("image analyzed",
		"component", "api",
		"action", "analyze",
		"filename", img.Filename,
		"items", len(res.Records),
		"strategy", res.Strategy,
		"truncated", res.Truncated,
		"degraded", res.Degraded,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	writeJSON(w, http.StatusOK, types.AnalyzeResponse{
		Items:     res.Records,
		Model:     h.analyzer.ModelName(),
		Strategy:  string(res.Strategy),
		Truncated: res.Truncated,
		Degraded:  res.Degraded,
		Warnings:  Warnings(res),
	})
}

// Warnings lists what the user must be told about a successful analysis.
func Warnings(res *normalize.Result) []string {
	var warnings []string
	if res.Truncated {
		warnings = append(warnings, WarningTruncated)
	}
	if res.Degraded {
		warnings = append(warnings, WarningDegraded)
	}
	if len(res.Records) == 0 {
		warnings = append(warnings, WarningEmpty)
	}
	return warnings
}

// readMultipartImage reads and sniffs the request image, writing a problem
// response on failure. allowRef accepts an "image_ref" field in place of the file.
func (h *Handler) readMultipartImage(w http.ResponseWriter, r *http.Request, allowRef bool) (vision.Image, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxImageBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteProblem(w, r, http.StatusRequestEntityTooLarge, "Image exceeds the maximum upload size")
			return vision.Image{}, false
		}
		WriteProblem(w, r, http.StatusBadRequest, "Expected a multipart/form-data body")
		return vision.Image{}, false
	}
	defer r.MultipartForm.RemoveAll()

	var (
		data     []byte
		filename string
	)
	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		filename = header.Filename
		data, err = io.ReadAll(io.LimitReader(file, h.maxImageBytes+1))
		if err != nil {
			WriteProblem(w, r, http.StatusBadRequest, "Could not read the uploaded image")
			return vision.Image{}, false
		}
		if int64(len(data)) > h.maxImageBytes {
			MapAnalyzeError(w, r, &vision.ImageError{
				Kind:  vision.ErrImageTooLarge,
				Size:  header.Size,
				Limit: h.maxImageBytes,
			})
			return vision.Image{}, false
		}

	case allowRef && errors.Is(err, http.ErrMissingFile) && r.FormValue("image_ref") != "":
		filename = r.FormValue("image_ref")
		data, err = h.images.Load(filename)
		if err != nil {
			MapStoreError(w, r, err)
			return vision.Image{}, false
		}

	default:
		WriteProblem(w, r, http.StatusBadRequest, `Missing multipart field "image"`)
		return vision.Image{}, false
	}

	img, err := vision.DetectImage(data, filename)
	if err != nil {
		MapAnalyzeError(w, r, err)
		return vision.Image{}, false
	}
	return img, true
}
