package vision

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"

	_ "golang.org/x/image/webp"
)

// DefaultMaxImageBytes is the largest image accepted for analysis.
const DefaultMaxImageBytes = 20 << 20

var (
	ErrImageTooLarge        = errors.New("image too large")
	ErrUnsupportedMediaType = errors.New("unsupported image media type")
)

// SupportedMediaTypes are the formats the vision model accepts.
var SupportedMediaTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// ImageError rejects an image before it is encoded into a request.
type ImageError struct {
	Kind      error
	MediaType string
	Size      int64
	Limit     int64
	Detail    string
}

func (e *ImageError) Error() string {
	switch {
	case errors.Is(e.Kind, ErrImageTooLarge):
		return fmt.Sprintf("%v: %d bytes exceeds limit of %d", e.Kind, e.Size, e.Limit)
	case e.Detail != "":
		return fmt.Sprintf("%v %q: %s", e.Kind, e.MediaType, e.Detail)
	default:
		return fmt.Sprintf("%v %q", e.Kind, e.MediaType)
	}
}

func (e *ImageError) Unwrap() error { return e.Kind }

// Image is an uploaded mockup.
type Image struct {
	Data      []byte
	MediaType string
	Filename  string
}

// DataURI returns the image as an inline data URI.
func (img Image) DataURI() string {
	return "data:" + img.MediaType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// DetectImage sniffs the media type of data and checks that its header
// decodes as that format.
func DetectImage(data []byte, filename string) (Image, error) {
	img := Image{Data: data, Filename: filename}
	if len(data) == 0 {
		return img, &ImageError{Kind: ErrUnsupportedMediaType, Detail: "empty file"}
	}
	img.MediaType = http.DetectContentType(data)
	if !supported(img.MediaType) {
		return img, &ImageError{Kind: ErrUnsupportedMediaType, MediaType: img.MediaType, Size: int64(len(data))}
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return img, &ImageError{
			Kind:      ErrUnsupportedMediaType,
			MediaType: img.MediaType,
			Size:      int64(len(data)),
			Detail:    err.Error(),
		}
	}
	return img, nil
}

func supported(mediaType string) bool {
	for _, t := range SupportedMediaTypes {
		if t == mediaType {
			return true
		}
	}
	return false
}
