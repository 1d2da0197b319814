package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hyperengineering/mocklens/internal/types"
	"github.com/hyperengineering/mocklens/pkg/item"
)

// Limits on request fields.
const (
	MaxProjectNameLength = 200
	MaxDescriptionLength = 2000
	MaxScreenNameLength  = 200
	MaxImageRefLength    = 64
	MaxItemsPerResult    = 1000
	MaxItemFieldLength   = 4000
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ValidateText checks that value is well-formed UTF-8 without null bytes and
// at most max runes long.
func ValidateText(field, value string, max int) *ValidationError {
	switch {
	case !utf8.ValidString(value):
		return &ValidationError{Field: field, Message: "must be valid UTF-8"}
	case strings.Contains(value, "\x00"):
		return &ValidationError{Field: field, Message: "must not contain null bytes"}
	case utf8.RuneCountInString(value) > max:
		return &ValidationError{Field: field, Message: fmt.Sprintf("exceeds maximum length of %d characters", max)}
	}
	return nil
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateULID returns an error if the value is not a valid ULID.
// ULIDs are 26 characters of Crockford Base32 (no I, L, O or U).
func ValidateULID(field, value string) *ValidationError {
	if len(value) != 26 {
		return &ValidationError{Field: field, Message: "must be a valid ULID (26 characters)"}
	}
	const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	for _, r := range strings.ToUpper(value) {
		if !strings.ContainsRune(crockford, r) {
			return &ValidationError{Field: field, Message: "must be a valid ULID (invalid character)"}
		}
	}
	return nil
}

// ValidateNewProject validates a project creation request.
func ValidateNewProject(p types.NewProject) []ValidationError {
	var c Collector
	if err := ValidateRequired("name", p.Name); err != nil {
		c.Add(err)
	} else {
		c.Add(ValidateText("name", p.Name, MaxProjectNameLength))
	}
	c.Add(ValidateText("description", p.Description, MaxDescriptionLength))
	return c.Errors()
}

// ValidateNewScreen validates a screen creation request. An image reference,
// when present, is an upload name: a ULID with an optional extension.
func ValidateNewScreen(s types.NewScreen) []ValidationError {
	var c Collector
	if err := ValidateRequired("name", s.Name); err != nil {
		c.Add(err)
	} else {
		c.Add(ValidateText("name", s.Name, MaxScreenNameLength))
	}
	if ref := strings.TrimSpace(s.ImageRef); ref != "" {
		if err := ValidateText("image_ref", ref, MaxImageRefLength); err != nil {
			c.Add(err)
		} else {
			id, _, _ := strings.Cut(ref, ".")
			c.Add(ValidateULID("image_ref", id))
		}
	}
	return c.Errors()
}

// ValidateSaveResult validates a result save request. Item ids are
// batch-internal and ignored; the store assigns them from position.
func ValidateSaveResult(req types.SaveResultRequest) []ValidationError {
	var c Collector
	if len(req.Items) > MaxItemsPerResult {
		c.Add(&ValidationError{
			Field:   "items",
			Message: fmt.Sprintf("exceeds maximum of %d items", MaxItemsPerResult),
		})
		return c.Errors()
	}
	for _, fe := range item.ValidateFields(req.Items) {
		c.Add(&ValidationError{Field: fe.Field, Message: fe.Message})
	}
	for i, r := range req.Items {
		prefix := fmt.Sprintf("items[%d].", i)
		c.Add(ValidateText(prefix+"content", r.Content, MaxItemFieldLength))
		c.Add(ValidateText(prefix+"description", r.Description, MaxItemFieldLength))
		c.Add(ValidateText(prefix+"dbField", r.DBField, MaxItemFieldLength))
		if r.DataSource != nil {
			c.Add(ValidateText(prefix+"dataSource", *r.DataSource, MaxItemFieldLength))
		}
	}
	return c.Errors()
}
