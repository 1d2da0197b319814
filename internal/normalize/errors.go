package normalize

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrParse matches every *ParseError.
	ErrParse = errors.New("completion is not parseable JSON")
	// ErrShape matches every *ShapeError.
	ErrShape = errors.New("completion has no record array")
)

// ParseError reports completion text that no parse attempt could decode.
type ParseError struct {
	// Preview is a bounded prefix of the offending text.
	Preview string
	// Err is the decode error of the last attempt, if any.
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse completion: %v (preview: %q)", e.Err, e.Preview)
	}
	return fmt.Sprintf("parse completion: no JSON value found (preview: %q)", e.Preview)
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }

func (e *ParseError) Unwrap() error { return e.Err }

// ShapeError reports a decoded value that is neither an array nor an object
// wrapping one under a recognized key.
type ShapeError struct {
	// Kind is the JSON kind that was decoded ("object", "string", ...).
	Kind string
	// Keys lists the object's keys when Kind is "object".
	Keys    []string
	Preview string
}

func (e *ShapeError) Error() string {
	if len(e.Keys) > 0 {
		return fmt.Sprintf("completion object has no record array under %s (keys: %s)",
			strings.Join(wrapperKeys, ", "), strings.Join(e.Keys, ", "))
	}
	return fmt.Sprintf("completion decoded to %s, want array", e.Kind)
}

func (e *ShapeError) Is(target error) bool { return target == ErrShape }
