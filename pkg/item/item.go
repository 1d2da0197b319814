// Package item defines the record extracted for a single UI element and the
// value domains shared by the completion normalizer and the table editors.
package item

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Placeholder values used instead of empty strings so a rendered table never
// shows a blank cell for a field the user is expected to fill in.
const (
	DefaultContent     = "Unknown"
	DefaultDescription = "No description"
	DefaultDBField     = "content_field"
	DefaultElementType = "Label"
)

// DataType is the kind of value an element displays or accepts.
type DataType string

const (
	DataTypeString  DataType = "string"
	DataTypeNumber  DataType = "number"
	DataTypeEmail   DataType = "email"
	DataTypePhone   DataType = "phone"
	DataTypeURL     DataType = "url"
	DataTypeDate    DataType = "date"
	DataTypeBoolean DataType = "boolean"
	DataTypeJSON    DataType = "json"
)

// DataTypes lists every recognized data type in display order.
var DataTypes = []DataType{
	DataTypeString, DataTypeNumber, DataTypeEmail, DataTypePhone,
	DataTypeURL, DataTypeDate, DataTypeBoolean, DataTypeJSON,
}

// IORole describes whether an element reads, writes, or triggers.
type IORole string

const (
	IOInput  IORole = "Input"
	IOOutput IORole = "Output"
	IOAction IORole = "Action"
)

// IORoles lists every recognized role in display order.
var IORoles = []IORole{IOInput, IOOutput, IOAction}

// Required is a tri-state flag. The zero value is RequiredNo.
type Required int8

const (
	RequiredNo Required = iota
	RequiredYes
	RequiredConditional
)

// String returns the label shown in the three-way dropdown.
func (r Required) String() string {
	switch r {
	case RequiredYes:
		return "Yes"
	case RequiredConditional:
		return "Conditional"
	default:
		return "No"
	}
}

// MarshalJSON encodes the tri-state as true, false or null.
func (r Required) MarshalJSON() ([]byte, error) {
	switch r {
	case RequiredYes:
		return []byte("true"), nil
	case RequiredConditional:
		return []byte("null"), nil
	default:
		return []byte("false"), nil
	}
}

// UnmarshalJSON accepts true, false and null. Any other JSON value decodes to
// RequiredNo rather than failing, matching the normalizer's coercion table.
func (r *Required) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true":
		*r = RequiredYes
	case "null":
		*r = RequiredConditional
	default:
		*r = RequiredNo
	}
	return nil
}

// Record is one detected UI element.
type Record struct {
	ID            int      `json:"id"`
	Content       string   `json:"content"`
	ElementType   string   `json:"elementType"`
	DataType      DataType `json:"dataType"`
	IORole        IORole   `json:"ioRole"`
	DataSource    *string  `json:"dataSource"`
	Required      Required `json:"required"`
	Description   string   `json:"description"`
	DBField       string   `json:"dbField"`
	SequenceIndex int      `json:"sequenceIndex"`
}

// DataSourceString returns the mapping or "-" when none is set.
func (r Record) DataSourceString() string {
	if r.DataSource == nil {
		return "-"
	}
	return *r.DataSource
}

// Equal reports whether two records hold the same values.
func (r Record) Equal(o Record) bool {
	if (r.DataSource == nil) != (o.DataSource == nil) {
		return false
	}
	if r.DataSource != nil && *r.DataSource != *o.DataSource {
		return false
	}
	a, b := r, o
	a.DataSource, b.DataSource = nil, nil
	return a == b
}

// New returns a record with every field set to its default for the given id.
func New(id int) Record {
	return Record{
		ID:            id,
		Content:       DefaultContent,
		ElementType:   DefaultElementType,
		DataType:      DataTypeString,
		IORole:        IOOutput,
		Required:      RequiredNo,
		Description:   DefaultDescription,
		DBField:       DefaultDBField,
		SequenceIndex: id,
	}
}

// Clone deep-copies a record set. A nil input yields an empty, non-nil slice.
func Clone(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		if r.DataSource != nil {
			ds := *r.DataSource
			r.DataSource = &ds
		}
		out[i] = r
	}
	return out
}

// StripIDs returns a copy with the batch-internal id zeroed, as sent to the
// persistence backend. Sequence order is kept.
func StripIDs(records []Record) []Record {
	out := Clone(records)
	for i := range out {
		out[i].ID = 0
	}
	return out
}

// FieldError is one invariant violation found by Validate.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validate checks the post-normalization invariants of a batch, ids included.
func Validate(records []Record) []FieldError {
	var errs []FieldError
	seen := make(map[int]bool, len(records))
	for i, r := range records {
		prefix := fmt.Sprintf("items[%d]", i)
		switch {
		case r.ID <= 0:
			errs = append(errs, FieldError{Field: prefix + ".id", Message: "must be a positive integer"})
		case seen[r.ID]:
			errs = append(errs, FieldError{Field: prefix + ".id", Message: fmt.Sprintf("duplicate id %d", r.ID)})
		}
		seen[r.ID] = true
		errs = append(errs, fieldErrors(prefix, r)...)
	}
	return errs
}

// ValidateFields checks every invariant except the id, which is
// batch-internal and absent from stripped sets.
func ValidateFields(records []Record) []FieldError {
	var errs []FieldError
	for i, r := range records {
		errs = append(errs, fieldErrors(fmt.Sprintf("items[%d]", i), r)...)
	}
	return errs
}

func fieldErrors(prefix string, r Record) []FieldError {
	var errs []FieldError
	if strings.TrimSpace(r.ElementType) == "" {
		errs = append(errs, FieldError{Field: prefix + ".elementType", Message: "is required"})
	}
	if !r.DataType.Valid() {
		errs = append(errs, FieldError{Field: prefix + ".dataType", Message: "must be a known data type"})
	}
	if !r.IORole.Valid() {
		errs = append(errs, FieldError{Field: prefix + ".ioRole", Message: "must be one of: Input, Output, Action"})
	}
	return errs
}

// MarshalRecords encodes a record set, rendering a nil set as [].
func MarshalRecords(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	return json.Marshal(records)
}
