package table

import (
	"strconv"
	"strings"

	"github.com/hyperengineering/mocklens/pkg/item"
)

// Field names an editable or sortable record column.
type Field string

const (
	FieldID            Field = "id"
	FieldContent       Field = "content"
	FieldElementType   Field = "elementType"
	FieldDataType      Field = "dataType"
	FieldIORole        Field = "ioRole"
	FieldDataSource    Field = "dataSource"
	FieldRequired      Field = "required"
	FieldDescription   Field = "description"
	FieldDBField       Field = "dbField"
	FieldSequenceIndex Field = "sequenceIndex"
)

// Fields lists every column in export order.
var Fields = []Field{
	FieldSequenceIndex, FieldContent, FieldElementType, FieldDataType, FieldIORole,
	FieldDataSource, FieldRequired, FieldDescription, FieldDBField,
}

// ParseField matches s case-insensitively against the field names.
func ParseField(s string) (Field, bool) {
	s = strings.TrimSpace(s)
	for _, f := range append([]Field{FieldID}, Fields...) {
		if strings.EqualFold(s, string(f)) {
			return f, true
		}
	}
	return "", false
}

func (f Field) numeric() bool {
	return f == FieldID || f == FieldSequenceIndex
}

// apply writes value into r using the field's coercion rule. It reports false
// for fields that cannot be edited.
func (f Field) apply(r *item.Record, value string) bool {
	switch f {
	case FieldContent:
		r.Content = item.NormalizeContent(value)
	case FieldElementType:
		r.ElementType = item.NormalizeElementType(value)
	case FieldDataType:
		r.DataType = item.ParseDataType(value)
	case FieldIORole:
		r.IORole = item.ParseIORole(value)
	case FieldDataSource:
		r.DataSource = item.NormalizeDataSource(value)
	case FieldRequired:
		r.Required = item.ParseRequired(value)
	case FieldDescription:
		r.Description = item.NormalizeDescription(value)
	case FieldDBField:
		r.DBField = item.NormalizeDBField(value)
	case FieldSequenceIndex:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n <= 0 {
			n = r.ID
		}
		r.SequenceIndex = n
	default:
		return false
	}
	return true
}

// text renders the field for display, filtering and string sorting.
func (f Field) text(r item.Record) string {
	switch f {
	case FieldID:
		return strconv.Itoa(r.ID)
	case FieldContent:
		return r.Content
	case FieldElementType:
		return r.ElementType
	case FieldDataType:
		return string(r.DataType)
	case FieldIORole:
		return string(r.IORole)
	case FieldDataSource:
		return r.DataSourceString()
	case FieldRequired:
		return r.Required.String()
	case FieldDescription:
		return r.Description
	case FieldDBField:
		return r.DBField
	case FieldSequenceIndex:
		return strconv.Itoa(r.SequenceIndex)
	}
	return ""
}

func (f Field) number(r item.Record) int {
	if f == FieldID {
		return r.ID
	}
	return r.SequenceIndex
}
