package normalize

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/hyperengineering/mocklens/pkg/item"
)

// Field aliases, first match wins. Models answer with the short prompt keys
// ("type", "io", "database"); already-normalized records use the JSON names
// of item.Record, so both are accepted.
var (
	idKeys          = []string{"id"}
	contentKeys     = []string{"content", "text", "label"}
	elementTypeKeys = []string{"type", "elementType", "element_type"}
	dataTypeKeys    = []string{"dataType", "data_type"}
	ioKeys          = []string{"io", "ioRole", "io_role"}
	requiredKeys    = []string{"required"}
	dataSourceKeys  = []string{"database", "dataSource", "data_source"}
	descriptionKeys = []string{"description", "desc"}
	dbFieldKeys     = []string{"dbField", "db_field"}
	sequenceKeys    = []string{"sequenceIndex", "sequence_index", "sequence"}
)

// Records converts decoded JSON array elements into records. It never fails:
// every gap is filled from the coercion table in package item.
func Records(values []any) []item.Record {
	records := make([]item.Record, len(values))
	for i, v := range values {
		records[i] = record(v, i)
	}
	if hasDuplicateIDs(records) {
		for i := range records {
			records[i].ID = i + 1
		}
	}
	return records
}

func record(v any, index int) item.Record {
	r := item.New(index + 1)
	m, ok := v.(map[string]any)
	if !ok {
		if s, ok := scalarString(v); ok {
			r.Content = item.NormalizeContent(s)
		}
		return r
	}

	if id, ok := positiveInt(lookup(m, idKeys)); ok {
		r.ID = id
	}
	r.Content = item.NormalizeContent(stringValue(m, contentKeys))
	r.ElementType = item.NormalizeElementType(stringValue(m, elementTypeKeys))
	r.DataType = item.ParseDataType(stringValue(m, dataTypeKeys))
	r.IORole = item.ParseIORole(stringValue(m, ioKeys))
	r.Required = required(m)
	r.DataSource = item.NormalizeDataSource(stringValue(m, dataSourceKeys))
	r.Description = item.NormalizeDescription(stringValue(m, descriptionKeys))
	r.DBField = item.NormalizeDBField(stringValue(m, dbFieldKeys))
	if seq, ok := positiveInt(lookup(m, sequenceKeys)); ok {
		r.SequenceIndex = seq
	} else {
		r.SequenceIndex = r.ID
	}
	return r
}

// required passes true, false and null through; anything else is false.
func required(m map[string]any) item.Required {
	v, present := lookupPresent(m, requiredKeys)
	if !present {
		return item.RequiredNo
	}
	switch b := v.(type) {
	case nil:
		return item.RequiredConditional
	case bool:
		if b {
			return item.RequiredYes
		}
	}
	return item.RequiredNo
}

func lookup(m map[string]any, keys []string) any {
	v, _ := lookupPresent(m, keys)
	return v
}

func lookupPresent(m map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func stringValue(m map[string]any, keys []string) string {
	s, _ := scalarString(lookup(m, keys))
	return s
}

// scalarString renders strings, numbers and booleans as text.
func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	}
	return "", false
}

func positiveInt(v any) (int, bool) {
	switch x := v.(type) {
	case json.Number:
		n, err := x.Int64()
		if err != nil || n <= 0 || n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case float64:
		if x < 1 || x > math.MaxInt32 || x != math.Trunc(x) {
			return 0, false
		}
		return int(x), true
	}
	return 0, false
}

func hasDuplicateIDs(records []item.Record) bool {
	seen := make(map[int]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			return true
		}
		seen[r.ID] = struct{}{}
	}
	return false
}
