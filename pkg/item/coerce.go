package item

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ElementTypes is the allow-list of canonical element labels.
var ElementTypes = []string{
	"Label", "Textbox", "Number", "Dropdown", "Icon",
	"Button", "Image", "Toggle", "RadioButton", "Hyperlink",
}

var elementTypeIndex = func() map[string]string {
	m := make(map[string]string, len(ElementTypes))
	for _, t := range ElementTypes {
		m[strings.ToLower(t)] = t
	}
	return m
}()

// elementTypeTypos maps misspellings models are known to produce.
var elementTypeTypos = map[string]string{
	"botton": "button",
}

// NormalizeElementType returns the canonical label for s. Matching ignores
// case and word separators, so "radio_button" and "Text Box" resolve to
// "RadioButton" and "Textbox". Unknown values are title-cased and kept.
func NormalizeElementType(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultElementType
	}
	key := strings.Map(func(r rune) rune {
		if r == ' ' || r == '_' || r == '-' {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
	if fixed, ok := elementTypeTypos[key]; ok {
		key = fixed
	}
	if canonical, ok := elementTypeIndex[key]; ok {
		return canonical
	}
	return cases.Title(language.English).String(s)
}

// Valid reports whether d is a recognized data type.
func (d DataType) Valid() bool {
	for _, t := range DataTypes {
		if d == t {
			return true
		}
	}
	return false
}

// ParseDataType matches s case-insensitively; anything else is "string".
func ParseDataType(s string) DataType {
	d := DataType(strings.ToLower(strings.TrimSpace(s)))
	if d.Valid() {
		return d
	}
	return DataTypeString
}

// Valid reports whether r is one of the canonical roles.
func (r IORole) Valid() bool {
	return r == IOInput || r == IOOutput || r == IOAction
}

// ParseIORole matches s case-insensitively; anything else is Output.
func ParseIORole(s string) IORole {
	s = strings.TrimSpace(s)
	for _, r := range IORoles {
		if strings.EqualFold(s, string(r)) {
			return r
		}
	}
	return IOOutput
}

// ParseRequired maps the three-way dropdown value back to the tri-state.
// Unrecognized strings, including the empty string, mean RequiredNo.
func ParseRequired(s string) Required {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "required":
		return RequiredYes
	case "null", "conditional":
		return RequiredConditional
	default:
		return RequiredNo
	}
}

// NormalizeDataSource returns nil for every "no mapping yet" sentinel.
func NormalizeDataSource(s string) *string {
	s = strings.TrimSpace(s)
	switch s {
	case "", "-", "unknown_db", "null":
		return nil
	}
	return &s
}

// NormalizeDBField converts s to snake_case, falling back to DefaultDBField.
// "firstName" and "First Name" both become "first_name".
func NormalizeDBField(s string) string {
	var b strings.Builder
	pendingSep := false
	var prev rune
	for _, r := range strings.TrimSpace(s) {
		orig := r
		switch {
		case unicode.IsUpper(r):
			if b.Len() > 0 && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
				pendingSep = true
			}
			r = unicode.ToLower(r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
		default:
			if b.Len() > 0 {
				pendingSep = true
			}
			prev = r
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
		prev = orig
	}
	if b.Len() == 0 {
		return DefaultDBField
	}
	return b.String()
}

// NormalizeContent returns s, or DefaultContent when s is blank.
func NormalizeContent(s string) string {
	if strings.TrimSpace(s) == "" {
		return DefaultContent
	}
	return s
}

// NormalizeDescription returns s, or DefaultDescription when s is blank.
func NormalizeDescription(s string) string {
	if strings.TrimSpace(s) == "" {
		return DefaultDescription
	}
	return s
}
