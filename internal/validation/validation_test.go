package validation

import (
	"strings"
	"testing"

	"github.com/hyperengineering/mocklens/internal/types"
	"github.com/hyperengineering/mocklens/pkg/item"
)

func TestValidateText(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		max     int
		wantMsg string
	}{
		{"ascii", "hello world", 20, ""},
		{"empty", "", 20, ""},
		{"unicode at limit", "世界世界", 4, ""},
		{"invalid utf8", string([]byte{0xff, 0xfe}), 20, "UTF-8"},
		{"null byte", "a\x00b", 20, "null bytes"},
		{"too long", strings.Repeat("a", 21), 20, "maximum length of 20"},
		{"runes not bytes", strings.Repeat("世", 5), 4, "maximum length of 4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateText("field", tt.value, tt.max)
			if tt.wantMsg == "" {
				if err != nil {
					t.Errorf("ValidateText(%q) = %v, want nil", tt.value, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateText(%q) = nil, want error", tt.value)
			}
			if err.Field != "field" {
				t.Errorf("error.Field = %q, want %q", err.Field, "field")
			}
			if !strings.Contains(err.Message, tt.wantMsg) {
				t.Errorf("error.Message = %q, want to contain %q", err.Message, tt.wantMsg)
			}
		})
	}
}

func TestValidateRequired(t *testing.T) {
	for _, v := range []string{"", "   ", "\t\n"} {
		if ValidateRequired("name", v) == nil {
			t.Errorf("ValidateRequired(%q) = nil, want error", v)
		}
	}
	if err := ValidateRequired("name", "x"); err != nil {
		t.Errorf("ValidateRequired(x) = %v, want nil", err)
	}
}

func TestValidateULID(t *testing.T) {
	tests := []struct {
		value string
		valid bool
	}{
		{"01ARZ3NDEKTSV4RRFFQ69G5FAV", true},
		{"01arz3ndektsv4rrffq69g5fav", true},
		{"01ARZ3NDEKTSV4RRFFQ69G5FA", false},
		{"01ARZ3NDEKTSV4RRFFQ69G5FAI", false},
		{"", false},
	}
	for _, tt := range tests {
		err := ValidateULID("id", tt.value)
		if (err == nil) != tt.valid {
			t.Errorf("ValidateULID(%q) = %v, want valid=%v", tt.value, err, tt.valid)
		}
	}
}

func TestCollector(t *testing.T) {
	var c Collector
	c.Add(nil)
	if c.HasErrors() {
		t.Error("HasErrors() = true after adding nil")
	}
	c.Add(&ValidationError{Field: "a", Message: "bad"})
	c.Add(&ValidationError{Field: "b", Message: "bad"})
	if !c.HasErrors() || len(c.Errors()) != 2 {
		t.Errorf("Errors() = %v, want 2 errors", c.Errors())
	}
}

func TestValidateNewProject(t *testing.T) {
	tests := []struct {
		name      string
		in        types.NewProject
		wantField string
	}{
		{"valid", types.NewProject{Name: "Checkout", Description: "Payment flow"}, ""},
		{"missing name", types.NewProject{}, "name"},
		{"long name", types.NewProject{Name: strings.Repeat("n", MaxProjectNameLength+1)}, "name"},
		{"long description", types.NewProject{Name: "x", Description: strings.Repeat("d", MaxDescriptionLength+1)}, "description"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateNewProject(tt.in)
			if tt.wantField == "" {
				if len(errs) != 0 {
					t.Errorf("errors = %v, want none", errs)
				}
				return
			}
			if len(errs) != 1 || errs[0].Field != tt.wantField {
				t.Errorf("errors = %v, want one on %q", errs, tt.wantField)
			}
		})
	}
}

func TestValidateNewScreen(t *testing.T) {
	tests := []struct {
		name      string
		in        types.NewScreen
		wantField string
	}{
		{"valid no image", types.NewScreen{Name: "Login"}, ""},
		{"valid image", types.NewScreen{Name: "Login", ImageRef: "01ARZ3NDEKTSV4RRFFQ69G5FAV.png"}, ""},
		{"missing name", types.NewScreen{ImageRef: "01ARZ3NDEKTSV4RRFFQ69G5FAV"}, "name"},
		{"path traversal", types.NewScreen{Name: "x", ImageRef: "../../etc/passwd"}, "image_ref"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateNewScreen(tt.in)
			if tt.wantField == "" {
				if len(errs) != 0 {
					t.Errorf("errors = %v, want none", errs)
				}
				return
			}
			if len(errs) != 1 || errs[0].Field != tt.wantField {
				t.Errorf("errors = %v, want one on %q", errs, tt.wantField)
			}
		})
	}
}

func TestValidateSaveResult(t *testing.T) {
	valid := []item.Record{item.New(1), item.New(2)}
	if errs := ValidateSaveResult(types.SaveResultRequest{Items: valid}); len(errs) != 0 {
		t.Errorf("valid request errors = %v", errs)
	}
	if errs := ValidateSaveResult(types.SaveResultRequest{}); len(errs) != 0 {
		t.Errorf("empty request errors = %v", errs)
	}

	stripped := item.StripIDs(valid)
	if errs := ValidateSaveResult(types.SaveResultRequest{Items: stripped}); len(errs) != 0 {
		t.Errorf("stripped ids should be accepted, got %v", errs)
	}
	dup := []item.Record{item.New(1), item.New(1)}
	if errs := ValidateSaveResult(types.SaveResultRequest{Items: dup}); len(errs) != 0 {
		t.Errorf("client ids should be ignored, got %v", errs)
	}

	bad := item.New(1)
	bad.IORole = "Sideways"
	bad.Content = "a\x00b"
	errs := ValidateSaveResult(types.SaveResultRequest{Items: []item.Record{bad}})
	fields := map[string]bool{}
	for _, e := range errs {
		fields[e.Field] = true
	}
	if !fields["items[0].ioRole"] || !fields["items[0].content"] {
		t.Errorf("errors = %v, want ioRole and content", errs)
	}

	many := make([]item.Record, MaxItemsPerResult+1)
	errs = ValidateSaveResult(types.SaveResultRequest{Items: many})
	if len(errs) != 1 || errs[0].Field != "items" {
		t.Errorf("oversize errors = %v, want single items error", errs)
	}
}
