package table

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hyperengineering/mocklens/pkg/item"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

func sampleRecords() []item.Record {
	a := item.New(1)
	a.Content = "banana"
	a.ElementType = "Button"
	a.IORole = item.IOAction
	a.Description = "Submits the form"

	b := item.New(2)
	b.Content = "apple"
	b.ElementType = "Textbox"
	b.IORole = item.IOInput
	b.DataSource = strPtr("users.name")
	b.Required = item.RequiredYes

	c := item.New(3)
	c.Content = "Cherry"
	c.Description = "Banner shown after save"
	c.Required = item.RequiredConditional
	return []item.Record{a, b, c}
}

// mockSaver records calls and returns a configured result.
type mockSaver struct {
	calls int
	got   []item.Record
	ret   []item.Record
	err   error
}

func (m *mockSaver) Save(ctx context.Context, records []item.Record) ([]item.Record, error) {
	m.calls++
	m.got = item.Clone(records)
	return m.ret, m.err
}

func newController(records []item.Record) *Controller {
	return New(records, WithLogger(quietLogger()))
}

func TestController_DiscardRestoresBaseline(t *testing.T) {
	c := newController(sampleRecords())
	before, _ := c.CSV()

	c.EnterEditMode()
	if err := c.SetField(1, FieldContent, "Changed"); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	if err := c.SetField(2, FieldRequired, "No"); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	if _, err := c.AddRow(); err != nil {
		t.Fatalf("AddRow: %v", err)
	}
	c.Discard()

	if c.Editing() {
		t.Error("Editing() = true after Discard")
	}
	after, _ := c.CSV()
	if !bytes.Equal(before, after) {
		t.Errorf("export changed after discard:\nbefore %q\nafter  %q", before, after)
	}
	if diff := cmp.Diff(sampleRecords(), c.Records()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestController_EditsDoNotTouchBaseline(t *testing.T) {
	c := newController(sampleRecords())
	c.EnterEditMode()
	_ = c.SetField(3, FieldContent, "Plum")

	if got := c.Baseline()[2].Content; got != "Cherry" {
		t.Errorf("baseline content = %q, want Cherry", got)
	}
	if got := c.Records()[2].Content; got != "Plum" {
		t.Errorf("scratch content = %q, want Plum", got)
	}
}

func TestController_CommitSuccess(t *testing.T) {
	c := newController(sampleRecords())
	c.EnterEditMode()
	_ = c.SetField(1, FieldContent, "Save")
	saver := &mockSaver{}

	if err := c.Commit(context.Background(), saver); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if saver.calls != 1 {
		t.Errorf("saver calls = %d, want 1", saver.calls)
	}
	if saver.got[0].Content != "Save" {
		t.Errorf("saved content = %q, want Save", saver.got[0].Content)
	}
	if c.Editing() {
		t.Error("Editing() = true after commit")
	}
	if got := c.Baseline()[0].Content; got != "Save" {
		t.Errorf("baseline content = %q, want Save", got)
	}
}

func TestController_CommitUsesSavedSet(t *testing.T) {
	c := newController(sampleRecords())
	c.EnterEditMode()
	saved := []item.Record{item.New(1)}
	if err := c.Commit(context.Background(), &mockSaver{ret: saved}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if diff := cmp.Diff(saved, c.Baseline()); diff != "" {
		t.Errorf("baseline mismatch (-want +got):\n%s", diff)
	}
}

func TestController_CommitFailurePreservesEdits(t *testing.T) {
	c := newController(sampleRecords())
	c.EnterEditMode()
	_ = c.SetField(2, FieldContent, "Pear")
	_ = c.SetField(2, FieldDataSource, "orders.item")
	scratch := c.Records()

	saveErr := errors.New("database is locked")
	err := c.Commit(context.Background(), &mockSaver{err: saveErr})
	if !errors.Is(err, saveErr) {
		t.Fatalf("Commit error = %v, want wrapped save error", err)
	}
	if !strings.Contains(err.Error(), "database is locked") {
		t.Errorf("error %q does not carry the save message", err)
	}
	if !c.Editing() {
		t.Error("Editing() = false after failed commit")
	}
	if diff := cmp.Diff(scratch, c.Records()); diff != "" {
		t.Errorf("scratch changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(sampleRecords(), c.Baseline()); diff != "" {
		t.Errorf("baseline changed (-want +got):\n%s", diff)
	}

	// A retry with a working saver commits the preserved edits.
	if err := c.Commit(context.Background(), &mockSaver{}); err != nil {
		t.Fatalf("retry Commit: %v", err)
	}
	if got := c.Baseline()[1].Content; got != "Pear" {
		t.Errorf("baseline content = %q, want Pear", got)
	}
}

func TestController_CommitOutsideEditMode(t *testing.T) {
	c := newController(sampleRecords())
	saver := &mockSaver{}
	if err := c.Commit(context.Background(), saver); !errors.Is(err, ErrNotEditing) {
		t.Errorf("Commit error = %v, want ErrNotEditing", err)
	}
	if saver.calls != 0 {
		t.Error("saver called outside edit mode")
	}
}

func TestController_SaverFunc(t *testing.T) {
	c := newController(sampleRecords())
	c.EnterEditMode()
	var n int
	err := c.Commit(context.Background(), SaverFunc(func(_ context.Context, rs []item.Record) ([]item.Record, error) {
		n = len(rs)
		return nil, nil
	}))
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if n != 3 {
		t.Errorf("saver saw %d records, want 3", n)
	}
}

func TestController_SetFieldCoercion(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		value string
		check func(item.Record) bool
	}{
		{"required yes", FieldRequired, "Yes", func(r item.Record) bool { return r.Required == item.RequiredYes }},
		{"required conditional", FieldRequired, "Conditional", func(r item.Record) bool { return r.Required == item.RequiredConditional }},
		{"required garbage", FieldRequired, "maybe", func(r item.Record) bool { return r.Required == item.RequiredNo }},
		{"io case", FieldIORole, "input", func(r item.Record) bool { return r.IORole == item.IOInput }},
		{"io unknown", FieldIORole, "sideways", func(r item.Record) bool { return r.IORole == item.IOOutput }},
		{"data type", FieldDataType, "EMAIL", func(r item.Record) bool { return r.DataType == item.DataTypeEmail }},
		{"data source dash", FieldDataSource, "-", func(r item.Record) bool { return r.DataSource == nil }},
		{"data source value", FieldDataSource, "users.email", func(r item.Record) bool {
			return r.DataSource != nil && *r.DataSource == "users.email"
		}},
		{"element type", FieldElementType, "radio_button", func(r item.Record) bool { return r.ElementType == "RadioButton" }},
		{"db field", FieldDBField, "Email Address", func(r item.Record) bool { return r.DBField == "email_address" }},
		{"empty content", FieldContent, "  ", func(r item.Record) bool { return r.Content == item.DefaultContent }},
		{"sequence", FieldSequenceIndex, "7", func(r item.Record) bool { return r.SequenceIndex == 7 }},
		{"bad sequence", FieldSequenceIndex, "x", func(r item.Record) bool { return r.SequenceIndex == r.ID }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newController(sampleRecords())
			c.EnterEditMode()
			if err := c.SetField(1, tt.field, tt.value); err != nil {
				t.Fatalf("SetField: %v", err)
			}
			if r := c.Records()[0]; !tt.check(r) {
				t.Errorf("record after SetField(%s, %q) = %+v", tt.field, tt.value, r)
			}
		})
	}
}

func TestController_SetFieldNoop(t *testing.T) {
	tests := []struct {
		name  string
		edit  bool
		id    int
		field Field
	}{
		{"unknown id", true, 99, FieldContent},
		{"read-only id field", true, 1, FieldID},
		{"unknown field", true, 1, Field("colour")},
		{"not editing", false, 1, FieldContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newController(sampleRecords())
			if tt.edit {
				c.EnterEditMode()
			}
			before := c.Records()
			err := c.SetField(tt.id, tt.field, "x")
			if !errors.Is(err, ErrValidationNoop) {
				t.Errorf("error = %v, want ErrValidationNoop", err)
			}
			if diff := cmp.Diff(before, c.Records()); diff != "" {
				t.Errorf("records changed (-want +got):\n%s", diff)
			}
		})
	}
}

func TestController_EnterEditModeTwiceKeepsScratch(t *testing.T) {
	c := newController(sampleRecords())
	c.EnterEditMode()
	_ = c.SetField(1, FieldContent, "kept")
	c.EnterEditMode()
	if got := c.Records()[0].Content; got != "kept" {
		t.Errorf("content = %q, want kept", got)
	}
}

func TestController_AddRowAndDeleteSelected(t *testing.T) {
	c := newController(sampleRecords())
	c.EnterEditMode()

	id, err := c.AddRow()
	if err != nil {
		t.Fatalf("AddRow: %v", err)
	}
	if id != 4 {
		t.Errorf("new id = %d, want 4", id)
	}
	if got := c.Records()[3]; !got.Equal(item.New(4)) {
		t.Errorf("new row = %+v, want defaults", got)
	}

	c.Select(1, 4, 42)
	if diff := cmp.Diff([]int{1, 4}, c.Selected()); diff != "" {
		t.Errorf("selection mismatch (-want +got):\n%s", diff)
	}
	n, err := c.DeleteSelected()
	if err != nil {
		t.Fatalf("DeleteSelected: %v", err)
	}
	if n != 2 {
		t.Errorf("removed %d, want 2", n)
	}
	var ids []int
	for _, r := range c.Records() {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]int{2, 3}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	if len(c.Selected()) != 0 {
		t.Error("selection not cleared after delete")
	}
	if len(c.Baseline()) != 3 {
		t.Error("delete touched the baseline")
	}
}

func TestController_DiscardPrunesSelection(t *testing.T) {
	c := newController(sampleRecords())
	c.EnterEditMode()
	id, _ := c.AddRow()
	c.Select(id, 2)
	c.Discard()
	if diff := cmp.Diff([]int{2}, c.Selected()); diff != "" {
		t.Errorf("selection mismatch (-want +got):\n%s", diff)
	}
	c.Deselect(2)
	if len(c.Selected()) != 0 {
		t.Error("Deselect left the id selected")
	}
}

func TestController_MutationsOutsideEditMode(t *testing.T) {
	c := newController(sampleRecords())
	if _, err := c.AddRow(); !errors.Is(err, ErrValidationNoop) {
		t.Errorf("AddRow error = %v, want ErrValidationNoop", err)
	}
	c.Select(1)
	if _, err := c.DeleteSelected(); !errors.Is(err, ErrValidationNoop) {
		t.Errorf("DeleteSelected error = %v, want ErrValidationNoop", err)
	}
	if len(c.Records()) != 3 {
		t.Error("records changed outside edit mode")
	}
}

func TestController_RecordsReturnsCopy(t *testing.T) {
	c := newController(sampleRecords())
	rs := c.Records()
	rs[0].Content = "mutated"
	*rs[1].DataSource = "mutated"
	if c.Records()[0].Content != "banana" || *c.Records()[1].DataSource != "users.name" {
		t.Error("caller mutation leaked into controller")
	}
}

func contents(p Page) []string {
	out := make([]string, 0, len(p.Records))
	for _, r := range p.Records {
		out = append(out, r.Content)
	}
	return out
}

func TestView_SortLocaleAware(t *testing.T) {
	c := newController(sampleRecords())

	asc := c.View(Query{SortBy: FieldContent})
	if diff := cmp.Diff([]string{"apple", "banana", "Cherry"}, contents(asc)); diff != "" {
		t.Errorf("ascending mismatch (-want +got):\n%s", diff)
	}
	desc := c.View(Query{SortBy: FieldContent, Descending: true})
	if diff := cmp.Diff([]string{"Cherry", "banana", "apple"}, contents(desc)); diff != "" {
		t.Errorf("descending mismatch (-want +got):\n%s", diff)
	}
}

func TestView_SortNumeric(t *testing.T) {
	rs := sampleRecords()
	rs[0].SequenceIndex = 10
	rs[1].SequenceIndex = 9
	rs[2].SequenceIndex = 2
	c := newController(rs)

	p := c.View(Query{SortBy: FieldSequenceIndex})
	if diff := cmp.Diff([]string{"Cherry", "apple", "banana"}, contents(p)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestView_SortStableOnTies(t *testing.T) {
	c := newController(sampleRecords())
	// Every record has data type "string".
	p := c.View(Query{SortBy: FieldDataType, Descending: true})
	if diff := cmp.Diff([]string{"banana", "apple", "Cherry"}, contents(p)); diff != "" {
		t.Errorf("ties reordered (-want +got):\n%s", diff)
	}
}

func TestView_FilterCaseInsensitive(t *testing.T) {
	c := newController(sampleRecords())
	tests := []struct {
		search string
		want   []string
	}{
		{"", []string{"banana", "apple", "Cherry"}},
		{"BAN", []string{"banana", "Cherry"}},
		{"form", []string{"banana"}},
		{"  cherry ", []string{"Cherry"}},
		{"zzz", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			p := c.View(Query{Search: tt.search})
			if diff := cmp.Diff(tt.want, contents(p)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
			if p.Total != len(tt.want) {
				t.Errorf("Total = %d, want %d", p.Total, len(tt.want))
			}
		})
	}
}

func TestView_Pagination(t *testing.T) {
	var rs []item.Record
	for i := 1; i <= 7; i++ {
		rs = append(rs, item.New(i))
	}
	c := newController(rs)

	tests := []struct {
		name      string
		page      int
		size      int
		wantPage  int
		wantCount int
		wantLen   int
	}{
		{"first", 1, 3, 1, 3, 3},
		{"last partial", 3, 3, 3, 3, 1},
		{"past end clamps", 9, 3, 3, 3, 1},
		{"zero page", 0, 3, 1, 3, 3},
		{"unpaged", 1, 0, 1, 1, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := c.View(Query{Page: tt.page, PageSize: tt.size})
			if p.Page != tt.wantPage || p.PageCount != tt.wantCount || len(p.Records) != tt.wantLen {
				t.Errorf("page=%d count=%d len=%d, want %d/%d/%d",
					p.Page, p.PageCount, len(p.Records), tt.wantPage, tt.wantCount, tt.wantLen)
			}
			if p.Total != 7 {
				t.Errorf("Total = %d, want 7", p.Total)
			}
		})
	}
}

func TestView_EmptySet(t *testing.T) {
	c := newController(nil)
	p := c.View(Query{Page: 2, PageSize: 10})
	if p.Total != 0 || p.PageCount != 0 || len(p.Records) != 0 || p.Page != 1 {
		t.Errorf("empty view = %+v", p)
	}
}

func TestView_DoesNotMutateWorkingSet(t *testing.T) {
	c := newController(sampleRecords())
	c.SetQuery(Query{SortBy: FieldContent, Search: "a", PageSize: 1})
	p := c.Current()
	p.Records[0].Content = "mutated"
	if diff := cmp.Diff(sampleRecords(), c.Records()); diff != "" {
		t.Errorf("working set changed (-want +got):\n%s", diff)
	}
	if c.Query().PageSize != 1 {
		t.Error("query state not retained")
	}
}

func TestExportCSV_Format(t *testing.T) {
	r := item.New(1)
	r.Content = `Say "hi", then
leave`
	r.DataSource = strPtr("users.greeting")
	r.Required = item.RequiredConditional
	c := newController([]item.Record{r})

	var buf bytes.Buffer
	if err := c.ExportCSV(&buf); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	want := `"#","Content","Element Type","Data Type","I/O","Data Source","Required","Description","DB Field"` + "\r\n" +
		`"1","Say ""hi"", then` + "\n" + `leave","Label","string","Output","users.greeting","Conditional","No description","content_field"` + "\r\n"
	if got := buf.String(); got != want {
		t.Errorf("csv mismatch:\ngot  %q\nwant %q", got, want)
	}
	if bytes.HasPrefix(buf.Bytes(), []byte("\xef\xbb\xbf")) {
		t.Error("export starts with a byte order mark")
	}
}

func TestExportCSV_RoundTrip(t *testing.T) {
	rs := sampleRecords()
	rs[0].Content = "comma, quote \" and\nnewline"
	c := newController(rs)
	c.SetQuery(Query{SortBy: FieldContent, Search: "apple"})

	data, err := c.CSV()
	if err != nil {
		t.Fatalf("CSV: %v", err)
	}
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("csv read: %v", err)
	}
	if len(rows) != len(rs)+1 {
		t.Fatalf("got %d rows, want header + %d", len(rows), len(rs))
	}
	if diff := cmp.Diff(CSVHeader, rows[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	// Stored order, ignoring the active sort and filter.
	for i, r := range rs {
		if diff := cmp.Diff(csvRow(r), rows[i+1]); diff != "" {
			t.Errorf("row %d mismatch (-want +got):\n%s", i, diff)
		}
	}
	if rows[2][5] != "users.name" || rows[1][5] != "-" {
		t.Errorf("data source cells = %q, %q", rows[1][5], rows[2][5])
	}
	if rows[2][6] != "Yes" || rows[3][6] != "Conditional" || rows[1][6] != "No" {
		t.Errorf("required cells = %q, %q, %q", rows[1][6], rows[2][6], rows[3][6])
	}
}

func TestExportCSV_EditingExportsScratch(t *testing.T) {
	c := newController(sampleRecords())
	c.EnterEditMode()
	_ = c.SetField(1, FieldContent, "edited")
	data, _ := c.CSV()
	if !strings.Contains(string(data), `"edited"`) {
		t.Error("export does not reflect scratch edits")
	}
}

func TestParseField(t *testing.T) {
	tests := []struct {
		in     string
		want   Field
		wantOK bool
	}{
		{"content", FieldContent, true},
		{"ElementType", FieldElementType, true},
		{" dbfield ", FieldDBField, true},
		{"id", FieldID, true},
		{"colour", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseField(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseField(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
