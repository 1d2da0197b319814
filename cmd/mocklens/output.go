package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/hyperengineering/mocklens/internal/config"
	"github.com/hyperengineering/mocklens/internal/store"
	"github.com/hyperengineering/mocklens/internal/validation"
	"github.com/hyperengineering/mocklens/pkg/item"
)

// dbPathOverride is shared by the commands that open the store directly.
var dbPathOverride string

// openStore opens the SQLite store at --db, or at the configured path.
func openStore() (*store.SQLiteStore, error) {
	path := dbPathOverride
	if path == "" {
		cfg, err := config.LoadLocal()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		path = cfg.Database.Path
	}
	return store.NewSQLiteStore(path)
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// printRecords writes a record set as an aligned table.
func printRecords(w io.Writer, records []item.Record) {
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "#\tCONTENT\tTYPE\tDATA\tROLE\tSOURCE\tREQUIRED\tDB FIELD")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.SequenceIndex,
			oneLine(r.Content),
			r.ElementType,
			r.DataType,
			r.IORole,
			r.DataSourceString(),
			r.Required,
			r.DBField,
		)
	}
	tw.Flush()
}

// oneLine keeps multi-line content from breaking table rows.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// validationFailure joins field errors into one CLI error.
func validationFailure(errs []validation.ValidationError) error {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Field + ": " + e.Message
	}
	return fmt.Errorf("invalid input: %s", strings.Join(parts, "; "))
}
