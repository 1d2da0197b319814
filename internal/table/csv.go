package table

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/hyperengineering/mocklens/pkg/item"
)

// CSVHeader is the fixed column order of an export.
var CSVHeader = []string{
	"#", "Content", "Element Type", "Data Type", "I/O",
	"Data Source", "Required", "Description", "DB Field",
}

// ExportCSV writes the working set in its stored order, ignoring any sort or
// filter. Every field is quoted and rows end in CRLF.
func (c *Controller) ExportCSV(w io.Writer) error {
	return WriteCSV(w, c.working())
}

// CSV returns ExportCSV's output as bytes.
func (c *Controller) CSV() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.ExportCSV(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteCSV writes records with a header row.
func WriteCSV(w io.Writer, records []item.Record) error {
	bw := bufio.NewWriter(w)
	if err := writeRow(bw, CSVHeader); err != nil {
		return err
	}
	for _, r := range records {
		if err := writeRow(bw, csvRow(r)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func csvRow(r item.Record) []string {
	return []string{
		strconv.Itoa(r.SequenceIndex),
		r.Content,
		r.ElementType,
		string(r.DataType),
		string(r.IORole),
		r.DataSourceString(),
		r.Required.String(),
		r.Description,
		r.DBField,
	}
}

func writeRow(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if err := w.WriteByte('"'); err != nil {
			return err
		}
		if _, err := w.WriteString(strings.ReplaceAll(f, `"`, `""`)); err != nil {
			return err
		}
		if err := w.WriteByte('"'); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\r\n")
	return err
}
