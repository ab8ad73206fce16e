package output

import (
	"bytes"
	"encoding/csv"
	"strconv"
)

// csvHeader is the column order of the csv format.
var csvHeader = []string{"path", "type", "size", "owner", "inodes"}

// CSVFormatter writes one record per row. Size is in bytes; inodes is
// empty for files.
type CSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *CSVFormatter) Format(w *bytes.Buffer, r *Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, row := range r.Rows {
		inodes := ""
		if row.IsDir() {
			inodes = strconv.FormatInt(row.Inodes, 10)
		}
		record := []string{
			row.Path,
			row.Kind.String(),
			strconv.FormatInt(row.Size, 10),
			row.Owner,
			inodes,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func init() {
	Register("csv", func() Formatter {
		return &CSVFormatter{}
	})
}

// Ensure CSVFormatter implements Formatter.
var _ Formatter = (*CSVFormatter)(nil)
