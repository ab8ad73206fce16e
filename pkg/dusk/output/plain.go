package output

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"
)

// PlainFormatter writes one unstyled line per row, tagged [DIR] or [FILE],
// with the size, the optional owner and inode columns, then the path.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	for _, row := range r.Rows {
		cols := []string{tag(row), row.SizeHuman}
		if r.View.ShowOwner {
			cols = append(cols, ownerOf(row))
		}
		if r.View.ShowInodes {
			inodes := ""
			if row.IsDir() {
				inodes = fmt.Sprint(row.Inodes)
			}
			cols = append(cols, inodes)
		}
		cols = append(cols, row.Path)

		if _, err := tw.Write([]byte(strings.Join(cols, "\t") + "\n")); err != nil {
			return err
		}
	}

	return tw.Flush()
}

func tag(row Row) string {
	if row.IsDir() {
		return "[DIR]"
	}
	return "[FILE]"
}

func ownerOf(row Row) string {
	if row.Owner == "" {
		return "unknown"
	}
	return row.Owner
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

// Ensure PlainFormatter implements Formatter.
var _ Formatter = (*PlainFormatter)(nil)
