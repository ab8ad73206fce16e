package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/dusk/pkg/dusk/types"
)

// maxPrettyWarnings caps the warning list; structured formats carry all of them.
const maxPrettyWarnings = 20

// PrettyFormatter renders a styled header, a size table and a footer for
// terminal display.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	if r.Partial {
		w.WriteString(PartialBox.Render(fmt.Sprintf(
			"Partial scan: memory limit exceeded after %s entries; totals cover only what was visited",
			humanize.Comma(r.Stats.FilesScanned+r.Stats.DirsScanned))))
		w.WriteString("\n")
	}

	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")
	w.WriteString(f.formatTable(r))
	w.WriteString(f.formatFooter(r))

	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(f.formatWarnings(r.Warnings))
	}
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Result) string {
	var lines []string

	lines = append(lines, fmt.Sprintf("%s %s", LabelStyle.Render("Root:"), ValueStyle.Render(r.Root)))

	status := r.Memory.String()
	info := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Scanned:"), ValueStyle.Render(fmt.Sprintf(
			"%s dirs, %s files in %s",
			humanize.Comma(r.Stats.DirsScanned), humanize.Comma(r.Stats.FilesScanned),
			formatDuration(r.Stats.Duration)))),
		fmt.Sprintf("%s %s", LabelStyle.Render("Memory:"), statusStyle(status).Render(status)),
		fmt.Sprintf("%s %s", LabelStyle.Render("Pool:"), MutedStyle.Render(fmt.Sprintf(
			"%s x%d", r.Stats.Strategy, r.Stats.Workers))),
	}
	lines = append(lines, strings.Join(info, "  "))

	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatTable(r *Result) string {
	if len(r.Rows) == 0 {
		return MutedStyle.Render("  No entries matching criteria\n")
	}

	sizeWidth := len("SIZE")
	ownerWidth := len("OWNER")
	inodeWidth := len("INODES")
	for _, row := range r.Rows {
		sizeWidth = max(sizeWidth, len(row.SizeHuman))
		ownerWidth = max(ownerWidth, len(ownerOf(row)))
		inodeWidth = max(inodeWidth, len(fmt.Sprint(row.Inodes)))
	}

	var sb strings.Builder

	header := []string{TableHeaderStyle.Render(padLeft("SIZE", sizeWidth))}
	if r.View.ShowOwner {
		header = append(header, TableHeaderStyle.Render(padRight("OWNER", ownerWidth)))
	}
	if r.View.ShowInodes {
		header = append(header, TableHeaderStyle.Render(padLeft("INODES", inodeWidth)))
	}
	header = append(header, TableHeaderStyle.Render("PATH"))
	sb.WriteString("  " + strings.Join(header, "  ") + "\n")

	for _, row := range r.Rows {
		cols := []string{SizeStyle.Render(padLeft(row.SizeHuman, sizeWidth))}
		if r.View.ShowOwner {
			cols = append(cols, MutedStyle.Render(padRight(ownerOf(row), ownerWidth)))
		}
		if r.View.ShowInodes {
			inodes := ""
			if row.IsDir() {
				inodes = fmt.Sprint(row.Inodes)
			}
			cols = append(cols, ValueStyle.Render(padLeft(inodes, inodeWidth)))
		}
		if row.IsDir() {
			cols = append(cols, DirStyle.Render(row.Path+"/"))
		} else {
			cols = append(cols, PathStyle.Render(row.Path))
		}
		sb.WriteString("  " + strings.Join(cols, "  ") + "\n")
	}

	return sb.String()
}

func (f *PrettyFormatter) formatFooter(r *Result) string {
	parts := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Total:"), SizeStyle.Render(types.FormatSize(r.Total.Bytes))),
		fmt.Sprintf("%s %s", LabelStyle.Render("Files:"), ValueStyle.Render(humanize.Comma(r.Total.Files))),
	}

	if hits, misses := r.Stats.CacheHits, r.Stats.CacheMisses; hits+misses > 0 {
		parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render("Cache:"), SuccessStyle.Render(fmt.Sprintf(
			"%d hits / %d misses (%.0f%%)", hits, misses, r.Stats.CacheHitRate()*100))))
	}
	parts = append(parts, MutedStyle.Render("Use -o plain for unformatted output"))

	return FooterBox.Render(strings.Join(parts, "  "))
}

func (f *PrettyFormatter) formatWarnings(warnings []types.ScanWarning) string {
	var sb strings.Builder

	sb.WriteString(WarningStyle.Bold(true).Render(fmt.Sprintf("Warnings (%d):", len(warnings))))
	sb.WriteString("\n")
	for i, warning := range warnings {
		if i == maxPrettyWarnings {
			sb.WriteString(MutedStyle.Render(fmt.Sprintf("  ... and %d more", len(warnings)-i)))
			sb.WriteString("\n")
			break
		}
		sb.WriteString(WarningStyle.Render(fmt.Sprintf("  %s: %s", warning.Path, warning.Error)))
		sb.WriteString("\n")
	}
	return sb.String()
}

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	sec := d.Seconds()
	if sec < 1 {
		return fmt.Sprintf("%.0fms", sec*1000)
	}
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	seconds := int(sec) % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
